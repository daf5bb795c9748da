package inference

import "errors"

var (
	// ErrPoolClosed is returned by Acquire once the pool has been closed.
	ErrPoolClosed = errors.New("inference: pool closed")

	// ErrSessionClosed is returned by Infer on a closed session.
	ErrSessionClosed = errors.New("inference: session closed")

	// ErrRaggedInput indicates feature rows of differing width.
	ErrRaggedInput = errors.New("inference: feature rows differ in width")

	// ErrOutputShape indicates model output that is not (1, T, K).
	ErrOutputShape = errors.New("inference: unexpected output shape")
)

package inference

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// openPool skips the test when the model or the runtime is missing.
func openPool(t *testing.T, size int) *Pool {
	t.Helper()
	modelPath := testModelPath()
	if _, err := os.Stat(modelPath); err != nil {
		t.Skipf("Skipping: model not available at %s", modelPath)
	}

	pool, err := NewPool(modelPath, size, DefaultIONames)
	if err != nil {
		if isORTUnavailableError(err) {
			t.Skipf("Skipping: ONNX runtime not available: %v", err)
		}
		t.Fatalf("NewPool failed: %v", err)
	}
	return pool
}

func TestNewPool_InvalidSize(t *testing.T) {
	for _, size := range []int{0, -5} {
		pool := openPool(t, size)
		if pool.Size() != 1 {
			t.Errorf("size %d: expected pool of 1, got %d", size, pool.Size())
		}
		_ = pool.Close()
	}
}

func TestNewPool_ModelNotFound(t *testing.T) {
	_, err := NewPool("../testdata/nonexistent.onnx", 2, DefaultIONames)
	if err == nil {
		t.Error("expected error for non-existent model file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got: %v", err)
	}
}

func TestPool_AcquireRelease(t *testing.T) {
	pool := openPool(t, 2)
	defer func() { _ = pool.Close() }()

	ctx := context.Background()

	s1, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire 1 failed: %v", err)
	}
	s2, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire 2 failed: %v", err)
	}

	// Pool is drained; a third acquire waits until the deadline.
	ctx3, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	_, err = pool.Acquire(ctx3)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}

	pool.Release(s1)

	s3, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire 3 failed: %v", err)
	}

	pool.Release(s2)
	pool.Release(s3)
}

func TestPool_ReleaseNil(t *testing.T) {
	pool := openPool(t, 1)
	defer func() { _ = pool.Close() }()

	pool.Release(nil)
}

func TestPool_Close_Idempotent(t *testing.T) {
	pool := openPool(t, 2)

	if err := pool.Close(); err != nil {
		t.Errorf("first Close failed: %v", err)
	}
	if err := pool.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestPool_AcquireAfterClose(t *testing.T) {
	pool := openPool(t, 1)

	if err := pool.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	_, err := pool.Acquire(context.Background())
	if !errors.Is(err, ErrPoolClosed) {
		t.Errorf("expected ErrPoolClosed, got %v", err)
	}
}

func TestPool_ReleaseAfterClose(t *testing.T) {
	pool := openPool(t, 1)

	session, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	if err := pool.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// The session is closed rather than returned to the pool.
	pool.Release(session)
}

func TestPool_Predict(t *testing.T) {
	pool := openPool(t, 2)
	defer func() { _ = pool.Close() }()

	probs, err := pool.Predict(context.Background(), features(4, testFeatureDim()))
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if len(probs) != 4 {
		t.Errorf("expected 4 positions, got %d", len(probs))
	}
}

func TestPool_ConcurrentPredict(t *testing.T) {
	pool := openPool(t, 3)
	defer func() { _ = pool.Close() }()

	ctx := context.Background()
	dim := testFeatureDim()

	var wg sync.WaitGroup
	var successCount int64
	var errCount int64

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(rows int) {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				probs, err := pool.Predict(ctx, features(rows, dim))
				if err != nil || len(probs) != rows {
					atomic.AddInt64(&errCount, 1)
					continue
				}
				atomic.AddInt64(&successCount, 1)
			}
		}(i + 1)
	}

	wg.Wait()

	if errCount != 0 {
		t.Errorf("%d predictions failed", errCount)
	}
	t.Logf("Concurrent test completed: %d predictions", successCount)
}

func TestPool_Size(t *testing.T) {
	for _, size := range []int{1, 2, 5} {
		pool := openPool(t, size)
		if got := pool.Size(); got != size {
			t.Errorf("Size() = %d, want %d", got, size)
		}
		_ = pool.Close()
	}
}

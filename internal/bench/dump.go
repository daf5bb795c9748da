package bench

import (
	"errors"
	"fmt"
	"io"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	filler "github.com/jamesainslie/go-filler"
)

// ErrMalformedDump indicates a prediction dump that cannot be decoded.
var ErrMalformedDump = errors.New("bench: malformed prediction dump")

// Field numbers of the dump messages:
//
//	message Dump   { repeated Record records = 1; }
//	message Record {
//	  string id = 1;
//	  string speaker = 2;
//	  uint32 classes = 3;
//	  repeated float probs = 4;  // packed, row-major T×classes
//	  repeated uint32 target = 5; // packed
//	  string text = 6;
//	}
const (
	dumpRecords protowire.Number = 1

	recordID      protowire.Number = 1
	recordSpeaker protowire.Number = 2
	recordClasses protowire.Number = 3
	recordProbs   protowire.Number = 4
	recordTarget  protowire.Number = 5
	recordText    protowire.Number = 6
)

// WriteDump encodes predictions as a Dump message.
func WriteDump(w io.Writer, preds []Prediction) error {
	var buf []byte
	for i, p := range preds {
		rec, err := appendRecord(nil, p)
		if err != nil {
			return fmt.Errorf("record %d (%s): %w", i, p.ID, err)
		}
		buf = protowire.AppendTag(buf, dumpRecords, protowire.BytesType)
		buf = protowire.AppendBytes(buf, rec)
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write dump: %w", err)
	}
	return nil
}

func appendRecord(b []byte, p Prediction) ([]byte, error) {
	if len(p.Predicted) != len(p.Target) {
		return nil, fmt.Errorf("%w: %d predicted, %d target",
			filler.ErrLengthMismatch, len(p.Predicted), len(p.Target))
	}

	classes := 0
	if len(p.Predicted) > 0 {
		classes = len(p.Predicted[0])
	}

	b = protowire.AppendTag(b, recordID, protowire.BytesType)
	b = protowire.AppendString(b, p.ID)
	b = protowire.AppendTag(b, recordSpeaker, protowire.BytesType)
	b = protowire.AppendString(b, p.Speaker)
	b = protowire.AppendTag(b, recordClasses, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(classes))

	probs := make([]byte, 0, 4*classes*len(p.Predicted))
	for j, row := range p.Predicted {
		if len(row) != classes {
			return nil, fmt.Errorf("%w: position %d has %d classes, want %d",
				filler.ErrClassCount, j, len(row), classes)
		}
		for _, v := range row {
			probs = protowire.AppendFixed32(probs, math.Float32bits(v))
		}
	}
	b = protowire.AppendTag(b, recordProbs, protowire.BytesType)
	b = protowire.AppendBytes(b, probs)

	var target []byte
	for j, t := range p.Target {
		if t < 0 {
			return nil, fmt.Errorf("%w: position %d has label %d", filler.ErrLabelRange, j, t)
		}
		target = protowire.AppendVarint(target, uint64(t))
	}
	b = protowire.AppendTag(b, recordTarget, protowire.BytesType)
	b = protowire.AppendBytes(b, target)

	b = protowire.AppendTag(b, recordText, protowire.BytesType)
	b = protowire.AppendString(b, p.Text)
	return b, nil
}

// ReadDump decodes a Dump message written by WriteDump.
func ReadDump(r io.Reader) ([]Prediction, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read dump: %w", err)
	}

	var preds []Prediction
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %w", ErrMalformedDump, protowire.ParseError(n))
		}
		b = b[n:]

		if num != dumpRecords || typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %w", ErrMalformedDump, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}

		rec, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %w", ErrMalformedDump, protowire.ParseError(n))
		}
		b = b[n:]

		p, err := parseRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", len(preds), err)
		}
		preds = append(preds, p)
	}
	return preds, nil
}

func parseRecord(b []byte) (Prediction, error) {
	var (
		p       Prediction
		classes uint64
		probs   []float32
	)

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Prediction{}, fmt.Errorf("%w: %w", ErrMalformedDump, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == recordID && typ == protowire.BytesType:
			p.ID, n = protowire.ConsumeString(b)
		case num == recordSpeaker && typ == protowire.BytesType:
			p.Speaker, n = protowire.ConsumeString(b)
		case num == recordText && typ == protowire.BytesType:
			p.Text, n = protowire.ConsumeString(b)
		case num == recordClasses && typ == protowire.VarintType:
			classes, n = protowire.ConsumeVarint(b)
		case num == recordProbs && typ == protowire.BytesType:
			var packed []byte
			packed, n = protowire.ConsumeBytes(b)
			if n >= 0 {
				vals, err := unpackFloats(packed)
				if err != nil {
					return Prediction{}, err
				}
				probs = append(probs, vals...)
			}
		case num == recordTarget && typ == protowire.BytesType:
			var packed []byte
			packed, n = protowire.ConsumeBytes(b)
			if n >= 0 {
				vals, err := unpackLabels(packed)
				if err != nil {
					return Prediction{}, err
				}
				p.Target = append(p.Target, vals...)
			}
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return Prediction{}, fmt.Errorf("%w: %w", ErrMalformedDump, protowire.ParseError(n))
		}
		b = b[n:]
	}

	rows := len(p.Target)
	if p.Target == nil {
		p.Target = []int{}
	}
	if rows > 0 && classes == 0 {
		return Prediction{}, fmt.Errorf("%w: %s: %d positions with no classes", ErrMalformedDump, p.ID, rows)
	}
	k := int(classes)
	if len(probs) != rows*k {
		return Prediction{}, fmt.Errorf("%w: %s: %d probabilities for %d×%d",
			ErrMalformedDump, p.ID, len(probs), rows, k)
	}

	p.Predicted = make([][]float32, rows)
	for i := range p.Predicted {
		p.Predicted[i] = probs[i*k : (i+1)*k : (i+1)*k]
	}
	return p, nil
}

func unpackFloats(b []byte) ([]float32, error) {
	vals := make([]float32, 0, len(b)/4)
	for len(b) > 0 {
		v, n := protowire.ConsumeFixed32(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %w", ErrMalformedDump, protowire.ParseError(n))
		}
		vals = append(vals, math.Float32frombits(v))
		b = b[n:]
	}
	return vals, nil
}

func unpackLabels(b []byte) ([]int, error) {
	var vals []int
	for len(b) > 0 {
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %w", ErrMalformedDump, protowire.ParseError(n))
		}
		if v > math.MaxInt32 {
			return nil, fmt.Errorf("%w: label %d out of range", ErrMalformedDump, v)
		}
		vals = append(vals, int(v))
		b = b[n:]
	}
	return vals, nil
}

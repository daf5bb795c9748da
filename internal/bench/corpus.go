// Package bench loads filler-annotated corpora, runs a tagger over them and
// stores the resulting predictions.
package bench

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sbinet/npyio"

	filler "github.com/jamesainslie/go-filler"
)

// featsSuffix names the per-utterance array files, "<id>-feats.npy".
const featsSuffix = "-feats.npy"

// Utterance is one inter-pausal unit of a lecture.
type Utterance struct {
	ID       string // speaker-lecture-ipu
	Speaker  string
	Lecture  string
	IPU      string
	Text     string
	Features [][]float32
	Target   []int
}

// ParseUtterance parses a "speaker:lecture:ipu:text" line.
func ParseUtterance(line string) (Utterance, error) {
	parts := strings.SplitN(strings.TrimSpace(line), ":", 4)
	if len(parts) < 4 {
		return Utterance{}, fmt.Errorf("utterance %q: want speaker:lecture:ipu:text", line)
	}
	if parts[0] == "" {
		return Utterance{}, fmt.Errorf("utterance %q: empty speaker", line)
	}

	return Utterance{
		ID:      strings.Join(parts[:3], "-"),
		Speaker: parts[0],
		Lecture: parts[1],
		IPU:     parts[2],
		Text:    parts[3],
	}, nil
}

// readLines returns the trimmed, non-empty lines of a file.
func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer func() { _ = f.Close() }()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	return lines, nil
}

// LoadUtterances reads an utterance list, one "speaker:lecture:ipu:text" per line.
func LoadUtterances(path string) ([]Utterance, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}

	utts := make([]Utterance, 0, len(lines))
	for i, line := range lines {
		u, err := ParseUtterance(line)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+1, err)
		}
		utts = append(utts, u)
	}
	return utts, nil
}

// LoadFillers reads the filler list, one name per line. The i-th filler is
// class i+1.
func LoadFillers(path string) ([]string, error) {
	fillers, err := readLines(path)
	if err != nil {
		return nil, err
	}
	if len(fillers) == 0 {
		return nil, fmt.Errorf("%s: %w", path, filler.ErrNoFillers)
	}
	return fillers, nil
}

// LoadRates reads "name:rate" lines.
func LoadRates(path string) (filler.Rates, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}

	rates := make(filler.Rates, len(lines))
	for i, line := range lines {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("%s line %d: want name:rate, got %q", path, i+1, line)
		}
		rate, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+1, err)
		}
		rates[strings.TrimSpace(name)] = rate
	}
	return rates, nil
}

// LoadCorpus loads the utterances of listPath that have a feature file in
// inDir, together with their target labels from outDir. Feature and target
// files share the name "<id>-feats.npy".
func LoadCorpus(listPath, inDir, outDir string) ([]*Utterance, error) {
	utts, err := LoadUtterances(listPath)
	if err != nil {
		return nil, fmt.Errorf("load utterances: %w", err)
	}

	var corpus []*Utterance
	for i := range utts {
		u := utts[i]
		name := u.ID + featsSuffix

		feats, err := ReadFeatures(filepath.Join(inDir, name))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", name, err)
		}

		target, err := ReadLabels(filepath.Join(outDir, name))
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", name, err)
		}
		if len(target) != len(feats) {
			return nil, fmt.Errorf("loading %s: %w: %d feature rows, %d labels",
				name, filler.ErrLengthMismatch, len(feats), len(target))
		}

		u.Features = feats
		u.Target = target
		corpus = append(corpus, &u)
	}

	return corpus, nil
}

// ReadFeatures reads a (T, D) float array.
func ReadFeatures(path string) ([][]float32, error) {
	r, closeFn, err := openNPY(path)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	shape := r.Header.Descr.Shape
	if len(shape) != 2 {
		return nil, fmt.Errorf("%s: want a 2-d array, got shape %v", path, shape)
	}
	if r.Header.Descr.Fortran {
		return nil, fmt.Errorf("%s: fortran-ordered arrays are not supported", path)
	}

	var flat []float32
	switch r.Header.Descr.Type {
	case "<f4":
		if err := r.Read(&flat); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	case "<f8":
		var f64 []float64
		if err := r.Read(&f64); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		flat = make([]float32, len(f64))
		for i, v := range f64 {
			flat[i] = float32(v)
		}
	default:
		return nil, fmt.Errorf("%s: unsupported feature dtype %s", path, r.Header.Descr.Type)
	}

	rows, cols := shape[0], shape[1]
	if len(flat) != rows*cols {
		return nil, fmt.Errorf("%s: %d values for shape %v", path, len(flat), shape)
	}
	feats := make([][]float32, rows)
	for i := range feats {
		feats[i] = flat[i*cols : (i+1)*cols : (i+1)*cols]
	}
	return feats, nil
}

// ReadLabels reads a (T,) array of class labels.
func ReadLabels(path string) ([]int, error) {
	r, closeFn, err := openNPY(path)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	if shape := r.Header.Descr.Shape; len(shape) != 1 {
		return nil, fmt.Errorf("%s: want a 1-d array, got shape %v", path, shape)
	}

	var labels []int
	switch r.Header.Descr.Type {
	case "<i8":
		var v []int64
		if err := r.Read(&v); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		labels = make([]int, len(v))
		for i, x := range v {
			labels[i] = int(x)
		}
	case "<i4":
		var v []int32
		if err := r.Read(&v); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		labels = make([]int, len(v))
		for i, x := range v {
			labels[i] = int(x)
		}
	case "<f4", "<f8":
		var v []float64
		if r.Header.Descr.Type == "<f4" {
			var f32 []float32
			if err := r.Read(&f32); err != nil {
				return nil, fmt.Errorf("read %s: %w", path, err)
			}
			v = make([]float64, len(f32))
			for i, x := range f32 {
				v[i] = float64(x)
			}
		} else if err := r.Read(&v); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		labels = make([]int, len(v))
		for i, x := range v {
			if x != float64(int(x)) {
				return nil, fmt.Errorf("%s: label %v at %d is not integral", path, x, i)
			}
			labels[i] = int(x)
		}
	default:
		return nil, fmt.Errorf("%s: unsupported label dtype %s", path, r.Header.Descr.Type)
	}
	return labels, nil
}

func openNPY(path string) (*npyio.Reader, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	r, err := npyio.NewReader(bufio.NewReader(f))
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, func() { _ = f.Close() }, nil
}

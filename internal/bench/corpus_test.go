package bench

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sbinet/npyio"
	"github.com/stretchr/testify/require"

	filler "github.com/jamesainslie/go-filler"
)

// writeNPY writes data as a version 1.0 .npy file with the given dtype and shape.
func writeNPY(t *testing.T, path, descr string, shape []int, data any) {
	t.Helper()

	dims := make([]string, len(shape))
	for i, d := range shape {
		dims[i] = fmt.Sprint(d)
	}
	shapeStr := "(" + strings.Join(dims, ", ")
	if len(shape) == 1 {
		shapeStr += ","
	}
	shapeStr += ")"

	header := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': %s, }", descr, shapeStr)
	// magic(6) + version(2) + length(2) + header + '\n' is a multiple of 64.
	pad := 64 - (10+len(header)+1)%64
	header += strings.Repeat(" ", pad%64) + "\n"

	var buf bytes.Buffer
	buf.WriteString("\x93NUMPY")
	buf.Write([]byte{1, 0})
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint16(len(header))))
	buf.WriteString(header)
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, data))

	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

// writeLabels writes a (T,) int64 array through npyio.
func writeLabels(t *testing.T, path string, labels []int64) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()
	require.NoError(t, npyio.Write(f, labels))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestParseUtterance(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    Utterance
		wantErr bool
	}{
		{
			name: "valid",
			line: "A01M0001:L01:0003:えーと今日は",
			want: Utterance{
				ID:      "A01M0001-L01-0003",
				Speaker: "A01M0001",
				Lecture: "L01",
				IPU:     "0003",
				Text:    "えーと今日は",
			},
		},
		{
			name: "text with colons",
			line: "S1:L2:7:a:b:c",
			want: Utterance{ID: "S1-L2-7", Speaker: "S1", Lecture: "L2", IPU: "7", Text: "a:b:c"},
		},
		{
			name: "empty text",
			line: "S1:L2:7:",
			want: Utterance{ID: "S1-L2-7", Speaker: "S1", Lecture: "L2", IPU: "7"},
		},
		{name: "too few fields", line: "S1:L2:7", wantErr: true},
		{name: "empty speaker", line: ":L2:7:text", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseUtterance(tt.line)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestLoadFillers(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "fillers.txt")
	writeFile(t, path, "えー\n\n  あの  \nま\n")
	fillers, err := LoadFillers(path)
	require.NoError(t, err)
	require.Equal(t, []string{"えー", "あの", "ま"}, fillers)

	empty := filepath.Join(dir, "empty.txt")
	writeFile(t, empty, "\n\n")
	_, err = LoadFillers(empty)
	require.ErrorIs(t, err, filler.ErrNoFillers)

	_, err = LoadFillers(filepath.Join(dir, "missing.txt"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadRates(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "rates.txt")
	writeFile(t, path, "えー:0.5\nあの: 0.25\n")
	rates, err := LoadRates(path)
	require.NoError(t, err)
	require.Equal(t, filler.Rates{"えー": 0.5, "あの": 0.25}, rates)

	bad := filepath.Join(dir, "bad.txt")
	writeFile(t, bad, "えー 0.5\n")
	_, err = LoadRates(bad)
	require.Error(t, err)

	notNumber := filepath.Join(dir, "nan.txt")
	writeFile(t, notNumber, "えー:lots\n")
	_, err = LoadRates(notNumber)
	require.Error(t, err)
}

func TestReadFeatures(t *testing.T) {
	dir := t.TempDir()

	f32 := filepath.Join(dir, "f32.npy")
	writeNPY(t, f32, "<f4", []int{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	feats, err := ReadFeatures(f32)
	require.NoError(t, err)
	require.Equal(t, [][]float32{{1, 2, 3}, {4, 5, 6}}, feats)

	f64 := filepath.Join(dir, "f64.npy")
	writeNPY(t, f64, "<f8", []int{3, 1}, []float64{0.5, 1.5, 2.5})
	feats, err = ReadFeatures(f64)
	require.NoError(t, err)
	require.Equal(t, [][]float32{{0.5}, {1.5}, {2.5}}, feats)

	oneD := filepath.Join(dir, "1d.npy")
	writeNPY(t, oneD, "<f4", []int{3}, []float32{1, 2, 3})
	_, err = ReadFeatures(oneD)
	require.Error(t, err)

	ints := filepath.Join(dir, "ints.npy")
	writeNPY(t, ints, "<i8", []int{1, 2}, []int64{1, 2})
	_, err = ReadFeatures(ints)
	require.Error(t, err)

	_, err = ReadFeatures(filepath.Join(dir, "missing.npy"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadLabels(t *testing.T) {
	dir := t.TempDir()

	i64 := filepath.Join(dir, "i64.npy")
	writeLabels(t, i64, []int64{0, 2, 1, 0})
	labels, err := ReadLabels(i64)
	require.NoError(t, err)
	require.Equal(t, []int{0, 2, 1, 0}, labels)

	i32 := filepath.Join(dir, "i32.npy")
	writeNPY(t, i32, "<i4", []int{2}, []int32{3, 0})
	labels, err = ReadLabels(i32)
	require.NoError(t, err)
	require.Equal(t, []int{3, 0}, labels)

	floats := filepath.Join(dir, "f8.npy")
	writeNPY(t, floats, "<f8", []int{3}, []float64{0, 1, 2})
	labels, err = ReadLabels(floats)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2}, labels)

	fractional := filepath.Join(dir, "frac.npy")
	writeNPY(t, fractional, "<f4", []int{2}, []float32{0, 1.5})
	_, err = ReadLabels(fractional)
	require.Error(t, err)

	twoD := filepath.Join(dir, "2d.npy")
	writeNPY(t, twoD, "<i8", []int{1, 2}, []int64{0, 1})
	_, err = ReadLabels(twoD)
	require.Error(t, err)
}

func TestLoadCorpus(t *testing.T) {
	dir := t.TempDir()
	inDir := filepath.Join(dir, "in")
	outDir := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(inDir, 0o755))
	require.NoError(t, os.MkdirAll(outDir, 0o755))

	list := filepath.Join(dir, "utts.list")
	writeFile(t, list, strings.Join([]string{
		"S1:L1:0001:えー今日は",
		"S1:L1:0002:missing features",
		"S2:L4:0001:あの",
	}, "\n"))

	writeNPY(t, filepath.Join(inDir, "S1-L1-0001-feats.npy"), "<f4", []int{3, 2}, []float32{1, 0, 0, 1, 1, 1})
	writeLabels(t, filepath.Join(outDir, "S1-L1-0001-feats.npy"), []int64{1, 0, 0})
	writeNPY(t, filepath.Join(inDir, "S2-L4-0001-feats.npy"), "<f4", []int{1, 2}, []float32{0.5, 0.5})
	writeLabels(t, filepath.Join(outDir, "S2-L4-0001-feats.npy"), []int64{2})

	corpus, err := LoadCorpus(list, inDir, outDir)
	require.NoError(t, err)
	require.Len(t, corpus, 2)

	require.Equal(t, "S1-L1-0001", corpus[0].ID)
	require.Equal(t, "S1", corpus[0].Speaker)
	require.Equal(t, "えー今日は", corpus[0].Text)
	require.Equal(t, [][]float32{{1, 0}, {0, 1}, {1, 1}}, corpus[0].Features)
	require.Equal(t, []int{1, 0, 0}, corpus[0].Target)

	require.Equal(t, "S2-L4-0001", corpus[1].ID)
	require.Equal(t, []int{2}, corpus[1].Target)
}

func TestLoadCorpus_LengthMismatch(t *testing.T) {
	dir := t.TempDir()

	list := filepath.Join(dir, "utts.list")
	writeFile(t, list, "S1:L1:0001:text\n")
	writeNPY(t, filepath.Join(dir, "S1-L1-0001-feats.npy"), "<f4", []int{2, 1}, []float32{1, 2})

	labels := filepath.Join(dir, "labels")
	require.NoError(t, os.MkdirAll(labels, 0o755))
	writeLabels(t, filepath.Join(labels, "S1-L1-0001-feats.npy"), []int64{0, 0, 0})

	_, err := LoadCorpus(list, dir, labels)
	require.ErrorIs(t, err, filler.ErrLengthMismatch)
}

func TestLoadCorpus_MissingLabels(t *testing.T) {
	dir := t.TempDir()

	list := filepath.Join(dir, "utts.list")
	writeFile(t, list, "S1:L1:0001:text\n")
	writeNPY(t, filepath.Join(dir, "S1-L1-0001-feats.npy"), "<f4", []int{1, 1}, []float32{1})

	_, err := LoadCorpus(list, dir, filepath.Join(dir, "nowhere"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

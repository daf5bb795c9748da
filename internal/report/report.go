// Package report renders evaluation reports and predictions to files.
package report

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"gopkg.in/yaml.v3"

	filler "github.com/jamesainslie/go-filler"
)

// WriteScores writes the human-readable score summary: position scores,
// blended word scores, one block per filler and, when the report carries
// speakers, one line per speaker followed by the variance across speakers.
func WriteScores(w io.Writer, r *filler.Report) error {
	bw := bufio.NewWriter(w)

	writeBlock(bw, "filler position", r.Position)
	bw.WriteString("\n")
	writeBlock(bw, "filler word", r.Word)
	bw.WriteString("\n")

	for i, c := range r.Classes {
		if i > 0 {
			bw.WriteString("\n")
		}
		writeBlock(bw, c.Name, c.Scores)
	}

	if len(r.Speakers) > 0 {
		bw.WriteString("\n--- speakers ---\n")
		for _, s := range r.Speakers {
			fmt.Fprintf(bw, "%s: \t\t%s,\t%s\n", s.Speaker, s.Position.FScore, s.Word.FScore)
		}
		pos, word := r.SpeakerVariance()
		fmt.Fprintf(bw, "var: \t\t%s,\t%s\n", pos, word)
	}

	return bw.Flush()
}

func writeBlock(w io.Writer, title string, s filler.Scores) {
	fmt.Fprintf(w, "--- %s ---\nprecision:\t%s\nrecall:\t%s\nf_score:\t%s\nspecificity:%s\n",
		title, s.Precision, s.Recall, s.FScore, s.Specificity)
}

// Prediction is one utterance of the prediction listing.
type Prediction struct {
	Text    string
	Classes []int
}

// WritePredictions writes the text and the predicted class of every
// position for each utterance.
func WritePredictions(w io.Writer, preds []Prediction) error {
	bw := bufio.NewWriter(w)
	for i, p := range preds {
		if i > 0 {
			bw.WriteString("\n")
		}
		classes := make([]string, len(p.Classes))
		for j, c := range p.Classes {
			classes[j] = strconv.Itoa(c)
		}
		fmt.Fprintf(bw, "ipu text: \t%s\nfiller pred: \t%s", p.Text, strings.Join(classes, " "))
	}
	return bw.Flush()
}

// WriteYAML writes the full report as YAML.
func WriteYAML(w io.Writer, r *filler.Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return enc.Close()
}

// ClassRow is one filler class of the class table.
type ClassRow struct {
	Speaker           string       `csv:"speaker"`
	Index             int          `csv:"class"`
	Name              string       `csv:"filler"`
	Rate              float64      `csv:"rate"`
	PredictedPositive int          `csv:"predicted_positive"`
	ActualPositive    int          `csv:"actual_positive"`
	TruePositive      int          `csv:"true_positive"`
	TrueNegative      int          `csv:"true_negative"`
	Precision         filler.Value `csv:"precision"`
	Recall            filler.Value `csv:"recall"`
	FScore            filler.Value `csv:"f_score"`
	Specificity       filler.Value `csv:"specificity"`
}

// ClassRows flattens the per-class results of a report. Rows of the whole
// batch have an empty speaker and come first.
func ClassRows(r *filler.Report) []*ClassRow {
	rows := classRows("", r.Classes)
	for _, s := range r.Speakers {
		rows = append(rows, classRows(s.Speaker, s.Classes)...)
	}
	return rows
}

func classRows(speaker string, classes []filler.ClassScores) []*ClassRow {
	rows := make([]*ClassRow, len(classes))
	for i, c := range classes {
		rows[i] = &ClassRow{
			Speaker:           speaker,
			Index:             c.Index,
			Name:              c.Name,
			Rate:              c.Rate,
			PredictedPositive: c.Counts.PredictedPositive,
			ActualPositive:    c.Counts.ActualPositive,
			TruePositive:      c.Counts.TruePositive,
			TrueNegative:      c.Counts.TrueNegative,
			Precision:         c.Scores.Precision,
			Recall:            c.Scores.Recall,
			FScore:            c.Scores.FScore,
			Specificity:       c.Scores.Specificity,
		}
	}
	return rows
}

// WriteClassCSV writes ClassRows as CSV with a header line.
func WriteClassCSV(w io.Writer, r *filler.Report) error {
	if err := gocsv.Marshal(ClassRows(r), w); err != nil {
		return fmt.Errorf("encode classes: %w", err)
	}
	return nil
}

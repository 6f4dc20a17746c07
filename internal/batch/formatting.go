package batch

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Summary counts the entries of a run.
type Summary struct {
	Total     int            `json:"total"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	ByKind    map[string]int `json:"by_kind,omitempty"`
}

// Summarize counts successes and failures by kind.
func (r *Result) Summarize() Summary {
	s := Summary{Total: len(r.Entries), ByKind: map[string]int{}}
	for _, e := range r.Entries {
		if e.OK() {
			s.Succeeded++
			continue
		}
		s.Failed++
		s.ByKind[e.Kind]++
	}
	return s
}

// FormatResults renders the run as text, json or csv.
func (r *Result) FormatResults(format string) (string, error) {
	switch format {
	case FormatJSON:
		return r.formatJSON()
	case FormatCSV:
		return r.formatCSV()
	case FormatText, "":
		return r.formatText(), nil
	}
	return "", fmt.Errorf("unsupported report format %q", format)
}

// SaveResults writes the formatted report to outputFile, or stdout when empty.
func (r *Result) SaveResults(format, outputFile string) error {
	out, err := r.FormatResults(format)
	if err != nil {
		return err
	}
	if outputFile == "" {
		_, err = fmt.Fprint(os.Stdout, out)
		return err
	}
	if err := os.WriteFile(outputFile, []byte(out), 0o600); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func (r *Result) formatJSON() (string, error) {
	report := struct {
		Entries []Entry `json:"entries"`
		Summary Summary `json:"summary"`
		Seconds float64 `json:"duration_seconds"`
	}{Entries: r.Entries, Summary: r.Summarize(), Seconds: r.Duration.Seconds()}
	bts, err := json.MarshalIndent(report, "", "  ")
	return string(bts) + "\n", err
}

func (r *Result) formatCSV() (string, error) {
	var out strings.Builder
	w := csv.NewWriter(&out)
	header := []string{"source", "page", "index", "output", "width", "height", "confidence", "backend", "barcodes", "error", "kind"}
	if err := w.Write(header); err != nil {
		return "", err
	}
	for _, e := range r.Entries {
		codes := make([]string, 0, len(e.Barcodes))
		for _, b := range e.Barcodes {
			codes = append(codes, string(b.Format)+":"+b.Value)
		}
		row := []string{
			e.Source,
			strconv.Itoa(e.Page),
			strconv.Itoa(e.Index),
			e.Output,
			strconv.Itoa(e.Width),
			strconv.Itoa(e.Height),
			fmt.Sprintf("%.3f", e.Confidence),
			e.Backend,
			strings.Join(codes, ";"),
			e.Error,
			e.Kind,
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	return out.String(), w.Error()
}

func (r *Result) formatText() string {
	var out strings.Builder
	for _, e := range r.Entries {
		name := e.Source
		if e.Page > 0 {
			name = fmt.Sprintf("%s (page %d, image %d)", e.Source, e.Page, e.Index)
		}
		if !e.OK() {
			fmt.Fprintf(&out, "FAIL %s: [%s] %s\n", name, e.Kind, e.Error)
			continue
		}
		fmt.Fprintf(&out, "OK   %s -> %s (%dx%d, confidence %.2f)\n", name, e.Output, e.Width, e.Height, e.Confidence)
		for _, b := range e.Barcodes {
			fmt.Fprintf(&out, "     %s: %s\n", b.Format, b.Value)
		}
	}
	s := r.Summarize()
	fmt.Fprintf(&out, "\n%d processed, %d succeeded, %d failed in %v\n",
		s.Total, s.Succeeded, s.Failed, r.Duration.Round(time.Millisecond))
	return out.String()
}

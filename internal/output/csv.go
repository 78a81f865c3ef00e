/*
PURPOSE:
  Writes every probe of every capacity search to a CSV file.
  Ensures data integrity by flushing writes immediately.

REQUIREMENTS:
  User-specified:
  - Output to CSV.

  Implementation-discovered:
  - One row per history entry, so the estimate sequence of a search can be
    plotted without the JSON file.
  - Searches with no probes still get a row carrying their outcome.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine
  - Consumes: internal/model.SearchResult

ERROR HANDLING:
  - Returns error on file creation or write failure.

IMPLEMENTATION RULES:
  - Use encoding/csv.
  - Flush() after every result (critical for crash resilience).
  - Mutex-guarded.

USAGE:
  w, err := output.NewCSVWriter("history.csv")
  w.Write(result)
  w.Close()

SELF-HEALING INSTRUCTIONS:
  - If CSV format changes, update header and record conversion.

RELATED FILES:
  - internal/model/types.go

MAINTENANCE:
  - Update rows() mapping when HistoryEntry changes.
*/

package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/daryltucker/density-runner/internal/model"
)

var csvHeader = []string{
	"search_id", "parameters", "outcome", "timestamp",
	"probe", "phase", "num_streams", "ai_streams", "non_ai_streams",
	"total_fps", "per_stream_fps", "reported_streams", "passed",
	"exit_code", "timed_out", "probe_duration_s", "peak_rss_mb", "peak_cpu_pct",
	"best_streams", "error",
}

// CSVWriter handles writing search history to a CSV file.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter creates a new CSVWriter.
// It overwrites the file if it exists.
func NewCSVWriter(path string) (*CSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		f.Close()
		return nil, err
	}
	w.Flush()

	return &CSVWriter{
		file:   f,
		writer: w,
	}, nil
}

// Write writes all probes of a single search result.
// It is thread-safe.
func (cw *CSVWriter) Write(r model.SearchResult) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, record := range rows(r) {
		if err := cw.writer.Write(record); err != nil {
			return err
		}
	}
	cw.writer.Flush()
	return cw.writer.Error()
}

// Close closes the underlying file.
func (cw *CSVWriter) Close() error {
	cw.writer.Flush()
	return cw.file.Close()
}

func rows(r model.SearchResult) [][]string {
	paramBytes, _ := json.Marshal(r.Parameters)
	prefix := []string{
		r.ID,
		string(paramBytes),
		string(r.Outcome),
		r.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
	}
	suffix := []string{strconv.Itoa(r.Best.NumStreams), r.Error}

	if len(r.History) == 0 {
		record := append([]string{}, prefix...)
		record = append(record, make([]string, len(csvHeader)-len(prefix)-len(suffix))...)
		return [][]string{append(record, suffix...)}
	}

	out := make([][]string, 0, len(r.History))
	for _, h := range r.History {
		m := h.Measurement
		record := append([]string{}, prefix...)
		record = append(record,
			strconv.Itoa(h.Index),
			string(h.Phase),
			strconv.Itoa(h.NumStreams),
			strconv.Itoa(h.AIStreams),
			strconv.Itoa(h.NonAIStreams),
			optFloat(m.TotalFPS),
			optFloat(m.PerStreamFPS),
			optInt(m.NumStreams),
			strconv.FormatBool(h.Passed),
			optInt(m.ExitCode),
			strconv.FormatBool(m.TimedOut),
			fmt.Sprintf("%.4f", m.Duration.Seconds()),
			fmt.Sprintf("%.2f", float64(m.PeakRSSBytes)/1024/1024), // MB
			fmt.Sprintf("%.1f", m.PeakCPUPercent),
		)
		out = append(out, append(record, suffix...))
	}
	return out
}

func optFloat(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.2f", *v)
}

func optInt(v *int) string {
	if v == nil {
		return "N/A"
	}
	return strconv.Itoa(*v)
}

package operation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pithecene-io/sluice/metrics"
	"github.com/pithecene-io/sluice/types"
)

// Report is the structured JSON report written by --report.
type Report struct {
	OperationID string              `json:"operation_id"`
	Kind        types.OperationKind `json:"kind"`
	Session     string              `json:"session,omitempty"`
	Outcome     types.OutcomeStatus `json:"outcome"`
	Message     string              `json:"message"`
	ExitCode    int                 `json:"exit_code"`
	DurationMs  int64               `json:"duration_ms"`
	Count       int                 `json:"count"`

	Export  *ReportExport     `json:"export,omitempty"`
	Metrics *metrics.Snapshot `json:"metrics"`
}

// ReportExport holds export statistics in the report.
type ReportExport struct {
	Destination  string `json:"destination"`
	Written      int    `json:"written"`
	Observed     int    `json:"observed"`
	Drained      int    `json:"drained"`
	Bytes        int64  `json:"bytes"`
	Digest       string `json:"digest"`
	ArtifactPath string `json:"artifact_path,omitempty"`
}

// BuildExportReport composes a Report from an export result.
func BuildExportReport(res *ExportResult, destination string) *Report {
	r := &Report{
		OperationID: res.Meta.ID,
		Kind:        res.Meta.Kind,
		Session:     res.Meta.Session,
		Outcome:     res.Outcome.Status,
		Message:     res.Outcome.Message,
		ExitCode:    ExitCode(res.Outcome.Status),
		DurationMs:  res.Duration.Milliseconds(),
		Count:       res.Count,
		Metrics:     &res.Metrics,
	}
	if res.Stats != nil {
		r.Export = &ReportExport{
			Destination:  destination,
			Written:      res.Stats.Written,
			Observed:     res.Stats.Observed,
			Drained:      res.Stats.Drained,
			Bytes:        res.Stats.Bytes,
			Digest:       fmt.Sprintf("%016x", res.Stats.Digest),
			ArtifactPath: res.ArtifactPath,
		}
	}
	return r
}

// BuildExtractReport composes a Report from an extract result.
func BuildExtractReport(res *ExtractResult) *Report {
	return &Report{
		OperationID: res.Meta.ID,
		Kind:        res.Meta.Kind,
		Session:     res.Meta.Session,
		Outcome:     res.Outcome.Status,
		Message:     res.Outcome.Message,
		ExitCode:    ExitCode(res.Outcome.Status),
		DurationMs:  res.Duration.Milliseconds(),
		Count:       len(res.Matches),
		Metrics:     &res.Metrics,
	}
}

// WriteReport writes the report as JSON to the specified path.
// If path is "-", writes to stderr.
func WriteReport(report *Report, path string) error {
	if path == "" {
		return errors.New("report path must not be empty")
	}
	if path == "-" {
		if err := writeReportTo(report, os.Stderr); err != nil {
			return fmt.Errorf("failed to write report to stderr: %w", err)
		}
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	if err := writeReportTo(report, f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return f.Close()
}

// writeReportTo writes report JSON to any writer.
func writeReportTo(report *Report, w io.Writer) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

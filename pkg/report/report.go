// Package report builds periodic analytics snapshots and ships them to
// archive destinations. It backs the tally-reporter command.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/tally/pkg/analytics"
)

// Snapshot is the archived state of the analytics at one point in time
type Snapshot struct {
	GeneratedAt time.Time                `json:"generated_at"`
	Days        int                      `json:"days"`
	Global      *analytics.GlobalMetrics `json:"global"`
	Trend       *analytics.UsageTrend    `json:"trend"`
	Alerts      []analytics.Alert        `json:"alerts"`
}

// Exporter ships a snapshot somewhere
type Exporter interface {
	Name() string
	Export(ctx context.Context, snap *Snapshot) error
}

// Output formats for WriterExporter
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// WriterExporter writes snapshots to an io.Writer, one document per export
type WriterExporter struct {
	w      io.Writer
	format string
}

// NewWriterExporter creates a writer exporter. format is json or yaml.
func NewWriterExporter(w io.Writer, format string) (*WriterExporter, error) {
	format = strings.ToLower(format)
	switch format {
	case "":
		format = FormatJSON
	case FormatJSON, FormatYAML:
	default:
		return nil, fmt.Errorf("unsupported snapshot format %q", format)
	}
	return &WriterExporter{w: w, format: format}, nil
}

// Name implements Exporter
func (e *WriterExporter) Name() string {
	return "writer/" + e.format
}

// Export implements Exporter
func (e *WriterExporter) Export(ctx context.Context, snap *Snapshot) error {
	data, err := Encode(snap, e.format)
	if err != nil {
		return err
	}
	if e.format == FormatYAML {
		data = append([]byte("---\n"), data...)
	}
	if _, err := e.w.Write(data); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// Encode renders a snapshot. YAML output uses the same field names as JSON.
func Encode(snap *Snapshot, format string) ([]byte, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if format != FormatYAML {
		return append(data, '\n'), nil
	}

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to re-decode snapshot: %w", err)
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot yaml: %w", err)
	}
	return out, nil
}

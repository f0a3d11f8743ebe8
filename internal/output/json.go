package output

import (
	"encoding/json"
	"fmt"
	"os"
)

// JSON writes the machine-readable summary to a file, or to stdout when the
// path is "-".
type JSON struct {
	path string
}

// NewJSON creates a JSON summary writer.
func NewJSON(path string) *JSON {
	return &JSON{path: path}
}

func (j *JSON) Name() string { return "json" }

// WriteSummary serializes the run summary.
func (j *JSON) WriteSummary(s *RunSummary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	data = append(data, '\n')

	if j.path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}

	if err := os.WriteFile(j.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write summary file: %w", err)
	}
	return nil
}

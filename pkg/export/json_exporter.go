package export

import (
	"encoding/json"
	"fmt"
)

// JSONExporter renders datasets as an array of objects keyed by header.
type JSONExporter struct{}

// NewJSONExporter constructs a JSON exporter.
func NewJSONExporter() *JSONExporter {
	return &JSONExporter{}
}

// Render produces indented JSON. An empty dataset renders as [].
func (e *JSONExporter) Render(data Dataset) ([]byte, error) {
	rows := data.Rows
	if rows == nil {
		rows = []map[string]string{}
	}
	out, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render json: %w", err)
	}
	return out, nil
}

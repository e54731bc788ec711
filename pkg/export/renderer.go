package export

import (
	"fmt"
	"strings"
)

// Format names an output encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatPDF  Format = "pdf"
)

// ParseFormat normalises a query value; empty means CSV.
func ParseFormat(raw string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(raw))); f {
	case "":
		return FormatCSV, nil
	case FormatCSV, FormatJSON, FormatPDF:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", raw)
	}
}

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatPDF:
		return "application/pdf"
	default:
		return "text/csv"
	}
}

// Filename joins base with the format extension.
func (f Format) Filename(base string) string {
	return base + "." + string(f)
}

// Renderer dispatches datasets to the exporter for a format.
type Renderer struct {
	csv  *CSVExporter
	json *JSONExporter
	pdf  *PDFExporter
}

// NewRenderer wires every exporter.
func NewRenderer() *Renderer {
	return &Renderer{csv: NewCSVExporter(), json: NewJSONExporter(), pdf: NewPDFExporter()}
}

// Render encodes data in the requested format.
func (r *Renderer) Render(format Format, data Dataset) ([]byte, error) {
	switch format {
	case FormatCSV:
		return r.csv.Render(data)
	case FormatJSON:
		return r.json.Render(data)
	case FormatPDF:
		return r.pdf.Render(data)
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

package export

import "fmt"

// Format enumerates the supported export encodings.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatPDF  Format = "pdf"
	FormatXLSX Format = "xlsx"
)

// Dataset defines tabular export content. Rows are keyed by header.
type Dataset struct {
	Title   string
	Headers []string
	Rows    []map[string]string
	// Totals, when set, is rendered as a closing row.
	Totals map[string]string
}

// Renderer encodes a dataset into a file body.
type Renderer interface {
	Render(data Dataset) ([]byte, error)
	ContentType() string
}

// Registry resolves renderers by format.
type Registry struct {
	renderers map[Format]Renderer
}

// NewRegistry wires the CSV, PDF and XLSX renderers.
func NewRegistry() *Registry {
	return &Registry{renderers: map[Format]Renderer{
		FormatCSV:  NewCSVExporter(),
		FormatPDF:  NewPDFExporter(),
		FormatXLSX: NewXLSXExporter(),
	}}
}

// Render encodes data with the renderer registered for format.
func (r *Registry) Render(format Format, data Dataset) ([]byte, string, error) {
	renderer, ok := r.renderers[format]
	if !ok {
		return nil, "", fmt.Errorf("unsupported export format %q", format)
	}
	body, err := renderer.Render(data)
	if err != nil {
		return nil, "", err
	}
	return body, renderer.ContentType(), nil
}

// Supports reports whether format has a renderer.
func (r *Registry) Supports(format Format) bool {
	_, ok := r.renderers[format]
	return ok
}

func (d Dataset) allRows() []map[string]string {
	if d.Totals == nil {
		return d.Rows
	}
	rows := make([]map[string]string, 0, len(d.Rows)+1)
	rows = append(rows, d.Rows...)
	return append(rows, d.Totals)
}

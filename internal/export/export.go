// Package export writes a snapshot of both collections to a file in JSON,
// CSV or YAML, or to any other Sink.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"caixa/internal/core"
	"caixa/internal/store"
)

// Supported formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatYAML = "yaml"
)

// Header is the column order shared by CSV files and spreadsheets.
var Header = []string{"kind", "id", "tipo", "valor", "data"}

// Row is one exported transaction. Valor stays the raw server text.
type Row struct {
	Kind  string `json:"kind" yaml:"kind"`
	ID    string `json:"id" yaml:"id"`
	Tipo  string `json:"tipo" yaml:"tipo"`
	Valor string `json:"valor" yaml:"valor"`
	Data  string `json:"data" yaml:"data"`
}

// Record returns the row as CSV/spreadsheet cells, in Header order.
func (r Row) Record() []string {
	return []string{r.Kind, r.ID, r.Tipo, r.Valor, r.Data}
}

type (
	Encoder interface {
		EncodeRows(rows []Row) ([]byte, error)
	}

	// Sink receives the exported rows.
	Sink interface {
		Write(ctx context.Context, rows []Row) error
	}
)

// RowsFromSnapshot flattens a snapshot, expenses first, each in collection order.
func RowsFromSnapshot(snap store.Snapshot) []Row {
	rows := make([]Row, 0, len(snap.Expenses)+len(snap.Profits))
	add := func(kind core.Kind, txs []core.Transaction) {
		for _, t := range txs {
			rows = append(rows, Row{
				Kind:  kind.String(),
				ID:    t.ID.String(),
				Tipo:  t.Tipo,
				Valor: t.Valor.String(),
				Data:  t.Data,
			})
		}
	}
	add(core.Expenses, snap.Expenses)
	add(core.Profits, snap.Profits)
	return rows
}

// EncoderFor returns the encoder for a format name (json, csv, yaml or yml).
func EncoderFor(format string) (Encoder, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatJSON:
		return JSONEncoder{}, nil
	case FormatCSV:
		return CSVEncoder{}, nil
	case FormatYAML, "yml":
		return YAMLEncoder{}, nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// JSONEncoder writes {"rows": [...]}, indented.
type JSONEncoder struct{}

func (JSONEncoder) EncodeRows(rows []Row) ([]byte, error) {
	if rows == nil {
		rows = []Row{}
	}
	b, err := json.MarshalIndent(struct {
		Rows []Row `json:"rows"`
	}{rows}, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// CSVEncoder writes a header line followed by one record per row.
type CSVEncoder struct{}

func (CSVEncoder) EncodeRows(rows []Row) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(Header); err != nil {
		return nil, err
	}
	for _, r := range rows {
		if err := w.Write(r.Record()); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// YAMLEncoder writes a YAML sequence of rows.
type YAMLEncoder struct{}

func (YAMLEncoder) EncodeRows(rows []Row) ([]byte, error) {
	if rows == nil {
		rows = []Row{}
	}
	return yaml.Marshal(rows)
}

// FileSink encodes rows and writes them to Path.
type FileSink struct {
	Path    string
	Encoder Encoder
}

var _ Sink = FileSink{}

func (s FileSink) Write(_ context.Context, rows []Row) error {
	b, err := s.Encoder.EncodeRows(rows)
	if err != nil {
		return fmt.Errorf("encode rows: %w", err)
	}
	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create export directory: %w", err)
		}
	}
	if err := os.WriteFile(s.Path, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", s.Path, err)
	}
	return nil
}

// Snapshot exports the current contents of st to sink and returns the row count.
func Snapshot(ctx context.Context, st *store.Store, sink Sink) (int, error) {
	rows := RowsFromSnapshot(st.Snapshot())
	if err := sink.Write(ctx, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

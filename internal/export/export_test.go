package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"caixa/internal/core"
	"caixa/internal/store"
)

func sampleStore() *store.Store {
	st := store.New()
	st.ReplaceExpenses([]core.Transaction{
		{ID: "1", Tipo: "Insumos", Valor: "50", Data: "01/01/2024"},
		{ID: "2", Tipo: "Transporte", Valor: "30,5", Data: "02/01/2024"},
	})
	st.ReplaceProfits([]core.Transaction{
		{ID: "3", Tipo: "Vendas", Valor: "120", Data: "03/01/2024"},
	})
	return st
}

func TestRowsFromSnapshotOrder(t *testing.T) {
	rows := RowsFromSnapshot(sampleStore().Snapshot())
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	want := []string{"gastos/1", "gastos/2", "lucros/3"}
	for i, r := range rows {
		if got := r.Kind + "/" + r.ID; got != want[i] {
			t.Errorf("row %d = %s, want %s", i, got, want[i])
		}
	}
	if rows[1].Valor != "30,5" {
		t.Errorf("valor should be exported verbatim, got %q", rows[1].Valor)
	}
}

func TestEncoderFor(t *testing.T) {
	for _, f := range []string{"json", "CSV", " yaml ", "yml"} {
		if _, err := EncoderFor(f); err != nil {
			t.Errorf("EncoderFor(%q): %v", f, err)
		}
	}
	if _, err := EncoderFor("xml"); err == nil {
		t.Error("expected error for xml")
	}
}

func TestEncoders(t *testing.T) {
	rows := RowsFromSnapshot(sampleStore().Snapshot())

	t.Run("json", func(t *testing.T) {
		b, err := JSONEncoder{}.EncodeRows(rows)
		if err != nil {
			t.Fatal(err)
		}
		var out struct{ Rows []Row }
		if err := json.Unmarshal(b, &out); err != nil {
			t.Fatal(err)
		}
		if len(out.Rows) != 3 || out.Rows[2].Tipo != "Vendas" {
			t.Fatalf("unexpected rows %+v", out.Rows)
		}
	})

	t.Run("json empty", func(t *testing.T) {
		b, err := JSONEncoder{}.EncodeRows(nil)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(b), `"rows": []`) {
			t.Fatalf("empty export should be an empty list: %s", b)
		}
	})

	t.Run("csv", func(t *testing.T) {
		b, err := CSVEncoder{}.EncodeRows(rows)
		if err != nil {
			t.Fatal(err)
		}
		records, err := csv.NewReader(strings.NewReader(string(b))).ReadAll()
		if err != nil {
			t.Fatal(err)
		}
		if len(records) != 4 || strings.Join(records[0], ",") != "kind,id,tipo,valor,data" {
			t.Fatalf("unexpected records %v", records)
		}
		if records[2][3] != "30,5" {
			t.Fatalf("comma in valor not quoted correctly: %v", records[2])
		}
	})

	t.Run("yaml", func(t *testing.T) {
		b, err := YAMLEncoder{}.EncodeRows(rows)
		if err != nil {
			t.Fatal(err)
		}
		var out []Row
		if err := yaml.Unmarshal(b, &out); err != nil {
			t.Fatal(err)
		}
		if len(out) != 3 || out[0].Data != "01/01/2024" {
			t.Fatalf("unexpected rows %+v", out)
		}
	})
}

func TestSnapshotToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "caixa.csv")
	n, err := Snapshot(context.Background(), sampleStore(), FileSink{Path: path, Encoder: CSVEncoder{}})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 rows exported, got %d", n)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if !strings.HasPrefix(string(b), "kind,id,tipo,valor,data\n") {
		t.Fatalf("unexpected file content %q", b)
	}
}

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/woozymasta/mapcomp/internal/flatten"
	"github.com/woozymasta/mapcomp/internal/geo"

	"github.com/ctessum/geom"
)

func TestIdent(t *testing.T) {
	tests := map[string]string{
		"Rate":        "rate",
		"unemp rate%": "unemp_rate",
		"2019":        "c_2019",
		"":            "c_",
		"Order":       "order",
	}
	for in, want := range tests {
		if got := Ident(in); got != want {
			t.Errorf("Ident(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExportTableSQLite(t *testing.T) {
	coll, err := geo.NewCollection(nil, []geo.Feature{
		{ID: "01", Geometry: geom.Polygon{{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 0}}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	attrs := geo.NewAttributeTable([]string{"Rate", "Name", "x"})
	if err := attrs.Add("01", []any{12.5, nil, true}); err != nil {
		t.Fatal(err)
	}
	tab, err := flatten.Flatten(coll, attrs)
	if err != nil {
		t.Fatal(err)
	}

	s, err := Open("sqlite://" + filepath.Join(t.TempDir(), "out.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		n, err := s.ExportTable(ctx, "States Vertices", tab)
		if err != nil {
			t.Fatalf("ExportTable: %v", err)
		}
		if n != 4 {
			t.Errorf("rows = %d, want 4", n)
		}
	}

	var count int
	if err := s.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM states_vertices").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 4 {
		t.Errorf("count = %d, want 4 after re-export", count)
	}

	var rate float64
	var order int
	if err := s.DB().QueryRowContext(ctx,
		"SELECT rate, vertex_order FROM states_vertices WHERE feature_id = '01' ORDER BY vertex_order DESC LIMIT 1",
	).Scan(&rate, &order); err != nil {
		t.Fatal(err)
	}
	if rate != 12.5 || order != 4 {
		t.Errorf("rate = %v order = %d", rate, order)
	}
}

func TestExportTableReservedNames(t *testing.T) {
	coll, err := geo.NewCollection(nil, []geo.Feature{
		{ID: "01", Geometry: geom.Polygon{{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 0}}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	attrs := geo.NewAttributeTable([]string{"Select", "from"})
	if err := attrs.Add("01", []any{"a", 2.0}); err != nil {
		t.Fatal(err)
	}
	tab, err := flatten.Flatten(coll, attrs)
	if err != nil {
		t.Fatal(err)
	}

	s, err := Open(filepath.Join(t.TempDir(), "out.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	if _, err := s.ExportTable(ctx, "order", tab); err != nil {
		t.Fatalf("ExportTable: %v", err)
	}

	var sel string
	var from float64
	if err := s.DB().QueryRowContext(ctx, `SELECT "select", "from" FROM "order" LIMIT 1`).Scan(&sel, &from); err != nil {
		t.Fatal(err)
	}
	if sel != "a" || from != 2 {
		t.Errorf("select = %q from = %v", sel, from)
	}
}

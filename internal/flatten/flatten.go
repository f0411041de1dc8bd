// Package flatten turns geometry collections into row-per-vertex tables
// joined with feature attributes.
package flatten

import (
	"fmt"
	"strconv"

	"github.com/woozymasta/mapcomp/internal/geo"
)

// JoinError reports a feature without a matching attribute row.
type JoinError struct {
	ID string
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("no attribute row for feature %q", e.ID)
}

// EmptyFeatureError reports a feature whose geometry has no vertices.
type EmptyFeatureError struct {
	ID string
}

func (e *EmptyFeatureError) Error() string {
	return fmt.Sprintf("feature %q has no vertices", e.ID)
}

// Row is a single vertex.
type Row struct {
	// ID is the group identifier: every vertex of a feature carries the
	// feature identifier, and attributes are joined on it.
	ID string
	X  float64
	Y  float64
	// Order is the 1-based vertex position within the feature.
	Order int
	// Piece is the 1-based part number within the feature.
	Piece int
	Hole  bool
	Ring  bool
	// PartGroup identifies the vertex sequence within the feature: "<id>.<piece>".
	PartGroup string
	Attrs []any
}

// Table holds the vertices of a collection, feature by feature.
type Table struct {
	CRS     *geo.CRS
	Columns []string
	Rows    []Row
}

// Part is a contiguous run of rows sharing one PartGroup key.
type Part struct {
	Key   string
	ID    string
	Piece int
	Hole  bool
	Ring  bool
	Start int
	End   int
}

// Flatten expands every feature into vertex rows in feature order, then
// part order, then vertex order. attrs may be nil. A feature without
// vertices fails with EmptyFeatureError, so every feature keeps its group.
func Flatten(coll *geo.Collection, attrs *geo.AttributeTable) (*Table, error) {
	t := &Table{CRS: coll.CRS}
	if attrs != nil {
		t.Columns = attrs.Columns
	}

	for _, f := range coll.Features {
		vals, err := lookup(attrs, f.ID)
		if err != nil {
			return nil, err
		}

		order := 0
		for pi, p := range geo.Parts(f.Geometry) {
			piece := pi + 1
			group := f.ID + "." + strconv.Itoa(piece)
			for _, pt := range p.Points {
				order++
				t.Rows = append(t.Rows, Row{
					ID:        f.ID,
					X:         pt.X,
					Y:         pt.Y,
					Order:     order,
					Piece:     piece,
					Hole:      p.Hole,
					Ring:      p.Ring,
					PartGroup: group,
					Attrs:     vals,
				})
			}
		}
		if order == 0 {
			return nil, &EmptyFeatureError{ID: f.ID}
		}
	}

	return t, nil
}

// Centroids returns one row per feature positioned at its centroid.
func Centroids(coll *geo.Collection, attrs *geo.AttributeTable) (*Table, error) {
	t := &Table{CRS: coll.CRS}
	if attrs != nil {
		t.Columns = attrs.Columns
	}

	for _, f := range coll.Features {
		vals, err := lookup(attrs, f.ID)
		if err != nil {
			return nil, err
		}
		x, y, ok := geo.Centroid(f.Geometry)
		if !ok {
			return nil, &EmptyFeatureError{ID: f.ID}
		}
		t.Rows = append(t.Rows, Row{
			ID: f.ID, X: x, Y: y,
			Order: 1, Piece: 1,
			PartGroup: f.ID + ".1",
			Attrs:     vals,
		})
	}

	return t, nil
}

func lookup(attrs *geo.AttributeTable, id string) ([]any, error) {
	if attrs == nil {
		return nil, nil
	}
	vals, ok := attrs.Row(id)
	if !ok {
		return nil, &JoinError{ID: id}
	}
	return vals, nil
}

// Parts returns the vertex runs in row order.
func (t *Table) Parts() []Part {
	var parts []Part
	for i, r := range t.Rows {
		if n := len(parts); n > 0 && parts[n-1].Key == r.PartGroup {
			parts[n-1].End = i + 1
			continue
		}
		parts = append(parts, Part{
			Key: r.PartGroup, ID: r.ID,
			Piece: r.Piece, Hole: r.Hole, Ring: r.Ring,
			Start: i, End: i + 1,
		})
	}
	return parts
}

// GroupIDs returns the distinct group identifiers in row order.
func (t *Table) GroupIDs() []string {
	var ids []string
	for _, r := range t.Rows {
		if n := len(ids); n == 0 || ids[n-1] != r.ID {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

// ColumnIndex returns the position of an attribute column or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column returns the attribute value of every row, or false if the column is absent.
func (t *Table) Column(name string) ([]any, bool) {
	ci := t.ColumnIndex(name)
	if ci < 0 {
		return nil, false
	}
	out := make([]any, len(t.Rows))
	for i, r := range t.Rows {
		if ci < len(r.Attrs) {
			out[i] = r.Attrs[ci]
		}
	}
	return out, true
}

// Float returns a numeric cell. Missing and non-numeric cells report false.
func (t *Table) Float(row, col int) (float64, bool) {
	if row < 0 || row >= len(t.Rows) || col < 0 || col >= len(t.Rows[row].Attrs) {
		return 0, false
	}
	switch v := t.Rows[row].Attrs[col].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// Bounds returns the box enclosing every vertex.
func (t *Table) Bounds() geo.BBox {
	bb := geo.EmptyBBox()
	for _, r := range t.Rows {
		bb = bb.ExtendPoint(r.X, r.Y)
	}
	return bb
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

package geo

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ctessum/geom"
)

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	recs, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, errors.New("empty csv")
	}
	return recs, nil
}

// ParseValue types a text cell: numbers become float64, TRUE/FALSE become bool,
// empty and NA become nil, everything else stays a string.
func ParseValue(s string) any {
	s = strings.TrimSpace(s)
	switch s {
	case "", "NA":
		return nil
	case "TRUE", "true":
		return true
	case "FALSE", "false":
		return false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// ReadAttributeCSV loads an attribute table keyed by idColumn.
// The identifier column itself is kept as a regular column too.
func ReadAttributeCSV(path, idColumn string) (*AttributeTable, error) {
	recs, err := readCSV(path)
	if err != nil {
		return nil, err
	}

	header := recs[0]
	idIdx := -1
	for i, h := range header {
		if h == idColumn {
			idIdx = i
			break
		}
	}
	if idIdx < 0 {
		return nil, fmt.Errorf("csv %s: id column %q not found", path, idColumn)
	}

	t := NewAttributeTable(header)
	for n, row := range recs[1:] {
		if len(row) != len(header) {
			return nil, fmt.Errorf("csv %s: line %d has %d fields, want %d", path, n+2, len(row), len(header))
		}
		vals := make([]any, len(row))
		for i, cell := range row {
			if i == idIdx {
				vals[i] = strings.TrimSpace(cell)
				continue
			}
			vals[i] = ParseValue(cell)
		}
		if err := t.Add(strings.TrimSpace(row[idIdx]), vals); err != nil {
			return nil, err
		}
	}

	return t, nil
}

// ReadPointsCSV loads point features from a CSV with latitude/longitude columns.
// Column detection: lat|latitude|y and lon|lng|long|longitude|x (case-insensitive).
// Rows with unparseable coordinates are skipped; identifiers are 1-based line numbers.
func ReadPointsCSV(path string) (*Collection, *AttributeTable, error) {
	recs, err := readCSV(path)
	if err != nil {
		return nil, nil, err
	}

	header := recs[0]
	idxLat, idxLon := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "lat", "latitude", "y":
			if idxLat == -1 {
				idxLat = i
			}
		case "lon", "lng", "long", "longitude", "x":
			if idxLon == -1 {
				idxLon = i
			}
		}
	}
	if idxLat == -1 || idxLon == -1 {
		return nil, nil, errors.New("csv: latitude/longitude columns not found")
	}

	attrs := NewAttributeTable(header)
	var features []Feature
	for n, row := range recs[1:] {
		if idxLon >= len(row) || idxLat >= len(row) {
			continue
		}
		lon, err1 := strconv.ParseFloat(strings.TrimSpace(row[idxLon]), 64)
		lat, err2 := strconv.ParseFloat(strings.TrimSpace(row[idxLat]), 64)
		if err1 != nil || err2 != nil {
			continue
		}

		id := strconv.Itoa(n + 1)
		vals := make([]any, len(header))
		for i := range header {
			if i < len(row) {
				vals[i] = ParseValue(row[i])
			}
		}
		if err := attrs.Add(id, vals); err != nil {
			return nil, nil, err
		}
		features = append(features, Feature{ID: id, Geometry: geom.Point{X: lon, Y: lat}})
	}

	if len(features) == 0 {
		return nil, nil, errors.New("csv: no valid points parsed")
	}

	coll, err := NewCollection(WGS84(), features)
	if err != nil {
		return nil, nil, err
	}
	return coll, attrs, nil
}

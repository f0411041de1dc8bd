// Package shapefile loads shapefile datasets into geo collections.
package shapefile

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/woozymasta/mapcomp/internal/geo"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	goshp "github.com/jonas-p/go-shp"
	"github.com/rs/zerolog/log"
)

// Options controls how a dataset is loaded.
type Options struct {
	// Layer selects the .shp base name when the directory holds several.
	Layer string
	// IDColumn names the attribute holding feature identifiers.
	// Rows fall back to their 1-based position when empty or absent.
	IDColumn string
	// SourceCRS overrides the .prj file.
	SourceCRS string
}

// Load reads the shapefile found in dir.
func Load(dir string, opts Options) (*geo.Collection, *geo.AttributeTable, error) {
	shpPath, err := Find(dir, opts.Layer)
	if err != nil {
		return nil, nil, err
	}

	for _, ext := range []string{".shx", ".dbf"} {
		if _, ok := companion(shpPath, ext); !ok {
			return nil, nil, &FormatError{Path: shpPath, Reason: "missing companion " + ext}
		}
	}

	dec, err := shp.NewDecoder(shpPath)
	if err != nil {
		return nil, nil, &FormatError{Path: shpPath, Reason: "cannot open", Err: err}
	}
	defer dec.Close()

	fields := dec.Fields()
	names := make([]string, len(fields))
	kinds := make([]byte, len(fields))
	idIdx := -1
	for i, f := range fields {
		names[i] = strings.TrimSpace(f.String())
		kinds[i] = f.Fieldtype
		if opts.IDColumn != "" && strings.EqualFold(names[i], opts.IDColumn) {
			idIdx = i
		}
	}
	if opts.IDColumn != "" && idIdx < 0 {
		log.Warn().
			Str("path", shpPath).
			Str("column", opts.IDColumn).
			Msg("Identifier column not found, using row index")
	}

	attrs := geo.NewAttributeTable(names)
	var features []geo.Feature
	skipped := 0

	for row := 1; ; row++ {
		g, raw, more := dec.DecodeRowFields(names...)
		if !more {
			break
		}

		id := strconv.Itoa(row)
		if idIdx >= 0 {
			id = strings.TrimSpace(raw[names[idIdx]])
			if id == "" {
				return nil, nil, &FormatError{Path: shpPath, Reason: "empty identifier in row " + strconv.Itoa(row)}
			}
		}

		if g == nil {
			skipped++
			continue
		}

		if dec.GeometryType == goshp.POLYGON {
			fileOrder(g)
		}

		vals := make([]any, len(names))
		for i, name := range names {
			vals[i] = typedValue(kinds[i], raw[name])
		}
		if err := attrs.Add(id, vals); err != nil {
			return nil, nil, &FormatError{Path: shpPath, Reason: "duplicate identifier", Err: err}
		}
		features = append(features, geo.Feature{ID: id, Geometry: g})
	}
	if err := dec.Error(); err != nil {
		return nil, nil, &FormatError{Path: shpPath, Reason: "cannot decode", Err: err}
	}

	crs := readCRS(shpPath, opts.SourceCRS)

	coll, err := geo.NewCollection(crs, features)
	if err != nil {
		return nil, nil, &FormatError{Path: shpPath, Reason: "invalid collection", Err: err}
	}

	log.Info().
		Str("path", shpPath).
		Int("features", coll.Len()).
		Int("columns", len(names)).
		Int("null_shapes", skipped).
		Str("crs", crs.String()).
		Msg("Dataset loaded")

	return coll, attrs, nil
}

// fileOrder reverses polygon rings back to the vertex order of the .shp file.
// The decoder walks plain polygon rings backwards to produce OGC winding.
func fileOrder(g geom.Geom) {
	p, ok := g.(geom.Polygon)
	if !ok {
		return
	}
	for _, ring := range p {
		for i, j := 0, len(ring)-1; i < j; i, j = i+1, j-1 {
			ring[i], ring[j] = ring[j], ring[i]
		}
	}
}

// Find returns the .shp file in dir matching layer, or the first one in
// lexical order when layer is empty.
func Find(dir, layer string) (string, error) {
	var found []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".shp") {
			return nil
		}
		found = append(found, path)
		return nil
	})
	if err != nil {
		return "", &FormatError{Path: dir, Reason: "cannot scan", Err: err}
	}
	if len(found) == 0 {
		return "", &FormatError{Path: dir, Reason: "no .shp file"}
	}
	sort.Strings(found)

	if layer == "" {
		if len(found) > 1 {
			log.Warn().Str("dir", dir).Int("layers", len(found)).Str("using", found[0]).Msg("Several layers found")
		}
		return found[0], nil
	}

	for _, p := range found {
		base := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		if strings.EqualFold(base, layer) {
			return p, nil
		}
	}
	return "", &FormatError{Path: dir, Reason: "layer " + strconv.Quote(layer) + " not found"}
}

// companion finds a sibling file with the given extension in either case.
func companion(shpPath, ext string) (string, bool) {
	base := strings.TrimSuffix(shpPath, filepath.Ext(shpPath))
	for _, e := range []string{strings.ToLower(ext), strings.ToUpper(ext)} {
		p := base + e
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, true
		}
	}
	return "", false
}

func readCRS(shpPath, override string) *geo.CRS {
	raw := override
	if raw == "" {
		prj, ok := companion(shpPath, ".prj")
		if !ok {
			log.Warn().Str("path", shpPath).Msg("No .prj file, coordinate system unknown")
			return nil
		}
		data, err := os.ReadFile(prj)
		if err != nil {
			log.Warn().Err(err).Str("path", prj).Msg("Cannot read .prj file")
			return nil
		}
		raw = string(data)
	}

	crs, err := geo.ParseCRS(raw)
	if err != nil {
		if !errors.Is(err, geo.ErrUnknownCRS) {
			log.Debug().Err(err).Msg("CRS parse failed")
		}
		log.Warn().Str("path", shpPath).Msg("Unsupported coordinate system definition")
		return geo.UnresolvedCRS(raw)
	}
	return crs
}

// typedValue converts a dBASE cell by field type: N and F become float64,
// L becomes bool, the rest stays text. Blank cells become nil.
func typedValue(kind byte, s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	switch kind {
	case 'N', 'F':
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		return f
	case 'L':
		switch strings.ToUpper(s) {
		case "T", "Y":
			return true
		case "F", "N":
			return false
		}
		return nil
	}
	return s
}

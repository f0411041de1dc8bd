// Package projection reprojects geo collections between coordinate reference systems.
package projection

import (
	"fmt"
	"math"

	"github.com/woozymasta/mapcomp/internal/geo"

	"github.com/ctessum/geom/proj"
	"github.com/rs/zerolog/log"
)

// ProjectionError reports an unusable source or target system, or a vertex
// the transform could not map.
type ProjectionError struct {
	Source string
	Target string
	Reason string
	Err    error
}

func (e *ProjectionError) Error() string {
	msg := fmt.Sprintf("project %s -> %s: %s", e.Source, e.Target, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProjectionError) Unwrap() error { return e.Err }

// Transformer builds the forward transform src -> dst. It never returns a nil
// transform: equivalent systems get an identity that still copies coordinates.
func Transformer(src, dst *geo.CRS) (proj.Transformer, error) {
	if !src.Valid() {
		return nil, &ProjectionError{Source: src.String(), Target: dst.String(), Reason: "source coordinate system unknown"}
	}
	if !dst.Valid() {
		return nil, &ProjectionError{Source: src.String(), Target: dst.String(), Reason: "target coordinate system unusable"}
	}

	t, err := src.SR().NewTransform(dst.SR())
	if err != nil {
		return nil, &ProjectionError{Source: src.String(), Target: dst.String(), Reason: "cannot build transform", Err: err}
	}
	// NewTransform returns nil for equivalent systems.
	if t == nil {
		t = identity
	}
	return t, nil
}

func identity(x, y float64) (float64, float64, error) { return x, y, nil }

// Project returns a new collection with every vertex transformed into target.
// The transform is applied even when both systems are equal.
func Project(coll *geo.Collection, target *geo.CRS) (*geo.Collection, error) {
	t, err := Transformer(coll.CRS, target)
	if err != nil {
		return nil, err
	}

	features := make([]geo.Feature, len(coll.Features))
	for i, f := range coll.Features {
		g, err := f.Geometry.Transform(t)
		if err != nil {
			return nil, &ProjectionError{
				Source: coll.CRS.String(),
				Target: target.String(),
				Reason: "feature " + f.ID,
				Err:    err,
			}
		}
		features[i] = geo.Feature{ID: f.ID, Geometry: g}
	}

	out, err := geo.NewCollection(target, features)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("from", coll.CRS.String()).
		Str("to", target.String()).
		Int("features", out.Len()).
		Msg("Collection projected")

	return out, nil
}

// TransformBBox maps a box by sampling its edges, so curved edges in the
// target system stay enclosed.
func TransformBBox(b geo.BBox, src, dst *geo.CRS) (geo.BBox, error) {
	t, err := Transformer(src, dst)
	if err != nil {
		return geo.BBox{}, err
	}
	return TransformBBoxWith(b, t)
}

const bboxSamples = 16

// TransformBBoxWith is TransformBBox for an already built transform.
func TransformBBoxWith(b geo.BBox, t proj.Transformer) (geo.BBox, error) {
	out := geo.EmptyBBox()
	for i := 0; i <= bboxSamples; i++ {
		f := float64(i) / bboxSamples
		x := b.MinX + f*b.Width()
		y := b.MinY + f*b.Height()
		for _, p := range [][2]float64{
			{x, b.MinY}, {x, b.MaxY}, {b.MinX, y}, {b.MaxX, y},
		} {
			px, py, err := t(p[0], p[1])
			if err != nil {
				return geo.BBox{}, &ProjectionError{Reason: "bounding box", Err: err}
			}
			if math.IsNaN(px) || math.IsNaN(py) || math.IsInf(px, 0) || math.IsInf(py, 0) {
				continue
			}
			out = out.ExtendPoint(px, py)
		}
	}
	if out.IsEmpty() {
		return out, &ProjectionError{Reason: "bounding box maps outside the target domain"}
	}
	return out, nil
}

package geo

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ctessum/geom"
	"github.com/dhconnelly/rtreego"
)

// minExtent pads degenerate boxes, rtreego rejects zero-length sides.
const minExtent = 1e-9

// Feature is a single geometry with its identifier.
type Feature struct {
	ID       string
	Geometry geom.Geom
}

// Collection is an ordered set of features sharing one coordinate reference system.
// It is immutable after construction.
type Collection struct {
	CRS      *CRS
	Features []Feature

	byID map[string]int

	treeOnce sync.Once
	tree     *rtreego.Rtree
}

// DuplicateIDError reports a feature identifier used more than once.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate feature identifier %q", e.ID)
}

// NewCollection validates identifier uniqueness and builds the collection.
func NewCollection(crs *CRS, features []Feature) (*Collection, error) {
	byID := make(map[string]int, len(features))
	for i, f := range features {
		if _, ok := byID[f.ID]; ok {
			return nil, &DuplicateIDError{ID: f.ID}
		}
		byID[f.ID] = i
	}

	return &Collection{CRS: crs, Features: features, byID: byID}, nil
}

// Len returns the number of features.
func (c *Collection) Len() int { return len(c.Features) }

// Feature looks a feature up by identifier.
func (c *Collection) Feature(id string) (Feature, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Feature{}, false
	}
	return c.Features[i], true
}

// Bounds returns the box enclosing every feature.
func (c *Collection) Bounds() BBox {
	bb := EmptyBBox()
	for _, f := range c.Features {
		bb = bb.Extend(BBoxOf(f.Geometry))
	}
	return bb
}

type indexed struct {
	idx  int
	rect rtreego.Rect
}

func (e indexed) Bounds() rtreego.Rect { return e.rect }

func toRect(b BBox) (rtreego.Rect, error) {
	w, h := b.Width(), b.Height()
	if w < minExtent {
		w = minExtent
	}
	if h < minExtent {
		h = minExtent
	}
	return rtreego.NewRect(rtreego.Point{b.MinX, b.MinY}, []float64{w, h})
}

func (c *Collection) index() *rtreego.Rtree {
	c.treeOnce.Do(func() {
		c.tree = rtreego.NewTree(2, 25, 50)
		for i, f := range c.Features {
			bb := BBoxOf(f.Geometry)
			if bb.IsEmpty() {
				continue
			}
			rect, err := toRect(bb)
			if err != nil {
				continue
			}
			c.tree.Insert(indexed{idx: i, rect: rect})
		}
	})
	return c.tree
}

// Search returns the features whose bounds intersect b, in collection order.
func (c *Collection) Search(b BBox) []Feature {
	if b.IsEmpty() {
		return nil
	}
	rect, err := toRect(b)
	if err != nil {
		return nil
	}

	hits := c.index().SearchIntersect(rect)
	idx := make([]int, 0, len(hits))
	for _, h := range hits {
		idx = append(idx, h.(indexed).idx)
	}
	sort.Ints(idx)

	out := make([]Feature, 0, len(idx))
	for _, i := range idx {
		out = append(out, c.Features[i])
	}
	return out
}

// Subset returns a collection holding only the features with the given identifiers,
// in collection order. Unknown identifiers are ignored.
func (c *Collection) Subset(ids map[string]bool) *Collection {
	features := make([]Feature, 0, len(ids))
	for _, f := range c.Features {
		if ids[f.ID] {
			features = append(features, f)
		}
	}
	sub, _ := NewCollection(c.CRS, features)
	return sub
}

package basemap

import (
	"fmt"

	"github.com/woozymasta/mapcomp/internal/geo"
)

// UnsupportedZoomError reports a zoom level the provider cannot serve.
type UnsupportedZoomError struct {
	Provider string
	Zoom     int
	Reason   string
}

func (e *UnsupportedZoomError) Error() string {
	return fmt.Sprintf("basemap %s: zoom %d unsupported: %s", e.Provider, e.Zoom, e.Reason)
}

// NoCoverageError reports a region the provider has no imagery for.
type NoCoverageError struct {
	Provider string
	BBox     geo.BBox
}

func (e *NoCoverageError) Error() string {
	return fmt.Sprintf("basemap %s: no imagery for %s", e.Provider, e.BBox)
}

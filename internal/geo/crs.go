package geo

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ctessum/geom/proj"
)

// Common coordinate reference system definitions.
const (
	WGS84Def       = "+proj=longlat +datum=WGS84 +no_defs"
	NAD83Def       = "+proj=longlat +datum=NAD83 +no_defs"
	WebMercatorDef = "+proj=merc +a=6378137 +b=6378137 +lat_ts=0.0 +lon_0=0.0 +x_0=0.0 +y_0=0 +k=1.0 +units=m +nadgrids=@null +no_defs"
)

var epsgDefs = map[int]string{
	4326:   WGS84Def,
	4269:   NAD83Def,
	3857:   WebMercatorDef,
	3785:   WebMercatorDef,
	900913: WebMercatorDef,
	5070:   "+proj=aea +lat_1=29.5 +lat_2=45.5 +lat_0=23 +lon_0=-96 +x_0=0 +y_0=0 +datum=NAD83 +units=m +no_defs",
	2163:   "+proj=laea +lat_0=45 +lon_0=-100 +x_0=0 +y_0=0 +a=6370997 +b=6370997 +units=m +no_defs",
}

var aliases = map[string]int{
	"WGS84":        4326,
	"WGS 84":       4326,
	"NAD83":        4269,
	"WEBMERCATOR":  3857,
	"WEB MERCATOR": 3857,
}

// ErrUnknownCRS is returned for descriptors that cannot be resolved to a definition.
var ErrUnknownCRS = errors.New("geo: unknown coordinate reference system")

// CRS is a parsed coordinate reference system.
type CRS struct {
	// Name is the descriptor the CRS was created from, e.g. "EPSG:4326".
	Name string
	// Def is the PROJ or WKT definition handed to the projection library.
	Def string

	geographic bool
	sr         *proj.SR
}

// WGS84 returns EPSG:4326.
func WGS84() *CRS {
	c, _ := ParseCRS("EPSG:4326")
	return c
}

// WebMercator returns EPSG:3857, the CRS of XYZ basemap tiles.
func WebMercator() *CRS {
	c, _ := ParseCRS("EPSG:3857")
	return c
}

// ParseCRS resolves a descriptor: an EPSG code ("EPSG:4326", "4326"),
// a PROJ string ("+proj=..."), WKT, or one of a few well-known aliases.
func ParseCRS(s string) (*CRS, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrUnknownCRS
	}

	def, err := resolveDef(s)
	if err != nil {
		return nil, err
	}

	sr, err := proj.Parse(def)
	if err != nil {
		return nil, fmt.Errorf("geo: parse %q: %w", s, err)
	}

	return &CRS{Name: s, Def: def, geographic: isGeographicDef(def), sr: sr}, nil
}

// UnresolvedCRS records a descriptor that could not be parsed.
// It keeps the source text for diagnostics and is rejected by Valid.
func UnresolvedCRS(raw string) *CRS {
	return &CRS{Name: strings.TrimSpace(raw), Def: strings.TrimSpace(raw)}
}

func resolveDef(s string) (string, error) {
	upper := strings.ToUpper(s)
	if code, ok := aliases[upper]; ok {
		return epsgDefs[code], nil
	}

	codeStr := strings.TrimPrefix(upper, "EPSG:")
	if code, err := strconv.Atoi(codeStr); err == nil {
		return epsgDef(code)
	}

	if strings.HasPrefix(s, "+") || strings.HasPrefix(upper, "PROJCS") || strings.HasPrefix(upper, "GEOGCS") {
		return s, nil
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownCRS, s)
}

func epsgDef(code int) (string, error) {
	if def, ok := epsgDefs[code]; ok {
		return def, nil
	}

	// UTM zones: WGS84 north 326zz, south 327zz, NAD83 269zz.
	zone := code % 100
	switch {
	case code/100 == 326 && zone >= 1 && zone <= 60:
		return fmt.Sprintf("+proj=utm +zone=%d +datum=WGS84 +units=m +no_defs", zone), nil
	case code/100 == 327 && zone >= 1 && zone <= 60:
		return fmt.Sprintf("+proj=utm +zone=%d +south +datum=WGS84 +units=m +no_defs", zone), nil
	case code/100 == 269 && zone >= 1 && zone <= 23:
		return fmt.Sprintf("+proj=utm +zone=%d +datum=NAD83 +units=m +no_defs", zone), nil
	}

	return "", fmt.Errorf("%w: EPSG:%d", ErrUnknownCRS, code)
}

func isGeographicDef(def string) bool {
	upper := strings.ToUpper(def)
	if strings.HasPrefix(upper, "GEOGCS") {
		return true
	}
	return strings.Contains(def, "+proj=longlat") || strings.Contains(def, "+proj=latlong")
}

// Valid reports whether the CRS carries a usable definition.
func (c *CRS) Valid() bool {
	return c != nil && c.sr != nil
}

// SR returns the underlying spatial reference, or nil if the CRS is unresolved.
func (c *CRS) SR() *proj.SR {
	if c == nil {
		return nil
	}
	return c.sr
}

// IsGeographic reports whether coordinates are longitude/latitude degrees.
func (c *CRS) IsGeographic() bool {
	return c != nil && c.geographic
}

// Equal reports whether both systems share the same definition.
func (c *CRS) Equal(o *CRS) bool {
	if c == nil || o == nil {
		return c == o
	}
	return normalizeDef(c.Def) == normalizeDef(o.Def)
}

func (c *CRS) String() string {
	if c == nil {
		return "<nil>"
	}
	return c.Name
}

func normalizeDef(def string) string {
	return strings.Join(strings.Fields(def), " ")
}

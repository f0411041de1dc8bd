package basemap

import (
	"fmt"
	"sort"
	"strings"

	"github.com/woozymasta/mapcomp/internal/fetch"
	"github.com/woozymasta/mapcomp/internal/geo"
)

// Definition declares a provider in configuration.
type Definition struct {
	Name        string    `yaml:"name"`
	Type        string    `yaml:"type"` // xyz or static
	URL         string    `yaml:"url"`
	Subdomains  []string  `yaml:"subdomains,omitempty"`
	Style       string    `yaml:"style,omitempty"`
	MinZoom     int       `yaml:"min_zoom,omitempty"`
	MaxZoom     int       `yaml:"max_zoom,omitempty"`
	TileSize    int       `yaml:"tile_size,omitempty"`
	MaxTiles    int       `yaml:"max_tiles,omitempty"`
	Width       int       `yaml:"width,omitempty"`
	Height      int       `yaml:"height,omitempty"`
	CRS         string    `yaml:"crs,omitempty"`
	Coverage    *geo.BBox `yaml:"coverage,omitempty"`
	Attribution string    `yaml:"attribution,omitempty"`
}

// Builtin lists the providers available without configuration.
var Builtin = []Definition{
	{
		Name:        "osm",
		Type:        "xyz",
		URL:         "https://tile.openstreetmap.org/{z}/{x}/{y}.png",
		MaxZoom:     19,
		Attribution: "© OpenStreetMap contributors",
	},
	{
		Name:        "toner",
		Type:        "xyz",
		URL:         "https://tiles.stadiamaps.com/tiles/stamen_{style}/{z}/{x}/{y}.png",
		Style:       "toner",
		MaxZoom:     18,
		Attribution: "© Stadia Maps © Stamen Design © OpenStreetMap contributors",
	},
	{
		Name:        "satellite",
		Type:        "xyz",
		URL:         "https://server.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer/tile/{z}/{y}/{x}",
		MaxZoom:     19,
		Attribution: "Esri, Maxar, Earthstar Geographics",
	},
}

// Options are shared by every provider built from definitions.
type Options struct {
	Fetcher     *fetch.Fetcher
	Cache       Cache
	Concurrency int
	MaxTiles    int
}

// New builds a provider from its definition.
func New(def Definition, opts Options) (Provider, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("basemap: provider without name")
	}
	if def.URL == "" {
		return nil, fmt.Errorf("basemap %s: url is required", def.Name)
	}

	var coverage geo.BBox
	if def.Coverage != nil {
		coverage = *def.Coverage
	}

	switch strings.ToLower(def.Type) {
	case "", "xyz":
		maxTiles := def.MaxTiles
		if maxTiles <= 0 {
			maxTiles = opts.MaxTiles
		}
		return &XYZ{
			ID:          def.Name,
			URL:         def.URL,
			Subdomains:  def.Subdomains,
			MinZoom:     def.MinZoom,
			MaxZoom:     def.MaxZoom,
			TileSize:    def.TileSize,
			Style:       def.Style,
			Coverage:    coverage,
			MaxTiles:    maxTiles,
			Concurrency: opts.Concurrency,
			Fetcher:     opts.Fetcher,
			Cache:       opts.Cache,
		}, nil

	case "static":
		var crs *geo.CRS
		if def.CRS != "" {
			var err error
			if crs, err = geo.ParseCRS(def.CRS); err != nil {
				return nil, fmt.Errorf("basemap %s: %w", def.Name, err)
			}
		}
		return &Static{
			ID:       def.Name,
			URL:      def.URL,
			Width:    def.Width,
			Height:   def.Height,
			Style:    def.Style,
			CRS:      crs,
			Coverage: coverage,
			Fetcher:  opts.Fetcher,
		}, nil
	}

	return nil, fmt.Errorf("basemap %s: unknown provider type %q", def.Name, def.Type)
}

// Registry resolves providers by name.
type Registry struct {
	providers map[string]Provider
	defs      map[string]Definition
}

// NewRegistry builds the built-in providers followed by defs.
// A definition reusing a built-in name replaces it.
func NewRegistry(defs []Definition, opts Options) (*Registry, error) {
	r := &Registry{
		providers: make(map[string]Provider),
		defs:      make(map[string]Definition),
	}

	all := append(append([]Definition{}, Builtin...), defs...)
	for _, d := range all {
		p, err := New(d, opts)
		if err != nil {
			return nil, err
		}
		r.providers[d.Name] = p
		r.defs[d.Name] = d
	}
	return r, nil
}

// Get returns the named provider.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("basemap: unknown provider %q", name)
	}
	return p, nil
}

// Attribution returns the credit line of a provider.
func (r *Registry) Attribution(name string) string {
	return r.defs[name].Attribution
}

// Names returns the provider names in lexical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

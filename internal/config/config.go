// Package config handles configuration loading and shared data structures.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/woozymasta/mapcomp/internal/basemap"
	"github.com/woozymasta/mapcomp/internal/fetch"
	"github.com/woozymasta/mapcomp/internal/geo"
	"github.com/woozymasta/mapcomp/internal/render"

	"gopkg.in/yaml.v3"
)

// Config represents the root configuration file structure.
type Config struct {
	Attribution string               `yaml:"attribution,omitempty" json:"attribution,omitempty"`
	WorkDir     string               `yaml:"work_dir,omitempty" json:"-"`
	OutputDir   string               `yaml:"output_dir,omitempty" json:"-"`
	MaxTiles    int                  `yaml:"max_tiles,omitempty" json:"-"`
	TileCache   TileCache            `yaml:"tile_cache,omitempty" json:"-"`
	Providers   []basemap.Definition `yaml:"providers,omitempty" json:"-"`
	Figures     []Figure             `yaml:"figures" json:"figures"`
}

// TileCache selects where basemap tiles are kept between runs.
// Redis wins when both are set.
type TileCache struct {
	Dir           string        `yaml:"dir,omitempty"`
	Redis         string        `yaml:"redis,omitempty"`
	RedisPassword string        `yaml:"redis_password,omitempty"`
	RedisDB       int           `yaml:"redis_db,omitempty"`
	TTL           time.Duration `yaml:"ttl,omitempty"`
}

// Dataset describes where the vector data of a figure comes from.
type Dataset struct {
	// URL of a zipped shapefile, a local archive or a local directory.
	URL       string `yaml:"url"`
	Layer     string `yaml:"layer,omitempty"`
	IDColumn  string `yaml:"id_column,omitempty"`
	SourceCRS string `yaml:"source_crs,omitempty"`
	// Attributes is a CSV joined on AttributesID instead of the dBASE table.
	Attributes   string `yaml:"attributes,omitempty"`
	AttributesID string `yaml:"attributes_id,omitempty"`
	// Points is a CSV of markers with lat/lon columns.
	Points  string   `yaml:"points,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"`
}

// Basemap selects the imagery drawn under the data.
type Basemap struct {
	Provider string  `yaml:"provider" json:"provider"`
	Zoom     *int    `yaml:"zoom,omitempty" json:"zoom,omitempty"`
	Style    string  `yaml:"style,omitempty" json:"style,omitempty"`
	NoCrop   bool    `yaml:"no_crop,omitempty" json:"-"`
	Opacity  float64 `yaml:"opacity,omitempty" json:"-"`
	// Pad grows the data bounds by this fraction before requesting imagery.
	Pad float64 `yaml:"pad,omitempty" json:"-"`
}

// Layer types.
const (
	LayerBasemap   = "basemap"
	LayerFill      = "fill"
	LayerOutline   = "outline"
	LayerPoints    = "points"
	LayerCentroids = "centroids"
)

// Layer is one drawing instruction, applied in list order.
type Layer struct {
	Type   string        `yaml:"type"`
	Column string        `yaml:"column,omitempty"`
	Color  *render.Color `yaml:"color,omitempty"`
	Stroke *render.Color `yaml:"stroke,omitempty"`
	Width  float64       `yaml:"width,omitempty"`
	Radius float64       `yaml:"radius,omitempty"`
	Alpha  float64       `yaml:"alpha,omitempty"`
	Domain []float64     `yaml:"domain,omitempty"`
}

// Figure represents a single map figure.
type Figure struct {
	Index *int `yaml:"index,omitempty" json:"index,omitempty"`

	Name        string       `yaml:"name" json:"name"`
	Dataset     Dataset      `yaml:"dataset" json:"-"`
	CRS         string       `yaml:"crs,omitempty" json:"crs"`
	Extent      *geo.BBox    `yaml:"extent,omitempty" json:"extent,omitempty"`
	Basemap     *Basemap     `yaml:"basemap,omitempty" json:"basemap,omitempty"`
	Layers      []Layer      `yaml:"layers,omitempty" json:"-"`
	Theme       render.Theme `yaml:"theme,omitempty" json:"-"`
	Formats     []string     `yaml:"formats,omitempty" json:"formats"`
	Attribution string       `yaml:"attribution,omitempty" json:"attribution,omitempty"`
	Aliases     []string     `yaml:"aliases,omitempty" json:"-"`
}

// Load reads and parses the YAML configuration file from the specified path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.WorkDir == "" {
		c.WorkDir = "data"
	}
	if c.OutputDir == "" {
		c.OutputDir = "figures"
	}
	if c.MaxTiles <= 0 {
		c.MaxTiles = 64
	}

	for i := range c.Figures {
		f := &c.Figures[i]
		if f.Theme.Width == 0 && f.Theme.Height == 0 {
			f.Theme = render.DefaultTheme()
		}
		if f.CRS == "" {
			f.CRS = "EPSG:4326"
		}
		if len(f.Formats) == 0 {
			f.Formats = []string{"png"}
		}
		if len(f.Layers) == 0 {
			if f.Basemap != nil {
				f.Layers = append(f.Layers, Layer{Type: LayerBasemap})
			}
			f.Layers = append(f.Layers, Layer{Type: LayerOutline})
		}
	}
}

// Validate checks names, layer types and output formats.
func (c *Config) Validate() error {
	names := make(map[string]bool)
	for _, f := range c.Figures {
		if f.Name == "" {
			return fmt.Errorf("figure without name")
		}
		for _, n := range append([]string{f.Name}, f.Aliases...) {
			key := strings.ToLower(n)
			if names[key] {
				return fmt.Errorf("figure %s: duplicate name or alias %q", f.Name, n)
			}
			names[key] = true
		}

		if f.Dataset.URL == "" && f.Dataset.Points == "" {
			return fmt.Errorf("figure %s: dataset url or points is required", f.Name)
		}

		if f.Basemap != nil && f.Basemap.Zoom != nil && *f.Basemap.Zoom < 0 {
			return fmt.Errorf("figure %s: negative basemap zoom %d", f.Name, *f.Basemap.Zoom)
		}

		for _, l := range f.Layers {
			switch l.Type {
			case LayerFill, LayerOutline, LayerPoints, LayerCentroids:
			case LayerBasemap:
				if f.Basemap == nil {
					return fmt.Errorf("figure %s: basemap layer without basemap section", f.Name)
				}
			default:
				return fmt.Errorf("figure %s: unknown layer type %q", f.Name, l.Type)
			}
		}

		for _, format := range f.Formats {
			switch format {
			case "png", "webp", "svg":
			default:
				return fmt.Errorf("figure %s: unknown format %q", f.Name, format)
			}
		}
	}
	return nil
}

// Find returns the figure named name or one of its aliases, ignoring case.
func (c *Config) Find(name string) (*Figure, bool) {
	for i := range c.Figures {
		f := &c.Figures[i]
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
		for _, a := range f.Aliases {
			if strings.EqualFold(a, name) {
				return f, true
			}
		}
	}
	return nil, false
}

// Cache opens the configured tile cache. It returns nil when caching is off.
func (t TileCache) Cache() basemap.Cache {
	switch {
	case t.Redis != "":
		return &basemap.RedisCache{
			Client: basemap.OpenRedis(t.Redis, t.RedisPassword, t.RedisDB),
			TTL:    t.TTL,
		}
	case t.Dir != "":
		return &basemap.DiskCache{Root: t.Dir}
	}
	return nil
}

// Registry builds the built-in and declared basemap providers sharing fetcher
// and the configured tile cache.
func (c *Config) Registry(fetcher *fetch.Fetcher, concurrency int) (*basemap.Registry, error) {
	return basemap.NewRegistry(c.Providers, basemap.Options{
		Fetcher:     fetcher,
		Cache:       c.TileCache.Cache(),
		Concurrency: concurrency,
		MaxTiles:    c.MaxTiles,
	})
}

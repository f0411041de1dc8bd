// Package pipeline runs the stages that turn a figure configuration into
// rendered files: fetch, load, project, flatten, basemap, render and export.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/woozymasta/mapcomp/internal/basemap"
	"github.com/woozymasta/mapcomp/internal/config"
	"github.com/woozymasta/mapcomp/internal/fetch"
	"github.com/woozymasta/mapcomp/internal/flatten"
	"github.com/woozymasta/mapcomp/internal/geo"
	"github.com/woozymasta/mapcomp/internal/metrics"
	"github.com/woozymasta/mapcomp/internal/projection"
	"github.com/woozymasta/mapcomp/internal/render"
	"github.com/woozymasta/mapcomp/internal/shapefile"
	"github.com/woozymasta/mapcomp/internal/store"

	"github.com/rs/zerolog/log"
)

// Pipeline holds a figure definition and the artifact of every stage.
// Each stage method replaces only its own artifact and can be re-run alone.
type Pipeline struct {
	Figure    config.Figure
	WorkDir   string
	OutputDir string
	// Attribution is used as caption when neither the figure nor the basemap provides one.
	Attribution string

	Fetcher   *fetch.Fetcher
	Providers *basemap.Registry
	// Store, when set, receives the vertex table during export.
	Store *store.Store

	DataDir     string
	Source      *geo.Collection
	Attributes  *geo.AttributeTable
	Points      *geo.Collection
	PointAttrs  *geo.AttributeTable
	CRS         *geo.CRS
	Projected   *geo.Collection
	ProjPoints  *geo.Collection
	Table       *flatten.Table
	Centroids   *flatten.Table
	PointTable  *flatten.Table
	Tile        *basemap.Tile
	Image       *image.RGBA
	Outputs     map[string][]byte
	OutputFiles []string
}

// New returns a pipeline for f using the shared settings of cfg.
func New(cfg *config.Config, f config.Figure, fetcher *fetch.Fetcher, providers *basemap.Registry) *Pipeline {
	return &Pipeline{
		Figure:      f,
		WorkDir:     cfg.WorkDir,
		OutputDir:   cfg.OutputDir,
		Attribution: cfg.Attribution,
		Fetcher:     fetcher,
		Providers:   providers,
	}
}

func (p *Pipeline) stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.ObserveStage(name, start, err)
	if err != nil {
		return &StageError{Figure: p.Figure.Name, Stage: name, Err: err}
	}
	log.Debug().
		Str("figure", p.Figure.Name).
		Str("stage", name).
		Dur("took", time.Since(start)).
		Msg("Stage completed")
	return nil
}

// Prepare runs the stages up to and including basemap, leaving the
// pipeline ready for Render and Export.
func (p *Pipeline) Prepare(ctx context.Context) error {
	steps := []func() error{
		func() error { return p.Fetch(ctx) },
		p.Load,
		p.Project,
		p.Flatten,
		func() error { return p.Basemap(ctx) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

// Run executes every stage in order and stops at the first failure.
// Artifacts of completed stages stay available.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.Prepare(ctx); err != nil {
		return err
	}
	if err := p.Render(); err != nil {
		return err
	}
	if err := p.Export(ctx); err != nil {
		return err
	}

	log.Info().
		Str("figure", p.Figure.Name).
		Strs("files", p.OutputFiles).
		Msg("Figure completed")
	return nil
}

// Fetch downloads and extracts the dataset archive.
func (p *Pipeline) Fetch(ctx context.Context) error {
	return p.stage(StageFetch, func() error {
		if p.Figure.Dataset.URL == "" {
			return nil
		}
		dir, err := p.Fetcher.Fetch(ctx, p.Figure.Dataset.URL, filepath.Join(p.WorkDir, p.Figure.Name))
		if err != nil {
			return err
		}
		p.DataDir = dir
		return nil
	})
}

// Load reads the shapefile, the optional attribute CSV and the optional point CSV.
func (p *Pipeline) Load() error {
	return p.stage(StageLoad, func() error {
		ds := p.Figure.Dataset

		if ds.URL != "" {
			if p.DataDir == "" {
				return &missingArtifactError{stage: StageFetch}
			}
			coll, attrs, err := shapefile.Load(p.DataDir, shapefile.Options{
				Layer:     ds.Layer,
				IDColumn:  ds.IDColumn,
				SourceCRS: ds.SourceCRS,
			})
			if err != nil {
				return err
			}

			if ds.Attributes != "" {
				if attrs, err = geo.ReadAttributeCSV(ds.Attributes, ds.AttributesID); err != nil {
					return err
				}
			}

			if len(ds.Exclude) > 0 {
				drop := make(map[string]bool, len(ds.Exclude))
				for _, id := range ds.Exclude {
					drop[id] = true
				}
				keep := make(map[string]bool, coll.Len())
				for _, f := range coll.Features {
					keep[f.ID] = !drop[f.ID]
				}
				coll = coll.Subset(keep)
			}

			p.Source, p.Attributes = coll, attrs
		}

		if ds.Points != "" {
			pts, attrs, err := geo.ReadPointsCSV(ds.Points)
			if err != nil {
				return err
			}
			p.Points, p.PointAttrs = pts, attrs
		}
		return nil
	})
}

// Project transforms the loaded collections into the figure CRS.
func (p *Pipeline) Project() error {
	return p.stage(StageProject, func() error {
		if p.Source == nil && p.Points == nil {
			return &missingArtifactError{stage: StageLoad}
		}

		target, err := geo.ParseCRS(p.Figure.CRS)
		if err != nil {
			return &projection.ProjectionError{Target: p.Figure.CRS, Reason: "target coordinate system unusable", Err: err}
		}
		p.CRS = target

		if p.Source != nil {
			if p.Projected, err = projection.Project(p.Source, target); err != nil {
				return err
			}
		}
		if p.Points != nil {
			if p.ProjPoints, err = projection.Project(p.Points, target); err != nil {
				return err
			}
		}
		return nil
	})
}

// Flatten builds the vertex tables joined with their attributes.
func (p *Pipeline) Flatten() error {
	return p.stage(StageFlatten, func() error {
		if p.Projected == nil && p.ProjPoints == nil {
			return &missingArtifactError{stage: StageProject}
		}

		var err error
		if p.Projected != nil {
			if p.Table, err = flatten.Flatten(p.Projected, p.Attributes); err != nil {
				return err
			}
			if p.Centroids, err = flatten.Centroids(p.Projected, p.Attributes); err != nil {
				return err
			}
		}
		if p.ProjPoints != nil {
			if p.PointTable, err = flatten.Flatten(p.ProjPoints, p.PointAttrs); err != nil {
				return err
			}
		}
		return nil
	})
}

// Bounds returns the figure extent in the figure CRS.
func (p *Pipeline) Bounds() geo.BBox {
	if p.Figure.Extent != nil {
		return *p.Figure.Extent
	}
	bb := geo.EmptyBBox()
	if p.Projected != nil {
		bb = bb.Extend(p.Projected.Bounds())
	}
	if p.ProjPoints != nil {
		bb = bb.Extend(p.ProjPoints.Bounds())
	}
	return bb
}

// Basemap fetches imagery for the data bounds. Figures without a basemap skip it.
func (p *Pipeline) Basemap(ctx context.Context) error {
	return p.stage(StageBasemap, func() error {
		bm := p.Figure.Basemap
		if bm == nil {
			return nil
		}
		if p.CRS == nil {
			return &missingArtifactError{stage: StageProject}
		}

		provider, err := p.Providers.Get(bm.Provider)
		if err != nil {
			return err
		}

		box, err := projection.TransformBBox(p.Bounds(), p.CRS, geo.WGS84())
		if err != nil {
			return err
		}
		if bm.Pad > 0 {
			box = box.Pad(bm.Pad)
		}

		tile, err := provider.Fetch(ctx, basemap.Request{
			BBox:  box,
			Zoom:  bm.Zoom,
			Style: bm.Style,
			Crop:  !bm.NoCrop,
		})
		if err != nil {
			return err
		}
		p.Tile = tile
		return nil
	})
}

// Layers turns the configured layer list into drawing instructions.
func (p *Pipeline) Layers() ([]render.Layer, error) {
	var layers []render.Layer
	for _, l := range p.Figure.Layers {
		color, stroke := l.Color, l.Stroke

		switch l.Type {
		case config.LayerBasemap:
			if p.Tile == nil {
				return nil, &missingArtifactError{stage: StageBasemap}
			}
			opacity := l.Alpha
			if p.Figure.Basemap != nil && p.Figure.Basemap.Opacity > 0 {
				opacity = p.Figure.Basemap.Opacity
			}
			layers = append(layers, &render.RasterLayer{Tile: p.Tile, Opacity: opacity})

		case config.LayerFill:
			if p.Table == nil {
				return nil, &missingArtifactError{stage: StageFlatten}
			}
			fill := &render.FillLayer{Table: p.Table, Column: l.Column, Domain: l.Domain, Alpha: l.Alpha, Index: p.Projected}
			if color != nil {
				fill.Color = *color
			}
			layers = append(layers, fill)

		case config.LayerOutline:
			if p.Table == nil {
				return nil, &missingArtifactError{stage: StageFlatten}
			}
			outline := &render.OutlineLayer{Table: p.Table, Width: l.Width, Index: p.Projected}
			if color != nil {
				outline.Color = *color
			}
			layers = append(layers, outline)

		case config.LayerPoints, config.LayerCentroids:
			t := p.PointTable
			if l.Type == config.LayerCentroids {
				t = p.Centroids
			}
			if t == nil {
				return nil, &missingArtifactError{stage: StageFlatten}
			}
			pts := &render.PointLayer{Table: t, Column: l.Column, Domain: l.Domain, Radius: l.Radius}
			if color != nil {
				pts.Color = *color
			}
			if stroke != nil {
				pts.Stroke = *stroke
			}
			layers = append(layers, pts)

		default:
			return nil, fmt.Errorf("unknown layer type %q", l.Type)
		}
	}
	return layers, nil
}

func (p *Pipeline) caption() string {
	if p.Figure.Attribution != "" {
		return p.Figure.Attribution
	}
	if p.Figure.Basemap != nil && p.Providers != nil {
		if a := p.Providers.Attribution(p.Figure.Basemap.Provider); a != "" {
			return a
		}
	}
	return p.Attribution
}

// Render composites the layers in every configured format.
func (p *Pipeline) Render() error {
	return p.stage(StageRender, func() error {
		layers, err := p.Layers()
		if err != nil {
			return err
		}

		theme := p.Figure.Theme
		if theme.Caption == "" {
			theme.Caption = p.caption()
		}
		c := &render.Compositor{Theme: theme, CRS: p.CRS}
		if p.Figure.Extent != nil {
			c.Extent = *p.Figure.Extent
		}

		outputs := make(map[string][]byte, len(p.Figure.Formats))
		p.Image = nil
		for _, format := range p.Figure.Formats {
			var buf bytes.Buffer
			if format == "svg" {
				if err := c.RenderSVG(&buf, layers); err != nil {
					return err
				}
			} else {
				if p.Image == nil {
					if p.Image, err = c.Render(layers); err != nil {
						return err
					}
				}
				if err := render.Encode(&buf, p.Image, format); err != nil {
					return err
				}
			}
			outputs[format] = buf.Bytes()
			metrics.FiguresRendered.WithLabelValues(format).Inc()
		}
		p.Outputs = outputs
		return nil
	})
}

// Export writes the rendered outputs to <OutputDir>/<name>.<format> and,
// when a store is set, the vertex table to the database.
func (p *Pipeline) Export(ctx context.Context) error {
	return p.stage(StageExport, func() error {
		if p.Outputs == nil {
			return &missingArtifactError{stage: StageRender}
		}
		if err := os.MkdirAll(p.OutputDir, 0755); err != nil {
			return err
		}

		files := make([]string, 0, len(p.Outputs))
		for _, format := range p.Figure.Formats {
			data, ok := p.Outputs[format]
			if !ok {
				continue
			}
			path := filepath.Join(p.OutputDir, p.Figure.Name+"."+format)
			tmp := path + ".part"
			if err := os.WriteFile(tmp, data, 0644); err != nil {
				return err
			}
			if err := os.Rename(tmp, path); err != nil {
				return err
			}
			files = append(files, path)
		}
		p.OutputFiles = files

		if p.Store != nil && p.Table != nil {
			if _, err := p.Store.ExportTable(ctx, p.Figure.Name, p.Table); err != nil {
				return err
			}
		}
		return nil
	})
}

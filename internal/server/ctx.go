package server

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/woozymasta/mapcomp/internal/basemap"
	"github.com/woozymasta/mapcomp/internal/config"
	"github.com/woozymasta/mapcomp/internal/fetch"
	"github.com/woozymasta/mapcomp/internal/pipeline"

	"github.com/rs/zerolog/log"
)

// ServerContext holds dependencies for request handlers.
type ServerContext struct {
	Config             *config.Config
	Fetcher            *fetch.Fetcher
	Providers          *basemap.Registry
	FigureNameResolver map[string]string
	IndexHTML          []byte
	Favicon            []byte

	mu      sync.Mutex
	figures map[string]*figureState
}

// figureState keeps a prepared pipeline so further formats only re-run render and export.
type figureState struct {
	mu       sync.Mutex
	pipeline *pipeline.Pipeline
}

// NewServerContext initializes the context and processes the figure configuration.
// Figures referencing an unknown basemap provider are skipped.
func NewServerContext(cfg *config.Config, fetcher *fetch.Fetcher, providers *basemap.Registry) (*ServerContext, error) {
	log.Info().Int("config_figures_count", len(cfg.Figures)).Msg("Initializing server context")

	resolver := make(map[string]string)
	valid := make([]config.Figure, 0, len(cfg.Figures))

	for i := range cfg.Figures {
		f := &cfg.Figures[i]

		if f.Attribution == "" {
			f.Attribution = cfg.Attribution
		}

		if f.Basemap != nil {
			if _, err := providers.Get(f.Basemap.Provider); err != nil {
				log.Warn().
					Str("figure", f.Name).
					Str("provider", f.Basemap.Provider).
					Msg("Skipping figure: unknown basemap provider")
				continue
			}
		}

		resolver[strings.ToLower(f.Name)] = f.Name
		for _, alias := range f.Aliases {
			resolver[strings.ToLower(alias)] = f.Name
		}

		log.Debug().
			Str("figure", f.Name).
			Strs("formats", f.Formats).
			Msg("Figure validated and added to context")

		valid = append(valid, *f)
	}

	cfg.Figures = valid

	sort.Slice(cfg.Figures, func(i, j int) bool {
		idxI, idxJ := 999999, 999999
		if cfg.Figures[i].Index != nil {
			idxI = *cfg.Figures[i].Index
		}
		if cfg.Figures[j].Index != nil {
			idxJ = *cfg.Figures[j].Index
		}
		if idxI != idxJ {
			return idxI < idxJ
		}

		return cfg.Figures[i].Name < cfg.Figures[j].Name
	})

	index, err := BuildIndex("mapcomp")
	if err != nil {
		return nil, err
	}
	favicon, err := BuildFavicon()
	if err != nil {
		return nil, err
	}

	log.Info().
		Int("valid_figures_count", len(cfg.Figures)).
		Msg("Server context initialized successfully")

	return &ServerContext{
		Config:             cfg,
		Fetcher:            fetcher,
		Providers:          providers,
		FigureNameResolver: resolver,
		IndexHTML:          index,
		Favicon:            favicon,
		figures:            make(map[string]*figureState),
	}, nil
}

// resolve maps a requested name or alias to the figure name.
func (s *ServerContext) resolve(name string) (string, bool) {
	figure, ok := s.FigureNameResolver[strings.ToLower(name)]
	return figure, ok
}

func (s *ServerContext) state(name string) *figureState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.figures[name]
	if !ok {
		st = &figureState{}
		s.figures[name] = st
	}
	return st
}

// prepared returns the pipeline of a figure, running the stages up to basemap
// on first use. Callers must hold st.mu.
func (s *ServerContext) prepared(ctx context.Context, st *figureState, name string) (*pipeline.Pipeline, error) {
	if st.pipeline != nil {
		return st.pipeline, nil
	}

	fig, ok := s.Config.Find(name)
	if !ok {
		return nil, fmt.Errorf("figure %s not configured", name)
	}

	p := pipeline.New(s.Config, *fig, s.Fetcher, s.Providers)
	if err := p.Prepare(ctx); err != nil {
		return nil, err
	}
	st.pipeline = p
	return p, nil
}

// render writes <OutputDir>/<name>.<format>, reusing the prepared pipeline.
func (s *ServerContext) render(ctx context.Context, name, format string) error {
	st := s.state(name)
	st.mu.Lock()
	defer st.mu.Unlock()

	p, err := s.prepared(ctx, st, name)
	if err != nil {
		return err
	}

	p.Figure.Formats = []string{format}
	if err := p.Render(); err != nil {
		return err
	}
	if err := p.Export(ctx); err != nil {
		return err
	}

	log.Info().
		Str("figure", name).
		Str("format", format).
		Msg("Figure rendered on demand")
	return nil
}

// invalidate drops the prepared pipeline of a figure.
func (s *ServerContext) invalidate(name string) {
	st := s.state(name)
	st.mu.Lock()
	st.pipeline = nil
	st.mu.Unlock()
}

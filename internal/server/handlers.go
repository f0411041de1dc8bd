// Package server handles HTTP requests and middleware of the figure preview server.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/woozymasta/mapcomp/internal/geo"
	"github.com/woozymasta/mapcomp/internal/pipeline"
	"github.com/woozymasta/mapcomp/internal/projection"

	"github.com/rs/zerolog/log"
)

const etagCap = 64

// FigureSummary is the public description of a figure in /api/figures.
type FigureSummary struct {
	Name        string   `json:"name"`
	Title       string   `json:"title,omitempty"`
	Aliases     []string `json:"aliases,omitempty"`
	CRS         string   `json:"crs"`
	Formats     []string `json:"formats"`
	Basemap     string   `json:"basemap,omitempty"`
	Attribution string   `json:"attribution,omitempty"`
}

// Handler returns the routes of the preview server wrapped in the request logger.
func (s *ServerContext) Handler(metricsHandler http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/figures", s.HandleFiguresList)
	mux.HandleFunc("/favicon.svg", s.HandleFavicon)
	mux.HandleFunc("/figures/", s.HandleFigure)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}
	mux.HandleFunc("/", s.HandleIndex)

	return RequestLogger(mux)
}

// HandleFiguresList serves the JSON list of available figures.
func (s *ServerContext) HandleFiguresList(w http.ResponseWriter, r *http.Request) {
	list := make([]FigureSummary, 0, len(s.Config.Figures))
	for _, f := range s.Config.Figures {
		sum := FigureSummary{
			Name:        f.Name,
			Title:       f.Theme.Title,
			Aliases:     f.Aliases,
			CRS:         f.CRS,
			Formats:     f.Formats,
			Attribution: f.Attribution,
		}
		if f.Basemap != nil {
			sum.Basemap = f.Basemap.Provider
		}
		list = append(list, sum)
	}

	w.Header().Set("Content-Type", "application/json")
	// Ignoring error as we cannot handle client disconnects
	_ = json.NewEncoder(w).Encode(list)
}

// HandleFavicon serves the site icon.
func (s *ServerContext) HandleFavicon(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	_, _ = w.Write(s.Favicon)
}

// HandleIndex serves the preview page.
func (s *ServerContext) HandleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && strings.Contains(r.URL.Path, ".") {
		http.NotFound(w, r)
		return
	}

	etag := fmt.Sprintf(`"%x"`, len(s.IndexHTML))

	if match := r.Header.Get("If-None-Match"); match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, no-cache")
	_, _ = w.Write(s.IndexHTML)
}

var contentTypes = map[string]string{
	"png":  "image/png",
	"webp": "image/webp",
	"svg":  "image/svg+xml",
}

// HandleFigure serves rendered figures and their GeoJSON data.
// Paths: /figures/{name}.{png|webp|svg} and /figures/{name}/data.geojson.
// A refresh query parameter discards cached output and prepared data.
func (s *ServerContext) HandleFigure(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/figures/")
	refresh := r.URL.Query().Has("refresh")

	// GeoJSON
	if name, ok := strings.CutSuffix(rest, "/data.geojson"); ok {
		figure, found := s.resolve(name)
		if !found {
			http.NotFound(w, r)
			return
		}
		if refresh {
			s.invalidate(figure)
		}
		path := filepath.Join(s.Config.OutputDir, figure+".geojson")
		if !refresh && s.serveFile(w, r, path, "application/geo+json") {
			return
		}
		if err := s.writeGeoJSON(r, figure, path); err != nil {
			s.fail(w, figure, err)
			return
		}
		s.serveFile(w, r, path, "application/geo+json")
		return
	}

	// Rendered figure
	dot := strings.LastIndexByte(rest, '.')
	if dot <= 0 || strings.Contains(rest, "/") {
		http.NotFound(w, r)
		return
	}
	name, format := rest[:dot], rest[dot+1:]

	contentType, ok := contentTypes[format]
	if !ok {
		http.NotFound(w, r)
		return
	}
	figure, found := s.resolve(name)
	if !found {
		http.NotFound(w, r)
		return
	}

	if refresh {
		s.invalidate(figure)
	}
	path := filepath.Join(s.Config.OutputDir, figure+"."+format)
	if !refresh && s.serveFile(w, r, path, contentType) {
		return
	}

	if err := s.render(r.Context(), figure, format); err != nil {
		s.fail(w, figure, err)
		return
	}
	if !s.serveFile(w, r, path, contentType) {
		http.Error(w, "rendered figure missing", http.StatusInternalServerError)
	}
}

// writeGeoJSON stores the figure features in lon/lat as GeoJSON at path.
func (s *ServerContext) writeGeoJSON(r *http.Request, figure, path string) error {
	st := s.state(figure)
	st.mu.Lock()
	defer st.mu.Unlock()

	p, err := s.prepared(r.Context(), st, figure)
	if err != nil {
		return err
	}

	src, attrs := p.Source, p.Attributes
	if src == nil {
		src, attrs = p.Points, p.PointAttrs
	}
	wgs, err := projection.Project(src, geo.WGS84())
	if err != nil {
		return err
	}

	data, err := geo.ToGeoJSON(wgs, attrs).MarshalJSON()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := path + ".part"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// fail reports a pipeline failure. Upstream failures map to 502.
func (s *ServerContext) fail(w http.ResponseWriter, figure string, err error) {
	status := http.StatusInternalServerError
	var stageErr *pipeline.StageError
	if errors.As(err, &stageErr) && (stageErr.Stage == pipeline.StageFetch || stageErr.Stage == pipeline.StageBasemap) {
		status = http.StatusBadGateway
	}

	log.Error().
		Err(err).
		Str("figure", figure).
		Int("status", status).
		Msg("Figure request failed")
	http.Error(w, err.Error(), status)
}

// serveFile tries to serve a file from disk with ETag generation.
// It returns true if the file was found and served (or 304).
func (s *ServerContext) serveFile(w http.ResponseWriter, r *http.Request, path string, contentType string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if info.IsDir() {
		return false
	}

	buf := make([]byte, 0, etagCap)
	buf = append(buf, '"')
	buf = strconv.AppendInt(buf, info.Size(), 16)
	buf = append(buf, '-')
	buf = strconv.AppendInt(buf, info.ModTime().UnixNano(), 16)
	buf = append(buf, '"')
	etag := string(buf)

	// check If-None-Match (client sent ETag)
	if match := r.Header.Get("If-None-Match"); match == etag {
		w.WriteHeader(http.StatusNotModified)
		return true
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, no-cache")

	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}

	http.ServeFile(w, r, path)
	return true
}

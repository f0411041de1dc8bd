package server

import (
	"bytes"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/woozymasta/mapcomp/internal/basemap"
	"github.com/woozymasta/mapcomp/internal/config"
	"github.com/woozymasta/mapcomp/internal/fetch"
	"github.com/woozymasta/mapcomp/internal/render"

	goshp "github.com/jonas-p/go-shp"
)

func writeStates(t *testing.T, dir string) {
	t.Helper()
	w, err := goshp.Create(filepath.Join(dir, "states.shp"), goshp.POLYGON)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.SetFields([]goshp.Field{goshp.StringField("GEOID", 4), goshp.FloatField("RATE", 8, 1)}); err != nil {
		t.Fatal(err)
	}
	for i, rate := range []string{"10.0", "90.0"} {
		x := float64(i * 2)
		pl := goshp.NewPolyLine([][]goshp.Point{{{X: x, Y: 0}, {X: x, Y: 1}, {X: x + 1, Y: 1}, {X: x + 1, Y: 0}, {X: x, Y: 0}}})
		poly := goshp.Polygon(*pl)
		n := w.Write(&poly)
		_ = w.WriteAttribute(int(n), 0, []string{"01", "02"}[i])
		_ = w.WriteAttribute(int(n), 1, rate)
	}
	w.Close()
	if err := os.WriteFile(filepath.Join(dir, "states.prj"), []byte("+proj=longlat +datum=WGS84 +no_defs"), 0644); err != nil {
		t.Fatal(err)
	}
}

func newTestServer(t *testing.T) (*ServerContext, http.Handler) {
	t.Helper()

	data := t.TempDir()
	writeStates(t, data)

	theme := render.DefaultTheme()
	theme.Width, theme.Height = 200, 100
	theme.Title = "Rates"

	cfg := &config.Config{
		WorkDir:   t.TempDir(),
		OutputDir: t.TempDir(),
		Figures: []config.Figure{
			{
				Name:    "states",
				Aliases: []string{"us"},
				Dataset: config.Dataset{URL: data, IDColumn: "GEOID"},
				CRS:     "EPSG:4326",
				Layers:  []config.Layer{{Type: config.LayerFill, Column: "RATE"}, {Type: config.LayerOutline}},
				Theme:   theme,
				Formats: []string{"png"},
			},
			{
				Name:    "offline",
				Dataset: config.Dataset{URL: "http://127.0.0.1:1/offline.zip"},
				CRS:     "EPSG:4326",
				Theme:   theme,
				Formats: []string{"png"},
			},
			{
				Name:    "broken",
				Dataset: config.Dataset{URL: data},
				Basemap: &config.Basemap{Provider: "nope"},
				Theme:   theme,
			},
		},
	}

	fetcher := fetch.New(http.DefaultClient, false)
	reg, err := basemap.NewRegistry(nil, basemap.Options{Fetcher: fetcher})
	if err != nil {
		t.Fatal(err)
	}

	s, err := NewServerContext(cfg, fetcher, reg)
	if err != nil {
		t.Fatal(err)
	}
	return s, s.Handler(nil)
}

func get(t *testing.T, h http.Handler, path string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestFiguresList(t *testing.T) {
	s, h := newTestServer(t)

	if _, ok := s.FigureNameResolver["broken"]; ok {
		t.Fatal("figure with unknown provider should be skipped")
	}

	rec := get(t, h, "/api/figures", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var list []FigureSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d figures, want 2", len(list))
	}
	if list[0].Name != "offline" || list[1].Name != "states" {
		t.Errorf("order = %s, %s", list[0].Name, list[1].Name)
	}
	if list[1].Title != "Rates" || len(list[1].Aliases) != 1 {
		t.Errorf("summary = %+v", list[1])
	}
}

func TestFigureRender(t *testing.T) {
	_, h := newTestServer(t)

	rec := get(t, h, "/figures/US.png", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type = %q", ct)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width != 200 || cfg.Height != 100 {
		t.Errorf("size = %dx%d", cfg.Width, cfg.Height)
	}

	etag := rec.Header().Get("ETag")
	if etag == "" {
		t.Fatal("missing ETag")
	}
	again := get(t, h, "/figures/states.png", http.Header{"If-None-Match": {etag}})
	if again.Code != http.StatusNotModified {
		t.Errorf("cached status = %d, want 304", again.Code)
	}

	// A second format reuses the prepared pipeline.
	svg := get(t, h, "/figures/states.svg", nil)
	if svg.Code != http.StatusOK || !strings.Contains(svg.Body.String(), "<svg") {
		t.Errorf("svg status = %d", svg.Code)
	}
}

func TestFigureGeoJSON(t *testing.T) {
	_, h := newTestServer(t)

	rec := get(t, h, "/figures/states/data.geojson", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &fc); err != nil {
		t.Fatal(err)
	}
	if fc.Type != "FeatureCollection" || len(fc.Features) != 2 {
		t.Fatalf("got %s with %d features", fc.Type, len(fc.Features))
	}
}

func TestFigureErrors(t *testing.T) {
	_, h := newTestServer(t)

	tests := []struct {
		path string
		want int
	}{
		{"/figures/unknown.png", http.StatusNotFound},
		{"/figures/states.gif", http.StatusNotFound},
		{"/figures/states", http.StatusNotFound},
		{"/figures/offline.png", http.StatusBadGateway},
		{"/style.css", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if rec := get(t, h, tt.path, nil); rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestIndex(t *testing.T) {
	s, h := newTestServer(t)

	rec := get(t, h, "/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"<title>mapcomp</title>", "/api/figures"} {
		if !strings.Contains(body, want) {
			t.Errorf("index missing %q", want)
		}
	}
	if strings.Contains(body, "\n  <") {
		t.Error("index is not minified")
	}

	etag := rec.Header().Get("ETag")
	if again := get(t, h, "/", http.Header{"If-None-Match": {etag}}); again.Code != http.StatusNotModified {
		t.Errorf("cached status = %d", again.Code)
	}

	if len(s.Favicon) == 0 || !bytes.Contains(s.Favicon, []byte("<svg")) {
		t.Error("favicon not built")
	}
}

package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/woozymasta/mapcomp/internal/basemap"
	"github.com/woozymasta/mapcomp/internal/config"
	"github.com/woozymasta/mapcomp/internal/fetch"
	"github.com/woozymasta/mapcomp/internal/flatten"
	"github.com/woozymasta/mapcomp/internal/projection"
	"github.com/woozymasta/mapcomp/internal/render"

	goshp "github.com/jonas-p/go-shp"
)

// writeStates writes two squares in lon/lat with GEOID and RATE columns.
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

func zipDir(t *testing.T, dir string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			t.Fatal(err)
		}
		f, err := zw.Create(e.Name())
		if err != nil {
			t.Fatal(err)
		}
		_, _ = f.Write(data)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func tilePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 256, 256))
	for i := range img.Pix {
		img.Pix[i] = 200
		if i%4 == 3 {
			img.Pix[i] = 255
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newPipeline(t *testing.T, f config.Figure) *Pipeline {
	t.Helper()

	src := t.TempDir()
	writeStates(t, src)
	archive := zipDir(t, src)
	tile := tilePNG(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/states.zip", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write(archive) })
	mux.HandleFunc("/tiles/", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write(tile) })
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	if f.Dataset.URL == "" {
		f.Dataset.URL = srv.URL + "/states.zip"
	}
	f.Dataset.IDColumn = "GEOID"
	if f.Theme.Width == 0 {
		f.Theme = render.DefaultTheme()
		f.Theme.Width, f.Theme.Height = 200, 100
	}

	fetcher := fetch.New(srv.Client(), false)
	reg, err := basemap.NewRegistry([]basemap.Definition{
		{Name: "local", URL: srv.URL + "/tiles/{z}/{x}/{y}.png", MaxZoom: 6},
	}, basemap.Options{Fetcher: fetcher, Concurrency: 2})
	if err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{WorkDir: t.TempDir(), OutputDir: t.TempDir(), Attribution: "test"}
	return New(cfg, f, fetcher, reg)
}

func TestRun(t *testing.T) {
	zoom := 3
	p := newPipeline(t, config.Figure{
		Name:    "rates",
		CRS:     "EPSG:4326",
		Basemap: &config.Basemap{Provider: "local", Zoom: &zoom},
		Layers: []config.Layer{
			{Type: config.LayerBasemap},
			{Type: config.LayerFill, Column: "RATE"},
			{Type: config.LayerOutline},
			{Type: config.LayerCentroids},
		},
		Formats: []string{"png", "svg"},
	})

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if p.Projected.Len() != 2 || p.Table.Len() != 10 || p.Tile == nil {
		t.Errorf("artifacts: features=%d rows=%d tile=%v", p.Projected.Len(), p.Table.Len(), p.Tile != nil)
	}
	if len(p.OutputFiles) != 2 {
		t.Fatalf("files = %v", p.OutputFiles)
	}
	for _, f := range p.OutputFiles {
		if info, err := os.Stat(f); err != nil || info.Size() == 0 {
			t.Errorf("%s: %v", f, err)
		}
	}
	if b := p.Image.Bounds(); b.Dx() != 200 || b.Dy() != 100 {
		t.Errorf("image = %v", b)
	}

	// Re-running one stage replaces only its artifact.
	table := p.Table
	if err := p.Flatten(); err != nil {
		t.Fatal(err)
	}
	if p.Table == table || p.Table.Len() != table.Len() {
		t.Error("flatten did not rebuild its table")
	}
}

func TestRunStageErrors(t *testing.T) {
	badCSV := filepath.Join(t.TempDir(), "rates.csv")
	if err := os.WriteFile(badCSV, []byte("GEOID,rate\n01,10\n"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		figure config.Figure
		stage  string
		check  func(error) bool
	}{
		{
			name:   "unknown crs",
			figure: config.Figure{Name: "a", CRS: "EPSG:1"},
			stage:  StageProject,
			check: func(err error) bool {
				var pe *projection.ProjectionError
				return errors.As(err, &pe)
			},
		},
		{
			name: "missing attribute row",
			figure: config.Figure{Name: "b", CRS: "EPSG:4326",
				Dataset: config.Dataset{Attributes: badCSV, AttributesID: "GEOID"}},
			stage: StageFlatten,
			check: func(err error) bool {
				var je *flatten.JoinError
				return errors.As(err, &je) && je.ID == "02"
			},
		},
		{
			name: "missing column",
			figure: config.Figure{Name: "c", CRS: "EPSG:4326",
				Layers: []config.Layer{{Type: config.LayerFill, Column: "nope"}}, Formats: []string{"png"}},
			stage: StageRender,
			check: func(err error) bool {
				var de *render.DomainError
				return errors.As(err, &de)
			},
		},
		{
			name:   "unreachable archive",
			figure: config.Figure{Name: "d", CRS: "EPSG:4326", Dataset: config.Dataset{URL: "http://127.0.0.1:1/x.zip"}},
			stage:  StageFetch,
			check: func(err error) bool {
				var ne *fetch.NetworkError
				return errors.As(err, &ne)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPipeline(t, tt.figure)
			err := p.Run(context.Background())
			var se *StageError
			if !errors.As(err, &se) {
				t.Fatalf("err = %v, want StageError", err)
			}
			if se.Stage != tt.stage || !tt.check(err) {
				t.Errorf("err = %v, want %s stage", err, tt.stage)
			}
		})
	}
}

func TestStageOrderGuard(t *testing.T) {
	p := newPipeline(t, config.Figure{Name: "x", CRS: "EPSG:4326"})
	err := p.Project()
	var se *StageError
	if !errors.As(err, &se) || se.Stage != StageProject {
		t.Fatalf("err = %v", err)
	}
}

func TestBasemapPixelsUnderData(t *testing.T) {
	zoom := 3
	p := newPipeline(t, config.Figure{
		Name:    "under",
		CRS:     "EPSG:4326",
		Basemap: &config.Basemap{Provider: "local", Zoom: &zoom},
		Layers:  []config.Layer{{Type: config.LayerBasemap}},
		Formats: []string{"png"},
	})
	p.Figure.Theme.ShowAxes = false
	p.Figure.Theme.Grid = false
	p.Figure.Theme.Margin = 0

	if err := p.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	got := color.RGBAModel.Convert(p.Image.At(100, 50)).(color.RGBA)
	if got.R != 200 || got.G != 200 {
		t.Errorf("center pixel = %v, want basemap grey", got)
	}
}

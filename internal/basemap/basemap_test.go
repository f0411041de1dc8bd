package basemap

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/woozymasta/mapcomp/internal/fetch"
	"github.com/woozymasta/mapcomp/internal/geo"
)

func pngTile(t *testing.T, size int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// tileServer serves a red 256px tile for every path, or 404 when missing is true.
func tileServer(t *testing.T, missing bool) (*httptest.Server, *int32) {
	t.Helper()
	body := pngTile(t, 256, color.RGBA{R: 255, A: 255})
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if missing {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

var box = geo.BBox{MinX: -10, MinY: -10, MaxX: 10, MaxY: 10}

func mercatorBox(b geo.BBox) geo.BBox {
	x0, y0 := geo.LonLatToMercator(b.MinX, b.MinY)
	x1, y1 := geo.LonLatToMercator(b.MaxX, b.MaxY)
	return geo.BBox{MinX: x0, MinY: y0, MaxX: x1, MaxY: y1}
}

func level(z int) *int { return &z }

func newXYZ(srv *httptest.Server) *XYZ {
	return &XYZ{
		ID:          "test",
		URL:         srv.URL + "/{z}/{x}/{y}.png",
		MaxZoom:     5,
		Concurrency: 2,
		Fetcher:     fetch.New(srv.Client(), false),
	}
}

func TestXYZFourTileMosaic(t *testing.T) {
	srv, hits := tileServer(t, false)
	p := newXYZ(srv)

	tile, err := p.Fetch(context.Background(), Request{BBox: box, Zoom: level(1)})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if n := atomic.LoadInt32(hits); n != 4 {
		t.Errorf("requests = %d, want 4", n)
	}
	if b := tile.Image.Bounds(); b.Dx() != 512 || b.Dy() != 512 {
		t.Errorf("mosaic size = %v, want 512x512", b)
	}
	if !tile.Bounds.Contains(mercatorBox(box)) {
		t.Errorf("bounds %v do not cover %v", tile.Bounds, mercatorBox(box))
	}
	if !tile.CRS.Equal(geo.WebMercator()) || tile.Zoom != 1 {
		t.Errorf("crs = %v zoom = %d", tile.CRS, tile.Zoom)
	}
}

func TestXYZExplicitZoomZero(t *testing.T) {
	srv, hits := tileServer(t, false)

	tile, err := newXYZ(srv).Fetch(context.Background(), Request{BBox: box, Zoom: level(0)})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if n := atomic.LoadInt32(hits); n != 1 {
		t.Errorf("requests = %d, want 1", n)
	}
	if b := tile.Image.Bounds(); tile.Zoom != 0 || b.Dx() != 256 || b.Dy() != 256 {
		t.Errorf("zoom = %d size = %v, want single 256px tile at zoom 0", tile.Zoom, b)
	}
}

func TestXYZAutoZoom(t *testing.T) {
	srv, _ := tileServer(t, false)
	p := newXYZ(srv)
	p.MaxTiles = 4

	tile, err := p.Fetch(context.Background(), Request{BBox: box})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if want := AutoZoom(box, 4); tile.Zoom != want {
		t.Errorf("zoom = %d, want %d", tile.Zoom, want)
	}
}

func TestXYZCrop(t *testing.T) {
	srv, _ := tileServer(t, false)
	tile, err := newXYZ(srv).Fetch(context.Background(), Request{BBox: box, Zoom: level(1), Crop: true})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if tile.Image.Bounds().Dx() >= 512 {
		t.Errorf("crop width = %d, want < 512", tile.Image.Bounds().Dx())
	}
	if !tile.Bounds.Contains(mercatorBox(box)) {
		t.Errorf("cropped bounds %v do not cover %v", tile.Bounds, mercatorBox(box))
	}
	if r, _, _, _ := tile.Image.At(1, 1).RGBA(); r != 0xffff {
		t.Errorf("cropped pixel red = %x", r)
	}
}

func TestXYZErrors(t *testing.T) {
	ok, _ := tileServer(t, false)
	missing, _ := tileServer(t, true)
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(broken.Close)

	far := newXYZ(ok)
	far.Coverage = geo.BBox{MinX: 100, MinY: 0, MaxX: 110, MaxY: 10}

	tests := []struct {
		name  string
		p     *XYZ
		zoom  int
		check func(error) bool
	}{
		{"zoom above max", newXYZ(ok), 9, func(err error) bool {
			var e *UnsupportedZoomError
			return errors.As(err, &e)
		}},
		{"outside coverage", far, 1, func(err error) bool {
			var e *NoCoverageError
			return errors.As(err, &e)
		}},
		{"all tiles missing", newXYZ(missing), 1, func(err error) bool {
			var e *NoCoverageError
			return errors.As(err, &e)
		}},
		{"server failure", newXYZ(broken), 1, func(err error) bool {
			var e *fetch.NetworkError
			return errors.As(err, &e) && e.Status == 500
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.p.Fetch(context.Background(), Request{BBox: box, Zoom: level(tt.zoom)})
			if !tt.check(err) {
				t.Errorf("err = %v", err)
			}
		})
	}
}

func TestXYZTooManyTiles(t *testing.T) {
	srv, hits := tileServer(t, false)
	p := newXYZ(srv)
	p.MaxTiles = 2

	_, err := p.Fetch(context.Background(), Request{BBox: box, Zoom: level(1)})
	var e *UnsupportedZoomError
	if !errors.As(err, &e) {
		t.Fatalf("err = %v, want UnsupportedZoomError", err)
	}
	if atomic.LoadInt32(hits) != 0 {
		t.Error("tiles requested despite limit")
	}
}

func TestStaticRejectsZoom(t *testing.T) {
	srv, hits := tileServer(t, false)
	p := &Static{ID: "wms", URL: srv.URL + "/map", Fetcher: fetch.New(srv.Client(), false)}

	_, err := p.Fetch(context.Background(), Request{BBox: box, Zoom: level(1)})
	var e *UnsupportedZoomError
	if !errors.As(err, &e) {
		t.Fatalf("err = %v, want UnsupportedZoomError", err)
	}
	if atomic.LoadInt32(hits) != 0 {
		t.Error("request sent for unsupported zoom")
	}
}

func TestStaticFetch(t *testing.T) {
	body := pngTile(t, 64, color.White)
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)

	p := &Static{
		ID:      "wms",
		URL:     srv.URL + "/map?bbox={minx},{miny},{maxx},{maxy}&size={width}x{height}",
		Width:   200,
		Fetcher: fetch.New(srv.Client(), false),
	}
	tile, err := p.Fetch(context.Background(), Request{BBox: geo.BBox{MinX: 0, MinY: 0, MaxX: 20, MaxY: 10}})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if query != "bbox=0,0,20,10&size=200x100" {
		t.Errorf("query = %q", query)
	}
	if tile.Bounds != (geo.BBox{MinX: 0, MinY: 0, MaxX: 20, MaxY: 10}) || !tile.CRS.IsGeographic() {
		t.Errorf("tile bounds = %v crs = %v", tile.Bounds, tile.CRS)
	}
}

func TestDiskCache(t *testing.T) {
	srv, hits := tileServer(t, false)
	p := newXYZ(srv)
	p.Cache = &DiskCache{Root: t.TempDir()}

	for i := 0; i < 2; i++ {
		if _, err := p.Fetch(context.Background(), Request{BBox: box, Zoom: level(1)}); err != nil {
			t.Fatalf("Fetch %d: %v", i, err)
		}
	}
	if n := atomic.LoadInt32(hits); n != 4 {
		t.Errorf("requests = %d, want 4 (second run cached)", n)
	}
}

func TestBuildURL(t *testing.T) {
	c := TileCoordinate{Z: 2, X: 1, Y: 0}
	tests := []struct {
		tpl  string
		subs []string
		want string
	}{
		{"/{z}/{x}/{y}.png", nil, "/2/1/0.png"},
		{"/{z}/{x}/{tms_y}.png", nil, "/2/1/3.png"},
		{"https://{s}.tile/{z}/{x}/{y}", []string{"a", "b"}, "https://b.tile/2/1/0"},
		{"/stamen_{style}/{z}", nil, "/stamen_toner/2"},
	}
	for _, tt := range tests {
		if got := buildURL(tt.tpl, c, "toner", tt.subs); got != tt.want {
			t.Errorf("buildURL(%q) = %q, want %q", tt.tpl, got, tt.want)
		}
	}
}

func TestAutoZoom(t *testing.T) {
	for _, limit := range []int{1, 4, 16, 64} {
		z := AutoZoom(box, limit)
		if n := len(TileRange(box, z)); n > limit && z > 0 {
			t.Errorf("AutoZoom(limit %d) = %d with %d tiles", limit, z, n)
		}
	}
	if z := AutoZoom(geo.BBox{MinX: -180, MinY: -85, MaxX: 180, MaxY: 85}, 1); z != 0 {
		t.Errorf("world zoom = %d, want 0", z)
	}
}

func TestRegistry(t *testing.T) {
	r, err := NewRegistry([]Definition{
		{Name: "wms", Type: "static", URL: "http://example/{minx}", CRS: "EPSG:3857"},
	}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(r.Names(), ","); got != "osm,satellite,toner,wms" {
		t.Errorf("names = %s", got)
	}
	if p, err := r.Get("wms"); err != nil || p.Name() != "wms" {
		t.Errorf("Get(wms) = %v, %v", p, err)
	}
	if _, err := r.Get("nope"); err == nil {
		t.Error("Get(nope) succeeded")
	}
	if _, err := New(Definition{Name: "x", Type: "vector", URL: "u"}, Options{}); err == nil {
		t.Error("unknown type accepted")
	}
}

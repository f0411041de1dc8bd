package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/woozymasta/mapcomp/internal/basemap"
	"github.com/woozymasta/mapcomp/internal/config"
	"github.com/woozymasta/mapcomp/internal/fetch"
	"github.com/woozymasta/mapcomp/internal/pipeline"
	"github.com/woozymasta/mapcomp/internal/store"
)

func TestSummarize(t *testing.T) {
	p := &pipeline.Pipeline{Figure: config.Figure{Name: "rates"}}

	ok := summarize(p, nil, 1500*time.Millisecond)
	if ok.Status != "ok" || ok.Failed {
		t.Errorf("ok result = %+v", ok)
	}

	err := &pipeline.StageError{Figure: "rates", Stage: pipeline.StageBasemap, Err: errors.New("no coverage")}
	bad := summarize(p, err, time.Second)
	if bad.Status != "basemap failed" || !bad.Failed {
		t.Errorf("failed result = %+v", bad)
	}

	var buf bytes.Buffer
	printSummary(&buf, []result{ok, bad, {Figure: "cached", Skipped: true}})
	out := buf.String()
	for _, want := range []string{"FIGURE", "rates", "basemap failed", "skipped", "1.5s"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestOutputsExist(t *testing.T) {
	dir := t.TempDir()
	f := config.Figure{Name: "rates", Formats: []string{"png", "svg"}}

	if outputsExist(dir, f) {
		t.Fatal("nothing written yet")
	}
	if err := os.WriteFile(filepath.Join(dir, "rates.png"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if outputsExist(dir, f) {
		t.Fatal("svg still missing")
	}
	if err := os.WriteFile(filepath.Join(dir, "rates.svg"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if !outputsExist(dir, f) {
		t.Fatal("all outputs present")
	}
}

func TestRunClosesStoreOnFailure(t *testing.T) {
	var opened *store.Store
	openStore = func(dsn string) (*store.Store, error) {
		s, err := store.Open(dsn)
		opened = s
		return s, err
	}
	t.Cleanup(func() { openStore = store.Open })

	cfg := &config.Config{
		WorkDir:   t.TempDir(),
		OutputDir: t.TempDir(),
		Figures: []config.Figure{{
			Name:    "offline",
			Dataset: config.Dataset{URL: "http://127.0.0.1:1/offline.zip"},
			CRS:     "EPSG:4326",
			Formats: []string{"png"},
		}},
	}
	fetcher := fetch.New(http.DefaultClient, false)
	providers, err := basemap.NewRegistry(nil, basemap.Options{Fetcher: fetcher})
	if err != nil {
		t.Fatal(err)
	}

	opts := Options{SQL: filepath.Join(t.TempDir(), "figures.db")}
	total, failed, err := run(context.Background(), cfg, opts, fetcher, providers)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if total != 1 || failed != 1 {
		t.Errorf("total = %d failed = %d, want 1 and 1", total, failed)
	}
	if opened == nil {
		t.Fatal("store not opened")
	}
	if err := opened.DB().Ping(); err == nil {
		t.Error("store still open after run returned")
	}
}

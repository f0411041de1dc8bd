package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveStage(t *testing.T) {
	before := testutil.ToFloat64(StageFailuresTotal.WithLabelValues("test"))
	ObserveStage("test", time.Now(), nil)
	ObserveStage("test", time.Now(), errors.New("boom"))

	after := testutil.ToFloat64(StageFailuresTotal.WithLabelValues("test"))
	if after-before != 1 {
		t.Errorf("Expected one failure recorded, got %v", after-before)
	}
}

func TestWriteFile(t *testing.T) {
	FiguresRendered.WithLabelValues("png").Inc()

	path := filepath.Join(t.TempDir(), "metrics.prom")
	if err := WriteFile(path); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "mapcomp_figures_rendered_total") {
		t.Error("Expected figures counter in textfile output")
	}
}

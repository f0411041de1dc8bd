package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/woozymasta/mapcomp/internal/pipeline"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	failStyle   = cellStyle.Foreground(lipgloss.Color("#FF5F5F"))
	dimStyle    = cellStyle.Foreground(lipgloss.Color("#808080"))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#5F5F5F"))
)

// result is one line of the --inspect summary.
type result struct {
	Figure   string
	Features int
	Vertices int
	CRS      string
	Bounds   string
	Basemap  string
	Outputs  []string
	Took     time.Duration
	Status   string
	Skipped  bool
	Failed   bool
}

func summarize(p *pipeline.Pipeline, err error, took time.Duration) result {
	r := result{Figure: p.Figure.Name, Took: took, Status: "ok"}

	if p.Projected != nil {
		r.Features = p.Projected.Len()
	}
	if p.ProjPoints != nil {
		r.Features += p.ProjPoints.Len()
	}
	if p.Table != nil {
		r.Vertices = p.Table.Len()
	}
	if p.CRS != nil {
		r.CRS = p.CRS.String()
	}
	if r.Features > 0 {
		r.Bounds = p.Bounds().String()
	}
	if p.Tile != nil {
		r.Basemap = fmt.Sprintf("%s z%d", p.Tile.Provider, p.Tile.Zoom)
	}
	for _, f := range p.OutputFiles {
		r.Outputs = append(r.Outputs, filepath.Base(f))
	}

	if err != nil {
		r.Failed = true
		r.Status = "failed"
		var stageErr *pipeline.StageError
		if errors.As(err, &stageErr) {
			r.Status = stageErr.Stage + " failed"
		}
	}
	return r
}

func (r result) row() []string {
	if r.Skipped {
		return []string{r.Figure, "", "", "", "", "", "", "", "skipped"}
	}
	return []string{
		r.Figure,
		strconv.Itoa(r.Features),
		strconv.Itoa(r.Vertices),
		r.CRS,
		r.Bounds,
		r.Basemap,
		strings.Join(r.Outputs, " "),
		r.Took.Round(time.Millisecond).String(),
		r.Status,
	}
}

// printSummary writes a table of results to w.
func printSummary(w io.Writer, results []result) {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, r.row())
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers("FIGURE", "FEATURES", "VERTICES", "CRS", "BOUNDS", "BASEMAP", "OUTPUTS", "TOOK", "STATUS").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row < 0 || row >= len(results):
				return cellStyle
			case results[row].Failed:
				return failStyle
			case results[row].Skipped:
				return dimStyle
			}
			return cellStyle
		})

	_, _ = fmt.Fprintln(w, t.Render())
}

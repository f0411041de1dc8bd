package pipeline

import "fmt"

// Stage names.
const (
	StageFetch   = "fetch"
	StageLoad    = "load"
	StageProject = "project"
	StageFlatten = "flatten"
	StageBasemap = "basemap"
	StageRender  = "render"
	StageExport  = "export"
)

// StageError names the stage a failure happened in.
type StageError struct {
	Figure string
	Stage  string
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("figure %s: %s stage: %v", e.Figure, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

type missingArtifactError struct {
	stage string
}

func (e *missingArtifactError) Error() string {
	return fmt.Sprintf("%s stage has not run", e.stage)
}

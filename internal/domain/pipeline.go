package domain

import "errors"

var ErrPipelineNotFound = errors.New("pipeline not found")

// PipelineConfig is the executable description PipelineRegistry resolves a
// pipeline_ref into. The ETL runtime that actually interprets Steps is an
// external collaborator (spec.md §1) — the core only needs an id to key
// execution history and logging by.
type PipelineConfig struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Steps []PipelineStep `json:"steps"`
}

// PipelineStep is opaque configuration for a single extract/transform/load
// stage. The core never interprets Type or Config; it only passes them
// through to the ETL engine collaborator.
type PipelineStep struct {
	Name   string         `json:"name"`
	Type   string         `json:"type"`
	Config map[string]any `json:"config,omitempty"`
}

package server

import "chorus/internal/domain"

// Request payloads

type StatusRequest struct {
	Status domain.Status `json:"status" enum:"todo,doing,done,wont_do"`
}

type ReorderRequest struct {
	Position int `json:"position" minimum:"0"`
}

type FlagRefinementRequest struct {
	RefinementNotes string `json:"refinement_notes"`
}

// Path and query inputs

type projectInput struct {
	ProjectID string `path:"project_id"`
}

type taskInput struct {
	TaskID string `path:"task_id"`
}

type pageInput struct {
	ProjectID string `path:"project_id"`
	Limit     int    `query:"limit" default:"50" minimum:"1" maximum:"500"`
	Offset    int    `query:"offset" default:"0" minimum:"0"`
}

type lockCallerInput struct {
	TaskID      string `path:"task_id"`
	CallerLabel string `query:"caller_label" required:"true"`
	Force       bool   `query:"force"`
}

type taskBodyInput[T any] struct {
	TaskID string `path:"task_id"`
	Body   T
}

type projectBodyInput[T any] struct {
	ProjectID string `path:"project_id"`
	Body      T
}

// output wraps a response body.
type output[T any] struct {
	Body T
}

func ok[T any](v T) *output[T] {
	return &output[T]{Body: v}
}

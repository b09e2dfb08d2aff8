// Package engine holds the task-tracking rules behind the reference API:
// derived task fields, status transitions, locks, discovery and sizing.
package engine

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"chorus/internal/repo"
	"chorus/internal/worklog"
)

type Engine struct {
	DB   *sql.DB
	Repo repo.Repo
	Log  worklog.Writer
	Now  func() time.Time
}

func New(db *sql.DB) Engine {
	r := repo.Repo{DB: db}
	return Engine{
		DB:   db,
		Repo: r,
		Log:  worklog.Writer{Repo: r},
		Now:  time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

// writer returns the work log writer on the engine clock.
func (e Engine) writer() worklog.Writer {
	w := e.Log
	w.Repo = e.Repo
	w.Now = e.now
	return w
}

// Kind classifies a rule violation for the transport layer.
type Kind int

const (
	KindBadRequest Kind = iota
	KindValidation
	KindConflict
	KindForbidden
)

// Error codes carried by rule violations.
const (
	CodeBadRequest              = "BAD_REQUEST"
	CodeValidation              = "VALIDATION_ERROR"
	CodeInvalidStatusTransition = "INVALID_STATUS_TRANSITION"
	CodeLockConflict            = "LOCK_CONFLICT"
	CodeForbidden               = "FORBIDDEN"
)

// RuleError is returned when a request breaks a tracking rule.
type RuleError struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]any
}

func (e *RuleError) Error() string { return e.Message }

func badRequest(format string, args ...any) *RuleError {
	return &RuleError{Kind: KindBadRequest, Code: CodeBadRequest, Message: fmt.Sprintf(format, args...)}
}

func invalid(format string, args ...any) *RuleError {
	return &RuleError{Kind: KindValidation, Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

func forbidden(msg string) *RuleError {
	return &RuleError{Kind: KindForbidden, Code: CodeForbidden, Message: msg}
}

// notFound reads as "<what> not found" and matches repo.ErrNotFound.
func notFound(what string) error {
	return fmt.Errorf("%s %w", what, repo.ErrNotFound)
}

// orNotFound renames a repo miss for the caller.
func orNotFound(err error, what string) error {
	if errors.Is(err, repo.ErrNotFound) {
		return notFound(what)
	}
	return err
}

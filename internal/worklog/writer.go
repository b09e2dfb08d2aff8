// Package worklog appends entries to a task's work log. Entries are never
// edited or removed.
package worklog

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"chorus/internal/domain"
	"chorus/internal/repo"
)

var ErrEmptyContent = errors.New("work log content is required")

var operations = map[domain.Operation]bool{
	domain.OperationSizing:         true,
	domain.OperationBreakdown:      true,
	domain.OperationRefinement:     true,
	domain.OperationImplementation: true,
	domain.OperationNote:           true,
}

// ValidOperation reports whether op is a known work log operation.
func ValidOperation(op domain.Operation) bool {
	return operations[op]
}

type Writer struct {
	Repo repo.Repo
	Now  func() time.Time
}

// Append writes one entry inside tx, or directly when tx is nil.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, taskID string, op domain.Operation, content string, author *string) (domain.WorkLogEntry, error) {
	if w.Now == nil {
		w.Now = time.Now
	}
	if strings.TrimSpace(content) == "" {
		return domain.WorkLogEntry{}, ErrEmptyContent
	}
	if !ValidOperation(op) {
		return domain.WorkLogEntry{}, errors.New("unknown work log operation " + string(op))
	}
	if author != nil && *author == "" {
		author = nil
	}
	entry := domain.WorkLogEntry{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		Author:    author,
		Operation: op,
		Content:   content,
		CreatedAt: repo.Timestamp(w.Now()),
	}
	if err := w.Repo.InsertWorkLog(ctx, tx, entry); err != nil {
		return domain.WorkLogEntry{}, err
	}
	return entry, nil
}

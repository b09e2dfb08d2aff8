package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"chorus/internal/domain"
	"chorus/internal/repo"
	"chorus/internal/worklog"
)

// Score bounds for a sizing.
const (
	MaxDimensionScore = 2
	MaxConfidence     = 5
)

type pointsBreakdown struct {
	Dimensions           map[string]domain.DimensionScore `json:"dimensions"`
	Total                int                              `json:"total"`
	Confidence           int                              `json:"confidence"`
	RiskFactors          []string                         `json:"risk_factors"`
	BreakdownSuggestions *string                          `json:"breakdown_suggestions"`
	ScoredBy             *string                          `json:"scored_by"`
	ScoredAt             string                           `json:"scored_at"`
}

// SizeTask scores a task on five dimensions. Points are the sum of the
// scores; the full breakdown is stored and a sizing entry is logged.
func (e Engine) SizeTask(ctx context.Context, id string, in domain.SizingRequest) (domain.Task, error) {
	dims := in.Dimensions()
	total := 0
	for name, d := range dims {
		if d.Score < 0 || d.Score > MaxDimensionScore {
			return domain.Task{}, invalid("%s.score must be between 0 and %d", name, MaxDimensionScore)
		}
		total += d.Score
	}
	if in.Confidence < 0 || in.Confidence > MaxConfidence {
		return domain.Task{}, invalid("confidence must be between 0 and %d", MaxConfidence)
	}
	if in.RiskFactors == nil {
		in.RiskFactors = []string{}
	}
	now := e.now()
	data, err := json.Marshal(pointsBreakdown{
		Dimensions:           dims,
		Total:                total,
		Confidence:           in.Confidence,
		RiskFactors:          in.RiskFactors,
		BreakdownSuggestions: in.BreakdownSuggestions,
		ScoredBy:             in.ScoredBy,
		ScoredAt:             repo.Timestamp(now),
	})
	if err != nil {
		return domain.Task{}, fmt.Errorf("marshal points breakdown: %w", err)
	}
	breakdown := string(data)
	confidence := in.Confidence
	return e.mutate(ctx, id, domain.OperationSizing, in.WorkLogContent, in.Author, func(rec *repo.TaskRecord) {
		rec.Points = &total
		rec.PointsBreakdown = &breakdown
		rec.SizingConfidence = &confidence
	})
}

// RefineTask rewrites a task's description or context and clears its
// refinement flag.
func (e Engine) RefineTask(ctx context.Context, id string, in domain.RefineRequest) (domain.Task, error) {
	return e.mutate(ctx, id, domain.OperationRefinement, in.WorkLogContent, in.Author, func(rec *repo.TaskRecord) {
		if in.Description != nil {
			rec.Description = in.Description
		}
		if in.Context != nil {
			rec.Context = in.Context
		}
		rec.NeedsRefinement = false
	})
}

// mutate applies change to a task and logs op in one transaction.
func (e Engine) mutate(ctx context.Context, id string, op domain.Operation, content string, author *string, change func(*repo.TaskRecord)) (domain.Task, error) {
	if strings.TrimSpace(content) == "" {
		return domain.Task{}, invalid("work_log_content is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	rec, err := e.Repo.GetTask(ctx, tx, id)
	if err != nil {
		return domain.Task{}, orNotFound(err, "task")
	}
	change(&rec)
	rec.UpdatedAt = repo.Timestamp(e.now())
	if err := e.Repo.UpdateTask(ctx, tx, rec); err != nil {
		return domain.Task{}, err
	}
	if _, err := e.writer().Append(ctx, tx, id, op, content, author); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return e.GetTask(ctx, id)
}

// FlagRefinement marks a task as needing refinement with the given notes.
func (e Engine) FlagRefinement(ctx context.Context, id, notes string) (domain.Task, error) {
	rec, err := e.Repo.GetTask(ctx, nil, id)
	if err != nil {
		return domain.Task{}, orNotFound(err, "task")
	}
	rec.NeedsRefinement = true
	rec.RefinementNotes = &notes
	rec.UpdatedAt = repo.Timestamp(e.now())
	if err := e.Repo.UpdateTask(ctx, nil, rec); err != nil {
		return domain.Task{}, orNotFound(err, "task")
	}
	return e.GetTask(ctx, id)
}

func (e Engine) WorkLog(ctx context.Context, taskID string) ([]domain.WorkLogEntry, error) {
	if _, err := e.Repo.GetTask(ctx, nil, taskID); err != nil {
		return nil, orNotFound(err, "task")
	}
	return e.Repo.ListWorkLog(ctx, taskID)
}

func (e Engine) AddWorkLog(ctx context.Context, taskID string, in domain.WorkLogCreate) (domain.WorkLogEntry, error) {
	if !worklog.ValidOperation(in.Operation) {
		return domain.WorkLogEntry{}, invalid("unknown operation %q", in.Operation)
	}
	if strings.TrimSpace(in.Content) == "" {
		return domain.WorkLogEntry{}, invalid("content is required")
	}
	if _, err := e.Repo.GetTask(ctx, nil, taskID); err != nil {
		return domain.WorkLogEntry{}, orNotFound(err, "task")
	}
	return e.writer().Append(ctx, nil, taskID, in.Operation, in.Content, in.Author)
}

func (e Engine) Commits(ctx context.Context, taskID string) ([]domain.Commit, error) {
	if _, err := e.Repo.GetTask(ctx, nil, taskID); err != nil {
		return nil, orNotFound(err, "task")
	}
	return e.Repo.ListCommits(ctx, taskID)
}

// AddCommit links a commit to a task.
func (e Engine) AddCommit(ctx context.Context, taskID string, in domain.CommitCreate) (domain.Commit, error) {
	hash := strings.TrimSpace(in.CommitHash)
	if hash == "" || len(hash) > 40 {
		return domain.Commit{}, invalid("commit_hash must be 1 to 40 characters")
	}
	committed, err := repo.ParseTimestamp(in.CommittedAt)
	if err != nil {
		return domain.Commit{}, invalid("committed_at must be an RFC 3339 timestamp")
	}
	if _, err := e.Repo.GetTask(ctx, nil, taskID); err != nil {
		return domain.Commit{}, orNotFound(err, "task")
	}
	c := domain.Commit{
		ID:          uuid.NewString(),
		TaskID:      taskID,
		Author:      in.Author,
		CommitHash:  hash,
		Message:     in.Message,
		CommittedAt: repo.Timestamp(committed),
	}
	if err := e.Repo.InsertCommit(ctx, c); err != nil {
		return domain.Commit{}, err
	}
	return c, nil
}

package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"chorus/internal/domain"
	"chorus/internal/repo"
)

// LockTTL is how long a lock of each purpose lives without a heartbeat.
var LockTTL = map[domain.LockPurpose]time.Duration{
	domain.LockPurposeSizing:         15 * time.Minute,
	domain.LockPurposeBreakdown:      30 * time.Minute,
	domain.LockPurposeRefinement:     30 * time.Minute,
	domain.LockPurposeImplementation: time.Hour,
}

// checkLockPurpose enforces what a task must look like before it can be
// locked for a purpose. Refinement has no precondition.
func checkLockPurpose(f *forest, id string, purpose domain.LockPurpose) error {
	t := f.byID[id]
	switch purpose {
	case domain.LockPurposeSizing:
		if t.Points != nil {
			return invalid("task is already sized")
		}
	case domain.LockPurposeBreakdown:
		if t.Points == nil && len(f.children[id]) == 0 {
			return invalid("task must be sized before breakdown")
		}
		ep := f.effective(id)
		if (ep == nil || *ep <= BreakdownThreshold) && f.unsized(id) == 0 {
			return invalid("task does not need breakdown (effective_points <= %d and no unsized children)", BreakdownThreshold)
		}
	case domain.LockPurposeImplementation:
		if r := f.readiness(id); r != domain.ReadinessReady {
			return invalid("task is not ready for implementation (readiness=%s)", r)
		}
	}
	return nil
}

func expired(l domain.Lock, now time.Time) bool {
	exp, err := repo.ParseTimestamp(l.ExpiresAt)
	return err != nil || exp.Before(now)
}

// AcquireLock locks a task for one purpose. An expired lock is replaced; a
// live one is a conflict whoever holds it.
func (e Engine) AcquireLock(ctx context.Context, taskID string, in domain.LockAcquire) (domain.Lock, error) {
	caller := strings.TrimSpace(in.CallerLabel)
	if caller == "" {
		return domain.Lock{}, invalid("caller_label is required")
	}
	ttl, ok := LockTTL[in.LockPurpose]
	if !ok {
		return domain.Lock{}, invalid("unknown lock_purpose %q", in.LockPurpose)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Lock{}, err
	}
	defer tx.Rollback()

	f, err := e.forestFor(ctx, tx, taskID)
	if err != nil {
		return domain.Lock{}, err
	}
	now := e.now()
	existing, err := e.Repo.GetLock(ctx, tx, taskID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
	case err != nil:
		return domain.Lock{}, err
	case expired(existing, now):
		if err := e.Repo.DeleteLock(ctx, tx, taskID); err != nil {
			return domain.Lock{}, err
		}
	default:
		return domain.Lock{}, &RuleError{
			Kind:    KindConflict,
			Code:    CodeLockConflict,
			Message: "task is already locked",
			Details: map[string]any{"caller_label": existing.CallerLabel, "expires_at": existing.ExpiresAt},
		}
	}
	if err := checkLockPurpose(f, taskID, in.LockPurpose); err != nil {
		return domain.Lock{}, err
	}
	l := domain.Lock{
		ID:          uuid.NewString(),
		TaskID:      taskID,
		CallerLabel: caller,
		LockPurpose: in.LockPurpose,
		AcquiredAt:  repo.Timestamp(now),
		ExpiresAt:   repo.Timestamp(now.Add(ttl)),
	}
	if err := e.Repo.InsertLock(ctx, tx, l); err != nil {
		return domain.Lock{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Lock{}, err
	}
	return l, nil
}

// HeartbeatLock extends a live lock held by caller by its full TTL.
func (e Engine) HeartbeatLock(ctx context.Context, taskID, caller string) (domain.Lock, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Lock{}, err
	}
	defer tx.Rollback()

	l, err := e.Repo.GetLock(ctx, tx, taskID)
	if err != nil {
		return domain.Lock{}, orNotFound(err, "lock for task")
	}
	now := e.now()
	if expired(l, now) {
		return domain.Lock{}, &RuleError{Kind: KindConflict, Code: CodeLockConflict, Message: "lock has expired"}
	}
	if l.CallerLabel != caller {
		return domain.Lock{}, forbidden("caller label does not match lock holder")
	}
	beat := repo.Timestamp(now)
	l.LastHeartbeatAt = &beat
	l.ExpiresAt = repo.Timestamp(now.Add(LockTTL[l.LockPurpose]))
	if err := e.Repo.TouchLock(ctx, tx, taskID, beat, l.ExpiresAt); err != nil {
		return domain.Lock{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Lock{}, err
	}
	return l, nil
}

// ReleaseLock removes the lock on a task. Without force only the holder may
// release it.
func (e Engine) ReleaseLock(ctx context.Context, taskID, caller string, force bool) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	l, err := e.Repo.GetLock(ctx, tx, taskID)
	if err != nil {
		return orNotFound(err, "lock for task")
	}
	if !force && l.CallerLabel != caller {
		return forbidden("caller label does not match lock holder")
	}
	if err := e.Repo.DeleteLock(ctx, tx, taskID); err != nil {
		return err
	}
	return tx.Commit()
}

// CleanupExpiredLocks deletes every lock that has run out and returns how
// many were removed.
func (e Engine) CleanupExpiredLocks(ctx context.Context) (int64, error) {
	return e.Repo.DeleteExpiredLocks(ctx, repo.Timestamp(e.now()))
}

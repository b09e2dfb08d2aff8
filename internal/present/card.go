package present

import (
	"fmt"
	"time"

	"chorus/internal/domain"
)

// LockInfo is the lock decoration carried by in-progress tasks.
type LockInfo struct {
	CallerLabel string
	Purpose     string
	ExpiresAt   string
}

// Card is either a plain task or a task that arrived with lock fields from
// the in-progress view. Callers branch on HasLockInfo.
type Card struct {
	Task domain.Task
	lock *LockInfo
}

func TaskCard(t domain.Task) Card { return Card{Task: t} }

// LockCard wraps an in-progress task. A task whose lock fields are all empty
// still counts as the lock variant.
func LockCard(t domain.TaskWithLockInfo) Card {
	return Card{Task: t.Task, lock: &LockInfo{
		CallerLabel: deref(t.LockCallerLabel),
		Purpose:     deref(t.LockPurpose),
		ExpiresAt:   deref(t.LockExpiresAt),
	}}
}

func (c Card) HasLockInfo() bool { return c.lock != nil }

func (c Card) Lock() (LockInfo, bool) {
	if c.lock == nil {
		return LockInfo{}, false
	}
	return *c.lock, true
}

// LockMarker is the lock glyph for a card, with the holder when known.
func (c Card) LockMarker() string {
	if !c.Task.IsLocked {
		return ""
	}
	if c.lock != nil && c.lock.CallerLabel != "" {
		return "🔒 " + c.lock.CallerLabel
	}
	return "🔒"
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Countdown renders the time left on a lock. It is a function of now and
// must be recomputed on every render.
func Countdown(expiresAt string, now time.Time) string {
	exp, err := time.Parse(time.RFC3339Nano, expiresAt)
	if err != nil {
		return "-"
	}
	left := exp.Sub(now)
	if left <= 0 {
		return "Expired"
	}
	mins := int(left / time.Minute)
	secs := int((left % time.Minute) / time.Second)
	return fmt.Sprintf("%dm %ds", mins, secs)
}

// TimeRemaining is Countdown for an optional expiry.
func TimeRemaining(expiresAt *string, now time.Time) string {
	if expiresAt == nil || *expiresAt == "" {
		return "-"
	}
	return Countdown(*expiresAt, now)
}

// ShortPoints is the compact "Npt" tag, empty for unsized tasks.
func ShortPoints(t domain.Task) string {
	if t.EffectivePoints == nil {
		return ""
	}
	return fmt.Sprintf("%dpt", *t.EffectivePoints)
}

// Points is the detail view rendering of a task's size.
func Points(t domain.Task) string {
	out := "Unsized"
	if t.EffectivePoints != nil {
		out = fmt.Sprint(*t.EffectivePoints)
	}
	if t.RolledUpPoints != nil && (t.EffectivePoints == nil || *t.RolledUpPoints != *t.EffectivePoints) {
		out += fmt.Sprintf(" (rolled up: %d)", *t.RolledUpPoints)
	}
	return out
}

// ChildrenTag is the "N sub" tag for rows with children.
func ChildrenTag(t domain.Task) string {
	if t.ChildrenCount == 0 {
		return ""
	}
	return fmt.Sprintf("%d sub", t.ChildrenCount)
}

package engine

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"chorus/internal/domain"
	"chorus/internal/repo"
)

// BreakdownThreshold is the largest effective size a task may have before it
// has to be split.
const BreakdownThreshold = 6

// forest is one project's tasks with their locks, loaded once so every
// derived field is computed from the same snapshot.
type forest struct {
	now      time.Time
	byID     map[string]repo.TaskRecord
	children map[string][]string
	roots    []string
	locks    map[string]domain.Lock
	eff      map[string]*int
}

func (e Engine) loadForest(ctx context.Context, tx *sql.Tx, projectID string) (*forest, error) {
	tasks, err := e.Repo.ListProjectTasks(ctx, tx, projectID)
	if err != nil {
		return nil, err
	}
	locks, err := e.Repo.ListProjectLocks(ctx, tx, projectID)
	if err != nil {
		return nil, err
	}
	return newForest(tasks, locks, e.now()), nil
}

// newForest indexes tasks. Input order is kept for siblings, so callers pass
// tasks sorted by position.
func newForest(tasks []repo.TaskRecord, locks map[string]domain.Lock, now time.Time) *forest {
	f := &forest{
		now:      now,
		byID:     make(map[string]repo.TaskRecord, len(tasks)),
		children: map[string][]string{},
		locks:    locks,
		eff:      map[string]*int{},
	}
	for _, t := range tasks {
		f.byID[t.ID] = t
	}
	for _, t := range tasks {
		if t.ParentTaskID == nil {
			f.roots = append(f.roots, t.ID)
			continue
		}
		f.children[*t.ParentTaskID] = append(f.children[*t.ParentTaskID], t.ID)
	}
	return f
}

func (f *forest) effective(id string) *int {
	if v, ok := f.eff[id]; ok {
		return v
	}
	v := f.rolledUp(id)
	if v == nil {
		v = f.byID[id].Points
	}
	f.eff[id] = v
	return v
}

// rolledUp sums the children's effective points. It is nil for leaves and
// when no child is sized.
func (f *forest) rolledUp(id string) *int {
	kids := f.children[id]
	if len(kids) == 0 {
		return nil
	}
	total, sized := 0, false
	for _, k := range kids {
		if p := f.effective(k); p != nil {
			total += *p
			sized = true
		}
	}
	if !sized {
		return nil
	}
	return &total
}

func (f *forest) unsized(id string) int {
	n := 0
	for _, k := range f.children[id] {
		if f.byID[k].Points == nil {
			n++
		}
	}
	return n
}

func (f *forest) readiness(id string) domain.Readiness {
	t := f.byID[id]
	hasChildren := len(f.children[id]) > 0
	switch {
	case t.NeedsRefinement:
		return domain.ReadinessNeedsRefinement
	case t.Points == nil && !hasChildren:
		return domain.ReadinessNeedsSizing
	case hasChildren && f.unsized(id) > 0:
		return domain.ReadinessNeedsBreakdown
	}
	if ep := f.effective(id); ep != nil && *ep > BreakdownThreshold {
		return domain.ReadinessNeedsBreakdown
	}
	if hasChildren {
		return domain.ReadinessBlockedByChildren
	}
	return domain.ReadinessReady
}

// activeLock returns the lock on id when it has not expired.
func (f *forest) activeLock(id string) (domain.Lock, bool) {
	l, ok := f.locks[id]
	if !ok {
		return l, false
	}
	exp, err := repo.ParseTimestamp(l.ExpiresAt)
	if err != nil || !exp.After(f.now) {
		return l, false
	}
	return l, true
}

func (f *forest) task(id string) domain.Task {
	t := f.byID[id].Task
	t.EffectivePoints = f.effective(id)
	t.RolledUpPoints = f.rolledUp(id)
	t.UnsizedChildren = f.unsized(id)
	t.Readiness = f.readiness(id)
	t.ChildrenCount = len(f.children[id])
	_, t.IsLocked = f.activeLock(id)
	return t
}

func (f *forest) tree(id string) domain.TaskTreeNode {
	node := domain.TaskTreeNode{Task: f.task(id), Children: []domain.TaskTreeNode{}}
	for _, k := range f.children[id] {
		node.Children = append(node.Children, f.tree(k))
	}
	return node
}

// descendants reports whether every task below id is terminal and whether
// at least one of them is done.
func (f *forest) descendants(id string) (allTerminal, anyDone bool) {
	allTerminal = true
	var walk func(string)
	walk = func(id string) {
		for _, k := range f.children[id] {
			s := f.byID[k].Status
			if !s.Terminal() {
				allTerminal = false
			}
			if s == domain.StatusDone {
				anyDone = true
			}
			walk(k)
		}
	}
	walk(id)
	return allTerminal, anyDone
}

func (f *forest) withLock(id string) domain.TaskWithLockInfo {
	out := domain.TaskWithLockInfo{Task: f.task(id)}
	if l, ok := f.activeLock(id); ok {
		caller, purpose, expires := l.CallerLabel, string(l.LockPurpose), l.ExpiresAt
		out.LockCallerLabel = &caller
		out.LockPurpose = &purpose
		out.LockExpiresAt = &expires
	}
	return out
}

// sortForDiscovery orders by effective points with unsized last, then by
// creation time and id.
func sortForDiscovery[T any](items []T, task func(T) domain.Task) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := task(items[i]), task(items[j])
		switch {
		case a.EffectivePoints == nil && b.EffectivePoints != nil:
			return false
		case a.EffectivePoints != nil && b.EffectivePoints == nil:
			return true
		case a.EffectivePoints != nil && *a.EffectivePoints != *b.EffectivePoints:
			return *a.EffectivePoints < *b.EffectivePoints
		case a.CreatedAt != b.CreatedAt:
			return a.CreatedAt < b.CreatedAt
		}
		return a.ID < b.ID
	})
}

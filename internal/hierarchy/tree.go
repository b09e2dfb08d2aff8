// Package hierarchy turns flat root tasks plus per-row subtree queries into
// an expandable outline.
package hierarchy

import (
	"context"
	"strings"
	"sync"

	"chorus/internal/domain"
	"chorus/internal/query"
)

// TreeSource loads the subtree rooted at a task. With enabled false it must
// not fetch.
type TreeSource interface {
	TaskTree(ctx context.Context, id string, enabled bool) (query.Result[domain.TaskTreeNode], error)
}

// Row is one visible line of the outline.
type Row struct {
	Task        domain.Task `json:"task"`
	Depth       int         `json:"depth"`
	Path        string      `json:"path"`
	HasChildren bool        `json:"has_children"`
	Expanded    bool        `json:"expanded"`
	// Loading is set on an expanded row whose subtree has not arrived.
	Loading bool `json:"loading,omitempty"`
	// Err is the last subtree fetch error for an expanded row.
	Err error `json:"-"`
}

// Tree holds per-row expansion state. Rows are identified by the path of
// task ids from their root, so the same task under two parents expands
// independently.
type Tree struct {
	mu       sync.Mutex
	expanded map[string]bool
}

func New() *Tree {
	return &Tree{expanded: make(map[string]bool)}
}

// PathOf joins ancestor ids into a row path.
func PathOf(ids ...string) string { return strings.Join(ids, "/") }

func childPath(parent, id string) string {
	if parent == "" {
		return id
	}
	return parent + "/" + id
}

func (t *Tree) IsExpanded(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expanded[path]
}

// Toggle flips a row and returns its new state.
func (t *Tree) Toggle(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.expanded[path] {
		t.collapseLocked(path)
		return false
	}
	t.expanded[path] = true
	return true
}

func (t *Tree) Expand(path string) {
	t.mu.Lock()
	t.expanded[path] = true
	t.mu.Unlock()
}

// Collapse folds a row and forgets the expansion of everything beneath it.
// Cached subtrees are left alone.
func (t *Tree) Collapse(path string) {
	t.mu.Lock()
	t.collapseLocked(path)
	t.mu.Unlock()
}

func (t *Tree) collapseLocked(path string) {
	delete(t.expanded, path)
	prefix := path + "/"
	for p := range t.expanded {
		if strings.HasPrefix(p, prefix) {
			delete(t.expanded, p)
		}
	}
}

// Rows walks roots in the given order. Each expanded row with children
// queries its own subtree and lists the direct children one level deeper,
// in the order the server returned them.
func (t *Tree) Rows(ctx context.Context, src TreeSource, roots []domain.Task) []Row {
	var rows []Row
	for _, root := range roots {
		rows = t.appendRow(ctx, src, rows, root, "", 0)
	}
	return rows
}

func (t *Tree) appendRow(ctx context.Context, src TreeSource, rows []Row, task domain.Task, parent string, depth int) []Row {
	row := Row{
		Task:        task,
		Depth:       depth,
		Path:        childPath(parent, task.ID),
		HasChildren: task.ChildrenCount > 0,
	}
	row.Expanded = t.IsExpanded(row.Path)
	if !row.Expanded || !row.HasChildren {
		return append(rows, row)
	}

	res, err := src.TaskTree(ctx, task.ID, true)
	if err != nil {
		row.Err = err
	}
	if !res.HasData {
		row.Loading = err == nil
		return append(rows, row)
	}
	rows = append(rows, row)
	for _, child := range res.Data.Children {
		rows = t.appendRow(ctx, src, rows, child.Task, row.Path, depth+1)
	}
	return rows
}

// ExpandWhere repeatedly expands visible rows matching pick until the
// outline stops growing, then returns the final rows. Rows without
// children are never expanded.
func (t *Tree) ExpandWhere(ctx context.Context, src TreeSource, roots []domain.Task, pick func(Row) bool) []Row {
	for {
		rows := t.Rows(ctx, src, roots)
		changed := false
		for _, r := range rows {
			if r.HasChildren && !r.Expanded && pick(r) {
				t.Expand(r.Path)
				changed = true
			}
		}
		if !changed {
			return rows
		}
	}
}

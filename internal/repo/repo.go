package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"chorus/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// TimeFormat is the fixed-width UTC layout stored in every timestamp column,
// so string order equals time order.
const TimeFormat = "2006-01-02T15:04:05.000000Z"

// Timestamp formats t for storage.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// ParseTimestamp reads a stored timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// q runs against tx when one is open, otherwise against the pool.
func (r Repo) q(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return r.DB
}

type scanner interface {
	Scan(dest ...any) error
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func affected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Projects

const projectColumns = `id,name,description,created_at,updated_at`

func scanProject(row scanner) (domain.Project, error) {
	var p domain.Project
	var desc sql.NullString
	err := row.Scan(&p.ID, &p.Name, &desc, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	p.Description = stringPtr(desc)
	return p, err
}

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO projects(`+projectColumns+`) VALUES (?,?,?,?,?)`,
		p.ID, p.Name, nullableStringPtr(p.Description), p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	return scanProject(r.q(tx).QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
}

func (r Repo) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) UpdateProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	return affected(r.q(tx).ExecContext(ctx, `UPDATE projects SET name=?, description=?, updated_at=? WHERE id=?`,
		p.Name, nullableStringPtr(p.Description), p.UpdatedAt, p.ID))
}

// DeleteProject removes a project; its tasks go with it.
func (r Repo) DeleteProject(ctx context.Context, id string) error {
	return affected(r.DB.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id))
}

// ProjectStats holds the aggregates shown next to a project.
type ProjectStats struct {
	TaskCount       int
	PointsTotal     int
	PointsCompleted int
}

// ProjectStats aggregates every task of every project, keyed by project id.
func (r Repo) ProjectStats(ctx context.Context) (map[string]ProjectStats, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT project_id, COUNT(*), COALESCE(SUM(points),0), COALESCE(SUM(CASE WHEN status='done' THEN points ELSE 0 END),0)
FROM tasks GROUP BY project_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]ProjectStats{}
	for rows.Next() {
		var id string
		var s ProjectStats
		if err := rows.Scan(&id, &s.TaskCount, &s.PointsTotal, &s.PointsCompleted); err != nil {
			return nil, err
		}
		res[id] = s
	}
	return res, rows.Err()
}

// Tasks

// TaskRecord is a stored task: the read model's own columns plus the sizing
// and refinement state the API does not echo.
type TaskRecord struct {
	domain.Task
	PointsBreakdown  *string
	SizingConfidence *int
	NeedsRefinement  bool
	RefinementNotes  *string
}

const taskColumns = `id,project_id,parent_task_id,name,description,context,task_type,status,points,points_breakdown,sizing_confidence,needs_refinement,refinement_notes,position,created_at,updated_at`

func scanTask(row scanner) (TaskRecord, error) {
	var t TaskRecord
	var parentID, description, taskContext, breakdown, notes sql.NullString
	var points, confidence sql.NullInt64
	err := row.Scan(&t.ID, &t.ProjectID, &parentID, &t.Name, &description, &taskContext, &t.TaskType, &t.Status,
		&points, &breakdown, &confidence, &t.NeedsRefinement, &notes, &t.Position, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.ParentTaskID = stringPtr(parentID)
	t.Description = stringPtr(description)
	t.Context = stringPtr(taskContext)
	t.Points = intPtr(points)
	t.PointsBreakdown = stringPtr(breakdown)
	t.SizingConfidence = intPtr(confidence)
	t.RefinementNotes = stringPtr(notes)
	return t, nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t TaskRecord) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.ProjectID, nullableStringPtr(t.ParentTaskID), t.Name, nullableStringPtr(t.Description), nullableStringPtr(t.Context),
		t.TaskType, t.Status, nullableIntPtr(t.Points), nullableStringPtr(t.PointsBreakdown), nullableIntPtr(t.SizingConfidence),
		t.NeedsRefinement, nullableStringPtr(t.RefinementNotes), t.Position, t.CreatedAt, t.UpdatedAt)
	return err
}

// UpdateTask writes every mutable column of t.
func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t TaskRecord) error {
	return affected(r.q(tx).ExecContext(ctx, `UPDATE tasks SET name=?, description=?, context=?, task_type=?, status=?, points=?, points_breakdown=?, sizing_confidence=?, needs_refinement=?, refinement_notes=?, position=?, updated_at=? WHERE id=?`,
		t.Name, nullableStringPtr(t.Description), nullableStringPtr(t.Context), t.TaskType, t.Status,
		nullableIntPtr(t.Points), nullableStringPtr(t.PointsBreakdown), nullableIntPtr(t.SizingConfidence),
		t.NeedsRefinement, nullableStringPtr(t.RefinementNotes), t.Position, t.UpdatedAt, t.ID))
}

func (r Repo) GetTask(ctx context.Context, tx *sql.Tx, id string) (TaskRecord, error) {
	return scanTask(r.q(tx).QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
}

// DeleteTask removes a task and, through the cascade, its subtree.
func (r Repo) DeleteTask(ctx context.Context, id string) error {
	return affected(r.DB.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id))
}

// ListProjectTasks returns every task of a project, ordered by position.
func (r Repo) ListProjectTasks(ctx context.Context, tx *sql.Tx, projectID string) ([]TaskRecord, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE project_id=? ORDER BY position, created_at, id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []TaskRecord
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func siblingClause(parentID *string) (string, []any) {
	if parentID == nil {
		return "parent_task_id IS NULL", nil
	}
	return "parent_task_id=?", []any{*parentID}
}

// NextPosition returns one past the highest sibling position, or 0 when the
// task would be the first sibling.
func (r Repo) NextPosition(ctx context.Context, tx *sql.Tx, projectID string, parentID *string) (int, error) {
	clause, args := siblingClause(parentID)
	var maxPos sql.NullInt64
	err := r.q(tx).QueryRowContext(ctx, `SELECT MAX(position) FROM tasks WHERE project_id=? AND `+clause,
		append([]any{projectID}, args...)...).Scan(&maxPos)
	if err != nil {
		return 0, err
	}
	if !maxPos.Valid {
		return 0, nil
	}
	return int(maxPos.Int64) + 1, nil
}

// ShiftSiblings moves every sibling at or after from down one slot, skipping
// the task being placed.
func (r Repo) ShiftSiblings(ctx context.Context, tx *sql.Tx, projectID string, parentID *string, from int, skipID, updatedAt string) error {
	clause, args := siblingClause(parentID)
	args = append([]any{updatedAt, projectID}, args...)
	args = append(args, from, skipID)
	_, err := r.q(tx).ExecContext(ctx, `UPDATE tasks SET position=position+1, updated_at=? WHERE project_id=? AND `+clause+` AND position>=? AND id<>?`, args...)
	return err
}

// Locks

const lockColumns = `id,task_id,caller_label,lock_purpose,acquired_at,last_heartbeat_at,expires_at`

func scanLock(row scanner) (domain.Lock, error) {
	var l domain.Lock
	var heartbeat sql.NullString
	err := row.Scan(&l.ID, &l.TaskID, &l.CallerLabel, &l.LockPurpose, &l.AcquiredAt, &heartbeat, &l.ExpiresAt)
	if err == sql.ErrNoRows {
		return l, ErrNotFound
	}
	l.LastHeartbeatAt = stringPtr(heartbeat)
	return l, err
}

func (r Repo) GetLock(ctx context.Context, tx *sql.Tx, taskID string) (domain.Lock, error) {
	return scanLock(r.q(tx).QueryRowContext(ctx, `SELECT `+lockColumns+` FROM task_locks WHERE task_id=?`, taskID))
}

func (r Repo) InsertLock(ctx context.Context, tx *sql.Tx, l domain.Lock) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO task_locks(`+lockColumns+`) VALUES (?,?,?,?,?,?,?)`,
		l.ID, l.TaskID, l.CallerLabel, l.LockPurpose, l.AcquiredAt, nullableStringPtr(l.LastHeartbeatAt), l.ExpiresAt)
	return err
}

func (r Repo) TouchLock(ctx context.Context, tx *sql.Tx, taskID, heartbeatAt, expiresAt string) error {
	return affected(r.q(tx).ExecContext(ctx, `UPDATE task_locks SET last_heartbeat_at=?, expires_at=? WHERE task_id=?`,
		heartbeatAt, expiresAt, taskID))
}

func (r Repo) DeleteLock(ctx context.Context, tx *sql.Tx, taskID string) error {
	return affected(r.q(tx).ExecContext(ctx, `DELETE FROM task_locks WHERE task_id=?`, taskID))
}

// DeleteExpiredLocks removes locks whose expiry is before now and reports how
// many went.
func (r Repo) DeleteExpiredLocks(ctx context.Context, now string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM task_locks WHERE expires_at < ?`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListProjectLocks returns the locks on a project's tasks keyed by task id.
func (r Repo) ListProjectLocks(ctx context.Context, tx *sql.Tx, projectID string) (map[string]domain.Lock, error) {
	cols := make([]string, 0, 7)
	for _, c := range strings.Split(lockColumns, ",") {
		cols = append(cols, "l."+c)
	}
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+strings.Join(cols, ",")+` FROM task_locks l JOIN tasks t ON t.id=l.task_id WHERE t.project_id=?`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]domain.Lock{}
	for rows.Next() {
		l, err := scanLock(rows)
		if err != nil {
			return nil, err
		}
		res[l.TaskID] = l
	}
	return res, rows.Err()
}

// Work log

func (r Repo) InsertWorkLog(ctx context.Context, tx *sql.Tx, e domain.WorkLogEntry) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO work_log_entries(id,task_id,author,operation,content,created_at) VALUES (?,?,?,?,?,?)`,
		e.ID, e.TaskID, nullableStringPtr(e.Author), e.Operation, e.Content, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert work log entry: %w", err)
	}
	return nil
}

func (r Repo) ListWorkLog(ctx context.Context, taskID string) ([]domain.WorkLogEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,task_id,author,operation,content,created_at FROM work_log_entries WHERE task_id=? ORDER BY created_at, rowid`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.WorkLogEntry{}
	for rows.Next() {
		var e domain.WorkLogEntry
		var author sql.NullString
		if err := rows.Scan(&e.ID, &e.TaskID, &author, &e.Operation, &e.Content, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Author = stringPtr(author)
		res = append(res, e)
	}
	return res, rows.Err()
}

// Commits

func (r Repo) InsertCommit(ctx context.Context, c domain.Commit) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO task_commits(id,task_id,author,commit_hash,message,committed_at) VALUES (?,?,?,?,?,?)`,
		c.ID, c.TaskID, nullableStringPtr(c.Author), c.CommitHash, nullableStringPtr(c.Message), c.CommittedAt)
	return err
}

func (r Repo) ListCommits(ctx context.Context, taskID string) ([]domain.Commit, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,task_id,author,commit_hash,message,committed_at FROM task_commits WHERE task_id=? ORDER BY committed_at, rowid`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Commit{}
	for rows.Next() {
		var c domain.Commit
		var author, message sql.NullString
		if err := rows.Scan(&c.ID, &c.TaskID, &author, &c.CommitHash, &message, &c.CommittedAt); err != nil {
			return nil, err
		}
		c.Author = stringPtr(author)
		c.Message = stringPtr(message)
		res = append(res, c)
	}
	return res, rows.Err()
}

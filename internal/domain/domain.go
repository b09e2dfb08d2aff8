package domain

type TaskType string

const (
	TaskTypeFeature  TaskType = "feature"
	TaskTypeBug      TaskType = "bug"
	TaskTypeTechDebt TaskType = "tech_debt"
)

var TaskTypes = []TaskType{TaskTypeFeature, TaskTypeBug, TaskTypeTechDebt}

type Status string

const (
	StatusTodo   Status = "todo"
	StatusDoing  Status = "doing"
	StatusDone   Status = "done"
	StatusWontDo Status = "wont_do"
)

// Statuses lists every status in board order.
var Statuses = []Status{StatusTodo, StatusDoing, StatusDone, StatusWontDo}

// Terminal reports whether no further work is expected on a task in this status.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusWontDo
}

type Readiness string

const (
	ReadinessNeedsRefinement   Readiness = "needs_refinement"
	ReadinessNeedsSizing       Readiness = "needs_sizing"
	ReadinessNeedsBreakdown    Readiness = "needs_breakdown"
	ReadinessBlockedByChildren Readiness = "blocked_by_children"
	ReadinessReady             Readiness = "ready"
)

var Readinesses = []Readiness{
	ReadinessNeedsRefinement,
	ReadinessNeedsSizing,
	ReadinessNeedsBreakdown,
	ReadinessBlockedByChildren,
	ReadinessReady,
}

type LockPurpose string

const (
	LockPurposeSizing         LockPurpose = "sizing"
	LockPurposeBreakdown      LockPurpose = "breakdown"
	LockPurposeRefinement     LockPurpose = "refinement"
	LockPurposeImplementation LockPurpose = "implementation"
)

type Operation string

const (
	OperationSizing         Operation = "sizing"
	OperationBreakdown      Operation = "breakdown"
	OperationRefinement     Operation = "refinement"
	OperationImplementation Operation = "implementation"
	OperationNote           Operation = "note"
)

type Project struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
}

// ProjectDetail is a project with aggregate task counts.
type ProjectDetail struct {
	Project
	TaskCount       int `json:"task_count"`
	PointsTotal     int `json:"points_total"`
	PointsCompleted int `json:"points_completed"`
}

// Task is the server's task read model. The derived fields are computed by
// the server and are never recalculated by the client.
type Task struct {
	ID           string   `json:"id"`
	ProjectID    string   `json:"project_id"`
	ParentTaskID *string  `json:"parent_task_id"`
	Name         string   `json:"name"`
	Description  *string  `json:"description"`
	Context      *string  `json:"context"`
	TaskType     TaskType `json:"task_type" enum:"feature,bug,tech_debt"`
	Status       Status   `json:"status" enum:"todo,doing,done,wont_do"`
	Points       *int     `json:"points"`
	Position     int      `json:"position"`
	CreatedAt    string   `json:"created_at" format:"date-time"`
	UpdatedAt    string   `json:"updated_at" format:"date-time"`

	EffectivePoints *int      `json:"effective_points"`
	RolledUpPoints  *int      `json:"rolled_up_points"`
	UnsizedChildren int       `json:"unsized_children"`
	Readiness       Readiness `json:"readiness"`
	ChildrenCount   int       `json:"children_count"`
	IsLocked        bool      `json:"is_locked"`
}

// IsRoot reports whether the task has no parent.
func (t Task) IsRoot() bool {
	return t.ParentTaskID == nil
}

// TaskTreeNode is a task with its full subtree in server order.
type TaskTreeNode struct {
	Task
	Children []TaskTreeNode `json:"children"`
}

// TaskWithLockInfo is a task decorated with its current lock, if any.
type TaskWithLockInfo struct {
	Task
	LockCallerLabel *string `json:"lock_caller_label"`
	LockPurpose     *string `json:"lock_purpose"`
	LockExpiresAt   *string `json:"lock_expires_at"`
}

type Lock struct {
	ID              string      `json:"id"`
	TaskID          string      `json:"task_id"`
	CallerLabel     string      `json:"caller_label"`
	LockPurpose     LockPurpose `json:"lock_purpose" enum:"sizing,breakdown,refinement,implementation"`
	AcquiredAt      string      `json:"acquired_at" format:"date-time"`
	LastHeartbeatAt *string     `json:"last_heartbeat_at"`
	ExpiresAt       string      `json:"expires_at" format:"date-time"`
}

type WorkLogEntry struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	Author    *string   `json:"author"`
	Operation Operation `json:"operation"`
	Content   string    `json:"content"`
	CreatedAt string    `json:"created_at" format:"date-time"`
}

type Commit struct {
	ID          string  `json:"id"`
	TaskID      string  `json:"task_id"`
	Author      *string `json:"author"`
	CommitHash  string  `json:"commit_hash"`
	Message     *string `json:"message"`
	CommittedAt string  `json:"committed_at" format:"date-time"`
}

// ShortHash returns the abbreviated commit hash shown in listings.
func (c Commit) ShortHash() string {
	if len(c.CommitHash) <= 7 {
		return c.CommitHash
	}
	return c.CommitHash[:7]
}

type ProjectCreate struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

type ProjectUpdate struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

type TaskCreate struct {
	Name        string   `json:"name"`
	Description *string  `json:"description,omitempty"`
	Context     *string  `json:"context,omitempty"`
	TaskType    TaskType `json:"task_type"`
	Position    *int     `json:"position,omitempty"`
}

type TaskUpdate struct {
	Name        *string   `json:"name,omitempty"`
	Description *string   `json:"description,omitempty"`
	Context     *string   `json:"context,omitempty"`
	TaskType    *TaskType `json:"task_type,omitempty"`
}

type WorkLogCreate struct {
	Author    *string   `json:"author,omitempty"`
	Operation Operation `json:"operation"`
	Content   string    `json:"content"`
}

type CommitCreate struct {
	CommitHash  string  `json:"commit_hash"`
	Message     *string `json:"message,omitempty"`
	Author      *string `json:"author,omitempty"`
	CommittedAt string  `json:"committed_at" format:"date-time"`
}

type LockAcquire struct {
	CallerLabel string      `json:"caller_label"`
	LockPurpose LockPurpose `json:"lock_purpose"`
}

// DimensionScore is one scored axis of a sizing.
type DimensionScore struct {
	Score     int    `json:"score"`
	Reasoning string `json:"reasoning"`
}

type SizingRequest struct {
	ScopeClarity           DimensionScore `json:"scope_clarity"`
	DecisionPoints         DimensionScore `json:"decision_points"`
	ContextWindowDemand    DimensionScore `json:"context_window_demand"`
	VerificationComplexity DimensionScore `json:"verification_complexity"`
	DomainSpecificity      DimensionScore `json:"domain_specificity"`
	Confidence             int            `json:"confidence"`
	RiskFactors            []string       `json:"risk_factors,omitempty"`
	BreakdownSuggestions   *string        `json:"breakdown_suggestions,omitempty"`
	ScoredBy               *string        `json:"scored_by,omitempty"`
	WorkLogContent         string         `json:"work_log_content"`
	Author                 *string        `json:"author,omitempty"`
}

// Dimensions returns the scored axes keyed by their wire name.
func (r SizingRequest) Dimensions() map[string]DimensionScore {
	return map[string]DimensionScore{
		"scope_clarity":           r.ScopeClarity,
		"decision_points":         r.DecisionPoints,
		"context_window_demand":   r.ContextWindowDemand,
		"verification_complexity": r.VerificationComplexity,
		"domain_specificity":      r.DomainSpecificity,
	}
}

type RefineRequest struct {
	Description    *string `json:"description,omitempty"`
	Context        *string `json:"context,omitempty"`
	WorkLogContent string  `json:"work_log_content"`
	Author         *string `json:"author,omitempty"`
}

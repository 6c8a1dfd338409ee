package domain

// Card states. StateConfronting is transient: it exists only inside a live
// confrontation session and is never written to storage.
const (
	StateUncommitted = "uncommitted"
	StateConfronting = "confronting"
	StateExecuted    = "executed"
	StateShadowed    = "shadowed"
	StateDiscarded   = "discarded"
)

// Decisions a confrontation can end with.
const (
	DecisionExecute = "execute"
	DecisionShadow  = "shadow"
	DecisionDiscard = "discard"
)

// Outcomes of leaving the executed state.
const (
	ResultStopped = "stopped"
	ResultAborted = "aborted"
)

// Coarse system pressure labels, in the aggregator's priority order.
const (
	SystemFocused   = "focused"
	SystemDeferred  = "deferred"
	SystemVoid      = "void"
	SystemStable    = "stable"
	SystemTurbulent = "turbulent"
	SystemCritical  = "critical"
)

// Card is one open loop. The payload fields (source, platform, titles,
// summary, category) are opaque: they are supplied by capture and AI
// collaborators and never interpreted here.
type Card struct {
	ID                  string   `json:"id"`
	State               string   `json:"state" enum:"uncommitted,executed,shadowed,discarded"`
	SourceType          string   `json:"source_type,omitempty"`
	SourceContent       string   `json:"source_content,omitempty"`
	PlatformName        string   `json:"platform_name,omitempty"`
	ExtractedTitle      string   `json:"extracted_title,omitempty"`
	AITitle             string   `json:"ai_title,omitempty"`
	AISummary           string   `json:"ai_summary,omitempty"`
	Category            string   `json:"category,omitempty"`
	CreatedAt           string   `json:"created_at" format:"date-time"`
	ConfrontedAt        *string  `json:"confronted_at,omitempty" format:"date-time"`
	TotalConfrontations int      `json:"total_confrontations"`
	Decision            *string  `json:"decision,omitempty" enum:"execute,shadow,discard"`
	DecidedAt           *string  `json:"decided_at,omitempty" format:"date-time"`
	ExecuteStartedAt    *string  `json:"execute_started_at,omitempty" format:"date-time"`
	ExecuteDuration     int      `json:"execute_duration"`
	StartAction         string   `json:"start_action,omitempty"`
	StopRule            string   `json:"stop_rule,omitempty"`
	AllowedDomains      []string `json:"allowed_domains,omitempty"`
	ExecuteResult       *string  `json:"execute_result,omitempty" enum:"stopped,aborted"`
}

// SystemMetrics is a projection of the card collection. It has no lifecycle
// of its own and is never stored.
type SystemMetrics struct {
	State            string  `json:"state" enum:"focused,deferred,void,stable,turbulent,critical"`
	UncommittedCount int     `json:"uncommitted_count"`
	ShadowedCount    int     `json:"shadowed_count"`
	ExecutingCount   int     `json:"executing_count"`
	TotalCaptures    int     `json:"total_captures"`
	TotalOpenLoops   int     `json:"total_open_loops"`
	LastClosedAt     *string `json:"last_closed_at,omitempty" format:"date-time"`
}

type Event struct {
	ID      int64  `json:"id"`
	TS      string `json:"ts" format:"date-time"`
	Type    string `json:"type"`
	CardID  string `json:"card_id,omitempty"`
	ActorID string `json:"actor_id"`
	Payload string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

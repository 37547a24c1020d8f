package domain

// Campaign statuses.
const (
	CampaignActive    = "active"
	CampaignPaused    = "paused"
	CampaignCompleted = "completed"
)

// Schedule types.
const (
	ScheduleOnce   = "once"
	ScheduleDaily  = "daily"
	ScheduleWeekly = "weekly"
)

type Campaign struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id"`
	Name      string        `json:"name"`
	Message   string        `json:"message"`
	MediaURL  string        `json:"media_url,omitempty"`
	Groups    []string      `json:"groups"`
	Schedule  Schedule      `json:"schedule"`
	Config    SendConfig    `json:"config"`
	Stats     CampaignStats `json:"stats"`
	Status    string        `json:"status" enum:"active,paused,completed"`
	CreatedAt string        `json:"created_at" format:"date-time"`
	UpdatedAt string        `json:"updated_at" format:"date-time"`
}

type Schedule struct {
	Type       string `json:"type" enum:"once,daily,weekly"`
	Time       string `json:"time"`
	DaysOfWeek []int  `json:"days_of_week,omitempty"`
}

type SendConfig struct {
	MinDelaySec int              `json:"min_delay_sec"`
	MaxDelaySec int              `json:"max_delay_sec"`
	UseSpintax  bool             `json:"use_spintax"`
	Window      *OperatingWindow `json:"operating_window,omitempty"`
}

// OperatingWindow delimits the local hours during which a campaign may send.
// StartHour > EndHour describes an overnight window.
type OperatingWindow struct {
	StartHour int `json:"start_hour"`
	EndHour   int `json:"end_hour"`
}

type CampaignStats struct {
	TotalSent   int    `json:"total_sent"`
	TotalFailed int    `json:"total_failed"`
	LastRunAt   string `json:"last_run_at,omitempty" format:"date-time"`
	NextRunAt   string `json:"next_run_at,omitempty" format:"date-time"`
}

// RunResult is the outcome of one executed batch, applied to a campaign's
// stats as a single read-modify-write.
type RunResult struct {
	Sent      int
	Failed    int
	LastRunAt string
	NextRunAt string
	Status    string
}

type User struct {
	ID        string `json:"id"`
	BaseDepth int    `json:"base_depth"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

// DepthBoost is a time-bounded addition to a user's base depth level.
// Expired boosts are excluded by the resolver, never deleted.
type DepthBoost struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	DepthDelta int    `json:"depth_delta"`
	ExpiresAt  string `json:"expires_at" format:"date-time"`
	GrantedBy  string `json:"granted_by,omitempty"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

// CapabilityContext is the full parameter set derived from a depth level.
// Every field is a pure function of the clamped level; it is never persisted.
type CapabilityContext struct {
	DepthLevel               int  `json:"depth_level"`
	HorizonHours             int  `json:"horizon_hours"`
	MemoryDepth              int  `json:"memory_depth"`
	InferencePasses          int  `json:"inference_passes"`
	ConfidenceThreshold      int  `json:"confidence_threshold"`
	SimulationAggressiveness int  `json:"simulation_aggressiveness"`
	VariationDepth           int  `json:"variation_depth"`
	CanPredictTrends         bool `json:"can_predict_trends"`
	CanAnalyzeHiddenSignals  bool `json:"can_analyze_hidden_signals"`
	CanAutoReplyStrategic    bool `json:"can_auto_reply_strategic"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	UserID     string `json:"user_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

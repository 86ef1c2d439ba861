package domain

// Case phases.
const (
	PhaseIntake    = "INTAKE"
	PhaseDocuments = "DOCUMENTS"
	PhaseSent      = "SENT"
	PhaseClosed    = "CLOSED"
)

// Case lifecycle statuses.
const (
	LifecycleActive  = "ACTIVE"
	LifecycleWaiting = "WAITING"
	LifecycleClosed  = "CLOSED"
)

// Conversation states derived by the state classifier.
const (
	ChatStateGathering          = "GATHERING"
	ChatStateWaitingForEvidence = "WAITING_FOR_EVIDENCE"
	ChatStateReady              = "READY"
	ChatStateBlocked            = "BLOCKED"
)

// Generated document statuses.
const (
	DocumentPending   = "PENDING"
	DocumentCompleted = "COMPLETED"
	DocumentFailed    = "FAILED"
)

// Timeline event types.
const (
	EventStrategyFinalised        = "STRATEGY_FINALISED"
	EventDocumentPlanCreated      = "DOCUMENT_PLAN_CREATED"
	EventDocumentsGenerating      = "DOCUMENTS_GENERATING"
	EventDocumentGenerated        = "DOCUMENT_GENERATED"
	EventDocumentGenerationFailed = "DOCUMENT_GENERATION_FAILED"
	EventDocumentSent             = "DOCUMENT_SENT"
	EventFollowUpGenerated        = "FOLLOW_UP_GENERATED"
	EventDeadlineMissed           = "DEADLINE_MISSED"
	EventCaseClosed               = "CASE_CLOSED"
	EventStrategyReset            = "STRATEGY_RESET"
)

type User struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type Case struct {
	ID              string  `json:"id"`
	UserID          string  `json:"user_id"`
	Title           string  `json:"title"`
	StrategyLocked  bool    `json:"strategy_locked"`
	Restricted      bool    `json:"restricted"`
	Phase           string  `json:"phase" enum:"INTAKE,DOCUMENTS,SENT,CLOSED"`
	ChatState       string  `json:"chat_state" enum:"GATHERING,WAITING_FOR_EVIDENCE,READY,BLOCKED"`
	LifecycleStatus string  `json:"lifecycle_status" enum:"ACTIVE,WAITING,CLOSED"`
	WaitingUntil    *string `json:"waiting_until,omitempty" format:"date-time"`
	EvidenceSeq     int     `json:"evidence_seq"`
	CreatedAt       string  `json:"created_at" format:"date-time"`
	UpdatedAt       string  `json:"updated_at" format:"date-time"`
}

// Strategy is the per-case record of facts extracted by the conversational agent.
type Strategy struct {
	CaseID            string   `json:"case_id"`
	DisputeType       string   `json:"dispute_type,omitempty"`
	KeyFacts          []string `json:"key_facts"`
	EvidenceMentioned []string `json:"evidence_mentioned"`
	DesiredOutcome    string   `json:"desired_outcome,omitempty"`
	UpdatedAt         string   `json:"updated_at,omitempty" format:"date-time"`
}

// StrategyDelta is one turn's worth of extracted changes. Facts and evidence
// mentions are appended; dispute type and outcome replace the current value when set.
type StrategyDelta struct {
	DisputeType    *string  `json:"dispute_type,omitempty"`
	AddFacts       []string `json:"add_facts,omitempty"`
	AddEvidence    []string `json:"add_evidence,omitempty"`
	DesiredOutcome *string  `json:"desired_outcome,omitempty"`
}

type EvidenceItem struct {
	ID           string  `json:"id"`
	CaseID       string  `json:"case_id"`
	Index        int     `json:"index"`
	FileRef      string  `json:"file_ref"`
	FileType     string  `json:"file_type"`
	Title        string  `json:"title"`
	Description  *string `json:"description,omitempty"`
	EvidenceDate *string `json:"evidence_date,omitempty"`
	UploadedBy   string  `json:"uploaded_by"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
}

type DocumentPlan struct {
	ID              string              `json:"id"`
	CaseID          string              `json:"case_id"`
	ComplexityLevel string              `json:"complexity_level" enum:"LOW,MEDIUM,HIGH"`
	ComplexityScore int                 `json:"complexity_score"`
	DocumentType    string              `json:"document_type" enum:"BASIC,INTERMEDIATE,COMPREHENSIVE"`
	AllowedTypes    []string            `json:"allowed_types"`
	BlockedTypes    []string            `json:"blocked_types"`
	Routing         Routing             `json:"routing"`
	Documents       []GeneratedDocument `json:"documents,omitempty"`
	CreatedAt       string              `json:"created_at" format:"date-time"`
}

type Routing struct {
	Jurisdiction  string   `json:"jurisdiction"`
	Forum         string   `json:"forum"`
	Prerequisites []string `json:"prerequisites"`
	TimeLimit     string   `json:"time_limit,omitempty"`
	Deadline      *string  `json:"deadline,omitempty" format:"date-time"`
}

type GeneratedDocument struct {
	ID         string  `json:"id"`
	PlanID     string  `json:"plan_id"`
	CaseID     string  `json:"case_id"`
	Type       string  `json:"type"`
	Title      string  `json:"title"`
	Position   int     `json:"position"`
	Required   bool    `json:"required"`
	Status     string  `json:"status" enum:"PENDING,COMPLETED,FAILED"`
	RetryCount int     `json:"retry_count"`
	LastError  *string `json:"last_error,omitempty"`
	FileRef    *string `json:"file_ref,omitempty"`
	Content    string  `json:"content,omitempty"`
	SentAt     *string `json:"sent_at,omitempty" format:"date-time"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
	UpdatedAt  string  `json:"updated_at" format:"date-time"`
}

type TimelineEvent struct {
	ID                int64   `json:"id"`
	CaseID            string  `json:"case_id"`
	Type              string  `json:"type"`
	Description       string  `json:"description"`
	RelatedDocumentID *string `json:"related_document_id,omitempty"`
	OccurredAt        string  `json:"occurred_at" format:"date-time"`
	CreatedAt         string  `json:"created_at" format:"date-time"`
}

type Notification struct {
	ID        string  `json:"id"`
	CaseID    string  `json:"case_id"`
	UserID    string  `json:"user_id"`
	Type      string  `json:"type"`
	Message   string  `json:"message"`
	ReadAt    *string `json:"read_at,omitempty" format:"date-time"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

type APIKey struct {
	ID         string  `json:"id"`
	ActorID    string  `json:"actor_id"`
	Name       string  `json:"name,omitempty"`
	Role       string  `json:"role"`
	KeyHash    string  `json:"-"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
	LastUsedAt *string `json:"last_used_at,omitempty" format:"date-time"`
}

// Roles.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

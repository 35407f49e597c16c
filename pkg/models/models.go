// Package models defines the persisted entities of the regulatory watch
// system: Regulation, Rule, Document, DocumentRuleMapping, ComplianceAlert,
// Source and RegulationSourceLog.
package models

import "time"

// RegulationStatus is the lifecycle state of a Regulation row.
type RegulationStatus string

const (
	RegulationActive     RegulationStatus = "active"
	RegulationDraft      RegulationStatus = "draft"
	RegulationSuperseded RegulationStatus = "superseded"
)

// Regulation is a named legal act identified by a stable CELEX id.
type Regulation struct {
	ID                int64            `json:"id"`
	Name              string           `json:"name"`
	CelexID           string           `json:"celex_id"`
	Version           string           `json:"version"`
	ExpressionVersion string           `json:"expression_version,omitempty"`
	WorkDate          *time.Time       `json:"work_date,omitempty"`
	EffectiveDate     time.Time        `json:"effective_date"`
	SourceURL         string           `json:"source_url"`
	LastUpdated       time.Time        `json:"last_updated"`
	Status            RegulationStatus `json:"status"`
	ContentHash       string           `json:"content_hash"`
}

// RiskLevel classifies a Rule's compliance severity.
type RiskLevel string

const (
	RiskCritical RiskLevel = "critical"
	RiskHigh     RiskLevel = "high"
	RiskMedium   RiskLevel = "medium"
	RiskLow      RiskLevel = "low"
)

// Rule is a node in an act's Article/Annex hierarchy.
type Rule struct {
	ID             int64      `json:"id"`
	RegulationID   int64      `json:"regulation_id"`
	SectionCode    string     `json:"section_code"`
	Title          *string    `json:"title,omitempty"`
	Content        string     `json:"content"`
	RiskLevel      RiskLevel  `json:"risk_level"`
	Version        string     `json:"version"`
	ParentRuleID   *int64     `json:"parent_rule_id,omitempty"`
	EffectiveDate  time.Time  `json:"effective_date"`
	LastModified   time.Time  `json:"last_modified"`
	OrderIndex     string     `json:"order_index"`
	IngestedAt     time.Time  `json:"ingested_at"`
}

// DocumentType classifies an ingested compliance artifact.
type DocumentType string

const (
	DocumentRiskAssessment DocumentType = "risk_assessment"
	DocumentTrainingData   DocumentType = "training_data"
	DocumentValidation     DocumentType = "validation"
	DocumentIncidentLog    DocumentType = "incident_log"
)

// ComplianceStatus is the review state of a Document.
type ComplianceStatus string

const (
	StatusCompliant    ComplianceStatus = "compliant"
	StatusOutdated     ComplianceStatus = "outdated"
	StatusUnderReview  ComplianceStatus = "under_review"
	StatusNonCompliant ComplianceStatus = "non_compliant"
)

// Document is an ingested compliance artifact (risk assessment, training
// data description, validation report, incident log, ...).
type Document struct {
	ID                int64            `json:"id"`
	Filename          string           `json:"filename"`
	FilePath          string           `json:"file_path"`
	ExtractedText     string           `json:"extracted_text"`
	AISystemName      string           `json:"ai_system_name"`
	DocumentType       DocumentType     `json:"document_type"`
	ComplianceStatus  ComplianceStatus `json:"compliance_status"`
	StorageTier       string           `json:"storage_tier"`
	CreatedAt         time.Time        `json:"created_at"`
	LastModified      time.Time        `json:"last_modified"`
}

// MappedBy identifies how a DocumentRuleMapping was created.
type MappedBy string

const (
	MappedByAuto       MappedBy = "auto"
	MappedByManual     MappedBy = "manual"
	MappedByAISuggest  MappedBy = "ai_suggested"
)

// DocumentRuleMapping is a confidence-scored edge from Document to Rule.
type DocumentRuleMapping struct {
	ID              int64     `json:"id"`
	DocumentID      int64     `json:"document_id"`
	RuleID          int64     `json:"rule_id"`
	ConfidenceScore float64   `json:"confidence_score"`
	MappedBy        MappedBy  `json:"mapped_by"`
	MappedAt        time.Time `json:"mapped_at"`
	LastVerified    time.Time `json:"last_verified"`
}

// AlertType enumerates the kinds of ComplianceAlert this system raises.
type AlertType string

const (
	AlertRuleUpdated      AlertType = "rule_updated"
	AlertDocumentOutdated AlertType = "document_outdated"
	AlertNewRequirement   AlertType = "new_requirement"
	AlertPressRelease     AlertType = "press_release"
	AlertRSSUpdate        AlertType = "rss_update"
)

// AlertPriority is the urgency attached to a ComplianceAlert.
type AlertPriority string

const (
	PriorityUrgent AlertPriority = "urgent"
	PriorityHigh   AlertPriority = "high"
	PriorityMedium AlertPriority = "medium"
	PriorityLow    AlertPriority = "low"
)

// ComplianceAlert is a surfaced event for downstream compliance workflows.
type ComplianceAlert struct {
	ID         int64         `json:"id"`
	AlertType  AlertType     `json:"alert_type"`
	Priority   AlertPriority `json:"priority"`
	Message    string        `json:"message"`
	DocumentID *int64        `json:"document_id,omitempty"`
	RuleID     *int64        `json:"rule_id,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// SourceType identifies the transport/protocol used to poll a Source.
type SourceType string

const (
	SourceTypeELISPARQL SourceType = "eli_sparql"
	SourceTypeRSS       SourceType = "rss"
	SourceTypeHTML      SourceType = "html"
	SourceTypePressAPI  SourceType = "press_api"
)

// Source is a poll target configured via the sources YAML (spec.md §6).
type Source struct {
	ID           string            `json:"id" yaml:"id"`
	URL          string            `json:"url" yaml:"url"`
	Type         SourceType        `json:"type" yaml:"type"`
	Freq         string            `json:"freq" yaml:"freq"`
	Active       bool              `json:"active" yaml:"active"`
	LastFetched  *time.Time        `json:"last_fetched,omitempty"`
	Extra        map[string]string `json:"extra,omitempty" yaml:"-"`
}

// FetchStatus is the outcome of one fetch attempt.
type FetchStatus string

const (
	FetchSuccess FetchStatus = "success"
	FetchError   FetchStatus = "error"
)

// FetchMode records which retrieval path produced the fetched text.
type FetchMode string

const (
	FetchModeSPARQLItem        FetchMode = "sparql_item"
	FetchModeSPARQLMetaHTML    FetchMode = "sparql_meta_html_text"
	FetchModeHTMLFallback      FetchMode = "html_fallback"
	FetchModeHTML              FetchMode = "html"
	FetchModeRSSFeed           FetchMode = "rss_feed"
	FetchModeRSSItem           FetchMode = "rss_item"
)

// RegulationSourceLog is one append-only row per fetch attempt.
type RegulationSourceLog struct {
	ID              int64       `json:"id"`
	SourceID        string      `json:"source_id"`
	Status          FetchStatus `json:"status"`
	FetchedAt       time.Time   `json:"fetched_at"`
	ContentHash     string      `json:"content_hash,omitempty"`
	ResponseTime    float64     `json:"response_time"`
	ErrorMessage    string      `json:"error_message,omitempty"`
	BytesDownloaded int64       `json:"bytes_downloaded"`
	FetchMode       FetchMode   `json:"fetch_mode,omitempty"`
}

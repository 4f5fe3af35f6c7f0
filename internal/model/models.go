package model

import "encoding/json"

// RiskLevel is the severity classification assigned by the evidence engine.
type RiskLevel string

const (
	RiskCritical   RiskLevel = "CRITICAL"
	RiskHigh       RiskLevel = "HIGH"
	RiskModerate   RiskLevel = "MODERATE"
	RiskLow        RiskLevel = "LOW"
	RiskNegligible RiskLevel = "NEGLIGIBLE"
)

// Valid reports whether r is a member of the closed risk-level set.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskCritical, RiskHigh, RiskModerate, RiskLow, RiskNegligible:
		return true
	}
	return false
}

// UrgencyLevel is the response-urgency classification assigned by the engine.
type UrgencyLevel string

const (
	UrgencyImmediate UrgencyLevel = "IMMEDIATE"
	UrgencyHigh      UrgencyLevel = "HIGH"
	UrgencyRoutine   UrgencyLevel = "ROUTINE"
)

// Valid reports whether u is a member of the closed urgency set.
func (u UrgencyLevel) Valid() bool {
	switch u {
	case UrgencyImmediate, UrgencyHigh, UrgencyRoutine:
		return true
	}
	return false
}

// CaseStatus tracks an incident case through its lifecycle. Any status may
// follow any status; the lifecycle deliberately has no transition graph.
type CaseStatus string

const (
	StatusPending          CaseStatus = "PENDING"
	StatusAcknowledged     CaseStatus = "ACKNOWLEDGED"
	StatusInvestigating    CaseStatus = "INVESTIGATING"
	StatusAssigned         CaseStatus = "ASSIGNED"
	StatusActionInProgress CaseStatus = "ACTION_IN_PROGRESS"
	StatusResolved         CaseStatus = "RESOLVED"
	StatusArchived         CaseStatus = "ARCHIVED"
	StatusEscalated        CaseStatus = "ESCALATED"
	StatusFalseReport      CaseStatus = "FALSE_REPORT"
)

// Valid reports whether s is a member of the closed status set.
func (s CaseStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAcknowledged, StatusInvestigating,
		StatusAssigned, StatusActionInProgress, StatusResolved,
		StatusArchived, StatusEscalated, StatusFalseReport:
		return true
	}
	return false
}

// SourceEngine identifies which submission channel produced a case.
// EVIDENCE_HUB cases require an explicit secure-access grant before their
// media may be viewed by an admin.
type SourceEngine string

const (
	SourceDisasterAI  SourceEngine = "DISASTER_AI"
	SourceCivicGuard  SourceEngine = "CIVIC_GUARD"
	SourceEvidenceHub SourceEngine = "EVIDENCE_HUB"
)

// Valid reports whether e is a member of the closed source-engine set.
func (e SourceEngine) Valid() bool {
	switch e {
	case SourceDisasterAI, SourceCivicGuard, SourceEvidenceHub:
		return true
	}
	return false
}

// EvidenceType identifies which media field carries the evidence.
type EvidenceType string

const (
	EvidenceImage EvidenceType = "IMAGE"
	EvidenceVideo EvidenceType = "VIDEO"
	EvidenceAudio EvidenceType = "AUDIO"
)

// Valid reports whether t is a member of the closed evidence-type set.
func (t EvidenceType) Valid() bool {
	switch t {
	case EvidenceImage, EvidenceVideo, EvidenceAudio:
		return true
	}
	return false
}

// Role classifies a session profile. Fixed at issuance.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleCitizen Role = "CITIZEN"
	RoleGuest   Role = "GUEST"
)

// Valid reports whether r is a member of the closed role set.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleCitizen, RoleGuest:
		return true
	}
	return false
}

// Recognized audit-trail action tags. Other free-text tags are allowed but
// carry untyped details.
const (
	ActionStatusUpdate        = "STATUS_UPDATE"
	ActionSecureAccessGranted = "SECURE_ACCESS_GRANTED"
)

// GeoLocation pins a case to a point within a supported city.
type GeoLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	City      string  `json:"city"`
	Region    string  `json:"region,omitempty"`
	Address   string  `json:"address,omitempty"`
}

// AIRiskAnalysis is the structured classifier output embedded in a case.
// It is write-once: attached at creation and never mutated afterward.
type AIRiskAnalysis struct {
	HazardType               string       `json:"hazardType"`
	RiskLevel                RiskLevel    `json:"riskLevel"`
	ConfidenceScore          float64      `json:"confidenceScore"`
	ImpactSeverity           int          `json:"impactSeverity"`
	ImpactRadius             string       `json:"impactRadius"`
	UrgencyLevel             UrgencyLevel `json:"urgencyLevel"`
	SafetyRecommendation     []string     `json:"safetyRecommendation"`
	HumanReadableExplanation string       `json:"humanReadableExplanation"`
	RiskFactors              []string     `json:"riskFactors"`
	DetectedObjects          []string     `json:"detectedObjects,omitempty"`
	MisconductPatterns       []string     `json:"misconductPatterns,omitempty"`
	SentimentScore           *float64     `json:"sentimentScore,omitempty"`
}

// StatusChange is one entry of a case's append-only status history.
type StatusChange struct {
	Status    CaseStatus `json:"status"`
	Timestamp int64      `json:"timestamp"`
	User      string     `json:"user"`
}

// IncidentCase is the central entity: one submitted incident or evidence
// record with its attached analysis and status history.
//
// History is monotonic: one entry is appended per committed status
// transition and entries are never reordered or deleted. The last history
// entry always matches Status. Revision increases by one on every committed
// write so multi-client callers can detect lost updates.
type IncidentCase struct {
	ID                string         `json:"id"`
	Timestamp         int64          `json:"timestamp"` // epoch milliseconds
	SourceEngine      SourceEngine   `json:"sourceEngine"`
	ImageURL          string         `json:"imageUrl,omitempty"`
	VideoURL          string         `json:"videoUrl,omitempty"`
	EvidenceType      EvidenceType   `json:"evidenceType"`
	Location          GeoLocation    `json:"location"`
	Analysis          AIRiskAnalysis `json:"analysis"`
	Status            CaseStatus     `json:"status"`
	Responder         string         `json:"responder,omitempty"`
	Remarks           string         `json:"remarks,omitempty"`
	City              string         `json:"city"`
	IsAnonymous       bool           `json:"isAnonymous"`
	ReporterID        string         `json:"reporterId,omitempty"`
	IntegrityChecksum string         `json:"integrityChecksum"`
	DeviceFingerprint string         `json:"deviceFingerprint"`
	History           []StatusChange `json:"history"`
	Revision          int64          `json:"revision"`
}

// Clone returns a deep copy of the case.
func (c *IncidentCase) Clone() *IncidentCase {
	dup := *c
	dup.History = append([]StatusChange(nil), c.History...)
	dup.Analysis.SafetyRecommendation = append([]string(nil), c.Analysis.SafetyRecommendation...)
	dup.Analysis.RiskFactors = append([]string(nil), c.Analysis.RiskFactors...)
	dup.Analysis.DetectedObjects = append([]string(nil), c.Analysis.DetectedObjects...)
	dup.Analysis.MisconductPatterns = append([]string(nil), c.Analysis.MisconductPatterns...)
	if c.Analysis.SentimentScore != nil {
		score := *c.Analysis.SentimentScore
		dup.Analysis.SentimentScore = &score
	}
	return &dup
}

// AdminActionLog is one append-only audit-trail entry. Entries are never
// edited or removed. CaseID need not reference a still-existing case.
type AdminActionLog struct {
	ID        string          `json:"id"`
	CaseID    string          `json:"caseId"`
	Action    string          `json:"action"`
	Admin     string          `json:"admin"`
	Timestamp int64           `json:"timestamp"`
	Details   json.RawMessage `json:"details"`
}

// StatusUpdateDetails is the details payload of a STATUS_UPDATE entry.
type StatusUpdateDetails struct {
	PreviousStatus CaseStatus `json:"previousStatus"`
	NewStatus      CaseStatus `json:"newStatus"`
	Remarks        string     `json:"remarks"`
}

// SecureAccessDetails is the details payload of a SECURE_ACCESS_GRANTED entry.
type SecureAccessDetails struct {
	AdminUID string `json:"adminUid"`
	Reason   string `json:"reason,omitempty"`
}

// UserProfile is the lightweight session identity. Exactly one profile is
// active per session; Email is empty for guests.
type UserProfile struct {
	UID         string `json:"uid"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName"`
	Role        Role   `json:"role"`
}

// SupportedCities is the fixed set of cities cases may be pinned to.
var SupportedCities = []string{
	"Visakhapatnam",
	"Hyderabad",
	"Bangalore",
	"Mumbai",
	"San Francisco",
}

// SupportedCity reports whether city is in the supported set.
func SupportedCity(city string) bool {
	for _, c := range SupportedCities {
		if c == city {
			return true
		}
	}
	return false
}

// AdminAllowList holds the emails authorized for strategic command access.
var AdminAllowList = []string{
	"admin@disasterlens.gov",
	"ops@civicguard.org",
}

// AllowedAdmin reports whether email may be issued an ADMIN profile.
func AllowedAdmin(email string) bool {
	for _, e := range AdminAllowList {
		if e == email {
			return true
		}
	}
	return false
}

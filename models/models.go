// models.go
// Defines the core data structures shared by the survey backend: survey
// configurations, option-set catalogs, published instances, and response
// sessions. Every struct maps directly to a Firestore document.

package models

import (
	"time"
)

// Metadata is the envelope attached to every top-level entity. It is
// updated in place on mutation, never replaced.
type Metadata struct {
	CreatedAt time.Time   `firestore:"created_at" json:"created_at"`
	CreatedBy string      `firestore:"created_by,omitempty" json:"created_by,omitempty"`
	UpdatedAt time.Time   `firestore:"updated_at" json:"updated_at"`
	Notes     []AuditNote `firestore:"notes,omitempty" json:"notes,omitempty"`
}

// AuditNote records a state transition applied by the system (e.g. a session
// expired by the reconciliation loop) so operators can trace who changed what.
type AuditNote struct {
	NoteID         string    `firestore:"note_id" json:"note_id"`
	PreviousStatus string    `firestore:"previous_status,omitempty" json:"previous_status,omitempty"`
	Reason         string    `firestore:"reason" json:"reason"`
	Timestamp      time.Time `firestore:"timestamp" json:"timestamp"`
}

// NewMetadata returns a fresh envelope stamped with the current time.
func NewMetadata(createdBy string) Metadata {
	now := time.Now().UTC()
	return Metadata{
		CreatedAt: now,
		CreatedBy: createdBy,
		UpdatedAt: now,
	}
}

// Touch refreshes the update timestamp. Call before every write.
func (m *Metadata) Touch() {
	m.UpdatedAt = time.Now().UTC()
}

// FieldType defines the kinds of fields a survey section may contain.
type FieldType string

const (
	FieldTypeText        FieldType = "text"
	FieldTypeTextarea    FieldType = "textarea"
	FieldTypeEmail       FieldType = "email"
	FieldTypeNumber      FieldType = "number"
	FieldTypeSelect      FieldType = "select"
	FieldTypeMultiSelect FieldType = "multiselect"
	FieldTypeRadio       FieldType = "radio"
	FieldTypeCheckbox    FieldType = "checkbox"
	FieldTypeRating      FieldType = "rating"
)

// Option is a single selectable choice, either inline on a field or inside
// an option-set catalog entry.
type Option struct {
	Label string `firestore:"label" json:"label"`
	Value string `firestore:"value" json:"value"`
}

// Field is one question inside a section or subsection. Choice-like fields
// carry either inline Options or a reference into an option-set catalog.
type Field struct {
	FieldID  string    `firestore:"field_id" json:"field_id"`
	Label    string    `firestore:"label" json:"label"`
	Type     FieldType `firestore:"type" json:"type"`
	Required bool      `firestore:"required" json:"required"`
	Options  []Option  `firestore:"options,omitempty" json:"options,omitempty"`

	// Catalog references, one per choice kind. Empty string means unset.
	RatingScaleID          string `firestore:"rating_scale_id,omitempty" json:"rating_scale_id,omitempty"`
	RadioOptionSetID       string `firestore:"radio_option_set_id,omitempty" json:"radio_option_set_id,omitempty"`
	SelectOptionSetID      string `firestore:"select_option_set_id,omitempty" json:"select_option_set_id,omitempty"`
	MultiSelectOptionSetID string `firestore:"multi_select_option_set_id,omitempty" json:"multi_select_option_set_id,omitempty"`
}

// DisplayName returns the best human-readable identifier for error reporting.
func (f *Field) DisplayName() string {
	if f.Label != "" {
		return f.Label
	}
	return f.FieldID
}

// Subsection groups fields under a section.
type Subsection struct {
	SubsectionID string  `firestore:"subsection_id" json:"subsection_id"`
	Title        string  `firestore:"title" json:"title"`
	Fields       []Field `firestore:"fields,omitempty" json:"fields,omitempty"`
}

// Section is a top-level block of a survey configuration. A section must
// contribute at least one field, either directly or through a subsection.
type Section struct {
	SectionID   string       `firestore:"section_id" json:"section_id"`
	Title       string       `firestore:"title" json:"title"`
	Fields      []Field      `firestore:"fields,omitempty" json:"fields,omitempty"`
	Subsections []Subsection `firestore:"subsections,omitempty" json:"subsections,omitempty"`
}

// FieldCount returns the number of fields the section contributes, including
// those nested in subsections.
func (s *Section) FieldCount() int {
	count := len(s.Fields)
	for _, sub := range s.Subsections {
		count += len(sub.Fields)
	}
	return count
}

// SurveyConfig is a survey's schema: the sections and fields administrators
// author in the builder. Instances are published from a config.
type SurveyConfig struct {
	ConfigID string    `firestore:"config_id" json:"config_id"`
	Title    string    `firestore:"title" json:"title"`
	Sections []Section `firestore:"sections,omitempty" json:"sections,omitempty"`
	Version  int       `firestore:"version" json:"version"`
	IsActive bool      `firestore:"is_active" json:"is_active"`
	Metadata Metadata  `firestore:"metadata" json:"metadata"`
}

// OptionSetKind selects one of the four option-set catalogs. The value
// doubles as the Firestore collection name.
type OptionSetKind string

const (
	KindRatingScale OptionSetKind = "rating_scales"
	KindRadio       OptionSetKind = "radio_option_sets"
	KindSelect      OptionSetKind = "select_option_sets"
	KindMultiSelect OptionSetKind = "multi_select_option_sets"
)

// OptionSetKinds lists every catalog kind, in the order the verifier
// fetches them.
var OptionSetKinds = []OptionSetKind{KindRatingScale, KindRadio, KindSelect, KindMultiSelect}

// Valid reports whether k names a known catalog.
func (k OptionSetKind) Valid() bool {
	switch k {
	case KindRatingScale, KindRadio, KindSelect, KindMultiSelect:
		return true
	}
	return false
}

// OptionSet is a reusable, independently managed list of choice options
// (rating scale, radio/select/multiselect set) referenced by id from fields.
type OptionSet struct {
	SetID    string   `firestore:"set_id" json:"set_id"`
	Name     string   `firestore:"name" json:"name"`
	Options  []Option `firestore:"options,omitempty" json:"options,omitempty"`
	IsActive bool     `firestore:"is_active" json:"is_active"`
	Metadata Metadata `firestore:"metadata" json:"metadata"`
}

// DateRange is an optional activation window on a survey instance.
type DateRange struct {
	StartDate time.Time `firestore:"start_date" json:"start_date"`
	EndDate   time.Time `firestore:"end_date" json:"end_date"`
}

// Contains reports whether t falls inside the window (inclusive bounds).
func (r *DateRange) Contains(t time.Time) bool {
	return !t.Before(r.StartDate) && !t.After(r.EndDate)
}

// DeactivationReason records why an instance was last deactivated, so the
// reconciler can tell "auto-deactivated by validation" apart from an
// administrator parking an otherwise-valid instance.
type DeactivationReason string

const (
	ReasonValidation DeactivationReason = "validation"
	ReasonManual     DeactivationReason = "manual"
	ReasonSchedule   DeactivationReason = "schedule"
)

// SurveyInstance is a published, addressable deployment of a config,
// collecting its own responses.
//
// Invariant: IsActive may only be true while ConfigValid is true. The
// verifier is the sole writer of ConfigValid and of date-driven IsActive
// flips; admin handlers own manual toggles.
type SurveyInstance struct {
	InstanceID           string             `firestore:"instance_id" json:"instance_id"`
	ConfigID             string             `firestore:"config_id" json:"config_id"`
	Title                string             `firestore:"title" json:"title"`
	Slug                 string             `firestore:"slug" json:"slug"`
	IsActive             bool               `firestore:"is_active" json:"is_active"`
	ConfigValid          bool               `firestore:"config_valid" json:"config_valid"`
	ActiveDateRange      *DateRange         `firestore:"active_date_range,omitempty" json:"active_date_range,omitempty"`
	ValidationInProgress bool               `firestore:"validation_in_progress,omitempty" json:"validation_in_progress,omitempty"`
	DeactivationReason   DeactivationReason `firestore:"deactivation_reason,omitempty" json:"deactivation_reason,omitempty"`
	Metadata             Metadata           `firestore:"metadata" json:"metadata"`
}

// SessionStatus defines the lifecycle state of a response session.
type SessionStatus string

const (
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionAbandoned  SessionStatus = "abandoned"
	SessionExpired    SessionStatus = "expired"
)

// Terminal reports whether the session can no longer change state. The
// reconciliation loop never touches terminal sessions.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionAbandoned || s == SessionExpired
}

// Session tracks one respondent working through a survey instance. Created
// at survey start, refreshed on every page transition, terminated by
// completion/abandonment or by the inactivity-timeout sweep.
type Session struct {
	SessionID      string        `firestore:"session_id" json:"session_id"`
	InstanceID     string        `firestore:"instance_id" json:"instance_id"`
	Status         SessionStatus `firestore:"status" json:"status"`
	StartedAt      time.Time     `firestore:"started_at" json:"started_at"`
	LastActivityAt time.Time     `firestore:"last_activity_at" json:"last_activity_at"`
	Metadata       Metadata      `firestore:"metadata" json:"metadata"`
}

// LastTouched returns the most recent of the session's activity timestamps.
// The expiry sweep compares this against the inactivity cutoff.
func (s *Session) LastTouched() time.Time {
	latest := s.LastActivityAt
	if s.StartedAt.After(latest) {
		latest = s.StartedAt
	}
	if s.Metadata.CreatedAt.After(latest) {
		latest = s.Metadata.CreatedAt
	}
	return latest
}

// UserRole defines the access level of an administrative user.
type UserRole string

const (
	RoleAdmin  UserRole = "ADMIN"
	RoleEditor UserRole = "EDITOR"
)

// User represents an authenticated administrator or catalog editor.
type User struct {
	UserID    string    `firestore:"user_id" json:"user_id"`
	Username  string    `firestore:"username" json:"username"`
	Role      UserRole  `firestore:"role" json:"role"`
	LastLogin time.Time `firestore:"last_login" json:"last_login"`
}

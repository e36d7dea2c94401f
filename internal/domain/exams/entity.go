package exams

import (
	"strings"
	"time"
)

// ExamID identifier type
type ExamID string

// Status is the upload lifecycle of an exam
type Status string

const (
	StatusPending  Status = "pending"
	StatusUploaded Status = "uploaded"
	StatusAnalyzed Status = "analyzed"
)

// Valid reports whether s is one of the lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusUploaded, StatusAnalyzed:
		return true
	}
	return false
}

// RiskLevel enum
type RiskLevel string

const (
	RiskNormal    RiskLevel = "normal"
	RiskAttention RiskLevel = "attention"
	RiskHigh      RiskLevel = "high"
)

// Valid reports whether r is one of the known levels.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskNormal, RiskAttention, RiskHigh:
		return true
	}
	return false
}

// Aggregate Root: Exam
type Exam struct {
	ID         ExamID    `json:"id"`
	UserID     string    `json:"user_id"`
	Name       string    `json:"name"`
	Date       time.Time `json:"date"`
	Type       string    `json:"type"`
	Status     Status    `json:"status"`
	FileRef    string    `json:"file_ref,omitempty"`
	RawResults string    `json:"raw_results,omitempty"`
	Analysis   *Analysis `json:"analysis,omitempty"`
	Anomaly    bool      `json:"anomaly"`
	RiskLevel  RiskLevel `json:"risk_level"`
	Processed  bool      `json:"processed"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// HasFile reports whether a file reference is attached.
func (e *Exam) HasFile() bool {
	return strings.TrimSpace(e.FileRef) != ""
}

// CanBeAnalyzed is true only for an exam with a file that was never processed.
func (e *Exam) CanBeAnalyzed() bool {
	return e.HasFile() && !e.Processed
}

// OwnedBy reports whether userID owns the exam.
func (e *Exam) OwnedBy(userID string) bool {
	return e.UserID == userID
}

// Patch carries the mutable, non-analysis fields of an exam. Nil means unchanged.
type Patch struct {
	Name       *string    `json:"name,omitempty"`
	Date       *time.Time `json:"date,omitempty"`
	Type       *string    `json:"type,omitempty"`
	Status     *Status    `json:"status,omitempty"`
	FileRef    *string    `json:"file_ref,omitempty"`
	RawResults *string    `json:"raw_results,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Name == nil && p.Date == nil && p.Type == nil &&
		p.Status == nil && p.FileRef == nil && p.RawResults == nil
}

// TouchesAnalysisInputs reports whether p changes a field that is frozen once the
// exam is processed.
func (p Patch) TouchesAnalysisInputs() bool {
	return p.Type != nil || p.Status != nil || p.FileRef != nil || p.RawResults != nil
}

// Apply copies the set fields of p onto e.
func (p Patch) Apply(e *Exam) {
	if p.Name != nil {
		e.Name = *p.Name
	}
	if p.Date != nil {
		e.Date = *p.Date
	}
	if p.Type != nil {
		e.Type = *p.Type
	}
	if p.Status != nil {
		e.Status = *p.Status
	}
	if p.FileRef != nil {
		e.FileRef = *p.FileRef
	}
	if p.RawResults != nil {
		e.RawResults = *p.RawResults
	}
}

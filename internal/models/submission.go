package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SubmissionKind distinguishes the two concrete accountability document kinds.
type SubmissionKind string

const (
	KindReport SubmissionKind = "REPORT"
	KindLPJ    SubmissionKind = "LPJ"
)

// SubmissionStatus is the canonical document lifecycle state. Raw stored
// values may still carry the legacy "pending" alias or NULL; every read path
// must pass through NormalizeStatus before comparing against these.
type SubmissionStatus string

const (
	StatusDraft     SubmissionStatus = "draft"
	StatusSubmitted SubmissionStatus = "submitted"
	StatusApproved  SubmissionStatus = "approved"
	StatusRejected  SubmissionStatus = "rejected"
)

// NormalizeStatus maps a raw stored status onto the canonical state model.
// NULL means the document was saved as a draft; "pending" is a legacy alias
// for "submitted" still present in older rows. Unrecognized values degrade to
// draft so that nothing ever reaches the approval path unreviewed.
func NormalizeStatus(raw *string) SubmissionStatus {
	if raw == nil {
		return StatusDraft
	}
	switch strings.ToLower(strings.TrimSpace(*raw)) {
	case "pending", "submitted":
		return StatusSubmitted
	case "approved":
		return StatusApproved
	case "rejected":
		return StatusRejected
	default:
		return StatusDraft
	}
}

// IsDecided reports whether the status is terminal for the approval engine.
func (s SubmissionStatus) IsDecided() bool {
	return s == StatusApproved || s == StatusRejected
}

const (
	reportIDPrefix = "RPT"
	lpjIDPrefix    = "LPJ"
)

// ComposeSubmissionID builds the collision-free feed identifier for a
// concrete record. Report and LPJ ids come from independent sequences, so the
// kind tag is what keeps the aggregated feed free of id collisions.
func ComposeSubmissionID(kind SubmissionKind, id int64) string {
	if kind == KindLPJ {
		return fmt.Sprintf("%s-%d", lpjIDPrefix, id)
	}
	return fmt.Sprintf("%s-%d", reportIDPrefix, id)
}

// DecomposeSubmissionID is the exact inverse of ComposeSubmissionID. Any
// decision routed through a composite id must resolve the concrete record
// with this function and nothing else.
func DecomposeSubmissionID(compositeID string) (SubmissionKind, int64, error) {
	prefix, rawID, ok := strings.Cut(compositeID, "-")
	if !ok {
		return "", 0, fmt.Errorf("malformed submission id %q", compositeID)
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return "", 0, fmt.Errorf("malformed submission id %q", compositeID)
	}
	switch strings.ToUpper(prefix) {
	case reportIDPrefix:
		return KindReport, id, nil
	case lpjIDPrefix:
		return KindLPJ, id, nil
	default:
		return "", 0, fmt.Errorf("unknown submission kind in id %q", compositeID)
	}
}

// Report is a general-purpose activity report, one per program.
type Report struct {
	ID          int64      `db:"id" json:"id"`
	ProgramID   int64      `db:"program_id" json:"program_id"`
	SubmittedBy string     `db:"submitted_by" json:"submitted_by"`
	Title       string     `db:"title" json:"title"`
	Status      *string    `db:"status" json:"status,omitempty"`
	Note        *string    `db:"note" json:"note,omitempty"`
	ReviewedBy  *string    `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time `db:"reviewed_at" json:"reviewed_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// LPJ is the post-activity financial accountability report for a program.
// It has no title of its own; the feed synthesizes one from the program title.
type LPJ struct {
	ID           int64      `db:"id" json:"id"`
	ProgramID    int64      `db:"program_id" json:"program_id"`
	ProgramTitle string     `db:"program_title" json:"program_title"`
	SubmittedBy  string     `db:"submitted_by" json:"submitted_by"`
	Status       *string    `db:"status" json:"status,omitempty"`
	Note         *string    `db:"note" json:"note,omitempty"`
	ReviewedBy   *string    `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt   *time.Time `db:"reviewed_at" json:"reviewed_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// Submission is the common projection both kinds share in aggregated feeds.
type Submission struct {
	ID          string           `json:"id"`
	Kind        SubmissionKind   `json:"kind"`
	Title       string           `json:"title"`
	Status      SubmissionStatus `json:"status"`
	ProgramID   int64            `json:"program_id"`
	SubmittedBy string           `json:"submitted_by"`
	Note        *string          `json:"note,omitempty"`
	ReviewedBy  *string          `json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time       `json:"reviewed_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// FromReport projects a Report row into the common submission shape.
func FromReport(r Report) Submission {
	s := Submission{
		ID:          ComposeSubmissionID(KindReport, r.ID),
		Kind:        KindReport,
		Title:       r.Title,
		Status:      NormalizeStatus(r.Status),
		ProgramID:   r.ProgramID,
		SubmittedBy: r.SubmittedBy,
		ReviewedBy:  r.ReviewedBy,
		ReviewedAt:  r.ReviewedAt,
		CreatedAt:   r.CreatedAt,
	}
	if s.Status == StatusRejected {
		s.Note = r.Note
	}
	return s
}

// FromLPJ projects an LPJ row into the common submission shape.
func FromLPJ(l LPJ) Submission {
	title := l.ProgramTitle
	if title == "" {
		title = fmt.Sprintf("LPJ Proker #%d", l.ProgramID)
	} else {
		title = "LPJ " + title
	}
	s := Submission{
		ID:          ComposeSubmissionID(KindLPJ, l.ID),
		Kind:        KindLPJ,
		Title:       title,
		Status:      NormalizeStatus(l.Status),
		ProgramID:   l.ProgramID,
		SubmittedBy: l.SubmittedBy,
		ReviewedBy:  l.ReviewedBy,
		ReviewedAt:  l.ReviewedAt,
		CreatedAt:   l.CreatedAt,
	}
	if s.Status == StatusRejected {
		s.Note = l.Note
	}
	return s
}

// ApprovalQueue partitions organization-wide submissions for the approver.
type ApprovalQueue struct {
	Pending []Submission `json:"pending"`
	History []Submission `json:"history"`
}

// SubmissionFilter constrains Report/LPJ listing queries.
type SubmissionFilter struct {
	SubmittedBy string
	ProgramID   int64
}

package application

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tukio/core"
)

// Application statuses.
const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	// StatusWithdrawn is reserved for a future student-initiated withdrawal;
	// no lifecycle operation drives this transition.
	StatusWithdrawn Status = "withdrawn"
)

var (
	// errors
	ErrNotFound               = errors.New("application not found")
	ErrDuplicateApplication   = errors.New("an application for this event already exists")
	ErrDeadlinePassed         = errors.New("the registration deadline for this event has passed")
	ErrInvalidTeamComposition = errors.New("invalid team composition")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrForbidden              = errors.New("permission denied")

	// transitionSources lists the legal source statuses per target.
	// rejected -> approved is only reachable via the distinct re-approval
	// operation, never via a plain status update.
	transitionSources = map[Status][]Status{
		StatusApproved: {StatusPending},
		StatusRejected: {StatusPending, StatusApproved},
	}
)

type Status string

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusWithdrawn:
		return true
	}
	return false
}

// Application is one applicant's (or team's) bid to participate in an event.
// At most one non-deleted application exists per (event, student) pair.
type Application struct {
	ID           string `json:"id"`
	EventID      string `json:"event_id"`
	StudentID    string `json:"student_id"`
	StudentName  string `json:"student_name"`
	StudentEmail string `json:"student_email"`

	IsTeam         bool     `json:"is_team"`
	TeamName       string   `json:"team_name,omitempty"`
	TeamMembers    []string `json:"team_members,omitempty"`
	AdditionalInfo string   `json:"additional_info,omitempty"`

	PaymentStatus string  `json:"payment_status,omitempty"`
	PaymentAmount float64 `json:"payment_amount,omitempty"`

	Status          Status      `json:"status"`
	SubmittedAt     time.Time   `json:"submitted_at"` // UTC
	ReviewedAt      null.Time   `json:"reviewed_at,omitempty"`
	ReviewedBy      null.String `json:"reviewed_by,omitempty"`
	Remarks         null.String `json:"remarks,omitempty"`
	RejectionReason null.String `json:"rejection_reason,omitempty"`
	RejectionDate   null.Time   `json:"rejection_date,omitempty"`
	ApprovalDate    null.Time   `json:"approval_date,omitempty"`

	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// Participant is the reduced, approved-only view exposed to all
// authenticated roles.
type Participant struct {
	ID          string    `json:"id"`
	EventID     string    `json:"event_id"`
	StudentID   string    `json:"student_id"`
	StudentName string    `json:"student_name"`
	IsTeam      bool      `json:"is_team"`
	TeamName    string    `json:"team_name,omitempty"`
	TeamMembers []string  `json:"team_members,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

func (app *Application) Participant() Participant {
	return Participant{
		ID:          app.ID,
		EventID:     app.EventID,
		StudentID:   app.StudentID,
		StudentName: app.StudentName,
		IsTeam:      app.IsTeam,
		TeamName:    app.TeamName,
		TeamMembers: app.TeamMembers,
		SubmittedAt: app.SubmittedAt,
	}
}

// Stats aggregates application counts per status.
type Stats struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
}

// NewApplication contains information needed to submit a new Application.
type NewApplication struct {
	EventID        string   `json:"event_id" validate:"required"`
	IsTeam         bool     `json:"is_team"`
	TeamName       string   `json:"team_name"`
	TeamMembers    []string `json:"team_members"`
	AdditionalInfo string   `json:"additional_info"`
	PaymentStatus  string   `json:"payment_status" validate:"omitempty,oneof=pending paid waived"`
	PaymentAmount  float64  `json:"payment_amount" validate:"omitempty,gte=0"`
}

func (na *NewApplication) Validate(validate *validator.Validate) error {
	na.EventID = core.CleanString(na.EventID)
	na.TeamName = core.CleanString(na.TeamName)
	na.TeamMembers = core.CleanStrings(na.TeamMembers)
	na.AdditionalInfo = core.CleanString(na.AdditionalInfo)
	return validate.Struct(na)
}

// StatusUpdate defines a reviewer-initiated status transition.
// AdminPassword is the supplementary shared credential required on rejection;
// it is independent of the actor's role and identity.
type StatusUpdate struct {
	Status          Status `json:"status" validate:"required,oneof=approved rejected"`
	RejectionReason string `json:"rejection_reason"`
	Remarks         string `json:"remarks"`
	AdminPassword   string `json:"admin_password"`
}

func (su *StatusUpdate) Validate(validate *validator.Validate) error {
	su.RejectionReason = core.CleanString(su.RejectionReason)
	su.Remarks = core.CleanString(su.Remarks)
	return validate.Struct(su)
}

// ReApproval defines the coordinator-only rejected -> approved path.
type ReApproval struct {
	Remarks       string `json:"remarks"`
	AdminPassword string `json:"admin_password"`
}

func (ra *ReApproval) Validate(validate *validator.Validate) error {
	ra.Remarks = core.CleanString(ra.Remarks)
	return validate.Struct(ra)
}

package application

import (
	"crypto/subtle"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tukio/core"
	"github.com/trezcool/tukio/core/event"
	"github.com/trezcool/tukio/core/user"
)

type (
	Repository interface {
		// CreateApplication persists a new application. It returns
		// ErrDuplicateApplication if one already exists for the same
		// (event, student) pair.
		CreateApplication(app Application) (Application, error)
		GetApplicationByID(id string) (Application, error)
		GetApplicationByEventAndStudent(eventID, studentID string) (Application, error)
		QueryApplicationsByEvent(eventID string) ([]Application, error)
		QueryApplicationsByStudent(studentID string) ([]Application, error)
		// UpdateApplicationStatus persists `app` only if the stored status is
		// still one of `from`; a concurrent transition that got there first
		// makes this call fail with ErrInvalidTransition.
		UpdateApplicationStatus(app Application, from ...Status) (Application, error)
		GetApplicationStats() (Stats, error)
	}

	// Broadcaster pushes lifecycle events to live subscribers matching a
	// predicate. Delivery is best-effort and at-most-once.
	Broadcaster interface {
		Broadcast(payload interface{}, pred func(usr user.User) bool)
	}

	Service struct {
		repo    Repository
		events  event.Repository
		hub     Broadcaster
		mailSvc core.EmailService
		logger  core.Logger
		conf    *core.Config
	}
)

// Realtime push event types.
const (
	PushApplicationCreated = "application_created"
	PushApplicationStatus  = "application_status"
)

// PushEvent is the payload broadcast to realtime subscribers on lifecycle
// changes. It is a convenience signal, not a source of truth; clients
// re-fetch authoritative state over HTTP.
type PushEvent struct {
	Type        string      `json:"type"`
	Application Application `json:"application"`
}

func NewService(
	repo Repository,
	events event.Repository,
	hub Broadcaster,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
) *Service {
	return &Service{
		repo:    repo,
		events:  events,
		hub:     hub,
		mailSvc: mailSvc,
		logger:  logger,
		conf:    conf,
	}
}

// Submit creates a pending application for `student` after the deadline,
// duplicate and team-composition gates pass, and bumps the event's
// application counter.
func (svc *Service) Submit(student user.User, na NewApplication) (Application, error) {
	evt, err := svc.events.GetEventByID(na.EventID)
	if err != nil {
		return Application{}, err
	}
	if !evt.IsOpen(time.Now().UTC()) {
		return Application{}, ErrDeadlinePassed
	}

	if _, err = svc.repo.GetApplicationByEventAndStudent(evt.ID, student.ID); err == nil {
		return Application{}, ErrDuplicateApplication
	} else if err != ErrNotFound {
		return Application{}, errors.Wrap(err, "checking for existing application")
	}

	if na.IsTeam {
		if na.TeamName == "" || len(na.TeamMembers) == 0 || len(na.TeamMembers) > evt.TeamSize {
			return Application{}, ErrInvalidTeamComposition
		}
	}

	now := time.Now().UTC()
	app := Application{
		ID:             uuid.New().String(),
		EventID:        evt.ID,
		StudentID:      student.ID,
		StudentName:    student.Name,
		StudentEmail:   student.Email,
		IsTeam:         na.IsTeam,
		TeamName:       na.TeamName,
		TeamMembers:    na.TeamMembers,
		AdditionalInfo: na.AdditionalInfo,
		PaymentStatus:  na.PaymentStatus,
		PaymentAmount:  na.PaymentAmount,
		Status:         StatusPending,
		SubmittedAt:    now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if app, err = svc.repo.CreateApplication(app); err != nil {
		return Application{}, err
	}
	if err = svc.events.IncrementApplicationCount(evt.ID); err != nil {
		return Application{}, errors.Wrap(err, "incrementing application count")
	}

	svc.publish(PushApplicationCreated, app, evt)
	return app, nil
}

// Transition applies a reviewer-initiated status update.
// Coordinators may approve or reject; faculty may only reject. Rejection
// additionally requires a non-empty reason and the admin credential.
func (svc *Service) Transition(id string, actor user.User, su StatusUpdate) (Application, error) {
	switch su.Status {
	case StatusApproved:
		if !actor.IsCoordinator() {
			return Application{}, ErrForbidden
		}
	case StatusRejected:
		if !(actor.IsCoordinator() || actor.IsFaculty()) {
			return Application{}, ErrForbidden
		}
		if su.RejectionReason == "" {
			return Application{}, core.NewValidationError(nil,
				core.FieldError{Field: "rejection_reason", Error: "a rejection reason is required"})
		}
		if err := svc.checkAdminSecret(su.AdminPassword); err != nil {
			return Application{}, err
		}
	default:
		return Application{}, core.NewValidationError(nil,
			core.FieldError{Field: "status", Error: "status must be approved or rejected"})
	}

	app, err := svc.repo.GetApplicationByID(id)
	if err != nil {
		return Application{}, err
	}
	sources := transitionSources[su.Status]
	if !statusIn(app.Status, sources) {
		return Application{}, ErrInvalidTransition
	}

	now := time.Now().UTC()
	app.Status = su.Status
	app.ReviewedAt = null.TimeFrom(now)
	app.ReviewedBy = null.StringFrom(actor.ID)
	app.Remarks = null.NewString(su.Remarks, su.Remarks != "")
	app.UpdatedAt = now
	switch su.Status {
	case StatusApproved:
		app.ApprovalDate = null.TimeFrom(now)
		app.RejectionReason = null.String{}
		app.RejectionDate = null.Time{}
	case StatusRejected:
		app.RejectionReason = null.StringFrom(su.RejectionReason)
		app.RejectionDate = null.TimeFrom(now)
		app.ApprovalDate = null.Time{}
	}

	if app, err = svc.repo.UpdateApplicationStatus(app, sources...); err != nil {
		return Application{}, err
	}

	svc.afterTransition(app)
	return app, nil
}

// ApproveRejected is the distinct coordinator-only path that brings a
// rejected application back to approved. No reason is required but the admin
// credential is.
func (svc *Service) ApproveRejected(id string, actor user.User, ra ReApproval) (Application, error) {
	if !actor.IsCoordinator() {
		return Application{}, ErrForbidden
	}
	if err := svc.checkAdminSecret(ra.AdminPassword); err != nil {
		return Application{}, err
	}

	app, err := svc.repo.GetApplicationByID(id)
	if err != nil {
		return Application{}, err
	}
	if app.Status != StatusRejected {
		return Application{}, ErrInvalidTransition
	}

	now := time.Now().UTC()
	app.Status = StatusApproved
	app.ReviewedAt = null.TimeFrom(now)
	app.ReviewedBy = null.StringFrom(actor.ID)
	app.Remarks = null.NewString(ra.Remarks, ra.Remarks != "")
	app.ApprovalDate = null.TimeFrom(now)
	app.RejectionReason = null.String{}
	app.RejectionDate = null.Time{}
	app.UpdatedAt = now

	if app, err = svc.repo.UpdateApplicationStatus(app, StatusRejected); err != nil {
		return Application{}, err
	}

	svc.afterTransition(app)
	return app, nil
}

func (svc *Service) QueryByEvent(eventID string) ([]Application, error) {
	return svc.repo.QueryApplicationsByEvent(eventID)
}

// QueryParticipants returns the approved-only, reduced-field view.
func (svc *Service) QueryParticipants(eventID string) ([]Participant, error) {
	apps, err := svc.repo.QueryApplicationsByEvent(eventID)
	if err != nil {
		return nil, err
	}
	participants := make([]Participant, 0, len(apps))
	for i := range apps {
		if apps[i].Status == StatusApproved {
			participants = append(participants, apps[i].Participant())
		}
	}
	return participants, nil
}

func (svc *Service) QueryByStudent(studentID string) ([]Application, error) {
	return svc.repo.QueryApplicationsByStudent(studentID)
}

func (svc *Service) Stats() (Stats, error) {
	return svc.repo.GetApplicationStats()
}

// checkAdminSecret compares the supplied credential against the configured
// shared secret in constant time. An unconfigured secret always fails.
func (svc *Service) checkAdminSecret(pwd string) error {
	secret := svc.conf.AdminSecret
	if secret == "" || subtle.ConstantTimeCompare([]byte(pwd), []byte(secret)) != 1 {
		return ErrForbidden
	}
	return nil
}

// publish fans a lifecycle event out to faculty and the owning coordinator.
func (svc *Service) publish(typ string, app Application, evt event.Event) {
	if svc.hub == nil {
		return
	}
	coordinatorID := evt.CoordinatorID
	svc.hub.Broadcast(PushEvent{Type: typ, Application: app}, func(usr user.User) bool {
		return usr.IsFaculty() || usr.ID == coordinatorID
	})
}

// afterTransition runs the ordered, best-effort side effects of a persisted
// transition: status-update notification first, then realtime fan-out.
// Neither may fail the operation itself.
func (svc *Service) afterTransition(app Application) {
	evt, err := svc.events.GetEventByID(app.EventID)
	if err != nil {
		// fall back to faculty-only fan-out; the state change itself stands
		svc.logger.Warn("resolving event for transition side effects", err)
		evt = event.Event{}
	}
	svc.notifyStatusChange(app, evt)
	svc.publish(PushApplicationStatus, app, evt)
}

func statusIn(s Status, in []Status) bool {
	for _, st := range in {
		if s == st {
			return true
		}
	}
	return false
}

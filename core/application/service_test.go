package application_test

import (
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/tukio/core"
	"github.com/trezcool/tukio/core/application"
	"github.com/trezcool/tukio/core/event"
	"github.com/trezcool/tukio/core/user"
	emailsvc "github.com/trezcool/tukio/services/email"
	dummydb "github.com/trezcool/tukio/storage/database/dummy"
)

const adminSecret = "t0p-s3cret"

var (
	student     = user.User{ID: "std-1", Name: "Hero", Username: "hero", Email: "hero@test.cd", Roles: []string{user.RoleStudent}}
	coordinator = user.User{ID: "crd-1", Name: "Coord", Username: "coord", Email: "coord@test.cd", Roles: []string{user.RoleCoordinator}}
	faculty     = user.User{ID: "fac-1", Name: "Prof", Username: "prof", Email: "prof@test.cd", Roles: []string{user.RoleFaculty}}
)

// eventStore widens event.Repository with the dummy-only seeding method.
type eventStore interface {
	event.Repository
	CreateEvent(evt event.Event) (event.Event, error)
}

// recordingHub captures broadcasts instead of pushing them anywhere.
type recordingHub struct {
	payloads []application.PushEvent
	preds    []func(usr user.User) bool
}

func (h *recordingHub) Broadcast(payload interface{}, pred func(usr user.User) bool) {
	if evt, ok := payload.(application.PushEvent); ok {
		h.payloads = append(h.payloads, evt)
	}
	h.preds = append(h.preds, pred)
}

func setup(t *testing.T) (*application.Service, eventStore, *recordingHub) {
	t.Helper()
	emailsvc.ClearSentMessages()

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("dummydb.Open(): %v", err)
	}
	logger := core.NewStdLogger(log.New(io.Discard, "", 0))

	conf := *core.Conf
	conf.AdminSecret = adminSecret
	conf.Notify.ApplicationEmails = []string{"events-office@test.cd"}

	hub := new(recordingHub)
	evtRepo := dummydb.NewEventRepository(db)
	svc := application.NewService(
		dummydb.NewApplicationRepository(db),
		evtRepo,
		hub,
		emailsvc.NewConsoleServiceMock(logger),
		logger,
		&conf,
	)
	return svc, evtRepo, hub
}

func createEvent(t *testing.T, repo eventStore, deadline time.Time, active bool, teamSize int) event.Event {
	t.Helper()
	now := time.Now().UTC()
	evt, err := repo.CreateEvent(event.Event{
		ID:                   uuid.New().String(),
		Title:                "Robotics Hackathon",
		CoordinatorID:        coordinator.ID,
		MaxParticipants:      50,
		TeamSize:             teamSize,
		RegistrationDeadline: deadline,
		IsActive:             active,
		CreatedAt:            now,
		UpdatedAt:            now,
	})
	if err != nil {
		t.Fatalf("CreateEvent(): %v", err)
	}
	return evt
}

func submit(t *testing.T, svc *application.Service, usr user.User, evt event.Event) application.Application {
	t.Helper()
	app, err := svc.Submit(usr, application.NewApplication{EventID: evt.ID})
	if err != nil {
		t.Fatalf("Submit(): %v", err)
	}
	return app
}

func Test_service_Submit(t *testing.T) {
	svc, evtRepo, hub := setup(t)
	evt := createEvent(t, evtRepo, time.Now().UTC().Add(24*time.Hour), true, 4)

	app, err := svc.Submit(student, application.NewApplication{
		EventID:        evt.ID,
		AdditionalInfo: "first year",
		PaymentStatus:  "paid",
		PaymentAmount:  10,
	})
	if err != nil {
		t.Fatalf("Submit(): %v", err)
	}

	if app.ID == "" {
		t.Error("Submit() did not assign an ID")
	}
	if app.Status != application.StatusPending {
		t.Errorf("status = %v; want %v", app.Status, application.StatusPending)
	}
	if app.StudentName != student.Name || app.StudentEmail != student.Email {
		t.Errorf("applicant snapshot = %v %v; want %v %v", app.StudentName, app.StudentEmail, student.Name, student.Email)
	}
	if app.SubmittedAt.IsZero() {
		t.Error("SubmittedAt not set")
	}
	if app.ReviewedAt.Valid || app.ApprovalDate.Valid || app.RejectionDate.Valid {
		t.Error("review fields must be empty on submission")
	}

	// the event's counter is bumped exactly once
	evt, err = evtRepo.GetEventByID(evt.ID)
	if err != nil {
		t.Fatalf("GetEventByID(): %v", err)
	}
	if evt.ApplicationCount != 1 {
		t.Errorf("ApplicationCount = %v; want 1", evt.ApplicationCount)
	}

	// fan-out goes to faculty and the owning coordinator only
	if len(hub.payloads) != 1 {
		t.Fatalf("broadcasts = %v; want 1", len(hub.payloads))
	}
	if typ := hub.payloads[0].Type; typ != application.PushApplicationCreated {
		t.Errorf("push type = %v; want %v", typ, application.PushApplicationCreated)
	}
	pred := hub.preds[0]
	if !pred(faculty) {
		t.Error("faculty must match the fan-out predicate")
	}
	if !pred(coordinator) {
		t.Error("the owning coordinator must match the fan-out predicate")
	}
	if pred(student) {
		t.Error("students must not match the fan-out predicate")
	}
}

func Test_service_Submit_gates(t *testing.T) {
	svc, evtRepo, _ := setup(t)

	now := time.Now().UTC()
	open := createEvent(t, evtRepo, now.Add(24*time.Hour), true, 2)
	closed := createEvent(t, evtRepo, now.Add(-time.Minute), true, 2)
	inactive := createEvent(t, evtRepo, now.Add(24*time.Hour), false, 2)

	submit(t, svc, student, open)

	usr := func(id string) user.User {
		return user.User{ID: id, Name: id, Email: id + "@test.cd", Roles: []string{user.RoleStudent}}
	}

	tests := []struct {
		name    string
		actor   user.User
		data    application.NewApplication
		wantErr error
	}{
		{name: "unknown event", actor: student, data: application.NewApplication{EventID: "nope"}, wantErr: event.ErrNotFound},
		{name: "duplicate", actor: student, data: application.NewApplication{EventID: open.ID}, wantErr: application.ErrDuplicateApplication},
		{name: "deadline passed", actor: usr("std-2"), data: application.NewApplication{EventID: closed.ID}, wantErr: application.ErrDeadlinePassed},
		{name: "inactive event", actor: usr("std-3"), data: application.NewApplication{EventID: inactive.ID}, wantErr: application.ErrDeadlinePassed},
		{
			name: "team without name", actor: usr("std-4"), wantErr: application.ErrInvalidTeamComposition,
			data: application.NewApplication{EventID: open.ID, IsTeam: true, TeamMembers: []string{"a"}},
		},
		{
			name: "team without members", actor: usr("std-5"), wantErr: application.ErrInvalidTeamComposition,
			data: application.NewApplication{EventID: open.ID, IsTeam: true, TeamName: "Bots"},
		},
		{
			name: "team too big", actor: usr("std-6"), wantErr: application.ErrInvalidTeamComposition,
			data: application.NewApplication{EventID: open.ID, IsTeam: true, TeamName: "Bots", TeamMembers: []string{"a", "b", "c"}},
		},
		{
			name: "team ok", actor: usr("std-7"),
			data: application.NewApplication{EventID: open.ID, IsTeam: true, TeamName: "Bots", TeamMembers: []string{"a", "b"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Submit(tt.actor, tt.data); err != tt.wantErr {
				t.Errorf("Submit() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func Test_service_Transition(t *testing.T) {
	svc, evtRepo, hub := setup(t)
	evt := createEvent(t, evtRepo, time.Now().UTC().Add(24*time.Hour), true, 4)
	app := submit(t, svc, student, evt)

	reject := application.StatusUpdate{
		Status:          application.StatusRejected,
		RejectionReason: "capacity exceeded",
		AdminPassword:   adminSecret,
	}

	t.Run("approval is coordinator-only", func(t *testing.T) {
		for _, actor := range []user.User{student, faculty} {
			if _, err := svc.Transition(app.ID, actor, application.StatusUpdate{Status: application.StatusApproved}); err != application.ErrForbidden {
				t.Errorf("Transition(%s) error = %v, wantErr %v", actor.Username, err, application.ErrForbidden)
			}
		}
	})

	t.Run("rejection needs a reviewer role", func(t *testing.T) {
		if _, err := svc.Transition(app.ID, student, reject); err != application.ErrForbidden {
			t.Errorf("Transition() error = %v, wantErr %v", err, application.ErrForbidden)
		}
	})

	t.Run("rejection needs a reason", func(t *testing.T) {
		su := reject
		su.RejectionReason = ""
		_, err := svc.Transition(app.ID, coordinator, su)
		if _, ok := err.(*core.ValidationError); !ok {
			t.Errorf("Transition() error = %v, want a ValidationError", err)
		}
	})

	t.Run("rejection needs the admin credential", func(t *testing.T) {
		su := reject
		su.AdminPassword = "nope"
		if _, err := svc.Transition(app.ID, faculty, su); err != application.ErrForbidden {
			t.Errorf("Transition() error = %v, wantErr %v", err, application.ErrForbidden)
		}
	})

	t.Run("approve pending", func(t *testing.T) {
		got, err := svc.Transition(app.ID, coordinator, application.StatusUpdate{
			Status:  application.StatusApproved,
			Remarks: "welcome aboard",
		})
		if err != nil {
			t.Fatalf("Transition(): %v", err)
		}
		if got.Status != application.StatusApproved {
			t.Errorf("status = %v; want %v", got.Status, application.StatusApproved)
		}
		if !got.ApprovalDate.Valid {
			t.Error("ApprovalDate not set")
		}
		if !got.ReviewedAt.Valid {
			t.Error("ReviewedAt not set")
		}
		if got.ReviewedBy.String != coordinator.ID {
			t.Errorf("ReviewedBy = %v; want %v", got.ReviewedBy.String, coordinator.ID)
		}
		if got.Remarks.String != "welcome aboard" {
			t.Errorf("Remarks = %v; want %q", got.Remarks.String, "welcome aboard")
		}

		// applicant + configured recipients got notified
		msgs := emailsvc.GetSentMessages()
		if len(msgs) != 1 {
			t.Fatalf("sent messages = %v; want 1", len(msgs))
		}
		if want := 2; len(msgs[0].To) != want { // applicant + events office
			t.Errorf("recipients = %v; want %v", len(msgs[0].To), want)
		}
		if !strings.Contains(msgs[0].Subject, "approved") {
			t.Errorf("subject = %q; want an approval notice", msgs[0].Subject)
		}

		// realtime fan-out follows the notification
		last := hub.payloads[len(hub.payloads)-1]
		if last.Type != application.PushApplicationStatus {
			t.Errorf("push type = %v; want %v", last.Type, application.PushApplicationStatus)
		}
	})

	t.Run("approve approved again", func(t *testing.T) {
		_, err := svc.Transition(app.ID, coordinator, application.StatusUpdate{Status: application.StatusApproved})
		if err != application.ErrInvalidTransition {
			t.Errorf("Transition() error = %v, wantErr %v", err, application.ErrInvalidTransition)
		}
	})

	t.Run("reject approved", func(t *testing.T) {
		got, err := svc.Transition(app.ID, faculty, reject)
		if err != nil {
			t.Fatalf("Transition(): %v", err)
		}
		if got.Status != application.StatusRejected {
			t.Errorf("status = %v; want %v", got.Status, application.StatusRejected)
		}
		if got.RejectionReason.String != reject.RejectionReason {
			t.Errorf("RejectionReason = %v; want %q", got.RejectionReason.String, reject.RejectionReason)
		}
		if !got.RejectionDate.Valid {
			t.Error("RejectionDate not set")
		}
		if got.ApprovalDate.Valid {
			t.Error("ApprovalDate must be cleared on rejection")
		}
	})

	t.Run("reject rejected again", func(t *testing.T) {
		if _, err := svc.Transition(app.ID, coordinator, reject); err != application.ErrInvalidTransition {
			t.Errorf("Transition() error = %v, wantErr %v", err, application.ErrInvalidTransition)
		}
	})

	t.Run("plain update cannot approve a rejected application", func(t *testing.T) {
		_, err := svc.Transition(app.ID, coordinator, application.StatusUpdate{Status: application.StatusApproved})
		if err != application.ErrInvalidTransition {
			t.Errorf("Transition() error = %v, wantErr %v", err, application.ErrInvalidTransition)
		}
	})

	t.Run("unknown application", func(t *testing.T) {
		_, err := svc.Transition("nope", coordinator, application.StatusUpdate{Status: application.StatusApproved})
		if err != application.ErrNotFound {
			t.Errorf("Transition() error = %v, wantErr %v", err, application.ErrNotFound)
		}
	})

	// a rejection never takes back the submission's counter bump
	evt, err := evtRepo.GetEventByID(evt.ID)
	if err != nil {
		t.Fatalf("GetEventByID(): %v", err)
	}
	if evt.ApplicationCount != 1 {
		t.Errorf("ApplicationCount = %v; want 1", evt.ApplicationCount)
	}
}

func Test_service_Transition_unconfiguredSecret(t *testing.T) {
	svc, evtRepo, _ := setup(t)
	evt := createEvent(t, evtRepo, time.Now().UTC().Add(24*time.Hour), true, 4)
	app := submit(t, svc, student, evt)

	db, _ := dummydb.Open()
	conf := *core.Conf
	conf.AdminSecret = "" // never configured
	logger := core.NewStdLogger(log.New(io.Discard, "", 0))
	bare := application.NewService(
		dummydb.NewApplicationRepository(db), dummydb.NewEventRepository(db), nil,
		emailsvc.NewConsoleServiceMock(logger), logger, &conf,
	)

	// even a matching empty credential must fail
	_, err := bare.Transition(app.ID, coordinator, application.StatusUpdate{
		Status:          application.StatusRejected,
		RejectionReason: "capacity exceeded",
		AdminPassword:   "",
	})
	if err != application.ErrForbidden {
		t.Errorf("Transition() error = %v, wantErr %v", err, application.ErrForbidden)
	}
}

func Test_service_ApproveRejected(t *testing.T) {
	svc, evtRepo, hub := setup(t)
	evt := createEvent(t, evtRepo, time.Now().UTC().Add(24*time.Hour), true, 4)
	app := submit(t, svc, student, evt)

	t.Run("coordinator-only", func(t *testing.T) {
		for _, actor := range []user.User{student, faculty} {
			if _, err := svc.ApproveRejected(app.ID, actor, application.ReApproval{AdminPassword: adminSecret}); err != application.ErrForbidden {
				t.Errorf("ApproveRejected(%s) error = %v, wantErr %v", actor.Username, err, application.ErrForbidden)
			}
		}
	})

	t.Run("admin credential required", func(t *testing.T) {
		if _, err := svc.ApproveRejected(app.ID, coordinator, application.ReApproval{AdminPassword: "nope"}); err != application.ErrForbidden {
			t.Errorf("ApproveRejected() error = %v, wantErr %v", err, application.ErrForbidden)
		}
	})

	t.Run("pending application", func(t *testing.T) {
		if _, err := svc.ApproveRejected(app.ID, coordinator, application.ReApproval{AdminPassword: adminSecret}); err != application.ErrInvalidTransition {
			t.Errorf("ApproveRejected() error = %v, wantErr %v", err, application.ErrInvalidTransition)
		}
	})

	t.Run("rejected application", func(t *testing.T) {
		if _, err := svc.Transition(app.ID, coordinator, application.StatusUpdate{
			Status:          application.StatusRejected,
			RejectionReason: "capacity exceeded",
			AdminPassword:   adminSecret,
		}); err != nil {
			t.Fatalf("Transition(): %v", err)
		}

		got, err := svc.ApproveRejected(app.ID, coordinator, application.ReApproval{
			Remarks:       "slot freed up",
			AdminPassword: adminSecret,
		})
		if err != nil {
			t.Fatalf("ApproveRejected(): %v", err)
		}
		if got.Status != application.StatusApproved {
			t.Errorf("status = %v; want %v", got.Status, application.StatusApproved)
		}
		if !got.ApprovalDate.Valid {
			t.Error("ApprovalDate not set")
		}
		if got.RejectionReason.Valid || got.RejectionDate.Valid {
			t.Error("rejection fields must be cleared on re-approval")
		}
		if got.Remarks.String != "slot freed up" {
			t.Errorf("Remarks = %v; want %q", got.Remarks.String, "slot freed up")
		}

		last := hub.payloads[len(hub.payloads)-1]
		if last.Type != application.PushApplicationStatus {
			t.Errorf("push type = %v; want %v", last.Type, application.PushApplicationStatus)
		}
	})
}

func Test_service_QueryParticipants(t *testing.T) {
	svc, evtRepo, _ := setup(t)
	evt := createEvent(t, evtRepo, time.Now().UTC().Add(24*time.Hour), true, 4)

	other := user.User{ID: "std-2", Name: "Rival", Email: "rival@test.cd", Roles: []string{user.RoleStudent}}
	app := submit(t, svc, student, evt)
	submit(t, svc, other, evt)

	if _, err := svc.Transition(app.ID, coordinator, application.StatusUpdate{Status: application.StatusApproved}); err != nil {
		t.Fatalf("Transition(): %v", err)
	}

	participants, err := svc.QueryParticipants(evt.ID)
	if err != nil {
		t.Fatalf("QueryParticipants(): %v", err)
	}
	if len(participants) != 1 {
		t.Fatalf("participants = %v; want 1 (approved only)", len(participants))
	}
	if participants[0].StudentID != student.ID {
		t.Errorf("participant = %v; want %v", participants[0].StudentID, student.ID)
	}
}

func Test_service_Stats(t *testing.T) {
	svc, evtRepo, _ := setup(t)
	evt := createEvent(t, evtRepo, time.Now().UTC().Add(24*time.Hour), true, 4)

	actors := []user.User{
		student,
		{ID: "std-2", Name: "Rival", Email: "rival@test.cd", Roles: []string{user.RoleStudent}},
		{ID: "std-3", Name: "Late", Email: "late@test.cd", Roles: []string{user.RoleStudent}},
	}
	apps := make([]application.Application, 0, len(actors))
	for _, actor := range actors {
		apps = append(apps, submit(t, svc, actor, evt))
	}

	if _, err := svc.Transition(apps[0].ID, coordinator, application.StatusUpdate{Status: application.StatusApproved}); err != nil {
		t.Fatalf("Transition(): %v", err)
	}
	if _, err := svc.Transition(apps[1].ID, coordinator, application.StatusUpdate{
		Status:          application.StatusRejected,
		RejectionReason: "incomplete submission",
		AdminPassword:   adminSecret,
	}); err != nil {
		t.Fatalf("Transition(): %v", err)
	}

	stats, err := svc.Stats()
	if err != nil {
		t.Fatalf("Stats(): %v", err)
	}
	want := application.Stats{Total: 3, Pending: 1, Approved: 1, Rejected: 1}
	if stats != want {
		t.Errorf("Stats() = %+v; want %+v", stats, want)
	}
}

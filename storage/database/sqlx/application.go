package sqlxrepos

import (
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tukio/core/application"
)

const pqUniqueViolation = "23505"

type applicationRepository struct {
	db *sqlx.DB
}

var _ application.Repository = (*applicationRepository)(nil) // interface compliance check

func NewApplicationRepository(db *sqlx.DB) *applicationRepository {
	return &applicationRepository{db: db}
}

type applicationRow struct {
	ID              string         `db:"id"`
	EventID         string         `db:"event_id"`
	StudentID       string         `db:"student_id"`
	StudentName     string         `db:"student_name"`
	StudentEmail    string         `db:"student_email"`
	IsTeam          bool           `db:"is_team"`
	TeamName        string         `db:"team_name"`
	TeamMembers     pq.StringArray `db:"team_members"`
	AdditionalInfo  string         `db:"additional_info"`
	PaymentStatus   string         `db:"payment_status"`
	PaymentAmount   float64        `db:"payment_amount"`
	Status          string         `db:"status"`
	SubmittedAt     time.Time      `db:"submitted_at"`
	ReviewedAt      null.Time      `db:"reviewed_at"`
	ReviewedBy      null.String    `db:"reviewed_by"`
	Remarks         null.String    `db:"remarks"`
	RejectionReason null.String    `db:"rejection_reason"`
	RejectionDate   null.Time      `db:"rejection_date"`
	ApprovalDate    null.Time      `db:"approval_date"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

func pack(app application.Application) applicationRow {
	return applicationRow{
		ID:              app.ID,
		EventID:         app.EventID,
		StudentID:       app.StudentID,
		StudentName:     app.StudentName,
		StudentEmail:    app.StudentEmail,
		IsTeam:          app.IsTeam,
		TeamName:        app.TeamName,
		TeamMembers:     pq.StringArray(app.TeamMembers),
		AdditionalInfo:  app.AdditionalInfo,
		PaymentStatus:   app.PaymentStatus,
		PaymentAmount:   app.PaymentAmount,
		Status:          string(app.Status),
		SubmittedAt:     app.SubmittedAt.UTC(),
		ReviewedAt:      app.ReviewedAt,
		ReviewedBy:      app.ReviewedBy,
		Remarks:         app.Remarks,
		RejectionReason: app.RejectionReason,
		RejectionDate:   app.RejectionDate,
		ApprovalDate:    app.ApprovalDate,
		CreatedAt:       app.CreatedAt.UTC(),
		UpdatedAt:       app.UpdatedAt.UTC(),
	}
}

func (row applicationRow) unpack() application.Application {
	return application.Application{
		ID:              row.ID,
		EventID:         row.EventID,
		StudentID:       row.StudentID,
		StudentName:     row.StudentName,
		StudentEmail:    row.StudentEmail,
		IsTeam:          row.IsTeam,
		TeamName:        row.TeamName,
		TeamMembers:     []string(row.TeamMembers),
		AdditionalInfo:  row.AdditionalInfo,
		PaymentStatus:   row.PaymentStatus,
		PaymentAmount:   row.PaymentAmount,
		Status:          application.Status(row.Status),
		SubmittedAt:     row.SubmittedAt.UTC(),
		ReviewedAt:      row.ReviewedAt,
		ReviewedBy:      row.ReviewedBy,
		Remarks:         row.Remarks,
		RejectionReason: row.RejectionReason,
		RejectionDate:   row.RejectionDate,
		ApprovalDate:    row.ApprovalDate,
		CreatedAt:       row.CreatedAt.UTC(),
		UpdatedAt:       row.UpdatedAt.UTC(),
	}
}

func unpackSlice(rows []applicationRow) []application.Application {
	apps := make([]application.Application, 0, len(rows))
	for _, row := range rows {
		apps = append(apps, row.unpack())
	}
	return apps
}

func (repo *applicationRepository) CreateApplication(app application.Application) (application.Application, error) {
	_, err := repo.db.NamedExec(`
		INSERT INTO application (
			id, event_id, student_id, student_name, student_email,
			is_team, team_name, team_members, additional_info,
			payment_status, payment_amount, status, submitted_at,
			created_at, updated_at
		) VALUES (
			:id, :event_id, :student_id, :student_name, :student_email,
			:is_team, :team_name, :team_members, :additional_info,
			:payment_status, :payment_amount, :status, :submitted_at,
			:created_at, :updated_at
		)`,
		pack(app),
	)
	if err != nil {
		if pqErr, ok := errors.Cause(err).(*pq.Error); ok && pqErr.Code == pqUniqueViolation {
			return application.Application{}, application.ErrDuplicateApplication
		}
		return application.Application{}, errors.Wrap(err, "creating application")
	}
	return app, nil
}

func (repo *applicationRepository) GetApplicationByID(id string) (application.Application, error) {
	var row applicationRow
	err := repo.db.Get(&row, `SELECT * FROM application WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return application.Application{}, application.ErrNotFound
	} else if err != nil {
		return application.Application{}, errors.Wrap(err, "getting application by ID")
	}
	return row.unpack(), nil
}

func (repo *applicationRepository) GetApplicationByEventAndStudent(eventID, studentID string) (application.Application, error) {
	var row applicationRow
	err := repo.db.Get(&row, `SELECT * FROM application WHERE event_id = $1 AND student_id = $2`, eventID, studentID)
	if err == sql.ErrNoRows {
		return application.Application{}, application.ErrNotFound
	} else if err != nil {
		return application.Application{}, errors.Wrap(err, "getting application by event and student")
	}
	return row.unpack(), nil
}

func (repo *applicationRepository) QueryApplicationsByEvent(eventID string) ([]application.Application, error) {
	var rows []applicationRow
	err := repo.db.Select(&rows, `SELECT * FROM application WHERE event_id = $1 ORDER BY submitted_at`, eventID)
	if err != nil {
		return nil, errors.Wrap(err, "querying applications by event")
	}
	return unpackSlice(rows), nil
}

func (repo *applicationRepository) QueryApplicationsByStudent(studentID string) ([]application.Application, error) {
	var rows []applicationRow
	err := repo.db.Select(&rows, `SELECT * FROM application WHERE student_id = $1 ORDER BY submitted_at`, studentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying applications by student")
	}
	return unpackSlice(rows), nil
}

func (repo *applicationRepository) UpdateApplicationStatus(
	app application.Application, from ...application.Status,
) (application.Application, error) {
	sources := make([]string, 0, len(from))
	for _, s := range from {
		sources = append(sources, string(s))
	}

	// the status guard makes the check-and-set atomic: a concurrent
	// transition that committed first leaves no matching row
	res, err := repo.db.Exec(`
		UPDATE application SET
			status = $2, reviewed_at = $3, reviewed_by = $4, remarks = $5,
			rejection_reason = $6, rejection_date = $7, approval_date = $8,
			updated_at = $9
		WHERE id = $1 AND status = ANY($10)`,
		app.ID, string(app.Status), app.ReviewedAt, app.ReviewedBy, app.Remarks,
		app.RejectionReason, app.RejectionDate, app.ApprovalDate,
		app.UpdatedAt.UTC(), pq.Array(sources),
	)
	if err != nil {
		return application.Application{}, errors.Wrap(err, "updating application status")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return application.Application{}, errors.Wrap(err, "updating application status")
	}
	if n == 0 {
		if _, err = repo.GetApplicationByID(app.ID); err != nil {
			return application.Application{}, err
		}
		return application.Application{}, application.ErrInvalidTransition
	}
	return app, nil
}

func (repo *applicationRepository) GetApplicationStats() (application.Stats, error) {
	rows, err := repo.db.Query(`SELECT status, COUNT(*) FROM application GROUP BY status`)
	if err != nil {
		return application.Stats{}, errors.Wrap(err, "querying application stats")
	}
	defer func() { _ = rows.Close() }()

	var stats application.Stats
	for rows.Next() {
		var status string
		var count int
		if err = rows.Scan(&status, &count); err != nil {
			return application.Stats{}, errors.Wrap(err, "scanning application stats")
		}
		stats.Total += count
		switch application.Status(status) {
		case application.StatusPending:
			stats.Pending = count
		case application.StatusApproved:
			stats.Approved = count
		case application.StatusRejected:
			stats.Rejected = count
		}
	}
	if err = rows.Err(); err != nil {
		return application.Stats{}, errors.Wrap(err, "querying application stats")
	}
	return stats, nil
}

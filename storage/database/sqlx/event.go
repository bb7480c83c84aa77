package sqlxrepos

import (
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/tukio/core/event"
)

type eventRepository struct {
	db *sqlx.DB
}

var _ event.Repository = (*eventRepository)(nil) // interface compliance check

func NewEventRepository(db *sqlx.DB) *eventRepository {
	return &eventRepository{db: db}
}

type eventRow struct {
	ID                   string    `db:"id"`
	Title                string    `db:"title"`
	Description          string    `db:"description"`
	CoordinatorID        string    `db:"coordinator_id"`
	MaxParticipants      int       `db:"max_participants"`
	ApplicationCount     int       `db:"application_count"`
	TeamSize             int       `db:"team_size"`
	RegistrationDeadline time.Time `db:"registration_deadline"`
	IsActive             bool      `db:"is_active"`
	CreatedAt            time.Time `db:"created_at"`
	UpdatedAt            time.Time `db:"updated_at"`
}

func (row eventRow) unpack() event.Event {
	return event.Event{
		ID:                   row.ID,
		Title:                row.Title,
		Description:          row.Description,
		CoordinatorID:        row.CoordinatorID,
		MaxParticipants:      row.MaxParticipants,
		ApplicationCount:     row.ApplicationCount,
		TeamSize:             row.TeamSize,
		RegistrationDeadline: row.RegistrationDeadline.UTC(),
		IsActive:             row.IsActive,
		CreatedAt:            row.CreatedAt.UTC(),
		UpdatedAt:            row.UpdatedAt.UTC(),
	}
}

func (repo *eventRepository) GetEventByID(id string) (event.Event, error) {
	var row eventRow
	err := repo.db.Get(&row, `SELECT * FROM "event" WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return event.Event{}, event.ErrNotFound
	} else if err != nil {
		return event.Event{}, errors.Wrap(err, "getting event by ID")
	}
	return row.unpack(), nil
}

func (repo *eventRepository) IncrementApplicationCount(id string) error {
	res, err := repo.db.Exec(
		`UPDATE "event" SET application_count = application_count + 1, updated_at = $2 WHERE id = $1`,
		id, time.Now().UTC(),
	)
	if err != nil {
		return errors.Wrap(err, "incrementing application count")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "incrementing application count")
	}
	if n == 0 {
		return event.ErrNotFound
	}
	return nil
}

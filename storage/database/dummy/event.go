package dummydb

import (
	"time"

	"github.com/trezcool/tukio/core/event"
)

type eventRepository struct {
	db *eventTable
}

var _ event.Repository = (*eventRepository)(nil) // interface compliance check

func NewEventRepository(db *DB) *eventRepository {
	return &eventRepository{db: db.event}
}

// CreateEvent seeds an event; event creation is owned by the event-editing
// collaborator in production, so only the dummy repository exposes it.
func (repo *eventRepository) CreateEvent(evt event.Event) (event.Event, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.table[evt.ID] = &evt
	return evt, nil
}

func (repo *eventRepository) GetEventByID(id string) (event.Event, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if evt, ok := repo.db.table[id]; ok {
		return *evt, nil
	}
	return event.Event{}, event.ErrNotFound
}

func (repo *eventRepository) IncrementApplicationCount(id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	evt, ok := repo.db.table[id]
	if !ok {
		return event.ErrNotFound
	}
	evt.ApplicationCount++
	evt.UpdatedAt = time.Now().UTC()
	return nil
}

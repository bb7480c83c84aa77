package dummydb

import (
	"sync"

	"github.com/trezcool/tukio/core/application"
	"github.com/trezcool/tukio/core/event"
)

type (
	DB struct {
		event       *eventTable
		application *applicationTable
	}

	eventTable struct {
		sync.RWMutex
		table map[string]*event.Event
	}

	applicationTable struct {
		sync.RWMutex
		table map[string]*application.Application
	}
)

func Open() (*DB, error) {
	db := &DB{
		event:       &eventTable{table: make(map[string]*event.Event)},
		application: &applicationTable{table: make(map[string]*application.Application)},
	}
	return db, nil
}

// Reset clears all tables; for tests.
func (db *DB) Reset() {
	db.event.Lock()
	db.event.table = make(map[string]*event.Event)
	db.event.Unlock()

	db.application.Lock()
	db.application.table = make(map[string]*application.Application)
	db.application.Unlock()
}

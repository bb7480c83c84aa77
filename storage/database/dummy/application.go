package dummydb

import (
	"sort"

	"github.com/trezcool/tukio/core/application"
)

type applicationRepository struct {
	db *applicationTable
}

var _ application.Repository = (*applicationRepository)(nil) // interface compliance check

func NewApplicationRepository(db *DB) *applicationRepository {
	return &applicationRepository{db: db.application}
}

func (repo *applicationRepository) query() []application.Application {
	apps := make([]application.Application, 0, len(repo.db.table))
	for _, app := range repo.db.table {
		apps = append(apps, *app)
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].SubmittedAt.Before(apps[j].SubmittedAt) })
	return apps
}

func (repo *applicationRepository) CreateApplication(app application.Application) (application.Application, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, existing := range repo.db.table {
		if existing.EventID == app.EventID && existing.StudentID == app.StudentID {
			return application.Application{}, application.ErrDuplicateApplication
		}
	}
	repo.db.table[app.ID] = &app
	return app, nil
}

func (repo *applicationRepository) GetApplicationByID(id string) (application.Application, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if app, ok := repo.db.table[id]; ok {
		return *app, nil
	}
	return application.Application{}, application.ErrNotFound
}

func (repo *applicationRepository) GetApplicationByEventAndStudent(eventID, studentID string) (application.Application, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, app := range repo.db.table {
		if app.EventID == eventID && app.StudentID == studentID {
			return *app, nil
		}
	}
	return application.Application{}, application.ErrNotFound
}

func (repo *applicationRepository) QueryApplicationsByEvent(eventID string) ([]application.Application, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	apps := make([]application.Application, 0)
	for _, app := range repo.query() {
		if app.EventID == eventID {
			apps = append(apps, app)
		}
	}
	return apps, nil
}

func (repo *applicationRepository) QueryApplicationsByStudent(studentID string) ([]application.Application, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	apps := make([]application.Application, 0)
	for _, app := range repo.query() {
		if app.StudentID == studentID {
			apps = append(apps, app)
		}
	}
	return apps, nil
}

func (repo *applicationRepository) UpdateApplicationStatus(
	app application.Application, from ...application.Status,
) (application.Application, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	stored, ok := repo.db.table[app.ID]
	if !ok {
		return application.Application{}, application.ErrNotFound
	}
	var legal bool
	for _, s := range from {
		if stored.Status == s {
			legal = true
			break
		}
	}
	if !legal {
		return application.Application{}, application.ErrInvalidTransition
	}
	repo.db.table[app.ID] = &app
	return app, nil
}

func (repo *applicationRepository) GetApplicationStats() (application.Stats, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var stats application.Stats
	for _, app := range repo.db.table {
		stats.Total++
		switch app.Status {
		case application.StatusPending:
			stats.Pending++
		case application.StatusApproved:
			stats.Approved++
		case application.StatusRejected:
			stats.Rejected++
		}
	}
	return stats, nil
}

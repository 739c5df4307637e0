// Package dummydb is an in-memory storage backend used by the test suites.
// It implements every core repository against plain maps behind one lock.
package dummydb

import (
	"sync"

	"github.com/moflotas/ipts-backend/core/account"
	"github.com/moflotas/ipts-backend/core/application"
	"github.com/moflotas/ipts-backend/core/file"
	"github.com/moflotas/ipts-backend/core/ledger"
	"github.com/moflotas/ipts-backend/core/notification"
	"github.com/moflotas/ipts-backend/core/project"
	"github.com/moflotas/ipts-backend/core/store"
)

type reportKey struct {
	applicationID int
	reporterEmail string
}

// DB holds every table. Cross-table operations (purchases, feedback credits,
// cascades) take the single lock, which stands in for the real backend's
// transactions.
type DB struct {
	sync.RWMutex
	pkCount int

	accounts      map[string]*account.Account
	projects      map[int]*project.Project
	activities    map[int]*project.Activity
	competences   map[int]*project.Competence
	applications  map[int]*application.Application
	reports       map[reportKey]*application.VolunteeringReport
	feedbacks     map[int]*application.Feedback
	transactions  map[int]*ledger.Transaction
	notifications map[int]*notification.Notification
	products      map[int]*store.Product
	varieties     map[int]*store.Variety
	stockChanges  map[int]*store.StockChange
	colors        map[int]*store.Color
	files         map[int]*file.StaticFile
}

func Open() (*DB, error) {
	return &DB{
		accounts:      make(map[string]*account.Account),
		projects:      make(map[int]*project.Project),
		activities:    make(map[int]*project.Activity),
		competences:   make(map[int]*project.Competence),
		applications:  make(map[int]*application.Application),
		reports:       make(map[reportKey]*application.VolunteeringReport),
		feedbacks:     make(map[int]*application.Feedback),
		transactions:  make(map[int]*ledger.Transaction),
		notifications: make(map[int]*notification.Notification),
		products:      make(map[int]*store.Product),
		varieties:     make(map[int]*store.Variety),
		stockChanges:  make(map[int]*store.StockChange),
		colors:        make(map[int]*store.Color),
		files:         make(map[int]*file.StaticFile),
	}, nil
}

// nextPK must be called with the write lock held.
func (db *DB) nextPK() int {
	db.pkCount++
	return db.pkCount
}

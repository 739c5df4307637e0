package dummydb

import (
	"context"
	"sort"

	"github.com/moflotas/ipts-backend/core"
	"github.com/moflotas/ipts-backend/core/application"
	"github.com/moflotas/ipts-backend/core/ledger"
	"github.com/moflotas/ipts-backend/core/notification"
	"github.com/moflotas/ipts-backend/core/project"
)

type applicationRepository struct {
	db *DB
}

var _ application.Repository = (*applicationRepository)(nil) // interface compliance check

func NewApplicationRepository(db *DB) application.Repository {
	return &applicationRepository{db: db}
}

func (repo *applicationRepository) CreateApplication(ctx context.Context, app application.Application) (application.Application, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, existing := range repo.db.applications {
		if existing.ActivityID == app.ActivityID && existing.ApplicantEmail == app.ApplicantEmail {
			return application.Application{}, core.ConflictError(application.ErrExists)
		}
	}
	app.ID = repo.db.nextPK()
	repo.db.applications[app.ID] = &app
	return app, nil
}

func (repo *applicationRepository) GetApplication(ctx context.Context, id int) (application.Application, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if app, ok := repo.db.applications[id]; ok {
		return *app, nil
	}
	return application.Application{}, core.NotFoundError(application.ErrNotFound)
}

func (repo *applicationRepository) GetApplicationByApplicant(ctx context.Context, activityID int, applicantEmail string) (application.Application, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, app := range repo.db.applications {
		if app.ActivityID == activityID && app.ApplicantEmail == applicantEmail {
			return *app, nil
		}
	}
	return application.Application{}, core.NotFoundError(application.ErrNotFound)
}

func (repo *applicationRepository) UpdateApplication(ctx context.Context, app application.Application) (application.Application, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.applications[app.ID]; !ok {
		return application.Application{}, core.NotFoundError(application.ErrNotFound)
	}
	repo.db.applications[app.ID] = &app
	return app, nil
}

func (repo *applicationRepository) DeleteApplication(ctx context.Context, id int) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.applications[id]; !ok {
		return core.NotFoundError(application.ErrNotFound)
	}
	delete(repo.db.applications, id)
	for key := range repo.db.reports {
		if key.applicationID == id {
			delete(repo.db.reports, key)
		}
	}
	delete(repo.db.feedbacks, id)
	return nil
}

func (repo *applicationRepository) GetActivity(ctx context.Context, id int) (project.Activity, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if act, ok := repo.db.activities[id]; ok {
		return *act, nil
	}
	return project.Activity{}, core.NotFoundError(project.ErrActivityNotFound)
}

func (repo *applicationRepository) GetProject(ctx context.Context, id int) (project.Project, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if p, ok := repo.db.projects[id]; ok {
		return *p, nil
	}
	return project.Project{}, core.NotFoundError(project.ErrNotFound)
}

func (repo *applicationRepository) QueryAdminEmails(ctx context.Context) ([]string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.db.adminEmails(), nil
}

func (repo *applicationRepository) GetReport(ctx context.Context, applicationID int, reporterEmail string) (application.VolunteeringReport, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if r, ok := repo.db.reports[reportKey{applicationID, reporterEmail}]; ok {
		return *r, nil
	}
	return application.VolunteeringReport{}, core.NotFoundError(application.ErrReportNotFound)
}

func (repo *applicationRepository) QueryApplicantReports(ctx context.Context, projectID int, applicantEmail string) ([]application.VolunteeringReport, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	reports := make([]application.VolunteeringReport, 0)
	for _, r := range repo.db.reports {
		app, ok := repo.db.applications[r.ApplicationID]
		if !ok || app.ApplicantEmail != applicantEmail {
			continue
		}
		act, ok := repo.db.activities[app.ActivityID]
		if !ok || act.ProjectID != projectID {
			continue
		}
		reports = append(reports, *r)
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].Time.Before(reports[j].Time) })
	return reports, nil
}

func (repo *applicationRepository) CreateReport(ctx context.Context, r application.VolunteeringReport) (application.VolunteeringReport, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	key := reportKey{r.ApplicationID, r.ReporterEmail}
	if _, ok := repo.db.reports[key]; ok {
		return application.VolunteeringReport{}, core.ConflictError(application.ErrReportExists)
	}
	repo.db.reports[key] = &r
	return r, nil
}

func (repo *applicationRepository) UpdateReport(ctx context.Context, r application.VolunteeringReport) (application.VolunteeringReport, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	key := reportKey{r.ApplicationID, r.ReporterEmail}
	if _, ok := repo.db.reports[key]; !ok {
		return application.VolunteeringReport{}, core.NotFoundError(application.ErrReportNotFound)
	}
	repo.db.reports[key] = &r
	return r, nil
}

func (repo *applicationRepository) DeleteReport(ctx context.Context, applicationID int, reporterEmail string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	key := reportKey{applicationID, reporterEmail}
	if _, ok := repo.db.reports[key]; !ok {
		return core.NotFoundError(application.ErrReportNotFound)
	}
	delete(repo.db.reports, key)
	return nil
}

func (repo *applicationRepository) GetFeedback(ctx context.Context, applicationID int) (application.Feedback, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if fb, ok := repo.db.feedbacks[applicationID]; ok {
		return *fb, nil
	}
	return application.Feedback{}, core.NotFoundError(application.ErrFeedbackNotFound)
}

func (repo *applicationRepository) CreateFeedback(ctx context.Context, fb application.Feedback, tx ledger.Transaction) (application.Feedback, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.feedbacks[fb.ApplicationID]; ok {
		return application.Feedback{}, core.ConflictError(application.ErrFeedbackExists)
	}
	repo.db.feedbacks[fb.ApplicationID] = &fb

	tx.ID = repo.db.nextPK()
	tx.Reference = ledger.FeedbackRef(fb.ApplicationID)
	repo.db.transactions[tx.ID] = &tx

	// the pending claim invitation is now fulfilled
	for _, n := range repo.db.notifications {
		if n.Type != notification.TypeClaimInnopoints {
			continue
		}
		if p, ok := n.Payload.(*notification.ApplicationPayload); ok && p.ApplicationID == fb.ApplicationID {
			n.IsRead = true
		}
	}
	return fb, nil
}

func (repo *applicationRepository) AllFeedbackIn(ctx context.Context, projectID int) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, app := range repo.db.applications {
		act, ok := repo.db.activities[app.ActivityID]
		if !ok || act.ProjectID != projectID || act.Internal {
			continue
		}
		if _, ok := repo.db.feedbacks[app.ID]; !ok {
			return false, nil
		}
	}
	return true, nil
}

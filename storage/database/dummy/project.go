package dummydb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/moflotas/ipts-backend/core"
	"github.com/moflotas/ipts-backend/core/application"
	"github.com/moflotas/ipts-backend/core/project"
)

type projectRepository struct {
	db *DB
}

var _ project.Repository = (*projectRepository)(nil) // interface compliance check

func NewProjectRepository(db *DB) project.Repository {
	return &projectRepository{db: db}
}

func (repo *projectRepository) CreateProject(ctx context.Context, p project.Project, activities []project.Activity) (project.Project, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	p.ID = repo.db.nextPK()
	repo.db.projects[p.ID] = &p
	for _, act := range activities {
		act.ID = repo.db.nextPK()
		act.ProjectID = p.ID
		actCopy := act
		repo.db.activities[act.ID] = &actCopy
	}
	return p, nil
}

func (repo *projectRepository) GetProject(ctx context.Context, id int) (project.Project, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if p, ok := repo.db.projects[id]; ok {
		return *p, nil
	}
	return project.Project{}, core.NotFoundError(project.ErrNotFound)
}

func (repo *projectRepository) QueryProjects(ctx context.Context, filter project.QueryFilter) ([]project.Project, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	projects := make([]project.Project, 0, len(repo.db.projects))
	for _, p := range repo.db.projects {
		if p.Stage == project.StageDraft {
			continue
		}
		switch filter.Type {
		case "ongoing":
			if p.Stage != project.StageOngoing {
				continue
			}
		case "past":
			if p.Stage == project.StageOngoing {
				continue
			}
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(filter.Search)) {
			continue
		}
		projects = append(projects, *p)
	}
	sort.Slice(projects, func(i, j int) bool {
		if !filter.Ordering.Ascending {
			i, j = j, i
		}
		return projects[i].CreationTime.Before(projects[j].CreationTime)
	})
	return projects, nil
}

func (repo *projectRepository) QueryDraftProjects(ctx context.Context, creatorEmail string) ([]project.Project, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	projects := make([]project.Project, 0)
	for _, p := range repo.db.projects {
		if p.Stage == project.StageDraft && p.CreatorEmail == creatorEmail {
			projects = append(projects, *p)
		}
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].ID < projects[j].ID })
	return projects, nil
}

func (repo *projectRepository) UpdateProject(ctx context.Context, p project.Project) (project.Project, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.projects[p.ID]; !ok {
		return project.Project{}, core.NotFoundError(project.ErrNotFound)
	}
	repo.db.projects[p.ID] = &p
	return p, nil
}

func (repo *projectRepository) SetProjectStage(ctx context.Context, id int, stage project.Stage, review project.ReviewStatus, adminFeedback null.String) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	p, ok := repo.db.projects[id]
	if !ok {
		return core.NotFoundError(project.ErrNotFound)
	}
	p.Stage = stage
	p.ReviewStatus = review
	p.AdminFeedback = adminFeedback
	return nil
}

func (repo *projectRepository) DeleteProject(ctx context.Context, id int) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.projects[id]; !ok {
		return core.NotFoundError(project.ErrNotFound)
	}
	delete(repo.db.projects, id)
	for actID, act := range repo.db.activities {
		if act.ProjectID != id {
			continue
		}
		delete(repo.db.activities, actID)
		for appID, app := range repo.db.applications {
			if app.ActivityID == actID {
				delete(repo.db.applications, appID)
			}
		}
	}
	return nil
}

func (repo *projectRepository) GetActivity(ctx context.Context, id int) (project.Activity, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if act, ok := repo.db.activities[id]; ok {
		return *act, nil
	}
	return project.Activity{}, core.NotFoundError(project.ErrActivityNotFound)
}

func (repo *projectRepository) QueryProjectActivities(ctx context.Context, projectID int, includeInternal bool) ([]project.Activity, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	activities := make([]project.Activity, 0)
	for _, act := range repo.db.activities {
		if act.ProjectID != projectID {
			continue
		}
		if act.Internal && !includeInternal {
			continue
		}
		activities = append(activities, *act)
	}
	sort.Slice(activities, func(i, j int) bool { return activities[i].ID < activities[j].ID })
	return activities, nil
}

func (repo *projectRepository) CreateActivity(ctx context.Context, act project.Activity) (project.Activity, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	act.ID = repo.db.nextPK()
	repo.db.activities[act.ID] = &act
	return act, nil
}

func (repo *projectRepository) UpdateActivity(ctx context.Context, act project.Activity, cascadeHours bool) (project.Activity, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.activities[act.ID]; !ok {
		return project.Activity{}, core.NotFoundError(project.ErrActivityNotFound)
	}
	repo.db.activities[act.ID] = &act
	if cascadeHours {
		for _, app := range repo.db.applications {
			if app.ActivityID == act.ID && app.Status != application.StatusRejected {
				app.ActualHours = act.WorkingHours
			}
		}
	}
	return act, nil
}

func (repo *projectRepository) DeleteActivity(ctx context.Context, id int) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.activities[id]; !ok {
		return core.NotFoundError(project.ErrActivityNotFound)
	}
	delete(repo.db.activities, id)
	for appID, app := range repo.db.applications {
		if app.ActivityID == id {
			delete(repo.db.applications, appID)
		}
	}
	return nil
}

func (repo *projectRepository) CreateModerationActivity(ctx context.Context, projectID int, moderators []string) (project.Activity, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	act := project.Activity{
		ID:          repo.db.nextPK(),
		ProjectID:   projectID,
		Name:        null.StringFrom(project.ModerationActivityName),
		RewardRate:  project.IptsPerHour,
		FixedReward: true,
		Internal:    true,
	}
	repo.db.activities[act.ID] = &act

	now := time.Now().UTC()
	for _, email := range moderators {
		app := application.Application{
			ID:              repo.db.nextPK(),
			ActivityID:      act.ID,
			ApplicantEmail:  email,
			ApplicationTime: now,
			Status:          application.StatusApproved,
		}
		repo.db.applications[app.ID] = &app
	}
	return act, nil
}

func (repo *projectRepository) CountApplications(ctx context.Context, activityID int, approvedOnly bool) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	count := 0
	for _, app := range repo.db.applications {
		if app.ActivityID != activityID {
			continue
		}
		if approvedOnly && app.Status != application.StatusApproved {
			continue
		}
		count++
	}
	return count, nil
}

func (repo *projectRepository) EarliestApplicationTime(ctx context.Context, activityID int) (time.Time, bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var earliest time.Time
	found := false
	for _, app := range repo.db.applications {
		if app.ActivityID != activityID {
			continue
		}
		if !found || app.ApplicationTime.Before(earliest) {
			earliest = app.ApplicationTime
			found = true
		}
	}
	return earliest, found, nil
}

func (repo *projectRepository) QueryProjectApplications(ctx context.Context, projectID int, excludeInternal bool) ([]project.ApplicationRef, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	refs := make([]project.ApplicationRef, 0)
	for _, app := range repo.db.applications {
		act, ok := repo.db.activities[app.ActivityID]
		if !ok || act.ProjectID != projectID {
			continue
		}
		if excludeInternal && act.Internal {
			continue
		}
		refs = append(refs, project.ApplicationRef{
			ApplicationID:  app.ID,
			ActivityID:     act.ID,
			ApplicantEmail: app.ApplicantEmail,
		})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ApplicationID < refs[j].ApplicationID })
	return refs, nil
}

func (repo *projectRepository) QueryAdminEmails(ctx context.Context) ([]string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.db.adminEmails(), nil
}

// adminEmails must be called with at least the read lock held.
func (db *DB) adminEmails() []string {
	emails := make([]string, 0)
	for _, acc := range db.accounts {
		if acc.IsAdmin {
			emails = append(emails, acc.Email)
		}
	}
	sort.Strings(emails)
	return emails
}

func (repo *projectRepository) QueryCompetences(ctx context.Context) ([]project.Competence, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	competences := make([]project.Competence, 0, len(repo.db.competences))
	for _, c := range repo.db.competences {
		competences = append(competences, *c)
	}
	sort.Slice(competences, func(i, j int) bool { return competences[i].ID < competences[j].ID })
	return competences, nil
}

func (repo *projectRepository) CreateCompetence(ctx context.Context, c project.Competence) (project.Competence, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, existing := range repo.db.competences {
		if existing.Name == c.Name {
			return project.Competence{}, core.ConflictError(project.ErrCompetenceExists)
		}
	}
	c.ID = repo.db.nextPK()
	repo.db.competences[c.ID] = &c
	return c, nil
}

func (repo *projectRepository) UpdateCompetence(ctx context.Context, c project.Competence) (project.Competence, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.competences[c.ID]; !ok {
		return project.Competence{}, core.NotFoundError(project.ErrCompetenceNotFound)
	}
	repo.db.competences[c.ID] = &c
	return c, nil
}

func (repo *projectRepository) DeleteCompetence(ctx context.Context, id int) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.competences[id]; !ok {
		return core.NotFoundError(project.ErrCompetenceNotFound)
	}
	delete(repo.db.competences, id)
	return nil
}

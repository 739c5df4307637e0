package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/moflotas/ipts-backend/core"
	"github.com/moflotas/ipts-backend/core/account"
	"github.com/moflotas/ipts-backend/core/application"
	"github.com/moflotas/ipts-backend/core/project"
)

// NewLogger returns a logger that swallows everything. Service tests assert
// on state, not log output.
func NewLogger() core.Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Enable(bool)                           {}
func (nopLogger) Debug(string, ...interface{})          {}
func (nopLogger) Info(string, ...interface{})           {}
func (nopLogger) Error(string, error, ...interface{})   {}
func (nopLogger) Fatal(msg string, err error, _ ...interface{}) {
	panic(msg + ": " + err.Error())
}

func CreateAccount(t *testing.T, repo account.Repository, email, fullName string, isAdmin bool) account.Account {
	t.Helper()
	acc, err := repo.CreateAccount(context.Background(), account.Account{
		Email:    email,
		FullName: fullName,
		IsAdmin:  isAdmin,
	})
	if err != nil {
		t.Fatalf("CreateAccount() failed: %v", err)
	}
	return acc
}

func CreateProject(
	t *testing.T,
	repo project.Repository,
	name, creatorEmail string,
	stage project.Stage,
	moderators ...string,
) project.Project {
	t.Helper()
	proj, err := repo.CreateProject(context.Background(), project.Project{
		Name:         name,
		Organizer:    "Organizer",
		CreatorEmail: creatorEmail,
		Moderators:   append([]string{creatorEmail}, moderators...),
		Stage:        stage,
		ReviewStatus: project.ReviewNone,
		CreationTime: time.Now().UTC(),
	}, nil)
	if err != nil {
		t.Fatalf("CreateProject() failed: %v", err)
	}
	return proj
}

// CreateActivity adds a complete, published activity with one competence.
func CreateActivity(t *testing.T, repo project.Repository, projectID int, name string, workingHours int) project.Activity {
	t.Helper()
	now := time.Now().UTC()
	act, err := repo.CreateActivity(context.Background(), project.Activity{
		ProjectID:         projectID,
		Name:              null.StringFrom(name),
		StartDate:         null.TimeFrom(now),
		EndDate:           null.TimeFrom(now.Add(24 * time.Hour)),
		WorkingHours:      null.IntFrom(workingHours),
		RewardRate:        project.IptsPerHour,
		PeopleRequired:    10,
		FeedbackQuestions: append([]string(nil), project.DefaultFeedbackQuestions...),
		Competences:       []int{1},
	})
	if err != nil {
		t.Fatalf("CreateActivity() failed: %v", err)
	}
	return act
}

func CreateApplication(
	t *testing.T,
	repo application.Repository,
	activityID int,
	applicantEmail string,
	status application.Status,
	applicationTime ...time.Time,
) application.Application {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(applicationTime) > 0 {
		tstamp = applicationTime[0].UTC()
	}
	app, err := repo.CreateApplication(context.Background(), application.Application{
		ActivityID:      activityID,
		ApplicantEmail:  applicantEmail,
		ApplicationTime: tstamp,
		Status:          status,
	})
	if err != nil {
		t.Fatalf("CreateApplication() failed: %v", err)
	}
	return app
}

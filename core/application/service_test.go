package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/moflotas/ipts-backend/core"
	"github.com/moflotas/ipts-backend/core/application"
	"github.com/moflotas/ipts-backend/core/ledger"
	"github.com/moflotas/ipts-backend/core/notification"
	"github.com/moflotas/ipts-backend/core/project"
	emailsvc "github.com/moflotas/ipts-backend/services/email"
	dummydb "github.com/moflotas/ipts-backend/storage/database/dummy"
	"github.com/moflotas/ipts-backend/tests"
)

var (
	creator   = core.Actor{Email: "creator@innopolis.university"}
	volunteer = core.Actor{Email: "v@innopolis.university"}
)

type testEnv struct {
	db        *dummydb.DB
	svc       application.Service
	repo      application.Repository
	projRepo  project.Repository
	ledgerSvc ledger.Service
	notifSvc  notification.Service
}

// setup seeds one project at the given stage with one published activity
// (5 working hours, the default reward rate, moderated by the creator).
func setup(t *testing.T, stage project.Stage) (testEnv, project.Project, project.Activity) {
	t.Helper()
	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("dummydb.Open() failed: %v", err)
	}
	conf := core.NewConfig()
	logger := testutil.NewLogger()
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	emailsvc.ClearSentMessages()

	repo := dummydb.NewApplicationRepository(db)
	projRepo := dummydb.NewProjectRepository(db)
	notifSvc := notification.NewService(dummydb.NewNotificationRepository(db), mailSvc, conf, logger)
	env := testEnv{
		db:        db,
		svc:       application.NewService(repo, notifSvc, logger),
		repo:      repo,
		projRepo:  projRepo,
		ledgerSvc: ledger.NewService(dummydb.NewLedgerRepository(db)),
		notifSvc:  notifSvc,
	}
	proj := testutil.CreateProject(t, projRepo, "Hackathon", creator.Email, stage)
	act := testutil.CreateActivity(t, projRepo, proj.ID, "Help out", 5)
	return env, proj, act
}

func TestApply(t *testing.T) {
	ctx := context.Background()

	t.Run("project not ongoing", func(t *testing.T) {
		env, proj, act := setup(t, project.StageFinalizing)
		_, err := env.svc.Apply(ctx, volunteer, proj.ID, act.ID, application.NewApplication{})
		if kind := core.ErrorKind(err); kind != core.KindInvalidState {
			t.Errorf("Apply() kind = %v, want %v", kind, core.KindInvalidState)
		}
	})

	t.Run("draft activity", func(t *testing.T) {
		env, proj, act := setup(t, project.StageOngoing)
		act.Draft = true
		if _, err := env.projRepo.UpdateActivity(ctx, act, false); err != nil {
			t.Fatalf("UpdateActivity() failed: %v", err)
		}
		_, err := env.svc.Apply(ctx, volunteer, proj.ID, act.ID, application.NewApplication{})
		if kind := core.ErrorKind(err); kind != core.KindInvalidState {
			t.Errorf("Apply() kind = %v, want %v", kind, core.KindInvalidState)
		}
	})

	t.Run("telegram required", func(t *testing.T) {
		env, proj, act := setup(t, project.StageOngoing)
		act.TelegramRequired = true
		if _, err := env.projRepo.UpdateActivity(ctx, act, false); err != nil {
			t.Fatalf("UpdateActivity() failed: %v", err)
		}
		_, err := env.svc.Apply(ctx, volunteer, proj.ID, act.ID, application.NewApplication{})
		if kind := core.ErrorKind(err); kind != core.KindConflict {
			t.Errorf("Apply() kind = %v, want %v", kind, core.KindConflict)
		}
		if _, err = env.svc.Apply(ctx, volunteer, proj.ID, act.ID, application.NewApplication{
			Telegram: null.StringFrom("@vol"),
		}); err != nil {
			t.Errorf("Apply() with telegram failed: %v", err)
		}
	})

	t.Run("past deadline", func(t *testing.T) {
		env, proj, act := setup(t, project.StageOngoing)
		act.ApplicationDeadline = null.TimeFrom(time.Now().UTC().Add(-time.Hour))
		if _, err := env.projRepo.UpdateActivity(ctx, act, false); err != nil {
			t.Fatalf("UpdateActivity() failed: %v", err)
		}
		_, err := env.svc.Apply(ctx, volunteer, proj.ID, act.ID, application.NewApplication{})
		if kind := core.ErrorKind(err); kind != core.KindConflict {
			t.Errorf("Apply() kind = %v, want %v", kind, core.KindConflict)
		}
	})

	t.Run("ok and duplicate", func(t *testing.T) {
		env, proj, act := setup(t, project.StageOngoing)
		app, err := env.svc.Apply(ctx, volunteer, proj.ID, act.ID, application.NewApplication{
			Comment: null.StringFrom("count me in"),
		})
		if err != nil {
			t.Fatalf("Apply() failed: %v", err)
		}
		if app.Status != application.StatusPending {
			t.Errorf("Apply() status = %q, want %q", app.Status, application.StatusPending)
		}
		// hours are pre-seeded from the activity
		if app.ActualHours.Int != 5 {
			t.Errorf("Apply() actual hours = %d, want 5", app.ActualHours.Int)
		}

		_, err = env.svc.Apply(ctx, volunteer, proj.ID, act.ID, application.NewApplication{})
		if !errors.Is(err, application.ErrExists) {
			t.Errorf("second Apply() error = %v, want %v", err, application.ErrExists)
		}
	})
}

func TestWithdraw(t *testing.T) {
	ctx := context.Background()
	env, proj, act := setup(t, project.StageOngoing)

	app, err := env.svc.Apply(ctx, volunteer, proj.ID, act.ID, application.NewApplication{})
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}
	if _, err = env.notifSvc.Notify(ctx, volunteer.Email, notification.TypeApplicationStatusChanged, &notification.ApplicationPayload{
		ProjectID:     proj.ID,
		ActivityID:    act.ID,
		ApplicationID: app.ID,
	}); err != nil {
		t.Fatalf("Notify() failed: %v", err)
	}

	if err = env.svc.Withdraw(ctx, volunteer, proj.ID, act.ID); err != nil {
		t.Fatalf("Withdraw() failed: %v", err)
	}
	if _, err = env.repo.GetApplication(ctx, app.ID); core.ErrorKind(err) != core.KindNotFound {
		t.Errorf("GetApplication() after Withdraw error = %v, want not found", err)
	}
	// referencing notifications are cleaned up with the application
	notifs, err := env.notifSvc.Query(ctx, volunteer.Email, false)
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if len(notifs) != 0 {
		t.Errorf("notifications after Withdraw = %+v, want none", notifs)
	}

	err = env.svc.Withdraw(ctx, volunteer, proj.ID, act.ID)
	if kind := core.ErrorKind(err); kind != core.KindNotFound {
		t.Errorf("second Withdraw() kind = %v, want %v", kind, core.KindNotFound)
	}
}

func TestSetStatus(t *testing.T) {
	ctx := context.Background()
	env, proj, act := setup(t, project.StageOngoing)

	app, err := env.svc.Apply(ctx, volunteer, proj.ID, act.ID, application.NewApplication{})
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	_, err = env.svc.SetStatus(ctx, volunteer, proj.ID, act.ID, app.ID, application.StatusApproved)
	if kind := core.ErrorKind(err); kind != core.KindForbidden {
		t.Errorf("SetStatus() by applicant kind = %v, want %v", kind, core.KindForbidden)
	}

	_, err = env.svc.SetStatus(ctx, creator, proj.ID, act.ID, app.ID, application.Status("maybe"))
	if _, ok := err.(*core.ValidationError); !ok {
		t.Errorf("SetStatus() with bad status error = %v, want a validation error", err)
	}

	app, err = env.svc.SetStatus(ctx, creator, proj.ID, act.ID, app.ID, application.StatusApproved)
	if err != nil {
		t.Fatalf("SetStatus() failed: %v", err)
	}
	if app.Status != application.StatusApproved {
		t.Errorf("SetStatus() status = %q, want %q", app.Status, application.StatusApproved)
	}
	notifs, err := env.notifSvc.Query(ctx, volunteer.Email, false)
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if len(notifs) != 1 || notifs[0].Type != notification.TypeApplicationStatusChanged {
		t.Fatalf("notifications = %+v, want one %q", notifs, notification.TypeApplicationStatusChanged)
	}

	// re-asserting the same status does not re-notify
	if _, err = env.svc.SetStatus(ctx, creator, proj.ID, act.ID, app.ID, application.StatusApproved); err != nil {
		t.Fatalf("SetStatus() failed: %v", err)
	}
	notifs, err = env.notifSvc.Query(ctx, volunteer.Email, false)
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if len(notifs) != 1 {
		t.Errorf("notifications after no-op SetStatus = %d, want 1", len(notifs))
	}
}

func TestSetActualHours(t *testing.T) {
	ctx := context.Background()
	env, proj, act := setup(t, project.StageOngoing)
	app := testutil.CreateApplication(t, env.repo, act.ID, volunteer.Email, application.StatusPending)

	// only finalizing projects accept hour edits
	_, err := env.svc.SetActualHours(ctx, creator, proj.ID, act.ID, app.ID, 6)
	if kind := core.ErrorKind(err); kind != core.KindInvalidState {
		t.Errorf("SetActualHours() on ongoing kind = %v, want %v", kind, core.KindInvalidState)
	}

	if err = env.projRepo.SetProjectStage(ctx, proj.ID, project.StageFinalizing, project.ReviewNone, null.String{}); err != nil {
		t.Fatalf("SetProjectStage() failed: %v", err)
	}

	_, err = env.svc.SetActualHours(ctx, volunteer, proj.ID, act.ID, app.ID, 6)
	if kind := core.ErrorKind(err); kind != core.KindForbidden {
		t.Errorf("SetActualHours() by applicant kind = %v, want %v", kind, core.KindForbidden)
	}
	_, err = env.svc.SetActualHours(ctx, creator, proj.ID, act.ID, app.ID, -1)
	if _, ok := err.(*core.ValidationError); !ok {
		t.Errorf("SetActualHours(-1) error = %v, want a validation error", err)
	}
	_, err = env.svc.SetActualHours(ctx, creator, proj.ID, act.ID, app.ID, 6)
	if kind := core.ErrorKind(err); kind != core.KindInvalidState {
		t.Errorf("SetActualHours() on pending application kind = %v, want %v", kind, core.KindInvalidState)
	}

	app.Status = application.StatusApproved
	if _, err = env.repo.UpdateApplication(ctx, app); err != nil {
		t.Fatalf("UpdateApplication() failed: %v", err)
	}
	app, err = env.svc.SetActualHours(ctx, creator, proj.ID, act.ID, app.ID, 6)
	if err != nil {
		t.Fatalf("SetActualHours() failed: %v", err)
	}
	if app.ActualHours.Int != 6 {
		t.Errorf("actual hours = %d, want 6", app.ActualHours.Int)
	}

	// fixed-reward activities only accept 0 or 1
	act.FixedReward = true
	if _, err = env.projRepo.UpdateActivity(ctx, act, false); err != nil {
		t.Fatalf("UpdateActivity() failed: %v", err)
	}
	_, err = env.svc.SetActualHours(ctx, creator, proj.ID, act.ID, app.ID, 2)
	if _, ok := err.(*core.ValidationError); !ok {
		t.Errorf("SetActualHours(2) on fixed reward error = %v, want a validation error", err)
	}
	if _, err = env.svc.SetActualHours(ctx, creator, proj.ID, act.ID, app.ID, 1); err != nil {
		t.Errorf("SetActualHours(1) on fixed reward failed: %v", err)
	}
}

func TestReports(t *testing.T) {
	ctx := context.Background()
	env, proj, act := setup(t, project.StageFinalizing)
	app := testutil.CreateApplication(t, env.repo, act.ID, volunteer.Email, application.StatusApproved)

	_, err := env.svc.CreateReport(ctx, volunteer, proj.ID, act.ID, app.ID, application.NewReport{Rating: 5})
	if kind := core.ErrorKind(err); kind != core.KindForbidden {
		t.Errorf("CreateReport() by applicant kind = %v, want %v", kind, core.KindForbidden)
	}

	report, err := env.svc.CreateReport(ctx, creator, proj.ID, act.ID, app.ID, application.NewReport{
		Rating:  4,
		Content: null.StringFrom("solid work"),
	})
	if err != nil {
		t.Fatalf("CreateReport() failed: %v", err)
	}
	if report.ReporterEmail != creator.Email {
		t.Errorf("report reporter = %q, want %q", report.ReporterEmail, creator.Email)
	}

	_, err = env.svc.CreateReport(ctx, creator, proj.ID, act.ID, app.ID, application.NewReport{Rating: 2})
	if !errors.Is(err, application.ErrReportExists) {
		t.Errorf("second CreateReport() error = %v, want %v", err, application.ErrReportExists)
	}

	// a second moderator's report joins the average
	mod := core.Actor{Email: "admin@innopolis.university", IsAdmin: true}
	if _, err = env.svc.CreateReport(ctx, mod, proj.ID, act.ID, app.ID, application.NewReport{Rating: 5}); err != nil {
		t.Fatalf("CreateReport() failed: %v", err)
	}
	info, err := env.svc.ReportInfo(ctx, creator, proj.ID, act.ID, app.ID)
	if err != nil {
		t.Fatalf("ReportInfo() failed: %v", err)
	}
	if len(info.Reports) != 2 {
		t.Errorf("ReportInfo() reports = %d, want 2", len(info.Reports))
	}
	if info.AverageRating != 5 { // (4+5)/2 rounded up
		t.Errorf("ReportInfo() average = %d, want 5", info.AverageRating)
	}

	if _, err = env.svc.UpdateReport(ctx, creator, proj.ID, act.ID, app.ID, application.NewReport{Rating: 3}); err != nil {
		t.Fatalf("UpdateReport() failed: %v", err)
	}
	if err = env.svc.DeleteReport(ctx, creator, proj.ID, act.ID, app.ID); err != nil {
		t.Fatalf("DeleteReport() failed: %v", err)
	}
	err = env.svc.DeleteReport(ctx, creator, proj.ID, act.ID, app.ID)
	if kind := core.ErrorKind(err); kind != core.KindNotFound {
		t.Errorf("second DeleteReport() kind = %v, want %v", kind, core.KindNotFound)
	}
}

func TestSubmitFeedback(t *testing.T) {
	ctx := context.Background()
	env, proj, act := setup(t, project.StageFinished)
	accRepo := dummydb.NewAccountRepository(env.db)
	testutil.CreateAccount(t, accRepo, "admin@innopolis.university", "Ad Min", true)

	app := testutil.CreateApplication(t, env.repo, act.ID, volunteer.Email, application.StatusApproved)
	app.ActualHours = null.IntFrom(5)
	if _, err := env.repo.UpdateApplication(ctx, app); err != nil {
		t.Fatalf("UpdateApplication() failed: %v", err)
	}

	answers := []string{"plenty", "nothing"}

	_, err := env.svc.SubmitFeedback(ctx, creator, proj.ID, act.ID, app.ID, application.NewFeedback{Answers: answers})
	if kind := core.ErrorKind(err); kind != core.KindForbidden {
		t.Errorf("SubmitFeedback() by non-applicant kind = %v, want %v", kind, core.KindForbidden)
	}

	_, err = env.svc.SubmitFeedback(ctx, volunteer, proj.ID, act.ID, app.ID, application.NewFeedback{Answers: []string{"plenty"}})
	if _, ok := err.(*core.ValidationError); !ok {
		t.Errorf("SubmitFeedback() with short answers error = %v, want a validation error", err)
	}

	fb, err := env.svc.SubmitFeedback(ctx, volunteer, proj.ID, act.ID, app.ID, application.NewFeedback{
		Answers:     answers,
		Competences: []int{1},
	})
	if err != nil {
		t.Fatalf("SubmitFeedback() failed: %v", err)
	}
	if fb.ApplicationID != app.ID {
		t.Errorf("feedback application = %d, want %d", fb.ApplicationID, app.ID)
	}

	// submitting is what credits the innopoints, exactly once
	balance, err := env.ledgerSvc.Balance(ctx, volunteer.Email)
	if err != nil {
		t.Fatalf("Balance() failed: %v", err)
	}
	if want := 5 * project.IptsPerHour; balance != want {
		t.Errorf("balance after feedback = %d, want %d", balance, want)
	}

	_, err = env.svc.SubmitFeedback(ctx, volunteer, proj.ID, act.ID, app.ID, application.NewFeedback{Answers: answers})
	if !errors.Is(err, application.ErrFeedbackExists) {
		t.Errorf("second SubmitFeedback() error = %v, want %v", err, application.ErrFeedbackExists)
	}
	balance, err = env.ledgerSvc.Balance(ctx, volunteer.Email)
	if err != nil {
		t.Fatalf("Balance() failed: %v", err)
	}
	if want := 5 * project.IptsPerHour; balance != want {
		t.Errorf("balance after duplicate feedback = %d, want %d", balance, want)
	}

	// the project is fully reported on: moderators and admins hear about it
	for _, email := range []string{creator.Email, "admin@innopolis.university"} {
		notifs, err := env.notifSvc.Query(ctx, email, true)
		if err != nil {
			t.Fatalf("Query() failed: %v", err)
		}
		found := false
		for _, n := range notifs {
			if n.Type == notification.TypeAllFeedbackIn {
				found = true
			}
		}
		if !found {
			t.Errorf("%s notifications = %+v, want a %q", email, notifs, notification.TypeAllFeedbackIn)
		}
	}
}

func TestSubmitFeedbackGuards(t *testing.T) {
	ctx := context.Background()

	t.Run("not approved", func(t *testing.T) {
		env, proj, act := setup(t, project.StageFinished)
		app := testutil.CreateApplication(t, env.repo, act.ID, volunteer.Email, application.StatusPending)
		_, err := env.svc.SubmitFeedback(ctx, volunteer, proj.ID, act.ID, app.ID, application.NewFeedback{
			Answers: []string{"plenty", "nothing"},
		})
		if kind := core.ErrorKind(err); kind != core.KindInvalidState {
			t.Errorf("SubmitFeedback() kind = %v, want %v", kind, core.KindInvalidState)
		}
	})

	t.Run("project not finished", func(t *testing.T) {
		env, proj, act := setup(t, project.StageFinalizing)
		app := testutil.CreateApplication(t, env.repo, act.ID, volunteer.Email, application.StatusApproved)
		_, err := env.svc.SubmitFeedback(ctx, volunteer, proj.ID, act.ID, app.ID, application.NewFeedback{
			Answers: []string{"plenty", "nothing"},
		})
		if kind := core.ErrorKind(err); kind != core.KindInvalidState {
			t.Errorf("SubmitFeedback() kind = %v, want %v", kind, core.KindInvalidState)
		}
	})
}

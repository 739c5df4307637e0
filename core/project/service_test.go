package project_test

import (
	"context"
	"testing"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/moflotas/ipts-backend/core"
	"github.com/moflotas/ipts-backend/core/application"
	"github.com/moflotas/ipts-backend/core/notification"
	"github.com/moflotas/ipts-backend/core/project"
	emailsvc "github.com/moflotas/ipts-backend/services/email"
	dummydb "github.com/moflotas/ipts-backend/storage/database/dummy"
	"github.com/moflotas/ipts-backend/tests"
)

type testEnv struct {
	db       *dummydb.DB
	svc      project.Service
	repo     project.Repository
	appRepo  application.Repository
	notifSvc notification.Service
}

func setup(t *testing.T) testEnv {
	t.Helper()
	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("dummydb.Open() failed: %v", err)
	}
	conf := core.NewConfig()
	logger := testutil.NewLogger()
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	emailsvc.ClearSentMessages()

	repo := dummydb.NewProjectRepository(db)
	notifSvc := notification.NewService(dummydb.NewNotificationRepository(db), mailSvc, conf, logger)
	return testEnv{
		db:       db,
		svc:      project.NewService(repo, notifSvc, logger),
		repo:     repo,
		appRepo:  dummydb.NewApplicationRepository(db),
		notifSvc: notifSvc,
	}
}

func unreadOf(t *testing.T, svc notification.Service, email string) []notification.Notification {
	t.Helper()
	notifs, err := svc.Query(context.Background(), email, true /* unreadOnly */)
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	return notifs
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	env := setup(t)
	creator := core.Actor{Email: "creator@innopolis.university"}

	proj, err := env.svc.Create(ctx, creator, project.NewProject{
		Name:       "Hackathon",
		Organizer:  "Student Union",
		Moderators: []string{"mod@innopolis.university"},
	})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if proj.Stage != project.StageDraft {
		t.Errorf("Create() stage = %q, want %q", proj.Stage, project.StageDraft)
	}
	if !proj.HasModerator(creator.Email) {
		t.Error("Create() did not add the creator to the moderators")
	}
	if !proj.HasModerator("mod@innopolis.university") {
		t.Error("Create() dropped an explicit moderator")
	}

	// a non-draft activity missing its dates is rejected outright
	notDraft := false
	_, err = env.svc.Create(ctx, creator, project.NewProject{
		Name: "Half-baked",
		Activities: []project.NewActivity{
			{Name: null.StringFrom("Setup"), Draft: &notDraft},
		},
	})
	if kind := core.ErrorKind(err); kind != core.KindInvalidState {
		t.Errorf("Create() with incomplete activity kind = %v, want %v", kind, core.KindInvalidState)
	}
}

func TestPublish(t *testing.T) {
	ctx := context.Background()
	creator := core.Actor{Email: "creator@innopolis.university"}

	t.Run("no organizer", func(t *testing.T) {
		env := setup(t)
		proj, err := env.repo.CreateProject(ctx, project.Project{
			Name:         "Nameless",
			CreatorEmail: creator.Email,
			Moderators:   []string{creator.Email},
			Stage:        project.StageDraft,
			CreationTime: time.Now().UTC(),
		}, nil)
		if err != nil {
			t.Fatalf("CreateProject() failed: %v", err)
		}
		err = env.svc.Publish(ctx, creator, proj.ID)
		if kind := core.ErrorKind(err); kind != core.KindInvalidState {
			t.Errorf("Publish() kind = %v, want %v", kind, core.KindInvalidState)
		}
	})

	t.Run("no activities", func(t *testing.T) {
		env := setup(t)
		proj := testutil.CreateProject(t, env.repo, "Empty", creator.Email, project.StageDraft)
		err := env.svc.Publish(ctx, creator, proj.ID)
		if kind := core.ErrorKind(err); kind != core.KindInvalidState {
			t.Errorf("Publish() kind = %v, want %v", kind, core.KindInvalidState)
		}
	})

	t.Run("missing competences", func(t *testing.T) {
		env := setup(t)
		proj := testutil.CreateProject(t, env.repo, "Bare", creator.Email, project.StageDraft)
		act := testutil.CreateActivity(t, env.repo, proj.ID, "Help out", 5)
		act.Competences = nil
		if _, err := env.repo.UpdateActivity(ctx, act, false); err != nil {
			t.Fatalf("UpdateActivity() failed: %v", err)
		}
		err := env.svc.Publish(ctx, creator, proj.ID)
		if kind := core.ErrorKind(err); kind != core.KindInvalidState {
			t.Errorf("Publish() kind = %v, want %v", kind, core.KindInvalidState)
		}
	})

	t.Run("not the creator", func(t *testing.T) {
		env := setup(t)
		proj := testutil.CreateProject(t, env.repo, "Locked", creator.Email, project.StageDraft)
		testutil.CreateActivity(t, env.repo, proj.ID, "Help out", 5)
		err := env.svc.Publish(ctx, core.Actor{Email: "stranger@innopolis.university"}, proj.ID)
		if kind := core.ErrorKind(err); kind != core.KindForbidden {
			t.Errorf("Publish() kind = %v, want %v", kind, core.KindForbidden)
		}
	})

	t.Run("ok", func(t *testing.T) {
		env := setup(t)
		proj := testutil.CreateProject(t, env.repo, "Hackathon", creator.Email, project.StageDraft, "mod@innopolis.university")
		testutil.CreateActivity(t, env.repo, proj.ID, "Help out", 5)

		if err := env.svc.Publish(ctx, creator, proj.ID); err != nil {
			t.Fatalf("Publish() failed: %v", err)
		}

		proj, err := env.svc.Get(ctx, proj.ID)
		if err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
		if proj.Stage != project.StageOngoing {
			t.Errorf("stage after Publish() = %q, want %q", proj.Stage, project.StageOngoing)
		}

		// publishing twice is rejected
		err = env.svc.Publish(ctx, creator, proj.ID)
		if kind := core.ErrorKind(err); kind != core.KindInvalidState {
			t.Errorf("second Publish() kind = %v, want %v", kind, core.KindInvalidState)
		}

		// the internal moderation activity exists with an approved
		// application per moderator, hidden from the public listing
		all, err := env.repo.QueryProjectActivities(ctx, proj.ID, true)
		if err != nil {
			t.Fatalf("QueryProjectActivities() failed: %v", err)
		}
		var moderation *project.Activity
		for i := range all {
			if all[i].Internal {
				moderation = &all[i]
			}
		}
		if moderation == nil {
			t.Fatal("Publish() did not create the moderation activity")
		}
		public, err := env.svc.QueryActivities(ctx, proj.ID)
		if err != nil {
			t.Fatalf("QueryActivities() failed: %v", err)
		}
		for _, act := range public {
			if act.Internal {
				t.Error("QueryActivities() leaked an internal activity")
			}
		}
		count, err := env.repo.CountApplications(ctx, moderation.ID, true)
		if err != nil {
			t.Fatalf("CountApplications() failed: %v", err)
		}
		if count != 2 {
			t.Errorf("moderation activity has %d approved applications, want 2", count)
		}

		// every moderator learns about the role
		for _, email := range proj.Moderators {
			notifs := unreadOf(t, env.notifSvc, email)
			if len(notifs) != 1 || notifs[0].Type != notification.TypeAddedAsModerator {
				t.Errorf("moderator %s notifications = %+v, want one %q", email, notifs, notification.TypeAddedAsModerator)
			}
		}
	})
}

func TestReviewFlow(t *testing.T) {
	ctx := context.Background()
	env := setup(t)
	creator := core.Actor{Email: "creator@innopolis.university"}
	admin := core.Actor{Email: "admin@innopolis.university", IsAdmin: true}
	accRepo := dummydb.NewAccountRepository(env.db)
	testutil.CreateAccount(t, accRepo, admin.Email, "Ad Min", true)

	proj := testutil.CreateProject(t, env.repo, "Hackathon", creator.Email, project.StageOngoing)
	act := testutil.CreateActivity(t, env.repo, proj.ID, "Help out", 5)
	app := testutil.CreateApplication(t, env.appRepo, act.ID, "v@innopolis.university", application.StatusApproved)

	// an ongoing project cannot be reviewed yet
	_, err := env.svc.RequestReview(ctx, creator, proj.ID)
	if kind := core.ErrorKind(err); kind != core.KindInvalidState {
		t.Errorf("RequestReview() on ongoing kind = %v, want %v", kind, core.KindInvalidState)
	}

	if err = env.svc.StartFinalizing(ctx, creator, proj.ID); err != nil {
		t.Fatalf("StartFinalizing() failed: %v", err)
	}

	// only the creator may ask for a review
	_, err = env.svc.RequestReview(ctx, admin, proj.ID)
	if kind := core.ErrorKind(err); kind != core.KindForbidden {
		t.Errorf("RequestReview() by admin kind = %v, want %v", kind, core.KindForbidden)
	}

	proj, err = env.svc.RequestReview(ctx, creator, proj.ID)
	if err != nil {
		t.Fatalf("RequestReview() failed: %v", err)
	}
	if proj.ReviewStatus != project.ReviewPending {
		t.Errorf("review status = %q, want %q", proj.ReviewStatus, project.ReviewPending)
	}
	if notifs := unreadOf(t, env.notifSvc, admin.Email); len(notifs) != 1 || notifs[0].Type != notification.TypeProjectReviewRequested {
		t.Errorf("admin notifications = %+v, want one %q", notifs, notification.TypeProjectReviewRequested)
	}

	// asking again while pending is rejected
	_, err = env.svc.RequestReview(ctx, creator, proj.ID)
	if kind := core.ErrorKind(err); kind != core.KindInvalidState {
		t.Errorf("second RequestReview() kind = %v, want %v", kind, core.KindInvalidState)
	}

	// non-admins may not review
	err = env.svc.Review(ctx, creator, proj.ID, "approved", null.String{})
	if kind := core.ErrorKind(err); kind != core.KindForbidden {
		t.Errorf("Review() by creator kind = %v, want %v", kind, core.KindForbidden)
	}

	err = env.svc.Review(ctx, admin, proj.ID, "maybe", null.String{})
	if _, ok := err.(*core.ValidationError); !ok {
		t.Errorf("Review() with bad decision error = %v, want a validation error", err)
	}

	if err = env.svc.Review(ctx, admin, proj.ID, "rejected", null.StringFrom("needs work")); err != nil {
		t.Fatalf("Review(rejected) failed: %v", err)
	}
	proj, err = env.svc.Get(ctx, proj.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if proj.Stage != project.StageFinalizing {
		t.Errorf("stage after rejection = %q, want %q", proj.Stage, project.StageFinalizing)
	}
	if proj.ReviewStatus != project.ReviewRejected {
		t.Errorf("review status after rejection = %q, want %q", proj.ReviewStatus, project.ReviewRejected)
	}
	if !proj.AdminFeedback.Valid || proj.AdminFeedback.String != "needs work" {
		t.Errorf("admin feedback = %+v, want %q", proj.AdminFeedback, "needs work")
	}

	// a rejected project may be resubmitted and approved
	if _, err = env.svc.RequestReview(ctx, creator, proj.ID); err != nil {
		t.Fatalf("RequestReview() after rejection failed: %v", err)
	}
	if err = env.svc.Review(ctx, admin, proj.ID, "approved", null.String{}); err != nil {
		t.Fatalf("Review(approved) failed: %v", err)
	}
	proj, err = env.svc.Get(ctx, proj.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if proj.Stage != project.StageFinished {
		t.Errorf("stage after approval = %q, want %q", proj.Stage, project.StageFinished)
	}

	// the applicant is invited to claim their innopoints
	notifs := unreadOf(t, env.notifSvc, app.ApplicantEmail)
	found := false
	for _, n := range notifs {
		if n.Type == notification.TypeClaimInnopoints {
			found = true
		}
	}
	if !found {
		t.Errorf("applicant notifications = %+v, want a %q", notifs, notification.TypeClaimInnopoints)
	}
}

func TestUpdateActivity(t *testing.T) {
	ctx := context.Background()
	creator := core.Actor{Email: "creator@innopolis.university"}

	newEnv := func(t *testing.T) (testEnv, project.Project, project.Activity) {
		env := setup(t)
		proj := testutil.CreateProject(t, env.repo, "Hackathon", creator.Email, project.StageOngoing)
		act := testutil.CreateActivity(t, env.repo, proj.ID, "Help out", 5)
		return env, proj, act
	}

	t.Run("non-moderator", func(t *testing.T) {
		env, proj, act := newEnv(t)
		_, err := env.svc.UpdateActivity(ctx, core.Actor{Email: "stranger@innopolis.university"}, proj.ID, act.ID, project.UpdateActivity{})
		if kind := core.ErrorKind(err); kind != core.KindForbidden {
			t.Errorf("UpdateActivity() kind = %v, want %v", kind, core.KindForbidden)
		}
	})

	t.Run("reward rate immutable", func(t *testing.T) {
		env, proj, act := newEnv(t)
		_, err := env.svc.UpdateActivity(ctx, creator, proj.ID, act.ID, project.UpdateActivity{
			RewardRate: null.IntFrom(1000),
		})
		if kind := core.ErrorKind(err); kind != core.KindInvalidState {
			t.Errorf("UpdateActivity() kind = %v, want %v", kind, core.KindInvalidState)
		}
	})

	t.Run("people below approved", func(t *testing.T) {
		env, proj, act := newEnv(t)
		testutil.CreateApplication(t, env.appRepo, act.ID, "a@innopolis.university", application.StatusApproved)
		testutil.CreateApplication(t, env.appRepo, act.ID, "b@innopolis.university", application.StatusApproved)
		people := 1
		_, err := env.svc.UpdateActivity(ctx, creator, proj.ID, act.ID, project.UpdateActivity{
			PeopleRequired: &people,
		})
		if kind := core.ErrorKind(err); kind != core.KindInvalidState {
			t.Errorf("UpdateActivity() kind = %v, want %v", kind, core.KindInvalidState)
		}
	})

	t.Run("deadline before existing application", func(t *testing.T) {
		env, proj, act := newEnv(t)
		testutil.CreateApplication(t, env.appRepo, act.ID, "a@innopolis.university", application.StatusPending)
		_, err := env.svc.UpdateActivity(ctx, creator, proj.ID, act.ID, project.UpdateActivity{
			ApplicationDeadline: null.TimeFrom(time.Now().UTC().Add(-24 * time.Hour)),
		})
		if kind := core.ErrorKind(err); kind != core.KindInvalidState {
			t.Errorf("UpdateActivity() kind = %v, want %v", kind, core.KindInvalidState)
		}
	})

	t.Run("draft with applicants", func(t *testing.T) {
		env, proj, act := newEnv(t)
		testutil.CreateApplication(t, env.appRepo, act.ID, "a@innopolis.university", application.StatusPending)
		draft := true
		_, err := env.svc.UpdateActivity(ctx, creator, proj.ID, act.ID, project.UpdateActivity{Draft: &draft})
		if kind := core.ErrorKind(err); kind != core.KindInvalidState {
			t.Errorf("UpdateActivity() kind = %v, want %v", kind, core.KindInvalidState)
		}
	})

	t.Run("hours cascade to applications", func(t *testing.T) {
		env, proj, act := newEnv(t)
		kept := testutil.CreateApplication(t, env.appRepo, act.ID, "a@innopolis.university", application.StatusApproved)
		rejected := testutil.CreateApplication(t, env.appRepo, act.ID, "b@innopolis.university", application.StatusRejected)

		updated, err := env.svc.UpdateActivity(ctx, creator, proj.ID, act.ID, project.UpdateActivity{
			WorkingHours: null.IntFrom(8),
		})
		if err != nil {
			t.Fatalf("UpdateActivity() failed: %v", err)
		}
		if updated.WorkingHours.Int != 8 {
			t.Errorf("working hours = %d, want 8", updated.WorkingHours.Int)
		}

		app, err := env.appRepo.GetApplication(ctx, kept.ID)
		if err != nil {
			t.Fatalf("GetApplication() failed: %v", err)
		}
		if app.ActualHours.Int != 8 {
			t.Errorf("approved application hours = %d, want 8", app.ActualHours.Int)
		}
		app, err = env.appRepo.GetApplication(ctx, rejected.ID)
		if err != nil {
			t.Fatalf("GetApplication() failed: %v", err)
		}
		if app.ActualHours.Int == 8 {
			t.Error("rejected application hours were cascaded")
		}
	})
}

func TestCompetences(t *testing.T) {
	ctx := context.Background()
	env := setup(t)
	admin := core.Actor{Email: "admin@innopolis.university", IsAdmin: true}

	_, err := env.svc.CreateCompetence(ctx, core.Actor{Email: "v@innopolis.university"}, project.NewCompetence{Name: "Teamwork"})
	if kind := core.ErrorKind(err); kind != core.KindForbidden {
		t.Errorf("CreateCompetence() by non-admin kind = %v, want %v", kind, core.KindForbidden)
	}

	c, err := env.svc.CreateCompetence(ctx, admin, project.NewCompetence{Name: "Teamwork"})
	if err != nil {
		t.Fatalf("CreateCompetence() failed: %v", err)
	}

	_, err = env.svc.CreateCompetence(ctx, admin, project.NewCompetence{Name: "Teamwork"})
	if kind := core.ErrorKind(err); kind != core.KindConflict {
		t.Errorf("duplicate CreateCompetence() kind = %v, want %v", kind, core.KindConflict)
	}

	if _, err = env.svc.UpdateCompetence(ctx, admin, c.ID, project.NewCompetence{Name: "Leadership"}); err != nil {
		t.Fatalf("UpdateCompetence() failed: %v", err)
	}
	if err = env.svc.DeleteCompetence(ctx, admin, c.ID); err != nil {
		t.Fatalf("DeleteCompetence() failed: %v", err)
	}
	err = env.svc.DeleteCompetence(ctx, admin, c.ID)
	if kind := core.ErrorKind(err); kind != core.KindNotFound {
		t.Errorf("DeleteCompetence() on missing kind = %v, want %v", kind, core.KindNotFound)
	}
}

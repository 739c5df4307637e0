package account_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/moflotas/ipts-backend/core"
	"github.com/moflotas/ipts-backend/core/account"
	"github.com/moflotas/ipts-backend/core/application"
	"github.com/moflotas/ipts-backend/core/ledger"
	"github.com/moflotas/ipts-backend/core/notification"
	"github.com/moflotas/ipts-backend/core/project"
	"github.com/moflotas/ipts-backend/core/store"
	emailsvc "github.com/moflotas/ipts-backend/services/email"
	dummydb "github.com/moflotas/ipts-backend/storage/database/dummy"
	"github.com/moflotas/ipts-backend/tests"
)

var (
	admin = core.Actor{Email: "admin@innopolis.university", IsAdmin: true}
	self  = core.Actor{Email: "v@innopolis.university"}
)

type testEnv struct {
	db   *dummydb.DB
	svc  account.Service
	repo account.Repository
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

	repo := dummydb.NewAccountRepository(db)
	notifSvc := notification.NewService(dummydb.NewNotificationRepository(db), mailSvc, conf, logger)
	return testEnv{
		db:   db,
		svc:  account.NewService(repo, notifSvc, logger),
		repo: repo,
	}
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	env := setup(t)

	_, err := env.svc.Create(ctx, self, account.NewAccount{Email: self.Email, FullName: "Vol Unteer"})
	if kind := core.ErrorKind(err); kind != core.KindForbidden {
		t.Errorf("Create() by non-admin kind = %v, want %v", kind, core.KindForbidden)
	}

	acc, err := env.svc.Create(ctx, admin, account.NewAccount{Email: self.Email, FullName: "Vol Unteer"})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	_, err = env.svc.Create(ctx, admin, account.NewAccount{Email: self.Email, FullName: "Vol Unteer"})
	if !errors.Is(err, account.ErrAccountExists) {
		t.Errorf("duplicate Create() error = %v, want %v", err, account.ErrAccountExists)
	}

	// owners and admins may read, strangers may not
	if _, err = env.svc.Get(ctx, self, acc.Email); err != nil {
		t.Errorf("Get() by owner failed: %v", err)
	}
	if _, err = env.svc.Get(ctx, admin, acc.Email); err != nil {
		t.Errorf("Get() by admin failed: %v", err)
	}
	_, err = env.svc.Get(ctx, core.Actor{Email: "stranger@innopolis.university"}, acc.Email)
	if kind := core.ErrorKind(err); kind != core.KindForbidden {
		t.Errorf("Get() by stranger kind = %v, want %v", kind, core.KindForbidden)
	}
}

func TestNotificationSettings(t *testing.T) {
	ctx := context.Background()
	env := setup(t)
	testutil.CreateAccount(t, env.repo, self.Email, "Vol Unteer", false)

	// unset groups read back as the email default
	settings, err := env.svc.NotificationSettings(ctx, self, self.Email)
	if err != nil {
		t.Fatalf("NotificationSettings() failed: %v", err)
	}
	for _, group := range notification.Groups {
		if settings[group] != notification.ChannelEmail {
			t.Errorf("settings[%s] = %q, want %q", group, settings[group], notification.ChannelEmail)
		}
	}

	err = env.svc.SetNotificationSettings(ctx, self, self.Email, map[notification.Group]notification.Channel{
		"carrier_pigeon": notification.ChannelEmail,
	})
	if _, ok := err.(*core.ValidationError); !ok {
		t.Errorf("SetNotificationSettings() with unknown group error = %v, want a validation error", err)
	}
	err = env.svc.SetNotificationSettings(ctx, self, self.Email, map[notification.Group]notification.Channel{
		notification.GroupInnoStore: "smoke_signals",
	})
	if _, ok := err.(*core.ValidationError); !ok {
		t.Errorf("SetNotificationSettings() with bad channel error = %v, want a validation error", err)
	}

	if err = env.svc.SetNotificationSettings(ctx, self, self.Email, map[notification.Group]notification.Channel{
		notification.GroupInnoStore: notification.ChannelOff,
	}); err != nil {
		t.Fatalf("SetNotificationSettings() failed: %v", err)
	}
	settings, err = env.svc.NotificationSettings(ctx, self, self.Email)
	if err != nil {
		t.Fatalf("NotificationSettings() failed: %v", err)
	}
	if settings[notification.GroupInnoStore] != notification.ChannelOff {
		t.Errorf("settings[innostore] = %q, want %q", settings[notification.GroupInnoStore], notification.ChannelOff)
	}
	if settings[notification.GroupService] != notification.ChannelEmail {
		t.Errorf("settings[service] = %q, want %q", settings[notification.GroupService], notification.ChannelEmail)
	}
}

// seedTimeline populates one event per source, spaced ten minutes apart:
// an own published project, an application, a purchase and a promotion.
func seedTimeline(t *testing.T, env testEnv, base time.Time) {
	t.Helper()
	ctx := context.Background()
	projRepo := dummydb.NewProjectRepository(env.db)
	appRepo := dummydb.NewApplicationRepository(env.db)
	storeRepo := dummydb.NewStoreRepository(env.db)
	notifRepo := dummydb.NewNotificationRepository(env.db)

	// own published project at base
	if _, err := projRepo.CreateProject(ctx, project.Project{
		Name:         "My Project",
		Organizer:    "Me",
		CreatorEmail: self.Email,
		Moderators:   []string{self.Email},
		Stage:        project.StageOngoing,
		CreationTime: base,
	}, nil); err != nil {
		t.Fatalf("CreateProject() failed: %v", err)
	}

	// application on someone else's project at base+10m
	other := testutil.CreateProject(t, projRepo, "Other Project", "other@innopolis.university", project.StageOngoing)
	act := testutil.CreateActivity(t, projRepo, other.ID, "Help out", 5)
	testutil.CreateApplication(t, appRepo, act.ID, self.Email, application.StatusApproved, base.Add(10*time.Minute))

	// purchase at base+20m
	prod, err := storeRepo.CreateProduct(ctx, store.Product{Name: "Hoodie", Price: 100}, []store.Variety{{}})
	if err != nil {
		t.Fatalf("CreateProduct() failed: %v", err)
	}
	if _, err = storeRepo.CreateStockChange(ctx, store.StockChange{
		VarietyID:    prod.Varieties[0].ID,
		AccountEmail: self.Email,
		Amount:       -1,
		Time:         base.Add(20 * time.Minute),
		Status:       store.StockPending,
	}); err != nil {
		t.Fatalf("CreateStockChange() failed: %v", err)
	}

	// promoted to moderator of the other project at base+30m
	if _, err = notifRepo.CreateNotification(ctx, notification.Notification{
		RecipientEmail: self.Email,
		Type:           notification.TypeAddedAsModerator,
		Payload:        &notification.ProjectPayload{ProjectID: other.ID},
		Timestamp:      base.Add(30 * time.Minute),
	}); err != nil {
		t.Fatalf("CreateNotification() failed: %v", err)
	}
}

func TestTimeline(t *testing.T) {
	ctx := context.Background()
	env := setup(t)
	testutil.CreateAccount(t, env.repo, self.Email, "Vol Unteer", false)

	base := time.Now().UTC().Add(-time.Hour)
	seedTimeline(t, env, base)

	_, err := env.svc.Timeline(ctx, core.Actor{Email: "stranger@innopolis.university"}, self.Email, core.TimeWindow{})
	if kind := core.ErrorKind(err); kind != core.KindForbidden {
		t.Errorf("Timeline() by stranger kind = %v, want %v", kind, core.KindForbidden)
	}

	timeline, err := env.svc.Timeline(ctx, self, self.Email, core.TimeWindow{})
	if err != nil {
		t.Fatalf("Timeline() failed: %v", err)
	}
	wantOrder := []account.EventType{
		account.EventPromotion,
		account.EventPurchase,
		account.EventApplication,
		account.EventProject,
	}
	if len(timeline.Data) != len(wantOrder) {
		t.Fatalf("Timeline() returned %d entries, want %d: %+v", len(timeline.Data), len(wantOrder), timeline.Data)
	}
	for i, want := range wantOrder {
		if timeline.Data[i].Type != want {
			t.Errorf("entry %d type = %q, want %q", i, timeline.Data[i].Type, want)
		}
	}
	if timeline.More {
		t.Error("Timeline() over the full window reported more entries")
	}

	// a narrower window trims the feed and flags the rest
	timeline, err = env.svc.Timeline(ctx, self, self.Email, core.TimeWindow{Start: base.Add(20 * time.Minute)})
	if err != nil {
		t.Fatalf("Timeline() failed: %v", err)
	}
	if len(timeline.Data) != 2 {
		t.Fatalf("windowed Timeline() returned %d entries, want 2: %+v", len(timeline.Data), timeline.Data)
	}
	if timeline.Data[0].Type != account.EventPromotion || timeline.Data[1].Type != account.EventPurchase {
		t.Errorf("windowed entries = [%q, %q], want [promotion, purchase]", timeline.Data[0].Type, timeline.Data[1].Type)
	}
	if !timeline.More {
		t.Error("windowed Timeline() did not report earlier entries")
	}
}

func TestStatistics(t *testing.T) {
	ctx := context.Background()
	env := setup(t)
	testutil.CreateAccount(t, env.repo, self.Email, "Vol Unteer", false)
	projRepo := dummydb.NewProjectRepository(env.db)
	appRepo := dummydb.NewApplicationRepository(env.db)

	proj := testutil.CreateProject(t, projRepo, "Done Deal", "creator@innopolis.university", project.StageFinished)
	act := testutil.CreateActivity(t, projRepo, proj.ID, "Help out", 5)
	app := testutil.CreateApplication(t, appRepo, act.ID, self.Email, application.StatusApproved)
	app.ActualHours = null.IntFrom(5)
	if _, err := appRepo.UpdateApplication(ctx, app); err != nil {
		t.Fatalf("UpdateApplication() failed: %v", err)
	}

	for i, rating := range []int{4, 5} {
		if _, err := appRepo.CreateReport(ctx, application.VolunteeringReport{
			ApplicationID: app.ID,
			ReporterEmail: []string{"a@innopolis.university", "b@innopolis.university"}[i],
			Rating:        rating,
			Time:          time.Now().UTC(),
		}); err != nil {
			t.Fatalf("CreateReport() failed: %v", err)
		}
	}
	comp, err := projRepo.CreateCompetence(ctx, project.Competence{Name: "Teamwork"})
	if err != nil {
		t.Fatalf("CreateCompetence() failed: %v", err)
	}
	if _, err := appRepo.CreateFeedback(ctx, application.Feedback{
		ApplicationID: app.ID,
		Answers:       []string{"plenty", "nothing"},
		Competences:   []int{comp.ID},
		Time:          time.Now().UTC(),
	}, ledger.Transaction{AccountEmail: self.Email, Change: 350}); err != nil {
		t.Fatalf("CreateFeedback() failed: %v", err)
	}

	stats, err := env.svc.Statistics(ctx, self, self.Email, core.TimeWindow{})
	if err != nil {
		t.Fatalf("Statistics() failed: %v", err)
	}
	if stats.Hours != 5 {
		t.Errorf("hours = %d, want 5", stats.Hours)
	}
	if stats.Positions != 1 {
		t.Errorf("positions = %d, want 1", stats.Positions)
	}
	if stats.Rating != 4.5 {
		t.Errorf("rating = %v, want 4.5", stats.Rating)
	}
	if len(stats.Competences) != 1 || stats.Competences[0].Amount != 1 {
		t.Errorf("competence stats = %+v, want one with amount 1", stats.Competences)
	}
}

package dummydb

import (
	"context"
	"sort"
	"strings"

	"github.com/volatiletech/null/v8"

	"github.com/moflotas/ipts-backend/core"
	"github.com/moflotas/ipts-backend/core/account"
	"github.com/moflotas/ipts-backend/core/application"
	"github.com/moflotas/ipts-backend/core/notification"
	"github.com/moflotas/ipts-backend/core/project"
)

type accountRepository struct {
	db *DB
}

var _ account.Repository = (*accountRepository)(nil) // interface compliance check

func NewAccountRepository(db *DB) account.Repository {
	return &accountRepository{db: db}
}

func (repo *accountRepository) CreateAccount(ctx context.Context, acc account.Account) (account.Account, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.accounts[acc.Email]; ok {
		return account.Account{}, core.ConflictError(account.ErrAccountExists)
	}
	if acc.NotificationSettings == nil {
		acc.NotificationSettings = make(map[notification.Group]notification.Channel)
	}
	repo.db.accounts[acc.Email] = &acc
	return acc, nil
}

func (repo *accountRepository) GetAccount(ctx context.Context, email string) (account.Account, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if acc, ok := repo.db.accounts[email]; ok {
		return *acc, nil
	}
	return account.Account{}, core.NotFoundError(account.ErrNotFound)
}

func (repo *accountRepository) QueryAccounts(ctx context.Context, filter account.QueryFilter) ([]account.Account, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	accounts := make([]account.Account, 0, len(repo.db.accounts))
	for _, acc := range repo.db.accounts {
		if filter.Search != "" {
			needle := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(acc.Email), needle) &&
				!strings.Contains(strings.ToLower(acc.FullName), needle) {
				continue
			}
		}
		accounts = append(accounts, *acc)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Email < accounts[j].Email })

	offset := (filter.Page - 1) * filter.Limit
	if offset >= len(accounts) {
		return []account.Account{}, nil
	}
	end := offset + filter.Limit
	if end > len(accounts) {
		end = len(accounts)
	}
	return accounts[offset:end], nil
}

func (repo *accountRepository) CountAccounts(ctx context.Context, search string) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	count := 0
	for _, acc := range repo.db.accounts {
		if search != "" {
			needle := strings.ToLower(search)
			if !strings.Contains(strings.ToLower(acc.Email), needle) &&
				!strings.Contains(strings.ToLower(acc.FullName), needle) {
				continue
			}
		}
		count++
	}
	return count, nil
}

func (repo *accountRepository) QueryGroups(ctx context.Context) ([]string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	seen := make(map[string]bool)
	groups := make([]string, 0)
	for _, acc := range repo.db.accounts {
		if acc.IsAdmin || !acc.Group.Valid {
			continue
		}
		if !seen[acc.Group.String] {
			seen[acc.Group.String] = true
			groups = append(groups, acc.Group.String)
		}
	}
	sort.Strings(groups)
	return groups, nil
}

func (repo *accountRepository) SetTelegram(ctx context.Context, email string, username null.String) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	acc, ok := repo.db.accounts[email]
	if !ok {
		return core.NotFoundError(account.ErrNotFound)
	}
	acc.TelegramUsername = username
	return nil
}

func (repo *accountRepository) GetNotificationSettings(ctx context.Context, email string) (map[notification.Group]notification.Channel, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	acc, ok := repo.db.accounts[email]
	if !ok {
		return nil, core.NotFoundError(account.ErrNotFound)
	}
	settings := make(map[notification.Group]notification.Channel, len(acc.NotificationSettings))
	for group, channel := range acc.NotificationSettings {
		settings[group] = channel
	}
	return settings, nil
}

func (repo *accountRepository) SetNotificationSettings(ctx context.Context, email string, settings map[notification.Group]notification.Channel) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	acc, ok := repo.db.accounts[email]
	if !ok {
		return core.NotFoundError(account.ErrNotFound)
	}
	if acc.NotificationSettings == nil {
		acc.NotificationSettings = make(map[notification.Group]notification.Channel)
	}
	for group, channel := range settings {
		acc.NotificationSettings[group] = channel
	}
	return nil
}

// Timeline sources

func (repo *accountRepository) QueryApplicationEvents(ctx context.Context, email string, window core.TimeWindow) ([]account.TimelineEntry, bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	entries := make([]account.TimelineEntry, 0)
	earlier := false
	for _, app := range repo.db.applications {
		if app.ApplicantEmail != email {
			continue
		}
		act, ok := repo.db.activities[app.ActivityID]
		if !ok || act.Internal {
			continue
		}
		proj, ok := repo.db.projects[act.ProjectID]
		if !ok {
			continue
		}
		if !app.ApplicationTime.After(window.Start) {
			earlier = true
		}
		if app.ApplicationTime.Before(window.Start) || app.ApplicationTime.After(window.End) {
			continue
		}
		payload := account.ApplicationEvent{
			ApplicationID:     app.ID,
			ApplicationStatus: app.Status,
			ActivityID:        act.ID,
			ActivityName:      act.Name.String,
			ProjectID:         proj.ID,
			ProjectName:       proj.Name,
			ProjectStage:      proj.Stage,
			Reward:            app.ActualHours.Int * act.RewardRate,
		}
		if _, ok := repo.db.feedbacks[app.ID]; ok {
			payload.FeedbackID = null.IntFrom(app.ID)
		}
		entries = append(entries, account.TimelineEntry{
			EntryTime: app.ApplicationTime,
			Type:      account.EventApplication,
			Payload:   payload,
		})
	}
	sortEntriesDesc(entries)
	return entries, earlier, nil
}

func (repo *accountRepository) QueryPurchaseEvents(ctx context.Context, email string, window core.TimeWindow) ([]account.TimelineEntry, bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	entries := make([]account.TimelineEntry, 0)
	earlier := false
	for _, sc := range repo.db.stockChanges {
		if sc.AccountEmail != email || sc.Amount >= 0 {
			continue
		}
		variety, ok := repo.db.varieties[sc.VarietyID]
		if !ok {
			continue
		}
		prod, ok := repo.db.products[variety.ProductID]
		if !ok {
			continue
		}
		if !sc.Time.After(window.Start) {
			earlier = true
		}
		if sc.Time.Before(window.Start) || sc.Time.After(window.End) {
			continue
		}
		entries = append(entries, account.TimelineEntry{
			EntryTime: sc.Time,
			Type:      account.EventPurchase,
			Payload: account.PurchaseEvent{
				StockChangeID:     sc.ID,
				StockChangeStatus: sc.Status,
				ProductID:         prod.ID,
				ProductName:       prod.Name,
				ProductType:       prod.Type,
			},
		})
	}
	sortEntriesDesc(entries)
	return entries, earlier, nil
}

func (repo *accountRepository) QueryPromotionEvents(ctx context.Context, email string, window core.TimeWindow) ([]account.TimelineEntry, bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	entries := make([]account.TimelineEntry, 0)
	earlier := false
	for _, n := range repo.db.notifications {
		if n.RecipientEmail != email || n.Type != notification.TypeAddedAsModerator {
			continue
		}
		payload, ok := n.Payload.(*notification.ProjectPayload)
		if !ok {
			continue
		}
		proj, ok := repo.db.projects[payload.ProjectID]
		if !ok || proj.CreatorEmail == email || proj.Stage == project.StageDraft {
			continue
		}
		if !n.Timestamp.After(window.Start) {
			earlier = true
		}
		if n.Timestamp.Before(window.Start) || n.Timestamp.After(window.End) {
			continue
		}
		event := account.PromotionEvent{
			ProjectID:   proj.ID,
			ProjectName: proj.Name,
		}
		// link to the account's own application on the moderation activity
		for _, act := range repo.db.activities {
			if act.ProjectID != proj.ID || !act.Internal || act.Name.String != project.ModerationActivityName {
				continue
			}
			for _, app := range repo.db.applications {
				if app.ActivityID == act.ID && app.ApplicantEmail == email {
					event.ApplicationID = null.IntFrom(app.ID)
				}
			}
		}
		entries = append(entries, account.TimelineEntry{
			EntryTime: n.Timestamp,
			Type:      account.EventPromotion,
			Payload:   event,
		})
	}
	sortEntriesDesc(entries)
	return entries, earlier, nil
}

func (repo *accountRepository) QueryProjectEvents(ctx context.Context, email string, window core.TimeWindow) ([]account.TimelineEntry, bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	entries := make([]account.TimelineEntry, 0)
	earlier := false
	for _, proj := range repo.db.projects {
		if proj.CreatorEmail != email || proj.Stage == project.StageDraft {
			continue
		}
		if !proj.CreationTime.After(window.Start) {
			earlier = true
		}
		if proj.CreationTime.Before(window.Start) || proj.CreationTime.After(window.End) {
			continue
		}
		entries = append(entries, account.TimelineEntry{
			EntryTime: proj.CreationTime,
			Type:      account.EventProject,
			Payload: account.ProjectEvent{
				ProjectID:    proj.ID,
				ProjectName:  proj.Name,
				ReviewStatus: proj.ReviewStatus,
			},
		})
	}
	sortEntriesDesc(entries)
	return entries, earlier, nil
}

func sortEntriesDesc(entries []account.TimelineEntry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].EntryTime.After(entries[j].EntryTime) })
}

// Statistics

func (repo *accountRepository) GetVolunteeringStats(ctx context.Context, email string, window core.TimeWindow) (int, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	hours, positions := 0, 0
	for _, app := range repo.db.applications {
		if app.ApplicantEmail != email || app.Status != application.StatusApproved {
			continue
		}
		if app.ApplicationTime.Before(window.Start) || app.ApplicationTime.After(window.End) {
			continue
		}
		act, ok := repo.db.activities[app.ActivityID]
		if !ok || act.FixedReward || act.Internal {
			continue
		}
		proj, ok := repo.db.projects[act.ProjectID]
		if !ok || proj.Stage != project.StageFinished {
			continue
		}
		hours += app.ActualHours.Int
		positions++
	}
	return hours, positions, nil
}

func (repo *accountRepository) GetAverageRating(ctx context.Context, email string, window core.TimeWindow) (float64, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	sum, count := 0, 0
	for _, r := range repo.db.reports {
		app, ok := repo.db.applications[r.ApplicationID]
		if !ok || app.ApplicantEmail != email || app.Status != application.StatusApproved {
			continue
		}
		if app.ApplicationTime.Before(window.Start) || app.ApplicationTime.After(window.End) {
			continue
		}
		sum += r.Rating
		count++
	}
	if count == 0 {
		return 0, nil
	}
	return float64(sum) / float64(count), nil
}

func (repo *accountRepository) QueryCompetenceStats(ctx context.Context, email string, window core.TimeWindow) ([]account.CompetenceStat, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	counts := make(map[int]int)
	for _, fb := range repo.db.feedbacks {
		app, ok := repo.db.applications[fb.ApplicationID]
		if !ok || app.ApplicantEmail != email {
			continue
		}
		if app.ApplicationTime.Before(window.Start) || app.ApplicationTime.After(window.End) {
			continue
		}
		for _, competenceID := range fb.Competences {
			counts[competenceID]++
		}
	}
	stats := make([]account.CompetenceStat, 0, len(counts))
	for id, amount := range counts {
		stat := account.CompetenceStat{ID: id, Amount: amount}
		if c, ok := repo.db.competences[id]; ok {
			stat.Name = c.Name
		}
		stats = append(stats, stat)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].ID < stats[j].ID })
	return stats, nil
}

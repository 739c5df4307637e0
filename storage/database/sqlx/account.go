package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/moflotas/ipts-backend/core"
	"github.com/moflotas/ipts-backend/core/account"
	"github.com/moflotas/ipts-backend/core/application"
	"github.com/moflotas/ipts-backend/core/notification"
	"github.com/moflotas/ipts-backend/core/project"
)

type accountRepository struct {
	db *sqlx.DB
}

var _ account.Repository = (*accountRepository)(nil) // interface compliance check

func NewAccountRepository(db *sqlx.DB) account.Repository {
	return &accountRepository{db: db}
}

func (repo *accountRepository) CreateAccount(ctx context.Context, acc account.Account) (account.Account, error) {
	settings, err := encodeSettings(acc.NotificationSettings)
	if err != nil {
		return account.Account{}, err
	}
	_, err = repo.db.ExecContext(ctx, `
		INSERT INTO accounts (email, full_name, "group", telegram_username, is_admin, notification_settings)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, acc.Email, acc.FullName, acc.Group, acc.TelegramUsername, acc.IsAdmin, settings)
	if err != nil {
		return account.Account{}, translate(err, account.ErrNotFound, account.ErrAccountExists)
	}
	return acc, nil
}

func encodeSettings(settings map[notification.Group]notification.Channel) ([]byte, error) {
	if settings == nil {
		settings = map[notification.Group]notification.Channel{}
	}
	raw, err := json.Marshal(settings)
	if err != nil {
		return nil, errors.Wrap(err, "encoding notification settings")
	}
	return raw, nil
}

const accountColumns = `email, full_name, "group", telegram_username, is_admin, notification_settings`

func scanAccount(row sqlx.ColScanner) (account.Account, error) {
	var (
		acc account.Account
		raw []byte
	)
	err := row.Scan(&acc.Email, &acc.FullName, &acc.Group, &acc.TelegramUsername, &acc.IsAdmin, &raw)
	if err != nil {
		return account.Account{}, err
	}
	if err = json.Unmarshal(raw, &acc.NotificationSettings); err != nil {
		return account.Account{}, errors.Wrap(err, "decoding notification settings")
	}
	return acc, nil
}

func (repo *accountRepository) GetAccount(ctx context.Context, email string) (account.Account, error) {
	row := repo.db.QueryRowxContext(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE email = $1
	`, email)
	acc, err := scanAccount(row)
	if err != nil {
		return account.Account{}, translate(err, account.ErrNotFound)
	}
	return acc, nil
}

func (repo *accountRepository) QueryAccounts(ctx context.Context, filter account.QueryFilter) ([]account.Account, error) {
	rows, err := repo.db.QueryxContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE $1 = '' OR email ILIKE '%' || $1 || '%' OR full_name ILIKE '%' || $1 || '%'
		ORDER BY email
		LIMIT $2 OFFSET $3
	`, filter.Search, filter.Limit, (filter.Page-1)*filter.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]account.Account, 0)
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

func (repo *accountRepository) CountAccounts(ctx context.Context, search string) (int, error) {
	var count int
	err := repo.db.GetContext(ctx, &count, `
		SELECT count(*)
		FROM accounts
		WHERE $1 = '' OR email ILIKE '%' || $1 || '%' OR full_name ILIKE '%' || $1 || '%'
	`, search)
	return count, err
}

func (repo *accountRepository) QueryGroups(ctx context.Context) ([]string, error) {
	var groups []string
	err := repo.db.SelectContext(ctx, &groups, `
		SELECT DISTINCT "group"
		FROM accounts
		WHERE "group" IS NOT NULL AND NOT is_admin
		ORDER BY "group"
	`)
	return groups, err
}

func (repo *accountRepository) SetTelegram(ctx context.Context, email string, username null.String) error {
	res, err := repo.db.ExecContext(ctx, `
		UPDATE accounts SET telegram_username = $2 WHERE email = $1
	`, email, username)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return core.NotFoundError(account.ErrNotFound)
	}
	return nil
}

func (repo *accountRepository) GetNotificationSettings(ctx context.Context, email string) (map[notification.Group]notification.Channel, error) {
	var raw []byte
	err := repo.db.GetContext(ctx, &raw, `
		SELECT notification_settings FROM accounts WHERE email = $1
	`, email)
	if err != nil {
		return nil, translate(err, account.ErrNotFound)
	}
	settings := make(map[notification.Group]notification.Channel)
	if err = json.Unmarshal(raw, &settings); err != nil {
		return nil, errors.Wrap(err, "decoding notification settings")
	}
	return settings, nil
}

func (repo *accountRepository) SetNotificationSettings(ctx context.Context, email string, settings map[notification.Group]notification.Channel) error {
	raw, err := encodeSettings(settings)
	if err != nil {
		return err
	}
	res, err := repo.db.ExecContext(ctx, `
		UPDATE accounts
		SET notification_settings = notification_settings || $2
		WHERE email = $1
	`, email, raw)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return core.NotFoundError(account.ErrNotFound)
	}
	return nil
}

// Timeline sources

func (repo *accountRepository) QueryApplicationEvents(ctx context.Context, email string, window core.TimeWindow) ([]account.TimelineEntry, bool, error) {
	rows, err := repo.db.QueryContext(ctx, `
		SELECT app.id, app.status, app.application_time,
			coalesce(app.actual_hours, 0) * a.reward_rate,
			a.id, coalesce(a.name, ''),
			p.id, p.name, p.lifetime_stage,
			f.application_id IS NOT NULL
		FROM applications app
		JOIN activities a ON a.id = app.activity_id
		JOIN projects p ON p.id = a.project_id
		LEFT JOIN feedback f ON f.application_id = app.id
		WHERE app.applicant_email = $1 AND NOT a.internal
		  AND app.application_time >= $2 AND app.application_time <= $3
		ORDER BY app.application_time DESC
	`, email, window.Start, window.End)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	entries := make([]account.TimelineEntry, 0)
	for rows.Next() {
		var (
			event       account.ApplicationEvent
			hasFeedback bool
			t           sql.NullTime
		)
		if err = rows.Scan(&event.ApplicationID, &event.ApplicationStatus, &t,
			&event.Reward, &event.ActivityID, &event.ActivityName,
			&event.ProjectID, &event.ProjectName, &event.ProjectStage,
			&hasFeedback); err != nil {
			return nil, false, err
		}
		if hasFeedback {
			event.FeedbackID = null.IntFrom(event.ApplicationID)
		}
		entries = append(entries, account.TimelineEntry{
			EntryTime: t.Time,
			Type:      account.EventApplication,
			Payload:   event,
		})
	}
	if err = rows.Err(); err != nil {
		return nil, false, err
	}

	earlier, err := repo.exists(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM applications app
			JOIN activities a ON a.id = app.activity_id
			WHERE app.applicant_email = $1 AND NOT a.internal
			  AND app.application_time <= $2
		)
	`, email, window.Start)
	if err != nil {
		return nil, false, err
	}
	return entries, earlier, nil
}

func (repo *accountRepository) QueryPurchaseEvents(ctx context.Context, email string, window core.TimeWindow) ([]account.TimelineEntry, bool, error) {
	rows, err := repo.db.QueryContext(ctx, `
		SELECT sc.id, sc.status, sc.time, p.id, p.name, p.type
		FROM stock_changes sc
		JOIN varieties v ON v.id = sc.variety_id
		JOIN products p ON p.id = v.product_id
		WHERE sc.account_email = $1 AND sc.amount < 0
		  AND sc.time >= $2 AND sc.time <= $3
		ORDER BY sc.time DESC
	`, email, window.Start, window.End)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	entries := make([]account.TimelineEntry, 0)
	for rows.Next() {
		var (
			event account.PurchaseEvent
			t     sql.NullTime
		)
		if err = rows.Scan(&event.StockChangeID, &event.StockChangeStatus, &t,
			&event.ProductID, &event.ProductName, &event.ProductType); err != nil {
			return nil, false, err
		}
		entries = append(entries, account.TimelineEntry{
			EntryTime: t.Time,
			Type:      account.EventPurchase,
			Payload:   event,
		})
	}
	if err = rows.Err(); err != nil {
		return nil, false, err
	}

	earlier, err := repo.exists(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM stock_changes
			WHERE account_email = $1 AND amount < 0 AND time <= $2
		)
	`, email, window.Start)
	if err != nil {
		return nil, false, err
	}
	return entries, earlier, nil
}

// promotionEventsCondition singles out moderator promotions that count as
// timeline entries: the recipient did not create the project themselves and
// the project has left the draft stage.
const promotionEventsCondition = `
	n.recipient_email = $1 AND n.type = 'added_as_moderator'
	AND p.creator_email <> $1 AND p.lifetime_stage <> 'draft'`

func (repo *accountRepository) QueryPromotionEvents(ctx context.Context, email string, window core.TimeWindow) ([]account.TimelineEntry, bool, error) {
	rows, err := repo.db.QueryContext(ctx, `
		SELECT n.timestamp, p.id, p.name, mapp.id
		FROM notifications n
		JOIN projects p ON p.id = (n.payload->>'project_id')::int
		LEFT JOIN activities ma
			ON ma.project_id = p.id AND ma.internal AND ma.name = '`+project.ModerationActivityName+`'
		LEFT JOIN applications mapp
			ON mapp.activity_id = ma.id AND mapp.applicant_email = $1
		WHERE `+promotionEventsCondition+`
		  AND n.timestamp >= $2 AND n.timestamp <= $3
		ORDER BY n.timestamp DESC
	`, email, window.Start, window.End)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	entries := make([]account.TimelineEntry, 0)
	for rows.Next() {
		var (
			event         account.PromotionEvent
			t             sql.NullTime
			applicationID sql.NullInt64
		)
		if err = rows.Scan(&t, &event.ProjectID, &event.ProjectName, &applicationID); err != nil {
			return nil, false, err
		}
		if applicationID.Valid {
			event.ApplicationID = null.IntFrom(int(applicationID.Int64))
		}
		entries = append(entries, account.TimelineEntry{
			EntryTime: t.Time,
			Type:      account.EventPromotion,
			Payload:   event,
		})
	}
	if err = rows.Err(); err != nil {
		return nil, false, err
	}

	earlier, err := repo.exists(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM notifications n
			JOIN projects p ON p.id = (n.payload->>'project_id')::int
			WHERE `+promotionEventsCondition+`
			  AND n.timestamp <= $2
		)
	`, email, window.Start)
	if err != nil {
		return nil, false, err
	}
	return entries, earlier, nil
}

func (repo *accountRepository) QueryProjectEvents(ctx context.Context, email string, window core.TimeWindow) ([]account.TimelineEntry, bool, error) {
	rows, err := repo.db.QueryContext(ctx, `
		SELECT id, name, review_status, creation_time
		FROM projects
		WHERE creator_email = $1 AND lifetime_stage <> 'draft'
		  AND creation_time >= $2 AND creation_time <= $3
		ORDER BY creation_time DESC
	`, email, window.Start, window.End)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	entries := make([]account.TimelineEntry, 0)
	for rows.Next() {
		var (
			event account.ProjectEvent
			t     sql.NullTime
		)
		if err = rows.Scan(&event.ProjectID, &event.ProjectName, &event.ReviewStatus, &t); err != nil {
			return nil, false, err
		}
		entries = append(entries, account.TimelineEntry{
			EntryTime: t.Time,
			Type:      account.EventProject,
			Payload:   event,
		})
	}
	if err = rows.Err(); err != nil {
		return nil, false, err
	}

	earlier, err := repo.exists(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM projects
			WHERE creator_email = $1 AND lifetime_stage <> 'draft'
			  AND creation_time <= $2
		)
	`, email, window.Start)
	if err != nil {
		return nil, false, err
	}
	return entries, earlier, nil
}

func (repo *accountRepository) exists(ctx context.Context, query string, args ...interface{}) (bool, error) {
	var found bool
	err := repo.db.GetContext(ctx, &found, query, args...)
	return found, err
}

// Statistics

func (repo *accountRepository) GetVolunteeringStats(ctx context.Context, email string, window core.TimeWindow) (int, int, error) {
	var hours, positions int
	err := repo.db.QueryRowContext(ctx, `
		SELECT coalesce(sum(app.actual_hours), 0), count(*)
		FROM applications app
		JOIN activities a ON a.id = app.activity_id
		JOIN projects p ON p.id = a.project_id
		WHERE app.applicant_email = $1 AND app.status = $2
		  AND NOT a.fixed_reward AND NOT a.internal
		  AND p.lifetime_stage = $3
		  AND app.application_time >= $4 AND app.application_time <= $5
	`, email, application.StatusApproved, project.StageFinished,
		window.Start, window.End).Scan(&hours, &positions)
	return hours, positions, err
}

func (repo *accountRepository) GetAverageRating(ctx context.Context, email string, window core.TimeWindow) (float64, error) {
	var rating float64
	err := repo.db.GetContext(ctx, &rating, `
		SELECT coalesce(avg(r.rating), 0)
		FROM reports r
		JOIN applications app ON app.id = r.application_id
		WHERE app.applicant_email = $1 AND app.status = $2
		  AND app.application_time >= $3 AND app.application_time <= $4
	`, email, application.StatusApproved, window.Start, window.End)
	return rating, err
}

func (repo *accountRepository) QueryCompetenceStats(ctx context.Context, email string, window core.TimeWindow) ([]account.CompetenceStat, error) {
	rows, err := repo.db.QueryContext(ctx, `
		SELECT fc.competence_id, coalesce(c.name, ''), count(*)
		FROM feedback_competences fc
		JOIN feedback f ON f.application_id = fc.application_id
		JOIN applications app ON app.id = f.application_id
		LEFT JOIN competences c ON c.id = fc.competence_id
		WHERE app.applicant_email = $1
		  AND app.application_time >= $2 AND app.application_time <= $3
		GROUP BY fc.competence_id, c.name
		ORDER BY fc.competence_id
	`, email, window.Start, window.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make([]account.CompetenceStat, 0)
	for rows.Next() {
		var stat account.CompetenceStat
		if err = rows.Scan(&stat.ID, &stat.Name, &stat.Amount); err != nil {
			return nil, err
		}
		stats = append(stats, stat)
	}
	return stats, rows.Err()
}

package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/moflotas/ipts-backend/core"
	"github.com/moflotas/ipts-backend/core/application"
	"github.com/moflotas/ipts-backend/core/ledger"
	"github.com/moflotas/ipts-backend/core/notification"
	"github.com/moflotas/ipts-backend/core/project"
)

type applicationRepository struct {
	db *sqlx.DB

	// parent tables belong to the project domain
	projects *projectRepository
}

var _ application.Repository = (*applicationRepository)(nil) // interface compliance check

func NewApplicationRepository(db *sqlx.DB) application.Repository {
	return &applicationRepository{db: db, projects: &projectRepository{db: db}}
}

const applicationColumns = `
	id, activity_id, applicant_email, comment, telegram_username,
	application_time, status, actual_hours`

func (repo *applicationRepository) CreateApplication(ctx context.Context, app application.Application) (application.Application, error) {
	err := repo.db.QueryRowContext(ctx, `
		INSERT INTO applications (activity_id, applicant_email, comment, telegram_username, application_time, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, app.ActivityID, app.ApplicantEmail, app.Comment, app.TelegramUsername,
		app.ApplicationTime, app.Status).Scan(&app.ID)
	if err != nil {
		return application.Application{}, translate(err, application.ErrNotFound, application.ErrExists)
	}
	return app, nil
}

func (repo *applicationRepository) GetApplication(ctx context.Context, id int) (application.Application, error) {
	var app application.Application
	err := repo.db.QueryRowContext(ctx, `
		SELECT `+applicationColumns+` FROM applications WHERE id = $1
	`, id).Scan(&app.ID, &app.ActivityID, &app.ApplicantEmail, &app.Comment,
		&app.TelegramUsername, &app.ApplicationTime, &app.Status, &app.ActualHours)
	if err != nil {
		return application.Application{}, translate(err, application.ErrNotFound)
	}
	return app, nil
}

func (repo *applicationRepository) GetApplicationByApplicant(ctx context.Context, activityID int, applicantEmail string) (application.Application, error) {
	var app application.Application
	err := repo.db.QueryRowContext(ctx, `
		SELECT `+applicationColumns+` FROM applications
		WHERE activity_id = $1 AND applicant_email = $2
	`, activityID, applicantEmail).Scan(&app.ID, &app.ActivityID, &app.ApplicantEmail,
		&app.Comment, &app.TelegramUsername, &app.ApplicationTime, &app.Status, &app.ActualHours)
	if err != nil {
		return application.Application{}, translate(err, application.ErrNotFound)
	}
	return app, nil
}

func (repo *applicationRepository) UpdateApplication(ctx context.Context, app application.Application) (application.Application, error) {
	res, err := repo.db.ExecContext(ctx, `
		UPDATE applications
		SET status = $2, actual_hours = $3, telegram_username = $4
		WHERE id = $1
	`, app.ID, app.Status, app.ActualHours, app.TelegramUsername)
	if err != nil {
		return application.Application{}, err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return application.Application{}, core.NotFoundError(application.ErrNotFound)
	}
	return app, nil
}

func (repo *applicationRepository) DeleteApplication(ctx context.Context, id int) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM applications WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return core.NotFoundError(application.ErrNotFound)
	}
	return nil
}

func (repo *applicationRepository) GetActivity(ctx context.Context, id int) (project.Activity, error) {
	return repo.projects.GetActivity(ctx, id)
}

func (repo *applicationRepository) GetProject(ctx context.Context, id int) (project.Project, error) {
	return repo.projects.GetProject(ctx, id)
}

func (repo *applicationRepository) QueryAdminEmails(ctx context.Context) ([]string, error) {
	return repo.projects.QueryAdminEmails(ctx)
}

// Reports

func (repo *applicationRepository) GetReport(ctx context.Context, applicationID int, reporterEmail string) (application.VolunteeringReport, error) {
	var r application.VolunteeringReport
	err := repo.db.QueryRowContext(ctx, `
		SELECT application_id, reporter_email, rating, content, time
		FROM reports
		WHERE application_id = $1 AND reporter_email = $2
	`, applicationID, reporterEmail).Scan(&r.ApplicationID, &r.ReporterEmail, &r.Rating, &r.Content, &r.Time)
	if err != nil {
		return application.VolunteeringReport{}, translate(err, application.ErrReportNotFound)
	}
	return r, nil
}

func (repo *applicationRepository) QueryApplicantReports(ctx context.Context, projectID int, applicantEmail string) ([]application.VolunteeringReport, error) {
	rows, err := repo.db.QueryContext(ctx, `
		SELECT r.application_id, r.reporter_email, r.rating, r.content, r.time
		FROM reports r
		JOIN applications app ON app.id = r.application_id
		JOIN activities a ON a.id = app.activity_id
		WHERE a.project_id = $1 AND app.applicant_email = $2
		ORDER BY r.time
	`, projectID, applicantEmail)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reports := make([]application.VolunteeringReport, 0)
	for rows.Next() {
		var r application.VolunteeringReport
		if err = rows.Scan(&r.ApplicationID, &r.ReporterEmail, &r.Rating, &r.Content, &r.Time); err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

func (repo *applicationRepository) CreateReport(ctx context.Context, r application.VolunteeringReport) (application.VolunteeringReport, error) {
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO reports (application_id, reporter_email, rating, content, time)
		VALUES ($1, $2, $3, $4, $5)
	`, r.ApplicationID, r.ReporterEmail, r.Rating, r.Content, r.Time)
	if err != nil {
		return application.VolunteeringReport{}, translate(err, application.ErrReportNotFound, application.ErrReportExists)
	}
	return r, nil
}

func (repo *applicationRepository) UpdateReport(ctx context.Context, r application.VolunteeringReport) (application.VolunteeringReport, error) {
	res, err := repo.db.ExecContext(ctx, `
		UPDATE reports
		SET rating = $3, content = $4, time = $5
		WHERE application_id = $1 AND reporter_email = $2
	`, r.ApplicationID, r.ReporterEmail, r.Rating, r.Content, r.Time)
	if err != nil {
		return application.VolunteeringReport{}, err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return application.VolunteeringReport{}, core.NotFoundError(application.ErrReportNotFound)
	}
	return r, nil
}

func (repo *applicationRepository) DeleteReport(ctx context.Context, applicationID int, reporterEmail string) error {
	res, err := repo.db.ExecContext(ctx, `
		DELETE FROM reports WHERE application_id = $1 AND reporter_email = $2
	`, applicationID, reporterEmail)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return core.NotFoundError(application.ErrReportNotFound)
	}
	return nil
}

// Feedback

func (repo *applicationRepository) GetFeedback(ctx context.Context, applicationID int) (application.Feedback, error) {
	var (
		fb          application.Feedback
		answers     pq.StringArray
		competences pq.Int64Array
	)
	err := repo.db.QueryRowContext(ctx, `
		SELECT f.application_id, f.answers, f.time,
			coalesce(
				(SELECT array_agg(fc.competence_id ORDER BY fc.competence_id)
				 FROM feedback_competences fc WHERE fc.application_id = f.application_id),
				'{}')
		FROM feedback f
		WHERE f.application_id = $1
	`, applicationID).Scan(&fb.ApplicationID, &answers, &fb.Time, &competences)
	if err != nil {
		return application.Feedback{}, translate(err, application.ErrFeedbackNotFound)
	}
	fb.Answers = answers
	fb.Competences = make([]int, 0, len(competences))
	for _, id := range competences {
		fb.Competences = append(fb.Competences, int(id))
	}
	return fb, nil
}

func (repo *applicationRepository) CreateFeedback(ctx context.Context, fb application.Feedback, ltx ledger.Transaction) (application.Feedback, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return application.Feedback{}, errors.Wrap(err, "beginning tx")
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO feedback (application_id, answers, time)
		VALUES ($1, $2, $3)
	`, fb.ApplicationID, pq.Array(fb.Answers), fb.Time)
	if err != nil {
		return application.Feedback{}, translate(err, application.ErrFeedbackNotFound, application.ErrFeedbackExists)
	}
	for _, competenceID := range fb.Competences {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO feedback_competences (application_id, competence_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, fb.ApplicationID, competenceID)
		if err != nil {
			return application.Feedback{}, err
		}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (account_email, change, feedback_id)
		VALUES ($1, $2, $3)
	`, ltx.AccountEmail, ltx.Change, fb.ApplicationID)
	if err != nil {
		return application.Feedback{}, translate(err, application.ErrFeedbackNotFound, ledger.ErrDuplicateRef)
	}

	// the reward has been claimed; retire matching claim prompts
	_, err = tx.ExecContext(ctx, `
		UPDATE notifications
		SET is_read = true
		WHERE recipient_email = $1
		  AND type = $2
		  AND (payload->>'application_id')::int = $3
	`, ltx.AccountEmail, notification.TypeClaimInnopoints, fb.ApplicationID)
	if err != nil {
		return application.Feedback{}, err
	}

	if err = tx.Commit(); err != nil {
		return application.Feedback{}, errors.Wrap(err, "committing tx")
	}
	return fb, nil
}

func (repo *applicationRepository) AllFeedbackIn(ctx context.Context, projectID int) (bool, error) {
	var missing bool
	err := repo.db.GetContext(ctx, &missing, `
		SELECT EXISTS (
			SELECT 1
			FROM applications app
			JOIN activities a ON a.id = app.activity_id
			LEFT JOIN feedback f ON f.application_id = app.id
			WHERE a.project_id = $1 AND NOT a.internal AND f.application_id IS NULL
		)
	`, projectID)
	if err != nil {
		return false, err
	}
	return !missing, nil
}

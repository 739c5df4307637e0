package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/moflotas/ipts-backend/core"
	"github.com/moflotas/ipts-backend/core/project"
)

type projectRepository struct {
	db *sqlx.DB
}

var _ project.Repository = (*projectRepository)(nil) // interface compliance check

func NewProjectRepository(db *sqlx.DB) project.Repository {
	return &projectRepository{db: db}
}

const projectColumns = `
	p.id, p.name, p.organizer, p.creator_email, p.lifetime_stage,
	p.review_status, p.admin_feedback, p.image_id, p.creation_time,
	coalesce(
		(SELECT array_agg(pm.account_email ORDER BY pm.account_email)
		 FROM project_moderators pm WHERE pm.project_id = p.id),
		'{}') AS moderators`

func scanProject(row sqlx.ColScanner) (project.Project, error) {
	var (
		p          project.Project
		moderators pq.StringArray
	)
	err := row.Scan(&p.ID, &p.Name, &p.Organizer, &p.CreatorEmail, &p.Stage,
		&p.ReviewStatus, &p.AdminFeedback, &p.ImageID, &p.CreationTime, &moderators)
	if err != nil {
		return project.Project{}, err
	}
	p.Moderators = moderators
	return p, nil
}

func (repo *projectRepository) CreateProject(ctx context.Context, p project.Project, activities []project.Activity) (project.Project, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return project.Project{}, errors.Wrap(err, "beginning tx")
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO projects (name, organizer, creator_email, lifetime_stage, review_status, image_id, creation_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, p.Name, p.Organizer, p.CreatorEmail, p.Stage, p.ReviewStatus, p.ImageID, p.CreationTime).Scan(&p.ID)
	if err != nil {
		return project.Project{}, err
	}

	if err = setModerators(ctx, tx, p.ID, p.Moderators); err != nil {
		return project.Project{}, err
	}
	for _, act := range activities {
		act.ProjectID = p.ID
		if _, err = insertActivity(ctx, tx, act); err != nil {
			return project.Project{}, err
		}
	}
	if err = tx.Commit(); err != nil {
		return project.Project{}, errors.Wrap(err, "committing tx")
	}
	return p, nil
}

func setModerators(ctx context.Context, tx *sqlx.Tx, projectID int, moderators []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM project_moderators WHERE project_id = $1`, projectID); err != nil {
		return err
	}
	for _, email := range moderators {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO project_moderators (project_id, account_email)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, projectID, email)
		if err != nil {
			return err
		}
	}
	return nil
}

func (repo *projectRepository) GetProject(ctx context.Context, id int) (project.Project, error) {
	row := repo.db.QueryRowxContext(ctx, `
		SELECT `+projectColumns+`
		FROM projects p
		WHERE p.id = $1
	`, id)
	p, err := scanProject(row)
	if err != nil {
		return project.Project{}, translate(err, project.ErrNotFound)
	}
	return p, nil
}

func (repo *projectRepository) QueryProjects(ctx context.Context, filter project.QueryFilter) ([]project.Project, error) {
	query := `
		SELECT ` + projectColumns + `
		FROM projects p
		WHERE p.lifetime_stage <> 'draft'
		  AND ($1 = '' OR p.name ILIKE '%' || $1 || '%')`
	switch filter.Type {
	case "ongoing":
		query += ` AND p.lifetime_stage = 'ongoing'`
	case "past":
		query += ` AND p.lifetime_stage <> 'ongoing'`
	}
	query += ` ORDER BY ` + filter.Ordering.String()

	rows, err := repo.db.QueryxContext(ctx, query, filter.Search)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	projects := make([]project.Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (repo *projectRepository) QueryDraftProjects(ctx context.Context, creatorEmail string) ([]project.Project, error) {
	rows, err := repo.db.QueryxContext(ctx, `
		SELECT `+projectColumns+`
		FROM projects p
		WHERE p.lifetime_stage = 'draft' AND p.creator_email = $1
		ORDER BY p.id
	`, creatorEmail)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	projects := make([]project.Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (repo *projectRepository) UpdateProject(ctx context.Context, p project.Project) (project.Project, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return project.Project{}, errors.Wrap(err, "beginning tx")
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE projects
		SET name = $2, organizer = $3, image_id = $4
		WHERE id = $1
	`, p.ID, p.Name, p.Organizer, p.ImageID)
	if err != nil {
		return project.Project{}, err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return project.Project{}, core.NotFoundError(project.ErrNotFound)
	}
	if err = setModerators(ctx, tx, p.ID, p.Moderators); err != nil {
		return project.Project{}, err
	}
	if err = tx.Commit(); err != nil {
		return project.Project{}, errors.Wrap(err, "committing tx")
	}
	return p, nil
}

func (repo *projectRepository) SetProjectStage(ctx context.Context, id int, stage project.Stage, review project.ReviewStatus, adminFeedback null.String) error {
	res, err := repo.db.ExecContext(ctx, `
		UPDATE projects
		SET lifetime_stage = $2, review_status = $3, admin_feedback = $4
		WHERE id = $1
	`, id, stage, review, adminFeedback)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return core.NotFoundError(project.ErrNotFound)
	}
	return nil
}

func (repo *projectRepository) DeleteProject(ctx context.Context, id int) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return core.NotFoundError(project.ErrNotFound)
	}
	return nil
}

// Activities

const activityColumns = `
	a.id, a.project_id, a.name, a.description, a.start_date, a.end_date,
	a.working_hours, a.reward_rate, a.fixed_reward, a.people_required,
	a.telegram_required, a.application_deadline, a.feedback_questions,
	a.draft, a.internal,
	coalesce(
		(SELECT array_agg(ac.competence_id ORDER BY ac.competence_id)
		 FROM activity_competences ac WHERE ac.activity_id = a.id),
		'{}') AS competences`

func scanActivity(row sqlx.ColScanner) (project.Activity, error) {
	var (
		act         project.Activity
		questions   pq.StringArray
		competences pq.Int64Array
	)
	err := row.Scan(&act.ID, &act.ProjectID, &act.Name, &act.Description,
		&act.StartDate, &act.EndDate, &act.WorkingHours, &act.RewardRate,
		&act.FixedReward, &act.PeopleRequired, &act.TelegramRequired,
		&act.ApplicationDeadline, &questions, &act.Draft, &act.Internal,
		&competences)
	if err != nil {
		return project.Activity{}, err
	}
	act.FeedbackQuestions = questions
	act.Competences = make([]int, 0, len(competences))
	for _, id := range competences {
		act.Competences = append(act.Competences, int(id))
	}
	return act, nil
}

func insertActivity(ctx context.Context, tx *sqlx.Tx, act project.Activity) (project.Activity, error) {
	err := tx.QueryRowContext(ctx, `
		INSERT INTO activities (project_id, name, description, start_date, end_date,
			working_hours, reward_rate, fixed_reward, people_required,
			telegram_required, application_deadline, feedback_questions, draft, internal)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`, act.ProjectID, act.Name, act.Description, act.StartDate, act.EndDate,
		act.WorkingHours, act.RewardRate, act.FixedReward, act.PeopleRequired,
		act.TelegramRequired, act.ApplicationDeadline, pq.Array(act.FeedbackQuestions),
		act.Draft, act.Internal).Scan(&act.ID)
	if err != nil {
		return project.Activity{}, err
	}
	if err = setCompetences(ctx, tx, act.ID, act.Competences); err != nil {
		return project.Activity{}, err
	}
	return act, nil
}

func setCompetences(ctx context.Context, tx *sqlx.Tx, activityID int, competences []int) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM activity_competences WHERE activity_id = $1`, activityID); err != nil {
		return err
	}
	for _, competenceID := range competences {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO activity_competences (activity_id, competence_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, activityID, competenceID)
		if err != nil {
			return err
		}
	}
	return nil
}

func (repo *projectRepository) GetActivity(ctx context.Context, id int) (project.Activity, error) {
	row := repo.db.QueryRowxContext(ctx, `
		SELECT `+activityColumns+`
		FROM activities a
		WHERE a.id = $1
	`, id)
	act, err := scanActivity(row)
	if err != nil {
		return project.Activity{}, translate(err, project.ErrActivityNotFound)
	}
	return act, nil
}

func (repo *projectRepository) QueryProjectActivities(ctx context.Context, projectID int, includeInternal bool) ([]project.Activity, error) {
	rows, err := repo.db.QueryxContext(ctx, `
		SELECT `+activityColumns+`
		FROM activities a
		WHERE a.project_id = $1 AND ($2 OR NOT a.internal)
		ORDER BY a.id
	`, projectID, includeInternal)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	activities := make([]project.Activity, 0)
	for rows.Next() {
		act, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, act)
	}
	return activities, rows.Err()
}

func (repo *projectRepository) CreateActivity(ctx context.Context, act project.Activity) (project.Activity, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return project.Activity{}, errors.Wrap(err, "beginning tx")
	}
	defer func() { _ = tx.Rollback() }()

	if act, err = insertActivity(ctx, tx, act); err != nil {
		return project.Activity{}, err
	}
	if err = tx.Commit(); err != nil {
		return project.Activity{}, errors.Wrap(err, "committing tx")
	}
	return act, nil
}

func (repo *projectRepository) UpdateActivity(ctx context.Context, act project.Activity, cascadeHours bool) (project.Activity, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return project.Activity{}, errors.Wrap(err, "beginning tx")
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE activities
		SET name = $2, description = $3, start_date = $4, end_date = $5,
			working_hours = $6, reward_rate = $7, fixed_reward = $8,
			people_required = $9, telegram_required = $10,
			application_deadline = $11, feedback_questions = $12, draft = $13
		WHERE id = $1
	`, act.ID, act.Name, act.Description, act.StartDate, act.EndDate,
		act.WorkingHours, act.RewardRate, act.FixedReward, act.PeopleRequired,
		act.TelegramRequired, act.ApplicationDeadline, pq.Array(act.FeedbackQuestions), act.Draft)
	if err != nil {
		return project.Activity{}, err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return project.Activity{}, core.NotFoundError(project.ErrActivityNotFound)
	}
	if err = setCompetences(ctx, tx, act.ID, act.Competences); err != nil {
		return project.Activity{}, err
	}
	if cascadeHours {
		_, err = tx.ExecContext(ctx, `
			UPDATE applications
			SET actual_hours = $2
			WHERE activity_id = $1 AND status <> 'rejected'
		`, act.ID, act.WorkingHours)
		if err != nil {
			return project.Activity{}, err
		}
	}
	if err = tx.Commit(); err != nil {
		return project.Activity{}, errors.Wrap(err, "committing tx")
	}
	return act, nil
}

func (repo *projectRepository) DeleteActivity(ctx context.Context, id int) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM activities WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return core.NotFoundError(project.ErrActivityNotFound)
	}
	return nil
}

func (repo *projectRepository) CreateModerationActivity(ctx context.Context, projectID int, moderators []string) (project.Activity, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return project.Activity{}, errors.Wrap(err, "beginning tx")
	}
	defer func() { _ = tx.Rollback() }()

	act := project.Activity{
		ProjectID:   projectID,
		Name:        null.StringFrom(project.ModerationActivityName),
		RewardRate:  project.IptsPerHour,
		FixedReward: true,
		Internal:    true,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO activities (project_id, name, reward_rate, fixed_reward, draft, internal)
		VALUES ($1, $2, $3, true, false, true)
		RETURNING id
	`, act.ProjectID, act.Name, act.RewardRate).Scan(&act.ID)
	if err != nil {
		return project.Activity{}, err
	}

	now := time.Now().UTC()
	for _, email := range moderators {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO applications (activity_id, applicant_email, application_time, status)
			VALUES ($1, $2, $3, 'approved')
		`, act.ID, email, now)
		if err != nil {
			return project.Activity{}, err
		}
	}
	if err = tx.Commit(); err != nil {
		return project.Activity{}, errors.Wrap(err, "committing tx")
	}
	return act, nil
}

func (repo *projectRepository) CountApplications(ctx context.Context, activityID int, approvedOnly bool) (int, error) {
	var count int
	err := repo.db.GetContext(ctx, &count, `
		SELECT count(*) FROM applications
		WHERE activity_id = $1 AND ($2 = false OR status = 'approved')
	`, activityID, approvedOnly)
	return count, err
}

func (repo *projectRepository) EarliestApplicationTime(ctx context.Context, activityID int) (time.Time, bool, error) {
	var earliest sql.NullTime
	err := repo.db.GetContext(ctx, &earliest, `
		SELECT min(application_time) FROM applications WHERE activity_id = $1
	`, activityID)
	if err != nil {
		return time.Time{}, false, err
	}
	return earliest.Time, earliest.Valid, nil
}

func (repo *projectRepository) QueryProjectApplications(ctx context.Context, projectID int, excludeInternal bool) ([]project.ApplicationRef, error) {
	rows, err := repo.db.QueryContext(ctx, `
		SELECT app.id, app.activity_id, app.applicant_email
		FROM applications app
		JOIN activities a ON a.id = app.activity_id
		WHERE a.project_id = $1 AND ($2 = false OR NOT a.internal)
		ORDER BY app.id
	`, projectID, excludeInternal)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refs := make([]project.ApplicationRef, 0)
	for rows.Next() {
		var ref project.ApplicationRef
		if err = rows.Scan(&ref.ApplicationID, &ref.ActivityID, &ref.ApplicantEmail); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (repo *projectRepository) QueryAdminEmails(ctx context.Context) ([]string, error) {
	var emails []string
	err := repo.db.SelectContext(ctx, &emails, `
		SELECT email FROM accounts WHERE is_admin ORDER BY email
	`)
	return emails, err
}

// Competences

func (repo *projectRepository) QueryCompetences(ctx context.Context) ([]project.Competence, error) {
	rows, err := repo.db.QueryContext(ctx, `SELECT id, name FROM competences ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	competences := make([]project.Competence, 0)
	for rows.Next() {
		var c project.Competence
		if err = rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		competences = append(competences, c)
	}
	return competences, rows.Err()
}

func (repo *projectRepository) CreateCompetence(ctx context.Context, c project.Competence) (project.Competence, error) {
	err := repo.db.QueryRowContext(ctx, `
		INSERT INTO competences (name) VALUES ($1) RETURNING id
	`, c.Name).Scan(&c.ID)
	if err != nil {
		return project.Competence{}, translate(err, project.ErrCompetenceNotFound, project.ErrCompetenceExists)
	}
	return c, nil
}

func (repo *projectRepository) UpdateCompetence(ctx context.Context, c project.Competence) (project.Competence, error) {
	res, err := repo.db.ExecContext(ctx, `UPDATE competences SET name = $2 WHERE id = $1`, c.ID, c.Name)
	if err != nil {
		return project.Competence{}, translate(err, project.ErrCompetenceNotFound, project.ErrCompetenceExists)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return project.Competence{}, core.NotFoundError(project.ErrCompetenceNotFound)
	}
	return c, nil
}

func (repo *projectRepository) DeleteCompetence(ctx context.Context, id int) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM competences WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return core.NotFoundError(project.ErrCompetenceNotFound)
	}
	return nil
}

package application

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/moflotas/ipts-backend/core"
	"github.com/moflotas/ipts-backend/core/ledger"
	"github.com/moflotas/ipts-backend/core/notification"
	"github.com/moflotas/ipts-backend/core/project"
)

var (
	// errors
	ErrNotFound         = errors.New("application not found")
	ErrReportNotFound   = errors.New("report not found")
	ErrFeedbackNotFound = errors.New("feedback not found")
	ErrExists           = errors.New("an application already exists")
	ErrReportExists     = errors.New("a report for this application already exists")
	ErrFeedbackExists   = errors.New("feedback already exists")

	errUnrelated          = errors.New("the specified project, activity and application are unrelated")
	errProjectNotOngoing  = errors.New("applications may only be changed on ongoing projects")
	errDraftActivity      = errors.New("cannot apply to draft activities")
	errPastDeadline       = errors.New("the application is past the deadline")
	errTelegramRequired   = errors.New("this activity requires a telegram username")
	errInternalImmutable  = errors.New("cannot modify the status of internal applications")
	errInvalidStatus      = errors.New("a valid application status must be specified")
	errNotFinalizing      = errors.New("the project must be in the finalizing stage")
	errNotFinished        = errors.New("feedback may only be left on finished projects")
	errNotApproved        = errors.New("the application must be approved")
	errNegativeHours      = errors.New("actual hours must be a non-negative integer")
	errFixedRewardHours   = errors.New("hours on fixed-reward activities may only be 0 or 1")
	errWrongAnswerCount   = errors.New("the number of answers must match the feedback questions")
	errNotApplicant       = errors.New("only the applicant may perform this operation")
	errNotModerator       = errors.New("only project moderators may perform this operation")
)

type (
	Repository interface {
		CreateApplication(ctx context.Context, app Application) (Application, error)
		GetApplication(ctx context.Context, id int) (Application, error)
		GetApplicationByApplicant(ctx context.Context, activityID int, applicantEmail string) (Application, error)
		UpdateApplication(ctx context.Context, app Application) (Application, error)
		DeleteApplication(ctx context.Context, id int) error

		// parent reads, shared with the project domain's tables
		GetActivity(ctx context.Context, id int) (project.Activity, error)
		GetProject(ctx context.Context, id int) (project.Project, error)
		QueryAdminEmails(ctx context.Context) ([]string, error)

		GetReport(ctx context.Context, applicationID int, reporterEmail string) (VolunteeringReport, error)
		// QueryApplicantReports returns all moderator reports filed within the
		// project about the given applicant (across all their applications).
		QueryApplicantReports(ctx context.Context, projectID int, applicantEmail string) ([]VolunteeringReport, error)
		CreateReport(ctx context.Context, r VolunteeringReport) (VolunteeringReport, error)
		UpdateReport(ctx context.Context, r VolunteeringReport) (VolunteeringReport, error)
		DeleteReport(ctx context.Context, applicationID int, reporterEmail string) error

		GetFeedback(ctx context.Context, applicationID int) (Feedback, error)
		// CreateFeedback persists the feedback, the ledger transaction crediting
		// the applicant and the claim-notification read mark in one storage
		// transaction. A duplicate submission must fail on the uniqueness
		// constraint and surface as a Conflict.
		CreateFeedback(ctx context.Context, fb Feedback, tx ledger.Transaction) (Feedback, error)
		// AllFeedbackIn reports whether every application on the project's
		// non-internal activities has feedback.
		AllFeedbackIn(ctx context.Context, projectID int) (bool, error)
	}

	Service interface {
		Apply(ctx context.Context, actor core.Actor, projectID, activityID int, na NewApplication) (Application, error)
		Withdraw(ctx context.Context, actor core.Actor, projectID, activityID int) error
		SetStatus(ctx context.Context, actor core.Actor, projectID, activityID, applicationID int, status Status) (Application, error)
		SetActualHours(ctx context.Context, actor core.Actor, projectID, activityID, applicationID int, hours int) (Application, error)

		ReportInfo(ctx context.Context, actor core.Actor, projectID, activityID, applicationID int) (ReportInfo, error)
		CreateReport(ctx context.Context, actor core.Actor, projectID, activityID, applicationID int, nr NewReport) (VolunteeringReport, error)
		UpdateReport(ctx context.Context, actor core.Actor, projectID, activityID, applicationID int, nr NewReport) (VolunteeringReport, error)
		DeleteReport(ctx context.Context, actor core.Actor, projectID, activityID, applicationID int) error

		SubmitFeedback(ctx context.Context, actor core.Actor, projectID, activityID, applicationID int, nf NewFeedback) (Feedback, error)
	}

	service struct {
		repo     Repository
		notifSvc notification.Service
		logger   core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, notifSvc notification.Service, logger core.Logger) Service {
	return &service{
		repo:     repo,
		notifSvc: notifSvc,
		logger:   logger,
	}
}

// Apply files a pending application for the actor on the given activity.
// The new application's actual hours are pre-seeded from the activity's
// working hours.
func (svc *service) Apply(ctx context.Context, actor core.Actor, projectID, activityID int, na NewApplication) (Application, error) {
	proj, act, err := svc.getProjectActivity(ctx, projectID, activityID, false /* allowInternal */)
	if err != nil {
		return Application{}, err
	}
	if proj.Stage != project.StageOngoing {
		return Application{}, core.InvalidStateError(errors.New("applications may only be placed on ongoing projects"))
	}
	if act.Draft {
		return Application{}, core.InvalidStateError(errDraftActivity)
	}
	if _, err := svc.repo.GetApplicationByApplicant(ctx, activityID, actor.Email); err == nil {
		return Application{}, core.ConflictError(ErrExists)
	} else if core.ErrorKind(err) != core.KindNotFound {
		return Application{}, errors.Wrap(err, "checking existing application")
	}
	if act.TelegramRequired && !na.Telegram.Valid {
		return Application{}, core.ConflictError(errTelegramRequired)
	}
	if act.ApplicationDeadline.Valid && act.ApplicationDeadline.Time.Before(time.Now().UTC()) {
		return Application{}, core.ConflictError(errPastDeadline)
	}

	app := Application{
		ActivityID:       activityID,
		ApplicantEmail:   actor.Email,
		Comment:          na.Comment,
		TelegramUsername: na.Telegram,
		ApplicationTime:  time.Now().UTC(),
		Status:           StatusPending,
		ActualHours:      act.WorkingHours,
	}
	return svc.repo.CreateApplication(ctx, app)
}

// Withdraw deletes the actor's application on the activity together with any
// notifications that reference it.
func (svc *service) Withdraw(ctx context.Context, actor core.Actor, projectID, activityID int) error {
	proj, _, err := svc.getProjectActivity(ctx, projectID, activityID, false)
	if err != nil {
		return err
	}
	app, err := svc.repo.GetApplicationByApplicant(ctx, activityID, actor.Email)
	if err != nil {
		return err
	}
	if proj.Stage != project.StageOngoing {
		return core.InvalidStateError(errors.New("applications may only be taken back from ongoing projects"))
	}
	if err = svc.repo.DeleteApplication(ctx, app.ID); err != nil {
		return errors.Wrap(err, "deleting application")
	}
	if err = svc.notifSvc.RemoveByApplication(ctx, app.ID); err != nil {
		svc.logger.Error("removing application notifications", err)
	}
	return nil
}

// SetStatus moves an application between pending/approved/rejected. The
// applicant is notified only when the stored value actually changes.
func (svc *service) SetStatus(ctx context.Context, actor core.Actor, projectID, activityID, applicationID int, status Status) (Application, error) {
	proj, act, app, err := svc.getChain(ctx, projectID, activityID, applicationID)
	if err != nil {
		return Application{}, err
	}
	if !proj.CanManage(actor) {
		return Application{}, core.ForbiddenError(errNotModerator)
	}
	if !status.Valid() {
		return Application{}, core.NewValidationError(errInvalidStatus, core.FieldError{Field: "status", Error: errInvalidStatus.Error()})
	}
	if proj.Stage != project.StageOngoing {
		return Application{}, core.InvalidStateError(errProjectNotOngoing)
	}
	if act.Internal && app.Status != status {
		return Application{}, core.InvalidStateError(errInternalImmutable)
	}

	oldStatus := app.Status
	app.Status = status
	app, err = svc.repo.UpdateApplication(ctx, app)
	if err != nil {
		return Application{}, errors.Wrap(err, "updating application")
	}

	if app.Status != oldStatus {
		_, err := svc.notifSvc.Notify(ctx, app.ApplicantEmail, notification.TypeApplicationStatusChanged, &notification.ApplicationPayload{
			ProjectID:     projectID,
			ActivityID:    activityID,
			ApplicationID: applicationID,
		})
		if err != nil {
			svc.logger.Error("notifying applicant", err)
		}
	}
	return app, nil
}

// SetActualHours records the hours actually worked. Only allowed while the
// project is finalizing, only on approved applications, and fixed-reward
// activities accept 0 or 1 only.
func (svc *service) SetActualHours(ctx context.Context, actor core.Actor, projectID, activityID, applicationID int, hours int) (Application, error) {
	proj, act, app, err := svc.getChain(ctx, projectID, activityID, applicationID)
	if err != nil {
		return Application{}, err
	}
	if !proj.CanManage(actor) {
		return Application{}, core.ForbiddenError(errNotModerator)
	}
	if proj.Stage != project.StageFinalizing {
		return Application{}, core.InvalidStateError(errors.New("the actual hours may only be changed on finalizing projects"))
	}
	if hours < 0 {
		return Application{}, core.NewValidationError(errNegativeHours, core.FieldError{Field: "actual_hours", Error: errNegativeHours.Error()})
	}
	if act.FixedReward && hours != 0 && hours != 1 {
		return Application{}, core.NewValidationError(errFixedRewardHours, core.FieldError{Field: "actual_hours", Error: errFixedRewardHours.Error()})
	}
	if app.Status != StatusApproved {
		return Application{}, core.InvalidStateError(errNotApproved)
	}

	app.ActualHours.SetValid(hours)
	app, err = svc.repo.UpdateApplication(ctx, app)
	if err != nil {
		return Application{}, errors.Wrap(err, "updating application")
	}
	return app, nil
}

// Reports

func (svc *service) ReportInfo(ctx context.Context, actor core.Actor, projectID, activityID, applicationID int) (ReportInfo, error) {
	proj, act, app, err := svc.getChain(ctx, projectID, activityID, applicationID)
	if err != nil {
		return ReportInfo{}, err
	}
	if act.Internal {
		return ReportInfo{}, core.NotFoundError(project.ErrActivityNotFound)
	}
	if !proj.CanManage(actor) {
		return ReportInfo{}, core.ForbiddenError(errNotModerator)
	}

	reports, err := svc.repo.QueryApplicantReports(ctx, projectID, app.ApplicantEmail)
	if err != nil {
		return ReportInfo{}, errors.Wrap(err, "querying reports")
	}
	info := ReportInfo{Reports: reports}
	if len(reports) > 0 {
		var sum int
		for _, r := range reports {
			sum += r.Rating
		}
		info.AverageRating = (sum + len(reports)/2) / len(reports) // rounded
	}
	return info, nil
}

func (svc *service) CreateReport(ctx context.Context, actor core.Actor, projectID, activityID, applicationID int, nr NewReport) (VolunteeringReport, error) {
	app, err := svc.guardReport(ctx, actor, projectID, activityID, applicationID)
	if err != nil {
		return VolunteeringReport{}, err
	}
	report := VolunteeringReport{
		ApplicationID: app.ID,
		ReporterEmail: actor.Email,
		Rating:        nr.Rating,
		Content:       nr.Content,
		Time:          time.Now().UTC(),
	}
	return svc.repo.CreateReport(ctx, report)
}

func (svc *service) UpdateReport(ctx context.Context, actor core.Actor, projectID, activityID, applicationID int, nr NewReport) (VolunteeringReport, error) {
	app, err := svc.guardReport(ctx, actor, projectID, activityID, applicationID)
	if err != nil {
		return VolunteeringReport{}, err
	}
	report, err := svc.repo.GetReport(ctx, app.ID, actor.Email)
	if err != nil {
		return VolunteeringReport{}, err
	}
	report.Rating = nr.Rating
	report.Content = nr.Content
	return svc.repo.UpdateReport(ctx, report)
}

func (svc *service) DeleteReport(ctx context.Context, actor core.Actor, projectID, activityID, applicationID int) error {
	app, err := svc.guardReport(ctx, actor, projectID, activityID, applicationID)
	if err != nil {
		return err
	}
	if _, err = svc.repo.GetReport(ctx, app.ID, actor.Email); err != nil {
		return err
	}
	return svc.repo.DeleteReport(ctx, app.ID, actor.Email)
}

// SubmitFeedback persists the volunteer's feedback and atomically credits the
// ledger with actual_hours * reward_rate innopoints. Once every application
// across the project's non-internal activities has feedback, the moderators
// and admins are told the project is fully reported on.
func (svc *service) SubmitFeedback(ctx context.Context, actor core.Actor, projectID, activityID, applicationID int, nf NewFeedback) (Feedback, error) {
	proj, act, app, err := svc.getChain(ctx, projectID, activityID, applicationID)
	if err != nil {
		return Feedback{}, err
	}
	if app.ApplicantEmail != actor.Email {
		return Feedback{}, core.ForbiddenError(errNotApplicant)
	}
	if _, err := svc.repo.GetFeedback(ctx, applicationID); err == nil {
		return Feedback{}, core.ConflictError(ErrFeedbackExists)
	} else if core.ErrorKind(err) != core.KindNotFound {
		return Feedback{}, errors.Wrap(err, "checking existing feedback")
	}
	if app.Status != StatusApproved {
		return Feedback{}, core.InvalidStateError(errNotApproved)
	}
	if proj.Stage != project.StageFinished {
		return Feedback{}, core.InvalidStateError(errNotFinished)
	}
	if len(nf.Answers) != len(act.FeedbackQuestions) {
		return Feedback{}, core.NewValidationError(errWrongAnswerCount, core.FieldError{Field: "answers", Error: errWrongAnswerCount.Error()})
	}

	fb := Feedback{
		ApplicationID: applicationID,
		Answers:       nf.Answers,
		Competences:   nf.Competences,
		Time:          time.Now().UTC(),
	}
	// the reward is computed exactly once, here
	reward := app.ActualHours.Int * act.RewardRate
	tx := ledger.Transaction{
		AccountEmail: actor.Email,
		Change:       reward,
		Reference:    ledger.FeedbackRef(applicationID),
	}
	fb, err = svc.repo.CreateFeedback(ctx, fb, tx)
	if err != nil {
		return Feedback{}, errors.Wrap(err, "creating feedback")
	}

	allIn, err := svc.repo.AllFeedbackIn(ctx, projectID)
	if err != nil {
		svc.logger.Error("checking project feedback completeness", err)
		return fb, nil
	}
	if allIn {
		admins, err := svc.repo.QueryAdminEmails(ctx)
		if err != nil {
			svc.logger.Error("querying admins", err)
			admins = nil
		}
		recipients := make([]string, 0, len(proj.Moderators)+len(admins))
		seen := make(map[string]bool)
		for _, email := range append(append([]string(nil), proj.Moderators...), admins...) {
			if !seen[email] {
				seen[email] = true
				recipients = append(recipients, email)
			}
		}
		svc.notifSvc.NotifyAll(ctx, recipients, notification.TypeAllFeedbackIn, &notification.ProjectPayload{ProjectID: projectID})
	}
	return fb, nil
}

// helpers

// getProjectActivity resolves the (project, activity) pair and checks their
// relation. Internal activities read as missing unless allowInternal is set.
func (svc *service) getProjectActivity(ctx context.Context, projectID, activityID int, allowInternal bool) (project.Project, project.Activity, error) {
	proj, err := svc.repo.GetProject(ctx, projectID)
	if err != nil {
		return project.Project{}, project.Activity{}, err
	}
	act, err := svc.repo.GetActivity(ctx, activityID)
	if err != nil {
		return project.Project{}, project.Activity{}, err
	}
	if act.Internal && !allowInternal {
		return project.Project{}, project.Activity{}, core.NotFoundError(project.ErrActivityNotFound)
	}
	if act.ProjectID != proj.ID {
		return project.Project{}, project.Activity{}, core.NewValidationError(errUnrelated)
	}
	return proj, act, nil
}

// getChain resolves the full (project, activity, application) chain. Internal
// activities are allowed here: status guards handle them explicitly.
func (svc *service) getChain(ctx context.Context, projectID, activityID, applicationID int) (project.Project, project.Activity, Application, error) {
	proj, act, err := svc.getProjectActivity(ctx, projectID, activityID, true)
	if err != nil {
		return project.Project{}, project.Activity{}, Application{}, err
	}
	app, err := svc.repo.GetApplication(ctx, applicationID)
	if err != nil {
		return project.Project{}, project.Activity{}, Application{}, err
	}
	if app.ActivityID != act.ID {
		return project.Project{}, project.Activity{}, Application{}, core.NewValidationError(errUnrelated)
	}
	return proj, act, app, nil
}

// guardReport applies the shared report-window guards: moderator/admin,
// non-internal activity, finalizing project, approved application.
func (svc *service) guardReport(ctx context.Context, actor core.Actor, projectID, activityID, applicationID int) (Application, error) {
	proj, act, app, err := svc.getChain(ctx, projectID, activityID, applicationID)
	if err != nil {
		return Application{}, err
	}
	if act.Internal {
		return Application{}, core.NotFoundError(project.ErrActivityNotFound)
	}
	if !proj.CanManage(actor) {
		return Application{}, core.ForbiddenError(errNotModerator)
	}
	if proj.Stage != project.StageFinalizing {
		return Application{}, core.InvalidStateError(errNotFinalizing)
	}
	if app.Status != StatusApproved {
		return Application{}, core.InvalidStateError(errNotApproved)
	}
	return app, nil
}

package project

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/moflotas/ipts-backend/core"
	"github.com/moflotas/ipts-backend/core/notification"
)

var (
	// errors
	ErrNotFound           = errors.New("project not found")
	ErrActivityNotFound   = errors.New("activity not found")
	ErrCompetenceNotFound = errors.New("competence not found")
	ErrCompetenceExists   = errors.New("a competence with this name already exists")

	errNotDraft            = errors.New("only draft projects can be published")
	errNotOngoing          = errors.New("only ongoing projects can be finalized")
	errNotFinalizing       = errors.New("only projects being finalized can be reviewed")
	errNoOrganizer         = errors.New("the organizer field must not be empty")
	errNoActivities        = errors.New("the project must have at least one activity")
	errCompetenceCount     = errors.New("the activities must have from 1 to 3 competences")
	errAlreadyUnderReview  = errors.New("project is already under review")
	errAlreadyApproved     = errors.New("project is already approved")
	errNotPendingReview    = errors.New("can only review projects pending review")
	errInvalidReview       = errors.New("invalid review status specified")
	errNotEditable         = errors.New("the project may only be edited during its draft and ongoing stages")
	errActivityNotEditable = errors.New("activities may only be changed on draft and ongoing projects")
	errUnrelatedActivity   = errors.New("the specified project and activity are unrelated")
	errIncompleteActivity  = errors.New("incomplete activities cannot be marked as non-draft")
	errFixedHours          = errors.New("working hours of fixed-reward activities are pinned to 1")
	errRewardRateImmutable = errors.New("the reward rate for hourly activities may not be changed")
	errPeopleBelowApproved = errors.New("cannot reduce the required people below the approved applications")
	errDraftWithApplicants = errors.New("cannot mark as draft, applications exist")
	errDeadlineTooEarly    = errors.New("cannot set the deadline earlier than an existing application")
	errInvalidActivity     = errors.New("the name or dates of the activity are invalid")
)

type (
	// ApplicationRef identifies one application for cross-entity fan-out
	// (e.g. the claim-innopoints notification burst on approval).
	ApplicationRef struct {
		ApplicationID  int
		ActivityID     int
		ApplicantEmail string
	}

	Repository interface {
		CreateProject(ctx context.Context, p Project, activities []Activity) (Project, error)
		GetProject(ctx context.Context, id int) (Project, error)
		QueryProjects(ctx context.Context, filter QueryFilter) ([]Project, error)
		QueryDraftProjects(ctx context.Context, creatorEmail string) ([]Project, error)
		UpdateProject(ctx context.Context, p Project) (Project, error)
		// SetProjectStage persists a stage/review transition decided by the service.
		SetProjectStage(ctx context.Context, id int, stage Stage, review ReviewStatus, adminFeedback null.String) error
		DeleteProject(ctx context.Context, id int) error

		GetActivity(ctx context.Context, id int) (Activity, error)
		QueryProjectActivities(ctx context.Context, projectID int, includeInternal bool) ([]Activity, error)
		CreateActivity(ctx context.Context, act Activity) (Activity, error)
		// UpdateActivity persists the activity; when cascadeHours is set it also
		// copies the new working hours onto every non-rejected application.
		UpdateActivity(ctx context.Context, act Activity, cascadeHours bool) (Activity, error)
		DeleteActivity(ctx context.Context, id int) error
		// CreateModerationActivity inserts the internal bookkeeping activity and
		// an approved application on it for each moderator, atomically.
		CreateModerationActivity(ctx context.Context, projectID int, moderators []string) (Activity, error)

		CountApplications(ctx context.Context, activityID int, approvedOnly bool) (int, error)
		// EarliestApplicationTime reports the oldest application on the
		// activity; ok is false when no applications exist.
		EarliestApplicationTime(ctx context.Context, activityID int) (t time.Time, ok bool, err error)
		QueryProjectApplications(ctx context.Context, projectID int, excludeInternal bool) ([]ApplicationRef, error)
		QueryAdminEmails(ctx context.Context) ([]string, error)

		QueryCompetences(ctx context.Context) ([]Competence, error)
		CreateCompetence(ctx context.Context, c Competence) (Competence, error)
		UpdateCompetence(ctx context.Context, c Competence) (Competence, error)
		DeleteCompetence(ctx context.Context, id int) error
	}

	Service interface {
		Create(ctx context.Context, actor core.Actor, np NewProject) (Project, error)
		Get(ctx context.Context, id int) (Project, error)
		Query(ctx context.Context, filter QueryFilter) ([]Project, error)
		QueryDrafts(ctx context.Context, actor core.Actor) ([]Project, error)
		Update(ctx context.Context, actor core.Actor, id int, up UpdateProject) (Project, error)
		Publish(ctx context.Context, actor core.Actor, id int) error
		StartFinalizing(ctx context.Context, actor core.Actor, id int) error
		RequestReview(ctx context.Context, actor core.Actor, id int) (Project, error)
		Review(ctx context.Context, actor core.Actor, id int, decision string, adminFeedback null.String) error
		Delete(ctx context.Context, actor core.Actor, id int) error

		GetActivity(ctx context.Context, projectID, activityID int) (Activity, error)
		QueryActivities(ctx context.Context, projectID int) ([]Activity, error)
		CreateActivity(ctx context.Context, actor core.Actor, projectID int, na NewActivity) (Activity, error)
		UpdateActivity(ctx context.Context, actor core.Actor, projectID, activityID int, ua UpdateActivity) (Activity, error)
		PublishActivity(ctx context.Context, actor core.Actor, projectID, activityID int) error
		DeleteActivity(ctx context.Context, actor core.Actor, projectID, activityID int) error

		QueryCompetences(ctx context.Context) ([]Competence, error)
		CreateCompetence(ctx context.Context, actor core.Actor, nc NewCompetence) (Competence, error)
		UpdateCompetence(ctx context.Context, actor core.Actor, id int, nc NewCompetence) (Competence, error)
		DeleteCompetence(ctx context.Context, actor core.Actor, id int) error
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

func (svc *service) Create(ctx context.Context, actor core.Actor, np NewProject) (Project, error) {
	proj := Project{
		Name:         np.Name,
		Organizer:    np.Organizer,
		CreatorEmail: actor.Email,
		Moderators:   np.Moderators,
		Stage:        StageDraft,
		ReviewStatus: ReviewNone,
		ImageID:      np.ImageID,
		CreationTime: time.Now().UTC(),
	}
	// the creator always moderates their own project
	if !proj.HasModerator(actor.Email) {
		proj.Moderators = append(proj.Moderators, actor.Email)
	}

	activities := make([]Activity, 0, len(np.Activities))
	for _, na := range np.Activities {
		act := na.Activity(0)
		if !act.Draft && !act.IsComplete() {
			return Project{}, core.InvalidStateError(errIncompleteActivity)
		}
		activities = append(activities, act)
	}
	return svc.repo.CreateProject(ctx, proj, activities)
}

func (svc *service) Get(ctx context.Context, id int) (Project, error) {
	return svc.repo.GetProject(ctx, id)
}

func (svc *service) Query(ctx context.Context, filter QueryFilter) ([]Project, error) {
	filter.Clean()
	return svc.repo.QueryProjects(ctx, filter)
}

func (svc *service) QueryDrafts(ctx context.Context, actor core.Actor) ([]Project, error) {
	return svc.repo.QueryDraftProjects(ctx, actor.Email)
}

func (svc *service) Update(ctx context.Context, actor core.Actor, id int, up UpdateProject) (Project, error) {
	proj, err := svc.repo.GetProject(ctx, id)
	if err != nil {
		return Project{}, err
	}
	if !actor.IsAdmin && proj.CreatorEmail != actor.Email {
		return Project{}, core.ForbiddenError(errors.New("only the creator may edit the project"))
	}
	if proj.Stage != StageDraft && proj.Stage != StageOngoing {
		return Project{}, core.InvalidStateError(errNotEditable)
	}

	if up.Name != nil {
		proj.Name = *up.Name
	}
	if up.Organizer != nil {
		proj.Organizer = *up.Organizer
	}
	if up.ImageID.Valid {
		proj.ImageID = up.ImageID
	}
	if up.Moderators != nil {
		proj.Moderators = up.Moderators
		if !proj.HasModerator(proj.CreatorEmail) {
			proj.Moderators = append(proj.Moderators, proj.CreatorEmail)
		}
	}
	return svc.repo.UpdateProject(ctx, proj)
}

// Publish moves a draft project to the ongoing stage. The project must have
// an organizer and at least one activity, and every activity must carry 1-3
// competences. All moderators are notified of their role.
func (svc *service) Publish(ctx context.Context, actor core.Actor, id int) error {
	proj, err := svc.repo.GetProject(ctx, id)
	if err != nil {
		return err
	}
	if proj.Stage != StageDraft {
		return core.InvalidStateError(errNotDraft)
	}
	if !actor.IsAdmin && proj.CreatorEmail != actor.Email {
		return core.ForbiddenError(errors.New("only the creator may publish the project"))
	}
	if proj.Organizer == "" {
		return core.InvalidStateError(errNoOrganizer)
	}

	activities, err := svc.repo.QueryProjectActivities(ctx, id, false /* includeInternal */)
	if err != nil {
		return errors.Wrap(err, "querying activities")
	}
	if len(activities) == 0 {
		return core.InvalidStateError(errNoActivities)
	}
	for _, act := range activities {
		if !act.HasValidCompetences() {
			return core.InvalidStateError(errCompetenceCount)
		}
	}

	if err = svc.repo.SetProjectStage(ctx, id, StageOngoing, proj.ReviewStatus, proj.AdminFeedback); err != nil {
		return errors.Wrap(err, "publishing project")
	}
	if _, err = svc.repo.CreateModerationActivity(ctx, id, proj.Moderators); err != nil {
		svc.logger.Error("creating moderation activity", err)
	}

	svc.notifSvc.NotifyAll(ctx, proj.Moderators, notification.TypeAddedAsModerator, &notification.ProjectPayload{ProjectID: id})
	return nil
}

// StartFinalizing moves an ongoing project to the finalizing stage, opening
// the actual-hours and report window.
func (svc *service) StartFinalizing(ctx context.Context, actor core.Actor, id int) error {
	proj, err := svc.repo.GetProject(ctx, id)
	if err != nil {
		return err
	}
	if !proj.CanManage(actor) && proj.CreatorEmail != actor.Email {
		return core.ForbiddenError(errors.New("only moderators may finalize the project"))
	}
	if proj.Stage != StageOngoing {
		return core.InvalidStateError(errNotOngoing)
	}
	return svc.repo.SetProjectStage(ctx, id, StageFinalizing, proj.ReviewStatus, proj.AdminFeedback)
}

func (svc *service) RequestReview(ctx context.Context, actor core.Actor, id int) (Project, error) {
	proj, err := svc.repo.GetProject(ctx, id)
	if err != nil {
		return Project{}, err
	}
	if proj.Stage != StageFinalizing {
		return Project{}, core.InvalidStateError(errNotFinalizing)
	}
	if proj.CreatorEmail != actor.Email {
		return Project{}, core.ForbiddenError(errors.New("only the creator may request a review"))
	}
	switch proj.ReviewStatus {
	case ReviewPending:
		return Project{}, core.InvalidStateError(errAlreadyUnderReview)
	case ReviewApproved:
		return Project{}, core.InvalidStateError(errAlreadyApproved)
	}

	proj.ReviewStatus = ReviewPending
	if err = svc.repo.SetProjectStage(ctx, id, proj.Stage, ReviewPending, proj.AdminFeedback); err != nil {
		return Project{}, errors.Wrap(err, "requesting review")
	}

	admins, err := svc.repo.QueryAdminEmails(ctx)
	if err != nil {
		svc.logger.Error("querying admins", err)
		return proj, nil
	}
	svc.notifSvc.NotifyAll(ctx, admins, notification.TypeProjectReviewRequested, &notification.ProjectPayload{ProjectID: id})
	return proj, nil
}

// Review records the admin's verdict on a finalizing project. Approval also
// finishes the project and invites every applicant to claim their innopoints.
func (svc *service) Review(ctx context.Context, actor core.Actor, id int, decision string, adminFeedback null.String) error {
	if !actor.IsAdmin {
		return core.ForbiddenError(errors.New("only admins may review projects"))
	}
	proj, err := svc.repo.GetProject(ctx, id)
	if err != nil {
		return err
	}
	if proj.Stage != StageFinalizing {
		return core.InvalidStateError(errNotFinalizing)
	}
	if proj.ReviewStatus != ReviewPending {
		return core.InvalidStateError(errNotPendingReview)
	}

	var review ReviewStatus
	switch decision {
	case "approved":
		review = ReviewApproved
	case "rejected":
		review = ReviewRejected
	default:
		return core.NewValidationError(errInvalidReview, core.FieldError{Field: "review_status", Error: errInvalidReview.Error()})
	}

	stage := proj.Stage
	if review == ReviewApproved {
		stage = StageFinished
	}
	feedback := proj.AdminFeedback
	if adminFeedback.Valid {
		feedback = adminFeedback
	}
	if err = svc.repo.SetProjectStage(ctx, id, stage, review, feedback); err != nil {
		return errors.Wrap(err, "reviewing project")
	}

	svc.notifSvc.NotifyAll(ctx, proj.Moderators, notification.TypeProjectReviewStatusChanged, &notification.ProjectPayload{ProjectID: id})

	if review == ReviewApproved {
		apps, err := svc.repo.QueryProjectApplications(ctx, id, true /* excludeInternal */)
		if err != nil {
			svc.logger.Error("querying project applications", err)
			return nil
		}
		for _, app := range apps {
			_, err := svc.notifSvc.Notify(ctx, app.ApplicantEmail, notification.TypeClaimInnopoints, &notification.ApplicationPayload{
				ProjectID:     id,
				ActivityID:    app.ActivityID,
				ApplicationID: app.ApplicationID,
			})
			if err != nil {
				svc.logger.Error("notifying applicant "+app.ApplicantEmail, err)
			}
		}
	}
	return nil
}

func (svc *service) Delete(ctx context.Context, actor core.Actor, id int) error {
	proj, err := svc.repo.GetProject(ctx, id)
	if err != nil {
		return err
	}
	if !actor.IsAdmin && proj.CreatorEmail != actor.Email {
		return core.ForbiddenError(errors.New("only the creator may delete the project"))
	}
	if err = svc.repo.DeleteProject(ctx, id); err != nil {
		return errors.Wrap(err, "deleting project")
	}
	if err = svc.notifSvc.RemoveByProject(ctx, id); err != nil {
		svc.logger.Error("removing project notifications", err)
	}
	return nil
}

// Activities

func (svc *service) GetActivity(ctx context.Context, projectID, activityID int) (Activity, error) {
	act, err := svc.repo.GetActivity(ctx, activityID)
	if err != nil {
		return Activity{}, err
	}
	// internal activities are invisible when addressed directly
	if act.Internal {
		return Activity{}, core.NotFoundError(ErrActivityNotFound)
	}
	if act.ProjectID != projectID {
		return Activity{}, core.NewValidationError(errUnrelatedActivity)
	}
	return act, nil
}

func (svc *service) QueryActivities(ctx context.Context, projectID int) ([]Activity, error) {
	return svc.repo.QueryProjectActivities(ctx, projectID, false /* includeInternal */)
}

func (svc *service) CreateActivity(ctx context.Context, actor core.Actor, projectID int, na NewActivity) (Activity, error) {
	proj, err := svc.repo.GetProject(ctx, projectID)
	if err != nil {
		return Activity{}, err
	}
	if !proj.CanManage(actor) {
		return Activity{}, core.ForbiddenError(errors.New("only moderators may create activities"))
	}
	if proj.Stage != StageDraft && proj.Stage != StageOngoing {
		return Activity{}, core.InvalidStateError(errActivityNotEditable)
	}

	act := na.Activity(projectID)
	if !act.Draft && !act.IsComplete() {
		return Activity{}, core.InvalidStateError(errIncompleteActivity)
	}
	return svc.repo.CreateActivity(ctx, act)
}

func (svc *service) UpdateActivity(ctx context.Context, actor core.Actor, projectID, activityID int, ua UpdateActivity) (Activity, error) {
	proj, err := svc.repo.GetProject(ctx, projectID)
	if err != nil {
		return Activity{}, err
	}
	if !proj.CanManage(actor) {
		return Activity{}, core.ForbiddenError(errors.New("only moderators may edit activities"))
	}
	if proj.Stage != StageDraft && proj.Stage != StageOngoing {
		return Activity{}, core.InvalidStateError(errActivityNotEditable)
	}

	orig, err := svc.GetActivity(ctx, projectID, activityID)
	if err != nil {
		return Activity{}, err
	}
	act := ua.Apply(orig)

	if !act.Draft && !act.IsComplete() {
		return Activity{}, core.InvalidStateError(errIncompleteActivity)
	}
	if act.FixedReward && act.WorkingHours.Valid && act.WorkingHours.Int != 1 {
		return Activity{}, core.InvalidStateError(errFixedHours)
	}
	if !act.FixedReward && act.RewardRate != orig.RewardRate {
		return Activity{}, core.InvalidStateError(errRewardRateImmutable)
	}

	approved, err := svc.repo.CountApplications(ctx, activityID, true /* approvedOnly */)
	if err != nil {
		return Activity{}, errors.Wrap(err, "counting approved applications")
	}
	if act.PeopleRequired < approved {
		return Activity{}, core.InvalidStateError(errPeopleBelowApproved)
	}

	total, err := svc.repo.CountApplications(ctx, activityID, false)
	if err != nil {
		return Activity{}, errors.Wrap(err, "counting applications")
	}
	if act.Draft && !orig.Draft && total > 0 {
		return Activity{}, core.InvalidStateError(errDraftWithApplicants)
	}
	if act.ApplicationDeadline.Valid && total > 0 {
		earliest, ok, err := svc.repo.EarliestApplicationTime(ctx, activityID)
		if err != nil {
			return Activity{}, errors.Wrap(err, "querying earliest application")
		}
		if ok && act.ApplicationDeadline.Time.Before(earliest) {
			return Activity{}, core.InvalidStateError(errDeadlineTooEarly)
		}
	}

	cascadeHours := ua.WorkingHours.Valid && orig.WorkingHours != act.WorkingHours
	return svc.repo.UpdateActivity(ctx, act, cascadeHours)
}

// PublishActivity clears the draft flag once the activity is complete.
func (svc *service) PublishActivity(ctx context.Context, actor core.Actor, projectID, activityID int) error {
	proj, err := svc.repo.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	if !proj.CanManage(actor) {
		return core.ForbiddenError(errors.New("only moderators may publish activities"))
	}

	act, err := svc.GetActivity(ctx, projectID, activityID)
	if err != nil {
		return err
	}
	if !act.IsComplete() {
		return core.InvalidStateError(errInvalidActivity)
	}
	act.Draft = false
	_, err = svc.repo.UpdateActivity(ctx, act, false)
	return err
}

func (svc *service) DeleteActivity(ctx context.Context, actor core.Actor, projectID, activityID int) error {
	proj, err := svc.repo.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	if !proj.CanManage(actor) {
		return core.ForbiddenError(errors.New("only moderators may delete activities"))
	}
	if proj.Stage != StageDraft && proj.Stage != StageOngoing {
		return core.InvalidStateError(errActivityNotEditable)
	}
	if _, err = svc.GetActivity(ctx, projectID, activityID); err != nil {
		return err
	}
	if err = svc.repo.DeleteActivity(ctx, activityID); err != nil {
		return errors.Wrap(err, "deleting activity")
	}
	if err = svc.notifSvc.RemoveByActivity(ctx, activityID); err != nil {
		svc.logger.Error("removing activity notifications", err)
	}
	return nil
}

// Competences

func (svc *service) QueryCompetences(ctx context.Context) ([]Competence, error) {
	return svc.repo.QueryCompetences(ctx)
}

func (svc *service) CreateCompetence(ctx context.Context, actor core.Actor, nc NewCompetence) (Competence, error) {
	if !actor.IsAdmin {
		return Competence{}, core.ForbiddenError(errors.New("only admins may create competences"))
	}
	return svc.repo.CreateCompetence(ctx, Competence{Name: nc.Name})
}

func (svc *service) UpdateCompetence(ctx context.Context, actor core.Actor, id int, nc NewCompetence) (Competence, error) {
	if !actor.IsAdmin {
		return Competence{}, core.ForbiddenError(errors.New("only admins may edit competences"))
	}
	return svc.repo.UpdateCompetence(ctx, Competence{ID: id, Name: nc.Name})
}

func (svc *service) DeleteCompetence(ctx context.Context, actor core.Actor, id int) error {
	if !actor.IsAdmin {
		return core.ForbiddenError(errors.New("only admins may delete competences"))
	}
	return svc.repo.DeleteCompetence(ctx, id)
}

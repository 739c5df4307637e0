package project

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/moflotas/ipts-backend/core"
)

// IptsPerHour is the default hourly reward rate.
const IptsPerHour = 70

// DefaultFeedbackQuestions seed every new activity's feedback form.
var DefaultFeedbackQuestions = []string{
	"What did you learn from this volunteering opportunity?",
	"What could be improved in the organization?",
}

// ModerationActivityName marks the internal bookkeeping activity created for
// project moderators. Internal activities are hidden from normal listings.
const ModerationActivityName = "[[Moderation]]"

// Stage is a project's coarse-grained lifecycle phase. It only ever moves
// forward: draft -> ongoing -> finalizing -> finished.
type Stage string

const (
	StageDraft      Stage = "draft"
	StageOngoing    Stage = "ongoing"
	StageFinalizing Stage = "finalizing"
	StageFinished   Stage = "finished"
)

var stageOrder = map[Stage]int{
	StageDraft:      0,
	StageOngoing:    1,
	StageFinalizing: 2,
	StageFinished:   3,
}

// Before reports whether s precedes other in the lifecycle.
func (s Stage) Before(other Stage) bool { return stageOrder[s] < stageOrder[other] }

// ReviewStatus is the admin's verdict on a finalizing project, independent of
// the lifetime stage.
type ReviewStatus string

const (
	ReviewNone     ReviewStatus = "none"
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

type Project struct {
	ID            int          `json:"id"`
	Name          string       `json:"name"`
	Organizer     string       `json:"organizer"`
	CreatorEmail  string       `json:"creator_email"`
	Moderators    []string     `json:"moderators,omitempty"`
	Stage         Stage        `json:"lifetime_stage"`
	ReviewStatus  ReviewStatus `json:"review_status,omitempty"`
	AdminFeedback null.String  `json:"admin_feedback,omitempty"`
	ImageID       null.Int     `json:"image_id,omitempty"`
	CreationTime  time.Time    `json:"creation_time"` // UTC
}

// HasModerator reports whether the given email moderates this project.
func (p Project) HasModerator(email string) bool {
	for _, m := range p.Moderators {
		if m == email {
			return true
		}
	}
	return false
}

// CanManage reports whether the actor may manage this project's activities
// and applications.
func (p Project) CanManage(actor core.Actor) bool {
	return actor.IsAdmin || p.HasModerator(actor.Email)
}

type Activity struct {
	ID                  int         `json:"id"`
	ProjectID           int         `json:"project_id"`
	Name                null.String `json:"name"`
	Description         null.String `json:"description"`
	StartDate           null.Time   `json:"start_date"`
	EndDate             null.Time   `json:"end_date"`
	WorkingHours        null.Int    `json:"working_hours"`
	RewardRate          int         `json:"reward_rate"`
	FixedReward         bool        `json:"fixed_reward"`
	PeopleRequired      int         `json:"people_required"`
	TelegramRequired    bool        `json:"telegram_required"`
	ApplicationDeadline null.Time   `json:"application_deadline"`
	FeedbackQuestions   []string    `json:"feedback_questions"`
	Competences         []int       `json:"competences"`
	Draft               bool        `json:"draft"`
	Internal            bool        `json:"internal"`
}

// IsComplete reports whether the activity carries everything a published
// (non-draft) activity must have.
func (a Activity) IsComplete() bool {
	return a.Name.Valid && a.StartDate.Valid && a.EndDate.Valid &&
		!a.StartDate.Time.After(a.EndDate.Time)
}

// HasValidCompetences enforces the 1-3 competence rule for published projects.
func (a Activity) HasValidCompetences() bool {
	return len(a.Competences) >= 1 && len(a.Competences) <= 3
}

type Competence struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// NewProject contains information needed to create a new draft Project.
type NewProject struct {
	Name       string        `json:"name" validate:"required,max=128"`
	Organizer  string        `json:"organizer" validate:"max=128"`
	ImageID    null.Int      `json:"image_id"`
	Moderators []string      `json:"moderators" validate:"dive,email"`
	Activities []NewActivity `json:"activities" validate:"dive"`
}

func (np *NewProject) Validate(validate *validator.Validate) error {
	np.Name = core.CleanString(np.Name)
	np.Organizer = core.CleanString(np.Organizer)
	for i, m := range np.Moderators {
		np.Moderators[i] = core.CleanString(m, true /* lower */)
	}
	return validate.Struct(np)
}

// UpdateProject defines what may be modified on an existing Project.
// Nil fields are left untouched.
type UpdateProject struct {
	Name       *string     `json:"name" validate:"omitempty,max=128"`
	Organizer  *string     `json:"organizer" validate:"omitempty,max=128"`
	ImageID    null.Int    `json:"image_id"`
	Moderators []string    `json:"moderators" validate:"omitempty,dive,email"`
}

func (up *UpdateProject) Validate(validate *validator.Validate) error {
	if up.Name != nil {
		*up.Name = core.CleanString(*up.Name)
	}
	if up.Organizer != nil {
		*up.Organizer = core.CleanString(*up.Organizer)
	}
	for i, m := range up.Moderators {
		up.Moderators[i] = core.CleanString(m, true /* lower */)
	}
	return validate.Struct(up)
}

// NewActivity contains information needed to create an Activity on a project.
type NewActivity struct {
	Name                null.String `json:"name" validate:"omitempty,max=128"`
	Description         null.String `json:"description" validate:"omitempty,max=1024"`
	StartDate           null.Time   `json:"start_date"`
	EndDate             null.Time   `json:"end_date"`
	WorkingHours        null.Int    `json:"working_hours" validate:"omitempty,min=0"`
	FixedReward         bool        `json:"fixed_reward"`
	RewardRate          null.Int    `json:"reward_rate" validate:"omitempty,min=0"`
	PeopleRequired      int         `json:"people_required" validate:"min=0"`
	TelegramRequired    bool        `json:"telegram_required"`
	ApplicationDeadline null.Time   `json:"application_deadline"`
	FeedbackQuestions   []string    `json:"feedback_questions" validate:"dive,max=1024"`
	Competences         []int       `json:"competences" validate:"max=3"`
	Draft               *bool       `json:"draft"`
}

func (na *NewActivity) Validate(validate *validator.Validate) error {
	if na.Name.Valid {
		na.Name.String = core.CleanString(na.Name.String)
	}
	return validate.Struct(na)
}

// Activity turns the input into a domain Activity with defaults applied.
func (na NewActivity) Activity(projectID int) Activity {
	act := Activity{
		ProjectID:           projectID,
		Name:                na.Name,
		Description:         na.Description,
		StartDate:           na.StartDate,
		EndDate:             na.EndDate,
		WorkingHours:        na.WorkingHours,
		RewardRate:          IptsPerHour,
		FixedReward:         na.FixedReward,
		PeopleRequired:      na.PeopleRequired,
		TelegramRequired:    na.TelegramRequired,
		ApplicationDeadline: na.ApplicationDeadline,
		FeedbackQuestions:   na.FeedbackQuestions,
		Competences:         na.Competences,
		Draft:               true,
	}
	if na.RewardRate.Valid {
		act.RewardRate = na.RewardRate.Int
	}
	if na.Draft != nil {
		act.Draft = *na.Draft
	}
	if act.FeedbackQuestions == nil {
		act.FeedbackQuestions = append([]string(nil), DefaultFeedbackQuestions...)
	}
	return act
}

// UpdateActivity defines what may be modified on an existing Activity.
// Nil fields are left untouched.
type UpdateActivity struct {
	Name                null.String `json:"name" validate:"omitempty,max=128"`
	Description         null.String `json:"description" validate:"omitempty,max=1024"`
	StartDate           null.Time   `json:"start_date"`
	EndDate             null.Time   `json:"end_date"`
	WorkingHours        null.Int    `json:"working_hours" validate:"omitempty,min=0"`
	RewardRate          null.Int    `json:"reward_rate" validate:"omitempty,min=0"`
	PeopleRequired      *int        `json:"people_required" validate:"omitempty,min=0"`
	TelegramRequired    *bool       `json:"telegram_required"`
	ApplicationDeadline null.Time   `json:"application_deadline"`
	FeedbackQuestions   []string    `json:"feedback_questions" validate:"omitempty,dive,max=1024"`
	Competences         []int       `json:"competences" validate:"omitempty,max=3"`
	Draft               *bool       `json:"draft"`
}

func (ua *UpdateActivity) Validate(validate *validator.Validate) error {
	if ua.Name.Valid {
		ua.Name.String = core.CleanString(ua.Name.String)
	}
	return validate.Struct(ua)
}

// Apply merges the update onto orig, leaving untouched fields as they were.
func (ua UpdateActivity) Apply(orig Activity) Activity {
	act := orig
	if ua.Name.Valid {
		act.Name = ua.Name
	}
	if ua.Description.Valid {
		act.Description = ua.Description
	}
	if ua.StartDate.Valid {
		act.StartDate = ua.StartDate
	}
	if ua.EndDate.Valid {
		act.EndDate = ua.EndDate
	}
	if ua.WorkingHours.Valid {
		act.WorkingHours = ua.WorkingHours
	}
	if ua.RewardRate.Valid {
		act.RewardRate = ua.RewardRate.Int
	}
	if ua.PeopleRequired != nil {
		act.PeopleRequired = *ua.PeopleRequired
	}
	if ua.TelegramRequired != nil {
		act.TelegramRequired = *ua.TelegramRequired
	}
	if ua.ApplicationDeadline.Valid {
		act.ApplicationDeadline = ua.ApplicationDeadline
	}
	if ua.FeedbackQuestions != nil {
		act.FeedbackQuestions = ua.FeedbackQuestions
	}
	if ua.Competences != nil {
		act.Competences = ua.Competences
	}
	if ua.Draft != nil {
		act.Draft = *ua.Draft
	}
	return act
}

// NewCompetence contains information needed to create a new Competence.
type NewCompetence struct {
	Name string `json:"name" validate:"required,max=128"`
}

func (nc *NewCompetence) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	return validate.Struct(nc)
}

// QueryFilter narrows down project listings.
type QueryFilter struct {
	Search  string `query:"q"`
	Type    string `query:"type"`     // "ongoing" | "past"
	OrderBy string `query:"order_by"` // "creation" | "proximity" (ongoing only)
	Order   string `query:"order"`    // "asc" | "desc"
	Page    int    `query:"page"`     // past only; 1-based

	// Ordering is derived from OrderBy/Order in Clean; the repositories
	// render it rather than the raw query params.
	Ordering core.DBOrdering `query:"-"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	if qf.OrderBy == "" {
		qf.OrderBy = "creation"
	}
	if qf.Order == "" {
		qf.Order = "asc"
	}
	if qf.Page < 1 {
		qf.Page = 1
	}
	qf.Ordering = core.DBOrdering{Field: "p.creation_time", Ascending: qf.Order != "desc"}
}

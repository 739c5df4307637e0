package application

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/moflotas/ipts-backend/core"
)

// Status of a volunteering application. pending is the initial state;
// approved and rejected are terminal for status purposes, though approved
// applications still accept actual-hours edits during finalizing.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

type Application struct {
	ID               int         `json:"id"`
	ActivityID       int         `json:"activity_id"`
	ApplicantEmail   string      `json:"applicant_email"`
	Comment          null.String `json:"comment,omitempty"`
	TelegramUsername null.String `json:"telegram_username,omitempty"`
	ApplicationTime  time.Time   `json:"application_time"` // UTC
	Status           Status      `json:"status"`
	ActualHours      null.Int    `json:"actual_hours"`
}

// VolunteeringReport is one moderator's take on one application.
// At most one exists per (application, reporter) pair.
type VolunteeringReport struct {
	ApplicationID int         `json:"application_id"`
	ReporterEmail string      `json:"reporter_email"`
	Rating        int         `json:"rating"`
	Content       null.String `json:"content,omitempty"`
	Time          time.Time   `json:"time"` // UTC
}

// Feedback is the volunteer's answers to the activity's feedback questions.
// Submitting it is what credits the ledger; at most one exists per application.
type Feedback struct {
	ApplicationID int       `json:"application_id"`
	Answers       []string  `json:"answers"`
	Competences   []int     `json:"competences"`
	Time          time.Time `json:"time"` // UTC
}

// ReportInfo aggregates all moderator reports on one applicant within a
// project together with the rounded average rating.
type ReportInfo struct {
	AverageRating int                  `json:"average_rating"`
	Reports       []VolunteeringReport `json:"reports"`
}

// NewApplication contains information supplied by the applicant.
type NewApplication struct {
	Comment  null.String `json:"comment" validate:"omitempty,max=1024"`
	Telegram null.String `json:"telegram" validate:"omitempty,max=32"`
}

func (na *NewApplication) Validate(validate *validator.Validate) error {
	if na.Comment.Valid {
		na.Comment.String = core.CleanString(na.Comment.String)
	}
	if na.Telegram.Valid {
		na.Telegram.String = core.CleanString(na.Telegram.String)
	}
	return validate.Struct(na)
}

// NewReport contains a moderator's rating and commentary.
type NewReport struct {
	Rating  int         `json:"rating" validate:"required,min=1,max=5"`
	Content null.String `json:"content" validate:"omitempty,max=1024"`
}

func (nr *NewReport) Validate(validate *validator.Validate) error {
	if nr.Content.Valid {
		nr.Content.String = core.CleanString(nr.Content.String)
	}
	return validate.Struct(nr)
}

// NewFeedback contains the volunteer's answers.
type NewFeedback struct {
	Answers     []string `json:"answers" validate:"required,dive,max=1024"`
	Competences []int    `json:"competences" validate:"max=3"`
}

func (nf *NewFeedback) Validate(validate *validator.Validate) error {
	for i, a := range nf.Answers {
		nf.Answers[i] = core.CleanString(a)
	}
	return validate.Struct(nf)
}

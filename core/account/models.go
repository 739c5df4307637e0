package account

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/moflotas/ipts-backend/core"
	"github.com/moflotas/ipts-backend/core/application"
	"github.com/moflotas/ipts-backend/core/notification"
	"github.com/moflotas/ipts-backend/core/project"
	"github.com/moflotas/ipts-backend/core/store"
)

// Account is a platform user, keyed by email.
type Account struct {
	Email            string      `json:"email"`
	FullName         string      `json:"full_name"`
	Group            null.String `json:"group,omitempty"`
	TelegramUsername null.String `json:"telegram_username,omitempty"`
	IsAdmin          bool        `json:"is_admin"`

	// NotificationSettings maps each notification group to the channel the
	// account wants it delivered on. Missing groups fall back to email.
	NotificationSettings map[notification.Group]notification.Channel `json:"notification_settings,omitempty"`
}

// NewAccount contains information needed to register an account.
type NewAccount struct {
	Email    string      `json:"email" validate:"required,email"`
	FullName string      `json:"full_name" validate:"required,max=256"`
	Group    null.String `json:"group" validate:"omitempty,max=64"`
	IsAdmin  bool        `json:"is_admin"`
}

func (na *NewAccount) Validate(validate *validator.Validate) error {
	na.Email = core.CleanString(na.Email, true /* lower */)
	na.FullName = core.CleanString(na.FullName)
	return validate.Struct(na)
}

// UpdateTelegram sets or clears an account's Telegram handle.
type UpdateTelegram struct {
	TelegramUsername null.String `json:"telegram_username" validate:"omitempty,max=32"`
}

func (ut *UpdateTelegram) Validate(validate *validator.Validate) error {
	return validate.Struct(ut)
}

// ServiceMessage is a free-text notification sent by an admin to one account.
type ServiceMessage struct {
	Message string `json:"message" validate:"required,max=1024"`
}

func (sm *ServiceMessage) Validate(validate *validator.Validate) error {
	sm.Message = core.CleanString(sm.Message)
	return validate.Struct(sm)
}

// QueryFilter narrows down account listings.
type QueryFilter struct {
	Search string `query:"q"`
	Page   int    `query:"page"`
	Limit  int    `query:"limit"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	if qf.Page < 1 {
		qf.Page = 1
	}
	if qf.Limit < 1 {
		qf.Limit = 25
	}
}

// AccountPage is one page of an account listing.
type AccountPage struct {
	Pages int       `json:"pages"`
	Data  []Account `json:"data"`
}

// EventType tags a timeline entry with the source it came from.
type EventType string

const (
	EventApplication EventType = "application"
	EventPurchase    EventType = "purchase"
	EventPromotion   EventType = "promotion"
	EventProject     EventType = "project"
)

type (
	// EventPayload is the closed set of timeline entry payloads. Each source
	// contributes exactly one shape.
	EventPayload interface{ eventPayload() }

	// ApplicationEvent records an application the account filed.
	ApplicationEvent struct {
		ApplicationID     int                `json:"application_id"`
		ApplicationStatus application.Status `json:"application_status"`
		ActivityID        int                `json:"activity_id"`
		ActivityName      string             `json:"activity_name"`
		ProjectID         int                `json:"project_id"`
		ProjectName       string             `json:"project_name"`
		ProjectStage      project.Stage      `json:"project_stage"`
		FeedbackID        null.Int           `json:"feedback_id"`
		Reward            int                `json:"reward"`
	}

	// PurchaseEvent records a store purchase the account made.
	PurchaseEvent struct {
		StockChangeID     int                     `json:"stock_change_id"`
		StockChangeStatus store.StockChangeStatus `json:"stock_change_status"`
		ProductID         int                     `json:"product_id"`
		ProductName       string                  `json:"product_name"`
		ProductType       null.String             `json:"product_type"`
	}

	// PromotionEvent records the account being made a moderator of someone
	// else's published project, linked to the account's own application to the
	// project's moderation activity when one exists.
	PromotionEvent struct {
		ProjectID     int      `json:"project_id"`
		ProjectName   string   `json:"project_name"`
		ApplicationID null.Int `json:"application_id"`
	}

	// ProjectEvent records a published project the account created.
	ProjectEvent struct {
		ProjectID    int                  `json:"project_id"`
		ProjectName  string               `json:"project_name"`
		ReviewStatus project.ReviewStatus `json:"review_status"`
	}
)

func (ApplicationEvent) eventPayload() {}
func (PurchaseEvent) eventPayload()    {}
func (PromotionEvent) eventPayload()   {}
func (ProjectEvent) eventPayload()     {}

// TimelineEntry is one event in an account's feed.
type TimelineEntry struct {
	EntryTime time.Time    `json:"entry_time"`
	Type      EventType    `json:"type"`
	Payload   EventPayload `json:"payload"`
}

// Timeline is one page of an account's feed. More signals that at least one
// source has an event at or before the window's start.
type Timeline struct {
	Data []TimelineEntry `json:"data"`
	More bool            `json:"more"`
}

// CompetenceStat counts feedback entries tagged with one competence.
type CompetenceStat struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Amount int    `json:"amount"`
}

// Statistics is the derived volunteering summary of one account over a date
// window.
type Statistics struct {
	Hours       int              `json:"hours"`
	Positions   int              `json:"positions"`
	Rating      float64          `json:"rating"`
	Competences []CompetenceStat `json:"competences"`
}

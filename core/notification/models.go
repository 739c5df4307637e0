package notification

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// Type tags every notification with the event that produced it.
type Type string

const (
	TypePurchaseStatusChanged      Type = "purchase_status_changed"
	TypeNewArrivals                Type = "new_arrivals"
	TypeClaimInnopoints            Type = "claim_innopoints"
	TypeApplicationStatusChanged   Type = "application_status_changed"
	TypeService                    Type = "service"
	TypeAllFeedbackIn              Type = "all_feedback_in"
	TypeOutOfStock                 Type = "out_of_stock"
	TypeNewPurchase                Type = "new_purchase"
	TypeProjectReviewRequested     Type = "project_review_requested"
	TypeProjectReviewStatusChanged Type = "project_review_status_changed"
	TypeAddedAsModerator           Type = "added_as_moderator"
)

// Group buckets notification types for per-account channel preferences.
type Group string

const (
	GroupInnoStore       Group = "innostore"
	GroupVolunteering    Group = "volunteering"
	GroupProjectCreation Group = "project_creation"
	GroupAdministration  Group = "administration"
	GroupService         Group = "service"
)

var typeGroups = map[Type]Group{
	TypePurchaseStatusChanged:      GroupInnoStore,
	TypeNewArrivals:                GroupInnoStore,
	TypeClaimInnopoints:            GroupVolunteering,
	TypeApplicationStatusChanged:   GroupVolunteering,
	TypeService:                    GroupService,
	TypeAllFeedbackIn:              GroupProjectCreation,
	TypeOutOfStock:                 GroupAdministration,
	TypeNewPurchase:                GroupAdministration,
	TypeProjectReviewRequested:     GroupAdministration,
	TypeProjectReviewStatusChanged: GroupProjectCreation,
	TypeAddedAsModerator:           GroupVolunteering,
}

// GroupOf returns the preference group a notification type belongs to.
func GroupOf(t Type) Group { return typeGroups[t] }

// Channel is a delivery channel chosen per (account, group).
type Channel string

const (
	ChannelOff   Channel = "off"
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelOff, ChannelEmail, ChannelPush:
		return true
	}
	return false
}

// Groups lists every preference bucket an account can configure.
var Groups = []Group{
	GroupInnoStore, GroupVolunteering, GroupProjectCreation, GroupAdministration, GroupService,
}

// Payload is a closed set of typed notification payloads. Each notification
// references at most one related object; the variant type enforces that
// instead of a handful of nullable foreign keys.
type Payload interface {
	payload()
}

type (
	ProjectPayload struct {
		ProjectID int `json:"project_id"`
	}

	ActivityPayload struct {
		ProjectID  int `json:"project_id"`
		ActivityID int `json:"activity_id"`
	}

	ApplicationPayload struct {
		ProjectID     int `json:"project_id"`
		ActivityID    int `json:"activity_id"`
		ApplicationID int `json:"application_id"`
	}

	ProductPayload struct {
		ProductID int `json:"product_id"`
	}

	StockChangePayload struct {
		StockChangeID int `json:"stock_change_id"`
	}

	ServicePayload struct {
		Message string `json:"message"`
	}
)

func (ProjectPayload) payload()     {}
func (ActivityPayload) payload()    {}
func (ApplicationPayload) payload() {}
func (ProductPayload) payload()     {}
func (StockChangePayload) payload() {}
func (ServicePayload) payload()     {}

// payloadTypes maps each notification type to its payload shape.
var payloadTypes = map[Type]func() Payload{
	TypePurchaseStatusChanged:      func() Payload { return &StockChangePayload{} },
	TypeNewArrivals:                func() Payload { return &ProductPayload{} },
	TypeClaimInnopoints:            func() Payload { return &ApplicationPayload{} },
	TypeApplicationStatusChanged:   func() Payload { return &ApplicationPayload{} },
	TypeService:                    func() Payload { return &ServicePayload{} },
	TypeAllFeedbackIn:              func() Payload { return &ProjectPayload{} },
	TypeOutOfStock:                 func() Payload { return &ProductPayload{} },
	TypeNewPurchase:                func() Payload { return &StockChangePayload{} },
	TypeProjectReviewRequested:     func() Payload { return &ProjectPayload{} },
	TypeProjectReviewStatusChanged: func() Payload { return &ProjectPayload{} },
	TypeAddedAsModerator:           func() Payload { return &ProjectPayload{} },
}

// EncodePayload serializes a payload for storage.
func EncodePayload(p Payload) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	return json.Marshal(p)
}

// DecodePayload deserializes a stored payload into the variant dictated by
// the notification type.
func DecodePayload(t Type, raw []byte) (Payload, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	newPayload, ok := payloadTypes[t]
	if !ok {
		return nil, errors.Errorf("unknown notification type %q", t)
	}
	p := newPayload()
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, errors.Wrapf(err, "decoding %q payload", t)
	}
	return p, nil
}

type Notification struct {
	ID             int       `json:"id"`
	RecipientEmail string    `json:"recipient_email"`
	Type           Type      `json:"type"`
	Payload        Payload   `json:"payload,omitempty"`
	IsRead         bool      `json:"is_read"`
	Timestamp      time.Time `json:"timestamp"` // UTC
}

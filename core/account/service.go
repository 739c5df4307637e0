package account

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/moflotas/ipts-backend/core"
	"github.com/moflotas/ipts-backend/core/notification"
)

var (
	// errors
	ErrNotFound      = errors.New("account not found")
	ErrAccountExists = errors.New("an account with this email already exists")

	errNotSelf        = errors.New("accounts can only be inspected by their owner or an admin")
	errInvalidChannel = errors.New("a valid notification channel must be specified")
	errUnknownGroup   = errors.New("unknown notification group")
)

type (
	Repository interface {
		CreateAccount(ctx context.Context, acc Account) (Account, error)
		GetAccount(ctx context.Context, email string) (Account, error)
		QueryAccounts(ctx context.Context, filter QueryFilter) ([]Account, error)
		CountAccounts(ctx context.Context, search string) (int, error)
		QueryGroups(ctx context.Context) ([]string, error)
		SetTelegram(ctx context.Context, email string, username null.String) error
		GetNotificationSettings(ctx context.Context, email string) (map[notification.Group]notification.Channel, error)
		SetNotificationSettings(ctx context.Context, email string, settings map[notification.Group]notification.Channel) error

		// Timeline sources. Each returns its window-matched entries newest
		// first, plus whether any entry exists at or before the window start.
		QueryApplicationEvents(ctx context.Context, email string, window core.TimeWindow) ([]TimelineEntry, bool, error)
		QueryPurchaseEvents(ctx context.Context, email string, window core.TimeWindow) ([]TimelineEntry, bool, error)
		QueryPromotionEvents(ctx context.Context, email string, window core.TimeWindow) ([]TimelineEntry, bool, error)
		QueryProjectEvents(ctx context.Context, email string, window core.TimeWindow) ([]TimelineEntry, bool, error)

		// GetVolunteeringStats sums actual hours and counts approved
		// applications on non-fixed, non-internal activities of finished
		// projects.
		GetVolunteeringStats(ctx context.Context, email string, window core.TimeWindow) (hours, positions int, err error)
		GetAverageRating(ctx context.Context, email string, window core.TimeWindow) (float64, error)
		QueryCompetenceStats(ctx context.Context, email string, window core.TimeWindow) ([]CompetenceStat, error)
	}

	Service interface {
		Create(ctx context.Context, actor core.Actor, na NewAccount) (Account, error)
		Get(ctx context.Context, actor core.Actor, email string) (Account, error)
		Query(ctx context.Context, filter QueryFilter) (AccountPage, error)
		Groups(ctx context.Context, actor core.Actor) ([]string, error)
		SetTelegram(ctx context.Context, actor core.Actor, email string, ut UpdateTelegram) error
		NotificationSettings(ctx context.Context, actor core.Actor, email string) (map[notification.Group]notification.Channel, error)
		SetNotificationSettings(ctx context.Context, actor core.Actor, email string, settings map[notification.Group]notification.Channel) error
		NotifyService(ctx context.Context, actor core.Actor, email string, sm ServiceMessage) error

		Timeline(ctx context.Context, actor core.Actor, email string, window core.TimeWindow) (Timeline, error)
		Statistics(ctx context.Context, actor core.Actor, email string, window core.TimeWindow) (Statistics, error)
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

// guard rejects actors inspecting accounts that are not their own.
func guard(actor core.Actor, email string) error {
	if !actor.IsAdmin && actor.Email != email {
		return core.ForbiddenError(errNotSelf)
	}
	return nil
}

func (svc *service) Create(ctx context.Context, actor core.Actor, na NewAccount) (Account, error) {
	if !actor.IsAdmin {
		return Account{}, core.ForbiddenError(errors.New("only admins may register accounts"))
	}
	acc := Account{
		Email:    na.Email,
		FullName: na.FullName,
		Group:    na.Group,
		IsAdmin:  na.IsAdmin,
	}
	return svc.repo.CreateAccount(ctx, acc)
}

func (svc *service) Get(ctx context.Context, actor core.Actor, email string) (Account, error) {
	if err := guard(actor, email); err != nil {
		return Account{}, err
	}
	return svc.repo.GetAccount(ctx, email)
}

func (svc *service) Query(ctx context.Context, filter QueryFilter) (AccountPage, error) {
	filter.Clean()
	accs, err := svc.repo.QueryAccounts(ctx, filter)
	if err != nil {
		return AccountPage{}, errors.Wrap(err, "querying accounts")
	}
	total, err := svc.repo.CountAccounts(ctx, filter.Search)
	if err != nil {
		return AccountPage{}, errors.Wrap(err, "counting accounts")
	}
	return AccountPage{
		Pages: int(math.Ceil(float64(total) / float64(filter.Limit))),
		Data:  accs,
	}, nil
}

func (svc *service) Groups(ctx context.Context, actor core.Actor) ([]string, error) {
	if !actor.IsAdmin {
		return nil, core.ForbiddenError(errors.New("only admins may list groups"))
	}
	return svc.repo.QueryGroups(ctx)
}

func (svc *service) SetTelegram(ctx context.Context, actor core.Actor, email string, ut UpdateTelegram) error {
	if err := guard(actor, email); err != nil {
		return err
	}
	if _, err := svc.repo.GetAccount(ctx, email); err != nil {
		return err
	}
	return svc.repo.SetTelegram(ctx, email, ut.TelegramUsername)
}

func (svc *service) NotificationSettings(ctx context.Context, actor core.Actor, email string) (map[notification.Group]notification.Channel, error) {
	if err := guard(actor, email); err != nil {
		return nil, err
	}
	if _, err := svc.repo.GetAccount(ctx, email); err != nil {
		return nil, err
	}
	settings, err := svc.repo.GetNotificationSettings(ctx, email)
	if err != nil {
		return nil, errors.Wrap(err, "querying notification settings")
	}
	// unset groups default to email
	for _, group := range notification.Groups {
		if _, ok := settings[group]; !ok {
			settings[group] = notification.ChannelEmail
		}
	}
	return settings, nil
}

func (svc *service) SetNotificationSettings(ctx context.Context, actor core.Actor, email string, settings map[notification.Group]notification.Channel) error {
	if err := guard(actor, email); err != nil {
		return err
	}
	known := make(map[notification.Group]bool, len(notification.Groups))
	for _, group := range notification.Groups {
		known[group] = true
	}
	for group, channel := range settings {
		if !known[group] {
			return core.NewValidationError(errUnknownGroup, core.FieldError{Field: string(group), Error: errUnknownGroup.Error()})
		}
		if !channel.Valid() {
			return core.NewValidationError(errInvalidChannel, core.FieldError{Field: string(group), Error: errInvalidChannel.Error()})
		}
	}
	if _, err := svc.repo.GetAccount(ctx, email); err != nil {
		return err
	}
	return svc.repo.SetNotificationSettings(ctx, email, settings)
}

func (svc *service) NotifyService(ctx context.Context, actor core.Actor, email string, sm ServiceMessage) error {
	if !actor.IsAdmin {
		return core.ForbiddenError(errors.New("only admins may send service notifications"))
	}
	if _, err := svc.repo.GetAccount(ctx, email); err != nil {
		return err
	}
	_, err := svc.notifSvc.Notify(ctx, email, notification.TypeService, &notification.ServicePayload{Message: sm.Message})
	return err
}

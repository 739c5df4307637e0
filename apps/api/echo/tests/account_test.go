package tests

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/volatiletech/null/v8"

	"github.com/moflotas/ipts-backend/core/account"
	"github.com/moflotas/ipts-backend/core/ledger"
	"github.com/moflotas/ipts-backend/core/notification"
	"github.com/moflotas/ipts-backend/tests"
)

func Test_accountApi_create(t *testing.T) {
	setup(t)

	admin := testutil.CreateAccount(t, accRepo, "admin@innopolis.university", "Ad Min", true)
	student := testutil.CreateAccount(t, accRepo, "j.doe@innopolis.university", "John Doe", false)
	adminToken := getToken(t, admin)

	newAcc := account.NewAccount{
		Email:    "n.new@innopolis.university",
		FullName: "Nancy New",
		Group:    null.StringFrom("B21-01"),
	}
	wantAcc := account.Account{
		Email:    newAcc.Email,
		FullName: newAcc.FullName,
		Group:    newAcc.Group,
	}

	tests := []httpTest{
		{name: "auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "admin required", token: getToken(t, student),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "required fields", token: adminToken, body: marchallObj(t, account.NewAccount{}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"email": "this field is required", "full_name": "this field is required"}),
		},
		{
			name:  "group too long",
			token: adminToken,
			body: marchallObj(t, account.NewAccount{
				Email:    newAcc.Email,
				FullName: newAcc.FullName,
				Group:    null.StringFrom(strings.Repeat("B", 65)),
			}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"group": "group must be a maximum of 64 characters in length"}),
		},
		{
			name: "created", token: adminToken, body: marchallObj(t, newAcc),
			wantCode: http.StatusCreated, wantData: marchallObj(t, wantAcc),
		},
		{
			name: "duplicate email", token: adminToken, body: marchallObj(t, newAcc),
			wantCode: http.StatusConflict, wantData: marchallObj(t, httpErr{Error: account.ErrAccountExists.Error()}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/accounts"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_accountApi_query(t *testing.T) {
	setup(t)

	admin := testutil.CreateAccount(t, accRepo, "admin@innopolis.university", "Ad Min", true)
	doe := testutil.CreateAccount(t, accRepo, "j.doe@innopolis.university", "John Doe", false)
	roe := testutil.CreateAccount(t, accRepo, "r.roe@innopolis.university", "Richard Roe", false)
	adminToken := getToken(t, admin)

	page := func(accs ...account.Account) []byte {
		return marchallObj(t, account.AccountPage{Pages: 1, Data: accs})
	}

	tests := []httpTest{
		{name: "auth required", path: "/v1/accounts", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "admin required", path: "/v1/accounts", token: getToken(t, doe),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{name: "get all", path: "/v1/accounts", token: adminToken, wantCode: http.StatusOK, wantData: page(admin, doe, roe)},
		{name: "search hit", path: "/v1/accounts?q=roe", token: adminToken, wantCode: http.StatusOK, wantData: page(roe)},
		{
			name: "search miss", path: "/v1/accounts?q=nope", token: adminToken,
			wantCode: http.StatusOK, wantData: marchallObj(t, account.AccountPage{Pages: 0, Data: []account.Account{}}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_accountApi_retrieve(t *testing.T) {
	setup(t)

	admin := testutil.CreateAccount(t, accRepo, "admin@innopolis.university", "Ad Min", true)
	doe := testutil.CreateAccount(t, accRepo, "j.doe@innopolis.university", "John Doe", false)
	roe := testutil.CreateAccount(t, accRepo, "r.roe@innopolis.university", "Richard Roe", false)

	tests := []httpTest{
		{name: "auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "stranger denied", token: getToken(t, roe), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "accounts can only be inspected by their owner or an admin"}),
		},
		{name: "owner allowed", token: getToken(t, doe), wantCode: http.StatusOK, wantData: marchallObj(t, doe)},
		{name: "admin allowed", token: getToken(t, admin), wantCode: http.StatusOK, wantData: marchallObj(t, doe)},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		tt.path = "/v1/accounts/" + doe.Email

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_accountApi_balance(t *testing.T) {
	setup(t)

	admin := testutil.CreateAccount(t, accRepo, "admin@innopolis.university", "Ad Min", true)
	doe := testutil.CreateAccount(t, accRepo, "j.doe@innopolis.university", "John Doe", false)
	roe := testutil.CreateAccount(t, accRepo, "r.roe@innopolis.university", "Richard Roe", false)

	ctx := context.Background()
	tx, err := ledgerRepo.CreateTransaction(ctx, ledger.Transaction{
		AccountEmail: doe.Email,
		Change:       350,
		Reference:    ledger.FeedbackRef(1),
	})
	if err != nil {
		t.Fatalf("CreateTransaction(): %v", err)
	}

	balancePath := "/v1/accounts/" + doe.Email + "/balance"
	transactionsPath := "/v1/accounts/" + doe.Email + "/transactions"
	balance := marchallObj(t, map[string]int{"balance": 350})

	tests := []httpTest{
		{name: "auth required", path: balancePath, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "stranger denied", path: balancePath, token: getToken(t, roe),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{name: "own balance", path: balancePath, token: getToken(t, doe), wantCode: http.StatusOK, wantData: balance},
		{name: "admin reads balance", path: balancePath, token: getToken(t, admin), wantCode: http.StatusOK, wantData: balance},
		{
			name: "own transactions", path: transactionsPath, token: getToken(t, doe),
			wantCode: http.StatusOK, wantData: marchallList(t, tx),
		},
		{
			name: "no transactions", path: "/v1/accounts/" + roe.Email + "/transactions", token: getToken(t, roe),
			wantCode: http.StatusOK, wantData: marchallObj(t, []ledger.Transaction{}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_accountApi_notificationSettings(t *testing.T) {
	setup(t)

	doe := testutil.CreateAccount(t, accRepo, "j.doe@innopolis.university", "John Doe", false)
	doeToken := getToken(t, doe)
	path := "/v1/accounts/" + doe.Email + "/notification_settings"

	defaults := map[notification.Group]notification.Channel{
		notification.GroupInnoStore:       notification.ChannelEmail,
		notification.GroupVolunteering:    notification.ChannelEmail,
		notification.GroupProjectCreation: notification.ChannelEmail,
		notification.GroupAdministration:  notification.ChannelEmail,
		notification.GroupService:         notification.ChannelEmail,
	}

	// all groups default to email
	tt := httpTest{name: "defaults", wantCode: http.StatusOK, wantData: marchallObj(t, defaults)}
	t.Run(tt.name, func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, path, doeToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	tests := []httpTest{
		{
			name: "unknown group", body: marchallObj(t, map[string]string{"carrier_pigeon": "email"}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"carrier_pigeon": "unknown notification group"}),
		},
		{
			name: "invalid channel", body: marchallObj(t, map[notification.Group]string{notification.GroupInnoStore: "smoke_signals"}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"innostore": "a valid notification channel must be specified"}),
		},
		{
			name: "updated",
			body: marchallObj(t, map[notification.Group]notification.Channel{notification.GroupInnoStore: notification.ChannelOff}),
			wantCode: http.StatusNoContent,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPatch, path, doeToken, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	// readback reflects the muted group
	defaults[notification.GroupInnoStore] = notification.ChannelOff
	tt = httpTest{name: "readback", wantCode: http.StatusOK, wantData: marchallObj(t, defaults)}
	t.Run(tt.name, func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, path, doeToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})
}

func Test_accountApi_timeline(t *testing.T) {
	setup(t)

	doe := testutil.CreateAccount(t, accRepo, "j.doe@innopolis.university", "John Doe", false)
	doeToken := getToken(t, doe)
	path := "/v1/accounts/" + doe.Email + "/timeline"

	tests := []httpTest{
		{
			name: "naive start date", path: path + "?start_date=2026-01-01T00:00:00",
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"start_date": "must be an RFC 3339 datetime with a timezone offset"}),
		},
		{
			name: "garbage end date", path: path + "?end_date=yesterday",
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"end_date": "must be an RFC 3339 datetime with a timezone offset"}),
		},
		{
			name: "empty feed", path: path + "?start_date=2026-01-01T00:00:00%2B03:00",
			wantCode: http.StatusOK,
			wantData: marchallObj(t, account.Timeline{Data: []account.TimelineEntry{}}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, tt.path, doeToken)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

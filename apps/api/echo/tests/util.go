package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strconv"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	. "github.com/moflotas/ipts-backend/apps/api/echo"
	"github.com/moflotas/ipts-backend/core"
	"github.com/moflotas/ipts-backend/core/account"
	"github.com/moflotas/ipts-backend/core/application"
	"github.com/moflotas/ipts-backend/core/file"
	"github.com/moflotas/ipts-backend/core/ledger"
	"github.com/moflotas/ipts-backend/core/notification"
	"github.com/moflotas/ipts-backend/core/project"
	"github.com/moflotas/ipts-backend/core/store"
	"github.com/moflotas/ipts-backend/services/email"
	"github.com/moflotas/ipts-backend/services/filestore"
	"github.com/moflotas/ipts-backend/storage/database/dummy"
	"github.com/moflotas/ipts-backend/tests"
)

var (
	app  Server
	conf *core.Config

	accRepo    account.Repository
	projRepo   project.Repository
	appRepo    application.Repository
	storeRepo  store.Repository
	ledgerRepo ledger.Repository
	notifRepo  notification.Repository

	notifSvc notification.Service

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errForbidden    = httpErr{Error: "permission denied"}
)

// setup rebuilds the server on a fresh in-memory DB. Tests in this package
// share the globals above and must not run in parallel.
func setup(t *testing.T) {
	t.Helper()

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("dummydb.Open(): %v", err)
	}

	conf = core.NewConfig()
	logger := testutil.NewLogger()

	validate := validator.New()
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	core.InitValidators(validate, translator)

	accRepo = dummydb.NewAccountRepository(db)
	projRepo = dummydb.NewProjectRepository(db)
	appRepo = dummydb.NewApplicationRepository(db)
	storeRepo = dummydb.NewStoreRepository(db)
	ledgerRepo = dummydb.NewLedgerRepository(db)
	notifRepo = dummydb.NewNotificationRepository(db)
	fileRepo := dummydb.NewFileRepository(db)

	emailsvc.ClearSentMessages()
	mailSvc := emailsvc.NewConsoleServiceMock(conf)

	notifSvc = notification.NewService(notifRepo, mailSvc, conf, logger)
	ledgerSvc := ledger.NewService(ledgerRepo)

	fstore, err := filestore.NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("filestore.NewDiskStore(): %v", err)
	}

	app = NewServer(ServerDeps{
		Conf:            conf,
		Logger:          logger,
		Validate:        validate,
		Translator:      translator,
		AccountSvc:      account.NewService(accRepo, notifSvc, logger),
		ProjectSvc:      project.NewService(projRepo, notifSvc, logger),
		ApplicationSvc:  application.NewService(appRepo, notifSvc, logger),
		LedgerSvc:       ledgerSvc,
		NotificationSvc: notifSvc,
		StoreSvc:        store.NewService(storeRepo, ledgerSvc, notifSvc, logger),
		FileSvc:         file.NewService(fileRepo, fstore, logger),
		DisableReqLogs:  true,
	})
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func itoa(id int) string { return strconv.Itoa(id) }

func getToken(t *testing.T, acc account.Account) string {
	claims := GetAccountClaims(conf, acc)
	token, err := GenerateToken(conf, claims)
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList(): %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	return false, nil
}

// checkCodeAndData compares the status code, and the body when wantData is
// set. A nil wantData only asserts the code (204s have no body to compare).
func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %v", rec.Code, tt.wantCode, rec.Body.String())
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

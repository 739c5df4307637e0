package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	echoapi "github.com/moflotas/ipts-backend/apps/api/echo"
	"github.com/moflotas/ipts-backend/core"
	"github.com/moflotas/ipts-backend/core/account"
	"github.com/moflotas/ipts-backend/core/application"
	"github.com/moflotas/ipts-backend/core/file"
	"github.com/moflotas/ipts-backend/core/ledger"
	"github.com/moflotas/ipts-backend/core/notification"
	"github.com/moflotas/ipts-backend/core/project"
	"github.com/moflotas/ipts-backend/core/store"
	emailsvc "github.com/moflotas/ipts-backend/services/email"
	"github.com/moflotas/ipts-backend/services/filestore"
	logsvc "github.com/moflotas/ipts-backend/services/logger"
	"github.com/moflotas/ipts-backend/storage/database"
	sqlxrepos "github.com/moflotas/ipts-backend/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			logger.Error("closing database", err)
		}
	}()

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	notifSvc := notification.NewService(sqlxrepos.NewNotificationRepository(db), mailSvc, conf, logger)
	ledgerSvc := ledger.NewService(sqlxrepos.NewLedgerRepository(db))
	accountSvc := account.NewService(sqlxrepos.NewAccountRepository(db), notifSvc, logger)
	projectSvc := project.NewService(sqlxrepos.NewProjectRepository(db), notifSvc, logger)
	applicationSvc := application.NewService(sqlxrepos.NewApplicationRepository(db), notifSvc, logger)
	storeSvc := store.NewService(sqlxrepos.NewStoreRepository(db), ledgerSvc, notifSvc, logger)

	blobStore, err := filestore.NewDiskStore(filepath.Join(conf.WorkDir, "media"))
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up file store: %v", err), err)
	}
	fileSvc := file.NewService(sqlxrepos.NewFileRepository(db), blobStore, logger)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)

	core.ParseEmailTemplates(conf, logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err = http.ListenAndServe(conf.Server.DebugAddr, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:            conf,
			Logger:          logger,
			Validate:        validate,
			Translator:      translator,
			AccountSvc:      accountSvc,
			ProjectSvc:      projectSvc,
			ApplicationSvc:  applicationSvc,
			LedgerSvc:       ledgerSvc,
			NotificationSvc: notifSvc,
			StoreSvc:        storeSvc,
			FileSvc:         fileSvc,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

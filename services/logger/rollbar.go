package logsvc

import (
	"log"

	"github.com/rollbar/rollbar-go"
	rollbarerrs "github.com/rollbar/rollbar-go/errors"

	"github.com/moflotas/ipts-backend/core"
)

type RollbarLogger struct {
	std *log.Logger
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(rollbarerrs.StackTracer)
	return &RollbarLogger{std: std}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// expected args: map[string]interface{} for extra fields, core.Actor for the
// acting user
func prepare(msg string, err error, args []interface{}) []interface{} {
	var actorSet bool
	newArgs := make([]interface{}, 0, len(args)+2)
	newArgs = append(newArgs, msg)
	if err != nil {
		newArgs = append(newArgs, err)
	}
	for _, arg := range args {
		if actor, ok := arg.(core.Actor); ok {
			if !actorSet { // only set one person
				rollbar.SetPerson(actor.Email, "", actor.Email)
				actorSet = true
			}
		} else {
			newArgs = append(newArgs, arg)
		}
	}
	if !actorSet {
		rollbar.ClearPerson()
	}
	return newArgs
}

func (l RollbarLogger) print(msg string, err error, args []interface{}) {
	l.std.Println(msg)
	if err != nil {
		l.std.Printf("%+v\n", err)
	}
	for _, arg := range args {
		l.std.Printf("%+v\n", arg)
	}
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	rollbar.Debug(prepare(msg, nil, args)...)
	l.print(msg, nil, args)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	rollbar.Info(prepare(msg, nil, args)...)
	l.print(msg, nil, args)
}

func (l RollbarLogger) Error(msg string, err error, args ...interface{}) {
	rollbar.Error(prepare(msg, err, args)...)
	l.print(msg, err, args)
}

func (l RollbarLogger) Fatal(msg string, err error, args ...interface{}) {
	rollbar.Critical(prepare(msg, err, args)...)
	l.print(msg, err, args)
	l.std.Fatal(msg)
}

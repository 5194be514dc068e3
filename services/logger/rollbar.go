package logsvc

import (
	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/liamAduDonkor/adesua-sub000/core"
	"github.com/liamAduDonkor/adesua-sub000/core/scope"
)

// RollbarLogger reports every entry to rollbar and writes it to a local sink.
type RollbarLogger struct {
	sink core.Logger
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(sink core.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	return &RollbarLogger{sink: sink}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// expected fmt: msg | error, core.Fields, scope.Principal
func (l RollbarLogger) prepare(msg string, args []interface{}) (rbArgs, sinkArgs []interface{}) {
	var personSet bool
	rbArgs = make([]interface{}, 0, len(args)+1)
	rbArgs = append(rbArgs, msg)
	sinkArgs = make([]interface{}, 0, len(args))
	for _, arg := range args {
		switch a := arg.(type) {
		case scope.Principal:
			// only set one person
			if !personSet {
				rollbar.SetPerson(a.UserID, a.Role.String(), "")
				personSet = true
			}
			sinkArgs = append(sinkArgs, core.Fields{"user_id": a.UserID, "role": a.Role})
		case core.Fields:
			rbArgs = append(rbArgs, map[string]interface{}(a))
			sinkArgs = append(sinkArgs, a)
		default:
			rbArgs = append(rbArgs, arg)
			sinkArgs = append(sinkArgs, arg)
		}
	}
	if !personSet {
		rollbar.ClearPerson()
	}
	return rbArgs, sinkArgs
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	rb, sink := l.prepare(msg, args)
	rollbar.Debug(rb...)
	l.sink.Debug(msg, sink...)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	rb, sink := l.prepare(msg, args)
	rollbar.Info(rb...)
	l.sink.Info(msg, sink...)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	rb, sink := l.prepare(msg, args)
	rollbar.Warning(rb...)
	l.sink.Warn(msg, sink...)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	rb, sink := l.prepare(msg, args)
	rollbar.Error(rb...)
	l.sink.Error(msg, sink...)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	rb, sink := l.prepare(msg, args)
	rollbar.Critical(rb...)
	rollbar.Wait()
	l.sink.Fatal(msg, sink...)
}

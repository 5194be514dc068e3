package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/liamAduDonkor/adesua-sub000/core"
	"github.com/liamAduDonkor/adesua-sub000/core/analytics"
	"github.com/liamAduDonkor/adesua-sub000/core/compliance"
	"github.com/liamAduDonkor/adesua-sub000/core/report"
	"github.com/liamAduDonkor/adesua-sub000/core/scope"
	rendersvc "github.com/liamAduDonkor/adesua-sub000/services/render"
)

var (
	errUnauthorized    = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errUnknownIdentity = echo.NewHTTPError(http.StatusForbidden, "unknown identity")
	errHttpNotFound    = echo.NewHTTPError(http.StatusNotFound, "not found")
)

// sentinelCodes maps domain sentinels to their HTTP status. The first match wins.
var sentinelCodes = []struct {
	err  error
	code int
}{
	{report.ErrNotFound, http.StatusNotFound},
	{rendersvc.ErrUnknownArtifact, http.StatusNotFound},
	{scope.ErrUnknownOrganization, http.StatusNotFound},
	{scope.ErrUnknownSubject, http.StatusNotFound},
	{scope.ErrScopeDenied, http.StatusForbidden},
	{scope.ErrNotAssigned, http.StatusForbidden},
	{report.ErrForbidden, http.StatusForbidden},
	{scope.ErrConflictingTarget, http.StatusBadRequest},
	{analytics.ErrInvalidQuery, http.StatusBadRequest},
	{compliance.ErrUnknownCategory, http.StatusBadRequest},
	{report.ErrAlreadyClaimed, http.StatusConflict},
	{report.ErrInvalidTransition, http.StatusConflict},
	{report.ErrRetryExhausted, http.StatusConflict},
}

func sentinelCode(err error) (int, bool) {
	for _, sc := range sentinelCodes {
		if errors.Is(err, sc.err) {
			return sc.code, true
		}
	}
	return 0, false
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var (
			code    int
			message interface{}
			vErr    *core.ValidationError
		)

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, fErr := range origErr {
				fldErrs[fErr.Field()] = fErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		default:
			// validation errors first: they may wrap a sentinel (e.g. an out of scope filter)
			if errors.As(err, &vErr) {
				code = http.StatusBadRequest
				if len(vErr.Fields) > 0 {
					fldErrs := make(map[string]string, len(vErr.Fields))
					for _, fErr := range vErr.Fields {
						fldErrs[fErr.Field] = fErr.Error
					}
					message = fldErrs
				} else {
					message = vErr.Error()
				}
				break
			}
			if c, ok := sentinelCode(err); ok {
				code = c
				message = err.Error()
				if code == http.StatusConflict {
					logger.Warn("request conflict", err, core.Fields{"path": ctx.Path()})
				}
				break
			}

			// any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			fields := core.Fields{"path": ctx.Path(), "method": ctx.Request().Method}
			if p, pErr := getContextPrincipal(ctx); pErr == nil {
				fields["user"] = p.UserID
				fields["role"] = string(p.Role)
			}
			logger.Error(msg, errors.Wrap(err, msg), fields)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug && code >= http.StatusInternalServerError {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/darslik/core"
	"github.com/trezcool/darslik/core/catalog"
	"github.com/trezcool/darslik/core/library"
	"github.com/trezcool/darslik/core/quiz"
	"github.com/trezcool/darslik/core/testimonial"
	"github.com/trezcool/darslik/core/torrens"
	"github.com/trezcool/darslik/core/user"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
)

// notFoundErrs are the domain errors answered with a 404.
var notFoundErrs = map[error]bool{
	user.ErrNotFound:        true,
	catalog.ErrNotFound:     true,
	quiz.ErrNotFound:        true,
	torrens.ErrNotFound:     true,
	testimonial.ErrNotFound: true,
	library.ErrNotFound:     true,
}

// httpAnswer is the status and body a handler error is answered with.
type httpAnswer struct {
	code    int
	message interface{}
}

// resolveError maps err to its HTTP answer. ok is false for server errors.
func resolveError(err error, translator ut.Translator) (ans httpAnswer, ok bool) {
	cause := errors.Cause(err)
	switch e := cause.(type) {
	case *echo.HTTPError:
		if e == middleware.ErrJWTMissing {
			return httpAnswer{http.StatusUnauthorized, e.Message}, true
		}
		if inner, isHTTP := e.Internal.(*echo.HTTPError); isHTTP {
			e = inner
		}
		return httpAnswer{e.Code, e.Message}, true
	case validator.ValidationErrors:
		fields := make(map[string]string, len(e))
		for _, fe := range e {
			fields[fe.Field()] = fe.Translate(translator)
		}
		return httpAnswer{http.StatusBadRequest, fields}, true
	case *core.ValidationError:
		if len(e.Fields) == 0 {
			return httpAnswer{http.StatusBadRequest, e.Error()}, true
		}
		fields := make(map[string]string, len(e.Fields))
		for _, fe := range e.Fields {
			fields[fe.Field] = fe.Error
		}
		return httpAnswer{http.StatusBadRequest, fields}, true
	case *core.ConflictError:
		return httpAnswer{http.StatusConflict, e.Error()}, true
	}

	if notFoundErrs[cause] {
		return httpAnswer{http.StatusNotFound, cause.Error()}, true
	}
	return httpAnswer{http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)}, false
}

// newAppHTTPErrorHandler returns the echo.HTTPErrorHandler answering with resolveError.
// Server errors are reported along with the token user; a core shutdown error also calls signalShutdown.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		ans, ok := resolveError(err, translator)
		if !ok {
			var usr user.User
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				usr.ID = claims.Subject
				usr.Username = claims.Username
				usr.Email = claims.Email
			}
			msg := http.StatusText(ans.code)
			logger.Error(msg, errors.Wrap(err, msg), usr)

			if core.IsShutdown(err) {
				signalShutdown()
			}
			if ctx.Echo().Debug {
				ans.message = err.Error()
			}
		}
		if m, isStr := ans.message.(string); isStr {
			ans.message = echo.Map{"error": m}
		}

		if ctx.Response().Committed {
			return
		}
		if ctx.Request().Method == http.MethodHead { // labstack/echo#608
			err = ctx.NoContent(ans.code)
		} else {
			err = ctx.JSON(ans.code, ans.message)
		}
		if err != nil {
			ctx.Echo().Logger.Error(err)
		}
	}
}

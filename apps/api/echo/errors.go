package echoapi

import (
	"fmt"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/classboard/core"
)

type ErrorResponse struct {
	Code   core.ErrorCode    `json:"code"`
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

var codeStatuses = map[core.ErrorCode]int{
	core.CodeInvalidCredentials: http.StatusUnauthorized,
	core.CodeInvalidToken:       http.StatusUnauthorized,
	core.CodeForbidden:          http.StatusForbidden,
	core.CodeInvalidRequest:     http.StatusBadRequest,
	core.CodeInvalidTarget:      http.StatusUnprocessableEntity,
	core.CodeNotFound:           http.StatusNotFound,
	core.CodeConflict:           http.StatusConflict,
	core.CodeTooManyRequests:    http.StatusTooManyRequests,
}

// codeOfStatus maps the statuses echo raises itself (routing, binding) back to error codes.
func codeOfStatus(status int) core.ErrorCode {
	switch status {
	case http.StatusUnauthorized:
		return core.CodeInvalidToken
	case http.StatusForbidden:
		return core.CodeForbidden
	case http.StatusNotFound:
		return core.CodeNotFound
	case http.StatusConflict:
		return core.CodeConflict
	case http.StatusTooManyRequests:
		return core.CodeTooManyRequests
	}
	if status >= 500 {
		return core.CodeInternal
	}
	return core.CodeInvalidRequest
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var status int
		var resp ErrorResponse

		switch origErr := errors.Cause(err).(type) {
		case *core.Error:
			resp.Code = origErr.Code
			resp.Error = origErr.Message
			status = codeStatuses[origErr.Code]
		case *echo.HTTPError:
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			status = origErr.Code
			resp.Code = codeOfStatus(status)
			resp.Error = fmt.Sprint(origErr.Message)
		case validator.ValidationErrors:
			resp.Fields = make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				resp.Fields[vErr.Field()] = vErr.Translate(translator)
			}
			resp.Code = core.CodeInvalidRequest
			resp.Error = "validation failed"
			status = http.StatusBadRequest
		case *core.ValidationError:
			if origErr.Fields != nil {
				resp.Fields = make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					resp.Fields[fErr.Field] = fErr.Error
				}
			}
			resp.Code = core.CodeInvalidRequest
			resp.Error = origErr.Error()
			status = http.StatusBadRequest
		}

		if status == 0 || resp.Code == core.CodeInternal { // any other error is a server error
			status = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			resp = ErrorResponse{Code: core.CodeInternal, Error: msg}

			args := []interface{}{errors.Wrap(err, msg)}
			if p, pErr := getContextPrincipal(ctx); pErr == nil {
				args = append(args, p)
			}
			logger.Error(msg, args...)

			if ctx.Echo().Debug {
				resp.Error = err.Error()
			}

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(status)
			} else {
				err = ctx.JSON(status, resp)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

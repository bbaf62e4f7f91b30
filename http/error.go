package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/hlog"

	"github.com/quantonganh/dailybrief"
)

type appHandler func(w http.ResponseWriter, r *http.Request) error

// Error parse HTTP error and write to header and body
func (s *Server) Error(fn appHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}

		clientError, ok := err.(ClientError)
		if !ok {
			clientError = &Error{
				Cause:   err,
				Message: dailybrief.ErrorMessage(err),
				Status:  statusFromCode(dailybrief.ErrorCode(err)),
			}
		}

		status, headers := clientError.Headers()
		if status >= http.StatusInternalServerError {
			hlog.FromRequest(r).Error().Err(err).Msg("request failed")
			captureException(r, err)
		} else {
			hlog.FromRequest(r).Info().Err(err).Int("status", status).Msg("request rejected")
		}

		body, err := clientError.Body()
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		for k, v := range headers {
			w.Header().Set(k, v)
		}

		w.WriteHeader(status)

		_, _ = w.Write(body)
	}
}

func captureException(r *http.Request, err error) {
	if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
		hub.CaptureException(err)
		return
	}
	sentry.CaptureException(err)
}

func statusFromCode(code string) int {
	switch code {
	case dailybrief.ErrInvalid:
		return http.StatusBadRequest
	case dailybrief.ErrUnauthorized:
		return http.StatusUnauthorized
	case dailybrief.ErrForbidden:
		return http.StatusForbidden
	case dailybrief.ErrNotFound:
		return http.StatusNotFound
	case dailybrief.ErrConflict:
		return http.StatusConflict
	case dailybrief.ErrUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ClientError is the interface that wraps methods related to error on the client side
type ClientError interface {
	Error() string
	Body() ([]byte, error)
	Headers() (int, map[string]string)
}

// Error represents a detail error message. Payload, when set, replaces the default {"error": Message} body.
type Error struct {
	Cause   error
	Message string
	Status  int
	Payload interface{}
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

// Body returns response body from error
func (e *Error) Body() ([]byte, error) {
	var payload interface{} = map[string]string{"error": e.Message}
	if e.Payload != nil {
		payload = e.Payload
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("Error while parsing response body: %v", err)
	}
	return body, nil
}

// Headers returns status and header
func (e *Error) Headers() (int, map[string]string) {
	return e.Status, map[string]string{
		"Content-Type": "application/json; charset=utf-8",
	}
}

// NewError returns new error message
func NewError(err error, status int, message string) error {
	return &Error{
		Cause:   err,
		Message: message,
		Status:  status,
	}
}

func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	//nolint:errcheck
	json.NewEncoder(w).Encode(response)
}

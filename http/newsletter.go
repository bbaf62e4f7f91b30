package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/hlog"

	"github.com/quantonganh/dailybrief"
	"github.com/quantonganh/dailybrief/pkg/hash"
)

const bearerPrefix = "Bearer "

// sendDailyHandler runs one dispatch. The bearer check happens before any store or mailer call.
func (s *Server) sendDailyHandler(w http.ResponseWriter, r *http.Request) error {
	if !s.authorizedDispatch(r) {
		return NewError(nil, http.StatusUnauthorized, "Unauthorized")
	}

	report, err := s.DispatchService.Dispatch(context.WithoutCancel(r.Context()))
	if err != nil {
		message := dailybrief.ErrorMessage(err)
		return &Error{
			Cause:   err,
			Message: message,
			Status:  statusFromCode(dailybrief.ErrorCode(err)),
			Payload: map[string]interface{}{"ok": false, "error": message},
		}
	}

	hlog.FromRequest(r).Info().
		Str("publication_date", report.PublicationDate).
		Int("sent", report.Sent).
		Int("failed", report.Failed).
		Msg("dispatch completed")

	writeJSONResponse(w, http.StatusOK, report)
	return nil
}

// authorizedDispatch fails closed when no dispatch secret is configured.
func (s *Server) authorizedDispatch(r *http.Request) bool {
	if s.dispatchSecret == "" {
		return false
	}
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, bearerPrefix) {
		return false
	}
	return hash.Equal(strings.TrimPrefix(auth, bearerPrefix), s.dispatchSecret)
}

type testEmailResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	EmailID    string `json:"email_id"`
	Newsletter struct {
		Date      string `json:"date"`
		NewsCount int    `json:"news_count"`
	} `json:"newsletter"`
}

// testEmailHandler sends the latest issue to a single address. It is disabled without a test secret.
func (s *Server) testEmailHandler(w http.ResponseWriter, r *http.Request) error {
	query := r.URL.Query()
	if s.testSecret == "" || !hash.Equal(query.Get("secret"), s.testSecret) {
		return NewError(nil, http.StatusUnauthorized, "Unauthorized")
	}

	to := query.Get("to")
	if !dailybrief.ValidEmail(dailybrief.NormalizeEmail(to)) {
		return NewError(dailybrief.ErrInvalidEmail, http.StatusBadRequest, "Invalid or missing 'to' email parameter")
	}

	result, err := s.DispatchService.SendTest(context.WithoutCancel(r.Context()), to)
	if err != nil {
		if errors.Is(err, dailybrief.ErrNoIssueFound) {
			return NewError(err, http.StatusNotFound, "No newsletter found in database")
		}
		return err
	}

	resp := testEmailResponse{
		Success: true,
		Message: fmt.Sprintf("Test email sent to %s", dailybrief.NormalizeEmail(to)),
		EmailID: result.EmailID,
	}
	resp.Newsletter.Date = result.PublicationDate
	resp.Newsletter.NewsCount = result.NewsCount

	writeJSONResponse(w, http.StatusOK, resp)
	return nil
}

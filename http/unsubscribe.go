package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/hlog"

	"github.com/quantonganh/dailybrief"
	"github.com/quantonganh/dailybrief/pkg/token"
)

const (
	invalidLinkMessage        = "Invalid or expired link"
	unsubscribeFailureMessage = "Failed to unsubscribe"
	maxUnsubscribeBody        = 16 << 10
)

// unsubscribePageHandler only redirects. Link prescanners may GET it freely.
func (s *Server) unsubscribePageHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := s.verifyToken(r, token.PurposeUnsubscribe); err != nil {
		hlog.FromRequest(r).Info().Err(err).Msg("unsubscribe link rejected")
		http.Redirect(w, r, s.siteURL+"/unsubscribe?error=1", http.StatusFound)
		return
	}

	tok := r.URL.Query().Get("token")
	http.Redirect(w, r, s.siteURL+"/unsubscribe?token="+url.QueryEscape(tok), http.StatusFound)
}

// unsubscribeHandler performs the unsubscribe after an explicit click on the confirmation page.
func (s *Server) unsubscribeHandler(w http.ResponseWriter, r *http.Request) error {
	p, err := s.verifyToken(r, token.PurposeUnsubscribe)
	if err != nil {
		return NewError(err, http.StatusBadRequest, invalidLinkMessage)
	}
	email := dailybrief.NormalizeEmail(p.Email)

	// the body is optional, a missing or broken one is ignored
	var req dailybrief.UnsubscribeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUnsubscribeBody)).Decode(&req); err != nil && err != io.EOF {
		hlog.FromRequest(r).Debug().Err(err).Msg("ignoring unsubscribe body")
		req = dailybrief.UnsubscribeRequest{}
	}

	ctx := context.WithoutCancel(r.Context())
	err = s.SubscriptionService.SetUnsubscribed(ctx, email, s.now().UTC(), req.Reason, req.Feedback)
	if err != nil && dailybrief.ErrorCode(err) != dailybrief.ErrNotFound {
		return NewError(err, http.StatusInternalServerError, unsubscribeFailureMessage)
	}

	logger := hlog.FromRequest(r)
	logger.Info().Str("email", email).Str("reason", req.Reason).Msg("unsubscribed")

	writeJSONResponse(w, http.StatusOK, map[string]bool{"success": true})
	return nil
}

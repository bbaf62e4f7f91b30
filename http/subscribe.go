package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/hlog"

	"github.com/quantonganh/dailybrief"
	"github.com/quantonganh/dailybrief/metrics"
	"github.com/quantonganh/dailybrief/pkg/token"
)

const (
	databaseErrorMessage = "Database error."
	genericErrorMessage  = "Something went wrong."
	defaultSource        = "unknown"
)

func subscribeError(err error, status int, message string) error {
	return &Error{
		Cause:   err,
		Message: message,
		Status:  status,
		Payload: &dailybrief.SubscriptionResponse{Message: message},
	}
}

// subscribeHandler records a pending subscriber and mails the confirmation link.
// The response is the same whether or not the address was already known.
func (s *Server) subscribeHandler(w http.ResponseWriter, r *http.Request) error {
	var req dailybrief.SubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return subscribeError(err, http.StatusBadRequest, dailybrief.ErrInvalidEmail.Message)
	}

	email := dailybrief.NormalizeEmail(req.Email)
	if !dailybrief.ValidEmail(email) {
		return subscribeError(dailybrief.ErrInvalidEmail, http.StatusBadRequest, dailybrief.ErrInvalidEmail.Message)
	}

	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = defaultSource
	}

	ctx := context.WithoutCancel(r.Context())
	logger := hlog.FromRequest(r)

	meta := dailybrief.SubscriptionMeta{
		Source:           source,
		ConsentIP:        clientIP(r),
		ConsentUserAgent: r.UserAgent(),
		ReferralCode:     dailybrief.NewReferralCode(),
	}
	if err := s.SubscriptionService.UpsertPending(ctx, email, meta); err != nil {
		return subscribeError(err, http.StatusInternalServerError, databaseErrorMessage)
	}

	confirmToken, err := token.Make(email, token.PurposeConfirm, s.secret, s.confirmTTL)
	if err != nil {
		return subscribeError(err, http.StatusInternalServerError, genericErrorMessage)
	}
	unsubscribeToken, err := token.Make(email, token.PurposeUnsubscribe, s.secret, s.unsubscribeTTL)
	if err != nil {
		return subscribeError(err, http.StatusInternalServerError, genericErrorMessage)
	}

	logger.Info().Str("email", email).Str("source", source).Msg("sending confirmation email")
	if err := s.NewsletterService.SendConfirmationEmail(ctx, email,
		dailybrief.ConfirmURL(s.siteURL, confirmToken),
		dailybrief.UnsubscribeURL(s.siteURL, unsubscribeToken)); err != nil {
		return subscribeError(err, http.StatusInternalServerError, genericErrorMessage)
	}

	writeJSONResponse(w, http.StatusOK, &dailybrief.SubscriptionResponse{OK: true})
	return nil
}

// confirmHandler activates a subscriber and sends the welcome email once.
// Any token problem ends on the same failure redirect. The welcome email is
// only sent by the request whose SetActive made the transition.
func (s *Server) confirmHandler(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	logger := hlog.FromRequest(r)

	p, err := s.verifyToken(r, token.PurposeConfirm)
	if err != nil {
		logger.Info().Err(err).Msg("confirm link rejected")
		http.Redirect(w, r, s.siteURL+"/?subscribed=0", http.StatusFound)
		return
	}
	email := dailybrief.NormalizeEmail(p.Email)

	subscriber, err := s.SubscriptionService.FindByEmail(ctx, email)
	if err != nil && dailybrief.ErrorCode(err) != dailybrief.ErrNotFound {
		logger.Error().Err(err).Str("email", email).Msg("failed to read subscriber")
	}

	if subscriber != nil && subscriber.Confirmed() {
		logger.Info().Str("email", email).Msg("already confirmed")
		http.Redirect(w, r, s.siteURL+"/?subscribed=1", http.StatusFound)
		return
	}

	activated, err := s.SubscriptionService.SetActive(ctx, email, s.now().UTC())
	if err != nil {
		logger.Error().Err(err).Str("email", email).Msg("failed to activate subscriber")
		metrics.ConfirmStoreFailures.Inc()
		captureException(r, err)
		http.Redirect(w, r, s.siteURL+"/?subscribed=1", http.StatusFound)
		return
	}
	if !activated {
		logger.Info().Str("email", email).Msg("already confirmed by a concurrent request")
		http.Redirect(w, r, s.siteURL+"/?subscribed=1", http.StatusFound)
		return
	}

	var referralCode string
	if subscriber != nil {
		referralCode = subscriber.ReferralCode
	}

	if err := s.sendWelcome(ctx, email, referralCode); err != nil {
		logger.Error().Err(err).Str("email", email).Msg("failed to send welcome email")
		captureException(r, err)
	}

	http.Redirect(w, r, s.siteURL+"/?subscribed=1", http.StatusFound)
}

func (s *Server) sendWelcome(ctx context.Context, email, referralCode string) error {
	unsubscribeToken, err := token.Make(email, token.PurposeUnsubscribe, s.secret, s.unsubscribeTTL)
	if err != nil {
		return err
	}
	return s.NewsletterService.SendWelcomeEmail(ctx, email,
		dailybrief.UnsubscribeURL(s.siteURL, unsubscribeToken),
		dailybrief.ReferralURL(s.siteURL, referralCode))
}

var errMissingToken = errors.New("missing token")

// verifyToken checks the token query parameter against the expected purpose and counts failures.
func (s *Server) verifyToken(r *http.Request, purpose token.Purpose) (*token.Payload, error) {
	tok := r.URL.Query().Get("token")
	if tok == "" {
		metrics.TokenVerifyFailures.WithLabelValues(string(purpose), "missing").Inc()
		return nil, errMissingToken
	}

	p, err := token.VerifyPurpose(tok, s.secret, purpose)
	if err != nil {
		metrics.TokenVerifyFailures.WithLabelValues(string(purpose), failureReason(err)).Inc()
		return nil, err
	}
	return p, nil
}

func failureReason(err error) string {
	switch err {
	case token.ErrMalformed:
		return "malformed"
	case token.ErrBadSignature:
		return "bad_signature"
	case token.ErrExpired:
		return "expired"
	case token.ErrWrongPurpose:
		return "wrong_purpose"
	default:
		return "other"
	}
}

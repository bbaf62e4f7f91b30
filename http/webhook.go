package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/hlog"

	"github.com/quantonganh/dailybrief"
	"github.com/quantonganh/dailybrief/metrics"
)

const maxWebhookBody = 1 << 20

type webhookPayload struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type webhookData struct {
	To      json.RawMessage `json:"to"`
	Email   string          `json:"email"`
	Headers json.RawMessage `json:"headers"`
}

type webhookHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// resendWebhookHandler appends one analytics event per provider delivery event.
func (s *Server) resendWebhookHandler(w http.ResponseWriter, r *http.Request) error {
	var payload webhookPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBody)).Decode(&payload); err != nil {
		return NewError(err, http.StatusBadRequest, "Invalid payload")
	}

	data := bytes.TrimSpace(payload.Data)
	if payload.Type == "" || len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return NewError(nil, http.StatusBadRequest, "Invalid payload")
	}

	var d webhookData
	if err := json.Unmarshal(data, &d); err != nil {
		return NewError(err, http.StatusBadRequest, "Invalid payload")
	}

	e := &dailybrief.Event{
		Email:          recipient(d),
		Type:           dailybrief.EventTypeFromProvider(payload.Type),
		NewsletterDate: headerValue(d.Headers, dailybrief.EntityRefHeader),
		Metadata:       json.RawMessage(data),
	}

	if err := s.EventService.Record(context.WithoutCancel(r.Context()), e); err != nil {
		return NewError(err, http.StatusInternalServerError, "Database error")
	}
	metrics.WebhookEvents.WithLabelValues(string(e.Type)).Inc()

	hlog.FromRequest(r).Info().
		Str("email", e.Email).
		Str("type", string(e.Type)).
		Str("newsletter_date", e.NewsletterDate).
		Msg("email event recorded")

	writeJSONResponse(w, http.StatusOK, map[string]bool{"ok": true})
	return nil
}

// recipient is data.to[0], falling back to data.email.
func recipient(d webhookData) string {
	var list []string
	if err := json.Unmarshal(d.To, &list); err == nil && len(list) > 0 {
		return dailybrief.NormalizeEmail(list[0])
	}
	var single string
	if err := json.Unmarshal(d.To, &single); err == nil && single != "" {
		return dailybrief.NormalizeEmail(single)
	}
	return dailybrief.NormalizeEmail(d.Email)
}

// headerValue reads a header from either {"Name": "value"} or [{"name": ..., "value": ...}].
func headerValue(raw json.RawMessage, name string) string {
	if len(raw) == 0 {
		return ""
	}

	var m map[string]string
	if err := json.Unmarshal(raw, &m); err == nil {
		for k, v := range m {
			if strings.EqualFold(k, name) {
				return v
			}
		}
		return ""
	}

	var list []webhookHeader
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, h := range list {
			if strings.EqualFold(h.Name, name) {
				return h.Value
			}
		}
	}
	return ""
}

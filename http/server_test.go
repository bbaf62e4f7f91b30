package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	testifymock "github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/quantonganh/dailybrief"
	"github.com/quantonganh/dailybrief/metrics"
	"github.com/quantonganh/dailybrief/mock"
	"github.com/quantonganh/dailybrief/pkg/token"
)

const siteURL = "https://example.com"

var cfg *dailybrief.Config

func TestMain(m *testing.M) {
	viper.SetConfigType("yaml")
	var yamlConfig = []byte(`
site:
  url: https://example.com/

mail:
  provider: log
  from: hi@example.com

db:
  path: /tmp/unused.db

newsletter:
  hmac:
    secret: da02e221bc331c9875c5e1299fa8d765
  dispatch:
    secret: cron-secret
  test:
    secret: test-secret
`)
	if err := viper.ReadConfig(bytes.NewBuffer(yamlConfig)); err != nil {
		log.Fatal(err)
	}
	if err := viper.Unmarshal(&cfg); err != nil {
		log.Fatal(err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	os.Exit(m.Run())
}

func newTestServer(t *testing.T, config *dailybrief.Config) *Server {
	t.Helper()

	s, err := NewServer(config, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(s.limiter.Stop)
	return s
}

func makeToken(t *testing.T, email string, purpose token.Purpose, ttl time.Duration) string {
	t.Helper()

	tok, err := token.Make(email, purpose, cfg.Newsletter.HMAC.Secret, ttl)
	require.NoError(t, err)
	return tok
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func tokenFromURL(t *testing.T, link string) string {
	t.Helper()

	u, err := url.Parse(link)
	require.NoError(t, err)
	tok := u.Query().Get("token")
	require.NotEmpty(t, tok, link)
	return tok
}

func TestSubscribeHandler(t *testing.T) {
	s := newTestServer(t, cfg)

	subscriptionService := new(mock.SubscriptionService)
	subscriptionService.On("UpsertPending", testifymock.Anything, "foo@gmail.com", testifymock.MatchedBy(func(m dailybrief.SubscriptionMeta) bool {
		return m.Source == "homepage" &&
			m.ConsentIP == "203.0.113.7" &&
			m.ConsentUserAgent == "test-agent" &&
			len(m.ReferralCode) == 8
	})).Return(nil)

	var confirmURL, unsubscribeURL string
	newsletterService := new(mock.NewsletterService)
	newsletterService.On("SendConfirmationEmail", testifymock.Anything, "foo@gmail.com", testifymock.Anything, testifymock.Anything).
		Run(func(args testifymock.Arguments) {
			confirmURL = args.String(2)
			unsubscribeURL = args.String(3)
		}).
		Return(nil)

	s.SubscriptionService = subscriptionService
	s.NewsletterService = newsletterService

	req := httptest.NewRequest(http.MethodPost, "/api/subscribe", strings.NewReader(`{"email":"  Foo@Gmail.com ","source":"homepage"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	req.Header.Set("User-Agent", "test-agent")
	w := serve(s, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())
	subscriptionService.AssertExpectations(t)
	newsletterService.AssertExpectations(t)

	assert.True(t, strings.HasPrefix(confirmURL, siteURL+"/api/confirm?token="), confirmURL)
	p, err := token.VerifyPurpose(tokenFromURL(t, confirmURL), cfg.Newsletter.HMAC.Secret, token.PurposeConfirm)
	require.NoError(t, err)
	assert.Equal(t, "foo@gmail.com", p.Email)
	assert.WithinDuration(t, time.Now().Add(48*time.Hour), p.ExpiresAt(), time.Minute)

	assert.True(t, strings.HasPrefix(unsubscribeURL, siteURL+"/api/unsubscribe?token="), unsubscribeURL)
	p, err = token.VerifyPurpose(tokenFromURL(t, unsubscribeURL), cfg.Newsletter.HMAC.Secret, token.PurposeUnsubscribe)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(365*24*time.Hour), p.ExpiresAt(), time.Minute)
}

func TestSubscribeDefaultSource(t *testing.T) {
	s := newTestServer(t, cfg)

	subscriptionService := new(mock.SubscriptionService)
	subscriptionService.On("UpsertPending", testifymock.Anything, "foo@gmail.com", testifymock.MatchedBy(func(m dailybrief.SubscriptionMeta) bool {
		return m.Source == "unknown"
	})).Return(nil)
	newsletterService := new(mock.NewsletterService)
	newsletterService.On("SendConfirmationEmail", testifymock.Anything, "foo@gmail.com", testifymock.Anything, testifymock.Anything).Return(nil)

	s.SubscriptionService = subscriptionService
	s.NewsletterService = newsletterService

	w := serve(s, httptest.NewRequest(http.MethodPost, "/api/subscribe", strings.NewReader(`{"email":"foo@gmail.com"}`)))
	assert.Equal(t, http.StatusOK, w.Code)
	subscriptionService.AssertExpectations(t)
}

func TestSubscribeInvalidEmail(t *testing.T) {
	s := newTestServer(t, cfg)
	subscriptionService := new(mock.SubscriptionService)
	newsletterService := new(mock.NewsletterService)
	s.SubscriptionService = subscriptionService
	s.NewsletterService = newsletterService

	for _, body := range []string{`{"email":"not-an-email"}`, `{"email":""}`, `not json`} {
		w := serve(s, httptest.NewRequest(http.MethodPost, "/api/subscribe", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.JSONEq(t, `{"ok":false,"message":"Enter a valid email."}`, w.Body.String(), body)
	}

	subscriptionService.AssertNotCalled(t, "UpsertPending", testifymock.Anything, testifymock.Anything, testifymock.Anything)
	newsletterService.AssertNotCalled(t, "SendConfirmationEmail", testifymock.Anything, testifymock.Anything, testifymock.Anything, testifymock.Anything)
}

func TestSubscribeFailures(t *testing.T) {
	t.Run("database", func(t *testing.T) {
		s := newTestServer(t, cfg)
		subscriptionService := new(mock.SubscriptionService)
		subscriptionService.On("UpsertPending", testifymock.Anything, testifymock.Anything, testifymock.Anything).
			Return(dailybrief.Unavailable("test", errors.New("connection refused")))
		s.SubscriptionService = subscriptionService
		s.NewsletterService = new(mock.NewsletterService)

		w := serve(s, httptest.NewRequest(http.MethodPost, "/api/subscribe", strings.NewReader(`{"email":"foo@gmail.com"}`)))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.JSONEq(t, `{"ok":false,"message":"Database error."}`, w.Body.String())
	})

	t.Run("mailer", func(t *testing.T) {
		s := newTestServer(t, cfg)
		subscriptionService := new(mock.SubscriptionService)
		subscriptionService.On("UpsertPending", testifymock.Anything, testifymock.Anything, testifymock.Anything).Return(nil)
		newsletterService := new(mock.NewsletterService)
		newsletterService.On("SendConfirmationEmail", testifymock.Anything, testifymock.Anything, testifymock.Anything, testifymock.Anything).
			Return(errors.New("resend: 500"))
		s.SubscriptionService = subscriptionService
		s.NewsletterService = newsletterService

		w := serve(s, httptest.NewRequest(http.MethodPost, "/api/subscribe", strings.NewReader(`{"email":"foo@gmail.com"}`)))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.JSONEq(t, `{"ok":false,"message":"Something went wrong."}`, w.Body.String())
	})
}

func TestSubscribeRateLimit(t *testing.T) {
	limited := *cfg
	limited.RateLimit.SubscribePerMinute = 2
	s := newTestServer(t, &limited)

	subscriptionService := new(mock.SubscriptionService)
	subscriptionService.On("UpsertPending", testifymock.Anything, testifymock.Anything, testifymock.Anything).Return(nil)
	newsletterService := new(mock.NewsletterService)
	newsletterService.On("SendConfirmationEmail", testifymock.Anything, testifymock.Anything, testifymock.Anything, testifymock.Anything).Return(nil)
	s.SubscriptionService = subscriptionService
	s.NewsletterService = newsletterService

	post := func(peer, forwarded string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/subscribe", strings.NewReader(`{"email":"foo@gmail.com"}`))
		req.RemoteAddr = peer + ":40000"
		req.Header.Set("X-Forwarded-For", forwarded)
		return serve(s, req).Code
	}

	assert.Equal(t, http.StatusOK, post("198.51.100.1", "203.0.113.1"))
	assert.Equal(t, http.StatusOK, post("198.51.100.1", "203.0.113.2"))
	// a rotated X-Forwarded-For does not buy a fresh bucket
	assert.Equal(t, http.StatusTooManyRequests, post("198.51.100.1", "203.0.113.3"))
	assert.Equal(t, http.StatusOK, post("198.51.100.2", "203.0.113.3"))
}

func TestSubscribeRateLimitBehindProxy(t *testing.T) {
	limited := *cfg
	limited.RateLimit.SubscribePerMinute = 2
	limited.RateLimit.BehindProxy = true
	s := newTestServer(t, &limited)

	subscriptionService := new(mock.SubscriptionService)
	subscriptionService.On("UpsertPending", testifymock.Anything, testifymock.Anything, testifymock.Anything).Return(nil)
	newsletterService := new(mock.NewsletterService)
	newsletterService.On("SendConfirmationEmail", testifymock.Anything, testifymock.Anything, testifymock.Anything, testifymock.Anything).Return(nil)
	s.SubscriptionService = subscriptionService
	s.NewsletterService = newsletterService

	// every request comes through the same proxy, which appends the client it saw
	post := func(forwarded string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/subscribe", strings.NewReader(`{"email":"foo@gmail.com"}`))
		req.RemoteAddr = "10.0.0.1:40000"
		req.Header.Set("X-Forwarded-For", forwarded)
		return serve(s, req).Code
	}

	assert.Equal(t, http.StatusOK, post("1.1.1.1, 198.51.100.1"))
	assert.Equal(t, http.StatusOK, post("2.2.2.2, 198.51.100.1"))
	assert.Equal(t, http.StatusTooManyRequests, post("3.3.3.3, 198.51.100.1"))
	assert.Equal(t, http.StatusOK, post("198.51.100.2"))
}

func TestConfirmHandler(t *testing.T) {
	s := newTestServer(t, cfg)
	email := "foo@gmail.com"

	subscriptionService := new(mock.SubscriptionService)
	subscriptionService.On("FindByEmail", testifymock.Anything, email).
		Return(&dailybrief.Subscriber{Email: email, Status: dailybrief.StatusPending, ReferralCode: "AB12CD34"}, nil)
	subscriptionService.On("SetActive", testifymock.Anything, email, testifymock.Anything).Return(true, nil)

	newsletterService := new(mock.NewsletterService)
	newsletterService.On("SendWelcomeEmail", testifymock.Anything, email, testifymock.Anything, siteURL+"?ref=AB12CD34").Return(nil)

	s.SubscriptionService = subscriptionService
	s.NewsletterService = newsletterService

	req := httptest.NewRequest(http.MethodGet, "/api/confirm?token="+makeToken(t, email, token.PurposeConfirm, time.Hour), nil)
	w := serve(s, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, siteURL+"/?subscribed=1", w.Header().Get("Location"))
	subscriptionService.AssertExpectations(t)
	newsletterService.AssertNumberOfCalls(t, "SendWelcomeEmail", 1)
}

func TestConfirmAlreadyActive(t *testing.T) {
	s := newTestServer(t, cfg)
	email := "foo@gmail.com"
	confirmedAt := time.Now().Add(-time.Hour)

	subscriptionService := new(mock.SubscriptionService)
	subscriptionService.On("FindByEmail", testifymock.Anything, email).
		Return(&dailybrief.Subscriber{Email: email, Status: dailybrief.StatusActive, ConfirmedAt: &confirmedAt}, nil)
	newsletterService := new(mock.NewsletterService)

	s.SubscriptionService = subscriptionService
	s.NewsletterService = newsletterService

	w := serve(s, httptest.NewRequest(http.MethodGet, "/api/confirm?token="+makeToken(t, email, token.PurposeConfirm, time.Hour), nil))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, siteURL+"/?subscribed=1", w.Header().Get("Location"))
	subscriptionService.AssertNotCalled(t, "SetActive", testifymock.Anything, testifymock.Anything, testifymock.Anything)
	newsletterService.AssertNotCalled(t, "SendWelcomeEmail", testifymock.Anything, testifymock.Anything, testifymock.Anything, testifymock.Anything)
}

func TestConfirmStoreFailure(t *testing.T) {
	s := newTestServer(t, cfg)
	email := "foo@gmail.com"

	subscriptionService := new(mock.SubscriptionService)
	subscriptionService.On("FindByEmail", testifymock.Anything, email).
		Return(nil, dailybrief.Unavailable("test", errors.New("timeout")))
	subscriptionService.On("SetActive", testifymock.Anything, email, testifymock.Anything).
		Return(false, dailybrief.Unavailable("test", errors.New("timeout")))
	newsletterService := new(mock.NewsletterService)

	s.SubscriptionService = subscriptionService
	s.NewsletterService = newsletterService

	before := testutil.ToFloat64(metrics.ConfirmStoreFailures)
	w := serve(s, httptest.NewRequest(http.MethodGet, "/api/confirm?token="+makeToken(t, email, token.PurposeConfirm, time.Hour), nil))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, siteURL+"/?subscribed=1", w.Header().Get("Location"))
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.ConfirmStoreFailures))
	newsletterService.AssertNotCalled(t, "SendWelcomeEmail", testifymock.Anything, testifymock.Anything, testifymock.Anything, testifymock.Anything)
}

func TestConfirmActivatedElsewhere(t *testing.T) {
	s := newTestServer(t, cfg)
	email := "foo@gmail.com"

	// the read still sees pending, but another request wins the transition
	subscriptionService := new(mock.SubscriptionService)
	subscriptionService.On("FindByEmail", testifymock.Anything, email).
		Return(&dailybrief.Subscriber{Email: email, Status: dailybrief.StatusPending}, nil)
	subscriptionService.On("SetActive", testifymock.Anything, email, testifymock.Anything).Return(false, nil)
	newsletterService := new(mock.NewsletterService)

	s.SubscriptionService = subscriptionService
	s.NewsletterService = newsletterService

	w := serve(s, httptest.NewRequest(http.MethodGet, "/api/confirm?token="+makeToken(t, email, token.PurposeConfirm, time.Hour), nil))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, siteURL+"/?subscribed=1", w.Header().Get("Location"))
	subscriptionService.AssertExpectations(t)
	newsletterService.AssertNotCalled(t, "SendWelcomeEmail", testifymock.Anything, testifymock.Anything, testifymock.Anything, testifymock.Anything)
}

func TestConfirmInvalidToken(t *testing.T) {
	s := newTestServer(t, cfg)
	subscriptionService := new(mock.SubscriptionService)
	newsletterService := new(mock.NewsletterService)
	s.SubscriptionService = subscriptionService
	s.NewsletterService = newsletterService

	valid := makeToken(t, "foo@gmail.com", token.PurposeConfirm, time.Hour)
	for _, tok := range []string{
		"",
		"garbage",
		valid[:len(valid)-2] + "xx",
		makeToken(t, "foo@gmail.com", token.PurposeConfirm, -time.Hour),
		makeToken(t, "foo@gmail.com", token.PurposeUnsubscribe, time.Hour),
	} {
		w := serve(s, httptest.NewRequest(http.MethodGet, "/api/confirm?token="+url.QueryEscape(tok), nil))
		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, siteURL+"/?subscribed=0", w.Header().Get("Location"), tok)
	}

	subscriptionService.AssertNotCalled(t, "FindByEmail", testifymock.Anything, testifymock.Anything)
	newsletterService.AssertNotCalled(t, "SendWelcomeEmail", testifymock.Anything, testifymock.Anything, testifymock.Anything, testifymock.Anything)
}

func TestUnsubscribePage(t *testing.T) {
	s := newTestServer(t, cfg)
	subscriptionService := new(mock.SubscriptionService)
	s.SubscriptionService = subscriptionService

	tok := makeToken(t, "foo@gmail.com", token.PurposeUnsubscribe, time.Hour)
	w := serve(s, httptest.NewRequest(http.MethodGet, "/api/unsubscribe?token="+tok, nil))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, siteURL+"/unsubscribe?token="+url.QueryEscape(tok), w.Header().Get("Location"))

	for _, bad := range []string{
		"",
		"no-dot",
		makeToken(t, "foo@gmail.com", token.PurposeConfirm, time.Hour),
		makeToken(t, "foo@gmail.com", token.PurposeUnsubscribe, -time.Minute),
	} {
		w := serve(s, httptest.NewRequest(http.MethodGet, "/api/unsubscribe?token="+url.QueryEscape(bad), nil))
		assert.Equal(t, siteURL+"/unsubscribe?error=1", w.Header().Get("Location"), bad)
	}

	assert.Empty(t, subscriptionService.Calls)
}

func TestUnsubscribeHandler(t *testing.T) {
	email := "foo@gmail.com"
	tok := makeToken(t, email, token.PurposeUnsubscribe, time.Hour)

	t.Run("with reason", func(t *testing.T) {
		s := newTestServer(t, cfg)
		subscriptionService := new(mock.SubscriptionService)
		subscriptionService.On("SetUnsubscribed", testifymock.Anything, email, testifymock.Anything, "too_frequent", "").Return(nil)
		s.SubscriptionService = subscriptionService

		w := serve(s, httptest.NewRequest(http.MethodPost, "/api/unsubscribe?token="+tok, strings.NewReader(`{"reason":"too_frequent"}`)))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"success":true}`, w.Body.String())
		subscriptionService.AssertExpectations(t)
	})

	t.Run("without body", func(t *testing.T) {
		s := newTestServer(t, cfg)
		subscriptionService := new(mock.SubscriptionService)
		subscriptionService.On("SetUnsubscribed", testifymock.Anything, email, testifymock.Anything, "", "").Return(nil)
		s.SubscriptionService = subscriptionService

		w := serve(s, httptest.NewRequest(http.MethodPost, "/api/unsubscribe?token="+tok, nil))
		assert.Equal(t, http.StatusOK, w.Code)
		subscriptionService.AssertExpectations(t)
	})

	t.Run("unknown subscriber", func(t *testing.T) {
		s := newTestServer(t, cfg)
		subscriptionService := new(mock.SubscriptionService)
		subscriptionService.On("SetUnsubscribed", testifymock.Anything, email, testifymock.Anything, "", "").
			Return(dailybrief.NotFound("test", "subscriber not found"))
		s.SubscriptionService = subscriptionService

		w := serve(s, httptest.NewRequest(http.MethodPost, "/api/unsubscribe?token="+tok, nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("store failure", func(t *testing.T) {
		s := newTestServer(t, cfg)
		subscriptionService := new(mock.SubscriptionService)
		subscriptionService.On("SetUnsubscribed", testifymock.Anything, email, testifymock.Anything, "", "").
			Return(dailybrief.Unavailable("test", errors.New("timeout")))
		s.SubscriptionService = subscriptionService

		w := serve(s, httptest.NewRequest(http.MethodPost, "/api/unsubscribe?token="+tok, nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.JSONEq(t, `{"error":"Failed to unsubscribe"}`, w.Body.String())
	})

	t.Run("invalid token", func(t *testing.T) {
		s := newTestServer(t, cfg)
		subscriptionService := new(mock.SubscriptionService)
		s.SubscriptionService = subscriptionService

		for _, bad := range []string{"", "a.b.c", makeToken(t, email, token.PurposeConfirm, time.Hour)} {
			w := serve(s, httptest.NewRequest(http.MethodPost, "/api/unsubscribe?token="+url.QueryEscape(bad), nil))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.JSONEq(t, `{"error":"Invalid or expired link"}`, w.Body.String())
		}
		assert.Empty(t, subscriptionService.Calls)
	})
}

func TestSendDailyHandler(t *testing.T) {
	report := &dailybrief.DispatchReport{
		OK:              true,
		PublicationDate: "2026-10-19",
		Sent:            2,
		Failed:          1,
		Total:           3,
		Errors:          []dailybrief.DispatchError{{Email: "bad@x.com", Error: "422"}},
	}

	t.Run("unauthorized", func(t *testing.T) {
		s := newTestServer(t, cfg)
		dispatchService := new(mock.DispatchService)
		s.DispatchService = dispatchService

		for _, auth := range []string{"", "cron-secret", "Bearer wrong", "Bearer cron-secret2", "bearer cron-secret"} {
			req := httptest.NewRequest(http.MethodGet, "/api/send-daily", nil)
			if auth != "" {
				req.Header.Set("Authorization", auth)
			}
			w := serve(s, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code, auth)
		}
		assert.Empty(t, dispatchService.Calls)
	})

	t.Run("no secret configured", func(t *testing.T) {
		open := *cfg
		open.Newsletter.Dispatch.Secret = ""
		s := newTestServer(t, &open)
		dispatchService := new(mock.DispatchService)
		s.DispatchService = dispatchService

		req := httptest.NewRequest(http.MethodGet, "/api/send-daily", nil)
		req.Header.Set("Authorization", "Bearer ")
		assert.Equal(t, http.StatusUnauthorized, serve(s, req).Code)
		assert.Empty(t, dispatchService.Calls)
	})

	t.Run("report", func(t *testing.T) {
		s := newTestServer(t, cfg)
		dispatchService := new(mock.DispatchService)
		dispatchService.On("Dispatch", testifymock.Anything).Return(report, nil)
		s.DispatchService = dispatchService

		req := httptest.NewRequest(http.MethodGet, "/api/send-daily", nil)
		req.Header.Set("Authorization", "Bearer cron-secret")
		w := serve(s, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"ok":true,"publication_date":"2026-10-19","sent":2,"failed":1,"total":3,"errors":[{"email":"bad@x.com","error":"422"}]}`, w.Body.String())
	})

	t.Run("no issue", func(t *testing.T) {
		s := newTestServer(t, cfg)
		dispatchService := new(mock.DispatchService)
		dispatchService.On("Dispatch", testifymock.Anything).Return(nil, dailybrief.ErrNoIssueFound)
		s.DispatchService = dispatchService

		req := httptest.NewRequest(http.MethodGet, "/api/send-daily", nil)
		req.Header.Set("Authorization", "Bearer cron-secret")
		w := serve(s, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.JSONEq(t, `{"ok":false,"error":"no newsletter issue found"}`, w.Body.String())
	})
}

func TestTestEmailHandler(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		disabled := *cfg
		disabled.Newsletter.Test.Secret = ""
		s := newTestServer(t, &disabled)
		dispatchService := new(mock.DispatchService)
		s.DispatchService = dispatchService

		w := serve(s, httptest.NewRequest(http.MethodGet, "/api/test-email?to=me@x.com&secret=", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Empty(t, dispatchService.Calls)
	})

	s := newTestServer(t, cfg)
	dispatchService := new(mock.DispatchService)
	dispatchService.On("SendTest", testifymock.Anything, "me@x.com").
		Return(&dailybrief.TestSendResult{EmailID: "re_1", PublicationDate: "2026-10-19", NewsCount: 5}, nil)
	s.DispatchService = dispatchService

	w := serve(s, httptest.NewRequest(http.MethodGet, "/api/test-email?to=me@x.com&secret=wrong", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(s, httptest.NewRequest(http.MethodGet, "/api/test-email?to=nope&secret=test-secret", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(s, httptest.NewRequest(http.MethodGet, "/api/test-email?to=me@x.com&secret=test-secret", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"message":"Test email sent to me@x.com","email_id":"re_1","newsletter":{"date":"2026-10-19","news_count":5}}`, w.Body.String())
	dispatchService.AssertNumberOfCalls(t, "SendTest", 1)
}

func TestResendWebhookHandler(t *testing.T) {
	t.Run("invalid payloads", func(t *testing.T) {
		s := newTestServer(t, cfg)
		eventService := new(mock.EventService)
		s.EventService = eventService

		for _, body := range []string{
			`not json`,
			`{}`,
			`{"type":"email.opened"}`,
			`{"type":"email.opened","data":null}`,
			`{"data":{"to":["a@x.com"]}}`,
		} {
			w := serve(s, httptest.NewRequest(http.MethodPost, "/api/webhooks/resend", strings.NewReader(body)))
			assert.Equal(t, http.StatusBadRequest, w.Code, body)
			assert.JSONEq(t, `{"error":"Invalid payload"}`, w.Body.String(), body)
		}
		assert.Empty(t, eventService.Calls)
	})

	tests := []struct {
		name  string
		body  string
		event dailybrief.Event
	}{
		{
			name:  "object headers",
			body:  `{"type":"email.opened","data":{"to":["A@x.com"],"headers":{"x-entity-ref-id":"2026-10-19"}}}`,
			event: dailybrief.Event{Email: "a@x.com", Type: dailybrief.EventOpened, NewsletterDate: "2026-10-19"},
		},
		{
			name:  "list headers",
			body:  `{"type":"email.bounced","data":{"to":["a@x.com"],"headers":[{"name":"X-Entity-Ref-ID","value":"2026-10-18"}]}}`,
			event: dailybrief.Event{Email: "a@x.com", Type: dailybrief.EventBounced, NewsletterDate: "2026-10-18"},
		},
		{
			name:  "email fallback",
			body:  `{"type":"email.complained","data":{"email":"b@x.com"}}`,
			event: dailybrief.Event{Email: "b@x.com", Type: dailybrief.EventComplained},
		},
		{
			name:  "unknown type",
			body:  `{"type":"email.sent","data":{"to":["a@x.com"]}}`,
			event: dailybrief.Event{Email: "a@x.com", Type: dailybrief.EventType("email.sent")},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, cfg)
			var recorded *dailybrief.Event
			eventService := new(mock.EventService)
			eventService.On("Record", testifymock.Anything, testifymock.Anything).
				Run(func(args testifymock.Arguments) {
					recorded = args.Get(1).(*dailybrief.Event)
				}).
				Return(nil)
			s.EventService = eventService

			w := serve(s, httptest.NewRequest(http.MethodPost, "/api/webhooks/resend", strings.NewReader(tt.body)))
			assert.Equal(t, http.StatusOK, w.Code)
			assert.JSONEq(t, `{"ok":true}`, w.Body.String())

			require.NotNil(t, recorded)
			assert.Equal(t, tt.event.Email, recorded.Email)
			assert.Equal(t, tt.event.Type, recorded.Type)
			assert.Equal(t, tt.event.NewsletterDate, recorded.NewsletterDate)

			var payload struct {
				Data json.RawMessage `json:"data"`
			}
			require.NoError(t, json.Unmarshal([]byte(tt.body), &payload))
			assert.JSONEq(t, string(payload.Data), string(recorded.Metadata))
		})
	}

	t.Run("store failure", func(t *testing.T) {
		s := newTestServer(t, cfg)
		eventService := new(mock.EventService)
		eventService.On("Record", testifymock.Anything, testifymock.Anything).Return(dailybrief.Unavailable("test", errors.New("down")))
		s.EventService = eventService

		w := serve(s, httptest.NewRequest(http.MethodPost, "/api/webhooks/resend", strings.NewReader(`{"type":"email.opened","data":{}}`)))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, cfg)

	w := serve(s, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("Request-Id"))

	w = serve(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "dailybrief_confirm_store_failures_total")
}

func TestServerOpenURL(t *testing.T) {
	local := *cfg
	local.HTTP.Addr = "127.0.0.1:0"
	s := newTestServer(t, &local)
	assert.Equal(t, 0, s.Port())

	require.NoError(t, s.Open())
	defer func() {
		assert.NoError(t, s.Close())
	}()

	port := s.Port()
	require.NotZero(t, port)
	assert.False(t, s.UseTLS())
	assert.Equal(t, fmt.Sprintf("http://localhost:%d", port), s.URL())

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", port))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestServerURLWithDomain(t *testing.T) {
	public := *cfg
	public.HTTP.Domain = "brief.example.com"
	s := newTestServer(t, &public)

	assert.True(t, s.UseTLS())
	assert.Equal(t, "https", s.Scheme())
	assert.Equal(t, "https://brief.example.com", s.URL())
}

package http

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/quantonganh/dailybrief"
)

const (
	shutdownTimeout = 1 * time.Second
)

// Server represents HTTP server
type Server struct {
	ln      net.Listener
	server  *http.Server
	router  *mux.Router
	limiter *ipRateLimiter

	Addr   string
	Domain string

	siteURL        string
	secret         string
	confirmTTL     time.Duration
	unsubscribeTTL time.Duration
	dispatchSecret string
	testSecret     string
	now            func() time.Time

	SubscriptionService dailybrief.SubscriptionService
	NewsletterService   dailybrief.NewsletterService
	EventService        dailybrief.EventService
	DispatchService     dailybrief.DispatchService
}

// NewServer create new HTTP server
func NewServer(config *dailybrief.Config, logger zerolog.Logger) (*Server, error) {
	if config == nil {
		return nil, errors.New("nil config")
	}

	s := &Server{
		server:         &http.Server{ReadHeaderTimeout: 10 * time.Second},
		router:         mux.NewRouter().StrictSlash(true),
		limiter:        newIPRateLimiter(config.RateLimit.SubscribePerMinute, config.RateLimit.BehindProxy),
		Addr:           config.HTTP.Addr,
		Domain:         config.HTTP.Domain,
		siteURL:        config.Site.URL,
		secret:         config.Newsletter.HMAC.Secret,
		confirmTTL:     config.Newsletter.ConfirmTTL,
		unsubscribeTTL: config.Newsletter.UnsubscribeTTL,
		dispatchSecret: config.Newsletter.Dispatch.Secret,
		testSecret:     config.Newsletter.Test.Secret,
		now:            time.Now,
	}

	s.router.Use(hlog.NewHandler(logger))
	s.router.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("")
	}))
	s.router.Use(hlog.UserAgentHandler("user_agent"))
	s.router.Use(hlog.RefererHandler("referer"))
	s.router.Use(hlog.RequestIDHandler("req_id", "Request-Id"))

	sentryHandler := sentryhttp.New(sentryhttp.Options{})
	s.router.Use(sentryHandler.Handle)

	s.server.Handler = http.HandlerFunc(s.serveHTTP)

	s.router.HandleFunc("/health", s.healthCheckHandler)
	s.router.Handle("/metrics", promhttp.Handler())

	api := s.router.PathPrefix("/api").Subrouter()
	api.Handle("/subscribe", s.limiter.Middleware(s.Error(s.subscribeHandler))).Methods(http.MethodPost)
	api.HandleFunc("/confirm", s.confirmHandler).Methods(http.MethodGet)
	api.HandleFunc("/unsubscribe", s.unsubscribePageHandler).Methods(http.MethodGet)
	api.HandleFunc("/unsubscribe", s.Error(s.unsubscribeHandler)).Methods(http.MethodPost)
	api.HandleFunc("/send-daily", s.Error(s.sendDailyHandler)).Methods(http.MethodGet)
	api.HandleFunc("/test-email", s.Error(s.testEmailHandler)).Methods(http.MethodGet)
	api.HandleFunc("/webhooks/resend", s.Error(s.resendWebhookHandler)).Methods(http.MethodPost)

	return s, nil
}

func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Scheme is https when a public domain is configured. TLS is terminated in front of the server.
func (s *Server) Scheme() string {
	if s.UseTLS() {
		return "https"
	}
	return "http"
}

func (s *Server) UseTLS() bool {
	return s.Domain != ""
}

// Port is the bound port, useful when Addr asked for port 0. It is 0 before Open.
func (s *Server) Port() int {
	if s.ln == nil {
		return 0
	}
	addr, ok := s.ln.Addr().(*net.TCPAddr)
	if !ok {
		return 0
	}
	return addr.Port
}

// URL is where the server can be reached: the public domain when configured,
// otherwise localhost on the bound port.
func (s *Server) URL() string {
	if s.UseTLS() {
		return fmt.Sprintf("%s://%s", s.Scheme(), s.Domain)
	}
	return fmt.Sprintf("%s://localhost:%d", s.Scheme(), s.Port())
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Open opens a connection to HTTP server
func (s *Server) Open() (err error) {
	s.ln, err = net.Listen("tcp", s.Addr)
	if err != nil {
		return errors.Errorf("failed to listen to port %s: %v", s.Addr, err)
	}

	go func() {
		_ = s.server.Serve(s.ln)
	}()

	return nil
}

// Close shutdowns HTTP server
func (s *Server) Close() error {
	s.limiter.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}

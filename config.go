package dailybrief

import (
	"strings"
	"time"
)

// Config represents the main config
type Config struct {
	DB struct {
		Type string // "bolt" or "postgres"
		Path string
		URL  string
	}

	HTTP struct {
		Addr   string
		Domain string
	}

	Site struct {
		URL string
	}

	Mail struct {
		Provider string // "resend", "smtp" or "log"
		From     string
		Timeout  time.Duration
		Resend   struct {
			APIKey string
		}
	}

	SMTP struct {
		Host     string
		Port     int
		Username string
		Password string
	}

	Newsletter struct {
		ConfirmTTL     time.Duration
		UnsubscribeTTL time.Duration
		Cron           struct {
			Spec string
		}
		Product struct {
			Name string
		}
		HMAC struct {
			Secret string
		}
		Dispatch struct {
			Secret   string
			Interval time.Duration
		}
		Test struct {
			Secret string
		}
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	RateLimit struct {
		SubscribePerMinute int
		// BehindProxy keys the limiter on the hop appended by the reverse proxy
		// instead of the peer address.
		BehindProxy bool
	}

	Sentry struct {
		DSN string
	}
}

// Defaults applied when the corresponding key is unset.
const (
	DefaultConfirmTTL       = 48 * time.Hour
	DefaultUnsubscribeTTL   = 365 * 24 * time.Hour
	DefaultDispatchInterval = 600 * time.Millisecond
	DefaultMailTimeout      = 10 * time.Second
)

// Validate fails when a required option is missing.
func (c *Config) Validate() error {
	var missing []string

	if c.Newsletter.HMAC.Secret == "" {
		missing = append(missing, "newsletter.hmac.secret")
	}
	if c.Newsletter.Dispatch.Secret == "" {
		missing = append(missing, "newsletter.dispatch.secret")
	}
	if c.Mail.From == "" {
		missing = append(missing, "mail.from")
	}
	if c.Site.URL == "" {
		missing = append(missing, "site.url")
	}

	switch c.Mail.Provider {
	case "", "resend":
		if c.Mail.Resend.APIKey == "" {
			missing = append(missing, "mail.resend.apikey")
		}
	case "smtp":
		if c.SMTP.Host == "" {
			missing = append(missing, "smtp.host")
		}
	case "log":
	default:
		return &Error{Code: ErrInvalid, Op: "config", Message: "unknown mail.provider " + c.Mail.Provider}
	}

	switch c.DB.Type {
	case "", "bolt":
		if c.DB.Path == "" {
			missing = append(missing, "db.path")
		}
	case "postgres":
		if c.DB.URL == "" {
			missing = append(missing, "db.url")
		}
	default:
		return &Error{Code: ErrInvalid, Op: "config", Message: "unknown db.type " + c.DB.Type}
	}

	if len(missing) > 0 {
		return &Error{Code: ErrInvalid, Op: "config", Message: "missing required options: " + strings.Join(missing, ", ")}
	}

	return nil
}

// SetDefaults fills optional durations.
func (c *Config) SetDefaults() {
	if c.Newsletter.ConfirmTTL <= 0 {
		c.Newsletter.ConfirmTTL = DefaultConfirmTTL
	}
	if c.Newsletter.UnsubscribeTTL <= 0 {
		c.Newsletter.UnsubscribeTTL = DefaultUnsubscribeTTL
	}
	if c.Newsletter.Dispatch.Interval <= 0 {
		c.Newsletter.Dispatch.Interval = DefaultDispatchInterval
	}
	if c.Mail.Timeout <= 0 {
		c.Mail.Timeout = DefaultMailTimeout
	}
	if c.Newsletter.Product.Name == "" {
		c.Newsletter.Product.Name = "The Payments Nerd"
	}
	c.Site.URL = strings.TrimRight(c.Site.URL, "/")
}

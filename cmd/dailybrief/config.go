package main

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/quantonganh/dailybrief"
)

// every key gets a default so that AutomaticEnv can override it without a config file
var configDefaults = map[string]interface{}{
	"db.type":                      "bolt",
	"db.path":                      "dailybrief.db",
	"db.url":                       "",
	"http.addr":                    ":8080",
	"http.domain":                  "",
	"site.url":                     "",
	"mail.provider":                "resend",
	"mail.from":                    "",
	"mail.timeout":                 dailybrief.DefaultMailTimeout,
	"mail.resend.apikey":           "",
	"smtp.host":                    "",
	"smtp.port":                    587,
	"smtp.username":                "",
	"smtp.password":                "",
	"newsletter.confirmttl":        dailybrief.DefaultConfirmTTL,
	"newsletter.unsubscribettl":    dailybrief.DefaultUnsubscribeTTL,
	"newsletter.cron.spec":         "",
	"newsletter.product.name":      "The Payments Nerd",
	"newsletter.hmac.secret":       "",
	"newsletter.dispatch.secret":   "",
	"newsletter.dispatch.interval": dailybrief.DefaultDispatchInterval,
	"newsletter.test.secret":       "",
	"redis.addr":                   "",
	"redis.password":               "",
	"redis.db":                     0,
	"ratelimit.subscribeperminute": 5,
	"ratelimit.behindproxy":        false,
	"sentry.dsn":                   "",
}

// loadConfig reads config.yaml from path, or from . and ./config, then applies NEWSLETTER_HMAC_SECRET style env overrides.
func loadConfig(path string) (*dailybrief.Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range configDefaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, errors.Wrap(err, "failed to read config")
		}
	}

	var config *dailybrief.Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}

	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

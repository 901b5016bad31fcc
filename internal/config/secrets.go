package config

import (
	"maps"
	"slices"
)

const redacted = "***"

// RedactedConfig returns a deep-enough copy of cfg that is safe to log:
// credentials are masked and slices and maps are cloned.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	for _, secret := range []*string{
		&out.Exchange.APIKey, &out.Exchange.APISecret,
		&out.Postgres.DSN, &out.Postgres.Password,
		&out.Redis.Password,
		&out.S3.AccessKey, &out.S3.SecretKey,
		&out.Server.APIKey,
		&out.Notify.TelegramToken, &out.Notify.DiscordWebhookURL,
	} {
		if *secret != "" {
			*secret = redacted
		}
	}

	out.Notify.Events = slices.Clone(cfg.Notify.Events)
	out.Server.CORSOrigins = slices.Clone(cfg.Server.CORSOrigins)
	out.Scanner.StaticSymbols = slices.Clone(cfg.Scanner.StaticSymbols)
	out.Strategy.Params = maps.Clone(cfg.Strategy.Params)
	return out
}

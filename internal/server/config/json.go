package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/sonifoy/authsvc/internal/flagx"
	"github.com/sonifoy/authsvc/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations use
// timex.Duration, so both "15m" and integer nanoseconds are accepted.
// Only the keys present in the file override the current values.
type JsonConfig struct {
	HTTPAddr                     *string         `json:"http_addr"`
	DatabaseDSN                  *string         `json:"database_dsn"`
	RedisAddr                    *string         `json:"redis_addr"`
	RedisPassword                *string         `json:"redis_password"`
	RedisDB                      *int            `json:"redis_db"`
	SecretKey                    *string         `json:"secret_key"`
	TokenIssuer                  *string         `json:"token_issuer"`
	AccessTokenValidityDuration  *timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration *timex.Duration `json:"refresh_token_validity_duration"`
	SessionKeyTTL                *timex.Duration `json:"session_key_ttl"`
	SessionKeyPrefix             *string         `json:"session_key_prefix"`
	EventStream                  *string         `json:"event_stream"`
	EventStreamMaxLen            *int64          `json:"event_stream_max_len"`
	BcryptCost                   *int            `json:"bcrypt_cost"`
	Seed                         *bool           `json:"seed"`
	SeedUsers                    *int            `json:"seed_users"`
	SeedBatchSize                *int            `json:"seed_batch_size"`
	ShutdownTimeout              *timex.Duration `json:"shutdown_timeout"`
}

// parseJson loads the file named by -c / -config into config.
// Without the flag nothing is loaded. An unreadable file or invalid JSON
// panics, as a misconfigured server must not start.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setIf(&config.HTTPAddr, c.HTTPAddr)
	setIf(&config.DatabaseDSN, c.DatabaseDSN)
	setIf(&config.RedisAddr, c.RedisAddr)
	setIf(&config.RedisPassword, c.RedisPassword)
	setIf(&config.RedisDB, c.RedisDB)
	setIf(&config.SecretKey, c.SecretKey)
	setIf(&config.TokenIssuer, c.TokenIssuer)
	setDurationIf(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setDurationIf(&config.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration)
	setDurationIf(&config.SessionKeyTTL, c.SessionKeyTTL)
	setIf(&config.SessionKeyPrefix, c.SessionKeyPrefix)
	setIf(&config.EventStream, c.EventStream)
	setIf(&config.EventStreamMaxLen, c.EventStreamMaxLen)
	setIf(&config.BcryptCost, c.BcryptCost)
	setIf(&config.Seed, c.Seed)
	setIf(&config.SeedUsers, c.SeedUsers)
	setIf(&config.SeedBatchSize, c.SeedBatchSize)
	setDurationIf(&config.ShutdownTimeout, c.ShutdownTimeout)
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func setDurationIf(dst *time.Duration, src *timex.Duration) {
	if src != nil {
		*dst = src.Duration
	}
}

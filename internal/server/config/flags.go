package config

import (
	"flag"
	"os"
	"time"

	"github.com/sonifoy/authsvc/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN ("" for in-memory stores)
//	-s string   JWT HMAC secret key
//	-i string   JWT issuer
//	-t int      access token validity, minutes
//	-r int      refresh token validity, minutes
//	-k int      session key TTL, minutes
//	-R string   Redis address
//	-P string   Redis password
//	-n int      Redis database number
//	-e string   Redis stream for identity events
//	-b int      bcrypt cost
//	-seed       seed local identities on start
//
// Duration flags are whole minutes.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:],
		[]string{"-a", "-d", "-s", "-i", "-t", "-r", "-k", "-R", "-P", "-n", "-e", "-b"},
		"-seed",
	)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.TokenIssuer, "i", config.TokenIssuer, "access token issuer")

	accessTokenValidityDuration := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access_token_validity_duration (in minutes)")
	refreshTokenValidityDuration := fs.Int("r", int(config.RefreshTokenValidityDuration.Minutes()), "refresh_token_validity_duration (in minutes)")
	sessionKeyTTL := fs.Int("k", int(config.SessionKeyTTL.Minutes()), "session_key_ttl (in minutes)")

	fs.StringVar(&config.RedisAddr, "R", config.RedisAddr, "redis address")
	fs.StringVar(&config.RedisPassword, "P", config.RedisPassword, "redis password")
	fs.IntVar(&config.RedisDB, "n", config.RedisDB, "redis database")
	fs.StringVar(&config.EventStream, "e", config.EventStream, "event stream name")
	fs.IntVar(&config.BcryptCost, "b", config.BcryptCost, "bcrypt cost")
	fs.BoolVar(&config.Seed, "seed", config.Seed, "seed local identities")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
	config.RefreshTokenValidityDuration = time.Duration(*refreshTokenValidityDuration) * time.Minute
	config.SessionKeyTTL = time.Duration(*sessionKeyTTL) * time.Minute
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

const (
	defaultListenAddr      = "localhost:8080"
	defaultAppName         = "GlucoSnap Auth"
	defaultIssuer          = "https://auth.glucosnap.app"
	defaultAudience        = "glucosnap-api"
	defaultClientID        = "glucosnap-mobile"
	defaultAccessTokenTTL  = time.Hour
	defaultRefreshTokenTTL = 30 * 24 * time.Hour
	defaultEnvironment     = "production"
)

// Config holds everything the auth server needs to run.
type Config struct {
	// Application name, used for the startup banner
	AppName string

	// Address on which the auth service will listen
	ListenAddr string

	// Database to connect to. Empty means in-memory repositories.
	DatabaseDSN string

	// Secret key used to sign access token payloads (HS256)
	SecretKey string

	// Issuer and audience stamped into and required from access tokens
	Issuer   string
	Audience string

	// Client identifier stamped into tokens issued to the mobile app
	ClientID string

	// Google OAuth client IDs accepted for federated sign-in
	GoogleClientIDs []string

	// Google OIDC issuer, overridable for tests
	GoogleIssuer string

	// Token lifetimes
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// Environment ("development" or "production")
	Environment string

	// Logging level (debug, info, warn, error)
	LogLevel string
}

func New() *Config {
	return &Config{
		AppName:         defaultAppName,
		ListenAddr:      defaultListenAddr,
		Issuer:          defaultIssuer,
		Audience:        defaultAudience,
		ClientID:        defaultClientID,
		GoogleIssuer:    "https://accounts.google.com",
		AccessTokenTTL:  defaultAccessTokenTTL,
		RefreshTokenTTL: defaultRefreshTokenTTL,
		Environment:     defaultEnvironment,
		LogLevel:        "info",
	}
}

// LoadDotEnv reads a '.env' file from the working directory, if present.
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		c.LoadEnv(func(key string) string {
			return envMap[key]
		})
		return nil
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) {
	setString := func(o *string) func(value string) {
		return func(value string) {
			if value != "" {
				*o = value
			}
		}
	}
	setDuration := func(o *time.Duration) func(value string) {
		return func(value string) {
			if value == "" {
				return
			}
			if d, err := time.ParseDuration(value); err == nil {
				*o = d
			} else if secs, err := strconv.Atoi(value); err == nil {
				*o = time.Duration(secs) * time.Second
			}
		}
	}
	setList := func(o *[]string) func(value string) {
		return func(value string) {
			if value == "" {
				return
			}
			parts := strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ' ' })
			*o = append((*o)[:0], parts...)
		}
	}

	envMap := map[string]func(string){
		"RUN_ADDRESS":       setString(&c.ListenAddr),
		"DATABASE_URI":      setString(&c.DatabaseDSN),
		"SECRET_KEY":        setString(&c.SecretKey),
		"TOKEN_ISSUER":      setString(&c.Issuer),
		"TOKEN_AUDIENCE":    setString(&c.Audience),
		"CLIENT_ID":         setString(&c.ClientID),
		"GOOGLE_CLIENT_IDS": setList(&c.GoogleClientIDs),
		"GOOGLE_ISSUER":     setString(&c.GoogleIssuer),
		"ACCESS_TOKEN_TTL":  setDuration(&c.AccessTokenTTL),
		"REFRESH_TOKEN_TTL": setDuration(&c.RefreshTokenTTL),
		"ENVIRONMENT":       setString(&c.Environment),
		"LOG_LEVEL":         setString(&c.LogLevel),
	}

	for key, parseFn := range envMap {
		parseFn(getenv(key))
	}
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("glucosnap-auth", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string (empty: in-memory)")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Access token signing key")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (development, production)")
	fs.StringSliceVar(&c.GoogleClientIDs, "google-client-ids", c.GoogleClientIDs, "Google OAuth client IDs accepted for federated sign-in")

	return fs.Parse(args)
}

// Validate checks the parts of the configuration without sane defaults.
func (c *Config) Validate() error {
	if c.SecretKey == "" {
		return errors.New("config: SECRET_KEY is required")
	}
	return nil
}

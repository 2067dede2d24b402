// Package config turns viper settings into the typed configuration the
// service is wired from.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Backends understood by the serve command.
const (
	BackendMemory   = "memory"
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
)

// Config is the resolved service configuration.
type Config struct {
	Backend         string
	MongoURI        string
	MongoDatabase   string
	PostgresURL     string
	JWTSecret       string
	JWTKeys         map[string]string
	JWTActiveKid    string
	JWTTTL          time.Duration
	Port            string
	HTTPPort        string
	PublicURL       string
	RateLimitRPM    int
	TLSCert         string
	TLSKey          string
	RequireTLS      bool
	LogLevel        string
	LogFile         string
	MirrorSummary   bool
	RollbackSignup  bool
	SendRetries     uint64
	ConnectAttempts uint64
}

// SetDefaults registers defaults on v. Call before reading config.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("backend", BackendMemory)
	v.SetDefault("mongodb_database", "chat_db")
	v.SetDefault("jwt_ttl", 24*time.Hour)
	v.SetDefault("port", "50051")
	v.SetDefault("http_port", "8080")
	v.SetDefault("rate_limit_rpm", 10)
	v.SetDefault("log_level", "info")
	v.SetDefault("connect_attempts", 5)
}

// FromViper reads and validates the configuration held by v.
func FromViper(v *viper.Viper) (Config, error) {
	c := Config{
		Backend:         strings.ToLower(strings.TrimSpace(v.GetString("backend"))),
		MongoURI:        v.GetString("mongodb_uri"),
		MongoDatabase:   v.GetString("mongodb_database"),
		PostgresURL:     v.GetString("postgres_url"),
		JWTSecret:       v.GetString("jwt_secret"),
		JWTActiveKid:    v.GetString("jwt_active_kid"),
		JWTTTL:          v.GetDuration("jwt_ttl"),
		Port:            v.GetString("port"),
		HTTPPort:        v.GetString("http_port"),
		PublicURL:       strings.TrimRight(v.GetString("public_url"), "/"),
		RateLimitRPM:    v.GetInt("rate_limit_rpm"),
		TLSCert:         v.GetString("tls_cert"),
		TLSKey:          v.GetString("tls_key"),
		RequireTLS:      v.GetBool("require_tls"),
		LogLevel:        v.GetString("log_level"),
		LogFile:         v.GetString("log_file"),
		MirrorSummary:   v.GetBool("mirror_recipient_summary"),
		RollbackSignup:  v.GetBool("rollback_registration"),
		SendRetries:     uint64(v.GetInt("send_retries")),
		ConnectAttempts: uint64(v.GetInt("connect_attempts")),
	}

	keys, err := ParseJWTKeys(v.GetString("jwt_keys"))
	if err != nil {
		return Config{}, err
	}
	c.JWTKeys = keys

	if len(c.JWTKeys) == 0 && c.JWTSecret == "" {
		return Config{}, fmt.Errorf("either jwt_secret or jwt_keys must be set")
	}
	if len(c.JWTKeys) > 0 {
		if _, ok := c.JWTKeys[c.JWTActiveKid]; !ok {
			return Config{}, fmt.Errorf("jwt_active_kid %q is not one of jwt_keys", c.JWTActiveKid)
		}
	}

	switch c.Backend {
	case BackendMemory:
	case BackendMongo:
		if c.MongoURI == "" {
			return Config{}, fmt.Errorf("mongodb_uri must be set for backend %q", c.Backend)
		}
	case BackendPostgres:
		if c.PostgresURL == "" {
			return Config{}, fmt.Errorf("postgres_url must be set for backend %q", c.Backend)
		}
	default:
		return Config{}, fmt.Errorf("unknown backend %q", c.Backend)
	}

	if c.RequireTLS && (c.TLSCert == "" || c.TLSKey == "") {
		return Config{}, fmt.Errorf("require_tls is true but tls_cert/tls_key are not configured")
	}
	if c.RateLimitRPM <= 0 {
		c.RateLimitRPM = 10
	}
	if c.PublicURL == "" {
		c.PublicURL = "http://localhost:" + c.HTTPPort
	}
	return c, nil
}

// ParseJWTKeys parses "kid:secret,kid2:secret2". Empty input yields nil.
func ParseJWTKeys(s string) (map[string]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	keyMap := map[string]string{}
	for _, p := range strings.Split(s, ",") {
		if p == "" {
			continue
		}
		parts := strings.SplitN(p, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid jwt_keys entry: %s", p)
		}
		keyMap[parts[0]] = parts[1]
	}
	return keyMap, nil
}

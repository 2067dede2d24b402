package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func newViper(settings map[string]any) *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	for k, val := range settings {
		v.Set(k, val)
	}
	return v
}

func TestFromViperDefaults(t *testing.T) {
	c, err := FromViper(newViper(map[string]any{"jwt_secret": "s"}))
	if err != nil {
		t.Fatalf("FromViper failed: %v", err)
	}
	if c.Backend != BackendMemory || c.Port != "50051" || c.JWTTTL != 24*time.Hour {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if c.PublicURL != "http://localhost:8080" {
		t.Fatalf("unexpected public url %q", c.PublicURL)
	}
}

func TestFromViperRequiresSecret(t *testing.T) {
	if _, err := FromViper(newViper(nil)); err == nil {
		t.Fatal("expected error without jwt_secret or jwt_keys")
	}
}

func TestFromViperBackendChecks(t *testing.T) {
	if _, err := FromViper(newViper(map[string]any{"jwt_secret": "s", "backend": "mongo"})); err == nil {
		t.Fatal("expected error for mongo backend without uri")
	}
	if _, err := FromViper(newViper(map[string]any{"jwt_secret": "s", "backend": "cassandra"})); err == nil {
		t.Fatal("expected error for unknown backend")
	}
	c, err := FromViper(newViper(map[string]any{"jwt_secret": "s", "backend": "Postgres", "postgres_url": "postgres://x"}))
	if err != nil || c.Backend != BackendPostgres {
		t.Fatalf("expected postgres backend, got %+v err=%v", c, err)
	}
}

func TestParseJWTKeys(t *testing.T) {
	keys, err := ParseJWTKeys("k1:one,k2:two:with-colon")
	if err != nil {
		t.Fatalf("ParseJWTKeys failed: %v", err)
	}
	if keys["k1"] != "one" || keys["k2"] != "two:with-colon" {
		t.Fatalf("unexpected keys: %v", keys)
	}
	if _, err := ParseJWTKeys("broken"); err == nil {
		t.Fatal("expected error for entry without colon")
	}

	_, err = FromViper(newViper(map[string]any{"jwt_keys": "k1:one", "jwt_active_kid": "k9"}))
	if err == nil {
		t.Fatal("expected error when active kid is missing from keys")
	}
}

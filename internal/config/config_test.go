package config

import (
	"testing"
	"time"
)

func validBase() Config {
	return Config{
		App:    AppConfig{Env: "local", Port: 8080},
		DB:     DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "dialer", SSLMode: ""},
		Redis:  RedisConfig{Host: "localhost", Port: 6379},
		Auth:   AuthConfig{JWTSecret: "secret"},
		Switch: SwitchConfig{WSURL: "ws://localhost:8081/socket"},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validBase()
	c.App.Env = "production"
	c.Auth.JWTIssuer = "issuer"
	c.Auth.JWTAudience = "aud"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalDefaultsSSLMode(t *testing.T) {
	c := validBase()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
}

func TestValidate_RequiresSwitchURL(t *testing.T) {
	c := validBase()
	c.Switch.WSURL = ""
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for missing SWITCH_WS_URL")
	}
}

func TestValidate_AppliesDialerDefaults(t *testing.T) {
	c := validBase()
	if err := c.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	d := c.Dialer
	if d.CycleInterval != 500*time.Millisecond {
		t.Fatalf("cycle interval default %v", d.CycleInterval)
	}
	if d.SafeHarborWindow != 2000*time.Millisecond {
		t.Fatalf("safe-harbor default %v", d.SafeHarborWindow)
	}
	if d.AnnouncementGrace != 1500*time.Millisecond {
		t.Fatalf("announcement grace default %v", d.AnnouncementGrace)
	}
	if d.MaxAttemptsPerLeadDay != 8 {
		t.Fatalf("attempt cap default %d", d.MaxAttemptsPerLeadDay)
	}
	if d.DIDDailyCap != 300 {
		t.Fatalf("did cap default %d", d.DIDDailyCap)
	}
	if d.TargetOccupancy != 0.85 {
		t.Fatalf("occupancy default %v", d.TargetOccupancy)
	}
	if c.Switch.DefaultGateway != "default_gw" {
		t.Fatalf("default gateway %q", c.Switch.DefaultGateway)
	}
}

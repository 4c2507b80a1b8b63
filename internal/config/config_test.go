package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yml"), []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return dir
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.HTTP.Port != "3000" {
		t.Errorf("http.port: want 3000, got %q", cfg.HTTP.Port)
	}
	if cfg.Serial.Port != "/dev/ttyUSB0" || cfg.Serial.BaudRate != 9600 {
		t.Errorf("serial defaults: got %+v", cfg.Serial)
	}
	if cfg.Ingest.MaxHistory != 500 || !cfg.Ingest.LegacyJSON {
		t.Errorf("ingest defaults: got %+v", cfg.Ingest)
	}
	if cfg.Persistence.BackupInterval != time.Hour || cfg.Persistence.RetentionDays != 30 {
		t.Errorf("persistence defaults: got %+v", cfg.Persistence)
	}
	if cfg.Serial.ReconnectInterval != 5*time.Second {
		t.Errorf("reconnect interval: got %s", cfg.Serial.ReconnectInterval)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := writeConfig(t, `
http:
  port: "8088"
serial:
  port: tcp://127.0.0.1:7000
ingest:
  max_history: 50
  timezone: UTC
persistence:
  driver: sqlite
  backup_interval: 15m
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.Port != "8088" || cfg.Serial.Port != "tcp://127.0.0.1:7000" {
		t.Errorf("file values not applied: %+v %+v", cfg.HTTP, cfg.Serial)
	}
	if cfg.Ingest.MaxHistory != 50 || cfg.Persistence.Driver != "sqlite" {
		t.Errorf("file values not applied: %+v %+v", cfg.Ingest, cfg.Persistence)
	}
	if cfg.Persistence.BackupInterval != 15*time.Minute {
		t.Errorf("backup interval: want 15m, got %s", cfg.Persistence.BackupInterval)
	}
	loc, err := cfg.Location()
	if err != nil || loc.String() != "UTC" {
		t.Errorf("location: got %v, %v", loc, err)
	}
}

func TestLoad_LegacyEnvNames(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("SERIAL_PORT", "/dev/ttyAMA0")
	t.Setenv("BAUD_RATE", "115200")
	t.Setenv("MAX_HISTORY", "1000")
	t.Setenv("BACKUP_INTERVAL", "60000")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.Port != "9090" {
		t.Errorf("PORT not applied: %q", cfg.HTTP.Port)
	}
	if cfg.Serial.Port != "/dev/ttyAMA0" || cfg.Serial.BaudRate != 115200 {
		t.Errorf("serial env not applied: %+v", cfg.Serial)
	}
	if cfg.Ingest.MaxHistory != 1000 {
		t.Errorf("MAX_HISTORY not applied: %d", cfg.Ingest.MaxHistory)
	}
	if cfg.Persistence.BackupInterval != time.Minute {
		t.Errorf("BACKUP_INTERVAL in ms: want 1m, got %s", cfg.Persistence.BackupInterval)
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{name: "bad driver", body: "persistence:\n  driver: postgres\n", want: "persistence.driver"},
		{name: "auth without key", body: "auth:\n  enabled: true\n", want: "signing_key"},
		{name: "unknown timezone", body: "ingest:\n  timezone: Mars/Olympus\n", want: "timezone"},
		{name: "zero history", body: "ingest:\n  max_history: 0\n", want: "max_history"},
		{name: "bad interval", body: "persistence:\n  backup_interval: soon\n", want: "backup_interval"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("want error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestParseInterval(t *testing.T) {
	t.Parallel()

	cases := map[string]time.Duration{
		"3600000": time.Hour,
		"90s":     90 * time.Second,
		" 2h ":    2 * time.Hour,
	}
	for in, want := range cases {
		got, err := parseInterval(in)
		if err != nil || got != want {
			t.Errorf("parseInterval(%q) = %s, %v; want %s", in, got, err, want)
		}
	}
}

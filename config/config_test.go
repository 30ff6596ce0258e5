package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.HTTPPort != "6000" || c.Store.Driver != DriverPostgres || c.Store.Timeout != 10*time.Second {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	want := "host=localhost port=5432 user=postgres password=postgrespassword dbname=ccp_production sslmode=disable"
	if got := c.GetDSN(); got != want {
		t.Fatalf("dsn = %q, want %q", got, want)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.yaml")
	body := `
plant_id: bangna
http_port: "7000"
store:
  driver: badger
  timeout: 3s
badger:
  path: /var/lib/ccp
database:
  host: db.internal
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CCP_HTTP_PORT", "7100")
	t.Setenv("CCP_DATABASE_NAME", "plant_bangna")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.PlantID != "bangna" || c.Store.Driver != DriverBadger || c.Badger.Path != "/var/lib/ccp" {
		t.Fatalf("file values not applied: %+v", c)
	}
	if c.Store.Timeout != 3*time.Second {
		t.Fatalf("expected 3s timeout, got %s", c.Store.Timeout)
	}
	if c.HTTPPort != "7100" {
		t.Fatalf("environment should override the file, got port %s", c.HTTPPort)
	}
	if c.Database.Host != "db.internal" || c.Database.Name != "plant_bangna" {
		t.Fatalf("unexpected database config: %+v", c.Database)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown driver", func(c *Config) { c.Store.Driver = "sqlite" }, "unknown store.driver"},
		{"badger without path", func(c *Config) { c.Store.Driver = DriverBadger; c.Badger.Path = "" }, "badger.path"},
		{"negative timeout", func(c *Config) { c.Store.Timeout = -time.Second }, "store.timeout"},
		{"no plant", func(c *Config) { c.PlantID = "" }, "plant_id"},
		{"memory needs nothing", func(c *Config) { c.Store.Driver = DriverMemory; c.Database = DatabaseConfig{} }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Load("")
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			tt.mutate(c)
			err = c.Validate()
			if tt.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

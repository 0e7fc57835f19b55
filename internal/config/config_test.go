package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Apify.ActorID != DefaultActorID {
		t.Errorf("expected default actor ID %s, got %s", DefaultActorID, cfg.Apify.ActorID)
	}
	if cfg.Apify.TotalRecords != 200 {
		t.Errorf("expected 200 default records, got %d", cfg.Apify.TotalRecords)
	}
	if cfg.Session.StalenessDays != 30 {
		t.Errorf("expected 30 staleness days, got %d", cfg.Session.StalenessDays)
	}
	if cfg.Output.FilePrefix != "apollo_contacts" {
		t.Errorf("unexpected file prefix: %s", cfg.Output.FilePrefix)
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}

	cfg.LLM.Provider = "nonexistent"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for invalid provider")
	}

	cfg = DefaultConfig()
	cfg.Apify.TotalRecords = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero records")
	}

	cfg = DefaultConfig()
	cfg.Apify.TotalRecords = 100000
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for excessive records")
	}
}

func TestConfig_RequireLLM(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.APIKey = ""
	if err := cfg.RequireLLM(); err == nil {
		t.Error("expected error without API key")
	}
	cfg.LLM.APIKey = "sk-test"
	if err := cfg.RequireLLM(); err != nil {
		t.Errorf("unexpected error with API key: %v", err)
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing config file should not error: %v", err)
	}
	if cfg.Name != "prospectpipe" {
		t.Errorf("expected default name, got %s", cfg.Name)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte("apify:\n  total_records: 500\nbrowser:\n  headless: true\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Apify.TotalRecords != 500 {
		t.Errorf("expected 500 records from file, got %d", cfg.Apify.TotalRecords)
	}
	if !cfg.Browser.Headless {
		t.Error("expected headless from file")
	}
	// Untouched sections keep defaults
	if cfg.Session.StalenessDays != 30 {
		t.Errorf("expected default staleness, got %d", cfg.Session.StalenessDays)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("APIFY_TOKEN", "tok_test")
	t.Setenv("APIFY_TOTAL_RECORDS", "321")
	t.Setenv("APOLLO_HEADLESS", "true")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Apify.Token != "tok_test" {
		t.Errorf("expected token from env, got %q", cfg.Apify.Token)
	}
	if cfg.Apify.TotalRecords != 321 {
		t.Errorf("expected 321 from env, got %d", cfg.Apify.TotalRecords)
	}
	if !cfg.Browser.Headless {
		t.Error("expected headless from env")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "config.yaml")

	cfg := DefaultConfig()
	cfg.Apify.TotalRecords = 777
	if err := cfg.Save(path); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Apify.TotalRecords != 777 {
		t.Errorf("round trip lost records value: %d", loaded.Apify.TotalRecords)
	}
}

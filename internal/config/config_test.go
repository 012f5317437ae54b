package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PD_CONFIG_PATH", filepath.Join(t.TempDir(), "missing.json"))
	t.Setenv("LINEAR_API_KEY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"Todo", "In Progress", "Review", "Done"}
	if diff := cmp.Diff(want, cfg.KanbanStatuses); diff != "" {
		t.Errorf("KanbanStatuses mismatch (-want +got):\n%s", diff)
	}
	if cfg.PointsStep != 1 || cfg.PointsMax != 13 {
		t.Errorf("points = %d/%d, want 1/13", cfg.PointsStep, cfg.PointsMax)
	}
	if cfg.DBPath != "projectdash.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.HasCredential() {
		t.Error("HasCredential true without LINEAR_API_KEY")
	}
	if cfg.Source != "defaults/env" {
		t.Errorf("Source = %q", cfg.Source)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projectdash.config.json")
	contents := `{
		"kanban_statuses": ["Backlog", "Doing", "Shipped"],
		"linear_status_mappings": {" Doing ": "s-doing", "SHIPPED": "Done state", "": "ignored", "empty": ""},
		"points_step": 2,
		"points_max": 21,
		"seed_mock_data": true,
		"db_path": "custom.db"
	}`
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("PD_CONFIG_PATH", path)
	t.Setenv("LINEAR_API_KEY", "lin_api_test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff([]string{"Backlog", "Doing", "Shipped"}, cfg.KanbanStatuses); diff != "" {
		t.Errorf("KanbanStatuses mismatch (-want +got):\n%s", diff)
	}
	wantMappings := map[string]string{"doing": "s-doing", "shipped": "Done state"}
	if diff := cmp.Diff(wantMappings, cfg.StatusMappings); diff != "" {
		t.Errorf("StatusMappings mismatch (-want +got):\n%s", diff)
	}
	if cfg.PointsStep != 2 || cfg.PointsMax != 21 {
		t.Errorf("points = %d/%d, want 2/21", cfg.PointsStep, cfg.PointsMax)
	}
	if !cfg.SeedMockData {
		t.Error("SeedMockData not read from file")
	}
	if cfg.DBPath != "custom.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if !cfg.HasCredential() {
		t.Error("HasCredential false with LINEAR_API_KEY set")
	}
	if cfg.Source != path {
		t.Errorf("Source = %q, want %q", cfg.Source, path)
	}
}

func TestLoadMalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projectdash.config.json")
	if err := os.WriteFile(path, []byte(`{"kanban_statuses": [`), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("PD_CONFIG_PATH", path)

	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed config file")
	}
}

func TestEnvOverridesDefaults(t *testing.T) {
	t.Setenv("PD_CONFIG_PATH", filepath.Join(t.TempDir(), "missing.json"))
	t.Setenv("PD_POINTS_MAX", "8")
	t.Setenv("PD_DB_PATH", "env.db")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PointsMax != 8 {
		t.Errorf("PointsMax = %d, want 8 from env", cfg.PointsMax)
	}
	if cfg.DBPath != "env.db" {
		t.Errorf("DBPath = %q, want env.db", cfg.DBPath)
	}
}

func TestNormalizeClamps(t *testing.T) {
	cfg := Config{
		KanbanStatuses:      nil,
		PointsStep:          0,
		PointsMax:           -5,
		WorkloadBarWidth:    1,
		TimelineHorizonDays: 2,
		UserCapacityOverrides: map[string]int{
			"alice": 0,
			"bob":   12,
		},
	}
	cfg.normalize(Default())

	if len(cfg.KanbanStatuses) == 0 {
		t.Error("empty KanbanStatuses not replaced with defaults")
	}
	if cfg.PointsStep != 1 || cfg.PointsMax != 1 {
		t.Errorf("points clamped to %d/%d, want 1/1", cfg.PointsStep, cfg.PointsMax)
	}
	if cfg.WorkloadBarWidth != 5 {
		t.Errorf("WorkloadBarWidth = %d, want clamp to 5", cfg.WorkloadBarWidth)
	}
	if cfg.TimelineHorizonDays != 7 {
		t.Errorf("TimelineHorizonDays = %d, want clamp to 7", cfg.TimelineHorizonDays)
	}
	if cfg.UserCapacityOverrides["alice"] != 1 || cfg.UserCapacityOverrides["bob"] != 12 {
		t.Errorf("overrides = %v", cfg.UserCapacityOverrides)
	}
	if cfg.DBPath != "projectdash.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
}

func TestStatusMappingLookupIsCaseInsensitive(t *testing.T) {
	cfg := Default()
	cfg.StatusMappings = map[string]string{"in progress": "s2"}

	for _, status := range []string{"in progress", "In Progress", " IN PROGRESS "} {
		mapped, ok := cfg.StatusMapping(status)
		if !ok || mapped != "s2" {
			t.Errorf("StatusMapping(%q) = %q, %v", status, mapped, ok)
		}
	}
	if _, ok := cfg.StatusMapping("done"); ok {
		t.Error("unexpected mapping for done")
	}
}

// Package config resolves the application settings consumed by the engine.
//
// Settings come from three layers, lowest precedence first: built-in
// defaults, PD_* environment variables, and an optional config file
// (projectdash.config.json or .yaml, overridable via PD_CONFIG_PATH).
// The result is a passive value object; nothing re-reads configuration
// after Load.
package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// DefaultConfigFile is the config file looked for when PD_CONFIG_PATH is
// not set.
const DefaultConfigFile = "projectdash.config.json"

// Config is the resolved settings object.
type Config struct {
	// KanbanStatuses is the ordered status cycle used by status mutations.
	KanbanStatuses []string `mapstructure:"kanban_statuses"`

	// StatusMappings maps a normalized (lowercased) logical status name to
	// a remote workflow-state id or state name override.
	StatusMappings map[string]string `mapstructure:"linear_status_mappings"`

	SprintOverflowColumnLabel string   `mapstructure:"sprint_overflow_column_label"`
	ActiveStatuses            []string `mapstructure:"active_statuses"`
	DoneStatuses              []string `mapstructure:"done_statuses"`

	DefaultUserCapacityPoints int            `mapstructure:"default_user_capacity_points"`
	WorkloadWarningPct        int            `mapstructure:"workload_warning_pct"`
	WorkloadCriticalPct       int            `mapstructure:"workload_critical_pct"`
	WorkloadBarWidth          int            `mapstructure:"workload_bar_width"`
	WorkloadIssuePreviewLimit int            `mapstructure:"workload_issue_preview_limit"`
	TimelineHorizonDays       int            `mapstructure:"timeline_horizon_days"`
	TimelineMaxProjects       int            `mapstructure:"timeline_max_projects"`
	UserCapacityOverrides     map[string]int `mapstructure:"user_capacity_overrides"`

	// SeedMockData enables seeding demo data into an empty replica.
	SeedMockData bool `mapstructure:"seed_mock_data"`

	// PointsStep and PointsMax drive the estimate cycle: points advance by
	// PointsStep and wrap to 0 past PointsMax.
	PointsStep int `mapstructure:"points_step"`
	PointsMax  int `mapstructure:"points_max"`

	// DBPath is the location of the local replica database.
	DBPath string `mapstructure:"db_path"`

	// APIKey is the remote tracker credential (LINEAR_API_KEY). Empty
	// means no credential is configured; syncs fail fast in that case.
	APIKey string `mapstructure:"-"`

	// Source records where the settings came from, for diagnostics.
	Source string `mapstructure:"-"`
}

// Default returns the built-in settings with no env or file applied.
func Default() Config {
	return Config{
		KanbanStatuses:            []string{"Todo", "In Progress", "Review", "Done"},
		StatusMappings:            map[string]string{},
		SprintOverflowColumnLabel: "Other",
		ActiveStatuses:            []string{"In Progress", "Review"},
		DoneStatuses:              []string{"Done"},
		DefaultUserCapacityPoints: 10,
		WorkloadWarningPct:        70,
		WorkloadCriticalPct:       80,
		WorkloadBarWidth:          10,
		WorkloadIssuePreviewLimit: 3,
		TimelineHorizonDays:       30,
		TimelineMaxProjects:       6,
		UserCapacityOverrides:     map[string]int{},
		SeedMockData:              false,
		PointsStep:                1,
		PointsMax:                 13,
		DBPath:                    "projectdash.db",
		Source:                    "defaults/env",
	}
}

// Load resolves the settings from defaults, environment, and the config
// file. A missing config file is not an error; a malformed one is.
func Load() (Config, error) {
	v := viper.New()

	defaults := Default()
	v.SetDefault("kanban_statuses", defaults.KanbanStatuses)
	v.SetDefault("linear_status_mappings", defaults.StatusMappings)
	v.SetDefault("sprint_overflow_column_label", defaults.SprintOverflowColumnLabel)
	v.SetDefault("active_statuses", defaults.ActiveStatuses)
	v.SetDefault("done_statuses", defaults.DoneStatuses)
	v.SetDefault("default_user_capacity_points", defaults.DefaultUserCapacityPoints)
	v.SetDefault("workload_warning_pct", defaults.WorkloadWarningPct)
	v.SetDefault("workload_critical_pct", defaults.WorkloadCriticalPct)
	v.SetDefault("workload_bar_width", defaults.WorkloadBarWidth)
	v.SetDefault("workload_issue_preview_limit", defaults.WorkloadIssuePreviewLimit)
	v.SetDefault("timeline_horizon_days", defaults.TimelineHorizonDays)
	v.SetDefault("timeline_max_projects", defaults.TimelineMaxProjects)
	v.SetDefault("user_capacity_overrides", defaults.UserCapacityOverrides)
	v.SetDefault("seed_mock_data", defaults.SeedMockData)
	v.SetDefault("points_step", defaults.PointsStep)
	v.SetDefault("points_max", defaults.PointsMax)
	v.SetDefault("db_path", defaults.DBPath)

	v.SetEnvPrefix("PD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	source := defaults.Source
	path := os.Getenv("PD_CONFIG_PATH")
	if path == "" {
		path = DefaultConfigFile
	}
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
		source = path
	}

	cfg := Config{}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	cfg.APIKey = os.Getenv("LINEAR_API_KEY")
	cfg.Source = source
	cfg.normalize(defaults)
	return cfg, nil
}

// normalize clamps numeric settings and canonicalizes the status mapping
// keys so lookups are case-insensitive.
func (c *Config) normalize(defaults Config) {
	if len(c.KanbanStatuses) == 0 {
		c.KanbanStatuses = defaults.KanbanStatuses
	}

	mappings := make(map[string]string, len(c.StatusMappings))
	for key, value := range c.StatusMappings {
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		mappings[key] = value
	}
	c.StatusMappings = mappings

	if strings.TrimSpace(c.SprintOverflowColumnLabel) == "" {
		c.SprintOverflowColumnLabel = defaults.SprintOverflowColumnLabel
	}
	c.DefaultUserCapacityPoints = atLeast(c.DefaultUserCapacityPoints, 1)
	c.WorkloadWarningPct = atLeast(c.WorkloadWarningPct, 1)
	c.WorkloadCriticalPct = atLeast(c.WorkloadCriticalPct, 1)
	c.WorkloadBarWidth = atLeast(c.WorkloadBarWidth, 5)
	c.WorkloadIssuePreviewLimit = atLeast(c.WorkloadIssuePreviewLimit, 1)
	c.TimelineHorizonDays = atLeast(c.TimelineHorizonDays, 7)
	c.TimelineMaxProjects = atLeast(c.TimelineMaxProjects, 1)
	c.PointsStep = atLeast(c.PointsStep, 1)
	c.PointsMax = atLeast(c.PointsMax, 1)
	if c.UserCapacityOverrides == nil {
		c.UserCapacityOverrides = map[string]int{}
	}
	for user, capacity := range c.UserCapacityOverrides {
		c.UserCapacityOverrides[user] = atLeast(capacity, 1)
	}
	if strings.TrimSpace(c.DBPath) == "" {
		c.DBPath = defaults.DBPath
	}
}

// StatusMapping returns the configured override for a logical status, if
// any. Lookup is case-insensitive.
func (c *Config) StatusMapping(status string) (string, bool) {
	mapped, ok := c.StatusMappings[strings.ToLower(strings.TrimSpace(status))]
	return mapped, ok
}

// HasCredential reports whether a remote API key is configured.
func (c *Config) HasCredential() bool {
	return c.APIKey != ""
}

func atLeast(value, minimum int) int {
	if value < minimum {
		return minimum
	}
	return value
}

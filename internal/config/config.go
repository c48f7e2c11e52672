package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"chronicreport/internal/domain"
)

var ErrInvalidConfig = errors.New("invalid configuration")

const (
	BackendSQLite = "sqlite"
	BackendFiles  = "files"
)

type Config struct {
	ConsistentThreshold int               `yaml:"consistent_threshold"`
	CoreThresholds      domain.Thresholds `yaml:"core_thresholds"`
	TrendThresholds     domain.Thresholds `yaml:"trend_thresholds"`
	ExcludeRegional     bool              `yaml:"exclude_regional"`
	ShowIndicators      bool              `yaml:"show_indicators"`

	TopN         int     `yaml:"top_n"`
	WindowMonths int     `yaml:"window_months"`
	DaysPerMonth float64 `yaml:"days_per_month"`

	TestCircuitPrefix  string `yaml:"test_circuit_prefix"`
	TestVendorMarker   string `yaml:"test_vendor_marker"`
	MediaPattern       string `yaml:"media_pattern"`
	PlaceholderPattern string `yaml:"placeholder_pattern"`

	ImpactsPath     string `yaml:"impacts_path"`
	CountsPath      string `yaml:"counts_path"`
	RosterPath      string `yaml:"roster_path"`
	OutputDir       string `yaml:"output_dir"`
	SnapshotBackend string `yaml:"snapshot_backend"`
	SnapshotDir     string `yaml:"snapshot_dir"`
	DBPath          string `yaml:"db_path"`

	SlackBotToken       string `yaml:"slack_bot_token"`
	SlackChannelID      string `yaml:"slack_channel_id"`
	AnthropicAPIKey     string `yaml:"anthropic_api_key"`
	LLMModel            string `yaml:"llm_model"`
	LLMGlossaryPath     string `yaml:"llm_glossary_path"`
	MetricsTextfilePath string `yaml:"metrics_textfile_path"`

	ExternalHTTPTimeoutSeconds int `yaml:"external_http_timeout_seconds"`

	Schedule string `yaml:"schedule"`
	Timezone string `yaml:"timezone"`

	Location *time.Location `yaml:"-"` // computed from Timezone, not from YAML
}

// Defaults returns the configuration used when neither the file nor the
// environment sets a value.
func Defaults() Config {
	return Config{
		ConsistentThreshold:        6,
		CoreThresholds:             domain.DefaultCoreThresholds(),
		TrendThresholds:            domain.DefaultTrendThresholds(),
		ShowIndicators:             true,
		TopN:                       5,
		WindowMonths:               3,
		DaysPerMonth:               30.44,
		TestCircuitPrefix:          "CID_TEST",
		TestVendorMarker:           "test",
		MediaPattern:               `^VID-\d+`,
		PlaceholderPattern:         `^CIRCUIT_[A-Z]+$`,
		OutputDir:                  "./final_output",
		SnapshotBackend:            BackendSQLite,
		DBPath:                     "./chronic.db",
		LLMModel:                   "claude-sonnet-4-5",
		ExternalHTTPTimeoutSeconds: 90,
		Schedule:                   "0 6 2 * *",
		Timezone:                   "Local",
	}
}

// LoadConfig is Load for the process entry point: any error is fatal.
func LoadConfig() Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("%v", err)
	}
	return cfg
}

// Load reads config.yaml (or CONFIG_PATH), applies environment overrides on
// top and validates the result.
func Load() (Config, error) {
	cfg := Defaults()

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	add(envOverrideInt(&cfg.ConsistentThreshold, "MR_CONSISTENT_THRESHOLD"))
	add(envOverrideThresholds(&cfg.CoreThresholds, "MR_CORE_THRESH_"))
	// Older deployments set the availability gate with this name.
	add(envOverrideFloat(&cfg.CoreThresholds.AvailabilityPct, "MR_THRESH_AVAIL_PCT"))
	add(envOverrideThresholds(&cfg.TrendThresholds, "MR_TREND_THRESH_"))
	add(envOverrideBool(&cfg.ExcludeRegional, "MR_EXCLUDE_REGIONAL"))
	add(envOverrideBool(&cfg.ShowIndicators, "MR_SHOW_INDICATORS"))
	add(envOverrideInt(&cfg.TopN, "MR_TOP_N"))
	add(envOverrideInt(&cfg.WindowMonths, "MR_WINDOW_MONTHS"))
	add(envOverrideFloat(&cfg.DaysPerMonth, "MR_DAYS_PER_MONTH"))
	envOverride(&cfg.TestCircuitPrefix, "MR_TEST_CIRCUIT_PREFIX")
	envOverride(&cfg.TestVendorMarker, "MR_TEST_VENDOR_MARKER")
	envOverride(&cfg.MediaPattern, "MR_MEDIA_PATTERN")
	envOverride(&cfg.PlaceholderPattern, "MR_PLACEHOLDER_PATTERN")
	envOverride(&cfg.ImpactsPath, "IMPACTS_PATH")
	envOverride(&cfg.CountsPath, "COUNTS_PATH")
	envOverrideAllowEmpty(&cfg.RosterPath, "ROSTER_PATH")
	envOverride(&cfg.OutputDir, "OUTPUT_DIR")
	envOverride(&cfg.SnapshotBackend, "SNAPSHOT_BACKEND")
	envOverride(&cfg.SnapshotDir, "SNAPSHOT_DIR")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackChannelID, "SLACK_CHANNEL_ID")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverride(&cfg.LLMGlossaryPath, "LLM_GLOSSARY_PATH")
	envOverride(&cfg.MetricsTextfilePath, "METRICS_TEXTFILE_PATH")
	add(envOverrideInt(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS"))
	envOverride(&cfg.Schedule, "SCHEDULE")
	envOverride(&cfg.Timezone, "TIMEZONE")

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}

	if cfg.SnapshotDir == "" {
		cfg.SnapshotDir = filepath.Join(cfg.OutputDir, "snapshots")
	}
	cfg.SnapshotBackend = strings.ToLower(strings.TrimSpace(cfg.SnapshotBackend))

	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ConsistentThreshold < 1 {
		return fmt.Errorf("consistent_threshold must be >= 1, got %d", c.ConsistentThreshold)
	}
	if err := c.CoreThresholds.Validate(); err != nil {
		return fmt.Errorf("core_thresholds: %v", err)
	}
	if err := c.TrendThresholds.Validate(); err != nil {
		return fmt.Errorf("trend_thresholds: %v", err)
	}
	if c.TopN < 1 {
		return fmt.Errorf("top_n must be >= 1, got %d", c.TopN)
	}
	if c.WindowMonths < 1 {
		return fmt.Errorf("window_months must be >= 1, got %d", c.WindowMonths)
	}
	if c.DaysPerMonth <= 0 {
		return fmt.Errorf("days_per_month must be > 0, got %v", c.DaysPerMonth)
	}
	for name, pattern := range map[string]string{
		"media_pattern":       c.MediaPattern,
		"placeholder_pattern": c.PlaceholderPattern,
	} {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("%s %q: %v", name, pattern, err)
		}
	}
	if c.ExternalHTTPTimeoutSeconds < 5 {
		return fmt.Errorf("external_http_timeout_seconds must be >= 5, got %d", c.ExternalHTTPTimeoutSeconds)
	}
	switch c.SnapshotBackend {
	case BackendSQLite, BackendFiles:
	default:
		return fmt.Errorf("snapshot_backend must be '%s' or '%s', got '%s'", BackendSQLite, BackendFiles, c.SnapshotBackend)
	}
	if c.Schedule != "" {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		if _, err := parser.Parse(c.Schedule); err != nil {
			return fmt.Errorf("schedule '%s': %v", c.Schedule, err)
		}
	}

	if strings.EqualFold(c.Timezone, "Local") || c.Timezone == "" {
		c.Location = time.Local
	} else {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return fmt.Errorf("timezone '%s': %v", c.Timezone, err)
		}
		c.Location = loc
	}
	return nil
}

// SlackConfigured reports whether run summaries can be posted.
func (c Config) SlackConfigured() bool {
	return c.SlackBotToken != "" && c.SlackChannelID != ""
}

func (c Config) LLMConfigured() bool {
	return c.AnthropicAPIKey != ""
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideAllowEmpty(field *string, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return fmt.Errorf("invalid %s '%s': not an integer", envKey, val)
		}
		*field = parsed
	}
	return nil
}

func envOverrideBool(field *bool, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseBool(strings.TrimSpace(val))
		if err != nil {
			return fmt.Errorf("invalid %s '%s': not a boolean", envKey, val)
		}
		*field = parsed
	}
	return nil
}

func envOverrideFloat(field *float64, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': not a number", envKey, val)
		}
		*field = parsed
	}
	return nil
}

func envOverrideThresholds(t *domain.Thresholds, prefix string) error {
	return errors.Join(
		envOverrideFloat(&t.Tickets, prefix+"TICKETS"),
		envOverrideFloat(&t.Cost, prefix+"COST"),
		envOverrideFloat(&t.AvailabilityPct, prefix+"AVAIL_PCT"),
		envOverrideFloat(&t.MTBFDays, prefix+"MTBF_DAYS"),
		envOverrideInt(&t.Rank, prefix+"RANK"),
	)
}

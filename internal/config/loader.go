package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/immahesh111/modelerror-dashboard/internal/db"
	"github.com/spf13/viper"
)

// Config is the full process configuration.
type Config struct {
	Database  db.Config
	Storage   StorageConfig
	Portal    PortalConfig
	Fetch     FetchConfig
	Normalize NormalizeConfig
	Scheduler SchedulerConfig
	Log       LogConfig
	Dashboard DashboardConfig
	Telemetry TelemetryConfig
}

type StorageConfig struct {
	Driver     string // postgres or sqlite
	SQLitePath string
}

// Selectors are XPath expressions for the report form controls.
type Selectors struct {
	UnitSelect     string
	UnitOption     string
	StartDateInput string
	StartToday     string
	EndDateInput   string
	EndToday       string
	StartTimeInput string
	EndTimeInput   string
	GenerateButton string
}

type PortalConfig struct {
	URL          string
	Selectors    Selectors
	ProbeTimeout time.Duration
	PageTimeout  time.Duration
	ElementWait  time.Duration
	SettleDelay  time.Duration
}

type FetchConfig struct {
	DownloadDir     string
	MaxAttempts     int
	InitialDelay    time.Duration
	BackoffFactor   float64
	MaxDelay        time.Duration
	DownloadTimeout time.Duration
	PollInterval    time.Duration
	Headless        bool
}

type NormalizeConfig struct {
	Sheet string
}

type SchedulerConfig struct {
	Interval     time.Duration
	CycleTimeout time.Duration
}

type LogConfig struct {
	Level  string
	File   string
	Format string // text or json
}

type DashboardConfig struct {
	Addr           string
	AllowedOrigins []string
}

type TelemetryConfig struct {
	OTLPEndpoint string
	ServiceName  string
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Database: db.DefaultConfig(),
		Storage: StorageConfig{
			Driver:     "postgres",
			SQLitePath: "error_data.db",
		},
		Portal: PortalConfig{
			Selectors: Selectors{
				UnitSelect:     "/html/body/form/div[3]/table[1]/tbody/tr[2]/td/div/table/tbody/tr/td[2]/div/select",
				UnitOption:     "/html/body/form/div[3]/table[1]/tbody/tr[2]/td/div/table/tbody/tr/td[2]/div/select/option[4]",
				StartDateInput: "/html/body/form/div[3]/table[2]/tbody/tr[1]/td[1]/div/div[2]/div/div/table/tbody/tr[2]/td[3]/input",
				StartToday:     "/html/body/form/div[3]/table[2]/tbody/tr[1]/td[1]/div/div[2]/div/div/table/tbody/tr[2]/td[2]/div/div/div[3]/div",
				EndDateInput:   "/html/body/form/div[3]/table[2]/tbody/tr[1]/td[1]/div/div[2]/div/div/table/tbody/tr[3]/td[3]/input",
				EndToday:       "/html/body/form/div[3]/table[2]/tbody/tr[1]/td[1]/div/div[2]/div/div/table/tbody/tr[3]/td[2]/div/div/div[3]/div",
				StartTimeInput: "/html/body/form/div[3]/table[2]/tbody/tr[1]/td[1]/div/div[2]/div/div/table/tbody/tr[2]/td[6]/input",
				EndTimeInput:   "/html/body/form/div[3]/table[2]/tbody/tr[1]/td[1]/div/div[2]/div/div/table/tbody/tr[3]/td[6]/input",
				GenerateButton: "/html/body/form/div[3]/table[1]/tbody/tr[1]/td[6]/input",
			},
			ProbeTimeout: 10 * time.Second,
			PageTimeout:  30 * time.Second,
			ElementWait:  15 * time.Second,
			SettleDelay:  time.Second,
		},
		Fetch: FetchConfig{
			DownloadDir:     "downloads",
			MaxAttempts:     3,
			InitialDelay:    5 * time.Second,
			BackoffFactor:   2,
			MaxDelay:        30 * time.Second,
			DownloadTimeout: 120 * time.Second,
			PollInterval:    2 * time.Second,
			Headless:        true,
		},
		Normalize: NormalizeConfig{
			Sheet: "Total",
		},
		Scheduler: SchedulerConfig{
			Interval:     30 * time.Minute,
			CycleTimeout: 20 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			File:   "scraper.log",
			Format: "text",
		},
		Dashboard: DashboardConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Telemetry: TelemetryConfig{
			ServiceName: "modelerror",
		},
	}
}

// Load reads config.yaml from configPath (if present) and applies
// MODELERROR_* environment overrides on top of the defaults.
func Load(configPath string) (Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.SetEnvPrefix("MODELERROR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, key := range knownKeys {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
	}

	applyString(v, "database.host", &cfg.Database.Host)
	applyInt(v, "database.port", &cfg.Database.Port)
	applyString(v, "database.user", &cfg.Database.User)
	applyString(v, "database.password", &cfg.Database.Password)
	applyString(v, "database.dbname", &cfg.Database.DBName)
	applyString(v, "database.sslmode", &cfg.Database.SSLMode)

	applyString(v, "storage.driver", &cfg.Storage.Driver)
	applyString(v, "storage.sqlite_path", &cfg.Storage.SQLitePath)

	applyString(v, "portal.url", &cfg.Portal.URL)
	applyDuration(v, "portal.probe_timeout", &cfg.Portal.ProbeTimeout)
	applyDuration(v, "portal.page_timeout", &cfg.Portal.PageTimeout)
	applyDuration(v, "portal.element_wait", &cfg.Portal.ElementWait)
	applyDuration(v, "portal.settle_delay", &cfg.Portal.SettleDelay)
	sel := &cfg.Portal.Selectors
	applyString(v, "portal.selectors.unit_select", &sel.UnitSelect)
	applyString(v, "portal.selectors.unit_option", &sel.UnitOption)
	applyString(v, "portal.selectors.start_date_input", &sel.StartDateInput)
	applyString(v, "portal.selectors.start_today", &sel.StartToday)
	applyString(v, "portal.selectors.end_date_input", &sel.EndDateInput)
	applyString(v, "portal.selectors.end_today", &sel.EndToday)
	applyString(v, "portal.selectors.start_time_input", &sel.StartTimeInput)
	applyString(v, "portal.selectors.end_time_input", &sel.EndTimeInput)
	applyString(v, "portal.selectors.generate_button", &sel.GenerateButton)

	applyString(v, "fetch.download_dir", &cfg.Fetch.DownloadDir)
	applyInt(v, "fetch.max_attempts", &cfg.Fetch.MaxAttempts)
	applyDuration(v, "fetch.initial_delay", &cfg.Fetch.InitialDelay)
	if v.IsSet("fetch.backoff_factor") {
		cfg.Fetch.BackoffFactor = v.GetFloat64("fetch.backoff_factor")
	}
	applyDuration(v, "fetch.max_delay", &cfg.Fetch.MaxDelay)
	applyDuration(v, "fetch.download_timeout", &cfg.Fetch.DownloadTimeout)
	applyDuration(v, "fetch.poll_interval", &cfg.Fetch.PollInterval)
	if v.IsSet("fetch.headless") {
		cfg.Fetch.Headless = v.GetBool("fetch.headless")
	}

	applyString(v, "normalize.sheet", &cfg.Normalize.Sheet)

	applyDuration(v, "scheduler.interval", &cfg.Scheduler.Interval)
	applyDuration(v, "scheduler.cycle_timeout", &cfg.Scheduler.CycleTimeout)

	applyString(v, "log.level", &cfg.Log.Level)
	applyString(v, "log.file", &cfg.Log.File)
	applyString(v, "log.format", &cfg.Log.Format)

	applyString(v, "dashboard.addr", &cfg.Dashboard.Addr)
	if v.IsSet("dashboard.allowed_origins") {
		cfg.Dashboard.AllowedOrigins = v.GetStringSlice("dashboard.allowed_origins")
	}

	applyString(v, "telemetry.otlp_endpoint", &cfg.Telemetry.OTLPEndpoint)
	applyString(v, "telemetry.service_name", &cfg.Telemetry.ServiceName)

	if !filepath.IsAbs(cfg.Fetch.DownloadDir) {
		abs, err := filepath.Abs(cfg.Fetch.DownloadDir)
		if err != nil {
			return cfg, fmt.Errorf("failed to resolve download dir: %w", err)
		}
		cfg.Fetch.DownloadDir = abs
	}

	return cfg, nil
}

// ValidateFetch checks the settings needed to talk to the portal.
func (c Config) ValidateFetch() error {
	if strings.TrimSpace(c.Portal.URL) == "" {
		return fmt.Errorf("portal.url is required")
	}
	if c.Fetch.MaxAttempts < 1 {
		return fmt.Errorf("fetch.max_attempts must be at least 1")
	}
	if c.Fetch.PollInterval <= 0 || c.Fetch.DownloadTimeout <= 0 {
		return fmt.Errorf("fetch.poll_interval and fetch.download_timeout must be positive")
	}
	return nil
}

// ValidateStorage checks the storage driver selection.
func (c Config) ValidateStorage() error {
	switch c.Storage.Driver {
	case "postgres":
		return nil
	case "sqlite":
		if strings.TrimSpace(c.Storage.SQLitePath) == "" {
			return fmt.Errorf("storage.sqlite_path is required for the sqlite driver")
		}
		return nil
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
}

var knownKeys = []string{
	"database.host", "database.port", "database.user", "database.password", "database.dbname", "database.sslmode",
	"storage.driver", "storage.sqlite_path",
	"portal.url", "portal.probe_timeout", "portal.page_timeout", "portal.element_wait", "portal.settle_delay",
	"fetch.download_dir", "fetch.max_attempts", "fetch.initial_delay", "fetch.backoff_factor", "fetch.max_delay",
	"fetch.download_timeout", "fetch.poll_interval", "fetch.headless",
	"normalize.sheet",
	"scheduler.interval", "scheduler.cycle_timeout",
	"log.level", "log.file", "log.format",
	"dashboard.addr",
	"telemetry.otlp_endpoint", "telemetry.service_name",
}

func applyString(v *viper.Viper, key string, dst *string) {
	if v.IsSet(key) {
		*dst = v.GetString(key)
	}
}

func applyInt(v *viper.Viper, key string, dst *int) {
	if v.IsSet(key) {
		*dst = v.GetInt(key)
	}
}

func applyDuration(v *viper.Viper, key string, dst *time.Duration) {
	if v.IsSet(key) {
		*dst = v.GetDuration(key)
	}
}

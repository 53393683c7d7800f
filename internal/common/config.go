package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string           `toml:"environment"` // "development" or "production"
	Server      ServerConfig     `toml:"server"`
	LMS         LMSConfig        `toml:"lms"`
	Browser     BrowserConfig    `toml:"browser"`
	Login       LoginConfig      `toml:"login"`
	Scraper     ScraperConfig    `toml:"scraper"`
	Ingest      IngestConfig     `toml:"ingest"`
	Supervisor  SupervisorConfig `toml:"supervisor"`
	Storage     StorageConfig    `toml:"storage"`
	Logging     LoggingConfig    `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// LMSConfig describes the learning-management system being scraped
type LMSConfig struct {
	BaseURL           string   `toml:"base_url"`           // LMS root, e.g. https://onq.queensu.ca
	HomePath          string   `toml:"home_path"`          // Dashboard route relative to BaseURL
	EmailDomain       string   `toml:"email_domain"`       // Appended to bare usernames
	IdPHost           string   `toml:"idp_host"`           // Identity provider host used to detect the SSO branch
	DashboardPatterns []string `toml:"dashboard_patterns"` // URL fragments that mean "logged in"
}

// HomeURL returns the absolute dashboard URL
func (c LMSConfig) HomeURL() string {
	return c.URL(c.HomePath)
}

// URL joins an absolute LMS path onto BaseURL
func (c LMSConfig) URL(path string) string {
	return strings.TrimRight(c.BaseURL, "/") + path
}

// BrowserConfig controls the Chrome instance driven by chromedp
type BrowserConfig struct {
	Headless          bool     `toml:"headless"`
	NoSandbox         bool     `toml:"no_sandbox"`
	UserAgent         string   `toml:"user_agent"`
	ExecPath          string   `toml:"exec_path"` // Optional Chrome binary; empty uses chromedp discovery
	NavigationTimeout Duration `toml:"navigation_timeout"`
	NetworkIdle       Duration `toml:"network_idle"` // Quiet period treated as network-idle after DOM ready
}

// LoginConfig holds SSO and two-factor timing
type LoginConfig struct {
	SelectorTimeout    Duration `toml:"selector_timeout"`     // Per-probe visibility wait for sign-in affordances
	PasswordTimeout    Duration `toml:"password_timeout"`     // Wait for the password field
	SettlePeriod       Duration `toml:"settle_period"`        // Fixed wait after password submit
	TwoFactorTimeout   Duration `toml:"twofa_timeout"`        // Bound on waiting for dashboard after 2FA
	TwoFactorPoll      Duration `toml:"twofa_poll_interval"`  // Poll cadence during the 2FA wait
	DisplaySignTimeout Duration `toml:"display_sign_timeout"` // Wait for the direct 2FA number element
	StepPause          Duration `toml:"step_pause"`           // UI settle time after clicks and key presses
	DashboardSettle    Duration `toml:"dashboard_settle"`     // Wait before confirming dashboard elements
}

// ScraperConfig controls course discovery and archive download
type ScraperConfig struct {
	DownloadsDir      string   `toml:"downloads_dir"`
	DuplicateStrategy string   `toml:"duplicate_strategy"` // rename, overwrite, skip
	PerBatchDirs      bool     `toml:"per_batch_dirs"`     // Extract each batch into downloads/<batch_id>
	DownloadTimeout   Duration `toml:"download_timeout"`
	DashboardTimeout  Duration `toml:"dashboard_timeout"`
}

// IngestConfig controls the ingestion uploader
type IngestConfig struct {
	BackendURL    string   `toml:"backend_url"`
	UploadPath    string   `toml:"upload_path"`
	UploadTimeout Duration `toml:"upload_timeout"`
	UploadDelay   Duration `toml:"upload_delay"` // Minimum spacing between uploads
	AuditLog      string   `toml:"audit_log"`
}

// SupervisorConfig controls worker subprocesses
type SupervisorConfig struct {
	TempDir         string   `toml:"temp_dir"`         // Status/results scratch files; empty uses os.TempDir()
	WorkerCommand   []string `toml:"worker_command"`   // Worker argv prefix; empty uses "<self> sync"
	CleanupSchedule string   `toml:"cleanup_schedule"` // Cron spec for the exited-job sweep
	StopGracePeriod Duration `toml:"stop_grace_period"`
	HistoryLimit    int      `toml:"history_limit"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "console", "file"
	FilePath   string   `toml:"file_path"`   // Log file when "file" output is enabled
	TimeFormat string   `toml:"time_format"` // Time format for console logs
}

// Duration is a time.Duration that reads "10s" style strings from TOML
type Duration struct {
	time.Duration
}

// Dur builds a Duration
func Dur(d time.Duration) Duration {
	return Duration{Duration: d}
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		LMS: LMSConfig{
			BaseURL:     "https://onq.queensu.ca",
			HomePath:    "/d2l/home",
			EmailDomain: "queensu.ca",
			IdPHost:     "login.microsoftonline.com",
			DashboardPatterns: []string{
				"/d2l/home",
				"onq.queensu.ca/d2l",
				"brightspace",
			},
		},
		Browser: BrowserConfig{
			Headless:          true,
			NoSandbox:         true,
			UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			NavigationTimeout: Dur(30 * time.Second),
			NetworkIdle:       Dur(500 * time.Millisecond),
		},
		Login: LoginConfig{
			SelectorTimeout:    Dur(2 * time.Second),
			PasswordTimeout:    Dur(10 * time.Second),
			SettlePeriod:       Dur(10 * time.Second),
			TwoFactorTimeout:   Dur(120 * time.Second),
			TwoFactorPoll:      Dur(1 * time.Second),
			DisplaySignTimeout: Dur(30 * time.Second),
			StepPause:          Dur(2 * time.Second),
			DashboardSettle:    Dur(2 * time.Second),
		},
		Scraper: ScraperConfig{
			DownloadsDir:      "downloads",
			DuplicateStrategy: "rename",
			PerBatchDirs:      true,
			DownloadTimeout:   Dur(30 * time.Second),
			DashboardTimeout:  Dur(30 * time.Second),
		},
		Ingest: IngestConfig{
			BackendURL:    "http://localhost:8000",
			UploadPath:    "/api/upload",
			UploadTimeout: Dur(5 * time.Minute),
			UploadDelay:   Dur(500 * time.Millisecond),
			AuditLog:      "ingestion_log.json",
		},
		Supervisor: SupervisorConfig{
			CleanupSchedule: "@every 1m",
			StopGracePeriod: Dur(5 * time.Second),
			HistoryLimit:    50,
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"console"},
			FilePath:   "logs/eduseek.log",
			TimeFormat: "15:04:05.000",
		},
	}
}

// LoadFromFiles loads configuration with priority: default -> file1 -> file2 -> ... -> env
// Later files override earlier files. CLI flags are applied afterwards by the caller.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("EDUSEEK_ENV"); env != "" {
		config.Environment = env
	}

	// Server
	if port := os.Getenv("EDUSEEK_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("EDUSEEK_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// LMS
	if baseURL := os.Getenv("EDUSEEK_LMS_BASE_URL"); baseURL != "" {
		config.LMS.BaseURL = baseURL
	}
	if domain := os.Getenv("EDUSEEK_LMS_EMAIL_DOMAIN"); domain != "" {
		config.LMS.EmailDomain = domain
	}

	// Browser
	if headless := os.Getenv("EDUSEEK_BROWSER_HEADLESS"); headless != "" {
		if h, err := strconv.ParseBool(headless); err == nil {
			config.Browser.Headless = h
		}
	}
	if execPath := os.Getenv("EDUSEEK_BROWSER_EXEC_PATH"); execPath != "" {
		config.Browser.ExecPath = execPath
	}

	// Scraper
	if dir := os.Getenv("EDUSEEK_DOWNLOADS_DIR"); dir != "" {
		config.Scraper.DownloadsDir = dir
	}
	if strategy := os.Getenv("EDUSEEK_DUPLICATE_STRATEGY"); strategy != "" {
		config.Scraper.DuplicateStrategy = strategy
	}

	// Ingest
	if backend := os.Getenv("EDUSEEK_BACKEND_URL"); backend != "" {
		config.Ingest.BackendURL = backend
	}
	if auditLog := os.Getenv("EDUSEEK_AUDIT_LOG"); auditLog != "" {
		config.Ingest.AuditLog = auditLog
	}

	// Supervisor
	if tempDir := os.Getenv("EDUSEEK_SUPERVISOR_TEMP_DIR"); tempDir != "" {
		config.Supervisor.TempDir = tempDir
	}
	if schedule := os.Getenv("EDUSEEK_CLEANUP_SCHEDULE"); schedule != "" {
		config.Supervisor.CleanupSchedule = schedule
	}

	// Storage
	if badgerPath := os.Getenv("EDUSEEK_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging
	if level := os.Getenv("EDUSEEK_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("EDUSEEK_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

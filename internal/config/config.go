package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/beekhof/shiftsync/internal/extract"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultListen    = "127.0.0.1:8765"
	DefaultTokenPath = "token.json"
	DefaultTimeZone  = "America/New_York"
	DefaultSummary   = "Work Shift"
	DefaultLocation  = "Cumberland Farms"
)

// GoogleCredentials represents the structure of Google OAuth credentials JSON file.
type GoogleCredentials struct {
	Installed struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	} `json:"installed"`
	Web struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	} `json:"web"`
}

// LoadGoogleCredentials loads Google OAuth credentials from a JSON file.
func LoadGoogleCredentials(path string) (clientID, clientSecret string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to read credentials file: %w", err)
	}

	var creds GoogleCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return "", "", fmt.Errorf("failed to parse credentials file: %w", err)
	}

	// Try "installed" first (for desktop apps), then "web"
	if creds.Installed.ClientID != "" {
		return creds.Installed.ClientID, creds.Installed.ClientSecret, nil
	}
	if creds.Web.ClientID != "" {
		return creds.Web.ClientID, creds.Web.ClientSecret, nil
	}

	return "", "", fmt.Errorf("no client_id found in credentials file (expected 'installed' or 'web' section)")
}

// Destination types.
const (
	TypeGoogle = "google"
	TypeCalDAV = "caldav"
	TypeICS    = "ics"
)

// Destination is one calendar the schedule is published to.
type Destination struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"` // "google", "caldav" or "ics"

	// Google Calendar
	CalendarID string `json:"calendar_id,omitempty" yaml:"calendar_id,omitempty"` // default "primary"
	TokenPath  string `json:"token_path,omitempty" yaml:"token_path,omitempty"`   // default: top-level token_path

	// CalDAV, e.g. iCloud with an app-specific password
	ServerURL    string `json:"server_url,omitempty" yaml:"server_url,omitempty"`
	CalendarPath string `json:"calendar_path,omitempty" yaml:"calendar_path,omitempty"`
	Username     string `json:"username,omitempty" yaml:"username,omitempty"`
	Password     string `json:"password,omitempty" yaml:"password,omitempty"`

	// Local .ics file
	OutputPath string `json:"output_path,omitempty" yaml:"output_path,omitempty"`
}

// Config holds the configuration for the shift sync tool.
type Config struct {
	PortalURL             string `json:"portal_url,omitempty" yaml:"portal_url,omitempty"`
	GoogleCredentialsPath string `json:"google_credentials_path,omitempty" yaml:"google_credentials_path,omitempty"`
	TokenPath             string `json:"token_path,omitempty" yaml:"token_path,omitempty"`

	TimeZone      string `json:"timezone,omitempty" yaml:"timezone,omitempty"`
	EventSummary  string `json:"event_summary,omitempty" yaml:"event_summary,omitempty"`
	EventLocation string `json:"event_location,omitempty" yaml:"event_location,omitempty"`

	PollIntervalMS     int               `json:"poll_interval_ms,omitempty" yaml:"poll_interval_ms,omitempty"`
	PollTimeoutSeconds int               `json:"poll_timeout_seconds,omitempty" yaml:"poll_timeout_seconds,omitempty"` // negative waits forever
	OffMarkers         []string          `json:"off_markers,omitempty" yaml:"off_markers,omitempty"`
	Selectors          extract.Selectors `json:"selectors,omitempty" yaml:"selectors,omitempty"`
	Headless           bool              `json:"headless,omitempty" yaml:"headless,omitempty"`

	FailurePolicy string `json:"failure_policy,omitempty" yaml:"failure_policy,omitempty"` // "stop" (default) or "continue"
	Listen        string `json:"listen,omitempty" yaml:"listen,omitempty"`                 // status server address; "off" disables it

	Destinations []Destination `json:"destinations" yaml:"destinations"`
}

// Flags carries command-line overrides. Empty values leave the
// configuration untouched.
type Flags struct {
	GoogleCredentialsPath string
	TimeZone              string
	ContinueOnError       bool
	Listen                string
	Destination           string // keep only the destination with this name
}

// PollInterval returns the table poll interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// PollTimeout returns the wait limit for the schedule table. Negative means
// no limit.
func (c *Config) PollTimeout() time.Duration {
	if c.PollTimeoutSeconds < 0 {
		return -1
	}
	return time.Duration(c.PollTimeoutSeconds) * time.Second
}

// NeedsGoogle reports whether any destination publishes to Google Calendar.
func (c *Config) NeedsGoogle() bool {
	for _, dest := range c.Destinations {
		if dest.Type == TypeGoogle {
			return true
		}
	}
	return false
}

// LoadDotEnv loads environment variables from a .env file. A missing file
// is not an error; variables already set are not overwritten.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// LoadConfigFromFile loads configuration from a JSON file, or YAML when the
// extension is .yaml or .yml.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	default:
		err = json.Unmarshal(data, &config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// LoadConfig loads configuration with the following precedence (highest to lowest):
// 1. Command-line flags
// 2. Environment variables
// 3. Config file
// 4. Defaults
// Returns an error if any required value is missing.
func LoadConfig(configFile string, flags Flags) (*Config, error) {
	var config Config

	// Step 1: Load from config file if provided
	if configFile != "" {
		fileConfig, err := LoadConfigFromFile(configFile)
		if err != nil {
			return nil, err
		}
		config = *fileConfig
	}

	// Step 2: Override with environment variables
	if portalURL := os.Getenv("PORTAL_URL"); portalURL != "" {
		config.PortalURL = portalURL
	}
	if googleCredentialsPath := os.Getenv("GOOGLE_CREDENTIALS_PATH"); googleCredentialsPath != "" {
		config.GoogleCredentialsPath = googleCredentialsPath
	}
	if tokenPath := os.Getenv("TOKEN_PATH"); tokenPath != "" {
		config.TokenPath = tokenPath
	}
	if timeZone := os.Getenv("TIMEZONE"); timeZone != "" {
		config.TimeZone = timeZone
	}
	if failurePolicy := os.Getenv("FAILURE_POLICY"); failurePolicy != "" {
		config.FailurePolicy = failurePolicy
	}
	if pollTimeout := os.Getenv("POLL_TIMEOUT_SECONDS"); pollTimeout != "" {
		seconds, err := strconv.Atoi(pollTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid POLL_TIMEOUT_SECONDS value: %w", err)
		}
		config.PollTimeoutSeconds = seconds
	}
	if listen := os.Getenv("STATUS_LISTEN"); listen != "" {
		config.Listen = listen
	}

	// Step 3: Override with command-line flags (highest priority)
	if flags.GoogleCredentialsPath != "" {
		config.GoogleCredentialsPath = flags.GoogleCredentialsPath
	}
	if flags.TimeZone != "" {
		config.TimeZone = flags.TimeZone
	}
	if flags.ContinueOnError {
		config.FailurePolicy = "continue"
	}
	if flags.Listen != "" {
		config.Listen = flags.Listen
	}

	// Step 4: Narrow to the selected destination, so the others are never
	// validated and cannot demand settings this run does not use
	if flags.Destination != "" {
		if err := config.selectDestination(flags.Destination); err != nil {
			return nil, err
		}
	}

	// Step 5: Apply defaults and validate required fields
	if err := config.applyDefaults(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) applyDefaults() error {
	if c.TimeZone == "" {
		c.TimeZone = DefaultTimeZone
	}
	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.TimeZone, err)
	}
	if c.EventSummary == "" {
		c.EventSummary = DefaultSummary
	}
	if c.EventLocation == "" {
		c.EventLocation = DefaultLocation
	}
	if c.TokenPath == "" {
		c.TokenPath = DefaultTokenPath
	}
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	c.Selectors = c.Selectors.WithDefaults()

	switch c.FailurePolicy {
	case "":
		c.FailurePolicy = "stop"
	case "stop", "continue":
	default:
		return fmt.Errorf("failure_policy must be 'stop' or 'continue', got '%s'", c.FailurePolicy)
	}

	// Validate that destinations array is provided
	if len(c.Destinations) == 0 {
		return fmt.Errorf("destinations array must be provided in config file. At least one destination is required")
	}

	// Validate and set defaults for each destination
	for i := range c.Destinations {
		dest := &c.Destinations[i]

		// Set default name if not provided
		if dest.Name == "" {
			dest.Name = fmt.Sprintf("Destination %d", i+1)
		}

		switch dest.Type {
		case TypeGoogle:
			if dest.CalendarID == "" {
				dest.CalendarID = "primary"
			}
			if dest.TokenPath == "" {
				dest.TokenPath = c.TokenPath
			}
		case TypeCalDAV:
			if dest.ServerURL == "" {
				return fmt.Errorf("destination[%d] (name: %s): server_url must be provided for CalDAV destination", i, dest.Name)
			}
			if dest.CalendarPath == "" {
				return fmt.Errorf("destination[%d] (name: %s): calendar_path must be provided for CalDAV destination", i, dest.Name)
			}
			if dest.Username == "" {
				return fmt.Errorf("destination[%d] (name: %s): username must be provided for CalDAV destination", i, dest.Name)
			}
			if dest.Password == "" {
				return fmt.Errorf("destination[%d] (name: %s): password must be provided for CalDAV destination", i, dest.Name)
			}
		case TypeICS:
			if dest.OutputPath == "" {
				return fmt.Errorf("destination[%d] (name: %s): output_path must be provided for ics destination", i, dest.Name)
			}
		default:
			return fmt.Errorf("destination[%d].type must be 'google', 'caldav' or 'ics', got '%s'", i, dest.Type)
		}
	}

	if c.NeedsGoogle() && c.GoogleCredentialsPath == "" {
		return fmt.Errorf("google_credentials_path must be provided via --google-credentials-path flag, GOOGLE_CREDENTIALS_PATH environment variable, or config file")
	}

	return nil
}

// selectDestination keeps only the destination called name. Unnamed
// destinations answer to the default name applyDefaults would give them.
func (c *Config) selectDestination(name string) error {
	for i, dest := range c.Destinations {
		if dest.Name == name || (dest.Name == "" && name == fmt.Sprintf("Destination %d", i+1)) {
			dest.Name = name
			c.Destinations = []Destination{dest}
			return nil
		}
	}
	return fmt.Errorf("no destination named %q in config", name)
}

// Save writes the configuration to path atomically, as YAML or JSON
// depending on the extension.
func Save(path string, cfg *Config) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp config: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp config: %w", err)
	}
	// Config may hold CalDAV passwords.
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("failed to chmod temp config: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace config: %w", err)
	}
	return nil
}

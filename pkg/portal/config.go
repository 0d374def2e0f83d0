// Copyright 2024-2026 Aiku AI

package portal

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"

	"go.mau.fi/zeroconfig"
	"gopkg.in/yaml.v3"
)

//go:embed example-config.yaml
var ExampleConfig string

// Supported backend types.
const (
	BackendSlack      = "slack"
	BackendMattermost = "mattermost"
)

// EnvPrefix prefixes the environment variables that override credentials,
// e.g. SLACKPORTAL_LOCAL_CONNECTION_TOKEN.
const EnvPrefix = "SLACKPORTAL_"

// SideConfig configures one end of the mirror.
type SideConfig struct {
	Type    string `yaml:"type"`
	Channel string `yaml:"channel"`

	// ConnectionToken authenticates the realtime stream, ActionToken the
	// request/response API. On Mattermost both are personal access tokens.
	ConnectionToken string `yaml:"connection_token"`
	ActionToken     string `yaml:"action_token"`

	// Mattermost only.
	ServerURL string `yaml:"server_url"`
	Team      string `yaml:"team"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`

	// RateLimit is the number of API calls per second, 0 disables throttling.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// Config is the full slackportal configuration.
type Config struct {
	Local  SideConfig `yaml:"local"`
	Remote SideConfig `yaml:"remote"`
	Timing Timing     `yaml:"timing"`

	DisplaynameTemplate string `yaml:"displayname_template"`
	// AdminAPIAddr is the listen address of the health/status/metrics API.
	// Empty disables it.
	AdminAPIAddr string `yaml:"admin_api_addr"`

	Logging zeroconfig.Config `yaml:"logging"`

	displaynameTemplate *template.Template `yaml:"-"`
}

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig Config
	return node.Decode((*rawConfig)(c))
}

// ApplyEnv overrides credentials and channel names from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	c.Local.applyEnv(EnvPrefix+"LOCAL_", getenv)
	c.Remote.applyEnv(EnvPrefix+"REMOTE_", getenv)
}

func (s *SideConfig) applyEnv(prefix string, getenv func(string) string) {
	for key, field := range map[string]*string{
		"CHANNEL":          &s.Channel,
		"CONNECTION_TOKEN": &s.ConnectionToken,
		"ACTION_TOKEN":     &s.ActionToken,
		"SERVER_URL":       &s.ServerURL,
		"USERNAME":         &s.Username,
		"PASSWORD":         &s.Password,
	} {
		if val := getenv(prefix + key); val != "" {
			*field = val
		}
	}
}

// PostProcess fills defaults, validates and compiles the display name
// template.
func (c *Config) PostProcess() error {
	if c.Timing.StartDiff == 0 && c.Timing.EndDiff == 0 && c.Timing.Tolerance == 0 {
		c.Timing = DefaultTiming
	}
	if c.Timing.StartDiff < 0 || c.Timing.EndDiff < 0 || c.Timing.Tolerance < 0 {
		return errors.New("timing values must not be negative")
	}
	if len(c.Logging.Writers) == 0 {
		c.Logging.Writers = []zeroconfig.WriterConfig{{
			Type:   zeroconfig.WriterTypeStdout,
			Format: zeroconfig.LogFormatPrettyColored,
		}}
	}

	if err := c.Local.postProcess(); err != nil {
		return fmt.Errorf("local: %w", err)
	}
	if err := c.Remote.postProcess(); err != nil {
		return fmt.Errorf("remote: %w", err)
	}

	if c.DisplaynameTemplate != "" {
		var err error
		c.displaynameTemplate, err = template.New("displayname").Parse(c.DisplaynameTemplate)
		if err != nil {
			return fmt.Errorf("invalid displayname_template: %w", err)
		}
	}
	return nil
}

func (s *SideConfig) postProcess() error {
	s.Type = strings.ToLower(strings.TrimSpace(s.Type))
	if s.Type == "" {
		s.Type = BackendSlack
	}
	s.Channel = strings.TrimPrefix(strings.TrimSpace(s.Channel), "#")
	if s.Channel == "" {
		return errors.New("channel is required")
	}
	if s.RateLimit < 0 {
		return errors.New("rate_limit must not be negative")
	}
	if s.RateLimit > 0 && s.RateBurst <= 0 {
		s.RateBurst = 1
	}

	switch s.Type {
	case BackendSlack:
		if s.ConnectionToken == "" || s.ActionToken == "" {
			return errors.New("slack requires connection_token and action_token")
		}
	case BackendMattermost:
		s.ServerURL = strings.TrimSuffix(s.ServerURL, "/")
		if s.ServerURL == "" {
			return errors.New("mattermost requires server_url")
		}
		if s.Team == "" {
			return errors.New("mattermost requires team")
		}
		if s.ActionToken == "" && (s.Username == "" || s.Password == "") {
			return errors.New("mattermost requires action_token or username and password")
		}
	default:
		return fmt.Errorf("unknown backend type %q", s.Type)
	}
	return nil
}

// FormatDisplayname renders the display name template for a profile. It
// returns an empty string when no template is configured or rendering
// fails, leaving the caller to its own fallback.
func (c *Config) FormatDisplayname(p Profile) string {
	if c.displaynameTemplate == nil {
		return ""
	}
	var buf strings.Builder
	if err := c.displaynameTemplate.Execute(&buf, p); err != nil {
		return ""
	}
	return strings.TrimSpace(buf.String())
}

// LoadConfig reads, parses and post-processes the config file at path,
// applying environment overrides in between.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return ParseConfig(data, os.Getenv)
}

// ParseConfig is LoadConfig for an in-memory document.
func ParseConfig(data []byte, getenv func(string) string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.ApplyEnv(getenv)
	if err := cfg.PostProcess(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

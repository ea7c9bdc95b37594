// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Config is the whole settings file.
type Config struct {
	// ServerIP is the host every admin port is on.
	ServerIP string `yaml:"server_ip" json:"server_ip"`

	// AdminPorts lists one admin port per server. GamePorts, when
	// given, lists the matching game ports in the same order.
	AdminPorts []int `yaml:"admin_ports" json:"admin_ports"`
	GamePorts  []int `yaml:"game_ports" json:"game_ports"`

	// AdminName and AdminPass are the admin-port credentials, shared
	// by every server.
	AdminName string `yaml:"admin_name" json:"admin_name"`
	AdminPass string `yaml:"admin_pass" json:"admin_pass"`

	// ServerName is shown by !info.
	ServerName string `yaml:"server_name" json:"server_name"`

	// GoalValue is the company value that wins a round;
	// LoadScenario is loaded to start the next one.
	GoalValue    int64  `yaml:"goal_value" json:"goal_value"`
	LoadScenario string `yaml:"load_scenario" json:"load_scenario"`

	// DeadCompanyAge (years) and DeadCompanyValue define an
	// abandoned company.
	DeadCompanyAge   int   `yaml:"dead_co_age" json:"dead_co_age"`
	DeadCompanyValue int64 `yaml:"dead_co_value" json:"dead_co_value"`

	// ImplicitResetConfirm lets moving to spectators confirm a
	// pending !reset.
	ImplicitResetConfirm bool `yaml:"implicit_reset_confirm" json:"implicit_reset_confirm"`

	RconRetryMax   int      `yaml:"rcon_retry_max" json:"rcon_retry_max"`
	RconRetryDelay Duration `yaml:"rcon_retry_delay" json:"rcon_retry_delay"`
	RconTimeout    Duration `yaml:"rcon_timeout" json:"rcon_timeout"`

	ReconnectMaxAttempts int      `yaml:"reconnect_max_attempts" json:"reconnect_max_attempts"`
	ReconnectDelay       Duration `yaml:"reconnect_delay" json:"reconnect_delay"`

	GreetingDelay   Duration `yaml:"greeting_delay" json:"greeting_delay"`
	ResetTimeout    Duration `yaml:"reset_timeout" json:"reset_timeout"`
	MessageInterval Duration `yaml:"message_interval" json:"message_interval"`
	CommandCooldown Duration `yaml:"command_cooldown" json:"command_cooldown"`

	// ControlSocket is where the daemon serves the control protocol.
	// Empty disables it.
	ControlSocket string `yaml:"control_socket" json:"control_socket"`

	Log LogConfig `yaml:"log" json:"log"`
}

// LogConfig selects the daemon's log output.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level" json:"level"`

	// Format is text or json. Empty picks text on a terminal and
	// json otherwise.
	Format string `yaml:"format" json:"format"`
}

// ServerConfig is the expanded configuration of one server.
type ServerConfig struct {
	// Number is the 1-based position in admin_ports.
	Number int

	// Name labels the server in logs, status and the CLI.
	Name string

	// Address is host:port of the admin port.
	Address  string
	GamePort int

	AdminName string
	AdminPass string
}

// Default returns the settings every file starts from.
func Default() *Config {
	return &Config{
		ServerIP:             "127.0.0.1",
		AdminName:            "steward",
		ServerName:           "South-East-Asia OpenTTD Server",
		GoalValue:            100_000_000_000,
		LoadScenario:         "flat2048prodboost.scn",
		DeadCompanyAge:       5,
		DeadCompanyValue:     5_000_000,
		RconRetryMax:         3,
		RconRetryDelay:       Duration(500 * time.Millisecond),
		RconTimeout:          Duration(5 * time.Second),
		ReconnectMaxAttempts: 10,
		ReconnectDelay:       Duration(5 * time.Second),
		GreetingDelay:        Duration(3 * time.Second),
		ResetTimeout:         Duration(30 * time.Second),
		MessageInterval:      Duration(50 * time.Millisecond),
		CommandCooldown:      Duration(500 * time.Millisecond),
		Log:                  LogConfig{Level: "info"},
	}
}

// Load loads the file named by STEWARD_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv("STEWARD_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("STEWARD_CONFIG environment variable not set; " +
			"set it to the path of your settings file, or use --config")
	}
	return LoadFile(path)
}

// LoadFile loads path over the defaults and expands variables. It
// does not validate; call Validate before use.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("%s: unsupported config format %q (use .json, .yaml or .yml)", path, filepath.Ext(path))
	}

	cfg.AdminPass = expandVars(cfg.AdminPass)
	cfg.ControlSocket = expandVars(cfg.ControlSocket)
	return cfg, nil
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} from the environment.
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"", "text", "json"}
)

// Validate reports every problem in the configuration at once.
func (c *Config) Validate() error {
	var errs []error

	if c.ServerIP == "" {
		errs = append(errs, errors.New("server_ip is required"))
	}
	if len(c.AdminPorts) == 0 {
		errs = append(errs, errors.New("admin_ports must list at least one port"))
	}
	for i, port := range c.AdminPorts {
		if port < 1024 || port > 65535 {
			errs = append(errs, fmt.Errorf("admin_ports[%d]: %d is outside 1024-65535", i, port))
		}
		if slices.Index(c.AdminPorts, port) != i {
			errs = append(errs, fmt.Errorf("admin_ports[%d]: %d is listed twice", i, port))
		}
	}
	if len(c.GamePorts) > 0 && len(c.GamePorts) != len(c.AdminPorts) {
		errs = append(errs, fmt.Errorf("game_ports has %d entries, admin_ports has %d", len(c.GamePorts), len(c.AdminPorts)))
	}
	if c.AdminName == "" {
		errs = append(errs, errors.New("admin_name is required"))
	}
	if c.AdminPass == "" {
		errs = append(errs, errors.New("admin_pass is required"))
	}
	if c.GoalValue <= 0 {
		errs = append(errs, fmt.Errorf("goal_value must be positive, got %d", c.GoalValue))
	}
	if strings.TrimSpace(c.LoadScenario) == "" {
		errs = append(errs, errors.New("load_scenario is required"))
	}
	if c.DeadCompanyAge < 0 {
		errs = append(errs, fmt.Errorf("dead_co_age must not be negative, got %d", c.DeadCompanyAge))
	}
	if c.DeadCompanyValue < 0 {
		errs = append(errs, fmt.Errorf("dead_co_value must not be negative, got %d", c.DeadCompanyValue))
	}
	if c.RconRetryMax < 1 {
		errs = append(errs, fmt.Errorf("rcon_retry_max must be at least 1, got %d", c.RconRetryMax))
	}
	if c.ReconnectMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("reconnect_max_attempts must be at least 1, got %d", c.ReconnectMaxAttempts))
	}
	for name, value := range map[string]Duration{
		"rcon_retry_delay": c.RconRetryDelay,
		"rcon_timeout":     c.RconTimeout,
		"reconnect_delay":  c.ReconnectDelay,
		"greeting_delay":   c.GreetingDelay,
		"reset_timeout":    c.ResetTimeout,
		"message_interval": c.MessageInterval,
		"command_cooldown": c.CommandCooldown,
	} {
		if value < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}
	if c.RconTimeout == 0 {
		errs = append(errs, errors.New("rcon_timeout must be positive"))
	}
	if c.ResetTimeout == 0 {
		errs = append(errs, errors.New("reset_timeout must be positive"))
	}
	if !slices.Contains(logLevels, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of: %v", logLevels))
	}
	if !slices.Contains(logFormats, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be text or json"))
	}

	return errors.Join(errs...)
}

// Servers expands the settings into one entry per admin port.
func (c *Config) Servers() []ServerConfig {
	servers := make([]ServerConfig, 0, len(c.AdminPorts))
	for i, port := range c.AdminPorts {
		server := ServerConfig{
			Number:    i + 1,
			Name:      "server" + strconv.Itoa(i+1),
			Address:   net.JoinHostPort(c.ServerIP, strconv.Itoa(port)),
			AdminName: c.AdminName,
			AdminPass: c.AdminPass,
		}
		if i < len(c.GamePorts) {
			server.GamePort = c.GamePorts[i]
		}
		servers = append(servers, server)
	}
	return servers
}

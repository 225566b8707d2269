/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Package config provides configuration management for tcpchat.

CONFIGURATION SOURCES (in order of precedence):
===============================================
1. Command-line flags (highest priority)
2. Environment variables (TCPCHAT_* prefix), including a .env file
3. Configuration file (JSON format)
4. Default values (lowest priority)

CONFIGURATION CATEGORIES:
=========================
- Network: bind_addr, write_timeout_ms, keepalive_sec, advertise_addr, node_id
- Limits: groups per user, users per group
- Credentials: backend (file or badger), path, bcrypt cost
- Gateways: websocket, health (gRPC), metrics (HTTP)
- Discovery: mDNS advertisement
- Moderation: censored words
- Logging: log_level, log_json

EXAMPLE CONFIGURATION FILE:
===========================

	{
	  "bind_addr": "0.0.0.0:9000",
	  "limits": {"groups_per_user": 10, "users_per_group": 20},
	  "credentials": {"backend": "badger", "path": "/var/lib/tcpchat/users"},
	  "moderation": {"enabled": true, "words": ["badger"]}
	}

ENVIRONMENT VARIABLES:
======================
Every field can be set through an environment variable named after its
path: TCPCHAT_BIND_ADDR, TCPCHAT_KEEP_ALIVE_SEC, TCPCHAT_LOG_LEVEL,
TCPCHAT_CREDENTIALS_BACKEND, TCPCHAT_WEBSOCKET_ENABLED,
TCPCHAT_MODERATION_WORDS=a,b,c and so on. Unset variables leave the current
value alone.
*/
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "TCPCHAT"

// Default ports.
const (
	DefaultBindAddr      = ":9000"
	DefaultWebSocketAddr = ":9001"
	DefaultHealthAddr    = ":9002"
	DefaultMetricsAddr   = ":9003"
	DefaultSessionWarn   = 100
)

// DefaultConfigPaths are searched, in order, when no file is given.
var DefaultConfigPaths = []string{
	"/etc/tcpchat/tcpchat.json",
	"$HOME/.config/tcpchat/tcpchat.json",
	"./tcpchat.json",
}

// LimitsConfig holds registry capacities.
type LimitsConfig struct {
	GroupsPerUser int `json:"groups_per_user" split_words:"true" validate:"gte=1,lte=1000"`
	UsersPerGroup int `json:"users_per_group" split_words:"true" validate:"gte=1,lte=10000"`
}

// CredentialsConfig selects the credential store.
type CredentialsConfig struct {
	Backend    string `json:"backend" validate:"oneof=file badger"`
	Path       string `json:"path" validate:"required_if=Backend file"`
	BcryptCost int    `json:"bcrypt_cost" split_words:"true" validate:"omitempty,gte=4,lte=31"`
}

// WebSocketConfig holds the WebSocket gateway configuration.
type WebSocketConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr" validate:"omitempty,listen_addr"`
	Path    string `json:"path" validate:"omitempty,startswith=/"`
}

// DiscoveryConfig holds configuration for mDNS service discovery.
type DiscoveryConfig struct {
	Enabled  bool   `json:"enabled"`
	Instance string `json:"instance"` // Advertised instance name, defaults to node_id
}

// HealthConfig holds the gRPC health service configuration.
type HealthConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr" validate:"omitempty,listen_addr"`
	// Sessions online above this report DEGRADED; 0 disables the check.
	SessionWarn int `json:"session_warn" split_words:"true" validate:"gte=0"`
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr" validate:"omitempty,listen_addr"`
}

// ModerationConfig holds chat text censoring configuration.
type ModerationConfig struct {
	Enabled     bool     `json:"enabled"`
	Words       []string `json:"words"`
	WordsFile   string   `json:"words_file" split_words:"true"`
	Replacement string   `json:"replacement" validate:"omitempty,len=1"`
}

// Config holds the configuration for tcpchat.
type Config struct {
	// Network
	BindAddr       string `json:"bind_addr" split_words:"true" validate:"required,listen_addr"`
	AdvertiseAddr  string `json:"advertise_addr" split_words:"true"` // Auto-detected if empty
	WriteTimeoutMs int    `json:"write_timeout_ms" split_words:"true" validate:"gte=0"`
	KeepAliveSec   int    `json:"keepalive_sec" split_words:"true" validate:"gte=0"`
	NodeID         string `json:"node_id" split_words:"true"`

	// Logging
	LogLevel string `json:"log_level" split_words:"true" validate:"oneof=debug info warn warning error"`
	LogJSON  bool   `json:"log_json" split_words:"true"`

	Limits      LimitsConfig      `json:"limits"`
	Credentials CredentialsConfig `json:"credentials"`
	WebSocket   WebSocketConfig   `json:"websocket"`
	Discovery   DiscoveryConfig   `json:"discovery"`
	Health      HealthConfig      `json:"health"`
	Metrics     MetricsConfig     `json:"metrics"`
	Moderation  ModerationConfig  `json:"moderation"`

	// Metadata
	ConfigFile string `json:"-" ignored:"true"`
}

// DefaultConfig returns defaults.
func DefaultConfig() *Config {
	hostname, _ := os.Hostname()
	return &Config{
		BindAddr:       DefaultBindAddr,
		WriteTimeoutMs: 5000,
		KeepAliveSec:   30,
		NodeID:         hostname,
		LogLevel:       "info",
		Limits: LimitsConfig{
			GroupsPerUser: 10,
			UsersPerGroup: 20,
		},
		Credentials: CredentialsConfig{
			Backend: "file",
			Path:    "users.dat",
		},
		WebSocket: WebSocketConfig{
			Addr: DefaultWebSocketAddr,
			Path: "/ws",
		},
		Health: HealthConfig{
			Addr:        DefaultHealthAddr,
			SessionWarn: DefaultSessionWarn,
		},
		Metrics: MetricsConfig{
			Addr: DefaultMetricsAddr,
		},
		Moderation: ModerationConfig{
			Replacement: "*",
		},
	}
}

// Manager handles configuration loading.
type Manager struct {
	config *Config
	mu     sync.RWMutex
}

var globalManager = &Manager{
	config: DefaultConfig(),
}

// Global returns the global manager.
func Global() *Manager {
	return globalManager
}

// NewManager returns a manager holding the defaults.
func NewManager() *Manager {
	return &Manager{config: DefaultConfig()}
}

// Get returns a copy of current config.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg := *m.config
	cfg.Moderation.Words = append([]string(nil), m.config.Moderation.Words...)
	return &cfg
}

// Set updates the config.
func (m *Manager) Set(cfg *Config) {
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
}

// LoadFromFile loads configuration from a JSON file on top of the defaults.
func (m *Manager) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	cfg.ConfigFile = path
	m.Set(cfg)
	return nil
}

// LoadDotEnv exports the variables of a .env file that are not already set.
// A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// LoadFromEnv applies TCPCHAT_* environment variables.
func (m *Manager) LoadFromEnv() error {
	cfg := m.Get()
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return fmt.Errorf("invalid environment: %w", err)
	}
	m.Set(cfg)
	return nil
}

// FindConfigFile returns the first existing entry of DefaultConfigPaths.
func FindConfigFile() (string, bool) {
	for _, p := range DefaultConfigPaths {
		p = os.ExpandEnv(p)
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p, true
		}
	}
	return "", false
}

// Finalize fills derived defaults. Call it after every source is applied.
func (c *Config) Finalize() {
	c.LogLevel = strings.ToLower(c.LogLevel)
	if c.NodeID == "" {
		c.NodeID, _ = os.Hostname()
	}
	if c.Discovery.Instance == "" {
		c.Discovery.Instance = c.NodeID
	}
	if c.WebSocket.Enabled && c.WebSocket.Path == "" {
		c.WebSocket.Path = "/ws"
	}
	if c.Moderation.Replacement == "" {
		c.Moderation.Replacement = "*"
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	// host:port where the host may be empty and the port may be 0.
	_ = v.RegisterValidation("listen_addr", func(fl validator.FieldLevel) bool {
		_, port, err := net.SplitHostPort(fl.Field().String())
		if err != nil {
			return false
		}
		_, err = net.LookupPort("tcp", port)
		return err == nil
	})
	return v
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s (got %q)", field, fe.Tag(), fe.Param(), fmt.Sprint(fe.Value())))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s (got %q)", field, fe.Tag(), fmt.Sprint(fe.Value())))
		}
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// WriteTimeout returns the per-frame write timeout.
func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutMs) * time.Millisecond
}

// KeepAlivePeriod returns the TCP keep-alive period.
func (c *Config) KeepAlivePeriod() time.Duration {
	return time.Duration(c.KeepAliveSec) * time.Second
}

// GetAdvertiseAddr returns the address clients should use. When bound to all
// interfaces it substitutes the detected local IP.
func (c *Config) GetAdvertiseAddr() string {
	if c.AdvertiseAddr != "" {
		return c.AdvertiseAddr
	}
	return resolveAdvertiseAddr(c.BindAddr)
}

// resolveAdvertiseAddr resolves an address to an advertisable address.
func resolveAdvertiseAddr(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		if localIP := detectLocalIP(); localIP != "" {
			return net.JoinHostPort(localIP, port)
		}
	}
	return addr
}

// detectLocalIP returns the first non-loopback IPv4 address of an interface
// that is up.
func detectLocalIP() string {
	interfaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.To4() != nil && !ipnet.IP.IsLoopback() {
				return ipnet.IP.String()
			}
		}
	}
	return ""
}

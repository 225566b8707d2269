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
tcpchat Server - Main Entry Point.

USAGE:
======

	tcpchat [options] [<ip> <port>]

OPTIONS:
========

	-config string    Path to configuration file (JSON format)
	-env string       Path to a .env file (default: .env)
	-quiet            Skip banner and config display, output logs only
	-version          Show version information
	-help             Show help message

ENVIRONMENT VARIABLES:
======================

	TCPCHAT_BIND_ADDR            Server bind address (default: :9000)
	TCPCHAT_CREDENTIALS_BACKEND  file or badger
	TCPCHAT_CREDENTIALS_PATH     Credential file or database directory
	TCPCHAT_LOG_LEVEL            debug, info, warn, error

STARTUP SEQUENCE:
=================
1. Parse flags, config file, .env file and environment
2. Initialize logging
3. Open the credential store
4. Start the chat server
5. Start optional gateways and endpoints
6. Wait for shutdown signal
*/
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"tcpchat/internal/auth"
	"tcpchat/internal/banner"
	"tcpchat/internal/chat"
	"tcpchat/internal/config"
	"tcpchat/internal/discovery"
	"tcpchat/internal/health"
	"tcpchat/internal/logging"
	"tcpchat/internal/metrics"
	"tcpchat/internal/moderation"
	"tcpchat/internal/registry"
	"tcpchat/internal/server"
	"tcpchat/internal/server/ws"
)

// probeUser is looked up by the credential store health check. It can never
// be registered because usernames may not contain spaces.
const probeUser = "health probe"

type options struct {
	configPath string
	envFile    string
	quiet      bool
	version    bool
	args       []string
}

func printHelp(w io.Writer) {
	banner.PrintTo(w)
	heading := banner.Heading
	fmt.Fprintln(w, heading.Sprint("Usage:"))
	fmt.Fprintln(w, "  tcpchat [options] [<ip> <port>]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, heading.Sprint("Options:"))
	fmt.Fprintln(w, "  -config string    Path to configuration file (JSON format)")
	fmt.Fprintln(w, "  -env string       Path to a .env file (default: .env)")
	fmt.Fprintln(w, "  -quiet            Skip banner and config display, output logs only")
	fmt.Fprintln(w, "  -version          Show version information")
	fmt.Fprintln(w, "  -help, -h         Show this help message")
	fmt.Fprintln(w)
	fmt.Fprintln(w, heading.Sprint("Environment Variables:"))
	fmt.Fprintln(w, "  TCPCHAT_BIND_ADDR              Server bind address (default: :9000)")
	fmt.Fprintln(w, "  TCPCHAT_NODE_ID                Node identifier (default: hostname)")
	fmt.Fprintln(w, "  TCPCHAT_LOG_LEVEL              Log level: debug, info, warn, error")
	fmt.Fprintln(w, "  TCPCHAT_LOG_JSON               JSON log output (true/false)")
	fmt.Fprintln(w, "  TCPCHAT_CREDENTIALS_BACKEND    Credential store: file, badger")
	fmt.Fprintln(w, "  TCPCHAT_CREDENTIALS_PATH       Credential file or database directory")
	fmt.Fprintln(w, "  TCPCHAT_WEBSOCKET_ENABLED      Enable the WebSocket gateway")
	fmt.Fprintln(w, "  TCPCHAT_HEALTH_ENABLED         Enable the gRPC health service")
	fmt.Fprintln(w, "  TCPCHAT_HEALTH_SESSION_WARN    Sessions online before health degrades")
	fmt.Fprintln(w, "  TCPCHAT_METRICS_ENABLED        Enable the /metrics endpoint")
	fmt.Fprintln(w, "  TCPCHAT_DISCOVERY_ENABLED      Advertise the server over mDNS")
	fmt.Fprintln(w, "  TCPCHAT_MODERATION_ENABLED     Censor configured words in chat text")
	fmt.Fprintln(w)
	fmt.Fprintln(w, heading.Sprint("Examples:"))
	fmt.Fprintln(w, "  # Listen on all interfaces, port 9000")
	fmt.Fprintln(w, "  tcpchat")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  # Listen on a specific address")
	fmt.Fprintln(w, "  tcpchat 127.0.0.1 8080")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  # Start with custom config file")
	fmt.Fprintln(w, "  tcpchat -config /etc/tcpchat/tcpchat.json")
	fmt.Fprintln(w)
}

func parseFlags(args []string) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("tcpchat", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	fs.StringVar(&opts.envFile, "env", ".env", "Path to a .env file")
	fs.BoolVar(&opts.quiet, "quiet", false, "Skip banner and config display")
	fs.BoolVar(&opts.version, "version", false, "Show version information")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	opts.args = fs.Args()
	return opts, nil
}

// bindFromArgs turns the positional "<ip> <port>" form into a bind address.
// No arguments leaves the configured address alone.
func bindFromArgs(args []string) (string, error) {
	switch len(args) {
	case 0:
		return "", nil
	case 2:
		if ip := net.ParseIP(args[0]); ip == nil {
			return "", fmt.Errorf("invalid ip address %q", args[0])
		}
		port, err := strconv.Atoi(args[1])
		if err != nil || port < 1 || port > 65535 {
			return "", fmt.Errorf("invalid port %q", args[1])
		}
		return net.JoinHostPort(args[0], args[1]), nil
	default:
		return "", errors.New("expected <ip> <port>")
	}
}

// loadConfig layers defaults, the config file, the .env file, the
// environment and the command line, in that order.
func loadConfig(opts *options) (*config.Config, error) {
	mgr := config.NewManager()

	path := opts.configPath
	if path == "" {
		path, _ = config.FindConfigFile()
	}
	if path != "" {
		if err := mgr.LoadFromFile(path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}
	if opts.envFile != "" {
		if err := config.LoadDotEnv(opts.envFile); err != nil {
			return nil, err
		}
	}
	if err := mgr.LoadFromEnv(); err != nil {
		return nil, err
	}

	cfg := mgr.Get()
	bind, err := bindFromArgs(opts.args)
	if err != nil {
		return nil, err
	}
	if bind != "" {
		cfg.BindAddr = bind
	}

	cfg.Finalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildCensor(cfg config.ModerationConfig) (*moderation.Moderator, error) {
	words := append([]string(nil), cfg.Words...)
	if cfg.WordsFile != "" {
		fromFile, err := moderation.LoadWords(cfg.WordsFile)
		if err != nil {
			return nil, err
		}
		words = append(words, fromFile...)
	}
	replacement := []rune(cfg.Replacement)
	if len(replacement) == 0 {
		replacement = []rune{moderation.DefaultReplacement}
	}
	return moderation.New(words, replacement[0])
}

// advertisedPeer combines the advertised host with the port of a listener
// bound elsewhere, e.g. the WebSocket gateway.
func advertisedPeer(advertise string, bound net.Addr) string {
	host, _, err := net.SplitHostPort(advertise)
	if err != nil {
		return bound.String()
	}
	_, port, err := net.SplitHostPort(bound.String())
	if err != nil {
		return bound.String()
	}
	return net.JoinHostPort(host, port)
}

func storeProbe(store auth.CredentialStore) func() error {
	return func() error {
		err := store.Authenticate(probeUser, "-")
		if err == nil || errors.Is(err, auth.ErrInvalidCredentials) || errors.Is(err, auth.ErrInvalidInput) {
			return nil
		}
		return err
	}
}

func sessionsOnline(m *metrics.Metrics) func() int {
	return func() int { return int(m.SessionsOnline.Load()) }
}

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "-h" || arg == "--help" || arg == "-help" || arg == "help" {
			printHelp(os.Stdout)
			return
		}
	}

	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		printHelp(os.Stderr)
		os.Exit(2)
	}
	if opts.version {
		banner.PrintTo(os.Stdout)
		return
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if !opts.quiet {
		banner.PrintServerWithConfig(cfg)
	}

	logging.SetGlobalLevel(logging.ParseLevel(cfg.LogLevel))
	logging.SetJSONMode(cfg.LogJSON)
	logger := logging.NewLogger("main")

	if err := run(cfg, logger); err != nil {
		logger.Error("Startup failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *logging.Logger) error {
	logger.Info("Starting tcpchat", "version", banner.Version, "node_id", cfg.NodeID)

	store, err := auth.Open(auth.Options{
		Backend:    cfg.Credentials.Backend,
		Path:       cfg.Credentials.Path,
		BcryptCost: cfg.Credentials.BcryptCost,
	})
	if err != nil {
		return fmt.Errorf("open credential store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Error closing credential store", "error", err)
		}
	}()

	procOpts := []chat.Option{chat.WithLimits(registry.Limits{
		GroupsPerUser: cfg.Limits.GroupsPerUser,
		UsersPerGroup: cfg.Limits.UsersPerGroup,
	})}
	if cfg.Moderation.Enabled {
		censor, err := buildCensor(cfg.Moderation)
		if err != nil {
			return fmt.Errorf("moderation: %w", err)
		}
		procOpts = append(procOpts, chat.WithCensor(censor))
		logger.Info("Moderation enabled")
	}

	srv := server.NewServer(cfg, chat.NewProcessor(store, procOpts...))
	if err := srv.Start(); err != nil {
		return err
	}

	// ========================================================================
	// Optional Services
	// ========================================================================

	var gateway *ws.Gateway
	if cfg.WebSocket.Enabled {
		gateway = ws.NewGateway(cfg, srv)
		if err := gateway.Start(); err != nil {
			logger.Error("Failed to start WebSocket gateway", "error", err)
			gateway = nil
		}
	}

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Addr, metrics.Get())
		if err := metricsServer.Start(); err != nil {
			logger.Error("Failed to start metrics server", "error", err)
			metricsServer = nil
		}
	}

	var healthServer *health.Server
	if cfg.Health.Enabled {
		checker := health.NewChecker(banner.Version)
		checker.RegisterCheck("listener", health.ListenerCheck(srv.Running))
		checker.RegisterCheck("credentials", health.StorageCheck(storeProbe(store)))
		checker.RegisterCheck("sessions", health.SessionsCheck(cfg.Health.SessionWarn, sessionsOnline(metrics.Get())))
		healthServer = health.NewServer(cfg.Health.Addr, checker)
		if err := healthServer.Start(); err != nil {
			logger.Error("Failed to start health server", "error", err)
			healthServer = nil
		}
	}

	var advertiser *discovery.Advertiser
	if cfg.Discovery.Enabled {
		dcfg := discovery.Config{
			Instance: cfg.Discovery.Instance,
			NodeID:   cfg.NodeID,
			Addr:     cfg.GetAdvertiseAddr(),
			Version:  banner.Version,
		}
		if gateway != nil {
			dcfg.WSAddr = advertisedPeer(dcfg.Addr, gateway.Addr())
		}
		advertiser = discovery.NewAdvertiser(dcfg)
		if err := advertiser.Start(); err != nil {
			logger.Error("Failed to start service discovery", "error", err)
			advertiser = nil
		}
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("Shutting down...")

	if advertiser != nil {
		if err := advertiser.Stop(); err != nil {
			logger.Error("Error stopping service discovery", "error", err)
		}
	}
	if gateway != nil {
		if err := gateway.Stop(); err != nil {
			logger.Error("Error stopping WebSocket gateway", "error", err)
		}
	}
	if err := srv.Stop(); err != nil {
		logger.Error("Error stopping server", "error", err)
	}
	if healthServer != nil {
		healthServer.Stop()
	}
	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			logger.Error("Error stopping metrics server", "error", err)
		}
	}
	return nil
}

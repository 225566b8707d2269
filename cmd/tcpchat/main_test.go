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

package main

import (
	"bytes"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"tcpchat/internal/auth"
	"tcpchat/internal/config"
	"tcpchat/internal/health"
	"tcpchat/internal/metrics"
	"tcpchat/internal/mocks"
)

func TestBindFromArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr bool
	}{
		{"none", nil, "", false},
		{"ipv4", []string{"127.0.0.1", "8080"}, "127.0.0.1:8080", false},
		{"ipv6", []string{"::1", "8080"}, "[::1]:8080", false},
		{"bad ip", []string{"localhost", "8080"}, "", true},
		{"bad port", []string{"127.0.0.1", "http"}, "", true},
		{"port zero", []string{"127.0.0.1", "0"}, "", true},
		{"one arg", []string{"127.0.0.1"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := bindFromArgs(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{"-quiet", "-config", "c.json", "10.0.0.1", "9100"})
	require.NoError(t, err)
	assert.True(t, opts.quiet)
	assert.Equal(t, "c.json", opts.configPath)
	assert.Equal(t, ".env", opts.envFile)
	assert.Equal(t, []string{"10.0.0.1", "9100"}, opts.args)

	_, err = parseFlags([]string{"-nope"})
	assert.Error(t, err)
}

func TestLoadConfigLayers(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "tcpchat.json")
	require.NoError(t, os.WriteFile(cfgFile, []byte(`{"bind_addr":"127.0.0.1:7000","log_level":"debug"}`), 0o600))
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("TCPCHAT_NODE_ID=from-dotenv\n"), 0o600))
	t.Setenv("TCPCHAT_LOG_LEVEL", "warn")
	t.Cleanup(func() { os.Unsetenv("TCPCHAT_NODE_ID") })

	cfg, err := loadConfig(&options{configPath: cfgFile, envFile: envFile})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", cfg.BindAddr)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "from-dotenv", cfg.NodeID)
	assert.Equal(t, cfgFile, cfg.ConfigFile)

	cfg, err = loadConfig(&options{configPath: cfgFile, args: []string{"127.0.0.2", "7100"}})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.2:7100", cfg.BindAddr)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	cfgFile := filepath.Join(t.TempDir(), "tcpchat.json")
	require.NoError(t, os.WriteFile(cfgFile, []byte(`{"credentials":{"backend":"ldap"}}`), 0o600))

	_, err := loadConfig(&options{configPath: cfgFile})
	assert.Error(t, err)
}

func TestBuildCensor(t *testing.T) {
	words := filepath.Join(t.TempDir(), "words.txt")
	require.NoError(t, os.WriteFile(words, []byte("badger\n"), 0o600))

	m, err := buildCensor(config.ModerationConfig{Words: []string{"mole"}, WordsFile: words, Replacement: "#"})
	require.NoError(t, err)
	assert.Equal(t, "a #### and a ######", m.Censor("a mole and a badger"))
}

func TestAdvertisedPeer(t *testing.T) {
	bound := &net.TCPAddr{IP: net.IPv6unspecified, Port: 9001}
	assert.Equal(t, "10.0.0.5:9001", advertisedPeer("10.0.0.5:9000", bound))
	assert.Equal(t, bound.String(), advertisedPeer("garbage", bound))
}

func TestStoreProbe(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockCredentialStore(ctrl)

	store.EXPECT().Authenticate(probeUser, "-").Return(auth.ErrInvalidCredentials)
	assert.NoError(t, storeProbe(store)())

	store.EXPECT().Authenticate(probeUser, "-").Return(errors.New("disk gone"))
	assert.EqualError(t, storeProbe(store)(), "disk gone")
}

func TestSessionsOnlineFeedsHealth(t *testing.T) {
	m := &metrics.Metrics{}
	check := health.SessionsCheck(2, sessionsOnline(m))

	m.SessionsOnline.Store(2)
	assert.Equal(t, health.StatusHealthy, check().Status)

	m.SessionsOnline.Store(3)
	assert.Equal(t, health.StatusDegraded, check().Status)
}

func TestPrintHelp(t *testing.T) {
	var buf bytes.Buffer
	printHelp(&buf)
	assert.True(t, strings.Contains(buf.String(), "tcpchat [options] [<ip> <port>]"))
}

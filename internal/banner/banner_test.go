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

package banner

import (
	"bytes"
	"strings"
	"testing"

	"github.com/gookit/color"

	"tcpchat/internal/config"
)

func TestMain(m *testing.M) {
	color.Disable()
	m.Run()
}

func TestGetBanner(t *testing.T) {
	if GetBanner() == "" {
		t.Error("Expected non-empty banner")
	}
}

func TestGetBannerLines(t *testing.T) {
	lines := GetBannerLines()
	if len(lines) == 0 {
		t.Fatal("Expected at least one line in banner")
	}
	if strings.HasSuffix(lines[len(lines)-1], "\n") {
		t.Error("Expected trailing newline to be trimmed")
	}
}

func TestPrintTo(t *testing.T) {
	var buf bytes.Buffer
	PrintTo(&buf)

	output := buf.String()
	if !strings.Contains(output, Version) {
		t.Errorf("Expected output to contain version %s", Version)
	}
	if !strings.Contains(output, "Copyright") {
		t.Error("Expected output to contain copyright")
	}
	if strings.Contains(output, "\033[") {
		t.Error("Expected no escape codes with colors disabled")
	}
}

func TestPrintToolTo(t *testing.T) {
	var buf bytes.Buffer
	PrintToolTo(&buf, "tcpchat-discover", "Network discovery")

	output := buf.String()
	if !strings.Contains(output, "tcpchat-discover") || !strings.Contains(output, "Network discovery") {
		t.Errorf("tool header missing from output:\n%s", output)
	}
}

func TestPrintServerWithConfigTo(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BindAddr = "0.0.0.0:7000"
	cfg.WebSocket.Enabled = true
	cfg.Metrics.Enabled = true
	cfg.ConfigFile = "/etc/tcpchat/tcpchat.json"

	var buf bytes.Buffer
	PrintServerWithConfigTo(&buf, cfg)
	output := buf.String()

	for _, want := range []string{
		"0.0.0.0:7000",
		"/etc/tcpchat/tcpchat.json",
		cfg.WebSocket.Addr + "/ws",
		cfg.Metrics.Addr + "/metrics",
		"LOGS START HERE",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected output to contain %q", want)
		}
	}
	if strings.Contains(output, "Health:") {
		t.Error("Health endpoint shown while disabled")
	}
}

func TestPrintServerWithoutEndpoints(t *testing.T) {
	var buf bytes.Buffer
	PrintServerWithConfigTo(&buf, config.DefaultConfig())
	if !strings.Contains(buf.String(), "none (chat only)") {
		t.Error("Expected the empty endpoint note")
	}
	if !strings.Contains(buf.String(), "defaults + environment") {
		t.Error("Expected default config source")
	}
}

func TestVersionConstant(t *testing.T) {
	if Version == "" {
		t.Error("Expected non-empty version")
	}
}

func TestCopyrightConstant(t *testing.T) {
	if !strings.Contains(Copyright, "Firefly") {
		t.Error("Expected copyright to contain 'Firefly'")
	}
}

func TestLicenseConstant(t *testing.T) {
	if !strings.Contains(License, "Apache") {
		t.Error("Expected license to contain 'Apache'")
	}
}

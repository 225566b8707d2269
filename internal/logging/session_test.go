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

package logging

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestMaskIP(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"192.168.1.20:5000", "192.168.*.*:5000"},
		{"[2001:db8:1:2::5]:80", "[2001:db8:1::/48]:80"},
		{"not-an-addr", "not-an-addr"},
		{"host.local:80", "host.local:80"},
	}
	for _, tt := range tests {
		if got := MaskIP(tt.input); got != tt.want {
			t.Errorf("MaskIP(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSessionLogger(t *testing.T) {
	var buf bytes.Buffer
	SetGlobalOutput(&buf)
	SetColor(false)
	defer SetColor(true)

	sl := NewSessionLogger(NewLogger("session"))
	sl.LogConnected("c1", "10.0.0.7:4000", "tcp")
	sl.LogLogin("c1", "alice", []string{"general", "random"})
	sl.LogLogout("c1", "alice")
	sl.LogDisconnected("c1", "10.0.0.7:4000", "", "eof", time.Second)

	output := buf.String()
	for _, want := range []string{
		"Client connected",
		"remote_addr=10.0.*.*:4000",
		"restored_groups=general,random",
		"User logged out",
		"reason=eof",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected output to contain %q, got: %s", want, output)
		}
	}
	last := strings.Split(strings.TrimSpace(output), "\n")
	if strings.Contains(last[len(last)-1], "username=") {
		t.Error("Anonymous disconnect should not log a username")
	}
}

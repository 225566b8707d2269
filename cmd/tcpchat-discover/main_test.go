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
	"encoding/json"
	"strings"
	"testing"

	"tcpchat/internal/discovery"
)

var sample = []*discovery.Server{
	{Instance: "alpha", Addr: "10.0.0.1:9000", WSAddr: "10.0.0.1:9001", NodeID: "n1", Version: "1.0.0"},
	{Instance: "beta", Addr: "10.0.0.2:9000"},
}

func TestRenderQuiet(t *testing.T) {
	var buf bytes.Buffer
	renderQuiet(&buf, sample)
	if got := strings.TrimSpace(buf.String()); got != "10.0.0.1:9000,10.0.0.2:9000" {
		t.Errorf("renderQuiet() = %q", got)
	}
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := renderJSON(&buf, sample); err != nil {
		t.Fatalf("renderJSON: %v", err)
	}
	var got []discovery.Server
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON %q: %v", buf.String(), err)
	}
	if len(got) != 2 || got[0].WSAddr != "10.0.0.1:9001" || got[1].Instance != "beta" {
		t.Errorf("decoded %+v", got)
	}
	if strings.Contains(buf.String(), `"ws_addr": ""`) {
		t.Error("empty ws_addr should be omitted")
	}

	buf.Reset()
	if err := renderJSON(&buf, nil); err != nil {
		t.Fatalf("renderJSON(nil): %v", err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("renderJSON(nil) = %q, want []", buf.String())
	}
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	renderTable(&buf, sample)
	out := buf.String()

	for _, want := range []string{"INSTANCE", "ADDRESS", "alpha", "10.0.0.1:9001", "beta", "-"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

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
	"net"
	"strings"
	"time"
)

// SessionLogger logs the lifecycle of chat connections and sessions with a
// consistent set of fields.
type SessionLogger struct {
	logger *Logger
}

// NewSessionLogger wraps logger.
func NewSessionLogger(logger *Logger) *SessionLogger {
	return &SessionLogger{logger: logger}
}

// LogConnected logs an accepted connection.
func (sl *SessionLogger) LogConnected(connID, remoteAddr, transport string) {
	sl.logger.Info("Client connected",
		"conn_id", connID,
		"remote_addr", MaskIP(remoteAddr),
		"transport", transport,
	)
}

// LogDisconnected logs a closed connection. username is empty for
// connections that never logged in.
func (sl *SessionLogger) LogDisconnected(connID, remoteAddr, username, reason string, duration time.Duration) {
	args := []any{
		"conn_id", connID,
		"remote_addr", MaskIP(remoteAddr),
		"reason", reason,
		"duration_seconds", duration.Seconds(),
	}
	if username != "" {
		args = append(args, "username", username)
	}
	sl.logger.Info("Client disconnected", args...)
}

// LogLogin logs a successful login and the memberships it restored.
func (sl *SessionLogger) LogLogin(connID, username string, restored []string) {
	args := []any{"conn_id", connID, "username", username}
	if len(restored) > 0 {
		args = append(args, "restored_groups", strings.Join(restored, ","))
	}
	sl.logger.Info("User logged in", args...)
}

// LogLoginFailure logs a rejected login. The password is never logged.
func (sl *SessionLogger) LogLoginFailure(connID, username, reason string) {
	sl.logger.Warn("Login rejected",
		"conn_id", connID,
		"username", username,
		"reason", reason,
	)
}

// LogLogout logs an explicit LOGOUT.
func (sl *SessionLogger) LogLogout(connID, username string) {
	sl.logger.Info("User logged out", "conn_id", connID, "username", username)
}

// MaskIP hides the host part of an address below the network prefix.
func MaskIP(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return addr
	}
	if v4 := ip.To4(); v4 != nil {
		return net.JoinHostPort(maskV4(v4), port)
	}
	return net.JoinHostPort(ip.Mask(net.CIDRMask(48, 128)).String()+"/48", port)
}

func maskV4(ip net.IP) string {
	parts := strings.Split(ip.String(), ".")
	return parts[0] + "." + parts[1] + ".*.*"
}

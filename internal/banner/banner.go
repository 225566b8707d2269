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
Package banner provides the startup banner display for tcpchat.

OVERVIEW:
=========
Displays an ASCII art banner with version information when the server or a
tool starts. Colors come from gookit/color, which drops them automatically
when the output is not a terminal.

USAGE:
======

	banner.PrintTo(w)                     // Banner and version
	banner.PrintServerWithConfigTo(w, cfg) // Banner plus configuration summary

The banner text is embedded at compile time from banner.txt.
*/
package banner

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/gookit/color"

	"tcpchat/internal/config"
)

//go:embed banner.txt
var bannerText string

// Version information
const (
	Version   = "1.0.0"
	Copyright = "Copyright (c) 2026 Firefly Software Solutions Inc."
	License   = "Licensed under Apache License 2.0"
)

// Styles used across the banner and the command line tools.
var (
	Title   = color.Style{color.FgCyan, color.OpBold}
	Product = color.Style{color.FgGreen, color.OpBold}
	Dim     = color.Style{color.OpFuzzy}
	Good    = color.Style{color.FgGreen}
	Warn    = color.Style{color.FgYellow}
	Bad     = color.Style{color.FgRed}
	Heading = color.Style{color.FgCyan, color.OpBold}
)

// GetBanner returns the raw ASCII banner text.
func GetBanner() string {
	return bannerText
}

// GetBannerLines returns the banner as individual lines.
func GetBannerLines() []string {
	return strings.Split(strings.TrimRight(bannerText, "\n"), "\n")
}

// PrintTo writes the banner with a product line to w.
func PrintTo(w io.Writer) {
	printHeader(w, "tcpchat", "Multi-client group chat server")
	fmt.Fprintln(w, "  "+Dim.Sprint(Copyright))
	fmt.Fprintln(w)
}

// PrintToolTo writes the banner for a command line tool.
func PrintToolTo(w io.Writer, name, tagline string) {
	printHeader(w, name, tagline)
}

// PrintServerWithConfig prints the server banner with the effective
// configuration to stdout.
func PrintServerWithConfig(cfg *config.Config) {
	PrintServerWithConfigTo(os.Stdout, cfg)
}

// PrintServerWithConfigTo writes the server banner with configuration to w.
func PrintServerWithConfigTo(w io.Writer, cfg *config.Config) {
	printHeader(w, "tcpchat server", "Multi-client group chat server")

	printConfigSource(w, cfg)
	printCompactConfig(w, cfg)

	fmt.Fprintln(w, "  "+Dim.Sprint(Copyright))
	fmt.Fprintln(w)

	printLogSeparator(w)
}

func printHeader(w io.Writer, name, tagline string) {
	fmt.Fprintln(w)
	for _, line := range GetBannerLines() {
		fmt.Fprintln(w, "  "+Title.Sprint(line))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  "+Product.Sprint(name)+" "+Dim.Sprint("v"+Version))
	fmt.Fprintln(w, "  "+Dim.Sprint(tagline))
	fmt.Fprintln(w)
}

func printLogSeparator(w io.Writer) {
	const lineWidth = 78
	text := " LOGS START HERE "
	padding := (lineWidth - len(text) - 4) / 2
	if padding < 0 {
		padding = 0
	}
	line := strings.Repeat("-", padding)
	fmt.Fprintln(w, "  "+Warn.Sprint("vv"+line)+color.Bold.Sprint(text)+Warn.Sprint(line+"vv"))
	fmt.Fprintln(w)
}

func printConfigSource(w io.Writer, cfg *config.Config) {
	source := Dim.Sprint("defaults + environment")
	if cfg.ConfigFile != "" {
		source = Warn.Sprint(cfg.ConfigFile)
	}
	fmt.Fprintln(w, "  "+Dim.Sprint("Config: ")+source)
	fmt.Fprintln(w)
}

func printCompactConfig(w io.Writer, cfg *config.Config) {
	const lineWidth = 78

	printSectionHeader(w, "Server", lineWidth)
	printRow3(w,
		fmtKV("Listen", Good.Sprint(cfg.BindAddr)),
		fmtKV("Node", cfg.NodeID),
		fmtKV("Log", cfg.LogLevel))
	printRow3(w,
		fmtKV("Groups/user", strconv.Itoa(cfg.Limits.GroupsPerUser)),
		fmtKV("Users/group", strconv.Itoa(cfg.Limits.UsersPerGroup)),
		fmtKV("Write timeout", strconv.Itoa(cfg.WriteTimeoutMs)+"ms"))
	fmt.Fprintln(w)

	printSectionHeader(w, "Credentials", lineWidth)
	location := cfg.Credentials.Path
	if location == "" {
		location = "in-memory"
	}
	printRow2(w, fmtKV("Backend", cfg.Credentials.Backend), fmtKV("Path", location))
	fmt.Fprintln(w)

	printSectionHeader(w, "Features", lineWidth)
	printRow3(w,
		fmtEnabled("WebSocket", cfg.WebSocket.Enabled),
		fmtEnabled("Discovery", cfg.Discovery.Enabled),
		fmtEnabled("Moderation", cfg.Moderation.Enabled))
	fmt.Fprintln(w)

	printSectionHeader(w, "Endpoints", lineWidth)
	printEndpoints(w, cfg)
	fmt.Fprintln(w)
}

func printEndpoints(w io.Writer, cfg *config.Config) {
	var items []string
	if cfg.WebSocket.Enabled {
		items = append(items, fmtKV("WebSocket", cfg.WebSocket.Addr+cfg.WebSocket.Path))
	}
	if cfg.Health.Enabled {
		items = append(items, fmtKV("Health", cfg.Health.Addr))
	}
	if cfg.Metrics.Enabled {
		items = append(items, fmtKV("Metrics", cfg.Metrics.Addr+"/metrics"))
	}
	if len(items) == 0 {
		fmt.Fprintln(w, "  "+Dim.Sprint("none (chat only)"))
		return
	}
	for _, item := range items {
		fmt.Fprintln(w, "  "+item)
	}
}

func printSectionHeader(w io.Writer, title string, width int) {
	titleLen := len(title) + 4 // "[ title ]"
	leftPad := 2
	rightPad := width - leftPad - titleLen
	if rightPad < 0 {
		rightPad = 0
	}
	fmt.Fprintf(w, "  %s[ %s ]%s\n",
		Dim.Sprint(strings.Repeat("-", leftPad)),
		Heading.Sprint(title),
		Dim.Sprint(strings.Repeat("-", rightPad)))
}

func fmtKV(key, value string) string {
	return Dim.Sprint(key+":") + " " + value
}

func fmtEnabled(name string, enabled bool) string {
	if enabled {
		return Good.Sprint(name)
	}
	return Dim.Sprint(name)
}

func printRow3(w io.Writer, col1, col2, col3 string) {
	fmt.Fprintf(w, "  %-32s %-26s %s\n", col1, col2, col3)
}

func printRow2(w io.Writer, col1, col2 string) {
	fmt.Fprintf(w, "  %-40s %s\n", col1, col2)
}

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
Package cli provides shared output helpers for tcpchat command line tools.

ICONS:
======
Unicode icons prefix status lines:
- IconSuccess (✓), IconError (✗), IconWarning (⚠)
- IconInfo (ℹ), IconArrow (→), IconDot (●)

USAGE:
======

	cli.Success("Found %d server(s)", n)
	cli.Error("Discovery failed: %v", err)

Colors come from gookit/color. They are disabled when NO_COLOR is set or
stdout is not a terminal.
*/
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/gookit/color"
)

// Icons for CLI output
const (
	IconSuccess = "✓"
	IconError   = "✗"
	IconWarning = "⚠"
	IconInfo    = "ℹ"
	IconArrow   = "→"
	IconDot     = "●"
)

// Stdout and Stderr receive the helpers' output.
var (
	Stdout io.Writer = os.Stdout
	Stderr io.Writer = os.Stderr
)

func init() {
	if os.Getenv("NO_COLOR") != "" {
		color.Disable()
	}
	if fileInfo, err := os.Stdout.Stat(); err != nil || fileInfo.Mode()&os.ModeCharDevice == 0 {
		color.Disable()
	}
}

// SetColorsEnabled enables or disables color output.
func SetColorsEnabled(enabled bool) {
	color.Enable = enabled
}

// Success prints a success message.
func Success(format string, args ...any) {
	fmt.Fprintln(Stdout, color.Green.Sprint(IconSuccess+" "+fmt.Sprintf(format, args...)))
}

// Error prints an error message to Stderr.
func Error(format string, args ...any) {
	fmt.Fprintln(Stderr, color.Red.Sprint(IconError+" "+fmt.Sprintf(format, args...)))
}

// Warning prints a warning message.
func Warning(format string, args ...any) {
	fmt.Fprintln(Stdout, color.Yellow.Sprint(IconWarning+" "+fmt.Sprintf(format, args...)))
}

// Info prints an info message.
func Info(format string, args ...any) {
	fmt.Fprintln(Stdout, color.Cyan.Sprint(IconInfo+" "+fmt.Sprintf(format, args...)))
}

// Hint prints a dimmed hint.
func Hint(format string, args ...any) {
	fmt.Fprintln(Stdout, color.OpFuzzy.Sprint("  "+IconArrow+" "+fmt.Sprintf(format, args...)))
}

// Header prints a section title.
func Header(text string) {
	fmt.Fprintln(Stdout, color.Style{color.FgCyan, color.OpBold}.Sprint(text))
}

// Bullet prints an indented list item.
func Bullet(text string) {
	fmt.Fprintln(Stdout, "    "+color.Yellow.Sprint("•")+" "+text)
}

// Example prints an example command with its description.
func Example(description, command string) {
	fmt.Fprintln(Stdout, "  "+color.OpFuzzy.Sprint("# "+description))
	fmt.Fprintln(Stdout, "  "+color.Cyan.Sprint(command))
}

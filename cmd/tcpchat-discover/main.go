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
tcpchat-discover - tcpchat Server Discovery Tool

This tool finds tcpchat servers on the local network using mDNS
(Bonjour/Avahi).

Usage:

	tcpchat-discover                    # Discover servers (5 second timeout)
	tcpchat-discover --timeout 10       # Custom timeout in seconds
	tcpchat-discover --json             # Output as JSON
	tcpchat-discover --quiet            # Only output addresses (for scripting)
*/
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"tcpchat/internal/banner"
	"tcpchat/internal/discovery"
	"tcpchat/pkg/cli"
)

const toolName = "tcpchat-discover"

func main() {
	timeout := flag.Int("timeout", 5, "Discovery timeout in seconds")
	jsonOutput := flag.Bool("json", false, "Output as JSON")
	quiet := flag.Bool("quiet", false, "Only output server addresses (for scripting)")
	help := flag.Bool("help", false, "Show help")
	version := flag.Bool("version", false, "Show version information")
	flag.BoolVar(quiet, "q", false, "Only output server addresses (for scripting)")
	flag.BoolVar(help, "h", false, "Show help")
	flag.BoolVar(version, "v", false, "Show version information")
	flag.Usage = func() { printUsage(os.Stdout) }
	flag.Parse()

	if *help {
		printUsage(os.Stdout)
		return
	}
	if *version {
		banner.PrintToolTo(os.Stdout, toolName, "Network server discovery tool")
		fmt.Println("  " + banner.Dim.Sprint(banner.Copyright))
		fmt.Println()
		return
	}

	// The mDNS library logs IPv6 errors that are not critical.
	log.SetOutput(io.Discard)

	human := !*quiet && !*jsonOutput
	if human {
		banner.PrintToolTo(os.Stdout, toolName, "Network server discovery tool")
		cli.Info("Scanning for tcpchat servers on the network (timeout: %ds)...", *timeout)
		fmt.Println()
	}

	servers, err := discovery.Browse(time.Duration(*timeout) * time.Second)
	if err != nil {
		if !*quiet {
			cli.Error("Discovery failed: %v", err)
		}
		os.Exit(1)
	}

	switch {
	case *jsonOutput:
		if err := renderJSON(os.Stdout, servers); err != nil {
			cli.Error("Encoding output: %v", err)
			os.Exit(1)
		}
	case *quiet:
		renderQuiet(os.Stdout, servers)
	case len(servers) == 0:
		printTroubleshooting()
	default:
		cli.Success("Found %d tcpchat server(s)", len(servers))
		fmt.Println()
		renderTable(os.Stdout, servers)
		fmt.Println()
	}
}

func printUsage(w io.Writer) {
	banner.PrintToolTo(w, toolName, "Network server discovery tool")
	h := banner.Heading
	fmt.Fprintln(w, h.Sprint("Usage:")+" tcpchat-discover [options]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, h.Sprint("OPTIONS"))
	fmt.Fprintln(w, "    --timeout <seconds>   Discovery timeout (default: 5)")
	fmt.Fprintln(w, "    --json                Output results as JSON")
	fmt.Fprintln(w, "    --quiet, -q           Only output addresses (for scripting)")
	fmt.Fprintln(w, "    --version, -v         Show version information")
	fmt.Fprintln(w, "    --help, -h            Show this help message")
	fmt.Fprintln(w)
	fmt.Fprintln(w, h.Sprint("NETWORK REQUIREMENTS"))
	fmt.Fprintln(w, "    mDNS uses UDP port 5353 (multicast)")
	fmt.Fprintln(w, "    Servers must be on the same network segment")
	fmt.Fprintln(w)
}

func printTroubleshooting() {
	cli.Warning("No tcpchat servers found on the network.")
	fmt.Println()
	cli.Header("TROUBLESHOOTING")
	cli.Bullet("Servers are not running with TCPCHAT_DISCOVERY_ENABLED=true")
	cli.Bullet("mDNS/Bonjour is blocked by a firewall (UDP port 5353)")
	cli.Bullet("Servers are on a different network segment")
	fmt.Println()
	cli.Example("Increase the timeout", "tcpchat-discover --timeout 10")
	fmt.Println()
}

func renderJSON(w io.Writer, servers []*discovery.Server) error {
	if servers == nil {
		servers = []*discovery.Server{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(servers)
}

func renderQuiet(w io.Writer, servers []*discovery.Server) {
	addrs := make([]string, len(servers))
	for i, s := range servers {
		addrs[i] = s.Addr
	}
	fmt.Fprintln(w, strings.Join(addrs, ","))
}

func renderTable(w io.Writer, servers []*discovery.Server) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Instance", "Address", "WebSocket", "Node", "Version"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, s := range servers {
		table.Append([]string{s.Instance, s.Addr, orDash(s.WSAddr), orDash(s.NodeID), orDash(s.Version)})
	}
	table.Render()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

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
Package discovery advertises and finds tcpchat servers on the local network
using mDNS (Bonjour/Avahi).

SERVICE RECORD:
===============
Servers register ServiceType in the "local." domain. The TXT record carries:

	version=<build version>
	node=<node id>
	ws=<websocket address, when the gateway is enabled>

Browse sends one query and collects answers until the timeout expires.
*/
package discovery

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/samber/lo"

	"tcpchat/internal/logging"
)

// ServiceType is the DNS-SD service type of a tcpchat server.
const ServiceType = "_tcpchat._tcp"

// Domain is the mDNS domain.
const Domain = "local."

// DefaultTimeout is how long Browse waits when given no timeout.
const DefaultTimeout = 5 * time.Second

// ErrNoPort is returned when the advertised address has no usable port.
var ErrNoPort = errors.New("advertised address has no port")

// Config describes the server to advertise.
type Config struct {
	Instance string // Instance name, defaults to NodeID
	NodeID   string
	Addr     string // Client address, host:port
	WSAddr   string // WebSocket address, empty when disabled
	Version  string
}

// Server is a tcpchat server found on the network.
type Server struct {
	Instance string `json:"instance"`
	NodeID   string `json:"node_id,omitempty"`
	Addr     string `json:"addr"`
	WSAddr   string `json:"ws_addr,omitempty"`
	Version  string `json:"version,omitempty"`
	Host     string `json:"host,omitempty"`
}

// Advertiser answers mDNS queries for this server.
type Advertiser struct {
	cfg    Config
	logger *logging.Logger

	mu     sync.Mutex
	server *mdns.Server
}

// NewAdvertiser creates an advertiser for cfg. Nothing is sent before Start.
func NewAdvertiser(cfg Config) *Advertiser {
	if cfg.Instance == "" {
		cfg.Instance = cfg.NodeID
	}
	return &Advertiser{cfg: cfg, logger: logging.NewLogger("discovery")}
}

// Start registers the service.
func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		return nil
	}

	host, port, err := splitAddr(a.cfg.Addr)
	if err != nil {
		return err
	}
	var ips []net.IP
	if ip := net.ParseIP(host); ip != nil && !ip.IsUnspecified() {
		ips = []net.IP{ip}
	}
	hostname, err := os.Hostname()
	if err != nil {
		return fmt.Errorf("hostname: %w", err)
	}
	fqdn := hostname + "."

	service, err := mdns.NewMDNSService(a.cfg.Instance, ServiceType, Domain, fqdn, port, ips, txtRecords(a.cfg))
	if err != nil {
		return fmt.Errorf("create mdns service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("start mdns server: %w", err)
	}
	a.server = server
	a.logger.Info("Advertising service", "instance", a.cfg.Instance, "type", ServiceType, "port", port)
	return nil
}

// Stop withdraws the service. Safe to call more than once.
func (a *Advertiser) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server == nil {
		return nil
	}
	err := a.server.Shutdown()
	a.server = nil
	return err
}

// Browse returns the servers that answered within timeout, ordered by
// instance name.
func Browse(timeout time.Duration) ([]*Server, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	entries := make(chan *mdns.ServiceEntry, 16)
	var found []*Server
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range entries {
			if s := parseEntry(e); s != nil {
				found = append(found, s)
			}
		}
	}()

	params := mdns.DefaultParams(ServiceType)
	params.Domain = strings.TrimSuffix(Domain, ".")
	params.Timeout = timeout
	params.Entries = entries
	params.DisableIPv6 = true
	err := mdns.Query(params)
	close(entries)
	<-done
	if err != nil {
		return nil, fmt.Errorf("mdns query: %w", err)
	}

	found = lo.UniqBy(found, func(s *Server) string { return s.Instance + "|" + s.Addr })
	sort.Slice(found, func(i, j int) bool { return found[i].Instance < found[j].Instance })
	return found, nil
}

func txtRecords(cfg Config) []string {
	txt := []string{"version=" + cfg.Version, "node=" + cfg.NodeID}
	if cfg.WSAddr != "" {
		txt = append(txt, "ws="+cfg.WSAddr)
	}
	return txt
}

// parseEntry turns an answer into a Server. Answers for other service
// types are ignored.
func parseEntry(e *mdns.ServiceEntry) *Server {
	suffix := "." + ServiceType + "." + Domain
	if e == nil || !strings.HasSuffix(e.Name, suffix) {
		return nil
	}
	s := &Server{
		Instance: strings.ReplaceAll(strings.TrimSuffix(e.Name, suffix), `\ `, " "),
		Host:     strings.TrimSuffix(e.Host, "."),
	}

	ip := e.AddrV4
	if ip == nil {
		ip = e.AddrV6
	}
	if ip != nil {
		s.Addr = net.JoinHostPort(ip.String(), strconv.Itoa(e.Port))
	} else if s.Host != "" {
		s.Addr = net.JoinHostPort(s.Host, strconv.Itoa(e.Port))
	}

	for _, field := range e.InfoFields {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch key {
		case "version":
			s.Version = value
		case "node":
			s.NodeID = value
		case "ws":
			s.WSAddr = value
		}
	}
	return s
}

func splitAddr(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("advertised address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("%w: %q", ErrNoPort, addr)
	}
	return host, port, nil
}

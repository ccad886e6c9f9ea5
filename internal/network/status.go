// Package network reports link availability and whether the active link is wireless.
package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tis24dev/savesync/internal/logging"
)

// DefaultSysNet is the sysfs directory listing network interfaces.
const DefaultSysNet = "/sys/class/net"

// DefaultRouteTable is the kernel IPv4 routing table.
const DefaultRouteTable = "/proc/net/route"

// rtfUp is RTF_UP from the route flags column.
const rtfUp = 0x1

// DialFunc opens a connection; net.Dialer.DialContext satisfies it.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Link describes one network interface as seen in sysfs.
type Link struct {
	Name     string
	Up       bool
	Wireless bool
}

// Status implements the network checks consulted before an auto backup.
type Status struct {
	sysNet       string
	routeTable   string
	probeAddress string
	probeTimeout time.Duration
	dial         DialFunc
	logger       *logging.Logger
}

// Option configures a Status.
type Option func(*Status)

// WithSysNet overrides the sysfs network directory.
func WithSysNet(dir string) Option {
	return func(s *Status) { s.sysNet = dir }
}

// WithRouteTable overrides the routing table used to find the active link.
func WithRouteTable(path string) Option {
	return func(s *Status) { s.routeTable = path }
}

// WithProbe enables a TCP reachability probe against address.
func WithProbe(address string, timeout time.Duration) Option {
	return func(s *Status) {
		s.probeAddress = strings.TrimSpace(address)
		s.probeTimeout = timeout
	}
}

// WithDialer replaces the dialer used by the probe.
func WithDialer(dial DialFunc) Option {
	return func(s *Status) { s.dial = dial }
}

// New creates a Status reading DefaultSysNet.
func New(logger *logging.Logger, opts ...Option) *Status {
	var d net.Dialer
	s := &Status{
		sysNet:       DefaultSysNet,
		routeTable:   DefaultRouteTable,
		probeTimeout: 3 * time.Second,
		dial:         d.DialContext,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	return s
}

// Links lists the non-loopback interfaces.
func (s *Status) Links() []Link {
	entries, err := os.ReadDir(s.sysNet)
	if err != nil {
		s.logger.Debug("Network status: unable to read %s: %v", s.sysNet, err)
		return nil
	}

	var links []Link
	for _, entry := range entries {
		name := strings.TrimSpace(entry.Name())
		if name == "" || name == "lo" {
			continue
		}
		netPath := filepath.Join(s.sysNet, name)
		links = append(links, Link{
			Name:     name,
			Up:       linkUp(netPath),
			Wireless: isWireless(netPath),
		})
	}
	return links
}

// IsAvailable reports whether some link is up and, when a probe is
// configured, the probe address answers.
func (s *Status) IsAvailable() bool {
	up := false
	for _, link := range s.Links() {
		if link.Up {
			up = true
			break
		}
	}
	if !up {
		return false
	}
	if s.probeAddress == "" {
		return true
	}
	return s.probe()
}

// IsWifi reports whether the link carrying the default route is wireless.
// Without a readable routing table every up link must be wireless.
func (s *Status) IsWifi() bool {
	links := s.Links()

	iface, err := defaultRouteInterface(s.routeTable)
	if err != nil {
		s.logger.Debug("Network status: %v", err)
		up := false
		for _, link := range links {
			if !link.Up {
				continue
			}
			if !link.Wireless {
				return false
			}
			up = true
		}
		return up
	}

	for _, link := range links {
		if link.Name == iface {
			s.logger.Debug("Network status: active link %s (up=%v wireless=%v)", iface, link.Up, link.Wireless)
			return link.Up && link.Wireless
		}
	}
	s.logger.Debug("Network status: default route via %s, not found in %s", iface, s.sysNet)
	return false
}

// defaultRouteInterface picks the up default route with the lowest metric.
func defaultRouteInterface(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read routing table: %w", err)
	}

	best := ""
	bestMetric := int64(-1)
	lines := strings.Split(string(data), "\n")
	for _, line := range lines[1:] {
		fields := strings.Fields(line)
		// Iface Destination Gateway Flags RefCnt Use Metric Mask ...
		if len(fields) < 8 || fields[1] != "00000000" || fields[7] != "00000000" {
			continue
		}
		flags, err := strconv.ParseUint(fields[3], 16, 32)
		if err != nil || flags&rtfUp == 0 {
			continue
		}
		metric, err := strconv.ParseInt(fields[6], 10, 64)
		if err != nil {
			continue
		}
		if bestMetric < 0 || metric < bestMetric {
			best, bestMetric = fields[0], metric
		}
	}
	if best == "" {
		return "", errors.New("no default route")
	}
	return best, nil
}

func (s *Status) probe() bool {
	ctx, cancel := context.WithTimeout(context.Background(), s.probeTimeout)
	defer cancel()

	conn, err := s.dial(ctx, "tcp", s.probeAddress)
	if err != nil {
		s.logger.Debug("Network probe %s failed: %v", s.probeAddress, err)
		return false
	}
	_ = conn.Close()
	return true
}

func linkUp(netPath string) bool {
	switch readTrimmedLine(filepath.Join(netPath, "operstate"), 32) {
	case "up":
		return true
	case "unknown":
		// Some drivers (tun, ppp) never report operstate; trust the carrier.
		return readTrimmedLine(filepath.Join(netPath, "carrier"), 8) == "1"
	default:
		return false
	}
}

func isWireless(netPath string) bool {
	for _, marker := range []string{"wireless", "phy80211"} {
		if _, err := os.Stat(filepath.Join(netPath, marker)); err == nil {
			return true
		}
	}
	return false
}

func readTrimmedLine(path string, max int) string {
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return ""
	}
	line := strings.TrimSpace(string(data))
	if max > 0 && len(line) > max {
		return line[:max]
	}
	return line
}

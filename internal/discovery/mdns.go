// ABOUTME: mDNS service discovery for dubcast backends
// ABOUTME: Handles advertisement by the backend and browsing by the player
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/dubcast/dubcast-go/pkg/transport"
	"github.com/hashicorp/mdns"
	"go.uber.org/zap"
)

// ServiceType is the mDNS service dubcast backends advertise
const ServiceType = "_dubcast-backend._tcp"

// ErrNotFound is returned when no backend answers before the deadline
var ErrNotFound = errors.New("no dubcast backend found")

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int
	StreamPath  string // advertised HTTP stream path
	WSPath      string // advertised WebSocket path
	Logger      *zap.Logger
}

// Manager handles mDNS operations
type Manager struct {
	config   Config
	logger   *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	backends chan *BackendInfo
}

// BackendInfo describes a discovered backend
type BackendInfo struct {
	Name       string
	Host       string
	Port       int
	StreamPath string
	WSPath     string
}

// HTTPURL returns the stream endpoint of the backend
func (b *BackendInfo) HTTPURL() string {
	return "http://" + net.JoinHostPort(b.Host, strconv.Itoa(b.Port)) + b.StreamPath
}

// WSURL returns the WebSocket endpoint of the backend
func (b *BackendInfo) WSURL() string {
	return "ws://" + net.JoinHostPort(b.Host, strconv.Itoa(b.Port)) + b.WSPath
}

// BaseURL returns the backend root URL
func (b *BackendInfo) BaseURL() string {
	return "http://" + net.JoinHostPort(b.Host, strconv.Itoa(b.Port))
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config:   config,
		logger:   config.Logger,
		ctx:      ctx,
		cancel:   cancel,
		backends: make(chan *BackendInfo, 10),
	}
}

// txtRecords renders the advertised paths
func (c Config) txtRecords() []string {
	var txt []string
	if c.StreamPath != "" {
		txt = append(txt, "path="+c.StreamPath)
	}
	if c.WSPath != "" {
		txt = append(txt, "ws="+c.WSPath)
	}
	return txt
}

// Advertise announces this backend until Stop is called
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		m.config.txtRecords(),
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	m.logger.Info("advertising mDNS service",
		zap.String("name", m.config.ServiceName),
		zap.Int("port", m.config.Port),
		zap.String("type", ServiceType))

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse searches for backends until Stop is called. Results arrive on
// Backends.
func (m *Manager) Browse(interval time.Duration) {
	go m.browseLoop(interval)
}

func (m *Manager) browseLoop(interval time.Duration) {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)
		go func() {
			for entry := range entries {
				info := fromEntry(entry)
				m.logger.Debug("discovered backend",
					zap.String("name", info.Name),
					zap.String("url", info.BaseURL()))
				select {
				case m.backends <- info:
				case <-m.ctx.Done():
				}
			}
		}()

		params := mdns.DefaultParams(ServiceType)
		params.Entries = entries
		params.Timeout = interval
		params.DisableIPv6 = true
		if err := mdns.Query(params); err != nil {
			m.logger.Warn("mDNS query failed", zap.Error(err))
		}
		close(entries)
	}
}

// Backends returns the channel of discovered backends
func (m *Manager) Backends() <-chan *BackendInfo {
	return m.backends
}

// Stop stops the discovery manager
func (m *Manager) Stop() {
	m.cancel()
}

// Find returns the first backend that answers within timeout
func Find(ctx context.Context, timeout time.Duration, logger *zap.Logger) (*BackendInfo, error) {
	mgr := NewManager(Config{Logger: logger})
	defer mgr.Stop()
	mgr.Browse(timeout)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case info := <-mgr.Backends():
		return info, nil
	case <-timer.C:
		return nil, ErrNotFound
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func fromEntry(entry *mdns.ServiceEntry) *BackendInfo {
	info := &BackendInfo{
		Name:       strings.TrimSuffix(entry.Name, "."+ServiceType+".local."),
		Port:       entry.Port,
		StreamPath: transport.DefaultPath,
		WSPath:     transport.DefaultWSPath,
	}
	if entry.AddrV4 != nil {
		info.Host = entry.AddrV4.String()
	} else if entry.AddrV6 != nil {
		info.Host = entry.AddrV6.String()
	} else {
		info.Host = strings.TrimSuffix(entry.Host, ".")
	}
	for _, field := range entry.InfoFields {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch key {
		case "path":
			info.StreamPath = value
		case "ws":
			info.WSPath = value
		}
	}
	return info
}

// getLocalIPs returns local IP addresses
func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}

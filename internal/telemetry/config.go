package telemetry

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/crosve/Csphere/internal/config"
)

// OTLP protocols accepted in telemetry.protocol.
const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http/protobuf"
)

// Config is the telemetry section of the csphere config file.
//
//	telemetry:
//	  enabled: true
//	  endpoint: localhost:4317
//	  protocol: grpc
//	  sample_rate: 0.25
//	  metrics_interval: 15s   # 0 turns metric export off
type Config struct {
	Enabled         bool            `koanf:"enabled"`
	Endpoint        string          `koanf:"endpoint"`
	Protocol        string          `koanf:"protocol"`
	Insecure        bool            `koanf:"insecure"`
	ServiceName     string          `koanf:"service_name"`
	ServiceVersion  string          `koanf:"service_version"`
	SampleRate      float64         `koanf:"sample_rate"`
	MetricsInterval config.Duration `koanf:"metrics_interval"`
	ShutdownTimeout config.Duration `koanf:"shutdown_timeout"`
}

// NewDefaultConfig returns the defaults: export off, a local insecure gRPC
// collector once enabled, every trace sampled.
func NewDefaultConfig() *Config {
	return &Config{
		Endpoint:        "localhost:4317",
		Protocol:        ProtocolGRPC,
		Insecure:        true,
		ServiceName:     "csphere",
		ServiceVersion:  "dev",
		SampleRate:      1.0,
		MetricsInterval: config.Duration(15 * time.Second),
		ShutdownTimeout: config.Duration(5 * time.Second),
	}
}

// Validate checks an enabled config. A disabled one is always valid.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	var errs []error
	if c.Endpoint == "" {
		errs = append(errs, errors.New("endpoint is required"))
	}
	if c.ServiceName == "" {
		errs = append(errs, errors.New("service_name is required"))
	}
	switch c.Protocol {
	case "", ProtocolGRPC, ProtocolHTTP:
	default:
		errs = append(errs, fmt.Errorf("protocol must be %s or %s, got %q", ProtocolGRPC, ProtocolHTTP, c.Protocol))
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("sample_rate must be between 0 and 1, got %g", c.SampleRate))
	}
	if c.MetricsInterval < 0 {
		errs = append(errs, errors.New("metrics_interval cannot be negative"))
	}
	if c.ShutdownTimeout.Duration() <= 0 {
		errs = append(errs, errors.New("shutdown_timeout must be positive"))
	}
	if c.Insecure && c.Endpoint != "" && !isLoopback(c.Endpoint) {
		errs = append(errs, fmt.Errorf("insecure export to remote endpoint %q is not allowed", c.Endpoint))
	}
	return errors.Join(errs...)
}

// isLoopback reports whether endpoint (host, host:port or a URL) names the
// local machine.
func isLoopback(endpoint string) bool {
	host := stripScheme(endpoint)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// stripScheme removes an http:// or https:// prefix; the OTLP exporters
// want host:port.
func stripScheme(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "https://")
	return strings.TrimPrefix(endpoint, "http://")
}

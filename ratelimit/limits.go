package ratelimit

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

/* Limits manages per-endpoint window configuration from limits.yaml
 * Provides in-memory lookup for fast access; endpoints not listed fall
 * back to the limiter's defaults
 */

// LimitsFile represents the structure of limits.yaml
type LimitsFile struct {
	Endpoints []EndpointConfig `yaml:"endpoints"`
}

// EndpointConfig represents a single endpoint entry in the YAML file
type EndpointConfig struct {
	Endpoint string `yaml:"endpoint"`  // e.g. "POST /webhooks/notify"
	WindowMs int    `yaml:"window_ms"` // window length in milliseconds
	Max      int    `yaml:"max"`       // requests allowed per window
}

// Validate checks if the endpoint configuration is valid
func (e *EndpointConfig) Validate() error {
	if e.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}
	if e.WindowMs <= 0 {
		return fmt.Errorf("window_ms must be positive for endpoint %s", e.Endpoint)
	}
	if e.Max <= 0 {
		return fmt.Errorf("max must be positive for endpoint %s", e.Endpoint)
	}
	return nil
}

// Limits holds the loaded endpoint configurations
type Limits struct {
	endpoints map[string]Config
}

// NewLimits creates an empty limits table
func NewLimits() *Limits {
	return &Limits{
		endpoints: make(map[string]Config),
	}
}

// Load reads and parses the limits.yaml file
func (l *Limits) Load(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("reading limits file: %w", err)
	}

	var file LimitsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing limits YAML: %w", err)
	}

	for _, ec := range file.Endpoints {
		if err := ec.Validate(); err != nil {
			return fmt.Errorf("validating endpoint limit: %w", err)
		}
		l.endpoints[ec.Endpoint] = Config{
			Window: time.Duration(ec.WindowMs) * time.Millisecond,
			Max:    ec.Max,
		}
	}
	return nil
}

// Get retrieves the configuration for an endpoint
func (l *Limits) Get(endpoint string) (Config, bool) {
	cfg, exists := l.endpoints[endpoint]
	return cfg, exists
}

// Set registers an endpoint configuration programmatically
func (l *Limits) Set(endpoint string, cfg Config) {
	l.endpoints[endpoint] = cfg
}

// List returns all configured endpoints
func (l *Limits) List() map[string]Config {
	endpoints := make(map[string]Config, len(l.endpoints))
	for endpoint, cfg := range l.endpoints {
		endpoints[endpoint] = cfg
	}
	return endpoints
}

// Exists checks if an endpoint has a dedicated configuration
func (l *Limits) Exists(endpoint string) bool {
	_, exists := l.endpoints[endpoint]
	return exists
}

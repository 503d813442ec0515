// Copyright 2025 SurveyFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"log"
	"os"
	"regexp"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"surveyflow/platform/connectors/base"
)

// ConfigFile represents the structure of a SurveyFlow YAML configuration file
type ConfigFile struct {
	Version      string                  `yaml:"version"`
	Connectors   []ConnectorFileConfig   `yaml:"connectors"`
	Destinations []DestinationFileConfig `yaml:"destinations"`
}

// ConnectorFileConfig represents a survey connector in the config file
type ConnectorFileConfig struct {
	Name        string                 `yaml:"name"`
	Type        string                 `yaml:"type"`
	DisplayName string                 `yaml:"display_name,omitempty"`
	DataCenter  string                 `yaml:"data_center,omitempty"`
	BaseURL     string                 `yaml:"base_url,omitempty"`
	Credentials map[string]string      `yaml:"credentials,omitempty"`
	Options     map[string]interface{} `yaml:"options,omitempty"`
	TimeoutMs   int                    `yaml:"timeout_ms,omitempty"`
	MaxRetries  int                    `yaml:"max_retries,omitempty"`
	Enabled     *bool                  `yaml:"enabled,omitempty"`
}

// DestinationFileConfig represents an export destination in the config file
type DestinationFileConfig struct {
	Name        string                 `yaml:"name"`
	Type        string                 `yaml:"type"`
	DisplayName string                 `yaml:"display_name,omitempty"`
	Config      map[string]interface{} `yaml:"config,omitempty"`
	Credentials map[string]string      `yaml:"credentials,omitempty"`
	Format      string                 `yaml:"format,omitempty"`
	Enabled     *bool                  `yaml:"enabled,omitempty"`
}

// YAMLConfigFileLoader loads connector and destination configurations
// from a YAML file, re-reading it when the file changes on disk
type YAMLConfigFileLoader struct {
	path     string
	logger   *log.Logger
	mu       sync.RWMutex
	loaded   *ConfigFile
	loadedAt time.Time
	modTime  time.Time
}

// NewYAMLConfigFileLoader creates a loader for the given config file path
func NewYAMLConfigFileLoader(path string, logger *log.Logger) *YAMLConfigFileLoader {
	if logger == nil {
		logger = log.New(os.Stdout, "[CONFIG_FILE] ", log.LstdFlags)
	}
	return &YAMLConfigFileLoader{
		path:   path,
		logger: logger,
	}
}

// envVarRegex matches ${VAR} and ${VAR:-default} references in config values
var envVarRegex = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandEnvVars substitutes environment variable references in a string.
// ${VAR} expands to the variable's value (empty if unset);
// ${VAR:-default} falls back to the default when the variable is unset or empty.
func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		groups := envVarRegex.FindStringSubmatch(match)
		name := groups[1]
		fallback := groups[3]
		if value := os.Getenv(name); value != "" {
			return value
		}
		return fallback
	})
}

// reload re-reads the config file if it changed since the last load
func (l *YAMLConfigFileLoader) reload() (*ConfigFile, error) {
	info, err := os.Stat(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file %s: %w", l.path, err)
	}

	l.mu.RLock()
	cached := l.loaded
	cachedModTime := l.modTime
	l.mu.RUnlock()

	if cached != nil && info.ModTime().Equal(cachedModTime) {
		return cached, nil
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", l.path, err)
	}

	expanded := expandEnvVars(string(data))

	var cfg ConfigFile
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", l.path, err)
	}

	if err := ValidateConfigFile(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", l.path, err)
	}

	l.mu.Lock()
	l.loaded = &cfg
	l.loadedAt = time.Now()
	l.modTime = info.ModTime()
	l.mu.Unlock()

	l.logger.Printf("Loaded config file %s (%d connectors, %d destinations)",
		l.path, len(cfg.Connectors), len(cfg.Destinations))
	return &cfg, nil
}

// LoadConnectors returns the enabled connector configs from the file.
// The file format is tenant-agnostic; the given tenantID is stamped onto
// every returned config.
func (l *YAMLConfigFileLoader) LoadConnectors(tenantID string) ([]*base.ConnectorConfig, error) {
	cfg, err := l.reload()
	if err != nil {
		return nil, err
	}

	var configs []*base.ConnectorConfig
	for _, fc := range cfg.Connectors {
		if fc.Enabled != nil && !*fc.Enabled {
			continue
		}

		options := make(map[string]interface{}, len(fc.Options)+1)
		for k, v := range fc.Options {
			options[k] = v
		}
		if fc.BaseURL != "" {
			options["base_url"] = fc.BaseURL
		}

		credentials := make(map[string]string, len(fc.Credentials))
		for k, v := range fc.Credentials {
			credentials[k] = v
		}

		timeout := 30 * time.Second
		if fc.TimeoutMs > 0 {
			timeout = time.Duration(fc.TimeoutMs) * time.Millisecond
		}

		configs = append(configs, &base.ConnectorConfig{
			Name:        fc.Name,
			Type:        fc.Type,
			DataCenter:  fc.DataCenter,
			Credentials: credentials,
			Options:     options,
			Timeout:     timeout,
			MaxRetries:  fc.MaxRetries,
			TenantID:    tenantID,
		})
	}

	return configs, nil
}

// LoadDestinations returns the enabled destination configs from the file
func (l *YAMLConfigFileLoader) LoadDestinations(tenantID string) ([]*DestinationConfig, error) {
	cfg, err := l.reload()
	if err != nil {
		return nil, err
	}

	var configs []*DestinationConfig
	for _, fd := range cfg.Destinations {
		if fd.Enabled != nil && !*fd.Enabled {
			continue
		}

		format := fd.Format
		if format == "" {
			format = "csv"
		}

		dcfg := make(map[string]interface{}, len(fd.Config))
		for k, v := range fd.Config {
			dcfg[k] = v
		}

		credentials := make(map[string]string, len(fd.Credentials))
		for k, v := range fd.Credentials {
			credentials[k] = v
		}

		configs = append(configs, &DestinationConfig{
			TenantID:    tenantID,
			Name:        fd.Name,
			Type:        fd.Type,
			DisplayName: fd.DisplayName,
			Config:      dcfg,
			Credentials: credentials,
			Format:      format,
			Enabled:     true,
		})
	}

	return configs, nil
}

// ValidateConfigFile checks a parsed config file for structural problems
func ValidateConfigFile(cfg *ConfigFile) error {
	if cfg == nil {
		return fmt.Errorf("config file is empty")
	}

	seenConnectors := make(map[string]bool)
	for i, fc := range cfg.Connectors {
		if fc.Name == "" {
			return fmt.Errorf("connector %d: name is required", i)
		}
		if fc.Type == "" {
			return fmt.Errorf("connector %q: type is required", fc.Name)
		}
		if seenConnectors[fc.Name] {
			return fmt.Errorf("duplicate connector name %q", fc.Name)
		}
		seenConnectors[fc.Name] = true

		if fc.Type == "qualtrics" && fc.BaseURL == "" && fc.DataCenter == "" {
			return fmt.Errorf("connector %q: base_url or data_center is required", fc.Name)
		}
	}

	seenDestinations := make(map[string]bool)
	for i, fd := range cfg.Destinations {
		if fd.Name == "" {
			return fmt.Errorf("destination %d: name is required", i)
		}
		switch fd.Type {
		case "s3", "gcs", "azblob", "file":
		case "":
			return fmt.Errorf("destination %q: type is required", fd.Name)
		default:
			return fmt.Errorf("destination %q: unknown type %q", fd.Name, fd.Type)
		}
		if seenDestinations[fd.Name] {
			return fmt.Errorf("duplicate destination name %q", fd.Name)
		}
		seenDestinations[fd.Name] = true

		if fd.Format != "" && fd.Format != "csv" && fd.Format != "json" {
			return fmt.Errorf("destination %q: format must be csv or json", fd.Name)
		}
	}

	return nil
}

// GenerateExampleConfigFile returns an annotated example configuration
func GenerateExampleConfigFile() string {
	return `# SurveyFlow configuration
version: "1"

connectors:
  - name: qualtrics-prod
    type: qualtrics
    display_name: "Qualtrics (Production)"
    data_center: ca1
    credentials:
      api_token: ${QUALTRICS_API_TOKEN}
    options:
      poll_interval_seconds: 10
      max_poll_attempts: 18
    timeout_ms: 30000
    max_retries: 3

destinations:
  - name: warehouse-bucket
    type: s3
    display_name: "Response warehouse"
    format: csv
    config:
      bucket: ${EXPORT_BUCKET:-surveyflow-exports}
      region: us-east-1
      prefix: responses/

  - name: local-dev
    type: file
    format: json
    enabled: false
    config:
      directory: ./exports
`
}

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
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"surveyflow/platform/connectors/base"
)

// SecretsManager provides an interface for retrieving secrets
// This allows for different implementations (AWS Secrets Manager, local map, env vars)
type SecretsManager interface {
	GetSecret(ctx context.Context, secretARN string) (map[string]string, error)
}

// DestinationConfig represents configuration for an export destination
// (where normalized survey response tables are delivered)
type DestinationConfig struct {
	ID                   string                 `json:"id"`
	TenantID             string                 `json:"tenant_id"`
	Name                 string                 `json:"name"`
	Type                 string                 `json:"type"` // s3, gcs, azblob, file
	DisplayName          string                 `json:"display_name,omitempty"`
	Config               map[string]interface{} `json:"config"`
	CredentialsSecretARN string                 `json:"credentials_secret_arn,omitempty"`
	Credentials          map[string]string      `json:"-"` // Populated at runtime, never serialized
	Format               string                 `json:"format"` // csv or json
	Enabled              bool                   `json:"enabled"`
	HealthStatus         string                 `json:"health_status"`
}

// ConnectorConfigDB represents a connector config as stored in the database
type ConnectorConfigDB struct {
	ID                       string                 `json:"id"`
	TenantID                 string                 `json:"tenant_id"`
	ConnectorName            string                 `json:"connector_name"`
	ConnectorType            string                 `json:"connector_type"`
	DisplayName              string                 `json:"display_name,omitempty"`
	Description              string                 `json:"description,omitempty"`
	DataCenter               string                 `json:"data_center,omitempty"`
	BaseURL                  string                 `json:"base_url,omitempty"`
	Options                  map[string]interface{} `json:"options"`
	CredentialsSecretARN     string                 `json:"credentials_secret_arn,omitempty"`
	CredentialsSecretVersion string                 `json:"credentials_secret_version,omitempty"`
	TimeoutMs                int                    `json:"timeout_ms"`
	MaxRetries               int                    `json:"max_retries"`
	Enabled                  bool                   `json:"enabled"`
	HealthStatus             string                 `json:"health_status"`
}

// ConfigSource indicates where a configuration was loaded from
type ConfigSource string

const (
	ConfigSourceDatabase ConfigSource = "database"
	ConfigSourceFile     ConfigSource = "config_file"
	ConfigSourceEnvVars  ConfigSource = "env_vars"
)

// RuntimeConfigService manages runtime configuration loading with caching
// Implements three-tier configuration priority: Database > Config File > Env Vars
type RuntimeConfigService struct {
	db             *sql.DB
	cache          *ConfigCache
	secretsManager SecretsManager
	logger         *log.Logger
	mu             sync.RWMutex

	// Configuration sources (in priority order)
	configFile string // Path to YAML config file (self-hosted mode)
	selfHosted bool   // If true, prefer config file over database

	// Config file loader (set by SetConfigFileLoader)
	fileLoader ConfigFileLoader
}

// ConfigFileLoader interface for loading configs from files
type ConfigFileLoader interface {
	LoadConnectors(tenantID string) ([]*base.ConnectorConfig, error)
	LoadDestinations(tenantID string) ([]*DestinationConfig, error)
}

// RuntimeConfigServiceOptions holds options for creating a RuntimeConfigService
type RuntimeConfigServiceOptions struct {
	DB             *sql.DB
	SecretsManager SecretsManager
	ConfigFile     string
	SelfHosted     bool
	CacheTTL       time.Duration
	Logger         *log.Logger
}

// NewRuntimeConfigService creates a new RuntimeConfigService
func NewRuntimeConfigService(opts RuntimeConfigServiceOptions) *RuntimeConfigService {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[RUNTIME_CONFIG] ", log.LstdFlags)
	}

	cacheTTL := opts.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}

	svc := &RuntimeConfigService{
		db:             opts.DB,
		cache:          NewConfigCache(cacheTTL),
		secretsManager: opts.SecretsManager,
		configFile:     opts.ConfigFile,
		selfHosted:     opts.SelfHosted,
		logger:         logger,
	}

	return svc
}

// SetConfigFileLoader sets the config file loader for self-hosted mode
func (s *RuntimeConfigService) SetConfigFileLoader(loader ConfigFileLoader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fileLoader = loader
}

// GetConnectorConfigs returns all enabled connector configs for a tenant
// Priority: 1. Database 2. Config file 3. Env vars
func (s *RuntimeConfigService) GetConnectorConfigs(ctx context.Context, tenantID string) ([]*base.ConnectorConfig, ConfigSource, error) {
	// Check cache first
	if cached, ok := s.cache.GetConnectors(tenantID); ok {
		s.logger.Printf("Cache hit for connector configs (tenant: %s)", tenantID)
		return cached, ConfigSourceDatabase, nil // Note: source might be different but cache hit
	}

	s.logger.Printf("Cache miss for connector configs (tenant: %s), loading from sources", tenantID)

	// Priority 1: Database
	if s.db != nil && !s.selfHosted {
		configs, err := s.loadConnectorsFromDatabase(ctx, tenantID)
		if err == nil && len(configs) > 0 {
			s.cache.SetConnectors(tenantID, configs)
			s.logger.Printf("Loaded %d connector configs from database for tenant %s", len(configs), tenantID)
			return configs, ConfigSourceDatabase, nil
		}
		if err != nil {
			s.logger.Printf("Failed to load from database (tenant: %s): %v", tenantID, err)
		}
	}

	// Priority 2: Config file
	s.mu.RLock()
	fileLoader := s.fileLoader
	s.mu.RUnlock()

	if fileLoader != nil {
		configs, err := fileLoader.LoadConnectors(tenantID)
		if err == nil && len(configs) > 0 {
			s.cache.SetConnectors(tenantID, configs)
			s.logger.Printf("Loaded %d connector configs from config file for tenant %s", len(configs), tenantID)
			return configs, ConfigSourceFile, nil
		}
		if err != nil {
			s.logger.Printf("Failed to load from config file (tenant: %s): %v", tenantID, err)
		}
	}

	// Priority 3: Environment variables (fallback)
	configs := s.loadConnectorsFromEnvVars()
	if len(configs) > 0 {
		s.cache.SetConnectors(tenantID, configs)
		s.logger.Printf("Loaded %d connector configs from environment variables", len(configs))
		return configs, ConfigSourceEnvVars, nil
	}

	return nil, "", fmt.Errorf("no connector configurations found for tenant %s", tenantID)
}

// GetConnectorConfig returns a specific connector config by name
func (s *RuntimeConfigService) GetConnectorConfig(ctx context.Context, tenantID, connectorName string) (*base.ConnectorConfig, ConfigSource, error) {
	configs, source, err := s.GetConnectorConfigs(ctx, tenantID)
	if err != nil {
		return nil, "", err
	}

	for _, cfg := range configs {
		if cfg.Name == connectorName {
			return cfg, source, nil
		}
	}

	return nil, "", fmt.Errorf("connector '%s' not found for tenant %s", connectorName, tenantID)
}

// GetDestinationConfigs returns all enabled export destination configs for a tenant
func (s *RuntimeConfigService) GetDestinationConfigs(ctx context.Context, tenantID string) ([]*DestinationConfig, ConfigSource, error) {
	// Check cache first
	if cached, ok := s.cache.GetDestinations(tenantID); ok {
		s.logger.Printf("Cache hit for destination configs (tenant: %s)", tenantID)
		return cached, ConfigSourceDatabase, nil
	}

	s.logger.Printf("Cache miss for destination configs (tenant: %s), loading from sources", tenantID)

	// Priority 1: Database
	if s.db != nil && !s.selfHosted {
		configs, err := s.loadDestinationsFromDatabase(ctx, tenantID)
		if err == nil && len(configs) > 0 {
			s.cache.SetDestinations(tenantID, configs)
			s.logger.Printf("Loaded %d destination configs from database for tenant %s", len(configs), tenantID)
			return configs, ConfigSourceDatabase, nil
		}
		if err != nil {
			s.logger.Printf("Failed to load destinations from database (tenant: %s): %v", tenantID, err)
		}
	}

	// Priority 2: Config file
	s.mu.RLock()
	fileLoader := s.fileLoader
	s.mu.RUnlock()

	if fileLoader != nil {
		configs, err := fileLoader.LoadDestinations(tenantID)
		if err == nil && len(configs) > 0 {
			s.cache.SetDestinations(tenantID, configs)
			s.logger.Printf("Loaded %d destination configs from config file for tenant %s", len(configs), tenantID)
			return configs, ConfigSourceFile, nil
		}
		if err != nil {
			s.logger.Printf("Failed to load destinations from config file (tenant: %s): %v", tenantID, err)
		}
	}

	// Priority 3: Environment variables (fallback)
	configs := s.loadDestinationsFromEnvVars()
	if len(configs) > 0 {
		s.cache.SetDestinations(tenantID, configs)
		s.logger.Printf("Loaded %d destination configs from environment variables", len(configs))
		return configs, ConfigSourceEnvVars, nil
	}

	return nil, "", fmt.Errorf("no destination configurations found for tenant %s", tenantID)
}

// RefreshConnectorConfig invalidates cache and reloads a connector's configuration
func (s *RuntimeConfigService) RefreshConnectorConfig(ctx context.Context, tenantID, connectorName string) error {
	s.cache.InvalidateConnector(tenantID, connectorName)
	s.logger.Printf("Invalidated cache for connector %s (tenant: %s)", connectorName, tenantID)
	return nil
}

// RefreshDestinationConfig invalidates cache and reloads a destination's configuration
func (s *RuntimeConfigService) RefreshDestinationConfig(ctx context.Context, tenantID, destinationName string) error {
	s.cache.InvalidateDestination(tenantID, destinationName)
	s.logger.Printf("Invalidated cache for destination %s (tenant: %s)", destinationName, tenantID)
	return nil
}

// RefreshAllConfigs invalidates all cached configurations
func (s *RuntimeConfigService) RefreshAllConfigs() {
	s.cache.InvalidateAll()
	s.logger.Println("Invalidated all cached configurations")
}

// GetCacheStats returns cache performance statistics
func (s *RuntimeConfigService) GetCacheStats() CacheStats {
	return s.cache.GetStats()
}

// GetCacheHitRate returns the cache hit rate percentage
func (s *RuntimeConfigService) GetCacheHitRate() float64 {
	return s.cache.HitRate()
}

// loadConnectorsFromDatabase loads connector configs from the database
func (s *RuntimeConfigService) loadConnectorsFromDatabase(ctx context.Context, tenantID string) ([]*base.ConnectorConfig, error) {
	query := `
		SELECT
			id,
			tenant_id,
			connector_name,
			connector_type,
			display_name,
			description,
			data_center,
			base_url,
			options,
			credentials_secret_arn,
			credentials_secret_version,
			timeout_ms,
			max_retries,
			enabled,
			health_status
		FROM connector_configs
		WHERE tenant_id = $1 AND enabled = true
		ORDER BY connector_name
	`

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var configs []*base.ConnectorConfig
	for rows.Next() {
		var dbConfig ConnectorConfigDB
		var optionsJSON []byte

		err := rows.Scan(
			&dbConfig.ID,
			&dbConfig.TenantID,
			&dbConfig.ConnectorName,
			&dbConfig.ConnectorType,
			&dbConfig.DisplayName,
			&dbConfig.Description,
			&dbConfig.DataCenter,
			&dbConfig.BaseURL,
			&optionsJSON,
			&dbConfig.CredentialsSecretARN,
			&dbConfig.CredentialsSecretVersion,
			&dbConfig.TimeoutMs,
			&dbConfig.MaxRetries,
			&dbConfig.Enabled,
			&dbConfig.HealthStatus,
		)
		if err != nil {
			s.logger.Printf("Error scanning connector config: %v", err)
			continue
		}

		// Parse options JSON
		if len(optionsJSON) > 0 {
			if err := json.Unmarshal(optionsJSON, &dbConfig.Options); err != nil {
				s.logger.Printf("Error parsing options for %s: %v", dbConfig.ConnectorName, err)
				dbConfig.Options = make(map[string]interface{})
			}
		} else {
			dbConfig.Options = make(map[string]interface{})
		}

		// Convert to base.ConnectorConfig
		cfg := s.dbConfigToBaseConfig(&dbConfig)

		// Load credentials from Secrets Manager if configured
		if dbConfig.CredentialsSecretARN != "" && s.secretsManager != nil {
			creds, err := s.secretsManager.GetSecret(ctx, dbConfig.CredentialsSecretARN)
			if err != nil {
				s.logger.Printf("Failed to load credentials for %s: %v", dbConfig.ConnectorName, err)
			} else {
				cfg.Credentials = creds
			}
		}

		configs = append(configs, cfg)
	}

	return configs, rows.Err()
}

// loadDestinationsFromDatabase loads export destination configs from the database
func (s *RuntimeConfigService) loadDestinationsFromDatabase(ctx context.Context, tenantID string) ([]*DestinationConfig, error) {
	query := `
		SELECT
			id,
			tenant_id,
			destination_name,
			destination_type,
			display_name,
			config,
			credentials_secret_arn,
			format,
			enabled,
			health_status
		FROM export_destination_configs
		WHERE tenant_id = $1 AND enabled = true
		ORDER BY destination_name
	`

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var configs []*DestinationConfig
	for rows.Next() {
		var cfg DestinationConfig
		var configJSON []byte
		var displayName, secretARN sql.NullString

		err := rows.Scan(
			&cfg.ID,
			&cfg.TenantID,
			&cfg.Name,
			&cfg.Type,
			&displayName,
			&configJSON,
			&secretARN,
			&cfg.Format,
			&cfg.Enabled,
			&cfg.HealthStatus,
		)
		if err != nil {
			s.logger.Printf("Error scanning destination config: %v", err)
			continue
		}

		if displayName.Valid {
			cfg.DisplayName = displayName.String
		}
		if secretARN.Valid {
			cfg.CredentialsSecretARN = secretARN.String
		}

		// Parse config JSON
		if len(configJSON) > 0 {
			if err := json.Unmarshal(configJSON, &cfg.Config); err != nil {
				s.logger.Printf("Error parsing config for %s: %v", cfg.Name, err)
				cfg.Config = make(map[string]interface{})
			}
		} else {
			cfg.Config = make(map[string]interface{})
		}

		// Load credentials from Secrets Manager if configured
		if cfg.CredentialsSecretARN != "" && s.secretsManager != nil {
			creds, err := s.secretsManager.GetSecret(ctx, cfg.CredentialsSecretARN)
			if err != nil {
				s.logger.Printf("Failed to load credentials for destination %s: %v", cfg.Name, err)
			} else {
				cfg.Credentials = creds
			}
		}

		configs = append(configs, &cfg)
	}

	return configs, rows.Err()
}

// loadConnectorsFromEnvVars loads connector configs from environment variables
// The SURVEYFLOW_CONNECTORS variable names the connectors to load, comma separated
func (s *RuntimeConfigService) loadConnectorsFromEnvVars() []*base.ConnectorConfig {
	var configs []*base.ConnectorConfig

	names := os.Getenv("SURVEYFLOW_CONNECTORS")
	if names == "" {
		// Single-connector deployments use the default name
		names = "qualtrics"
	}

	for _, name := range strings.Split(names, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		cfg, err := LoadConnectorConfig(name)
		if err != nil {
			continue
		}
		configs = append(configs, cfg)
		s.logger.Printf("Loaded %s connector from environment variables", name)
	}

	return configs
}

// loadDestinationsFromEnvVars loads export destination configs from environment variables
func (s *RuntimeConfigService) loadDestinationsFromEnvVars() []*DestinationConfig {
	var configs []*DestinationConfig

	format := os.Getenv("EXPORT_FORMAT")
	if format == "" {
		format = "csv"
	}

	// S3 destination
	if bucket := os.Getenv("S3_EXPORT_BUCKET"); bucket != "" {
		configs = append(configs, &DestinationConfig{
			Name:        "s3",
			Type:        "s3",
			DisplayName: "Amazon S3",
			Config: map[string]interface{}{
				"bucket": bucket,
				"region": os.Getenv("S3_EXPORT_REGION"),
				"prefix": os.Getenv("S3_EXPORT_PREFIX"),
			},
			Format:  format,
			Enabled: true,
		})
		s.logger.Println("Loaded S3 destination config from environment variables")
	}

	// GCS destination
	if bucket := os.Getenv("GCS_EXPORT_BUCKET"); bucket != "" {
		configs = append(configs, &DestinationConfig{
			Name:        "gcs",
			Type:        "gcs",
			DisplayName: "Google Cloud Storage",
			Config: map[string]interface{}{
				"bucket": bucket,
				"prefix": os.Getenv("GCS_EXPORT_PREFIX"),
			},
			Format:  format,
			Enabled: true,
		})
		s.logger.Println("Loaded GCS destination config from environment variables")
	}

	// Azure Blob destination
	if container := os.Getenv("AZURE_EXPORT_CONTAINER"); container != "" {
		configs = append(configs, &DestinationConfig{
			Name:        "azblob",
			Type:        "azblob",
			DisplayName: "Azure Blob Storage",
			Config: map[string]interface{}{
				"container":    container,
				"account_name": os.Getenv("AZURE_STORAGE_ACCOUNT"),
				"prefix":       os.Getenv("AZURE_EXPORT_PREFIX"),
			},
			Format:  format,
			Enabled: true,
		})
		s.logger.Println("Loaded Azure Blob destination config from environment variables")
	}

	// Local filesystem destination
	if dir := os.Getenv("EXPORT_DIR"); dir != "" {
		configs = append(configs, &DestinationConfig{
			Name:        "file",
			Type:        "file",
			DisplayName: "Local Filesystem",
			Config: map[string]interface{}{
				"directory": dir,
			},
			Format:  format,
			Enabled: true,
		})
		s.logger.Println("Loaded filesystem destination config from environment variables")
	}

	return configs
}

// dbConfigToBaseConfig converts a database config to base.ConnectorConfig
func (s *RuntimeConfigService) dbConfigToBaseConfig(dbConfig *ConnectorConfigDB) *base.ConnectorConfig {
	cfg := &base.ConnectorConfig{
		Name:        dbConfig.ConnectorName,
		Type:        dbConfig.ConnectorType,
		DataCenter:  dbConfig.DataCenter,
		Credentials: make(map[string]string),
		Options:     dbConfig.Options,
		Timeout:     time.Duration(dbConfig.TimeoutMs) * time.Millisecond,
		MaxRetries:  dbConfig.MaxRetries,
		TenantID:    dbConfig.TenantID,
	}

	// An explicit base URL overrides the data center host
	if dbConfig.BaseURL != "" {
		cfg.Options["base_url"] = dbConfig.BaseURL
	}

	return cfg
}

// StartPeriodicCleanup starts a background goroutine that cleans up expired cache entries
func (s *RuntimeConfigService) StartPeriodicCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Println("Stopping periodic cache cleanup")
				return
			case <-ticker.C:
				evicted := s.cache.Cleanup()
				if evicted > 0 {
					s.logger.Printf("Cleaned up %d expired cache entries", evicted)
				}
			}
		}
	}()
}

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

package sdk

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"surveyflow/platform/connectors/base"
)

// Version is the current SDK version
const Version = "1.0.0"

// ConnectorBuilder provides a fluent interface for building connectors
type ConnectorBuilder struct {
	name         string
	connType     string
	version      string
	capabilities []string
	authProvider AuthProvider
	rateLimiter  *RateLimiter
	retryConfig  *RetryConfig
	logger       *log.Logger
	validator    ConfigValidator
}

// NewConnectorBuilder creates a new connector builder
func NewConnectorBuilder(name, connType string) *ConnectorBuilder {
	return &ConnectorBuilder{
		name:         name,
		connType:     connType,
		version:      "1.0.0",
		capabilities: []string{},
		logger:       log.New(os.Stdout, fmt.Sprintf("[%s] ", strings.ToUpper(connType)), log.LstdFlags),
	}
}

// WithVersion sets the connector version
func (b *ConnectorBuilder) WithVersion(version string) *ConnectorBuilder {
	b.version = version
	return b
}

// WithCapabilities sets the connector capabilities
func (b *ConnectorBuilder) WithCapabilities(caps ...string) *ConnectorBuilder {
	b.capabilities = append(b.capabilities, caps...)
	return b
}

// WithAuth sets the authentication provider
func (b *ConnectorBuilder) WithAuth(auth AuthProvider) *ConnectorBuilder {
	b.authProvider = auth
	return b
}

// WithRateLimiter sets the rate limiter
func (b *ConnectorBuilder) WithRateLimiter(limiter *RateLimiter) *ConnectorBuilder {
	b.rateLimiter = limiter
	return b
}

// WithRetryConfig sets the retry configuration
func (b *ConnectorBuilder) WithRetryConfig(config *RetryConfig) *ConnectorBuilder {
	b.retryConfig = config
	return b
}

// WithLogger sets a custom logger
func (b *ConnectorBuilder) WithLogger(logger *log.Logger) *ConnectorBuilder {
	b.logger = logger
	return b
}

// WithValidator sets a configuration validator
func (b *ConnectorBuilder) WithValidator(validator ConfigValidator) *ConnectorBuilder {
	b.validator = validator
	return b
}

// Build creates a BaseConnector with the configured options
func (b *ConnectorBuilder) Build() *BaseConnector {
	return &BaseConnector{
		name:         b.name,
		connType:     b.connType,
		version:      b.version,
		capabilities: b.capabilities,
		authProvider: b.authProvider,
		rateLimiter:  b.rateLimiter,
		retryConfig:  b.retryConfig,
		logger:       b.logger,
		validator:    b.validator,
		metrics:      NewConnectorMetrics(b.connType),
	}
}

// ConfigValidator validates connector configuration
type ConfigValidator interface {
	// Validate checks if the configuration is valid
	Validate(config *base.ConnectorConfig) error

	// RequiredFields returns the list of required configuration fields
	RequiredFields() []string

	// OptionalFields returns the list of optional fields with their defaults
	OptionalFields() map[string]interface{}
}

// DefaultConfigValidator provides basic configuration validation
type DefaultConfigValidator struct {
	required []string
	optional map[string]interface{}
}

// NewDefaultConfigValidator creates a new default config validator
func NewDefaultConfigValidator(required []string, optional map[string]interface{}) *DefaultConfigValidator {
	if optional == nil {
		optional = make(map[string]interface{})
	}
	return &DefaultConfigValidator{
		required: required,
		optional: optional,
	}
}

// Validate checks required fields are present
func (v *DefaultConfigValidator) Validate(config *base.ConnectorConfig) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if config.Name == "" {
		return fmt.Errorf("connector name is required")
	}

	if config.Type == "" {
		return fmt.Errorf("connector type is required")
	}

	// Required fields may live in Options or Credentials
	for _, field := range v.required {
		if _, ok := config.Options[field]; !ok {
			if _, ok := config.Credentials[field]; !ok {
				return fmt.Errorf("required field '%s' is missing", field)
			}
		}
	}

	return nil
}

// RequiredFields returns the required fields
func (v *DefaultConfigValidator) RequiredFields() []string {
	return v.required
}

// OptionalFields returns the optional fields with defaults
func (v *DefaultConfigValidator) OptionalFields() map[string]interface{} {
	return v.optional
}

// ApplyDefaults applies default values from OptionalFields to config
func (v *DefaultConfigValidator) ApplyDefaults(config *base.ConnectorConfig) {
	if config.Options == nil {
		config.Options = make(map[string]interface{})
	}

	for field, defaultValue := range v.optional {
		if _, exists := config.Options[field]; !exists {
			config.Options[field] = defaultValue
		}
	}
}

// LifecycleHooks provides hooks for connector lifecycle events
type LifecycleHooks struct {
	// OnConnect is called after successful connection
	OnConnect func(ctx context.Context, config *base.ConnectorConfig) error

	// OnDisconnect is called before disconnection
	OnDisconnect func(ctx context.Context) error

	// OnHealthCheck is called during health checks
	OnHealthCheck func(ctx context.Context, status *base.HealthStatus) error

	// OnExport is called before each export run
	OnExport func(ctx context.Context, req *base.ExportRequest) error

	// OnExportComplete is called after each export run
	OnExportComplete func(ctx context.Context, req *base.ExportRequest, result *base.ExportResult, err error)
}

// ContextKey is a type for context keys
type ContextKey string

const (
	// ContextKeyTenantID is the context key for tenant ID
	ContextKeyTenantID ContextKey = "tenant_id"

	// ContextKeyRequestID is the context key for request ID
	ContextKeyRequestID ContextKey = "request_id"
)

// GetTenantID extracts tenant ID from context
func GetTenantID(ctx context.Context) string {
	if v := ctx.Value(ContextKeyTenantID); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GetRequestID extracts request ID from context
func GetRequestID(ctx context.Context) string {
	if v := ctx.Value(ContextKeyRequestID); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// WithTenantID adds tenant ID to context
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, ContextKeyTenantID, tenantID)
}

// WithRequestID adds request ID to context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// ConnectorMetadata holds metadata about a connector
type ConnectorMetadata struct {
	Name         string            `json:"name"`
	Type         string            `json:"type"`
	Version      string            `json:"version"`
	Capabilities []string          `json:"capabilities"`
	Description  string            `json:"description,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	CreatedAt    time.Time         `json:"created_at,omitempty"`
	UpdatedAt    time.Time         `json:"updated_at,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// NewConnectorMetadata creates metadata for a connector
func NewConnectorMetadata(name, connType, version string) *ConnectorMetadata {
	return &ConnectorMetadata{
		Name:      name,
		Type:      connType,
		Version:   version,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

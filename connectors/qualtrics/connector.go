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

// Package qualtrics provides the Qualtrics survey response export connector.
// It drives the asynchronous export-responses API: start a job, poll its
// progress on a bounded budget, download the finished file, and flatten the
// responses into a rectangular table with optional human-readable column
// labels derived from the survey's question definitions.
package qualtrics

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"surveyflow/platform/connectors/base"
	"surveyflow/platform/connectors/config"
	"surveyflow/platform/connectors/sdk"
)

const (
	// DefaultMaxResponseSize is the maximum response body size (50MB)
	DefaultMaxResponseSize = 50 * 1024 * 1024
	// DefaultPollInterval is the wait between export progress polls
	DefaultPollInterval = 10 * time.Second
	// DefaultMaxPollAttempts bounds the polling loop (~3 minutes at the
	// default interval)
	DefaultMaxPollAttempts = 18
	// DefaultRateLimit is the outbound request rate in requests/second
	DefaultRateLimit = 10
	// DefaultRateBurst is the outbound request burst size
	DefaultRateBurst = 5
	// DefaultQuestionCacheTTL is how long fetched question definitions
	// stay valid; surveys rarely change mid-export
	DefaultQuestionCacheTTL = 5 * time.Minute
)

// QualtricsConnector implements base.Connector against the Qualtrics v3 API
type QualtricsConnector struct {
	sdk.BaseConnector
	httpClient      *http.Client
	baseURL         string
	pollInterval    time.Duration
	maxPollAttempts int
	maxResponseSize int64

	questionMu    sync.Mutex
	questionCache map[string]*config.CacheEntry[[]Question]
}

// NewQualtricsConnector creates a new Qualtrics connector instance
func NewQualtricsConnector() *QualtricsConnector {
	conn := &QualtricsConnector{
		pollInterval:    DefaultPollInterval,
		maxPollAttempts: DefaultMaxPollAttempts,
		maxResponseSize: DefaultMaxResponseSize,
	}
	conn.BaseConnector = *sdk.NewConnectorBuilder("qualtrics", "qualtrics").
		WithRetryConfig(sdk.DefaultRetryConfig()).
		WithValidator(sdk.NewDefaultConfigValidator([]string{"api_token"}, nil)).
		WithCapabilities("export", "questions", "column-renames", "bounded-polling").
		Build()

	return conn
}

// Connect validates the configuration and prepares the HTTP client.
// The endpoint must use HTTPS: the API token travels in a header on every
// request, so a plaintext base URL is rejected outright.
func (c *QualtricsConnector) Connect(ctx context.Context, cfg *base.ConnectorConfig) error {
	if err := c.BaseConnector.Connect(ctx, cfg); err != nil {
		return err
	}

	apiToken := c.GetCredential("api_token")
	if apiToken == "" {
		return base.NewConnectorError(cfg.Name, "Connect", "api_token credential is required", nil)
	}
	c.SetAuthProvider(sdk.NewAPIKeyAuth(apiToken, sdk.APIKeyInHeader, "X-API-TOKEN"))

	baseURL, fromDataCenter, err := resolveBaseURL(cfg)
	if err != nil {
		return base.NewConnectorError(cfg.Name, "Connect", "invalid endpoint", err)
	}
	if _, err := base.ValidateSecureURL(baseURL); err != nil {
		return base.NewConnectorError(cfg.Name, "Connect", "insecure endpoint", err)
	}

	// Explicit base URL overrides point at arbitrary hosts, so they get
	// the SSRF treatment; data-center URLs always land on qualtrics.com.
	if !fromDataCenter {
		if !c.GetBoolOption("allow_private_ips", false) {
			if err := base.ValidateHost(baseURL, base.URLValidationOptions{}); err != nil {
				return base.NewConnectorError(cfg.Name, "Connect", "SSRF protection", err)
			}
		}
	}
	c.baseURL = strings.TrimSuffix(baseURL, "/")

	if v, ok := c.GetOption("poll_interval_seconds", nil).(float64); ok && v > 0 {
		c.pollInterval = time.Duration(v * float64(time.Second))
	}
	if v := c.GetIntOption("max_poll_attempts", 0); v > 0 {
		c.maxPollAttempts = v
	}
	if v := c.GetIntOption("max_response_size", 0); v > 0 {
		c.maxResponseSize = int64(v)
	}

	rate := float64(DefaultRateLimit)
	if v, ok := c.GetOption("rate_limit", nil).(float64); ok && v > 0 {
		rate = v
	}
	c.SetRateLimiter(sdk.NewRateLimiter(rate, DefaultRateBurst))

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if c.GetBoolOption("tls_skip_verify", false) {
		tlsConfig.InsecureSkipVerify = true
		c.Log("WARNING: TLS verification disabled for %s", cfg.Name)
	}

	c.httpClient = &http.Client{
		Timeout: c.GetTimeout(),
		Transport: &http.Transport{
			TLSClientConfig: tlsConfig,
			MaxIdleConns:    100,
			MaxConnsPerHost: 10,
			IdleConnTimeout: 90 * time.Second,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
		},
	}

	c.Log("Connected to Qualtrics: %s (endpoint=%s, poll=%v x%d)",
		cfg.Name, c.baseURL, c.pollInterval, c.maxPollAttempts)

	return nil
}

// resolveBaseURL builds the API endpoint from either an explicit base_url
// option or a data center identifier, e.g. "ca1" -> https://ca1.qualtrics.com
func resolveBaseURL(config *base.ConnectorConfig) (string, bool, error) {
	if raw, ok := config.Options["base_url"].(string); ok && raw != "" {
		return raw, false, nil
	}

	dc := config.DataCenter
	if dc == "" {
		dc, _ = config.Options["data_center"].(string)
	}
	if dc == "" {
		return "", false, fmt.Errorf("either base_url or data_center must be configured")
	}
	if strings.ContainsAny(dc, "/:.") {
		return "", false, fmt.Errorf("invalid data center identifier %q", dc)
	}
	return fmt.Sprintf("https://%s.qualtrics.com", dc), true, nil
}

// Disconnect releases pooled connections
func (c *QualtricsConnector) Disconnect(ctx context.Context) error {
	if c.httpClient != nil {
		if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
			transport.CloseIdleConnections()
		}
	}
	c.questionMu.Lock()
	c.questionCache = nil
	c.questionMu.Unlock()

	return c.BaseConnector.Disconnect(ctx)
}

// HealthCheck verifies the API is reachable and the token is accepted
func (c *QualtricsConnector) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	if c.httpClient == nil {
		return &base.HealthStatus{
			Healthy:   false,
			Error:     "not connected",
			Timestamp: time.Now(),
		}, nil
	}

	start := time.Now()
	body, status, err := c.doRequest(ctx, http.MethodGet, c.baseURL+"/API/v3/whoami", nil, nil)
	latency := time.Since(start)

	if err != nil {
		return &base.HealthStatus{
			Healthy:   false,
			Latency:   latency,
			Timestamp: time.Now(),
			Error:     err.Error(),
		}, nil
	}
	_ = body

	return &base.HealthStatus{
		Healthy:   status >= 200 && status < 300,
		Latency:   latency,
		Timestamp: time.Now(),
		Details: map[string]string{
			"endpoint":    c.baseURL,
			"status_code": fmt.Sprintf("%d", status),
		},
	}, nil
}

// Export runs a full survey response export and returns the result table
func (c *QualtricsConnector) Export(ctx context.Context, req *base.ExportRequest) (*base.ExportResult, error) {
	if c.httpClient == nil {
		return nil, base.NewConnectorError(c.Name(), "Export", "not connected", nil)
	}
	if req == nil || req.SurveyID == "" {
		return nil, base.NewConnectorError(c.Name(), "Export", "survey ID is required", nil)
	}

	start := time.Now()
	table, err := c.GetSurveyResponses(ctx, req.SurveyID, req.RenameColumns, req.Options)
	duration := time.Since(start)
	c.GetMetrics().RecordExport(duration, err)
	if err != nil {
		return nil, err
	}

	c.Log("Export %s: %d responses, %d columns, %v",
		base.SanitizeLogString(req.SurveyID), len(table.Rows), len(table.Columns), duration)

	return &base.ExportResult{
		Table:     table,
		RowCount:  len(table.Rows),
		Duration:  duration,
		Connector: c.Name(),
		Metadata: map[string]interface{}{
			"survey_id": req.SurveyID,
		},
	}, nil
}

// readLimited reads the body with the configured size cap
func (c *QualtricsConnector) readLimited(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, c.maxResponseSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > c.maxResponseSize {
		return nil, fmt.Errorf("response size exceeds limit of %d bytes", c.maxResponseSize)
	}
	return body, nil
}

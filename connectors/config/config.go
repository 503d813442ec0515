// Copyright 2025 SurveyFlow
// SPDX-License-Identifier: BUSL-1.1
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
	"os"
	"strconv"
	"strings"
	"time"

	"surveyflow/platform/connectors/base"
)

// Environment variable naming convention:
//
//	SURVEYFLOW_<CONNECTOR_NAME>_<FIELD>
//
// For example, a connector named "qualtrics-prod" reads
// SURVEYFLOW_QUALTRICS_PROD_API_TOKEN, SURVEYFLOW_QUALTRICS_PROD_DATA_CENTER,
// and so on. Dashes in the connector name map to underscores.
const envPrefix = "SURVEYFLOW_"

// envKey builds the environment variable name for a connector field.
func envKey(connectorName, field string) string {
	name := strings.ToUpper(strings.ReplaceAll(connectorName, "-", "_"))
	return envPrefix + name + "_" + field
}

// getEnv reads an environment variable for a connector, returning the
// fallback when unset or empty.
func getEnv(connectorName, field, fallback string) string {
	if v := os.Getenv(envKey(connectorName, field)); v != "" {
		return v
	}
	return fallback
}

// getEnvDuration parses a connector field as seconds.
func getEnvDuration(connectorName, field string, fallback time.Duration) time.Duration {
	raw := os.Getenv(envKey(connectorName, field))
	if raw == "" {
		return fallback
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return fallback
	}
	return time.Duration(secs) * time.Second
}

// getEnvInt parses a connector field as an integer.
func getEnvInt(connectorName, field string, fallback int) int {
	raw := os.Getenv(envKey(connectorName, field))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// LoadQualtricsConfig loads a Qualtrics connector configuration from
// environment variables. The API token is required; the endpoint is
// resolved from either BASE_URL or DATA_CENTER.
func LoadQualtricsConfig(connectorName string) (*base.ConnectorConfig, error) {
	apiToken := os.Getenv(envKey(connectorName, "API_TOKEN"))
	if apiToken == "" {
		return nil, fmt.Errorf("missing required environment variable %s", envKey(connectorName, "API_TOKEN"))
	}

	baseURL := os.Getenv(envKey(connectorName, "BASE_URL"))
	dataCenter := os.Getenv(envKey(connectorName, "DATA_CENTER"))
	if baseURL == "" && dataCenter == "" {
		return nil, fmt.Errorf("either %s or %s must be set",
			envKey(connectorName, "BASE_URL"), envKey(connectorName, "DATA_CENTER"))
	}

	cfg := &base.ConnectorConfig{
		Name:       connectorName,
		Type:       "qualtrics",
		DataCenter: dataCenter,
		Credentials: map[string]string{
			"api_token": apiToken,
		},
		Options:    make(map[string]interface{}),
		Timeout:    getEnvDuration(connectorName, "TIMEOUT_SECONDS", 30*time.Second),
		MaxRetries: getEnvInt(connectorName, "MAX_RETRIES", 3),
		TenantID:   getEnv(connectorName, "TENANT_ID", "default"),
	}

	if baseURL != "" {
		cfg.Options["base_url"] = baseURL
	}
	if raw := os.Getenv(envKey(connectorName, "POLL_INTERVAL_SECONDS")); raw != "" {
		if secs, err := strconv.ParseFloat(raw, 64); err == nil && secs > 0 {
			cfg.Options["poll_interval_seconds"] = secs
		}
	}
	if raw := os.Getenv(envKey(connectorName, "MAX_POLL_ATTEMPTS")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			cfg.Options["max_poll_attempts"] = float64(n)
		}
	}
	if raw := os.Getenv(envKey(connectorName, "RATE_LIMIT")); raw != "" {
		if n, err := strconv.ParseFloat(raw, 64); err == nil && n > 0 {
			cfg.Options["rate_limit"] = n
		}
	}

	return cfg, nil
}

// LoadConnectorConfig loads a connector configuration by type.
// Currently only the qualtrics type is supported; the indirection keeps
// the env var layout uniform as survey platforms are added.
func LoadConnectorConfig(connectorName string) (*base.ConnectorConfig, error) {
	connType := getEnv(connectorName, "TYPE", "qualtrics")
	switch connType {
	case "qualtrics":
		return LoadQualtricsConfig(connectorName)
	default:
		return nil, fmt.Errorf("unsupported connector type %q for %s", connType, connectorName)
	}
}

// ValidateConfig checks that a connector configuration carries the
// fields its type requires.
func ValidateConfig(cfg *base.ConnectorConfig) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Name == "" {
		return fmt.Errorf("connector name is required")
	}
	if cfg.Type == "" {
		return fmt.Errorf("connector type is required")
	}

	switch cfg.Type {
	case "qualtrics":
		if cfg.Credentials["api_token"] == "" {
			return fmt.Errorf("qualtrics connector %q requires an api_token credential", cfg.Name)
		}
		baseURL, _ := cfg.Options["base_url"].(string)
		if baseURL == "" && cfg.DataCenter == "" {
			return fmt.Errorf("qualtrics connector %q requires a base_url option or data center", cfg.Name)
		}
	case "mock":
		// Mock connectors carry no required fields.
	default:
		return fmt.Errorf("unknown connector type %q", cfg.Type)
	}

	if cfg.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if cfg.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative")
	}
	return nil
}

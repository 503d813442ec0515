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

package base

import (
	"context"
	"time"
)

// Connector defines the interface that all survey-platform connectors must
// implement. A connector turns a remote survey platform's export machinery
// into a ResultTable.
type Connector interface {
	// Lifecycle Management
	Connect(ctx context.Context, config *ConnectorConfig) error
	Disconnect(ctx context.Context) error
	HealthCheck(ctx context.Context) (*HealthStatus, error)

	// Data Operations
	Export(ctx context.Context, req *ExportRequest) (*ExportResult, error)

	// Metadata
	Name() string           // Unique connector instance name
	Type() string           // Connector type (qualtrics, ...)
	Version() string        // Connector version
	Capabilities() []string // List of capabilities (export, questions, rename)
}

// ConnectorConfig holds the configuration for a connector instance
type ConnectorConfig struct {
	Name        string                 `json:"name"`        // Unique name for this connector
	Type        string                 `json:"type"`        // Type: qualtrics, ...
	DataCenter  string                 `json:"data_center"` // Regional API host segment (e.g. "ca1", "eu")
	Credentials map[string]string      `json:"credentials"` // API keys, tokens
	Options     map[string]interface{} `json:"options"`     // Connector-specific options
	Timeout     time.Duration          `json:"timeout"`     // Per-request timeout (default: 30s)
	MaxRetries  int                    `json:"max_retries"` // Transport retry count for transient failures
	TenantID    string                 `json:"tenant_id"`   // For multi-tenancy isolation
}

// ExportRequest describes one survey-response export run
type ExportRequest struct {
	SurveyID      string                 `json:"survey_id"`      // Survey to export
	RenameColumns bool                   `json:"rename_columns"` // Replace field keys with question labels
	Options       map[string]interface{} `json:"options"`        // Export options (format, compress, passthrough keys)
}

// ExportResult contains the materialized table for one export run
type ExportResult struct {
	Table     *ResultTable           `json:"table"`              // Normalized response table
	RowCount  int                    `json:"row_count"`          // Number of response rows
	Duration  time.Duration          `json:"duration"`           // End-to-end export time
	Connector string                 `json:"connector"`          // Connector name that ran the export
	Metadata  map[string]interface{} `json:"metadata,omitempty"` // Additional metadata (poll attempts, file id)
}

// HealthStatus represents the health of a connector
type HealthStatus struct {
	Healthy   bool              `json:"healthy"`   // Overall health status
	Latency   time.Duration     `json:"latency"`   // Connection latency
	Details   map[string]string `json:"details"`   // Additional diagnostic info
	Timestamp time.Time         `json:"timestamp"` // When health check was performed
	Error     string            `json:"error"`     // Error message if unhealthy
}

// ConnectorError represents errors specific to connector operations
type ConnectorError struct {
	ConnectorName string
	Operation     string
	Message       string
	Cause         error
}

func (e *ConnectorError) Error() string {
	if e.Cause != nil {
		return e.ConnectorName + "." + e.Operation + ": " + e.Message + " (cause: " + e.Cause.Error() + ")"
	}
	return e.ConnectorName + "." + e.Operation + ": " + e.Message
}

func (e *ConnectorError) Unwrap() error {
	return e.Cause
}

// NewConnectorError creates a new ConnectorError
func NewConnectorError(connectorName, operation, message string, cause error) *ConnectorError {
	return &ConnectorError{
		ConnectorName: connectorName,
		Operation:     operation,
		Message:       message,
		Cause:         cause,
	}
}

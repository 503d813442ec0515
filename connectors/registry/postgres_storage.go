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

package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"

	"surveyflow/platform/connectors/base"
)

// PostgreSQLStorage implements persistent storage for the connector
// registry and the export run history
type PostgreSQLStorage struct {
	db     *sql.DB
	logger *log.Logger
}

// ConnectorRecord represents a persisted connector configuration
type ConnectorRecord struct {
	ID              string                 `json:"id"`
	Name            string                 `json:"name"`
	Type            string                 `json:"type"`
	TenantID        string                 `json:"tenant_id"`
	DataCenter      string                 `json:"data_center,omitempty"`
	Options         map[string]interface{} `json:"options"`
	Credentials     map[string]string      `json:"credentials"`
	InstalledAt     time.Time              `json:"installed_at"`
	LastHealthCheck *time.Time             `json:"last_health_check,omitempty"`
	HealthStatus    *base.HealthStatus     `json:"health_status,omitempty"`
}

// ExportRun represents one persisted export run
type ExportRun struct {
	ID           string     `json:"id"`
	TenantID     string     `json:"tenant_id"`
	Connector    string     `json:"connector"`
	SurveyID     string     `json:"survey_id"`
	Status       string     `json:"status"`
	RowCount     int        `json:"row_count"`
	PollAttempts int        `json:"poll_attempts"`
	Destination  string     `json:"destination,omitempty"`
	Error        string     `json:"error,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// NewPostgreSQLStorage creates a new PostgreSQL storage backend
func NewPostgreSQLStorage(dbURL string) (*PostgreSQLStorage, error) {
	// Retry connection with backoff to handle Docker DNS initialization delay
	// Docker DNS (127.0.0.11:53) takes 1-2 seconds to initialize after container start
	maxRetries := 5
	var db *sql.DB
	var err error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		db, err = sql.Open("postgres", dbURL)
		if err == nil {
			err = db.Ping()
			if err == nil {
				log.Printf("[ConnectorStorage] ✅ Connected to database (attempt %d/%d)", attempt, maxRetries)
				break
			}
		}

		if attempt < maxRetries {
			backoff := time.Duration(attempt*2) * time.Second
			log.Printf("[ConnectorStorage] ⚠️  Database connection failed (attempt %d/%d): %v", attempt, maxRetries, err)
			log.Printf("[ConnectorStorage]    Retrying in %v...", backoff)
			time.Sleep(backoff)
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
	}

	storage := &PostgreSQLStorage{
		db:     db,
		logger: log.New(log.Writer(), "[ConnectorStorage] ", log.LstdFlags),
	}

	// Initialize schema
	if err := storage.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	storage.logger.Println("PostgreSQL storage initialized")
	return storage, nil
}

// NewPostgreSQLStorageWithDB wraps an existing database handle.
// Schema initialization is the caller's responsibility.
func NewPostgreSQLStorageWithDB(db *sql.DB) *PostgreSQLStorage {
	return &PostgreSQLStorage{
		db:     db,
		logger: log.New(log.Writer(), "[ConnectorStorage] ", log.LstdFlags),
	}
}

// initSchema creates the connectors and export_runs tables if they don't exist
func (s *PostgreSQLStorage) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS connectors (
		id VARCHAR(255) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		type VARCHAR(50) NOT NULL,
		tenant_id VARCHAR(255) NOT NULL,
		data_center VARCHAR(50) NOT NULL DEFAULT '',
		options JSONB NOT NULL DEFAULT '{}'::jsonb,
		credentials JSONB NOT NULL DEFAULT '{}'::jsonb,
		installed_at TIMESTAMP NOT NULL DEFAULT NOW(),
		last_health_check TIMESTAMP,
		health_status JSONB,
		UNIQUE(name, tenant_id)
	);

	CREATE INDEX IF NOT EXISTS idx_connectors_tenant ON connectors(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_connectors_type ON connectors(type);

	CREATE TABLE IF NOT EXISTS export_runs (
		id VARCHAR(255) PRIMARY KEY,
		tenant_id VARCHAR(255) NOT NULL,
		connector VARCHAR(255) NOT NULL,
		survey_id VARCHAR(255) NOT NULL,
		status VARCHAR(50) NOT NULL,
		row_count INTEGER NOT NULL DEFAULT 0,
		poll_attempts INTEGER NOT NULL DEFAULT 0,
		destination VARCHAR(255) NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		started_at TIMESTAMP NOT NULL DEFAULT NOW(),
		completed_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_export_runs_tenant ON export_runs(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_export_runs_survey ON export_runs(survey_id);
	CREATE INDEX IF NOT EXISTS idx_export_runs_status ON export_runs(status);
	`

	_, err := s.db.Exec(query)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	s.logger.Println("Storage schema initialized")
	return nil
}

// SaveConnector persists a connector configuration
func (s *PostgreSQLStorage) SaveConnector(ctx context.Context, id string, config *base.ConnectorConfig) error {
	optionsJSON, err := json.Marshal(config.Options)
	if err != nil {
		return fmt.Errorf("failed to marshal options: %w", err)
	}

	credentialsJSON, err := json.Marshal(config.Credentials)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	query := `
		INSERT INTO connectors (id, name, type, tenant_id, data_center, options, credentials)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			data_center = EXCLUDED.data_center,
			options = EXCLUDED.options,
			credentials = EXCLUDED.credentials
	`

	_, err = s.db.ExecContext(ctx, query,
		id,
		config.Name,
		config.Type,
		config.TenantID,
		config.DataCenter,
		optionsJSON,
		credentialsJSON,
	)

	if err != nil {
		return fmt.Errorf("failed to save connector: %w", err)
	}

	s.logger.Printf("Saved connector: %s (tenant: %s)", id, config.TenantID)
	return nil
}

// GetConnector retrieves a connector configuration
func (s *PostgreSQLStorage) GetConnector(ctx context.Context, id string) (*base.ConnectorConfig, error) {
	query := `
		SELECT name, type, tenant_id, data_center, options, credentials
		FROM connectors
		WHERE id = $1
	`

	var name, connType, tenantID, dataCenter string
	var optionsJSON, credentialsJSON []byte

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&name,
		&connType,
		&tenantID,
		&dataCenter,
		&optionsJSON,
		&credentialsJSON,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("connector not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connector: %w", err)
	}

	var options map[string]interface{}
	if err := json.Unmarshal(optionsJSON, &options); err != nil {
		return nil, fmt.Errorf("failed to unmarshal options: %w", err)
	}

	var credentials map[string]string
	if err := json.Unmarshal(credentialsJSON, &credentials); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credentials: %w", err)
	}

	config := &base.ConnectorConfig{
		Name:        name,
		Type:        connType,
		TenantID:    tenantID,
		DataCenter:  dataCenter,
		Options:     options,
		Credentials: credentials,
		Timeout:     30 * time.Second,
	}

	return config, nil
}

// DeleteConnector removes a connector configuration
func (s *PostgreSQLStorage) DeleteConnector(ctx context.Context, id string) error {
	query := `DELETE FROM connectors WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete connector: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("connector not found: %s", id)
	}

	s.logger.Printf("Deleted connector: %s", id)
	return nil
}

// ListConnectors returns all connector IDs
func (s *PostgreSQLStorage) ListConnectors(ctx context.Context) ([]string, error) {
	query := `SELECT id FROM connectors ORDER BY installed_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list connectors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return ids, nil
}

// ListConnectorsByTenant returns all connector IDs for a specific tenant
func (s *PostgreSQLStorage) ListConnectorsByTenant(ctx context.Context, tenantID string) ([]string, error) {
	query := `SELECT id FROM connectors WHERE tenant_id = $1 OR tenant_id = '*' ORDER BY installed_at DESC`

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connectors by tenant: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return ids, nil
}

// UpdateHealthStatus updates the health status of a connector
func (s *PostgreSQLStorage) UpdateHealthStatus(ctx context.Context, id string, status *base.HealthStatus) error {
	statusJSON, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal health status: %w", err)
	}

	query := `
		UPDATE connectors
		SET last_health_check = NOW(), health_status = $2
		WHERE id = $1
	`

	_, err = s.db.ExecContext(ctx, query, id, statusJSON)
	if err != nil {
		return fmt.Errorf("failed to update health status: %w", err)
	}

	return nil
}

// SaveExportRun inserts a new export run record
func (s *PostgreSQLStorage) SaveExportRun(ctx context.Context, run *ExportRun) error {
	query := `
		INSERT INTO export_runs (id, tenant_id, connector, survey_id, status, destination, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.TenantID,
		run.Connector,
		run.SurveyID,
		run.Status,
		run.Destination,
		run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save export run: %w", err)
	}

	s.logger.Printf("Saved export run %s (survey: %s)", run.ID, run.SurveyID)
	return nil
}

// UpdateExportRun updates the status and outcome of an export run
func (s *PostgreSQLStorage) UpdateExportRun(ctx context.Context, run *ExportRun) error {
	query := `
		UPDATE export_runs
		SET status = $2, row_count = $3, poll_attempts = $4, error = $5, completed_at = $6
		WHERE id = $1
	`

	result, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.Status,
		run.RowCount,
		run.PollAttempts,
		run.Error,
		run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update export run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("export run not found: %s", run.ID)
	}

	return nil
}

// GetExportRun retrieves a single export run by ID
func (s *PostgreSQLStorage) GetExportRun(ctx context.Context, id string) (*ExportRun, error) {
	query := `
		SELECT id, tenant_id, connector, survey_id, status, row_count,
		       poll_attempts, destination, error, started_at, completed_at
		FROM export_runs
		WHERE id = $1
	`

	run := &ExportRun{}
	var completedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID,
		&run.TenantID,
		&run.Connector,
		&run.SurveyID,
		&run.Status,
		&run.RowCount,
		&run.PollAttempts,
		&run.Destination,
		&run.Error,
		&run.StartedAt,
		&completedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("export run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get export run: %w", err)
	}

	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}

	return run, nil
}

// ListExportRuns returns the most recent export runs for a tenant
func (s *PostgreSQLStorage) ListExportRuns(ctx context.Context, tenantID string, limit int) ([]*ExportRun, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, tenant_id, connector, survey_id, status, row_count,
		       poll_attempts, destination, error, started_at, completed_at
		FROM export_runs
		WHERE tenant_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list export runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*ExportRun
	for rows.Next() {
		run := &ExportRun{}
		var completedAt sql.NullTime

		err := rows.Scan(
			&run.ID,
			&run.TenantID,
			&run.Connector,
			&run.SurveyID,
			&run.Status,
			&run.RowCount,
			&run.PollAttempts,
			&run.Destination,
			&run.Error,
			&run.StartedAt,
			&completedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan export run: %w", err)
		}

		if completedAt.Valid {
			run.CompletedAt = &completedAt.Time
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return runs, nil
}

// Close closes the database connection
func (s *PostgreSQLStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

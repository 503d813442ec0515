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

package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"surveyflow/platform/connectors/base"
	"surveyflow/platform/connectors/config"
	"surveyflow/platform/connectors/qualtrics"
	"surveyflow/platform/connectors/registry"
	"surveyflow/platform/connectors/sdk"
	"surveyflow/platform/shared/logger"
)

// SurveyFlow Export Service - survey response export orchestration
// This service runs Qualtrics exports and delivers the resulting
// tables to configured storage destinations.

// Shared service state, wired once in initializeComponents
var (
	connectorRegistry *registry.Registry
	runtimeConfig     *config.RuntimeConfigService
	serviceMetrics    *ExportServiceMetrics
	auditLog          = logger.New("export-service")
	jwtSecret         = []byte(os.Getenv("JWT_SECRET"))
	defaultTenantID   string
)

// Prometheus metrics
var (
	promExportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "surveyflow_exports_total",
			Help: "Total number of export runs by terminal status",
		},
		[]string{"status"},
	)
	promExportDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "surveyflow_export_duration_milliseconds",
			Help:    "Export run duration in milliseconds",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 30000, 60000, 120000, 300000},
		},
		[]string{"connector"},
	)
	promDestinationWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "surveyflow_destination_writes_total",
			Help: "Total number of destination deliveries",
		},
		[]string{"type", "status"},
	)
	promRateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "surveyflow_rate_limited_requests_total",
			Help: "Total number of requests rejected by rate limiting",
		},
	)
)

func init() {
	prometheus.MustRegister(promExportsTotal)
	prometheus.MustRegister(promExportDuration)
	prometheus.MustRegister(promDestinationWrites)
	prometheus.MustRegister(promRateLimited)
}

// Run is the exported entry point for the export service.
//
// It initializes all components (registry, runtime configuration,
// Redis rate limiting), sets up HTTP routes, and starts the server.
// The function blocks until the server is shut down.
//
// Environment variables used:
//   - PORT: HTTP server port (default: 8080)
//   - DATABASE_URL: PostgreSQL connection string (optional)
//   - REDIS_URL: Redis connection string for distributed rate limiting (optional)
//   - JWT_SECRET: HMAC secret for client tokens; auth disabled when unset
//   - SURVEYFLOW_CONFIG_FILE: YAML config file path (optional)
//   - ORG_ID: tenant identifier for single-tenant deployments (default: "default")
func Run() {
	log.Println("Starting SurveyFlow Export Service...")

	initializeComponents()

	r := newRouter()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // Configure for production
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	port := getEnv("PORT", "8080")
	handler := c.Handler(r)
	log.Printf("SurveyFlow Export Service listening on port %s", port)
	log.Fatal(http.ListenAndServe(":"+port, handler))
}

// newRouter builds the HTTP route table
func newRouter() *mux.Router {
	r := mux.NewRouter()

	// Health and metrics
	r.HandleFunc("/health", healthHandler).Methods("GET")
	r.HandleFunc("/metrics", simpleMetricsHandler).Methods("GET") // JSON metrics
	r.Handle("/prometheus", promhttp.Handler()).Methods("GET")    // Prometheus native format

	// Export runs
	r.HandleFunc("/api/v1/exports", createExportHandler).Methods("POST")
	r.HandleFunc("/api/v1/exports", listExportRunsHandler).Methods("GET")
	r.HandleFunc("/api/v1/exports/{id}", getExportRunHandler).Methods("GET")

	// Survey metadata
	r.HandleFunc("/api/v1/surveys/{survey_id}/questions", surveyQuestionsHandler).Methods("GET")

	// Connector management
	r.HandleFunc("/api/v1/connectors", listConnectorsHandler).Methods("GET")
	r.HandleFunc("/api/v1/connectors/{name}/health", connectorHealthHandler).Methods("GET")

	return r
}

func initializeComponents() {
	defaultTenantID = getEnv("ORG_ID", "default")

	// Registry, optionally persistent
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL != "" {
		// SECURITY: Don't log DATABASE_URL contents as it may contain credentials
		log.Printf("DATABASE_URL is set (length: %d chars)", len(dbURL))
		reg, err := registry.NewRegistryWithStorage(dbURL)
		if err != nil {
			log.Printf("Warning: persistent registry unavailable: %v", err)
			log.Println("Falling back to in-memory registry (export run history disabled)")
			connectorRegistry = registry.NewRegistry()
		} else {
			connectorRegistry = reg
			log.Println("✅ Persistent connector registry initialized")
		}
	} else {
		log.Println("DATABASE_URL not set - using in-memory registry (export run history disabled)")
		connectorRegistry = registry.NewRegistry()
	}
	connectorRegistry.SetFactory(newConnector)

	// Runtime configuration: Database > Config File > Env Vars
	var configDB *sql.DB
	if dbURL != "" {
		db, err := sql.Open("postgres", dbURL)
		if err != nil {
			log.Printf("Warning: failed to open config database: %v", err)
		} else if err := db.Ping(); err != nil {
			log.Printf("Warning: failed to ping config database: %v", err)
			_ = db.Close()
		} else {
			configDB = db
		}
	}

	selfHosted := os.Getenv("SURVEYFLOW_SELF_HOSTED") == "true"
	runtimeConfig = config.NewRuntimeConfigService(config.RuntimeConfigServiceOptions{
		DB:             configDB,
		SecretsManager: newSecretsManager(),
		ConfigFile:     os.Getenv("SURVEYFLOW_CONFIG_FILE"),
		SelfHosted:     selfHosted,
	})
	if path := os.Getenv("SURVEYFLOW_CONFIG_FILE"); path != "" {
		runtimeConfig.SetConfigFileLoader(config.NewYAMLConfigFileLoader(path, nil))
		log.Printf("Config file loader wired: %s", path)
	}
	log.Println("Runtime configuration service initialized")

	// Register connectors for the default tenant
	ctx := context.Background()
	configs, source, err := runtimeConfig.GetConnectorConfigs(ctx, defaultTenantID)
	if err != nil {
		log.Printf("Warning: connector configuration load failed: %v", err)
	} else {
		log.Printf("Loaded %d connector config(s) from %s", len(configs), source)
		for _, cfg := range configs {
			conn, err := newConnector(cfg.Type)
			if err != nil {
				log.Printf("Warning: skipping connector %s: %v", cfg.Name, err)
				continue
			}
			if err := connectorRegistry.Register(cfg.Name, conn, cfg); err != nil {
				log.Printf("Warning: failed to register connector %s: %v", cfg.Name, err)
			}
		}
	}
	log.Printf("Connector registry ready (%d registered)", connectorRegistry.Count())

	// Distributed rate limiting
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		if err := initRedis(redisURL); err != nil {
			log.Printf("Warning: Redis unavailable: %v", err)
			log.Println("Falling back to in-memory rate limiting (per-replica limits)")
		}
	} else {
		log.Println("REDIS_URL not set - using in-memory rate limiting")
	}

	if len(jwtSecret) == 0 {
		log.Println("⚠️  JWT_SECRET not set - client authentication DISABLED (development mode)")
	}

	serviceMetrics = NewExportServiceMetrics()
	log.Println("Per-stage metrics initialized")
}

// newConnector is the registry factory for lazy-loaded connectors
func newConnector(connectorType string) (base.Connector, error) {
	switch connectorType {
	case "qualtrics":
		return qualtrics.NewQualtricsConnector(), nil
	case "mock":
		return sdk.NewMockConnector("mock", "mock"), nil
	default:
		return nil, fmt.Errorf("unknown connector type: %s", connectorType)
	}
}

// newSecretsManager picks the secrets backend from the environment
func newSecretsManager() config.SecretsManager {
	switch os.Getenv("SURVEYFLOW_SECRETS_BACKEND") {
	case "aws":
		sm, err := config.NewAWSSecretsManager(context.Background(), config.AWSSecretsManagerOptions{
			Region: os.Getenv("AWS_REGION"),
		})
		if err != nil {
			log.Printf("Warning: AWS Secrets Manager unavailable: %v", err)
			return config.NewEnvSecretsManager(nil)
		}
		log.Println("✅ AWS Secrets Manager backend initialized")
		return sm
	default:
		return config.NewEnvSecretsManager(nil)
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	components := map[string]bool{
		"registry":       connectorRegistry != nil,
		"runtime_config": runtimeConfig != nil,
		"run_history":    connectorRegistry != nil && connectorRegistry.Storage() != nil,
		"redis":          redisClient != nil,
	}

	health := map[string]interface{}{
		"status":     "healthy",
		"service":    "surveyflow-export",
		"version":    "1.0.0",
		"timestamp":  time.Now().UTC(),
		"components": components,
		"connectors": connectorRegistry.Count(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(health); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func listConnectorsHandler(w http.ResponseWriter, r *http.Request) {
	client, err := authenticateRequest(r)
	if err != nil {
		sendErrorResponse(w, err.Error(), http.StatusUnauthorized)
		return
	}

	names := connectorRegistry.GetConnectorsByTenant(client.TenantID)
	types := connectorRegistry.ListWithTypes()

	out := make([]map[string]string, 0, len(names))
	for _, name := range names {
		out = append(out, map[string]string{
			"name": name,
			"type": types[name],
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"connectors": out,
		"count":      len(out),
	}); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func connectorHealthHandler(w http.ResponseWriter, r *http.Request) {
	client, err := authenticateRequest(r)
	if err != nil {
		sendErrorResponse(w, err.Error(), http.StatusUnauthorized)
		return
	}

	name := mux.Vars(r)["name"]
	if err := connectorRegistry.ValidateTenantAccess(name, client.TenantID); err != nil {
		sendErrorResponse(w, err.Error(), http.StatusForbidden)
		return
	}

	status, err := connectorRegistry.HealthCheckSingle(r.Context(), name)
	if err != nil {
		sendErrorResponse(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

// Utility functions

func sendErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	response := ExportAPIResponse{
		Success: false,
		Error:   message,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

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

// Package config loads connector and export destination configurations
// from three sources with a fixed priority order:
//
//  1. Database: multi-tenant deployments store configs in Postgres,
//     with credentials resolved through AWS Secrets Manager.
//  2. Config file: self-hosted deployments describe connectors and
//     destinations in a YAML file; values support ${VAR} and
//     ${VAR:-default} environment expansion.
//  3. Environment variables: single-connector deployments configure
//     everything through SURVEYFLOW_<NAME>_* variables.
//
// RuntimeConfigService is the entry point. It caches resolved
// configurations per tenant with a short TTL so config edits propagate
// without restarts while keeping the hot path off the database.
//
// Credentials never appear in serialized configs. The SecretsManager
// interface has AWS, local (in-memory), and environment-variable
// implementations; the latter two exist for development and tests.
package config

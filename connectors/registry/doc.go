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

// Package registry manages the set of survey-platform connector
// instances available to the export service.
//
// A Registry maps connector names to live base.Connector instances.
// Connectors register with a configuration; registration connects the
// connector before exposing it, so a Get never returns an instance
// that has not passed its initial handshake.
//
// With PostgreSQL storage attached, configurations survive restarts
// and replicate across service instances: each replica periodically
// reloads the connectors table and lazily instantiates connectors it
// has a config for on first use. The same storage backend records the
// export run history, one row per orchestrated export with its final
// status, row count, and poll attempt count.
//
// Tenant isolation is enforced at the registry boundary: a connector
// config carries a tenant ID (or "*" for shared connectors), and
// ValidateTenantAccess gates every cross-tenant lookup.
package registry

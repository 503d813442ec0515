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
	"testing"

	"surveyflow/platform/connectors/base"
)

func TestDefaultConfigValidator(t *testing.T) {
	v := NewDefaultConfigValidator([]string{"api_token"}, map[string]interface{}{
		"timeout_seconds": 30,
	})

	tests := []struct {
		name    string
		config  *base.ConnectorConfig
		wantErr bool
	}{
		{"nil config", nil, true},
		{"missing name", &base.ConnectorConfig{Type: "qualtrics"}, true},
		{"missing type", &base.ConnectorConfig{Name: "x"}, true},
		{
			"missing required field",
			&base.ConnectorConfig{Name: "x", Type: "qualtrics"},
			true,
		},
		{
			"required field in credentials",
			&base.ConnectorConfig{
				Name: "x", Type: "qualtrics",
				Credentials: map[string]string{"api_token": "t"},
			},
			false,
		},
		{
			"required field in options",
			&base.ConnectorConfig{
				Name: "x", Type: "qualtrics",
				Options: map[string]interface{}{"api_token": "t"},
			},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	v := NewDefaultConfigValidator(nil, map[string]interface{}{
		"timeout_seconds": 30,
		"data_center":     "iad1",
	})

	cfg := &base.ConnectorConfig{
		Name: "x", Type: "qualtrics",
		Options: map[string]interface{}{"data_center": "ca1"},
	}
	v.ApplyDefaults(cfg)

	if cfg.Options["data_center"] != "ca1" {
		t.Error("defaults must not overwrite explicit options")
	}
	if cfg.Options["timeout_seconds"] != 30 {
		t.Error("expected missing option to receive its default")
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()

	if GetTenantID(ctx) != "" || GetRequestID(ctx) != "" {
		t.Error("expected empty values on a bare context")
	}

	ctx = WithTenantID(ctx, "tenant-1")
	ctx = WithRequestID(ctx, "req-9")

	if GetTenantID(ctx) != "tenant-1" {
		t.Errorf("expected tenant-1, got %s", GetTenantID(ctx))
	}
	if GetRequestID(ctx) != "req-9" {
		t.Errorf("expected req-9, got %s", GetRequestID(ctx))
	}
}

func TestConnectorMetadata(t *testing.T) {
	meta := NewConnectorMetadata("qualtrics-prod", "qualtrics", "1.2.0")
	if meta.Name != "qualtrics-prod" || meta.Type != "qualtrics" || meta.Version != "1.2.0" {
		t.Errorf("unexpected metadata: %+v", meta)
	}
	if meta.CreatedAt.IsZero() {
		t.Error("expected creation timestamp")
	}
}

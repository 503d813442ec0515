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
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "surveyflow.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

const basicConfig = `
version: "1"
connectors:
  - name: qualtrics-prod
    type: qualtrics
    data_center: ca1
    credentials:
      api_token: secret-token
    options:
      poll_interval_seconds: 5
    timeout_ms: 15000
    max_retries: 2
  - name: qualtrics-dev
    type: qualtrics
    base_url: https://dev.example.com
    enabled: false
    credentials:
      api_token: dev-token
destinations:
  - name: warehouse
    type: s3
    format: csv
    config:
      bucket: exports
      region: us-east-1
  - name: disabled-dest
    type: file
    enabled: false
    config:
      directory: /tmp
`

func TestLoadConnectorsFromFile(t *testing.T) {
	path := writeConfigFile(t, basicConfig)
	loader := NewYAMLConfigFileLoader(path, nil)

	configs, err := loader.LoadConnectors("tenant-a")
	if err != nil {
		t.Fatalf("LoadConnectors failed: %v", err)
	}

	if len(configs) != 1 {
		t.Fatalf("expected 1 enabled connector, got %d", len(configs))
	}

	cfg := configs[0]
	if cfg.Name != "qualtrics-prod" {
		t.Errorf("expected qualtrics-prod, got %s", cfg.Name)
	}
	if cfg.TenantID != "tenant-a" {
		t.Errorf("expected tenant-a, got %s", cfg.TenantID)
	}
	if cfg.DataCenter != "ca1" {
		t.Errorf("expected data center ca1, got %s", cfg.DataCenter)
	}
	if cfg.Credentials["api_token"] != "secret-token" {
		t.Errorf("unexpected api_token: %s", cfg.Credentials["api_token"])
	}
	if cfg.Timeout != 15*time.Second {
		t.Errorf("expected 15s timeout, got %v", cfg.Timeout)
	}
}

func TestLoadDestinationsFromFile(t *testing.T) {
	path := writeConfigFile(t, basicConfig)
	loader := NewYAMLConfigFileLoader(path, nil)

	dests, err := loader.LoadDestinations("tenant-a")
	if err != nil {
		t.Fatalf("LoadDestinations failed: %v", err)
	}

	if len(dests) != 1 {
		t.Fatalf("expected 1 enabled destination, got %d", len(dests))
	}
	if dests[0].Name != "warehouse" || dests[0].Type != "s3" {
		t.Errorf("unexpected destination: %+v", dests[0])
	}
	if dests[0].Format != "csv" {
		t.Errorf("expected csv format, got %s", dests[0].Format)
	}
	if dests[0].Config["bucket"] != "exports" {
		t.Errorf("unexpected bucket: %v", dests[0].Config["bucket"])
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("SF_TEST_TOKEN", "expanded-value")
	os.Unsetenv("SF_TEST_UNSET")

	tests := []struct {
		in   string
		want string
	}{
		{"${SF_TEST_TOKEN}", "expanded-value"},
		{"${SF_TEST_UNSET}", ""},
		{"${SF_TEST_UNSET:-fallback}", "fallback"},
		{"${SF_TEST_TOKEN:-fallback}", "expanded-value"},
		{"prefix-${SF_TEST_TOKEN}-suffix", "prefix-expanded-value-suffix"},
		{"no vars here", "no vars here"},
	}
	for _, tt := range tests {
		if got := expandEnvVars(tt.in); got != tt.want {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFileLoaderExpandsEnvVars(t *testing.T) {
	t.Setenv("SF_FILE_TOKEN", "from-env")
	path := writeConfigFile(t, `
version: "1"
connectors:
  - name: qualtrics
    type: qualtrics
    data_center: ca1
    credentials:
      api_token: ${SF_FILE_TOKEN}
`)
	loader := NewYAMLConfigFileLoader(path, nil)

	configs, err := loader.LoadConnectors("default")
	if err != nil {
		t.Fatalf("LoadConnectors failed: %v", err)
	}
	if configs[0].Credentials["api_token"] != "from-env" {
		t.Errorf("expected expanded token, got %s", configs[0].Credentials["api_token"])
	}
}

func TestValidateConfigFile(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
	}{
		{"valid", basicConfig, false},
		{"connector missing name", `
connectors:
  - type: qualtrics
    data_center: ca1
`, true},
		{"connector missing endpoint", `
connectors:
  - name: qt
    type: qualtrics
`, true},
		{"duplicate connector", `
connectors:
  - name: qt
    type: qualtrics
    data_center: ca1
  - name: qt
    type: qualtrics
    data_center: eu1
`, true},
		{"unknown destination type", `
destinations:
  - name: d
    type: carrier-pigeon
`, true},
		{"bad format", `
destinations:
  - name: d
    type: s3
    format: parquet
`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg ConfigFile
			if err := yaml.Unmarshal([]byte(tt.yaml), &cfg); err != nil {
				t.Fatalf("yaml parse failed: %v", err)
			}
			err := ValidateConfigFile(&cfg)
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestGenerateExampleConfigFileParses(t *testing.T) {
	var cfg ConfigFile
	if err := yaml.Unmarshal([]byte(GenerateExampleConfigFile()), &cfg); err != nil {
		t.Fatalf("example config does not parse: %v", err)
	}
	if err := ValidateConfigFile(&cfg); err != nil {
		t.Fatalf("example config does not validate: %v", err)
	}
	if len(cfg.Connectors) == 0 || len(cfg.Destinations) == 0 {
		t.Error("example config should include connectors and destinations")
	}
}

func TestFileLoaderReloadsOnChange(t *testing.T) {
	path := writeConfigFile(t, basicConfig)
	loader := NewYAMLConfigFileLoader(path, nil)

	if _, err := loader.LoadConnectors("t"); err != nil {
		t.Fatalf("initial load failed: %v", err)
	}

	updated := `
version: "1"
connectors:
  - name: replacement
    type: qualtrics
    data_center: eu1
    credentials:
      api_token: tok
`
	if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}
	// Ensure the mtime moves even on coarse-grained filesystems
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("failed to bump mtime: %v", err)
	}

	configs, err := loader.LoadConnectors("t")
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if len(configs) != 1 || configs[0].Name != "replacement" {
		t.Errorf("expected reloaded config, got %+v", configs)
	}
}

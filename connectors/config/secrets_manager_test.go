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
	"context"
	"testing"
)

func TestLocalSecretsManager(t *testing.T) {
	sm := NewLocalSecretsManager(nil)
	ctx := context.Background()

	if _, err := sm.GetSecret(ctx, "missing"); err == nil {
		t.Error("expected error for missing secret")
	}

	sm.SetSecret("arn:test:qualtrics-creds", map[string]string{
		"api_token": "tok-abc",
	})

	creds, err := sm.GetSecret(ctx, "arn:test:qualtrics-creds")
	if err != nil {
		t.Fatalf("GetSecret failed: %v", err)
	}
	if creds["api_token"] != "tok-abc" {
		t.Errorf("unexpected api_token: %s", creds["api_token"])
	}
}

func TestEnvSecretsManager(t *testing.T) {
	t.Setenv("QTTEST_API_TOKEN", "env-token")
	t.Setenv("QTTEST_CLIENT_SECRET", "env-secret")

	sm := NewEnvSecretsManager(nil)
	creds, err := sm.GetSecret(context.Background(), "QTTEST")
	if err != nil {
		t.Fatalf("GetSecret failed: %v", err)
	}

	if creds["api_token"] != "env-token" {
		t.Errorf("expected api_token env-token, got %s", creds["api_token"])
	}
	if creds["client_secret"] != "env-secret" {
		t.Errorf("expected client_secret env-secret, got %s", creds["client_secret"])
	}
}

func TestEnvSecretsManagerNoCredentials(t *testing.T) {
	sm := NewEnvSecretsManager(nil)
	if _, err := sm.GetSecret(context.Background(), "DEFINITELY_UNSET_PREFIX"); err == nil {
		t.Error("expected error when no credentials are present")
	}
}

func TestMaskARN(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"short", "***"},
		{"arn:aws:secretsmanager:us-east-1:123456789012:secret:qualtrics", "...ualtrics"},
	}
	for _, tt := range tests {
		if got := maskARN(tt.in); got != tt.want {
			t.Errorf("maskARN(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

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

package base

import (
	"errors"
	"net"
	"testing"
)

func TestValidateSecureURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"https accepted", "https://ca1.qualtrics.com/API/v3", false},
		{"https with port accepted", "https://ca1.qualtrics.com:443/API/v3", false},
		{"plain http rejected", "http://ca1.qualtrics.com/API/v3", true},
		{"ftp rejected", "ftp://ca1.qualtrics.com", true},
		{"scheme-less rejected", "ca1.qualtrics.com/API/v3", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateSecureURL(tt.url)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.url)
				}
				if !errors.Is(err, ErrInvalidScheme) {
					t.Errorf("expected ErrInvalidScheme, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.url {
				t.Errorf("expected URL returned unchanged, got %q", got)
			}
		})
	}
}

func TestValidateHostSuffixAllowList(t *testing.T) {
	opts := URLValidationOptions{
		AllowPrivateIPs:     true, // skip DNS in unit tests
		AllowedHostSuffixes: []string{".qualtrics.com"},
	}

	if err := ValidateHost("https://ca1.qualtrics.com", opts); err != nil {
		t.Errorf("expected allowed suffix to pass: %v", err)
	}
	if err := ValidateHost("https://evil.example.com", opts); err == nil {
		t.Error("expected disallowed host to be rejected")
	}
	if err := ValidateHost("", opts); err == nil {
		t.Error("expected empty URL to be rejected")
	}
}

func TestIsPrivateIP(t *testing.T) {
	private := []string{"127.0.0.1", "10.0.0.5", "172.16.1.1", "192.168.1.1", "169.254.1.1", "100.64.0.1", "0.0.0.0", "::1"}
	for _, addr := range private {
		if !isPrivateIP(net.ParseIP(addr)) {
			t.Errorf("expected %s to be treated as private", addr)
		}
	}

	public := []string{"8.8.8.8", "162.247.216.1"}
	for _, addr := range public {
		if isPrivateIP(net.ParseIP(addr)) {
			t.Errorf("expected %s to be treated as public", addr)
		}
	}
}

func TestSanitizeLogString(t *testing.T) {
	got := SanitizeLogString("line1\nline2\rline3")
	want := "line1\\nline2\\rline3"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

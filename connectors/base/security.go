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
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrInvalidScheme is returned when an endpoint URL does not use HTTPS.
// Survey platform credentials ride on every request, so plaintext transport
// is rejected before the request is ever built.
var ErrInvalidScheme = errors.New("url scheme must be https")

// ValidateSecureURL parses raw and requires the encrypted HTTP scheme.
// On success the input is returned unchanged. Pure; no network access.
func ValidateSecureURL(raw string) (string, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if !strings.EqualFold(parsed.Scheme, "https") {
		return "", fmt.Errorf("url %q: %w", raw, ErrInvalidScheme)
	}
	return raw, nil
}

// URLValidationOptions configures host-level URL validation
type URLValidationOptions struct {
	// AllowPrivateIPs permits connections to private/internal IP addresses
	AllowPrivateIPs bool
	// AllowedHostSuffixes restricts URLs to specific domain suffixes
	// e.g., [".qualtrics.com"]
	AllowedHostSuffixes []string
}

// ValidateHost performs SSRF protection for a base URL configured at Connect
// time. It checks host suffix allow-lists and blocks resolution to
// private/internal IPs unless explicitly allowed.
func ValidateHost(rawURL string, opts URLValidationOptions) error {
	if rawURL == "" {
		return fmt.Errorf("URL cannot be empty")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	hostname := parsed.Hostname()
	if hostname == "" {
		return fmt.Errorf("URL must contain a hostname")
	}

	if len(opts.AllowedHostSuffixes) > 0 && !hostHasSuffix(hostname, opts.AllowedHostSuffixes) {
		return fmt.Errorf("hostname %q is not in the allowed list", hostname)
	}

	if !opts.AllowPrivateIPs {
		ips, err := net.LookupIP(hostname)
		if err != nil {
			return fmt.Errorf("failed to resolve hostname %q: %w", hostname, err)
		}
		for _, ip := range ips {
			if isPrivateIP(ip) {
				return fmt.Errorf("connection to private/internal IP %s is not allowed (hostname: %s)", ip, hostname)
			}
		}
	}

	return nil
}

// isPrivateIP checks if an IP address is private, loopback, or otherwise internal
func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() {
		return true
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	if ip.IsPrivate() {
		return true
	}
	if ip.IsUnspecified() {
		return true
	}

	if ip4 := ip.To4(); ip4 != nil {
		// 169.254.0.0/16 (link-local)
		if ip4[0] == 169 && ip4[1] == 254 {
			return true
		}
		// 127.0.0.0/8 (loopback range)
		if ip4[0] == 127 {
			return true
		}
		// 100.64.0.0/10 (carrier-grade NAT)
		if ip4[0] == 100 && ip4[1] >= 64 && ip4[1] <= 127 {
			return true
		}
		// 224.0.0.0/4 and above (multicast, reserved)
		if ip4[0] >= 224 {
			return true
		}
	}

	return false
}

func hostHasSuffix(hostname string, suffixes []string) bool {
	hostname = strings.ToLower(hostname)
	for _, suffix := range suffixes {
		if strings.HasSuffix(hostname, strings.ToLower(suffix)) {
			return true
		}
	}
	return false
}

// SanitizeLogString escapes characters that could be used for log injection
func SanitizeLogString(s string) string {
	s = strings.ReplaceAll(s, "\n", "\\n")
	s = strings.ReplaceAll(s, "\r", "\\r")
	return s
}

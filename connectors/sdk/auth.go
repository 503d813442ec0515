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

package sdk

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// AuthProvider defines the interface for authentication mechanisms
type AuthProvider interface {
	// Authenticate applies authentication to the given request
	Authenticate(ctx context.Context, req *http.Request) error

	// IsExpired checks if the current credentials have expired
	IsExpired() bool

	// Refresh refreshes the credentials if possible
	Refresh(ctx context.Context) error

	// Type returns the authentication type name
	Type() string
}

// APIKeyLocation specifies where the API key should be placed
type APIKeyLocation int

const (
	// APIKeyInHeader places the API key in a header
	APIKeyInHeader APIKeyLocation = iota
	// APIKeyInQuery places the API key in query parameters
	APIKeyInQuery
)

// APIKeyAuth provides API key authentication. Survey platforms typically
// use a static token header, e.g. Qualtrics' X-API-TOKEN.
type APIKeyAuth struct {
	apiKey   string
	location APIKeyLocation
	keyName  string
	mu       sync.RWMutex
}

// NewAPIKeyAuth creates a new API key authentication provider
func NewAPIKeyAuth(apiKey string, location APIKeyLocation, keyName string) *APIKeyAuth {
	if keyName == "" {
		keyName = "X-API-TOKEN"
	}
	return &APIKeyAuth{
		apiKey:   apiKey,
		location: location,
		keyName:  keyName,
	}
}

// Authenticate applies the API key to the request
func (a *APIKeyAuth) Authenticate(ctx context.Context, req *http.Request) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.apiKey == "" {
		return fmt.Errorf("API key is not set")
	}

	switch a.location {
	case APIKeyInQuery:
		q := req.URL.Query()
		q.Set(a.keyName, a.apiKey)
		req.URL.RawQuery = q.Encode()
	default:
		req.Header.Set(a.keyName, a.apiKey)
	}

	return nil
}

// IsExpired returns false for API keys as they don't expire automatically
func (a *APIKeyAuth) IsExpired() bool {
	return false
}

// Refresh is a no-op for API keys
func (a *APIKeyAuth) Refresh(ctx context.Context) error {
	return nil
}

// Type returns the authentication type
func (a *APIKeyAuth) Type() string {
	return "api_key"
}

// SetAPIKey updates the API key
func (a *APIKeyAuth) SetAPIKey(apiKey string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.apiKey = apiKey
}

// BasicAuth provides HTTP Basic authentication
type BasicAuth struct {
	username string
	password string
	mu       sync.RWMutex
}

// NewBasicAuth creates a new Basic authentication provider
func NewBasicAuth(username, password string) *BasicAuth {
	return &BasicAuth{
		username: username,
		password: password,
	}
}

// Authenticate applies Basic auth to the request
func (b *BasicAuth) Authenticate(ctx context.Context, req *http.Request) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.username == "" {
		return fmt.Errorf("username is not set")
	}

	req.SetBasicAuth(b.username, b.password)
	return nil
}

// IsExpired returns false for Basic auth
func (b *BasicAuth) IsExpired() bool {
	return false
}

// Refresh is a no-op for Basic auth
func (b *BasicAuth) Refresh(ctx context.Context) error {
	return nil
}

// Type returns the authentication type
func (b *BasicAuth) Type() string {
	return "basic"
}

// BearerTokenAuth provides Bearer token authentication with an optional
// expiry and refresh callback for OAuth-style survey platform tokens.
type BearerTokenAuth struct {
	token     string
	expiresAt time.Time
	refresher func(ctx context.Context) (string, time.Time, error)
	mu        sync.RWMutex
}

// NewBearerTokenAuth creates a new Bearer token authentication provider
func NewBearerTokenAuth(token string, expiresAt time.Time) *BearerTokenAuth {
	return &BearerTokenAuth{
		token:     token,
		expiresAt: expiresAt,
	}
}

// SetRefresher installs a callback used by Refresh to obtain a new token
func (b *BearerTokenAuth) SetRefresher(fn func(ctx context.Context) (string, time.Time, error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresher = fn
}

// Authenticate applies the Bearer token to the request
func (b *BearerTokenAuth) Authenticate(ctx context.Context, req *http.Request) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.token == "" {
		return fmt.Errorf("bearer token is not set")
	}

	req.Header.Set("Authorization", "Bearer "+b.token)
	return nil
}

// IsExpired checks if the token has expired
func (b *BearerTokenAuth) IsExpired() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.expiresAt.IsZero() {
		return false
	}
	return time.Now().After(b.expiresAt)
}

// Refresh obtains a new token via the installed refresher
func (b *BearerTokenAuth) Refresh(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.refresher == nil {
		return fmt.Errorf("no token refresher configured")
	}

	token, expiresAt, err := b.refresher(ctx)
	if err != nil {
		return fmt.Errorf("token refresh failed: %w", err)
	}

	b.token = token
	b.expiresAt = expiresAt
	return nil
}

// Type returns the authentication type
func (b *BearerTokenAuth) Type() string {
	return "bearer"
}

// SetToken updates the token and its expiry
func (b *BearerTokenAuth) SetToken(token string, expiresAt time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.token = token
	b.expiresAt = expiresAt
}

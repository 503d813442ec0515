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
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ClientContext identifies an authenticated API client
type ClientContext struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	TenantID    string   `json:"tenant_id"`
	Permissions []string `json:"permissions"`
	RateLimit   int      `json:"rate_limit"` // requests per minute
}

const defaultRateLimit = 300 // requests per minute when the token carries no limit

// authenticateRequest resolves the calling client from the Authorization
// header. When JWT_SECRET is unset authentication is disabled and every
// request runs as the default tenant (development / self-hosted mode).
func authenticateRequest(r *http.Request) (*ClientContext, error) {
	if len(jwtSecret) == 0 {
		return &ClientContext{
			ID:          "anonymous",
			Name:        "Anonymous (auth disabled)",
			TenantID:    defaultTenantID,
			Permissions: []string{"export", "questions"},
			RateLimit:   defaultRateLimit,
		}, nil
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, fmt.Errorf("authorization header required")
	}
	tokenString := strings.TrimPrefix(header, "Bearer ")
	if tokenString == header {
		return nil, fmt.Errorf("authorization header must be a bearer token")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token: %v", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}

	clientID := getClaimString(claims, "client_id")
	if clientID == "" {
		return nil, fmt.Errorf("token missing client_id claim")
	}

	tenantID := getClaimString(claims, "tenant_id")
	if tenantID == "" {
		tenantID = defaultTenantID
	}

	rateLimit := defaultRateLimit
	if v, ok := claims["rate_limit"].(float64); ok && v > 0 {
		rateLimit = int(v)
	}

	return &ClientContext{
		ID:          clientID,
		Name:        getClaimString(claims, "name"),
		TenantID:    tenantID,
		Permissions: getClaimStringArray(claims, "permissions"),
		RateLimit:   rateLimit,
	}, nil
}

// HasPermission reports whether the client holds the named permission
func (c *ClientContext) HasPermission(permission string) bool {
	for _, p := range c.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

func getClaimString(claims jwt.MapClaims, key string) string {
	if val, ok := claims[key].(string); ok {
		return val
	}
	return ""
}

func getClaimStringArray(claims jwt.MapClaims, key string) []string {
	if val, ok := claims[key].(string); ok {
		if val == "" {
			return []string{}
		}
		return strings.Split(val, ",")
	}
	return []string{}
}

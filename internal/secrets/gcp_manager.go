package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	secretmanagerpb "cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// ShopifyCredentials is the JSON document stored in Secret Manager
// for a store. Plain-string secret payloads are also accepted and
// treated as a bare access token.
type ShopifyCredentials struct {
	Store       string `json:"store,omitempty"`
	AccessToken string `json:"access_token"`
	APIKey      string `json:"api_key,omitempty"`
	APISecret   string `json:"api_secret,omitempty"`
}

type cacheEntry struct {
	creds     *ShopifyCredentials
	expiresAt time.Time
}

// GCPSecretManager fetches store credentials from Google Cloud Secret Manager
type GCPSecretManager struct {
	client    *secretmanager.Client
	projectID string
	cache     map[string]*cacheEntry
	cacheMu   sync.RWMutex
	cacheTTL  time.Duration
}

// NewGCPSecretManager creates a new GCP Secret Manager client
func NewGCPSecretManager(ctx context.Context, projectID string) (*GCPSecretManager, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret manager client: %w", err)
	}

	return &GCPSecretManager{
		client:    client,
		projectID: projectID,
		cache:     make(map[string]*cacheEntry),
		cacheTTL:  5 * time.Minute,
	}, nil
}

// Close closes the Secret Manager client
func (sm *GCPSecretManager) Close() error {
	if sm.client != nil {
		return sm.client.Close()
	}
	return nil
}

// BuildSecretName constructs the full resource name for a secret ID
// Format: projects/{project}/secrets/{secret_id}
func (sm *GCPSecretManager) BuildSecretName(secretID string) string {
	return fmt.Sprintf("projects/%s/secrets/%s", sm.projectID, sanitizeSecretID(secretID))
}

// GetShopifyCredentials retrieves store credentials by secret ID. The
// payload may be a JSON credentials document or a raw token string.
func (sm *GCPSecretManager) GetShopifyCredentials(ctx context.Context, secretID string) (*ShopifyCredentials, error) {
	secretName := sm.BuildSecretName(secretID)

	// Check cache first
	sm.cacheMu.RLock()
	if entry, ok := sm.cache[secretName]; ok && time.Now().Before(entry.expiresAt) {
		sm.cacheMu.RUnlock()
		return entry.creds, nil
	}
	sm.cacheMu.RUnlock()

	accessRequest := &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName + "/versions/latest",
	}

	result, err := sm.client.AccessSecretVersion(ctx, accessRequest)
	if err != nil {
		return nil, fmt.Errorf("failed to access secret: %w", err)
	}

	creds := parseCredentials(result.Payload.Data)
	if creds.AccessToken == "" {
		return nil, fmt.Errorf("secret %s contains no access token", secretID)
	}

	// Cache the result
	sm.cacheMu.Lock()
	sm.cache[secretName] = &cacheEntry{
		creds:     creds,
		expiresAt: time.Now().Add(sm.cacheTTL),
	}
	sm.cacheMu.Unlock()

	return creds, nil
}

// InvalidateCache removes a secret from the cache
func (sm *GCPSecretManager) InvalidateCache(secretID string) {
	sm.cacheMu.Lock()
	delete(sm.cache, sm.BuildSecretName(secretID))
	sm.cacheMu.Unlock()
}

func parseCredentials(data []byte) *ShopifyCredentials {
	var creds ShopifyCredentials
	if err := json.Unmarshal(data, &creds); err == nil && creds.AccessToken != "" {
		return &creds
	}
	// Fall back to treating the payload as a bare token
	return &ShopifyCredentials{AccessToken: strings.TrimSpace(string(data))}
}

// sanitizeSecretID removes or replaces invalid characters for GCP secret IDs
// Secret IDs can only contain alphanumeric characters, hyphens, and underscores
func sanitizeSecretID(input string) string {
	var result strings.Builder
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			result.WriteRune(r)
		} else {
			result.WriteRune('-')
		}
	}
	return result.String()
}

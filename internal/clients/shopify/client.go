package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"shopify-import-service/internal/clients"
)

const (
	// Shopify Admin REST truncation limits for global SEO metafields
	seoTitleMaxLen       = 70
	seoDescriptionMaxLen = 320

	// Admin API allows 2 requests/second on standard plans
	requestsPerSecond = 2
)

// Client talks to the Shopify Admin REST API for a single store.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	accessToken string
	apiVersion  string
	rateLimiter *rate.Limiter
}

// NewClient builds a Shopify Admin client. storeHost must be a bare
// host such as "my-shop.myshopify.com". connectTimeout bounds the TCP
// dial, readTimeout bounds the whole request including body download.
func NewClient(storeHost, accessToken, apiVersion string, connectTimeout, readTimeout time.Duration) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: connectTimeout,
		}).DialContext,
		TLSHandshakeTimeout: connectTimeout,
		MaxIdleConnsPerHost: 4,
	}
	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   readTimeout,
		},
		baseURL:     fmt.Sprintf("https://%s", storeHost),
		accessToken: accessToken,
		apiVersion:  apiVersion,
		rateLimiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

// CreateProduct creates a product without images.
func (c *Client) CreateProduct(ctx context.Context, payload *clients.ProductPayload) (*clients.Product, error) {
	body := map[string]interface{}{"product": payload}
	respBody, err := c.doRequest(ctx, http.MethodPost, "/products.json", body)
	if err != nil {
		return nil, err
	}

	var result struct {
		Product clients.Product `json:"product"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decoding product response: %w", err)
	}
	return &result.Product, nil
}

// UpdateProductSEO sets the global SEO title and description on an
// existing product. Values beyond Shopify's limits are truncated.
// A call with both fields empty is a no-op.
func (c *Client) UpdateProductSEO(ctx context.Context, productID int64, seoTitle, seoDescription string) error {
	update := map[string]interface{}{"id": productID}
	if seoTitle != "" {
		update["metafields_global_title_tag"] = truncate(seoTitle, seoTitleMaxLen)
	}
	if seoDescription != "" {
		update["metafields_global_description_tag"] = truncate(seoDescription, seoDescriptionMaxLen)
	}
	if len(update) == 1 {
		return nil
	}

	path := fmt.Sprintf("/products/%d.json", productID)
	_, err := c.doRequest(ctx, http.MethodPut, path, map[string]interface{}{"product": update})
	return err
}

// AttachImage uploads one base64-encoded image to an existing product.
func (c *Client) AttachImage(ctx context.Context, productID int64, image *clients.ImagePayload) error {
	path := fmt.Sprintf("/products/%d/images.json", productID)
	_, err := c.doRequest(ctx, http.MethodPost, path, map[string]interface{}{"image": image})
	return err
}

// GetShop fetches the store record, used to verify credentials.
func (c *Client) GetShop(ctx context.Context) (*clients.Shop, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, "/shop.json", nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Shop clients.Shop `json:"shop"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decoding shop response: %w", err)
	}
	return &result.Shop, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/admin/api/%s%s", c.baseURL, c.apiVersion, path)

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Shopify-Access-Token", c.accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &clients.APIError{
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
			Method:     method,
			Path:       path,
		}
	}
	return respBody, nil
}

// truncate keeps the first max characters, never splitting a rune
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

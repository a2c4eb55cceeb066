package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RESTCatalog implements Catalog against the Iceberg REST Catalog API.
type RESTCatalog struct {
	name   string
	uri    string
	client *http.Client
	token  string
}

// RESTCatalogOption configures a REST catalog.
type RESTCatalogOption func(*RESTCatalog)

// WithName sets the catalog name.
func WithName(name string) RESTCatalogOption {
	return func(c *RESTCatalog) {
		c.name = name
	}
}

// WithToken sets the bearer token for authentication.
func WithToken(token string) RESTCatalogOption {
	return func(c *RESTCatalog) {
		c.token = token
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) RESTCatalogOption {
	return func(c *RESTCatalog) {
		c.client = client
	}
}

// NewRESTCatalog creates a new REST catalog client.
func NewRESTCatalog(uri string, opts ...RESTCatalogOption) (*RESTCatalog, error) {
	if uri == "" {
		return nil, fmt.Errorf("catalog URI is required")
	}

	c := &RESTCatalog{
		name:   "rest",
		uri:    strings.TrimSuffix(uri, "/"),
		client: &http.Client{Timeout: 30 * time.Second},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Name returns the catalog name.
func (c *RESTCatalog) Name() string {
	return c.name
}

// doRequest executes an HTTP request.
func (c *RESTCatalog) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.uri+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	return resp, nil
}

// parseResponse parses an HTTP response.
func parseResponse[T any](resp *http.Response, v *T) error {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", strings.TrimSpace(string(body)), ErrTableNotFound)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error struct {
				Message string `json:"message"`
				Type    string `json:"type"`
				Code    int    `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
			return fmt.Errorf("REST API error: %s (code: %d, type: %s)",
				errResp.Error.Message, errResp.Error.Code, errResp.Error.Type)
		}
		return fmt.Errorf("REST API error: status %d: %s", resp.StatusCode, string(body))
	}

	if v != nil && len(body) > 0 {
		if err := json.Unmarshal(body, v); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}

// tablePath returns the API path for a table.
func tablePath(database, table string) string {
	return "/v1/namespaces/" + url.PathEscape(database) + "/tables/" + url.PathEscape(table)
}

// GetTableInfo resolves a table's location and metadata location.
func (c *RESTCatalog) GetTableInfo(ctx context.Context, database, table string) (*TableInfo, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, tablePath(database, table), nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		MetadataLocation string `json:"metadata-location"`
		Metadata         struct {
			Location string `json:"location"`
		} `json:"metadata"`
	}
	if err := parseResponse(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to load table %s.%s: %w", database, table, err)
	}

	if result.MetadataLocation == "" {
		return nil, fmt.Errorf("table %s.%s: %w", database, table, ErrNotIcebergTable)
	}

	return &TableInfo{
		Location:         result.Metadata.Location,
		MetadataLocation: result.MetadataLocation,
	}, nil
}

// RegisterTable registers an existing metadata file as a new table.
func (c *RESTCatalog) RegisterTable(ctx context.Context, database, table, metadataLocation string) error {
	body := map[string]string{
		"name":              table,
		"metadata-location": metadataLocation,
	}

	resp, err := c.doRequest(ctx, http.MethodPost,
		"/v1/namespaces/"+url.PathEscape(database)+"/register", body)
	if err != nil {
		return err
	}

	var result map[string]any
	if err := parseResponse(resp, &result); err != nil {
		return fmt.Errorf("failed to register table %s.%s: %w", database, table, err)
	}

	return nil
}

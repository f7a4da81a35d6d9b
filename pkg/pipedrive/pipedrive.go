// Package pipedrive is a minimal client for the Pipedrive v1 REST API,
// covering person search, person creation, and deal creation.
package pipedrive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const maxResponseSizeBytes = 1 << 20

type Config struct {
	// Domain is the company subdomain, e.g. "acme" for
	// https://acme.pipedrive.com.
	Domain   string        `split_words:"true"`
	APIToken string        `envconfig:"API_TOKEN" split_words:"true"`
	Timeout  time.Duration `split_words:"true" default:"30s"`

	// BaseURL overrides the derived https://<domain>.pipedrive.com/api/v1
	// endpoint; used by tests.
	BaseURL string `envconfig:"BASE_URL" split_words:"true"`
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient returns nil when the domain or token is missing so callers
// can degrade gracefully instead of failing startup.
func NewClient(cfg Config, opts ...Option) *Client {
	token := strings.TrimSpace(cfg.APIToken)
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		domain := strings.TrimSpace(cfg.Domain)
		if domain == "" {
			return nil
		}
		baseURL = fmt.Sprintf("https://%s.pipedrive.com/api/v1", domain)
	}
	if token == "" {
		return nil
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client
}

type searchResponse struct {
	Data struct {
		Items []struct {
			Item struct {
				ID int `json:"id"`
			} `json:"item"`
		} `json:"items"`
	} `json:"data"`
}

type idResponse struct {
	Data struct {
		ID int `json:"id"`
	} `json:"data"`
}

// SearchPerson looks up a person by exact match on a single field
// ("email" or "phone"). It reports the first matching id, or found=false
// when the term has no match.
func (c *Client) SearchPerson(ctx context.Context, term, field string) (id int, found bool, err error) {
	q := url.Values{}
	q.Set("term", term)
	q.Set("fields", field)
	q.Set("exact_match", "true")

	raw, err := c.do(ctx, http.MethodGet, "/persons/search", q, nil)
	if err != nil {
		return 0, false, fmt.Errorf("search person by %s: %w", field, err)
	}

	var parsed searchResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return 0, false, fmt.Errorf("decode person search response: %w", err)
	}
	if len(parsed.Data.Items) == 0 {
		return 0, false, nil
	}
	id = parsed.Data.Items[0].Item.ID
	if id == 0 {
		return 0, false, errors.New("person search returned no usable id")
	}
	return id, true, nil
}

// CreatePerson creates a contact and returns its id.
func (c *Client) CreatePerson(ctx context.Context, name, email, phone string) (int, error) {
	body := map[string]any{
		"name":  name,
		"email": []string{email},
		"phone": []string{phone},
	}

	raw, err := c.do(ctx, http.MethodPost, "/persons", nil, body)
	if err != nil {
		return 0, fmt.Errorf("create person: %w", err)
	}

	var parsed idResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return 0, fmt.Errorf("decode create person response: %w", err)
	}
	if parsed.Data.ID == 0 {
		return 0, errors.New("create person returned no usable id")
	}
	return parsed.Data.ID, nil
}

// CreateDeal creates a deal linked to an existing person.
func (c *Client) CreateDeal(ctx context.Context, title string, personID int) (int, error) {
	body := map[string]any{
		"title":     title,
		"person_id": personID,
	}

	raw, err := c.do(ctx, http.MethodPost, "/deals", nil, body)
	if err != nil {
		return 0, fmt.Errorf("create deal: %w", err)
	}

	var parsed idResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return 0, fmt.Errorf("decode create deal response: %w", err)
	}
	if parsed.Data.ID == 0 {
		return 0, errors.New("create deal returned no usable id")
	}
	return parsed.Data.ID, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	if query == nil {
		query = url.Values{}
	}
	query.Set("api_token", c.token)
	endpoint := c.baseURL + path + "?" + query.Encode()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		log.Warn().Int("status", resp.StatusCode).Str("path", path).Msg("pipedrive request failed")
		return nil, fmt.Errorf("pipedrive http status=%d", resp.StatusCode)
	}
	return raw, nil
}

package listsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/weeklist/weeklist/internal/weeklist"
)

// HTTPError is a non-2xx API response, carrying the server's error payload.
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// Remote is the server surface the sync hook needs. Client is the one
// production implementation; tests substitute failure-injecting fakes.
type Remote interface {
	ListItems(ctx context.Context) ([]weeklist.Item, error)
	CreateItem(ctx context.Context, in weeklist.NewItem) (weeklist.Item, error)
	UpdateItem(ctx context.Context, id string, upd weeklist.ItemUpdate) (weeklist.Item, error)
	DeleteItem(ctx context.Context, id string) error
	ClearItems(ctx context.Context) error

	ListHistory(ctx context.Context) ([]weeklist.HistoryEntry, error)
	UpsertHistory(ctx context.Context, entry weeklist.HistoryEntry) error
	RenameHistory(ctx context.Context, name, newName, category string) (weeklist.HistoryEntry, error)
	DeleteHistory(ctx context.Context, name string) error

	ListCategories(ctx context.Context) ([]weeklist.Category, error)
	CreateCategory(ctx context.Context, name string, order int) (weeklist.Category, error)
	DeleteCategory(ctx context.Context, id string) error

	GetMeta(ctx context.Context, key string) (json.RawMessage, error)
	SetMeta(ctx context.Context, key string, value json.RawMessage) error
}

// Client talks to the weeklist resource API. Transient failures (network
// errors, 429, 5xx) are retried with exponential backoff, honoring
// Retry-After.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8080"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		maxRetries: 3,
		baseDelay:  100 * time.Millisecond,
		maxDelay:   2 * time.Second,
	}
}

func (c *Client) ListItems(ctx context.Context) ([]weeklist.Item, error) {
	var out []weeklist.Item
	err := c.doJSON(ctx, http.MethodGet, "/items", nil, &out)
	return out, err
}

func (c *Client) CreateItem(ctx context.Context, in weeklist.NewItem) (weeklist.Item, error) {
	var out weeklist.Item
	err := c.doJSON(ctx, http.MethodPost, "/items", in, &out)
	return out, err
}

func (c *Client) UpdateItem(ctx context.Context, id string, upd weeklist.ItemUpdate) (weeklist.Item, error) {
	var out weeklist.Item
	err := c.doJSON(ctx, http.MethodPut, "/items/"+url.PathEscape(id), upd, &out)
	return out, err
}

func (c *Client) DeleteItem(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/items/"+url.PathEscape(id), nil, nil)
}

func (c *Client) ClearItems(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodDelete, "/items", nil, nil)
}

func (c *Client) ListHistory(ctx context.Context) ([]weeklist.HistoryEntry, error) {
	var out []weeklist.HistoryEntry
	err := c.doJSON(ctx, http.MethodGet, "/history", nil, &out)
	return out, err
}

func (c *Client) UpsertHistory(ctx context.Context, entry weeklist.HistoryEntry) error {
	return c.doJSON(ctx, http.MethodPost, "/history", entry, nil)
}

func (c *Client) RenameHistory(ctx context.Context, name, newName, category string) (weeklist.HistoryEntry, error) {
	body := map[string]string{
		"newName":  newName,
		"category": category,
	}
	var out weeklist.HistoryEntry
	err := c.doJSON(ctx, http.MethodPut, "/history/"+url.PathEscape(name), body, &out)
	return out, err
}

func (c *Client) DeleteHistory(ctx context.Context, name string) error {
	return c.doJSON(ctx, http.MethodDelete, "/history/"+url.PathEscape(name), nil, nil)
}

func (c *Client) ListCategories(ctx context.Context) ([]weeklist.Category, error) {
	var out []weeklist.Category
	err := c.doJSON(ctx, http.MethodGet, "/categories", nil, &out)
	return out, err
}

func (c *Client) CreateCategory(ctx context.Context, name string, order int) (weeklist.Category, error) {
	body := map[string]any{
		"name":  name,
		"order": order,
	}
	var out weeklist.Category
	err := c.doJSON(ctx, http.MethodPost, "/categories", body, &out)
	return out, err
}

func (c *Client) UpdateCategory(ctx context.Context, id string, upd weeklist.CategoryUpdate) (weeklist.Category, error) {
	var out weeklist.Category
	err := c.doJSON(ctx, http.MethodPut, "/categories/"+url.PathEscape(id), upd, &out)
	return out, err
}

func (c *Client) DeleteCategory(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/categories/"+url.PathEscape(id), nil, nil)
}

func (c *Client) GetMeta(ctx context.Context, key string) (json.RawMessage, error) {
	var out struct {
		Value json.RawMessage `json:"value"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/meta?key="+url.QueryEscape(key), nil, &out)
	return out.Value, err
}

func (c *Client) SetMeta(ctx context.Context, key string, value json.RawMessage) error {
	body := map[string]json.RawMessage{
		"key":   json.RawMessage(strconv.Quote(key)),
		"value": value,
	}
	return c.doJSON(ctx, http.MethodPost, "/meta", body, nil)
}

// Subscribe registers a Web Push subscription with the server.
func (c *Client) Subscribe(ctx context.Context, sub weeklist.PushSubscription) error {
	return c.doJSON(ctx, http.MethodPost, "/push/subscribe", sub, nil)
}

func (c *Client) doJSON(ctx context.Context, method, requestPath string, body, out any) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}
	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bodyReader)
		if err != nil {
			return err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < c.maxRetries {
				if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return waitErr
				}
				continue
			}
			return err
		}
		payload, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return readErr
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if out == nil || len(payload) == 0 {
				return nil
			}
			return json.Unmarshal(payload, out)
		}

		if (resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599)) && attempt < c.maxRetries {
			if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return waitErr
			}
			continue
		}

		var errPayload struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(payload, &errPayload)
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Code:       errPayload.Code,
			Message:    errPayload.Message,
		}
	}
}

func (c *Client) retryDelay(attempt int, retryAfter string) time.Duration {
	if retryAfter != "" {
		if seconds, err := strconv.Atoi(strings.TrimSpace(retryAfter)); err == nil && seconds > 0 {
			delay := time.Duration(seconds) * time.Second
			if delay > c.maxDelay {
				return c.maxDelay
			}
			return delay
		}
	}
	delay := c.baseDelay << (attempt - 1)
	if delay > c.maxDelay {
		return c.maxDelay
	}
	return delay
}

func waitWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Package client is the HTTP client the storefront bot uses to reach the
// booking API.
package client

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

	"urbanharvest/internal/checkout"
	"urbanharvest/internal/domain"
	"urbanharvest/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// APIError is a non-2xx answer. It unwraps to the matching domain error.
type APIError struct {
	Status  int               `json:"-"`
	Code    string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("http %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("http %d", e.Status)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusBadRequest:
		if e.Code == "self_action_denied" {
			return domain.ErrSelfAction
		}
		if len(e.Fields) > 0 {
			return &domain.ValidationError{Fields: e.Fields}
		}
		return domain.ErrValidation
	case http.StatusUnauthorized:
		return domain.ErrUnauthorized
	case http.StatusForbidden:
		if e.Code == "account_suspended" {
			return domain.ErrAccountSuspended
		}
		return domain.ErrForbidden
	case http.StatusConflict:
		return domain.ErrConflict
	}
	return nil
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client

	redis    *redis.Client
	cacheTTL time.Duration
}

// New constructs a client. token may be empty, in which case bookings are
// recorded as guest bookings.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// UseRedisCache configures optional Redis caching for catalog reads.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

func (c *Client) Authenticated() bool {
	return c.token != ""
}

type loginResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Login exchanges credentials for a token and keeps it for later calls.
func (c *Client) Login(ctx context.Context, login, password string) (*models.User, error) {
	var resp loginResponse
	body := map[string]string{"login": login, "password": password}
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", body, &resp); err != nil {
		return nil, err
	}
	c.token = resp.Token
	return resp.User, nil
}

func (c *Client) ListCatalog(ctx context.Context, itemType models.ItemType) ([]models.CatalogItem, error) {
	path := "/" + itemType.Category()
	cacheKey := "catalog:" + itemType.Category()

	var items []models.CatalogItem
	if c.readCache(ctx, cacheKey, &items) {
		return items, nil
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &items); err != nil {
		return nil, err
	}
	c.writeCache(ctx, cacheKey, items)
	return items, nil
}

func (c *Client) GetCatalogItem(ctx context.Context, itemType models.ItemType, id string) (*models.CatalogItem, error) {
	path := "/" + itemType.Category() + "/" + url.PathEscape(id)
	cacheKey := "catalog:" + itemType.Category() + ":" + id

	var item models.CatalogItem
	if c.readCache(ctx, cacheKey, &item) {
		return &item, nil
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &item); err != nil {
		return nil, err
	}
	c.writeCache(ctx, cacheKey, item)
	return &item, nil
}

// CreateBooking implements checkout.Ledger.
func (c *Client) CreateBooking(ctx context.Context, req checkout.BookingRequest) (*models.Booking, error) {
	var view models.BookingView
	if err := c.doJSON(ctx, http.MethodPost, "/bookings", req, &view); err != nil {
		return nil, err
	}
	return &view.Booking, nil
}

func (c *Client) MyBookings(ctx context.Context) ([]models.BookingView, error) {
	var views []models.BookingView
	if err := c.doJSON(ctx, http.MethodGet, "/bookings/my-bookings", nil, &views); err != nil {
		return nil, err
	}
	return views, nil
}

// HasActiveBooking implements checkout.BookedView. Guests never have one.
func (c *Client) HasActiveBooking(ctx context.Context, itemType models.ItemType, itemID string) (bool, error) {
	b, err := c.FindActiveBooking(ctx, itemType, itemID)
	return b != nil, err
}

// FindActiveBooking implements checkout.BookingFinder: the caller's newest
// non-cancelled booking for the item, or nil.
func (c *Client) FindActiveBooking(ctx context.Context, itemType models.ItemType, itemID string) (*models.Booking, error) {
	if !c.Authenticated() {
		return nil, nil
	}
	views, err := c.MyBookings(ctx)
	if err != nil {
		return nil, err
	}
	for _, v := range views {
		if v.ItemType == itemType && v.ItemID == itemID && v.Status != models.StatusCancelled {
			b := v.Booking
			return &b, nil
		}
	}
	return nil, nil
}

// ProcessPayment implements checkout.PaymentGateway.
func (c *Client) ProcessPayment(ctx context.Context, amount decimal.Decimal) (*checkout.PaymentReceipt, error) {
	var receipt checkout.PaymentReceipt
	body := map[string]decimal.Decimal{"amount": amount}
	if err := c.doJSON(ctx, http.MethodPost, "/bookings/process-payment", body, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	return json.Unmarshal([]byte(val), out) == nil
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.cacheTTL).Err()
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		// a body that is not our error envelope still yields the status
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		apiErr.Status = resp.StatusCode
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s %s: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

// Package api implements the HTTP gateway to the AegisDNS backend: account
// lookup/creation and the device/subscription payload. Transport failures
// are mapped onto the shared sentinel errors; a circuit breaker keeps a
// flapping backend from being hammered by coalesced refresh bursts (the
// core itself never retries).
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/sony/gobreaker/v2"

	"github.com/aegisdns/syncd/internal/common"
	"github.com/aegisdns/syncd/internal/logging"
	"github.com/aegisdns/syncd/internal/models"
)

const (
	requestTimeout = 12 * time.Second

	breakerMaxFailures uint32 = 5
	breakerTimeout            = 30 * time.Second
	breakerInterval           = 60 * time.Second
)

// Client talks to the backend REST API.
type Client struct {
	baseURL   string
	authToken string
	appID     string
	httpc     *http.Client
	breaker   *gobreaker.CircuitBreaker[[]byte]
	log       logging.Logger
}

// New builds a Client. appID is the per-install identifier sent with every
// request and on account creation; authToken may be empty for anonymous
// endpoints.
func New(baseURL, authToken, appID string, log logging.Logger) *Client {
	c := &Client{
		baseURL:   baseURL,
		authToken: authToken,
		appID:     appID,
		httpc:     &http.Client{Timeout: requestTimeout},
		log:       log.With("component", "api"),
	}

	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "backend",
		MaxRequests: 1, // one probe in half-open state
		Interval:    breakerInterval,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerMaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn(context.Background(), "circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// Client-side errors (4xx) are the caller's problem, not a
			// sign of backend trouble.
			var se *statusError
			if errors.As(err, &se) {
				return se.code < http.StatusInternalServerError
			}
			return err == nil
		},
	})

	return c
}

// statusError carries a non-2xx HTTP status through the breaker.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.code, e.body)
}

// accountResponse is the backend wire format for an account. ActiveUntil is
// unix seconds; when an entitlement token is present its expiry claim wins.
type accountResponse struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	ActiveUntil int64  `json:"active_until"`
	Entitlement string `json:"entitlement,omitempty"`
}

func (r accountResponse) toModel() models.Account {
	a := models.Account{ID: r.ID, Type: r.Type}
	if r.ActiveUntil > 0 {
		a.ActiveUntil = time.Unix(r.ActiveUntil, 0).UTC()
	}
	if r.Entitlement != "" {
		if exp, err := entitlementExpiry(r.Entitlement); err == nil {
			a.ActiveUntil = exp
		}
	}
	return a
}

// entitlementExpiry reads the expiry claim off the signed entitlement token.
// The signature is the backend's concern; the client only needs the date.
func entitlementExpiry(token string) (time.Time, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, fmt.Errorf("invalid entitlement token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, errors.New("entitlement token has no expiry")
	}
	return claims.ExpiresAt.Time.UTC(), nil
}

// GetAccount fetches the authoritative account record by ID.
func (c *Client) GetAccount(ctx context.Context, id string) (models.Account, error) {
	var resp accountResponse
	if err := c.do(ctx, http.MethodGet, "/v1/account/"+id, nil, &resp); err != nil {
		return models.Account{}, err
	}
	return resp.toModel(), nil
}

// CreateAccount mints a brand-new account for this install.
func (c *Client) CreateAccount(ctx context.Context) (models.Account, error) {
	req := struct {
		AppID string `json:"app_id"`
	}{AppID: c.appID}

	var resp accountResponse
	if err := c.do(ctx, http.MethodPost, "/v1/account", req, &resp); err != nil {
		return models.Account{}, err
	}
	return resp.toModel(), nil
}

// GetDevice fetches the device/subscription payload for this install.
func (c *Client) GetDevice(ctx context.Context) (models.DevicePayload, error) {
	var resp models.DevicePayload
	if err := c.do(ctx, http.MethodGet, "/v1/device", nil, &resp); err != nil {
		return models.DevicePayload{}, err
	}
	return resp, nil
}

// SetRetention persists the activity-log retention choice. Callers are
// expected to re-fetch the device payload afterwards; the backend may
// normalize the value.
func (c *Client) SetRetention(ctx context.Context, policy models.RetentionPolicy) error {
	req := struct {
		Retention models.RetentionPolicy `json:"retention"`
	}{Retention: policy}

	return c.do(ctx, http.MethodPut, "/v1/device/retention", req, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	req.Header.Set("X-App-Id", c.appID)

	requestID := ulid.Make().String()
	req.Header.Set("X-Request-Id", requestID)

	respBody, err := c.breaker.Execute(func() ([]byte, error) {
		resp, err := c.httpc.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &statusError{code: resp.StatusCode, body: string(data)}
		}
		return data, nil
	})
	if err != nil {
		c.log.Debug(ctx, "request failed",
			"method", method, "path", path, "request_id", requestID, "error", err)
		return c.mapError(err)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) mapError(err error) error {
	var se *statusError
	if errors.As(err, &se) {
		switch {
		case se.code == http.StatusNotFound:
			return fmt.Errorf("%w: %s", common.ErrNotFound, se.body)
		case se.code >= http.StatusInternalServerError:
			return fmt.Errorf("%w: status %d", common.ErrUnavailable, se.code)
		default:
			return se
		}
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: circuit open", common.ErrUnavailable)
	}
	return fmt.Errorf("%w: %v", common.ErrUnavailable, err)
}

package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/redis/go-redis/v9"

	"driverassist/internal/geo"
)

// ErrPlaceNotFound is returned when the backend cannot resolve a place name.
var ErrPlaceNotFound = errors.New("routing: place not found")

// ErrInvalidRoute is returned for a directions response without usable
// legs/steps.
var ErrInvalidRoute = errors.New("routing: invalid route response")

const (
	devPlaceholderKey = "PLACEHOLDER_API_KEY"
	geocodeCacheTTL   = 10 * time.Minute
)

// Client talks to the companion backend's maps endpoints.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	tokenSecret string
	devMode     bool
	localKey    string
	rdb         *redis.Client
	timeout     time.Duration
}

// NewClient constructs a routing client. rdb may be nil; the geocode cache is
// then disabled.
func NewClient(httpClient *http.Client, baseURL, tokenSecret, localKey string, devMode bool, rdb *redis.Client, timeout time.Duration) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient:  httpClient,
		baseURL:     strings.TrimRight(baseURL, "/"),
		tokenSecret: tokenSecret,
		devMode:     devMode,
		localKey:    localKey,
		rdb:         rdb,
		timeout:     timeout,
	}
}

func geocodeCacheKey(name string) string {
	return fmt.Sprintf("geocode:%s", strings.ToLower(strings.TrimSpace(name)))
}

// ResolvePlace resolves a human place name to coordinates.
func (c *Client) ResolvePlace(ctx context.Context, name string) (geo.Point, error) {
	if strings.TrimSpace(name) == "" {
		return geo.Point{}, errors.New("routing: empty place name")
	}

	if c.rdb != nil {
		if cached, err := c.rdb.Get(ctx, geocodeCacheKey(name)).Result(); err == nil {
			var p geo.Point
			if err := json.Unmarshal([]byte(cached), &p); err == nil {
				return p, nil
			}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := url.Values{}
	params.Set("placeName", name)
	endpoint := fmt.Sprintf("%s/maps/place-coordinates?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return geo.Point{}, fmt.Errorf("place-coordinates: build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return geo.Point{}, fmt.Errorf("place-coordinates: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return geo.Point{}, fmt.Errorf("place-coordinates: http %s: %s", resp.Status, strings.TrimSpace(string(b)))
	}

	var payload struct {
		Status      string `json:"status"`
		Coordinates struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"coordinates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return geo.Point{}, fmt.Errorf("place-coordinates: decode: %w", err)
	}
	if !strings.EqualFold(payload.Status, "OK") {
		return geo.Point{}, fmt.Errorf("%w: %q (status=%s)", ErrPlaceNotFound, name, payload.Status)
	}

	point := geo.Point{Lat: payload.Coordinates.Latitude, Lng: payload.Coordinates.Longitude}
	if c.rdb != nil {
		if data, err := json.Marshal(point); err == nil {
			_ = c.rdb.Set(ctx, geocodeCacheKey(name), data, geocodeCacheTTL).Err()
		}
	}
	return point, nil
}

// GetRoute fetches and validates a driving route between two coordinates.
func (c *Client) GetRoute(ctx context.Context, origin, destination geo.Point) (Route, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := url.Values{}
	params.Set("origin", fmt.Sprintf("%f,%f", origin.Lat, origin.Lng))
	params.Set("destination", fmt.Sprintf("%f,%f", destination.Lat, destination.Lng))
	endpoint := fmt.Sprintf("%s/maps/directions?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Route{}, fmt.Errorf("directions: build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Route{}, fmt.Errorf("directions: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return Route{}, fmt.Errorf("directions: http %s: %s", resp.Status, strings.TrimSpace(string(b)))
	}

	var payload directionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Route{}, fmt.Errorf("directions: decode: %w", err)
	}
	return parseDirections(payload)
}

// APIKey resolves the maps API key: local configuration first, then an
// authenticated backend fetch. In dev mode a placeholder is returned instead
// of an error.
func (c *Client) APIKey(ctx context.Context) (string, error) {
	if c.localKey != "" {
		return c.localKey, nil
	}

	key, err := c.fetchRemoteKey(ctx)
	if err != nil {
		if c.devMode {
			return devPlaceholderKey, nil
		}
		return "", err
	}
	return key, nil
}

func (c *Client) fetchRemoteKey(ctx context.Context) (string, error) {
	token, err := c.bearerToken()
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/maps/google-maps-key", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("google-maps-key: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("google-maps-key: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("google-maps-key: http %s: %s", resp.Status, strings.TrimSpace(string(b)))
	}

	var payload struct {
		APIKey string `json:"api_key"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("google-maps-key: decode: %w", err)
	}
	if payload.APIKey == "" {
		return "", errors.New("google-maps-key: empty key in response")
	}
	return payload.APIKey, nil
}

func (c *Client) bearerToken() (string, error) {
	if c.tokenSecret == "" {
		return "", errors.New("google-maps-key: token secret not configured")
	}
	claims := jwt.StandardClaims{
		Subject:   "driver-session",
		IssuedAt:  time.Now().Unix(),
		ExpiresAt: time.Now().Add(5 * time.Minute).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(c.tokenSecret))
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/flogvit/wikiportraits-uploader-sub003/internal/models"

	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Custom Error Types
var (
	ErrRateLimited  = errors.New("API rate limit exceeded")
	ErrUnauthorized = errors.New("API request unauthorized (check access token)")
	ErrNotFound     = errors.New("API resource not found")
	ErrServerError  = errors.New("API server error")
	ErrCircuitOpen  = errors.New("API circuit breaker open")
)

// apiError is the MediaWiki action API error envelope.
type apiError struct {
	Error *struct {
		Code string `json:"code"`
		Info string `json:"info"`
	} `json:"error"`
}

// Client is a retrying JSON client for one MediaWiki action API endpoint.
// All requests pass through a shared rate limiter and a circuit breaker, so
// a misbehaving remote cannot be hammered by concurrent builder fan-outs.
type Client struct {
	Endpoint   string
	HttpClient *http.Client

	accessToken string
	userAgent   string
	limiter     *rate.Limiter
	breaker     *gobreaker.CircuitBreaker
}

// NewClient creates a client for the given endpoint. A nil httpClient gets a
// default with the configured timeout.
func NewClient(endpoint string, cfg models.Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		timeout := time.Duration(cfg.ApiClientTimeoutSec) * time.Second
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    endpoint,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnf("Circuit breaker for %s changed state: %s -> %s", name, from, to)
		},
	})

	return &Client{
		Endpoint:    endpoint,
		HttpClient:  httpClient,
		accessToken: cfg.AccessToken,
		userAgent:   cfg.UserAgent,
		limiter:     rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		breaker:     breaker,
	}
}

// Get performs a GET request with the given query parameters and unmarshals
// the JSON response into out.
func (c *Client) Get(ctx context.Context, params url.Values, out interface{}) error {
	params.Set("format", "json")
	reqURL := fmt.Sprintf("%s?%s", c.Endpoint, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	return c.do(req, out)
}

// Post performs a form-encoded POST (the action API write convention) and
// unmarshals the JSON response into out.
func (c *Client) Post(ctx context.Context, params url.Values, out interface{}) error {
	params.Set("format", "json")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint,
		strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, out)
}

// Upload performs a multipart POST carrying one file plus the given fields.
func (c *Client) Upload(ctx context.Context, params url.Values, fileField, fileName string, file io.Reader, out interface{}) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	params.Set("format", "json")
	for key := range params {
		if err := mw.WriteField(key, params.Get(key)); err != nil {
			return fmt.Errorf("error writing multipart field %s: %w", key, err)
		}
	}
	fw, err := mw.CreateFormFile(fileField, fileName)
	if err != nil {
		return fmt.Errorf("error creating multipart file field: %w", err)
	}
	if _, err := io.Copy(fw, file); err != nil {
		return fmt.Errorf("error copying file into multipart body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("error finalizing multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, &buf)
	if err != nil {
		return fmt.Errorf("error creating upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req, out)
}

// do sends the request through the limiter and breaker with retries, maps
// HTTP status codes to the sentinel errors, and unmarshals the body.
func (c *Client) do(req *http.Request, out interface{}) error {
	req.Header.Set("User-Agent", c.userAgent)
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	if err := c.limiter.Wait(req.Context()); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}

	body, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doWithRetries(req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		return err
	}

	raw := body.([]byte)

	// The action API reports failures with status 200 and an error envelope.
	var envelope apiError
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error != nil {
		return fmt.Errorf("API error %s: %s", envelope.Error.Code, envelope.Error.Info)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		log.WithError(err).Error("Error unmarshalling response JSON")
		log.Debugf("Response body causing unmarshal error: %s", string(raw))
		return fmt.Errorf("error unmarshalling response JSON: %w", err)
	}
	return nil
}

// doWithRetries performs the HTTP exchange with bounded retries on rate
// limits and server errors. Auth and not-found failures are not retried.
func (c *Client) doWithRetries(req *http.Request) ([]byte, error) {
	// Buffer the body once so retries can replay it.
	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("error buffering request body: %w", err)
		}
		req.Body.Close()
	}

	const maxRetries = 3
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if bodyBytes != nil {
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}

		resp, err := c.HttpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request failed (attempt %d/%d): %w", attempt+1, maxRetries, err)
			if attempt < maxRetries-1 {
				log.WithError(err).Warnf("Retrying (%d/%d)...", attempt+1, maxRetries)
				time.Sleep(time.Duration(attempt+1) * 2 * time.Second)
				continue
			}
			return nil, lastErr
		}

		raw, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			if readErr != nil {
				return nil, fmt.Errorf("error reading response body: %w", readErr)
			}
			return raw, nil
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = ErrRateLimited
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, ErrUnauthorized
		case resp.StatusCode == http.StatusNotFound:
			return nil, ErrNotFound
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("%w (status code %d)", ErrServerError, resp.StatusCode)
		default:
			return nil, fmt.Errorf("API request failed with status %d", resp.StatusCode)
		}

		if attempt < maxRetries-1 {
			var sleep time.Duration
			if resp.StatusCode == http.StatusTooManyRequests {
				sleep = time.Duration(attempt+1) * 5 * time.Second
				log.WithError(lastErr).Warnf("Rate limited. Retrying (%d/%d) after %s...", attempt+1, maxRetries, sleep)
			} else {
				sleep = time.Duration(attempt+1) * 3 * time.Second
				log.WithError(lastErr).Warnf("Server error. Retrying (%d/%d) after %s...", attempt+1, maxRetries, sleep)
			}
			time.Sleep(sleep)
		}
	}
	return nil, lastErr
}

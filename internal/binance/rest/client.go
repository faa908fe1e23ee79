package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	apiKeyHeader      = "X-MBX-APIKEY"
	defaultRecvWindow = 5 * time.Second
)

// APIError is the error payload Binance returns with non-2xx responses.
type APIError struct {
	Status int
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance http %d: code=%d msg=%s", e.Status, e.Code, e.Msg)
}

type Client struct {
	baseURL    string
	http       *http.Client
	log        *zap.Logger
	apiKey     string
	signer     *Signer
	recvWindow time.Duration
	now        func() time.Time
}

func New(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: timeout,
		},
		log:        log,
		recvWindow: defaultRecvWindow,
		now:        time.Now,
	}
}

// SetCredentials enables API-key and signed endpoints.
func (c *Client) SetCredentials(apiKey, secretKey string) {
	c.apiKey = strings.TrimSpace(apiKey)
	if secret := strings.TrimSpace(secretKey); secret != "" {
		c.signer = NewSigner(secret)
	}
}

// SetRecvWindow overrides the validity window sent with signed requests.
func (c *Client) SetRecvWindow(window time.Duration) {
	if window > 0 {
		c.recvWindow = window
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get calls a public endpoint.
func (c *Client) Get(ctx context.Context, path string, params url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, params, false, out)
}

// DoAPIKey calls an endpoint that needs the API key header but no signature.
func (c *Client) DoAPIKey(ctx context.Context, method, path string, params url.Values, out any) error {
	if c.apiKey == "" {
		return errors.New("api key is required")
	}
	return c.do(ctx, method, path, params, false, out)
}

// DoSigned calls a SIGNED endpoint, adding timestamp, recvWindow and signature.
func (c *Client) DoSigned(ctx context.Context, method, path string, params url.Values, out any) error {
	if c.apiKey == "" || c.signer == nil {
		return errors.New("api key and secret are required for signed requests")
	}
	signed := url.Values{}
	for key, vals := range params {
		signed[key] = append([]string(nil), vals...)
	}
	signed.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
	if c.recvWindow > 0 {
		signed.Set("recvWindow", strconv.FormatInt(c.recvWindow.Milliseconds(), 10))
	}
	return c.do(ctx, method, path, signed, true, out)
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, sign bool, out any) error {
	query := params.Encode()
	if sign {
		signature := c.signer.Sign(query)
		if query != "" {
			query += "&"
		}
		query += "signature=" + signature
	}
	reqURL := c.baseURL + path
	var body io.Reader
	if method == http.MethodGet || method == http.MethodDelete {
		if query != "" {
			reqURL += "?" + query
		}
	} else {
		body = strings.NewReader(query)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return err
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if c.apiKey != "" {
		httpReq.Header.Set(apiKeyHeader, c.apiKey)
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Msg == "" {
			apiErr.Msg = strings.TrimSpace(string(data))
		}
		if c.log != nil {
			c.log.Debug("binance request failed", zap.String("method", method), zap.String("path", path), zap.Error(apiErr))
		}
		return apiErr
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Package kiteconnect is a minimal Zerodha Kite Connect client: session
// handling (including the browserless TOTP login flow), historical
// candles, LTP quotes, the instruments dump, and order placement.
//
// Usage example:
//
//	kc := kiteconnect.New(kiteconnect.Config{APIKey: "your_api_key"})
//	token, err := kc.AutoLogin(ctx, kiteconnect.Credentials{
//	    UserID: "AB1234", Password: "...", TOTPSecret: "...", APISecret: "...",
//	})
//	if err != nil { log.Fatal(err) }
//	candles, err := kc.HistoricalCandles(ctx, 265, "5minute", 3)
package kiteconnect

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

const (
	defaultAPIRoot     = "https://api.kite.trade"
	defaultLoginRoot   = "https://kite.zerodha.com"
	defaultConnectRoot = "https://kite.trade"
	kiteVersion        = "3"
)

var routes = map[string]string{
	"session.token":   "/session/token",
	"user.profile":    "/user/profile",
	"market.ltp":      "/quote/ltp",
	"market.historic": "/instruments/historical/%d/%s",
	"instruments":     "/instruments/%s",
	"orders.regular":  "/orders/regular",
}

// Config configures the client.
type Config struct {
	APIKey      string
	AccessToken string

	APIRoot     string        // default: https://api.kite.trade
	LoginRoot   string        // default: https://kite.zerodha.com
	ConnectRoot string        // default: https://kite.trade
	Timeout     time.Duration // default: 7s
	Debug       bool
}

// Client is a Kite Connect REST client.
type Client struct {
	apiKey      string
	accessToken string

	apiRoot     string
	loginRoot   string
	connectRoot string
	debug       bool

	httpClient *http.Client

	// SessionExpiryHook is invoked when the API reports TokenException,
	// so callers can trigger a fresh login.
	SessionExpiryHook func()
}

// New initializes the client.
func New(cfg Config) *Client {
	if cfg.APIRoot == "" {
		cfg.APIRoot = defaultAPIRoot
	}
	if cfg.LoginRoot == "" {
		cfg.LoginRoot = defaultLoginRoot
	}
	if cfg.ConnectRoot == "" {
		cfg.ConnectRoot = defaultConnectRoot
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 7 * time.Second
	}

	// The login flow needs cookies across requests.
	jar, _ := cookiejar.New(nil)

	return &Client{
		apiKey:      cfg.APIKey,
		accessToken: cfg.AccessToken,
		apiRoot:     strings.TrimRight(cfg.APIRoot, "/"),
		loginRoot:   strings.TrimRight(cfg.LoginRoot, "/"),
		connectRoot: strings.TrimRight(cfg.ConnectRoot, "/"),
		debug:       cfg.Debug,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Jar:     jar,
		},
	}
}

// SetAccessToken installs a session token for authenticated calls.
func (c *Client) SetAccessToken(token string) { c.accessToken = token }

// AccessToken returns the current session token.
func (c *Client) AccessToken() string { return c.accessToken }

// LoginURL returns the interactive login URL for manual token flows.
func (c *Client) LoginURL() string {
	return fmt.Sprintf("%s/connect/login?api_key=%s&v=%s", c.connectRoot, c.apiKey, kiteVersion)
}

func (c *Client) requestHeaders() http.Header {
	h := http.Header{}
	h.Set("X-Kite-Version", kiteVersion)
	if c.accessToken != "" {
		h.Set("Authorization", "token "+c.apiKey+":"+c.accessToken)
	}
	return h
}

// apiEnvelope is the standard Kite response wrapper.
type apiEnvelope struct {
	Status    string          `json:"status"`
	Message   string          `json:"message"`
	ErrorType string          `json:"error_type"`
	Data      json.RawMessage `json:"data"`
}

// doJSON performs an authenticated API call and unwraps the envelope.
// Form-encoded params for POST/PUT, query params for GET/DELETE.
func (c *Client) doJSON(ctx context.Context, method, path string, params url.Values) (json.RawMessage, error) {
	reqURL := c.apiRoot + path

	var body io.Reader
	if method == http.MethodGet || method == http.MethodDelete {
		if len(params) > 0 {
			reqURL += "?" + params.Encode()
		}
	} else if params != nil {
		body = strings.NewReader(params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, err
	}
	req.Header = c.requestHeaders()
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	if c.debug {
		log.Printf("[kiteconnect] %s %s params=%v", method, reqURL, params)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if c.debug {
		log.Printf("[kiteconnect] response code=%d body=%s", resp.StatusCode, truncate(raw, 512))
	}

	var env apiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("kiteconnect: couldn't parse response (%d): %w", resp.StatusCode, err)
	}
	if env.Status != "success" {
		if env.ErrorType == "TokenException" && c.SessionExpiryHook != nil {
			c.SessionExpiryHook()
		}
		return nil, fmt.Errorf("kiteconnect: %s: %s", env.ErrorType, env.Message)
	}
	return env.Data, nil
}

// doRaw performs an authenticated API call returning the raw body
// (used for the CSV instruments dump).
func (c *Client) doRaw(ctx context.Context, method, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.apiRoot+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header = c.requestHeaders()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("kiteconnect: %s returned %d: %s", path, resp.StatusCode, raw)
	}
	return io.ReadAll(resp.Body)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

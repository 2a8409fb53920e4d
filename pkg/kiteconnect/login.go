package kiteconnect

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"
)

// Credentials holds the login inputs for the browserless TOTP flow.
type Credentials struct {
	UserID     string
	Password   string
	TOTPSecret string // base32 secret behind the authenticator QR
	APISecret  string
}

type loginResponse struct {
	Status string `json:"status"`
	Data   struct {
		RequestID string `json:"request_id"`
	} `json:"data"`
	Message string `json:"message"`
}

// UserSession is the result of a successful token exchange.
type UserSession struct {
	UserID      string `json:"user_id"`
	UserName    string `json:"user_name"`
	AccessToken string `json:"access_token"`
	PublicToken string `json:"public_token"`
	LoginTime   string `json:"login_time"`
}

// AutoLogin performs the full headless login: password auth, TOTP
// second factor, the connect redirect carrying the request token, and
// the token exchange. On success the access token is installed on the
// client and returned.
func (c *Client) AutoLogin(ctx context.Context, creds Credentials) (string, error) {
	requestID, err := c.loginPassword(ctx, creds.UserID, creds.Password)
	if err != nil {
		return "", fmt.Errorf("kiteconnect: password step: %w", err)
	}

	if err := c.loginTwoFA(ctx, creds.UserID, requestID, creds.TOTPSecret); err != nil {
		return "", fmt.Errorf("kiteconnect: twofa step: %w", err)
	}

	requestToken, err := c.fetchRequestToken(ctx)
	if err != nil {
		return "", fmt.Errorf("kiteconnect: request token: %w", err)
	}

	sess, err := c.GenerateSession(ctx, requestToken, creds.APISecret)
	if err != nil {
		return "", err
	}
	return sess.AccessToken, nil
}

func (c *Client) loginPassword(ctx context.Context, userID, password string) (string, error) {
	form := url.Values{}
	form.Set("user_id", userID)
	form.Set("password", password)

	body, err := c.postLoginForm(ctx, "/api/login", form)
	if err != nil {
		return "", err
	}

	var lr loginResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		return "", err
	}
	if lr.Status != "success" {
		return "", fmt.Errorf("%s", lr.Message)
	}
	return lr.Data.RequestID, nil
}

func (c *Client) loginTwoFA(ctx context.Context, userID, requestID, totpSecret string) error {
	code, err := totp.GenerateCode(totpSecret, time.Now())
	if err != nil {
		return fmt.Errorf("generate totp: %w", err)
	}

	form := url.Values{}
	form.Set("user_id", userID)
	form.Set("request_id", requestID)
	form.Set("twofa_value", code)
	form.Set("twofa_type", "totp")

	body, err := c.postLoginForm(ctx, "/api/twofa", form)
	if err != nil {
		return err
	}

	var lr loginResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		return err
	}
	if lr.Status != "success" {
		return fmt.Errorf("%s", lr.Message)
	}
	return nil
}

func (c *Client) postLoginForm(ctx context.Context, path string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.loginRoot+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Kite-Version", kiteVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// fetchRequestToken hits the connect login URL with the session cookies
// from the two login steps. Kite answers with a redirect to the app's
// registered URL carrying request_token as a query parameter; we stop
// the redirect chain there and pull the token out of the Location.
func (c *Client) fetchRequestToken(ctx context.Context) (string, error) {
	noFollow := &http.Client{
		Timeout: c.httpClient.Timeout,
		Jar:     c.httpClient.Jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if tok := req.URL.Query().Get("request_token"); tok != "" {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.LoginURL(), nil)
	if err != nil {
		return "", err
	}

	resp, err := noFollow.Do(req)
	if err != nil {
		// Some redirect targets are unreachable apps; the token is still
		// in the error's URL.
		if ue, ok := err.(*url.Error); ok {
			if tok := tokenFromURL(ue.URL); tok != "" {
				return tok, nil
			}
		}
		return "", err
	}
	defer resp.Body.Close()

	if loc := resp.Header.Get("Location"); loc != "" {
		if tok := tokenFromURL(loc); tok != "" {
			return tok, nil
		}
	}
	if tok := resp.Request.URL.Query().Get("request_token"); tok != "" {
		return tok, nil
	}
	return "", fmt.Errorf("request_token not present in redirect")
}

func tokenFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Query().Get("request_token")
}

// GenerateSession exchanges a request token for an access token using
// the SHA-256 checksum of api_key + request_token + api_secret.
func (c *Client) GenerateSession(ctx context.Context, requestToken, apiSecret string) (UserSession, error) {
	sum := sha256.Sum256([]byte(c.apiKey + requestToken + apiSecret))

	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("request_token", requestToken)
	params.Set("checksum", hex.EncodeToString(sum[:]))

	data, err := c.doJSON(ctx, http.MethodPost, routes["session.token"], params)
	if err != nil {
		return UserSession{}, err
	}

	var sess UserSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return UserSession{}, err
	}
	c.accessToken = sess.AccessToken
	return sess, nil
}

// Profile fetches the user profile, useful as a session liveness probe.
func (c *Client) Profile(ctx context.Context) (string, error) {
	data, err := c.doJSON(ctx, http.MethodGet, routes["user.profile"], nil)
	if err != nil {
		return "", err
	}
	var p struct {
		UserName string `json:"user_name"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return "", err
	}
	return p.UserName, nil
}

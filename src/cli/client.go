package cli

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

	"github.com/gorilla/websocket"

	app "memcap/src/app"
	auth "memcap/src/auth"
)

type (
	// Client talks to the memcap server on behalf of one stored session.
	Client struct {
		baseURL    string
		token      string
		httpClient *http.Client
	}

	// APIError is the server's error envelope.
	APIError struct {
		Status   int    `json:"-"`
		Kind     string `json:"kind"`
		Message  string `json:"message"`
		Redirect string `json:"redirect,omitempty"`
	}

	UploadRequest struct {
		Filename string `json:"filename"`
		MimeType string `json:"mime_type"`
		Data     string `json:"data"`
		Animate  bool   `json:"animate"`
	}

	envelope struct {
		Status  string          `json:"status"`
		Payload json.RawMessage `json:"payload"`
		APIError
	}
)

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return e.Message
}

// Unauthenticated reports whether the server asked for a new login.
func (e *APIError) Unauthenticated() bool {
	return e.Status == http.StatusUnauthorized
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

// WithToken returns a copy of c that authenticates as token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

func (c *Client) SignUp(ctx context.Context, req auth.SignUpRequest) (*auth.SignUpResult, error) {
	var res auth.SignUpResult
	if err := c.do(ctx, http.MethodPost, "/auth/signup", req, &res, nil); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*app.Session, error) {
	var s app.Session
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &s, nil); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (*app.Session, error) {
	var s app.Session
	body := map[string]string{"refresh_token": refreshToken}
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", body, &s, nil); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, nil, nil)
}

func (c *Client) Account(ctx context.Context) (*app.User, error) {
	var u app.User
	if err := c.do(ctx, http.MethodGet, "/account", nil, &u, nil); err != nil {
		return nil, err
	}
	return &u, nil
}

// Upload posts a base64 image. requestID tags the progress events of this upload.
func (c *Client) Upload(ctx context.Context, req UploadRequest, requestID string) (*app.UploadResult, error) {
	var res app.UploadResult
	header := http.Header{"X-Request-ID": []string{requestID}}
	if err := c.do(ctx, http.MethodPost, "/photos/base64", req, &res, header); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) Photos(ctx context.Context) ([]app.GalleryItem, error) {
	var items []app.GalleryItem
	if err := c.do(ctx, http.MethodGet, "/photos", nil, &items, nil); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Client) Photo(ctx context.Context, id string) (*app.PhotoDetail, error) {
	var d app.PhotoDetail
	if err := c.do(ctx, http.MethodGet, "/photos/"+url.PathEscape(id), nil, &d, nil); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Client) DeletePhoto(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/photos/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) Animate(ctx context.Context, id string) (*app.Envelope, error) {
	var env app.Envelope
	if err := c.do(ctx, http.MethodPost, "/photos/"+url.PathEscape(id)+"/animate", nil, &env, nil); err != nil {
		return nil, err
	}
	return &env, nil
}

// Events opens the caller's event stream. The caller closes the connection.
func (c *Client) Events(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.baseURL + "/events")
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	header := http.Header{"Authorization": []string{"Bearer " + c.token}}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("open event stream: %w", err)
	}
	return conn, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, header http.Header) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("can not reach %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && err != io.EOF {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	if resp.StatusCode >= http.StatusBadRequest || env.Status == "error" {
		apiErr := env.APIError
		apiErr.Status = resp.StatusCode
		return &apiErr
	}
	if out == nil || len(env.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(env.Payload, out)
}

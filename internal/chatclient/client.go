// Package chatclient is the client side of the chat API: a typed HTTP client,
// the optimistic conversation state machine and the session list.
package chatclient

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

	"github.com/suPer8Hu/chatapp/internal/auth"
	"github.com/suPer8Hu/chatapp/internal/chat"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

type Client struct {
	baseURL      string
	inferenceURL string
	token        string
	http         *http.Client
}

type ClientOption func(*Client)

func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// WithInferenceURL points streaming requests somewhere other than
// baseURL + "/api/chat".
func WithInferenceURL(u string) ClientOption {
	return func(c *Client) { c.inferenceURL = u }
}

func NewClient(baseURL, token string, opts ...ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	c := &Client{
		baseURL:      baseURL,
		inferenceURL: baseURL + "/api/chat",
		token:        token,
		http:         &http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body any) (*http.Request, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, rdr)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// do sends a JSON request with a bounded timeout and decodes the envelope's data into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := c.newRequest(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 16<<20)).Decode(&env)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !env.Success {
		return &APIError{Status: resp.StatusCode, Message: env.Error}
	}
	if decodeErr != nil {
		return fmt.Errorf("decode response: %w", decodeErr)
	}
	if out != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

func (c *Client) Me(ctx context.Context) (auth.Identity, error) {
	var id auth.Identity
	err := c.do(ctx, http.MethodGet, "/api/me", nil, &id)
	return id, err
}

// CreateSession starts a chat. With neither a title nor an opening message
// it asks for DefaultTitle, since the server rejects two empty fields.
func (c *Client) CreateSession(ctx context.Context, title, initialMessage string) (chat.Session, error) {
	if title == "" && initialMessage == "" {
		title = chat.DefaultTitle
	}
	var s chat.Session
	err := c.do(ctx, http.MethodPost, "/api/chat/sessions", map[string]string{
		"title":          title,
		"initialMessage": initialMessage,
	}, &s)
	return s, err
}

func (c *Client) ListSessions(ctx context.Context) ([]chat.Session, error) {
	sessions := make([]chat.Session, 0)
	err := c.do(ctx, http.MethodGet, "/api/chat/sessions", nil, &sessions)
	return sessions, err
}

func (c *Client) ListMessages(ctx context.Context, sessionID string) ([]chat.Message, error) {
	msgs := make([]chat.Message, 0)
	err := c.do(ctx, http.MethodGet, "/api/chat/sessions/"+url.PathEscape(sessionID)+"/messages", nil, &msgs)
	return msgs, err
}

type outboundMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type inferenceRequest struct {
	Messages  []outboundMessage `json:"messages"`
	SessionID string            `json:"sessionId"`
	UserID    string            `json:"userId"`
}

// OpenStream posts one user message to the inference endpoint and returns the
// streaming body. The caller must close it.
func (c *Client) OpenStream(ctx context.Context, sessionID, userID, content string) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, http.MethodPost, c.inferenceURL, inferenceRequest{
		Messages:  []outboundMessage{{Role: chat.RoleUser, Content: content}},
		SessionID: sessionID,
		UserID:    userID,
	})
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		var env envelope
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4*1024)).Decode(&env)
		return nil, &APIError{Status: resp.StatusCode, Message: env.Error}
	}
	return resp.Body, nil
}

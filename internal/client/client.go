// ABOUTME: HTTP client for the cool-squad REST API
// ABOUTME: Used by squad-cli; JSON errors from the server come back as *APIError

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/2389/cool-squad/internal/conversation"
	"github.com/2389/cool-squad/internal/monologue"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Client talks to a cool-squad server.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// New creates a client for the server at baseURL.
func New(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{},
		logger:  logger.With("component", "client"),
	}
}

type messageRequest struct {
	Content string `json:"content"`
	Author  string `json:"author"`
}

type postResponse struct {
	Message   conversation.Message `json:"message"`
	Triggered []string             `json:"triggered"`
}

type threadRequest struct {
	Title        string         `json:"title"`
	FirstMessage messageRequest `json:"first_message"`
	Tags         []string       `json:"tags,omitempty"`
}

type threadResponse struct {
	Thread    conversation.Thread `json:"thread"`
	Triggered []string            `json:"triggered"`
}

// Monologue is a bot's monologue as served by the API.
type Monologue struct {
	Bot string `json:"bot"`
	monologue.Settings
	Thoughts           []monologue.Thought           `json:"thoughts"`
	ToolConsiderations []monologue.ToolConsideration `json:"tool_considerations"`
}

func escape(parts ...string) string {
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = url.PathEscape(p)
	}
	return strings.Join(out, "/")
}

// do sends a JSON request and decodes a JSON response into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errorFromResponse(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// errorFromResponse extracts the error message from a non-2xx response.
func errorFromResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			return &APIError{Status: resp.StatusCode, Message: errResp.Error}
		}
	}
	return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}

// Health checks /health/ready and returns the readiness line.
func (c *Client) Health(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health/ready", nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	return strings.TrimSpace(string(body)), nil
}

// ListChannels returns the channel names.
func (c *Client) ListChannels(ctx context.Context) ([]string, error) {
	var resp struct {
		Channels []string `json:"channels"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/channels", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Channels, nil
}

// GetChannel returns a channel with its messages and active bots.
func (c *Client) GetChannel(ctx context.Context, name string) (conversation.Channel, error) {
	var ch conversation.Channel
	err := c.do(ctx, http.MethodGet, "/api/channels/"+escape(name), nil, &ch)
	return ch, err
}

// PostMessage posts to a channel and returns the stored message with the
// bots it triggered.
func (c *Client) PostMessage(ctx context.Context, channel, author, content string) (conversation.Message, []string, error) {
	var resp postResponse
	err := c.do(ctx, http.MethodPost, "/api/channels/"+escape(channel)+"/messages",
		messageRequest{Content: content, Author: author}, &resp)
	return resp.Message, resp.Triggered, err
}

// ListBoards returns every board.
func (c *Client) ListBoards(ctx context.Context) ([]conversation.Board, error) {
	var resp struct {
		Boards []conversation.Board `json:"boards"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/boards", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Boards, nil
}

// BoardThreads returns a board's threads, pinned first then newest first.
func (c *Client) BoardThreads(ctx context.Context, board string) ([]conversation.ThreadSummary, error) {
	var resp struct {
		Threads []conversation.ThreadSummary `json:"threads"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/boards/"+escape(board), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Threads, nil
}

// GetThread returns a thread with its messages.
func (c *Client) GetThread(ctx context.Context, board, thread string) (conversation.Thread, error) {
	var th conversation.Thread
	err := c.do(ctx, http.MethodGet, "/api/boards/"+escape(board, "threads", thread), nil, &th)
	return th, err
}

// CreateThread starts a thread on board.
func (c *Client) CreateThread(ctx context.Context, board, author, title, content string, tags []string) (conversation.Thread, []string, error) {
	var resp threadResponse
	err := c.do(ctx, http.MethodPost, "/api/boards/"+escape(board)+"/threads", threadRequest{
		Title:        title,
		FirstMessage: messageRequest{Content: content, Author: author},
		Tags:         tags,
	}, &resp)
	return resp.Thread, resp.Triggered, err
}

// PostThreadMessage replies in a thread.
func (c *Client) PostThreadMessage(ctx context.Context, board, thread, author, content string) (conversation.Message, []string, error) {
	var resp postResponse
	err := c.do(ctx, http.MethodPost, "/api/boards/"+escape(board, "threads", thread)+"/messages",
		messageRequest{Content: content, Author: author}, &resp)
	return resp.Message, resp.Triggered, err
}

// ListBots returns the roster names.
func (c *Client) ListBots(ctx context.Context) ([]string, error) {
	var resp struct {
		Bots []string `json:"bots"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/bots", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Bots, nil
}

// Monologue returns a bot's most recent thoughts. A limit of 0 returns all.
func (c *Client) Monologue(ctx context.Context, bot string, limit int) (Monologue, error) {
	path := "/api/bots/" + escape(bot) + "/monologue"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var m Monologue
	err := c.do(ctx, http.MethodGet, path, nil, &m)
	return m, err
}

// Package placeholder talks to the external todo source (a
// JSONPlaceholder-compatible REST API). The sync pipeline treats it as a
// black box returning a list of records plus a user directory.
package placeholder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const DefaultBaseURL = "https://jsonplaceholder.typicode.com"

// ExternalTodo is one record as the source reports it. Immutable once
// fetched; it is the source of truth for a single sync pass.
type ExternalTodo struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"userId"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

type externalUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type Client struct {
	httpClient *http.Client
	baseURL    string
}

func NewClient(httpClient *http.Client, baseURL string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

func (c *Client) FetchTodos(ctx context.Context) ([]ExternalTodo, error) {
	body, err := c.doGet(ctx, "/todos")
	if err != nil {
		return nil, err
	}
	var todos []ExternalTodo
	if err := json.Unmarshal(body, &todos); err != nil {
		return nil, fmt.Errorf("decode todos: %w", err)
	}
	return todos, nil
}

// FetchUsers returns the owner directory: external user id to username.
func (c *Client) FetchUsers(ctx context.Context) (map[int64]string, error) {
	body, err := c.doGet(ctx, "/users")
	if err != nil {
		return nil, err
	}
	var users []externalUser
	if err := json.Unmarshal(body, &users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	directory := make(map[int64]string, len(users))
	for _, u := range users {
		if strings.TrimSpace(u.Username) == "" {
			continue
		}
		directory[u.ID] = u.Username
	}
	return directory, nil
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source returned status %d for %s", resp.StatusCode, path)
	}
	return io.ReadAll(resp.Body)
}

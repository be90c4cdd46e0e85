// Package directory looks up user contact details from the internal user
// service so events carrying only a user ID can still be delivered by email.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// User is the contact projection returned by the user service.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Client calls the internal user service over the service mesh.
type Client struct {
	baseURL string
	authKey string
	client  *http.Client
}

// NewClient builds a directory client. baseURL may be empty, in which case
// every lookup fails and callers fall back to addressing data already present
// on the event.
func NewClient(baseURL, authKey string) *Client {
	return &Client{
		baseURL: baseURL,
		authKey: authKey,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// User fetches contact details for the given user ID.
func (c *Client) User(ctx context.Context, id string) (*User, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("directory service not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/internal/users/%s", c.baseURL, id), nil)
	if err != nil {
		return nil, fmt.Errorf("building directory request: %w", err)
	}
	req.Header.Set("X-Internal-Auth", c.authKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching user %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("user %s not found", id)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directory service returned status %d", resp.StatusCode)
	}

	var u User
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil, fmt.Errorf("decoding user %s: %w", id, err)
	}
	return &u, nil
}

package mattermost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Mattermost REST v4 client covering what the
// bridge needs: channel discovery, post polling, and post lifecycle.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	IsBot    bool   `json:"is_bot"`
}

type Channel struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Type        string `json:"type"`
}

type Post struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
	Message   string `json:"message"`
	CreateAt  int64  `json:"create_at"`
	RootID    string `json:"root_id,omitempty"`
}

type postList struct {
	Order []string        `json:"order"`
	Posts map[string]Post `json:"posts"`
}

func NewClient(baseURL string, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) Me(ctx context.Context) (User, error) {
	var user User
	err := c.do(ctx, http.MethodGet, "/api/v4/users/me", nil, &user)
	return user, err
}

func (c *Client) GetUser(ctx context.Context, id string) (User, error) {
	var user User
	err := c.do(ctx, http.MethodGet, "/api/v4/users/"+url.PathEscape(id), nil, &user)
	return user, err
}

// ChannelsForUser lists the channels the bot is a member of in a team.
func (c *Client) ChannelsForUser(ctx context.Context, userID string, teamID string) ([]Channel, error) {
	path := fmt.Sprintf("/api/v4/users/%s/teams/%s/channels", url.PathEscape(userID), url.PathEscape(teamID))
	var channels []Channel
	err := c.do(ctx, http.MethodGet, path, nil, &channels)
	return channels, err
}

// PostsSince returns posts in a channel newer than the given time,
// oldest first.
func (c *Client) PostsSince(ctx context.Context, channelID string, since time.Time) ([]Post, error) {
	path := fmt.Sprintf("/api/v4/channels/%s/posts?since=%s",
		url.PathEscape(channelID), strconv.FormatInt(since.UnixMilli(), 10))

	var list postList
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}

	// The order field is newest first; the poller wants oldest first.
	posts := make([]Post, 0, len(list.Order))
	for i := len(list.Order) - 1; i >= 0; i-- {
		if post, ok := list.Posts[list.Order[i]]; ok {
			posts = append(posts, post)
		}
	}

	return posts, nil
}

func (c *Client) CreatePost(ctx context.Context, channelID string, message string, rootID string) (Post, error) {
	body := map[string]string{
		"channel_id": channelID,
		"message":    message,
	}
	if rootID != "" {
		body["root_id"] = rootID
	}

	var post Post
	err := c.do(ctx, http.MethodPost, "/api/v4/posts", body, &post)
	return post, err
}

func (c *Client) UpdatePost(ctx context.Context, postID string, message string) (Post, error) {
	body := map[string]string{
		"id":      postID,
		"message": message,
	}

	var post Post
	err := c.do(ctx, http.MethodPut, "/api/v4/posts/"+url.PathEscape(postID), body, &post)
	return post, err
}

func (c *Client) DeletePost(ctx context.Context, postID string) error {
	return c.do(ctx, http.MethodDelete, "/api/v4/posts/"+url.PathEscape(postID), nil, nil)
}

func (c *Client) do(ctx context.Context, method string, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// defaultTimeout bounds each platform API call.
const defaultTimeout = 30 * time.Second

// Client is the HTTP implementation of ConversationGateway against the
// platform REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a gateway client for the given API base URL.
func NewClient(baseURL, token string) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("gateway: base URL is required")
	}
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}, nil
}

// GetConversation fetches a conversation by ID.
func (c *Client) GetConversation(ctx context.Context, conversationID string) (*Conversation, error) {
	var conv Conversation
	path := "/conversations/" + url.PathEscape(conversationID)
	if err := c.do(ctx, http.MethodGet, path, nil, &conv); err != nil {
		return nil, fmt.Errorf("gateway: get conversation %s: %w", conversationID, err)
	}
	return &conv, nil
}

// DispatchMessage posts a message activity into a conversation.
func (c *Client) DispatchMessage(ctx context.Context, conv *Conversation, act Activity) error {
	path := "/conversations/" + url.PathEscape(conv.ID) + "/activities"
	if err := c.do(ctx, http.MethodPost, path, act, nil); err != nil {
		return fmt.Errorf("gateway: dispatch message to %s: %w", conv.ID, err)
	}
	return nil
}

// AddMember adds a participant to a conversation.
func (c *Client) AddMember(ctx context.Context, conversationID string, m Member) error {
	path := "/conversations/" + url.PathEscape(conversationID) + "/members"
	if err := c.do(ctx, http.MethodPost, path, m, nil); err != nil {
		return fmt.Errorf("gateway: add member to %s: %w", conversationID, err)
	}
	return nil
}

// AddTags attaches tags to a conversation.
func (c *Client) AddTags(ctx context.Context, conversationID string, tags []Tag) error {
	path := "/conversations/" + url.PathEscape(conversationID) + "/tags"
	body := map[string]interface{}{"tags": tags}
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("gateway: add tags to %s: %w", conversationID, err)
	}
	return nil
}

// DispatchEndConversation closes a conversation on behalf of a member.
func (c *Client) DispatchEndConversation(ctx context.Context, conversationID string, from Member, opts EndOpts) error {
	path := "/conversations/" + url.PathEscape(conversationID) + "/end"
	body := map[string]interface{}{"from": from, "close_type": opts.CloseType}
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("gateway: end conversation %s: %w", conversationID, err)
	}
	return nil
}

// CreateCategorization records a categorization for a conversation.
func (c *Client) CreateCategorization(ctx context.Context, workspaceID, conversationID, actorID string, opts CategorizationOpts) error {
	path := "/workspaces/" + url.PathEscape(workspaceID) +
		"/conversations/" + url.PathEscape(conversationID) + "/categorizations"
	body := map[string]interface{}{
		"actor_id":     actorID,
		"objective_id": opts.ObjectiveID,
		"outcome_id":   opts.OutcomeID,
		"team_id":      opts.TeamID,
		"description":  opts.Description,
		"tags":         opts.Tags,
	}
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("gateway: categorize %s: %w", conversationID, err)
	}
	return nil
}

// MarkAutomationEngaged toggles the conversation's automation marker.
func (c *Client) MarkAutomationEngaged(ctx context.Context, conversationID string) error {
	path := "/conversations/" + url.PathEscape(conversationID) + "/automation-engaged"
	if err := c.do(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("gateway: mark automation engaged on %s: %w", conversationID, err)
	}
	return nil
}

// do performs a JSON request against the platform API, decoding the
// response into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
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
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(snippet))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

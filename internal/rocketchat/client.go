// Package rocketchat is a minimal REST client for the parts of the
// Rocket.Chat API the exporter needs: authentication, room listing, and
// per-room message history.
package rocketchat

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

	"github.com/bvolkov/historian/internal/state"
)

// TimestampLayout is the wire format for oldest/latest query parameters.
// The server works in millisecond precision, so finer precision is truncated.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Timestamp formats t for use as an oldest/latest parameter.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Room describes one conversation as reported by the room-list endpoints.
type Room struct {
	ID            string
	Name          string // empty for direct messages
	CreatedAt     time.Time
	LastMessageAt *time.Time // nil when the room has no messages
}

// HistoryPage is the result of one history call. Raw holds the response body
// verbatim; Messages and the flags are parsed from the same bytes.
type HistoryPage struct {
	Success  bool
	Messages []json.RawMessage
	Error    string
	Raw      string
}

// Client communicates with a Rocket.Chat server over its v1 REST API.
type Client struct {
	baseURL    string
	userID     string
	authToken  string
	httpClient *http.Client
}

// New creates a Client for the given server base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type loginRequest struct {
	User     string `json:"user"`
	Password string `json:"password"`
}

type loginResponse struct {
	Status string `json:"status"`
	Data   struct {
		UserID    string `json:"userId"`
		AuthToken string `json:"authToken"`
	} `json:"data"`
}

// Login authenticates with user credentials and stores the resulting token
// for subsequent calls.
func (c *Client) Login(ctx context.Context, user, password string) error {
	body, err := json.Marshal(loginRequest{User: user, Password: password})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/login", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login: unexpected status %d", resp.StatusCode)
	}

	var result loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decoding login response: %w", err)
	}
	if result.Status != "success" || result.Data.AuthToken == "" {
		return fmt.Errorf("login failed with status %q", result.Status)
	}

	c.userID = result.Data.UserID
	c.authToken = result.Data.AuthToken
	return nil
}

// wireRoom mirrors the room objects returned by the list endpoints.
type wireRoom struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
	TS   string `json:"ts"`
	LM   string `json:"lm"`
}

func (w wireRoom) toRoom() (Room, error) {
	created, err := time.Parse(time.RFC3339, w.TS)
	if err != nil {
		return Room{}, fmt.Errorf("parsing ts for room %s: %w", w.ID, err)
	}
	room := Room{
		ID:        w.ID,
		Name:      w.Name,
		CreatedAt: created.UTC(),
	}
	// Rooms with no messages carry no lm field.
	if w.LM != "" {
		lm, err := time.Parse(time.RFC3339, w.LM)
		if err != nil {
			return Room{}, fmt.Errorf("parsing lm for room %s: %w", w.ID, err)
		}
		lm = lm.UTC()
		room.LastMessageAt = &lm
	}
	return room, nil
}

// ListJoinedChannels returns the public channels the authenticated user has
// joined.
func (c *Client) ListJoinedChannels(ctx context.Context) ([]Room, error) {
	return c.listRooms(ctx, "channels.list.joined", "channels")
}

// ListDirectMessages returns the user's direct-message conversations.
func (c *Client) ListDirectMessages(ctx context.Context) ([]Room, error) {
	return c.listRooms(ctx, "im.list", "ims")
}

// ListPrivateGroups returns the private groups the user belongs to.
func (c *Client) ListPrivateGroups(ctx context.Context) ([]Room, error) {
	return c.listRooms(ctx, "groups.list", "groups")
}

func (c *Client) listRooms(ctx context.Context, endpoint, field string) ([]Room, error) {
	// count=0 asks the server for the full list.
	req, err := c.newAuthedRequest(ctx, endpoint, url.Values{"count": {"0"}})
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status %d", endpoint, resp.StatusCode)
	}

	var payload map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", endpoint, err)
	}

	var wireRooms []wireRoom
	if raw, ok := payload[field]; ok {
		if err := json.Unmarshal(raw, &wireRooms); err != nil {
			return nil, fmt.Errorf("decoding %s list: %w", endpoint, err)
		}
	}

	rooms := make([]Room, 0, len(wireRooms))
	for _, w := range wireRooms {
		room, err := w.toRoom()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", endpoint, err)
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

// historyEndpoints maps a room kind to its history endpoint.
var historyEndpoints = map[state.RoomKind]string{
	state.KindPublicChannel: "channels.history",
	state.KindDirectMessage: "im.history",
	state.KindPrivateGroup:  "groups.history",
}

type wireHistory struct {
	Success  bool              `json:"success"`
	Messages []json.RawMessage `json:"messages"`
	Error    string            `json:"error"`
}

// FetchHistory retrieves the messages of one room between oldest and latest
// (inclusive), up to limit. The response body is returned both parsed and
// verbatim; a success=false body is not an error at this layer — the caller
// interprets the server's error text.
func (c *Client) FetchHistory(ctx context.Context, kind state.RoomKind, roomID string, oldest, latest time.Time, limit int) (HistoryPage, error) {
	endpoint, ok := historyEndpoints[kind]
	if !ok {
		return HistoryPage{}, fmt.Errorf("no history endpoint for room kind %q", kind)
	}

	q := url.Values{
		"roomId":    {roomID},
		"oldest":    {Timestamp(oldest)},
		"latest":    {Timestamp(latest)},
		"count":     {strconv.Itoa(limit)},
		"inclusive": {"true"},
	}
	req, err := c.newAuthedRequest(ctx, endpoint, q)
	if err != nil {
		return HistoryPage{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return HistoryPage{}, fmt.Errorf("%s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	// Rate-limited calls come back with an error status but a parseable
	// body, so the body is decoded regardless of the status code.
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return HistoryPage{}, fmt.Errorf("reading %s response: %w", endpoint, err)
	}

	var wire wireHistory
	if err := json.Unmarshal(raw, &wire); err != nil {
		return HistoryPage{}, fmt.Errorf("decoding %s response (status %d): %w", endpoint, resp.StatusCode, err)
	}

	return HistoryPage{
		Success:  wire.Success,
		Messages: wire.Messages,
		Error:    wire.Error,
		Raw:      string(raw),
	}, nil
}

func (c *Client) newAuthedRequest(ctx context.Context, endpoint string, q url.Values) (*http.Request, error) {
	u := c.baseURL + "/api/v1/" + endpoint
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", endpoint, err)
	}
	req.Header.Set("X-Auth-Token", c.authToken)
	req.Header.Set("X-User-Id", c.userID)
	return req, nil
}

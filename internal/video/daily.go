package video

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"medvision-server/internal/models"
)

// DailyClient talks to the Daily.co REST API.
type DailyClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	now        func() time.Time
}

// NewDailyClient creates a client. timeout bounds every request.
func NewDailyClient(baseURL, apiKey string, timeout time.Duration) *DailyClient {
	return &DailyClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

type roomProperties struct {
	EnableChat        bool   `json:"enable_chat"`
	EnableScreenshare bool   `json:"enable_screenshare"`
	EnableRecording   string `json:"enable_recording,omitempty"`
	EnableKnocking    bool   `json:"enable_knocking"`
	EnableNetworkUI   bool   `json:"enable_network_ui"`
	EnablePrejoinUI   bool   `json:"enable_prejoin_ui"`
}

type createRoomRequest struct {
	Name       string         `json:"name"`
	Privacy    string         `json:"privacy"`
	Properties roomProperties `json:"properties"`
}

type tokenProperties struct {
	RoomName string `json:"room_name"`
	UserName string `json:"user_name"`
	UserID   string `json:"user_id"`
	Exp      int64  `json:"exp"`
	IsOwner  bool   `json:"is_owner"`
}

type tokenRequest struct {
	Properties tokenProperties `json:"properties"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// CreateRoom creates a private room.
func (c *DailyClient) CreateRoom(ctx context.Context, name string) (*Room, error) {
	body := createRoomRequest{
		Name:    name,
		Privacy: "private",
		Properties: roomProperties{
			EnableChat:        true,
			EnableScreenshare: true,
			EnableRecording:   "cloud",
			EnablePrejoinUI:   true,
		},
	}
	var room Room
	if err := c.do(ctx, http.MethodPost, "/rooms", body, &room); err != nil {
		return nil, fmt.Errorf("create room %s: %w", name, err)
	}
	return &room, nil
}

// DeleteRoom deletes a room. A room that no longer exists is not an error.
func (c *DailyClient) DeleteRoom(ctx context.Context, name string) error {
	err := c.do(ctx, http.MethodDelete, "/rooms/"+url.PathEscape(name), nil, nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil
		}
		return fmt.Errorf("delete room %s: %w", name, err)
	}
	return nil
}

// AccessToken mints a meeting token. Doctors and admins join as owners.
func (c *DailyClient) AccessToken(ctx context.Context, roomName, userID string, role models.Role, opts TokenOptions) (string, error) {
	opts = opts.withDefaults()
	body := tokenRequest{Properties: tokenProperties{
		RoomName: roomName,
		UserName: opts.UserName,
		UserID:   userID,
		Exp:      c.now().Add(opts.TTL).Unix(),
		IsOwner:  IsOwner(role),
	}}
	var resp tokenResponse
	if err := c.do(ctx, http.MethodPost, "/meeting-tokens", body, &resp); err != nil {
		return "", fmt.Errorf("meeting token for %s: %w", roomName, err)
	}
	if resp.Token == "" {
		return "", fmt.Errorf("meeting token for %s: empty token in response", roomName)
	}
	return resp.Token, nil
}

// APIError is a non-2xx answer from the provider.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("daily api: status %d: %s", e.StatusCode, e.Body)
}

func (c *DailyClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

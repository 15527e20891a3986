package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"corpsim/internal/game"
)

// HTTPStore talks to a metadata service (cmd/corpsim-meta).
type HTTPStore struct {
	BaseURL string
	HTTP    *http.Client
}

func NewHTTPStore(baseURL string) *HTTPStore {
	return &HTTPStore{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *HTTPStore) CreateGame(ctx context.Context, name string) (game.Metadata, error) {
	var out game.Metadata
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/games", map[string]any{
		"name": name,
	}, &out)
	return out, err
}

func (c *HTTPStore) ListGames(ctx context.Context) ([]game.Metadata, error) {
	var out struct {
		Games []game.Metadata `json:"games"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/games", nil, &out)
	return out.Games, err
}

func (c *HTTPStore) GetGame(ctx context.Context, id uuid.UUID) (game.Metadata, error) {
	var out game.Metadata
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/games/"+id.String(), nil, &out)
	return out, err
}

func (c *HTTPStore) DeleteGame(ctx context.Context, id uuid.UUID) error {
	return c.jsonRequest(ctx, http.MethodDelete, "/v1/games/"+id.String(), nil, nil)
}

// StatusError is a non-2xx reply from the metadata service.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("metadata status %d: %s", e.Status, e.Message)
}

// Unwrap maps well-known statuses onto the package sentinels.
func (e *StatusError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return ErrGameNotFound
	case http.StatusConflict:
		return ErrGameExists
	case http.StatusBadRequest:
		return game.ErrInvalidGameName
	default:
		return nil
	}
}

func (c *HTTPStore) jsonRequest(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := strings.TrimSpace(string(raw))
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &StatusError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

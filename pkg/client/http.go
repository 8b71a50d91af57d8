// Package client is the peer side of the relay: the HTTP bootstrap calls
// that produce a session claim, and the websocket session that carries the
// encrypted room traffic.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"

	"github.com/ZentaChain/zentalk-collab/pkg/api"
	"github.com/ZentaChain/zentalk-collab/pkg/protocol"
)

var (
	ErrPending  = errors.New("not ready yet")
	ErrRejected = errors.New("rejected")
	ErrNotFound = errors.New("unknown or expired")
)

// StatusError is returned for unexpected HTTP statuses
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("relay %s %s: %d %s", e.Method, e.Path, e.Status, e.Body)
}

// HTTP talks to the relay's bootstrap API
type HTTP struct {
	Base string
	HTTP *http.Client

	// PollInterval separates poll rounds that return pending
	PollInterval time.Duration
}

func NewHTTP(base string) *HTTP {
	return &HTTP{Base: base, HTTP: http.DefaultClient, PollInterval: 100 * time.Millisecond}
}

func (c *HTTP) Capabilities(ctx context.Context) (api.CapabilitiesResponse, error) {
	var out api.CapabilitiesResponse
	_, err := c.do(ctx, http.MethodGet, "/api/v1/capabilities", nil, "", &out)
	return out, err
}

// StartLogin opens a login attempt
func (c *HTTP) StartLogin(ctx context.Context) (api.StartLoginResponse, error) {
	var out api.StartLoginResponse
	_, err := c.do(ctx, http.MethodPost, "/api/v1/login", nil, "", &out)
	return out, err
}

// ConfirmLogin completes a login attempt with a display name
func (c *HTTP) ConfirmLogin(ctx context.Context, token, name string) (protocol.User, error) {
	var out api.ConfirmLoginResponse
	_, err := c.do(ctx, http.MethodPost, "/api/v1/login/"+url.PathEscape(token)+"/confirm",
		api.ConfirmLoginRequest{Name: name}, "", &out)
	return out.User, err
}

// PollLogin waits one round for the user claim. It returns ErrPending while
// the attempt is unconfirmed.
func (c *HTTP) PollLogin(ctx context.Context, token string) (string, error) {
	var out api.PollLoginResponse
	if err := c.poll(ctx, "/api/v1/login/"+url.PathEscape(token), &out); err != nil {
		return "", err
	}
	return out.UserToken, nil
}

// Login runs the simple login flow end to end and returns the user claim
func (c *HTTP) Login(ctx context.Context, name string) (string, error) {
	start, err := c.StartLogin(ctx)
	if err != nil {
		return "", err
	}
	if _, err := c.ConfirmLogin(ctx, start.Token, name); err != nil {
		return "", err
	}
	return c.until(ctx, func() (string, error) { return c.PollLogin(ctx, start.Token) })
}

// CreateRoom allocates a room and returns the host's session claim
func (c *HTTP) CreateRoom(ctx context.Context, userToken string) (api.CreateRoomResponse, error) {
	var out api.CreateRoomResponse
	_, err := c.do(ctx, http.MethodPost, "/api/v1/rooms", nil, userToken, &out)
	return out, err
}

// RequestJoin asks the room's host for admission and returns the join token
func (c *HTTP) RequestJoin(ctx context.Context, roomID, userToken string) (string, error) {
	var out api.JoinResponse
	_, err := c.do(ctx, http.MethodPost, "/api/v1/rooms/"+url.PathEscape(roomID)+"/join", nil, userToken, &out)
	return out.JoinToken, err
}

// PollJoin waits one round for the host's decision
func (c *HTTP) PollJoin(ctx context.Context, roomID, joinToken string) (string, error) {
	var out api.SessionResponse
	path := "/api/v1/rooms/" + url.PathEscape(roomID) + "/join/" + url.PathEscape(joinToken)
	if err := c.poll(ctx, path, &out); err != nil {
		return "", err
	}
	return out.SessionToken, nil
}

// Join requests admission and polls until the host decides
func (c *HTTP) Join(ctx context.Context, roomID, userToken string) (string, error) {
	token, err := c.RequestJoin(ctx, roomID, userToken)
	if err != nil {
		return "", err
	}
	return c.until(ctx, func() (string, error) { return c.PollJoin(ctx, roomID, token) })
}

func (c *HTTP) until(ctx context.Context, round func() (string, error)) (string, error) {
	for {
		v, err := round()
		if !errors.Is(err, ErrPending) {
			return v, err
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.PollInterval):
		}
	}
}

func (c *HTTP) poll(ctx context.Context, path string, out any) error {
	status, err := c.do(ctx, http.MethodGet, path, nil, "", out)
	var se *StatusError
	switch {
	case status == http.StatusAccepted:
		return ErrPending
	case errors.As(err, &se) && se.Status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	case errors.As(err, &se) && se.Status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrRejected, se.Body)
	}
	return err
}

func (c *HTTP) do(ctx context.Context, method, path string, in any, bearer string, out any) (int, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.Base+path, body)
	if err != nil {
		return 0, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}
	if resp.StatusCode/100 != 2 {
		return resp.StatusCode, &StatusError{Method: method, Path: path, Status: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode %s response: %w", path, err)
		}
	}
	return resp.StatusCode, nil
}

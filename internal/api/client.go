package api

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

	"github.com/gorilla/websocket"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/bz888/champs/internal/config"
	"github.com/bz888/champs/internal/logger"
	"github.com/bz888/champs/internal/models"
)

const (
	chatPath   = "/api/chat"
	chatWSPath = "/api/chat/ws"
)

// StatusError is returned when the relay answers with something other than a
// stream: a non-2xx status over HTTP or a failure close code over WebSocket.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("relay returned %d", e.StatusCode)
	}
	return fmt.Sprintf("relay returned %d: %s", e.StatusCode, e.Message)
}

// Client talks to the chat relay.
type Client struct {
	base      *url.URL
	transport string
	http      *http.Client
	dialer    *websocket.Dialer
	log       *logger.Logger
}

// New creates a relay client. transport is config.TransportHTTP or
// config.TransportWS.
func New(serverURL, transport string) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("server url %q must be http or https", serverURL)
	}
	if transport == "" {
		transport = config.TransportHTTP
	}
	if transport != config.TransportHTTP && transport != config.TransportWS {
		return nil, fmt.Errorf("unknown transport %q", transport)
	}

	return &Client{
		base:      base,
		transport: transport,
		http:      &http.Client{},
		dialer:    websocket.DefaultDialer,
		log:       logger.NewLogger("Relay client"),
	}, nil
}

// Stream sends the conversation and calls fn with every decoded fragment of
// the reply, in order. It returns when the reply is complete, the stream
// breaks, ctx ends or fn returns an error.
func (c *Client) Stream(ctx context.Context, turns []models.ChatTurn, fn func(string) error) error {
	c.log.Debug("Sending ", len(turns), " turns over ", c.transport)
	if c.transport == config.TransportWS {
		return c.streamWS(ctx, turns, fn)
	}
	return c.streamHTTP(ctx, turns, fn)
}

func (c *Client) endpoint(scheme, path string) string {
	u := *c.base
	u.Scheme = scheme
	u.Path = c.base.Path + path
	return u.String()
}

func (c *Client) streamHTTP(ctx context.Context, turns []models.ChatTurn, fn func(string) error) error {
	body, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("marshal chat turns: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(c.base.Scheme, chatPath), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/plain")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeStatusError(resp)
	}

	// Fragment boundaries may split a multi-byte rune; the decoder holds the
	// partial bytes back until the rest arrives.
	reader := transform.NewReader(resp.Body, unicode.UTF8.NewDecoder())
	buf := make([]byte, 4096)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			if ferr := fn(string(buf[:n])); ferr != nil {
				return ferr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read chat stream: %w", err)
		}
	}
}

func decodeStatusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	statusErr := &StatusError{StatusCode: resp.StatusCode}

	var errResp models.ErrorResponse
	if json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
		statusErr.Message = errResp.Error
	} else {
		statusErr.Message = strings.TrimSpace(string(data))
	}
	return statusErr
}

func (c *Client) streamWS(ctx context.Context, turns []models.ChatTurn, fn func(string) error) error {
	scheme := "ws"
	if c.base.Scheme == "https" {
		scheme = "wss"
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.endpoint(scheme, chatWSPath), nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return decodeStatusError(resp)
		}
		return fmt.Errorf("dial chat websocket: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := conn.WriteJSON(turns); err != nil {
		return fmt.Errorf("send chat turns: %w", err)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return closeError(err)
		}
		if err := fn(string(data)); err != nil {
			return err
		}
	}
}

// closeError maps the relay's close code back onto the HTTP status it stands for.
func closeError(err error) error {
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		return fmt.Errorf("read chat websocket: %w", err)
	}
	switch closeErr.Code {
	case websocket.CloseNormalClosure:
		return nil
	case websocket.CloseTryAgainLater:
		return &StatusError{StatusCode: http.StatusTooManyRequests, Message: closeErr.Text}
	case websocket.CloseInvalidFramePayloadData:
		return &StatusError{StatusCode: http.StatusBadRequest, Message: closeErr.Text}
	default:
		return &StatusError{StatusCode: http.StatusInternalServerError, Message: closeErr.Text}
	}
}

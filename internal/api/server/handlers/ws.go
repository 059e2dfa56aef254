package handlers

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const closeWriteWait = time.Second

// ChatWS relays one conversation over a WebSocket. The client sends the turns
// as a single text message; every fragment comes back as its own text message
// and the close code tells how the stream ended.
func (h *Handler) ChatWS(w http.ResponseWriter, r *http.Request) {
	log := h.requestLogger(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("WebSocket upgrade failed: ", err)
		return
	}
	defer conn.Close()

	_, payload, err := conn.ReadMessage()
	if err != nil {
		log.Debug("No request received: ", err)
		return
	}

	turns, err := decodeTurns(bytes.NewReader(payload))
	if err != nil {
		log.Warn("Rejected chat request: ", err)
		closeWith(conn, websocket.CloseInvalidFramePayloadData, "request must be a JSON array of chat turns")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Drain the peer; a read error means it closed.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	first, stream, err := h.openStream(ctx, turns)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		status, message := upstreamStatus(err)
		log.Errorw("Upstream request failed", "status", status, "error", err)
		closeWith(conn, closeCodeFor(status), message)
		return
	}

	if stream != nil {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(first)); err != nil {
			return
		}
		for chunk := range stream {
			if chunk.Err != nil {
				status, message := upstreamStatus(chunk.Err)
				log.Errorw("Upstream stream broke", "error", chunk.Err)
				closeWith(conn, closeCodeFor(status), message)
				return
			}
			if chunk.Text == "" {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(chunk.Text)); err != nil {
				log.Debug("Client went away: ", err)
				return
			}
		}
	}
	if ctx.Err() != nil {
		return
	}

	closeWith(conn, websocket.CloseNormalClosure, "")
}

func closeCodeFor(status int) int {
	if status == http.StatusTooManyRequests {
		return websocket.CloseTryAgainLater
	}
	return websocket.CloseInternalServerErr
}

func closeWith(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteWait))
}

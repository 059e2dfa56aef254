package handlers

import (
	"errors"
	"io"
	"net/http"
)

// Chat relays POST /api/chat. The body is a JSON array of chat turns; the
// reply is the upstream text streamed as plain UTF-8, flushed per fragment.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	log := h.requestLogger(r)
	defer r.Body.Close()

	turns, err := decodeTurns(r.Body)
	if err != nil {
		log.Warn("Rejected chat request: ", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	first, stream, err := h.openStream(r.Context(), turns)
	if err != nil {
		if r.Context().Err() != nil {
			log.Debug("Client went away before the stream started")
			return
		}
		status, message := upstreamStatus(err)
		log.Errorw("Upstream request failed", "status", status, "error", err)
		writeError(w, status, message)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	write := func(text string) error {
		if _, err := io.WriteString(w, text); err != nil {
			return err
		}
		if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}
		return nil
	}

	if stream == nil {
		log.Info("Upstream finished without output")
		return
	}

	fragments := 1
	if err := write(first); err != nil {
		log.Debug("Client went away: ", err)
		return
	}
	for chunk := range stream {
		if chunk.Err != nil {
			log.Errorw("Upstream stream broke", "fragments", fragments, "error", chunk.Err)
			// Headers are already sent; aborting is the only way left to
			// tell the client the body is incomplete.
			panic(http.ErrAbortHandler)
		}
		if chunk.Text == "" {
			continue
		}
		if err := write(chunk.Text); err != nil {
			log.Debug("Client went away: ", err)
			return
		}
		fragments++
	}

	if r.Context().Err() != nil {
		log.Debug("Client went away mid-stream")
		return
	}
	log.Infow("Stream completed", "fragments", fragments)
}

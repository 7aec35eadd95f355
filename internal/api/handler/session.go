package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/kiranshivaraju/imgjobs/internal/api/response"
	"github.com/kiranshivaraju/imgjobs/internal/session"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const streamWriteTimeout = 5 * time.Second

// SessionView is the part of the session the handlers expose.
type SessionView interface {
	Snapshot() session.Snapshot
	Subscribe() (<-chan session.Snapshot, func())
}

// Resetter clears the session and stops its active job.
type Resetter interface {
	Reset()
}

// NewGetSessionHandler returns an http.HandlerFunc for GET /api/v1/session.
func NewGetSessionHandler(sess SessionView) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, sess.Snapshot())
	}
}

// NewResetSessionHandler returns an http.HandlerFunc for DELETE /api/v1/session.
func NewResetSessionHandler(svc Resetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc.Reset()
		response.NoContent(w)
	}
}

// NewStreamHandler returns an http.HandlerFunc for GET /api/v1/session/stream.
// It upgrades to a websocket and writes every session snapshot as JSON,
// starting with the current one. Messages from the client are ignored.
func NewStreamHandler(sess SessionView, originPatterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			slog.Warn("websocket accept failed", "error", err)
			return
		}
		defer conn.Close(websocket.StatusInternalError, "stream ended")

		// CloseRead cancels ctx once the client goes away.
		ctx := conn.CloseRead(r.Context())

		updates, unsubscribe := sess.Subscribe()
		defer unsubscribe()

		for {
			select {
			case <-ctx.Done():
				conn.Close(websocket.StatusNormalClosure, "")
				return
			case snap, ok := <-updates:
				if !ok {
					conn.Close(websocket.StatusNormalClosure, "")
					return
				}
				if err := writeSnapshot(ctx, conn, snap); err != nil {
					if !errors.Is(err, context.Canceled) {
						slog.Warn("websocket write failed", "error", err)
					}
					return
				}
			}
		}
	}
}

func writeSnapshot(ctx context.Context, conn *websocket.Conn, snap session.Snapshot) error {
	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, snap)
}

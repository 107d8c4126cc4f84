package transport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/roach88/sigsync/internal/adapter"
	"github.com/roach88/sigsync/internal/eventlog"
	"github.com/roach88/sigsync/internal/ir"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// handleWS subscribes the connection to a signal and feeds its inbound frames
// to the signal as updates.
//
// The subscription holds a directory reference until the connection ends, so
// an ephemeral signal is reclaimed when its last connection closes.
func (s *Server) handleWS(c *gin.Context) {
	id := c.Param("id")
	var checkpoint *string
	if cp := c.Query("checkpoint"); cp != "" {
		checkpoint = &cp
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	stream, err := s.hub.Adapter().Subscribe(ctx, id, checkpoint)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "signal not found"})
		return
	}
	defer stream.Close()

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Warn("websocket upgrade failed", "signal", id, "error", err)
		return
	}
	defer conn.Close()

	m := s.hub.Metrics()
	m.WSOpened()
	defer m.WSClosed()

	logger := s.logger.With("conn", uuid.NewString(), "signal", id)
	logger.Info("websocket connected", "replayed", stream.Replayed())

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writeLoop(conn, stream, logger)
	}()

	s.readLoop(ctx, conn, id, logger)

	cancel()
	stream.Close()
	<-done
	logger.Info("websocket disconnected")
}

// readLoop submits inbound frames until the peer goes away or breaks the
// protocol.
func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, id string, logger *slog.Logger) {
	conn.SetReadLimit(maxEventBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	var limiter *rate.Limiter
	if s.settings.UpdateRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.settings.UpdateRate), max(s.settings.UpdateBurst, 1))
	}

	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("websocket read", "error", err)
			}
			return
		}
		if typ != websocket.TextMessage {
			closeConn(conn, websocket.CloseUnsupportedData, "text frames only")
			return
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
		}

		err = s.hub.Adapter().Update(id, string(data))
		if err == nil {
			continue
		}

		var perr *ir.ProtocolError
		switch {
		case errors.As(err, &perr):
			logger.Warn("protocol violation", "code", perr.Code, "event_id", perr.EventID, "error", perr.Message)
			closeConn(conn, websocket.CloseProtocolError, string(perr.Code))
		case errors.Is(err, adapter.ErrSignalNotFound), errors.Is(err, eventlog.ErrClosed):
			closeConn(conn, websocket.CloseGoingAway, "signal closed")
		default:
			logger.Error("update failed", "error", err)
			closeConn(conn, websocket.CloseInternalServerErr, "internal error")
		}
		return
	}
}

// writeLoop forwards the stream as text frames and keeps the connection alive
// with pings. When the stream ends on its own the peer is told why.
func (s *Server) writeLoop(conn *websocket.Conn, stream *adapter.Stream, logger *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case wire, ok := <-stream.C():
			if !ok {
				s.streamEnded(conn, stream.Err(), logger)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(wire)); err != nil {
				logger.Debug("websocket write", "error", err)
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				logger.Debug("websocket ping", "error", err)
				_ = conn.Close()
				return
			}
		}
	}
}

func (s *Server) streamEnded(conn *websocket.Conn, err error, logger *slog.Logger) {
	switch {
	case errors.Is(err, eventlog.ErrOverrun):
		logger.Info("subscriber overrun")
		closeConn(conn, websocket.CloseTryAgainLater, "overrun")
	case errors.Is(err, eventlog.ErrClosed):
		closeConn(conn, websocket.CloseGoingAway, "signal closed")
	default:
		return
	}
	// Unblock readLoop.
	_ = conn.Close()
}

// closeConn sends a close frame. Safe to call concurrently with writes.
func closeConn(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

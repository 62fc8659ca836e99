package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/labstack/echo/v4"
)

// handleJobEvents upgrades to WebSocket and streams the job's progress
// events as JSON text messages. The stream ends with the terminal event,
// when the client disconnects, or after the idle window passes with no
// events (heartbeats reset it).
func (s *Server) handleJobEvents(c echo.Context) error {
	jobID := c.Param("id")
	if _, err := s.sched.GetJob(jobID); err != nil {
		return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return nil // Accept already wrote the handshake failure
	}
	log := s.log.WithField("job_id", jobID)

	// CloseRead discards client frames and cancels the context on disconnect.
	ctx := conn.CloseRead(c.Request().Context())

	sub := s.sched.Subscribe(jobID)
	defer s.sched.Unsubscribe(sub)

	// Re-read after subscribing. A job that settled between the lookup and
	// the subscription published its terminal event to nobody, so without
	// this check the stream would sit silent until the idle timeout.
	job, err := s.sched.GetJob(jobID)
	if err == nil && job.State.Terminal() {
		final := map[string]any{"job_id": job.ID, "state": job.State}
		if job.ErrorKind != "" {
			final["error_kind"] = job.ErrorKind
			final["error"] = job.ErrorMsg
		}
		data, _ := json.Marshal(final)
		_ = conn.Write(ctx, websocket.MessageText, data)
		return conn.Close(websocket.StatusNormalClosure, "job already terminal")
	}

	idle := time.NewTimer(s.cfg.StreamIdleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return conn.Close(websocket.StatusGoingAway, "client disconnected")
		case <-idle.C:
			log.Debug().Msg("Progress stream idle, closing")
			return conn.Close(websocket.StatusNormalClosure, "idle timeout")
		case ev, ok := <-sub.C:
			if !ok {
				return conn.Close(websocket.StatusNormalClosure, "stream complete")
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				return nil
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(s.cfg.StreamIdleTimeout)
			if ev.Terminal() {
				// Drain the closed channel before the normal close frame.
				for range sub.C {
				}
				return conn.Close(websocket.StatusNormalClosure, "stream complete")
			}
		}
	}
}

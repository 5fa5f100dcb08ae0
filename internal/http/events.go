package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dailycompanion/companion/internal/events"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// handleEvents streams plan changes via Server-Sent Events.
//
// Each NATS event on plans.<id>.> is forwarded as
//
//	event: task.updated
//	data: {"type":"task.updated","planId":"...","actorId":"...","at":"...","data":{...}}
//
// The stream ends when the plan is deleted, when the caller is removed
// from it, on client disconnect, or on server shutdown. The polling routes
// stay authoritative; a client that reconnects should re-fetch.
func (s *Server) handleEvents(c echo.Context) error {
	user, err := actor(c)
	if err != nil {
		return err
	}
	if s.bus == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Live updates are disabled")
	}

	ctx := c.Request().Context()
	planID := c.Param("id")
	if _, err := s.plans.GetPlan(ctx, user, planID); err != nil {
		return err
	}

	sub, err := s.bus.SubscribePlan(planID)
	if err != nil {
		return fmt.Errorf("subscribing to plan events: %w", err)
	}
	defer func() {
		_ = sub.Close()
	}()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	w.Flush()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case msg := <-sub.C():
			var ev events.Event
			if err := json.Unmarshal(msg.Data, &ev); err != nil {
				s.logger.Warn(ctx, "dropping malformed plan event", zap.String("subject", msg.Subject), zap.Error(err))
				continue
			}

			fmt.Fprintf(w, "event: %s\n", ev.Type)
			fmt.Fprintf(w, "data: %s\n\n", msg.Data)
			w.Flush()

			if ev.Type == events.PlanDeleted || removes(ev, user) {
				return nil
			}

		case <-ticker.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			w.Flush()

		case <-ctx.Done():
			return nil

		case <-s.closing:
			return nil
		}
	}
}

// removes reports whether ev removed user from the plan.
func removes(ev events.Event, user string) bool {
	if ev.Type != events.MemberRemoved {
		return false
	}
	var data struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(ev.Data, &data); err != nil {
		return false
	}
	return data.UserID == user
}

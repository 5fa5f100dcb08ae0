package http

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// handleListNotifications returns the caller's notifications. ?unread=true
// keeps only unread ones.
func (s *Server) handleListNotifications(c echo.Context) error {
	user, err := actor(c)
	if err != nil {
		return err
	}
	unreadOnly := false
	if raw := c.QueryParam("unread"); raw != "" {
		if unreadOnly, err = strconv.ParseBool(raw); err != nil {
			return badRequest("unread must be a boolean")
		}
	}

	list, err := s.notifications.List(c.Request().Context(), user, unreadOnly)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, NotificationsResponse{Notifications: list})
}

func (s *Server) handleMarkNotifications(c echo.Context) error {
	user, err := actor(c)
	if err != nil {
		return err
	}
	var req MarkNotificationsRequest
	if err := decodeBody(c, &req, false); err != nil {
		return err
	}

	n, err := s.notifications.MarkRead(c.Request().Context(), user, req.IDs)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, MarkNotificationsResponse{Updated: n})
}

package http

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

func (s *Server) handleListInvitations(c echo.Context) error {
	user, err := actor(c)
	if err != nil {
		return err
	}
	list, err := s.plans.ListInvitations(c.Request().Context(), user, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, InvitationsResponse{Invitations: list})
}

func (s *Server) handleCreateInvitation(c echo.Context) error {
	user, err := actor(c)
	if err != nil {
		return err
	}
	var req CreateInvitationRequest
	if err := decodeBody(c, &req, true); err != nil {
		return err
	}

	inv, err := s.plans.CreateInvitation(c.Request().Context(), user, c.Param("id"),
		strings.TrimSpace(req.UserID), strings.TrimSpace(req.Role))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, InvitationResponse{Invitation: inv})
}

// handleCancelInvitation takes invitationId from the JSON body or, for
// clients that cannot send a DELETE body, from the query string.
func (s *Server) handleCancelInvitation(c echo.Context) error {
	user, err := actor(c)
	if err != nil {
		return err
	}
	var req CancelInvitationRequest
	if err := decodeBody(c, &req, false); err != nil {
		return err
	}
	if req.InvitationID == "" {
		req.InvitationID = c.QueryParam("invitationId")
	}

	if err := s.plans.CancelInvitation(c.Request().Context(), user, c.Param("id"), req.InvitationID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

func (s *Server) handleListMyInvitations(c echo.Context) error {
	user, err := actor(c)
	if err != nil {
		return err
	}
	list, err := s.plans.ListMyInvitations(c.Request().Context(), user)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, InvitationsResponse{Invitations: list})
}

func (s *Server) handleRespondInvitation(c echo.Context) error {
	user, err := actor(c)
	if err != nil {
		return err
	}
	var req RespondInvitationRequest
	if err := decodeBody(c, &req, true); err != nil {
		return err
	}

	inv, err := s.plans.RespondInvitation(c.Request().Context(), user, req.InvitationID, req.Action)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, InvitationResponse{Invitation: inv})
}

package http

import (
	"net/http"

	"github.com/dailycompanion/companion/internal/sharedplan"
	"github.com/labstack/echo/v4"
)

func (s *Server) handleListPlans(c echo.Context) error {
	user, err := actor(c)
	if err != nil {
		return err
	}
	plans, err := s.plans.ListPlans(c.Request().Context(), user)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, PlansResponse{Plans: plans})
}

func (s *Server) handleCreatePlan(c echo.Context) error {
	user, err := actor(c)
	if err != nil {
		return err
	}
	var req CreatePlanRequest
	if err := decodeBody(c, &req, true); err != nil {
		return err
	}

	plan, err := s.plans.CreatePlan(c.Request().Context(), user, sharedplan.PlanInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		return err
	}
	view := sharedplan.PlanView{
		Plan:        plan,
		Role:        sharedplan.RoleOwner,
		Permissions: sharedplan.PermissionsFor(&plan, user),
	}
	return c.JSON(http.StatusCreated, PlanResponse{Plan: view})
}

func (s *Server) handleGetPlan(c echo.Context) error {
	user, err := actor(c)
	if err != nil {
		return err
	}
	view, err := s.plans.GetPlan(c.Request().Context(), user, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, PlanResponse{Plan: view})
}

func (s *Server) handleUpdatePlan(c echo.Context) error {
	user, err := actor(c)
	if err != nil {
		return err
	}
	var req UpdatePlanRequest
	if err := decodeBody(c, &req, true); err != nil {
		return err
	}

	view, err := s.plans.UpdatePlan(c.Request().Context(), user, c.Param("id"), sharedplan.PlanPatch{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, PlanResponse{Plan: view})
}

func (s *Server) handleDeletePlan(c echo.Context) error {
	user, err := actor(c)
	if err != nil {
		return err
	}
	if err := s.plans.DeletePlan(c.Request().Context(), user, c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

func (s *Server) handleUpdateMember(c echo.Context) error {
	user, err := actor(c)
	if err != nil {
		return err
	}
	var req UpdateMemberRequest
	if err := decodeBody(c, &req, true); err != nil {
		return err
	}

	member, err := s.plans.UpdateMemberRole(c.Request().Context(), user, c.Param("id"), c.Param("userId"), req.Role)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, MemberResponse{Member: member})
}

func (s *Server) handleRemoveMember(c echo.Context) error {
	user, err := actor(c)
	if err != nil {
		return err
	}
	if err := s.plans.RemoveMember(c.Request().Context(), user, c.Param("id"), c.Param("userId")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

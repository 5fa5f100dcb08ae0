package http

import (
	"net/http"

	"github.com/dailycompanion/companion/internal/sharedplan"
	"github.com/labstack/echo/v4"
)

func (s *Server) handleListTasks(c echo.Context) error {
	user, err := actor(c)
	if err != nil {
		return err
	}
	tasks, err := s.plans.ListTasks(c.Request().Context(), user, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, TasksResponse{Tasks: tasks})
}

func (s *Server) handleCreateTask(c echo.Context) error {
	user, err := actor(c)
	if err != nil {
		return err
	}
	var req CreateTaskRequest
	if err := decodeBody(c, &req, true); err != nil {
		return err
	}

	task, err := s.plans.AddTask(c.Request().Context(), user, c.Param("id"), sharedplan.TaskInput{
		Title:       req.Title,
		Description: req.Description,
		AssignedTo:  req.AssignedTo,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, TaskResponse{Task: task})
}

func (s *Server) handleUpdateTask(c echo.Context) error {
	user, err := actor(c)
	if err != nil {
		return err
	}
	var req UpdateTaskRequest
	if err := decodeBody(c, &req, true); err != nil {
		return err
	}

	task, err := s.plans.UpdateTask(c.Request().Context(), user, c.Param("id"), req.TaskID, sharedplan.TaskPatch{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Assign:      req.AssignedTo.Set,
		AssignTo:    req.AssignedTo.Value,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, TaskResponse{Task: task})
}

func (s *Server) handleDeleteTask(c echo.Context) error {
	user, err := actor(c)
	if err != nil {
		return err
	}
	var req DeleteTaskRequest
	if err := decodeBody(c, &req, false); err != nil {
		return err
	}
	if req.TaskID == "" {
		req.TaskID = c.QueryParam("taskId")
	}

	if err := s.plans.DeleteTask(c.Request().Context(), user, c.Param("id"), req.TaskID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

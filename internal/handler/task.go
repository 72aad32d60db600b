package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tasksched/tasksched/internal/domain"
	"github.com/tasksched/tasksched/internal/gateway"
	"github.com/tasksched/tasksched/internal/service"
)

// TaskHandler handles the task service endpoints. Every handler runs behind
// gateway.RequireAuth and scopes rows to the authenticated principal.
type TaskHandler struct {
	tasks *service.TaskService
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(tasks *service.TaskService) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

type taskRequest struct {
	Description string    `json:"description" validate:"required"`
	StartTime   time.Time `json:"startTime" validate:"required"`
	EndTime     time.Time `json:"endTime" validate:"required"`
	Done        bool      `json:"done"`
	Priority    string    `json:"priority" validate:"omitempty,oneof=High Medium Low"`
	Category    string    `json:"category"`
	Notes       *string   `json:"notes"`
}

func (r taskRequest) toDomain() domain.Task {
	return domain.Task{
		Description: r.Description,
		StartTime:   r.StartTime,
		EndTime:     r.EndTime,
		Done:        r.Done,
		Priority:    r.Priority,
		Category:    r.Category,
		Notes:       r.Notes,
	}
}

// Create stores a new task for the caller.
func (h *TaskHandler) Create(c echo.Context) error {
	principal, ok := gateway.PrincipalFrom(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	var req taskRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput)
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	task, err := h.tasks.Create(c.Request().Context(), req.toDomain(), principal.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, task)
}

// List returns all of the caller's tasks.
func (h *TaskHandler) List(c echo.Context) error {
	principal, ok := gateway.PrincipalFrom(c)
	if !ok {
		return domain.ErrUnauthorized
	}
	tasks, err := h.tasks.List(c.Request().Context(), principal.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tasks)
}

// Get returns one of the caller's tasks.
func (h *TaskHandler) Get(c echo.Context) error {
	principal, ok := gateway.PrincipalFrom(c)
	if !ok {
		return domain.ErrUnauthorized
	}
	id, err := taskID(c)
	if err != nil {
		return err
	}
	task, err := h.tasks.Get(c.Request().Context(), id, principal.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, task)
}

// Update rewrites one of the caller's tasks.
func (h *TaskHandler) Update(c echo.Context) error {
	principal, ok := gateway.PrincipalFrom(c)
	if !ok {
		return domain.ErrUnauthorized
	}
	id, err := taskID(c)
	if err != nil {
		return err
	}

	var req taskRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput)
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	task, err := h.tasks.Update(c.Request().Context(), id, req.toDomain(), principal.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, task)
}

// Toggle flips the done flag of one of the caller's tasks.
func (h *TaskHandler) Toggle(c echo.Context) error {
	principal, ok := gateway.PrincipalFrom(c)
	if !ok {
		return domain.ErrUnauthorized
	}
	id, err := taskID(c)
	if err != nil {
		return err
	}
	task, err := h.tasks.Toggle(c.Request().Context(), id, principal.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, task)
}

// Delete removes one of the caller's tasks.
func (h *TaskHandler) Delete(c echo.Context) error {
	principal, ok := gateway.PrincipalFrom(c)
	if !ok {
		return domain.ErrUnauthorized
	}
	id, err := taskID(c)
	if err != nil {
		return err
	}
	if err := h.tasks.Delete(c.Request().Context(), id, principal.ID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "task deleted"})
}

// ByStatus returns the caller's tasks filtered by completion state.
func (h *TaskHandler) ByStatus(c echo.Context) error {
	principal, ok := gateway.PrincipalFrom(c)
	if !ok {
		return domain.ErrUnauthorized
	}
	done, err := strconv.ParseBool(c.Param("done"))
	if err != nil {
		return fmt.Errorf("%w: done must be true or false", domain.ErrInvalidInput)
	}
	tasks, err := h.tasks.ListByStatus(c.Request().Context(), principal.ID, done)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tasks)
}

// ByPriority returns the caller's tasks with the given priority.
func (h *TaskHandler) ByPriority(c echo.Context) error {
	principal, ok := gateway.PrincipalFrom(c)
	if !ok {
		return domain.ErrUnauthorized
	}
	tasks, err := h.tasks.ListByPriority(c.Request().Context(), principal.ID, c.Param("priority"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tasks)
}

// ByCategory returns the caller's tasks in the given category.
func (h *TaskHandler) ByCategory(c echo.Context) error {
	principal, ok := gateway.PrincipalFrom(c)
	if !ok {
		return domain.ErrUnauthorized
	}
	tasks, err := h.tasks.ListByCategory(c.Request().Context(), principal.ID, c.Param("category"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tasks)
}

// Stats returns the caller's task counts.
func (h *TaskHandler) Stats(c echo.Context) error {
	principal, ok := gateway.PrincipalFrom(c)
	if !ok {
		return domain.ErrUnauthorized
	}
	stats, err := h.tasks.Stats(c.Request().Context(), principal.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

func taskID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid task id", domain.ErrInvalidInput)
	}
	return id, nil
}

package service

import (
	"context"
	"fmt"

	"github.com/tasksched/tasksched/internal/domain"
)

// TaskStore defines the task data access interface consumed by TaskService.
type TaskStore interface {
	Create(ctx context.Context, task domain.Task) (*domain.Task, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.Task, error)
	FindByIDAndUser(ctx context.Context, id, userID int64) (*domain.Task, error)
	Update(ctx context.Context, task domain.Task) (*domain.Task, error)
	ToggleDone(ctx context.Context, id, userID int64) (*domain.Task, error)
	Delete(ctx context.Context, id, userID int64) error
	ListByDone(ctx context.Context, userID int64, done bool) ([]domain.Task, error)
	ListByPriority(ctx context.Context, userID int64, priority string) ([]domain.Task, error)
	ListByCategory(ctx context.Context, userID int64, category string) ([]domain.Task, error)
	Stats(ctx context.Context, userID int64) (*domain.TaskStats, error)
}

// TaskService owns the task business rules: defaults, ownership scoping, and
// the create-time reset of the done flag.
type TaskService struct {
	tasks TaskStore
}

// NewTaskService creates a new TaskService.
func NewTaskService(tasks TaskStore) *TaskService {
	return &TaskService{tasks: tasks}
}

// Create stores a new task for the user. New tasks always start not-done,
// and missing priority/category fall back to the defaults.
func (s *TaskService) Create(ctx context.Context, task domain.Task, userID int64) (*domain.Task, error) {
	task.ID = 0
	task.UserID = userID
	task.Done = false
	if task.Priority == "" {
		task.Priority = domain.TaskPriorityMedium
	}
	if task.Category == "" {
		task.Category = domain.TaskDefaultCategory
	}
	return s.tasks.Create(ctx, task)
}

// List returns all of the user's tasks in priority order.
func (s *TaskService) List(ctx context.Context, userID int64) ([]domain.Task, error) {
	return s.tasks.ListByUser(ctx, userID)
}

// Get returns one task owned by the user.
func (s *TaskService) Get(ctx context.Context, id, userID int64) (*domain.Task, error) {
	return s.tasks.FindByIDAndUser(ctx, id, userID)
}

// Update rewrites a task owned by the user, keeping defaults for cleared
// priority/category.
func (s *TaskService) Update(ctx context.Context, id int64, task domain.Task, userID int64) (*domain.Task, error) {
	task.ID = id
	task.UserID = userID
	if task.Priority == "" {
		task.Priority = domain.TaskPriorityMedium
	}
	if task.Category == "" {
		task.Category = domain.TaskDefaultCategory
	}
	return s.tasks.Update(ctx, task)
}

// Toggle flips the done flag of a task owned by the user.
func (s *TaskService) Toggle(ctx context.Context, id, userID int64) (*domain.Task, error) {
	return s.tasks.ToggleDone(ctx, id, userID)
}

// Delete removes a task owned by the user.
func (s *TaskService) Delete(ctx context.Context, id, userID int64) error {
	return s.tasks.Delete(ctx, id, userID)
}

// ListByStatus returns the user's tasks filtered by completion state.
func (s *TaskService) ListByStatus(ctx context.Context, userID int64, done bool) ([]domain.Task, error) {
	return s.tasks.ListByDone(ctx, userID, done)
}

// ListByPriority validates the priority value and returns matching tasks.
func (s *TaskService) ListByPriority(ctx context.Context, userID int64, priority string) ([]domain.Task, error) {
	switch priority {
	case domain.TaskPriorityHigh, domain.TaskPriorityMedium, domain.TaskPriorityLow:
	default:
		return nil, fmt.Errorf("%w: unknown priority %q", domain.ErrInvalidInput, priority)
	}
	return s.tasks.ListByPriority(ctx, userID, priority)
}

// ListByCategory returns the user's tasks in the given category.
func (s *TaskService) ListByCategory(ctx context.Context, userID int64, category string) ([]domain.Task, error) {
	return s.tasks.ListByCategory(ctx, userID, category)
}

// Stats counts the user's tasks by completion state.
func (s *TaskService) Stats(ctx context.Context, userID int64) (*domain.TaskStats, error) {
	return s.tasks.Stats(ctx, userID)
}

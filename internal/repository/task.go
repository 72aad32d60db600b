package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/tasksched/tasksched/internal/domain"
)

const taskColumns = `id, description, start_time, end_time, done, priority, category, notes, user_id, created_at, updated_at`

// Tasks list High before Medium before Low, ties broken by deadline.
const taskOrder = `ORDER BY CASE priority
	WHEN 'High' THEN 1
	WHEN 'Medium' THEN 2
	WHEN 'Low' THEN 3
	ELSE 4 END, end_time`

// TaskRepository handles task row access. Every query is scoped by user_id;
// a row belonging to someone else is indistinguishable from a missing row.
type TaskRepository struct {
	db *sqlx.DB
}

// NewTaskRepository creates a new TaskRepository.
func NewTaskRepository(db *sqlx.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create inserts a new task for the owning user.
func (r *TaskRepository) Create(ctx context.Context, task domain.Task) (*domain.Task, error) {
	var result domain.Task
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO tasks (description, start_time, end_time, done, priority, category, notes, user_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+taskColumns,
		task.Description, task.StartTime, task.EndTime, task.Done,
		task.Priority, task.Category, task.Notes, task.UserID,
	).StructScan(&result)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return &result, nil
}

// ListByUser returns all of the user's tasks in priority order.
func (r *TaskRepository) ListByUser(ctx context.Context, userID int64) ([]domain.Task, error) {
	tasks := []domain.Task{}
	err := r.db.SelectContext(ctx, &tasks,
		`SELECT `+taskColumns+` FROM tasks WHERE user_id = $1 `+taskOrder, userID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// FindByIDAndUser retrieves one task owned by the user.
func (r *TaskRepository) FindByIDAndUser(ctx context.Context, id, userID int64) (*domain.Task, error) {
	var task domain.Task
	err := r.db.GetContext(ctx, &task,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find task %d: %w", id, err)
	}
	return &task, nil
}

// Update rewrites a task owned by the user.
func (r *TaskRepository) Update(ctx context.Context, task domain.Task) (*domain.Task, error) {
	var result domain.Task
	err := r.db.QueryRowxContext(ctx,
		`UPDATE tasks
		 SET description = $3, start_time = $4, end_time = $5, done = $6,
		     priority = $7, category = $8, notes = $9, updated_at = NOW()
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+taskColumns,
		task.ID, task.UserID, task.Description, task.StartTime, task.EndTime,
		task.Done, task.Priority, task.Category, task.Notes,
	).StructScan(&result)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("update task %d: %w", task.ID, err)
	}
	return &result, nil
}

// ToggleDone flips the done flag of a task owned by the user.
func (r *TaskRepository) ToggleDone(ctx context.Context, id, userID int64) (*domain.Task, error) {
	var result domain.Task
	err := r.db.QueryRowxContext(ctx,
		`UPDATE tasks SET done = NOT done, updated_at = NOW()
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+taskColumns, id, userID,
	).StructScan(&result)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("toggle task %d: %w", id, err)
	}
	return &result, nil
}

// Delete removes a task owned by the user.
func (r *TaskRepository) Delete(ctx context.Context, id, userID int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByDone returns the user's tasks filtered by completion state.
func (r *TaskRepository) ListByDone(ctx context.Context, userID int64, done bool) ([]domain.Task, error) {
	tasks := []domain.Task{}
	err := r.db.SelectContext(ctx, &tasks,
		`SELECT `+taskColumns+` FROM tasks WHERE user_id = $1 AND done = $2 `+taskOrder,
		userID, done)
	if err != nil {
		return nil, fmt.Errorf("list tasks by status: %w", err)
	}
	return tasks, nil
}

// ListByPriority returns the user's tasks with the given priority.
func (r *TaskRepository) ListByPriority(ctx context.Context, userID int64, priority string) ([]domain.Task, error) {
	tasks := []domain.Task{}
	err := r.db.SelectContext(ctx, &tasks,
		`SELECT `+taskColumns+` FROM tasks WHERE user_id = $1 AND priority = $2 ORDER BY end_time`,
		userID, priority)
	if err != nil {
		return nil, fmt.Errorf("list tasks by priority: %w", err)
	}
	return tasks, nil
}

// ListByCategory returns the user's tasks in the given category.
func (r *TaskRepository) ListByCategory(ctx context.Context, userID int64, category string) ([]domain.Task, error) {
	tasks := []domain.Task{}
	err := r.db.SelectContext(ctx, &tasks,
		`SELECT `+taskColumns+` FROM tasks WHERE user_id = $1 AND category = $2 `+taskOrder,
		userID, category)
	if err != nil {
		return nil, fmt.Errorf("list tasks by category: %w", err)
	}
	return tasks, nil
}

// Stats counts the user's tasks by completion state.
func (r *TaskRepository) Stats(ctx context.Context, userID int64) (*domain.TaskStats, error) {
	var stats domain.TaskStats
	err := r.db.GetContext(ctx, &stats,
		`SELECT COUNT(*) AS total,
		        COUNT(*) FILTER (WHERE done) AS completed,
		        COUNT(*) FILTER (WHERE NOT done) AS pending
		 FROM tasks WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("task stats: %w", err)
	}
	return &stats, nil
}

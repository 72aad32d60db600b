package domain

import "time"

const (
	TaskPriorityHigh   = "High"
	TaskPriorityMedium = "Medium"
	TaskPriorityLow    = "Low"

	TaskDefaultCategory = "Personal"
)

// Task is one scheduled item, always scoped to the owning user.
type Task struct {
	ID          int64     `json:"id" db:"id"`
	Description string    `json:"description" db:"description"`
	StartTime   time.Time `json:"startTime" db:"start_time"`
	EndTime     time.Time `json:"endTime" db:"end_time"`
	Done        bool      `json:"done" db:"done"`
	Priority    string    `json:"priority" db:"priority"`
	Category    string    `json:"category" db:"category"`
	Notes       *string   `json:"notes,omitempty" db:"notes"`
	UserID      int64     `json:"-" db:"user_id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// TaskStats summarizes one user's tasks.
type TaskStats struct {
	Total     int64 `json:"total" db:"total"`
	Completed int64 `json:"completed" db:"completed"`
	Pending   int64 `json:"pending" db:"pending"`
}

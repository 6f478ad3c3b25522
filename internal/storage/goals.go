package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// UpsertYearlyGoal sets the target for (user, year, media type), creating the
// goal on first use.
func (s *SQLiteStore) UpsertYearlyGoal(ctx context.Context, goal *YearlyGoal) error {
	if goal.ID == "" {
		goal.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO yearly_goals (id, user_id, year, media_type, target)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, year, media_type) DO UPDATE SET
		   target = excluded.target`,
		goal.ID, goal.UserID, goal.Year, string(goal.MediaType), goal.Target,
	)
	if err != nil {
		return fmt.Errorf("upsert yearly goal: %w", err)
	}
	err = s.db.QueryRowContext(ctx,
		"SELECT id, created_at FROM yearly_goals WHERE user_id = ? AND year = ? AND media_type = ?",
		goal.UserID, goal.Year, string(goal.MediaType),
	).Scan(&goal.ID, &goal.CreatedAt)
	if err != nil {
		return fmt.Errorf("reload yearly goal: %w", err)
	}
	return nil
}

// ListYearlyGoals returns the user's goals for a year.
func (s *SQLiteStore) ListYearlyGoals(ctx context.Context, userID string, year int) ([]YearlyGoal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, year, media_type, target, created_at
		 FROM yearly_goals WHERE user_id = ? AND year = ? ORDER BY media_type`,
		userID, year,
	)
	if err != nil {
		return nil, fmt.Errorf("list yearly goals: %w", err)
	}
	defer rows.Close()

	var goals []YearlyGoal
	for rows.Next() {
		var g YearlyGoal
		var mt string
		if err := rows.Scan(&g.ID, &g.UserID, &g.Year, &mt, &g.Target, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan yearly goal: %w", err)
		}
		g.MediaType = MediaType(mt)
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

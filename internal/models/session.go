package models

import "time"

// TrainingSession is one industrial-training intake (e.g. "Sesi 2 2025/2026").
// Every application belongs to exactly one session; the session's assigned
// coordinator is the only reviewer authorised for its applications.
type TrainingSession struct {
	ID            string     `db:"id" json:"id"`
	Name          string     `db:"name" json:"name"`
	CoordinatorID string     `db:"coordinator_id" json:"coordinatorId"`
	StartDate     time.Time  `db:"start_date" json:"startDate"`
	EndDate       time.Time  `db:"end_date" json:"endDate"`
	Active        bool       `db:"active" json:"active"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updatedAt"`
	ArchivedAt    *time.Time `db:"archived_at" json:"archivedAt,omitempty"`
}

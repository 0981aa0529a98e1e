package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"remote-lab-api/internal/model"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

var (
	ErrScheduleNotFound = errors.New("schedule not found")
)

// ScheduleRepository is an interface for interacting with session bookings.
type ScheduleRepository interface {
	CreateSchedule(ctx context.Context, schedule model.Schedule) error
	GetScheduleByID(ctx context.Context, id uuid.UUID) (*model.Schedule, error)
	GetAllSchedules(ctx context.Context) ([]model.Schedule, error)
	GetApprovedSchedulesByEmail(ctx context.Context, email string) ([]model.Schedule, error)
	GetSchedulesByStatuses(ctx context.Context, statuses []model.ScheduleStatus) ([]model.Schedule, error)
	UpdateScheduleStatus(ctx context.Context, id uuid.UUID, status model.ScheduleStatus) error
	ApproveSchedule(ctx context.Context, id uuid.UUID, computerID uuid.UUID, rdpPort int, password string) error
	IsTimeSlotAvailable(ctx context.Context, start, end time.Time, excludeID uuid.UUID) (bool, error)
}

type scheduleRepository struct {
	DB *sql.DB
}

// NewScheduleRepository creates a new ScheduleRepository.
func NewScheduleRepository(db *sql.DB) ScheduleRepository {
	return &scheduleRepository{DB: db}
}

const scheduleColumns = `id, email, user_name, start_time, end_time, status, computer_id, password, rdp_port, created_at, updated_at`

func scanSchedule(row interface{ Scan(...interface{}) error }) (*model.Schedule, error) {
	var s model.Schedule
	var computerID uuid.NullUUID
	var password sql.NullString
	var rdpPort sql.NullInt64

	err := row.Scan(&s.ID, &s.Email, &s.UserName, &s.StartTime, &s.EndTime, &s.Status,
		&computerID, &password, &rdpPort, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if computerID.Valid {
		id := computerID.UUID
		s.ComputerID = &id
	}
	s.Password = password.String
	s.RDPPort = int(rdpPort.Int64)

	return &s, nil
}

// CreateSchedule persists a new pending booking. Bookings are append-only;
// cancellation is a status transition, not a delete.
func (r *scheduleRepository) CreateSchedule(ctx context.Context, schedule model.Schedule) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
		INSERT INTO schedules (id, email, user_name, start_time, end_time, status)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.DB.ExecContext(ctx, query,
		schedule.ID,
		schedule.Email,
		schedule.UserName,
		schedule.StartTime,
		schedule.EndTime,
		schedule.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to create schedule: %w", err)
	}

	return nil
}

// GetScheduleByID retrieves a single schedule by its ID.
func (r *scheduleRepository) GetScheduleByID(ctx context.Context, id uuid.UUID) (*model.Schedule, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE id = $1`

	s, err := scanSchedule(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrScheduleNotFound
		}
		return nil, fmt.Errorf("failed to get schedule by ID: %w", err)
	}
	return s, nil
}

// GetAllSchedules retrieves every schedule, newest first.
func (r *scheduleRepository) GetAllSchedules(ctx context.Context) ([]model.Schedule, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	query := `SELECT ` + scheduleColumns + ` FROM schedules ORDER BY start_time DESC`

	return r.querySchedules(ctx, query)
}

// GetApprovedSchedulesByEmail retrieves upcoming approved or active sessions
// for one requester. Used by the client UI.
func (r *scheduleRepository) GetApprovedSchedulesByEmail(ctx context.Context, email string) ([]model.Schedule, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	query := `SELECT ` + scheduleColumns + ` FROM schedules
		WHERE email = $1 AND status IN ('approved', 'active')
		ORDER BY start_time`

	return r.querySchedules(ctx, query, email)
}

// GetSchedulesByStatuses retrieves schedules in any of the given states.
// Used by startup recovery to rebuild timers and the port exclusion set.
func (r *scheduleRepository) GetSchedulesByStatuses(ctx context.Context, statuses []model.ScheduleStatus) ([]model.Schedule, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}

	query := `SELECT ` + scheduleColumns + ` FROM schedules
		WHERE status = ANY($1)
		ORDER BY start_time`

	return r.querySchedules(ctx, query, pq.Array(names))
}

func (r *scheduleRepository) querySchedules(ctx context.Context, query string, args ...interface{}) ([]model.Schedule, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}
	defer rows.Close()

	var schedules []model.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		schedules = append(schedules, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return schedules, nil
}

// UpdateScheduleStatus transitions a schedule's lifecycle state.
func (r *scheduleRepository) UpdateScheduleStatus(ctx context.Context, id uuid.UUID, status model.ScheduleStatus) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `UPDATE schedules SET status = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`

	result, err := r.DB.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("failed to update schedule status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrScheduleNotFound
	}

	return nil
}

// ApproveSchedule records the approval fields in one write: assigned computer,
// RDP forwarding port and the one-time session password.
func (r *scheduleRepository) ApproveSchedule(ctx context.Context, id uuid.UUID, computerID uuid.UUID, rdpPort int, password string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
		UPDATE schedules
		SET status = 'approved', computer_id = $1, rdp_port = $2, password = $3, updated_at = CURRENT_TIMESTAMP
		WHERE id = $4`

	result, err := r.DB.ExecContext(ctx, query, computerID, rdpPort, password, id)
	if err != nil {
		return fmt.Errorf("failed to approve schedule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrScheduleNotFound
	}

	return nil
}

// IsTimeSlotAvailable reports whether the half-open interval [start,end) is
// free of approved/active bookings. Two intervals conflict iff
// s1 < e2 AND s2 < e1; shared boundary instants do not conflict. excludeID
// (uuid.Nil for none) skips one schedule, used when re-checking at approval.
func (r *scheduleRepository) IsTimeSlotAvailable(ctx context.Context, start, end time.Time, excludeID uuid.UUID) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
		SELECT COUNT(*) FROM schedules
		WHERE status IN ('approved', 'active')
		AND start_time < $2 AND end_time > $1
		AND id <> $3`

	var conflicts int
	if err := r.DB.QueryRowContext(ctx, query, start, end, excludeID).Scan(&conflicts); err != nil {
		return false, fmt.Errorf("failed to check time slot availability: %w", err)
	}

	return conflicts == 0, nil
}

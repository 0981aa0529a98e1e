package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"remote-lab-api/internal/model"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

var (
	ErrCommandNotFound = errors.New("command not found")
	// ErrUnknownComputer is returned when a command targets a computer that
	// does not exist (foreign key violation on insert).
	ErrUnknownComputer = errors.New("command targets unknown computer")
)

// CommandRepository is the durable mailbox of work items per computer.
type CommandRepository interface {
	CreateCommand(ctx context.Context, command model.Command) error
	GetCommandByID(ctx context.Context, id uuid.UUID) (*model.Command, error)
	GetAllCommands(ctx context.Context) ([]model.Command, error)
	// ClaimPendingCommands returns pending commands oldest-created-first
	// (optionally scoped to one computer) and marks every returned item
	// executing in the same call. Delivery is at-least-once.
	ClaimPendingCommands(ctx context.Context, computerID *uuid.UUID) ([]model.Command, error)
	MarkCommandCompleted(ctx context.Context, id uuid.UUID, result string) error
	MarkCommandFailed(ctx context.Context, id uuid.UUID, errorText string) error
	PurgeTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type commandRepository struct {
	DB *sql.DB
}

// NewCommandRepository creates a new CommandRepository.
func NewCommandRepository(db *sql.DB) CommandRepository {
	return &commandRepository{DB: db}
}

const commandColumns = `id, computer_id, action, parameters, status, result, error, created_at, updated_at, executed_at, completed_at`

func scanCommand(row interface{ Scan(...interface{}) error }) (*model.Command, error) {
	var c model.Command
	var params []byte
	var result, errText sql.NullString
	var executedAt, completedAt sql.NullTime

	err := row.Scan(&c.ID, &c.ComputerID, &c.Action, &params, &c.Status,
		&result, &errText, &c.CreatedAt, &c.UpdatedAt, &executedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	if len(params) > 0 {
		if err := json.Unmarshal(params, &c.Parameters); err != nil {
			return nil, fmt.Errorf("failed to decode command parameters: %w", err)
		}
	}
	c.Result = result.String
	c.Error = errText.String
	if executedAt.Valid {
		t := executedAt.Time
		c.ExecutedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		c.CompletedAt = &t
	}

	return &c, nil
}

// CreateCommand appends a new pending command for a computer.
func (r *commandRepository) CreateCommand(ctx context.Context, command model.Command) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	params, err := json.Marshal(command.Parameters)
	if err != nil {
		return fmt.Errorf("failed to encode command parameters: %w", err)
	}

	query := `
		INSERT INTO commands (id, computer_id, action, parameters, status)
		VALUES ($1, $2, $3, $4, $5)`

	_, err = r.DB.ExecContext(ctx, query,
		command.ID,
		command.ComputerID,
		command.Action,
		params,
		command.Status,
	)
	if err != nil {
		if strings.Contains(err.Error(), "violates foreign key constraint") {
			return fmt.Errorf("%w: %s", ErrUnknownComputer, command.ComputerID)
		}
		return fmt.Errorf("failed to create command: %w", err)
	}

	return nil
}

// GetCommandByID retrieves a single command by its ID.
func (r *commandRepository) GetCommandByID(ctx context.Context, id uuid.UUID) (*model.Command, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `SELECT ` + commandColumns + ` FROM commands WHERE id = $1`

	c, err := scanCommand(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrCommandNotFound
		}
		return nil, fmt.Errorf("failed to get command by ID: %w", err)
	}
	return c, nil
}

// GetAllCommands retrieves every command, newest first. Operator audit view.
func (r *commandRepository) GetAllCommands(ctx context.Context) ([]model.Command, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	query := `SELECT ` + commandColumns + ` FROM commands ORDER BY created_at DESC`

	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query commands: %w", err)
	}
	defer rows.Close()

	return collectCommands(rows)
}

// ClaimPendingCommands selects pending commands FIFO per computer and flips
// them to executing before returning. A crash between the update and the
// agent finishing its work loses the delivery; every command action must
// therefore be idempotent.
func (r *commandRepository) ClaimPendingCommands(ctx context.Context, computerID *uuid.UUID) ([]model.Command, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	query := `SELECT ` + commandColumns + ` FROM commands WHERE status = 'pending'`
	var args []interface{}
	if computerID != nil {
		query += ` AND computer_id = $1`
		args = append(args, *computerID)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending commands: %w", err)
	}
	defer rows.Close()

	commands, err := collectCommands(rows)
	if err != nil {
		return nil, err
	}
	if len(commands) == 0 {
		return commands, nil
	}

	ids := make([]string, len(commands))
	for i, c := range commands {
		ids[i] = c.ID.String()
	}

	now := time.Now()
	update := `
		UPDATE commands
		SET status = 'executing', executed_at = $1, updated_at = $1
		WHERE id = ANY($2)`

	if _, err := r.DB.ExecContext(ctx, update, now, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to mark commands executing: %w", err)
	}

	for i := range commands {
		commands[i].Status = model.CommandExecuting
		t := now
		commands[i].ExecutedAt = &t
		commands[i].UpdatedAt = now
	}

	return commands, nil
}

// MarkCommandCompleted records a successful outcome. Duplicate reports against
// a terminal command are tolerated and not re-applied.
func (r *commandRepository) MarkCommandCompleted(ctx context.Context, id uuid.UUID, result string) error {
	return r.finishCommand(ctx, id, model.CommandCompleted, result, "")
}

// MarkCommandFailed records a failed outcome. Idempotent like MarkCommandCompleted.
func (r *commandRepository) MarkCommandFailed(ctx context.Context, id uuid.UUID, errorText string) error {
	return r.finishCommand(ctx, id, model.CommandFailed, "", errorText)
}

func (r *commandRepository) finishCommand(ctx context.Context, id uuid.UUID, status model.CommandStatus, result, errorText string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// Status is monotonic: terminal rows never transition again.
	query := `
		UPDATE commands
		SET status = $1, result = $2, error = $3, completed_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = $4 AND status IN ('pending', 'executing')`

	res, err := r.DB.ExecContext(ctx, query, status, result, errorText, id)
	if err != nil {
		return fmt.Errorf("failed to finish command: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	// No row updated: either the command is unknown or already terminal.
	var exists bool
	check := `SELECT EXISTS(SELECT 1 FROM commands WHERE id = $1)`
	if err := r.DB.QueryRowContext(ctx, check, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check command existence: %w", err)
	}
	if !exists {
		return ErrCommandNotFound
	}
	return nil
}

// PurgeTerminalBefore deletes completed/failed commands whose completion is
// older than the cutoff. Returns the number of rows removed.
func (r *commandRepository) PurgeTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	query := `
		DELETE FROM commands
		WHERE status IN ('completed', 'failed') AND completed_at < $1`

	result, err := r.DB.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge commands: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

func collectCommands(rows *sql.Rows) ([]model.Command, error) {
	var commands []model.Command
	for rows.Next() {
		c, err := scanCommand(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan command: %w", err)
		}
		commands = append(commands, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return commands, nil
}

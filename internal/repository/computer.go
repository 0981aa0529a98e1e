package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"remote-lab-api/internal/model"

	"github.com/google/uuid"
)

// Custom errors for better error handling
var (
	ErrComputerNotFound = errors.New("computer not found")
)

// ComputerRepository is an interface for interacting with lab computer data.
type ComputerRepository interface {
	CreateComputer(ctx context.Context, computer model.Computer) error
	GetAllComputers(ctx context.Context) ([]model.Computer, error)
	GetComputerByID(ctx context.Context, id uuid.UUID) (*model.Computer, error)
	UpdateComputer(ctx context.Context, id uuid.UUID, computer model.Computer) error
	UpdateComputerStatus(ctx context.Context, id uuid.UUID, status model.ComputerStatus) error
	DeleteComputer(ctx context.Context, id uuid.UUID) error
}

// computerRepository is the concrete postgres implementation.
type computerRepository struct {
	DB *sql.DB
}

// NewComputerRepository creates a new ComputerRepository.
func NewComputerRepository(db *sql.DB) ComputerRepository {
	return &computerRepository{DB: db}
}

const computerColumns = `id, name, ip_address, agent_port, rdp_port, status, description, created_at, updated_at`

func scanComputer(row interface{ Scan(...interface{}) error }) (*model.Computer, error) {
	var c model.Computer
	err := row.Scan(&c.ID, &c.Name, &c.IPAddress, &c.AgentPort, &c.RDPPort, &c.Status, &c.Description, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateComputer registers a new lab computer.
func (r *computerRepository) CreateComputer(ctx context.Context, computer model.Computer) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
		INSERT INTO computers (id, name, ip_address, agent_port, rdp_port, status, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.DB.ExecContext(ctx, query,
		computer.ID,
		computer.Name,
		computer.IPAddress,
		computer.AgentPort,
		computer.RDPPort,
		computer.Status,
		computer.Description,
	)
	if err != nil {
		return fmt.Errorf("failed to create computer: %w", err)
	}

	return nil
}

// GetAllComputers retrieves all lab computers ordered by name.
func (r *computerRepository) GetAllComputers(ctx context.Context) ([]model.Computer, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	query := `SELECT ` + computerColumns + ` FROM computers ORDER BY name`

	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query computers: %w", err)
	}
	defer rows.Close()

	var computers []model.Computer
	for rows.Next() {
		c, err := scanComputer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan computer: %w", err)
		}
		computers = append(computers, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return computers, nil
}

// GetComputerByID retrieves a single computer by its ID.
func (r *computerRepository) GetComputerByID(ctx context.Context, id uuid.UUID) (*model.Computer, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `SELECT ` + computerColumns + ` FROM computers WHERE id = $1`

	c, err := scanComputer(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrComputerNotFound
		}
		return nil, fmt.Errorf("failed to get computer by ID: %w", err)
	}
	return c, nil
}

// UpdateComputer updates a computer's registration fields. Status is not
// touched here; it moves through UpdateComputerStatus only.
func (r *computerRepository) UpdateComputer(ctx context.Context, id uuid.UUID, computer model.Computer) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
		UPDATE computers
		SET name = $1, ip_address = $2, agent_port = $3, rdp_port = $4, description = $5, updated_at = CURRENT_TIMESTAMP
		WHERE id = $6`

	result, err := r.DB.ExecContext(ctx, query,
		computer.Name,
		computer.IPAddress,
		computer.AgentPort,
		computer.RDPPort,
		computer.Description,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update computer: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrComputerNotFound
	}

	return nil
}

// UpdateComputerStatus moves a computer between available/busy/maintenance.
func (r *computerRepository) UpdateComputerStatus(ctx context.Context, id uuid.UUID, status model.ComputerStatus) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `UPDATE computers SET status = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`

	result, err := r.DB.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("failed to update computer status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrComputerNotFound
	}

	return nil
}

// DeleteComputer removes a computer from the pool.
func (r *computerRepository) DeleteComputer(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `DELETE FROM computers WHERE id = $1`

	result, err := r.DB.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete computer: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrComputerNotFound
	}

	return nil
}

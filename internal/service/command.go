package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"remote-lab-api/internal/model"
	"remote-lab-api/internal/notify"
	"remote-lab-api/internal/repository"
	apperrors "remote-lab-api/pkg/errors"
	"remote-lab-api/pkg/validation"

	"github.com/google/uuid"
)

// CommandService owns the durable command queue between the API and the
// polling agents. Agents sit behind NAT, so all delivery is pull-based: the
// agent claims pending work and reports terminal outcomes back.
type CommandService struct {
	commands  repository.CommandRepository
	computers repository.ComputerRepository
	bus       notify.Bus
	logger    *log.Logger
	retention time.Duration
}

// NewCommandService creates a CommandService.
func NewCommandService(
	commands repository.CommandRepository,
	computers repository.ComputerRepository,
	bus notify.Bus,
	logger *log.Logger,
	retention time.Duration,
) *CommandService {
	if logger == nil {
		logger = log.Default()
	}
	return &CommandService{
		commands:  commands,
		computers: computers,
		bus:       bus,
		logger:    logger,
		retention: retention,
	}
}

// Enqueue appends a pending command for a computer and returns it.
func (s *CommandService) Enqueue(ctx context.Context, computerID uuid.UUID, action string, params map[string]string) (*model.Command, error) {
	if err := validation.ValidateCommandAction(action); err != nil {
		return nil, apperrors.ValidationError(err.Error())
	}

	if _, err := s.computers.GetComputerByID(ctx, computerID); err != nil {
		if errors.Is(err, repository.ErrComputerNotFound) {
			return nil, apperrors.NotFoundError("computer")
		}
		return nil, apperrors.DatabaseError("failed to look up computer", err)
	}

	command := model.Command{
		ID:         uuid.New(),
		ComputerID: computerID,
		Action:     action,
		Parameters: params,
		Status:     model.CommandPending,
	}

	if err := s.commands.CreateCommand(ctx, command); err != nil {
		if errors.Is(err, repository.ErrUnknownComputer) {
			return nil, apperrors.NotFoundError("computer")
		}
		return nil, apperrors.DatabaseError("failed to enqueue command", err)
	}

	s.logger.Printf("Enqueued command %s (%s) for computer %s", command.ID, action, computerID)
	return &command, nil
}

// Poll hands pending commands to an agent, oldest first, and marks them
// executing. computerID nil returns work for the whole fleet.
func (s *CommandService) Poll(ctx context.Context, computerID *uuid.UUID) ([]model.Command, error) {
	commands, err := s.commands.ClaimPendingCommands(ctx, computerID)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to claim pending commands", err)
	}
	if commands == nil {
		commands = []model.Command{}
	}
	return commands, nil
}

// Report records the terminal outcome an agent observed for a command. Only
// completed and failed are accepted; duplicate reports are a no-op.
func (s *CommandService) Report(ctx context.Context, id uuid.UUID, status model.CommandStatus, result, errorText string) error {
	var err error
	switch status {
	case model.CommandCompleted:
		err = s.commands.MarkCommandCompleted(ctx, id, result)
	case model.CommandFailed:
		err = s.commands.MarkCommandFailed(ctx, id, errorText)
	default:
		return apperrors.ValidationError(fmt.Sprintf("status must be completed or failed, got %q", status))
	}

	if err != nil {
		if errors.Is(err, repository.ErrCommandNotFound) {
			return apperrors.NotFoundError("command")
		}
		return apperrors.DatabaseError("failed to record command result", err)
	}

	if status == model.CommandFailed {
		s.logger.Printf("Command %s failed: %s", id, errorText)
		if s.bus != nil {
			s.bus.Publish(notify.NewEvent(notify.EventCommandFailed, map[string]string{
				"command_id": id.String(),
				"error":      errorText,
			}))
		}
	}

	return nil
}

// Get retrieves one command by ID.
func (s *CommandService) Get(ctx context.Context, id uuid.UUID) (*model.Command, error) {
	command, err := s.commands.GetCommandByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrCommandNotFound) {
			return nil, apperrors.NotFoundError("command")
		}
		return nil, apperrors.DatabaseError("failed to get command", err)
	}
	return command, nil
}

// List returns every command, newest first.
func (s *CommandService) List(ctx context.Context) ([]model.Command, error) {
	commands, err := s.commands.GetAllCommands(ctx)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to list commands", err)
	}
	if commands == nil {
		commands = []model.Command{}
	}
	return commands, nil
}

// PurgeExpired removes terminal commands older than the retention window.
func (s *CommandService) PurgeExpired(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-s.retention)
	purged, err := s.commands.PurgeTerminalBefore(ctx, cutoff)
	if err != nil {
		return 0, apperrors.DatabaseError("failed to purge commands", err)
	}
	if purged > 0 {
		s.logger.Printf("Purged %d terminal commands older than %s", purged, cutoff.Format(time.RFC3339))
	}
	return purged, nil
}

// RunRetentionSweeper purges expired commands on a fixed interval until the
// context is cancelled. Run it on its own goroutine.
func (s *CommandService) RunRetentionSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.PurgeExpired(ctx); err != nil {
				s.logger.Printf("Retention sweep failed: %v", err)
			}
		}
	}
}

package model

import (
	"time"

	"github.com/google/uuid"
)

// CommandStatus is the delivery state of a queued work item. Status only
// advances pending -> executing -> {completed, failed}; terminal commands
// never transition again.
type CommandStatus string

const (
	CommandPending   CommandStatus = "pending"
	CommandExecuting CommandStatus = "executing"
	CommandCompleted CommandStatus = "completed"
	CommandFailed    CommandStatus = "failed"
)

// Terminal reports whether the status is a final state.
func (s CommandStatus) Terminal() bool {
	return s == CommandCompleted || s == CommandFailed
}

// Well-known command actions dispatched to the remote agent. Agents must treat
// every action as idempotent: the queue guarantees at-least-once delivery only.
const (
	ActionPing           = "ping"
	ActionCreateUser     = "create_user"
	ActionGrantRDPAccess = "grant_rdp_access"
	ActionCreateTunnel   = "create_tunnel"
	ActionMessageUser    = "message_user"
	ActionDeleteUser     = "delete_user"
	ActionRestart        = "restart"
)

// Command is one unit of remote work targeting a single computer. The agent
// on that computer polls for pending commands and reports a terminal outcome.
type Command struct {
	ID          uuid.UUID         `json:"id"`
	ComputerID  uuid.UUID         `json:"computer_id"`
	Action      string            `json:"action"`
	Parameters  map[string]string `json:"parameters,omitempty"`
	Status      CommandStatus     `json:"status"`
	Result      string            `json:"result,omitempty"`
	Error       string            `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	ExecutedAt  *time.Time        `json:"executed_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

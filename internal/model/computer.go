package model

import (
	"time"

	"github.com/google/uuid"
)

// ComputerStatus is the operational state of a lab computer.
type ComputerStatus string

const (
	ComputerAvailable   ComputerStatus = "available"
	ComputerBusy        ComputerStatus = "busy"
	ComputerMaintenance ComputerStatus = "maintenance"
)

// Valid reports whether the status is one of the known computer states.
func (s ComputerStatus) Valid() bool {
	switch s {
	case ComputerAvailable, ComputerBusy, ComputerMaintenance:
		return true
	}
	return false
}

// Computer represents a shared physical lab machine. The machine sits behind
// NAT; AgentPort and RDPPort are the two externally reachable forwarded ports
// (agent control and remote desktop respectively).
type Computer struct {
	ID          uuid.UUID      `json:"id"`
	Name        string         `json:"name"`
	IPAddress   string         `json:"ip_address"`
	AgentPort   int            `json:"agent_port"`
	RDPPort     int            `json:"rdp_port"`
	Status      ComputerStatus `json:"status"`
	Description string         `json:"description,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

package validation

import (
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"remote-lab-api/internal/model"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// ValidateEmail validates a requester email address.
func ValidateEmail(email string) error {
	if strings.TrimSpace(email) == "" {
		return fmt.Errorf("email is required")
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

// ValidateInterval validates a half-open booking interval [start,end).
func ValidateInterval(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return fmt.Errorf("start time and end time are required")
	}
	if !start.Before(end) {
		return fmt.Errorf("start time must be before end time")
	}
	return nil
}

// ValidateIP validates an IP address format (IPv4 or IPv6)
func ValidateIP(ip string) error {
	if net.ParseIP(ip) == nil {
		return fmt.Errorf("invalid IP address format: %s", ip)
	}
	return nil
}

// ValidatePort validates a TCP port number.
func ValidatePort(name string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535", name)
	}
	return nil
}

// ValidateComputerName validates a lab computer name.
func ValidateComputerName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("computer name is required")
	}
	if len(name) > 255 {
		return fmt.Errorf("computer name cannot exceed 255 characters")
	}
	return nil
}

// ValidateComputerInput validates all required fields for registering a lab computer.
func ValidateComputerInput(computer *model.Computer) []string {
	var errors []string

	if err := ValidateComputerName(computer.Name); err != nil {
		errors = append(errors, err.Error())
	}
	if err := ValidateIP(computer.IPAddress); err != nil {
		errors = append(errors, err.Error())
	}
	if err := ValidatePort("agent port", computer.AgentPort); err != nil {
		errors = append(errors, err.Error())
	}
	if err := ValidatePort("rdp port", computer.RDPPort); err != nil {
		errors = append(errors, err.Error())
	}
	if computer.Status != "" && !computer.Status.Valid() {
		errors = append(errors, fmt.Sprintf("invalid computer status: %s", computer.Status))
	}

	return errors
}

// ValidateScheduleRequest validates a booking request before it is persisted.
func ValidateScheduleRequest(email string, start, end time.Time) []string {
	var errors []string

	if err := ValidateEmail(email); err != nil {
		errors = append(errors, err.Error())
	}
	if err := ValidateInterval(start, end); err != nil {
		errors = append(errors, err.Error())
	}

	return errors
}

// ValidateCommandAction validates the action verb of a queued command.
// Actions are opaque to the queue; only presence and length are enforced.
func ValidateCommandAction(action string) error {
	if strings.TrimSpace(action) == "" {
		return fmt.Errorf("command action is required")
	}
	if len(action) > 64 {
		return fmt.Errorf("command action cannot exceed 64 characters")
	}
	return nil
}

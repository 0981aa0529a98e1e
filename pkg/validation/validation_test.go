package validation

import (
	"strings"
	"testing"
	"time"

	"remote-lab-api/internal/model"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name        string
		email       string
		expectError bool
	}{
		{
			name:        "Valid email",
			email:       "alice@example.com",
			expectError: false,
		},
		{
			name:        "Valid email with plus tag",
			email:       "alice+lab@example.com",
			expectError: false,
		},
		{
			name:        "Valid email with subdomain",
			email:       "alice@mail.lab.example.com",
			expectError: false,
		},
		{
			name:        "Empty email",
			email:       "",
			expectError: true,
		},
		{
			name:        "Whitespace only",
			email:       "   ",
			expectError: true,
		},
		{
			name:        "Missing domain",
			email:       "alice@",
			expectError: true,
		},
		{
			name:        "Missing TLD",
			email:       "alice@example",
			expectError: true,
		},
		{
			name:        "Missing local part",
			email:       "@example.com",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail(tt.email)

			if tt.expectError && err == nil {
				t.Errorf("Expected error for email %q, got none", tt.email)
			}
			if !tt.expectError && err != nil {
				t.Errorf("Unexpected error for email %q: %v", tt.email, err)
			}
		})
	}
}

func TestValidateInterval(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name        string
		start       time.Time
		end         time.Time
		expectError bool
	}{
		{
			name:        "Valid interval",
			start:       now,
			end:         now.Add(time.Hour),
			expectError: false,
		},
		{
			name:        "Zero start",
			start:       time.Time{},
			end:         now,
			expectError: true,
		},
		{
			name:        "Zero end",
			start:       now,
			end:         time.Time{},
			expectError: true,
		},
		{
			name:        "Start equals end",
			start:       now,
			end:         now,
			expectError: true,
		},
		{
			name:        "Start after end",
			start:       now.Add(time.Hour),
			end:         now,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateInterval(tt.start, tt.end)

			if tt.expectError && err == nil {
				t.Error("Expected error, got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestValidateIP(t *testing.T) {
	tests := []struct {
		name        string
		ip          string
		expectError bool
	}{
		{
			name:        "Valid IPv4",
			ip:          "192.168.1.100",
			expectError: false,
		},
		{
			name:        "Valid IPv6",
			ip:          "2001:db8::1",
			expectError: false,
		},
		{
			name:        "Invalid IP",
			ip:          "999.999.999.999",
			expectError: true,
		},
		{
			name:        "Not an IP",
			ip:          "not-an-ip",
			expectError: true,
		},
		{
			name:        "Empty IP",
			ip:          "",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIP(tt.ip)

			if tt.expectError && err == nil {
				t.Errorf("Expected error for IP %q, got none", tt.ip)
			}
			if !tt.expectError && err != nil {
				t.Errorf("Unexpected error for IP %q: %v", tt.ip, err)
			}
		})
	}
}

func TestValidatePort(t *testing.T) {
	tests := []struct {
		name        string
		port        int
		expectError bool
	}{
		{"Valid low port", 1, false},
		{"Valid RDP port", 3389, false},
		{"Valid high port", 65535, false},
		{"Zero port", 0, true},
		{"Negative port", -1, true},
		{"Port too large", 65536, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePort("port", tt.port)

			if tt.expectError && err == nil {
				t.Errorf("Expected error for port %d, got none", tt.port)
			}
			if !tt.expectError && err != nil {
				t.Errorf("Unexpected error for port %d: %v", tt.port, err)
			}
		})
	}
}

func TestValidateComputerInput(t *testing.T) {
	valid := model.Computer{
		Name:      "lab-pc-01",
		IPAddress: "10.0.0.10",
		AgentPort: 9000,
		RDPPort:   3389,
		Status:    model.ComputerAvailable,
	}

	t.Run("Valid computer", func(t *testing.T) {
		computer := valid
		if errs := ValidateComputerInput(&computer); len(errs) > 0 {
			t.Errorf("Unexpected validation errors: %v", errs)
		}
	})

	t.Run("Missing name and bad IP", func(t *testing.T) {
		computer := valid
		computer.Name = ""
		computer.IPAddress = "bad"

		errs := ValidateComputerInput(&computer)
		if len(errs) != 2 {
			t.Errorf("Expected 2 validation errors, got %d: %v", len(errs), errs)
		}
	})

	t.Run("Invalid status", func(t *testing.T) {
		computer := valid
		computer.Status = "broken"

		errs := ValidateComputerInput(&computer)
		if len(errs) != 1 {
			t.Errorf("Expected 1 validation error, got %d: %v", len(errs), errs)
		}
	})
}

func TestValidateScheduleRequest(t *testing.T) {
	now := time.Now()

	t.Run("Valid request", func(t *testing.T) {
		if errs := ValidateScheduleRequest("alice@example.com", now, now.Add(time.Hour)); len(errs) > 0 {
			t.Errorf("Unexpected validation errors: %v", errs)
		}
	})

	t.Run("Bad email and inverted interval", func(t *testing.T) {
		errs := ValidateScheduleRequest("nope", now.Add(time.Hour), now)
		if len(errs) != 2 {
			t.Errorf("Expected 2 validation errors, got %d: %v", len(errs), errs)
		}
	})
}

func TestValidateCommandAction(t *testing.T) {
	tests := []struct {
		name        string
		action      string
		expectError bool
	}{
		{"Known action", model.ActionCreateUser, false},
		{"Custom action", "defrag_disk", false},
		{"Empty action", "", true},
		{"Whitespace action", "  ", true},
		{"Overlong action", strings.Repeat("x", 65), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCommandAction(tt.action)

			if tt.expectError && err == nil {
				t.Errorf("Expected error for action %q, got none", tt.action)
			}
			if !tt.expectError && err != nil {
				t.Errorf("Unexpected error for action %q: %v", tt.action, err)
			}
		})
	}
}

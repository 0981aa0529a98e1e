package integration

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"remote-lab-api/internal/auth"
	"remote-lab-api/internal/config"
	"remote-lab-api/internal/database"
	"remote-lab-api/internal/handler"
	"remote-lab-api/internal/mailer"
	"remote-lab-api/internal/model"
	"remote-lab-api/internal/notify"
	"remote-lab-api/internal/ports"
	"remote-lab-api/internal/repository"
	"remote-lab-api/internal/router"
	"remote-lab-api/internal/service"
	"remote-lab-api/internal/timer"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testAdminEmail    = "admin@lab.example.com"
	testAdminPassword = "integration-secret"
)

// IntegrationTestSuite holds the wired application stack for black-box tests
// against a real Postgres instance.
type IntegrationTestSuite struct {
	DB     *sql.DB
	Router http.Handler
	Config *config.Config

	timers *timer.Scheduler
	relay  *httptest.Server
}

// setupIntegrationTest wires the full stack the way cmd/api does, with the
// mail relay replaced by a local stub. Tests are skipped when no database is
// reachable.
func setupIntegrationTest(t *testing.T) *IntegrationTestSuite {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := loadTestConfig(t)
	db := initTestDatabase(t, cfg)
	cleanDatabase(t, db)
	seedAdminUser(t, db)

	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	cfg.Mailer.URL = relay.URL

	logger := log.New(os.Stdout, "[integration] ", log.LstdFlags)

	scheduleRepo := repository.NewScheduleRepository(db)
	computerRepo := repository.NewComputerRepository(db)
	commandRepo := repository.NewCommandRepository(db)
	userRepo := repository.NewUserRepository(db)

	portAllocator, err := ports.NewAllocator(cfg.Lab.RDPPortMin, cfg.Lab.RDPPortMax)
	require.NoError(t, err)

	timers := timer.NewScheduler(logger)
	hub := notify.NewHub(logger)

	mailClient := mailer.NewClient(mailer.Config{
		URL:            cfg.Mailer.URL,
		Timeout:        cfg.Mailer.Timeout,
		RetryAttempts:  cfg.Mailer.RetryAttempts,
		RetryDelay:     cfg.Mailer.RetryDelay,
		MaxPayloadSize: cfg.Mailer.MaxPayloadSize,
	}, logger)

	commandSvc := service.NewCommandService(commandRepo, computerRepo, hub, logger, cfg.Lab.CommandRetention)
	scheduleSvc := service.NewScheduleService(scheduleRepo, computerRepo, commandSvc,
		portAllocator, timers, hub, mailClient, logger, cfg.Lab, cfg.Mailer.AdminEmail)

	require.NoError(t, scheduleSvc.Recover(context.Background()))

	tokens := auth.NewTokenManager(cfg.Security.JWTSecret, cfg.Security.TokenTTL)

	handlers := router.Handlers{
		Schedule: handler.NewScheduleHandler(scheduleSvc, logger),
		Computer: handler.NewComputerHandler(computerRepo, logger),
		Command:  handler.NewCommandHandler(commandSvc, logger),
		Auth:     handler.NewAuthHandler(userRepo, tokens, logger),
		Events:   handler.NewEventsHandler(hub, logger),
	}

	return &IntegrationTestSuite{
		DB:     db,
		Router: router.NewRouter(handlers, tokens, cfg, logger),
		Config: cfg,
		timers: timers,
		relay:  relay,
	}
}

func teardownIntegrationTest(t *testing.T, suite *IntegrationTestSuite) {
	t.Helper()
	suite.timers.Stop()
	suite.relay.Close()
	if suite.DB != nil {
		cleanDatabase(t, suite.DB)
		suite.DB.Close()
	}
}

func loadTestConfig(t *testing.T) *config.Config {
	t.Helper()

	return &config.Config{
		Port:     8080,
		LogLevel: "info",
		Database: config.DatabaseConfig{
			Host:     getEnv("TEST_DB_HOST", "127.0.0.1"),
			Port:     getEnvAsInt("TEST_DB_PORT", 5432),
			User:     getEnv("TEST_DB_USER", "postgres"),
			Password: getEnv("TEST_DB_PASSWORD", "postgres"),
			Name:     getEnv("TEST_DB_NAME", "postgres"),
			SSLMode:  "disable",
		},
		Mailer: config.MailerConfig{
			AdminEmail:     testAdminEmail,
			Timeout:        2 * time.Second,
			RetryAttempts:  1,
			RetryDelay:     10 * time.Millisecond,
			MaxPayloadSize: 1024 * 1024,
		},
		Security: config.SecurityConfig{
			RateLimitRPS:    100,
			RateLimitBurst:  200,
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			EnableCORS:      true,
			AllowedOrigins:  []string{"*"},
			TrustedProxies:  []string{},
			JWTSecret:       "integration-test-secret",
			TokenTTL:        time.Hour,
		},
		Lab: config.LabConfig{
			RDPPortMin:       3000,
			RDPPortMax:       3999,
			MinLeadTime:      time.Minute,
			RemindBefore:     time.Minute,
			ProbeTimeout:     5 * time.Second,
			ProbeInterval:    25 * time.Millisecond,
			CommandRetention: 7 * 24 * time.Hour,
			PurgeInterval:    time.Hour,
			TunnelHost:       "tunnel.lab.example.com",
			TunnelPort:       8030,
			TunnelUser:       "remote",
			LocalRDPPort:     3389,
		},
	}
}

func initTestDatabase(t *testing.T, cfg *config.Config) *sql.DB {
	t.Helper()

	db, err := database.InitDB(cfg)
	if err != nil {
		t.Skipf("Failed to connect to test database: %v. Ensure test database is running.", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		t.Skipf("Failed to ping test database: %v", err)
	}

	return db
}

func cleanDatabase(t *testing.T, db *sql.DB) {
	t.Helper()

	for _, table := range []string{"commands", "schedules", "computers", "users"} {
		if _, err := db.Exec("TRUNCATE TABLE " + table + " RESTART IDENTITY CASCADE"); err != nil {
			t.Logf("Warning: Failed to clean table %s: %v", table, err)
		}
	}
}

func seedAdminUser(t *testing.T, db *sql.DB) {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminPassword), bcrypt.DefaultCost)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO users (id, email, username, password_hash, role) VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), testAdminEmail, "admin", string(hash), "admin")
	require.NoError(t, err)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func createJSONRequest(method, url string, body interface{}, token string) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func parseJSONResponse(t *testing.T, resp *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		t.Fatalf("Failed to decode JSON response: %v. Body: %s", err, resp.Body.String())
	}
}

// login obtains an operator token through the real login endpoint.
func login(t *testing.T, suite *IntegrationTestSuite) string {
	t.Helper()

	req := createJSONRequest("POST", "/api/v1/auth/login", map[string]string{
		"email":    testAdminEmail,
		"password": testAdminPassword,
	}, "")
	resp := httptest.NewRecorder()
	suite.Router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code, "login failed: %s", resp.Body.String())

	var body struct {
		Token string `json:"token"`
	}
	parseJSONResponse(t, resp, &body)
	require.NotEmpty(t, body.Token)
	return body.Token
}

// registerComputer creates a lab computer through the API and returns its ID.
func registerComputer(t *testing.T, suite *IntegrationTestSuite, token, name string) uuid.UUID {
	t.Helper()

	req := createJSONRequest("POST", "/api/v1/computers", map[string]interface{}{
		"name":       name,
		"ip_address": "192.168.10.20",
		"agent_port": 9000,
		"rdp_port":   3389,
	}, token)
	resp := httptest.NewRecorder()
	suite.Router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusCreated, resp.Code, "create computer failed: %s", resp.Body.String())

	var body struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	parseJSONResponse(t, resp, &body)

	id, err := uuid.Parse(body.Data.ID)
	require.NoError(t, err)
	return id
}

// runAgent emulates the remote agent: it polls the public agent endpoints and
// reports every claimed command as completed. Stops when the returned func is
// called.
func runAgent(t *testing.T, suite *IntegrationTestSuite, computerID uuid.UUID) func() {
	t.Helper()

	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
			}

			pollReq := createJSONRequest("GET", "/api/v1/agent/commands?computer_id="+computerID.String(), nil, "")
			pollResp := httptest.NewRecorder()
			suite.Router.ServeHTTP(pollResp, pollReq)
			if pollResp.Code != http.StatusOK {
				continue
			}

			var claimed struct {
				Commands []model.Command `json:"commands"`
			}
			if err := json.NewDecoder(pollResp.Body).Decode(&claimed); err != nil {
				continue
			}

			for _, cmd := range claimed.Commands {
				reportReq := createJSONRequest("POST",
					fmt.Sprintf("/api/v1/agent/commands/%s/result", cmd.ID),
					map[string]string{"status": "completed", "result": "ok"}, "")
				reportResp := httptest.NewRecorder()
				suite.Router.ServeHTTP(reportResp, reportReq)
			}
		}
	}()

	return func() {
		close(stop)
		<-done
	}
}

func TestIntegration_ScheduleLifecycle(t *testing.T) {
	suite := setupIntegrationTest(t)
	defer teardownIntegrationTest(t, suite)

	token := login(t, suite)
	computerID := registerComputer(t, suite, token, "INT-LAB-01")

	start := time.Now().Add(2 * time.Hour).UTC().Truncate(time.Second)
	end := start.Add(time.Hour)

	var booked model.Schedule

	t.Run("Book Session", func(t *testing.T) {
		req := createJSONRequest("POST", "/api/v1/schedules", map[string]interface{}{
			"email":      "alice@example.com",
			"start_time": start,
			"end_time":   end,
		}, "")
		resp := httptest.NewRecorder()
		suite.Router.ServeHTTP(resp, req)

		require.Equal(t, http.StatusCreated, resp.Code, "book failed: %s", resp.Body.String())
		parseJSONResponse(t, resp, &booked)

		assert.Equal(t, model.SchedulePending, booked.Status)
		assert.Equal(t, "alice", booked.UserName)
		assert.Nil(t, booked.ComputerID)
	})

	t.Run("Overlapping Booking Rejected", func(t *testing.T) {
		req := createJSONRequest("POST", "/api/v1/schedules", map[string]interface{}{
			"email":      "bob@example.com",
			"start_time": start.Add(30 * time.Minute),
			"end_time":   end.Add(30 * time.Minute),
		}, "")
		resp := httptest.NewRecorder()
		suite.Router.ServeHTTP(resp, req)

		// Pending bookings do not hold the slot, so this stays allowed
		// until approval time. Booking succeeds.
		require.Equal(t, http.StatusCreated, resp.Code, "body: %s", resp.Body.String())
	})

	t.Run("Approve Session", func(t *testing.T) {
		stopAgent := runAgent(t, suite, computerID)
		defer stopAgent()

		req := createJSONRequest("POST", fmt.Sprintf("/api/v1/schedules/%s/approve", booked.ID),
			map[string]string{"computer_id": computerID.String()}, token)
		resp := httptest.NewRecorder()
		suite.Router.ServeHTTP(resp, req)

		require.Equal(t, http.StatusOK, resp.Code, "approve failed: %s", resp.Body.String())

		var approved model.Schedule
		parseJSONResponse(t, resp, &approved)

		assert.Equal(t, model.ScheduleApproved, approved.Status)
		require.NotNil(t, approved.ComputerID)
		assert.Equal(t, computerID, *approved.ComputerID)
		assert.GreaterOrEqual(t, approved.RDPPort, suite.Config.Lab.RDPPortMin)
		assert.LessOrEqual(t, approved.RDPPort, suite.Config.Lab.RDPPortMax)
		assert.NotEmpty(t, approved.Password)
	})

	t.Run("List By Email", func(t *testing.T) {
		req := createJSONRequest("GET", "/api/v1/schedules/email/alice@example.com", nil, "")
		resp := httptest.NewRecorder()
		suite.Router.ServeHTTP(resp, req)

		require.Equal(t, http.StatusOK, resp.Code)

		var body struct {
			Schedules []model.Schedule `json:"schedules"`
			Count     int              `json:"count"`
		}
		parseJSONResponse(t, resp, &body)

		require.Equal(t, 1, body.Count)
		assert.Equal(t, booked.ID, body.Schedules[0].ID)
	})

	t.Run("Cancel Session", func(t *testing.T) {
		req := createJSONRequest("POST", fmt.Sprintf("/api/v1/schedules/%s/cancel", booked.ID), nil, token)
		resp := httptest.NewRecorder()
		suite.Router.ServeHTTP(resp, req)

		require.Equal(t, http.StatusOK, resp.Code, "cancel failed: %s", resp.Body.String())

		getReq := createJSONRequest("GET", fmt.Sprintf("/api/v1/schedules/%s", booked.ID), nil, token)
		getResp := httptest.NewRecorder()
		suite.Router.ServeHTTP(getResp, getReq)

		require.Equal(t, http.StatusOK, getResp.Code)

		var cancelled model.Schedule
		parseJSONResponse(t, getResp, &cancelled)
		assert.Equal(t, model.ScheduleCancelled, cancelled.Status)
	})
}

func TestIntegration_AgentCommandFlow(t *testing.T) {
	suite := setupIntegrationTest(t)
	defer teardownIntegrationTest(t, suite)

	token := login(t, suite)
	computerID := registerComputer(t, suite, token, "INT-LAB-02")

	var commandID uuid.UUID

	t.Run("Enqueue Command", func(t *testing.T) {
		req := createJSONRequest("POST", "/api/v1/commands", map[string]interface{}{
			"computer_id": computerID.String(),
			"action":      "message_user",
			"parameters":  map[string]string{"message": "maintenance in 10 minutes"},
		}, token)
		resp := httptest.NewRecorder()
		suite.Router.ServeHTTP(resp, req)

		require.Equal(t, http.StatusCreated, resp.Code, "enqueue failed: %s", resp.Body.String())

		var command model.Command
		parseJSONResponse(t, resp, &command)

		assert.Equal(t, model.CommandPending, command.Status)
		commandID = command.ID
	})

	t.Run("Agent Polls And Reports", func(t *testing.T) {
		pollReq := createJSONRequest("GET", "/api/v1/agent/commands?computer_id="+computerID.String(), nil, "")
		pollResp := httptest.NewRecorder()
		suite.Router.ServeHTTP(pollResp, pollReq)

		require.Equal(t, http.StatusOK, pollResp.Code)

		var claimed struct {
			Commands []model.Command `json:"commands"`
		}
		parseJSONResponse(t, pollResp, &claimed)

		require.Len(t, claimed.Commands, 1)
		assert.Equal(t, model.CommandExecuting, claimed.Commands[0].Status)

		reportReq := createJSONRequest("POST",
			fmt.Sprintf("/api/v1/agent/commands/%s/result", commandID),
			map[string]string{"status": "completed", "result": "shown"}, "")
		reportResp := httptest.NewRecorder()
		suite.Router.ServeHTTP(reportResp, reportReq)

		require.Equal(t, http.StatusOK, reportResp.Code, "report failed: %s", reportResp.Body.String())
	})

	t.Run("Command Is Terminal", func(t *testing.T) {
		req := createJSONRequest("GET", fmt.Sprintf("/api/v1/commands/%s", commandID), nil, token)
		resp := httptest.NewRecorder()
		suite.Router.ServeHTTP(resp, req)

		require.Equal(t, http.StatusOK, resp.Code)

		var command model.Command
		parseJSONResponse(t, resp, &command)

		assert.Equal(t, model.CommandCompleted, command.Status)
		assert.Equal(t, "shown", command.Result)
		assert.NotNil(t, command.CompletedAt)

		// Duplicate terminal report is tolerated and does not overwrite.
		dupReq := createJSONRequest("POST",
			fmt.Sprintf("/api/v1/agent/commands/%s/result", commandID),
			map[string]string{"status": "failed", "error": "late duplicate"}, "")
		dupResp := httptest.NewRecorder()
		suite.Router.ServeHTTP(dupResp, dupReq)
		require.Equal(t, http.StatusOK, dupResp.Code)

		again := httptest.NewRecorder()
		suite.Router.ServeHTTP(again, createJSONRequest("GET", fmt.Sprintf("/api/v1/commands/%s", commandID), nil, token))
		var after model.Command
		parseJSONResponse(t, again, &after)
		assert.Equal(t, model.CommandCompleted, after.Status)
	})
}

func TestIntegration_ProtectedRoutesRequireToken(t *testing.T) {
	suite := setupIntegrationTest(t)
	defer teardownIntegrationTest(t, suite)

	req := createJSONRequest("GET", "/api/v1/schedules", nil, "")
	resp := httptest.NewRecorder()
	suite.Router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

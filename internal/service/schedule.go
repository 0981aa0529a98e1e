package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"remote-lab-api/internal/config"
	"remote-lab-api/internal/mailer"
	"remote-lab-api/internal/model"
	"remote-lab-api/internal/notify"
	"remote-lab-api/internal/ports"
	"remote-lab-api/internal/repository"
	"remote-lab-api/internal/timer"
	apperrors "remote-lab-api/pkg/errors"
	"remote-lab-api/pkg/validation"

	"github.com/google/uuid"
)

// ScheduleService drives the session lifecycle: booking, approval with port
// and computer assignment, timer-driven provisioning at session start, the
// reminder before session end, and teardown at session end.
//
// All timer callbacks re-fetch the schedule before acting, so a cancellation
// that races a timer firing resolves safely in favour of the cancellation.
type ScheduleService struct {
	schedules repository.ScheduleRepository
	computers repository.ComputerRepository
	commands  *CommandService
	ports     *ports.Allocator
	timers    *timer.Scheduler
	bus       notify.Bus
	mail      mailer.Mailer
	logger    *log.Logger

	lab        config.LabConfig
	adminEmail string

	// now is swappable for tests.
	now func() time.Time
}

// NewScheduleService creates a ScheduleService.
func NewScheduleService(
	schedules repository.ScheduleRepository,
	computers repository.ComputerRepository,
	commands *CommandService,
	portAllocator *ports.Allocator,
	timers *timer.Scheduler,
	bus notify.Bus,
	mail mailer.Mailer,
	logger *log.Logger,
	lab config.LabConfig,
	adminEmail string,
) *ScheduleService {
	if logger == nil {
		logger = log.Default()
	}
	return &ScheduleService{
		schedules:  schedules,
		computers:  computers,
		commands:   commands,
		ports:      portAllocator,
		timers:     timers,
		bus:        bus,
		mail:       mail,
		logger:     logger,
		lab:        lab,
		adminEmail: adminEmail,
		now:        time.Now,
	}
}

// Book registers a new pending session request. The slot must start at least
// MinLeadTime in the future and must not overlap any approved or active
// booking across the whole pool.
func (s *ScheduleService) Book(ctx context.Context, email string, start, end time.Time) (*model.Schedule, error) {
	if errs := validation.ValidateScheduleRequest(email, start, end); len(errs) > 0 {
		return nil, apperrors.ValidationError(errs[0]).WithDetail("errors", errs)
	}
	if start.Before(s.now().Add(s.lab.MinLeadTime)) {
		return nil, apperrors.ValidationError(
			fmt.Sprintf("start time must be at least %s from now", s.lab.MinLeadTime))
	}

	available, err := s.schedules.IsTimeSlotAvailable(ctx, start, end, uuid.Nil)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to check time slot", err)
	}
	if !available {
		return nil, apperrors.ConflictError("requested time slot overlaps an existing booking")
	}

	schedule := model.Schedule{
		ID:        uuid.New(),
		Email:     email,
		UserName:  model.DeriveUserName(email),
		StartTime: start,
		EndTime:   end,
		Status:    model.SchedulePending,
	}

	if err := s.schedules.CreateSchedule(ctx, schedule); err != nil {
		return nil, apperrors.DatabaseError("failed to create schedule", err)
	}

	s.logger.Printf("Registered schedule %s for %s [%s, %s)",
		schedule.ID, email, start.Format(time.RFC3339), end.Format(time.RFC3339))

	s.publish(notify.EventNewSchedule, map[string]string{
		"schedule_id": schedule.ID.String(),
		"email":       email,
	})
	s.sendMailAsync(mailer.Mail{
		Receiver: s.adminEmail,
		Title:    "Remote Lab - new session request",
		Body: fmt.Sprintf("<p>%s requested a session from %s to %s.</p>",
			email, start.Format(time.RFC1123), end.Format(time.RFC1123)),
	})

	return &schedule, nil
}

// Approve assigns a computer, RDP forwarding port and one-time password to a
// pending schedule, then registers its lifecycle timers. The computer is
// probed through the command queue first; an unreachable computer leaves the
// schedule pending and allocates nothing.
func (s *ScheduleService) Approve(ctx context.Context, scheduleID, computerID uuid.UUID) (*model.Schedule, error) {
	schedule, err := s.getSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if schedule.Status != model.SchedulePending {
		return nil, apperrors.ConflictError(
			fmt.Sprintf("schedule is %s, only pending schedules can be approved", schedule.Status))
	}

	computer, err := s.computers.GetComputerByID(ctx, computerID)
	if err != nil {
		if errors.Is(err, repository.ErrComputerNotFound) {
			return nil, apperrors.NotFoundError("computer")
		}
		return nil, apperrors.DatabaseError("failed to get computer", err)
	}
	if computer.Status != model.ComputerAvailable {
		return nil, apperrors.ConflictError(
			fmt.Sprintf("computer %s is %s", computer.Name, computer.Status))
	}

	// The slot was free at booking time; re-check in case another booking was
	// approved since.
	available, err := s.schedules.IsTimeSlotAvailable(ctx, schedule.StartTime, schedule.EndTime, schedule.ID)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to check time slot", err)
	}
	if !available {
		return nil, apperrors.ConflictError("time slot was taken by another approved booking")
	}

	rdpPort, err := s.ports.Allocate()
	if err != nil {
		return nil, apperrors.ConflictError(err.Error())
	}

	if err := s.probeComputer(ctx, computerID); err != nil {
		s.ports.Release(rdpPort)
		return nil, apperrors.ExternalServiceError("agent", err)
	}

	password, err := generatePassword()
	if err != nil {
		s.ports.Release(rdpPort)
		return nil, apperrors.InternalError("failed to generate session password", err)
	}

	if err := s.schedules.ApproveSchedule(ctx, schedule.ID, computerID, rdpPort, password); err != nil {
		s.ports.Release(rdpPort)
		if errors.Is(err, repository.ErrScheduleNotFound) {
			return nil, apperrors.NotFoundError("schedule")
		}
		return nil, apperrors.DatabaseError("failed to approve schedule", err)
	}

	schedule.Status = model.ScheduleApproved
	schedule.ComputerID = &computerID
	schedule.RDPPort = rdpPort
	schedule.Password = password

	s.registerTimers(*schedule)

	s.logger.Printf("Approved schedule %s on computer %s (port %d)", schedule.ID, computer.Name, rdpPort)

	s.publish(notify.EventApprovedSchedule, map[string]string{
		"schedule_id": schedule.ID.String(),
		"computer_id": computerID.String(),
	})
	s.sendMailAsync(mailer.Mail{
		Receiver: schedule.Email,
		Title:    "Remote Lab - session approved",
		Body: fmt.Sprintf(
			"<p>Your session from %s to %s is approved.</p><p>Username: %s<br>Password: %s<br>Port: %d</p>",
			schedule.StartTime.Format(time.RFC1123), schedule.EndTime.Format(time.RFC1123),
			schedule.UserName, password, rdpPort),
	})

	return schedule, nil
}

// Cancel cancels a pending or approved schedule. Approved schedules give back
// their RDP port and drop their lifecycle timers; a cancelled session never
// provisions anything.
func (s *ScheduleService) Cancel(ctx context.Context, scheduleID uuid.UUID) error {
	schedule, err := s.getSchedule(ctx, scheduleID)
	if err != nil {
		return err
	}
	if schedule.Status != model.SchedulePending && schedule.Status != model.ScheduleApproved {
		return apperrors.ConflictError(
			fmt.Sprintf("schedule is %s, only pending or approved schedules can be cancelled", schedule.Status))
	}

	s.cancelTimers(schedule.ID)

	if err := s.schedules.UpdateScheduleStatus(ctx, schedule.ID, model.ScheduleCancelled); err != nil {
		if errors.Is(err, repository.ErrScheduleNotFound) {
			return apperrors.NotFoundError("schedule")
		}
		return apperrors.DatabaseError("failed to cancel schedule", err)
	}

	if schedule.Status == model.ScheduleApproved && schedule.RDPPort > 0 {
		s.ports.Release(schedule.RDPPort)
	}

	s.logger.Printf("Cancelled schedule %s", schedule.ID)

	s.publish(notify.EventCancelledSchedule, map[string]string{
		"schedule_id": schedule.ID.String(),
	})
	s.sendMailAsync(mailer.Mail{
		Receiver: schedule.Email,
		Title:    "Remote Lab - session cancelled",
		Body: fmt.Sprintf("<p>Your session from %s to %s was cancelled.</p>",
			schedule.StartTime.Format(time.RFC1123), schedule.EndTime.Format(time.RFC1123)),
	})

	return nil
}

// Get retrieves one schedule by ID.
func (s *ScheduleService) Get(ctx context.Context, id uuid.UUID) (*model.Schedule, error) {
	return s.getSchedule(ctx, id)
}

// List returns every schedule, newest first.
func (s *ScheduleService) List(ctx context.Context) ([]model.Schedule, error) {
	schedules, err := s.schedules.GetAllSchedules(ctx)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to list schedules", err)
	}
	if schedules == nil {
		schedules = []model.Schedule{}
	}
	return schedules, nil
}

// ListByEmail returns a requester's upcoming approved and active sessions.
func (s *ScheduleService) ListByEmail(ctx context.Context, email string) ([]model.Schedule, error) {
	if err := validation.ValidateEmail(email); err != nil {
		return nil, apperrors.ValidationError(err.Error())
	}
	schedules, err := s.schedules.GetApprovedSchedulesByEmail(ctx, email)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to list schedules", err)
	}
	if schedules == nil {
		schedules = []model.Schedule{}
	}
	return schedules, nil
}

// Recover rebuilds in-memory state from the store after a restart: the port
// exclusion set and the lifecycle timers for every approved or active
// schedule. Sessions whose end time already passed are torn down immediately.
func (s *ScheduleService) Recover(ctx context.Context) error {
	schedules, err := s.schedules.GetSchedulesByStatuses(ctx,
		[]model.ScheduleStatus{model.ScheduleApproved, model.ScheduleActive})
	if err != nil {
		return apperrors.DatabaseError("failed to load schedules for recovery", err)
	}

	now := s.now()
	for _, schedule := range schedules {
		if schedule.RDPPort > 0 && !s.ports.Reserve(schedule.RDPPort) {
			s.logger.Printf("Recovery: port %d of schedule %s was already reserved", schedule.RDPPort, schedule.ID)
		}

		if !schedule.EndTime.After(now) {
			s.logger.Printf("Recovery: schedule %s expired while down, ending now", schedule.ID)
			s.handleSessionEnd(schedule.ID)
			continue
		}

		s.registerTimers(schedule)
		s.logger.Printf("Recovery: restored timers for schedule %s (%s)", schedule.ID, schedule.Status)
	}

	s.logger.Printf("Recovery complete: %d schedules inspected", len(schedules))
	return nil
}

// registerTimers registers the start, remind and end timers for a schedule.
// Already-active schedules only need remind and end.
func (s *ScheduleService) registerTimers(schedule model.Schedule) {
	id := schedule.ID
	if schedule.Status != model.ScheduleActive {
		s.timers.ScheduleAt(timerKey(id, "start"), schedule.StartTime, func() {
			s.handleSessionStart(id)
		})
	}

	remindAt := schedule.EndTime.Add(-s.lab.RemindBefore)
	if remindAt.After(s.now()) {
		s.timers.ScheduleAt(timerKey(id, "remind"), remindAt, func() {
			s.handleSessionRemind(id)
		})
	}

	s.timers.ScheduleAt(timerKey(id, "end"), schedule.EndTime, func() {
		s.handleSessionEnd(id)
	})
}

func (s *ScheduleService) cancelTimers(id uuid.UUID) {
	s.timers.Cancel(timerKey(id, "start"))
	s.timers.Cancel(timerKey(id, "remind"))
	s.timers.Cancel(timerKey(id, "end"))
}

func timerKey(id uuid.UUID, phase string) string {
	return id.String() + "/" + phase
}

// handleSessionStart provisions the session: creates the Windows account,
// grants it RDP access and opens the reverse tunnel, then flips the computer
// busy and the schedule active. Runs on the start timer's goroutine.
func (s *ScheduleService) handleSessionStart(scheduleID uuid.UUID) {
	ctx := context.Background()

	schedule, err := s.getSchedule(ctx, scheduleID)
	if err != nil {
		s.logger.Printf("Session start %s: %v", scheduleID, err)
		return
	}
	if schedule.Status != model.ScheduleApproved || schedule.ComputerID == nil {
		s.logger.Printf("Session start %s skipped: status is %s", scheduleID, schedule.Status)
		return
	}
	computerID := *schedule.ComputerID

	// Order matters: the account must exist before it can be granted access,
	// and the tunnel is only useful once login can succeed. The queue
	// preserves FIFO per computer.
	steps := []struct {
		action string
		params map[string]string
	}{
		{model.ActionCreateUser, map[string]string{
			"username": schedule.UserName,
			"password": schedule.Password,
		}},
		{model.ActionGrantRDPAccess, map[string]string{
			"username": schedule.UserName,
		}},
		{model.ActionCreateTunnel, map[string]string{
			"remote_port": strconv.Itoa(schedule.RDPPort),
			"local_port":  strconv.Itoa(s.lab.LocalRDPPort),
			"host":        s.lab.TunnelHost,
			"ssh_port":    strconv.Itoa(s.lab.TunnelPort),
			"user":        s.lab.TunnelUser,
		}},
	}
	for _, step := range steps {
		if _, err := s.commands.Enqueue(ctx, computerID, step.action, step.params); err != nil {
			s.failSessionStart(ctx, schedule, computerID, fmt.Errorf("enqueue %s: %w", step.action, err))
			return
		}
	}

	if err := s.computers.UpdateComputerStatus(ctx, computerID, model.ComputerBusy); err != nil {
		s.failSessionStart(ctx, schedule, computerID, fmt.Errorf("mark computer busy: %w", err))
		return
	}
	if err := s.schedules.UpdateScheduleStatus(ctx, schedule.ID, model.ScheduleActive); err != nil {
		s.failSessionStart(ctx, schedule, computerID, fmt.Errorf("mark schedule active: %w", err))
		return
	}

	s.logger.Printf("Session %s started on computer %s", schedule.ID, computerID)
	s.publish(notify.EventSessionStarted, map[string]string{
		"schedule_id": schedule.ID.String(),
		"computer_id": computerID.String(),
	})
}

// failSessionStart logs a failed provisioning attempt and enqueues a
// best-effort account cleanup so a half-provisioned computer does not keep a
// stray login around.
func (s *ScheduleService) failSessionStart(ctx context.Context, schedule *model.Schedule, computerID uuid.UUID, cause error) {
	s.logger.Printf("Session start %s failed: %v", schedule.ID, cause)

	if _, err := s.commands.Enqueue(ctx, computerID, model.ActionDeleteUser, map[string]string{
		"username": schedule.UserName,
	}); err != nil {
		s.logger.Printf("Session start %s: cleanup enqueue failed: %v", schedule.ID, err)
	}

	s.publish(notify.EventSessionFailed, map[string]string{
		"schedule_id": schedule.ID.String(),
		"error":       cause.Error(),
	})
}

// handleSessionRemind warns the logged-in user shortly before session end.
// Advisory only; a failed reminder never blocks teardown.
func (s *ScheduleService) handleSessionRemind(scheduleID uuid.UUID) {
	ctx := context.Background()

	schedule, err := s.getSchedule(ctx, scheduleID)
	if err != nil {
		s.logger.Printf("Session remind %s: %v", scheduleID, err)
		return
	}
	if schedule.Status != model.ScheduleActive || schedule.ComputerID == nil {
		return
	}

	minutes := int(s.lab.RemindBefore.Minutes())
	if minutes < 1 {
		minutes = 1
	}
	_, err = s.commands.Enqueue(ctx, *schedule.ComputerID, model.ActionMessageUser, map[string]string{
		"username": schedule.UserName,
		"message":  fmt.Sprintf("Your lab session ends in %d minute(s). Please save your work.", minutes),
	})
	if err != nil {
		s.logger.Printf("Session remind %s: %v", schedule.ID, err)
	}
}

// handleSessionEnd tears the session down: removes the Windows account,
// restarts the computer, returns the computer to the pool and releases the
// RDP port so it can be allocated again.
func (s *ScheduleService) handleSessionEnd(scheduleID uuid.UUID) {
	ctx := context.Background()

	schedule, err := s.getSchedule(ctx, scheduleID)
	if err != nil {
		s.logger.Printf("Session end %s: %v", scheduleID, err)
		return
	}
	if schedule.Status != model.ScheduleApproved && schedule.Status != model.ScheduleActive {
		s.logger.Printf("Session end %s skipped: status is %s", scheduleID, schedule.Status)
		return
	}

	// An approved session that never started has nothing on the computer to
	// clean up.
	if schedule.Status == model.ScheduleActive && schedule.ComputerID != nil {
		computerID := *schedule.ComputerID

		if _, err := s.commands.Enqueue(ctx, computerID, model.ActionDeleteUser, map[string]string{
			"username": schedule.UserName,
		}); err != nil {
			s.logger.Printf("Session end %s: enqueue delete_user: %v", schedule.ID, err)
		}
		if _, err := s.commands.Enqueue(ctx, computerID, model.ActionRestart, nil); err != nil {
			s.logger.Printf("Session end %s: enqueue restart: %v", schedule.ID, err)
		}

		if err := s.computers.UpdateComputerStatus(ctx, computerID, model.ComputerAvailable); err != nil {
			s.logger.Printf("Session end %s: mark computer available: %v", schedule.ID, err)
		}
	}

	if err := s.schedules.UpdateScheduleStatus(ctx, schedule.ID, model.ScheduleEnded); err != nil {
		s.logger.Printf("Session end %s: mark schedule ended: %v", schedule.ID, err)
		return
	}

	if schedule.RDPPort > 0 {
		s.ports.Release(schedule.RDPPort)
	}

	s.logger.Printf("Session %s ended", schedule.ID)
	s.publish(notify.EventSessionEnded, map[string]string{
		"schedule_id": schedule.ID.String(),
	})
}

// probeComputer checks that the agent on a computer is alive by pushing a
// ping command through the queue and waiting for the agent to complete it.
func (s *ScheduleService) probeComputer(ctx context.Context, computerID uuid.UUID) error {
	probe, err := s.commands.Enqueue(ctx, computerID, model.ActionPing, nil)
	if err != nil {
		return fmt.Errorf("failed to enqueue probe: %w", err)
	}

	deadline := time.Now().Add(s.lab.ProbeTimeout)
	ticker := time.NewTicker(s.lab.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			command, err := s.commands.Get(ctx, probe.ID)
			if err != nil {
				return fmt.Errorf("failed to check probe: %w", err)
			}
			switch command.Status {
			case model.CommandCompleted:
				return nil
			case model.CommandFailed:
				return fmt.Errorf("probe failed: %s", command.Error)
			}
			if time.Now().After(deadline) {
				return fmt.Errorf("computer did not answer probe within %s", s.lab.ProbeTimeout)
			}
		}
	}
}

func (s *ScheduleService) getSchedule(ctx context.Context, id uuid.UUID) (*model.Schedule, error) {
	schedule, err := s.schedules.GetScheduleByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrScheduleNotFound) {
			return nil, apperrors.NotFoundError("schedule")
		}
		return nil, apperrors.DatabaseError("failed to get schedule", err)
	}
	return schedule, nil
}

func (s *ScheduleService) publish(eventType notify.EventType, payload map[string]string) {
	if s.bus != nil {
		s.bus.Publish(notify.NewEvent(eventType, payload))
	}
}

// sendMailAsync fires mail delivery on its own goroutine. Mail is advisory;
// the lifecycle never waits on the relay.
func (s *ScheduleService) sendMailAsync(mail mailer.Mail) {
	if s.mail == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		if err := s.mail.Send(ctx, mail); err != nil {
			s.logger.Printf("Failed to send mail to %s: %v", mail.Receiver, err)
		}
	}()
}

func generatePassword() (string, error) {
	buf := make([]byte, 9)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

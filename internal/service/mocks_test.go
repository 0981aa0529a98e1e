package service

import (
	"context"
	"sync"
	"time"

	"remote-lab-api/internal/mailer"
	"remote-lab-api/internal/model"
	"remote-lab-api/internal/notify"
	"remote-lab-api/internal/repository"

	"github.com/google/uuid"
)

// In-memory repository fakes. They implement the same contracts as the
// postgres repositories, including sentinel errors and claim semantics, so
// lifecycle tests can run the real services end to end.

type fakeScheduleRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]model.Schedule
}

func newFakeScheduleRepo() *fakeScheduleRepo {
	return &fakeScheduleRepo{items: make(map[uuid.UUID]model.Schedule)}
}

func (f *fakeScheduleRepo) CreateSchedule(_ context.Context, schedule model.Schedule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	schedule.CreatedAt = time.Now()
	schedule.UpdatedAt = schedule.CreatedAt
	f.items[schedule.ID] = schedule
	return nil
}

func (f *fakeScheduleRepo) GetScheduleByID(_ context.Context, id uuid.UUID) (*model.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.items[id]
	if !ok {
		return nil, repository.ErrScheduleNotFound
	}
	return &s, nil
}

func (f *fakeScheduleRepo) GetAllSchedules(_ context.Context) ([]model.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Schedule
	for _, s := range f.items {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeScheduleRepo) GetApprovedSchedulesByEmail(_ context.Context, email string) ([]model.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Schedule
	for _, s := range f.items {
		if s.Email == email && (s.Status == model.ScheduleApproved || s.Status == model.ScheduleActive) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeScheduleRepo) GetSchedulesByStatuses(_ context.Context, statuses []model.ScheduleStatus) ([]model.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Schedule
	for _, s := range f.items {
		for _, st := range statuses {
			if s.Status == st {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeScheduleRepo) UpdateScheduleStatus(_ context.Context, id uuid.UUID, status model.ScheduleStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.items[id]
	if !ok {
		return repository.ErrScheduleNotFound
	}
	s.Status = status
	s.UpdatedAt = time.Now()
	f.items[id] = s
	return nil
}

func (f *fakeScheduleRepo) ApproveSchedule(_ context.Context, id uuid.UUID, computerID uuid.UUID, rdpPort int, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.items[id]
	if !ok {
		return repository.ErrScheduleNotFound
	}
	s.Status = model.ScheduleApproved
	s.ComputerID = &computerID
	s.RDPPort = rdpPort
	s.Password = password
	s.UpdatedAt = time.Now()
	f.items[id] = s
	return nil
}

func (f *fakeScheduleRepo) IsTimeSlotAvailable(_ context.Context, start, end time.Time, excludeID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.items {
		if s.ID == excludeID {
			continue
		}
		if s.Status != model.ScheduleApproved && s.Status != model.ScheduleActive {
			continue
		}
		if s.Overlaps(start, end) {
			return false, nil
		}
	}
	return true, nil
}

type fakeComputerRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]model.Computer
}

func newFakeComputerRepo(computers ...model.Computer) *fakeComputerRepo {
	f := &fakeComputerRepo{items: make(map[uuid.UUID]model.Computer)}
	for _, c := range computers {
		f.items[c.ID] = c
	}
	return f
}

func (f *fakeComputerRepo) CreateComputer(_ context.Context, computer model.Computer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[computer.ID] = computer
	return nil
}

func (f *fakeComputerRepo) GetAllComputers(_ context.Context) ([]model.Computer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Computer
	for _, c := range f.items {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeComputerRepo) GetComputerByID(_ context.Context, id uuid.UUID) (*model.Computer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.items[id]
	if !ok {
		return nil, repository.ErrComputerNotFound
	}
	return &c, nil
}

func (f *fakeComputerRepo) UpdateComputer(_ context.Context, id uuid.UUID, computer model.Computer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[id]; !ok {
		return repository.ErrComputerNotFound
	}
	computer.ID = id
	f.items[id] = computer
	return nil
}

func (f *fakeComputerRepo) UpdateComputerStatus(_ context.Context, id uuid.UUID, status model.ComputerStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.items[id]
	if !ok {
		return repository.ErrComputerNotFound
	}
	c.Status = status
	f.items[id] = c
	return nil
}

func (f *fakeComputerRepo) DeleteComputer(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[id]; !ok {
		return repository.ErrComputerNotFound
	}
	delete(f.items, id)
	return nil
}

func (f *fakeComputerRepo) status(id uuid.UUID) model.ComputerStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[id].Status
}

// fakeCommandRepo keeps commands in creation order. pingOutcome lets tests
// stand in for the agent during approval probes: any ping command lands in
// that terminal state the moment it is created.
type fakeCommandRepo struct {
	mu          sync.Mutex
	items       []model.Command
	pingOutcome model.CommandStatus
	pingError   string
}

func newFakeCommandRepo() *fakeCommandRepo {
	return &fakeCommandRepo{pingOutcome: model.CommandCompleted}
}

func (f *fakeCommandRepo) CreateCommand(_ context.Context, command model.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	command.CreatedAt = time.Now()
	command.UpdatedAt = command.CreatedAt
	if command.Action == model.ActionPing {
		command.Status = f.pingOutcome
		command.Error = f.pingError
	}
	f.items = append(f.items, command)
	return nil
}

func (f *fakeCommandRepo) GetCommandByID(_ context.Context, id uuid.UUID) (*model.Command, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.items {
		if c.ID == id {
			out := c
			return &out, nil
		}
	}
	return nil, repository.ErrCommandNotFound
}

func (f *fakeCommandRepo) GetAllCommands(_ context.Context) ([]model.Command, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Command, len(f.items))
	copy(out, f.items)
	return out, nil
}

func (f *fakeCommandRepo) ClaimPendingCommands(_ context.Context, computerID *uuid.UUID) ([]model.Command, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	var out []model.Command
	for i := range f.items {
		if f.items[i].Status != model.CommandPending {
			continue
		}
		if computerID != nil && f.items[i].ComputerID != *computerID {
			continue
		}
		f.items[i].Status = model.CommandExecuting
		t := now
		f.items[i].ExecutedAt = &t
		out = append(out, f.items[i])
	}
	return out, nil
}

func (f *fakeCommandRepo) MarkCommandCompleted(_ context.Context, id uuid.UUID, result string) error {
	return f.finish(id, model.CommandCompleted, result, "")
}

func (f *fakeCommandRepo) MarkCommandFailed(_ context.Context, id uuid.UUID, errorText string) error {
	return f.finish(id, model.CommandFailed, "", errorText)
}

func (f *fakeCommandRepo) finish(id uuid.UUID, status model.CommandStatus, result, errorText string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.items {
		if f.items[i].ID != id {
			continue
		}
		if f.items[i].Status.Terminal() {
			return nil
		}
		f.items[i].Status = status
		f.items[i].Result = result
		f.items[i].Error = errorText
		now := time.Now()
		f.items[i].CompletedAt = &now
		return nil
	}
	return repository.ErrCommandNotFound
}

func (f *fakeCommandRepo) PurgeTerminalBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []model.Command
	var purged int64
	for _, c := range f.items {
		if c.Status.Terminal() && c.CompletedAt != nil && c.CompletedAt.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, c)
	}
	f.items = kept
	return purged, nil
}

// actionsFor lists the actions enqueued for one computer in creation order.
func (f *fakeCommandRepo) actionsFor(computerID uuid.UUID) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.items {
		if c.ComputerID == computerID {
			out = append(out, c.Action)
		}
	}
	return out
}

type captureBus struct {
	mu     sync.Mutex
	events []notify.Event
}

func (b *captureBus) Publish(event notify.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *captureBus) types() []notify.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]notify.EventType, len(b.events))
	for i, e := range b.events {
		out[i] = e.Type
	}
	return out
}

type captureMailer struct {
	mu   sync.Mutex
	sent []mailer.Mail
}

func (m *captureMailer) Send(_ context.Context, mail mailer.Mail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, mail)
	return nil
}

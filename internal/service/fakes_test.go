package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/numbering"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
)

// memState is the committed content of memStore.
type memState struct {
	tickets  map[string]domain.Ticket
	history  []domain.TicketHistory
	comments []domain.TicketComment
	policies map[string]domain.SLAPolicy
	names    map[string]string
	// removedUsers are user ids whose rows are gone; every other user id exists.
	removedUsers map[string]bool
}

func (st *memState) clone() memState {
	out := memState{
		tickets:  make(map[string]domain.Ticket, len(st.tickets)),
		history:  append([]domain.TicketHistory(nil), st.history...),
		comments: append([]domain.TicketComment(nil), st.comments...),
		policies: make(map[string]domain.SLAPolicy, len(st.policies)),
		names:    st.names,

		removedUsers: st.removedUsers,
	}
	for k, v := range st.tickets {
		out.tickets[k] = v
	}
	for k, v := range st.policies {
		out.policies[k] = v
	}
	return out
}

// memStore is an in-memory UnitOfWork. Transactions are serialized by one mutex,
// which stands in for row locks, and commit by swapping in the working copy.
type memStore struct {
	mu    sync.Mutex
	state memState

	failUpdate  map[string]error
	failHistory error
	afterList   func(st *memState)
}

func newMemStore() *memStore {
	return &memStore{
		state: memState{
			tickets:  map[string]domain.Ticket{},
			policies: map[string]domain.SLAPolicy{},
			names:    map[string]string{},

			removedUsers: map[string]bool{},
		},
		failUpdate: map[string]error{},
	}
}

func (m *memStore) WithinTx(ctx context.Context, fn func(repository.Repositories) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	work := m.state.clone()
	if err := fn(m.bind(&work)); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *memStore) Repositories() repository.Repositories {
	return m.bind(&m.state)
}

func (m *memStore) bind(st *memState) repository.Repositories {
	return repository.Repositories{
		Tickets:  &memTickets{st: st, store: m},
		History:  &memHistory{st: st, store: m},
		Comments: &memComments{st: st},
		Policies: &memPolicies{st: st},
	}
}

func (m *memStore) seedTicket(t domain.Ticket) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.tickets[t.ID] = t
}

func (m *memStore) seedPolicy(p domain.SLAPolicy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.policies[p.ID] = p
}

func (m *memStore) removeUser(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.removedUsers[id] = true
}

// foreignKeyViolation mirrors the error Postgres raises for a dangling reference.
func foreignKeyViolation(constraint string) error {
	return &pgconn.PgError{Code: "23503", ConstraintName: constraint}
}

func (m *memStore) ticket(t *testing.T, id string) domain.Ticket {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	ticket, ok := m.state.tickets[id]
	if !ok {
		t.Fatalf("ticket %s not stored", id)
	}
	return ticket
}

func (m *memStore) historyFor(ticketID string) []domain.TicketHistory {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.TicketHistory
	for _, h := range m.state.history {
		if h.TicketID == ticketID {
			out = append(out, h)
		}
	}
	return out
}

func (m *memStore) commentsFor(ticketID string) []domain.TicketComment {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.TicketComment
	for _, c := range m.state.comments {
		if c.TicketID == ticketID {
			out = append(out, c)
		}
	}
	return out
}

type memTickets struct {
	st    *memState
	store *memStore
}

func (r *memTickets) Create(_ context.Context, ticket *domain.Ticket) error {
	if ticket.SLAPolicyID != nil {
		if _, ok := r.st.policies[*ticket.SLAPolicyID]; !ok {
			return foreignKeyViolation("tickets_sla_policy_id_fkey")
		}
	}
	if r.st.removedUsers[ticket.CreatedByID] {
		return foreignKeyViolation("tickets_created_by_fkey")
	}
	if _, exists := r.st.tickets[ticket.ID]; exists {
		return fmt.Errorf("duplicate ticket %s", ticket.ID)
	}
	for _, existing := range r.st.tickets {
		if existing.TicketNumber == ticket.TicketNumber {
			return fmt.Errorf("duplicate ticket number %s", ticket.TicketNumber)
		}
	}
	r.st.tickets[ticket.ID] = *ticket
	return nil
}

func (r *memTickets) Update(_ context.Context, ticket *domain.Ticket) error {
	if err := r.store.failUpdate[ticket.ID]; err != nil {
		return err
	}
	if _, ok := r.st.tickets[ticket.ID]; !ok {
		return pgx.ErrNoRows
	}
	r.st.tickets[ticket.ID] = *ticket
	return nil
}

func (r *memTickets) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	ticket, ok := r.st.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &ticket, nil
}

func (r *memTickets) GetForUpdate(ctx context.Context, id string) (*domain.Ticket, error) {
	return r.GetByID(ctx, id)
}

func (r *memTickets) SetSLADates(_ context.Context, id string, responseDue, resolutionDue, updatedAt time.Time) error {
	ticket, ok := r.st.tickets[id]
	if !ok {
		return pgx.ErrNoRows
	}
	ticket.ResponseDue = &responseDue
	ticket.ResolutionDue = &resolutionDue
	ticket.UpdatedAt = updatedAt
	r.st.tickets[id] = ticket
	return nil
}

func (r *memTickets) ListEscalationCandidates(_ context.Context, filter repository.EscalationFilter) ([]domain.Ticket, error) {
	var out []domain.Ticket
	for _, ticket := range r.st.tickets {
		if ticket.ResolutionDue == nil || !ticket.ResolutionDue.Before(filter.OverdueBefore) {
			continue
		}
		if !containsStatus(filter.Statuses, ticket.Status) {
			continue
		}
		if len(filter.Priorities) > 0 && !containsPriority(filter.Priorities, ticket.Priority) {
			continue
		}
		out = append(out, ticket)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ResolutionDue.Equal(*out[j].ResolutionDue) {
			return out[i].ID < out[j].ID
		}
		return out[i].ResolutionDue.Before(*out[j].ResolutionDue)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	if r.store.afterList != nil {
		r.store.afterList(r.st)
	}
	return out, nil
}

func (r *memTickets) GetSummary(_ context.Context, id string) (*domain.TicketSummary, error) {
	ticket, ok := r.st.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	summary := &domain.TicketSummary{
		Ticket:       ticket,
		CustomerName: r.st.names[ticket.CustomerID],
		CreatorName:  r.st.names[ticket.CreatedByID],
	}
	if ticket.AssigneeID != nil {
		if name, ok := r.st.names[*ticket.AssigneeID]; ok {
			summary.AssigneeName = &name
		}
	}
	if ticket.QueueID != nil {
		if name, ok := r.st.names[*ticket.QueueID]; ok {
			summary.QueueName = &name
		}
	}
	return summary, nil
}

func containsStatus(statuses []domain.TicketStatus, status domain.TicketStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func containsPriority(priorities []domain.TicketPriority, priority domain.TicketPriority) bool {
	for _, p := range priorities {
		if p == priority {
			return true
		}
	}
	return false
}

type memHistory struct {
	st    *memState
	store *memStore
}

func (r *memHistory) Create(_ context.Context, entry *domain.TicketHistory) error {
	if r.store.failHistory != nil {
		return r.store.failHistory
	}
	r.st.history = append(r.st.history, *entry)
	return nil
}

func (r *memHistory) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketHistory, error) {
	var out []domain.TicketHistory
	for _, h := range r.st.history {
		if h.TicketID == ticketID {
			out = append(out, h)
		}
	}
	return out, nil
}

type memComments struct {
	st *memState
}

func (r *memComments) Create(_ context.Context, comment *domain.TicketComment) error {
	if r.st.removedUsers[comment.AuthorID] {
		return foreignKeyViolation("ticket_comments_author_id_fkey")
	}
	r.st.comments = append(r.st.comments, *comment)
	return nil
}

func (r *memComments) ListByTicket(_ context.Context, ticketID string, includeInternal bool) ([]domain.TicketComment, error) {
	var out []domain.TicketComment
	for _, c := range r.st.comments {
		if c.TicketID != ticketID || (c.IsInternal && !includeInternal) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

type memPolicies struct {
	st *memState
}

func (r *memPolicies) GetByID(_ context.Context, id string) (*domain.SLAPolicy, error) {
	policy, ok := r.st.policies[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &policy, nil
}

// fakeClock is a settable clock shared by the service and the generator.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type stubLock struct {
	ok       bool
	err      error
	released bool
}

func (l *stubLock) Acquire(context.Context) (func(), bool, error) {
	if l.err != nil || !l.ok {
		return nil, false, l.err
	}
	return func() { l.released = true }, true, nil
}

var errInjected = errors.New("injected failure")

type harness struct {
	svc    *LifecycleService
	store  *memStore
	clock  *fakeClock
	events *[]events.Event
}

func newHarness(t *testing.T, mutate func(*LifecycleDependencies)) harness {
	t.Helper()
	store := newMemStore()
	clock := &fakeClock{now: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)}
	dispatcher := events.NewInMemoryDispatcher()
	published := &[]events.Event{}
	var mu sync.Mutex
	record := func(_ context.Context, e events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		*published = append(*published, e)
		return nil
	}
	for _, et := range []events.EventType{
		events.EventTicketCreated, events.EventTicketAssigned, events.EventTicketStatusChanged,
		events.EventTicketCommentAdded, events.EventTicketEscalated, events.EventTicketSLAApplied,
	} {
		dispatcher.Subscribe(et, record)
	}

	deps := LifecycleDependencies{
		Store:      store,
		Numbers:    numbering.NewGenerator(numbering.NewAtomicSequencer(0), numbering.WithClock(clock.Now)),
		Dispatcher: dispatcher,
		Options:    DefaultLifecycleOptions(),
		Clock:      clock.Now,
	}
	if mutate != nil {
		mutate(&deps)
	}
	return harness{svc: NewLifecycleService(deps), store: store, clock: clock, events: published}
}

func (h harness) create(t *testing.T, input CreateTicketInput) string {
	t.Helper()
	if input.Title == "" {
		input.Title = "Printer on fire"
	}
	if input.CustomerID == "" {
		input.CustomerID = "cust-1"
	}
	if input.CreatedByID == "" {
		input.CreatedByID = "user-1"
	}
	id, err := h.svc.CreateTicket(context.Background(), input)
	if err != nil {
		t.Fatalf("CreateTicket returned error: %v", err)
	}
	return id
}

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

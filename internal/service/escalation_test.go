package service

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
)

// seedOverdue stores a ticket whose resolution deadline is offset from the clock.
func seedOverdue(h harness, id string, priority domain.TicketPriority, status domain.TicketStatus, dueOffset time.Duration) {
	now := h.clock.Now()
	h.store.seedTicket(domain.Ticket{
		ID:            id,
		TicketNumber:  "TCKT-2025-" + id,
		Title:         id,
		CustomerID:    "cust-1",
		CreatedByID:   "user-1",
		Priority:      priority,
		Status:        status,
		Source:        domain.TicketSourceEmail,
		ResponseDue:   timePtr(now.Add(dueOffset - time.Hour)),
		ResolutionDue: timePtr(now.Add(dueOffset)),
		CreatedAt:     now.Add(-24 * time.Hour),
		UpdatedAt:     now.Add(-24 * time.Hour),
	})
}

func TestEscalationSweepBumpsOverdueTicket(t *testing.T) {
	h := newHarness(t, nil)
	seedOverdue(h, "t1", domain.TicketPriorityMedium, domain.TicketStatusOpen, -time.Minute)

	count, err := h.svc.RunEscalationSweep(context.Background())
	if err != nil {
		t.Fatalf("RunEscalationSweep returned error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 escalation, got %d", count)
	}
	ticket := h.store.ticket(t, "t1")
	if ticket.Priority != domain.TicketPriorityHigh || ticket.Status != domain.TicketStatusEscalated {
		t.Fatalf("expected High/Escalated, got %s/%s", ticket.Priority, ticket.Status)
	}
	if !ticket.UpdatedAt.Equal(h.clock.Now()) {
		t.Fatalf("expected updated_at bumped")
	}

	history := h.store.historyFor("t1")
	if len(history) != 1 {
		t.Fatalf("expected one history entry, got %d", len(history))
	}
	entry := history[0]
	if entry.ChangeType != domain.ChangeTypeEscalated || *entry.OldValue != "Medium" || *entry.NewValue != "High" {
		t.Fatalf("unexpected escalation entry %+v", entry)
	}
	if entry.ChangedByType != domain.ActorTypeSystem || *entry.ChangedByID != domain.SystemActorID {
		t.Fatalf("expected system actor, got %s/%v", entry.ChangedByType, entry.ChangedByID)
	}

	if len(*h.events) != 1 || (*h.events)[0].Type != events.EventTicketEscalated {
		t.Fatalf("expected one escalated event, got %+v", *h.events)
	}
	payload := (*h.events)[0].Payload.(events.TicketEscalatedPayload)
	if payload.OldStatus != domain.TicketStatusOpen || payload.NewPriority != domain.TicketPriorityHigh {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestEscalationSweepSelection(t *testing.T) {
	h := newHarness(t, nil)
	seedOverdue(h, "low-new", domain.TicketPriorityLow, domain.TicketStatusNew, -time.Hour)
	seedOverdue(h, "high-hold", domain.TicketPriorityHigh, domain.TicketStatusOnHold, -time.Hour)
	seedOverdue(h, "med-progress", domain.TicketPriorityMedium, domain.TicketStatusInProgress, -time.Second)
	seedOverdue(h, "critical", domain.TicketPriorityCritical, domain.TicketStatusOpen, -time.Hour)
	seedOverdue(h, "future", domain.TicketPriorityLow, domain.TicketStatusOpen, time.Hour)
	seedOverdue(h, "exactly-now", domain.TicketPriorityLow, domain.TicketStatusOpen, 0)
	seedOverdue(h, "already", domain.TicketPriorityHigh, domain.TicketStatusEscalated, -time.Hour)
	seedOverdue(h, "resolved", domain.TicketPriorityLow, domain.TicketStatusResolved, -time.Hour)
	seedOverdue(h, "closed", domain.TicketPriorityLow, domain.TicketStatusClosed, -time.Hour)
	h.store.seedTicket(domain.Ticket{ID: "no-sla", Priority: domain.TicketPriorityLow, Status: domain.TicketStatusOpen})

	count, err := h.svc.RunEscalationSweep(context.Background())
	if err != nil {
		t.Fatalf("RunEscalationSweep returned error: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 escalations, got %d", count)
	}

	want := map[string]domain.TicketPriority{
		"low-new":      domain.TicketPriorityMedium,
		"high-hold":    domain.TicketPriorityCritical,
		"med-progress": domain.TicketPriorityHigh,
	}
	for id, priority := range want {
		ticket := h.store.ticket(t, id)
		if ticket.Priority != priority || ticket.Status != domain.TicketStatusEscalated {
			t.Fatalf("%s: expected %s/Escalated, got %s/%s", id, priority, ticket.Priority, ticket.Status)
		}
	}

	untouched := map[string]domain.TicketStatus{
		"critical":    domain.TicketStatusOpen,
		"future":      domain.TicketStatusOpen,
		"exactly-now": domain.TicketStatusOpen,
		"already":     domain.TicketStatusEscalated,
		"resolved":    domain.TicketStatusResolved,
		"closed":      domain.TicketStatusClosed,
		"no-sla":      domain.TicketStatusOpen,
	}
	for id, status := range untouched {
		ticket := h.store.ticket(t, id)
		if ticket.Status != status {
			t.Fatalf("%s: expected status %s, got %s", id, status, ticket.Status)
		}
		if len(h.store.historyFor(id)) != 0 {
			t.Fatalf("%s: expected no history", id)
		}
	}
	if got := h.store.ticket(t, "critical").Priority; got != domain.TicketPriorityCritical {
		t.Fatalf("expected Critical to stay Critical, got %s", got)
	}
}

func TestEscalationSweepIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	seedOverdue(h, "t1", domain.TicketPriorityLow, domain.TicketStatusOpen, -time.Hour)

	first, err := h.svc.RunEscalationSweep(context.Background())
	if err != nil || first != 1 {
		t.Fatalf("first sweep: count=%d err=%v", first, err)
	}
	h.clock.Advance(5 * time.Minute)
	second, err := h.svc.RunEscalationSweep(context.Background())
	if err != nil || second != 0 {
		t.Fatalf("second sweep: count=%d err=%v", second, err)
	}
	if got := h.store.ticket(t, "t1").Priority; got != domain.TicketPriorityMedium {
		t.Fatalf("expected single bump to Medium, got %s", got)
	}
	if len(h.store.historyFor("t1")) != 1 {
		t.Fatalf("expected one escalation entry")
	}
}

func TestEscalationSweepContinuesPastFailures(t *testing.T) {
	h := newHarness(t, nil)
	seedOverdue(h, "a", domain.TicketPriorityLow, domain.TicketStatusOpen, -3*time.Hour)
	seedOverdue(h, "b", domain.TicketPriorityLow, domain.TicketStatusOpen, -2*time.Hour)
	seedOverdue(h, "c", domain.TicketPriorityLow, domain.TicketStatusOpen, -time.Hour)
	h.store.failUpdate["b"] = errInjected

	count, err := h.svc.RunEscalationSweep(context.Background())
	if err != nil {
		t.Fatalf("RunEscalationSweep returned error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 escalations, got %d", count)
	}
	failed := h.store.ticket(t, "b")
	if failed.Priority != domain.TicketPriorityLow || failed.Status != domain.TicketStatusOpen {
		t.Fatalf("expected failed ticket rolled back, got %s/%s", failed.Priority, failed.Status)
	}
	if len(h.store.historyFor("b")) != 0 {
		t.Fatalf("expected no history for failed ticket")
	}
	for _, id := range []string{"a", "c"} {
		if got := h.store.ticket(t, id).Status; got != domain.TicketStatusEscalated {
			t.Fatalf("%s: expected Escalated, got %s", id, got)
		}
	}
}

func TestEscalationSweepRechecksCandidate(t *testing.T) {
	h := newHarness(t, nil)
	seedOverdue(h, "t1", domain.TicketPriorityMedium, domain.TicketStatusOpen, -time.Hour)
	h.store.afterList = func(st *memState) {
		ticket := st.tickets["t1"]
		ticket.Status = domain.TicketStatusResolved
		st.tickets["t1"] = ticket
	}

	count, err := h.svc.RunEscalationSweep(context.Background())
	if err != nil {
		t.Fatalf("RunEscalationSweep returned error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected resolved ticket to be skipped, got %d", count)
	}
	ticket := h.store.ticket(t, "t1")
	if ticket.Status != domain.TicketStatusResolved || ticket.Priority != domain.TicketPriorityMedium {
		t.Fatalf("expected ticket unchanged, got %s/%s", ticket.Priority, ticket.Status)
	}
}

func TestEscalationSweepRespectsLock(t *testing.T) {
	seed := func(h harness) {
		seedOverdue(h, "t1", domain.TicketPriorityLow, domain.TicketStatusOpen, -time.Hour)
	}

	held := &stubLock{ok: false}
	h := newHarness(t, func(d *LifecycleDependencies) { d.SweepLock = held })
	seed(h)
	count, err := h.svc.RunEscalationSweep(context.Background())
	if err != nil || count != 0 {
		t.Fatalf("expected skipped sweep, got count=%d err=%v", count, err)
	}
	if got := h.store.ticket(t, "t1").Status; got != domain.TicketStatusOpen {
		t.Fatalf("expected ticket untouched while lock held, got %s", got)
	}

	broken := &stubLock{err: errInjected}
	h = newHarness(t, func(d *LifecycleDependencies) { d.SweepLock = broken })
	seed(h)
	if count, err := h.svc.RunEscalationSweep(context.Background()); err != nil || count != 1 {
		t.Fatalf("expected sweep without lock, got count=%d err=%v", count, err)
	}

	free := &stubLock{ok: true}
	h = newHarness(t, func(d *LifecycleDependencies) { d.SweepLock = free })
	seed(h)
	if count, err := h.svc.RunEscalationSweep(context.Background()); err != nil || count != 1 {
		t.Fatalf("expected locked sweep, got count=%d err=%v", count, err)
	}
	if !free.released {
		t.Fatalf("expected lock released")
	}
}

func TestEscalationSweepBatchLimit(t *testing.T) {
	h := newHarness(t, func(d *LifecycleDependencies) { d.Options.SweepBatchLimit = 1 })
	seedOverdue(h, "older", domain.TicketPriorityLow, domain.TicketStatusOpen, -2*time.Hour)
	seedOverdue(h, "newer", domain.TicketPriorityLow, domain.TicketStatusOpen, -time.Hour)

	count, err := h.svc.RunEscalationSweep(context.Background())
	if err != nil || count != 1 {
		t.Fatalf("expected one escalation, got count=%d err=%v", count, err)
	}
	if got := h.store.ticket(t, "older").Status; got != domain.TicketStatusEscalated {
		t.Fatalf("expected most overdue ticket first, got %s", got)
	}
	if count, _ := h.svc.RunEscalationSweep(context.Background()); count != 1 {
		t.Fatalf("expected next batch to pick up remaining ticket, got %d", count)
	}
}

func TestEscalationSweepBatchLimitSkipsCriticalTickets(t *testing.T) {
	h := newHarness(t, func(d *LifecycleDependencies) { d.Options.SweepBatchLimit = 1 })
	seedOverdue(h, "critical", domain.TicketPriorityCritical, domain.TicketStatusOpen, -2*time.Hour)
	seedOverdue(h, "medium", domain.TicketPriorityMedium, domain.TicketStatusOpen, -time.Hour)

	count, err := h.svc.RunEscalationSweep(context.Background())
	if err != nil || count != 1 {
		t.Fatalf("expected the medium ticket escalated, got count=%d err=%v", count, err)
	}
	medium := h.store.ticket(t, "medium")
	if medium.Priority != domain.TicketPriorityHigh || medium.Status != domain.TicketStatusEscalated {
		t.Fatalf("expected High/Escalated, got %s/%s", medium.Priority, medium.Status)
	}
	critical := h.store.ticket(t, "critical")
	if critical.Priority != domain.TicketPriorityCritical || critical.Status != domain.TicketStatusOpen {
		t.Fatalf("expected critical ticket untouched, got %s/%s", critical.Priority, critical.Status)
	}
}

func TestEscalationSweepLeavesPerTicketLoggingToSubscribers(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := newHarness(t, func(d *LifecycleDependencies) { d.Logger = zap.New(core) })
	seedOverdue(h, "t1", domain.TicketPriorityLow, domain.TicketStatusOpen, -time.Hour)

	if count, err := h.svc.RunEscalationSweep(context.Background()); err != nil || count != 1 {
		t.Fatalf("expected one escalation, got count=%d err=%v", count, err)
	}
	if n := logs.FilterField(zap.String("ticket_id", "t1")).Len(); n != 0 {
		t.Fatalf("expected no per-ticket sweep log lines, got %d", n)
	}
	finished := logs.FilterMessage("escalation sweep finished").All()
	if len(finished) != 1 || finished[0].ContextMap()["escalated"] != int64(1) {
		t.Fatalf("expected one summary line with escalated=1, got %+v", finished)
	}
}

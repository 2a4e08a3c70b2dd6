package session

import (
	"context"
	"testing"
	"time"

	"chowfast/internal/domain"
	"chowfast/internal/orchestrator"
)

func newService(ttl time.Duration) *Service {
	return New(ttl, func() *orchestrator.Orchestrator { return orchestrator.New(nil, 0, nil) })
}

func TestIssueAndLookup(t *testing.T) {
	svc := newService(time.Hour)
	ctx := context.Background()

	token, sess, err := svc.Issue(ctx)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if token == "" || sess.ID == "" {
		t.Fatalf("expected token and id, got %q %q", token, sess.ID)
	}
	if sess.Cart == nil || !sess.Cart.IsEmpty() {
		t.Fatalf("expected empty cart")
	}
	if sess.Tx.State().Status != domain.TxStatusIdle {
		t.Fatalf("expected idle orchestrator")
	}

	got, err := svc.Lookup(ctx, token)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got != sess {
		t.Fatalf("lookup returned a different session")
	}

	if _, err := svc.Lookup(ctx, "bogus"); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if _, err := svc.Lookup(ctx, ""); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for empty token, got %v", err)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	svc := newService(time.Hour)
	ctx := context.Background()
	_, a, _ := svc.Issue(ctx)
	_, b, _ := svc.Issue(ctx)

	if err := a.Cart.AddItem(domain.Product{ID: "budget-a"}, 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	if !b.Cart.IsEmpty() {
		t.Fatalf("cart leaked between sessions")
	}
	if a.Tx == b.Tx {
		t.Fatalf("sessions share an orchestrator")
	}
}

func TestExpiredSessionsAreRejectedAndPurged(t *testing.T) {
	svc := newService(time.Minute)
	now := time.Now()
	svc.tokens.now = func() time.Time { return now }
	ctx := context.Background()

	expired, _, _ := svc.Issue(ctx)
	stale, _, _ := svc.Issue(ctx)
	now = now.Add(2 * time.Minute)
	fresh, _, _ := svc.Issue(ctx)

	if _, err := svc.Lookup(ctx, expired); err != ErrInvalidToken {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}
	if n := svc.Purge(); n != 1 {
		t.Fatalf("expected 1 purged session, got %d", n)
	}
	if _, err := svc.Lookup(ctx, stale); err != ErrInvalidToken {
		t.Fatalf("expected purged token to be rejected, got %v", err)
	}
	if _, err := svc.Lookup(ctx, fresh); err != nil {
		t.Fatalf("fresh token: %v", err)
	}
}

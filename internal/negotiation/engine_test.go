package negotiation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/sudo-init-do/sharefood/internal/fault"
	"github.com/sudo-init-do/sharefood/internal/geo"
	"github.com/sudo-init-do/sharefood/internal/listing"
)

func setupEngine(t *testing.T) (*Engine, *listing.MemoryStore) {
	t.Helper()
	listings := listing.NewMemoryStore()
	negs := NewMemoryStore(listings)
	return NewEngine(negs, listings), listings
}

func publish(t *testing.T, listings *listing.MemoryStore, donorID string) *listing.Listing {
	t.Helper()
	l := &listing.Listing{
		DonorID:     donorID,
		Name:        "Feijão",
		Description: "Pacote fechado",
		Quantity:    "1 kg",
		Location:    geo.Point{Lat: 10, Lon: 10},
	}
	if err := listings.Create(context.Background(), l); err != nil {
		t.Fatalf("create listing: %v", err)
	}
	return l
}

func TestDeriveIDDeterministic(t *testing.T) {
	a := DeriveID("donor", "recipient", "listing")
	b := DeriveID("donor", "recipient", "listing")
	if a != b {
		t.Fatalf("same triple produced different ids: %s vs %s", a, b)
	}
	if a == DeriveID("recipient", "donor", "listing") {
		t.Error("swapped roles must not collide")
	}
	if a == DeriveID("donor", "recipient", "other") {
		t.Error("different listing must not collide")
	}
	// Field boundaries matter: ("ab","c") must differ from ("a","bc").
	if DeriveID("ab", "c", "l") == DeriveID("a", "bc", "l") {
		t.Error("ambiguous field concatenation in id derivation")
	}
}

func TestGetOrCreateIdempotent(t *testing.T) {
	e, listings := setupEngine(t)
	ctx := context.Background()
	l := publish(t, listings, "D")

	first, err := e.GetOrCreate(ctx, "D", "R", l.ID, "R")
	if err != nil {
		t.Fatalf("first GetOrCreate: %v", err)
	}
	if first.Status != StatusPending {
		t.Errorf("Status = %q, want %q", first.Status, StatusPending)
	}

	second, err := e.GetOrCreate(ctx, "D", "R", l.ID, "R")
	if err != nil {
		t.Fatalf("second GetOrCreate: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("ids differ: %s vs %s", first.ID, second.ID)
	}

	// The donor opening the same chat resolves to the same record too.
	third, err := e.GetOrCreate(ctx, "D", "R", l.ID, "D")
	if err != nil {
		t.Fatalf("donor GetOrCreate: %v", err)
	}
	if third.ID != first.ID {
		t.Fatalf("donor resolved a different negotiation: %s vs %s", third.ID, first.ID)
	}

	got, _ := listings.Get(ctx, l.ID)
	if got.Status != listing.StatusReserved {
		t.Errorf("listing status = %q, want %q", got.Status, listing.StatusReserved)
	}
}

func TestGetOrCreateConcurrentSameTriple(t *testing.T) {
	e, listings := setupEngine(t)
	ctx := context.Background()
	l := publish(t, listings, "D")

	const callers = 16
	ids := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n, err := e.GetOrCreate(ctx, "D", "R", l.ID, "R")
			if n != nil {
				ids[i] = n.ID
			}
			errs[i] = err
		}(i)
	}
	wg.Wait()

	want := DeriveID("D", "R", l.ID)
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d failed: %v", i, errs[i])
		}
		if ids[i] != want {
			t.Fatalf("caller %d got id %s, want %s", i, ids[i], want)
		}
	}
}

func TestGetOrCreateTwoRecipientsRace(t *testing.T) {
	e, listings := setupEngine(t)
	ctx := context.Background()
	l := publish(t, listings, "D")

	recipients := []string{"R1", "R2", "R3", "R4"}
	errs := make([]error, len(recipients))
	var wg sync.WaitGroup
	for i, r := range recipients {
		wg.Add(1)
		go func(i int, r string) {
			defer wg.Done()
			_, errs[i] = e.GetOrCreate(ctx, "D", r, l.ID, r)
		}(i, r)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, fault.ErrConflict):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("%d recipients opened a negotiation, want exactly 1", wins)
	}
}

func TestGetOrCreateValidation(t *testing.T) {
	e, listings := setupEngine(t)
	ctx := context.Background()
	l := publish(t, listings, "D")

	cases := []struct {
		name      string
		donor     string
		recipient string
		listingID string
		actor     string
		want      error
	}{
		{"missing listing", "D", "R", "", "R", fault.ErrValidation},
		{"donor equals recipient", "D", "D", l.ID, "D", fault.ErrValidation},
		{"actor not a party", "D", "R", l.ID, "X", fault.ErrUnauthorized},
		{"unknown listing", "D", "R", "no-such-listing", "R", fault.ErrNotFound},
		{"wrong donor for listing", "D2", "R", l.ID, "R", fault.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := e.GetOrCreate(ctx, tc.donor, tc.recipient, tc.listingID, tc.actor); !errors.Is(err, tc.want) {
				t.Errorf("GetOrCreate = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestFullHandoffFlow(t *testing.T) {
	e, listings := setupEngine(t)
	ctx := context.Background()
	l := publish(t, listings, "D")

	n, err := e.GetOrCreate(ctx, "D", "R", l.ID, "R")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	// Wrong role first: the recipient cannot confirm delivery, and the
	// donor cannot confirm receipt on a pending negotiation.
	if _, err := e.ConfirmDelivery(ctx, n.ID, "R"); !errors.Is(err, fault.ErrUnauthorized) {
		t.Errorf("recipient ConfirmDelivery = %v, want ErrUnauthorized", err)
	}
	if _, err := e.ConfirmReceipt(ctx, n.ID, "D"); !errors.Is(err, fault.ErrUnauthorized) {
		t.Errorf("donor ConfirmReceipt = %v, want ErrUnauthorized", err)
	}
	// Right role, wrong state: receipt before delivery.
	if _, err := e.ConfirmReceipt(ctx, n.ID, "R"); !errors.Is(err, fault.ErrInvalidTransition) {
		t.Errorf("ConfirmReceipt on pending = %v, want ErrInvalidTransition", err)
	}

	got, err := e.ConfirmDelivery(ctx, n.ID, "D")
	if err != nil {
		t.Fatalf("ConfirmDelivery: %v", err)
	}
	if got.Status != StatusDelivered || got.DeliveredAt == nil {
		t.Fatalf("after delivery: status=%q deliveredAt=%v", got.Status, got.DeliveredAt)
	}

	// Delivery is not repeatable.
	if _, err := e.ConfirmDelivery(ctx, n.ID, "D"); !errors.Is(err, fault.ErrInvalidTransition) {
		t.Errorf("second ConfirmDelivery = %v, want ErrInvalidTransition", err)
	}

	got, err = e.ConfirmReceipt(ctx, n.ID, "R")
	if err != nil {
		t.Fatalf("ConfirmReceipt: %v", err)
	}
	if got.Status != StatusCompleted || got.CompletedAt == nil {
		t.Fatalf("after receipt: status=%q completedAt=%v", got.Status, got.CompletedAt)
	}

	lGot, _ := listings.Get(ctx, l.ID)
	if lGot.Status != listing.StatusCompleted {
		t.Errorf("listing status = %q, want %q", lGot.Status, listing.StatusCompleted)
	}

	// Terminal state: nothing more is reachable.
	if _, err := e.ConfirmReceipt(ctx, n.ID, "R"); !errors.Is(err, fault.ErrInvalidTransition) {
		t.Errorf("ConfirmReceipt on completed = %v, want ErrInvalidTransition", err)
	}
}

func TestConcurrentConfirmDeliveryOneWinner(t *testing.T) {
	e, listings := setupEngine(t)
	ctx := context.Background()
	l := publish(t, listings, "D")
	n, err := e.GetOrCreate(ctx, "D", "R", l.ID, "D")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	const racers = 8
	errs := make([]error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.ConfirmDelivery(ctx, n.ID, "D")
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, fault.ErrInvalidTransition):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("%d deliveries confirmed, want exactly 1", wins)
	}
}

type recordingPurger struct {
	mu  sync.Mutex
	ids []string
}

func (p *recordingPurger) SchedulePurge(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, id)
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingNotifier) PublishStatus(id string, n *Negotiation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf("%s:%s", id, n.Status))
}

func TestCompletionSchedulesPurgeAndNotifies(t *testing.T) {
	listings := listing.NewMemoryStore()
	negs := NewMemoryStore(listings)
	purger := &recordingPurger{}
	notifier := &recordingNotifier{}
	e := NewEngine(negs, listings).WithNotifier(notifier).WithPurger(purger)

	ctx := context.Background()
	l := publish(t, listings, "D")
	n, err := e.GetOrCreate(ctx, "D", "R", l.ID, "R")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if _, err := e.ConfirmDelivery(ctx, n.ID, "D"); err != nil {
		t.Fatalf("ConfirmDelivery: %v", err)
	}
	if _, err := e.ConfirmReceipt(ctx, n.ID, "R"); err != nil {
		t.Fatalf("ConfirmReceipt: %v", err)
	}

	if len(purger.ids) != 1 || purger.ids[0] != n.ID {
		t.Errorf("purge scheduled for %v, want [%s]", purger.ids, n.ID)
	}
	wantEvents := []string{n.ID + ":" + StatusDelivered, n.ID + ":" + StatusCompleted}
	if len(notifier.events) != 2 || notifier.events[0] != wantEvents[0] || notifier.events[1] != wantEvents[1] {
		t.Errorf("events = %v, want %v", notifier.events, wantEvents)
	}
}

func TestReopenAfterCompletionConflicts(t *testing.T) {
	e, listings := setupEngine(t)
	ctx := context.Background()
	l := publish(t, listings, "D")

	n, _ := e.GetOrCreate(ctx, "D", "R", l.ID, "R")
	if _, err := e.ConfirmDelivery(ctx, n.ID, "D"); err != nil {
		t.Fatalf("ConfirmDelivery: %v", err)
	}
	if _, err := e.ConfirmReceipt(ctx, n.ID, "R"); err != nil {
		t.Fatalf("ConfirmReceipt: %v", err)
	}

	if _, err := e.GetOrCreate(ctx, "D", "R", l.ID, "R"); !errors.Is(err, fault.ErrConflict) {
		t.Errorf("reopen after completion = %v, want ErrConflict", err)
	}
}

func TestGetParticipantOnly(t *testing.T) {
	e, listings := setupEngine(t)
	ctx := context.Background()
	l := publish(t, listings, "D")
	n, _ := e.GetOrCreate(ctx, "D", "R", l.ID, "R")

	if _, err := e.Get(ctx, n.ID, "stranger"); !errors.Is(err, fault.ErrUnauthorized) {
		t.Errorf("Get by stranger = %v, want ErrUnauthorized", err)
	}
	if _, err := e.Get(ctx, n.ID, "D"); err != nil {
		t.Errorf("Get by donor = %v, want nil", err)
	}
	if _, err := e.Get(ctx, "missing", "D"); !errors.Is(err, fault.ErrNotFound) {
		t.Errorf("Get missing = %v, want ErrNotFound", err)
	}
}

func TestListMineOrdering(t *testing.T) {
	e, listings := setupEngine(t)
	ctx := context.Background()

	l1 := publish(t, listings, "D1")
	l2 := publish(t, listings, "D2")
	n1, _ := e.GetOrCreate(ctx, "D1", "R", l1.ID, "R")
	n2, _ := e.GetOrCreate(ctx, "D2", "R", l2.ID, "R")

	mine, err := e.ListMine(ctx, "R")
	if err != nil {
		t.Fatalf("ListMine: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("ListMine returned %d, want 2", len(mine))
	}
	seen := map[string]bool{mine[0].ID: true, mine[1].ID: true}
	if !seen[n1.ID] || !seen[n2.ID] {
		t.Errorf("ListMine = %v, want both %s and %s", mine, n1.ID, n2.ID)
	}

	other, err := e.ListMine(ctx, "D1")
	if err != nil {
		t.Fatalf("ListMine: %v", err)
	}
	if len(other) != 1 || other[0].ID != n1.ID {
		t.Errorf("donor ListMine = %v, want only %s", other, n1.ID)
	}
}

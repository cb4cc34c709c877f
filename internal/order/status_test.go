package order

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/ariefcatur/surplus-orders/internal/inventory"
)

func TestCanTransition_Table(t *testing.T) {
	assert.True(t, CanTransition(StatusCreated, StatusPendingAcceptance))
	assert.True(t, CanTransition(StatusPendingAcceptance, StatusCancelled))
	assert.True(t, CanTransition(StatusReady, StatusExpired))
	assert.False(t, CanTransition(StatusCreated, StatusPaid))
	assert.False(t, CanTransition(StatusPaid, StatusCancelled))
	assert.False(t, CanTransition(StatusCompleted, StatusCompleted))
	assert.False(t, CanTransition("BOGUS", StatusPaid))

	for _, s := range AllStatuses() {
		assert.True(t, s.Valid(), s)
	}
	for _, s := range []Status{StatusDeclined, StatusCancelled, StatusCompleted, StatusExpired} {
		assert.True(t, s.Terminal(), s)
	}
	assert.False(t, StatusReady.Terminal())
}

// TestMachine_PathsFollowTable drives random actions through the full saga and
// checks every observed status sequence against the transition table.
func TestMachine_PathsFollowTable(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := newFixture(t)
		o := f.created(t)
		history := []Status{o.Status}

		steps := rapid.IntRange(1, 25).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			prev, err := f.orders.Get(ctx, o.ID)
			if err != nil {
				rt.Fatalf("get: %v", err)
			}
			action := rapid.SampledFrom([]string{
				"submit", "accept", "decline", "cancel", "prepare", "ready",
				"pickup", "badpickup", "complete", "sweep", "wait",
			}).Draw(rt, "action")
			switch action {
			case "submit":
				_, _ = f.m.Submit(ctx, Buyer("buyer-1"), o.ID, "pm-1")
			case "accept":
				_, _ = f.m.Accept(ctx, Staff("staff-1"), o.ID)
			case "decline":
				_, _ = f.m.Decline(ctx, Staff("staff-1"), o.ID, "")
			case "cancel":
				_, _ = f.m.Cancel(ctx, Buyer("buyer-1"), o.ID, "")
			case "prepare":
				_, _ = f.m.Prepare(ctx, Staff("staff-1"), o.ID)
			case "ready":
				_, _ = f.m.Ready(ctx, Staff("staff-1"), o.ID)
			case "pickup":
				_, _ = f.m.VerifyPickup(ctx, Staff("staff-1"), o.ID, prev.PickupCode)
			case "badpickup":
				_, _ = f.m.VerifyPickup(ctx, Staff("staff-1"), o.ID, "??????")
			case "complete":
				_, _ = f.m.Complete(ctx, System(), o.ID)
			case "sweep":
				_, _ = f.m.CancelExpiredAcceptance(ctx, o.ID)
				_, _ = f.m.ExpireOverduePickup(ctx, o.ID)
			case "wait":
				f.clock.Advance(time.Duration(rapid.IntRange(1, 3*3600).Draw(rt, "seconds")) * time.Second)
			}

			cur, err := f.orders.Get(ctx, o.ID)
			if err != nil {
				rt.Fatalf("get: %v", err)
			}
			if prev.Status.Terminal() && cur.Status != prev.Status {
				rt.Fatalf("terminal %s moved to %s", prev.Status, cur.Status)
			}
			if cur.Status != history[len(history)-1] {
				history = append(history, cur.Status)
			}
		}

		for i := 1; i < len(history); i++ {
			from, to := history[i-1], history[i]
			// verify chains PICKED_UP into COMPLETED within one call
			if from == StatusReady && to == StatusCompleted {
				continue
			}
			if !CanTransition(from, to) {
				rt.Fatalf("illegal step %s -> %s in %v", from, to, history)
			}
		}
		for i, s := range history {
			if s == StatusPaid && (i == 0 || history[i-1] != StatusPendingAcceptance) {
				rt.Fatalf("PAID without PENDING_ACCEPTANCE in %v", history)
			}
		}

		held, _ := f.store.Held(ctx, "u-1", inventory.OrderHolder(o.ID))
		cur, _ := f.orders.Get(ctx, o.ID)
		if cur.Status.Terminal() && held != 0 {
			rt.Fatalf("terminal order %s still holds %d", cur.Status, held)
		}
	})
}

package claim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trashtotreasure/treasure/internal/model"
)

// TestConcurrentAccepts verifies that of many simultaneous accepts on one
// item exactly one wins and every other request ends rejected.
func TestConcurrentAccepts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.item(t, f.alice)

	const numRequesters = 8
	requests := make([]*model.Request, numRequesters)
	for i := range requests {
		u := f.user(t, fmt.Sprintf("requester%d@example.com", i))
		requests[i] = f.request(t, item, u)
	}

	var successCount, unavailableCount atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for _, r := range requests {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			<-start
			_, err := f.svc.AcceptRequest(ctx, id, f.alice.ID)
			if err == nil {
				successCount.Add(1)
				return
			}
			var e *Error
			if KindOf(err) == KindConflict && errors.As(err, &e) && e.Message == MsgItemUnavailable {
				unavailableCount.Add(1)
				return
			}
			t.Errorf("unexpected error: %v", err)
		}(r.ID)
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, successCount.Load(), "exactly one accept wins")
	assert.EqualValues(t, numRequesters-1, unavailableCount.Load())

	accepted := 0
	for _, r := range requests {
		switch f.getRequest(t, r.ID).Status {
		case model.RequestStatusAccepted:
			accepted++
		case model.RequestStatusRejected:
		default:
			t.Errorf("request %s left pending", r.ID)
		}
	}
	assert.Equal(t, 1, accepted)

	got := f.getItem(t, item.ID)
	assert.Equal(t, model.ItemStatusClaimed, got.Status)
	assertClaimConsistent(t, got)
}

// TestClaimRacesAccept verifies that a direct claim and an accept on the same
// item gate on the same transition.
func TestClaimRacesAccept(t *testing.T) {
	for i := 0; i < 10; i++ {
		f := newFixture(t)
		ctx := context.Background()
		item := f.item(t, f.alice)
		rb := f.request(t, item, f.bob)

		var acceptErr, claimErr error
		var wg sync.WaitGroup
		start := make(chan struct{})
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			_, acceptErr = f.svc.AcceptRequest(ctx, rb.ID, f.alice.ID)
		}()
		go func() {
			defer wg.Done()
			<-start
			_, claimErr = f.svc.ClaimItem(ctx, item.ID, f.carol.ID)
		}()
		close(start)
		wg.Wait()

		require.True(t, (acceptErr == nil) != (claimErr == nil),
			"exactly one must win: accept=%v claim=%v", acceptErr, claimErr)

		got := f.getItem(t, item.ID)
		assertClaimConsistent(t, got)
		if acceptErr == nil {
			assert.Equal(t, f.bob.ID, *got.ClaimedBy)
			assert.Equal(t, KindConflict, KindOf(claimErr))
			assert.Equal(t, model.RequestStatusAccepted, f.getRequest(t, rb.ID).Status)
		} else {
			assert.Equal(t, f.carol.ID, *got.ClaimedBy)
			assert.Equal(t, KindConflict, KindOf(acceptErr))
			assert.Equal(t, model.RequestStatusPending, f.getRequest(t, rb.ID).Status,
				"losing accept must not cascade or accept")
		}
	}
}

// TestConcurrentDuplicateRequests verifies that one requester racing with
// itself ends up with a single open request.
func TestConcurrentDuplicateRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.item(t, f.alice)

	const attempts = 10
	var successCount, duplicateCount atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.svc.CreateRequest(ctx, item.ID, f.bob.ID, "")
			if err == nil {
				successCount.Add(1)
				return
			}
			var e *Error
			if errors.As(err, &e) && e.Kind == KindConflict && e.Message == MsgAlreadyRequested {
				duplicateCount.Add(1)
				return
			}
			t.Errorf("unexpected error: %v", err)
		}()
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, successCount.Load())
	assert.EqualValues(t, attempts-1, duplicateCount.Load())

	var open int
	require.NoError(t, f.db.QueryRow(
		`SELECT COUNT(*) FROM requests WHERE item_id = ? AND requester_id = ? AND status IN ('pending', 'accepted')`,
		item.ID, f.bob.ID).Scan(&open))
	assert.Equal(t, 1, open)
}

// TestAcceptOrderIndependence checks that whichever request is accepted, the
// end state has one accepted request and all former siblings rejected.
func TestAcceptOrderIndependence(t *testing.T) {
	for winner := 0; winner < 3; winner++ {
		t.Run(fmt.Sprintf("winner%d", winner), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			item := f.item(t, f.alice)
			dave := f.user(t, "dave@example.com")

			requests := []*model.Request{
				f.request(t, item, f.bob),
				f.request(t, item, f.carol),
				f.request(t, item, dave),
			}

			_, err := f.svc.AcceptRequest(ctx, requests[winner].ID, f.alice.ID)
			require.NoError(t, err)

			for i, r := range requests {
				want := model.RequestStatusRejected
				if i == winner {
					want = model.RequestStatusAccepted
				}
				assert.Equal(t, want, f.getRequest(t, r.ID).Status)
			}
			assert.Equal(t, requests[winner].RequesterID, *f.getItem(t, item.ID).ClaimedBy)
		})
	}
}

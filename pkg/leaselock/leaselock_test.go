package leaselock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/UtrechtUniversity/ricgraph-go/pkg/store/mem"
)

func TestAcquireAndRelease(t *testing.T) {
	st := mem.New()
	c := New(st)
	ctx := context.Background()

	lease, err := c.Acquire(ctx, "harvest", Options{TTL: time.Minute})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if lease.Token == "" {
		t.Fatal("expected a token")
	}

	if _, err := c.Acquire(ctx, "harvest", Options{TTL: time.Minute}); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}

	if err := lease.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	select {
	case <-lease.Context.Done():
	case <-time.After(time.Second):
		t.Fatal("lease context not canceled after release")
	}

	second, err := c.Acquire(ctx, "harvest", Options{TTL: time.Minute})
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	_ = second.Release(ctx)
}

func TestAcquireEmptyKey(t *testing.T) {
	c := New(mem.New())
	if _, err := c.Acquire(context.Background(), "", Options{}); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestWithLeaseReleasesOnError(t *testing.T) {
	st := mem.New()
	c := New(st)
	ctx := context.Background()

	boom := errors.New("boom")
	err := c.WithLease(ctx, "harvest", Options{TTL: time.Minute}, func(ctx context.Context) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	// The lease must be free again even though fn failed.
	lease, err := c.Acquire(ctx, "harvest", Options{TTL: time.Minute})
	if err != nil {
		t.Fatalf("acquire after failed run: %v", err)
	}
	_ = lease.Release(ctx)
}

func TestRenewKeepsLeaseAlive(t *testing.T) {
	st := mem.New()
	c := New(st)
	ctx := context.Background()

	lease, err := c.Acquire(ctx, "harvest", Options{
		TTL:        120 * time.Millisecond,
		RenewEvery: 30 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer lease.Release(ctx)

	// Well past the original TTL; renewal must have kept it held.
	time.Sleep(300 * time.Millisecond)

	select {
	case <-lease.Context.Done():
		t.Fatalf("lease lost despite renewal: %v", context.Cause(lease.Context))
	default:
	}
	if _, err := c.Acquire(ctx, "harvest", Options{TTL: time.Minute}); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy while renewed, got %v", err)
	}
}

func TestLostLeaseCancelsContext(t *testing.T) {
	st := mem.New()
	c := New(st)
	ctx := context.Background()

	lease, err := c.Acquire(ctx, "harvest", Options{
		TTL:        time.Minute,
		RenewEvery: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	// Steal the lease out from under the holder.
	if err := st.ReleaseLease(ctx, "harvest", lease.Token); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, err := st.TryLease(ctx, "harvest", "thief", time.Minute); err != nil || !ok {
		t.Fatalf("thief takeover failed: ok=%v err=%v", ok, err)
	}

	select {
	case <-lease.Context.Done():
		if cause := context.Cause(lease.Context); !errors.Is(cause, ErrLost) {
			t.Fatalf("expected ErrLost cause, got %v", cause)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("lease context not canceled after takeover")
	}
	_ = lease.Release(ctx)
}

func TestWaitAcquiresAfterRelease(t *testing.T) {
	st := mem.New()
	c := New(st)
	ctx := context.Background()

	first, err := c.Acquire(ctx, "harvest", Options{TTL: time.Minute})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		second, err := c.Acquire(ctx, "harvest", Options{
			TTL:          time.Minute,
			Wait:         true,
			WaitInterval: 10 * time.Millisecond,
		})
		if err == nil {
			_ = second.Release(ctx)
		}
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("waited acquire: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waited acquire did not complete")
	}
}

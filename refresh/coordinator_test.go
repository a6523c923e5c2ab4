package refresh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type blockingRenewer struct {
	started chan struct{}
	release chan struct{}
	err     error
	calls   atomic.Int32
	ctxErr  atomic.Value
}

func newBlockingRenewer(err error) *blockingRenewer {
	return &blockingRenewer{
		started: make(chan struct{}, 16),
		release: make(chan struct{}),
		err:     err,
	}
}

func (b *blockingRenewer) Refresh(ctx context.Context) error {
	b.calls.Add(1)
	b.started <- struct{}{}
	<-b.release
	if err := ctx.Err(); err != nil {
		b.ctxErr.Store(err)
	}
	return b.err
}

func TestCoordinatorCoalescesConcurrentCallers(t *testing.T) {
	renewErr := errors.New("refresh rejected")
	r := newBlockingRenewer(renewErr)
	c := New(r)

	const callers = 20
	errs := make([]error, callers)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		errs[0] = c.Do(context.Background())
	}()
	<-r.started
	if !c.InFlight() {
		t.Fatal("expected renewal to be in flight")
	}

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.Do(context.Background())
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(r.release)
	wg.Wait()

	if got := r.calls.Load(); got != 1 {
		t.Fatalf("expected one renewal call, got %d", got)
	}
	if c.Calls() != 1 {
		t.Fatalf("expected Calls()=1, got %d", c.Calls())
	}
	for i, err := range errs {
		if !errors.Is(err, renewErr) {
			t.Fatalf("caller %d: expected shared error, got %v", i, err)
		}
	}
	if c.InFlight() {
		t.Fatal("expected coordinator to clear after completion")
	}
}

func TestCoordinatorStartsFreshRenewalAfterCompletion(t *testing.T) {
	var calls atomic.Int32
	c := New(RenewerFunc(func(context.Context) error {
		calls.Add(1)
		return nil
	}))

	for i := 0; i < 3; i++ {
		if err := c.Do(context.Background()); err != nil {
			t.Fatalf("renewal %d: %v", i, err)
		}
	}
	if calls.Load() != 3 || c.Calls() != 3 {
		t.Fatalf("expected 3 sequential renewals, got %d/%d", calls.Load(), c.Calls())
	}
}

func TestCoordinatorCallerCancellationDoesNotCancelRenewal(t *testing.T) {
	r := newBlockingRenewer(nil)
	var results []Result
	var mu sync.Mutex
	done := make(chan struct{})
	c := New(r, WithObserver(func(res Result) {
		mu.Lock()
		results = append(results, res)
		mu.Unlock()
		close(done)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Do(ctx) }()
	<-r.started

	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected caller to see context.Canceled, got %v", err)
	}

	close(r.release)
	<-done
	if v := r.ctxErr.Load(); v != nil {
		t.Fatalf("renewal context was canceled: %v", v)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(results) != 1 || results[0].Err != nil {
		t.Fatalf("unexpected results %+v", results)
	}
}

func TestCoordinatorWithoutRenewer(t *testing.T) {
	if err := New(nil).Do(context.Background()); !errors.Is(err, ErrNoRenewer) {
		t.Fatalf("expected ErrNoRenewer, got %v", err)
	}
	var c *Coordinator
	if err := c.Do(context.Background()); !errors.Is(err, ErrNoRenewer) {
		t.Fatalf("expected ErrNoRenewer on nil coordinator, got %v", err)
	}
}

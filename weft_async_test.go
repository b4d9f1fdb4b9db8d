package weft

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestAsyncDerived(t *testing.T) {
	t.Run("reads are pending until the evaluation settles", func(t *testing.T) {
		g := New()

		count := NewPrimitiveWith(g, 2)
		double := NewAsyncDerivedWith(g, func(r Reader) (int, error) {
			return count.Read(r) * 2, nil
		})

		_, err := double.Get()
		assert.ErrorIs(t, err, ErrPending)

		v, err := double.Wait(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 4, v)

		// settled now, plain reads hit the cache
		assert.Equal(t, 4, double.MustGet())
	})

	t.Run("at most one concurrent compute", func(t *testing.T) {
		g := New()

		var mu sync.Mutex
		calls := 0
		gate := make(chan struct{})

		count := NewPrimitiveWith(g, 2)
		slow := NewAsyncDerivedWith(g, func(r Reader) (int, error) {
			mu.Lock()
			calls++
			mu.Unlock()
			v := count.Read(r)
			<-gate
			return v * 2, nil
		})

		var eg errgroup.Group
		for i := 0; i < 2; i++ {
			eg.Go(func() error {
				v, err := slow.Wait(context.Background())
				if err != nil {
					return err
				}
				assert.Equal(t, 4, v)
				return nil
			})
		}

		time.Sleep(20 * time.Millisecond)
		close(gate)
		require.NoError(t, eg.Wait())

		mu.Lock()
		assert.Equal(t, 1, calls)
		mu.Unlock()
	})

	t.Run("staleness wins over an in-flight result", func(t *testing.T) {
		g := New()

		var mu sync.Mutex
		calls := 0
		started := make(chan struct{})
		release := make(chan struct{})

		count := NewPrimitiveWith(g, 1)
		tenfold := NewAsyncDerivedWith(g, func(r Reader) (int, error) {
			v := count.Read(r)
			mu.Lock()
			calls++
			mu.Unlock()
			started <- struct{}{}
			<-release
			return v * 10, nil
		})

		seen := make(chan int, 4)
		tenfold.Subscribe(func() { seen <- tenfold.MustGet() })

		_, err := tenfold.Get()
		assert.ErrorIs(t, err, ErrPending)
		<-started

		// invalidate while the first evaluation is in flight
		count.Set(2)

		results := make(chan int, 1)
		go func() {
			v, err := tenfold.Wait(context.Background())
			assert.NoError(t, err)
			results <- v
		}()

		release <- struct{}{} // first evaluation resolves, result discarded
		<-started             // a fresh evaluation begins
		release <- struct{}{} // and resolves against the new value

		assert.Equal(t, 20, <-results)

		mu.Lock()
		assert.Equal(t, 2, calls)
		mu.Unlock()

		// the discarded result was never observable
		select {
		case v := <-seen:
			assert.Equal(t, 20, v)
		case <-time.After(time.Second):
			t.Fatal("no notification after the second settle")
		}
		select {
		case v := <-seen:
			t.Fatalf("unexpected extra notification: %d", v)
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("caches async errors", func(t *testing.T) {
		g := New()
		calls := 0

		count := NewPrimitiveWith(g, -1)
		checked := NewAsyncDerivedWith(g, func(r Reader) (int, error) {
			calls++
			v := count.Read(r)
			if v < 0 {
				return 0, assert.AnError
			}
			return v, nil
		})

		_, err := checked.Wait(context.Background())
		assert.ErrorIs(t, err, assert.AnError)

		_, err = checked.Get()
		assert.ErrorIs(t, err, assert.AnError)
		assert.Equal(t, 1, calls)

		count.Set(3)
		v, err := checked.Wait(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 3, v)
	})

	t.Run("wait honors context cancellation", func(t *testing.T) {
		g := New()

		gate := make(chan struct{})
		defer close(gate)

		stuck := NewAsyncDerivedWith(g, func(r Reader) (int, error) {
			<-gate
			return 0, nil
		})

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := stuck.Wait(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("sync nodes above an async node stay stale until it settles", func(t *testing.T) {
		g := New()

		gate := make(chan struct{})

		count := NewPrimitiveWith(g, 3)
		fetched := NewAsyncDerivedWith(g, func(r Reader) (int, error) {
			v := count.Read(r)
			<-gate
			return v, nil
		})
		squared := NewDerivedWith(g, func(r Reader) (int, error) {
			v, err := fetched.Read(r)
			if err != nil {
				return 0, err
			}
			return v * v, nil
		})

		_, err := squared.Get()
		assert.ErrorIs(t, err, ErrPending)
		assert.Equal(t, StatusStale, squared.Status())

		close(gate)
		v, err := squared.Wait(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 9, v)
	})

	t.Run("detects cycles between async nodes", func(t *testing.T) {
		g := New()

		var x, y *Derived[int]
		x = NewAsyncDerivedWith(g, func(r Reader) (int, error) {
			return y.Read(r)
		})
		y = NewAsyncDerivedWith(g, func(r Reader) (int, error) {
			return x.Read(r)
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_, err := x.Wait(ctx)
		require.Error(t, err)
		require.NotErrorIs(t, err, context.DeadlineExceeded)

		var ce *CycleError
		require.ErrorAs(t, err, &ce)
		assert.Len(t, ce.Path, 3)
		assert.Equal(t, ce.Path[0], ce.Path[len(ce.Path)-1])
	})

	t.Run("detects async self cycles", func(t *testing.T) {
		g := New()

		var x *Derived[int]
		x = NewAsyncDerivedWith(g, func(r Reader) (int, error) {
			return x.Read(r)
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_, err := x.Wait(ctx)
		var ce *CycleError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, []NodeID{x.ID(), x.ID()}, ce.Path)
	})

	t.Run("an aborted pending read does not mask a newer write", func(t *testing.T) {
		g := New()

		release := make(chan struct{}, 1)

		factor := NewPrimitiveWith(g, 1)
		seed := NewPrimitiveWith(g, 0)
		offset := NewAsyncDerivedWith(g, func(r Reader) (int, error) {
			_ = seed.Read(r)
			<-release
			return 0, nil
		})
		total := NewDerivedWith(g, func(r Reader) (int, error) {
			f := factor.Read(r)
			off, err := offset.Read(r)
			if err != nil {
				return 0, err
			}
			return f*100 + off, nil
		})

		release <- struct{}{}
		v, err := total.Wait(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 100, v)

		// invalidate both; the read below aborts on the in-flight offset
		factor.Set(2)
		seed.Set(1)
		_, err = total.Get()
		assert.ErrorIs(t, err, ErrPending)

		// offset settles with the same value; factor's change must still
		// force a recompute
		release <- struct{}{}
		v, err = total.Wait(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 200, v)
	})

	t.Run("notifies subscribers when it settles", func(t *testing.T) {
		g := New()

		count := NewPrimitiveWith(g, 1)
		doubled := NewAsyncDerivedWith(g, func(r Reader) (int, error) {
			return count.Read(r) * 2, nil
		})

		_, err := doubled.Wait(context.Background())
		require.NoError(t, err)

		settled := make(chan int, 1)
		doubled.Subscribe(func() { settled <- doubled.MustGet() })

		count.Set(5)

		select {
		case v := <-settled:
			assert.Equal(t, 10, v)
		case <-time.After(time.Second):
			t.Fatal("no notification after async settle")
		}
	})
}

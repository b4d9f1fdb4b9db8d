package weft

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBatch(t *testing.T) {
	t.Run("coalesces multiple writes", func(t *testing.T) {
		log := []string{}
		g := New()

		count := NewPrimitiveWith(g, 0)
		double := NewDerivedWith(g, func(r Reader) (int, error) {
			log = append(log, "computing")
			return count.Read(r) * 2, nil
		})
		double.MustGet()

		unsub := double.Subscribe(func() {
			log = append(log, fmt.Sprintf("changed %d", double.MustGet()))
		})
		defer unsub()

		err := g.Batch(func() error {
			count.Set(10)
			count.Set(20)
			count.Set(30)
			log = append(log, "updated")
			return nil
		})
		assert.NoError(t, err)

		assert.Equal(t, []string{
			"computing",
			"updated",
			"computing",
			"changed 60",
		}, log)
	})

	t.Run("batches multiple primitives", func(t *testing.T) {
		log := []string{}
		g := New()

		first := NewPrimitiveWith(g, 1)
		second := NewPrimitiveWith(g, 2)
		sum := NewDerivedWith(g, func(r Reader) (int, error) {
			log = append(log, "computing")
			return first.Read(r) + second.Read(r), nil
		})
		sum.MustGet()

		sum.Subscribe(func() {
			log = append(log, fmt.Sprintf("sum %d", sum.MustGet()))
		})

		g.Batch(func() error {
			first.Set(10)
			second.Set(20)
			return nil
		})

		assert.Equal(t, []string{
			"computing",
			"computing",
			"sum 30",
		}, log)
	})

	t.Run("reads inside a batch observe committed state", func(t *testing.T) {
		g := New()

		count := NewPrimitiveWith(g, 1)
		g.Batch(func() error {
			count.Set(10)
			assert.Equal(t, 1, count.Get())
			return nil
		})

		assert.Equal(t, 10, count.Get())
	})

	t.Run("nested batches join the outer one", func(t *testing.T) {
		g := New()
		fired := 0

		count := NewPrimitiveWith(g, 0)
		count.Subscribe(func() { fired++ })

		g.Batch(func() error {
			count.Set(10)
			return g.Batch(func() error {
				count.Set(20)
				return nil
			})
		})

		assert.Equal(t, 1, fired)
		assert.Equal(t, 20, count.Get())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		g := New()
		fired := 0

		count := NewPrimitiveWith(g, 1)
		count.Subscribe(func() { fired++ })

		err := g.Batch(func() error {
			count.Set(10)
			return errors.New("abort")
		})

		assert.EqualError(t, err, "abort")
		assert.Equal(t, 1, count.Get())
		assert.Equal(t, 0, fired)
	})

	t.Run("rolls back on panic", func(t *testing.T) {
		g := New()
		fired := 0

		count := NewPrimitiveWith(g, 1)
		count.Subscribe(func() { fired++ })

		assert.Panics(t, func() {
			_ = g.Batch(func() error {
				count.Set(10)
				panic("boom")
			})
		})

		assert.Equal(t, 1, count.Get())
		assert.Equal(t, 0, fired)

		// the graph is usable again afterwards
		count.Set(2)
		assert.Equal(t, 2, count.Get())
		assert.Equal(t, 1, fired)
	})

	t.Run("no-op transaction notifies nothing", func(t *testing.T) {
		g := New()
		fired := 0

		count := NewPrimitiveWith(g, 1)
		count.Subscribe(func() { fired++ })

		g.Batch(func() error {
			count.Set(2)
			count.Set(1) // back to the committed value
			return nil
		})

		assert.Equal(t, 0, fired)
		assert.Equal(t, 1, count.Get())
	})

	t.Run("ambient batch", func(t *testing.T) {
		count := NewPrimitive(0)
		fired := 0
		count.Subscribe(func() { fired++ })

		Batch(func() error {
			count.Set(1)
			count.Set(2)
			return nil
		})

		assert.Equal(t, 1, fired)
		assert.Equal(t, 2, count.Get())
	})
}

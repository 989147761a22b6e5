package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"playersync/pkg/logger"
)

func TestWorkerPoolDistribution(t *testing.T) {
	// Property 1: every submitted job runs exactly once before Shutdown returns
	properties := gopter.NewProperties(nil)
	l := logger.NewNop()

	properties.Property("all submitted jobs are processed", prop.ForAll(
		func(numJobs, numWorkers int) bool {
			var count int64
			p := NewWorkerPool(l, numWorkers, 4)
			p.Start(context.Background())

			for i := 0; i < numJobs; i++ {
				_ = p.Submit(context.Background(), func(ctx context.Context) {
					atomic.AddInt64(&count, 1)
				})
			}

			if err := p.Shutdown(context.Background()); err != nil {
				return false
			}
			return atomic.LoadInt64(&count) == int64(numJobs)
		},
		gen.IntRange(0, 100),
		gen.IntRange(1, 8),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestSubmitAfterShutdown(t *testing.T) {
	p := NewWorkerPool(logger.NewNop(), 1, 1)
	p.Start(context.Background())
	require.NoError(t, p.Shutdown(context.Background()))

	err := p.Submit(context.Background(), func(ctx context.Context) {})
	assert.ErrorIs(t, err, ErrPoolClosed)

	// A second shutdown is harmless
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestFuture(t *testing.T) {
	p := NewWorkerPool(logger.NewNop(), 2, 4)
	p.Start(context.Background())
	defer p.Shutdown(context.Background())

	f, err := Submit(context.Background(), p, func(ctx context.Context) (float64, error) {
		return 1250, nil
	})
	require.NoError(t, err)

	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1250.0, v)

	boom := errors.New("store down")
	f, err = Submit(context.Background(), p, func(ctx context.Context) (float64, error) {
		return 0, boom
	})
	require.NoError(t, err)
	_, err = f.Wait(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestFuturePanicIsReported(t *testing.T) {
	p := NewWorkerPool(logger.NewNop(), 1, 1)
	p.Start(context.Background())
	defer p.Shutdown(context.Background())

	f, err := Submit(context.Background(), p, func(ctx context.Context) (int, error) {
		panic("notifier bug")
	})
	require.NoError(t, err)

	_, err = f.Wait(context.Background())
	assert.ErrorContains(t, err, "notifier bug")

	// The worker survives the panic
	f2, err := Submit(context.Background(), p, func(ctx context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	v, err := f2.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestFutureWaitHonoursContext(t *testing.T) {
	p := NewWorkerPool(logger.NewNop(), 1, 1)
	p.Start(context.Background())
	release := make(chan struct{})
	defer func() {
		close(release)
		p.Shutdown(context.Background())
	}()

	f, err := Submit(context.Background(), p, func(ctx context.Context) (int, error) {
		<-release
		return 1, nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = f.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func BenchmarkWorkerPoolSubmit(b *testing.B) {
	p := NewWorkerPool(logger.NewNop(), 4, 1000)
	p.Start(context.Background())
	defer p.Shutdown(context.Background())

	job := func(ctx context.Context) {}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = p.Submit(context.Background(), job)
	}
}

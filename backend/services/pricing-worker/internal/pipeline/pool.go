package pipeline

import (
	"context"
	"sync"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// runPool fans messages out to cfg.Workers goroutines. The reader stops on ctx
// cancellation; workers finish whatever was already handed to them.
func (d *Driver) runPool(ctx context.Context) error {
	workCtx := context.WithoutCancel(ctx)
	intake := make(chan kafka.Message, d.cfg.Workers)
	results := make(chan kafka.Message, d.cfg.Workers)

	var tracker *commitTracker
	ordered := d.cfg.CommitMode == AtLeastOnce && !d.cfg.UnorderedCommit
	if ordered {
		tracker = newCommitTracker()
	}

	var fetchErr error
	go func() {
		defer close(intake)
		for {
			msg, err := d.receive(ctx)
			if err != nil {
				if ctx.Err() == nil {
					fetchErr = err
				}
				return
			}

			switch {
			case d.cfg.CommitMode == AtMostOnce:
				d.commit(ctx, msg)
			case ordered:
				tracker.track(msg)
			}
			intake <- msg
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < d.cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			d.logger.Debug("pipeline worker started", zap.Int("worker", id))
			for msg := range intake {
				d.Process(workCtx, msg)
				if d.cfg.CommitMode == AtLeastOnce {
					results <- msg
				}
			}
		}(i)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for msg := range results {
		if !ordered {
			d.commit(ctx, msg)
			continue
		}
		if next, ok := tracker.complete(msg); ok {
			d.commit(ctx, next)
		}
	}

	if ordered {
		if n := tracker.inFlight(); n > 0 {
			d.logger.Warn("messages left uncommitted at shutdown", zap.Int("count", n))
		}
	}
	return fetchErr
}

package pipeline

import (
	"sync"

	"github.com/segmentio/kafka-go"
)

type partitionKey struct {
	topic     string
	partition int
}

// partitionQueue holds fetched offsets in fetch order. A rebalance can hand out an offset
// again while its first copy is still in flight, so pending may repeat offsets and done
// counts finished copies rather than flagging offsets.
type partitionQueue struct {
	pending  []int64
	done     map[int64]int
	finished map[int64]kafka.Message
}

// commitTracker releases offsets for commit in fetch order per partition: a message is
// committable only once every message fetched before it on the same partition finished.
type commitTracker struct {
	mu         sync.Mutex
	partitions map[partitionKey]*partitionQueue
}

func newCommitTracker() *commitTracker {
	return &commitTracker{partitions: make(map[partitionKey]*partitionQueue)}
}

// track registers msg as in flight. Must be called in fetch order, before complete.
func (t *commitTracker) track(msg kafka.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	q := t.queue(msg)
	q.pending = append(q.pending, msg.Offset)
}

// complete marks msg finished and returns the highest message that is now safe to
// commit, if the contiguous finished prefix grew.
func (t *commitTracker) complete(msg kafka.Message) (kafka.Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	q := t.queue(msg)
	q.done[msg.Offset]++
	q.finished[msg.Offset] = msg

	var (
		last  kafka.Message
		ready bool
	)
	for len(q.pending) > 0 {
		head := q.pending[0]
		if q.done[head] == 0 {
			break
		}
		last, ready = q.finished[head], true

		q.pending = q.pending[1:]
		q.done[head]--
		if q.done[head] == 0 {
			delete(q.done, head)
			delete(q.finished, head)
		}
	}
	return last, ready
}

// inFlight returns the number of tracked messages not yet released.
func (t *commitTracker) inFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, q := range t.partitions {
		n += len(q.pending)
	}
	return n
}

func (t *commitTracker) queue(msg kafka.Message) *partitionQueue {
	key := partitionKey{topic: msg.Topic, partition: msg.Partition}
	q, ok := t.partitions[key]
	if !ok {
		q = &partitionQueue{
			done:     make(map[int64]int),
			finished: make(map[int64]kafka.Message),
		}
		t.partitions[key] = q
	}
	return q
}

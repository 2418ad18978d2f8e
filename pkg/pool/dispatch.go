package pool

import (
	"sync/atomic"

	"github.com/jzx17/parmap/pkg/types"
)

// dispatch feeds one session's inputs to live worker units. Inputs are
// read lazily, grouped into chunks of ChunkSize and handed round-robin
// to units with spare in-flight capacity, so intake never runs further
// ahead than one chunk plus what the workers already hold.
func (c *coordinator[T, R]) dispatch(s *Stream[T, R], in <-chan T) {
	var (
		seq   = s.base
		sent  int64
		chunk []types.WorkItem[T]
	)

	defer func() {
		// publish the next sequence before the done signal, so a session
		// started right after this one drains sees the advanced counter
		c.mu.Lock()
		c.nextSeq = seq
		c.mu.Unlock()
		s.dispatchTotal = sent
		close(s.dispatchDone)
	}()

	flush := func() bool {
		if len(chunk) == 0 {
			return true
		}
		w := c.awaitSlot(s)
		if w < 0 {
			return false
		}
		if err := c.handles[w].pair.SendWork(s.ctx, types.Chunk[T]{Items: chunk}); err != nil {
			c.applySlot(slotEvent{worker: w, exited: true})
			if !orderlyChannelError(err) {
				s.dispatchErr = &types.ChannelError{Worker: w, Op: "send", Cause: err}
			}
			return false
		}
		c.inflight[w]++
		atomic.AddInt64(&c.handles[w].dispatched, int64(len(chunk)))
		sent += int64(len(chunk))
		chunk = nil
		return true
	}

	for {
		c.drainSlots()

		if len(chunk) >= c.config.ChunkSize {
			if !flush() {
				return
			}
		}

		select {
		case v, ok := <-in:
			if !ok {
				if flush() {
					c.casState(types.StateRunning, types.StateDraining)
				}
				return
			}
			s.storeInput(seq, v)
			chunk = append(chunk, types.WorkItem[T]{Seq: seq, Payload: v})
			seq++
			if c.config.Limiter != nil {
				if err := c.config.Limiter.Wait(s.ctx); err != nil {
					flush()
					return
				}
			}
		case ev := <-c.slots:
			c.applySlot(ev)
		case <-s.ctx.Done():
			return
		case <-c.closing:
			return
		}
	}
}

// awaitSlot blocks until some live unit has spare in-flight capacity,
// returning its slot index, or -1 when the session or pool ends first.
func (c *coordinator[T, R]) awaitSlot(s *Stream[T, R]) int {
	for {
		if w := c.pickSlot(); w >= 0 {
			return w
		}
		if c.liveCount() == 0 {
			return -1
		}
		select {
		case ev := <-c.slots:
			c.applySlot(ev)
		case <-s.ctx.Done():
			return -1
		case <-c.closing:
			return -1
		}
	}
}

// pickSlot scans round-robin from the last used slot for a live unit
// below its in-flight bound.
func (c *coordinator[T, R]) pickSlot() int {
	n := c.config.NumWorkers
	for i := 1; i <= n; i++ {
		w := (c.cursor + i) % n
		if c.alive[w] && c.inflight[w] < c.config.InFlightPerWorker {
			c.cursor = w
			return w
		}
	}
	return -1
}

func (c *coordinator[T, R]) applySlot(ev slotEvent) {
	if ev.exited {
		c.alive[ev.worker] = false
		return
	}
	if c.inflight[ev.worker] > 0 {
		c.inflight[ev.worker]--
	}
}

func (c *coordinator[T, R]) drainSlots() {
	for {
		select {
		case ev := <-c.slots:
			c.applySlot(ev)
		default:
			return
		}
	}
}

func (c *coordinator[T, R]) liveCount() int {
	n := 0
	for _, ok := range c.alive {
		if ok {
			n++
		}
	}
	return n
}

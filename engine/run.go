package engine

import (
	"fmt"
	"time"
)

// onConnectCompletion handles the completion of an outstanding
// connect(2), whether it was the initial dial or a scheduled reconnect.
func (e *Engine) onConnectCompletion(d *ringData, result int32) error {
	if result == 0 {
		e.log.Printf("connection %s -> %s established", d.id, d.peer)
		return e.submitNextWrite(&ringData{
			kind:        kindEstablished,
			id:          d.id,
			fd:          d.fd,
			peer:        d.peer,
			sourceIndex: d.sourceIndex,
		})
	}

	e.log.Printf("connection %s -> %s connect failed (result=%d)", d.id, d.peer, result)
	return e.retireOrReconnect(d, d.reconnects)
}

// onWriteCompletion handles the completion of an outstanding write(2).
func (e *Engine) onWriteCompletion(d *ringData, result int32) error {
	if result <= 0 {
		e.log.Printf("connection %s -> %s write failed (result=%d)", d.id, d.peer, result)
		if d.cursor != nil {
			d.cursor.buf.Release()
		}
		reconnecting := &ringData{
			kind:        kindConnecting,
			id:          d.id,
			peer:        d.peer,
			sourceIndex: d.sourceIndex,
		}
		return e.retireOrReconnect(reconnecting, 0)
	}

	cur := d.cursor
	written := cur.bytesWritten + int(result)
	total := cur.buf.Len()
	if written < total {
		d.cursor.bytesWritten = written
		if err := e.ring.PushWrite(d.fd, cur.buf.Bytes(), written, e.tag(d)); err != nil {
			return fmt.Errorf("engine: resubmit partial write: %w", err)
		}
		return submitOK(e)
	}

	cur.buf.Release()
	return e.submitNextWrite(&ringData{
		kind:        kindEstablished,
		id:          d.id,
		fd:          d.fd,
		peer:        d.peer,
		sourceIndex: d.sourceIndex,
	})
}

// onBackoffCompletion handles the completion of a timeout submitted
// ahead of a linked reconnect. The kernel fires the linked connect on
// its own schedule regardless of this completion's result; nothing
// further is required here.
func (e *Engine) onBackoffCompletion(d *ringData, result int32) error {
	e.log.Printf("connection %s backoff elapsed (result=%d), reconnect proceeding", d.next.id, result)
	return nil
}

// submitNextWrite fetches the next buffer for est.sourceIndex, submits
// a write of it, and records the cursor + the index the write *after*
// this one should use.
func (e *Engine) submitNextWrite(est *ringData) error {
	buf, _, err := e.sources[est.sourceIndex].CommandBuffer(time.Since(e.timeAnchor))
	if err != nil {
		return fmt.Errorf("engine: connection %s: buffer source: %w", est.id, err)
	}
	nextIndex := (est.sourceIndex + 1) % len(e.sources)
	est.cursor = &writeCursor{buf: buf}
	est.sourceIndex = nextIndex
	if err := e.ring.PushWrite(est.fd, buf.Bytes(), 0, e.tag(est)); err != nil {
		return fmt.Errorf("engine: submit write: %w", err)
	}
	return submitOK(e)
}

// retireOrReconnect either retires a connection (decrementing the live
// count) or schedules a backoff→connect chain, per the reconnect-limit
// semantics: a connection retires once its reconnect count reaches
// reconnectLimit.
func (e *Engine) retireOrReconnect(d *ringData, reconnectsSoFar int) error {
	if shouldRetire(e.reconnectLimit, reconnectsSoFar) {
		e.connections--
		e.warn.Printf("connection %s -> %s retired after %d reconnect attempt(s); %d connection(s) remain",
			d.id, d.peer, reconnectsSoFar, e.connections)
		return submitOK(e)
	}

	fd, err := dialSameFamily(d.peer, e.ifaces)
	if err != nil {
		e.connections--
		e.warn.Printf("connection %s -> %s: could not open a replacement socket: %v; %d connection(s) remain",
			d.id, d.peer, err, e.connections)
		return submitOK(e)
	}

	backoff := d.backoff
	if backoff <= 0 {
		backoff = initialBackoff
	}
	nextBackoff := nextBackoffDuration(backoff, e.reconnectBackoffLimit)

	connecting := &ringData{
		kind:        kindConnecting,
		id:          d.id,
		fd:          fd,
		peer:        d.peer,
		sourceIndex: d.sourceIndex,
		reconnects:  reconnectsSoFar + 1,
		backoff:     nextBackoff,
	}
	backoffData := &ringData{kind: kindBackoff, next: connecting}

	if err := e.ring.PushTimeout(backoff, e.tag(backoffData), true); err != nil {
		return fmt.Errorf("engine: submit reconnect backoff: %w", err)
	}
	if err := e.ring.PushConnect(fd, d.peer, e.tag(connecting), false); err != nil {
		return fmt.Errorf("engine: submit reconnect connect: %w", err)
	}
	e.log.Printf("connection %s -> %s reconnecting in %s", d.id, d.peer, backoff)
	return submitOK(e)
}

func submitOK(e *Engine) error {
	if _, err := e.ring.Submit(0); err != nil {
		return fmt.Errorf("engine: submit: %w", err)
	}
	return nil
}

// shouldRetire decides whether a connection that has attempted
// reconnectsSoFar reconnects should give up, given reconnectLimit
// (negative means unlimited). Retires once reconnects reaches the
// limit rather than once it exceeds it.
func shouldRetire(reconnectLimit, reconnectsSoFar int) bool {
	if reconnectLimit == 0 {
		return true
	}
	return reconnectLimit > 0 && reconnectsSoFar >= reconnectLimit
}

// nextBackoffDuration doubles current, capped at limit. With a 1s
// initial backoff and an 8s limit this produces 1s, 2s, 4s, 8s, 8s, ...
func nextBackoffDuration(current, limit time.Duration) time.Duration {
	next := current * 2
	if next > limit {
		next = limit
	}
	return next
}

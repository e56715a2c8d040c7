package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

// request is either a buffered log line (data set) or a flush barrier
// (ack set); the two are never combined.
type request struct {
	data []byte
	ack  chan error
}

// asyncWriter decouples log emission from sink IO: lines are queued and a
// single goroutine fans them out to all sinks, flushing when the queue goes
// idle rather than after every line.
type asyncWriter struct {
	reqs  chan request
	done  chan struct{}
	stop  sync.Once
	sinks []*bufio.Writer

	errMu sync.Mutex
	err   error
}

func newAsyncWriter(writers []io.Writer, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	sinks := make([]*bufio.Writer, 0, len(writers))
	for _, w := range writers {
		if w == nil {
			continue
		}
		sinks = append(sinks, bufio.NewWriterSize(w, bufSize))
	}
	aw := &asyncWriter{
		reqs:  make(chan request, 256),
		done:  make(chan struct{}),
		sinks: sinks,
	}
	go aw.run()
	return aw
}

func (w *asyncWriter) run() {
	for {
		req, ok := <-w.reqs
		if !ok {
			w.record(w.flushSinks())
			close(w.done)
			return
		}
		w.handle(req)

		// Drain whatever queued up while writing, then flush once.
	drain:
		for {
			select {
			case req, ok := <-w.reqs:
				if !ok {
					w.record(w.flushSinks())
					close(w.done)
					return
				}
				w.handle(req)
			default:
				break drain
			}
		}
		w.record(w.flushSinks())
	}
}

func (w *asyncWriter) handle(req request) {
	if req.ack != nil {
		req.ack <- w.flushSinks()
		return
	}
	if len(req.data) == 0 {
		return
	}
	for _, sink := range w.sinks {
		if _, err := sink.Write(req.data); err != nil {
			w.record(err)
			return
		}
	}
}

// Write enqueues one log line. The queue blocks when full; dropping log
// lines is worse than a slow producer.
func (w *asyncWriter) Write(p []byte) error {
	if err := w.firstErr(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	data := make([]byte, len(p))
	copy(data, p)
	w.reqs <- request{data: data}
	return nil
}

// Flush blocks until every line queued before it has reached the sinks.
func (w *asyncWriter) Flush() error {
	if err := w.firstErr(); err != nil {
		return err
	}
	ack := make(chan error, 1)
	w.reqs <- request{ack: ack}
	return <-ack
}

// Close drains the queue, flushes the sinks, and reports the first write
// error seen over the writer's lifetime.
func (w *asyncWriter) Close() error {
	w.stop.Do(func() {
		close(w.reqs)
	})
	<-w.done
	return w.firstErr()
}

func (w *asyncWriter) flushSinks() error {
	var errs []error
	for _, sink := range w.sinks {
		if err := sink.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *asyncWriter) firstErr() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.err
}

func (w *asyncWriter) record(err error) {
	if err == nil {
		return
	}
	w.errMu.Lock()
	defer w.errMu.Unlock()
	if w.err == nil {
		w.err = err
	}
}

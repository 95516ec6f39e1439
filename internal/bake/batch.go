package bake

import "context"

// Listener receives batch progress on the caller's context.
//
// Progress is called once with 0 when work begins and once after each task,
// with strictly increasing completed counts. Complete is called exactly once,
// after the last Progress and after the shared engine has resumed.
type Listener interface {
	Progress(percent float64)
	Complete()
}

// ResultListener is an optional extension of Listener. When the listener
// implements it, TaskDone is called with each task's outcome just before the
// Progress call that accounts for that task.
type ResultListener interface {
	Listener
	TaskDone(result TaskResult)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are ignored.
type ListenerFuncs struct {
	OnProgress func(percent float64)
	OnComplete func()
	OnTaskDone func(result TaskResult)
}

func (f ListenerFuncs) Progress(percent float64) {
	if f.OnProgress != nil {
		f.OnProgress(percent)
	}
}

func (f ListenerFuncs) Complete() {
	if f.OnComplete != nil {
		f.OnComplete()
	}
}

func (f ListenerFuncs) TaskDone(result TaskResult) {
	if f.OnTaskDone != nil {
		f.OnTaskDone(result)
	}
}

// Batch is the caller-side end of a running bake.
//
// The worker posts events into the batch mailbox; nothing is delivered until
// the caller drains it with Poll (once per frame, for example) or Wait.
// Callbacks therefore always run on whichever goroutine drains the batch.
//
// Thread-safety: a Batch must be drained from a single goroutine.
type Batch struct {
	runID     string
	mb        *mailbox
	listener  Listener
	completed bool
}

func newBatch(runID string, l Listener) *Batch {
	if l == nil {
		l = ListenerFuncs{}
	}
	return &Batch{
		runID:    runID,
		mb:       newMailbox(),
		listener: l,
	}
}

// RunID returns the identifier of this bake run.
func (b *Batch) RunID() string {
	return b.runID
}

// Poll delivers every pending event to the listener without blocking.
// Returns the number of events delivered.
func (b *Batch) Poll() int {
	n := 0
	for {
		e, ok := b.mb.TryTake()
		if !ok {
			return n
		}
		b.dispatch(e)
		n++
	}
}

// Wait delivers events as they arrive until completion has been delivered.
//
// Cancelling ctx only stops waiting: the worker keeps going and the remaining
// events stay queued for a later Poll or Wait.
func (b *Batch) Wait(ctx context.Context) error {
	for {
		b.Poll()
		if b.completed {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.mb.Wait():
			// Signal received (or mailbox closed) - loop back to Poll
		}
	}
}

// Completed reports whether the completion event has been delivered.
func (b *Batch) Completed() bool {
	return b.completed
}

// Pending returns the number of events posted but not yet delivered.
func (b *Batch) Pending() int {
	return b.mb.Len()
}

func (b *Batch) dispatch(e Event) {
	switch e.Kind {
	case EventProgress:
		if e.Result != nil {
			if rl, ok := b.listener.(ResultListener); ok {
				rl.TaskDone(*e.Result)
			}
		}
		b.listener.Progress(e.Percent)
	case EventComplete:
		b.completed = true
		b.listener.Complete()
	}
}

// post is called from the worker goroutine only.
func (b *Batch) post(e Event) {
	b.mb.Post(e)
}

// close is called from the worker goroutine after completion is posted.
func (b *Batch) close() {
	b.mb.Close()
}

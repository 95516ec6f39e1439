// Package bake implements the baking scheduler: offline rendering of patches
// into the named arrays of a shared real-time engine.
//
// ARCHITECTURE:
//
// Single Worker:
// A Scheduler owns one render engine and one shared engine, neither of which
// is reentrant. Start spawns exactly one worker goroutine which:
//  1. counts the pending tasks once
//  2. posts progress(0)
//  3. pauses the shared engine
//  4. pops tasks until empty (LIFO unless WithOrder(OrderFIFO))
//  5. per task: open, configure, render, close, reconcile, write, register
//  6. resumes the shared engine and posts complete()
//
// Caller Context:
// The worker never calls the Listener. Events go into the Batch mailbox and
// are delivered when the caller drains it with Batch.Poll or Batch.Wait, so
// callbacks always run on the caller's goroutine.
//
// Protocol:
// Submit is only accepted before Start; Start is accepted once. Both
// violations return a *UsageError. There is no cancellation: once started, a
// batch runs to completion.
//
// Render Policy:
// frames = floor(duration*rate); only whole blocks are rendered, so the
// trailing frames below one block are dropped. A non-zero render status is
// logged and the partial buffer is still written. If the destination is
// larger than the buffer its tail is zero-filled first; if it is smaller the
// full buffer is written anyway and a warning is logged.
package bake

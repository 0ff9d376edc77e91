// Package dispatch runs handler invocations on a fixed worker pool behind
// a bounded queue.
//
// Admission is rejection-based: when the queue is full, Submit fails
// immediately with a queue-full error and increments the rejected counter.
// Nothing ever blocks the caller waiting for capacity.
//
// Shutdown stops admission, then drains. Items that have not started when
// the drain deadline passes complete with a cancelled error; handlers that
// are already executing always run to completion.
package dispatch

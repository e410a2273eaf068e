// Package dispatch owns the worker pool that executes recognition jobs.
//
// A fixed number of long-lived workers share one FIFO queue. Each iteration a
// worker dequeues a job, materializes its inputs into a fresh workspace, runs
// the external recognizer, parses the produced PAGE XML, and deposits exactly
// one result on the job's completion channel. Failures of any step are
// converted to a Failure result at the iteration boundary; nothing a job does
// can terminate its worker or disturb other jobs. Workspace cleanup runs on
// every exit path unless debug retention is enabled.
package dispatch

// Package reactor implements the single goroutine event loop that drives the
// runtime.
//
// # Overview
//
// A [Loop] owns one goroutine (the one calling [Loop.Run]) on which every
// task, timer callback and I/O completion runs. Other goroutines interact with
// the loop only through [Loop.Submit], which is safe for concurrent use.
//
// Blocking work (file reads, socket writes, DNS lookups) is offloaded to a
// helper goroutine by [Loop.Await], and its completion is posted back to the
// loop as a task. This keeps script code, which is not thread-safe, confined
// to the loop goroutine.
//
// # Lifetime
//
// Run returns once the loop is idle: no queued tasks, no pending timers, and
// no outstanding references. Offloaded work holds a reference until its
// completion has run, and long-lived resources (e.g. listening servers) may
// hold one explicitly via [Loop.Hold]. Run also returns early on
// [Loop.Stop], or when its context is canceled.
package reactor

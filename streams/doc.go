// Package streams implements the readable and writable byte streams exposed
// to script, on top of a [reactor.Loop] and a [bridge.Bridge].
//
// Streams are engine agnostic: events are delivered to Go listeners, which
// the script bindings wrap. All methods must be called on the loop
// goroutine.
//
// A [Readable] opens its source asynchronously, and starts reading once it
// is flowing, i.e. once a data listener is registered or it is resumed. Each
// completed read delivers its chunk directly if the stream is flowing and
// nothing is buffered, otherwise the chunk is queued until the stream is
// resumed. A zero length read ends the stream, after any buffered chunks are
// delivered.
//
// A [Writable] queues chunks and writes them one at a time. Write reports
// whether the buffered byte count is below the high watermark. When it is
// not, a single drain event follows once the buffer falls back below the
// watermark. After End, finish fires once the queue is empty, and never
// after an error.
//
// Errors are delivered to error listeners, or, if there are none, reported
// through [bridge.Bridge.ReportUncaught].
package streams

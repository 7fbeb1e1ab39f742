// Package bridge connects asynchronous native operations, completed on the
// [reactor.Loop] goroutine, to callbacks and promises owned by a goja
// runtime.
//
// # Lifecycle
//
// Every native operation is tracked by a [Handle]. A handle is issued when
// the operation starts ([Bridge.Issue], [Bridge.IssueDeferred],
// [Bridge.IssueNative]), retains the script callback or promise for the
// operation's lifetime, and may own native resources ([Handle.Own]).
//
// [Bridge.Complete] is the single terminal path for a handle. It validates
// the handle, classifies the result into a script visible [Error], invokes
// the callback with the conventional (err, data) arguments, or settles the
// promise, then releases the retained references and closes every owned
// resource exactly once. Exceptions thrown by the callback are routed to the
// uncaught error policy ([Bridge.ReportUncaught]) and never propagate into
// the loop.
//
// A handle may be canceled ([Handle.Cancel]) while its operation is in
// flight. Completion still runs, and still releases resources, but the
// script is not called.
//
// # Uncaught errors
//
// A single global handler may be registered with
// [Bridge.SetUncaughtHandler]. Without one, an uncaught error is fatal: it
// is reported, and the bridge exits with status 1 ([Bridge.Exit]).
package bridge

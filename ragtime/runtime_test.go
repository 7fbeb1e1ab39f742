package ragtime

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type result struct {
	code   int
	stdout string
	stderr string
}

func run(t *testing.T, src string, opts ...Option) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	r, err := New(append([]Option{WithStdout(&stdout), WithStderr(&stderr)}, opts...)...)
	require.NoError(t, err)
	require.NoError(t, r.Eval(src))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	code, err := r.Run(ctx)
	require.NoError(t, err)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func TestRuntime_consoleAndTimers(t *testing.T) {
	res := run(t, `
		console.log("start %d %j", 1, {a: true});
		setTimeout(function () { console.log("later"); }, 5);
		Promise.resolve().then(function () { console.error("micro"); });
		console.log("end");
	`)
	assert.Equal(t, 0, res.code)
	assert.Equal(t, "start 1 {\"a\":true}\nend\nlater\n", res.stdout)
	assert.Equal(t, "micro\n", res.stderr)
}

func TestRuntime_globals(t *testing.T) {
	res := run(t, `
		var names = ["setTimeout", "clearTimeout", "setInterval", "clearInterval",
			"fs", "http", "net", "process", "console", "EventEmitter", "require"];
		var missing = names.filter(function (n) { return typeof globalThis[n] === "undefined"; });
		console.log(JSON.stringify(missing));
		console.log(require("fs") === fs, require("events") === EventEmitter, process.version);
	`)
	assert.Equal(t, "[]\ntrue true v"+Version+"\n", res.stdout)
}

func TestRuntime_uncaughtErrorIsFatal(t *testing.T) {
	res := run(t, `
		setTimeout(function () { throw new Error("boom"); }, 0);
		setTimeout(function () { console.log("never"); }, 50);
	`)
	assert.Equal(t, 1, res.code)
	assert.Empty(t, res.stdout)
	assert.Contains(t, res.stderr, "Uncaught Error: boom")
}

func TestRuntime_uncaughtHandlerSubstitutesForExit(t *testing.T) {
	res := run(t, `
		process.on("uncaughtException", function (e) { console.log("handled", e.message); });
		setTimeout(function () { throw new Error("boom"); }, 0);
		setTimeout(function () { console.log("still running"); }, 10);
	`)
	assert.Equal(t, 0, res.code)
	assert.Equal(t, "handled boom\nstill running\n", res.stdout)
	assert.Empty(t, res.stderr)
}

func TestRuntime_asyncErrorWithoutHandler(t *testing.T) {
	res := run(t, `
		fs.readFile("/definitely/not/here", function (err) { throw err; });
	`)
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "Uncaught Error: Cannot open file '/definitely/not/here'")
}

func TestRuntime_topLevelThrow(t *testing.T) {
	res := run(t, `console.log("before"); throw new TypeError("bad");`)
	assert.Equal(t, 1, res.code)
	assert.Equal(t, "before\n", res.stdout)
	assert.Contains(t, res.stderr, "Uncaught TypeError: bad")
}

func TestRuntime_unhandledRejection(t *testing.T) {
	res := run(t, `
		Promise.reject(new Error("rejected"));
		fs.readFileAsync("/definitely/not/here").catch(function (e) { console.log(e.code); });
	`)
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "rejected")
}

func TestRuntime_exit(t *testing.T) {
	for src, want := range map[string]int{
		`process.exit(3); console.log("unreachable");`:                                 3,
		`setTimeout(function () { process.exit(4); console.log("unreachable"); }, 1);`: 4,
		`setInterval(function () { process.exit(); }, 1);`:                             0,
	} {
		res := run(t, src)
		assert.Equal(t, want, res.code, src)
		assert.Empty(t, res.stdout, src)
	}
}

func TestRuntime_runFileWithRelativeRequire(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, `lib`), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, `lib`, `greet.js`), []byte(`
		module.exports = function (name) { return "hello " + name; };
	`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, `data.txt`), []byte(`world`), 0o644))
	main := filepath.Join(dir, `main.js`)
	require.NoError(t, os.WriteFile(main, []byte(`
		var greet = require("./lib/greet.js");
		fs.readFile(process.argv[2], function (err, data) {
			if (err) throw err;
			console.log(greet(data));
		});
	`), 0o644))

	var stdout, stderr bytes.Buffer
	r, err := New(WithStdout(&stdout), WithStderr(&stderr), WithArgv(Name, main, filepath.Join(dir, `data.txt`)))
	require.NoError(t, err)
	require.NoError(t, r.RunFile(main))
	code, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, code, stderr.String())
	assert.Equal(t, "hello world\n", stdout.String())
}

func TestRuntime_runFileMissing(t *testing.T) {
	r, err := New(WithStdout(&bytes.Buffer{}), WithStderr(&bytes.Buffer{}))
	require.NoError(t, err)
	err = r.RunFile(filepath.Join(t.TempDir(), `missing.js`))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRuntime_runsOnce(t *testing.T) {
	r, err := New(WithStdout(&bytes.Buffer{}), WithStderr(&bytes.Buffer{}))
	require.NoError(t, err)
	code, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, code)
	_, err = r.Run(context.Background())
	assert.ErrorIs(t, err, ErrRuntimeDone)
	assert.ErrorIs(t, r.Eval(`1`), ErrRuntimeDone)
}

func TestRuntime_contextCanceled(t *testing.T) {
	var stdout bytes.Buffer
	r, err := New(WithStdout(&stdout), WithStderr(&bytes.Buffer{}))
	require.NoError(t, err)
	require.NoError(t, r.Eval(`setInterval(function () {}, 5);`))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	code, err := r.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, code)
	assert.Zero(t, r.Bridge().Live())
}

func TestRuntime_timerCapacityOption(t *testing.T) {
	res := run(t, `
		setTimeout(function () {}, 0);
		try { setTimeout(function () {}, 0); } catch (e) { console.log(e.code); }
	`, WithTimerCapacity(1))
	assert.Equal(t, "MemoryError\n", res.stdout)
}

func TestCollector(t *testing.T) {
	var stdout bytes.Buffer
	r, err := New(WithStdout(&stdout), WithStderr(&bytes.Buffer{}))
	require.NoError(t, err)
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(NewCollector(r)))

	families := make(chan []string, 1)
	require.NoError(t, r.Bridge().Runtime().Set(`scrape`, func() {
		go func() {
			mfs, err := reg.Gather()
			if err != nil {
				families <- []string{err.Error()}
				return
			}
			names := make([]string, 0, len(mfs))
			for _, mf := range mfs {
				names = append(names, mf.GetName())
			}
			families <- names
		}()
	}))
	require.NoError(t, r.Eval(`
		setTimeout(scrape, 0);
		var id = setInterval(function () {}, 1);
		setTimeout(function () { clearInterval(id); }, 200);
	`))
	_, err = r.Run(context.Background())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		"ragtime_loop_tasks_total",
		"ragtime_loop_timers_fired_total",
		"ragtime_loop_panics_total",
		"ragtime_loop_refs",
		"ragtime_loop_queue_depth",
		"ragtime_loop_timers",
		"ragtime_handles_live",
		"ragtime_completions_dropped_total",
	}, <-families)
}

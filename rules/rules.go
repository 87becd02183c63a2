//go:build ruleguard

// Package gorules defines custom linter rules for livesound, run through
// gocritic's ruleguard checker.
package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// WaitGroupGo flags the manual Add/Done pattern. Go 1.25 added wg.Go.
//
//	wg.Add(1)
//	go func() {
//	    defer wg.Done()
//	    work()
//	}()
//
// becomes
//
//	wg.Go(work)
func WaitGroupGo(m dsl.Matcher) {
	m.Match(
		`$wg.Add(1); go func() { defer $wg.Done(); $*body }()`,
	).
		Where(m["wg"].Type.Is("*sync.WaitGroup") || m["wg"].Type.Is("sync.WaitGroup")).
		Report("use $wg.Go(func() { $body }) instead of manual Add/Done pattern (Go 1.25+)").
		Suggest("$wg.Go(func() { $body })")
}

// TestContext flags context.Background in tests. t.Context is cancelled when
// the test ends, which stops goroutines before goleak checks for them.
func TestContext(m dsl.Matcher) {
	m.Match(`context.Background()`).
		Where(m.File().Name.Matches(`_test\.go$`) && m.File().Imports("testing")).
		Report("use t.Context() instead of context.Background() in tests (Go 1.24+)")

	m.Match(`context.TODO()`).
		Where(m.File().Name.Matches(`_test\.go$`)).
		Report("use t.Context() instead of context.TODO() in tests (Go 1.24+)")
}

// StdLog flags the standard log package. Packages log through the module
// loggers from internal/logger.
func StdLog(m dsl.Matcher) {
	m.Import("log")

	m.Match(
		`log.Printf($*_)`,
		`log.Println($*_)`,
		`log.Print($*_)`,
		`log.Fatalf($*_)`,
		`log.Fatal($*_)`,
	).
		Where(!m.File().PkgPath.Matches(`/cmd/`) && !m.File().Name.Matches(`_test\.go$`)).
		Report("use the package logger (GetLogger()) instead of the standard log package")
}

// DirectSentry flags Sentry capture calls outside the telemetry wiring.
// Errors reach Sentry through the errors builder, which scrubs them first.
func DirectSentry(m dsl.Matcher) {
	m.Import("github.com/getsentry/sentry-go")

	m.Match(
		`sentry.CaptureException($*_)`,
		`sentry.CaptureMessage($*_)`,
		`sentry.CaptureEvent($*_)`,
	).
		Where(!m.File().PkgPath.Matches(`internal/(errors|telemetry)$`)).
		Report("report errors through errors.New(...).Build() instead of calling sentry directly")
}

// TimeAfterInLoop flags time.After inside for/select loops. Each iteration
// allocates a timer; use a time.Ticker or a reused time.Timer.
func TimeAfterInLoop(m dsl.Matcher) {
	m.Match(
		`for { select { $*_; case <-time.After($d): $*_; $*_ } }`,
		`for $*_ { select { $*_; case <-time.After($d): $*_; $*_ } }`,
	).
		Where(!m.File().Name.Matches(`_test\.go$`)).
		Report("time.After in a loop allocates a timer per iteration; use a Ticker or reuse a Timer")
}

// SleepInTest flags time.Sleep in tests. Prefer require.Eventually or
// channel synchronization.
func SleepInTest(m dsl.Matcher) {
	m.Match(`time.Sleep($d)`).
		Where(m.File().Name.Matches(`_test\.go$`)).
		Report("avoid time.Sleep in tests; use require.Eventually or wait on a channel")
}

// Package logging provides a minimal logging interface and adapters.
//
// Every component accepts a Logger through its options and defaults to
// NoOpLogger, so logging is opt-in:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	r := runner.New(agent, func(o *runner.Options) { o.Logger = logger })
//
// RunLogger.WithRun scopes entries to one conversation/run pair.
package logging

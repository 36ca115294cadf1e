// Package backoff drives connect attempt loops with pluggable delay strategies.
//
// A Scheduler repeatedly invokes an attempt function. Each invocation gets a
// one-shot done callback. Calling done(nil) ends the loop. Calling done(err)
// arms a timer for the strategy's next delay and then tries again. Calling
// done(Unrecoverable(err)) ends the loop and reports the error to the give-up
// handler. There is no built-in retry ceiling: bound the loop with Limit,
// a strategy that returns Stop, or a classifier that marks errors
// unrecoverable.
//
// # Strategies
//
//   - NewExponential: doubling delay from 1s, capped at 30s, ±10% jitter
//     (github.com/cenkalti/backoff/v5). This is the default.
//   - NewJittered: full-jitter exponential delay (github.com/jpillora/backoff).
//   - NewConstant: the same delay every time.
//   - Limit: wraps any strategy and stops after n retries.
//
// # Usage
//
//	s := backoff.NewScheduler(nil)
//	s.Run(func(done func(error)) {
//	    done(dial())
//	}, func(err error) {
//	    log.Printf("giving up: %v", err)
//	})
package backoff

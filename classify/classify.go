// Package classify decides whether a broker error must stop reconnection.
//
// A Classifier returns true for errors that are unrecoverable. The
// reconnect supervisor consults it through Unrecoverable after every failed
// connect attempt, and through Inspect when an established connection
// closes after recording an error. Budgets count connect failures only.
package classify

import (
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/jonwraymond/brokerops/broker"
)

// Policy decides whether an error is unrecoverable. Classifier and
// *Budget implement it.
type Policy interface {
	Unrecoverable(err error) bool
}

// Classifier reports whether err is unrecoverable.
type Classifier func(err error) bool

// Unrecoverable calls c(err).
func (c Classifier) Unrecoverable(err error) bool { return c(err) }

// Resetter is implemented by stateful classifiers that forget past failures
// after a successful connect.
type Resetter interface {
	Reset()
}

// Inspector is implemented by policies whose answer for an error seen on
// an established connection differs from their answer for a failed
// connect attempt.
type Inspector interface {
	Inspect(err error) bool
}

// Inspect classifies a runtime error with p. It uses p.Inspect when p
// implements Inspector and p.Unrecoverable otherwise.
func Inspect(p Policy, err error) bool {
	if i, ok := p.(Inspector); ok {
		return i.Inspect(err)
	}
	return p.Unrecoverable(err)
}

// Never treats every error as recoverable. It is the default.
var Never Classifier = func(error) bool { return false }

// FatalReplyCodes are reply codes that retrying cannot fix: bad
// credentials and a vhost the user may not open.
var FatalReplyCodes = []int{amqp.AccessRefused, amqp.NotAllowed}

// ReplyCodes returns a classifier that matches AMQP errors carrying one of codes.
func ReplyCodes(codes ...int) Classifier {
	set := make(map[int]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return func(err error) bool {
		code, ok := broker.ReplyCode(err)
		if !ok {
			return false
		}
		_, fatal := set[code]
		return fatal
	}
}

// Fatal matches FatalReplyCodes.
func Fatal() Classifier {
	return ReplyCodes(FatalReplyCodes...)
}

// Any returns a policy that matches when any of ps matches. Every
// member is consulted, so budgets keep counting.
func Any(ps ...Policy) *Composite {
	c := &Composite{}
	for _, p := range ps {
		if p != nil {
			c.policies = append(c.policies, p)
		}
	}
	return c
}

// Composite is the policy returned by Any.
type Composite struct {
	policies []Policy
}

// Unrecoverable reports whether any member policy matches err.
func (c *Composite) Unrecoverable(err error) bool {
	matched := false
	for _, p := range c.policies {
		if p.Unrecoverable(err) {
			matched = true
		}
	}
	return matched
}

// Inspect reports whether any member classifies the runtime error err as
// unrecoverable.
func (c *Composite) Inspect(err error) bool {
	for _, p := range c.policies {
		if Inspect(p, err) {
			return true
		}
	}
	return false
}

// Reset resets every member that implements Resetter.
func (c *Composite) Reset() {
	for _, p := range c.policies {
		if r, ok := p.(Resetter); ok {
			r.Reset()
		}
	}
}

// Budget gives up after a number of consecutive failures.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Reset must be called after a success; the reconnect supervisor does this.
type Budget struct {
	max int

	mu       sync.Mutex
	failures int
}

// MaxConsecutive creates a Budget that classifies the n-th consecutive
// failure as unrecoverable. n <= 0 never gives up.
func MaxConsecutive(n int) *Budget {
	return &Budget{max: n}
}

// Classify counts err as a failure and reports whether the budget is spent.
func (b *Budget) Classify(err error) bool {
	if err == nil || b.max <= 0 {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	return b.failures >= b.max
}

// Unrecoverable is Classify, so a Budget can be used as a Policy.
func (b *Budget) Unrecoverable(err error) bool { return b.Classify(err) }

// Inspect returns false: a dropped connection is not a failed connect
// attempt and does not count toward the budget.
func (b *Budget) Inspect(error) bool { return false }

// Failures returns the current consecutive failure count.
func (b *Budget) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset clears the failure count.
func (b *Budget) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
}

var (
	_ Policy   = Classifier(nil)
	_ Policy   = (*Budget)(nil)
	_ Policy   = (*Composite)(nil)
	_ Resetter = (*Budget)(nil)
	_ Resetter = (*Composite)(nil)

	_ Inspector = (*Budget)(nil)
	_ Inspector = (*Composite)(nil)
)

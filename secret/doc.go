// Package secret resolves credentials referenced from broker URLs and
// configuration values.
//
// Two forms are expanded:
//   - ${VAR} environment references (see ExpandEnvStrict)
//   - secretref:<provider>:<ref> references, resolved through a Provider
//
// A broker URL usually carries the reference in its password:
//
//	amqps://orders:secretref:file:rabbitmq-password@mq.internal:5671/orders
//
// Resolver.ResolveURL runs before every connect attempt, so a rotated
// secret is picked up by the next reconnect. Values substituted into a URL
// are escaped; use ResolveValue for plain configuration strings.
//
// The built-in providers are "env" and "file"; RegisterBuiltins adds their
// factories to a Registry.
package secret

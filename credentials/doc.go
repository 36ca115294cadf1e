// Package credentials supplies short-lived JWT passwords for brokers that
// authenticate with OAuth 2.0 tokens, such as RabbitMQ's OAuth 2 backend.
//
// A TokenSource mints or fetches tokens. URLResolver places the current
// token in the password of a broker URL and plugs into
// reconnect.WithURLResolver, so every connect attempt uses a valid token.
// A Rotator closes each connection shortly before its token expires;
// the supervisor then reconnects with a fresh one.
//
//	src, _ := credentials.NewHMACTokenSource(credentials.HMACConfig{
//	    Key:      key,
//	    Audience: "rabbitmq",
//	    Scopes:   []string{"rabbitmq.read:*/*", "rabbitmq.write:*/*"},
//	})
//	rot := credentials.NewRotator(src, credentials.RotatorConfig{})
//	sup := reconnect.Connect(url, func(conn *reconnect.Connection, err error) {
//	    if err == nil {
//	        _ = rot.Track(ctx, conn)
//	    }
//	}, reconnect.WithURLResolver(credentials.URLResolver(src)))
package credentials

package credentials

import (
	"context"
	"fmt"
	"net/url"
)

// URLResolver returns a resolver that sets the password of a broker URL to
// the current token from src, keeping the username. It has the signature
// of reconnect.URLResolver.
func URLResolver(src TokenSource) func(ctx context.Context, rawURL string) (string, error) {
	return func(ctx context.Context, rawURL string) (string, error) {
		u, err := url.Parse(rawURL)
		if err != nil {
			return "", fmt.Errorf("credentials: parse broker url: %w", err)
		}
		tok, err := src.Token(ctx)
		if err != nil {
			return "", fmt.Errorf("credentials: token: %w", err)
		}

		var user string
		if u.User != nil {
			user = u.User.Username()
		}
		u.User = url.UserPassword(user, tok.Value)
		return u.String(), nil
	}
}

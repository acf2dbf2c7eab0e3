package fetch

import "context"

// TokenSource supplies bearer tokens for providers that require them.
// Implementations own the token lifecycle: acquisition, caching, and
// refresh ahead of expiry.
type TokenSource interface {
	// Token returns a valid access token, performing a credential
	// exchange if the cached one is missing or near expiry.
	Token(ctx context.Context) (string, error)

	// Invalidate discards the cached token, forcing a fresh exchange on
	// the next Token call. Called after the provider rejects a token.
	Invalidate()
}

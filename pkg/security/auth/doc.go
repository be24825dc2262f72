/*
Package auth extracts and resolves API key credentials on HTTP requests.

# Credential sources

Credentials are looked up in order, the first non-blank one wins:

  - X-API-Key: <secret>
  - Authorization: Bearer <secret>
  - Authorization: ApiKey <secret>

Scheme names are case-insensitive.

# Middleware

	mw := auth.NewMiddleware(store, auth.DefaultSources())
	mux.Handle("POST /github-summarizer", mw.Handle(summarizer))

A request without a credential is rejected with 401 and the message
MissingCredentialMessage. A credential that does not resolve to a key is
rejected with 401 "Invalid API key". The resolved key is stored in the
request context, see KeyFromContext, and its id is added to request logs.
*/
package auth

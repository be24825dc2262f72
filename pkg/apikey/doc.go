// Package apikey issues and stores API keys.
//
// # Overview
//
// An API key is a record with an immutable opaque id, a mutable name, a
// secret token handed to the client exactly once at creation, and the quota
// counters (usage count and ceiling) that the quota meter maintains.
//
// The package is organized as:
//
//   - Store: the CRUD service (create, lookup by id or secret, rename,
//     delete, list, reveal) over a pluggable Backend.
//   - Generator: crypto/rand secrets, base64url encoded, fixed length.
//   - Mask: the presentation-only masking shared by every listing.
//   - Sealer: optional XChaCha20-Poly1305 sealing of secrets at rest.
//   - storage: memory, SQLite and Redis Backend implementations.
//
// # Secret Index
//
// Secrets are looked up on every gated request. Backends index the SHA-256
// digest of the secret (HashSecret) rather than the secret itself, so the
// hot-path lookup is a single keyed read and the clear secret never appears
// in an index.
//
// # Usage
//
//	backend := storage.NewMemoryBackend()
//	store := apikey.NewStore(backend, apikey.Options{MaxUses: 1000})
//
//	key, err := store.Create(ctx, "prod")
//	// key.Secret is returned only here and through Reveal
//
//	key, err = store.GetBySecret(ctx, presented)
//	if errors.Is(err, apikey.ErrNotFound) {
//	    // reject the credential
//	}
//
// # Errors
//
// Every error returned by this package matches exactly one of the kinds
// ErrInvalidArgument, ErrNotFound, ErrQuotaExceeded, ErrConflict or
// ErrInternal through errors.Is. The HTTP layer maps kinds to status codes
// in one place.
package apikey

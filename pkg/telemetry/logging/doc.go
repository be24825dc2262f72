// Package logging builds the process log handler on log/slog.
//
// # Overview
//
// New returns a Logger whose handler chain is:
//   - a JSON or text handler with a runtime adjustable level
//   - an optional redacting handler masking API key secrets, bearer and
//     ApiKey authorization values and password fields
//   - a context handler adding request_id and key_id from the context of
//     *Context log calls
//
// # Usage
//
//	logger, err := logging.New(logging.Config{
//	    Level:         "info",
//	    Format:        "json",
//	    RedactSecrets: true,
//	})
//	logger.SetDefault()
//
//	ctx = logging.WithRequestID(ctx, "req-123")
//	slog.Default().InfoContext(ctx, "key created", "key_id", id)
//
// Components log through slog.Default().With("component", ...) and never
// hold a *Logger. SetLevel applies to every logger derived from the default.
//
// # Redaction
//
//   - tg_AbCdEfGh... → tg_***
//   - Bearer eyJ... → Bearer ***
//   - password=hunter2 → password=***
//   - attributes named like secret, token, api_key, authorization → ***
package logging

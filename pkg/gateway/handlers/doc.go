/*
Package handlers implements the Tollgate HTTP routes on top of the key store,
the quota meter and the metrics aggregator.

Routes (relative to the optional base path):

	POST   /api-keys               create a key; the secret is returned once
	GET    /api-keys               list keys, secrets masked, with actualUsage
	GET    /api-keys/{id}          one key, secret masked
	GET    /api-keys/{id}/reveal   {id, secret}
	PUT    /api-keys/{id}          rename
	DELETE /api-keys/{id}          delete
	POST   /validate               {apiKey} -> {valid}; never consumes quota
	POST   /github-summarizer      gated action; consumes one unit of quota
	GET    /metrics                aggregate usage metrics; never fails

Error kinds from the store and the meter are mapped to status codes in one
place, statusFor. Every error body is {"error": message}.
*/
package handlers

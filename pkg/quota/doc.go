// Package quota enforces per-key consumption ceilings.
//
// The Meter admits or denies one unit of consumption for a key and records
// the usage event of an admitted consumption.
//
// # Concurrency
//
// Same-key calls to CheckAndConsume are serialized by a per-key mutex, and
// the storage backend increments the counter with a ceiling in one atomic
// step, which is what keeps several processes sharing a backend correct.
// Distinct keys never contend. For a key with ceiling M, exactly M of any
// number of concurrent calls are admitted.
//
// Exhaustion is not an error: CheckAndConsume returns an Admission with
// Allowed false. Admission.Err converts a denial into an *ExceededError for
// callers that want one.
//
// # Cancellation
//
// The context is checked before the increment only. Once a unit has been
// consumed the admission stands; there are no refunds.
package quota

// Package merge coordinates multi-clip merge submissions: bounded-parallel
// input uploads, merge initiation against the backend, and the polling state
// machine that tracks server-side merging to completion or failure.
package merge

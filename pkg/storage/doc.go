/*
Package storage persists the node's balancer state in BoltDB.

Two buckets: plan history (one record per admitted plan, updated when a
terminal state is observed) and node identity (the UUID minted on first
start). Execution never reads history back — it is an audit trail, not a
checkpoint.
*/
package storage

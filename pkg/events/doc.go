/*
Package events provides the balancer's bounded in-memory event log.

The worker publishes plan admissions and terminal transitions; the mover
publishes per-pair completion and abandonment, each tagged with its plan ID
and volume pair. Publish never blocks: live subscribers with a full buffer
miss the delivery, and every event lands in a ring of the most recent
entries, which late subscribers can replay and the admin API serves
directly. Sequence numbers make gaps visible to consumers that fall behind.
*/
package events

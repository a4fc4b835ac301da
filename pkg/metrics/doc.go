/*
Package metrics defines the Prometheus collectors exported by ballast.

Collectors cover the plan lifecycle (submissions, cancellations, current
state) and the mover's work (bytes and blocks moved, I/O failures, throttle
time). Handler() serves them over HTTP; the agent mounts it at /metrics.
*/
package metrics

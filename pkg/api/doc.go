/*
Package api exposes the balancer worker over an admin HTTP surface.

Endpoints:

	POST   /v1/plans          submit a plan {planId, version, plan, force}
	GET    /v1/plans/current  current work status
	DELETE /v1/plans/{id}     cancel the named plan
	GET    /v1/volumes        storage-ID → base path for attached volumes
	GET    /v1/bandwidth      node-default bandwidth ceiling
	GET    /v1/history        recorded plan history
	GET    /v1/events         retained tail of the balancer event log
	GET    /health            liveness
	GET    /metrics           Prometheus metrics

Failed requests carry {code, message}; the code is the balancer's error
kind, mapped onto HTTP statuses (disabled → 403, busy → 409, unknown plan →
404, internal → 500, everything else → 400).
*/
package api

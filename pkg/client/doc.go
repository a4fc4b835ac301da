/*
Package client provides a Go client for the ballast agent's admin API.

The CLI subcommands are thin wrappers over this client; it can also be
embedded in tooling that drives the balancer programmatically. Errors from
the agent keep their balancer code (e.g. PLAN_ALREADY_IN_PROGRESS) in the
error string.
*/
package client

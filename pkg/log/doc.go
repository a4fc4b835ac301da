/*
Package log wires zerolog for the balancer's logging needs.

Init builds the process root logger (console or JSON, level parsed from its
name); the derivation helpers hand out children shaped for the balancer's
domain: WithComponent for subsystems, ForNode for the agent, ForPlan and
ForPair for the mover's execution context. Plan IDs are 128 hex characters,
so plan-scoped loggers carry a shortened prefix (see ShortPlanID) rather
than drowning every line in the full digest.
*/
package log

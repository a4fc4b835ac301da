/*
Package types defines the shared data structures of ballast.

This package contains only data definitions and their wire-format helpers; it
has no behavior and no dependencies on other ballast packages, so every other
package can import it freely.

Core types:

  - Plan / Step: the instruction set a planner produces for one node. A plan
    is identified by the SHA-512 of its wire bytes (see PlanID).
  - Result: the worker state machine's four states.
  - WorkItem / WorkEntry / WorkStatus: point-in-time snapshots of execution
    accounting, returned by status queries.
  - PlanRecord: the durable history entry for an admitted plan.
*/
package types

/*
Package balancer implements the per-node disk balancing worker.

The worker accepts a plan — an instruction set of byte volumes to shift
between the node's storage devices — verifies it, translates its steps into
per-pair work items, and executes the block-level copy while shaping
bandwidth and tolerating per-item I/O failures up to a configured budget.

# Components

Verifier:
  - Validates version, SHA-512 hash, age, and node identity of a submitted
    plan, in that order, failing fast with a distinct code per check.

Worker:
  - Serializes all public operations behind one mutex.
  - Enforces single-plan exclusivity: at most one mover at a time.
  - Translates plan steps into the work map, coalescing repeated
    source→destination pairs by summing their byte targets.
  - State machine: NO_PLAN → PLAN_UNDER_PROGRESS → PLAN_DONE or
    PLAN_CANCELLED; terminal states are overwritten by the next admission.

Mover:
  - One goroutine, one pair at a time, one block at a time.
  - Round-robin across the source's block pools, first-fit block selection
    within the remaining target plus tolerance slack.
  - After each move, sleeps for a delay computed in whole seconds from the
    block size, the copy time, and the bandwidth ceiling (see computeDelay);
    copies shorter than a second are never delayed.
  - I/O failures increment the pair's error counter and the loop continues;
    the pair is abandoned once the budget is exhausted, and the remaining
    pairs still execute.

# Cancellation

Cancellation is cooperative. CancelPlan and Shutdown clear an atomic flag
the mover polls at the top of every iteration and again after block
selection, then wait up to two 10-second grace windows for the goroutine to
exit. The throttle sleep is interruptible.
*/
package balancer

package types

import (
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// PlanVersion is the current plan wire version. Plans outside
// [MinPlanVersion, MaxPlanVersion] are rejected at submission.
const (
	PlanVersion    int64 = 1
	MinPlanVersion int64 = 1
	MaxPlanVersion int64 = 1
)

// Result represents the worker's plan execution state
type Result string

const (
	NoPlan            Result = "NO_PLAN"
	PlanUnderProgress Result = "PLAN_UNDER_PROGRESS"
	PlanDone          Result = "PLAN_DONE"
	PlanCancelled     Result = "PLAN_CANCELLED"
)

// Step is a single source→destination move instruction inside a plan.
// The override fields are optional; zero (or negative) means "inherit the
// node default" at execution time.
type Step struct {
	SourceVolumeUUID      string `json:"sourceVolumeUuid"`
	DestinationVolumeUUID string `json:"destinationVolumeUuid"`
	BytesToMove           int64  `json:"bytesToMove"`

	// Per-step overrides
	BandwidthMBs     int64 `json:"bandwidthMBs,omitempty"`
	TolerancePercent int64 `json:"tolerancePercent,omitempty"`
	MaxDiskErrors    int64 `json:"maxDiskErrors,omitempty"`
}

// Plan is a versioned, timestamped, node-targeted instruction set produced
// by the planner and consumed by the balancer worker on the targeted node.
type Plan struct {
	Version     int64   `json:"version"`
	NodeUUID    string  `json:"nodeUuid"`
	TimestampMs int64   `json:"timestampMs"`
	Steps       []*Step `json:"volumeSetPlans"`
}

// Timestamp returns the plan creation time.
func (p *Plan) Timestamp() time.Time {
	return time.UnixMilli(p.TimestampMs)
}

// Marshal renders the plan in its canonical wire form. The bytes returned
// here are what the plan ID is computed over.
func (p *Plan) Marshal() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal plan: %w", err)
	}
	return data, nil
}

// ParsePlan decodes a plan from its wire form.
func ParsePlan(text string) (*Plan, error) {
	var plan Plan
	if err := json.Unmarshal([]byte(text), &plan); err != nil {
		return nil, fmt.Errorf("failed to parse plan: %w", err)
	}
	return &plan, nil
}

// PlanID computes the identity of a plan document: the lowercase hex
// SHA-512 of its wire bytes. Always 128 characters.
func PlanID(planText string) string {
	sum := sha512.Sum512([]byte(planText))
	return hex.EncodeToString(sum[:])
}

// WorkItem is a point-in-time copy of the accounting record for one
// source→destination pair. The mutable record lives in the balancer; this
// snapshot is what status queries and the plan history carry.
type WorkItem struct {
	BytesToCopy    int64 `json:"bytesToCopy"`
	BytesCopied    int64 `json:"bytesCopied"`
	BlocksCopied   int64 `json:"blocksCopied"`
	ErrorCount     int64 `json:"errorCount"`
	SecondsElapsed int64 `json:"secondsElapsed"`

	BandwidthMBs     int64 `json:"bandwidthMBs,omitempty"`
	TolerancePercent int64 `json:"tolerancePercent,omitempty"`
	MaxDiskErrors    int64 `json:"maxDiskErrors,omitempty"`

	ErrMsg string `json:"errMsg,omitempty"`
}

// WorkEntry pairs a WorkItem snapshot with the base paths of the volumes it
// accounts for.
type WorkEntry struct {
	SourcePath      string   `json:"sourcePath"`
	DestinationPath string   `json:"destPath"`
	WorkItem        WorkItem `json:"workItem"`
}

// WorkStatus is the full answer to a status query: the current state, the
// plan being (or last) executed, and a snapshot of every work entry.
type WorkStatus struct {
	PlanID  string      `json:"planId"`
	Result  Result      `json:"result"`
	Entries []WorkEntry `json:"entries"`
}

// PlanRecord is the durable trace of one admitted plan, written to the
// history store at admission and updated when a terminal state is observed.
type PlanRecord struct {
	PlanID      string      `json:"planId"`
	NodeUUID    string      `json:"nodeUuid"`
	SubmittedAt time.Time   `json:"submittedAt"`
	CompletedAt time.Time   `json:"completedAt,omitzero"`
	Result      Result      `json:"result"`
	Entries     []WorkEntry `json:"entries,omitempty"`
}

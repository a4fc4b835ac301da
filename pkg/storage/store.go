package storage

import (
	"github.com/cuemby/ballast/pkg/types"
)

// Store defines the interface for the node's durable balancer state
type Store interface {
	// Plan history
	RecordPlan(record *types.PlanRecord) error
	GetPlan(planID string) (*types.PlanRecord, error)
	ListPlans() ([]*types.PlanRecord, error)

	// Node identity
	SaveNodeUUID(uuid string) error
	GetNodeUUID() (string, error)

	// Utility
	Close() error
}

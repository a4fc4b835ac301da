package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/ballast/pkg/types"
)

var (
	// Bucket names
	bucketPlans = []byte("plans")
	bucketNode  = []byte("node")

	// Keys in the node bucket
	keyNodeUUID = []byte("uuid")
)

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "ballast.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketPlans, bucketNode} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// RecordPlan upserts a plan record keyed by plan ID
func (s *BoltStore) RecordPlan(record *types.PlanRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPlans)
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return b.Put([]byte(record.PlanID), data)
	})
}

// GetPlan fetches one plan record by ID
func (s *BoltStore) GetPlan(planID string) (*types.PlanRecord, error) {
	var record types.PlanRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPlans)
		data := b.Get([]byte(planID))
		if data == nil {
			return fmt.Errorf("plan not found: %s", planID)
		}
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ListPlans returns every recorded plan, most recent submission first
func (s *BoltStore) ListPlans() ([]*types.PlanRecord, error) {
	var records []*types.PlanRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPlans)
		return b.ForEach(func(k, v []byte) error {
			var record types.PlanRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			records = append(records, &record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].SubmittedAt.After(records[j].SubmittedAt)
	})
	return records, nil
}

// SaveNodeUUID persists this node's identity
func (s *BoltStore) SaveNodeUUID(uuid string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNode).Put(keyNodeUUID, []byte(uuid))
	})
}

// GetNodeUUID returns the persisted node identity, empty if none yet
func (s *BoltStore) GetNodeUUID() (string, error) {
	var uuid string
	err := s.db.View(func(tx *bolt.Tx) error {
		if data := tx.Bucket(bucketNode).Get(keyNodeUUID); data != nil {
			uuid = string(data)
		}
		return nil
	})
	return uuid, err
}

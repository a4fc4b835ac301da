package balancer

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/ballast/pkg/events"
	"github.com/cuemby/ballast/pkg/log"
	"github.com/cuemby/ballast/pkg/metrics"
	"github.com/cuemby/ballast/pkg/types"
	"github.com/cuemby/ballast/pkg/volume"
)

// shutdownWait bounds each of the two waits for the mover goroutine to exit
// during cancellation and shutdown.
const shutdownWait = 10 * time.Second

// HistoryRecorder persists plan admission and terminal-state records. The
// worker logs and continues when recording fails; history is an audit trail,
// not a dependency of execution.
type HistoryRecorder interface {
	RecordPlan(record *types.PlanRecord) error
}

// Worker owns the plan lifecycle on one node: it admits plans, enforces
// single-plan exclusivity, runs the mover, and answers status queries.
//
// All public operations are serialized by one mutex. The mover runs on its
// own goroutine and is the only writer of work-item counters; status queries
// read snapshots concurrently.
type Worker struct {
	mu sync.Mutex

	cfg      Config
	dataset  volume.Set
	eventLog *events.Log
	history  HistoryRecorder
	logger   zerolog.Logger

	enabled bool
	result  types.Result
	planID  string
	plan    *types.Plan
	// submittedAt is when the current plan was admitted on this node
	submittedAt time.Time
	work        *workMap
	mover       *mover
}

// NewWorker creates a balancer worker over the node's volume set. The
// event log and history recorder are optional.
func NewWorker(cfg *Config, dataset volume.Set, eventLog *events.Log, history HistoryRecorder) *Worker {
	resolved := cfg.withDefaults()
	return &Worker{
		cfg:      resolved,
		dataset:  dataset,
		eventLog: eventLog,
		history:  history,
		logger:   log.WithComponent("disk-balancer"),
		enabled:  resolved.Enabled,
		result:   types.NoPlan,
		work:     newWorkMap(),
	}
}

// SubmitPlan verifies and admits a plan, then launches the mover over its
// work map. Fails while a prior plan's mover is still running.
func (w *Worker) SubmitPlan(planID string, version int64, planText string, force bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.checkEnabled(); err != nil {
		return err
	}

	if w.mover != nil && !w.mover.finished() {
		return newError(CodePlanAlreadyInProgress, "plan %s is still executing", w.planID)
	}

	verifier := newVerifier(w.cfg.NodeUUID, w.cfg.ValidPlanHours)
	plan, err := verifier.verify(planID, version, planText, force)
	if err != nil {
		return err
	}

	work, err := w.translateSteps(plan)
	if err != nil {
		return err
	}

	w.plan = plan
	w.planID = planID
	w.submittedAt = time.Now()
	w.work = work
	w.result = types.PlanUnderProgress
	w.setStateMetric()

	w.mover = newMover(w.dataset, w.cfg, w.eventLog, planID)
	w.mover.start(work.ordered())

	w.logger.Info().
		Str("plan_id", log.ShortPlanID(planID)).
		Int("pairs", work.len()).
		Bool("force", force).
		Msg("plan admitted")
	metrics.PlansSubmitted.Inc()
	w.publish(events.PlanSubmitted, "plan admitted")
	w.record()

	return nil
}

// translateSteps resolves each step's volumes and builds a fresh work map,
// coalescing repeated pairs. The worker's own map is untouched on failure.
func (w *Worker) translateSteps(plan *types.Plan) (*workMap, error) {
	refs, err := w.dataset.AcquireVolumes()
	if err != nil {
		return nil, wrapError(CodeInternalError, err, "failed to enumerate volumes")
	}
	defer refs.Close()

	byID := make(map[string]volume.Volume)
	for _, vol := range refs.List() {
		byID[vol.StorageID()] = vol
	}

	work := newWorkMap()
	for _, step := range plan.Steps {
		src, ok := byID[step.SourceVolumeUUID]
		if !ok {
			return nil, newError(CodeInvalidVolume, "unknown source volume %s", step.SourceVolumeUUID)
		}
		dst, ok := byID[step.DestinationVolumeUUID]
		if !ok {
			return nil, newError(CodeInvalidVolume, "unknown destination volume %s", step.DestinationVolumeUUID)
		}
		if src.StorageID() == dst.StorageID() {
			return nil, newError(CodeInvalidMove, "source and destination are the same volume %s", src.StorageID())
		}

		key := pairKey{src: src.BasePath(), dst: dst.BasePath()}
		if existing, ok := work.get(key); ok {
			// Repeated pair: byte targets sum, overrides are last-wins
			existing.item.bytesToCopy += step.BytesToMove
			existing.item.bandwidthMBs = step.BandwidthMBs
			existing.item.tolerancePercent = step.TolerancePercent
			existing.item.maxDiskErrors = step.MaxDiskErrors
			continue
		}

		work.put(key, &workEntry{
			source: src,
			dest:   dst,
			item: &WorkItem{
				bytesToCopy:      step.BytesToMove,
				bandwidthMBs:     step.BandwidthMBs,
				tolerancePercent: step.TolerancePercent,
				maxDiskErrors:    step.MaxDiskErrors,
			},
		})
	}

	return work, nil
}

// QueryWorkStatus returns the current state, plan ID, and a snapshot of
// every work entry. Observing a finished mover transitions
// PLAN_UNDER_PROGRESS to PLAN_DONE, at most once.
func (w *Worker) QueryWorkStatus() (*types.WorkStatus, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.checkEnabled(); err != nil {
		return nil, err
	}

	if w.result == types.PlanUnderProgress && w.mover != nil && w.mover.finished() {
		w.result = types.PlanDone
		w.setStateMetric()
		w.logger.Info().Str("plan_id", log.ShortPlanID(w.planID)).Msg("plan finished")
		w.publish(events.PlanDone, "plan finished")
		w.record()
	}

	return &types.WorkStatus{
		PlanID:  w.planID,
		Result:  w.result,
		Entries: w.work.snapshotEntries(),
	}, nil
}

// CancelPlan cancels the named plan if it is the current one, waiting a
// bounded time for the mover to exit.
func (w *Worker) CancelPlan(planID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.checkEnabled(); err != nil {
		return err
	}

	if w.planID == "" || !strings.EqualFold(w.planID, planID) {
		return newError(CodeNoSuchPlan, "plan %s is not the current plan", planID)
	}

	if w.mover != nil && !w.mover.finished() {
		w.mover.stop()
		w.awaitMover()
	}

	w.result = types.PlanCancelled
	w.setStateMetric()
	w.logger.Info().Str("plan_id", log.ShortPlanID(w.planID)).Msg("plan cancelled")
	metrics.PlansCancelled.Inc()
	w.publish(events.PlanCancelled, "plan cancelled")
	w.record()

	return nil
}

// GetVolumeNames returns storage-ID → base path for every attached volume
func (w *Worker) GetVolumeNames() (map[string]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.checkEnabled(); err != nil {
		return nil, err
	}

	refs, err := w.dataset.AcquireVolumes()
	if err != nil {
		return nil, wrapError(CodeInternalError, err, "failed to enumerate volumes")
	}
	defer refs.Close()

	names := make(map[string]string)
	for _, vol := range refs.List() {
		names[vol.StorageID()] = vol.BasePath()
	}
	metrics.VolumesTotal.Set(float64(len(names)))
	return names, nil
}

// GetBandwidth returns the node-default bandwidth ceiling in MB/s
func (w *Worker) GetBandwidth() (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.checkEnabled(); err != nil {
		return 0, err
	}
	return w.cfg.MaxDiskThroughputMBs, nil
}

// Shutdown disables the balancer and tears down a running mover
func (w *Worker) Shutdown() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.enabled = false

	if w.mover != nil && !w.mover.finished() {
		w.mover.stop()
		w.awaitMover()
		w.result = types.PlanCancelled
		w.setStateMetric()
		metrics.PlansCancelled.Inc()
		w.publish(events.PlanCancelled, "plan cancelled by shutdown")
		w.record()
	}

	w.logger.Info().Msg("disk balancer shut down")
}

// awaitMover waits for the mover goroutine with the two bounded grace
// windows: a graceful wait, then a second wait after the timeout is logged.
// Called with the worker lock held.
func (w *Worker) awaitMover() {
	select {
	case <-w.mover.done:
		return
	case <-time.After(shutdownWait):
		w.logger.Warn().Msg("mover did not stop in time, waiting again")
	}

	select {
	case <-w.mover.done:
	case <-time.After(shutdownWait):
		w.logger.Error().Msg("mover failed to terminate")
	}
}

func (w *Worker) checkEnabled() error {
	if !w.enabled {
		return newError(CodeNotEnabled, "disk balancer is not enabled on this node")
	}
	return nil
}

func (w *Worker) setStateMetric() {
	var v float64
	switch w.result {
	case types.NoPlan:
		v = 0
	case types.PlanUnderProgress:
		v = 1
	case types.PlanDone:
		v = 2
	case types.PlanCancelled:
		v = 3
	}
	metrics.PlanState.Set(v)
}

func (w *Worker) publish(eventType events.Type, message string) {
	if w.eventLog == nil {
		return
	}
	w.eventLog.Publish(&events.Event{
		Type:    eventType,
		PlanID:  w.planID,
		Message: message,
	})
}

// record writes the current plan state to the history store. Called with
// the worker lock held.
func (w *Worker) record() {
	if w.history == nil || w.planID == "" {
		return
	}

	record := &types.PlanRecord{
		PlanID:   w.planID,
		NodeUUID: w.cfg.NodeUUID,
		Result:   w.result,
		Entries:  w.work.snapshotEntries(),
	}
	record.SubmittedAt = w.submittedAt
	if w.result == types.PlanDone || w.result == types.PlanCancelled {
		record.CompletedAt = time.Now()
	}

	if err := w.history.RecordPlan(record); err != nil {
		w.logger.Warn().Err(err).Msg("failed to record plan history")
	}
}

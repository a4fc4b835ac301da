package balancer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/ballast/pkg/types"
)

const testNodeUUID = "node-1"

func newTestWorker(set *fakeSet) *Worker {
	cfg := testConfig()
	cfg.NodeUUID = testNodeUUID
	return NewWorker(&cfg, set, nil, nil)
}

func makePlan(t *testing.T, nodeUUID string, steps ...*types.Step) (string, string) {
	t.Helper()
	plan := &types.Plan{
		Version:     types.PlanVersion,
		NodeUUID:    nodeUUID,
		TimestampMs: time.Now().UnixMilli(),
		Steps:       steps,
	}
	data, err := plan.Marshal()
	require.NoError(t, err)
	return string(data), types.PlanID(string(data))
}

func waitForResult(t *testing.T, w *Worker, want types.Result) *types.WorkStatus {
	t.Helper()
	var status *types.WorkStatus
	require.Eventually(t, func() bool {
		s, err := w.QueryWorkStatus()
		if err != nil {
			return false
		}
		status = s
		return status.Result == want
	}, 5*time.Second, 5*time.Millisecond, "worker never reached %s", want)
	return status
}

func TestSubmitPlanHappyPath(t *testing.T) {
	src := newFakeVolume("va", "/data/disk-a")
	src.addBlocks("pool-1", 40, 40, 30, 15)
	dst := newFakeVolume("vb", "/data/disk-b")
	set := newFakeSet(src, dst)
	w := newTestWorker(set)

	planText, planID := makePlan(t, testNodeUUID, &types.Step{
		SourceVolumeUUID:      "va",
		DestinationVolumeUUID: "vb",
		BytesToMove:           100,
	})

	require.NoError(t, w.SubmitPlan(planID, types.PlanVersion, planText, false))

	status := waitForResult(t, w, types.PlanDone)
	assert.Equal(t, planID, status.PlanID)
	require.Len(t, status.Entries, 1)

	entry := status.Entries[0]
	assert.Equal(t, "/data/disk-a", entry.SourcePath)
	assert.Equal(t, "/data/disk-b", entry.DestinationPath)
	assert.Equal(t, int64(100), entry.WorkItem.BytesToCopy)
	assert.GreaterOrEqual(t, entry.WorkItem.BytesCopied, int64(90),
		"copied bytes should land within the tolerance band of the target")
}

func TestSubmitPlanDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	cfg.NodeUUID = testNodeUUID
	w := NewWorker(&cfg, newFakeSet(), nil, nil)

	planText, planID := makePlan(t, testNodeUUID)

	err := w.SubmitPlan(planID, types.PlanVersion, planText, false)
	assert.Equal(t, CodeNotEnabled, CodeOf(err))

	_, err = w.QueryWorkStatus()
	assert.Equal(t, CodeNotEnabled, CodeOf(err))

	err = w.CancelPlan(planID)
	assert.Equal(t, CodeNotEnabled, CodeOf(err))

	_, err = w.GetVolumeNames()
	assert.Equal(t, CodeNotEnabled, CodeOf(err))

	_, err = w.GetBandwidth()
	assert.Equal(t, CodeNotEnabled, CodeOf(err))
}

func TestSubmitPlanHashMismatch(t *testing.T) {
	set := newFakeSet(newFakeVolume("va", "/data/disk-a"), newFakeVolume("vb", "/data/disk-b"))
	w := newTestWorker(set)

	planText, _ := makePlan(t, testNodeUUID, &types.Step{
		SourceVolumeUUID:      "va",
		DestinationVolumeUUID: "vb",
		BytesToMove:           100,
	})
	_, wrongID := makePlan(t, testNodeUUID)

	err := w.SubmitPlan(wrongID, types.PlanVersion, planText, false)
	assert.Equal(t, CodeInvalidPlanHash, CodeOf(err))

	// Admission failure leaves the worker untouched
	status, err := w.QueryWorkStatus()
	require.NoError(t, err)
	assert.Equal(t, types.NoPlan, status.Result)
	assert.Empty(t, status.PlanID)
}

func TestSubmitPlanWrongNode(t *testing.T) {
	w := newTestWorker(newFakeSet())

	planText, planID := makePlan(t, "node-2")
	err := w.SubmitPlan(planID, types.PlanVersion, planText, false)
	assert.Equal(t, CodeDatanodeIDMismatch, CodeOf(err))
}

func TestSubmitPlanUnknownVolume(t *testing.T) {
	set := newFakeSet(newFakeVolume("va", "/data/disk-a"))
	w := newTestWorker(set)

	planText, planID := makePlan(t, testNodeUUID, &types.Step{
		SourceVolumeUUID:      "va",
		DestinationVolumeUUID: "missing",
		BytesToMove:           100,
	})

	err := w.SubmitPlan(planID, types.PlanVersion, planText, false)
	assert.Equal(t, CodeInvalidVolume, CodeOf(err))
}

func TestSubmitPlanSameSourceAndDestination(t *testing.T) {
	set := newFakeSet(newFakeVolume("va", "/data/disk-a"))
	w := newTestWorker(set)

	planText, planID := makePlan(t, testNodeUUID, &types.Step{
		SourceVolumeUUID:      "va",
		DestinationVolumeUUID: "va",
		BytesToMove:           100,
	})

	err := w.SubmitPlan(planID, types.PlanVersion, planText, false)
	assert.Equal(t, CodeInvalidMove, CodeOf(err))
}

func TestSubmitPlanCoalescesRepeatedPairs(t *testing.T) {
	src := newFakeVolume("va", "/data/disk-a")
	dst := newFakeVolume("vb", "/data/disk-b")
	set := newFakeSet(src, dst)
	w := newTestWorker(set)

	planText, planID := makePlan(t, testNodeUUID,
		&types.Step{SourceVolumeUUID: "va", DestinationVolumeUUID: "vb", BytesToMove: 60},
		&types.Step{SourceVolumeUUID: "va", DestinationVolumeUUID: "vb", BytesToMove: 40},
	)

	require.NoError(t, w.SubmitPlan(planID, types.PlanVersion, planText, false))

	status := waitForResult(t, w, types.PlanDone)
	require.Len(t, status.Entries, 1, "repeated pairs must coalesce into one entry")
	assert.Equal(t, int64(100), status.Entries[0].WorkItem.BytesToCopy)
}

func TestSubmitPlanWhileInProgress(t *testing.T) {
	src := newFakeVolume("va", "/data/disk-a")
	sizes := make([]int64, 1000)
	for i := range sizes {
		sizes[i] = 1
	}
	src.addBlocks("pool-1", sizes...)
	dst := newFakeVolume("vb", "/data/disk-b")
	set := newFakeSet(src, dst)
	set.moveDelay = 2 * time.Millisecond
	w := newTestWorker(set)

	planText, planID := makePlan(t, testNodeUUID, &types.Step{
		SourceVolumeUUID:      "va",
		DestinationVolumeUUID: "vb",
		BytesToMove:           2000,
	})
	require.NoError(t, w.SubmitPlan(planID, types.PlanVersion, planText, false))

	secondText, secondID := makePlan(t, testNodeUUID)
	err := w.SubmitPlan(secondID, types.PlanVersion, secondText, false)
	assert.Equal(t, CodePlanAlreadyInProgress, CodeOf(err))

	// Status still references the first plan
	require.NoError(t, w.CancelPlan(planID))
	status, err := w.QueryWorkStatus()
	require.NoError(t, err)
	assert.Equal(t, planID, status.PlanID)
}

func TestCancelPlan(t *testing.T) {
	src := newFakeVolume("va", "/data/disk-a")
	sizes := make([]int64, 1000)
	for i := range sizes {
		sizes[i] = 1
	}
	src.addBlocks("pool-1", sizes...)
	dst := newFakeVolume("vb", "/data/disk-b")
	set := newFakeSet(src, dst)
	set.moveDelay = 2 * time.Millisecond
	w := newTestWorker(set)

	planText, planID := makePlan(t, testNodeUUID, &types.Step{
		SourceVolumeUUID:      "va",
		DestinationVolumeUUID: "vb",
		BytesToMove:           2000,
	})
	require.NoError(t, w.SubmitPlan(planID, types.PlanVersion, planText, false))

	start := time.Now()
	require.NoError(t, w.CancelPlan(planID))
	assert.Less(t, time.Since(start), 5*time.Second)

	status, err := w.QueryWorkStatus()
	require.NoError(t, err)
	assert.Equal(t, types.PlanCancelled, status.Result)
	assert.Less(t, status.Entries[0].WorkItem.BlocksCopied, int64(1000))
}

func TestCancelPlanWrongID(t *testing.T) {
	w := newTestWorker(newFakeSet())

	err := w.CancelPlan("not-a-plan")
	assert.Equal(t, CodeNoSuchPlan, CodeOf(err))
}

func TestZeroStepPlan(t *testing.T) {
	w := newTestWorker(newFakeSet())

	planText, planID := makePlan(t, testNodeUUID)
	require.NoError(t, w.SubmitPlan(planID, types.PlanVersion, planText, false))

	status := waitForResult(t, w, types.PlanDone)
	assert.Empty(t, status.Entries)
}

func TestQueryWorkStatusIdempotentAfterDone(t *testing.T) {
	w := newTestWorker(newFakeSet())

	planText, planID := makePlan(t, testNodeUUID)
	require.NoError(t, w.SubmitPlan(planID, types.PlanVersion, planText, false))
	waitForResult(t, w, types.PlanDone)

	for i := 0; i < 3; i++ {
		status, err := w.QueryWorkStatus()
		require.NoError(t, err)
		assert.Equal(t, types.PlanDone, status.Result)
	}
}

func TestResubmitAfterTerminalState(t *testing.T) {
	w := newTestWorker(newFakeSet())

	firstText, firstID := makePlan(t, testNodeUUID)
	require.NoError(t, w.SubmitPlan(firstID, types.PlanVersion, firstText, false))
	waitForResult(t, w, types.PlanDone)

	// Terminal states are overwritten by the next admission
	secondText, secondID := makePlan(t, testNodeUUID)
	require.NoError(t, w.SubmitPlan(secondID, types.PlanVersion, secondText, false))

	status := waitForResult(t, w, types.PlanDone)
	assert.Equal(t, secondID, status.PlanID)
}

func TestShutdownDisablesWorker(t *testing.T) {
	w := newTestWorker(newFakeSet())

	w.Shutdown()

	_, err := w.QueryWorkStatus()
	assert.Equal(t, CodeNotEnabled, CodeOf(err))
}

func TestShutdownCancelsRunningPlan(t *testing.T) {
	src := newFakeVolume("va", "/data/disk-a")
	sizes := make([]int64, 1000)
	for i := range sizes {
		sizes[i] = 1
	}
	src.addBlocks("pool-1", sizes...)
	dst := newFakeVolume("vb", "/data/disk-b")
	set := newFakeSet(src, dst)
	set.moveDelay = 2 * time.Millisecond
	w := newTestWorker(set)

	planText, planID := makePlan(t, testNodeUUID, &types.Step{
		SourceVolumeUUID:      "va",
		DestinationVolumeUUID: "vb",
		BytesToMove:           2000,
	})
	require.NoError(t, w.SubmitPlan(planID, types.PlanVersion, planText, false))

	w.Shutdown()
	assert.True(t, w.mover.finished())
}

func TestGetVolumeNames(t *testing.T) {
	set := newFakeSet(
		newFakeVolume("va", "/data/disk-a"),
		newFakeVolume("vb", "/data/disk-b"),
	)
	w := newTestWorker(set)

	names, err := w.GetVolumeNames()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"va": "/data/disk-a",
		"vb": "/data/disk-b",
	}, names)
}

func TestGetBandwidth(t *testing.T) {
	w := newTestWorker(newFakeSet())

	bw, err := w.GetBandwidth()
	require.NoError(t, err)
	assert.Equal(t, int64(10), bw)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{Enabled: true, MaxDiskErrors: -1}.withDefaults()
	assert.Equal(t, DefaultBandwidthMBs, cfg.MaxDiskThroughputMBs)
	assert.Equal(t, DefaultTolerancePercent, cfg.BlockTolerancePercent)
	assert.Equal(t, DefaultMaxDiskErrors, cfg.MaxDiskErrors)
	assert.Equal(t, DefaultValidPlanHours, cfg.ValidPlanHours)
}

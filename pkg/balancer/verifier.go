package balancer

import (
	"strings"
	"time"

	"github.com/cuemby/ballast/pkg/types"
)

// planIDLength is the hex length of a SHA-512 digest
const planIDLength = 128

// verifier validates submitted plans before they are admitted. All checks
// run under the worker's lock, in order: version, hash+parse, timestamp
// (unless forced), node identity. First failure wins.
type verifier struct {
	nodeUUID       string
	validPlanHours int64

	// now is stubbed in tests
	now func() time.Time
}

func newVerifier(nodeUUID string, validPlanHours int64) *verifier {
	return &verifier{
		nodeUUID:       nodeUUID,
		validPlanHours: validPlanHours,
		now:            time.Now,
	}
}

// verify runs the full admission check sequence and returns the parsed plan
func (v *verifier) verify(planID string, version int64, planText string, force bool) (*types.Plan, error) {
	if err := v.verifyVersion(version); err != nil {
		return nil, err
	}

	plan, err := v.verifyHash(planID, planText)
	if err != nil {
		return nil, err
	}

	if !force {
		if err := v.verifyTimestamp(plan); err != nil {
			return nil, err
		}
	}

	if err := v.verifyNodeIdentity(plan); err != nil {
		return nil, err
	}

	return plan, nil
}

// verifyVersion rejects plans outside the supported wire-version range
func (v *verifier) verifyVersion(version int64) error {
	if version < types.MinPlanVersion || version > types.MaxPlanVersion {
		return newError(CodeInvalidPlanVersion,
			"unsupported plan version %d, supported range is [%d, %d]",
			version, types.MinPlanVersion, types.MaxPlanVersion)
	}
	return nil
}

// verifyHash checks that the submitted plan ID is the SHA-512 of the plan
// text, then parses the text
func (v *verifier) verifyHash(planID, planText string) (*types.Plan, error) {
	if planText == "" {
		return nil, newError(CodeInvalidPlan, "plan text is empty")
	}

	if len(planID) != planIDLength {
		return nil, newError(CodeInvalidPlanHash,
			"plan ID must be %d hex characters, got %d", planIDLength, len(planID))
	}

	if !strings.EqualFold(planID, types.PlanID(planText)) {
		return nil, newError(CodeInvalidPlanHash, "plan ID does not match plan contents")
	}

	plan, err := types.ParsePlan(planText)
	if err != nil {
		return nil, wrapError(CodeMalformedPlan, err, "plan text does not parse")
	}

	return plan, nil
}

// verifyTimestamp rejects plans older than the admission window
func (v *verifier) verifyTimestamp(plan *types.Plan) error {
	window := time.Duration(v.validPlanHours) * time.Hour
	if plan.Timestamp().Add(window).Before(v.now()) {
		return newError(CodeOldPlanSubmitted,
			"plan is older than %d hours, submit with force to override", v.validPlanHours)
	}
	return nil
}

// verifyNodeIdentity rejects plans targeting another node
func (v *verifier) verifyNodeIdentity(plan *types.Plan) error {
	if plan.NodeUUID == "" || plan.NodeUUID != v.nodeUUID {
		return newError(CodeDatanodeIDMismatch,
			"plan targets node %q, this node is %q", plan.NodeUUID, v.nodeUUID)
	}
	return nil
}

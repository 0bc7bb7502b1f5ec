package domain

import (
	"strconv"
	"time"
)

// Edge handles emitted by the engine when selecting among outgoing edges.
const (
	HandleYes     = "yes"
	HandleNo      = "no"
	HandleSuccess = "success"
	HandleError   = "error"
)

// History entry types recorded for user-originated events.
const (
	EntryUserInput    = "user_input"
	EntryBranchSelect = "branch_select"
)

// StartNodeID is the conventional id of the entry node of a flow.
const StartNodeID = "1"

// DefaultCodeTimeout is applied to code nodes that do not declare a timeout.
const DefaultCodeTimeout = 5000 * time.Millisecond

// BranchOptionID returns the conventional id of the i-th option node of a branch.
func BranchOptionID(branchID string, index int) string {
	return branchID + "-opt-" + strconv.Itoa(index)
}

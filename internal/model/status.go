package model

// ProcessingStatus is the lifecycle state of a question. The string values are
// a persistence contract shared with existing data; never rename them.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusClassified ProcessingStatus = "classified"
	StatusGenerated  ProcessingStatus = "generated"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
	StatusDeleted    ProcessingStatus = "deleted"
)

// forwardEdges holds the allowed happy-path transitions. The machine only
// moves forward; a record never regresses or skips a stage.
var forwardEdges = map[ProcessingStatus]ProcessingStatus{
	StatusPending:    StatusClassified,
	StatusClassified: StatusGenerated,
	StatusGenerated:  StatusCompleted,
}

// IsTerminal reports whether no phase will pick the record up again.
func (s ProcessingStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusDeleted:
		return true
	}
	return false
}

// CanTransition reports whether moving from one status to another is legal.
// Happy-path edges go strictly forward; any non-terminal state may fail; any
// state but deleted may be soft-deleted.
func CanTransition(from, to ProcessingStatus) bool {
	if from == StatusFailed || from == StatusDeleted {
		return false
	}
	switch to {
	case StatusFailed:
		return !from.IsTerminal()
	case StatusDeleted:
		return true
	}
	return forwardEdges[from] == to
}

// Phase is one stage of the enrichment pipeline.
type Phase string

const (
	PhaseClassify Phase = "classify"
	PhaseGenerate Phase = "generate"
	PhaseScore    Phase = "score"
)

// Phases lists the pipeline stages in execution order.
var Phases = []Phase{PhaseClassify, PhaseGenerate, PhaseScore}

// InputStatus is the status a record must hold to be eligible for this phase.
func (p Phase) InputStatus() ProcessingStatus {
	switch p {
	case PhaseClassify:
		return StatusPending
	case PhaseGenerate:
		return StatusClassified
	default:
		return StatusGenerated
	}
}

// OutputStatus is the status a record reaches when this phase succeeds.
func (p Phase) OutputStatus() ProcessingStatus {
	return forwardEdges[p.InputStatus()]
}

// ParsePhase resolves a phase name from user input.
func ParsePhase(s string) (Phase, bool) {
	switch Phase(s) {
	case PhaseClassify, PhaseGenerate, PhaseScore:
		return Phase(s), true
	}
	return "", false
}

// ReviewStatus tracks human review of a flagged badcase.
type ReviewStatus string

const (
	ReviewNone     ReviewStatus = ""
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

package orchestrator

// State is the pipeline's current stage. The machine is strictly linear;
// only Reviewing/FixingReviewComments and WaitingForCI/FixingCIError cycle,
// each within its own bound.
type State string

const (
	StateAnalyzing            State = "analyzing"
	StatePlanReady            State = "plan_ready"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateMakingChanges        State = "making_changes"
	StateCreatingBranch       State = "creating_branch"
	StateCommitting           State = "committing"
	StatePushing              State = "pushing"
	StateCreatingPR           State = "creating_pr"
	StateReviewing            State = "reviewing"
	StateFixingReview         State = "fixing_review_comments"
	StateWaitingForCI         State = "waiting_for_ci"
	StateFixingCI             State = "fixing_ci_error"
	StateResolvingConflicts   State = "resolving_conflicts"
	StateMerging              State = "merging"
	StateCompleted            State = "completed"
	StateFailed               State = "failed"
	StateNeedsUserInput       State = "needs_user_input"
)

// Terminal reports whether no further transition can occur.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateNeedsUserInput
}

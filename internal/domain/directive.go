package domain

// Directive is the current behavioural agenda the organism is pursuing for
// a turn — e.g. "probe for missing context" or "check in proactively".
// Directives are never revealed verbatim to the expression layer; the
// Context Assembler surfaces them only as a persona-layer instruction for
// the language model.
//
// Adapted from the teacher's domain.Goal / service.DetermineNextGoal
// (internal/domain/goal.go, internal/service/goal_service.go): the same
// heuristic scoring over relationship/curiosity signals, generalised from
// "clone's hidden agenda toward one user" to "organism's current directive",
// and produced by the Trigger Evaluator (internal/triggers) rather than the
// reasoning loop itself.
type Directive struct {
	Description string `json:"description"`
	Trigger     string `json:"trigger"`
}

package models

// AccessDecision is the outcome of evaluating gating for one learner and
// one unit. Reason is nil when access is granted; otherwise it carries the
// human-readable denial shown verbatim to the learner.
type AccessDecision struct {
	Accessible bool    `json:"accessible"`
	Reason     *string `json:"reason,omitempty"`
}

// Allow is the granted decision.
func Allow() AccessDecision {
	return AccessDecision{Accessible: true}
}

// Deny builds a denial with the given reason.
func Deny(reason string) AccessDecision {
	return AccessDecision{Accessible: false, Reason: &reason}
}

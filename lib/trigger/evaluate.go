// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package trigger

import (
	"fmt"

	"github.com/bureau-foundation/datapress/lib/workflow"
)

// Decision is the outcome of evaluating an event against a workflow's
// trigger rules.
type Decision struct {
	// Fire reports whether the workflow runs for this event.
	Fire bool

	// Reason is a short human-readable sentence explaining the
	// decision, printed by the runner and recorded in the result
	// log.
	Reason string

	// Matched lists the changed paths that hit the watch set, in
	// event order. Empty for dispatch decisions and branch-only
	// rules.
	Matched []string
}

// Evaluate decides whether an event fires a workflow. Default deny:
// an event type with no corresponding rule, or an unknown event type,
// never fires.
//
//   - Dispatch events fire iff the workflow declares on.dispatch.
//     There is no further condition: every manual dispatch of a
//     dispatchable workflow runs.
//   - Push events fire iff the workflow declares on.push, the push's
//     branch matches the rule's branch patterns (empty means every
//     branch), and at least one changed path matches the watch set
//     (empty means every path).
//   - Anything else is a clean no-fire, not an error.
func Evaluate(rule workflow.Trigger, event Event) Decision {
	switch event.Type {
	case EventDispatch:
		if rule.Dispatch == nil {
			return Decision{Reason: "workflow does not declare on.dispatch"}
		}
		return Decision{Fire: true, Reason: "manual dispatch"}

	case EventPush:
		if rule.Push == nil {
			return Decision{Reason: "workflow does not declare on.push"}
		}

		if len(rule.Push.Branches) > 0 {
			branch := event.Branch()
			ok := false
			for _, pattern := range rule.Push.Branches {
				if MatchPath(pattern, branch) {
					ok = true
					break
				}
			}
			if !ok {
				return Decision{Reason: fmt.Sprintf("branch %q does not match the branch rules", branch)}
			}
		}

		if len(rule.Push.Paths) == 0 {
			return Decision{Fire: true, Reason: "push matches (no path restriction)"}
		}

		matched := MatchAny(rule.Push.Paths, event.ChangedPaths())
		if len(matched) == 0 {
			return Decision{Reason: "no changed paths match the watch set"}
		}
		return Decision{
			Fire:    true,
			Reason:  fmt.Sprintf("%d changed path(s) match the watch set", len(matched)),
			Matched: matched,
		}

	default:
		return Decision{Reason: fmt.Sprintf("event type %q does not fire workflows", event.Type)}
	}
}

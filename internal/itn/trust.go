package itn

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type CheckStatus string

const (
	CheckPassed       CheckStatus = "passed"
	CheckRejected     CheckStatus = "rejected"
	CheckInconclusive CheckStatus = "inconclusive"
	CheckNotEvaluated CheckStatus = "not_evaluated"
	// CheckNoted records something that happened while storing; it never
	// affects the verdict.
	CheckNoted CheckStatus = "noted"
)

// Check names as they appear in the trail.
const (
	CheckSignature = "signature"
	CheckAuthority = "authority"
	CheckSource    = "source"
	CheckMerchant  = "merchant"

	CheckIdentifier = "identifier"
	CheckTrail      = "trail"
)

type CheckResult struct {
	Check  string      `json:"check"`
	Status CheckStatus `json:"status"`
	Detail string      `json:"detail,omitempty"`
	// Unchecked marks a pass granted without evidence (permissive mode).
	Unchecked bool `json:"unchecked,omitempty"`
}

func passed(check, detail string) CheckResult {
	return CheckResult{Check: check, Status: CheckPassed, Detail: detail}
}

func rejected(check, detail string) CheckResult {
	return CheckResult{Check: check, Status: CheckRejected, Detail: detail}
}

func inconclusive(check, detail string) CheckResult {
	return CheckResult{Check: check, Status: CheckInconclusive, Detail: detail}
}

func notEvaluated(check, detail string) CheckResult {
	return CheckResult{Check: check, Status: CheckNotEvaluated, Detail: detail}
}

func (r CheckResult) String() string {
	s := fmt.Sprintf("%s=%s", r.Check, r.Status)
	if r.Unchecked {
		s += "(unchecked)"
	}
	if r.Detail != "" {
		s += "(" + r.Detail + ")"
	}
	return s
}

// Verdict is the stored trust state. Unknown only exists before a record has
// been evaluated.
type Verdict string

const (
	VerdictUnknown   Verdict = "unknown"
	VerdictTrusted   Verdict = "trusted"
	VerdictUntrusted Verdict = "untrusted"
)

func VerdictFromColumn(trusted *bool) Verdict {
	switch {
	case trusted == nil:
		return VerdictUnknown
	case *trusted:
		return VerdictTrusted
	default:
		return VerdictUntrusted
	}
}

func (v Verdict) Column() *bool {
	switch v {
	case VerdictTrusted:
		t := true
		return &t
	case VerdictUntrusted:
		f := false
		return &f
	default:
		return nil
	}
}

// Evaluation is the folded result of all checks for one notification.
type Evaluation struct {
	Verdict     Verdict       `json:"verdict"`
	Reason      string        `json:"reason"`
	Checks      []CheckResult `json:"checks"`
	EvaluatedAt time.Time     `json:"evaluated_at"`
}

func (e Evaluation) Trusted() bool {
	return e.Verdict == VerdictTrusted
}

// WithNote returns a copy of e with a noted entry appended to its checks.
func (e Evaluation) WithNote(check, detail string) Evaluation {
	checks := make([]CheckResult, 0, len(e.Checks)+1)
	checks = append(checks, e.Checks...)
	e.Checks = append(checks, CheckResult{Check: check, Status: CheckNoted, Detail: detail})
	return e
}

// Evaluate folds the three gateway checks plus any extra checks into a verdict.
// Trust needs a matching (or configured out) signature, an affirmative
// authority answer and an accepted source address. Lack of proof is untrusted.
func Evaluate(signature, authority, source CheckResult, extra ...CheckResult) Evaluation {
	checks := append([]CheckResult{signature, authority, source}, extra...)
	eval := Evaluation{Checks: checks, EvaluatedAt: time.Now().UTC()}

	var rejectedBy, unresolved []string
	for _, c := range checks {
		switch c.Status {
		case CheckRejected:
			rejectedBy = append(rejectedBy, c.Check)
		case CheckInconclusive:
			unresolved = append(unresolved, c.Check)
		}
	}

	switch {
	case len(rejectedBy) > 0:
		eval.Verdict = VerdictUntrusted
		eval.Reason = "rejected by " + strings.Join(rejectedBy, ", ")
	case len(unresolved) > 0:
		eval.Verdict = VerdictUntrusted
		eval.Reason = "could not confirm " + strings.Join(unresolved, ", ")
	case authority.Status != CheckPassed:
		eval.Verdict = VerdictUntrusted
		eval.Reason = "authority confirmation missing"
	case source.Status != CheckPassed:
		eval.Verdict = VerdictUntrusted
		eval.Reason = "source address not validated"
	default:
		eval.Verdict = VerdictTrusted
		eval.Reason = "all checks passed"
	}

	return eval
}

const debugInfoLimit = 255

// Summary is the one-line trail stored in debug_info.
func (e Evaluation) Summary() string {
	parts := make([]string, 0, len(e.Checks))
	for _, c := range e.Checks {
		parts = append(parts, c.String())
	}
	s := fmt.Sprintf("%s: %s [%s]", e.Verdict, e.Reason, strings.Join(parts, "; "))
	if runes := []rune(s); len(runes) > debugInfoLimit {
		s = string(runes[:debugInfoLimit-3]) + "..."
	}
	return s
}

const trailLimit = 20

// AppendTrail adds eval to a stored JSON trail, keeping the newest entries.
func AppendTrail(trail []byte, eval Evaluation) ([]byte, error) {
	var entries []Evaluation
	if len(trail) > 0 {
		if err := json.Unmarshal(trail, &entries); err != nil {
			return nil, fmt.Errorf("decode trust trail: %w", err)
		}
	}
	entries = append(entries, eval)
	if len(entries) > trailLimit {
		entries = entries[len(entries)-trailLimit:]
	}
	return json.Marshal(entries)
}

// DecodeTrail reads a stored trail.
func DecodeTrail(trail []byte) ([]Evaluation, error) {
	var entries []Evaluation
	if len(trail) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(trail, &entries); err != nil {
		return nil, fmt.Errorf("decode trust trail: %w", err)
	}
	return entries, nil
}

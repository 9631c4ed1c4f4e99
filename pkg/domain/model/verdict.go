// pkg/domain/model/verdict.go
package model

import (
	"fmt"
	"time"
)

// Verdict is the terminal state of one check on one file.
type Verdict int

const (
	VerdictPass    Verdict = 1
	VerdictFail    Verdict = 2
	VerdictSkipped Verdict = 3
)

func (v Verdict) String() string {
	switch v {
	case VerdictPass:
		return "pass"
	case VerdictFail:
		return "fail"
	case VerdictSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("unknown_verdict_%d", v)
	}
}

// Check names one of the per-file checks. Skip lists are keyed by these
// names.
type Check string

const (
	CheckFormat    Check = "format"
	CheckMetadata  Check = "metadata"
	CheckWatermark Check = "watermark"
)

// ContentChecks are the checks a skip list can exempt a file from. The
// format check follows them: it is skipped only when all of them are.
var ContentChecks = []Check{CheckMetadata, CheckWatermark}

// AllChecks is the reporting order of checks for one file.
var AllChecks = []Check{CheckFormat, CheckMetadata, CheckWatermark}

// Mode selects between the mutating commit-time pipeline and the read-only
// CI pipeline.
type Mode int

const (
	ModeWrite Mode = 1
	ModeAudit Mode = 2
)

func (m Mode) String() string {
	switch m {
	case ModeWrite:
		return "write"
	case ModeAudit:
		return "audit"
	default:
		return fmt.Sprintf("unknown_mode_%d", m)
	}
}

// CheckResult is one (path, check, verdict, detail) row of a report.
type CheckResult struct {
	Path    string
	Check   Check
	Verdict Verdict
	Detail  string
	Err     error
}

// Report is the outcome of one orchestrator invocation.
type Report struct {
	RunID    string
	Mode     Mode
	Verdict  Verdict
	Results  []CheckResult
	TimedOut bool
	Started  time.Time
	Duration time.Duration
}

// Failures returns the failing rows in report order.
func (r *Report) Failures() []CheckResult {
	var out []CheckResult
	for _, res := range r.Results {
		if res.Verdict == VerdictFail {
			out = append(out, res)
		}
	}
	return out
}

// Count returns how many rows carry the given verdict.
func (r *Report) Count(v Verdict) int {
	n := 0
	for _, res := range r.Results {
		if res.Verdict == v {
			n++
		}
	}
	return n
}

// Aggregate is pass iff no row failed. Skipped rows count for neither side.
func Aggregate(results []CheckResult) Verdict {
	for _, res := range results {
		if res.Verdict == VerdictFail {
			return VerdictFail
		}
	}
	return VerdictPass
}

// internal/app/task/job_audit.go
package task

import (
	"context"
	"io"
	"log"
	"sync"

	"github.com/alexclairr/imageguard/pkg/domain/model"
	"github.com/alexclairr/imageguard/pkg/service/pipeline"
)

// Runner is the part of the orchestrator a scheduled job needs.
type Runner interface {
	Run(ctx context.Context, paths []string, mode model.Mode) (*model.Report, error)
}

// AuditJob re-audits the asset tree on a schedule, so that files changed
// outside the commit hook are noticed.
type AuditJob struct {
	runner Runner
	paths  []string
	out    io.Writer

	mu   sync.Mutex
	last *model.Report
}

// NewAuditJob audits paths (the asset directory when empty) and renders
// the failures of each run to out.
func NewAuditJob(runner Runner, paths []string, out io.Writer) *AuditJob {
	return &AuditJob{runner: runner, paths: paths, out: out}
}

// Run is called by the scheduler.
func (j *AuditJob) Run() {
	report, err := j.runner.Run(context.Background(), j.paths, model.ModeAudit)
	if err != nil {
		log.Printf("job '%s' could not audit the assets: %v", j.Name(), err)
		return
	}
	if err := pipeline.Render(j.out, report, true); err != nil {
		log.Printf("job '%s' could not write its report: %v", j.Name(), err)
	}

	j.mu.Lock()
	j.last = report
	j.mu.Unlock()
}

// LastReport returns the report of the most recent completed run, or nil.
func (j *AuditJob) LastReport() *model.Report {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.last
}

// Name identifies the job in the log wrappers.
func (j *AuditJob) Name() string {
	return "AssetAuditJob"
}

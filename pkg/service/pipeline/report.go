package pipeline

import (
	"fmt"
	"io"
	"time"

	"github.com/alexclairr/imageguard/pkg/constant"
	"github.com/alexclairr/imageguard/pkg/domain/model"
)

var marks = map[model.Verdict]string{
	model.VerdictPass:    "✓",
	model.VerdictFail:    "✗",
	model.VerdictSkipped: "⏭",
}

// Render writes one line per result followed by a summary line. With
// failuresOnly, passing and skipped rows are left out of the listing but
// still counted.
func Render(w io.Writer, r *model.Report, failuresOnly bool) error {
	files := make(map[string]bool)
	for _, res := range r.Results {
		files[res.Path] = true
		if failuresOnly && res.Verdict != model.VerdictFail {
			continue
		}
		var err error
		if res.Verdict == model.VerdictFail {
			_, err = fmt.Fprintf(w, "%s %s [%s] [%s] %s\n", marks[res.Verdict], res.Path, res.Check, constant.Kind(res.Err), res.Detail)
		} else {
			_, err = fmt.Fprintf(w, "%s %s [%s] %s\n", marks[res.Verdict], res.Path, res.Check, res.Detail)
		}
		if err != nil {
			return err
		}
	}

	verdict := "PASS"
	if r.Verdict == model.VerdictFail {
		verdict = "FAIL"
	}
	_, err := fmt.Fprintf(w, "%s (%s): %d files, %d passed, %d failed, %d skipped in %s\n",
		verdict, r.Mode, len(files),
		r.Count(model.VerdictPass), r.Count(model.VerdictFail), r.Count(model.VerdictSkipped),
		r.Duration.Round(time.Millisecond))
	if err != nil {
		return err
	}
	if r.TimedOut {
		_, err = fmt.Fprintln(w, "batch deadline expired: unfinished files are reported as failed")
	}
	return err
}

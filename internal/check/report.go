package check

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/stackward/stackward/pkg/api"
)

// Category is an ordered group of checks run under one name.
type Category struct {
	Name   string
	Checks []Check
}

// CategoryResult holds the results of one category in execution order.
type CategoryResult struct {
	Name    string
	Results []Result
}

// Report aggregates results across categories. It is mutable while a run
// adds results and immutable once finalized.
type Report struct {
	ID        string
	Kind      string
	Timestamp time.Time
	Secure    bool // use SECURE/INSECURE verdict wording

	Categories []CategoryResult
	Passed     int
	Failed     int
	Warned     int

	sealed bool
}

func NewReport(kind string, secure bool) *Report {
	return &Report{
		ID:        uuid.NewString(),
		Kind:      kind,
		Timestamp: time.Now().UTC(),
		Secure:    secure,
	}
}

// Add records a result under the named category, creating it on first use.
func (r *Report) Add(category string, res Result) {
	if r.sealed {
		panic("check: result added to finalized report")
	}
	switch res.Outcome {
	case api.OutcomePass:
		r.Passed++
	case api.OutcomeWarn:
		r.Warned++
	case api.OutcomeFail:
		r.Failed++
	}
	for i := range r.Categories {
		if r.Categories[i].Name == category {
			r.Categories[i].Results = append(r.Categories[i].Results, res)
			return
		}
	}
	r.Categories = append(r.Categories, CategoryResult{Name: category, Results: []Result{res}})
}

// Finalize seals the report against further additions.
func (r *Report) Finalize() { r.sealed = true }

// Score is passed*100/total, 0 when no checks ran.
func (r *Report) Score() int {
	total := r.Passed + r.Failed + r.Warned
	if total == 0 {
		return 0
	}
	return r.Passed * 100 / total
}

// Verdict derives the overall classification: any FAIL is unhealthy, any
// WARN without a FAIL is healthy-with-warnings.
func (r *Report) Verdict() api.Verdict {
	switch {
	case r.Failed > 0:
		if r.Secure {
			return api.VerdictInsecure
		}
		return api.VerdictUnhealthy
	case r.Warned > 0:
		if r.Secure {
			return api.VerdictSecureWithWarnings
		}
		return api.VerdictHealthyWithWarnings
	default:
		if r.Secure {
			return api.VerdictSecure
		}
		return api.VerdictHealthy
	}
}

// ExitCode is the process exit status for this report: 0 unless a critical
// check failed. Warnings do not fail the run.
func (r *Report) ExitCode() int {
	if r.Failed > 0 {
		return 1
	}
	return 0
}

// Document renders the report as the shared status document schema.
func (r *Report) Document(version string, services map[string]bool) api.StatusDocument {
	doc := api.StatusDocument{
		RunID:     r.ID,
		Timestamp: r.Timestamp.Format(time.RFC3339),
		Kind:      r.Kind,
		Verdict:   r.Verdict(),
		Passed:    r.Passed,
		Failed:    r.Failed,
		Warned:    r.Warned,
		Score:     r.Score(),
		Version:   version,
		Services:  services,
	}
	for _, cat := range r.Categories {
		for _, res := range cat.Results {
			doc.Checks = append(doc.Checks, api.CheckStatus{
				Name:       res.Name,
				Category:   cat.Name,
				Outcome:    res.Outcome,
				DurationMS: res.Duration.Milliseconds(),
				Detail:     res.Detail,
			})
		}
	}
	return doc
}

// WriteStatus writes the status document as JSON to path, creating parent
// directories as needed.
func WriteStatus(doc api.StatusDocument, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create status dir: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	return nil
}

// Runner executes whole categories through the harness, streaming one
// immediate PASS/WARN/FAIL line per check as it completes. No result is ever
// dropped from the aggregate counters.
type Runner struct {
	Harness Harness
	Out     io.Writer
}

// RunAll executes every check in every category sequentially and returns the
// finalized report. Execution never short-circuits on failure; the exit
// status reflects the worst outcome observed.
func (ru *Runner) RunAll(ctx context.Context, kind string, secure bool, groups []Category) *Report {
	rep := NewReport(kind, secure)
	for _, group := range groups {
		if ru.Out != nil {
			fmt.Fprintf(ru.Out, "== %s\n", group.Name)
		}
		for _, c := range group.Checks {
			res := ru.Harness.Run(ctx, c)
			rep.Add(group.Name, res)
			if ru.Out != nil {
				if res.Detail != "" {
					fmt.Fprintf(ru.Out, "  [%s] %s (%dms): %s\n", res.Outcome, res.Name, res.Duration.Milliseconds(), res.Detail)
				} else {
					fmt.Fprintf(ru.Out, "  [%s] %s (%dms)\n", res.Outcome, res.Name, res.Duration.Milliseconds())
				}
			}
		}
	}
	rep.Finalize()
	return rep
}

// Summary writes the aggregate summary block.
func (ru *Runner) Summary(rep *Report) {
	if ru.Out == nil {
		return
	}
	fmt.Fprintf(ru.Out, "\npassed=%d failed=%d warned=%d score=%d verdict=%s\n",
		rep.Passed, rep.Failed, rep.Warned, rep.Score(), rep.Verdict())
}

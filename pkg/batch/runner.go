package batch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/morezero/cadastro-incidental/pkg/cadastro"
)

const runnerLogPrefix = "batch:runner"

// Registrar runs one registration.
type Registrar interface {
	Register(ctx context.Context, req *cadastro.Request) (*cadastro.Result, error)
}

// Options tune a batch run.
type Options struct {
	// StopOnError ends the batch at the first failed registration.
	StopOnError bool
}

// Outcome is the result of one request in the batch.
type Outcome struct {
	Index  int              `json:"index"`
	NPJ    string           `json:"npj"`
	Result *cadastro.Result `json:"result,omitempty"`
	Phase  string           `json:"failedPhase,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// Summary collects every outcome of a batch.
type Summary struct {
	Outcomes   []Outcome `json:"outcomes"`
	Completed  int       `json:"completed"`
	Unverified int       `json:"unverified"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
}

// OK reports whether every request completed.
func (s *Summary) OK() bool {
	return s.Failed == 0 && s.Skipped == 0
}

// Run registers the requests sequentially. A cancelled context or StopOnError
// leaves the remaining requests skipped.
func Run(ctx context.Context, reg Registrar, reqs []cadastro.Request, opts Options) *Summary {
	sum := &Summary{Outcomes: make([]Outcome, 0, len(reqs))}
	for i := range reqs {
		if ctx.Err() != nil {
			sum.Skipped = len(reqs) - i
			slog.Warn(fmt.Sprintf("%s - batch cancelled, %d requests skipped", runnerLogPrefix, sum.Skipped))
			break
		}

		out := Outcome{Index: i, NPJ: cadastro.NormalizeNPJ(reqs[i].NPJ)}
		res, err := reg.Register(ctx, &reqs[i])
		if err != nil {
			out.Error = err.Error()
			if p := cadastro.FailedPhase(err); p != cadastro.PhaseNone {
				out.Phase = p.String()
			}
			sum.Failed++
			sum.Outcomes = append(sum.Outcomes, out)
			slog.Error(fmt.Sprintf("%s - request %d npj=%s failed: %v", runnerLogPrefix, i, out.NPJ, err))
			if opts.StopOnError {
				sum.Skipped = len(reqs) - i - 1
				break
			}
			continue
		}

		out.Result = res
		sum.Completed++
		if !res.PartiesVerified {
			sum.Unverified++
		}
		sum.Outcomes = append(sum.Outcomes, out)
		slog.Info(fmt.Sprintf("%s - request %d npj=%s registered as process %d", runnerLogPrefix, i, out.NPJ, res.ProcessNumber))
	}
	return sum
}

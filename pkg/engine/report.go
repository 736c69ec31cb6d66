package engine

// Outcome classifies how one target ended.
type Outcome string

const (
	OutcomeSuccess       Outcome = "success"
	OutcomeFatal         Outcome = "error-fatal"
	OutcomeNonFatal      Outcome = "error-non-fatal"
	OutcomeSkipped       Outcome = "skipped"
	OutcomeSkippedSilent Outcome = "skipped-silent"
	OutcomeSignaled      Outcome = "signaled"
)

// Fatal reports whether the outcome halts the remaining traversal.
func (o Outcome) Fatal() bool {
	return o == OutcomeFatal || o == OutcomeSignaled
}

// Process exit codes. Frozen contract: callers script against these.
const (
	ExitSuccess = 0
	ExitFatal   = 1
	ExitErrors  = 2
)

// Result is one per-target report entry.
type Result struct {
	// Name of the target
	Name string

	// Outcome of the action
	Outcome Outcome

	// Message is a human-readable summary
	Message string

	// Dest is the resolved destination, when the action had one
	Dest string
}

// Report aggregates the results of a whole run. Silent skips produce no
// entry; the traversal stops after the first fatal entry.
type Report struct {
	Results []Result

	// DryRun records whether the run mutated anything
	DryRun bool
}

func (r *Report) add(result Result) {
	r.Results = append(r.Results, result)
}

// Worst returns the most severe outcome observed.
func (r *Report) Worst() Outcome {
	worst := OutcomeSuccess
	for _, result := range r.Results {
		switch {
		case result.Outcome.Fatal():
			return result.Outcome
		case result.Outcome == OutcomeNonFatal:
			worst = OutcomeNonFatal
		}
	}
	return worst
}

// ExitCode maps the worst outcome to the process exit status.
func (r *Report) ExitCode() int {
	switch r.Worst() {
	case OutcomeFatal, OutcomeSignaled:
		return ExitFatal
	case OutcomeNonFatal:
		return ExitErrors
	}
	return ExitSuccess
}

// Failed reports whether the run ended fatally.
func (r *Report) Failed() bool {
	return r.ExitCode() == ExitFatal
}

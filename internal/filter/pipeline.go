package filter

import "trendreversal/internal/model"

// GateResult is the outcome of one enabled gate.
type GateResult struct {
	Gate string
	Pass bool
}

// Decision is the pipeline verdict for one candidate.
type Decision struct {
	Pass bool
	// RejectedBy names the first failing required gate, or "momentum" when the
	// momentum group failed. Empty when Pass is true.
	RejectedBy string
	Results    []GateResult
}

// Pipeline evaluates the gates enabled in one Config.
type Pipeline struct {
	cfg      Config
	required []string
	momentum []string
}

// NewPipeline snapshots cfg; later changes to the caller's copy are not observed.
func NewPipeline(cfg Config) *Pipeline {
	p := &Pipeline{cfg: cfg.Clone()}
	for _, g := range p.cfg.Enabled() {
		if MomentumGates[g] {
			p.momentum = append(p.momentum, g)
		} else {
			p.required = append(p.required, g)
		}
	}
	return p
}

// Config returns the pipeline's configuration snapshot.
func (p *Pipeline) Config() Config { return p.cfg.Clone() }

// Evaluate runs every enabled gate for the candidate at index i. Required gates
// combine with AND. Enabled momentum gates combine with OR; with none enabled
// the momentum group is skipped. Disabled gates are not evaluated.
func (p *Pipeline) Evaluate(s *model.Series, i int) Decision {
	d := Decision{Pass: true, Results: make([]GateResult, 0, len(p.required)+len(p.momentum))}

	for _, g := range p.required {
		ok := predicates[g](s, i, &p.cfg)
		d.Results = append(d.Results, GateResult{Gate: g, Pass: ok})
		if !ok && d.Pass {
			d.Pass = false
			d.RejectedBy = g
		}
	}

	if len(p.momentum) > 0 {
		passed := false
		for _, g := range p.momentum {
			ok := predicates[g](s, i, &p.cfg)
			d.Results = append(d.Results, GateResult{Gate: g, Pass: ok})
			passed = passed || ok
		}
		if !passed && d.Pass {
			d.Pass = false
			d.RejectedBy = "momentum"
		}
	}
	return d
}

// Accept reports whether the candidate at index i passes.
func (p *Pipeline) Accept(s *model.Series, i int) bool {
	return p.Evaluate(s, i).Pass
}

package classify

import (
	"github.com/smoothtask/smoothtaskd/model"
)

// Classifier runs rule matching, falling back to ML inference when no rule
// matched and ML is enabled.
type Classifier struct {
	Patterns           *PatternDatabase
	ML                 Model
	MLEnabled          bool
	ConfidenceThreshold float64
	Features           *FeatureCache
}

// NewClassifier builds a classifier with a stub ML model and a feature
// cache of the given capacity; callers enable ML and swap in a real model
// via the exported fields.
func NewClassifier(patterns *PatternDatabase, featureCacheCapacity int) *Classifier {
	return &Classifier{
		Patterns: patterns,
		ML:       StubModel{},
		Features: NewFeatureCache(featureCacheCapacity),
	}
}

// ClassifyProcess assigns process_type and tags to p in place, per §4.E:
// a rule match wins outright; otherwise, if ML is enabled, a prediction
// above ConfidenceThreshold is adopted; otherwise process_type stays
// TypeUnknown.
func (c *Classifier) ClassifyProcess(p *model.ProcessRecord) {
	if pat, ok := c.Patterns.Match(p); ok {
		pt, _ := parseProcessType(pat.ProcessType)
		p.ProcessType = pt
		for _, tag := range pat.Tags {
			p.AddTag(tag)
		}
		return
	}

	if !c.MLEnabled || c.ML == nil {
		return
	}
	fv := c.Features.Get(p)
	pred := c.ML.Predict(fv)
	if pred.Confidence > c.ConfidenceThreshold {
		p.ProcessType = pred.ProcessType
	}
}

// ClassifyAll runs ClassifyProcess over every process, then propagates each
// group's highest-priority member classification and tag union onto the
// corresponding AppGroupRecord. confidenceThreshold is the configured
// ml.confidence_threshold (§4.E): a prediction at or below it is discarded
// rather than adopted.
func ClassifyAll(processes []model.ProcessRecord, groups []model.AppGroupRecord, patterns *PatternDatabase, ml Model, confidenceThreshold float64) {
	c := &Classifier{Patterns: patterns, ML: ml, ConfidenceThreshold: confidenceThreshold, Features: NewFeatureCache(1024)}
	if ml != nil {
		c.MLEnabled = true
	}

	byPID := make(map[int]*model.ProcessRecord, len(processes))
	for i := range processes {
		c.ClassifyProcess(&processes[i])
		byPID[processes[i].PID] = &processes[i]
	}

	for i := range groups {
		g := &groups[i]
		for _, pid := range g.Members {
			if p, ok := byPID[pid]; ok {
				g.InheritClassification(p)
			}
		}
	}
}

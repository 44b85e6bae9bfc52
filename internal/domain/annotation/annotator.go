package annotation

import "strings"

// RuleAnnotator returns the first matching rule's finding, or the configured
// default. It reads only the subject name and study UID.
type RuleAnnotator struct {
	cfg RulesConfig
}

// NewRuleAnnotator creates an annotator over cfg.
func NewRuleAnnotator(cfg RulesConfig) *RuleAnnotator {
	return &RuleAnnotator{cfg: cfg}
}

// NewStubAnnotator returns the annotator used when no rules file is given.
func NewStubAnnotator() *RuleAnnotator {
	return NewRuleAnnotator(DefaultRules())
}

func (a *RuleAnnotator) Annotate(s Subject) Finding {
	name := s.SubjectName()
	for _, r := range a.cfg.Rules {
		if !strings.Contains(name, r.Match) {
			continue
		}
		f := Finding{
			Status:      StatusAnomalyDetected,
			Finding:     r.Finding,
			Probability: r.Probability,
		}
		if r.Segmentation != nil {
			f.Segmentation = NewSegmentation(r.Segmentation.Algorithm, r.Segmentation.Label, s.StudyInstanceUID())
		}
		return f
	}

	return Finding{
		Status:      StatusNormal,
		Finding:     a.cfg.Default.Finding,
		Probability: a.cfg.Default.Probability,
	}
}

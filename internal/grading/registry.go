package grading

import (
	"fmt"

	"github.com/SAP-F-2025/mocktest-service/internal/models"
)

// Registry resolves the grading strategy for an exam type.
// Build one at startup and share it; it holds no mutable state.
type Registry struct {
	general Strategy
	sat     Strategy
	ielts   Strategy
	jee     Strategy
}

func NewRegistry() *Registry {
	return &Registry{
		general: GeneralStrategy{},
		sat:     SATStrategy{},
		ielts:   IELTSStrategy{},
		jee:     JEEStrategy{},
	}
}

// Lookup returns the strategy for examType. Every models.ExamType must have a case here.
func (r *Registry) Lookup(examType models.ExamType) (Strategy, error) {
	switch examType {
	case models.ExamGeneral:
		return r.general, nil
	case models.ExamSATAdaptive, models.ExamSATNonAdaptive:
		return r.sat, nil
	case models.ExamIELTS:
		return r.ielts, nil
	case models.ExamJEEMains, models.ExamJEEAdvanced:
		return r.jee, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownExamType, examType)
	}
}

// LookupOrDefault falls back to the general strategy for unknown exam types
func (r *Registry) LookupOrDefault(examType models.ExamType) Strategy {
	strategy, err := r.Lookup(examType)
	if err != nil {
		return r.general
	}
	return strategy
}

// ExamTypes lists every exam type the registry knows
func ExamTypes() []models.ExamType {
	return []models.ExamType{
		models.ExamGeneral,
		models.ExamSATAdaptive,
		models.ExamSATNonAdaptive,
		models.ExamIELTS,
		models.ExamJEEMains,
		models.ExamJEEAdvanced,
	}
}

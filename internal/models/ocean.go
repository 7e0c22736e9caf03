package models

import (
	"fmt"
	"math"
)

type Trait string

const (
	TraitOpenness          Trait = "openness"
	TraitConscientiousness Trait = "conscientiousness"
	TraitExtraversion      Trait = "extraversion"
	TraitAgreeableness     Trait = "agreeableness"
	TraitNeuroticism       Trait = "neuroticism"
)

// Traits lists the OCEAN dimensions in display order.
var Traits = []Trait{
	TraitOpenness,
	TraitConscientiousness,
	TraitExtraversion,
	TraitAgreeableness,
	TraitNeuroticism,
}

const (
	MinScore = 0
	MaxScore = 100

	HighThreshold   = 60
	MediumThreshold = 40
)

type Level string

const (
	LevelHigh   Level = "high"
	LevelMedium Level = "medium"
	LevelLow    Level = "low"
)

// LevelFor buckets a 0-100 score.
func LevelFor(score float64) Level {
	switch {
	case score >= HighThreshold:
		return LevelHigh
	case score >= MediumThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}

// OceanScores is immutable once returned by the analysis backend.
type OceanScores struct {
	Openness          float64 `json:"openness"`
	Conscientiousness float64 `json:"conscientiousness"`
	Extraversion      float64 `json:"extraversion"`
	Agreeableness     float64 `json:"agreeableness"`
	Neuroticism       float64 `json:"neuroticism"`
}

func (s OceanScores) Get(t Trait) float64 {
	switch t {
	case TraitOpenness:
		return s.Openness
	case TraitConscientiousness:
		return s.Conscientiousness
	case TraitExtraversion:
		return s.Extraversion
	case TraitAgreeableness:
		return s.Agreeableness
	case TraitNeuroticism:
		return s.Neuroticism
	}
	return 0
}

// Validate reports the first trait outside [0,100].
func (s OceanScores) Validate() error {
	for _, t := range Traits {
		v := s.Get(t)
		if math.IsNaN(v) || v < MinScore || v > MaxScore {
			return fmt.Errorf("score %s out of range: %v", t, v)
		}
	}
	return nil
}

package models

// TraitInsight is the narrative for one OCEAN dimension.
type TraitInsight struct {
	Level           Level    `json:"level"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Characteristics []string `json:"characteristics"`
	Suggestions     []string `json:"suggestions"`
}

// InsightBundle elaborates a score set. It is fetched lazily and may be absent.
type InsightBundle struct {
	Openness          TraitInsight `json:"openness"`
	Conscientiousness TraitInsight `json:"conscientiousness"`
	Extraversion      TraitInsight `json:"extraversion"`
	Agreeableness     TraitInsight `json:"agreeableness"`
	Neuroticism       TraitInsight `json:"neuroticism"`
	Summary           string       `json:"summary"`
}

func (b *InsightBundle) Trait(t Trait) TraitInsight {
	switch t {
	case TraitOpenness:
		return b.Openness
	case TraitConscientiousness:
		return b.Conscientiousness
	case TraitExtraversion:
		return b.Extraversion
	case TraitAgreeableness:
		return b.Agreeableness
	case TraitNeuroticism:
		return b.Neuroticism
	}
	return TraitInsight{}
}

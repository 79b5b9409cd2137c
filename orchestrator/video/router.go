// Copyright 2025 Potter Labs
// SPDX-License-Identifier: BUSL-1.1

package video

import (
	"fmt"
	"log"
)

// Factor weights for the composite score. Fixed; they sum to 1.0.
const (
	weightStyle    = 0.30
	weightContent  = 0.25
	weightDuration = 0.20
	weightQuality  = 0.15
	weightCost     = 0.10
)

// FactorWeights exposes the scoring weights keyed by factor name, for the
// analysis endpoint.
func FactorWeights() map[string]float64 {
	return map[string]float64{
		"style":    weightStyle,
		"content":  weightContent,
		"duration": weightDuration,
		"quality":  weightQuality,
		"cost":     weightCost,
	}
}

// styleCompatibility scores a (style, provider) pair when the style is not
// one of the provider's declared strengths. Unknown styles default to 0.5.
var styleCompatibility = map[Style]map[Provider]float64{
	StyleCinematic: {
		ProviderRunway:    1.0,
		ProviderGeminiVeo: 0.7,
		ProviderPika:      0.6,
		ProviderSlideshow: 0.3,
	},
	StylePhotorealistic: {
		ProviderRunway:    1.0,
		ProviderGeminiVeo: 0.6,
		ProviderPika:      0.5,
		ProviderSlideshow: 0.4,
	},
	StyleAnimation: {
		ProviderPika:      1.0,
		ProviderGeminiVeo: 0.9,
		ProviderRunway:    0.6,
		ProviderSlideshow: 0.7,
	},
	StyleArtistic: {
		ProviderPika:      1.0,
		ProviderGeminiVeo: 0.9,
		ProviderRunway:    0.5,
		ProviderSlideshow: 0.6,
	},
	StyleAbstract: {
		ProviderPika:      1.0,
		ProviderGeminiVeo: 0.9,
		ProviderRunway:    0.4,
		ProviderSlideshow: 0.5,
	},
	StyleDocumentary: {
		ProviderRunway:    1.0,
		ProviderSlideshow: 0.8,
		ProviderGeminiVeo: 0.6,
		ProviderPika:      0.4,
	},
}

// contentPreferences scores a (content type, provider) pair. An absent
// content type scores a neutral 0.7; an unknown one 0.6.
var contentPreferences = map[ContentType]map[Provider]float64{
	ContentEducational: {
		ProviderSlideshow: 1.0,
		ProviderRunway:    0.7,
		ProviderGeminiVeo: 0.6,
		ProviderPika:      0.5,
	},
	ContentEntertainment: {
		ProviderPika:      1.0,
		ProviderGeminiVeo: 0.9,
		ProviderRunway:    0.8,
		ProviderSlideshow: 0.4,
	},
	ContentCorporate: {
		ProviderRunway:    1.0,
		ProviderSlideshow: 0.8,
		ProviderGeminiVeo: 0.6,
		ProviderPika:      0.4,
	},
	ContentCreative: {
		ProviderPika:      1.0,
		ProviderGeminiVeo: 0.9,
		ProviderRunway:    0.6,
		ProviderSlideshow: 0.5,
	},
}

// Duration bands: short videos favor fast generators, medium ones the
// balanced providers, long ones the cost-effective options.
var (
	durationShortPreference = map[Provider]float64{
		ProviderGeminiVeo: 1.0,
		ProviderPika:      0.9,
		ProviderSlideshow: 0.8,
		ProviderRunway:    0.7,
	}
	durationMediumPreference = map[Provider]float64{
		ProviderRunway:    1.0,
		ProviderGeminiVeo: 0.9,
		ProviderPika:      0.9,
		ProviderSlideshow: 0.8,
	}
	durationLongPreference = map[Provider]float64{
		ProviderSlideshow: 1.0,
		ProviderGeminiVeo: 0.7,
		ProviderPika:      0.6,
		ProviderRunway:    0.5,
	}
)

// qualityRequirements maps each style to the quality tier it demands. Styles
// not listed require only standard quality.
var qualityRequirements = map[Style]QualityTier{
	StyleCinematic:      QualityHigh,
	StylePhotorealistic: QualityHigh,
	StyleDocumentary:    QualityHigh,
	StyleArtistic:       QualityCreative,
	StyleAnimation:      QualityCreative,
	StyleAbstract:       QualityCreative,
}

// qualityCompatibility is keyed by (required tier, provider tier). Pairs not
// listed score 0.7.
var qualityCompatibility = map[QualityTier]map[QualityTier]float64{
	QualityHigh: {
		QualityHigh:     1.0,
		QualityCreative: 0.8,
		QualityStandard: 0.6,
	},
	QualityCreative: {
		QualityCreative: 1.0,
		QualityHigh:     0.9,
		QualityStandard: 0.7,
	},
	QualityStandard: {
		QualityStandard: 1.0,
		QualityCreative: 0.9,
		QualityHigh:     0.8,
	},
}

// costEfficiency scores a cost tier; higher is more cost-efficient.
var costEfficiency = map[CostTier]float64{
	CostVeryLow: 1.0,
	CostLow:     0.8,
	CostMedium:  0.6,
	CostHigh:    0.4,
}

// styleAdaptations carries the emulation hints attached when a style routes
// to a provider that is not its canonical match.
var styleAdaptations = map[Style]map[Provider]map[string]string{
	StyleCinematic: {
		ProviderGeminiVeo: {
			"prompt_enhancement":  "cinematic style with dramatic camera angles and professional lighting",
			"duration_adjustment": "Consider shorter duration for optimal quality",
		},
		ProviderPika: {
			"prompt_enhancement": "cinematic style with dramatic lighting and camera movements",
			"quality_note":       "May have more artistic interpretation than pure cinematic",
		},
		ProviderSlideshow: {
			"image_style":        "cinematic photography style with dramatic lighting",
			"transition_effects": "Use cross-fades and professional transitions",
		},
	},
	StyleAnimation: {
		ProviderRunway: {
			"prompt_enhancement": "animated style with smooth motion and cartoon-like elements",
			"style_note":         "May be more realistic than pure animation",
		},
		ProviderSlideshow: {
			"image_style":     "cartoon and animated illustration style",
			"sequence_timing": "Use quick transitions to simulate animation",
		},
	},
}

// ProviderScore is the per-provider scoring breakdown. Sub-scores are raw
// (unweighted) values in [0,1]; Total is the weighted sum.
type ProviderScore struct {
	Total         float64 `json:"total_score"`
	StyleScore    float64 `json:"style_score"`
	ContentScore  float64 `json:"content_score"`
	DurationScore float64 `json:"duration_score"`
	QualityScore  float64 `json:"quality_score"`
	CostScore     float64 `json:"cost_score"`
	Reason        string  `json:"reason"`
	PrimaryFactor string  `json:"primary_factor"`

	// Excluded marks a provider whose maximum duration the request exceeds.
	// An excluded provider's total is forced to zero and it is never chosen.
	Excluded bool `json:"excluded,omitempty"`
}

// RoutingAnalysis is the scoring breakdown returned by Analyze. It reflects
// exactly the computation Route performs, without executing anything.
type RoutingAnalysis struct {
	Decision RoutingDecision            `json:"routing_decision"`
	Scores   map[Provider]ProviderScore `json:"scores"`
	Weights  map[string]float64         `json:"weights"`
}

// Router selects the provider for a request using multi-factor scoring over
// the capability registry. It is stateless across calls and safe for
// concurrent use.
type Router struct {
	registry *Registry
}

// NewRouter creates a router over the given registry.
func NewRouter(registry *Registry) *Router {
	return &Router{registry: registry}
}

// Route computes the routing decision for a request. An explicit
// preferred_provider bypasses scoring with confidence 1.0. Otherwise every
// provider is scored and the highest total wins, with ties broken by the
// canonical provider order; the runner-up is recorded as the fallback.
func (r *Router) Route(req VideoRequest) (RoutingDecision, error) {
	if req.PreferredProvider != "" {
		return RoutingDecision{
			Provider:    req.PreferredProvider,
			Mode:        ModeFor(req.PreferredProvider),
			Reason:      fmt.Sprintf("User explicitly requested %s", req.PreferredProvider),
			Confidence:  1.0,
			Adaptations: adaptationsFor(req.Style, req.PreferredProvider),
		}, nil
	}

	scores := r.scoreAll(req)

	var (
		best       Provider
		bestScore  ProviderScore
		second     Provider
		haveViable bool
	)
	for _, p := range AllProviders {
		score := scores[p]
		if score.Excluded || score.Total == 0 {
			continue
		}
		switch {
		case !haveViable:
			best, bestScore = p, score
			haveViable = true
		case score.Total > bestScore.Total:
			second = best
			best, bestScore = p, score
		case second == "" || score.Total > scores[second].Total:
			second = p
		}
	}

	if !haveViable {
		return RoutingDecision{}, NewNoViableProviderError(
			fmt.Sprintf("no provider can serve the request (duration %ds exceeds every provider's maximum)", req.Duration))
	}

	log.Printf("[Router] Selected %s (score %.3f, factor %s) for style=%s", best, bestScore.Total, bestScore.PrimaryFactor, req.Style)

	return RoutingDecision{
		Provider:         best,
		Mode:             ModeFor(best),
		Reason:           bestScore.Reason,
		Confidence:       bestScore.Total,
		FallbackProvider: second,
		Adaptations:      adaptationsFor(req.Style, best),
	}, nil
}

// Analyze returns the full scoring breakdown for a request without side
// effects. Analyze(req).Decision always equals Route(req).
func (r *Router) Analyze(req VideoRequest) (RoutingAnalysis, error) {
	decision, err := r.Route(req)
	if err != nil {
		return RoutingAnalysis{}, err
	}
	return RoutingAnalysis{
		Decision: decision,
		Scores:   r.scoreAll(req),
		Weights:  FactorWeights(),
	}, nil
}

// Capabilities returns the registry backing this router.
func (r *Router) Capabilities() map[Provider]Capabilities {
	return r.registry.All()
}

func (r *Router) scoreAll(req VideoRequest) map[Provider]ProviderScore {
	scores := make(map[Provider]ProviderScore, len(AllProviders))
	for _, p := range AllProviders {
		scores[p] = r.scoreProvider(p, req)
	}
	return scores
}

// scoreProvider computes the five sub-scores and their weighted total for a
// single provider. A request longer than the provider's maximum duration
// zeroes the total outright.
func (r *Router) scoreProvider(p Provider, req VideoRequest) ProviderScore {
	caps, _ := r.registry.Capabilities(p)

	score := ProviderScore{
		StyleScore:    scoreStyleMatch(caps, p, req.Style),
		ContentScore:  scoreContentMatch(p, req.ContentType),
		DurationScore: scoreDuration(caps, p, req.Duration),
		QualityScore:  scoreQuality(caps, req.Style),
		CostScore:     scoreCost(caps, req.Priority),
	}

	if req.Duration > 0 && req.Duration > caps.MaxDuration {
		score.Excluded = true
		score.Total = 0
	} else {
		score.Total = score.StyleScore*weightStyle +
			score.ContentScore*weightContent +
			score.DurationScore*weightDuration +
			score.QualityScore*weightQuality +
			score.CostScore*weightCost
	}

	score.PrimaryFactor = primaryFactor(score)
	score.Reason = routingReason(p, score.PrimaryFactor, req)
	return score
}

func scoreStyleMatch(caps Capabilities, p Provider, style Style) float64 {
	if caps.HasStrength(string(style)) {
		return 1.0
	}
	if row, ok := styleCompatibility[style]; ok {
		if v, ok := row[p]; ok {
			return v
		}
	}
	return 0.5
}

func scoreContentMatch(p Provider, contentType ContentType) float64 {
	if contentType == "" {
		return 0.7
	}
	if row, ok := contentPreferences[contentType]; ok {
		if v, ok := row[p]; ok {
			return v
		}
	}
	return 0.6
}

func scoreDuration(caps Capabilities, p Provider, duration int) float64 {
	if duration == 0 {
		return 0.7
	}
	if duration > caps.MaxDuration {
		return 0.0
	}

	var preference map[Provider]float64
	switch {
	case duration <= 30:
		preference = durationShortPreference
	case duration <= 120:
		preference = durationMediumPreference
	default:
		preference = durationLongPreference
	}

	if v, ok := preference[p]; ok {
		return v
	}
	return 0.6
}

func scoreQuality(caps Capabilities, style Style) float64 {
	required, ok := qualityRequirements[style]
	if !ok {
		required = QualityStandard
	}
	if v, ok := qualityCompatibility[required][caps.Quality]; ok {
		return v
	}
	return 0.7
}

func scoreCost(caps Capabilities, priority Priority) float64 {
	base, ok := costEfficiency[caps.CostTier]
	if !ok {
		base = 0.6
	}
	// Cost matters less for high-priority requests; low and standard use
	// the base score unchanged.
	if priority == PriorityHigh {
		adjusted := base * 0.7
		if adjusted > 1.0 {
			adjusted = 1.0
		}
		return adjusted
	}
	return base
}

// primaryFactor names the sub-score that contributed the most, comparing raw
// values. Ties keep the earlier factor in the fixed order.
func primaryFactor(s ProviderScore) string {
	factors := []struct {
		name  string
		value float64
	}{
		{"style", s.StyleScore},
		{"content", s.ContentScore},
		{"duration", s.DurationScore},
		{"quality", s.QualityScore},
		{"cost", s.CostScore},
	}

	top := factors[0]
	for _, f := range factors[1:] {
		if f.value > top.value {
			top = f
		}
	}
	return top.name
}

// routingReason renders the human-readable sentence for the decisive factor.
func routingReason(p Provider, factor string, req VideoRequest) string {
	switch factor {
	case "style":
		return fmt.Sprintf("%s excels at %s style content", p, req.Style)
	case "content":
		if req.ContentType != "" {
			return fmt.Sprintf("%s is optimized for %s content", p, req.ContentType)
		}
	case "duration":
		if req.Duration > 0 {
			return fmt.Sprintf("%s is optimal for %ds duration videos", p, req.Duration)
		}
	case "quality":
		return fmt.Sprintf("%s provides the quality level needed for %s", p, req.Style)
	case "cost":
		return fmt.Sprintf("%s offers the most cost-effective solution", p)
	}
	return fmt.Sprintf("%s selected based on comprehensive analysis", p)
}

// adaptationsFor returns a copy of the emulation hints for a (style,
// provider) pair, or nil when the provider is a canonical match.
func adaptationsFor(style Style, p Provider) map[string]string {
	hints, ok := styleAdaptations[style][p]
	if !ok {
		return nil
	}
	out := make(map[string]string, len(hints))
	for k, v := range hints {
		out[k] = v
	}
	return out
}

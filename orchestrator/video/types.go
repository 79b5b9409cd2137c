// Copyright 2025 Potter Labs
// SPDX-License-Identifier: BUSL-1.1

// Package video provides the routing and orchestration engine for AI video
// generation. It defines the common abstractions shared by the capability
// registry, the health checker, the provider router, and the config
// transformer, enabling the orchestration service to treat heterogeneous
// downstream providers uniformly.
package video

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Provider identifies a downstream video-generation backend.
type Provider string

// The closed set of providers the service can route to.
const (
	// ProviderRunway is the cinematic/photorealistic generation backend.
	ProviderRunway Provider = "runway"

	// ProviderPika is the artistic/animation generation backend.
	ProviderPika Provider = "pika"

	// ProviderGeminiVeo is the low-cost creative generation backend.
	ProviderGeminiVeo Provider = "gemini_veo"

	// ProviderSlideshow is the local deterministic slideshow generator.
	ProviderSlideshow Provider = "slideshow"
)

// AllProviders lists every provider in canonical order. The order doubles as
// the tie-breaker during scoring: earlier providers win equal totals.
var AllProviders = []Provider{
	ProviderRunway,
	ProviderPika,
	ProviderGeminiVeo,
	ProviderSlideshow,
}

// IsValidProvider checks whether s names a known provider.
func IsValidProvider(s string) bool {
	for _, p := range AllProviders {
		if Provider(s) == p {
			return true
		}
	}
	return false
}

// Mode is the execution flavor of a job: deterministic local assembly for the
// slideshow generator, external generative call for everything else.
type Mode string

const (
	ModeAIGenerated Mode = "ai_generated"
	ModeSlideshow   Mode = "slideshow"
)

// ModeFor derives the execution mode from the chosen provider.
func ModeFor(p Provider) Mode {
	if p == ProviderSlideshow {
		return ModeSlideshow
	}
	return ModeAIGenerated
}

// Style is the visual flavor requested by the user.
type Style string

const (
	StyleCinematic        Style = "cinematic"
	StylePhotorealistic   Style = "photorealistic"
	StyleAnimation        Style = "animation"
	StyleArtistic         Style = "artistic"
	StyleAbstract         Style = "abstract"
	StyleDocumentary      Style = "documentary"
	StyleSlideshowModern  Style = "slideshow_modern"
	StyleSlideshowClassic Style = "slideshow_classic"
)

// ContentType is the thematic category of a request, distinct from style.
type ContentType string

const (
	ContentEducational   ContentType = "educational"
	ContentEntertainment ContentType = "entertainment"
	ContentCorporate     ContentType = "corporate"
	ContentCreative      ContentType = "creative"
)

// Priority expresses how urgent a request is. High priority relaxes the cost
// factor during scoring.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityStandard Priority = "standard"
	PriorityHigh     Priority = "high"
)

// QualityTier classifies the output quality a provider produces.
type QualityTier string

const (
	QualityHigh     QualityTier = "high"
	QualityCreative QualityTier = "creative"
	QualityStandard QualityTier = "standard"
)

// CostTier classifies how expensive a provider is to run.
type CostTier string

const (
	CostVeryLow CostTier = "very_low"
	CostLow     CostTier = "low"
	CostMedium  CostTier = "medium"
	CostHigh    CostTier = "high"
)

// VideoRequest is the input to the orchestration engine.
type VideoRequest struct {
	// RequestID is an opaque caller-supplied identifier. The service
	// generates one when absent and passes it through unchanged otherwise.
	RequestID string `json:"request_id,omitempty"`

	// Topic is the subject of the video. Required.
	Topic string `json:"topic" validate:"required"`

	// Prompt is optional free-text guidance layered on top of the topic.
	Prompt string `json:"prompt,omitempty"`

	// Style is the requested visual flavor. Required.
	Style Style `json:"style" validate:"required,oneof=cinematic photorealistic animation artistic abstract documentary slideshow_modern slideshow_classic"`

	// Theme is optional free text further narrowing the visual direction.
	Theme string `json:"theme,omitempty"`

	// Duration is the requested length in seconds. Zero means unspecified.
	Duration int `json:"duration,omitempty" validate:"omitempty,gt=0"`

	// AspectRatio defaults to 16:9 when empty.
	AspectRatio string `json:"aspect_ratio,omitempty" validate:"omitempty,oneof=16:9 9:16 1:1"`

	// VoiceStyle selects the narration voice, when any.
	VoiceStyle string `json:"voice_style,omitempty"`

	// BackgroundMusic selects the soundtrack, when any.
	BackgroundMusic string `json:"background_music,omitempty"`

	// ContentType is the thematic category of the request.
	ContentType ContentType `json:"content_type,omitempty" validate:"omitempty,oneof=educational entertainment corporate creative"`

	// Priority defaults to standard when empty.
	Priority Priority `json:"priority,omitempty" validate:"omitempty,oneof=low standard high"`

	// PreferredProvider bypasses scoring entirely when set.
	PreferredProvider Provider `json:"preferred_provider,omitempty" validate:"omitempty,oneof=runway pika gemini_veo slideshow"`
}

var requestValidator = validator.New()

// Normalize fills in the documented defaults for optional fields.
func (r *VideoRequest) Normalize() {
	if r.AspectRatio == "" {
		r.AspectRatio = "16:9"
	}
	if r.Priority == "" {
		r.Priority = PriorityStandard
	}
}

// Validate checks the request against the closed enum sets and field
// constraints. Violations come back as a validation-kind OrchestrationError.
func (r *VideoRequest) Validate() error {
	if err := requestValidator.Struct(r); err != nil {
		return &OrchestrationError{
			Kind:    ErrKindValidation,
			Message: err.Error(),
			Cause:   err,
		}
	}
	return nil
}

// Capabilities describes the static metadata of a provider. Instances are
// immutable once the registry is built.
type Capabilities struct {
	// MaxDuration is the longest video the provider can generate, in seconds.
	MaxDuration int `json:"max_duration" yaml:"max_duration"`

	// EstimatedTimePerSecond is the generation wall-clock cost per second of
	// output video.
	EstimatedTimePerSecond float64 `json:"estimated_time_per_second" yaml:"estimated_time_per_second"`

	// Quality is the output tier the provider produces.
	Quality QualityTier `json:"quality" yaml:"quality"`

	// Strengths are the style/content tags the provider is best at.
	Strengths []string `json:"strengths" yaml:"strengths"`

	// Resolutions lists supported output resolutions, preferred first.
	Resolutions []string `json:"resolutions" yaml:"resolutions"`

	// Features are free-form capability tags.
	Features []string `json:"features" yaml:"features"`

	// CostTier classifies the provider's running cost.
	CostTier CostTier `json:"cost_tier" yaml:"cost_tier"`

	// Fallbacks is the ordered static fallback chain. Never contains the
	// provider itself.
	Fallbacks []Provider `json:"fallbacks" yaml:"fallbacks"`
}

// HasStrength reports whether tag is one of the provider's strengths.
func (c Capabilities) HasStrength(tag string) bool {
	for _, s := range c.Strengths {
		if s == tag {
			return true
		}
	}
	return false
}

// ProviderStatus is the result of a single health probe. Statuses are
// produced on demand and never persisted.
type ProviderStatus struct {
	Provider Provider `json:"provider"`

	IsHealthy bool `json:"is_healthy"`

	// ResponseTimeMs is the wall-clock probe duration. Omitted when the
	// probe failed before it could be measured.
	ResponseTimeMs float64 `json:"response_time_ms,omitempty"`

	// Capabilities is a snapshot from the registry, present on success.
	Capabilities *Capabilities `json:"capabilities,omitempty"`

	// Error describes why the provider is unhealthy.
	Error string `json:"error,omitempty"`
}

// RoutingDecision is the router's output: the chosen provider, why it was
// chosen, and how confident the scorer is. Immutable after construction.
type RoutingDecision struct {
	Provider   Provider `json:"provider"`
	Mode       Mode     `json:"mode"`
	Reason     string   `json:"reason"`
	Confidence float64  `json:"confidence"`

	// FallbackProvider is the runner-up from scoring, used for a single
	// substitution when the chosen provider turns out to be unhealthy.
	FallbackProvider Provider `json:"fallback_provider,omitempty"`

	// Adaptations carry style-emulation hints for providers that are not
	// the canonical match for the requested style.
	Adaptations map[string]string `json:"adaptations,omitempty"`
}

// JobConfig is the provider-specific payload dispatched to the downstream
// execution API. It carries the original request fields, the routing fields,
// and provider defaults plus applied optimizations.
type JobConfig map[string]any

// Provider returns the provider the config was prepared for.
func (c JobConfig) Provider() Provider {
	p, _ := c["provider"].(Provider)
	return p
}

// ErrorKind classifies orchestration failures for HTTP mapping.
type ErrorKind string

const (
	// ErrKindValidation marks malformed requests. 400-class.
	ErrKindValidation ErrorKind = "validation"

	// ErrKindNoViableProvider marks requests no provider can serve. 503.
	ErrKindNoViableProvider ErrorKind = "no_viable_provider"

	// ErrKindTransport marks downstream API failures. The downstream status
	// code is surfaced verbatim.
	ErrKindTransport ErrorKind = "transport"

	// ErrKindInternal marks unexpected failures during scoring or
	// transformation. 500-class.
	ErrKindInternal ErrorKind = "internal"
)

// OrchestrationError is the error type produced by the engine.
type OrchestrationError struct {
	Kind       ErrorKind `json:"kind"`
	Provider   Provider  `json:"provider,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
	Message    string    `json:"message"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *OrchestrationError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s error (%s): %s", e.Kind, e.Provider, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error.
func (e *OrchestrationError) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the error kind to an HTTP response code. Transport errors
// carry the downstream status when one was received.
func (e *OrchestrationError) HTTPStatus() int {
	switch e.Kind {
	case ErrKindValidation:
		return 400
	case ErrKindNoViableProvider:
		return 503
	case ErrKindTransport:
		if e.StatusCode > 0 {
			return e.StatusCode
		}
		return 502
	default:
		return 500
	}
}

// NewNoViableProviderError builds the 503-class error for requests no
// provider can serve.
func NewNoViableProviderError(message string) *OrchestrationError {
	return &OrchestrationError{Kind: ErrKindNoViableProvider, Message: message}
}

// NewTransportError builds a transport-kind error carrying the downstream
// status code and body.
func NewTransportError(provider Provider, statusCode int, message string) *OrchestrationError {
	return &OrchestrationError{
		Kind:       ErrKindTransport,
		Provider:   provider,
		StatusCode: statusCode,
		Message:    message,
	}
}

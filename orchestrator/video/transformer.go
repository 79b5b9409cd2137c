// Copyright 2025 Potter Labs
// SPDX-License-Identifier: BUSL-1.1

package video

import (
	"fmt"
	"log"
)

// providerTemplates are the per-provider default parameter blocks layered on
// top of the base payload.
var providerTemplates = map[Provider]map[string]any{
	ProviderRunway: {
		"resolution":     "1920x1080",
		"fps":            24,
		"quality":        "high",
		"style_strength": 0.8,
	},
	ProviderPika: {
		"resolution":     "1280x720",
		"fps":            24,
		"quality":        "creative",
		"style_strength": 0.9,
	},
	ProviderGeminiVeo: {
		"resolution":     "1280x720",
		"fps":            24,
		"quality":        "creative",
		"style_strength": 0.7,
	},
	ProviderSlideshow: {
		"resolution":          "1920x1080",
		"transition_duration": 0.5,
		"image_display_time":  3.0,
		"include_captions":    true,
	},
}

// Transformer turns a routed request into the provider-specific job payload
// for the downstream execution API. It is stateless and safe for concurrent
// use.
type Transformer struct{}

// NewTransformer creates a config transformer.
func NewTransformer() *Transformer {
	return &Transformer{}
}

// Prepare builds the job configuration for a request and its routing
// decision: the base payload, the provider's default block, any routing
// adaptations, and the provider-specific optimizations, in that order.
func (t *Transformer) Prepare(req VideoRequest, decision RoutingDecision) JobConfig {
	config := JobConfig{
		"topic":            req.Topic,
		"prompt":           req.Prompt,
		"style":            req.Style,
		"theme":            req.Theme,
		"duration":         req.Duration,
		"aspect_ratio":     req.AspectRatio,
		"voice_style":      req.VoiceStyle,
		"background_music": req.BackgroundMusic,

		// Provider routing information, explicit so the execution API never
		// re-routes.
		"provider":       decision.Provider,
		"mode":           decision.Mode,
		"routing_reason": decision.Reason,

		"request_id": req.RequestID,
		"priority":   req.Priority,
	}

	for k, v := range providerTemplates[decision.Provider] {
		config[k] = v
	}

	if len(decision.Adaptations) > 0 {
		config["adaptations"] = decision.Adaptations

		if enhancement, ok := decision.Adaptations["prompt_enhancement"]; ok {
			config["prompt"] = fmt.Sprintf("%s. Style note: %s", req.Prompt, enhancement)
		}
		if imageStyle, ok := decision.Adaptations["image_style"]; ok {
			config["image_style_override"] = imageStyle
		}
	}

	t.applyOptimizations(config, req, decision.Provider)

	log.Printf("[Transformer] Prepared %s config for request %s", decision.Provider, req.RequestID)
	return config
}

func (t *Transformer) applyOptimizations(config JobConfig, req VideoRequest, provider Provider) {
	switch provider {
	case ProviderRunway:
		t.optimizeForRunway(config, req)
	case ProviderPika:
		t.optimizeForPika(config, req)
	case ProviderGeminiVeo:
		t.optimizeForGeminiVeo(config, req)
	case ProviderSlideshow:
		t.optimizeForSlideshow(config, req)
	}
}

func (t *Transformer) optimizeForRunway(config JobConfig, req VideoRequest) {
	if req.Style == StyleCinematic || req.Style == StylePhotorealistic || req.Style == StyleDocumentary {
		config["quality"] = "high"
		config["style_strength"] = 0.9
		config["enable_camera_movements"] = true
	}

	// Long generations are split into segments downstream.
	if req.Duration > 60 {
		config["segment_generation"] = true
		config["max_segment_length"] = 30
	}

	switch req.AspectRatio {
	case "9:16":
		config["resolution"] = "1080x1920"
	case "1:1":
		config["resolution"] = "1080x1080"
	}
}

func (t *Transformer) optimizeForPika(config JobConfig, req VideoRequest) {
	if req.Style == StyleAnimation || req.Style == StyleArtistic || req.Style == StyleAbstract {
		config["creativity_boost"] = true
		config["style_strength"] = 1.0
	}

	if req.Duration > 0 && req.Duration <= 30 {
		config["generation_mode"] = "fast"
		config["quality"] = "balanced"
	}
}

func (t *Transformer) optimizeForGeminiVeo(config JobConfig, req VideoRequest) {
	if req.Style == StyleAnimation || req.Style == StyleArtistic {
		config["animation_strength"] = 0.9
		config["creative_freedom"] = 0.8
	}

	config["cost_optimization"] = true
}

func (t *Transformer) optimizeForSlideshow(config JobConfig, req VideoRequest) {
	switch req.ContentType {
	case ContentEducational:
		config["image_display_time"] = 4.0 // longer display for reading
		config["include_captions"] = true
		config["caption_position"] = "bottom"
		config["transition_style"] = "fade"
	case ContentCorporate:
		config["transition_style"] = "professional"
		config["image_style"] = "clean"
		config["include_logo_space"] = true
	}

	if req.Duration > 0 {
		displayTime, _ := config["image_display_time"].(float64)
		transitionTime, _ := config["transition_duration"].(float64)
		images := int(float64(req.Duration) / (displayTime + transitionTime))
		if images < 3 {
			images = 3
		}
		config["target_image_count"] = images
	}

	if req.VoiceStyle != "" {
		config["sync_to_voice"] = true
		config["voice_pause_detection"] = true
	}
}

// PrepareBatch builds the job configurations for a batch. Every config is
// marked batch_processing; per provider, slideshow items are flagged
// batch_priority high while AI-provider groups with more than one item are
// staggered with a 10-second batch_delay per position to respect downstream
// rate limits.
func (t *Transformer) PrepareBatch(requests []VideoRequest, decisions []RoutingDecision) []JobConfig {
	configs := make([]JobConfig, 0, len(requests))
	for i, req := range requests {
		config := t.Prepare(req, decisions[i])
		config["batch_processing"] = true
		configs = append(configs, config)
	}

	t.applyBatchOptimizations(configs)
	return configs
}

func (t *Transformer) applyBatchOptimizations(configs []JobConfig) {
	groups := make(map[Provider][]JobConfig)
	var order []Provider
	for _, config := range configs {
		p := config.Provider()
		if _, seen := groups[p]; !seen {
			order = append(order, p)
		}
		groups[p] = append(groups[p], config)
	}

	for _, p := range order {
		group := groups[p]
		if p == ProviderSlideshow {
			// The slideshow generator handles concurrent jobs locally.
			for _, config := range group {
				config["batch_priority"] = "high"
			}
		} else if len(group) > 1 {
			for idx, config := range group {
				config["batch_delay"] = idx * 10
			}
		}
	}
}

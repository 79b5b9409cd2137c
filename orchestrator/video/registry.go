// Copyright 2025 Potter Labs
// SPDX-License-Identifier: BUSL-1.1

package video

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Registry is the process-wide capability registry. It is initialized once at
// startup and read-only thereafter, so lookups need no synchronization.
type Registry struct {
	capabilities map[Provider]Capabilities
	styleRouting map[Style]Provider
}

// builtinCapabilities is the authoritative per-provider metadata table.
func builtinCapabilities() map[Provider]Capabilities {
	return map[Provider]Capabilities{
		ProviderRunway: {
			MaxDuration:            300,
			EstimatedTimePerSecond: 2.0,
			Quality:                QualityHigh,
			Strengths:              []string{"cinematic", "photorealistic", "documentary", "corporate"},
			Resolutions:            []string{"1920x1080", "1080x1920", "1080x1080"},
			Features:               []string{"camera_movements", "photorealism", "narrative_flow"},
			CostTier:               CostHigh,
			Fallbacks:              []Provider{ProviderGeminiVeo, ProviderSlideshow},
		},
		ProviderPika: {
			MaxDuration:            120,
			EstimatedTimePerSecond: 1.5,
			Quality:                QualityCreative,
			Strengths:              []string{"animation", "artistic", "abstract", "creative"},
			Resolutions:            []string{"1280x720", "720x1280", "1080x1080"},
			Features:               []string{"artistic_styles", "fast_generation", "experimental"},
			CostTier:               CostMedium,
			Fallbacks:              []Provider{ProviderGeminiVeo, ProviderRunway, ProviderSlideshow},
		},
		ProviderGeminiVeo: {
			MaxDuration:            180,
			EstimatedTimePerSecond: 1.0,
			Quality:                QualityCreative,
			Strengths:              []string{"animation", "creative", "artistic", "abstract"},
			Resolutions:            []string{"1280x720", "720x1280", "1080x1080"},
			Features:               []string{"fast_generation", "creative_effects", "animation"},
			CostTier:               CostLow,
			Fallbacks:              []Provider{ProviderPika, ProviderRunway, ProviderSlideshow},
		},
		ProviderSlideshow: {
			MaxDuration:            600,
			EstimatedTimePerSecond: 0.1,
			Quality:                QualityStandard,
			Strengths:              []string{"educational", "presentation", "cost_effective", "long_form"},
			Resolutions:            []string{"1920x1080", "1080x1920", "1080x1080"},
			Features:               []string{"cost_effective", "voice_sync", "fast_generation", "image_generation"},
			CostTier:               CostVeryLow,
			Fallbacks:              nil,
		},
	}
}

// builtinStyleRouting maps each style to its canonical provider.
func builtinStyleRouting() map[Style]Provider {
	return map[Style]Provider{
		StyleCinematic:        ProviderRunway,
		StylePhotorealistic:   ProviderRunway,
		StyleAnimation:        ProviderPika,
		StyleArtistic:         ProviderPika,
		StyleAbstract:         ProviderPika,
		StyleDocumentary:      ProviderRunway,
		StyleSlideshowModern:  ProviderSlideshow,
		StyleSlideshowClassic: ProviderSlideshow,
	}
}

// registryFile is the external overlay document. Both sections are optional;
// provider entries override only the fields they set.
type registryFile struct {
	Providers    map[string]registryFileProvider `json:"providers" yaml:"providers"`
	StyleRouting map[string]struct {
		Provider string `json:"provider" yaml:"provider"`
	} `json:"style_routing" yaml:"style_routing"`
}

type registryFileProvider struct {
	MaxDuration            int      `json:"max_duration" yaml:"max_duration"`
	EstimatedTimePerSecond float64  `json:"estimated_time_per_second" yaml:"estimated_time_per_second"`
	Quality                string   `json:"quality" yaml:"quality"`
	Strengths              []string `json:"strengths" yaml:"strengths"`
	Resolutions            []string `json:"resolutions" yaml:"resolutions"`
	Features               []string `json:"features" yaml:"features"`
	CostTier               string   `json:"cost_tier" yaml:"cost_tier"`
	Fallbacks              []string `json:"fallbacks" yaml:"fallbacks"`
}

// NewRegistry builds a registry from the built-in table.
func NewRegistry() *Registry {
	return &Registry{
		capabilities: builtinCapabilities(),
		styleRouting: builtinStyleRouting(),
	}
}

// NewRegistryFromFile builds a registry from the built-in table with the
// overlay at path applied on top. A missing or unreadable overlay logs a
// warning and falls back to the built-ins; startup never fails on it.
func NewRegistryFromFile(path string) *Registry {
	r := NewRegistry()
	if path == "" {
		return r
	}

	overlay, err := loadRegistryFile(path)
	if err != nil {
		log.Printf("[Registry] WARNING: failed to load provider config %s: %v (using built-in defaults)", path, err)
		return r
	}

	r.applyOverlay(overlay)
	log.Printf("[Registry] Applied provider config overlay from %s", path)
	return r
}

// loadRegistryFile reads and parses an overlay document. JSON per the
// original deployment format; YAML accepted for parity with the rest of the
// platform's config files.
func loadRegistryFile(path string) (*registryFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read provider config: %w", err)
	}

	var overlay registryFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &overlay); err != nil {
			return nil, fmt.Errorf("failed to parse provider config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &overlay); err != nil {
			return nil, fmt.Errorf("failed to parse provider config: %w", err)
		}
	}
	return &overlay, nil
}

func (r *Registry) applyOverlay(overlay *registryFile) {
	for name, entry := range overlay.Providers {
		if !IsValidProvider(name) {
			log.Printf("[Registry] WARNING: ignoring unknown provider %q in config overlay", name)
			continue
		}
		p := Provider(name)
		caps := r.capabilities[p]

		if entry.MaxDuration > 0 {
			caps.MaxDuration = entry.MaxDuration
		}
		if entry.EstimatedTimePerSecond > 0 {
			caps.EstimatedTimePerSecond = entry.EstimatedTimePerSecond
		}
		if entry.Quality != "" {
			caps.Quality = QualityTier(entry.Quality)
		}
		if entry.Strengths != nil {
			caps.Strengths = entry.Strengths
		}
		if entry.Resolutions != nil {
			caps.Resolutions = entry.Resolutions
		}
		if entry.Features != nil {
			caps.Features = entry.Features
		}
		if entry.CostTier != "" {
			caps.CostTier = CostTier(entry.CostTier)
		}
		if entry.Fallbacks != nil {
			fallbacks := make([]Provider, 0, len(entry.Fallbacks))
			for _, f := range entry.Fallbacks {
				if IsValidProvider(f) && Provider(f) != p {
					fallbacks = append(fallbacks, Provider(f))
				}
			}
			caps.Fallbacks = fallbacks
		}

		r.capabilities[p] = caps
	}

	for style, entry := range overlay.StyleRouting {
		if IsValidProvider(entry.Provider) {
			r.styleRouting[Style(style)] = Provider(entry.Provider)
		}
	}
}

// Capabilities returns the metadata for a provider.
func (r *Registry) Capabilities(p Provider) (Capabilities, bool) {
	caps, ok := r.capabilities[p]
	return caps, ok
}

// All returns a copy of the full capability table keyed by provider id.
// Slice fields are copied too, so mutating the result never touches the
// registry's own table.
func (r *Registry) All() map[Provider]Capabilities {
	out := make(map[Provider]Capabilities, len(r.capabilities))
	for p, caps := range r.capabilities {
		out[p] = caps.clone()
	}
	return out
}

func (c Capabilities) clone() Capabilities {
	out := c
	out.Strengths = append([]string(nil), c.Strengths...)
	out.Resolutions = append([]string(nil), c.Resolutions...)
	out.Features = append([]string(nil), c.Features...)
	out.Fallbacks = append([]Provider(nil), c.Fallbacks...)
	return out
}

// CanonicalProvider returns the provider a style routes to by default.
func (r *Registry) CanonicalProvider(style Style) (Provider, bool) {
	p, ok := r.styleRouting[style]
	return p, ok
}

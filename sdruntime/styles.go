package sdruntime

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Built-in style names.
const (
	StyleAnimated  = "animated"
	StyleRealistic = "realistic"
)

var animatedKeywords = []string{
	"Cartoon",
	"Animated",
	"Vibrant colors",
	"Bold outlines",
	"Cel-shaded",
	"Anime",
	"Hand-drawn",
	"Simplified shapes",
	"Expressive eyes",
	"Dynamic poses",
}

var realisticKeywords = []string{
	"Photorealistic",
	"High Detail",
	"Natural Lighting",
	"Accurate Textures",
	"UHD",
	"8k",
	"f10",
	"DSLR",
	"Depth of Field",
	"Real-life Colors",
	"Shadow and Light",
	"Accurate Perspective",
	"135mm",
	"professional color grading",
	"atmospheric",
	"cinematic",
	"high resolution",
	"atmospheric",
	"vibrant",
}

// GeneralNegativePrompt is used for both passes unless the caller overrides it.
const GeneralNegativePrompt = "low quality, blurry, pixelated, distorted, deformed, poorly drawn, text, " +
	"watermark, logo, signature, grainy, artifacts, unnatural colors, oversaturated, " +
	"undersaturated, bad anatomy, missing limbs, extra limbs, poorly lit, dark shadows, " +
	"unrealistic lighting, cluttered, messy, chaotic, unrelated objects, people, animals, " +
	"vehicles, buildings not matching style, sketches, cartoons, photorealistic, noise, " +
	"halos, ghosting, duplication, repetitive patterns, incorrect perspective, low resolution, " +
	"flat lighting, lack of detail, oversimplified, exaggerated features, abstract elements, " +
	"surreal elements"

// StyleSet maps style names to prompt keywords. Lookups are case-insensitive.
// A StyleSet is immutable once built and safe for concurrent reads.
type StyleSet struct {
	keywords map[string][]string
	negative string
}

// stylesFile is the on-disk YAML layout:
//
//	negative_prompt: "..."
//	styles:
//	  watercolor: ["Watercolor", "Soft edges"]
type stylesFile struct {
	NegativePrompt string              `yaml:"negative_prompt"`
	Styles         map[string][]string `yaml:"styles"`
}

// DefaultStyles returns the built-in animated/realistic vocabularies.
func DefaultStyles() *StyleSet {
	return &StyleSet{
		keywords: map[string][]string{
			StyleAnimated:  append([]string(nil), animatedKeywords...),
			StyleRealistic: append([]string(nil), realisticKeywords...),
		},
		negative: GeneralNegativePrompt,
	}
}

// LoadStyles reads a YAML style file and layers it over the built-ins.
// An empty path returns the defaults. Styles in the file replace built-ins
// with the same name; a style with an empty list removes it.
func LoadStyles(path string) (*StyleSet, error) {
	set := DefaultStyles()
	if path == "" {
		return set, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read styles file: %w", err)
	}

	var file stylesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse styles file %s: %w", path, err)
	}

	for name, words := range file.Styles {
		key := normalizeStyle(name)
		if key == "" {
			continue
		}
		if len(words) == 0 {
			delete(set.keywords, key)
			continue
		}
		set.keywords[key] = append([]string(nil), words...)
	}

	if n := strings.TrimSpace(file.NegativePrompt); n != "" {
		set.negative = n
	}

	return set, nil
}

func normalizeStyle(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Keywords returns the keywords for a style, or nil when the style is unknown.
func (s *StyleSet) Keywords(style string) []string {
	if s == nil {
		return nil
	}
	return s.keywords[normalizeStyle(style)]
}

// NegativePrompt returns the general exclusion list.
func (s *StyleSet) NegativePrompt() string {
	if s == nil || s.negative == "" {
		return GeneralNegativePrompt
	}
	return s.negative
}

// Names returns the known style names in sorted order.
func (s *StyleSet) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.keywords))
	for name := range s.keywords {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

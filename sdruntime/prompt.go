package sdruntime

import (
	"fmt"
	"strings"
)

// ValidatePrompt validates a prompt string for image generation.
// Returns an error if the prompt is invalid.
func ValidatePrompt(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return fmt.Errorf("%w: prompt cannot be empty", ErrInvalidPrompt)
	}

	// The runtime tokenizer rejects NUL.
	if strings.ContainsRune(prompt, '\x00') {
		return fmt.Errorf("%w: prompt contains null bytes", ErrInvalidPrompt)
	}

	if len(prompt) > MaxPromptLength {
		return fmt.Errorf("%w: prompt length %d exceeds maximum %d",
			ErrInvalidPrompt, len(prompt), MaxPromptLength)
	}

	return nil
}

// SanitizePrompt cleans a prompt by trimming whitespace.
func SanitizePrompt(prompt string) string {
	return strings.TrimSpace(prompt)
}

// ComposePrompt appends the style's keywords to the prompt as
// "prompt, kw1, kw2, ...". Unknown or empty styles return the prompt
// unchanged; callers sanitize it beforehand.
func ComposePrompt(prompt, style string, styles *StyleSet) string {
	keywords := styles.Keywords(style)
	if len(keywords) == 0 {
		return prompt
	}
	return prompt + ", " + strings.Join(keywords, ", ")
}

// ResolveNegativePrompt returns the caller's negative prompt when it is
// non-blank and the style set's general exclusion list otherwise.
func ResolveNegativePrompt(negative string, styles *StyleSet) string {
	if n := strings.TrimSpace(negative); n != "" {
		return n
	}
	return styles.NegativePrompt()
}

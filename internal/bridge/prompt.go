package bridge

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
)

//go:embed prompt.md
var defaultSystemPrompt string

// DefaultSystemPrompt returns the built-in tutor prompt.
func DefaultSystemPrompt() string {
	return defaultSystemPrompt
}

// LoadSystemPrompt reads the prompt at path, or returns the built-in prompt
// when path is empty.
func LoadSystemPrompt(path string) (string, error) {
	if path == "" {
		return defaultSystemPrompt, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read system prompt: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", fmt.Errorf("system prompt file %s is empty", path)
	}
	return prompt, nil
}

package prompt

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

const DefaultPersonality = "friendly"

const basePersonality = `you are chordial, a warm, emotionally attuned ai assistant and companion.
you help users with productivity, personal goals, and offer encouragement in gentle, playful ways.
you speak in lowercase, and use soft, expressive language, like a cozy friend checking in.
you're never judgmental, and you respond naturally to both emotional tone and time of day.
your style is casual, kind, and a little whimsical.`

// Personalities maps a user's personality tag to its system preamble
type Personalities map[string]string

type personalityFile struct {
	Personalities map[string]string `yaml:"personalities"`
}

func DefaultPersonalities() Personalities {
	return Personalities{DefaultPersonality: basePersonality}
}

// LoadPersonalities reads extra preambles from a YAML file of the form
//
//	personalities:
//	  calm: |
//	    you are chordial, ...
//
// The built-in friendly preamble is kept unless the file overrides it.
func LoadPersonalities(path string) (Personalities, error) {
	p := DefaultPersonalities()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read personalities: %w", err)
	}

	var file personalityFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse personalities: %w", err)
	}

	for name, preamble := range file.Personalities {
		if preamble = strings.TrimSpace(preamble); preamble != "" {
			p[strings.ToLower(name)] = preamble
		}
	}

	return p, nil
}

// Preamble returns the preamble for tag, falling back to the default
func (p Personalities) Preamble(tag string) string {
	if s, ok := p[strings.ToLower(tag)]; ok {
		return s
	}
	if s, ok := p[DefaultPersonality]; ok {
		return s
	}
	return basePersonality
}

// Names lists the configured personality tags
func (p Personalities) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

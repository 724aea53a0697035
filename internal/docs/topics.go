// Package docs generates multi-perspective feature documentation for a
// simulation by asking every agent about every topic.
package docs

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed topics.yaml
var defaultTopics []byte

// Topic is one documentation subject.
type Topic struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
}

type catalog struct {
	Topics []Topic `yaml:"topics"`
}

// DefaultTopics returns the embedded topic catalog.
func DefaultTopics() []Topic {
	topics, err := ParseTopics(defaultTopics)
	if err != nil {
		panic("docs: embedded topics are invalid: " + err.Error())
	}
	return topics
}

// LoadTopics reads a topic catalog from path. An empty path yields the
// embedded defaults.
func LoadTopics(path string) ([]Topic, error) {
	if path == "" {
		return DefaultTopics(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topics file: %w", err)
	}
	topics, err := ParseTopics(data)
	if err != nil {
		return nil, fmt.Errorf("parse topics file %s: %w", path, err)
	}
	return topics, nil
}

// ParseTopics decodes a YAML topic catalog.
func ParseTopics(data []byte) ([]Topic, error) {
	var c catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if len(c.Topics) == 0 {
		return nil, errors.New("no topics defined")
	}
	for i, t := range c.Topics {
		if strings.TrimSpace(t.Title) == "" {
			return nil, fmt.Errorf("topic %d: title is required", i)
		}
	}
	return c.Topics, nil
}

// section is the text an agent is asked to comment on.
func (t Topic) section() string {
	return t.Title + "\n" + t.Description
}

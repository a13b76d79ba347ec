// Package knowledge provides the static lookups the strategist's tool calls
// draw on: building-code requirements and approved-supplement precedents.
package knowledge

import (
	"context"
	_ "embed"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hugo-lorenzo-mato/claimpilot/internal/core"
)

//go:embed data/building_codes.yaml
var buildingCodesYAML []byte

type codeEntry struct {
	Jurisdiction  string   `yaml:"jurisdiction"`
	Topic         string   `yaml:"topic"`
	Aliases       []string `yaml:"aliases"`
	CodeReference string   `yaml:"code_reference"`
	Requirement   string   `yaml:"requirement"`
	Source        string   `yaml:"source"`
}

type codeTable struct {
	Codes []codeEntry `yaml:"codes"`
}

// CodeBook resolves building-code requirements from an embedded table. The
// "default" jurisdiction rows apply everywhere and back-fill topics a
// specific jurisdiction does not override.
type CodeBook struct {
	entries []codeEntry
}

// NewCodeBook loads the embedded code table.
func NewCodeBook() (*CodeBook, error) {
	return newCodeBook(buildingCodesYAML)
}

func newCodeBook(raw []byte) (*CodeBook, error) {
	var table codeTable
	if err := yaml.Unmarshal(raw, &table); err != nil {
		return nil, err
	}
	return &CodeBook{entries: table.Codes}, nil
}

// Lookup returns the requirements matching any of the topics for the given
// jurisdiction. Jurisdiction-specific rows shadow default rows for the same
// topic. An empty topic list returns every applicable requirement.
func (b *CodeBook) Lookup(_ context.Context, jurisdiction string, topics []string) ([]core.CodeRequirement, error) {
	jur := strings.ToLower(strings.TrimSpace(jurisdiction))

	matched := make(map[string]codeEntry)
	var order []string
	consider := func(e codeEntry, specific bool) {
		if len(topics) > 0 && !topicMatches(e, topics) {
			return
		}
		if prev, ok := matched[e.Topic]; ok {
			if !specific || strings.EqualFold(prev.Jurisdiction, jurisdiction) {
				return
			}
		} else {
			order = append(order, e.Topic)
		}
		matched[e.Topic] = e
	}

	for _, e := range b.entries {
		switch strings.ToLower(e.Jurisdiction) {
		case jur:
			consider(e, true)
		case "default":
			consider(e, false)
		}
	}

	out := make([]core.CodeRequirement, 0, len(order))
	for _, topic := range order {
		e := matched[topic]
		jurOut := e.Jurisdiction
		if strings.EqualFold(jurOut, "default") && jurisdiction != "" {
			jurOut = jurisdiction
		}
		out = append(out, core.CodeRequirement{
			Jurisdiction:  jurOut,
			Topic:         e.Topic,
			CodeReference: e.CodeReference,
			Requirement:   e.Requirement,
			Source:        e.Source,
		})
	}
	return out, nil
}

func topicMatches(e codeEntry, topics []string) bool {
	for _, t := range topics {
		needle := strings.ToLower(strings.TrimSpace(t))
		if needle == "" {
			continue
		}
		if strings.Contains(strings.ToLower(e.Topic), needle) {
			return true
		}
		for _, alias := range e.Aliases {
			if strings.Contains(strings.ToLower(alias), needle) {
				return true
			}
		}
	}
	return false
}

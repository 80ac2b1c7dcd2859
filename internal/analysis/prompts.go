package analysis

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/btp-research/internal/model"
)

// Prompts holds the system prompt per analysis mode.
type Prompts struct {
	Full  string `yaml:"full"`
	Quick string `yaml:"quick"`
}

const defaultFullPrompt = `You are an SAP BTP expert writing for SAP Basis administrators.

Research the given SAP BTP service and produce a structured analysis in Markdown with these sections:
1. Overview: what the service does and its main use cases.
2. Basis relevance: which administration, security, connectivity or operations tasks it touches.
3. Setup and configuration: entitlements, subscriptions, roles and prerequisites.
4. Operations: monitoring, logging, backup and lifecycle considerations.
5. Plans and availability: plan differences and regional availability.
6. Pitfalls and recommendations.

Prefer official SAP sources (Help Portal, Discovery Center, SAP Community). Be precise and concise.`

const defaultQuickPrompt = `You are an SAP BTP expert. Summarize the given SAP BTP service in 2-3 sentences for an SAP Basis administrator: what it does and why an administrator would care. No headings, no lists.`

// DefaultPrompts returns the built-in prompts.
func DefaultPrompts() Prompts {
	return Prompts{Full: defaultFullPrompt, Quick: defaultQuickPrompt}
}

// LoadPrompts reads prompts from a YAML file. Missing modes fall back to the
// built-in defaults. An empty path returns the defaults.
func LoadPrompts(path string) (Prompts, error) {
	p := DefaultPrompts()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return p, eris.Wrapf(err, "analysis: read prompts %s", path)
	}

	var fromFile Prompts
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return p, eris.Wrapf(err, "analysis: parse prompts %s", path)
	}
	if s := strings.TrimSpace(fromFile.Full); s != "" {
		p.Full = s
	}
	if s := strings.TrimSpace(fromFile.Quick); s != "" {
		p.Quick = s
	}
	return p, nil
}

// For returns the prompt for mode.
func (p Prompts) For(mode model.AnalysisCategory) string {
	if mode == model.AnalysisQuick {
		return p.Quick
	}
	return p.Full
}

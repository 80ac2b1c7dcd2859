package relevance

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sells-group/btp-research/internal/model"
)

const (
	uncategorized = "Uncategorized"
	noDescription = "No description provided"
)

const systemPrompt = `You assess SAP BTP services for SAP Basis administrators.

A Basis administrator is responsible for system administration and operations,
security and identity, connectivity between on-premise and cloud systems,
monitoring and alerting, transport and change management, backup and
recovery, and performance tuning of SAP landscapes.

Rate how relevant the given service is to that role:
- "high": the administrator operates or configures it as part of daily work
- "medium": the administrator touches it occasionally or supports others using it
- "low": it is mainly used by developers, business users or data scientists

Respond with a single JSON object and nothing else:
{"relevance": "high" | "medium" | "low", "reason": "<one sentence, at most 200 characters>"}`

func userMessage(svc model.ServiceSummary) string {
	category := strings.TrimSpace(svc.Category)
	if category == "" {
		category = uncategorized
	}
	description := strings.TrimSpace(svc.Description)
	if description == "" {
		description = noDescription
	}
	return fmt.Sprintf("Service: %s\nCategory: %s\nDescription: %s", svc.DisplayName, category, description)
}

type classification struct {
	Relevance string `json:"relevance"`
	Reason    string `json:"reason"`
}

// parseClassification extracts the first well-formed JSON object from text.
// Code fences and surrounding prose are ignored.
func parseClassification(text string) (classification, bool) {
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader([]byte(text[i:])))
		var raw map[string]json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			continue
		}
		var c classification
		if v, ok := raw["relevance"]; ok {
			_ = json.Unmarshal(v, &c.Relevance)
		}
		if v, ok := raw["reason"]; ok {
			_ = json.Unmarshal(v, &c.Reason)
		}
		return c, true
	}
	return classification{}, false
}

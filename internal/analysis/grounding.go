package analysis

import (
	"fmt"
	"strings"
)

const closingInstruction = "Use the resources above together with current web sources to answer as instructed. Cite the sources you rely on."

// BuildGroundingDocument renders the service metadata handed to the search
// model as context.
func BuildGroundingDocument(req Request) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Service: %s\n\n", strings.TrimSpace(req.ServiceName))
	if d := strings.TrimSpace(req.ServiceDescription); d != "" {
		b.WriteString(d)
	} else {
		b.WriteString("No description provided.")
	}
	b.WriteString("\n\n")

	if ref := strings.TrimSpace(req.SourceRef); ref != "" {
		fmt.Fprintf(&b, "Source metadata: %s\n\n", ref)
	}

	if groups := GroupLinks(req.Links); len(groups) > 0 {
		b.WriteString("## Resources\n\n")
		for _, g := range groups {
			fmt.Fprintf(&b, "### %s\n", g.Classification)
			for _, l := range g.Links {
				text := strings.TrimSpace(l.Text)
				if text == "" {
					text = l.Value
				}
				fmt.Fprintf(&b, "- %s: %s\n", text, strings.TrimSpace(l.Value))
			}
			b.WriteString("\n")
		}
	}

	if len(req.Plans) > 0 {
		b.WriteString("## Service Plans\n\n")
		for _, p := range req.Plans {
			name := p.DisplayName
			if name == "" {
				name = p.Name
			}
			price := "Paid"
			if p.IsFree {
				price = "Free"
			}
			regions := "all regions"
			if len(p.Regions) > 0 {
				regions = strings.Join(p.Regions, ", ")
			}
			fmt.Fprintf(&b, "- %s (%s): %s\n", name, price, regions)
			if d := strings.TrimSpace(p.Description); d != "" {
				fmt.Fprintf(&b, "  %s\n", d)
			}
		}
		b.WriteString("\n")
	}

	if len(req.SupportComponents) > 0 {
		b.WriteString("## Support Components\n\n")
		for _, s := range req.SupportComponents {
			if s.Classification != "" {
				fmt.Fprintf(&b, "- %s (%s)\n", s.Value, s.Classification)
				continue
			}
			fmt.Fprintf(&b, "- %s\n", s.Value)
		}
		b.WriteString("\n")
	}

	b.WriteString(closingInstruction)
	b.WriteString("\n")
	return b.String()
}

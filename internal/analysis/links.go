package analysis

import (
	"net/url"
	"sort"
	"strings"

	"github.com/sells-group/btp-research/internal/model"
)

// otherGroup collects links without a classification.
const otherGroup = "Other"

// linkPriority is the fixed display order of link classifications. Anything
// not listed follows, alphabetically.
var linkPriority = []string{
	"Discovery Center",
	"Help Portal",
	"Documentation",
	"Tutorial",
	"API Hub",
	"Support",
}

// LinkGroup is the set of links sharing one classification.
type LinkGroup struct {
	Classification string
	Links          []model.Link
}

// GroupLinks drops links without an absolute http(s) URL and groups the rest
// by classification, ignoring case. Groups come in priority order; links
// keep their input order within a group.
func GroupLinks(links []model.Link) []LinkGroup {
	byKey := make(map[string]*LinkGroup)
	var keys []string

	for _, l := range links {
		if !isWebURL(l.Value) {
			continue
		}
		name := strings.TrimSpace(l.Classification)
		if name == "" {
			name = otherGroup
		}
		key := strings.ToLower(name)
		g, ok := byKey[key]
		if !ok {
			g = &LinkGroup{Classification: canonicalName(name)}
			byKey[key] = g
			keys = append(keys, key)
		}
		g.Links = append(g.Links, l)
	}

	sort.SliceStable(keys, func(i, j int) bool {
		pi, pj := priority(keys[i]), priority(keys[j])
		if pi != pj {
			return pi < pj
		}
		return keys[i] < keys[j]
	})

	out := make([]LinkGroup, 0, len(keys))
	for _, k := range keys {
		out = append(out, *byKey[k])
	}
	return out
}

func priority(key string) int {
	for i, p := range linkPriority {
		if strings.EqualFold(p, key) {
			return i
		}
	}
	return len(linkPriority)
}

func canonicalName(name string) string {
	for _, p := range linkPriority {
		if strings.EqualFold(p, name) {
			return p
		}
	}
	return name
}

func isWebURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

package model

import "encoding/json"

// ServiceSummary is one entry of the BTP service inventory.
type ServiceSummary struct {
	TechnicalID string `json:"technicalId"`
	DisplayName string `json:"displayName"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	FileName    string `json:"fileName"`
}

// ServiceDetail is the per-service metadata document.
type ServiceDetail struct {
	Links             []Link             `json:"links"`
	ServicePlans      []ServicePlan      `json:"servicePlans"`
	SupportComponents []SupportComponent `json:"supportComponents"`
}

// Link is a classified documentation or resource link.
type Link struct {
	Classification string `json:"classification"`
	Text           string `json:"text"`
	Value          string `json:"value"`
}

// ServicePlan describes a commercial plan of a service.
type ServicePlan struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"displayName,omitempty"`
	Description string   `json:"description,omitempty"`
	IsFree      bool     `json:"isFree"`
	Regions     []string `json:"regions,omitempty"`
}

// UnmarshalJSON accepts either a flat regions list or the dataCenters
// list used by the published metadata, flattening the latter to regions.
func (p *ServicePlan) UnmarshalJSON(data []byte) error {
	type plain ServicePlan
	var raw struct {
		plain
		DataCenters []struct {
			Region string `json:"region"`
		} `json:"dataCenters"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = ServicePlan(raw.plain)
	if len(p.Regions) == 0 && len(raw.DataCenters) > 0 {
		seen := make(map[string]bool, len(raw.DataCenters))
		for _, dc := range raw.DataCenters {
			if dc.Region == "" || seen[dc.Region] {
				continue
			}
			seen[dc.Region] = true
			p.Regions = append(p.Regions, dc.Region)
		}
	}
	return nil
}

// SupportComponent is an SAP support component used to route incidents.
type SupportComponent struct {
	Value          string `json:"value"`
	Classification string `json:"classification,omitempty"`
}

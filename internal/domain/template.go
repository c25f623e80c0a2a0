package domain

// SectionDef describes one section a template expects.
type SectionDef struct {
	Name     string
	Label    string
	Required bool
}

type Template struct {
	Kind     string
	Label    string
	Sections []SectionDef
}

var templates = map[string]Template{
	"compound_profile": {
		Kind:  "compound_profile",
		Label: "Compound Profile",
		Sections: []SectionDef{
			{Name: "overview", Label: "Overview", Required: true},
			{Name: "chemistry", Label: "Chemical Properties", Required: true},
			{Name: "natural_sources", Label: "Natural Sources", Required: true},
			{Name: "pharmacology", Label: "Pharmacology", Required: true},
			{Name: "research_highlights", Label: "Research Highlights", Required: false},
			{Name: "safety", Label: "Safety and Toxicology", Required: false},
		},
	},
	"research_review": {
		Kind:  "research_review",
		Label: "Research Review",
		Sections: []SectionDef{
			{Name: "abstract", Label: "Abstract", Required: true},
			{Name: "background", Label: "Background", Required: true},
			{Name: "key_findings", Label: "Key Findings", Required: true},
			{Name: "methodology", Label: "Methodology", Required: false},
			{Name: "implications", Label: "Implications", Required: false},
			{Name: "references", Label: "References", Required: false},
		},
	},
	"market_report": {
		Kind:  "market_report",
		Label: "Market Report",
		Sections: []SectionDef{
			{Name: "executive_summary", Label: "Executive Summary", Required: true},
			{Name: "market_size", Label: "Market Size", Required: true},
			{Name: "key_players", Label: "Key Players", Required: true},
			{Name: "trends", Label: "Trends", Required: false},
			{Name: "regulatory_landscape", Label: "Regulatory Landscape", Required: false},
			{Name: "outlook", Label: "Outlook", Required: false},
		},
	},
}

// LookupTemplate returns the section schema registered for kind.
func LookupTemplate(kind string) (Template, bool) {
	t, ok := templates[kind]
	return t, ok
}

// TemplateKinds lists the registered template kinds.
func TemplateKinds() []string {
	kinds := make([]string, 0, len(templates))
	for k := range templates {
		kinds = append(kinds, k)
	}
	return kinds
}

// Schema returns the generation output schema for the template.
func (t Template) Schema() SectionSchema {
	return SectionSchema{Name: t.Kind + "_update", Sections: t.Sections}
}

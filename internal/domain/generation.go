package domain

const (
	FieldUpdateSummary         = "update_summary"
	FieldHasSignificantUpdates = "has_significant_updates"
)

// NoUpdatesMarker is returned for a section that has nothing new.
const NoUpdatesMarker = "NO_UPDATES"

type SectionSchema struct {
	Name     string
	Sections []SectionDef
}

// JSONSchema renders the structured-output schema: one string property per
// section plus the two control fields, all required.
func (s SectionSchema) JSONSchema() map[string]any {
	properties := make(map[string]any, len(s.Sections)+2)
	required := make([]string, 0, len(s.Sections)+2)

	for _, sec := range s.Sections {
		properties[sec.Name] = map[string]any{
			"type":        "string",
			"description": sec.Label,
		}
		required = append(required, sec.Name)
	}

	properties[FieldUpdateSummary] = map[string]any{
		"type":        "string",
		"description": "Short summary of what was added, or that nothing new was found",
	}
	properties[FieldHasSignificantUpdates] = map[string]any{
		"type":        "boolean",
		"description": "Whether any section received genuinely new information",
	}
	required = append(required, FieldUpdateSummary, FieldHasSignificantUpdates)

	return map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
}

type GenerationRequest struct {
	SystemPrompt string
	UserPrompt   string
	Schema       SectionSchema
}

type GenerationResult struct {
	Sections              map[string]string
	UpdateSummary         string
	HasSignificantUpdates bool
}

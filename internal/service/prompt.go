package service

import (
	"fmt"
	"strings"
	"time"

	"content_refresher/internal/domain"
)

const refreshSystemPrompt = `You are an update-only editor for a scientific content site about terpene chemistry.
You receive the current text of every section of one document together with the date it was last updated.

Rules:
- Never rewrite, shorten, reorder or correct the existing text of a section.
- Only append genuinely new factual material (studies, data, regulatory changes, market events) published after the cutoff date.
- When you append, return the complete existing text followed by the new material.
- When a section has nothing new, return exactly ` + domain.NoUpdatesMarker + ` for that section.
- Summarize what you added in update_summary, or state that no updates were found.
- Set has_significant_updates to true only when at least one section received new information.`

type sectionSnapshot struct {
	Def       domain.SectionDef
	Content   string
	UpdatedAt time.Time
}

func snapshotSections(doc *domain.Document, tmpl domain.Template) []sectionSnapshot {
	updatedAt := doc.LastKnownUpdate()
	snap := make([]sectionSnapshot, 0, len(tmpl.Sections))
	for _, def := range tmpl.Sections {
		sec, _ := doc.Section(def.Name)
		snap = append(snap, sectionSnapshot{
			Def:       def,
			Content:   sec.Content,
			UpdatedAt: updatedAt,
		})
	}
	return snap
}

func buildRefreshRequest(doc *domain.Document, tmpl domain.Template, snap []sectionSnapshot) domain.GenerationRequest {
	cutoff := doc.LastKnownUpdate().UTC().Format("2006-01-02")

	var sb strings.Builder
	fmt.Fprintf(&sb, "Document: %s\n", doc.Title)
	fmt.Fprintf(&sb, "Type: %s\n", tmpl.Label)
	fmt.Fprintf(&sb, "Cutoff date: %s\n\n", cutoff)
	sb.WriteString("Current sections:\n")

	for _, s := range snap {
		fmt.Fprintf(&sb, "\n### %s (%s), last updated %s\n",
			s.Def.Label, s.Def.Name, s.UpdatedAt.UTC().Format("2006-01-02"))
		if strings.TrimSpace(s.Content) == "" {
			sb.WriteString("(empty)\n")
			continue
		}
		sb.WriteString(s.Content)
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "\nReturn every section. Add only information dated after %s.", cutoff)

	return domain.GenerationRequest{
		SystemPrompt: refreshSystemPrompt,
		UserPrompt:   sb.String(),
		Schema:       tmpl.Schema(),
	}
}

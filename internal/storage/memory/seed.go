package memory

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"content_refresher/internal/domain"
)

type seedFile struct {
	Documents []seedDocument `yaml:"documents"`
}

type seedDocument struct {
	Title            string            `yaml:"title"`
	Template         string            `yaml:"template"`
	RefreshEnabled   bool              `yaml:"refresh_enabled"`
	RefreshFrequency string            `yaml:"refresh_frequency"`
	LastRefreshAt    *time.Time        `yaml:"last_refresh_at"`
	NextRefreshAt    *time.Time        `yaml:"next_refresh_at"`
	Sections         map[string]string `yaml:"sections"`
}

// LoadSeed creates the documents listed in a YAML seed file and returns how
// many were added. An enabled document without next_refresh_at is due at now.
func LoadSeed(ctx context.Context, store *DocumentStore, path string, now time.Time) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return 0, fmt.Errorf("parse seed file: %w", err)
	}

	docs := make([]*domain.Document, 0, len(seed.Documents))
	for i, sd := range seed.Documents {
		doc, err := sd.toDomain(now)
		if err != nil {
			return 0, fmt.Errorf("seed document %d (%q): %w", i, sd.Title, err)
		}
		docs = append(docs, doc)
	}

	for _, doc := range docs {
		if _, err := store.Create(ctx, doc); err != nil {
			return 0, err
		}
	}
	return len(docs), nil
}

func (sd seedDocument) toDomain(now time.Time) (*domain.Document, error) {
	tmpl, ok := domain.LookupTemplate(sd.Template)
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownTemplate, sd.Template)
	}

	freq := domain.DefaultFrequency
	if sd.RefreshFrequency != "" {
		parsed, err := domain.ParseRefreshFrequency(sd.RefreshFrequency)
		if err != nil {
			return nil, err
		}
		freq = parsed
	}

	doc := &domain.Document{
		Title:            sd.Title,
		TemplateKind:     tmpl.Kind,
		RefreshEnabled:   sd.RefreshEnabled,
		RefreshFrequency: freq,
		LastRefreshAt:    sd.LastRefreshAt,
		NextRefreshAt:    sd.NextRefreshAt,
	}
	if doc.RefreshEnabled && doc.NextRefreshAt == nil {
		due := now
		doc.NextRefreshAt = &due
	}
	if !doc.RefreshEnabled {
		doc.NextRefreshAt = nil
	}

	for _, def := range tmpl.Sections {
		content, ok := sd.Sections[def.Name]
		if !ok {
			continue
		}
		doc.Sections = append(doc.Sections, domain.Section{
			Name:     def.Name,
			Label:    def.Label,
			Content:  content,
			Required: def.Required,
		})
	}
	for name := range sd.Sections {
		if _, ok := doc.Section(name); !ok {
			return nil, fmt.Errorf("section %q is not part of template %q", name, tmpl.Kind)
		}
	}

	return doc, nil
}

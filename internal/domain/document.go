package domain

import "time"

type Document struct {
	ID               int64
	Title            string
	TemplateKind     string
	Sections         []Section
	RefreshEnabled   bool
	RefreshFrequency RefreshFrequency
	LastRefreshAt    *time.Time
	NextRefreshAt    *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Section is one named field of structured text within a document.
type Section struct {
	Name     string `db:"name"`
	Label    string `db:"label"`
	Content  string `db:"content"`
	Required bool   `db:"required"`
}

// Section returns the section stored under name.
func (d *Document) Section(name string) (Section, bool) {
	for _, s := range d.Sections {
		if s.Name == name {
			return s, true
		}
	}
	return Section{}, false
}

// Schedule returns the refresh scheduling fields of the document.
func (d *Document) Schedule() RefreshSchedule {
	return RefreshSchedule{
		Enabled:       d.RefreshEnabled,
		Frequency:     d.RefreshFrequency,
		LastRefreshAt: d.LastRefreshAt,
		NextRefreshAt: d.NextRefreshAt,
	}
}

// ApplySchedule copies sched back onto the document.
func (d *Document) ApplySchedule(sched RefreshSchedule) {
	d.RefreshEnabled = sched.Enabled
	d.RefreshFrequency = sched.Frequency
	d.LastRefreshAt = sched.LastRefreshAt
	d.NextRefreshAt = sched.NextRefreshAt
}

// IsDue reports whether the scheduler should refresh the document at now.
func (d *Document) IsDue(now time.Time) bool {
	return d.RefreshEnabled && d.NextRefreshAt != nil && !d.NextRefreshAt.After(now)
}

// LastKnownUpdate is the cutoff after which new material counts as an update.
func (d *Document) LastKnownUpdate() time.Time {
	if d.LastRefreshAt != nil {
		return *d.LastRefreshAt
	}
	return d.CreatedAt
}

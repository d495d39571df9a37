package progress

import (
	"fmt"
	"strings"
	"time"
)

// ReportTimeLayout formats timestamps in a Report.
const ReportTimeLayout = "2006-01-02 15:04:05"

// SectionEntry is one completed section in a Report.
type SectionEntry struct {
	ID          string    `json:"id"`
	CompletedAt time.Time `json:"completed_at"`
}

// Report is a point-in-time summary of the session.
type Report struct {
	StartedAt              time.Time      `json:"started_at"`
	GeneratedAt            time.Time      `json:"generated_at"`
	CurrentStep            int            `json:"current_step"`
	TotalSteps             int            `json:"total_steps"`
	PercentComplete        int            `json:"percent_complete"`
	TotalTimeSpent         string         `json:"total_time_spent"`
	EstimatedTimeRemaining string         `json:"estimated_time_remaining"`
	AverageTimePerStep     string         `json:"average_time_per_step"`
	Sections               []SectionEntry `json:"completed_sections"`
}

// Report builds the progress report.
func (t *Tracker) Report() (Report, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.machine == nil {
		return Report{}, ErrNotInitialized
	}

	p := t.progressLocked()
	r := Report{
		StartedAt:              t.startTime,
		GeneratedAt:            t.now(),
		CurrentStep:            p.CurrentStep,
		TotalSteps:             p.TotalSteps,
		PercentComplete:        p.Percent,
		TotalTimeSpent:         FormatDuration(p.TimeSpent),
		EstimatedTimeRemaining: NotAvailable,
		AverageTimePerStep:     NotAvailable,
		Sections:               []SectionEntry{},
	}
	if p.EstimateAvailable {
		r.EstimatedTimeRemaining = FormatDuration(p.TimeRemaining)
	}
	if avg, ok := t.averageLocked(); ok {
		r.AverageTimePerStep = FormatDuration(avg)
	}
	for _, id := range t.sortedSectionIDs() {
		r.Sections = append(r.Sections, SectionEntry{ID: id, CompletedAt: t.sections[id].CompletedAt})
	}
	return r, nil
}

// Text renders the report for terminals and golden files.
func (r Report) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Started:        %s\n", r.StartedAt.Format(ReportTimeLayout))
	fmt.Fprintf(&b, "Generated:      %s\n", r.GeneratedAt.Format(ReportTimeLayout))
	fmt.Fprintf(&b, "Step:           %d of %d (%d%%)\n", r.CurrentStep, r.TotalSteps, r.PercentComplete)
	fmt.Fprintf(&b, "Time spent:     %s\n", r.TotalTimeSpent)
	fmt.Fprintf(&b, "Time remaining: %s\n", r.EstimatedTimeRemaining)
	fmt.Fprintf(&b, "Average/step:   %s\n", r.AverageTimePerStep)
	fmt.Fprintf(&b, "Sections:       %d\n", len(r.Sections))
	for _, s := range r.Sections {
		fmt.Fprintf(&b, "  - %s (%s)\n", s.ID, s.CompletedAt.Format(ReportTimeLayout))
	}
	return b.String()
}

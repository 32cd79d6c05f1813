// Package presenter maps aggregate snapshots to UI appearance. It is
// pure and stateless: render exactly what the latest snapshot says.
package presenter

import (
	"fmt"
	"time"

	"github.com/seiken-dev/jiten/internal/models"
)

// IconStyle selects the icon family.
type IconStyle string

const (
	IconDefault IconStyle = "default"
	IconSV      IconStyle = "sv"
)

// Badge is the small overlay on the toolbar icon.
type Badge struct {
	Text  string
	Color string
}

// Appearance is everything the UI layer needs to render.
type Appearance struct {
	Icon    string
	Tooltip string
	Badge   *Badge
}

// Render derives the appearance for a snapshot. A nil snapshot means
// no state has been published yet.
func Render(snap *models.Snapshot, enabled bool, style IconStyle) Appearance {
	if style == "" {
		style = IconDefault
	}
	base := "jiten-" + string(style)

	if !enabled {
		return Appearance{
			Icon:    base + "-disabled",
			Tooltip: "Jiten is disabled",
		}
	}

	if snap == nil {
		return Appearance{
			Icon:    base,
			Tooltip: "Jiten",
		}
	}

	app := Appearance{Icon: base, Tooltip: "Jiten"}

	switch snap.Phase.Phase {
	case models.PhaseChecking:
		app.Icon = base + "-loading"
		app.Tooltip = fmt.Sprintf("Checking for %s updates", snap.Phase.Series)
	case models.PhaseUpdating:
		app.Icon = base + "-loading"
		app.Tooltip = fmt.Sprintf("Updating %s data (%d%%)", snap.Phase.Series, int(snap.Phase.Progress*100))
	default:
		if !snap.Phase.LastCheck.IsZero() {
			app.Tooltip = "Jiten – data checked " + formatCheckTime(snap.Phase.LastCheck)
		}
	}

	if badge := errorBadge(snap); badge != nil {
		app.Badge = badge
	}

	return app
}

// errorBadge decides whether the last failure warrants a badge.
// Quota-exceeded is deliberately suppressed: there is nothing the user
// can do about it from the toolbar, and the data already on disk keeps
// working.
func errorBadge(snap *models.Snapshot) *Badge {
	if snap.LastError != nil && snap.LastError.Kind() != models.KindQuota {
		return &Badge{Text: "!", Color: "red"}
	}
	if ds, ok := snap.Datasets[models.DatasetWords]; ok && ds.State == models.LoadStateError {
		return &Badge{Text: "!", Color: "red"}
	}
	return nil
}

func formatCheckTime(t time.Time) string {
	age := time.Since(t)
	switch {
	case age < time.Minute:
		return "just now"
	case age < time.Hour:
		return fmt.Sprintf("%d min ago", int(age.Minutes()))
	case age < 48*time.Hour:
		return fmt.Sprintf("%d hours ago", int(age.Hours()))
	default:
		return t.Format("2006-01-02")
	}
}

package models

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// Dataset identifies one of the maintained reference collections.
type Dataset string

const (
	DatasetWords    Dataset = "words"
	DatasetKanji    Dataset = "kanji"
	DatasetRadicals Dataset = "radicals"
	DatasetNames    Dataset = "names"
)

// AllDatasets returns the datasets in display order.
func AllDatasets() []Dataset {
	return []Dataset{DatasetWords, DatasetKanji, DatasetRadicals, DatasetNames}
}

// Series identifies one step of an update cycle. Radicals are not a
// series: they are refreshed as part of the kanji step.
type Series string

const (
	SeriesKanji Series = "kanji"
	SeriesNames Series = "names"
	SeriesWords Series = "words"
)

// FirstSeries is where every update cycle starts.
const FirstSeries = SeriesKanji

// Next returns the series that follows s in a cycle, or ok=false when
// s is the last step.
func (s Series) Next() (next Series, ok bool) {
	switch s {
	case SeriesKanji:
		return SeriesNames, true
	case SeriesNames:
		return SeriesWords, true
	default:
		return "", false
	}
}

// Datasets returns the datasets refreshed by this series step.
func (s Series) Datasets() []Dataset {
	if s == SeriesKanji {
		return []Dataset{DatasetKanji, DatasetRadicals}
	}
	return []Dataset{Dataset(s)}
}

// Valid reports whether s names a known series.
func (s Series) Valid() bool {
	return s == SeriesKanji || s == SeriesNames || s == SeriesWords
}

// LoadState describes whether a dataset is usable.
type LoadState int

const (
	LoadStateUninitialized LoadState = iota
	LoadStateEmpty
	LoadStateReady
	LoadStateError
)

func (s LoadState) String() string {
	switch s {
	case LoadStateUninitialized:
		return "uninitialized"
	case LoadStateEmpty:
		return "empty"
	case LoadStateReady:
		return "ready"
	case LoadStateError:
		return "error"
	default:
		return fmt.Sprintf("loadstate(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler for JSON snapshots.
func (s LoadState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *LoadState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "uninitialized":
		*s = LoadStateUninitialized
	case "empty":
		*s = LoadStateEmpty
	case "ready":
		*s = LoadStateReady
	case "error":
		*s = LoadStateError
	default:
		return fmt.Errorf("unknown load state %q", text)
	}
	return nil
}

// VersionInfo identifies a published dataset release.
type VersionInfo struct {
	Major           int    `json:"major"`
	Minor           int    `json:"minor"`
	Patch           int    `json:"patch"`
	DatabaseVersion string `json:"databaseVersion,omitempty"`
	DateOfCreation  string `json:"dateOfCreation,omitempty"`
	Lang            string `json:"lang"`
}

func (v VersionInfo) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Equal reports whether two versions refer to the same release for the
// same language.
func (v VersionInfo) Equal(o VersionInfo) bool {
	return v.Major == o.Major && v.Minor == o.Minor && v.Patch == o.Patch &&
		v.Lang == o.Lang
}

// OlderThan reports whether v is outdated relative to o. A language
// switch always counts as outdated.
func (v VersionInfo) OlderThan(o VersionInfo) bool {
	if v.Lang != o.Lang {
		return true
	}
	if o.Major != v.Major {
		return o.Major > v.Major
	}
	if o.Minor != v.Minor {
		return o.Minor > v.Minor
	}
	return o.Patch > v.Patch
}

// StorePhase is the store-reported phase of a single series update.
type StorePhase int

const (
	StorePhaseIdle StorePhase = iota
	StorePhaseChecking
	StorePhaseUpdating
)

func (p StorePhase) String() string {
	switch p {
	case StorePhaseChecking:
		return "checking"
	case StorePhaseUpdating:
		return "updating"
	default:
		return "idle"
	}
}

// UpdateState is the store's per-series progress report.
type UpdateState struct {
	Phase     StorePhase `json:"phase"`
	Progress  float64    `json:"progress"`  // 0..1, meaningful while updating
	LastCheck time.Time  `json:"lastCheck"` // zero when never checked
}

// DatasetState is one dataset's record as reported by the store.
type DatasetState struct {
	State       LoadState    `json:"state"`
	Version     *VersionInfo `json:"version,omitempty"`
	UpdateState UpdateState  `json:"updateState"`
}

// NormalizeLang canonicalizes a BCP 47 language tag to the base form
// used in dataset file names ("en", "fr", "pt-BR" -> "pt").
func NormalizeLang(tag string) (string, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return "", fmt.Errorf("%w: empty language tag", ErrInvalidLanguage)
	}
	t, err := language.Parse(tag)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidLanguage, tag, err)
	}
	base, _ := t.Base()
	return base.String(), nil
}

package schema

import (
	"fmt"
	"strings"
	"time"
)

const maxTitleLen = 500

// Color is a group's display color.
type Color string

const (
	ColorRed    Color = "red"
	ColorPink   Color = "pink"
	ColorPurple Color = "purple"
	ColorBlue   Color = "blue"
	ColorGreen  Color = "green"
	ColorYellow Color = "yellow"
	ColorOrange Color = "orange"
	ColorGray   Color = "gray"
)

// Colors lists the valid group colors.
var Colors = []Color{ColorRed, ColorPink, ColorPurple, ColorBlue, ColorGreen, ColorYellow, ColorOrange, ColorGray}

// Valid reports whether c is a known color.
func (c Color) Valid() bool {
	for _, cc := range Colors {
		if c == cc {
			return true
		}
	}
	return false
}

// NoteKind distinguishes practice, tournament and free notes.
type NoteKind string

const (
	NoteKindPractice   NoteKind = "practice"
	NoteKindTournament NoteKind = "tournament"
	NoteKindFree       NoteKind = "free"
)

// Weather is recorded on practice and tournament notes.
type Weather string

const (
	WeatherSunny  Weather = "sunny"
	WeatherCloudy Weather = "cloudy"
	WeatherRainy  Weather = "rainy"
)

// Group is a top-level bucket of tasks.
type Group struct {
	Meta
	Title string `json:"title"`
	Color Color  `json:"color"`
	Order int    `json:"-"`
}

func (g *Group) Kind() Kind         { return KindGroup }
func (g *Group) ParentID() string   { return "" }
func (g *Group) SortOrder() int     { return g.Order }
func (g *Group) SetSortOrder(n int) { g.Order = n }

// SetDefaults fills in the color.
func (g *Group) SetDefaults() {
	if g.Color == "" {
		g.Color = ColorGray
	}
}

// Validate checks the group's fields.
func (g *Group) Validate() error {
	if err := validateTitle(g.Title); err != nil {
		return err
	}
	if !g.Color.Valid() {
		return fmt.Errorf("invalid color %q", g.Color)
	}
	return nil
}

// Task is something the user is working on, with its root cause.
type Task struct {
	Meta
	Title      string `json:"title"`
	Cause      string `json:"cause,omitempty"`
	GroupID    string `json:"group_id"`
	Order      int    `json:"-"`
	Priority   int    `json:"priority"` // 0 low, 1 normal, 2 high
	IsComplete bool   `json:"is_complete"`
}

func (t *Task) Kind() Kind         { return KindTask }
func (t *Task) ParentID() string   { return t.GroupID }
func (t *Task) SortOrder() int     { return t.Order }
func (t *Task) SetSortOrder(n int) { t.Order = n }

// SetDefaults files tasks without a group under the uncategorized group.
func (t *Task) SetDefaults() {
	if t.GroupID == "" {
		t.GroupID = UncategorizedGroupID
	}
}

// Validate checks the task's fields.
func (t *Task) Validate() error {
	if err := validateTitle(t.Title); err != nil {
		return err
	}
	if t.GroupID == "" {
		return fmt.Errorf("group_id is required")
	}
	if t.Priority < 0 || t.Priority > 2 {
		return fmt.Errorf("priority must be between 0 and 2 (got %d)", t.Priority)
	}
	return nil
}

// Measure is a remedy tried against a task.
type Measure struct {
	Meta
	Title  string `json:"title"`
	TaskID string `json:"task_id"`
	Order  int    `json:"-"`
}

func (m *Measure) Kind() Kind         { return KindMeasure }
func (m *Measure) ParentID() string   { return m.TaskID }
func (m *Measure) SortOrder() int     { return m.Order }
func (m *Measure) SetSortOrder(n int) { m.Order = n }

// Validate checks the measure's fields.
func (m *Measure) Validate() error {
	if err := validateTitle(m.Title); err != nil {
		return err
	}
	if m.TaskID == "" {
		return fmt.Errorf("task_id is required")
	}
	return nil
}

// Memo is a free-form observation about a measure, optionally written
// from a note.
type Memo struct {
	Meta
	Detail    string `json:"detail"`
	MeasureID string `json:"measure_id"`
	NoteID    string `json:"note_id,omitempty"`
}

func (m *Memo) Kind() Kind       { return KindMemo }
func (m *Memo) ParentID() string { return m.MeasureID }

// Validate checks the memo's fields.
func (m *Memo) Validate() error {
	if strings.TrimSpace(m.Detail) == "" {
		return fmt.Errorf("detail is required")
	}
	if m.MeasureID == "" {
		return fmt.Errorf("measure_id is required")
	}
	return nil
}

// Note is a dated practice or tournament entry, or the single free note.
type Note struct {
	Meta
	NoteKind      NoteKind  `json:"kind"`
	Date          time.Time `json:"date"`
	Weather       Weather   `json:"weather,omitempty"`
	Temperature   int       `json:"temperature,omitempty"`
	Condition     string    `json:"condition,omitempty"`
	Purpose       string    `json:"purpose,omitempty"`
	Detail        string    `json:"detail,omitempty"`
	Target        string    `json:"target,omitempty"`
	Consciousness string    `json:"consciousness,omitempty"`
	Result        string    `json:"result,omitempty"`
	Reflection    string    `json:"reflection,omitempty"`
	TaskIDs       []string  `json:"task_ids,omitempty"`
}

func (n *Note) Kind() Kind       { return KindNote }
func (n *Note) ParentID() string { return "" }

// SetDefaults makes untyped notes practice notes.
func (n *Note) SetDefaults() {
	if n.NoteKind == "" {
		n.NoteKind = NoteKindPractice
	}
	if n.NoteKind != NoteKindFree && n.Weather == "" {
		n.Weather = WeatherSunny
	}
}

// Validate checks the note's fields.
func (n *Note) Validate() error {
	switch n.NoteKind {
	case NoteKindPractice, NoteKindTournament:
		if n.Date.IsZero() {
			return fmt.Errorf("date is required for %s notes", n.NoteKind)
		}
	case NoteKindFree:
		if n.ID != FreeNoteID {
			return fmt.Errorf("only one free note may exist")
		}
	default:
		return fmt.Errorf("invalid note kind %q", n.NoteKind)
	}
	switch n.Weather {
	case "", WeatherSunny, WeatherCloudy, WeatherRainy:
	default:
		return fmt.Errorf("invalid weather %q", n.Weather)
	}
	return nil
}

// Target is a yearly or monthly goal.
type Target struct {
	Meta
	Title    string `json:"title"`
	Year     int    `json:"year"`
	Month    int    `json:"month,omitempty"`
	IsYearly bool   `json:"is_yearly"`
}

func (t *Target) Kind() Kind       { return KindTarget }
func (t *Target) ParentID() string { return "" }

// SetDefaults clears the month of yearly targets.
func (t *Target) SetDefaults() {
	if t.IsYearly {
		t.Month = 0
	}
}

// Validate checks the target's fields.
func (t *Target) Validate() error {
	if err := validateTitle(t.Title); err != nil {
		return err
	}
	if t.Year < 1900 || t.Year > 9999 {
		return fmt.Errorf("year out of range (got %d)", t.Year)
	}
	if !t.IsYearly && (t.Month < 1 || t.Month > 12) {
		return fmt.Errorf("month must be between 1 and 12 (got %d)", t.Month)
	}
	return nil
}

func validateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("title is required")
	}
	if len(title) > maxTitleLen {
		return fmt.Errorf("title must be %d characters or less (got %d)", maxTitleLen, len(title))
	}
	return nil
}

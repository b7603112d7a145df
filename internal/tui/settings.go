package tui

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/deskwatch/internal/stats"
	"github.com/sadopc/deskwatch/internal/store"
)

// prefsCache shares the saved preferences between views and the commands
// they spawn.
type prefsCache struct {
	mu sync.RWMutex
	p  store.Preferences
}

func newPrefsCache(p store.Preferences) *prefsCache {
	return &prefsCache{p: p}
}

func (c *prefsCache) get() store.Preferences {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.p
}

func (c *prefsCache) set(p store.Preferences) {
	c.mu.Lock()
	c.p = p
	c.mu.Unlock()
}

func (c *prefsCache) goals() stats.DailyGoals { return c.get().DailyGoals }

func (c *prefsCache) weekStart() time.Weekday { return c.get().WeekStart }

type settingsModel struct {
	store  *store.Store
	prefs  *prefsCache
	width  int
	height int

	loadErr    error
	formActive bool
	form       *huh.Form

	// Form values as pointers (survive value copies)
	blockMin   *string
	breakMin   *string
	graceSec   *string
	confidence *string
	dailyGoals *string
	weekStart  *string
}

func newSettingsModel(s *store.Store, prefs *prefsCache) settingsModel {
	bm, br, gs, cf, dg, ws := "", "", "", "", "", ""
	return settingsModel{
		store:      s,
		prefs:      prefs,
		blockMin:   &bm,
		breakMin:   &br,
		graceSec:   &gs,
		confidence: &cf,
		dailyGoals: &dg,
		weekStart:  &ws,
	}
}

func (s *settingsModel) setSize(w, h int) {
	s.width = w
	s.height = h
}

type settingsDataMsg struct {
	prefs store.Preferences
	err   error
}

type prefsSavedMsg struct {
	prefs store.Preferences
}

func (s settingsModel) refresh() tea.Cmd {
	if s.store == nil {
		return nil
	}
	st := s.store
	return func() tea.Msg {
		p, err := st.Preferences()
		return settingsDataMsg{prefs: p, err: err}
	}
}

func (s settingsModel) update(msg tea.Msg) (settingsModel, tea.Cmd) {
	if s.formActive && s.form != nil {
		return s.updateForm(msg)
	}

	switch msg := msg.(type) {
	case settingsDataMsg:
		s.loadErr = msg.err
		if msg.err == nil {
			s.prefs.set(msg.prefs)
		}
		return s, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Enter), key.Matches(msg, keys.New):
			return s.showForm()
		}
	}
	return s, nil
}

func (s settingsModel) showForm() (settingsModel, tea.Cmd) {
	p := s.prefs.get()
	*s.blockMin = trimFloat(p.Tracker.BlockDuration.Minutes())
	*s.breakMin = trimFloat(p.Tracker.BreakDuration.Minutes())
	*s.graceSec = trimFloat(p.Tracker.GracePeriod.Seconds())
	*s.confidence = trimFloat(p.Tracker.ConfidenceThreshold)
	*s.dailyGoals = p.DailyGoals.String()
	*s.weekStart = strings.ToLower(p.WeekStart.String())

	s.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Block length (min)").Value(s.blockMin).Validate(positive),
			huh.NewInput().Title("Break length (min)").Value(s.breakMin).Validate(positive),
			huh.NewInput().Title("Grace period (sec)").Value(s.graceSec).Validate(nonNegative),
			huh.NewInput().Title("Confidence threshold (0-1)").Value(s.confidence).Validate(func(v string) error {
				f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
				if err != nil || f < 0 || f > 1 {
					return fmt.Errorf("enter a number between 0 and 1")
				}
				return nil
			}),
		).Title("Tracking"),
		huh.NewGroup(
			huh.NewInput().Title("Daily goals (hours, Mon..Sun)").Value(s.dailyGoals).Validate(func(v string) error {
				_, err := stats.ParseDailyGoals(v)
				return err
			}),
			huh.NewSelect[string]().Title("Week starts on").
				Options(
					huh.NewOption("Monday", "monday"),
					huh.NewOption("Sunday", "sunday"),
					huh.NewOption("Saturday", "saturday"),
				).Value(s.weekStart),
		).Title("Goals"),
	).WithShowHelp(true).WithShowErrors(true)

	s.formActive = true
	return s, s.form.Init()
}

func (s settingsModel) updateForm(msg tea.Msg) (settingsModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		if msg.String() == "esc" {
			s.formActive = false
			s.form = nil
			return s, nil
		}
	}

	form, cmd := s.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		s.form = f
	}

	if s.form.State == huh.StateCompleted {
		s.formActive = false
		p, err := s.formPreferences()
		if err != nil {
			return s, errorCmd(err)
		}
		if err := s.store.SavePreferences(p); err != nil {
			return s, errorCmd(err)
		}
		s.prefs.set(p)
		return s, tea.Batch(
			func() tea.Msg { return prefsSavedMsg{prefs: p} },
			statusCmd("Settings saved. Tracking changes apply to the next session."),
		)
	}

	return s, cmd
}

// formPreferences parses the form fields into preferences.
func (s settingsModel) formPreferences() (store.Preferences, error) {
	p := s.prefs.get()
	var err error
	if p.Tracker.BlockDuration, err = parseUnits(*s.blockMin, time.Minute); err != nil {
		return p, fmt.Errorf("block length: %w", err)
	}
	if p.Tracker.BreakDuration, err = parseUnits(*s.breakMin, time.Minute); err != nil {
		return p, fmt.Errorf("break length: %w", err)
	}
	if p.Tracker.GracePeriod, err = parseUnits(*s.graceSec, time.Second); err != nil {
		return p, fmt.Errorf("grace period: %w", err)
	}
	if p.Tracker.ConfidenceThreshold, err = strconv.ParseFloat(strings.TrimSpace(*s.confidence), 64); err != nil {
		return p, fmt.Errorf("confidence threshold: %w", err)
	}
	if p.DailyGoals, err = stats.ParseDailyGoals(*s.dailyGoals); err != nil {
		return p, err
	}
	if p.WeekStart, err = store.ParseWeekday(*s.weekStart); err != nil {
		return p, err
	}
	return p, p.Validate()
}

func (s settingsModel) view() string {
	w := s.width - 4
	title := titleStyle.Render("Settings")

	if s.formActive && s.form != nil {
		return panelStyle.Width(w).Render(
			lipgloss.JoinVertical(lipgloss.Left, title, "", s.form.View()),
		)
	}

	p := s.prefs.get()
	rows := []string{title, ""}
	if s.loadErr != nil {
		rows = append(rows, errorStyle.Render("Stored settings are invalid: "+s.loadErr.Error()), "")
	}

	var goals []string
	for i, g := range p.DailyGoals {
		day := time.Weekday((i + 1) % 7).String()[:3]
		goals = append(goals, fmt.Sprintf("%s %s", day, trimFloat(g.Hours())))
	}

	entries := []struct{ label, value string }{
		{"Block length", fmt.Sprintf("%s min", trimFloat(p.Tracker.BlockDuration.Minutes()))},
		{"Break length", fmt.Sprintf("%s min", trimFloat(p.Tracker.BreakDuration.Minutes()))},
		{"Grace period", fmt.Sprintf("%s sec", trimFloat(p.Tracker.GracePeriod.Seconds()))},
		{"Confidence threshold", trimFloat(p.Tracker.ConfidenceThreshold)},
		{"Daily goals (h)", strings.Join(goals, "  ")},
		{"Week starts on", p.WeekStart.String()},
	}
	for _, e := range entries {
		label := lipgloss.NewStyle().Width(24).Render(e.label)
		rows = append(rows, fmt.Sprintf("  %s %s", label, highlightStyle.Render(e.value)))
	}

	rows = append(rows, "")
	rows = append(rows, mutedStyle.Render("Press enter to edit settings. Tracking changes apply to the next session."))

	return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func parseUnits(v string, unit time.Duration) (time.Duration, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", v)
	}
	return time.Duration(f * float64(unit)), nil
}

func positive(v string) error {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || f <= 0 {
		return fmt.Errorf("enter a positive number")
	}
	return nil
}

func nonNegative(v string) error {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || f < 0 {
		return fmt.Errorf("enter a number of at least 0")
	}
	return nil
}

func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/deskwatch/internal/catalog"
)

var taskColors = []string{"#6C63FF", "#2EC4B6", "#FF6B6B", "#F39C12", "#2ECC71", "#E74C3C", "#9B59B6", "#3498DB"}

// todoRow addresses one line of the list: a task, or one of its subtasks
// when sub >= 0.
type todoRow struct {
	task int
	sub  int
}

type todoModel struct {
	catalog *catalog.Store
	width   int
	height  int

	doc     catalog.Document
	rows    []todoRow
	cursor  int
	loadErr error

	formActive bool
	form       *huh.Form
	formType   string // "task", "subtask", "actual", "delete_task", "delete_subtask"
	target     todoRow

	// Form field pointers (survive value copies)
	formName     *string
	formType_    *string
	formCategory *string
	formEstimate *string
	formColor    *string
	formStatus   *catalog.Status
	formConfirm  *bool
}

func newTodoModel(c *catalog.Store) todoModel {
	name, typ, cat, est, color := "", catalog.TaskTypes[0], "", "", taskColors[0]
	status, confirm := catalog.Pending, false
	return todoModel{
		catalog:      c,
		formName:     &name,
		formType_:    &typ,
		formCategory: &cat,
		formEstimate: &est,
		formColor:    &color,
		formStatus:   &status,
		formConfirm:  &confirm,
	}
}

func (t *todoModel) setSize(w, h int) {
	t.width = w
	t.height = h
}

type todoDataMsg struct {
	doc catalog.Document
	err error
}

func (t todoModel) refresh() tea.Cmd {
	c := t.catalog
	return func() tea.Msg {
		doc, err := c.Refresh()
		return todoDataMsg{doc: doc, err: err}
	}
}

func buildRows(doc catalog.Document) []todoRow {
	var rows []todoRow
	for i, task := range doc.Tasks {
		rows = append(rows, todoRow{task: i, sub: -1})
		for j := range task.Subtasks {
			rows = append(rows, todoRow{task: i, sub: j})
		}
	}
	return rows
}

func (t todoModel) selected() (todoRow, bool) {
	if t.cursor < 0 || t.cursor >= len(t.rows) {
		return todoRow{}, false
	}
	return t.rows[t.cursor], true
}

func (t todoModel) names(r todoRow) (task, subtask string) {
	tk := t.doc.Tasks[r.task]
	if r.sub >= 0 {
		return tk.Name, tk.Subtasks[r.sub].Name
	}
	return tk.Name, ""
}

func (t todoModel) update(msg tea.Msg) (todoModel, tea.Cmd) {
	if t.formActive && t.form != nil {
		return t.updateForm(msg)
	}

	switch msg := msg.(type) {
	case todoDataMsg:
		t.loadErr = msg.err
		if msg.err == nil {
			t.doc = msg.doc
			t.rows = buildRows(msg.doc)
		}
		if t.cursor >= len(t.rows) {
			t.cursor = max(0, len(t.rows)-1)
		}
		return t, nil

	case tea.KeyMsg:
		return t.updateList(msg)
	}
	return t, nil
}

func (t todoModel) updateList(msg tea.KeyMsg) (todoModel, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up):
		if t.cursor > 0 {
			t.cursor--
		}
	case key.Matches(msg, keys.Down):
		if t.cursor < len(t.rows)-1 {
			t.cursor++
		}
	case key.Matches(msg, keys.Reload):
		return t, t.refresh()
	case key.Matches(msg, keys.New):
		return t.showTaskForm()
	case key.Matches(msg, keys.AddSub):
		if r, ok := t.selected(); ok {
			return t.showSubtaskForm(r)
		}
	case key.Matches(msg, keys.Cycle), key.Matches(msg, keys.Enter):
		r, ok := t.selected()
		if !ok || r.sub < 0 {
			return t, nil
		}
		task, sub := t.names(r)
		next, err := t.catalog.CycleStatus(task, sub)
		if err != nil {
			return t, errorCmd(err)
		}
		return t, tea.Batch(t.refresh(), statusCmd(fmt.Sprintf("%s: %s", sub, next)))
	case key.Matches(msg, keys.Actual):
		if r, ok := t.selected(); ok && r.sub >= 0 {
			return t.showActualForm(r)
		}
	case key.Matches(msg, keys.Delete):
		if r, ok := t.selected(); ok {
			return t.showDeleteForm(r)
		}
	}
	return t, nil
}

func (t todoModel) showTaskForm() (todoModel, tea.Cmd) {
	*t.formName = ""
	*t.formType_ = catalog.TaskTypes[0]
	*t.formCategory = ""
	*t.formEstimate = ""
	*t.formColor = taskColors[0]
	t.formType = "task"

	typeOptions := make([]huh.Option[string], len(catalog.TaskTypes))
	for i, tt := range catalog.TaskTypes {
		typeOptions[i] = huh.NewOption(tt, tt)
	}
	colorOptions := make([]huh.Option[string], len(taskColors))
	for i, c := range taskColors {
		colorOptions[i] = huh.NewOption(fmt.Sprintf("● %s", c), c)
	}

	doc := t.doc
	t.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Task Name").Value(t.formName).Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return catalog.ErrEmptyName
				}
				if _, ok := doc.Task(strings.TrimSpace(s)); ok {
					return catalog.ErrDuplicateTask
				}
				return nil
			}),
			huh.NewSelect[string]().Title("Type").Options(typeOptions...).Value(t.formType_),
			huh.NewInput().Title("Category").Value(t.formCategory),
			huh.NewInput().Title("Estimated time (hours)").Value(t.formEstimate).Validate(validateHours),
			huh.NewSelect[string]().Title("Color").Options(colorOptions...).Value(t.formColor),
		),
	).WithShowHelp(true).WithShowErrors(true)

	t.formActive = true
	return t, t.form.Init()
}

func (t todoModel) showSubtaskForm(r todoRow) (todoModel, tea.Cmd) {
	*t.formName = ""
	*t.formEstimate = ""
	*t.formStatus = catalog.Pending
	t.formType = "subtask"
	t.target = todoRow{task: r.task, sub: -1}

	statusOptions := make([]huh.Option[catalog.Status], len(catalog.Statuses))
	for i, s := range catalog.Statuses {
		statusOptions[i] = huh.NewOption(string(s), s)
	}

	task := t.doc.Tasks[r.task]
	t.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Subtask Name").Value(t.formName).Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return catalog.ErrEmptyName
				}
				if _, ok := task.Subtask(strings.TrimSpace(s)); ok {
					return catalog.ErrDuplicateSubtask
				}
				return nil
			}),
			huh.NewSelect[catalog.Status]().Title("Status").Options(statusOptions...).Value(t.formStatus),
			huh.NewInput().Title("Estimated time (minutes)").Value(t.formEstimate).Validate(func(s string) error {
				_, err := minutesToHours(s)
				return err
			}),
		).Title(task.Name),
	).WithShowHelp(true).WithShowErrors(true)

	t.formActive = true
	return t, t.form.Init()
}

func (t todoModel) showActualForm(r todoRow) (todoModel, tea.Cmd) {
	task, sub := t.names(r)
	*t.formEstimate = t.doc.Tasks[r.task].Subtasks[r.sub].ActualTime
	t.formType = "actual"
	t.target = r

	t.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Actual time (hours)").Value(t.formEstimate).Validate(validateHours),
		).Title(task + " / " + sub),
	).WithShowHelp(true).WithShowErrors(true)

	t.formActive = true
	return t, t.form.Init()
}

func (t todoModel) showDeleteForm(r todoRow) (todoModel, tea.Cmd) {
	task, sub := t.names(r)
	*t.formConfirm = false
	t.target = r

	var confirm *huh.Confirm
	if r.sub < 0 {
		t.formType = "delete_task"
		n := len(t.doc.Tasks[r.task].Subtasks)
		confirm = huh.NewConfirm().
			Title(fmt.Sprintf("Delete %q and its %d subtasks?", task, n)).
			Value(t.formConfirm)
	} else {
		t.formType = "delete_subtask"
		if len(t.doc.Tasks[r.task].Subtasks) > 1 {
			// Nothing to decide; delete straight away.
			if err := t.catalog.DeleteSubtask(task, sub, false); err != nil {
				return t, errorCmd(err)
			}
			return t, tea.Batch(t.refresh(), statusCmd("Deleted "+sub))
		}
		confirm = huh.NewConfirm().
			Title(fmt.Sprintf("%q was the last subtask. Remove %q as well?", sub, task)).
			Affirmative("Remove task").
			Negative("Keep task").
			Value(t.formConfirm)
	}

	t.form = huh.NewForm(huh.NewGroup(confirm)).WithShowHelp(true)
	t.formActive = true
	return t, t.form.Init()
}

func (t todoModel) updateForm(msg tea.Msg) (todoModel, tea.Cmd) {
	// Check for escape to cancel form
	if msg, ok := msg.(tea.KeyMsg); ok {
		if msg.String() == "esc" {
			t.formActive = false
			t.form = nil
			return t, nil
		}
	}

	form, cmd := t.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		t.form = f
	}

	if t.form.State == huh.StateCompleted {
		t.formActive = false
		if err := t.submit(); err != nil {
			return t, tea.Batch(t.refresh(), errorCmd(err))
		}
		return t, t.refresh()
	}

	return t, cmd
}

func (t todoModel) submit() error {
	switch t.formType {
	case "task":
		return t.catalog.AddTask(catalog.Task{
			Name:          *t.formName,
			Type:          *t.formType_,
			Category:      strings.TrimSpace(*t.formCategory),
			EstimatedTime: *t.formEstimate,
			Color:         *t.formColor,
		})
	case "subtask":
		hours, err := minutesToHours(*t.formEstimate)
		if err != nil {
			return err
		}
		task, _ := t.names(t.target)
		return t.catalog.AddSubtask(task, catalog.Subtask{
			Name:          *t.formName,
			Status:        *t.formStatus,
			EstimatedTime: hours,
		})
	case "actual":
		task, sub := t.names(t.target)
		return t.catalog.SetActualTime(task, sub, *t.formEstimate)
	case "delete_task":
		if !*t.formConfirm {
			return nil
		}
		task, _ := t.names(t.target)
		return t.catalog.DeleteTask(task)
	case "delete_subtask":
		task, sub := t.names(t.target)
		return t.catalog.DeleteSubtask(task, sub, *t.formConfirm)
	}
	return nil
}

func validateHours(s string) error {
	_, err := catalog.ParseHours(s)
	return err
}

// minutesToHours converts a minutes entry to the catalog's hours form.
// Blank input means no estimate.
func minutesToHours(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	m, err := strconv.ParseFloat(s, 64)
	if err != nil || m < 0 {
		return "", fmt.Errorf("%w: %q minutes", catalog.ErrInvalidHours, s)
	}
	return catalog.ParseHours(catalog.FormatHours(m / 60))
}

func (t todoModel) view() string {
	w := t.width - 4
	if t.formActive && t.form != nil {
		title := titleStyle.Render("New Task")
		switch t.formType {
		case "subtask":
			title = titleStyle.Render("New Subtask")
		case "actual":
			title = titleStyle.Render("Actual Time")
		case "delete_task", "delete_subtask":
			title = titleStyle.Render("Delete")
		}
		content := lipgloss.JoinVertical(lipgloss.Left, title, "", t.form.View())
		return panelStyle.Width(w).Render(content)
	}
	return t.renderList(w)
}

func (t todoModel) renderList(w int) string {
	title := titleStyle.Render("To-Do")
	if cur, sub, ok := t.doc.CurrentTask(); ok {
		title += mutedStyle.Render("  tracking: ") + highlightStyle.Render(truncate(cur+" / "+sub, w/2))
	}

	if t.loadErr != nil {
		content := lipgloss.JoinVertical(lipgloss.Left,
			title,
			"",
			errorStyle.Render("Cannot read the catalog: "+t.loadErr.Error()),
			mutedStyle.Render("Fix the file and press r to reload. Nothing will be saved until then."),
		)
		return panelStyle.Width(w).Render(content)
	}

	if len(t.rows) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			title,
			"",
			mutedStyle.Render("No tasks yet. Press n to create one."),
		)
		return panelStyle.Width(w).Render(content)
	}

	nameW := max(12, w-46)
	var rows []string
	rows = append(rows, title, "")
	rows = append(rows, mutedStyle.Render(fmt.Sprintf("    %s %-12s %-10s %-10s", pad("Name", nameW), "Status", "Estimate", "Actual")))

	// Keep the cursor on screen.
	visible := max(3, t.height-10)
	start := 0
	if t.cursor >= visible {
		start = t.cursor - visible + 1
	}
	end := min(len(t.rows), start+visible)

	for i := start; i < end; i++ {
		r := t.rows[i]
		cursor := "  "
		style := normalItemStyle
		if i == t.cursor {
			cursor = "> "
			style = selectedItemStyle
		}
		task := t.doc.Tasks[r.task]
		if r.sub < 0 {
			color := task.Color
			if color == "" {
				color = "#cccccc"
			}
			dot := lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render("●")
			meta := mutedStyle.Render(fmt.Sprintf("  %s · %s", orDash(task.Type), orDash(task.Category)))
			rows = append(rows, style.Render(cursor)+dot+" "+style.Render(pad(task.Name, nameW))+meta)
			continue
		}
		st := task.Subtasks[r.sub]
		statusStyle := lipgloss.NewStyle().Foreground(statusColors[st.Status])
		line := fmt.Sprintf("%s  └ %s ", cursor, pad(st.Name, nameW-2))
		rows = append(rows, style.Render(line)+
			statusStyle.Render(fmt.Sprintf("%-12s", st.Status))+
			mutedStyle.Render(fmt.Sprintf(" %-10s %-10s", catalog.DisplayHours(st.EstimatedTime), catalog.DisplayHours(st.ActualTime))))
	}

	rows = append(rows, "")
	rows = append(rows, mutedStyle.Render("  n: new task  a: add subtask  c: cycle status  t: actual time  d: delete  r: reload"))

	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

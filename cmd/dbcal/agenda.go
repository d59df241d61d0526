package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"dbcal/internal/calendar"
	"dbcal/internal/layout"
	"dbcal/internal/model"
	"dbcal/internal/render"
	"dbcal/internal/store"
)

const (
	defaultAgendaWidth = 80
	timeColumnWidth    = 18
)

var (
	colorPrimary = lipgloss.Color("#7AA2F7")
	colorMuted   = lipgloss.Color("#666666")
	colorWarning = lipgloss.Color("#F39C12")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)
	dayStyle     = lipgloss.NewStyle().Bold(true)
	timeStyle    = lipgloss.NewStyle().Foreground(colorMuted)
	warningStyle = lipgloss.NewStyle().Foreground(colorWarning)
)

var (
	agendaMode       string
	agendaDate       string
	agendaCollection string
	agendaWidth      int

	agendaCmd = &cobra.Command{
		Use:   "agenda",
		Short: "Print the occurrences of a month, week or day",
		Args:  cobra.NoArgs,
		RunE:  runAgenda,
	}
)

func init() {
	agendaCmd.Flags().StringVarP(&agendaMode, "mode", "m", "week", "View mode: month, week or day")
	agendaCmd.Flags().StringVarP(&agendaDate, "date", "d", "", "Any date inside the view (YYYY-MM-DD, default today)")
	agendaCmd.Flags().StringVar(&agendaCollection, "collection", "", "Collection id (default: every dated collection)")
	agendaCmd.Flags().IntVarP(&agendaWidth, "width", "w", 0, "Line width (default: terminal width)")
}

func runAgenda(cmd *cobra.Command, _ []string) error {
	mode, err := calendar.ParseMode(agendaMode)
	if err != nil {
		return err
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	base := time.Now().In(e.loc)
	if agendaDate != "" {
		base, err = time.ParseInLocation(time.DateOnly, agendaDate, e.loc)
		if err != nil {
			return fmt.Errorf("invalid --date %q: %w", agendaDate, err)
		}
	}

	src, err := e.store.CalendarSource(agendaCollection, e.cfg.Calendar.DateField)
	if err != nil {
		return err
	}
	view := calendar.Build(mode, base, src.Items, calendar.Options{
		DateKey:   src.DateKey,
		TitleKey:  src.TitleKey,
		WeekStart: calendar.ParseWeekStart(e.cfg.WeekStart),
	})

	return writeAgenda(cmd.OutOrStdout(), view, src, agendaLineWidth())
}

func agendaLineWidth() int {
	if agendaWidth > 0 {
		return agendaWidth
	}
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return defaultAgendaWidth
}

// writeAgenda prints one block per day that has occurrences.
func writeAgenda(w io.Writer, v calendar.View, src store.Source, width int) error {
	if width <= timeColumnWidth {
		width = defaultAgendaWidth
	}
	keys := model.KeysFor(src.DateKey)

	if _, err := fmt.Fprintln(w, titleStyle.Render(src.Name+" · "+v.Title)); err != nil {
		return err
	}

	empty := true
	for _, d := range v.Days {
		if len(d.Occurrences) == 0 {
			continue
		}
		empty = false
		fmt.Fprintln(w)
		fmt.Fprintln(w, dayStyle.Render(d.Date.Format("Mon Jan 2")))
		for _, o := range d.Occurrences {
			label := render.Label(o.Item, src.TitleKey, src.Global)
			label = runewidth.Truncate(label, width-timeColumnWidth, "…")
			when := runewidth.FillRight(occurrenceTime(o, keys), timeColumnWidth)
			if _, err := fmt.Fprintln(w, timeStyle.Render(when)+label); err != nil {
				return err
			}
		}
	}
	if empty {
		fmt.Fprintln(w)
		fmt.Fprintln(w, timeStyle.Render("Nothing scheduled."))
	}

	for _, id := range v.Truncated {
		fmt.Fprintln(w, warningStyle.Render("recurrence of item "+id+" truncated"))
	}
	return nil
}

func occurrenceTime(o model.Occurrence, keys model.FieldKeys) string {
	if o.Item.Bool(keys.AllDay) {
		return "all day"
	}
	iv := layout.Interval(o, keys)
	return layout.FormatHour(iv.StartHour) + "-" + layout.FormatHour(iv.EndHour)
}

package main

import (
	"fmt"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/dtorcivia/trainercal/internal/calsync"
	"github.com/dtorcivia/trainercal/internal/contract"
)

var inputLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseTime reads an RFC 3339 value, a local date-time, or a bare date
// (local midnight) in loc.
func parseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range inputLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot read time %q (use 2006-01-02 15:04 or RFC 3339)", s)
}

func eventFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "title", Required: true},
		&cli.StringFlag{Name: "start", Required: true, Usage: "start time, e.g. 2025-01-20 09:00"},
		&cli.StringFlag{Name: "end", Usage: "end time; defaults to start plus --duration"},
		&cli.DurationFlag{Name: "duration", Value: time.Hour},
		&cli.BoolFlag{Name: "all-day"},
		&cli.StringFlag{Name: "type", Value: string(contract.TypeTraining), Usage: "training, consultation or personal"},
		&cli.StringFlag{Name: "student", Usage: "student id for trainings and consultations"},
		&cli.StringFlag{Name: "description"},
		&cli.StringFlag{Name: "rrule", Usage: "recurrence rule, e.g. FREQ=WEEKLY;BYDAY=MO,WE"},
	}
}

func eventInput(c *cli.Context, loc *time.Location) (contract.EventInput, error) {
	start, err := parseTime(c.String("start"), loc)
	if err != nil {
		return contract.EventInput{}, err
	}

	var end time.Time
	switch {
	case c.String("end") != "":
		if end, err = parseTime(c.String("end"), loc); err != nil {
			return contract.EventInput{}, err
		}
	case c.Bool("all-day"):
		end = start.AddDate(0, 0, 1)
	default:
		end = start.Add(c.Duration("duration"))
	}

	return contract.EventInput{
		Title:       c.String("title"),
		Start:       start,
		End:         end,
		AllDay:      c.Bool("all-day"),
		Description: c.String("description"),
		Type:        contract.EventType(c.String("type")),
		StudentID:   c.String("student"),
		Recurrence:  c.String("rrule"),
	}, nil
}

func printEvents(e *env, events []contract.CalendarEvent) error {
	events = slices.Clone(events)
	slices.SortStableFunc(events, func(a, b contract.CalendarEvent) int {
		return a.Start.Compare(b.Start)
	})

	w := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tTITLE\tTYPE\tSOURCE\tID")
	for _, ev := range events {
		title := ev.Title
		if ev.StudentName != "" {
			title += " (" + ev.StudentName + ")"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.format.FormatSpan(ev.Start, ev.End, ev.AllDay), title, ev.Type, ev.Source, ev.ID)
	}
	return w.Flush()
}

func eventsCommand() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "List and edit calendar events.",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "Show the merged calendar.",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "from", Usage: "only events ending after this time"},
					&cli.StringFlag{Name: "to", Usage: "only events starting before this time"},
					&cli.BoolFlag{Name: "manual", Usage: "only events created here"},
				},
				Action: func(c *cli.Context) error {
					e, err := newEnv(c)
					if err != nil {
						return err
					}
					var from, to time.Time
					if s := c.String("from"); s != "" {
						if from, err = parseTime(s, e.loc); err != nil {
							return err
						}
					}
					if s := c.String("to"); s != "" {
						if to, err = parseTime(s, e.loc); err != nil {
							return err
						}
					}

					view, err := loadView(c.Context, e)
					if err != nil {
						return err
					}
					events := slices.DeleteFunc(view.Events, func(ev contract.CalendarEvent) bool {
						if c.Bool("manual") && ev.Source != contract.SourceManual {
							return true
						}
						if !from.IsZero() && !ev.End.After(from) {
							return true
						}
						return !to.IsZero() && !ev.Start.Before(to)
					})
					return printEvents(e, events)
				},
			},
			{
				Name:  "add",
				Usage: "Create a training, consultation or personal event.",
				Flags: eventFlags(),
				Action: func(c *cli.Context) error {
					e, err := newEnv(c)
					if err != nil {
						return err
					}
					in, err := eventInput(c, e.loc)
					if err != nil {
						return err
					}
					rec := e.reconciler(calsync.Options{})
					defer rec.Close()
					if err := rec.ReloadEvents(c.Context); err != nil {
						return err
					}
					ev, err := rec.CreateEvent(c.Context, in)
					if err != nil {
						return err
					}
					fmt.Fprintf(e.out, "created %s\n", ev.ID)
					return nil
				},
			},
			{
				Name:      "update",
				Usage:     "Replace an event or a whole recurring series.",
				ArgsUsage: "<id>",
				Flags:     eventFlags(),
				Action: func(c *cli.Context) error {
					id := c.Args().First()
					if id == "" {
						return fmt.Errorf("event id is required")
					}
					e, err := newEnv(c)
					if err != nil {
						return err
					}
					in, err := eventInput(c, e.loc)
					if err != nil {
						return err
					}
					rec := e.reconciler(calsync.Options{})
					defer rec.Close()
					if err := rec.ReloadEvents(c.Context); err != nil {
						return err
					}
					ev, err := rec.UpdateEvent(c.Context, id, in)
					if err != nil {
						return err
					}
					fmt.Fprintf(e.out, "updated %s\n", ev.ID)
					return nil
				},
			},
			{
				Name:      "rm",
				Usage:     "Delete an event, a series, or one occurrence of a series.",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					id := c.Args().First()
					if id == "" {
						return fmt.Errorf("event id is required")
					}
					e, err := newEnv(c)
					if err != nil {
						return err
					}
					rec := e.reconciler(calsync.Options{})
					defer rec.Close()
					if err := rec.ReloadEvents(c.Context); err != nil {
						return err
					}
					if err := rec.DeleteEvent(c.Context, id); err != nil {
						return err
					}
					fmt.Fprintf(e.out, "deleted %s\n", id)
					return nil
				},
			},
		},
	}
}

func studentsCommand() *cli.Command {
	return &cli.Command{
		Name:  "students",
		Usage: "Manage the student roster.",
		Subcommands: []*cli.Command{
			{
				Name: "list",
				Action: func(c *cli.Context) error {
					e, err := newEnv(c)
					if err != nil {
						return err
					}
					students, err := e.client.ListStudents(c.Context)
					if err != nil {
						return err
					}
					w := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
					fmt.Fprintln(w, "NAME\tEMAIL\tID")
					for _, s := range students {
						fmt.Fprintf(w, "%s\t%s\t%s\n", s.Name, s.Email, s.ID)
					}
					return w.Flush()
				},
			},
			{
				Name: "add",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "email"},
				},
				Action: func(c *cli.Context) error {
					e, err := newEnv(c)
					if err != nil {
						return err
					}
					s, err := e.client.CreateStudent(c.Context, contract.StudentInput{
						Name:  c.String("name"),
						Email: c.String("email"),
					})
					if err != nil {
						return err
					}
					fmt.Fprintf(e.out, "added %s (%s)\n", s.Name, s.ID)
					return nil
				},
			},
		},
	}
}

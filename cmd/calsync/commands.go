package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/dtorcivia/trainercal/internal/calsync"
	"github.com/dtorcivia/trainercal/internal/contract"
	"github.com/dtorcivia/trainercal/internal/icsexport"
	"github.com/dtorcivia/trainercal/internal/notifications"
	"github.com/dtorcivia/trainercal/internal/util"
)

func providerArg(c *cli.Context) (contract.Provider, error) {
	p, ok := contract.ParseProvider(c.Args().First())
	if !ok {
		return "", fmt.Errorf("expected provider google or outlook, got %q", c.Args().First())
	}
	return p, nil
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show which calendars are connected.",
		Action: func(c *cli.Context) error {
			e, err := newEnv(c)
			if err != nil {
				return err
			}
			status, err := e.client.Status(c.Context)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tCONNECTED\tLAST SYNC")
			for _, p := range contract.Providers {
				st := status.Connections[p]
				last := "never"
				if st.LastSyncAt != nil {
					last = e.format.FormatRelative(*st.LastSyncAt)
				}
				fmt.Fprintf(w, "%s\t%t\t%s\n", p, st.Connected, last)
			}
			return w.Flush()
		},
	}
}

func connectCommand() *cli.Command {
	return &cli.Command{
		Name:      "connect",
		Usage:     "Authorize access to a Google or Outlook calendar.",
		ArgsUsage: "<google|outlook>",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "wait", Value: calsync.DefaultAuthorizationCeiling, Usage: "how long to wait for the authorization"},
		},
		Action: func(c *cli.Context) error {
			p, err := providerArg(c)
			if err != nil {
				return err
			}
			e, err := newEnv(c)
			if err != nil {
				return err
			}

			rec := e.reconciler(calsync.Options{AuthorizationCeiling: c.Duration("wait")})
			defer rec.Close()

			task, err := rec.BeginAuthorization(p)
			if err != nil {
				return err
			}
			res, err := task.Wait(c.Context)
			if err != nil {
				return err
			}
			if !res.Connected {
				return fmt.Errorf("%s was not connected within %s", p, c.Duration("wait"))
			}
			fmt.Fprintf(e.out, "%s connected, %d events in view\n", p, len(rec.Snapshot().Events))
			return nil
		},
	}
}

func disconnectCommand() *cli.Command {
	return &cli.Command{
		Name:      "disconnect",
		Usage:     "Remove the stored authorization for a provider.",
		ArgsUsage: "<google|outlook>",
		Action: func(c *cli.Context) error {
			p, err := providerArg(c)
			if err != nil {
				return err
			}
			e, err := newEnv(c)
			if err != nil {
				return err
			}
			if err := e.client.Disconnect(c.Context, p); err != nil {
				return err
			}
			fmt.Fprintf(e.out, "%s disconnected\n", p)
			return nil
		},
	}
}

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Refresh events from every connected calendar.",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "watch", Usage: "keep running and sync on this interval"},
		},
		Action: func(c *cli.Context) error {
			e, err := newEnv(c)
			if err != nil {
				return err
			}

			if !c.IsSet("watch") {
				rec := e.reconciler(calsync.Options{})
				defer rec.Close()
				if err := rec.ReloadEvents(c.Context); err != nil {
					return err
				}
				if err := rec.Sync(c.Context, false); err != nil {
					return err
				}
				return printEvents(e, rec.Snapshot().Events)
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			rec := e.reconciler(calsync.Options{
				AutoSyncInterval: c.Duration("watch"),
				OnChange: func(s calsync.Snapshot) {
					fmt.Fprintf(e.out, "%s  %d events\n", e.format.FormatDateTime(time.Now()), len(s.Events))
				},
			})
			defer rec.Close()

			if err := rec.Start(ctx); err != nil {
				return err
			}
			if !rec.AutoSyncArmed() {
				return fmt.Errorf("no calendar is connected; run connect first")
			}
			<-ctx.Done()
			return nil
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write the merged calendar as an iCalendar file.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "file to write, stdout when empty"},
			&cli.StringFlag{Name: "name", Value: "Training calendar"},
		},
		Action: func(c *cli.Context) error {
			e, err := newEnv(c)
			if err != nil {
				return err
			}
			rec := e.reconciler(calsync.Options{})
			defer rec.Close()

			if err := rec.Start(c.Context); err != nil {
				return err
			}

			w := e.out
			if path := c.String("output"); path != "" {
				f, err := os.Create(path)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", path, err)
				}
				defer f.Close()
				w = f
			}
			return icsexport.Write(w, rec.Snapshot().Events, icsexport.Options{
				Name:     c.String("name"),
				Timezone: e.loc.String(),
			})
		},
	}
}

// loadView starts a reconciler so the merged view is available, then closes
// it again.
func loadView(ctx context.Context, e *env) (calsync.Snapshot, error) {
	rec := e.reconciler(calsync.Options{})
	defer rec.Close()
	if err := rec.Start(ctx); err != nil {
		return calsync.Snapshot{}, err
	}
	return rec.Snapshot(), nil
}

func notifyTestCommand() *cli.Command {
	return &cli.Command{
		Name:      "notify-test",
		Usage:     "Send a test message through one or every configured notifier.",
		ArgsUsage: "[console|ntfy|pushover]",
		Action: func(c *cli.Context) error {
			mgr := newNotifier(c)

			names := []string{c.Args().First()}
			if names[0] == "" {
				names = names[:0]
				for _, p := range mgr.EnabledProviders() {
					names = append(names, p.Name())
				}
			}

			var failed int
			for _, name := range names {
				if err := mgr.TestProvider(c.Context, name); err != nil {
					if errors.Is(err, notifications.ErrNoProviders) {
						return fmt.Errorf("%s is not configured", name)
					}
					util.Warn("Test notification failed", "provider", name, "error", err)
					fmt.Fprintf(c.App.Writer, "%s: failed: %v\n", name, err)
					failed++
					continue
				}
				fmt.Fprintf(c.App.Writer, "%s: sent\n", name)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d notifiers failed", failed, len(names))
			}
			return nil
		},
	}
}

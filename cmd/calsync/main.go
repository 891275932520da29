// Package main is the trainercal command-line client. It drives the calendar
// reconciler against a running trainercal server.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/dtorcivia/trainercal/internal/apiclient"
	"github.com/dtorcivia/trainercal/internal/calsync"
	"github.com/dtorcivia/trainercal/internal/config"
	"github.com/dtorcivia/trainercal/internal/notifications"
	"github.com/dtorcivia/trainercal/internal/notifications/console"
	"github.com/dtorcivia/trainercal/internal/notifications/ntfy"
	"github.com/dtorcivia/trainercal/internal/notifications/pushover"
	"github.com/dtorcivia/trainercal/internal/util"
)

func main() {
	// A missing .env file is fine.
	_ = godotenv.Load()

	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:      "calsync",
		Usage:     "Merge Google and Outlook calendars with your training schedule.",
		Writer:    out,
		ErrWriter: os.Stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "server", Value: "http://localhost:8080", EnvVars: []string{"TRAINERCAL_SERVER_URL"}, Usage: "trainercal server base URL"},
			&cli.StringFlag{Name: "token", EnvVars: []string{"TRAINERCAL_API_TOKEN"}, Usage: "API bearer token"},
			&cli.StringFlag{Name: "timezone", Value: "Local", EnvVars: []string{"TRAINERCAL_TIMEZONE", "TZ"}, Usage: "display timezone"},
			&cli.DurationFlag{Name: "timeout", Value: apiclient.DefaultTimeout, Usage: "per-request timeout"},
			&cli.StringFlag{Name: "log-level", Value: "warn", EnvVars: []string{"TRAINERCAL_LOG_LEVEL", "LOG_LEVEL"}},
			&cli.StringFlag{Name: "ntfy-server", Value: "https://ntfy.sh", EnvVars: []string{"TRAINERCAL_NTFY_SERVER"}},
			&cli.StringFlag{Name: "ntfy-topic", EnvVars: []string{"TRAINERCAL_NTFY_TOPIC"}, Usage: "also push notifications to this ntfy topic"},
			&cli.StringFlag{Name: "ntfy-token", EnvVars: []string{"TRAINERCAL_NTFY_TOKEN"}},
			&cli.StringFlag{Name: "pushover-app-token", EnvVars: []string{"TRAINERCAL_PUSHOVER_APP_TOKEN"}},
			&cli.StringFlag{Name: "pushover-user-key", EnvVars: []string{"TRAINERCAL_PUSHOVER_USER_KEY"}},
		},
		Before: func(c *cli.Context) error {
			util.SetDefaultLogger(util.NewLogger(c.String("log-level"), "text").WithOutput(os.Stderr))
			return nil
		},
		Commands: []*cli.Command{
			statusCommand(),
			connectCommand(),
			disconnectCommand(),
			syncCommand(),
			eventsCommand(),
			studentsCommand(),
			exportCommand(),
			notifyTestCommand(),
		},
	}
}

// env is what every command needs: the API client, the display timezone and
// the notifier.
type env struct {
	client   *apiclient.Client
	loc      *time.Location
	format   *util.DisplayFormatter
	notifier *notifications.Manager
	out      io.Writer
}

func newEnv(c *cli.Context) (*env, error) {
	token := c.String("token")
	if token == "" {
		return nil, fmt.Errorf("an API token is required (--token or TRAINERCAL_API_TOKEN)")
	}

	format, err := util.NewDisplayFormatter(c.String("timezone"), "", "", "")
	if err != nil {
		return nil, err
	}

	return &env{
		client:   apiclient.New(c.String("server"), token, apiclient.WithTimeout(c.Duration("timeout"))),
		loc:      format.Location,
		format:   format,
		notifier: newNotifier(c),
		out:      c.App.Writer,
	}, nil
}

// newNotifier always prints to the terminal and adds ntfy and Pushover when
// they are configured.
func newNotifier(c *cli.Context) *notifications.Manager {
	mgr := notifications.NewManager(console.NewProvider(c.App.ErrWriter))
	if topic := c.String("ntfy-topic"); topic != "" {
		mgr.RegisterProvider(ntfy.NewProvider(&config.NtfyConfig{
			Enabled:  true,
			Server:   c.String("ntfy-server"),
			Topic:    topic,
			Token:    c.String("ntfy-token"),
			Priority: "default",
		}))
	}
	if app, user := c.String("pushover-app-token"), c.String("pushover-user-key"); app != "" && user != "" {
		mgr.RegisterProvider(pushover.NewProvider(&config.PushoverConfig{
			Enabled:  true,
			AppToken: app,
			UserKey:  user,
			Sound:    "pushover",
		}))
	}

	return mgr
}

// reconciler builds a reconciler whose authorization URLs are printed for the
// trainer to open.
func (e *env) reconciler(opts calsync.Options) *calsync.Reconciler {
	opts.Location = e.loc
	if opts.Opener == nil {
		opts.Opener = func(ctx context.Context, url string) error {
			_, err := fmt.Fprintf(e.out, "Open this link to authorize access:\n\n  %s\n\n", url)
			return err
		}
	}
	opts.OnUnauthorized = func() {
		util.Error("Server rejected the API token")
	}
	return calsync.New(e.client, e.notifier, opts)
}

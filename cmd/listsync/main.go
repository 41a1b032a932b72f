package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/JonMunkholm/listsync/internal/app"
	"github.com/JonMunkholm/listsync/internal/core"
)

func main() {
	app.LoadEnv()

	r := NewRunner(RunnerOpts{Output: os.Stdout})
	root := rootCommand(r, func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
		a, err := app.New()
		if err != nil {
			return ctx, err
		}
		r.attach(a.Bindings, a.Client, a.Service)
		return ctx, nil
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.Run(ctx, os.Args); err != nil {
		reportError(os.Stderr, err)
		os.Exit(1)
	}
}

// reportError prints the mapped user message, when there is one, above the
// technical error.
func reportError(w io.Writer, err error) {
	if core.IsUserFacing(err) {
		fmt.Fprintln(w, core.FormatUserError(err))
	}
	fmt.Fprintf(w, "listsync: %v\n", err)
}

func rootCommand(r *Runner, before cli.BeforeFunc) *cli.Command {
	return &cli.Command{
		Name:     "listsync",
		Usage:    "Sync spreadsheets into Campaign Monitor mailing lists",
		Before:   before,
		Commands: r.register(),
	}
}

func bindingsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "bindings",
		Usage: "List the configured spreadsheet to list bindings",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "check",
				Usage: "Fetch each remote list to verify the list ID and credentials",
			},
		},
		Action: r.Bindings,
	}
}

func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Sync one binding or all of them and print the run log",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "binding",
				Aliases: []string{"b"},
				Usage:   "Name of the binding to sync",
			},
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Sync every binding in declaration order",
			},
			&cli.BoolFlag{
				Name:  "unsubscribe",
				Usage: "Unsubscribe remote members missing from the spreadsheet",
			},
			&cli.BoolFlag{
				Name:  "skip-unsubscribed",
				Usage: "Skip addresses already unsubscribed remotely (default from SYNC_SKIP_UNSUBSCRIBED)",
			},
			&cli.BoolFlag{
				Name:  "resubscribe",
				Usage: "Resubscribe imported addresses (default from SYNC_RESUBSCRIBE)",
			},
			&cli.BoolFlag{
				Name:  "export",
				Usage: "Write the invalid-records workbook after the run",
			},
		},
		Action: r.Sync,
	}
}

func previewCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "preview",
		Usage: "Show what a sync would send without contacting the remote service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "binding",
				Aliases:  []string{"b"},
				Usage:    "Name of the binding to preview",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Preview,
	}
}

func exportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "export",
		Usage:  "Write the invalid-records workbook held by this process",
		Action: r.Export,
	}
}

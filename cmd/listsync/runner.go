package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/JonMunkholm/listsync/internal/config"
	"github.com/JonMunkholm/listsync/internal/core"
)

// ErrRunFailed is returned by sync when any binding failed or the run was
// interrupted, so the process exits non-zero.
var ErrRunFailed = errors.New("sync finished with failures")

// Runner holds the wired service for the command actions.
type Runner struct {
	bindings []config.Binding
	client   core.ListClient
	service  *core.Service
	output   io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Bindings []config.Binding
	Client   core.ListClient
	Service  *core.Service
	Output   io.Writer
}

// NewRunner creates a Runner. The service may be attached later, once
// configuration has been loaded.
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	return &Runner{
		bindings: opts.Bindings,
		client:   opts.Client,
		service:  opts.Service,
		output:   opts.Output,
	}
}

func (r *Runner) attach(bindings []config.Binding, client core.ListClient, service *core.Service) {
	r.bindings = bindings
	r.client = client
	r.service = service
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		bindingsCommand, previewCommand, syncCommand, exportCommand,
	} {
		commands = append(commands, fn(r))
	}
	return commands
}

func (r *Runner) writePlainln(format string, args ...any) {
	fmt.Fprintf(r.output, format+"\n", args...)
}

// Bindings lists the configured bindings, optionally checking each remote list.
func (r *Runner) Bindings(ctx context.Context, cmd *cli.Command) error {
	check := cmd.Bool("check")

	tw := tabwriter.NewWriter(r.output, 0, 4, 2, ' ', 0)
	header := "#\tNAME\tLIST ID\tFILE"
	if check {
		header += "\tREMOTE"
	}
	fmt.Fprintln(tw, header)

	failed := 0
	for i, b := range r.bindings {
		line := fmt.Sprintf("%d\t%s\t%s\t%s", i, b.Name, b.ListID, b.File)
		if check {
			details, err := r.client.ListDetails(ctx, b.ListID)
			if err != nil {
				failed++
				line += "\terror: " + core.MapError(err).Message
			} else {
				line += "\t" + details.Title
			}
		}
		fmt.Fprintln(tw, line)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d lists could not be fetched", failed, len(r.bindings))
	}
	return nil
}

// Sync runs one binding or all of them in the foreground, printing the run
// log as it is written.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	name, all := cmd.String("binding"), cmd.Bool("all")
	if (name == "") == !all {
		return fmt.Errorf("pass exactly one of --binding or --all")
	}

	var indexes []int
	if all {
		for i := range r.bindings {
			indexes = append(indexes, i)
		}
	} else {
		i, err := r.service.BindingIndex(name)
		if err != nil {
			return err
		}
		indexes = []int{i}
	}

	opts := r.service.DefaultSyncOptions()
	opts.Unsubscribe = cmd.Bool("unsubscribe")
	if cmd.IsSet("skip-unsubscribed") {
		opts.SkipUnsubscribed = cmd.Bool("skip-unsubscribed")
	}
	if cmd.IsSet("resubscribe") {
		opts.Resubscribe = cmd.Bool("resubscribe")
	}

	ctx = core.ContextWithTrigger(ctx, core.Trigger{Source: "cli"})
	result, err := r.service.RunNow(ctx, indexes, opts, func(line string) {
		r.writePlainln("%s", line)
	})
	if err != nil {
		return err
	}

	r.writeSummary(result)

	// A per-binding export already happened during the run; --export
	// reports where the workbook is, or that nothing was rejected.
	if cmd.Bool("export") {
		if err := r.export(); err != nil && !errors.Is(err, core.ErrNothingToExport) {
			return err
		}
	}

	if result.Failed() {
		return ErrRunFailed
	}
	return nil
}

// Preview prints the normalized view of one binding's spreadsheet.
func (r *Runner) Preview(ctx context.Context, cmd *cli.Command) error {
	i, err := r.service.BindingIndex(cmd.String("binding"))
	if err != nil {
		return err
	}
	p, err := r.service.Preview(i)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		enc := json.NewEncoder(r.output)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	}

	r.writePlainln("Binding:      %s", p.Binding)
	r.writePlainln("Email column: %s", p.EmailColumn)
	r.writePlainln("Rows:         %d", p.Summary.TotalRows)
	r.writePlainln("Subscribers:  %d in %d batches", p.Summary.Subscribers, p.Summary.Batches)
	r.writePlainln("No email:     %d", p.Summary.MissingEmail)
	r.writePlainln("Duplicates:   %d", p.Summary.DuplicateInFile)
	for _, d := range p.DuplicateSamples {
		r.writePlainln("  %s on lines %v", d.Email, d.LineNumbers)
	}
	return nil
}

// Export writes the invalid-records workbook.
func (r *Runner) Export(ctx context.Context, cmd *cli.Command) error {
	return r.export()
}

func (r *Runner) export() error {
	return r.service.ExportInvalids(func(format string, args ...any) {
		r.writePlainln(format, args...)
	})
}

func (r *Runner) writeSummary(result *core.RunResult) {
	tw := tabwriter.NewWriter(r.output, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\nBINDING\tSTATUS\tNEW\tEXISTING\tDUPLICATES\tINVALID\tUNSUBSCRIBED")
	for _, b := range result.Bindings {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
			b.Name, b.Status, b.Totals.New, b.Totals.Existing, b.Totals.Duplicates, b.Totals.Failures, b.Unsubscribed)
	}
	tw.Flush()
}

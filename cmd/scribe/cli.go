package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/scribe/internal/audio"
	"github.com/hpungsan/scribe/internal/errors"
	"github.com/hpungsan/scribe/internal/events"
	"github.com/hpungsan/scribe/internal/ops"
	"github.com/hpungsan/scribe/internal/web"
)

// maxStdinBytes bounds text read from stdin (prompt templates, result edits).
const maxStdinBytes = 1 << 20

// newCLIApp creates the CLI application with all commands.
// a may be nil when only help or version output is needed.
func newCLIApp(a *app) *cli.App {
	cliApp := &cli.App{
		Name:    "scribe",
		Usage:   "Record, transcribe and summarize sessions locally",
		Version: Version,
		Commands: []*cli.Command{
			recordCmd(a),
			transcribeCmd(a),
			resumeCmd(a),
			jobsCmd(a),
			transcriptsCmd(a),
			showCmd(a),
			promptsCmd(a),
			runCmd(a),
			rerunCmd(a),
			editCmd(a),
			resultsCmd(a),
			exportCmd(a),
			sweepCmd(a),
			uiCmd(a),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	cliApp.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return cliApp
}

// recordCmd creates the record command.
func recordCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "record",
		Usage: "Record raw PCM16 mono audio from stdin, then transcribe and run prompts",
		Description: "Pipe audio from a capture tool, e.g.\n" +
			"   sox -d -t raw -r 16000 -e signed -b 16 -c 1 - | scribe record\n" +
			"Ctrl-C stops recording and starts processing; a second Ctrl-C aborts processing\n" +
			"(the job can be resumed later).",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "frame-samples", Usage: "Samples per device frame (default from config)"},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "Do not print progress to stderr"},
		},
		Action: func(c *cli.Context) error {
			if !stdinHasData() {
				return outputError(errors.NewInvalidRequest("raw PCM16 audio must be piped via stdin"))
			}

			frames := c.Int("frame-samples")
			if frames <= 0 {
				frames = a.cfg.CaptureFrameSamples
			}

			ctx, cancel := context.WithCancel(c.Context)
			defer cancel()
			stop := interruptToStop(ctx, cancel)

			if !c.Bool("quiet") {
				defer followProgress(a.bus, os.Stderr)()
			}

			output, err := a.svc.Record(ctx, ops.RecordInput{
				Device: audio.NewReaderDevice(os.Stdin, frames),
				Stop:   stop,
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// transcribeCmd creates the transcribe command.
func transcribeCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:      "transcribe",
		Usage:     "Import a WAV file as a new job, transcribe it and run prompts",
		ArgsUsage: "<file.wav>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "Do not print progress to stderr"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("WAV file path is required"))
			}
			if !c.Bool("quiet") {
				defer followProgress(a.bus, os.Stderr)()
			}

			output, err := a.svc.Transcribe(c.Context, c.Args().First())
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// resumeCmd creates the resume command.
func resumeCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:      "resume",
		Usage:     "Resume an interrupted or failed job from its last checkpoint",
		ArgsUsage: "<job-id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "Do not print progress to stderr"},
		},
		Action: func(c *cli.Context) error {
			if !c.Bool("quiet") {
				defer followProgress(a.bus, os.Stderr)()
			}

			output, err := a.svc.ResumeJob(c.Context, c.Args().First())
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// jobsCmd creates the jobs command.
func jobsCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "jobs",
		Usage: "List jobs, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "state", Aliases: []string{"s"}, Usage: "Filter by state (e.g. failed)"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 20, Usage: "Max results"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Skip results"},
		},
		Action: func(c *cli.Context) error {
			output, err := a.svc.ListJobs(c.Context, ops.ListJobsInput{
				State:  c.String("state"),
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// transcriptsCmd creates the transcripts command.
func transcriptsCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "transcripts",
		Usage: "List stored transcripts, newest first",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 20, Usage: "Max results"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Skip results"},
		},
		Action: func(c *cli.Context) error {
			output, err := a.svc.ListTranscripts(c.Context, ops.ListTranscriptsInput{
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// showCmd creates the show command.
func showCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Decrypt and print a transcript",
		ArgsUsage: "<transcript-id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "no-text", Usage: "Exclude the transcript text from output"},
			&cli.BoolFlag{Name: "results", Aliases: []string{"r"}, Usage: "Include prompt results"},
		},
		Action: func(c *cli.Context) error {
			input := ops.FetchTranscriptInput{
				ID:             c.Args().First(),
				IncludeResults: c.Bool("results"),
			}
			if c.Bool("no-text") {
				includeText := false
				input.IncludeText = &includeText
			}

			output, err := a.svc.FetchTranscript(c.Context, input)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// promptsCmd creates the prompts command group.
func promptsCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "prompts",
		Usage: "Manage prompt definitions",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List prompts in execution order",
				Action: func(c *cli.Context) error {
					return outputJSON(a.svc.ListPrompts())
				},
			},
			{
				Name:      "add",
				Usage:     "Add a prompt (template from --template or stdin; must contain {transcript})",
				ArgsUsage: "<name>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "template", Aliases: []string{"t"}, Usage: "Prompt template"},
					&cli.BoolFlag{Name: "disabled", Usage: "Add the prompt disabled"},
				},
				Action: func(c *cli.Context) error {
					template, err := templateArg(c)
					if err != nil {
						return outputError(err)
					}
					enabled := !c.Bool("disabled")

					output, err := a.svc.AddPrompt(ops.AddPromptInput{
						Name:     c.Args().First(),
						Template: template,
						Enabled:  &enabled,
					})
					if err != nil {
						return outputError(err)
					}

					return outputJSON(output)
				},
			},
			{
				Name:      "update",
				Usage:     "Replace a prompt's template (from --template or stdin)",
				ArgsUsage: "<name>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "template", Aliases: []string{"t"}, Usage: "New prompt template"},
				},
				Action: func(c *cli.Context) error {
					template, err := templateArg(c)
					if err != nil {
						return outputError(err)
					}

					output, err := a.svc.UpdatePrompt(ops.UpdatePromptInput{
						Name:     c.Args().First(),
						Template: &template,
					})
					if err != nil {
						return outputError(err)
					}

					return outputJSON(output)
				},
			},
			{
				Name:      "remove",
				Usage:     "Remove a prompt (existing results are kept)",
				ArgsUsage: "<name>",
				Action: func(c *cli.Context) error {
					output, err := a.svc.RemovePrompt(c.Args().First())
					if err != nil {
						return outputError(err)
					}

					return outputJSON(output)
				},
			},
			setEnabledCmd(a, "enable", true),
			setEnabledCmd(a, "disable", false),
		},
	}
}

// setEnabledCmd creates the prompts enable/disable subcommands.
func setEnabledCmd(a *app, name string, enabled bool) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     strings.ToUpper(name[:1]) + name[1:] + " a prompt",
		ArgsUsage: "<name>",
		Action: func(c *cli.Context) error {
			output, err := a.svc.UpdatePrompt(ops.UpdatePromptInput{
				Name:    c.Args().First(),
				Enabled: &enabled,
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// runCmd creates the run command.
func runCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Run every enabled prompt against a transcript (replaces all results)",
		ArgsUsage: "<transcript-id>",
		Action: func(c *cli.Context) error {
			output, err := a.svc.RunPrompts(c.Context, c.Args().First())
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// rerunCmd creates the rerun command.
func rerunCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:      "rerun",
		Usage:     "Run one prompt again (replaces only that result)",
		ArgsUsage: "<transcript-id> <prompt>",
		Action: func(c *cli.Context) error {
			output, err := a.svc.RerunPrompt(c.Context, ops.RerunPromptInput{
				TranscriptID: c.Args().Get(0),
				Prompt:       c.Args().Get(1),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// editCmd creates the edit command.
func editCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:      "edit",
		Usage:     "Replace a prompt result with text read from stdin",
		ArgsUsage: "<transcript-id> <prompt>",
		Action: func(c *cli.Context) error {
			if !stdinHasData() {
				return outputError(errors.NewInvalidRequest("result text must be piped via stdin"))
			}
			text, err := readStdin(maxStdinBytes)
			if err != nil {
				return outputError(err)
			}

			output, err := a.svc.EditResult(c.Context, ops.EditResultInput{
				TranscriptID: c.Args().Get(0),
				Prompt:       c.Args().Get(1),
				Text:         text,
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// resultsCmd creates the results command.
func resultsCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:      "results",
		Usage:     "List the prompt results of a transcript",
		ArgsUsage: "<transcript-id>",
		Action: func(c *cli.Context) error {
			output, err := a.svc.ListResults(c.Context, c.Args().First())
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// exportCmd creates the export command.
func exportCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Write a transcript to a markdown file in the exports directory",
		ArgsUsage: "<transcript-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Output file (.md or .txt) inside the exports directory"},
			&cli.BoolFlag{Name: "results", Aliases: []string{"r"}, Usage: "Append prompt results"},
		},
		Action: func(c *cli.Context) error {
			output, err := a.svc.Export(c.Context, ops.ExportInput{
				TranscriptID:   c.Args().First(),
				Path:           c.String("path"),
				IncludeResults: c.Bool("results"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// sweepCmd creates the sweep command.
func sweepCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "Delete orphaned checkpoints of jobs that were never resumed",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "older-than", Usage: "Minimum age (e.g., 30d, 12h); default from config"},
		},
		Action: func(c *cli.Context) error {
			input := ops.SweepInput{}
			if olderThan := c.String("older-than"); olderThan != "" {
				d, err := parseDuration(olderThan)
				if err != nil {
					return outputError(errors.NewInvalidRequest(err.Error()))
				}
				input.OlderThan = d
			}

			output, err := a.svc.Sweep(input)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// uiCmd creates the ui command.
func uiCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "ui",
		Usage: "Serve the local web UI",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Value: 8766, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			srv, err := web.NewServer(a.svc, Version, c.String("bind"), c.Int("port"), a.logger.Named("web"))
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			if err := web.Run(srv, a.logger.Named("web")); err != nil {
				return outputError(errors.NewInternal(err))
			}
			return nil
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if sErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", sErr.Code, sErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin, failing if it exceeds limit bytes.
func readStdin(limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(os.Stdin, limit+1))
	if err != nil {
		return "", errors.NewInternal(err)
	}
	if int64(len(data)) > limit {
		return "", errors.NewInvalidRequest(fmt.Sprintf("stdin exceeds %d bytes", limit))
	}
	return strings.TrimSpace(string(data)), nil
}

// templateArg returns --template, or stdin when the flag is not set.
func templateArg(c *cli.Context) (string, error) {
	if c.IsSet("template") {
		return c.String("template"), nil
	}
	if !stdinHasData() {
		return "", errors.NewInvalidRequest("template must be given with --template or piped via stdin")
	}
	return readStdin(maxStdinBytes)
}

// parseDuration parses "30d" as days and anything else with time.ParseDuration.
func parseDuration(s string) (time.Duration, error) {
	if numStr, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(numStr)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		if days <= 0 {
			return 0, fmt.Errorf("duration must be positive")
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %s (use e.g. 30d or 12h)", s)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive")
	}
	return d, nil
}

// interruptToStop turns the first SIGINT/SIGTERM into a closed stop channel
// and the second into cancel.
func interruptToStop(ctx context.Context, cancel context.CancelFunc) <-chan struct{} {
	stop := make(chan struct{})
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "stopping recording; press Ctrl-C again to abort processing")
			close(stop)
		case <-ctx.Done():
			return
		}
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return stop
}

// followProgress prints bus events to w until the returned func is called.
func followProgress(bus *events.Bus, w io.Writer) func() {
	ch, unsubscribe := bus.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range ch {
			if line := progressLine(ev); line != "" {
				fmt.Fprintln(w, line)
			}
		}
	}()
	return func() {
		unsubscribe()
		<-done
	}
}

// progressLine renders one event for the terminal.
func progressLine(ev events.Event) string {
	switch ev.Kind {
	case events.KindProgress:
		return fmt.Sprintf("%s: transcribing %d%%", ev.JobID, ev.Percent)
	case events.KindState:
		return fmt.Sprintf("%s: %s", ev.JobID, ev.State)
	case events.KindTranscriptSaved:
		return fmt.Sprintf("%s: transcript %s saved", ev.JobID, ev.TranscriptID)
	case events.KindPromptResult:
		return fmt.Sprintf("prompt %q done", ev.Prompt)
	case events.KindError:
		if ev.Prompt != "" {
			return fmt.Sprintf("prompt %q failed: [%s] %s", ev.Prompt, ev.Code, ev.Err)
		}
		return fmt.Sprintf("%s: error: [%s] %s", ev.JobID, ev.Code, ev.Err)
	}
	return ""
}

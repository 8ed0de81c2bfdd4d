package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/huh"
	"github.com/muesli/reflow/wordwrap"
	"github.com/spf13/cobra"

	"ytexport/internal/config"
	"ytexport/internal/debug"
	apperrors "ytexport/internal/errors"
	"ytexport/internal/youtrack"
)

const (
	exitOK        = 0
	exitFailure   = 1
	exitAuth      = 2
	exitMalformed = 3
	exitCancelled = 130

	errorWrapWidth = 100
)

// app carries the streams and session shared by every command.
type app struct {
	out         io.Writer
	errOut      io.Writer
	interactive bool

	flags rootFlags

	client *youtrack.Client
	user   youtrack.User
}

type rootFlags struct {
	url        string
	token      string
	exportRoot string
	configPath string
	debug      bool
	noColor    bool
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ytexport",
		Short: "Export YouTrack projects to local JSON files",
		Long: "ytexport connects to a YouTrack instance and exports issues, comments and\n" +
			"attachments of the selected projects into one folder per project.",
		Version:       Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.interactive {
				return cmd.Help()
			}
			return a.runMenu(cmd.Context())
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.flags.url, "url", "", "YouTrack instance URL (or YOUTRACK_URL)")
	pf.StringVar(&a.flags.token, "token", "", "YouTrack permanent token (or YOUTRACK_TOKEN)")
	pf.StringVar(&a.flags.exportRoot, "export-root", "", "Directory that receives the exports")
	pf.StringVar(&a.flags.configPath, "config", "", "Path to a config file (overrides .ytexport/config.yaml)")
	pf.BoolVar(&a.flags.debug, "debug", false, "Write a debug log to ~/.ytexport/debug.log")
	pf.BoolVar(&a.flags.noColor, "no-color", false, "Disable colored output")

	cmd.AddCommand(
		newProjectsCmd(a),
		newExportCmd(a),
		newHistoryCmd(a),
		newVersionCmd(),
	)
	return cmd
}

// setup loads configuration, applies flag overrides and starts the debug log.
func (a *app) setup(cmd *cobra.Command) error {
	var opts []config.Option
	if a.flags.configPath != "" {
		opts = append(opts, config.WithProjectConfig(a.flags.configPath))
	}
	if err := config.Initialize(opts...); err != nil {
		return apperrors.New(apperrors.CodeConfigurationError, "Failed to load configuration", err)
	}

	overrides := map[string]any{
		config.KeyURL:        a.flags.url,
		config.KeyToken:      a.flags.token,
		config.KeyExportRoot: a.flags.exportRoot,
	}
	if cmd.Flags().Changed("debug") {
		overrides[config.KeyDebug] = a.flags.debug
	}
	if a.flags.noColor {
		overrides[config.KeyOutputColor] = false
	}
	if err := config.ApplyOverrides(overrides); err != nil {
		return apperrors.New(apperrors.CodeConfigurationError, "Failed to apply flags", err)
	}

	if err := debug.Init(config.GetBool(config.KeyDebug)); err != nil {
		_, _ = fmt.Fprintf(a.errOut, "Warning: debug log disabled: %v\n", err)
	}
	configureColors(config.GetBool(config.KeyOutputColor))
	debug.Logf("command=%s interactive=%t", cmd.CommandPath(), a.interactive)
	return nil
}

// execute runs the command tree and maps the outcome to an exit code.
func execute(ctx context.Context, a *app, args []string) int {
	defer debug.Close()

	cmd := newRootCmd(a)
	cmd.SetArgs(args)
	cmd.SetOut(a.out)
	cmd.SetErr(a.errOut)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	code := exitCodeFor(err)
	printError(a.errOut, err, code)
	return code
}

func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, huh.ErrUserAborted),
		errors.Is(err, context.Canceled),
		apperrors.IsCode(err, apperrors.CodeCancelled):
		return exitCancelled
	case apperrors.IsCode(err, apperrors.CodeAuthentication):
		return exitAuth
	case apperrors.CodeOf(err) == apperrors.CodeMalformedInput:
		return exitMalformed
	default:
		return exitFailure
	}
}

func printError(w io.Writer, err error, code int) {
	if code == exitCancelled {
		_, _ = fmt.Fprintln(w, errorStyle.Render("Cancelled by user."))
		return
	}
	label := "Error:"
	switch apperrors.CodeOf(err) {
	case apperrors.CodeAuthentication:
		label = "Authentication Error:"
	case apperrors.CodeAPI, apperrors.CodeNetwork:
		label = "YouTrack Error:"
	}
	_, _ = fmt.Fprintln(w, errorStyle.Render(label))
	_, _ = fmt.Fprintln(w, wordwrap.String(err.Error(), errorWrapWidth))
}

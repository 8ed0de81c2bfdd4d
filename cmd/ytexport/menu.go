package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/huh"

	apperrors "ytexport/internal/errors"
)

const (
	actionList    = "list"
	actionExport  = "export"
	actionHistory = "history"
	actionExit    = "exit"
)

// runMenu is the interactive loop shown when no subcommand is given.
func (a *app) runMenu(ctx context.Context) error {
	printBanner(a.out)
	if _, err := a.connect(ctx); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return apperrors.New(apperrors.CodeCancelled, "Interrupted", err)
		}
		_, _ = fmt.Fprintln(a.out)

		action := actionList
		err := huh.NewForm(huh.NewGroup(
			huh.NewSelect[string]().
				Title("What would you like to do?").
				Options(
					huh.NewOption("List my projects", actionList),
					huh.NewOption("Export projects", actionExport),
					huh.NewOption("Export history", actionHistory),
					huh.NewOption("Exit", actionExit),
				).
				Value(&action),
		)).RunWithContext(ctx)
		if err != nil {
			return err
		}

		switch action {
		case actionList:
			err = a.listProjects(ctx, true)
		case actionExport:
			err = a.runExport(ctx, exportRequest{})
		case actionHistory:
			err = a.showHistory(ctx, defaultHistoryLimit)
		default:
			_, _ = fmt.Fprintln(a.out, errorStyle.Bold(true).Render("Goodbye!"))
			return nil
		}

		// Failed projects were already reported in the summary.
		if err != nil && apperrors.CodeOf(err) != apperrors.CodeExport {
			return err
		}
	}
}

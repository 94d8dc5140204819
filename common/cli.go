// SPDX-FileCopyrightText: Copyright (C) 2025 the rcpclient authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package common provides shared utilities for rcpclient CLI tools.
package common

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"charm.land/lipgloss/v2"
	"github.com/carlmjohnson/versioninfo"
	"github.com/charmbracelet/colorprofile"
	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

// usageErrorMarkers are substrings of errors that warrant printing the
// full usage help instead of a bare error message.
var usageErrorMarkers = []string{
	"flag needs an argument:",
	"unknown flag:",
	"unknown shorthand flag:",
	"unknown command",
	"invalid argument",
	"required flag",
	"accepts",
	"arg(s), received",
	"failed to load config file",
	"config:",
}

// ExecuteWithFang executes a cobra command through fang, wiring in the
// build version and the usage-aware error handler.
func ExecuteWithFang(cmd *cobra.Command) {
	err := fang.Execute(
		context.Background(),
		cmd,
		fang.WithVersion(versioninfo.Short()),
		fang.WithErrorHandler(errorHandler(cmd)),
	)
	if err != nil {
		os.Exit(1)
	}
}

func errorHandler(cmd *cobra.Command) fang.ErrorHandler {
	return func(w io.Writer, styles fang.Styles, err error) {
		fmt.Fprintln(w, styles.ErrorHeader.String())
		fmt.Fprintln(w, styles.ErrorText.Render(err.Error()+"."))
		fmt.Fprintln(w)

		if !isUsageError(err) {
			fmt.Fprintln(w, lipgloss.JoinHorizontal(
				lipgloss.Left,
				styles.ErrorText.UnsetWidth().Render("Try"),
				styles.Program.Flag.Render("--help"),
				styles.ErrorText.UnsetWidth().UnsetMargins().UnsetTransform().PaddingLeft(1).Render("for usage."),
			))
			fmt.Fprintln(w)
			return
		}

		if helpFn := cmd.HelpFunc(); helpFn != nil {
			_ = colorprofile.NewWriter(w, nil)
			helpFn(cmd, nil)
		}
	}
}

func isUsageError(err error) bool {
	s := err.Error()
	for _, marker := range usageErrorMarkers {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

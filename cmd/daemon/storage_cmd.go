// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/ManuGH/streamvault/internal/config"
	"github.com/ManuGH/streamvault/internal/store/sqlite"
)

func runStorageCLI(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printStorageUsage(stdout)
		return 0
	}

	switch args[0] {
	case "verify":
		return runStorageVerify(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown subcommand: %s\n\n", args[0])
		printStorageUsage(stderr)
		return 2
	}
}

func printStorageUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  streamvault storage verify [--path PATH] [--mode quick|full]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Without --path the database of the effective configuration is checked.")
}

func runStorageVerify(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("streamvault storage verify", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var path, modeFlag string
	fs.StringVar(&path, "path", "", "path to the SQLite database file")
	fs.StringVar(&modeFlag, "mode", "quick", "verification mode: quick or full")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	mode, err := sqlite.ParseVerifyMode(modeFlag)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	path = strings.TrimSpace(path)
	if path == "" {
		cfg, err := config.Load(resolveConfigPath(""))
		if err != nil {
			fmt.Fprintf(stderr, "Error: no --path given and configuration failed to load: %v\n", err)
			return 2
		}
		path = cfg.Database.Path
	}

	fmt.Fprintf(stderr, "Verifying integrity of %s (mode: %s)...\n", path, mode)
	issues, err := sqlite.VerifyIntegrity(context.Background(), path, mode)
	if err != nil {
		fmt.Fprintf(stderr, "Verification failed: %v\n", err)
		return 1
	}
	if issues != nil {
		fmt.Fprintln(stderr, "Corruption detected:")
		for _, issue := range issues {
			fmt.Fprintf(stderr, "  - %s\n", issue)
		}
		return 1
	}

	fmt.Fprintln(stdout, "Integrity verified: ok")
	return 0
}

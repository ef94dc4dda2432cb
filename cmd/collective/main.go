// Command collective runs and inspects the collective field engine.
//
// Usage:
//
//	collective                      Show help
//	collective watch                Live field monitor over synthetic participants
//	collective replay <file.jsonl>  Replay recorded interactions and print the result
//	collective archive              List archived patterns and field states
//	collective events               JSONL event log viewer
//	collective config               Print the effective configuration
package main

import (
	"fmt"
	"os"
)

const usage = `collective: field engine CLI

Usage:
  collective <command> [flags]

Commands:
  watch       Live field monitor over synthetic participants
  replay      Replay a JSONL file of interactions on a simulated clock
  archive     List archived patterns, type counts and field states
  events      JSONL event log viewer
  config      Print the effective configuration (file + environment)

Environment:
  COLLECTIVE_WINDOW             Window size (e.g. 5m)
  COLLECTIVE_RECOMPUTE_INTERVAL Recompute cadence (e.g. 10s)
  COLLECTIVE_MAX_POINTS         Hard cap on buffered points
  COLLECTIVE_MIN_PARTICIPANTS   Distinct participants a pattern needs
  COLLECTIVE_ARCHIVE            Archive database path (enables the archive)
  COLLECTIVE_TRACE              Set to 1 for debug-level engine events

Run 'collective <command> -h' for command-specific help.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(0)
	}

	cmd := os.Args[1]
	// Strip the program name + subcommand so flag sets see only their flags
	os.Args = os.Args[1:]

	switch cmd {
	case "watch":
		runWatch()
	case "replay":
		runReplay()
	case "archive":
		runArchive()
	case "events":
		runEvents()
	case "config":
		runConfig()
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "collective: unknown command %q\n\n", cmd)
		fmt.Print(usage)
		os.Exit(1)
	}
}

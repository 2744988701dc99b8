package main

import (
	"fmt"
	"os"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		showHelp()
		os.Exit(0)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	if cmd != "upgrade" {
		startUpdateCheck()
		defer printUpdateNotice()
	}

	switch cmd {
	case "-h", "--help", "help":
		showHelp()
	case "-v", "--version", "version":
		fmt.Printf("udktest v%s\n", version)
	case "init":
		cmdInit(args)
	case "run":
		cmdRun(args)
	case "status":
		cmdStatus(args)
	case "clean":
		cmdClean(args)
	case "ps":
		cmdPs(args)
	case "doctor":
		cmdDoctor(args)
	case "logs":
		cmdLogs(args)
	case "upgrade":
		cmdUpgrade(args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprintln(os.Stderr, "Run 'udktest --help' for usage.")
		os.Exit(1)
	}
}

func showHelp() {
	fmt.Printf(`udktest v%s - Unattended UnrealScript build and test runner

Usage: udktest <command> [options]

Commands:
  init [--force]       Write udktest.config.json and create .udktest/
  run                  Fetch UDK-Lite, build the test package and run it
                       (--timeout N, --tag TAG, --echo)
  status               Show cache, inputs and last run
  clean [--hard]       Remove extracted engine files (--hard: whole cache)
  ps [--kill]          List (or kill) running engine processes
  logs                 View run logs (--list, --summary, --follow, etc.)
  doctor               Check the udktest environment
  upgrade [--check]    Upgrade udktest to the latest version

Options:
  -h, --help           Show this help message
  -v, --version        Show version number

Environment:
  UDK_TEST_TIMEOUT       Seconds to wait for each phase (default 300)
  UDK_LITE_TAG           UDK-Lite release tag (default 1.0.1)
  UDK_LITE_ROOT          Where UDK-Lite is extracted (default ./UDK-Lite/)
  UDK_LITE_RELEASE_URL   Archive URL, {tag} is substituted
  USCRIPT_MESSAGE_FILES  Glob of generated script files
  Values may also be set in a .env file at the project root.

File Structure:
  udktest.config.json           # Project configuration
  .udktest/
    cache/                      # Downloaded archive and .cache.json
    logs/run-001.jsonl          # Run logs
    udktest.lock                # Held while a run is active
`, version)
}

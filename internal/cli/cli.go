// Package cli parses the daemon's command line: [-d level] [-m mask]
// [-p port] <config-path>, following cmd/direttampd's flag.String/
// flag.Int package-level-var pattern, generalized into a FlagSet so it
// can be exercised without touching the process-global flag.CommandLine.
// Sophistication beyond this (subcommands, config files, env binding)
// is explicitly out of scope.
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/nkossifidis/audioscheduler/internal/logging"
)

// ErrNoConfigPath is returned by Parse when the positional <config-path>
// argument is missing. Unlike other parse failures, a caller should treat
// this as "print usage" rather than a fatal error (main.c:75-78 prints the
// usage string and returns 0 in this case, reserving non-zero exit codes
// for actual startup failures).
var ErrNoConfigPath = errors.New("cli: missing required <config-path> argument")

const usageFormat = "Usage: %s [-d debug_level] [-m debug_mask] [-p port] <config_file>\n"

// PrintUsage writes the usage line to w, naming prog as the invoked
// program (typically os.Args[0]).
func PrintUsage(w io.Writer, prog string) {
	fmt.Fprintf(w, usageFormat, prog)
}

// Options holds the parsed command line.
type Options struct {
	Level      logging.Level
	Mask       uint32
	Port       int
	ConfigPath string
}

// Parse parses args (typically os.Args[1:]) into Options. level ranges
// 0 (silent) through 4 (debug); mask is a hex facility bitmask (0
// disables all debug facilities); port is the metadata endpoint's TCP
// port, defaulting to 9670.
func Parse(args []string) (*Options, error) {
	fs := flag.NewFlagSet("audioscheduler", flag.ContinueOnError)
	level := fs.Int("d", int(logging.LevelWarn), "log level: 0=silent 1=error 2=warn 3=info 4=debug")
	mask := fs.String("m", "0", "facility mask (hex); 0 disables all debug facilities")
	port := fs.Int("p", 9670, "metadata endpoint TCP port")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *level < int(logging.LevelSilent) || *level > int(logging.LevelDebug) {
		return nil, fmt.Errorf("cli: -d %d out of range [%d,%d]", *level, logging.LevelSilent, logging.LevelDebug)
	}

	var maskVal uint32
	if _, err := fmt.Sscanf(*mask, "%x", &maskVal); err != nil {
		return nil, fmt.Errorf("cli: invalid -m mask %q: %w", *mask, err)
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return nil, ErrNoConfigPath
	}
	if len(rest) != 1 {
		return nil, fmt.Errorf("cli: expected exactly one config path argument, got %d", len(rest))
	}

	return &Options{
		Level:      logging.Level(*level),
		Mask:       maskVal,
		Port:       *port,
		ConfigPath: rest[0],
	}, nil
}

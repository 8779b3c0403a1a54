package main

import (
	"bufio"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/docopt/docopt-go"
	"github.com/pkg/errors"

	"github.com/nlowe/bkarchive/crypto"
	"github.com/nlowe/bkarchive/file"
)

// OutputType selects which consumer.FrameConsumer backend a run uses.
type OutputType string

const (
	OutputNone OutputType = "none"
	OutputRaw  OutputType = "raw"
	OutputCSV  OutputType = "csv"
)

// ErrConfigError covers any malformed command-line input: an unknown
// output-type/log-level value, a password that isn't 30 digits, or a missing
// password source. Grounded on original_source/src/args.rs's Config::new.
var ErrConfigError = errors.New("config error")

// Config is the fully-resolved set of options for a single run, parsed from
// the command line the way original_source/src/args.rs's Config::new does.
type Config struct {
	InputPath  string
	OutputPath string
	OutputType OutputType
	LogLevel   string

	Force      bool
	VerifyMAC  bool
	InMemoryDB bool

	Password []byte
}

var usage = `bkarchive - decrypt an encrypted messenger backup archive.

Usage:
  bkarchive <input> [-o FOLDER] [-t TYPE] [-v LEVEL] [-f] [--no-verify-mac] [--no-in-memory-db] -p SECRET
  bkarchive <input> [-o FOLDER] [-t TYPE] [-v LEVEL] [-f] [--no-verify-mac] [--no-in-memory-db] --password-file FILE
  bkarchive <input> [-o FOLDER] [-t TYPE] [-v LEVEL] [-f] [--no-verify-mac] [--no-in-memory-db] --password-command CMD
  bkarchive -h | --help
  bkarchive --version

Options:
  -o FOLDER, --output-path FOLDER      Directory to save output to. Defaults to the input file's name.
  -t TYPE, --output-type TYPE          Output type: raw, csv or none. [default: raw]
  -v LEVEL, --verbosity LEVEL          Log level: debug, info, warn or error. [default: info]
  -f, --force                          Overwrite an existing output path.
  --no-verify-mac                      Do not verify the HMAC of each frame.
  --no-in-memory-db                    Build the raw sqlite database directly on disk instead of in memory.
  -p SECRET, --password SECRET         Backup password (30 digits, spaces allowed).
  --password-file FILE                 File to read the backup password's first line from.
  --password-command CMD               Shell command whose stdout's first line is the backup password.
  -h, --help                           Show this screen.
  --version                            Show version.`

// ParseConfig parses argv (typically os.Args[1:]) into a Config, applying the
// same defaulting and validation as original_source/src/args.rs's Config::new.
func ParseConfig(argv []string) (*Config, error) {
	args, err := docopt.Parse(usage, argv, true, buildTag, false)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		InputPath:  args["<input>"].(string),
		Force:      args["--force"].(bool),
		VerifyMAC:  !args["--no-verify-mac"].(bool),
		InMemoryDB: !args["--no-in-memory-db"].(bool),
	}

	if v, ok := args["--output-path"].(string); ok {
		cfg.OutputPath = file.CleanPath(v)
	} else {
		stem := strings.TrimSuffix(filepath.Base(cfg.InputPath), filepath.Ext(cfg.InputPath))
		if stem == "" {
			return nil, errors.Wrap(ErrConfigError, "could not determine output path from input file")
		}
		cfg.OutputPath = stem
	}

	outputType := "raw"
	if v, ok := args["--output-type"].(string); ok {
		outputType = v
	}
	switch strings.ToLower(outputType) {
	case "none":
		cfg.OutputType = OutputNone
	case "raw":
		cfg.OutputType = OutputRaw
	case "csv":
		cfg.OutputType = OutputCSV
	default:
		return nil, errors.Wrapf(ErrConfigError, "unknown output type %q", outputType)
	}

	logLevel := "info"
	if v, ok := args["--verbosity"].(string); ok {
		logLevel = v
	}
	switch strings.ToLower(logLevel) {
	case "debug", "info", "warn", "error":
		cfg.LogLevel = strings.ToLower(logLevel)
	default:
		return nil, errors.Wrapf(ErrConfigError, "unknown log level %q", logLevel)
	}

	password, err := resolvePassword(args)
	if err != nil {
		return nil, err
	}
	cfg.Password = password

	return cfg, nil
}

// resolvePassword implements the three mutually-exclusive password sources
// from original_source/src/args.rs: a literal string, the first line of a
// file, or the first line of a shell command's stdout. The result is
// filtered down to digits and must be exactly 30 characters long.
func resolvePassword(args map[string]interface{}) ([]byte, error) {
	var raw string

	switch {
	case argString(args, "--password") != "":
		raw = argString(args, "--password")
	case argString(args, "--password-file") != "":
		path := argString(args, "--password-file")
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrap(err, "config: open password file")
		}
		defer f.Close()

		line, err := firstLine(f)
		if err != nil {
			return nil, errors.Wrap(err, "config: read password file")
		}
		raw = line
	case argString(args, "--password-command") != "":
		cmd := argString(args, "--password-command")
		shell := os.Getenv("SHELL")
		if shell == "" {
			return nil, errors.Wrap(ErrConfigError, "could not determine current shell ($SHELL unset)")
		}

		out, err := exec.Command(shell, "-c", cmd).Output()
		if err != nil {
			return nil, errors.Wrap(err, "config: run password command")
		}
		line, err := firstLine(strings.NewReader(string(out)))
		if err != nil {
			return nil, errors.Wrap(err, "config: password command produced no output")
		}
		raw = line
	default:
		return nil, errors.Wrap(ErrConfigError, "no password provided")
	}

	digits := []byte(filterDigits(raw))
	if err := crypto.ValidatePassphrase(digits); err != nil {
		return nil, errors.Wrap(ErrConfigError, "wrong password length (30 numeric characters are expected)")
	}
	return digits, nil
}

func argString(args map[string]interface{}, key string) string {
	v, ok := args[key].(string)
	if !ok {
		return ""
	}
	return v
}

func firstLine(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", errors.New("config: empty input")
	}
	return scanner.Text(), nil
}

func filterDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

package config

import (
	"io"
	"log/slog"
	"os"
)

// logMode is the output mode the logger has to coexist with.
type logMode string

const (
	logModeTUI    logMode = "tui"    // alternate screen owns the terminal
	logModeJSON   logMode = "json"   // snapshots on stdout
	logModeReport logMode = "report" // one table at the end
	logModeText   logMode = "text"   // table on stdout, redrawn on a terminal
)

func modeFor(args Args) logMode {
	switch {
	case args.TUI:
		return logModeTUI
	case args.Json:
		return logModeJSON
	case args.Report:
		return logModeReport
	default:
		return logModeText
	}
}

// logWriter picks where log records go. file may be nil.
//
// JSON mode keeps stdout clean for snapshots and logs to stderr as well as
// the file. The table modes log to the file alone when there is one, so that
// records do not end up between table rows. The TUI never writes logs to the
// terminal.
func logWriter(mode logMode, file io.Writer) io.Writer {
	switch mode {
	case logModeTUI:
		if file == nil {
			return io.Discard
		}
		return file
	case logModeJSON:
		if file == nil {
			return os.Stderr
		}
		return io.MultiWriter(file, os.Stderr)
	case logModeReport, logModeText:
		if file == nil {
			return os.Stderr
		}
		return file
	}
	return os.Stderr
}

// SetupLogging configures the global slog logger based on args
// Returns the log file handle (caller must close it) or nil if no file
func SetupLogging(args Args) (*os.File, error) {
	mode := modeFor(args)

	var logFile *os.File
	var file io.Writer
	if args.Log != "" {
		f, err := os.OpenFile(args.Log, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, err
		}
		logFile = f
		file = f
	}

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(args.LogLevel),
	}
	if opts.Level == slog.LevelDebug {
		opts.AddSource = true
	}

	output := logWriter(mode, file)

	var handler slog.Handler
	if mode == logModeJSON {
		// JSON mode gets JSON-formatted logs
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	slog.SetDefault(slog.New(handler).With("mode", string(mode)))

	return logFile, nil
}

// parseLogLevel converts string to slog.Level
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

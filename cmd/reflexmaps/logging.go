package main

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/reflexmaps/internal/client/config"
	"github.com/openmined/reflexmaps/internal/utils"
	"gopkg.in/natefinch/lumberjack.v2"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// setupLogger installs the default slog logger: tinted output on stderr, plus a
// rotated plain-text file when cfg.LogFile is set.
func setupLogger(cfg *config.Config, stderr io.Writer) (io.Closer, error) {
	level := parseLevel(cfg.LogLevel)

	noColor := true
	if f, ok := stderr.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())
	}
	consoleHandler := tint.NewHandler(stderr, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    noColor,
	})

	if cfg.LogFile == "" {
		slog.SetDefault(slog.New(consoleHandler))
		return nopCloser{}, nil
	}

	logFile, err := utils.ResolvePath(cfg.LogFile)
	if err != nil {
		return nil, err
	}
	if err := utils.EnsureParent(logFile); err != nil {
		return nil, err
	}

	rotated := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}
	interceptor := utils.NewLogInterceptor(rotated)
	fileHandler := slog.NewTextHandler(interceptor, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		// Do not include time as it is added by the log interceptor.
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	})

	slog.SetDefault(slog.New(utils.NewMultiLogHandler(consoleHandler, fileHandler)))
	return interceptor, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

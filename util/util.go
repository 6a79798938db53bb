package util

import (
	"fmt"
	"io"
	"os"
	"path"

	"github.com/juju/loggo"
	"github.com/pkg/errors"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"knx-ev-bridge/config"
)

// GetLoggingWriter returns a new io.Writer suitable for logging.
func GetLoggingWriter(cfg *config.Config) (io.Writer, error) {
	var writer io.Writer = os.Stdout
	if cfg.LogFile != "" {
		dirname := path.Dir(cfg.LogFile)
		if _, err := os.Stat(dirname); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to create log folder")
			}
			if err := os.MkdirAll(dirname, 0o711); err != nil {
				return nil, fmt.Errorf("failed to create log folder")
			}
		}
		writer = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    5, // megabytes
			MaxBackups: 2,
			MaxAge:     28, //days
			Compress:   false,
		}
	}
	return writer, nil
}

// SetupLogging points the default loggo writer at the configured log file
// and applies the configured level to all module loggers.
func SetupLogging(cfg *config.Config) error {
	writer, err := GetLoggingWriter(cfg)
	if err != nil {
		return errors.Wrap(err, "getting log writer")
	}

	if _, err := loggo.ReplaceDefaultWriter(loggo.NewSimpleWriter(writer, loggo.DefaultFormatter)); err != nil {
		return errors.Wrap(err, "replacing log writer")
	}

	level := "INFO"
	switch cfg.LogLevel {
	case config.Trace:
		level = "TRACE"
	case config.Debug:
		level = "DEBUG"
	case config.Info:
		level = "INFO"
	case config.Warning:
		level = "WARNING"
	}
	if err := loggo.ConfigureLoggers(fmt.Sprintf("<root>=%s", level)); err != nil {
		return errors.Wrap(err, "configuring loggers")
	}
	return nil
}

package main

import (
	"io"
	"os"

	"github.com/xnumon-go/procmon/internal/config"
	"github.com/xnumon-go/procmon/internal/log"
	"github.com/xnumon-go/procmon/internal/procmon"
	"github.com/xnumon-go/procmon/internal/sink"
	"github.com/xnumon-go/procmon/internal/sysinspect"
)

func parseLevel(s string) log.Level {
	switch s {
	case "DEBUG":
		return log.DEBUG
	case "INFO":
		return log.INFO
	case "WARN":
		return log.WARN
	case "ERROR":
		return log.ERROR
	case "CRITICAL":
		return log.CRITICAL
	default:
		return log.INFO
	}
}

func openLogWriter(path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return os.Stderr, func() error { return nil }, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func buildLogger() (*log.Logger, func() error, error) {
	w, closer, err := openLogWriter(logPath)
	if err != nil {
		return nil, nil, err
	}
	l := log.New(w)
	l.SetLevel(parseLevel(logLevel))
	return l, closer, nil
}

// buildMonitor loads cfgPath and constructs a Monitor wired to sk and a
// real sysinspect.Inspector.
func buildMonitor(logger *log.Logger, sk sink.Sink) (*procmon.Monitor, error) {
	fc, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	m := procmon.New(procmon.Options{
		Config:    fc.ToCore(),
		Sink:      sk,
		Logger:    logger,
		Inspector: sysinspect.GopsutilInspector{},
	})
	return m, nil
}

package main

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation limits for the optional log file.
const (
	logMaxSizeMB  = 10
	logMaxBackups = 3
	logMaxAgeDays = 28
)

// newLogger returns the session logger. It always writes to stderr and,
// when path is set, to a rotating log file as well. The prefix sits right
// before the message so lines read "<time> [retags] <message>".
func newLogger(path string) (*log.Logger, io.Closer) {
	if path == "" {
		return log.New(os.Stderr, "[retags] ", log.LstdFlags|log.Lmsgprefix), nopCloser{}
	}

	file := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    logMaxSizeMB,
		MaxBackups: logMaxBackups,
		MaxAge:     logMaxAgeDays,
	}
	return log.New(io.MultiWriter(os.Stderr, file), "[retags] ", log.LstdFlags|log.Lmsgprefix), file
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Package logging builds the renderer's zerolog logger. Besides the console
// it can keep a vk.log file in the game directory, which is where the
// per-frame trace goes when frame logging is switched on.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/q2vk/qvk/config"
)

const FileName = "vk.log"

type Log struct {
	zerolog.Logger

	file  *os.File
	// trace is the per-frame logger, writing to vk.log only.
	trace *zerolog.Logger
}

// New writes human readable output to out and, when cfg.Log is set, JSON
// lines to <gamedir>/vk.log.
func New(cfg config.VkConfig, gamedir string, out io.Writer) (*Log, error) {
	level := zerolog.InfoLevel
	if cfg.LogLevel != "" {
		var err error
		level, err = zerolog.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, errors.Wrapf(err, "log level %q", cfg.LogLevel)
		}
	}

	l := &Log{}
	session := uuid.NewString()
	var w io.Writer = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}

	if cfg.Log {
		path := filepath.Join(gamedir, FileName)
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return nil, errors.Wrap(err, "open vulkan log")
		}
		if _, err := fmt.Fprintf(file, "%s\n", time.Now().Format(time.ANSIC)); err != nil {
			file.Close()
			return nil, errors.Wrap(err, "write vulkan log header")
		}
		l.file = file
		w = zerolog.MultiLevelWriter(w, file)

		if cfg.LogFrames {
			trace := zerolog.New(file).With().Timestamp().Str("session", session).Logger()
			l.trace = &trace
		}
	}

	l.Logger = zerolog.New(w).Level(level).With().
		Timestamp().
		Str("session", session).
		Logger()
	return l, nil
}

// Nop discards everything.
func Nop() *Log {
	return &Log{Logger: zerolog.Nop()}
}

// NewFrame marks the start of a frame in vk.log. It does nothing unless
// both the file and frame logging are on.
func (l *Log) NewFrame(frame uint64) {
	if l.trace == nil {
		return
	}
	l.trace.Log().Uint64("frame", frame).Msg("*** begin frame ***")
}

func (l *Log) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.trace = nil
	return err
}

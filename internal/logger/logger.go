package logger

import (
	"github.com/rs/zerolog"
	"io"
	"os"
	"strings"
	"time"
)

type Logger struct{ zerolog.Logger }

func New(level string) *Logger {
	return NewWithWriter(os.Stdout, level)
}

func NewWithWriter(w io.Writer, level string) *Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339
	z := zerolog.New(w).With().Timestamp().Logger().Level(lvl)
	return &Logger{z}
}

// Nop discards everything; used by tests and one-shot commands.
func Nop() *Logger {
	return &Logger{zerolog.Nop()}
}

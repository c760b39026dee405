package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var base = zerolog.New(os.Stdout).With().Timestamp().Logger()

// Init configures the process-wide logger. Unknown levels fall back to info.
func Init(level string, pretty bool) {
	var out io.Writer = os.Stdout
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	base = zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// Component returns a structured logger tagged with the component name.
func Component(name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}

func Info(format string, v ...interface{}) {
	base.Info().Msgf(format, v...)
}

func Error(format string, v ...interface{}) {
	base.Error().Msgf(format, v...)
}

func Debug(format string, v ...interface{}) {
	base.Debug().Msgf(format, v...)
}

func Warn(format string, v ...interface{}) {
	base.Warn().Msgf(format, v...)
}

// Fatal logs and exits the process.
func Fatal(format string, v ...interface{}) {
	base.Fatal().Msgf(format, v...)
}

// LogConversationError records a failed conversation-level action without
// interrupting the caller.
func LogConversationError(conversationID, action string, err error) {
	base.Warn().
		Str("conversation_id", conversationID).
		Str("action", action).
		Err(err).
		Msg("conversation action failed")
}

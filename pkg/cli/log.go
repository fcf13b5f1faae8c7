package cli

import (
	"io"
	"log/slog"

	"github.com/lmittmann/tint"
)

// NewLogger returns a colored slog logger writing to w. Verbose enables
// debug records.
func NewLogger(w io.Writer, verbose, noColor bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    noColor,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Value.Kind() == slog.KindAny {
				if _, ok := a.Value.Any().(error); ok {
					return tint.Attr(9, a)
				}
			}
			return a
		},
	}))
}

// Package logging configures the process-wide jwalterweatherman thresholds.
package logging

import (
	"strings"

	jww "github.com/spf13/jwalterweatherman"
)

var levels = map[string]jww.Threshold{
	"trace": jww.LevelTrace,
	"debug": jww.LevelDebug,
	"info":  jww.LevelInfo,
	"warn":  jww.LevelWarn,
	"error": jww.LevelError,
	"fatal": jww.LevelFatal,
}

// Setup sets the stdout threshold from a level name. Unknown names fall back
// to info and the fallback is logged.
func Setup(level string) jww.Threshold {
	th, ok := levels[strings.ToLower(strings.TrimSpace(level))]
	if !ok {
		th = jww.LevelInfo
	}
	jww.SetStdoutThreshold(th)
	jww.SetLogThreshold(th)
	if !ok && level != "" {
		jww.WARN.Printf("[logging] unknown LOG_LEVEL %q, using info", level)
	}
	return th
}

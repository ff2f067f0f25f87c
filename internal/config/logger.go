package config

import (
    "os"
    "strings"

    "github.com/labstack/gommon/log"
)

// NewLogger returns the process logger.  level is one of debug, info,
// warn, error or off; anything else means info.
func NewLogger(prefix, level string) *log.Logger {
    l := log.New(prefix)
    l.SetOutput(os.Stderr)
    l.SetHeader(`${time_rfc3339} ${level} ${prefix}`)
    l.SetLevel(ParseLevel(level))
    return l
}

// ParseLevel maps a level name onto gommon's levels.
func ParseLevel(level string) log.Lvl {
    switch strings.ToLower(strings.TrimSpace(level)) {
    case "debug":
        return log.DEBUG
    case "warn", "warning":
        return log.WARN
    case "error":
        return log.ERROR
    case "off":
        return log.OFF
    }
    return log.INFO
}

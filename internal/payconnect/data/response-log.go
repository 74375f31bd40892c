package data

import (
	"strings"
	"time"
)

const logSeparator = "\n"

// LogEntry formats one line of an order's response log.
func LogEntry(at time.Time, source string, body string) string {
	return at.UTC().Format(time.RFC3339) + " " + source + ": " + strings.TrimSpace(body)
}

// AppendLog adds entry to an existing log without touching earlier entries.
func AppendLog(log string, entry string) string {
	if log == "" {
		return entry
	}
	return log + logSeparator + entry
}

func LogEntries(log string) []string {
	if log == "" {
		return nil
	}
	return strings.Split(log, logSeparator)
}

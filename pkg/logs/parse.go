package logs

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hackstack/hack/pkg/types"
)

// levelPattern matches well-known severity tokens in plain-text payloads.
var levelPattern = regexp.MustCompile(`(?i)\b(TRACE|DEBUG|INFO|WARN|WARNING|ERROR|FATAL|PANIC)\b`)

// serviceOrdinal splits a compose container name like "api-2" into its
// service and instance ordinal.
var serviceOrdinal = regexp.MustCompile(`^(.*)-(\d+)$`)

// SplitComposeLine splits a compose logs line at the first pipe delimiter
// into its container-name prefix and payload. Lines without a delimiter
// (compose's own notices) report ok=false.
func SplitComposeLine(line string) (service, instance, payload string, ok bool) {
	idx := strings.Index(line, "|")
	if idx < 0 {
		return "", "", "", false
	}
	name := strings.TrimSpace(line[:idx])
	payload = strings.TrimPrefix(line[idx+1:], " ")
	if name == "" {
		return "", "", "", false
	}

	if m := serviceOrdinal.FindStringSubmatch(name); m != nil {
		return m[1], m[2], payload, true
	}
	return name, "", payload, true
}

// stripTimestamp removes a leading RFC3339 timestamp from payload, as
// produced by the runtime's --timestamps flag.
func stripTimestamp(payload string) (*time.Time, string) {
	fields := strings.SplitN(payload, " ", 2)
	if len(fields) == 0 {
		return nil, payload
	}
	ts, err := time.Parse(time.RFC3339Nano, fields[0])
	if err != nil {
		return nil, payload
	}
	rest := ""
	if len(fields) == 2 {
		rest = fields[1]
	}
	return &ts, rest
}

// Normalize converts one raw payload into a canonical entry. JSON object
// payloads contribute level, message and residual primitive fields; plain
// text falls back to token matching with info as the default level.
func Normalize(source types.LogSource, service, instance, stream, payload string) types.LogEntry {
	entry := types.LogEntry{
		Source:   source,
		Service:  service,
		Instance: instance,
		Stream:   stream,
		Raw:      payload,
	}

	ts, rest := stripTimestamp(payload)
	entry.Timestamp = ts

	if parseJSONPayload(rest, &entry) {
		return entry
	}

	entry.Message = rest
	entry.Level = inferLevel(rest)
	return entry
}

// parseJSONPayload extracts structured fields from a JSON object payload.
// Non-object payloads (arrays, scalars, plain text) report false.
func parseJSONPayload(payload string, entry *types.LogEntry) bool {
	trimmed := strings.TrimSpace(payload)
	if !strings.HasPrefix(trimmed, "{") {
		return false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return false
	}

	entry.Level = types.LevelInfo
	fields := make(map[string]string)
	for key, value := range obj {
		switch key {
		case "level", "lvl", "severity":
			entry.Level = parseLevel(value)
		case "msg", "message":
			if s, ok := value.(string); ok {
				entry.Message = s
			}
		case "time", "ts", "timestamp":
			if entry.Timestamp == nil {
				if s, ok := value.(string); ok {
					if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
						entry.Timestamp = &ts
					}
				}
			}
		default:
			if s, ok := primitiveString(value); ok {
				fields[key] = s
			}
		}
	}
	if len(fields) > 0 {
		entry.Fields = fields
	}
	return true
}

// parseLevel normalizes a JSON level value. Numeric severities follow the
// common convention: at least 50 is error, 40 warn, 30 info, below that
// debug.
func parseLevel(value any) types.LogLevel {
	switch v := value.(type) {
	case string:
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return numericLevel(n)
		}
		return tokenLevel(v)
	case float64:
		return numericLevel(v)
	default:
		return types.LevelInfo
	}
}

func numericLevel(n float64) types.LogLevel {
	switch {
	case n >= 50:
		return types.LevelError
	case n >= 40:
		return types.LevelWarn
	case n >= 30:
		return types.LevelInfo
	default:
		return types.LevelDebug
	}
}

func tokenLevel(token string) types.LogLevel {
	switch strings.ToLower(token) {
	case "trace", "debug":
		return types.LevelDebug
	case "warn", "warning":
		return types.LevelWarn
	case "error", "fatal", "panic":
		return types.LevelError
	default:
		return types.LevelInfo
	}
}

// inferLevel scans a plain-text payload for a severity token.
func inferLevel(payload string) types.LogLevel {
	m := levelPattern.FindString(payload)
	if m == "" {
		return types.LevelInfo
	}
	return tokenLevel(m)
}

func primitiveString(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10), true
		}
		return fmt.Sprintf("%g", v), true
	default:
		return "", false
	}
}

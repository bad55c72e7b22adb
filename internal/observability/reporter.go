package observability

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"atrocitee/internal/metrics"

	"github.com/rs/zerolog"
)

const redacted = "[REDACTED]"

var (
	sensitiveKey    = regexp.MustCompile(`(?i)(key|secret|token|password|authorization|signature)`)
	bearerPattern   = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._\-]+`)
	assignedPattern = regexp.MustCompile(`(?i)((?:api[_-]?key|secret|token|password)\s*[=:]\s*)[^\s&,"]+`)
)

// Reporter receives every provider failure and every fatal sync or order
// failure, tagged with the originating operation and identifiers.
type Reporter interface {
	Report(ctx context.Context, operation string, err error, tags map[string]string)
}

// LogReporter writes reports through zerolog and counts them in Prometheus.
type LogReporter struct {
	logger zerolog.Logger
}

func NewLogReporter(logger *zerolog.Logger) *LogReporter {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "observability").Logger()
	}
	return &LogReporter{logger: l}
}

func (r *LogReporter) Report(ctx context.Context, operation string, err error, tags map[string]string) {
	if err == nil {
		return
	}
	metrics.IncReportedError(operation)

	ev := r.logger.Error().
		Str("operation", operation).
		Str("error", RedactMessage(err.Error()))

	clean := RedactTags(tags)
	keys := make([]string, 0, len(clean))
	for k := range clean {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ev = ev.Str(k, clean[k])
	}
	ev.Msg("reported failure")
}

// RedactTags returns a copy of tags with credential-like values masked.
func RedactTags(tags map[string]string) map[string]string {
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		if sensitiveKey.MatchString(k) {
			out[k] = redacted
			continue
		}
		out[k] = RedactMessage(v)
	}
	return out
}

// RedactMessage masks bearer tokens and key=value credentials inside free text.
func RedactMessage(msg string) string {
	msg = bearerPattern.ReplaceAllString(msg, "Bearer "+redacted)
	return assignedPattern.ReplaceAllString(msg, "${1}"+redacted)
}

// Nop discards reports.
type Nop struct{}

func (Nop) Report(context.Context, string, error, map[string]string) {}

// OrNop substitutes a discarding reporter for nil.
func OrNop(r Reporter) Reporter {
	if r == nil {
		return Nop{}
	}
	return r
}

// Tags builds a tag map from alternating key/value pairs, skipping empty values.
func Tags(kv ...string) map[string]string {
	out := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if strings.TrimSpace(kv[i+1]) == "" {
			continue
		}
		out[kv[i]] = kv[i+1]
	}
	return out
}

package protocol

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// maxEpochSeconds is 9999-12-31T23:59:59Z.
const maxEpochSeconds = 253402300799

// Unset is the value given to timestamp fields holding a sentinel.
const Unset = "unset"

// PostRule transforms fields whose name ends with Suffix.
type PostRule struct {
	Suffix    string
	Transform func(Field) Field
}

// PostProcessor applies suffix rules by field name. The first matching rule
// wins.
type PostProcessor struct {
	rules []PostRule
}

// DefaultTimestampSuffixes name the epoch-seconds fields.
var DefaultTimestampSuffixes = []string{"_time", "_ts"}

// NewPostProcessor builds a processor from rules.
func NewPostProcessor(rules ...PostRule) *PostProcessor {
	return &PostProcessor{rules: append([]PostRule(nil), rules...)}
}

// TimestampProcessor parses fields ending in any of suffixes as epoch seconds.
func TimestampProcessor(suffixes []string) *PostProcessor {
	rules := make([]PostRule, 0, len(suffixes))
	for _, s := range suffixes {
		rules = append(rules, PostRule{Suffix: s, Transform: EpochSeconds})
	}
	return NewPostProcessor(rules...)
}

var defaultPost = TimestampProcessor(DefaultTimestampSuffixes)

// DefaultPostProcessor handles the default timestamp suffixes.
func DefaultPostProcessor() *PostProcessor {
	return defaultPost
}

// Apply transforms fields in place and returns them.
func (p *PostProcessor) Apply(fields []Field) []Field {
	for i, f := range fields {
		if f.Undecoded {
			continue
		}
		for _, rule := range p.rules {
			if strings.HasSuffix(f.Name, rule.Suffix) {
				fields[i] = rule.Transform(f)
				break
			}
		}
	}
	return fields
}

// EpochSeconds interprets a field as decimal seconds since the epoch, for
// example "1700000000.25". Sentinels "", "0" and "-1" become Unset. Text
// that is not a finite number is kept and flagged Fallback.
func EpochSeconds(f Field) Field {
	var text string
	switch v := f.Value.(type) {
	case uint64:
		text = strconv.FormatUint(v, 10)
	case int64:
		text = strconv.FormatInt(v, 10)
	case string:
		text = strings.TrimSpace(v)
	case nil:
		text = ""
	default:
		f.Fallback = true
		return f
	}
	switch text {
	case "", "0", "-1":
		f.Value = Unset
		f.Display = Unset
		return f
	}
	secs, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(secs) || math.Abs(secs) > maxEpochSeconds || strings.ContainsAny(text, "xXpP_") {
		f.Value = text
		f.Display = text
		f.Fallback = true
		return f
	}
	whole, frac := math.Modf(secs)
	ts := time.Unix(int64(whole), int64(math.Round(frac*1e9))).UTC()
	f.Value = ts
	f.Display = ts.Format(time.RFC3339Nano)
	return f
}

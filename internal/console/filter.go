package console

import (
	"fmt"
	"regexp"
	"strings"
)

// Filter types accepted by NewOutputFilter
const (
	FilterNone   = "none"
	FilterErrors = "errors"
	FilterChat   = "chat"
	FilterSearch = "search"
	FilterRegex  = "regex"
)

// Line is one parsed server log line, e.g.
// "[12:04:31] [Server thread/INFO]: Done (3.2s)! For help, type "help""
type Line struct {
	Raw     string `json:"raw"`
	Time    string `json:"time,omitempty"`
	Thread  string `json:"thread,omitempty"`
	Level   string `json:"level,omitempty"`
	Message string `json:"message"`
}

var linePattern = regexp.MustCompile(`^\[([0-9:.]+)\] \[([^\]]+)/([A-Z]+)\]:? ?(.*)$`)

// chat lines look like "<Steve> hello"
var chatPattern = regexp.MustCompile(`^(\[Not Secure\] )?<[^>]+> `)

// ParseLine splits a log line into its header and message. Lines without the
// usual header keep the whole text as the message.
func ParseLine(raw string) Line {
	raw = strings.TrimRight(raw, "\r\n")
	m := linePattern.FindStringSubmatch(raw)
	if m == nil {
		return Line{Raw: raw, Message: raw}
	}
	return Line{Raw: raw, Time: m[1], Thread: m[2], Level: m[3], Message: m[4]}
}

// OutputFilter filters console output based on criteria
type OutputFilter struct {
	FilterType    string
	Pattern       string
	CaseSensitive bool
	regex         *regexp.Regexp
}

// FilterResult represents the result of filtering a line
type FilterResult struct {
	Include   bool
	Highlight []int // start/end of the match
}

var errorKeywords = []string{
	"error",
	"exception",
	"fatal",
	"warn",
	"failed",
	"can't keep up",
}

// NewOutputFilter creates a new output filter. An empty type means none.
func NewOutputFilter(filterType, pattern string, caseSensitive bool) (*OutputFilter, error) {
	if filterType == "" {
		filterType = FilterNone
	}
	filter := &OutputFilter{
		FilterType:    filterType,
		Pattern:       pattern,
		CaseSensitive: caseSensitive,
	}

	switch filterType {
	case FilterNone, FilterErrors, FilterChat, FilterSearch:
	case FilterRegex:
		if pattern == "" {
			break
		}
		flags := ""
		if !caseSensitive {
			flags = "(?i)"
		}
		compiled, err := regexp.Compile(flags + pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
		filter.regex = compiled
	default:
		return nil, fmt.Errorf("unknown filter type %q", filterType)
	}

	return filter, nil
}

// Filter applies the filter to a line of output
func (f *OutputFilter) Filter(raw string) FilterResult {
	result := FilterResult{Include: true, Highlight: []int{}}

	switch f.FilterType {
	case FilterErrors:
		line := ParseLine(raw)
		switch line.Level {
		case "WARN", "ERROR", "FATAL":
			return result
		}
		result.Include = false
		lower := strings.ToLower(line.Message)
		for _, keyword := range errorKeywords {
			if idx := strings.Index(lower, keyword); idx >= 0 {
				offset := len(raw) - len(line.Message)
				result.Include = true
				result.Highlight = []int{offset + idx, offset + idx + len(keyword)}
				break
			}
		}

	case FilterChat:
		line := ParseLine(raw)
		result.Include = chatPattern.MatchString(line.Message)

	case FilterSearch:
		if f.Pattern == "" {
			return result
		}
		haystack, needle := raw, f.Pattern
		if !f.CaseSensitive {
			haystack = strings.ToLower(raw)
			needle = strings.ToLower(f.Pattern)
		}
		idx := strings.Index(haystack, needle)
		result.Include = idx >= 0
		if result.Include {
			result.Highlight = []int{idx, idx + len(needle)}
		}

	case FilterRegex:
		if f.regex == nil {
			return result
		}
		if match := f.regex.FindStringIndex(raw); match != nil {
			result.Highlight = match
		} else {
			result.Include = false
		}
	}

	return result
}

// FilterLines applies the filter to multiple lines
func (f *OutputFilter) FilterLines(lines []string) []string {
	if f == nil || f.FilterType == FilterNone {
		return lines
	}

	filtered := []string{}
	for _, line := range lines {
		if f.Filter(line).Include {
			filtered = append(filtered, line)
		}
	}
	return filtered
}

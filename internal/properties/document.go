package properties

import (
	"bytes"
	"strings"
)

// Document is a line-preserving view of a server.properties file.
// Only the value part of key/value lines is ever rewritten; comments, blank
// lines, ordering and line terminators are kept byte-for-byte.
type Document struct {
	lines []line
}

type line struct {
	text string // content without the terminator
	eol  string // "\n", "\r\n" or "" for an unterminated last line
	key  string // empty for comments, blanks and lines without '='
	sep  int    // index of '=' in text, -1 when key is empty
}

// Parse splits raw file contents into a Document. It never fails: lines that
// are not key=value pairs are carried through untouched.
func Parse(data []byte) *Document {
	doc := &Document{}
	for len(data) > 0 {
		idx := bytes.IndexByte(data, '\n')
		var raw, eol string
		if idx < 0 {
			raw = string(data)
			data = nil
		} else {
			raw = string(data[:idx])
			eol = "\n"
			data = data[idx+1:]
			if strings.HasSuffix(raw, "\r") {
				raw = raw[:len(raw)-1]
				eol = "\r\n"
			}
		}
		doc.lines = append(doc.lines, parseLine(raw, eol))
	}
	return doc
}

func parseLine(text, eol string) line {
	l := line{text: text, eol: eol, sep: -1}
	trimmed := strings.TrimLeft(text, " \t\f")
	if trimmed == "" || trimmed[0] == '#' || trimmed[0] == '!' {
		return l
	}
	sep := separatorIndex(text)
	if sep < 0 {
		return l
	}
	l.key = unescape(strings.TrimSpace(text[:sep]))
	l.sep = sep
	return l
}

// separatorIndex finds the first unescaped '='.
func separatorIndex(text string) int {
	escaped := false
	for i := 0; i < len(text); i++ {
		switch {
		case escaped:
			escaped = false
		case text[i] == '\\':
			escaped = true
		case text[i] == '=':
			return i
		}
	}
	return -1
}

// Get returns the unescaped value of the first line whose key equals key.
func (d *Document) Get(key string) (string, bool) {
	for _, l := range d.lines {
		if l.key == key {
			return unescape(l.text[l.sep+1:]), true
		}
	}
	return "", false
}

// Set replaces the value of the first line whose key equals key. Keys are
// compared exactly, so "port" never matches "rcon.port". Missing keys are not
// appended; found reports whether the key was present.
func (d *Document) Set(key, value string) (changed, found bool) {
	for i := range d.lines {
		l := &d.lines[i]
		if l.key != key {
			continue
		}
		if unescape(l.text[l.sep+1:]) == value {
			return false, true
		}
		l.text = l.text[:l.sep+1] + escape(value)
		return true, true
	}
	return false, false
}

// Keys lists the keys in file order.
func (d *Document) Keys() []string {
	keys := make([]string, 0, len(d.lines))
	for _, l := range d.lines {
		if l.key != "" {
			keys = append(keys, l.key)
		}
	}
	return keys
}

// Bytes renders the document back to file contents.
func (d *Document) Bytes() []byte {
	var buf bytes.Buffer
	for _, l := range d.lines {
		buf.WriteString(l.text)
		buf.WriteString(l.eol)
	}
	return buf.Bytes()
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i == len(s)-1 {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 't':
			b.WriteByte('\t')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 'f':
			b.WriteByte('\f')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// escape mirrors java.util.Properties.store for values.
func escape(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\\', '=', ':', '#', '!':
			b.WriteByte('\\')
			b.WriteByte(c)
		case '\t':
			b.WriteString(`\t`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\f':
			b.WriteString(`\f`)
		case ' ':
			if i == 0 {
				b.WriteByte('\\')
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

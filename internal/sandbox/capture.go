package sandbox

import (
	"strings"
	"unicode/utf8"
)

const truncatedNote = "... output truncated"

// capture collects print output for one execution, up to limit bytes.
type capture struct {
	buf       strings.Builder
	limit     int
	truncated bool
}

func newCapture(limit int) *capture {
	return &capture{limit: limit}
}

func (c *capture) writeLine(s string) {
	if c.truncated {
		return
	}
	s += "\n"
	if c.limit > 0 && c.buf.Len()+len(s) > c.limit {
		room := c.limit - c.buf.Len()
		for room > 0 && !utf8.RuneStart(s[room]) {
			room--
		}
		if room > 0 {
			c.buf.WriteString(s[:room])
		}
		c.truncated = true
		return
	}
	c.buf.WriteString(s)
}

func (c *capture) String() string {
	out := c.buf.String()
	if c.truncated {
		out = strings.TrimRight(out, "\n") + "\n" + truncatedNote + "\n"
	}
	return out
}

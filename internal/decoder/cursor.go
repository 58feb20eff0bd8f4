package decoder

import "fmt"

// cursor is an explicit, forward-only view over one felt stream (raw_keys or
// raw_data). The decoder never backtracks and never peeks past what a type
// actually needs, so a cursor is just a slice and an index rather than
// anything reflective.
type cursor struct {
	felts []string
	pos   int
}

func newCursor(felts []string) *cursor {
	return &cursor{felts: felts}
}

// Take consumes exactly n felts and returns them, or an error if fewer than
// n remain.
func (c *cursor) Take(n int) ([]string, error) {
	if c.pos+n > len(c.felts) {
		return nil, fmt.Errorf("cursor exhausted: need %d felts, %d remain", n, len(c.felts)-c.pos)
	}
	out := c.felts[c.pos : c.pos+n]
	c.pos += n
	return out, nil
}

// Remaining reports how many felts are left unconsumed.
func (c *cursor) Remaining() int {
	return len(c.felts) - c.pos
}

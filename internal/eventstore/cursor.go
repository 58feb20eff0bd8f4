package eventstore

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// pageCursor is the decoded form of an opaque pagination cursor: the primary
// sort value the row was ordered by, plus its id as a tiebreak.
type pageCursor struct {
	primary int64
	id      string
}

// encodeCursor returns the opaque cursor string for one result row.
func encodeCursor(primary int64, id string) string {
	raw := fmt.Sprintf("%d:%s", primary, id)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// decodeCursor parses an opaque cursor produced by encodeCursor. An empty
// string is not a valid cursor; callers check for "" before decoding.
func decodeCursor(s string) (pageCursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return pageCursor{}, fmt.Errorf("decoding cursor: %w", err)
	}
	parts := strings.SplitN(string(raw), ":", 2)
	if len(parts) != 2 {
		return pageCursor{}, fmt.Errorf("malformed cursor")
	}
	primary, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return pageCursor{}, fmt.Errorf("malformed cursor primary value: %w", err)
	}
	return pageCursor{primary: primary, id: parts[1]}, nil
}

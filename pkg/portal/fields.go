package portal

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

// The portal is loose about scalar types: the same field arrives as a number
// in one response and as a string in the next. The types below accept either
// and never fail, so a field the proxy reads can not break passthrough.

// text is a portal scalar read as text. Numbers and booleans keep their
// literal form; null, objects and arrays read as "".
type text string

// UnmarshalJSON implements json.Unmarshaler.
func (t *text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0, bytes.Equal(data, []byte("null")):
		*t = ""
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*t = ""
			return nil
		}
		*t = text(s)
	case data[0] == '{', data[0] == '[':
		*t = ""
	default:
		*t = text(data)
	}
	return nil
}

// id is a portal identifier given as a number or a numeric string.
// Anything else reads as 0.
type id int64

// UnmarshalJSON implements json.Unmarshaler.
func (i *id) UnmarshalJSON(data []byte) error {
	var t text
	_ = t.UnmarshalJSON(data)
	*i = id(parseID(string(t)))
	return nil
}

func parseID(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0
	}
	return int64(f)
}

// decodeItem decodes a portal list item into w. An item that is not an
// object leaves w zero instead of failing the whole list.
func decodeItem(data []byte, w any) error {
	err := json.Unmarshal(data, w)
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return nil
	}
	return err
}

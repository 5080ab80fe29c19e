package dump

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies the storage class of a column value.
type Kind int

const (
	// Null is the SQL NULL value.
	Null Kind = iota
	// Integer is a signed 64-bit integer.
	Integer
	// Real is a 64-bit IEEE float.
	Real
	// Text is a UTF-8 string.
	Text
	// Blob is an arbitrary byte sequence.
	Blob
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Integer:
		return "integer"
	case Real:
		return "real"
	case Text:
		return "text"
	case Blob:
		return "blob"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is a single column value as reported by the engine. Exactly one of
// the payload fields is meaningful, selected by Kind.
type Value struct {
	Kind  Kind
	Int   int64
	Float float64
	Str   string
	Bytes []byte
}

// FromSQL converts a value scanned through database/sql into a Value. The
// driver reports nil, int64, float64, string or []byte for SQLite's five
// storage classes; anything else is an error rather than a silent coercion.
func FromSQL(v interface{}) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Value{Kind: Null}, nil
	case int64:
		return Value{Kind: Integer, Int: t}, nil
	case float64:
		return Value{Kind: Real, Float: t}, nil
	case string:
		return Value{Kind: Text, Str: t}, nil
	case []byte:
		return Value{Kind: Blob, Bytes: t}, nil
	default:
		return Value{}, fmt.Errorf("unsupported column type %T", v)
	}
}

// Literal renders the value as a SQL literal in SQLite's dialect. The
// encoding is lossless: ParseLiteral(v.Literal()) reproduces v exactly.
func (v Value) Literal() string {
	switch v.Kind {
	case Null:
		return "NULL"
	case Integer:
		return strconv.FormatInt(v.Int, 10)
	case Real:
		return formatReal(v.Float)
	case Text:
		return "'" + strings.ReplaceAll(v.Str, "'", "''") + "'"
	case Blob:
		return "X'" + hex.EncodeToString(v.Bytes) + "'"
	default:
		return "NULL"
	}
}

// Equal reports whether two values have the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case Null:
		return true
	case Integer:
		return v.Int == o.Int
	case Real:
		return v.Float == o.Float || (math.IsNaN(v.Float) && math.IsNaN(o.Float))
	case Text:
		return v.Str == o.Str
	case Blob:
		return bytes.Equal(v.Bytes, o.Bytes)
	}
	return false
}

// formatReal produces the shortest decimal text that parses back to exactly
// the same float64. A trailing ".0" is appended to integral values so the
// engine stores the replayed value as REAL, not INTEGER. Infinities use the
// overflow literal the sqlite3 shell emits.
func formatReal(f float64) string {
	if math.IsInf(f, 1) {
		return "9.0e+999"
	}
	if math.IsInf(f, -1) {
		return "-9.0e+999"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// ParseLiteral is the inverse of Value.Literal. It accepts the literal forms
// the emitter produces: NULL, integer and real numerics, single-quoted text
// with doubled embedded quotes, and X'..' hex blobs.
func ParseLiteral(s string) (Value, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Value{}, fmt.Errorf("empty literal")
	}
	if strings.EqualFold(s, "NULL") {
		return Value{Kind: Null}, nil
	}
	if s[0] == '\'' {
		return parseTextLiteral(s)
	}
	if (s[0] == 'X' || s[0] == 'x') && len(s) >= 3 && s[1] == '\'' {
		return parseBlobLiteral(s)
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Value{Kind: Integer, Int: i}, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// Out-of-range literals such as 9.0e+999 overflow to an infinity,
		// which is exactly what they encode.
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && numErr.Err == strconv.ErrRange && math.IsInf(f, 0) {
			return Value{Kind: Real, Float: f}, nil
		}
		return Value{}, fmt.Errorf("invalid literal %q", s)
	}
	return Value{Kind: Real, Float: f}, nil
}

func parseTextLiteral(s string) (Value, error) {
	if len(s) < 2 || s[len(s)-1] != '\'' {
		return Value{}, fmt.Errorf("unterminated string literal %q", s)
	}
	body := s[1 : len(s)-1]
	var b strings.Builder
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c == '\'' {
			if i+1 >= len(body) || body[i+1] != '\'' {
				return Value{}, fmt.Errorf("stray quote in string literal %q", s)
			}
			i++
		}
		b.WriteByte(c)
	}
	return Value{Kind: Text, Str: b.String()}, nil
}

func parseBlobLiteral(s string) (Value, error) {
	if s[len(s)-1] != '\'' {
		return Value{}, fmt.Errorf("unterminated blob literal %q", s)
	}
	raw, err := hex.DecodeString(s[2 : len(s)-1])
	if err != nil {
		return Value{}, fmt.Errorf("invalid blob literal %q: %w", s, err)
	}
	return Value{Kind: Blob, Bytes: raw}, nil
}

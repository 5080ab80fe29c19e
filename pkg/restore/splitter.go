package restore

import (
	"bufio"
	"io"
	"strings"
)

// Scanner reads a stream of semicolon-terminated SQL statements. It
// understands enough of SQLite's lexical structure that semicolons inside
// string literals, quoted identifiers, comments and CREATE TRIGGER bodies do
// not terminate a statement.
type Scanner struct {
	r    *bufio.Reader
	done bool
}

// NewScanner wraps r in a statement scanner.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{r: bufio.NewReader(r)}
}

type lexState int

const (
	stateNormal lexState = iota
	stateSingleQuote
	stateDoubleQuote
	stateBacktick
	stateBracket
	stateLineComment
	stateBlockComment
)

// Next returns the next complete statement, without its terminating
// semicolon trimmed (the semicolon is kept; the engine accepts it). It
// returns io.EOF when the input is exhausted. Trailing input without a
// terminator is returned as a final statement.
func (s *Scanner) Next() (string, error) {
	if s.done {
		return "", io.EOF
	}

	var (
		sb    strings.Builder
		state = stateNormal
		word  strings.Builder

		// Statement-shape tracking for trigger bodies. firstWord and
		// prevWord see normalized (upper-case) tokens.
		firstWord string
		prevWord  string
		inTrigger bool
		depth     int
	)

	endWord := func() {
		if word.Len() == 0 {
			return
		}
		w := strings.ToUpper(word.String())
		word.Reset()

		if firstWord == "" {
			firstWord = w
		}
		switch w {
		case "TRIGGER":
			// CREATE TRIGGER, possibly with TEMP/TEMPORARY in between.
			if firstWord == "CREATE" && (prevWord == "CREATE" || prevWord == "TEMP" || prevWord == "TEMPORARY") {
				inTrigger = true
			}
		case "BEGIN", "CASE":
			if inTrigger {
				depth++
			}
		case "END":
			if inTrigger && depth > 0 {
				depth--
			}
		}
		prevWord = w
	}

	for {
		c, err := s.r.ReadByte()
		if err == io.EOF {
			s.done = true
			endWord()
			stmt := strings.TrimSpace(sb.String())
			if stmt == "" {
				return "", io.EOF
			}
			return stmt, nil
		}
		if err != nil {
			return "", err
		}

		switch state {
		case stateNormal:
			if isWordByte(c) {
				word.WriteByte(c)
				sb.WriteByte(c)
				continue
			}
			endWord()
			switch c {
			case '\'':
				state = stateSingleQuote
			case '"':
				state = stateDoubleQuote
			case '`':
				state = stateBacktick
			case '[':
				state = stateBracket
			case '-':
				if s.peekByte() == '-' {
					s.r.ReadByte()
					state = stateLineComment
					continue
				}
			case '/':
				if s.peekByte() == '*' {
					s.r.ReadByte()
					state = stateBlockComment
					continue
				}
			case ';':
				if !inTrigger || depth == 0 {
					sb.WriteByte(c)
					stmt := strings.TrimSpace(sb.String())
					if stmt == ";" {
						// Stray terminator, keep scanning.
						sb.Reset()
						firstWord, prevWord, inTrigger, depth = "", "", false, 0
						continue
					}
					return stmt, nil
				}
			}
			sb.WriteByte(c)

		case stateSingleQuote:
			sb.WriteByte(c)
			if c == '\'' {
				// A doubled quote is an escaped quote, not a terminator.
				if s.peekByte() == '\'' {
					next, _ := s.r.ReadByte()
					sb.WriteByte(next)
				} else {
					state = stateNormal
				}
			}

		case stateDoubleQuote:
			sb.WriteByte(c)
			if c == '"' {
				if s.peekByte() == '"' {
					next, _ := s.r.ReadByte()
					sb.WriteByte(next)
				} else {
					state = stateNormal
				}
			}

		case stateBacktick:
			sb.WriteByte(c)
			if c == '`' {
				state = stateNormal
			}

		case stateBracket:
			sb.WriteByte(c)
			if c == ']' {
				state = stateNormal
			}

		case stateLineComment:
			if c == '\n' {
				state = stateNormal
				sb.WriteByte(c)
			}

		case stateBlockComment:
			if c == '*' && s.peekByte() == '/' {
				s.r.ReadByte()
				state = stateNormal
			}
		}
	}
}

func (s *Scanner) peekByte() byte {
	b, err := s.r.Peek(1)
	if err != nil || len(b) == 0 {
		return 0
	}
	return b[0]
}

func isWordByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}

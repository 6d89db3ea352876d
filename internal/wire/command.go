package wire

import (
	"errors"
	"strings"
	"unicode/utf8"
)

var (
	ErrInvalidUTF8     = errors.New("wire: command is not valid UTF-8")
	ErrEmptyCommand    = errors.New("wire: empty command")
	ErrUnbalancedQuote = errors.New("wire: unbalanced double quote")
	ErrMalformedText   = errors.New("wire: malformed delimited text")
)

// Command is a decoded request: the operation word and the untouched
// remainder, which each operation tokenizes according to its own shape.
type Command struct {
	Name string
	Rest string
}

// ParseCommand splits a request frame into its operation word and remainder.
func ParseCommand(frame []byte) (Command, error) {
	if !utf8.Valid(frame) {
		return Command{}, ErrInvalidUTF8
	}
	s := strings.TrimSpace(string(frame))
	if s == "" {
		return Command{}, ErrEmptyCommand
	}
	name, rest, _ := strings.Cut(s, " ")
	return Command{Name: name, Rest: strings.TrimLeft(rest, " ")}, nil
}

// Fields splits s on spaces. A token opening with a double quote runs to the
// matching closing quote and keeps its inner spaces; the quotes are dropped.
func Fields(s string) ([]string, error) {
	var (
		out []string
		cur strings.Builder
	)
	inToken, quoted := false, false

	for _, r := range s {
		switch {
		case quoted && r == '"':
			quoted = false
			out = append(out, cur.String())
			cur.Reset()
			inToken = false
		case quoted:
			cur.WriteRune(r)
		case r == '"' && !inToken:
			quoted = true
		case r == ' ':
			if inToken {
				out = append(out, cur.String())
				cur.Reset()
				inToken = false
			}
		default:
			inToken = true
			cur.WriteRune(r)
		}
	}

	if quoted {
		return nil, ErrUnbalancedQuote
	}
	if inToken {
		out = append(out, cur.String())
	}
	return out, nil
}

// SplitDelimited parses the "/first/middle/last" form. The first field ends
// at the second slash and the last field starts after the final slash, so
// the middle field may itself contain slashes.
func SplitDelimited(s string) (first, middle, last string, err error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "/") {
		return "", "", "", ErrMalformedText
	}
	s = s[1:]
	i := strings.IndexByte(s, '/')
	j := strings.LastIndexByte(s, '/')
	if i < 0 || i == j {
		return "", "", "", ErrMalformedText
	}
	return s[:i], s[i+1 : j], s[j+1:], nil
}

// FreeText extracts the three fields of a post or comment request, accepting
// either the slash-delimited form or three space/quote separated tokens.
func FreeText(rest string) (first, middle, last string, err error) {
	if strings.HasPrefix(strings.TrimSpace(rest), "/") {
		return SplitDelimited(rest)
	}
	fields, err := Fields(rest)
	if err != nil {
		return "", "", "", err
	}
	if len(fields) != 3 {
		return "", "", "", ErrMalformedText
	}
	return fields[0], fields[1], fields[2], nil
}

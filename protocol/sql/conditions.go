package sql

import (
	"strconv"
	"strings"

	dberrors "github.com/guileen/docsql/engine/errors"
)

// splitTopLevel splits s on sep (matched case-insensitively) wherever sep is
// outside quotes and parentheses.
func splitTopLevel(s, sep string) []string {
	var parts []string
	var quote byte
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				if i+1 < len(s) && s[i+1] == quote {
					i++
					continue
				}
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			depth--
		case depth == 0 && i+len(sep) <= len(s) && strings.EqualFold(s[i:i+len(sep)], sep):
			parts = append(parts, s[start:i])
			start = i + len(sep)
			i += len(sep) - 1
		}
	}
	return append(parts, s[start:])
}

// indexTopLevel returns the index of the first byte c outside quotes, or -1.
func indexTopLevel(s string, c byte) int {
	var quote byte
	for i := 0; i < len(s); i++ {
		switch {
		case quote != 0:
			if s[i] == quote {
				quote = 0
			}
		case s[i] == '\'' || s[i] == '"':
			quote = s[i]
		case s[i] == c:
			return i
		}
	}
	return -1
}

func trimParens(s string) string {
	s = strings.TrimSpace(s)
	for len(s) >= 2 && s[0] == '(' && s[len(s)-1] == ')' && closingParen(s) == len(s)-1 {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

// closingParen returns the index of the parenthesis closing s[0], or -1.
func closingParen(s string) int {
	var quote byte
	depth := 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// unquoteLiteral decodes a rendered SQL literal: a quoted string with doubled
// quote escapes and an optional ::type cast, a number or a boolean. Anything
// else is not a literal.
func unquoteLiteral(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "::"); i > 0 && indexTopLevel(s[i:], '\'') < 0 {
		s = strings.TrimSpace(s[:i])
	}
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return strings.ReplaceAll(s[1:len(s)-1], "''", "'"), true
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return s, true
	}
	switch strings.ToLower(s) {
	case "true", "false":
		return strings.ToLower(s), true
	}
	return "", false
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '.':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// ParseConditions turns a rendered WHERE predicate into a flat column=value
// map. Only equalities between a column and a literal joined by AND are
// supported; anything else is a parse error.
func ParseConditions(where string) (map[string]string, error) {
	conds := make(map[string]string)
	where = trimParens(where)
	if where == "" {
		return conds, nil
	}

	for _, part := range splitTopLevel(where, " AND ") {
		part = trimParens(part)
		if len(splitTopLevel(part, " OR ")) > 1 {
			return nil, dberrors.NewParseErrorf("unsupported predicate %q: OR is not supported", part)
		}
		eq := indexTopLevel(part, '=')
		if eq <= 0 || strings.ContainsAny(part[eq-1:eq], "<>!") {
			return nil, dberrors.NewParseErrorf("unsupported predicate %q: only column = value is supported", part)
		}
		key := strings.ReplaceAll(strings.TrimSpace(part[:eq]), `"`, "")
		if !isIdentifier(key) {
			return nil, dberrors.NewParseErrorf("unsupported predicate %q: left side must be a column", part)
		}
		raw := strings.TrimSpace(part[eq+1:])
		if strings.EqualFold(raw, "NULL") {
			return nil, dberrors.NewParseErrorf("unsupported predicate %q: comparison with NULL", part)
		}
		value, ok := unquoteLiteral(raw)
		if !ok {
			return nil, dberrors.NewParseErrorf("unsupported predicate %q: right side must be a literal", part)
		}
		conds[key] = value
	}
	return conds, nil
}

// HavingCondition is a HAVING predicate of the form <left> <op> <right>.
type HavingCondition struct {
	Left  string
	Op    string
	Right string
}

// ParseHaving parses "<left> <op> <right>" for op in >, <, >=, <=, =, <>.
func ParseHaving(having string) (HavingCondition, error) {
	having = trimParens(having)
	if left, op, right, ok := splitComparison(having); ok {
		left, right = strings.TrimSpace(left), strings.TrimSpace(right)
		if v, ok := unquoteLiteral(right); ok {
			right = v
		}
		if left != "" && right != "" {
			return HavingCondition{Left: left, Op: op, Right: right}, nil
		}
	}
	return HavingCondition{}, dberrors.NewParseErrorf("unsupported HAVING predicate %q", having)
}

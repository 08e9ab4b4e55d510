package host

import (
	"fmt"
	"strconv"
	"strings"
)

// stringLit is a decoded string literal, before f-string expansion.
type stringLit struct {
	raw    bool
	format bool
	body   string
}

// splitStringLiteral strips the prefix and quotes of a literal.
func splitStringLiteral(text string) (stringLit, error) {
	var lit stringLit
	i := 0
	for i < len(text) && strings.ContainsRune("rRbBuUfF", rune(text[i])) {
		switch text[i] {
		case 'r', 'R':
			lit.raw = true
		case 'f', 'F':
			lit.format = true
		}
		i++
	}
	text = text[i:]
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if len(text) >= 2*len(q) && strings.HasPrefix(text, q) && strings.HasSuffix(text, q) {
			lit.body = text[len(q) : len(text)-len(q)]
			return lit, nil
		}
	}
	return lit, fmt.Errorf("malformed string literal: %s", text)
}

// unescape decodes the backslash escapes of a non raw literal.
func unescape(s string) (string, error) {
	if !strings.ContainsRune(s, '\\') {
		return s, nil
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			sb.WriteByte(c)
			continue
		}
		i++
		switch e := s[i]; e {
		case '\n':
		case '\\', '\'', '"':
			sb.WriteByte(e)
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		case 'r':
			sb.WriteByte('\r')
		case 'a':
			sb.WriteByte('\a')
		case 'b':
			sb.WriteByte('\b')
		case 'f':
			sb.WriteByte('\f')
		case 'v':
			sb.WriteByte('\v')
		case 'x', 'u', 'U':
			n := map[byte]int{'x': 2, 'u': 4, 'U': 8}[e]
			if i+n >= len(s) {
				return "", fmt.Errorf("truncated \\%c escape", e)
			}
			code, err := strconv.ParseUint(s[i+1:i+1+n], 16, 32)
			if err != nil {
				return "", fmt.Errorf("invalid \\%c escape: %w", e, err)
			}
			sb.WriteRune(rune(code))
			i += n
		case '0', '1', '2', '3', '4', '5', '6', '7':
			j := i
			for j < len(s) && j < i+3 && s[j] >= '0' && s[j] <= '7' {
				j++
			}
			code, _ := strconv.ParseUint(s[i:j], 8, 32)
			sb.WriteRune(rune(code))
			i = j - 1
		default:
			sb.WriteByte('\\')
			sb.WriteByte(e)
		}
	}
	return sb.String(), nil
}

// splitFString breaks an f-string body into literal and expression parts.
// The expression sources are returned unparsed, the caller parses them.
func splitFString(body string) ([]FPart, []string, error) {
	var (
		parts []FPart
		exprs []string
		lit   strings.Builder
	)
	flush := func() {
		if lit.Len() > 0 {
			parts = append(parts, FPart{Lit: lit.String()})
			lit.Reset()
		}
	}
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case c == '{' && i+1 < len(body) && body[i+1] == '{':
			lit.WriteByte('{')
			i++
		case c == '}' && i+1 < len(body) && body[i+1] == '}':
			lit.WriteByte('}')
			i++
		case c == '{':
			flush()
			end, err := matchBrace(body, i)
			if err != nil {
				return nil, nil, err
			}
			src := body[i+1 : end]
			part := FPart{}
			if k := topLevelIndex(src, ':'); k >= 0 {
				part.Spec = src[k+1:]
				src = src[:k]
			}
			if k := strings.LastIndex(src, "!"); k >= 0 && k == len(src)-2 && !strings.HasSuffix(src, "!=") {
				part.Conv = src[k+1]
				src = src[:k]
			}
			parts = append(parts, part)
			exprs = append(exprs, strings.TrimSpace(src))
			i = end
		default:
			lit.WriteByte(c)
		}
	}
	flush()
	return parts, exprs, nil
}

func matchBrace(s string, start int) (int, error) {
	depth := 0
	var quote byte
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '{' || c == '(' || c == '[':
			depth++
		case c == '}' || c == ')' || c == ']':
			depth--
			if depth == 0 {
				if c != '}' {
					return 0, fmt.Errorf("unbalanced f-string expression: %s", s[start:])
				}
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("unterminated f-string expression: %s", s[start:])
}

// topLevelIndex finds c outside of any brackets or quotes.
func topLevelIndex(s string, c byte) int {
	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		switch ch := s[i]; {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == '(' || ch == '[' || ch == '{':
			depth++
		case ch == ')' || ch == ']' || ch == '}':
			depth--
		case ch == c && depth == 0:
			return i
		}
	}
	return -1
}

// parseNumber decodes integer and float literals, underscores included.
func parseNumber(text string) (any, error) {
	clean := strings.ReplaceAll(text, "_", "")
	if iv, err := strconv.ParseInt(clean, 0, 64); err == nil {
		return iv, nil
	}
	if len(clean) > 1 && clean[0] == '0' && clean[1] >= '0' && clean[1] <= '9' {
		// Python only accepts "00..0" decimal literals with leading zeros.
		if iv, err := strconv.ParseInt(clean, 10, 64); err == nil {
			return iv, nil
		}
	}
	if strings.HasSuffix(clean, "j") || strings.HasSuffix(clean, "J") {
		return nil, fmt.Errorf("complex literals are not supported: %s", text)
	}
	f, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number literal %s: %w", text, err)
	}
	return f, nil
}

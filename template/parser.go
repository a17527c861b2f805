// Package template turns a captured request description into a reusable
// request definition.
//
// The capture is the curl command copied from browser devtools, exactly
// as users paste it into the scheduler's secret store. Parsing therefore
// tolerates shell quoting artifacts: single and double quotes, backslash
// escapes, and backslash-newline continuations.
package template

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/pageturn-io/pageturn/types"
)

// Parse extracts a RequestTemplate from a captured curl command.
// The template must carry the default session cookie; see ParseWithCredential.
func Parse(raw string) (*types.RequestTemplate, error) {
	return ParseWithCredential(raw, types.DefaultSessionCookie)
}

// ParseWithCredential extracts a RequestTemplate and verifies the named
// session cookie is present. A template without it would silently fail
// every call, so it is rejected up front with ErrMissingCredential.
func ParseWithCredential(raw, credentialCookie string) (*types.RequestTemplate, error) {
	tokens, err := tokenize(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrMalformedTemplate, err)
	}
	if len(tokens) == 0 || tokens[0] != "curl" {
		return nil, fmt.Errorf("%w: capture does not start with a curl command", types.ErrMalformedTemplate)
	}

	var (
		method  string
		rawURL  string
		body    string
		headers = map[string]string{}
		cookies = map[string]string{}
	)

	i := 1
	for i < len(tokens) {
		tok := tokens[i]
		switch {
		case tok == "-X" || tok == "--request":
			v, n, err := flagValue(tokens, i)
			if err != nil {
				return nil, err
			}
			method, i = strings.ToUpper(v), n

		case tok == "-H" || tok == "--header":
			v, n, err := flagValue(tokens, i)
			if err != nil {
				return nil, err
			}
			name, value, ok := splitHeader(v)
			if !ok {
				return nil, fmt.Errorf("%w: bad header %q", types.ErrMalformedTemplate, v)
			}
			if strings.EqualFold(name, "cookie") {
				mergeCookies(cookies, value)
			} else {
				headers[name] = value
			}
			i = n

		case tok == "-b" || tok == "--cookie":
			v, n, err := flagValue(tokens, i)
			if err != nil {
				return nil, err
			}
			mergeCookies(cookies, v)
			i = n

		case tok == "-d" || strings.HasPrefix(tok, "--data"):
			v, n, err := flagValue(tokens, i)
			if err != nil {
				return nil, err
			}
			body, i = v, n

		case tok == "--url":
			v, n, err := flagValue(tokens, i)
			if err != nil {
				return nil, err
			}
			rawURL, i = v, n

		case tok == "-A" || tok == "--user-agent":
			v, n, err := flagValue(tokens, i)
			if err != nil {
				return nil, err
			}
			headers["User-Agent"], i = v, n

		case tok == "-e" || tok == "--referer":
			v, n, err := flagValue(tokens, i)
			if err != nil {
				return nil, err
			}
			headers["Referer"], i = v, n

		case valueFlags[tok]:
			// Flag with a value we do not use; skip both.
			_, n, err := flagValue(tokens, i)
			if err != nil {
				return nil, err
			}
			i = n

		case strings.HasPrefix(tok, "-"):
			// Boolean flag (--compressed, -s, -k, ...); skip.
			i++

		default:
			if rawURL != "" {
				return nil, fmt.Errorf("%w: multiple URLs in capture (%q and %q)", types.ErrMalformedTemplate, rawURL, tok)
			}
			rawURL, i = tok, i+1
		}
	}

	if rawURL == "" {
		return nil, fmt.Errorf("%w: no URL in capture", types.ErrMalformedTemplate)
	}
	if method == "" {
		if body != "" {
			method = http.MethodPost
		} else {
			method = http.MethodGet
		}
	}

	tpl, err := types.NewRequestTemplate(method, rawURL, headers, cookies, []byte(body))
	if err != nil {
		return nil, err
	}
	if tpl.Cookie(credentialCookie) == "" {
		return nil, fmt.Errorf("%w: cookie %q not in capture", types.ErrMissingCredential, credentialCookie)
	}
	return tpl, nil
}

// valueFlags are curl flags whose value must be consumed but is irrelevant
// to the request definition.
var valueFlags = map[string]bool{
	"-o":                true,
	"--output":          true,
	"-m":                true,
	"--max-time":        true,
	"-x":                true,
	"--proxy":           true,
	"--connect-timeout": true,
	"-u":                true,
	"--user":            true,
}

func flagValue(tokens []string, i int) (string, int, error) {
	if i+1 >= len(tokens) {
		return "", 0, fmt.Errorf("%w: flag %s has no value", types.ErrMalformedTemplate, tokens[i])
	}
	return tokens[i+1], i + 2, nil
}

func splitHeader(s string) (name, value string, ok bool) {
	idx := strings.Index(s, ":")
	if idx <= 0 {
		return "", "", false
	}
	return strings.TrimSpace(s[:idx]), strings.TrimSpace(s[idx+1:]), true
}

// mergeCookies parses a "a=b; c=d" cookie string into dst.
func mergeCookies(dst map[string]string, s string) {
	for pair := range strings.SplitSeq(s, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, value, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		dst[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
}

// tokenize splits a shell command line into words, honoring single
// quotes, double quotes (with backslash escapes), bare backslash escapes,
// and backslash-newline continuations.
func tokenize(s string) ([]string, error) {
	var (
		tokens  []string
		current strings.Builder
		inWord  bool
	)

	flush := func() {
		if inWord {
			tokens = append(tokens, current.String())
			current.Reset()
			inWord = false
		}
	}

	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case c == '\\':
			if i+1 >= len(runes) {
				return nil, fmt.Errorf("trailing backslash")
			}
			next := runes[i+1]
			if next == '\n' || (next == '\r' && i+2 < len(runes) && runes[i+2] == '\n') {
				// Line continuation: swallow the newline.
				if next == '\r' {
					i++
				}
				i++
				continue
			}
			current.WriteRune(next)
			inWord = true
			i++

		case c == '\'':
			end := indexRune(runes, i+1, '\'')
			if end < 0 {
				return nil, fmt.Errorf("unterminated single quote")
			}
			current.WriteString(string(runes[i+1 : end]))
			inWord = true
			i = end

		case c == '"':
			j := i + 1
			for ; j < len(runes); j++ {
				if runes[j] == '\\' && j+1 < len(runes) {
					current.WriteRune(runes[j+1])
					j++
					continue
				}
				if runes[j] == '"' {
					break
				}
				current.WriteRune(runes[j])
			}
			if j >= len(runes) {
				return nil, fmt.Errorf("unterminated double quote")
			}
			inWord = true
			i = j

		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			flush()

		default:
			current.WriteRune(c)
			inWord = true
		}
	}
	flush()
	return tokens, nil
}

func indexRune(runes []rune, from int, r rune) int {
	for i := from; i < len(runes); i++ {
		if runes[i] == r {
			return i
		}
	}
	return -1
}

package filter

import (
	"strconv"
	"strings"

	"github.com/five82/klaxon/internal/alarm"
)

// Attribute names accepted in queries. Matching is case-insensitive.
const (
	AttrSeverity       = "Severity"
	AttrState          = "State"
	AttrSource         = "Source"
	AttrZone           = "Zone"
	AttrAcknowledgedBy = "AcknowledgedBy"
	AttrResolvedBy     = "ResolvedBy"
	AttrHasComments    = "HasComments"
	AttrRepeatCount    = "RepeatCount"
	AttrEvent          = "Event"
)

var knownAttrs = []string{
	AttrSeverity, AttrState, AttrSource, AttrZone, AttrAcknowledgedBy,
	AttrResolvedBy, AttrHasComments, AttrRepeatCount, AttrEvent,
}

// Attributes returns the supported attribute names, for completion.
func Attributes() []string {
	out := make([]string, len(knownAttrs))
	copy(out, knownAttrs)
	return out
}

func canonicalAttr(name string) (string, bool) {
	for _, a := range knownAttrs {
		if strings.EqualFold(a, name) {
			return a, true
		}
	}
	return "", false
}

// Clause is one attribute test. Values are ORed.
type Clause struct {
	Attr   string
	Values []string
	Negate bool

	severities map[alarm.Severity]struct{}
	states     map[alarm.State]struct{}
	hasComment bool
	counts     []countRange
}

// Word is a plain-text term.
type Word struct {
	Text   string
	Negate bool
}

// Query is a parsed filter string. The zero value matches everything.
type Query struct {
	Clauses []Clause
	Words   []Word
}

// Empty reports whether the query has no terms.
func (q Query) Empty() bool {
	return len(q.Clauses) == 0 && len(q.Words) == 0
}

type countRange struct {
	min, max int // inclusive
}

func (r countRange) contains(n int) bool {
	return n >= r.min && n <= r.max
}

// ParseQuery turns user text into a Query. It never fails: unknown
// attributes and values it cannot interpret are kept as plain text.
func ParseQuery(text string) Query {
	var q Query
	tokens := tokenize(text)
	negate := false
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if tok.raw == "NOT" && !tok.quoted {
			if negate {
				// NOT NOT: keep the first as text so nothing is silently dropped.
				q.Words = append(q.Words, Word{Text: "NOT"})
			}
			negate = true
			continue
		}

		if !tok.quoted {
			if name, value, ok := strings.Cut(tok.raw, ":"); ok {
				if attr, known := canonicalAttr(name); known {
					next := i
					if value == "" && i+1 < len(tokens) {
						next = i + 1
						value = tokens[next].raw
					}
					// A rejected value token stays in the stream as text.
					if c, ok := buildClause(attr, value, negate); ok {
						q.Clauses = append(q.Clauses, c)
						negate = false
						i = next
						continue
					}
				}
			}
		}

		if tok.raw != "" {
			q.Words = append(q.Words, Word{Text: strings.ToLower(tok.raw), Negate: negate})
		}
		negate = false
	}
	if negate {
		q.Words = append(q.Words, Word{Text: "not"})
	}
	return q
}

func buildClause(attr, value string, negate bool) (Clause, bool) {
	values := splitValues(value)
	if len(values) == 0 {
		return Clause{}, false
	}
	c := Clause{Attr: attr, Values: values, Negate: negate}
	switch attr {
	case AttrSeverity:
		c.severities = map[alarm.Severity]struct{}{}
		for _, v := range values {
			s, ok := alarm.ParseSeverity(v)
			if !ok {
				return Clause{}, false
			}
			c.severities[s] = struct{}{}
		}
	case AttrState:
		c.states = map[alarm.State]struct{}{}
		for _, v := range values {
			s, ok := alarm.ParseState(v)
			if !ok {
				return Clause{}, false
			}
			c.states[s] = struct{}{}
		}
	case AttrHasComments:
		if len(values) != 1 {
			return Clause{}, false
		}
		switch strings.ToLower(values[0]) {
		case "yes", "true", "1":
			c.hasComment = true
		case "no", "false", "0":
			c.hasComment = false
		default:
			return Clause{}, false
		}
	case AttrRepeatCount:
		for _, v := range values {
			r, ok := parseCount(v)
			if !ok {
				return Clause{}, false
			}
			c.counts = append(c.counts, r)
		}
	default:
		for i, v := range values {
			c.Values[i] = strings.ToLower(v)
		}
	}
	return c, true
}

func splitValues(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

const maxCount = int(^uint(0) >> 1)

// parseCount accepts N, >N, >=N, <N, <=N and N-M.
func parseCount(v string) (countRange, bool) {
	atoi := func(s string) (int, bool) {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		return n, err == nil && n >= 0
	}
	switch {
	case strings.HasPrefix(v, ">="):
		n, ok := atoi(v[2:])
		return countRange{n, maxCount}, ok
	case strings.HasPrefix(v, "<="):
		n, ok := atoi(v[2:])
		return countRange{0, n}, ok
	case strings.HasPrefix(v, ">"):
		n, ok := atoi(v[1:])
		return countRange{n + 1, maxCount}, ok
	case strings.HasPrefix(v, "<"):
		n, ok := atoi(v[1:])
		return countRange{0, n - 1}, ok && n > 0
	}
	if lo, hi, ok := strings.Cut(v, "-"); ok {
		a, okA := atoi(lo)
		b, okB := atoi(hi)
		return countRange{a, b}, okA && okB && a <= b
	}
	n, ok := atoi(v)
	return countRange{n, n}, ok
}

type token struct {
	raw    string
	quoted bool
}

// tokenize splits on whitespace, keeping double-quoted runs together. A
// quote inside a token (Source:"core sw") extends that token.
func tokenize(text string) []token {
	var (
		out     []token
		cur     strings.Builder
		inQuote bool
		quoted  bool
		started bool
	)
	flush := func() {
		if started {
			out = append(out, token{raw: cur.String(), quoted: quoted && !strings.Contains(cur.String(), ":")})
		}
		cur.Reset()
		quoted, started = false, false
	}
	for _, r := range text {
		switch {
		case r == '"':
			inQuote = !inQuote
			quoted = true
			started = true
		case !inQuote && (r == ' ' || r == '\t' || r == '\n' || r == '\r'):
			flush()
		default:
			cur.WriteRune(r)
			started = true
		}
	}
	flush()
	return out
}

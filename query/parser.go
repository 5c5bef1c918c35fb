package query

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/muddysheep/chronicle/chrnerr"
	"github.com/muddysheep/chronicle/chrntypes"
)

// ParseString parses the small SQL-like query language this package
// supports:
//
//	SELECT metric[, metric...] [WHERE cond [AND cond...]] [GROUP BY interval] [LIMIT n]
//
// cond is one of:
//
//	time >= now() - <N><unit>     (unit: d, h, m)
//	tags.<key> <op> '<value>'
//	value <op> <number>
//
// This covers the common cases exercised by callers that build queries
// from user-typed strings; anything richer should use Builder directly.
func ParseString(s string) (Query, error) {
	tokens, err := tokenize(s)
	if err != nil {
		return Query{}, chrnerr.New(chrnerr.KindSerialization, "query.ParseString", err)
	}
	p := &parser{tokens: tokens}
	q, err := p.parseQuery()
	if err != nil {
		return Query{}, chrnerr.New(chrnerr.KindSerialization, "query.ParseString", err)
	}
	return q, nil
}

var tokenPattern = regexp.MustCompile(`'[^']*'|\S+`)

func tokenize(s string) ([]string, error) {
	matches := tokenPattern.FindAllString(s, -1)
	if len(matches) == 0 {
		return nil, fmt.Errorf("empty query")
	}
	return matches, nil
}

type parser struct {
	tokens []string
	pos    int
}

func (p *parser) peek() (string, bool) {
	if p.pos >= len(p.tokens) {
		return "", false
	}
	return p.tokens[p.pos], true
}

func (p *parser) next() (string, bool) {
	tok, ok := p.peek()
	if ok {
		p.pos++
	}
	return tok, ok
}

func (p *parser) expectKeyword(kw string) error {
	tok, ok := p.next()
	if !ok || !strings.EqualFold(tok, kw) {
		return fmt.Errorf("expected %q, got %q", kw, tok)
	}
	return nil
}

func (p *parser) parseQuery() (Query, error) {
	if err := p.expectKeyword("SELECT"); err != nil {
		return Query{}, err
	}

	var metrics []string
	for {
		tok, ok := p.peek()
		if !ok || strings.EqualFold(tok, "WHERE") || strings.EqualFold(tok, "GROUP") || strings.EqualFold(tok, "LIMIT") {
			break
		}
		p.next()
		name := strings.TrimSuffix(tok, ",")
		if name != "" {
			metrics = append(metrics, name)
		}
		if tok, ok := p.peek(); ok && tok == "," {
			p.next()
		}
	}
	if len(metrics) == 0 {
		return Query{}, fmt.Errorf("SELECT clause names no metrics")
	}

	b := Select(metrics...)

	if tok, ok := p.peek(); ok && strings.EqualFold(tok, "WHERE") {
		p.next()
		if err := p.parseWhere(b); err != nil {
			return Query{}, err
		}
	}

	if tok, ok := p.peek(); ok && strings.EqualFold(tok, "GROUP") {
		p.next()
		if err := p.expectKeyword("BY"); err != nil {
			return Query{}, err
		}
		tok, ok := p.next()
		if !ok {
			return Query{}, fmt.Errorf("expected interval after GROUP BY")
		}
		interval, ok := ParseGroupByInterval(strings.ToLower(tok))
		if !ok {
			return Query{}, fmt.Errorf("unknown GROUP BY interval %q", tok)
		}
		b.GroupBy(interval)
	}

	if tok, ok := p.peek(); ok && strings.EqualFold(tok, "LIMIT") {
		p.next()
		tok, ok := p.next()
		if !ok {
			return Query{}, fmt.Errorf("expected number after LIMIT")
		}
		n, err := strconv.Atoi(tok)
		if err != nil {
			return Query{}, fmt.Errorf("invalid LIMIT value %q: %w", tok, err)
		}
		b.Limit(n)
	}

	return b.Build(), nil
}

var relativeTimePattern = regexp.MustCompile(`^(\d+)([dhm])$`)

func (p *parser) parseWhere(b *Builder) error {
	for {
		field, ok := p.next()
		if !ok {
			return fmt.Errorf("expected condition after WHERE")
		}

		op, ok := p.next()
		if !ok {
			return fmt.Errorf("expected operator after %q", field)
		}
		operator, ok := ParseOperator(op)
		if !ok {
			return fmt.Errorf("unknown operator %q", op)
		}

		value, ok := p.next()
		if !ok {
			return fmt.Errorf("expected value after %q %q", field, op)
		}

		switch {
		case strings.EqualFold(field, "time"):
			if err := p.applyTimeCondition(b, operator, value); err != nil {
				return err
			}
		case strings.HasPrefix(field, "tags."):
			key := strings.TrimPrefix(field, "tags.")
			b.Filter(TagFilter(key, operator, strings.Trim(value, "'")))
		case strings.EqualFold(field, "value"):
			n, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return fmt.Errorf("invalid numeric value %q: %w", value, err)
			}
			b.Filter(ValueFilter(operator, n))
		default:
			return fmt.Errorf("unknown filter field %q", field)
		}

		tok, ok := p.peek()
		if !ok || !strings.EqualFold(tok, "AND") {
			return nil
		}
		p.next()
	}
}

// applyTimeCondition recognizes "time >= now() - Nd/Nh/Nm" and sets the
// builder's time range accordingly. Absolute time comparisons are not
// supported by the string form; use Builder.TimeRange directly for those.
func (p *parser) applyTimeCondition(b *Builder, op Operator, value string) error {
	if !strings.EqualFold(value, "now()") {
		return fmt.Errorf("time condition must start with now(), got %q", value)
	}

	tok, ok := p.peek()
	if !ok || tok != "-" {
		// Bare "time >= now()" with no offset: a 1ms-wide range starting at now.
		b.TimeRange(chrntypes.TimeRange{Start: time.Now().UnixMilli(), End: time.Now().UnixMilli() + 1})
		return nil
	}
	p.next()

	offsetTok, ok := p.next()
	if !ok {
		return fmt.Errorf("expected duration after now() -")
	}
	m := relativeTimePattern.FindStringSubmatch(offsetTok)
	if m == nil {
		return fmt.Errorf("invalid relative duration %q (want e.g. 7d, 24h, 30m)", offsetTok)
	}
	n, _ := strconv.Atoi(m[1])
	switch m[2] {
	case "d":
		b.LastDays(n)
	case "h":
		b.LastHours(n)
	case "m":
		b.LastMinutes(n)
	}
	_ = op // comparison direction is always "at least this far back" for now()-relative queries
	return nil
}

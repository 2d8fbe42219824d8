package esi

import (
	"bytes"
	"sort"
)

// Kind tells directive records from comment records.
type Kind int

const (
	// KindDirective marks an <esi:include/> tag.
	KindDirective Kind = iota + 1

	// KindComment marks a well-formed <!--esi ... --> block.
	KindComment
)

func (k Kind) String() string {
	switch k {
	case KindDirective:
		return "directive"
	case KindComment:
		return "comment"
	default:
		return "unknown"
	}
}

// Directive holds the attributes captured from an include tag.
// An attribute given more than once keeps its last value.
type Directive struct {
	Src     string
	Alt     string
	OnError string

	// Other is the last attribute token that is not src, alt or onerror.
	Other string

	// Raw is the complete tag text.
	Raw string
}

// Valid reports whether the tag names a src and nothing unrecognized.
func (d Directive) Valid() bool {
	return d.Src != "" && d.Other == ""
}

// ContinueOnError reports whether a failed include is replaced by nothing.
func (d Directive) ContinueOnError() bool {
	return d.OnError == "continue"
}

// Match is one scanned record covering body[Start:End].
type Match struct {
	Kind      Kind
	Start     int
	End       int
	Directive Directive // set for KindDirective
}

// Contains reports whether m strictly encloses other.
func (m Match) Contains(other Match) bool {
	return m.Start < other.Start && m.End > other.End
}

var (
	includeOpen  = []byte("<esi:include")
	commentOpen  = []byte("<!--esi")
	commentClose = []byte("--")
	tagClose     = []byte("/>")
)

// Scan returns the comment and directive records of body ordered by start.
func Scan(body []byte) []Match {
	comments := scanComments(body)
	directives := scanDirectives(body)

	matches := make([]Match, 0, len(comments)+len(directives))
	matches = append(matches, comments...)
	matches = append(matches, directives...)
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Start < matches[j].Start
	})
	return matches
}

// scanComments finds <!--esi blocks. The first "--" after the opener must be
// directly followed by '>'; otherwise the block is not a comment and the
// search resumes one byte after its opener.
func scanComments(body []byte) []Match {
	var comments []Match
	for pos := 0; pos < len(body); {
		i := bytes.Index(body[pos:], commentOpen)
		if i < 0 {
			break
		}
		start := pos + i

		j := bytes.Index(body[start+len(commentOpen):], commentClose)
		if j < 0 {
			break
		}
		end := start + len(commentOpen) + j + len(commentClose)

		if end >= len(body) || body[end] != '>' {
			pos = start + 1
			continue
		}
		comments = append(comments, Match{Kind: KindComment, Start: start, End: end + 1})
		pos = end
	}
	return comments
}

// scanDirectives finds non-overlapping include tags from left to right.
// Text that looks like a tag but does not parse is skipped.
func scanDirectives(body []byte) []Match {
	var directives []Match

	// shared by all openers: an unterminated tag can run into later ones
	p := tagParser{body: body, failed: make(map[parseState]struct{})}
	for pos := 0; pos < len(body); {
		i := bytes.Index(body[pos:], includeOpen)
		if i < 0 {
			break
		}
		start := pos + i

		end, attrs, ok := p.attributes(start+len(includeOpen), attrSet{}, false)
		if !ok {
			pos = start + 1
			continue
		}

		directives = append(directives, Match{
			Kind:  KindDirective,
			Start: start,
			End:   end,
			Directive: Directive{
				Src:     attrs.src.text(body),
				Alt:     attrs.alt.text(body),
				OnError: attrs.onError.text(body),
				Other:   attrs.other.text(body),
				Raw:     string(body[start:end]),
			},
		})
		pos = end
	}
	return directives
}

// span is a captured value body[start:end].
type span struct {
	start, end int
}

func (s span) text(body []byte) string {
	return string(body[s.start:s.end])
}

type attrSet struct {
	src, alt, onError, other span
}

type parseState struct {
	pos     int
	started bool
}

// tagParser matches the attribute list of one include tag:
//
//	(\s+(src=V|alt=V|onerror=V|[^\s><]+|))+\s*/>   where V = ["']?[^"'\s]*["']?
//
// Alternatives are tried in order and quantifiers are greedy, backtracking
// until the whole tag matches. Whether a position can complete the tag does
// not depend on the attributes captured so far nor on where the tag opened,
// so failed positions are remembered for the whole body and never explored
// twice.
type tagParser struct {
	body   []byte
	failed map[parseState]struct{}
}

var namedAttrs = []struct {
	prefix []byte
	set    func(*attrSet, span)
}{
	{[]byte("src="), func(a *attrSet, v span) { a.src = v }},
	{[]byte("alt="), func(a *attrSet, v span) { a.alt = v }},
	{[]byte("onerror="), func(a *attrSet, v span) { a.onError = v }},
}

// attributes matches the remaining attribute list from pos and returns the
// end of the tag.
func (p *tagParser) attributes(pos int, attrs attrSet, started bool) (int, attrSet, bool) {
	state := parseState{pos: pos, started: started}
	if _, ok := p.failed[state]; ok {
		return 0, attrs, false
	}

	if end, out, ok := p.attribute(pos, attrs); ok {
		return end, out, true
	}
	if started {
		for ws := p.spaceRun(pos); ws >= 0; ws-- {
			if bytes.HasPrefix(p.body[pos+ws:], tagClose) {
				return pos + ws + len(tagClose), attrs, true
			}
		}
	}

	p.failed[state] = struct{}{}
	return 0, attrs, false
}

// attribute matches one whitespace-led attribute at pos and the rest of the
// tag after it.
func (p *tagParser) attribute(pos int, attrs attrSet) (int, attrSet, bool) {
	for ws := p.spaceRun(pos); ws >= 1; ws-- {
		at := pos + ws

		for _, named := range namedAttrs {
			if !bytes.HasPrefix(p.body[at:], named.prefix) {
				continue
			}
			if end, out, ok := p.value(at+len(named.prefix), attrs, named.set); ok {
				return end, out, true
			}
		}

		for n := p.tokenRun(at); n >= 1; n-- {
			next := attrs
			next.other = span{start: at, end: at + n}
			if end, out, ok := p.attributes(at+n, next, true); ok {
				return end, out, true
			}
		}

		// empty attribute
		if end, out, ok := p.attributes(at, attrs, true); ok {
			return end, out, true
		}
	}
	return 0, attrs, false
}

// value matches an optionally quoted attribute value at pos.
func (p *tagParser) value(pos int, attrs attrSet, set func(*attrSet, span)) (int, attrSet, bool) {
	for _, open := range p.optionalQuote(pos) {
		start := pos + open
		for n := p.valueRun(start); n >= 0; n-- {
			for _, closing := range p.optionalQuote(start + n) {
				next := attrs
				set(&next, span{start: start, end: start + n})
				if end, out, ok := p.attributes(start+n+closing, next, true); ok {
					return end, out, true
				}
			}
		}
	}
	return 0, attrs, false
}

// optionalQuote lists the widths ["']? can take at pos, greedy first.
func (p *tagParser) optionalQuote(pos int) []int {
	if pos < len(p.body) && isQuote(p.body[pos]) {
		return []int{1, 0}
	}
	return []int{0}
}

func (p *tagParser) spaceRun(pos int) int {
	n := 0
	for pos+n < len(p.body) && isSpace(p.body[pos+n]) {
		n++
	}
	return n
}

func (p *tagParser) valueRun(pos int) int {
	n := 0
	for pos+n < len(p.body) {
		c := p.body[pos+n]
		if isQuote(c) || isSpace(c) {
			break
		}
		n++
	}
	return n
}

func (p *tagParser) tokenRun(pos int) int {
	n := 0
	for pos+n < len(p.body) {
		c := p.body[pos+n]
		if isSpace(c) || c == '<' || c == '>' {
			break
		}
		n++
	}
	return n
}

func isQuote(c byte) bool {
	return c == '"' || c == '\''
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	}
	return false
}

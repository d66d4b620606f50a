// Package parser separates reasoning from answer text in model streams.
package parser

import "strings"

const (
	openTag  = "<thinking>"
	closeTag = "</thinking>"
)

// ThinkingParser splits streamed content into <thinking> sections and
// answer text. Tags may be split across chunks; a '<' that does not start
// a thinking tag is passed through unchanged.
type ThinkingParser struct {
	tag        strings.Builder
	inTag      bool
	inThinking bool
}

// NewThinkingParser creates a new thinking parser.
func NewThinkingParser() *ThinkingParser {
	return &ThinkingParser{}
}

type splitter struct {
	thinking strings.Builder
	message  strings.Builder
}

func (s *splitter) write(inThinking bool, text string) {
	if inThinking {
		s.thinking.WriteString(text)
	} else {
		s.message.WriteString(text)
	}
}

// Parse consumes one chunk and returns the thinking and answer text it
// completes. Text that might still be a tag is held back until the next
// chunk or Flush.
func (p *ThinkingParser) Parse(content string) (thinking, message string) {
	var out splitter
	for _, ch := range content {
		switch {
		case ch == '<':
			if p.inTag {
				out.write(p.inThinking, p.tag.String())
			}
			p.inTag = true
			p.tag.Reset()
			p.tag.WriteRune(ch)

		case p.inTag:
			p.tag.WriteRune(ch)
			candidate := p.tag.String()
			switch {
			case candidate == openTag:
				p.inThinking = true
				p.endTag()
			case candidate == closeTag:
				p.inThinking = false
				p.endTag()
			case !strings.HasPrefix(openTag, candidate) && !strings.HasPrefix(closeTag, candidate):
				out.write(p.inThinking, candidate)
				p.endTag()
			}

		default:
			out.write(p.inThinking, string(ch))
		}
	}
	return out.thinking.String(), out.message.String()
}

func (p *ThinkingParser) endTag() {
	p.inTag = false
	p.tag.Reset()
}

// IsInThinking reports whether the parser is inside a thinking section.
func (p *ThinkingParser) IsInThinking() bool {
	return p.inThinking
}

// Flush returns text held back at the end of the stream.
func (p *ThinkingParser) Flush() (thinking, message string) {
	if !p.inTag {
		return "", ""
	}
	var out splitter
	out.write(p.inThinking, p.tag.String())
	p.endTag()
	return out.thinking.String(), out.message.String()
}

// Reset clears the parser state for a new stream.
func (p *ThinkingParser) Reset() {
	p.endTag()
	p.inThinking = false
}

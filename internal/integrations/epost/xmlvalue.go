package epost

import (
	"encoding/xml"
	"io"
	"strings"
)

// ExtractValue pulls a single tag's text out of a carrier response body.
// Both <tag>value</tag> and <tag><![CDATA[value]]></tag> forms occur in the
// wild; when a body carries both, the CDATA form wins.
// Tag matching is case-sensitive because the legacy dialects differ exactly
// by tag casing.
func ExtractValue(body, tag string) (string, bool) {
	if v, ok := extractCDATA(body, tag); ok {
		return v, true
	}
	return extractText(body, tag)
}

func extractCDATA(body, tag string) (string, bool) {
	open := "<" + tag + ">"
	idx := 0
	for {
		i := strings.Index(body[idx:], open)
		if i < 0 {
			return "", false
		}
		start := idx + i + len(open)
		rest := strings.TrimLeft(body[start:], " \t\r\n")
		if strings.HasPrefix(rest, "<![CDATA[") {
			inner := rest[len("<![CDATA["):]
			if j := strings.Index(inner, "]]>"); j >= 0 {
				return inner[:j], true
			}
		}
		idx = start
	}
}

// extractText walks the body with a lenient XML tokenizer. Legacy responses
// are not always well-formed, so strictness is off and HTML entities are
// accepted.
func extractText(body, tag string) (string, bool) {
	dec := xml.NewDecoder(strings.NewReader(body))
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity

	depth := 0
	var buf strings.Builder
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return "", false
		}
		if err != nil {
			return "", false
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == tag {
				depth++
			}
		case xml.EndElement:
			if t.Name.Local == tag && depth > 0 {
				return strings.TrimSpace(buf.String()), true
			}
		case xml.CharData:
			if depth > 0 {
				buf.Write(t)
			}
		}
	}
}

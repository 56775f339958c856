package export

import (
	"fmt"
	"strings"

	"github.com/loanserve/backend/internal/core"
)

// RenderXML builds the template's XML document. Each leaf element is
// preceded by a lineage comment naming the canonical key, source document,
// page, and text hash.
func RenderXML(t *Template, points map[string]core.Datapoint) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	fmt.Fprintf(&b, "<%s>\n", t.Root)

	for _, section := range t.SectionNames() {
		fmt.Fprintf(&b, "  <%s>\n", section)
		for _, key := range t.SectionKeys(section) {
			dp, ok := points[key]
			if !ok {
				continue
			}
			fmt.Fprintf(&b, "    <!-- LINEAGE canonical:%s | doc:%s | page:%d | hash:%s -->\n",
				key, dp.EvidenceDocID, dp.EvidencePage, dp.EvidenceTextHash)
			writeLeaf(&b, t.Sections[section][key], Coerce(key, dp.Value), 4)
		}
		fmt.Fprintf(&b, "  </%s>\n", section)
	}

	fmt.Fprintf(&b, "</%s>\n", t.Root)
	return []byte(b.String())
}

// writeLeaf emits a possibly nested element path like "Borrower/Name".
func writeLeaf(b *strings.Builder, path, value string, indent int) {
	segments := strings.Split(path, "/")
	pad := strings.Repeat(" ", indent)
	for i, seg := range segments[:len(segments)-1] {
		fmt.Fprintf(b, "%s<%s>\n", pad+strings.Repeat("  ", i), seg)
	}
	leafPad := pad + strings.Repeat("  ", len(segments)-1)
	leaf := segments[len(segments)-1]
	fmt.Fprintf(b, "%s<%s>%s</%s>\n", leafPad, leaf, escapeXML(value), leaf)
	for i := len(segments) - 2; i >= 0; i-- {
		fmt.Fprintf(b, "%s</%s>\n", pad+strings.Repeat("  ", i), segments[i])
	}
}

func escapeXML(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&apos;")
	return r.Replace(s)
}

// RenderCSV builds the custom CSV delivery: the verbatim header row plus one
// value row in header order.
func RenderCSV(t *Template, points map[string]core.Datapoint) []byte {
	var b strings.Builder

	cols := make([]string, len(t.CSV.Header))
	for i, col := range t.CSV.Header {
		cols[i] = csvEscape(col)
	}
	b.WriteString(strings.Join(cols, ","))
	b.WriteString("\n")

	values := make([]string, len(t.CSV.Header))
	for i, col := range t.CSV.Header {
		key := t.CSV.Mapping[col]
		if dp, ok := points[key]; ok {
			values[i] = csvEscape(Coerce(key, dp.Value))
		}
	}
	b.WriteString(strings.Join(values, ","))
	b.WriteString("\n")
	return []byte(b.String())
}

// csvEscape quotes fields containing comma, quote, or newline, doubling
// embedded quotes.
func csvEscape(field string) string {
	if strings.ContainsAny(field, ",\"\n\r") {
		return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
	}
	return field
}

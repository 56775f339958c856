package export

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loanserve/backend/internal/core"
)

func xmlTemplate() *Template {
	return &Template{
		Name:   "fannie",
		Format: "xml",
		Root:   "LOAN_DELIVERY",
		Sections: map[string]map[string]string{
			"TERMS_OF_LOAN": {
				"loan_amount":   "BaseLoanAmount",
				"interest_rate": "NoteRatePercent",
			},
			"BORROWER": {
				"borrower_name": "INDIVIDUAL/IndividualFullName",
			},
		},
	}
}

func dp(key, value, docID string, page int, hash string) core.Datapoint {
	return core.Datapoint{
		Key: key, Value: value,
		EvidenceDocID: docID, EvidencePage: page, EvidenceTextHash: hash,
	}
}

func TestRenderXML(t *testing.T) {
	points := map[string]core.Datapoint{
		"loan_amount":   dp("loan_amount", "$250,000.00", "doc-1", 1, "abc123"),
		"interest_rate": dp("interest_rate", "7.125", "doc-1", 1, "def456"),
		"borrower_name": dp("borrower_name", "Jane & Co.", "doc-2", 3, "777aaa"),
	}

	out := string(RenderXML(xmlTemplate(), points))

	assert.True(t, strings.HasPrefix(out, `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, out, "<LOAN_DELIVERY>")
	assert.Contains(t, out, "</LOAN_DELIVERY>")

	// Sections render alphabetically, so BORROWER comes first.
	assert.Less(t, strings.Index(out, "<BORROWER>"), strings.Index(out, "<TERMS_OF_LOAN>"))

	// Every leaf carries its lineage comment directly above it.
	assert.Contains(t, out, "<!-- LINEAGE canonical:loan_amount | doc:doc-1 | page:1 | hash:abc123 -->")
	assert.Contains(t, out, "<BaseLoanAmount>250000.00</BaseLoanAmount>")

	// Nested paths open and close intermediate elements.
	assert.Contains(t, out, "<INDIVIDUAL>")
	assert.Contains(t, out, "</INDIVIDUAL>")
	assert.Contains(t, out, "<IndividualFullName>Jane &amp; Co.</IndividualFullName>")
}

func TestRenderXMLSkipsAbsentKeys(t *testing.T) {
	points := map[string]core.Datapoint{
		"loan_amount": dp("loan_amount", "100000", "doc-1", 1, "h1"),
	}
	out := string(RenderXML(xmlTemplate(), points))
	assert.NotContains(t, out, "NoteRatePercent")
	assert.NotContains(t, out, "IndividualFullName")
}

func TestEscapeXML(t *testing.T) {
	assert.Equal(t, "&lt;a&gt; &amp; &quot;b&quot; &apos;c&apos;", escapeXML(`<a> & "b" 'c'`))
}

func TestRenderCSV(t *testing.T) {
	tmpl := &Template{
		Name:   "custom",
		Format: "csv",
		CSV: CSVSpec{
			Header: []string{"LoanAmount", "BorrowerName", "InterestRate"},
			Mapping: map[string]string{
				"LoanAmount":   "loan_amount",
				"BorrowerName": "borrower_name",
				"InterestRate": "interest_rate",
			},
		},
	}
	points := map[string]core.Datapoint{
		"loan_amount":   dp("loan_amount", "$250,000.00", "doc-1", 1, "h1"),
		"borrower_name": dp("borrower_name", `Smith, "JQ"`, "doc-2", 1, "h2"),
	}

	out := string(RenderCSV(tmpl, points))
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 2)

	assert.Equal(t, "LoanAmount,BorrowerName,InterestRate", lines[0])
	// Missing interest_rate renders as an empty cell; quotes are doubled.
	assert.Equal(t, `250000.00,"Smith, ""JQ""",`, lines[1])
}

func TestCSVEscape(t *testing.T) {
	assert.Equal(t, "plain", csvEscape("plain"))
	assert.Equal(t, `"a,b"`, csvEscape("a,b"))
	assert.Equal(t, `"say ""hi"""`, csvEscape(`say "hi"`))
	assert.Equal(t, "\"line\nbreak\"", csvEscape("line\nbreak"))
}

package extract

import (
	"regexp"

	"github.com/loanserve/backend/internal/core"
)

// ExtractorVersion is stamped on every deterministic hit.
const ExtractorVersion = "regex-1.4.0"

// Rule finds one datapoint in reflowed OCR text. The label pattern anchors
// the search; the value pattern is only matched inside a proximity window of
// Window characters after the label. Keeping the two patterns separate is
// what makes the rules survive noisy OCR: a value regex alone would match
// the wrong number half the time.
type Rule struct {
	Key     string
	Label   *regexp.Regexp
	Window  int
	Value   *regexp.Regexp
	Convert func(raw string) (any, bool)
}

func money(raw string) (any, bool) {
	v, err := NormalizeMoney(raw)
	return v, err == nil
}

func percent(raw string) (any, bool) {
	v, err := NormalizePercent(raw)
	return v, err == nil
}

func integer(raw string) (any, bool) {
	v, err := NormalizeInt(raw)
	return v, err == nil
}

func boolean(raw string) (any, bool) {
	v := NormalizeBool(raw)
	return v, v != nil
}

func date(raw string) (any, bool) {
	v := NormalizeDate(raw)
	return v, v != nil
}

func text(raw string) (any, bool) {
	return raw, raw != ""
}

// Shared value fragments. Composed into rules rather than inlined so windows
// and value shapes stay independently tunable.
var (
	moneyPat   = regexp.MustCompile(`\$?\s*[\d,]+(?:\.\d{1,2})?`)
	percentPat = regexp.MustCompile(`\d{1,2}(?:\.\d{1,4})?\s*%?`)
	intPat     = regexp.MustCompile(`\d+`)
	datePat    = regexp.MustCompile(`\d{4}-\d{1,2}-\d{1,2}|\d{1,2}/\d{1,2}/\d{2,4}|[A-Za-z]+\.?\s+\d{1,2},?\s+\d{4}|\d{1,2}[-\s][A-Za-z]{3,}[-\s]\d{4}`)
	boolPat    = regexp.MustCompile(`(?i)yes|no|not\s+required|required`)
	linePat    = regexp.MustCompile(`[^\n]{3,120}`)
)

func rule(key string, label string, window int, value *regexp.Regexp, convert func(string) (any, bool)) Rule {
	return Rule{
		Key:     key,
		Label:   regexp.MustCompile(`(?i)` + label),
		Window:  window,
		Value:   value,
		Convert: convert,
	}
}

// rulesByDocType is the ordered rule set per document type. First hit wins
// per key.
var rulesByDocType = map[core.DocType][]Rule{
	core.DocNote: {
		rule("NoteAmount", `NOTE\s+AMOUNT|PRINCIPAL\s+AMOUNT|AMOUNT\s+OF\s+NOTE`, 400, moneyPat, money),
		rule("NoteRate", `INTEREST\s+RATE|NOTE\s+RATE|YEARLY\s+RATE`, 300, percentPat, percent),
		rule("OriginationDate", `DATE\s+OF\s+NOTE|NOTE\s+DATE|DATED`, 200, datePat, date),
		rule("MaturityDate", `MATURITY\s+DATE|FINAL\s+PAYMENT\s+DUE`, 300, datePat, date),
		rule("MonthlyPayment", `MONTHLY\s+PAYMENT|PAYMENT\s+AMOUNT`, 300, moneyPat, money),
		rule("TermMonths", `TERM\s+OF|NUMBER\s+OF\s+PAYMENTS`, 200, intPat, integer),
		rule("BorrowerName", `BORROWER\(?S?\)?:?`, 150, linePat, text),
	},
	core.DocCD: {
		rule("LoanAmount", `LOAN\s+AMOUNT`, 300, moneyPat, money),
		rule("InterestRate", `INTEREST\s+RATE`, 300, percentPat, percent),
		rule("MonthlyPrincipalInterest", `MONTHLY\s+PRINCIPAL\s*&?\s*INTEREST`, 300, moneyPat, money),
		rule("ClosingDate", `CLOSING\s+DATE`, 200, datePat, date),
		rule("CashToClose", `CASH\s+TO\s+CLOSE`, 300, moneyPat, money),
		rule("EscrowRequired", `ESCROW\s+ACCOUNT\??`, 400, boolPat, boolean),
		rule("LoanTermYears", `LOAN\s+TERM`, 200, intPat, integer),
	},
	core.DocHOI: {
		rule("PolicyNumber", `POLICY\s+(?:NO|NUMBER)\.?:?`, 200, regexp.MustCompile(`[A-Z0-9-]{5,30}`), text),
		rule("DwellingCoverage", `DWELLING\s+COVERAGE|COVERAGE\s+A`, 300, moneyPat, money),
		rule("AnnualPremium", `ANNUAL\s+PREMIUM|TOTAL\s+PREMIUM`, 300, moneyPat, money),
		rule("EffectiveDate", `EFFECTIVE\s+DATE|POLICY\s+PERIOD`, 250, datePat, date),
		rule("ExpirationDate", `EXPIRATION\s+DATE|POLICY\s+EXPIRES`, 250, datePat, date),
		rule("InsuredName", `NAMED\s+INSURED:?`, 150, linePat, text),
	},
	core.DocFlood: {
		rule("FloodZone", `FLOOD\s+ZONE`, 200, regexp.MustCompile(`[A-Z]{1,2}\d{0,2}`), text),
		rule("FloodInsuranceRequired", `FLOOD\s+INSURANCE\s+(?:IS\s+)?REQUIRED|INSURANCE\s+REQUIRED\??`, 300, boolPat, boolean),
		rule("CommunityNumber", `COMMUNITY\s+(?:NO|NUMBER)\.?`, 200, intPat, integer),
		rule("DeterminationDate", `DATE\s+OF\s+DETERMINATION|DETERMINATION\s+DATE`, 250, datePat, date),
	},
	core.DocAppraisal: {
		rule("AppraisedValue", `APPRAISED\s+VALUE|OPINION\s+OF\s+VALUE|MARKET\s+VALUE`, 400, moneyPat, money),
		rule("AppraisalDate", `EFFECTIVE\s+DATE\s+OF\s+APPRAISAL|DATE\s+OF\s+APPRAISAL`, 300, datePat, date),
		rule("PropertyAddress", `PROPERTY\s+ADDRESS:?`, 200, linePat, text),
		rule("AppraiserLicense", `LICENSE\s+(?:NO|NUMBER|#)\.?:?`, 200, regexp.MustCompile(`[A-Z0-9-]{4,20}`), text),
	},
	core.DocDeed: {
		rule("GrantorName", `GRANTOR:?`, 150, linePat, text),
		rule("GranteeName", `GRANTEE:?`, 150, linePat, text),
		rule("RecordingDate", `RECORDED?\s+(?:ON|DATE)`, 250, datePat, date),
		rule("LegalDescription", `LEGAL\s+DESCRIPTION:?`, 300, linePat, text),
	},
	core.DocLE: {
		rule("LoanAmount", `LOAN\s+AMOUNT`, 300, moneyPat, money),
		rule("InterestRate", `INTEREST\s+RATE`, 300, percentPat, percent),
		rule("EstimatedClosingCosts", `ESTIMATED\s+CLOSING\s+COSTS`, 300, moneyPat, money),
		rule("EstimatedCashToClose", `ESTIMATED\s+CASH\s+TO\s+CLOSE`, 300, moneyPat, money),
		rule("RateLock", `RATE\s+LOCK\??`, 200, boolPat, boolean),
	},
}

// RulesFor returns the ordered rules for a document type.
func RulesFor(docType core.DocType) []Rule {
	return rulesByDocType[docType]
}

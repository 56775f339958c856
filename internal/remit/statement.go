package remit

import (
	"fmt"
	"strings"

	"github.com/loanserve/backend/internal/core"
)

// statementHeader is the fixed loan activity column order.
const statementHeader = "LoanId,UPB_Beg,UPB_End,Principal,Interest,Escrow,Fees,SvcFee,StripIO,Net"

// StatementCSV renders the loan activity report: one row per item in run
// order, amounts at 2 decimals, trailing newline.
func StatementCSV(items []core.RemittanceItem) []byte {
	var b strings.Builder
	b.WriteString(statementHeader)
	b.WriteString("\n")
	for _, it := range items {
		fmt.Fprintf(&b, "%s,%.2f,%.2f,%.2f,%.2f,%.2f,%.2f,%.2f,%.2f,%.2f\n",
			it.LoanID, it.UPBBegin, it.UPBEnd, it.Principal, it.Interest,
			it.Escrow, it.Fees, it.SvcFee, it.StripIO, it.NetRemit)
	}
	return []byte(b.String())
}

package vendorhttp

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/loanserve/backend/internal/core"
)

// Verifier runs the external verification sweep for one loan: SSR for the
// appraisal, flood determination for the property, title and HOI checks.
// Results come back as vendor_api candidates for the authority matrix.
type Verifier struct {
	ucdp   *UCDP
	flood  *Flood
	title  *Title
	hoi    *HOI
	logger *log.Logger
	now    func() time.Time
}

func NewVerifier(ucdp *UCDP, flood *Flood, title *Title, hoi *HOI) *Verifier {
	return &Verifier{
		ucdp:   ucdp,
		flood:  flood,
		title:  title,
		hoi:    hoi,
		logger: log.New(log.Writer(), "[VERIFY] ", log.LstdFlags),
		now:    time.Now,
	}
}

// VerifyLoan calls each vendor whose input datapoint is present. A vendor
// failure skips that vendor; the sweep never fails as a whole.
func (v *Verifier) VerifyLoan(ctx context.Context, tenantID string, points map[string]core.Datapoint) []core.Candidate {
	var out []core.Candidate
	ts := v.now().UTC()

	if dp, ok := points["appraisal_id"]; ok && v.ucdp != nil {
		if resp, err := v.ucdp.SSR(ctx, tenantID, dp.Value); err != nil {
			v.logger.Printf("⚠️  UCDP SSR failed: %v", err)
		} else {
			out = append(out, vendorCandidates(resp, map[string]string{
				"appraisedValue": "appraised_value",
				"ssrScore":       "ssr_score",
			}, ts)...)
		}
	}

	if dp, ok := points["property_address"]; ok && v.flood != nil {
		if resp, err := v.flood.Determine(ctx, tenantID, dp.Value); err != nil {
			v.logger.Printf("⚠️  Flood determination failed: %v", err)
		} else {
			out = append(out, vendorCandidates(resp, map[string]string{
				"floodZone":         "flood_zone",
				"insuranceRequired": "flood_insurance_required",
				"communityNumber":   "community_number",
			}, ts)...)
		}
	}

	if dp, ok := points["title_order_number"]; ok && v.title != nil {
		if resp, err := v.title.Verify(ctx, tenantID, dp.Value); err != nil {
			v.logger.Printf("⚠️  Title verification failed: %v", err)
		} else {
			out = append(out, vendorCandidates(resp, map[string]string{
				"lienStatus":  "lien_status",
				"vestingName": "vesting_name",
			}, ts)...)
		}
	}

	if dp, ok := points["policy_number"]; ok && v.hoi != nil {
		if resp, err := v.hoi.Verify(ctx, tenantID, dp.Value); err != nil {
			v.logger.Printf("⚠️  HOI verification failed: %v", err)
		} else {
			out = append(out, vendorCandidates(resp, map[string]string{
				"annualPremium":    "annual_premium",
				"dwellingCoverage": "dwelling_coverage",
				"policyStatus":     "policy_status",
			}, ts)...)
		}
	}

	v.logger.Printf("Vendor sweep produced %d candidates", len(out))
	return out
}

// vendorCandidates lifts selected response fields into candidates.
func vendorCandidates(resp map[string]any, fields map[string]string, ts time.Time) []core.Candidate {
	var out []core.Candidate
	for respKey, canonical := range fields {
		val, ok := resp[respKey]
		if !ok || val == nil {
			continue
		}
		out = append(out, core.Candidate{
			Key:        canonical,
			Value:      val,
			Source:     core.SourceVendorAPI,
			Confidence: 0.95,
			Timestamp:  ts,
			Evidence:   core.Evidence{Snippet: fmt.Sprintf("%s=%v", respKey, val)},
		})
	}
	return out
}

package risk

import "strings"

// DeriveMetadata computes the categorical buckets for a verdict. A bucket
// whose input is missing (failed source or absent field) is "unknown".
func DeriveMetadata(rep ReputationRecord, chain ChainRecord, warnings []string) Metadata {
	redFlags := 0
	for _, w := range warnings {
		if strings.Contains(w, CriticalMarker) {
			redFlags++
		}
	}

	return Metadata{
		TaxRisk:            TaxRisk(rep),
		CentralizationRisk: CentralizationRisk(rep),
		TechnicalRisk:      TechnicalRisk(chain),
		RedFlags:           redFlags,
		PassedBasicChecks: chain.OK() && chain.IsERC20 &&
			rep.OK() && rep.IsHoneypot.IsFalse() &&
			redFlags == 0,
	}
}

// TaxRisk buckets the larger of buy and sell tax.
func TaxRisk(rep ReputationRecord) Bucket {
	if !rep.OK() || (rep.BuyTax == nil && rep.SellTax == nil) {
		return BucketUnknown
	}
	var tax float64
	if rep.BuyTax != nil {
		tax = *rep.BuyTax
	}
	if rep.SellTax != nil && *rep.SellTax > tax {
		tax = *rep.SellTax
	}

	switch {
	case tax <= 0:
		return BucketNone
	case tax <= 5:
		return BucketLow
	case tax <= 10:
		return BucketMedium
	case tax <= 20:
		return BucketHigh
	default:
		return BucketCritical
	}
}

// CentralizationRisk buckets the top-10 holders' share of supply.
func CentralizationRisk(rep ReputationRecord) Bucket {
	if !rep.OK() || rep.Top10Percent == nil {
		return BucketUnknown
	}
	pct := *rep.Top10Percent

	switch {
	case pct <= 0:
		return BucketNone
	case pct <= 30:
		return BucketLow
	case pct <= 50:
		return BucketMedium
	case pct <= 75:
		return BucketHigh
	default:
		return BucketCritical
	}
}

// TechnicalRisk buckets the chain source's contract checks.
func TechnicalRisk(chain ChainRecord) Bucket {
	if !chain.OK() {
		return BucketUnknown
	}
	if !chain.IsContract {
		return BucketCritical
	}
	if !chain.IsERC20 {
		return BucketHigh
	}

	switch failed := chain.Checks.Failed(); {
	case failed == 0:
		return BucketNone
	case failed <= 1:
		return BucketLow
	case failed <= 2:
		return BucketMedium
	case failed <= 3:
		return BucketHigh
	default:
		return BucketCritical
	}
}

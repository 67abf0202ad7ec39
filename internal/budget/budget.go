package budget

import (
	"fmt"
	"math"
)

// Indexing and per-page prices in USD. These mirror the published rates of
// the hosted store and the scraping platform at the time of writing.
const (
	IndexingUSDPerMillionTokens = 0.15
	RunStartFeeUSD              = 0.02
	PerPageFeeUSD               = 0.0025
)

// EstimateTokensFromChars converts a character count into an estimated token
// count using a conservative heuristic (~4 chars per token in English). The
// result is always at least 1 when chars > 0.
func EstimateTokensFromChars(charCount int) int {
	if charCount <= 0 {
		return 0
	}
	// Keep conservative to avoid overruns. Use ceiling for safety.
	return int(math.Ceil(float64(charCount) / 4.0))
}

// EstimateTokens returns the estimated token count of a string.
func EstimateTokens(s string) int {
	return EstimateTokensFromChars(len(s))
}

// EstimateTokensBytes is EstimateTokens for a byte slice.
func EstimateTokensBytes(b []byte) int {
	return EstimateTokensFromChars(len(b))
}

// IndexingCostUSD returns the one-time cost of embedding tokens in the store,
// rounded to a tenth of a cent.
func IndexingCostUSD(tokens int) float64 {
	if tokens <= 0 {
		return 0
	}
	cost := float64(tokens) / 1_000_000 * IndexingUSDPerMillionTokens
	return math.Round(cost*10000) / 10000
}

// Pricing is the charge for one run.
type Pricing struct {
	StartFeeUSD float64 `json:"start_fee_usd"`
	PerPageUSD  float64 `json:"per_page_usd"`
	Pages       int     `json:"pages"`
	TotalUSD    float64 `json:"total_usd"`
}

// RunPricing charges the start fee plus the per-page fee for pages that
// ended up in an uploaded document.
func RunPricing(pages int) Pricing {
	if pages < 0 {
		pages = 0
	}
	total := RunStartFeeUSD + float64(pages)*PerPageFeeUSD
	return Pricing{
		StartFeeUSD: RunStartFeeUSD,
		PerPageUSD:  PerPageFeeUSD,
		Pages:       pages,
		TotalUSD:    math.Round(total*10000) / 10000,
	}
}

// QueryCostEstimate is a human-readable per-query cost range. Queries are
// billed on retrieved context, which is independent of corpus size.
func QueryCostEstimate() string {
	return "~$0.0004-0.0008 per query (retrieval context only)"
}

// SizeMB converts bytes to megabytes with two decimals.
func SizeMB(bytes int64) float64 {
	if bytes <= 0 {
		return 0
	}
	return math.Round(float64(bytes)/(1024*1024)*100) / 100
}

// FormatUSD renders a dollar amount with four decimals.
func FormatUSD(v float64) string {
	return fmt.Sprintf("$%.4f", v)
}

package budget

import (
	"strconv"
	"strings"
	"testing"
)

func BenchmarkEstimateTokens(b *testing.B) {
	para := "Vector stores index Markdown documents for retrieval. "
	for _, paras := range []int{1, 50, 2000} {
		doc := strings.Repeat(para, paras)
		b.Run(strconv.Itoa(len(doc))+"B", func(b *testing.B) {
			b.SetBytes(int64(len(doc)))
			for i := 0; i < b.N; i++ {
				_ = EstimateTokens(doc)
			}
		})
	}
}

func BenchmarkRunPricing(b *testing.B) {
	for i := 0; i < b.N; i++ {
		p := RunPricing(i%2000 + 1)
		_ = FormatUSD(p.TotalUSD + IndexingCostUSD(p.Pages*1500))
	}
}

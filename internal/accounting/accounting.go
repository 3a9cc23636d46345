// Package accounting computes token costs and checks usage consistency.
package accounting

import (
	"fmt"

	"github.com/versolabs/verso/internal/catalog"
	"github.com/versolabs/verso/internal/llm"
)

// Cost returns the USD cost of one call. Thinking tokens bill at the
// output rate. Unknown pricing (zero rates) yields zero cost rather than
// an error; the caller decides whether that matters.
func Cost(usage llm.Usage, pricing catalog.Pricing) float64 {
	in := float64(usage.PromptTokens) / 1e6 * pricing.InputPerMTok
	out := float64(usage.CompletionTokens+usage.ThinkingTokens) / 1e6 * pricing.OutputPerMTok
	return in + out
}

// CheckIdentity verifies prompt + completion + thinking == total.
//
// Models that fold thinking tokens into the completion count would
// double-count under the strict identity, so for those the check also
// accepts prompt + completion == total.
func CheckIdentity(usage llm.Usage, foldsThinking bool) error {
	strict := usage.PromptTokens + usage.CompletionTokens + usage.ThinkingTokens
	if strict == usage.TotalTokens {
		return nil
	}
	if foldsThinking && usage.PromptTokens+usage.CompletionTokens == usage.TotalTokens {
		return nil
	}
	return fmt.Errorf("token identity violated: prompt=%d completion=%d thinking=%d total=%d",
		usage.PromptTokens, usage.CompletionTokens, usage.ThinkingTokens, usage.TotalTokens)
}

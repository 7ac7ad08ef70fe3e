package classifier

import (
	"fmt"
	"strings"

	"github.com/dvloznov/finance-graph/internal/domain"
)

// BuildSystemPrompt lists the taxonomy and the answer format for the model.
func BuildSystemPrompt(t *Taxonomy) string {
	var b strings.Builder
	b.WriteString("You categorize personal bank transactions.\n\n")
	b.WriteString("Use ONLY the following Categories and Subcategories:\n\n")

	for _, c := range t.categories {
		b.WriteString(c.Name + ":\n")
		if len(c.Subcategories) == 0 {
			b.WriteString("  (no subcategories - use empty string \"\")\n\n")
			continue
		}
		for _, s := range c.Subcategories {
			b.WriteString("  - " + s + "\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("CATEGORY ASSIGNMENT RULES:\n")
	b.WriteString("1. Category must be EXACTLY one of the category names shown above.\n")
	b.WriteString("2. If a category has subcategories listed, you MUST choose one of them - never use empty string.\n")
	b.WriteString("3. If a category shows \"(no subcategories)\", use empty string \"\" for subcategory.\n")
	b.WriteString("4. If you are unsure, use category \"Uncategorized\" with subcategory \"\" when it is listed.\n\n")

	b.WriteString("Return ONLY a raw JSON object of the form {\"category\": \"...\", \"subcategory\": \"...\"}.\n")
	b.WriteString("Do NOT wrap the response in code fences.\n")
	return b.String()
}

// TransactionPrompt is the opening user turn for one transaction.
func TransactionPrompt(tx domain.Transaction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Description: %s\n", tx.DisplayDescription())
	if tx.CleanDescription != "" && tx.CleanDescription != tx.Description {
		fmt.Fprintf(&b, "Raw description: %s\n", tx.Description)
	}
	fmt.Fprintf(&b, "Amount: %s\n", tx.Amount.StringFixed(domain.AmountScale))
	if tx.HasDate() {
		fmt.Fprintf(&b, "Date: %s\n", tx.Date.Format("2006-01-02 (Monday)"))
	}
	if tx.EmailSnippet != "" {
		fmt.Fprintf(&b, "Related email: %s\n", tx.EmailSnippet)
	}
	return b.String()
}

// CorrectionPrompt is the user turn sent after a rejected answer.
func CorrectionPrompt(err error) string {
	return "Your previous answer was rejected: " + err.Error() +
		". Reply again with a single JSON object {\"category\": \"...\", \"subcategory\": \"...\"} using only the allowed values."
}

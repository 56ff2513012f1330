package tools

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"customer-support-agent/internal/domain"
)

type ReturnPolicyInput struct {
	ProductCategory string `json:"product_category" jsonschema:"Electronics category (e.g., 'smartphones', 'laptops', 'accessories')"`
}

type returnPolicy struct {
	window     string
	condition  string
	process    string
	refundTime string
	shipping   string
	warranty   string
}

var returnPolicies = map[string]returnPolicy{
	"smartphones": {
		window:     "30 days",
		condition:  "Original packaging, no physical damage, factory reset required",
		process:    "Online RMA portal or technical support",
		refundTime: "5-7 business days after inspection",
		shipping:   "Free return shipping, prepaid label provided",
		warranty:   "1-year manufacturer warranty included",
	},
	"laptops": {
		window:     "30 days",
		condition:  "Original packaging, all accessories, no software modifications",
		process:    "Technical support verification required before return",
		refundTime: "7-10 business days after inspection",
		shipping:   "Free return shipping with original packaging",
		warranty:   "1-year manufacturer warranty, extended options available",
	},
	"accessories": {
		window:     "30 days",
		condition:  "Unopened packaging preferred, all components included",
		process:    "Online return portal",
		refundTime: "3-5 business days after receipt",
		shipping:   "Customer pays return shipping under $50",
		warranty:   "90-day manufacturer warranty",
	},
}

var defaultReturnPolicy = returnPolicy{
	window:     "30 days",
	condition:  "Original condition with all included components",
	process:    "Contact technical support",
	refundTime: "5-7 business days after inspection",
	shipping:   "Return shipping policies vary",
	warranty:   "Standard manufacturer warranty applies",
}

// GetReturnPolicy returns the return policy for a product category, or the
// default policy for unknown categories.
func GetReturnPolicy(in ReturnPolicyInput) domain.ToolResult {
	policy, ok := returnPolicies[strings.ToLower(strings.TrimSpace(in.ProductCategory))]
	if !ok {
		policy = defaultReturnPolicy
	}
	text := fmt.Sprintf(
		"Return Policy - %s:\n\n"+
			"* Return window: %s from delivery\n"+
			"* Condition: %s\n"+
			"* Process: %s\n"+
			"* Refund timeline: %s\n"+
			"* Shipping: %s\n"+
			"* Warranty: %s",
		titleCase(in.ProductCategory),
		policy.window, policy.condition, policy.process, policy.refundTime, policy.shipping, policy.warranty,
	)
	return domain.TextResult(text)
}

// titleCase capitalizes every word of s, treating hyphens as word breaks.
func titleCase(s string) string {
	return cases.Title(language.Und).String(s)
}

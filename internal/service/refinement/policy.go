package refinement

import (
	"regexp"
	"sort"
	"strings"
)

// Category names one kind of content policy violation.
type Category string

const (
	LegalAdvice  Category = "legal_advice"
	Defamation   Category = "defamation"
	Unverifiable Category = "unverifiable_claim"
	PromptLeak   Category = "prompt_leak"
	Length       Category = "length"
)

// Violation is one match of a policy rule.
type Violation struct {
	Category Category
	Match    string
}

type rule struct {
	category Category
	re       *regexp.Regexp
}

var rules = []rule{
	{LegalAdvice, regexp.MustCompile(`(?i)\byou (should|must|need to|ought to) (sue|file|hire|retain|consult|contest|plead|appeal)\b`)},
	{LegalAdvice, regexp.MustCompile(`(?i)\b(legal advice|as (your|my) (lawyer|attorney|counsel))\b`)},
	{LegalAdvice, regexp.MustCompile(`(?i)\b(under|pursuant to|in violation of) (section|§|statute|vehicle code|municipal code|penal code)\b`)},
	{LegalAdvice, regexp.MustCompile(`(?i)\b(i|we) (advise|recommend) (you|that you)\b`)},

	{Defamation, regexp.MustCompile(`(?i)\b(corrupt|crooked|crook|liar|lied|lying|fraud|fraudulent|scam|scammers?|thie(f|ves)|criminals?|idiots?|incompetent|racist|bribe[sd]?|extort(ion|ing)?)\b`)},

	{Unverifiable, regexp.MustCompile(`(?i)\b(guarantee[sd]?|definitely|certainly|undeniabl[ey]|indisputabl[ey]|beyond (any|all) doubt|proven fact|it is a fact that|everyone knows)\b`)},
	{Unverifiable, regexp.MustCompile(`(?i)\b(will|must) (be )?(dismissed|overturned|refunded|cancelled|voided)\b`)},
	{Unverifiable, regexp.MustCompile(`(?i)\b\d+(\.\d+)?\s?%`)},

	{PromptLeak, regexp.MustCompile(`(?i)</?\s*statement\s*>|&lt;/?statement&gt;`)},
	{PromptLeak, regexp.MustCompile(`(?i)\b(system prompt|content rules|my instructions|previous instructions|ignore (all|any|the|previous|prior) (instructions|rules))\b`)},
	{PromptLeak, regexp.MustCompile(`(?i)\b(as an ai|language model|i cannot comply|i can't comply|i'm sorry, but i)\b`)},
	{PromptLeak, regexp.MustCompile(`(?i)\b(developer mode|jailbreak|dan mode)\b`)},
}

// PolicyChecker validates model output before it is accepted.
type PolicyChecker struct {
	maxLen int
}

// NewPolicyChecker creates a checker. maxLen bounds the output in runes; zero
// disables the bound.
func NewPolicyChecker(maxLen int) *PolicyChecker {
	return &PolicyChecker{maxLen: maxLen}
}

// Check returns every violation in text. An empty result means compliant.
func (p *PolicyChecker) Check(text string) []Violation {
	var out []Violation
	if strings.TrimSpace(text) == "" {
		return []Violation{{Category: Length, Match: "empty"}}
	}
	if p.maxLen > 0 && len([]rune(text)) > p.maxLen {
		out = append(out, Violation{Category: Length, Match: "too long"})
	}
	for _, r := range rules {
		if m := r.re.FindString(text); m != "" {
			out = append(out, Violation{Category: r.category, Match: m})
		}
	}
	return out
}

func categories(vs []Violation) string {
	seen := make(map[Category]bool)
	var names []string
	for _, v := range vs {
		if !seen[v.Category] {
			seen[v.Category] = true
			names = append(names, string(v.Category))
		}
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

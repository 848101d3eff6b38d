package payslip

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

const (
	FormatText = "text"
	FormatHTML = "html"
)

// Placeholders are word-like names, so CSS rules and other brace groups in a
// template are left alone.
var tokenPattern = regexp.MustCompile(`\{([A-Za-z0-9_](?:[A-Za-z0-9 _.-]*[A-Za-z0-9_])?)\}`)

// DefaultTemplate is used when no template is supplied.
const DefaultTemplate = `PAYSLIP
{Month} {Year}

Employee:      {Name}
Role:          {Role}

Basic Salary:  {Basic Salary}
Allowances:    {Allowances}
Gross Pay:     {Gross Pay}
SSNIT:         {SSNIT}
Taxable:       {Taxable}
PAYE:          {PAYE}
Deductions:    {Deductions}
Net Pay:       {Net Pay}
`

type Template struct {
	Name   string
	Format string
	Ext    string
	body   string
	tokens []string
	policy *bluemonday.Policy
}

// ParseTemplate reads {Field} tokens from body. Every name in required must
// occur at least once.
func ParseTemplate(name string, body []byte, required []string) (*Template, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = ".txt"
	}
	t := &Template{Name: name, Format: FormatText, Ext: ext, body: string(body)}
	if ext == ".html" || ext == ".htm" {
		t.Format = FormatHTML
		t.policy = bluemonday.StrictPolicy()
	}

	seen := map[string]bool{}
	for _, match := range tokenPattern.FindAllStringSubmatch(t.body, -1) {
		token := match[1]
		if !seen[token] {
			seen[token] = true
			t.tokens = append(t.tokens, token)
		}
	}

	var missing []string
	for _, field := range required {
		if !seen[field] {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return nil, &TemplateError{Template: name, Missing: missing}
	}
	return t, nil
}

func (t *Template) Tokens() []string {
	out := make([]string, len(t.tokens))
	copy(out, t.tokens)
	return out
}

// Validate rejects tokens that none of the available field names can fill.
func (t *Template) Validate(available []string) error {
	known := make(map[string]bool, len(available))
	for _, name := range available {
		known[strings.TrimSpace(name)] = true
	}
	var unknown []string
	for _, token := range t.tokens {
		if !known[token] {
			unknown = append(unknown, token)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return &TemplateError{Template: t.Name, Unknown: unknown}
	}
	return nil
}

// Fill substitutes every token in one pass. HTML templates get sanitized,
// escaped values.
func (t *Template) Fill(fields map[string]string) (string, error) {
	pairs := make([]string, 0, len(t.tokens)*2)
	var unknown []string
	for _, token := range t.tokens {
		value, ok := fields[token]
		if !ok {
			unknown = append(unknown, token)
			continue
		}
		if t.policy != nil {
			value = t.policy.Sanitize(value)
		}
		pairs = append(pairs, "{"+token+"}", value)
	}
	if len(unknown) > 0 {
		return "", &TemplateError{Template: t.Name, Unknown: unknown}
	}
	return strings.NewReplacer(pairs...).Replace(t.body), nil
}

func (t *Template) String() string {
	return fmt.Sprintf("%s (%s, %d placeholders)", t.Name, t.Format, len(t.tokens))
}

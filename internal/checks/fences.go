package checks

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/docsentry/docsentry/internal/markdown"
	"github.com/docsentry/docsentry/internal/report"
)

// fenceRule validates fenced code blocks: every fence closes, carries a known
// language tag, and the content parses for languages we can verify.
type fenceRule struct{}

func (fenceRule) Name() string { return RuleFenceValid }

func (fenceRule) Check(doc *markdown.Document, ctx *Context) []report.Finding {
	var findings []report.Finding

	for _, issue := range markdown.UnclosedFences(doc.Source) {
		msg := fmt.Sprintf("code fence opened at line %d is never closed", issue.Line)
		if issue.Info != "" {
			msg = fmt.Sprintf("%s fence opened at line %d is never closed", issue.Info, issue.Line)
		}
		findings = append(findings, report.Finding{
			Rule:     RuleFenceValid,
			Severity: report.SeverityError,
			Doc:      doc.Name,
			Line:     issue.Line,
			Message:  msg,
		})
	}

	for _, cb := range doc.CodeBlocks {
		if cb.Lang == "" {
			findings = append(findings, report.Finding{
				Rule:     RuleFenceValid,
				Severity: report.SeverityWarning,
				Doc:      doc.Name,
				Line:     cb.Line,
				Message:  "code fence has no language tag",
			})
			continue
		}
		if !ctx.langAllowed(cb.Lang) {
			findings = append(findings, report.Finding{
				Rule:     RuleFenceValid,
				Severity: report.SeverityWarning,
				Doc:      doc.Name,
				Line:     cb.Line,
				Message:  fmt.Sprintf("unknown code fence language %q", cb.Lang),
			})
			continue
		}
		if validate, ok := contentValidators[cb.Lang]; ok {
			if err := validate(cb.Content); err != nil {
				findings = append(findings, report.Finding{
					Rule:     RuleFenceValid,
					Severity: report.SeverityError,
					Doc:      doc.Name,
					Line:     cb.Line,
					Message:  fmt.Sprintf("%s block does not parse", cb.Lang),
					Detail:   err.Error(),
				})
			}
		}
		if (cb.Lang == "bash" || cb.Lang == "sh") && allLinesPrompted(cb.Content) {
			findings = append(findings, report.Finding{
				Rule:     RuleFenceValid,
				Severity: report.SeverityWarning,
				Doc:      doc.Name,
				Line:     cb.Line,
				Message:  "every line in this shell block starts with a $ prompt; drop the prompts so commands copy cleanly",
			})
		}
	}
	return findings
}

// allLinesPrompted reports whether every non-blank line carries a "$ " shell
// prompt. Prompts mixed with output lines are a deliberate transcript and
// stay untouched.
func allLinesPrompted(content string) bool {
	prompted := false
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if !strings.HasPrefix(trimmed, "$ ") {
			return false
		}
		prompted = true
	}
	return prompted
}

// contentValidators maps a language tag to a content check. Languages absent
// here (ts, diff, ...) get only the tag check; validating them needs a real
// compiler and produces more false positives than it catches.
var contentValidators = map[string]func(string) error{
	"json":   validateJSON,
	"jsonc":  validateJSONC,
	"env":    validateEnv,
	"prisma": validatePrisma,
	"yaml":   validateYAML,
}

func validateJSON(content string) error {
	var v any
	if err := json.Unmarshal([]byte(content), &v); err != nil {
		return err
	}
	return nil
}

// validateJSONC strips comments and trailing commas, then parses strictly.
func validateJSONC(content string) error {
	return validateJSON(string(jsonc.ToJSON([]byte(content))))
}

func validateYAML(content string) error {
	var v any
	return yaml.Unmarshal([]byte(content), &v)
}

// validateEnv runs dotenv snippets through the same parser the config loader
// uses for .env files, so a fence only passes if the file it shows would load.
func validateEnv(content string) error {
	_, err := godotenv.Unmarshal(content)
	return err
}

var prismaBlockKeywords = map[string]struct{}{
	"datasource": {},
	"generator":  {},
	"model":      {},
	"enum":       {},
	"type":       {},
	"view":       {},
}

// validatePrisma is a structural check on schema snippets: braces balance and
// every top-level block opens with a known keyword. It does not validate
// field definitions.
func validatePrisma(content string) error {
	depth := 0
	for i, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "//") {
			continue
		}
		if depth == 0 && !strings.HasPrefix(trimmed, "}") {
			fields := strings.Fields(trimmed)
			if _, ok := prismaBlockKeywords[fields[0]]; !ok {
				return fmt.Errorf("line %d: unknown top-level keyword %q", i+1, fields[0])
			}
			if !strings.HasSuffix(trimmed, "{") {
				return fmt.Errorf("line %d: block %q does not open a brace", i+1, fields[0])
			}
		}
		depth += strings.Count(trimmed, "{") - strings.Count(trimmed, "}")
		if depth < 0 {
			return fmt.Errorf("line %d: unmatched closing brace", i+1)
		}
	}
	if depth != 0 {
		return fmt.Errorf("unbalanced braces (%d left open)", depth)
	}
	return nil
}

package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/hugo-lorenzo-mato/claimpilot/internal/core"
	"github.com/hugo-lorenzo-mato/claimpilot/internal/logging"
)

const reportSystemPrompt = `You are a professional document generator creating carrier-ready supplement reports.

## ROLE
Generate polished HTML documents that present supplement requests professionally and persuasively. Your output will be converted to PDF and submitted to insurance carriers.

## DOCUMENT STRUCTURE
1. COVER PAGE: claim information (carrier, claim number, insured, property), submission date, title "Supplement Request".
2. EXECUTIVE SUMMARY: original estimate amount, requested supplement amount, total revised estimate, brief narrative.
3. SUPPLEMENT DETAILS: table of all supplement line items (description, quantity, unit, unit price, total, justification), grouped by category with subtotals.
4. PHOTO EVIDENCE: grid of photo placeholders with captions linking to relevant supplements.
5. APPENDIX: code citations, measurement documentation, terms and conditions.

## RULES
1. PROFESSIONAL TONE: Factual, respectful, collaborative. Never adversarial or demanding.
2. CLARITY: Adjusters review many documents. Make yours easy to scan.
3. EVIDENCE FIRST: Lead with evidence, not complaints about the original estimate.
4. JUSTIFICATION BREVITY: Keep line item justifications to 1-2 sentences.
5. PHOTO CAPTIONS: Captions should reference specific supplements.
6. NO SPECULATION: Only include facts supported by evidence.
7. CODE CITATIONS: Format consistently (e.g. "Per IRC R905.2.7").
8. CURRENCY FORMAT: Use $X,XXX.XX format consistently.
9. PRINT MARGINS: Include @media print CSS for proper margins.
10. VALID HTML: Output complete, valid HTML5 with inline CSS only.`

// ReportAgent renders the final supplement package as carrier-ready HTML and,
// when a renderer is available, a PDF.
type ReportAgent struct {
	transport core.ModelTransport
	renderer  core.ReportRenderer
	log       *logging.Logger
}

// NewReportAgent creates a report stage agent. renderer may be nil; the HTML
// is still produced and returned without a PDF.
func NewReportAgent(transport core.ModelTransport, renderer core.ReportRenderer, log *logging.Logger) *ReportAgent {
	return &ReportAgent{transport: transport, renderer: renderer, log: log.WithAgent("report_agent")}
}

// SystemPrompt returns the static system prompt.
func (a *ReportAgent) SystemPrompt() string { return reportSystemPrompt }

// UserPrompt builds the user prompt. Pure function of the request.
func (a *ReportAgent) UserPrompt(req ReportRequest) string {
	var margin core.MarginAnalysis
	if req.Strategy != nil {
		margin = req.Strategy.MarginAnalysis
	}

	var b strings.Builder
	fmt.Fprintf(&b, `Generate a professional HTML supplement report for carrier submission.

## JOB METADATA
%s

## SUPPLEMENT STRATEGY
%s

## VISION EVIDENCE
%s

## FINANCIAL SUMMARY
- Original Estimate: $%.2f
- Supplement Request: $%.2f
- Revised Total: $%.2f

## PHOTO PLACEHOLDERS
Use placeholder divs referencing these photo IDs: %s

## TASK
Generate a complete, professional HTML document including cover page, executive summary, supplement table grouped by category, photo evidence section, and appendix with code citations. Use inline CSS styling. Output valid HTML5 only, no commentary.`,
		jsonBlock(req.Metadata), jsonBlock(req.Strategy), jsonBlock(req.VisionEvidence),
		margin.OriginalEstimate, margin.ProposedSupplementTotal, margin.NewEstimateTotal,
		strings.Join(req.PhotoIDs, ", "))
	return b.String()
}

// Run generates the report HTML and optionally renders it to PDF. A renderer
// failure is tolerated; the HTML result is still returned.
func (a *ReportAgent) Run(ctx context.Context, req ReportRequest) (*ReportOutput, error) {
	raw, err := a.transport.Complete(ctx, a.SystemPrompt(), a.UserPrompt(req))
	if err != nil {
		return nil, err
	}

	html := extractHTML(raw)
	out := &ReportOutput{HTML: html}

	if a.renderer != nil {
		pdf, err := a.renderer.Render(ctx, html, nil, core.RenderOptions{PageSize: "letter", Margin: "0.5in"})
		if err != nil {
			a.log.Warn("report PDF rendering failed, keeping HTML only", "error", err)
		} else {
			out.PDF = pdf
		}
	}

	a.log.Info("report generated", "html_bytes", len(html), "pdf_bytes", len(out.PDF))
	return out, nil
}

// extractHTML strips optional markdown code fences from a report response.
func extractHTML(response string) string {
	s := strings.TrimSpace(response)
	if strings.HasPrefix(s, "```html") {
		s = s[len("```html"):]
	} else if strings.HasPrefix(s, "```") {
		s = s[len("```"):]
	}
	if strings.HasSuffix(s, "```") {
		s = s[:len(s)-len("```")]
	}
	return strings.TrimSpace(s)
}

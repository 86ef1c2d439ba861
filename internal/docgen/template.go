package docgen

import (
	"context"
	"fmt"
	"strings"
)

// TemplateDrafter renders documents locally without a model. It is the
// default provider and the one tests use.
type TemplateDrafter struct{}

func (TemplateDrafter) Name() string { return "template" }

func (TemplateDrafter) Draft(_ context.Context, req Request) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", req.Title)
	fmt.Fprintf(&b, "Document %d of %d. Dispute type: %s.\n\n", req.Position, req.Total, orDash(req.Strategy.DisputeType))
	if req.Routing.Forum != "" {
		fmt.Fprintf(&b, "Forum: %s (%s).\n", req.Routing.Forum, req.Routing.Jurisdiction)
		if req.Routing.TimeLimit != "" {
			fmt.Fprintf(&b, "Time limit: %s.\n", req.Routing.TimeLimit)
		}
		if req.Routing.Deadline != nil {
			fmt.Fprintf(&b, "Deadline: %s.\n", *req.Routing.Deadline)
		}
		b.WriteString("\n")
	}
	b.WriteString("## Facts\n\n")
	n := 0
	for _, f := range req.Strategy.KeyFacts {
		if f = strings.TrimSpace(f); f == "" {
			continue
		}
		n++
		fmt.Fprintf(&b, "%d. %s\n", n, f)
	}
	if len(req.Evidence) > 0 || len(req.Strategy.EvidenceMentioned) > 0 {
		b.WriteString("\n## Evidence\n\n")
		for _, ev := range req.Evidence {
			fmt.Fprintf(&b, "- Exhibit %d: %s\n", ev.Index, ev.Title)
		}
		if len(req.Evidence) == 0 {
			for _, m := range req.Strategy.EvidenceMentioned {
				fmt.Fprintf(&b, "- %s (to be provided)\n", m)
			}
		}
	}
	b.WriteString("\n## Outcome sought\n\n")
	b.WriteString(strings.TrimSpace(req.Strategy.DesiredOutcome))
	b.WriteString("\n")
	return b.String(), nil
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

const systemPrompt = `You draft documents for people handling their own civil disputes in England and Wales.
Write in plain English. Use only the facts supplied. Do not invent facts, dates, amounts or evidence.
Refer to evidence by exhibit number when it is listed. Do not give legal advice or predict outcomes.
Return the document text only, formatted as Markdown.`

// prompt builds the user message shared by the model-backed drafters.
func prompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Draft the %q (%s), document %d of %d in the pack.\n\n", req.Title, req.Type, req.Position, req.Total)
	fmt.Fprintf(&b, "Dispute type: %s\n", orDash(req.Strategy.DisputeType))
	if req.Routing.Forum != "" {
		fmt.Fprintf(&b, "Forum: %s\nPrerequisites: %s\n", req.Routing.Forum, strings.Join(req.Routing.Prerequisites, "; "))
	}
	b.WriteString("\nKey facts:\n")
	for _, f := range req.Strategy.KeyFacts {
		if f = strings.TrimSpace(f); f != "" {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	if len(req.Evidence) > 0 {
		b.WriteString("\nExhibits:\n")
		for _, ev := range req.Evidence {
			fmt.Fprintf(&b, "- Exhibit %d: %s\n", ev.Index, ev.Title)
		}
	}
	fmt.Fprintf(&b, "\nDesired outcome: %s\n", strings.TrimSpace(req.Strategy.DesiredOutcome))
	return b.String()
}

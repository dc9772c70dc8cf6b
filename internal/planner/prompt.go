package planner

import (
	"fmt"
	"strings"

	"github.com/vivekhaldar/mcpboot/internal/fetcher"
)

const systemPrompt = `You are a tool planner for an MCP (Model Context Protocol) server.
Given a user's description of what they want, plus any reference documents,
design a set of MCP tools that fulfill the request.

Respond with ONLY a JSON object, no prose, matching exactly this shape:

{
  "tools": [
    {
      "name": "snake_case_identifier",
      "description": "What the tool does, for the calling AI.",
      "inputSchema": {"type": "object", "properties": {...}, "required": [...]},
      "endpointsUsed": ["https://api.example.com/v1/things"],
      "implementationNotes": "How the handler should work, step by step.",
      "needsNetwork": true
    }
  ]
}

Rules:
- name must match ^[a-z][a-z0-9_]*$ and be unique within the plan.
- inputSchema must be a JSON Schema with root type "object".
- needsNetwork is true only when the handler must call an HTTP endpoint.
- endpointsUsed lists the concrete URLs a network tool will call; leave it
  empty for pure-computation tools.
- Only use endpoints on the allowed domains listed in the request. If no
  domains are allowed, every tool must be pure computation.
- description and implementationNotes must be nonempty.`

func buildUserPrompt(prompt string, contents []*fetcher.FetchedContent, domains []string) string {
	var sb strings.Builder
	sb.WriteString("User request:\n")
	sb.WriteString(prompt)
	sb.WriteString("\n\n")

	for i, c := range contents {
		fmt.Fprintf(&sb, "--- Document %d: %s (%s) ---\n", i+1, c.URL, c.ContentType)
		sb.WriteString(c.Text)
		sb.WriteString("\n\n")
	}

	if len(domains) == 0 {
		sb.WriteString("Allowed domains: none — emit only pure-computation tools.\n")
	} else {
		sb.WriteString("Allowed domains:\n")
		for _, d := range domains {
			fmt.Fprintf(&sb, "- %s\n", d)
		}
	}
	return sb.String()
}

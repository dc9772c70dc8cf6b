package compiler

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vivekhaldar/mcpboot/internal/fetcher"
	"github.com/vivekhaldar/mcpboot/internal/tool"
)

const networkSystemPrompt = `You write the body of a JavaScript async function that implements one
MCP tool. The body runs inside a sandbox with exactly these globals:

  JSON, Math, String, Number, Boolean, Array, Object, Map, Set, Date,
  RegExp, parseInt, parseFloat, isNaN, isFinite, structuredClone, Promise,
  URL, URLSearchParams, TextEncoder, TextDecoder, Headers, Response,
  console.log, and the standard Error constructors.

Two free variables are in scope:
- args: the tool's input, already validated against its schema.
- fetch(url, options): HTTP access, restricted to whitelisted domains.
  The response exposes status, ok, statusText, headers.get(name),
  await resp.text() and await resp.json().

There is no require, no import, no filesystem, no process, no timers.

The body MUST:
- wrap its work in try/catch;
- return {content: [{type: "text", text: "..."}]} on success;
- return {content: [{type: "text", text: "Error: ..."}], isError: true}
  on failure.

Respond with ONLY the function body in a fenced javascript code block. Do
not write the function declaration — just the body.`

const pureSystemPrompt = `You write the body of a JavaScript async function that implements one
MCP tool using pure computation. The body runs inside a sandbox with
exactly these globals:

  JSON, Math, String, Number, Boolean, Array, Object, Map, Set, Date,
  RegExp, parseInt, parseFloat, isNaN, isFinite, structuredClone, Promise,
  console.log, and the standard Error constructors.

One free variable is in scope:
- args: the tool's input, already validated against its schema.

There is NO network access: fetch does not exist and must not appear in
the body. There is no require, no import, no filesystem, no process, no
timers.

The body MUST:
- wrap its work in try/catch;
- return {content: [{type: "text", text: "..."}]} on success;
- return {content: [{type: "text", text: "Error: ..."}], isError: true}
  on failure.

Respond with ONLY the function body in a fenced javascript code block. Do
not write the function declaration — just the body.`

func buildUserPrompt(t *tool.PlannedTool, originalPrompt string, contents []*fetcher.FetchedContent) string {
	planJSON, _ := json.MarshalIndent(t, "", "  ")

	var sb strings.Builder
	sb.WriteString("Tool to implement:\n")
	sb.Write(planJSON)
	sb.WriteString("\n\nOriginal user request (context):\n")
	sb.WriteString(originalPrompt)
	sb.WriteString("\n\n")
	for i, c := range contents {
		fmt.Fprintf(&sb, "--- Document %d: %s (%s) ---\n", i+1, c.URL, c.ContentType)
		sb.WriteString(c.Text)
		sb.WriteString("\n\n")
	}
	return sb.String()
}

// Package agent drives the agentic control loop: one user request is
// turned into a bounded sequence of model calls and tool invocations,
// with every side-effecting action passing the permission engine and,
// when flagged destructive, the approval gate.
//
// Three conversational backends (Anthropic, OpenAI, Gemini) are
// normalized behind the Provider interface; the loop itself never
// branches on provider identity.
package agent

// Package acp serves Dr. NIMA over the Agent Client Protocol, so editors
// such as Zed can talk to it with newline-delimited JSON-RPC over stdio.
//
// Each ACP session owns an agent and a session file under the sessions
// directory. Prompts stream the run back as session/update notifications:
// thoughts, each code block with its observation, and the final answer.
package acp

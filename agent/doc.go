// Package agent runs the model-tool loop. An Agent invokes its client with
// the session memory and the schemas of its registered tools, dispatches the
// tool calls the model requests, records the results, and loops until the
// model produces a plain-text answer or the step limit is reached. Agents
// can expose each other as tools for delegation.
package agent

// Package intel adapts text-intelligence backends (translation, taxonomy,
// keyword extraction) for the pipeline.
//
// Backends implement harvest.Intelligence and may fail. The Adapter wraps a
// backend and never fails: every call degrades to a deterministic local answer.
// Model-backed implementations only need to provide a Completer; PromptBackend
// turns completions into structured answers.
package intel

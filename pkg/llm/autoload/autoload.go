// Package autoload registers every built-in LLM provider.
package autoload

import (
	_ "pointer/pkg/llm/gemini"
	_ "pointer/pkg/llm/ollama"
	_ "pointer/pkg/llm/openailm"
)

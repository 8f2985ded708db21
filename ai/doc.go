// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ai defines the model-facing contracts used by docreply.
//
// Two capabilities are consumed:
//
//   - Embedder: turns text into fixed-length vectors
//   - Completer: turns a chat-style prompt into an answer
//
// AIProvider bundles both so they can be constructed once and injected into
// the ingestion pipeline and the responder.
//
// # Implementation Packages
//
//   - ai/openai: langchaingo clients for OpenAI-compatible endpoints
//     (Mistral embeddings, Groq completions, local Ollama, vLLM)
//   - ai/mock: function-field test doubles
//
// Public constructors in ai/openai return interface types. Mock constructors
// return concrete types so tests can inject behavior and inspect call counts.
//
//	provider, err := openai.NewProvider(ai.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vec, err := provider.Embedder().EmbedText(ctx, "opening hours")
package ai

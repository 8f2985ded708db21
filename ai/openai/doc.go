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

// Package openai provides AI service implementations using OpenAI-compatible APIs.
//
// This package implements the ai.AIProvider interface using the langchaingo
// library. Embeddings and completions may point at different hosts, e.g.
// Mistral for embeddings and Groq for completions, or a single local Ollama.
//
// Throttling responses are wrapped with ai.ErrRateLimited so the embedding
// gateway can apply its retry policy.
//
// # Usage
//
//	config := ai.NewConfig(
//	    ai.WithEmbeddingToken(os.Getenv("MISTRAL_API_KEY")),
//	    ai.WithCompletionToken(os.Getenv("GROQ_API_KEY")),
//	)
//
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	answer, err := provider.Completer().Complete(ctx, messages, ai.CompletionOptions{Temperature: 0.2})
package openai

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


// Package clients defines the shared contract for model-provider adapters.
//
// Every provider subpackage translates between this package's normalized
// surface and one vendor API. The adapter contributes only format
// translation: prompts, memory turns, and tool schemas go out in the
// provider's wire shape, and replies come back as core.Response blocks in
// generation order. Reasoning, tool selection, and media understanding all
// happen on the provider side.
//
// # Provider Packages
//
//   - clients/openai: OpenAI chat completions
//   - clients/azure: Azure OpenAI deployments
//   - clients/regolo: Regolo.ai (OpenAI-compatible)
//   - clients/mistral: Mistral platform (OpenAI-compatible)
//   - clients/google: Google Generative AI
//   - clients/ollama: local Ollama HTTP server
//   - clients/watsonx: IBM watsonx.ai
//   - clients/mock: test double with injectable behavior
//
// # Constructor Return Type Pattern
//
// Public constructors return the Client INTERFACE to prevent coupling to a
// concrete provider; the mock constructor returns its CONCRETE type so tests
// can inject behavior and count calls.
//
// # Usage Example
//
//	client, err := openai.New(
//	    openai.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
//	    openai.WithModel("gpt-4o-mini"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	resp, err := client.Invoke(ctx, "What is a vector database?",
//	    clients.WithSystemPrompt("Answer in one sentence."),
//	    clients.WithMemory(session),
//	)
//	fmt.Println(resp.Text())
//
// Calls block until the provider replies; cancellation and deadlines ride
// the context into the underlying HTTP call. Adapters add no retry, caching,
// or pooling beyond what the vendor SDK itself provides.
package clients

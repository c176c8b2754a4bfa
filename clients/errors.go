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


package clients

import "errors"

// Errors shared by the provider adapters.
var (
	// ErrMissingAPIKey indicates a provider was constructed without credentials.
	ErrMissingAPIKey = errors.New("api key is required")

	// ErrEmptyResponse indicates the provider answered without any choices.
	ErrEmptyResponse = errors.New("provider returned no choices")

	// ErrUnsupportedMedia indicates a media block the provider cannot carry.
	ErrUnsupportedMedia = errors.New("unsupported media type for this provider")

	// ErrNotSupported indicates an operation the provider does not offer,
	// such as streaming on WatsonX.
	ErrNotSupported = errors.New("operation not supported by this provider")
)

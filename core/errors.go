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


package core

import "errors"

// Domain validation errors
var (
	// ErrUnknownBlockType indicates block JSON carried an unrecognized type tag.
	ErrUnknownBlockType = errors.New("unknown block type")

	// ErrInvalidRole indicates a role string outside user/assistant/system.
	ErrInvalidRole = errors.New("invalid role")

	// ErrInvalidVectorConfig indicates a vector field spec failed validation.
	ErrInvalidVectorConfig = errors.New("invalid vector config")
)

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package storage implements the local render cache.
// Rendered node outputs are kept as PNG blobs in an embedded SQLite database at <cache dir>/cache.sqlite,
// keyed by a content hash of node, parameters and input pixels, and evicted least recently used first
// once the byte cap is exceeded. The cache is derived data: a corrupt database is backed up and recreated.
package storage

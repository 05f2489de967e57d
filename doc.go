// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package heap implements two single-segment heap allocators over a
// caller-supplied byte slice: an implicit, linearly-searched variant and
// an explicit, free-list-backed variant that supports in-place growth
// through right-neighbour coalescing.
//
// Neither variant grows its segment once initialized (no sbrk/mmap-style
// expansion) and neither is safe for concurrent use; both assume a single
// goroutine driving Init/Malloc/Free/Realloc/ValidateHeap/DumpHeap to
// completion, one call at a time.
package heap

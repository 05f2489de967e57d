// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import (
	"fmt"
	"os"
	"unsafe"
)

// minPayloadImplicit is the smallest legal payload for the implicit
// variant: it needs no room for list links, only alignment (spec §3).
const minPayloadImplicit = Alignment

// Implicit is a single-segment heap allocator that discovers free blocks
// by walking the segment linearly; it performs no coalescing (spec §4.5:
// "the implicit variant performs no coalescing at all"). Its zero value
// is not ready for use — call Init first.
type Implicit struct {
	seg  []byte
	base unsafe.Pointer

	nused         uintptr
	numUsedBlocks int
	numFreeBlocks int
}

// Init carves seg into one free block spanning its whole length and
// resets all bookkeeping, discarding any prior allocations over the same
// segment (spec §6: idempotent over the same segment). It reports false,
// leaving the allocator uninitialized, if seg is too small to hold a
// single legal block.
func (a *Implicit) Init(seg []byte) bool {
	if uintptr(len(seg)) < HeaderSize+minPayloadImplicit {
		return false
	}

	a.seg = seg
	a.base = unsafe.Pointer(&seg[0])
	a.nused = 0
	a.numUsedBlocks = 0
	a.numFreeBlocks = 1
	*headerAt(a.seg, 0) = makeHeader(uintptr(len(seg))-HeaderSize, false)
	return true
}

func (a *Implicit) offsetOf(p unsafe.Pointer) uintptr {
	return uintptr(p) - uintptr(a.base)
}

func (a *Implicit) ptrAt(off uintptr) unsafe.Pointer {
	return unsafe.Pointer(&a.seg[off])
}

// Malloc carves need = max(Alignment, roundup(n, Alignment)) bytes out of
// the first free block large enough to hold them (spec §4.6). It returns
// nil if n is zero, exceeds MaxRequestSize, or no fit exists.
func (a *Implicit) Malloc(n uintptr) unsafe.Pointer {
	if n == 0 || n > MaxRequestSize || a.seg == nil {
		return nil
	}

	need := needed(n, minPayloadImplicit)
	if need+a.nused > uintptr(len(a.seg)) {
		return nil
	}

	off, ok := firstFreeFit(a.seg, need)
	if !ok {
		return nil
	}

	h := *headerAt(a.seg, off)
	if _, split := trySplit(a.seg, off, h.size(), need, minPayloadImplicit); split {
		a.numFreeBlocks++
	}

	h = *headerAt(a.seg, off)
	*headerAt(a.seg, off) = makeHeader(h.size(), true)
	a.nused += h.size() + HeaderSize
	a.numUsedBlocks++
	a.numFreeBlocks--
	return a.ptrAt(payloadOf(off))
}

// Free returns the block backing p to the free set (spec §4.7). p == nil
// is a no-op. Freeing a pointer not currently allocated by this allocator
// is undefined behaviour (spec §7).
func (a *Implicit) Free(p unsafe.Pointer) {
	if p == nil || a.seg == nil {
		return
	}

	off := headerOf(a.offsetOf(p))
	h := *headerAt(a.seg, off)
	*headerAt(a.seg, off) = makeHeader(h.size(), false)
	a.nused -= h.size() + HeaderSize
	a.numUsedBlocks--
	a.numFreeBlocks++
}

// Realloc always allocates a fresh block, copies min(old,n) bytes, and
// frees the original (spec §4.8, implicit column: "No in-place
// behaviour"). p == nil delegates to Malloc; n == 0 frees p and returns
// nil.
func (a *Implicit) Realloc(p unsafe.Pointer, n uintptr) unsafe.Pointer {
	if p == nil {
		return a.Malloc(n)
	}
	if n == 0 {
		a.Free(p)
		return nil
	}

	off := headerOf(a.offsetOf(p))
	old := headerAt(a.seg, off).size()

	q := a.Malloc(n)
	if q == nil {
		return nil
	}

	cp := old
	if n < cp {
		cp = n
	}
	dst := unsafe.Slice((*byte)(q), cp)
	src := unsafe.Slice((*byte)(p), cp)
	copy(dst, src)
	a.Free(p)
	return q
}

// ValidateHeap reports whether every invariant in spec §3/§8 holds. It is
// read-only and safe to call at any quiescent point.
func (a *Implicit) ValidateHeap() bool {
	if a.seg == nil {
		return false
	}

	var nused uintptr
	used, free := 0, 0
	ok := true
	walkBlocks(a.seg, func(off uintptr, h header) bool {
		size := h.size()
		if size%Alignment != 0 || size < minPayloadImplicit {
			fmt.Fprintf(os.Stderr, "heap: block at %#x has illegal size %d\n", off, size)
			ok = false
			return false
		}
		if off+HeaderSize+size > uintptr(len(a.seg)) {
			fmt.Fprintf(os.Stderr, "heap: block at %#x overshoots segment end\n", off)
			ok = false
			return false
		}
		if h.inUse() {
			used++
			nused += size + HeaderSize
		} else {
			free++
		}
		return true
	})
	if !ok {
		return false
	}

	if nused != a.nused {
		fmt.Fprintf(os.Stderr, "heap: nused mismatch: tracked %d, computed %d\n", a.nused, nused)
		return false
	}
	if a.nused > uintptr(len(a.seg)) {
		fmt.Fprintf(os.Stderr, "heap: nused %d exceeds segment length %d\n", a.nused, len(a.seg))
		return false
	}
	if used != a.numUsedBlocks || free != a.numFreeBlocks {
		fmt.Fprintf(os.Stderr, "heap: block count mismatch: tracked (%d,%d), computed (%d,%d)\n",
			a.numUsedBlocks, a.numFreeBlocks, used, free)
		return false
	}
	return true
}

// validateStructure is ValidateHeap under another name: spec §3's
// invariant 6 (no two adjacent free blocks) is stated for the explicit
// variant only, so the implicit variant has no separate "structural"
// subset to split out. Kept so callers that drive both variants through
// a common interface (fuzz_test.go's soak) can call validateStructure
// uniformly.
func (a *Implicit) validateStructure() bool { return a.ValidateHeap() }

// DumpHeap writes a human-readable description of the segment to
// standard output (spec §4.10). It never mutates allocator state.
func (a *Implicit) DumpHeap() {
	fmt.Printf("implicit heap [%#x, %#x), nused=%d\n", 0, len(a.seg), a.nused)
	walkBlocks(a.seg, func(off uintptr, h header) bool {
		state := "free"
		if h.inUse() {
			state = "used"
		}
		fmt.Printf("  block %#06x size=%-8d %s\n", off, h.size(), state)
		return true
	})
}

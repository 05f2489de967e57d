// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

// walker is a forward cursor over a segment's blocks, advancing by
// header(h).size()+HeaderSize per step (spec §4.2). It underlies
// ValidateHeap, DumpHeap, and the implicit variant's first-fit search.
type walker struct {
	seg []byte
	off uintptr
}

func newWalker(seg []byte) walker { return walker{seg: seg} }

// done reports whether the cursor has reached the segment end.
func (w *walker) done() bool { return w.off >= uintptr(len(w.seg)) }

// header returns the header of the block the cursor currently sits on.
func (w *walker) header() header { return *headerAt(w.seg, w.off) }

// payload returns the offset of the current block's payload.
func (w *walker) payload() uintptr { return payloadOf(w.off) }

// advance steps the cursor to the next block.
func (w *walker) advance() { w.off += HeaderSize + w.header().size() }

// walkBlocks calls visit(off, h) for every block in seg, in segment
// order. visit returns false to stop the walk early.
func walkBlocks(seg []byte, visit func(off uintptr, h header) bool) {
	w := newWalker(seg)
	for !w.done() {
		if !visit(w.off, w.header()) {
			return
		}
		w.advance()
	}
}

// firstFreeFit walks seg looking for the first free block whose payload
// is at least need bytes (spec §4.6, implicit variant). It returns the
// block's header offset and true, or 0 and false if none fits.
func firstFreeFit(seg []byte, need uintptr) (uintptr, bool) {
	found := uintptr(0)
	ok := false
	walkBlocks(seg, func(off uintptr, h header) bool {
		if !h.inUse() && h.size() >= need {
			found, ok = off, true
			return false
		}
		return true
	})
	return found, ok
}

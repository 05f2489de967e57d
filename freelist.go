// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import "unsafe"

// node is the pair of links a free block's payload is overlaid with. It
// exists only inside free payloads; an in-use block's payload is never
// read as a node. Lifted from cznic/memory's free-node type and
// retargeted from "one list per OS-page size class" to "one list of all
// free blocks inside a single caller segment".
type node struct {
	prev, next *node
}

// freeList is the explicit variant's doubly linked, LIFO-ordered set of
// free blocks (spec §4.3), anchored by head. It knows nothing about
// headers or counters; explicit.go drives size/flag bookkeeping around
// it.
type freeList struct {
	base unsafe.Pointer // &seg[0], cached for offset<->node translation
	seg  []byte
	head *node
}

func newFreeList(seg []byte) freeList {
	fl := freeList{seg: seg}
	if len(seg) > 0 {
		fl.base = unsafe.Pointer(&seg[0])
	}
	return fl
}

// nodeAt reinterprets the payload at the block whose header sits at off.
func (fl *freeList) nodeAt(off uintptr) *node {
	return (*node)(unsafe.Pointer(&fl.seg[payloadOf(off)]))
}

// offsetOf returns the header offset of the block whose payload n
// overlays.
func (fl *freeList) offsetOf(n *node) uintptr {
	return uintptr(unsafe.Pointer(n)) - uintptr(fl.base) - HeaderSize
}

// insert pushes the block at header offset off onto the head of the
// list (spec §4.3: insert(block)).
func (fl *freeList) insert(off uintptr) {
	n := fl.nodeAt(off)
	n.prev = nil
	n.next = fl.head
	if n.next != nil {
		n.next.prev = n
	}
	fl.head = n
}

// remove splices the block at header offset off out of the list (spec
// §4.3: remove(block)).
func (fl *freeList) remove(off uintptr) {
	n := fl.nodeAt(off)
	switch {
	case n.prev == nil && n.next == nil:
		fl.head = nil
	case n.prev == nil:
		fl.head = n.next
		n.next.prev = nil
	case n.next == nil:
		n.prev.next = nil
	default:
		n.prev.next = n.next
		n.next.prev = n.prev
	}
	n.prev, n.next = nil, nil
}

// firstFit walks the list from head, first-fit, returning the header
// offset of the first free block whose payload is >= need bytes.
func (fl *freeList) firstFit(need uintptr) (uintptr, bool) {
	for n := fl.head; n != nil; n = n.next {
		off := fl.offsetOf(n)
		if headerAtOffset(fl.seg, off).size() >= need {
			return off, true
		}
	}
	return 0, false
}

// len walks the full list, counting its nodes.
func (fl *freeList) len() int {
	n := 0
	for p := fl.head; p != nil; p = p.next {
		n++
	}
	return n
}

// contains reports whether the block at header offset off is currently
// on the list.
func (fl *freeList) contains(off uintptr) bool {
	target := fl.nodeAt(off)
	for p := fl.head; p != nil; p = p.next {
		if p == target {
			return true
		}
	}
	return false
}

func headerAtOffset(seg []byte, off uintptr) header { return *headerAt(seg, off) }

// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import "testing"

func TestFreeListInsertPushesAtHead(t *testing.T) {
	seg := make([]byte, 64)
	*headerAt(seg, 0) = makeHeader(16, false)
	*headerAt(seg, 32) = makeHeader(16, false)

	fl := newFreeList(seg)
	fl.insert(0)
	fl.insert(32)

	if got := fl.offsetOf(fl.head); got != 32 {
		t.Fatalf("head offset = %#x, want 0x20 (most recently inserted)", got)
	}
	if fl.len() != 2 {
		t.Fatalf("len() = %d, want 2", fl.len())
	}
}

func TestFreeListRemoveFromMiddle(t *testing.T) {
	seg := make([]byte, 96)
	*headerAt(seg, 0) = makeHeader(16, false)
	*headerAt(seg, 32) = makeHeader(16, false)
	*headerAt(seg, 64) = makeHeader(16, false)

	fl := newFreeList(seg)
	fl.insert(0)
	fl.insert(32)
	fl.insert(64) // list: 64 -> 32 -> 0

	fl.remove(32)
	if fl.len() != 2 {
		t.Fatalf("len() = %d, want 2", fl.len())
	}
	if fl.contains(32) {
		t.Fatal("removed offset still reported as contained")
	}
	if !fl.contains(0) || !fl.contains(64) {
		t.Fatal("remove() disturbed an unrelated node")
	}
}

func TestFreeListRemoveHeadAndOnlyNode(t *testing.T) {
	seg := make([]byte, 32)
	*headerAt(seg, 0) = makeHeader(16, false)

	fl := newFreeList(seg)
	fl.insert(0)
	fl.remove(0)
	if fl.head != nil {
		t.Fatal("head not nil after removing the only node")
	}
	if fl.len() != 0 {
		t.Fatalf("len() = %d, want 0", fl.len())
	}
}

func TestFreeListFirstFit(t *testing.T) {
	seg := make([]byte, 96)
	*headerAt(seg, 0) = makeHeader(8, false)
	*headerAt(seg, 16) = makeHeader(32, false)
	*headerAt(seg, 56) = makeHeader(16, false)

	fl := newFreeList(seg)
	fl.insert(0)
	fl.insert(16)
	fl.insert(56)

	off, ok := fl.firstFit(16)
	if !ok {
		t.Fatal("firstFit found no fit")
	}
	// LIFO order is 56 -> 16 -> 0; the first node whose size >= 16 is 56.
	if off != 56 {
		t.Fatalf("firstFit = %#x, want 0x38", off)
	}
}

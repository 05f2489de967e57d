// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

// trySplit implements spec §4.4. Given a block at header offset off with
// payload size old, split off a need-byte prefix if the remainder would
// still be a legal block (>= HeaderSize+minPayload). The chosen block's
// allocated flag is preserved; the remainder is always written free. It
// reports the remainder's header offset and whether a split happened; if
// it didn't, off's header is left untouched.
func trySplit(seg []byte, off, old, need, minPayload uintptr) (remainderOff uintptr, ok bool) {
	if old-need < HeaderSize+minPayload {
		return 0, false
	}

	used := headerAt(seg, off).inUse()
	remainderOff = off + HeaderSize + need
	remSize := old - need - HeaderSize
	*headerAt(seg, remainderOff) = makeHeader(remSize, false)
	*headerAt(seg, off) = makeHeader(need, used)
	return remainderOff, true
}

// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pe

import "testing"

func TestParseDOSHeader(t *testing.T) {
	ctx := openParsed(t, buildMinimalPE32(t))

	hdr := ctx.DOSHeader()
	if hdr == nil {
		t.Fatal("DOSHeader() = nil")
	}
	if hdr.Magic != ImageDOSSignature {
		t.Errorf("Magic = %#x, want %#x", hdr.Magic, ImageDOSSignature)
	}
	if hdr.AddressOfNewEXEHeader != 64 {
		t.Errorf("AddressOfNewEXEHeader = %#x, want 0x40", hdr.AddressOfNewEXEHeader)
	}
}

func TestParseDOSHeaderTruncatedFile(t *testing.T) {
	data := buildMinimalPE32(t)[:10]
	path := writeTempFile(t, data)

	ctx, err := Open(path, 0, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ctx.Close()

	err = ctx.Parse()
	var perr *Error
	if !asError(err, &perr) || perr.Kind != NotAPEFile {
		t.Fatalf("Parse() error = %v, want NotAPEFile", err)
	}
}

// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pe

import "testing"

func TestParseCOFFAndOptionalHeader(t *testing.T) {
	ctx := openParsed(t, buildMinimalPE32(t))

	coff := ctx.COFFHeader()
	if coff == nil {
		t.Fatal("COFFHeader() = nil")
	}
	if coff.NumberOfSections != 1 {
		t.Errorf("NumberOfSections = %d, want 1", coff.NumberOfSections)
	}

	opt := ctx.OptionalHeader32()
	if opt == nil {
		t.Fatal("OptionalHeader32() = nil")
	}
	if opt.Magic != ImageNtOptionalHeader32Magic {
		t.Errorf("Magic = %#x, want %#x", opt.Magic, ImageNtOptionalHeader32Magic)
	}
	if ctx.OptionalHeader64() != nil {
		t.Error("OptionalHeader64() should be nil for a PE32 image")
	}
}

func TestParseTooManyDirectories(t *testing.T) {
	data := buildMinimalPE32(t)
	optOffset := 64 + 4 + int(coffHeaderSize)
	numDirsOffset := optOffset + int(optionalHeader32Size) - 4

	// Overwrite NumberOfRvaAndSizes past MaxDirectories. The declared
	// count alone triggers TooManyDirectories; nothing downstream of it
	// needs to exist on disk.
	data[numDirsOffset] = 0xff
	data[numDirsOffset+1] = 0xff
	data[numDirsOffset+2] = 0
	data[numDirsOffset+3] = 0

	path := writeTempFile(t, data)
	ctx, err := Open(path, 0, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ctx.Close()

	err = ctx.Parse()
	var perr *Error
	if !asError(err, &perr) || perr.Kind != TooManyDirectories {
		t.Fatalf("Parse() error = %v, want TooManyDirectories", err)
	}
}

func TestParseMissingCOFFHeader(t *testing.T) {
	data := buildMinimalPE32(t)[:70] // signature present, COFF header truncated
	path := writeTempFile(t, data)

	ctx, err := Open(path, 0, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ctx.Close()

	err = ctx.Parse()
	var perr *Error
	if !asError(err, &perr) || perr.Kind != MissingCOFFHeader {
		t.Fatalf("Parse() error = %v, want MissingCOFFHeader", err)
	}
}

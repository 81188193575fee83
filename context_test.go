// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pe

import (
	"testing"
)

func openParsed(t *testing.T, data []byte) *Context {
	t.Helper()
	path := writeTempFile(t, data)
	ctx, err := Open(path, 0, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { ctx.Close() })
	if err := ctx.Parse(); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return ctx
}

func TestParseMinimalPE32(t *testing.T) {
	ctx := openParsed(t, buildMinimalPE32(t))

	if !ctx.IsPE() {
		t.Error("IsPE() = false, want true")
	}
	if ctx.IsDLL() {
		t.Error("IsDLL() = true, want false")
	}
	if got, want := ctx.OptionalHeaderKind(), OptionalPE32; got != want {
		t.Errorf("OptionalHeaderKind() = %v, want %v", got, want)
	}
	if got, want := ctx.EntryPoint(), uint64(0x1000); got != want {
		t.Errorf("EntryPoint() = %#x, want %#x", got, want)
	}
	if got, want := ctx.ImageBase(), uint64(0x00400000); got != want {
		t.Errorf("ImageBase() = %#x, want %#x", got, want)
	}
	if got, want := ctx.SectionsCount(), uint16(1); got != want {
		t.Errorf("SectionsCount() = %d, want %d", got, want)
	}
	if got, want := ctx.DirectoriesCount(), uint32(2); got != want {
		t.Errorf("DirectoriesCount() = %d, want %d", got, want)
	}
}

func TestParseRejectsMissingDOSMagic(t *testing.T) {
	data := buildMinimalPE32(t)
	data[0] = 'X'

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

func TestParseRejectsOversizedLfanew(t *testing.T) {
	data := buildMinimalPE32(t)
	// Point e_lfanew far beyond the file.
	data[60] = 0xff
	data[61] = 0xff
	data[62] = 0xff
	data[63] = 0x7f

	path := writeTempFile(t, data)
	ctx, err := Open(path, 0, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ctx.Close()

	err = ctx.Parse()
	var perr *Error
	if !asError(err, &perr) || perr.Kind != InvalidLfanew {
		t.Fatalf("Parse() error = %v, want InvalidLfanew", err)
	}
}

func TestParseRecognizesNEWithoutFurtherParsing(t *testing.T) {
	data := buildMinimalPE32(t)
	// Overwrite the 'PE\0\0' signature with 'NE\0\0'.
	sigOffset := 64
	data[sigOffset] = 'N'
	data[sigOffset+1] = 'E'
	data[sigOffset+2] = 0
	data[sigOffset+3] = 0

	ctx := openParsed(t, data)

	if ctx.IsPE() {
		t.Error("IsPE() = true for an NE image, want false")
	}
	if ctx.COFFHeader() != nil {
		t.Error("COFFHeader() should be nil for an NE image")
	}
}

func TestParseRejectsUnsupportedOptionalMagic(t *testing.T) {
	data := buildMinimalPE32(t)
	optOffset := 64 + 4 + int(coffHeaderSize)
	data[optOffset] = 0x07
	data[optOffset+1] = 0x01 // 0x0107, the ROM magic

	path := writeTempFile(t, data)
	ctx, err := Open(path, 0, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ctx.Close()

	err = ctx.Parse()
	var perr *Error
	if !asError(err, &perr) || perr.Kind != UnsupportedImage {
		t.Fatalf("Parse() error = %v, want UnsupportedImage", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	ctx := openParsed(t, buildMinimalPE32(t))
	if err := ctx.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := ctx.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if ctx.IsLoaded() {
		t.Error("IsLoaded() = true after Close")
	}
}

type releaseRecorder struct {
	released bool
}

func (r *releaseRecorder) Release() { r.released = true }

func TestCacheReleasedOnClose(t *testing.T) {
	ctx := openParsed(t, buildMinimalPE32(t))
	payload := &releaseRecorder{}
	ctx.SetCached(CacheKeyImports, payload)

	if _, ok := ctx.Cached(CacheKeyImports); !ok {
		t.Fatal("Cached() did not find the payload just set")
	}

	if err := ctx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !payload.released {
		t.Error("cached payload was not released on Close")
	}
}

// asError reports whether err is itself an *Error and stores it in
// target. It is a direct type assertion: a wrapped *Error is not found.
func asError(err error, target **Error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	*target = e
	return true
}

// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pe

import (
	"bytes"
	"encoding/binary"
	"os"
	"testing"
)

// peBuilder assembles a synthetic, minimal-but-valid PE32 image byte by
// byte, the way a fuzzer's corpus seed would be built, so tests don't
// depend on a binary fixture checked into the tree.
type peBuilder struct {
	buf bytes.Buffer
}

func newPEBuilder() *peBuilder {
	return &peBuilder{}
}

func (b *peBuilder) write(v interface{}) *peBuilder {
	if err := binary.Write(&b.buf, binary.LittleEndian, v); err != nil {
		panic(err)
	}
	return b
}

func (b *peBuilder) padTo(offset int) *peBuilder {
	for b.buf.Len() < offset {
		b.buf.WriteByte(0)
	}
	return b
}

func (b *peBuilder) bytes() []byte {
	return b.buf.Bytes()
}

// buildMinimalPE32 returns a well-formed single-section, PE32 image: a
// 64-byte DOS header pointing e_lfanew at offset 64, the 'PE\0\0'
// signature, a one-section COFF header, a PE32 optional header with two
// data directories, and one ".text" section whose header and raw data
// both fit inside the image.
func buildMinimalPE32(t *testing.T) []byte {
	t.Helper()

	const (
		lfanew        = 64
		numDirs       = 2
		sectionRawOff = 512
		sectionRawLen = 64
	)

	b := newPEBuilder()
	b.write(ImageDOSHeader{
		Magic:                 ImageDOSSignature,
		AddressOfNewEXEHeader: lfanew,
	})
	b.padTo(lfanew)

	// SizeOfOptionalHeader covers the fixed optional header fields *and*
	// the data directory array that immediately follows them on disk -
	// the section table offset is computed from this field directly, so
	// it must account for both.
	b.write(uint32(ImageNTSignature))
	b.write(ImageFileHeader{
		Machine:              ImageFileMachineAMD64,
		NumberOfSections:     1,
		SizeOfOptionalHeader: uint16(optionalHeader32Size + numDirs*dataDirectorySize),
		Characteristics:      ImageFileExecutableImage,
	})

	b.write(ImageOptionalHeader32{
		Magic:               ImageNtOptionalHeader32Magic,
		AddressOfEntryPoint:  0x1000,
		ImageBase:            0x00400000,
		SectionAlignment:     0x1000,
		FileAlignment:        0x200,
		SizeOfImage:          0x2000,
		SizeOfHeaders:        uint32(sectionRawOff),
		NumberOfRvaAndSizes:  numDirs,
	})

	b.write(DataDirectory{VirtualAddress: 0x2000, Size: 0x100})
	b.write(DataDirectory{VirtualAddress: 0, Size: 0})

	var name [8]byte
	copy(name[:], ".text")
	b.write(ImageSectionHeader{
		Name:             name,
		VirtualSize:      sectionRawLen,
		VirtualAddress:   0x1000,
		SizeOfRawData:    sectionRawLen,
		PointerToRawData: sectionRawOff,
		Characteristics:  ImageFileExecutableImage,
	})

	b.padTo(sectionRawOff)
	b.buf.Write(bytes.Repeat([]byte{0x90}, sectionRawLen))

	return b.bytes()
}

// buildTwoSectionPE32 returns a well-formed two-section PE32 image whose
// first section (".text") declares VirtualSize == 0 - a linker quirk
// pe_rva2ofs works around by substituting SizeOfRawData for containment
// testing - and whose second section (".data") is a normal section that
// does not abut the first, leaving a virtual address gap between them.
func buildTwoSectionPE32(t *testing.T) []byte {
	t.Helper()

	const (
		lfanew         = 64
		numDirs        = 1
		textRawOff     = 512
		textRawLen     = 64
		textVA         = 0x1000
		dataRawOff     = 576
		dataRawLen     = 64
		dataVA         = 0x3000
		dataVirtualLen = 64
	)

	b := newPEBuilder()
	b.write(ImageDOSHeader{
		Magic:                 ImageDOSSignature,
		AddressOfNewEXEHeader: lfanew,
	})
	b.padTo(lfanew)

	b.write(uint32(ImageNTSignature))
	b.write(ImageFileHeader{
		Machine:              ImageFileMachineAMD64,
		NumberOfSections:     2,
		SizeOfOptionalHeader: uint16(optionalHeader32Size + numDirs*dataDirectorySize),
		Characteristics:      ImageFileExecutableImage,
	})

	b.write(ImageOptionalHeader32{
		Magic:               ImageNtOptionalHeader32Magic,
		AddressOfEntryPoint: textVA,
		ImageBase:           0x00400000,
		SectionAlignment:    0x1000,
		FileAlignment:       0x200,
		SizeOfImage:         0x4000,
		SizeOfHeaders:       uint32(textRawOff),
		NumberOfRvaAndSizes: numDirs,
	})

	b.write(DataDirectory{VirtualAddress: 0, Size: 0})

	var textName, dataName [8]byte
	copy(textName[:], ".text")
	copy(dataName[:], ".data")

	b.write(ImageSectionHeader{
		Name:             textName,
		VirtualSize:      0, // deliberately zero: SizeOfRawData substitutes for it
		VirtualAddress:   textVA,
		SizeOfRawData:    textRawLen,
		PointerToRawData: textRawOff,
		Characteristics:  ImageFileExecutableImage,
	})
	b.write(ImageSectionHeader{
		Name:             dataName,
		VirtualSize:      dataVirtualLen,
		VirtualAddress:   dataVA,
		SizeOfRawData:    dataRawLen,
		PointerToRawData: dataRawOff,
		Characteristics:  ImageFileExecutableImage,
	})

	b.padTo(textRawOff)
	b.buf.Write(bytes.Repeat([]byte{0x90}, textRawLen))
	b.buf.Write(bytes.Repeat([]byte{0xcc}, dataRawLen))

	return b.bytes()
}

// writeTempFile writes data to a temp file and returns its path; the
// file is removed when the test completes.
func writeTempFile(t *testing.T, data []byte) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "readpe-*.bin")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return f.Name()
}

// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pe

import (
	"bytes"
	"encoding/binary"
)

// ImageFileHeader is the COFF header (IMAGE_FILE_HEADER), located
// immediately after the 4-byte NT signature.
type ImageFileHeader struct {
	Machine              uint16 `json:"machine"`
	NumberOfSections     uint16 `json:"number_of_sections"`
	TimeDateStamp        uint32 `json:"time_date_stamp"`
	PointerToSymbolTable uint32 `json:"pointer_to_symbol_table"`
	NumberOfSymbols      uint32 `json:"number_of_symbols"`
	SizeOfOptionalHeader uint16 `json:"size_of_optional_header"`
	Characteristics      uint16 `json:"characteristics"`
}

var coffHeaderSize = uint64(binary.Size(ImageFileHeader{}))

// OptionalKind classifies which of the two incompatible optional-header
// layouts a file carries, or that it carries neither.
type OptionalKind int

// Recognized optional-header variants.
const (
	OptionalUnknown OptionalKind = iota
	OptionalPE32
	OptionalPE32Plus
	OptionalROM
)

func (k OptionalKind) String() string {
	switch k {
	case OptionalPE32:
		return "PE32"
	case OptionalPE32Plus:
		return "PE32+"
	case OptionalROM:
		return "ROM"
	default:
		return "Unknown"
	}
}

// DataDirectory is an (RVA, size) pair describing a subsystem table
// (imports, exports, resources, ...). Interpreting the contents at a
// directory's RVA is an external collaborator's job.
type DataDirectory struct {
	VirtualAddress uint32 `json:"virtual_address"`
	Size           uint32 `json:"size"`
}

var dataDirectorySize = uint64(binary.Size(DataDirectory{}))

// ImageOptionalHeader32 is the PE32 layout of the optional header.
type ImageOptionalHeader32 struct {
	Magic                       uint16 `json:"magic"`
	MajorLinkerVersion          uint8  `json:"major_linker_version"`
	MinorLinkerVersion          uint8  `json:"minor_linker_version"`
	SizeOfCode                  uint32 `json:"size_of_code"`
	SizeOfInitializedData       uint32 `json:"size_of_initialized_data"`
	SizeOfUninitializedData     uint32 `json:"size_of_uninitialized_data"`
	AddressOfEntryPoint         uint32 `json:"address_of_entrypoint"`
	BaseOfCode                  uint32 `json:"base_of_code"`
	BaseOfData                  uint32 `json:"base_of_data"`
	ImageBase                   uint32 `json:"image_base"`
	SectionAlignment            uint32 `json:"section_alignment"`
	FileAlignment               uint32 `json:"file_alignment"`
	MajorOperatingSystemVersion uint16 `json:"major_os_version"`
	MinorOperatingSystemVersion uint16 `json:"minor_os_version"`
	MajorImageVersion           uint16 `json:"major_image_version"`
	MinorImageVersion           uint16 `json:"minor_image_version"`
	MajorSubsystemVersion       uint16 `json:"major_subsystem_version"`
	MinorSubsystemVersion       uint16 `json:"minor_subsystem_version"`
	Win32VersionValue           uint32 `json:"win32_version_value"`
	SizeOfImage                 uint32 `json:"size_of_image"`
	SizeOfHeaders                uint32 `json:"size_of_headers"`
	CheckSum                    uint32 `json:"checksum"`
	Subsystem                   uint16 `json:"subsystem"`
	DllCharacteristics          uint16 `json:"dll_characteristics"`
	SizeOfStackReserve          uint32 `json:"size_of_stack_reserve"`
	SizeOfStackCommit           uint32 `json:"size_of_stack_commit"`
	SizeOfHeapReserve           uint32 `json:"size_of_heap_reserve"`
	SizeOfHeapCommit            uint32 `json:"size_of_heap_commit"`
	LoaderFlags                 uint32 `json:"loader_flags"`
	NumberOfRvaAndSizes         uint32 `json:"number_of_rva_and_sizes"`
}

var optionalHeader32Size = uint64(binary.Size(ImageOptionalHeader32{}))

// ImageOptionalHeader64 is the PE32+ layout of the optional header. It
// shares a prefix with ImageOptionalHeader32 up to BaseOfCode, then drops
// BaseOfData and widens ImageBase and the stack/heap size fields to 64
// bits.
type ImageOptionalHeader64 struct {
	Magic                       uint16 `json:"magic"`
	MajorLinkerVersion          uint8  `json:"major_linker_version"`
	MinorLinkerVersion          uint8  `json:"minor_linker_version"`
	SizeOfCode                  uint32 `json:"size_of_code"`
	SizeOfInitializedData       uint32 `json:"size_of_initialized_data"`
	SizeOfUninitializedData     uint32 `json:"size_of_uninitialized_data"`
	AddressOfEntryPoint         uint32 `json:"address_of_entrypoint"`
	BaseOfCode                  uint32 `json:"base_of_code"`
	ImageBase                   uint64 `json:"image_base"`
	SectionAlignment            uint32 `json:"section_alignment"`
	FileAlignment               uint32 `json:"file_alignment"`
	MajorOperatingSystemVersion uint16 `json:"major_os_version"`
	MinorOperatingSystemVersion uint16 `json:"minor_os_version"`
	MajorImageVersion           uint16 `json:"major_image_version"`
	MinorImageVersion           uint16 `json:"minor_image_version"`
	MajorSubsystemVersion       uint16 `json:"major_subsystem_version"`
	MinorSubsystemVersion       uint16 `json:"minor_subsystem_version"`
	Win32VersionValue           uint32 `json:"win32_version_value"`
	SizeOfImage                 uint32 `json:"size_of_image"`
	SizeOfHeaders                uint32 `json:"size_of_headers"`
	CheckSum                    uint32 `json:"checksum"`
	Subsystem                   uint16 `json:"subsystem"`
	DllCharacteristics          uint16 `json:"dll_characteristics"`
	SizeOfStackReserve          uint64 `json:"size_of_stack_reserve"`
	SizeOfStackCommit           uint64 `json:"size_of_stack_commit"`
	SizeOfHeapReserve           uint64 `json:"size_of_heap_reserve"`
	SizeOfHeapCommit            uint64 `json:"size_of_heap_commit"`
	LoaderFlags                 uint32 `json:"loader_flags"`
	NumberOfRvaAndSizes         uint32 `json:"number_of_rva_and_sizes"`
}

var optionalHeader64Size = uint64(binary.Size(ImageOptionalHeader64{}))

// parseSignature reads the 32-bit tag at dos_hdr.e_lfanew (spec step 2).
// Only 'PE\0\0' and 'NE\0\0' are recognized; anything else is
// InvalidSignature. The read itself must be bounds-checked first, since
// e_lfanew is an attacker-controlled file offset.
func (c *Context) parseSignature() error {
	lfanew := uint64(c.parsed.dosHeader.AddressOfNewEXEHeader)
	if !c.mapping.contains(lfanew, 4) {
		return newError(InvalidLfanew, nil)
	}

	sig := binary.LittleEndian.Uint32(c.mapping.slice(lfanew, 4))
	switch sig {
	case ImageNTSignature, ImageOS2Signature:
		c.parsed.signature = sig
		c.parsed.signatureOffset = lfanew
		return nil
	default:
		return newError(InvalidSignature, nil)
	}
}

// parseCOFFHeader reads IMAGE_FILE_HEADER immediately following the
// 4-byte signature (spec step 3). NE files stop here: the signature was
// recognized but is not 'PE\0\0', so the caller never reaches this step
// for them (see Context.Parse).
func (c *Context) parseCOFFHeader() error {
	offset := c.parsed.signatureOffset + 4
	if !c.mapping.contains(offset, coffHeaderSize) {
		return newError(MissingCOFFHeader, nil)
	}

	var hdr ImageFileHeader
	buf := bytes.NewReader(c.mapping.slice(offset, coffHeaderSize))
	if err := binary.Read(buf, binary.LittleEndian, &hdr); err != nil {
		return newError(MissingCOFFHeader, err)
	}

	c.parsed.coffHeader = &hdr
	c.parsed.coffHeaderOffset = offset
	c.parsed.numSections = hdr.NumberOfSections
	return nil
}

// parseOptionalHeader classifies and reads the optional header (spec step
// 4). Any magic other than PE32/PE32+ is UnsupportedImage, including ROM
// (0x107) and any unrecognized value — the C original's switch falls
// through its default case into the ROM case, and this formalizes that.
func (c *Context) parseOptionalHeader() error {
	offset := c.parsed.coffHeaderOffset + coffHeaderSize
	c.parsed.optionalHeaderOffset = offset

	if !c.mapping.contains(offset, 2) {
		return newError(MissingOptionalHeader, nil)
	}
	magic := binary.LittleEndian.Uint16(c.mapping.slice(offset, 2))

	switch magic {
	case ImageNtOptionalHeader32Magic:
		if !c.mapping.contains(offset, optionalHeader32Size) {
			return newError(MissingOptionalHeader, nil)
		}
		var oh ImageOptionalHeader32
		buf := bytes.NewReader(c.mapping.slice(offset, optionalHeader32Size))
		if err := binary.Read(buf, binary.LittleEndian, &oh); err != nil {
			return newError(MissingOptionalHeader, err)
		}
		c.parsed.optionalKind = OptionalPE32
		c.parsed.optionalHeaderLength = optionalHeader32Size
		c.parsed.entrypoint = uint64(oh.AddressOfEntryPoint)
		c.parsed.imageBase = uint64(oh.ImageBase)
		c.parsed.numDirectories = oh.NumberOfRvaAndSizes
		c.parsed.optional32 = &oh
		return nil

	case ImageNtOptionalHeader64Magic:
		if !c.mapping.contains(offset, optionalHeader64Size) {
			return newError(MissingOptionalHeader, nil)
		}
		var oh ImageOptionalHeader64
		buf := bytes.NewReader(c.mapping.slice(offset, optionalHeader64Size))
		if err := binary.Read(buf, binary.LittleEndian, &oh); err != nil {
			return newError(MissingOptionalHeader, err)
		}
		c.parsed.optionalKind = OptionalPE32Plus
		c.parsed.optionalHeaderLength = optionalHeader64Size
		c.parsed.entrypoint = uint64(oh.AddressOfEntryPoint)
		c.parsed.imageBase = oh.ImageBase
		c.parsed.numDirectories = oh.NumberOfRvaAndSizes
		c.parsed.optional64 = &oh
		return nil

	default:
		if magic == ImageROMOptionalHeaderMagic {
			c.parsed.optionalKind = OptionalROM
		}
		return newError(UnsupportedImage, nil)
	}
}

// parseDirectories bounds the directory count and records the offset of
// each entry (spec steps 5 and 7). No per-entry bounds check is performed
// here; DirectoryByEntry checks each entry against the mapping when it
// reads it.
func (c *Context) parseDirectories() error {
	if c.parsed.numDirectories > MaxDirectories {
		return newError(TooManyDirectories, nil)
	}

	if c.parsed.numDirectories == 0 {
		return nil
	}

	base := c.parsed.optionalHeaderOffset + c.parsed.optionalHeaderLength
	offsets := make([]uint64, c.parsed.numDirectories)
	for i := range offsets {
		offsets[i] = base + uint64(i)*dataDirectorySize
	}
	c.parsed.directoryOffsets = offsets
	return nil
}

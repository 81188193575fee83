// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pe

import (
	"bytes"
	"encoding/binary"
)

// ImageDOSHeader represents the DOS stub of a PE. Every PE file begins
// with a small MS-DOS stub; the only field the structural parser actually
// depends on is AddressOfNewEXEHeader (e_lfanew), which points at the NT
// signature.
type ImageDOSHeader struct {
	// Magic number. 0x5A4D ("MZ") for every DOS/PE executable.
	Magic uint16 `json:"magic"`

	BytesOnLastPageOfFile    uint16     `json:"bytes_on_last_page_of_file"`
	PagesInFile              uint16     `json:"pages_in_file"`
	Relocations              uint16     `json:"relocations"`
	SizeOfHeader             uint16     `json:"size_of_header"`
	MinExtraParagraphsNeeded uint16     `json:"min_extra_paragraphs_needed"`
	MaxExtraParagraphsNeeded uint16     `json:"max_extra_paragraphs_needed"`
	InitialSS                uint16     `json:"initial_ss"`
	InitialSP                uint16     `json:"initial_sp"`
	Checksum                 uint16     `json:"checksum"`
	InitialIP                uint16     `json:"initial_ip"`
	InitialCS                uint16     `json:"initial_cs"`
	AddressOfRelocationTable uint16     `json:"address_of_relocation_table"`
	OverlayNumber            uint16     `json:"overlay_number"`
	ReservedWords1           [4]uint16  `json:"reserved_words_1"`
	OEMIdentifier            uint16     `json:"oem_identifier"`
	OEMInformation           uint16     `json:"oem_information"`
	ReservedWords2           [10]uint16 `json:"reserved_words_2"`

	// AddressOfNewEXEHeader (e_lfanew) is the file offset of the NT
	// signature. It can't be null (the signatures would overlap the DOS
	// header) and is the only field besides Magic required to turn a DOS
	// stub into a PE.
	AddressOfNewEXEHeader uint32 `json:"address_of_new_exe_header"`
}

var dosHeaderSize = uint64(binary.Size(ImageDOSHeader{}))

// parseDOSHeader reads and validates the DOS header at offset 0. Spec
// step 1: failure to find the MZ magic is NotAPEFile.
func (c *Context) parseDOSHeader() error {
	if !c.mapping.contains(0, dosHeaderSize) {
		return newError(NotAPEFile, nil)
	}

	var hdr ImageDOSHeader
	buf := bytes.NewReader(c.mapping.slice(0, dosHeaderSize))
	if err := binary.Read(buf, binary.LittleEndian, &hdr); err != nil {
		return newError(NotAPEFile, err)
	}

	if hdr.Magic != ImageDOSSignature {
		return newError(NotAPEFile, nil)
	}

	c.parsed.dosHeader = &hdr
	return nil
}

// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pe

// Image executable signatures recognized at dos_hdr.e_lfanew.
const (
	// ImageDOSSignature is the DOS MZ magic at offset 0.
	ImageDOSSignature = 0x5A4D // MZ

	// ImageNTSignature is the NT/PE signature, 'PE\0\0'.
	ImageNTSignature = 0x00004550 // PE00

	// ImageOS2Signature is the 16-bit New Executable signature, 'NE\0\0'.
	// NE files are recognized only shallowly: the parser acknowledges the
	// signature and stops there, per spec. IsPE reports false for them.
	ImageOS2Signature = 0x0000454E // NE00
)

// Optional header magic values. Anything other than PE32/PE32+ classifies
// as ROM or Unknown and yields UnsupportedImage.
const (
	ImageNtOptionalHeader32Magic = 0x10b
	ImageNtOptionalHeader64Magic = 0x20b
	ImageROMOptionalHeaderMagic  = 0x107
)

// Image file machine types. The parser records the COFF Machine field
// without interpreting it, and the CLI prints it as a raw number.
const (
	ImageFileMachineUnknown = uint16(0x0)
	ImageFileMachineAM33    = uint16(0x1d3)
	ImageFileMachineAMD64   = uint16(0x8664)
	ImageFileMachineARM     = uint16(0x1c0)
	ImageFileMachineARM64   = uint16(0xaa64)
	ImageFileMachineARMNT   = uint16(0x1c4)
	ImageFileMachineEBC     = uint16(0xebc)
	ImageFileMachineI386    = uint16(0x14c)
	ImageFileMachineIA64    = uint16(0x200)
	ImageFileMachineRISCV64 = uint16(0x5064)
)

// Characteristics field of the COFF header. Only the subset the core
// interprets or the CLI displays is kept.
const (
	ImageFileRelocsStripped    = 0x0001
	ImageFileExecutableImage   = 0x0002
	ImageFileLargeAddressAware = 0x0020
	ImageFile32BitMachine      = 0x0100
	ImageFileSystem            = 0x1000
	ImageFileDLL               = 0x2000
)

// ImageDirectoryEntry identifies a slot in the data directory table. The
// core hands out pointers to these slots; interpreting what lives at each
// one is an external collaborator's job (spec.md Non-goals).
type ImageDirectoryEntry int

// Data directory indices, in on-disk order.
const (
	ImageDirectoryEntryExport ImageDirectoryEntry = iota
	ImageDirectoryEntryImport
	ImageDirectoryEntryResource
	ImageDirectoryEntryException
	ImageDirectoryEntryCertificate
	ImageDirectoryEntryBaseReloc
	ImageDirectoryEntryDebug
	ImageDirectoryEntryArchitecture
	ImageDirectoryEntryGlobalPtr
	ImageDirectoryEntryTLS
	ImageDirectoryEntryLoadConfig
	ImageDirectoryEntryBoundImport
	ImageDirectoryEntryIAT
	ImageDirectoryEntryDelayImport
	ImageDirectoryEntryCLR
	ImageDirectoryEntryReserved
	ImageNumberOfDirectoryEntries
)

// String returns the conventional name of a data directory entry.
func (entry ImageDirectoryEntry) String() string {
	names := map[ImageDirectoryEntry]string{
		ImageDirectoryEntryExport:       "Export",
		ImageDirectoryEntryImport:       "Import",
		ImageDirectoryEntryResource:     "Resource",
		ImageDirectoryEntryException:    "Exception",
		ImageDirectoryEntryCertificate:  "Security",
		ImageDirectoryEntryBaseReloc:    "Relocation",
		ImageDirectoryEntryDebug:        "Debug",
		ImageDirectoryEntryArchitecture: "Architecture",
		ImageDirectoryEntryGlobalPtr:    "GlobalPtr",
		ImageDirectoryEntryTLS:          "TLS",
		ImageDirectoryEntryLoadConfig:   "LoadConfig",
		ImageDirectoryEntryBoundImport:  "BoundImport",
		ImageDirectoryEntryIAT:          "IAT",
		ImageDirectoryEntryDelayImport:  "DelayImport",
		ImageDirectoryEntryCLR:          "CLR",
		ImageDirectoryEntryReserved:     "Reserved",
	}
	return names[entry]
}

// MaxDirectories and MaxSections are the compile-time bounds the
// structural parser enforces on the directory and section tables.
const (
	MaxDirectories = 16
	MaxSections    = 96
)

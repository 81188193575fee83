// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package pe is a bounds-checked parser for the structural (not semantic)
// layout of Portable Executable files: the DOS stub, NT/COFF and optional
// headers, the data directory table, and the section table. It does not
// interpret what those tables point at; imports, exports, resources,
// relocations, TLS callbacks and certificates are an external
// collaborator's job once it has the (RVA, size) pairs this package
// hands out.
package pe

import (
	"os"
	"sync"

	"github.com/sohsatoh/readpe/internal/log"
)

// state tracks where a Context sits in its Open -> Parse -> Close
// lifecycle. Parse returns an error when called in any state but
// stateMapped; the accessors do not check the state.
type state int

const (
	stateEmpty state = iota
	stateMapped
	stateParsed
	stateClosed
)

// CacheKey names an extension slot a collaborator (an imports reader, a
// hashing pass, ...) can use to stash a derived value on a Context so
// repeat consumers don't redo the work. The core never populates or reads
// these itself.
type CacheKey int

// Recognized cache slots. The set is open-ended in spirit but enumerated
// here so collaborators share one namespace instead of colliding on
// ad-hoc string keys.
const (
	CacheKeyImports CacheKey = iota
	CacheKeyExports
	CacheKeyHeaderHash
	CacheKeySectionHash
	CacheKeyFileHash
	CacheKeyResources
)

// CachedPayload is anything a collaborator wants to attach to a Context's
// cache. Release is called once, when the Context is closed, so payloads
// holding their own resources (an open sub-mapping, a decoded table) can
// free them deterministically instead of waiting on the garbage
// collector.
type CachedPayload interface {
	Release()
}

// parsedIndex is the set of fields the structural walk fills in. Offsets
// into the mapping are stored rather than copied structures wherever the
// C original would have kept a raw pointer; readers re-validate those
// offsets against the mapping before dereferencing them, the same
// contract spec.md assigns to translate-layer consumers.
type parsedIndex struct {
	dosHeader *ImageDOSHeader

	signature       uint32
	signatureOffset uint64

	coffHeader       *ImageFileHeader
	coffHeaderOffset uint64
	numSections      uint16

	optionalKind         OptionalKind
	optionalHeaderOffset uint64
	optionalHeaderLength uint64
	optional32           *ImageOptionalHeader32
	optional64           *ImageOptionalHeader64
	entrypoint           uint64
	imageBase            uint64

	numDirectories   uint32
	directoryOffsets []uint64

	sectionOffsets []uint64
}

// Context owns one open PE image: its mapping, the index produced by
// parsing it, and whatever a collaborator has cached against it. A
// Context is not safe for concurrent use; callers that share one across
// goroutines must serialize access themselves (spec.md's concurrency
// model puts that burden on the caller, not the core).
type Context struct {
	path string

	mapping *mapping
	stream  *os.File // non-nil only when opened with NoCloseFD

	state  state
	parsed *parsedIndex

	logger *log.Helper

	mu    sync.Mutex
	cache map[CacheKey]CachedPayload
}

// Open maps path and returns a Context in the Mapped state; call Parse to
// walk its headers. logger may be nil, in which case a default,
// error-level-only logger is used.
func Open(path string, opts Option, logger *log.Helper) (*Context, error) {
	if logger == nil {
		logger = log.DefaultHelper()
	}

	m, f, err := newMapping(path, opts, logger)
	if err != nil {
		return nil, err
	}

	return &Context{
		path:    path,
		mapping: m,
		stream:  f,
		state:   stateMapped,
		logger:  logger,
		cache:   make(map[CacheKey]CachedPayload),
	}, nil
}

// Parse walks the structural layout in the fixed order spec.md prescribes:
// DOS header, NT signature, COFF header, optional header, data
// directories, section table. An NE ('NE\0\0') signature is recognized
// but not followed further, matching the C original's shallow handling of
// 16-bit executables: Parse returns nil, and IsPE reports false.
func (c *Context) Parse() error {
	if c.state != stateMapped {
		return newError(NotAPEFile, nil)
	}

	c.parsed = &parsedIndex{}

	if err := c.parseDOSHeader(); err != nil {
		return err
	}
	if err := c.parseSignature(); err != nil {
		return err
	}
	if c.parsed.signature == ImageOS2Signature {
		c.state = stateParsed
		return nil
	}
	if err := c.parseCOFFHeader(); err != nil {
		return err
	}
	if err := c.parseOptionalHeader(); err != nil {
		return err
	}
	if err := c.parseDirectories(); err != nil {
		return err
	}
	if err := c.parseSections(); err != nil {
		return err
	}

	c.state = stateParsed
	return nil
}

// Close releases the cache, unmaps the file, and closes the retained file
// descriptor if one was kept open with NoCloseFD. It is safe to call more
// than once.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == stateClosed {
		return nil
	}

	for key, payload := range c.cache {
		payload.Release()
		delete(c.cache, key)
	}

	var err error
	if c.mapping != nil {
		err = c.mapping.unmap()
	}

	if c.stream != nil {
		if cerr := c.stream.Close(); cerr != nil && err == nil {
			err = newError(CloseFailed, cerr)
		}
		c.stream = nil
	}

	c.parsed = nil
	c.state = stateClosed
	return err
}

// IsLoaded reports whether the underlying mapping is still established.
func (c *Context) IsLoaded() bool {
	return c.state != stateClosed && c.mapping.isLoaded()
}

// FileSize returns the size in bytes of the mapped file.
func (c *Context) FileSize() uint64 {
	return c.mapping.fileSize()
}

// Contains reports whether [offset, offset+length) lies wholly inside the
// mapping. It is exposed so collaborators validating their own derived
// offsets (e.g. into an import table) can reuse the core's bounds-check
// primitive instead of reimplementing the overflow-safe arithmetic.
func (c *Context) Contains(offset, length uint64) bool {
	return c.mapping.contains(offset, length)
}

// IsPE reports whether the signature recognized at e_lfanew was the NT
// signature ('PE\0\0') rather than the NE signature.
func (c *Context) IsPE() bool {
	return c.parsed != nil && c.parsed.signature == ImageNTSignature
}

// IsDLL reports whether the COFF characteristics carry the DLL bit. It
// returns false for images with no COFF header (NE files).
func (c *Context) IsDLL() bool {
	if c.parsed == nil || c.parsed.coffHeader == nil {
		return false
	}
	return c.parsed.coffHeader.Characteristics&ImageFileDLL != 0
}

// DOSHeader returns the DOS header read by Parse, or nil if Parse has not
// read one. A Parse that fails at a later step leaves it in place.
func (c *Context) DOSHeader() *ImageDOSHeader {
	if c.parsed == nil {
		return nil
	}
	return c.parsed.dosHeader
}

// COFFHeader returns the COFF header read by Parse, or nil for NE files
// or if Parse has not read one. A Parse that fails at a later step leaves
// it in place.
func (c *Context) COFFHeader() *ImageFileHeader {
	if c.parsed == nil {
		return nil
	}
	return c.parsed.coffHeader
}

// OptionalHeaderKind reports which optional-header layout, if any, was
// recognized.
func (c *Context) OptionalHeaderKind() OptionalKind {
	if c.parsed == nil {
		return OptionalUnknown
	}
	return c.parsed.optionalKind
}

// OptionalHeader32 returns the PE32 optional header, or nil if the image
// is PE32+ or wasn't recognized.
func (c *Context) OptionalHeader32() *ImageOptionalHeader32 {
	if c.parsed == nil {
		return nil
	}
	return c.parsed.optional32
}

// OptionalHeader64 returns the PE32+ optional header, or nil if the image
// is PE32 or wasn't recognized.
func (c *Context) OptionalHeader64() *ImageOptionalHeader64 {
	if c.parsed == nil {
		return nil
	}
	return c.parsed.optional64
}

// EntryPoint returns AddressOfEntryPoint as an RVA, from whichever
// optional header variant was parsed.
func (c *Context) EntryPoint() uint64 {
	if c.parsed == nil {
		return 0
	}
	return c.parsed.entrypoint
}

// ImageBase returns the preferred load address, widened to 64 bits
// regardless of which optional header variant supplied it.
func (c *Context) ImageBase() uint64 {
	if c.parsed == nil {
		return 0
	}
	return c.parsed.imageBase
}

// DirectoriesCount returns the number of data directory entries recorded
// at parse time (NumberOfRvaAndSizes, bounded by MaxDirectories).
func (c *Context) DirectoriesCount() uint32 {
	if c.parsed == nil {
		return 0
	}
	return c.parsed.numDirectories
}

// DirectoryByEntry returns the data directory at the given index,
// re-validating its stored offset against the mapping before reading it.
// The bool is false if entry is out of range or the offset no longer
// fits the mapping.
func (c *Context) DirectoryByEntry(entry ImageDirectoryEntry) (DataDirectory, bool) {
	if c.parsed == nil || int(entry) < 0 || int(entry) >= len(c.parsed.directoryOffsets) {
		return DataDirectory{}, false
	}
	offset := c.parsed.directoryOffsets[entry]
	if !c.mapping.contains(offset, dataDirectorySize) {
		return DataDirectory{}, false
	}
	return decodeDataDirectory(c.mapping.slice(offset, dataDirectorySize)), true
}

// SetCached installs payload under key, releasing and replacing whatever
// was previously stored there.
func (c *Context) SetCached(key CacheKey, payload CachedPayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.cache[key]; ok {
		old.Release()
	}
	c.cache[key] = payload
}

// Cached returns the payload stored under key, if any.
func (c *Context) Cached(key CacheKey) (CachedPayload, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.cache[key]
	return p, ok
}

// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	pe "github.com/sohsatoh/readpe"
	"github.com/sohsatoh/readpe/internal/log"
)

type dumpOutput struct {
	Path          string                    `json:"path"`
	IsPE          bool                      `json:"is_pe"`
	IsDLL         bool                      `json:"is_dll"`
	FileSize      uint64                    `json:"file_size"`
	DOSHeader     *pe.ImageDOSHeader        `json:"dos_header,omitempty"`
	COFFHeader    *pe.ImageFileHeader       `json:"coff_header,omitempty"`
	OptionalKind  string                    `json:"optional_header_kind"`
	OptionalPE32  *pe.ImageOptionalHeader32 `json:"optional_header_32,omitempty"`
	OptionalPE32P *pe.ImageOptionalHeader64 `json:"optional_header_64,omitempty"`
	EntryPoint    uint64                    `json:"entry_point_rva"`
	ImageBase     uint64                    `json:"image_base"`
	Directories   []directoryOutput         `json:"directories,omitempty"`
	Sections      []sectionOutput           `json:"sections,omitempty"`
}

type directoryOutput struct {
	Name           string `json:"name"`
	VirtualAddress uint32 `json:"virtual_address"`
	Size           uint32 `json:"size"`
}

type sectionOutput struct {
	Name            string `json:"name"`
	VirtualAddress  uint32 `json:"virtual_address"`
	VirtualSize     uint32 `json:"virtual_size"`
	PointerToRaw    uint32 `json:"pointer_to_raw_data"`
	SizeOfRawData   uint32 `json:"size_of_raw_data"`
	Characteristics uint32 `json:"characteristics"`
}

func newDumpCmd() *cobra.Command {
	var (
		wantDOS         bool
		wantCOFF        bool
		wantOptional    bool
		wantDirectories bool
		wantSections    bool
		wantJSON        bool
	)

	cmd := &cobra.Command{
		Use:   "dump <file>",
		Short: "Parse a PE file and print its structural headers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.NewHelper(log.NewFilter(log.NewStdLogger(cmd.ErrOrStderr()), log.FilterLevel(log.LevelWarn)))

			ctx, err := pe.Open(args[0], 0, logger)
			if err != nil {
				return fmt.Errorf("opening %s: %w", args[0], err)
			}
			defer ctx.Close()

			if err := ctx.Parse(); err != nil {
				return fmt.Errorf("parsing %s: %w", args[0], err)
			}

			out := dumpOutput{
				Path:         args[0],
				IsPE:         ctx.IsPE(),
				IsDLL:        ctx.IsDLL(),
				FileSize:     ctx.FileSize(),
				OptionalKind: ctx.OptionalHeaderKind().String(),
				EntryPoint:   ctx.EntryPoint(),
				ImageBase:    ctx.ImageBase(),
			}

			if wantDOS {
				out.DOSHeader = ctx.DOSHeader()
			}
			if wantCOFF {
				out.COFFHeader = ctx.COFFHeader()
			}
			if wantOptional {
				out.OptionalPE32 = ctx.OptionalHeader32()
				out.OptionalPE32P = ctx.OptionalHeader64()
			}

			if wantDirectories {
				for i := uint32(0); i < ctx.DirectoriesCount(); i++ {
					entry := pe.ImageDirectoryEntry(i)
					dd, ok := ctx.DirectoryByEntry(entry)
					if !ok {
						continue
					}
					out.Directories = append(out.Directories, directoryOutput{
						Name:           entry.String(),
						VirtualAddress: dd.VirtualAddress,
						Size:           dd.Size,
					})
				}
			}

			if wantSections {
				for _, s := range ctx.Sections() {
					buf := make([]byte, 9)
					name, _ := pe.SectionName(s, buf)
					out.Sections = append(out.Sections, sectionOutput{
						Name:            name,
						VirtualAddress:  s.VirtualAddress,
						VirtualSize:     s.VirtualSize,
						PointerToRaw:    s.PointerToRawData,
						SizeOfRawData:   s.SizeOfRawData,
						Characteristics: s.Characteristics,
					})
				}
			}

			if wantJSON {
				return printJSON(cmd, out)
			}
			return printTable(cmd, out)
		},
	}

	cmd.Flags().BoolVar(&wantDOS, "dos", false, "include the DOS header")
	cmd.Flags().BoolVar(&wantCOFF, "coff", false, "include the COFF header")
	cmd.Flags().BoolVar(&wantOptional, "optional", false, "include the optional header")
	cmd.Flags().BoolVar(&wantDirectories, "directories", true, "include the data directory table")
	cmd.Flags().BoolVar(&wantSections, "sections", true, "include the section table")
	cmd.Flags().BoolVar(&wantJSON, "json", false, "print as JSON instead of a table")
	return cmd
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), pretty.String())
	return nil
}

// printTable renders out as a set of tabwriter-aligned tables, the
// teacher's dump.go pattern for its non-JSON output.
func printTable(cmd *cobra.Command, out dumpOutput) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 1, 1, 3, ' ', tabwriter.AlignRight)

	fmt.Fprintf(w, "Path:\t %s\n", out.Path)
	fmt.Fprintf(w, "Is PE:\t %v\n", out.IsPE)
	fmt.Fprintf(w, "Is DLL:\t %v\n", out.IsDLL)
	fmt.Fprintf(w, "File Size:\t 0x%x\n", out.FileSize)
	fmt.Fprintf(w, "Optional Header Kind:\t %s\n", out.OptionalKind)
	fmt.Fprintf(w, "Entry Point (RVA):\t 0x%x\n", out.EntryPoint)
	fmt.Fprintf(w, "Image Base:\t 0x%x\n", out.ImageBase)
	w.Flush()

	if out.DOSHeader != nil {
		fmt.Fprint(cmd.OutOrStdout(), "\n\t------[ DOS Header ]------\n\n")
		w = tabwriter.NewWriter(cmd.OutOrStdout(), 1, 1, 3, ' ', tabwriter.AlignRight)
		fmt.Fprintf(w, "Magic:\t 0x%x\n", out.DOSHeader.Magic)
		fmt.Fprintf(w, "Address Of New EXE Header:\t 0x%x\n", out.DOSHeader.AddressOfNewEXEHeader)
		w.Flush()
	}

	if out.COFFHeader != nil {
		fmt.Fprint(cmd.OutOrStdout(), "\n\t------[ COFF Header ]------\n\n")
		w = tabwriter.NewWriter(cmd.OutOrStdout(), 1, 1, 3, ' ', tabwriter.AlignRight)
		fmt.Fprintf(w, "Machine:\t 0x%x\n", out.COFFHeader.Machine)
		fmt.Fprintf(w, "Number Of Sections:\t 0x%x\n", out.COFFHeader.NumberOfSections)
		fmt.Fprintf(w, "Characteristics:\t 0x%x\n", out.COFFHeader.Characteristics)
		w.Flush()
	}

	if out.OptionalPE32 != nil {
		fmt.Fprint(cmd.OutOrStdout(), "\n\t------[ Optional Header (PE32) ]------\n\n")
		w = tabwriter.NewWriter(cmd.OutOrStdout(), 1, 1, 3, ' ', tabwriter.AlignRight)
		fmt.Fprintf(w, "Magic:\t 0x%x\n", out.OptionalPE32.Magic)
		fmt.Fprintf(w, "Address Of Entry Point:\t 0x%x\n", out.OptionalPE32.AddressOfEntryPoint)
		fmt.Fprintf(w, "Image Base:\t 0x%x\n", out.OptionalPE32.ImageBase)
		fmt.Fprintf(w, "Subsystem:\t 0x%x\n", out.OptionalPE32.Subsystem)
		w.Flush()
	}
	if out.OptionalPE32P != nil {
		fmt.Fprint(cmd.OutOrStdout(), "\n\t------[ Optional Header (PE32+) ]------\n\n")
		w = tabwriter.NewWriter(cmd.OutOrStdout(), 1, 1, 3, ' ', tabwriter.AlignRight)
		fmt.Fprintf(w, "Magic:\t 0x%x\n", out.OptionalPE32P.Magic)
		fmt.Fprintf(w, "Address Of Entry Point:\t 0x%x\n", out.OptionalPE32P.AddressOfEntryPoint)
		fmt.Fprintf(w, "Image Base:\t 0x%x\n", out.OptionalPE32P.ImageBase)
		fmt.Fprintf(w, "Subsystem:\t 0x%x\n", out.OptionalPE32P.Subsystem)
		w.Flush()
	}

	if len(out.Directories) > 0 {
		fmt.Fprint(cmd.OutOrStdout(), "\n\t------[ Data Directories ]------\n\n")
		w = tabwriter.NewWriter(cmd.OutOrStdout(), 1, 1, 3, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "Name\tVirtual Address\tSize\t")
		for _, d := range out.Directories {
			fmt.Fprintf(w, "%s\t0x%x\t0x%x\t\n", d.Name, d.VirtualAddress, d.Size)
		}
		w.Flush()
	}

	if len(out.Sections) > 0 {
		fmt.Fprint(cmd.OutOrStdout(), "\n\t------[ Sections ]------\n\n")
		w = tabwriter.NewWriter(cmd.OutOrStdout(), 1, 1, 3, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "Name\tVirtual Address\tVirtual Size\tRaw Offset\tRaw Size\t")
		for _, s := range out.Sections {
			fmt.Fprintf(w, "%s\t0x%x\t0x%x\t0x%x\t0x%x\t\n",
				s.Name, s.VirtualAddress, s.VirtualSize, s.PointerToRaw, s.SizeOfRawData)
		}
		w.Flush()
	}

	return nil
}

// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	pe "github.com/sohsatoh/readpe"
	"github.com/sohsatoh/readpe/internal/log"
)

func openAndParse(path string) (*pe.Context, error) {
	logger := log.NewHelper(log.NewFilter(log.NewStdLogger(os.Stderr), log.FilterLevel(log.LevelError)))
	ctx, err := pe.Open(path, 0, logger)
	if err != nil {
		return nil, err
	}
	if err := ctx.Parse(); err != nil {
		ctx.Close()
		return nil, err
	}
	return ctx, nil
}

func newRVAToOffsetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rva2offset <file> <rva>",
		Short: "Translate a relative virtual address into a raw file offset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rva, err := strconv.ParseUint(args[1], 0, 32)
			if err != nil {
				return fmt.Errorf("invalid rva %q: %w", args[1], err)
			}

			ctx, err := openAndParse(args[0])
			if err != nil {
				return err
			}
			defer ctx.Close()

			offset, ok := ctx.RVAToOffset(uint32(rva))
			if !ok {
				return fmt.Errorf("rva 0x%x does not map to any section", rva)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "0x%x\n", offset)
			return nil
		},
	}
}

func newOffsetToRVACmd() *cobra.Command {
	return &cobra.Command{
		Use:   "offset2rva <file> <offset>",
		Short: "Translate a raw file offset into a relative virtual address",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			offset, err := strconv.ParseUint(args[1], 0, 64)
			if err != nil {
				return fmt.Errorf("invalid offset %q: %w", args[1], err)
			}

			ctx, err := openAndParse(args[0])
			if err != nil {
				return err
			}
			defer ctx.Close()

			rva, ok := ctx.OffsetToRVA(offset)
			if !ok {
				return fmt.Errorf("offset 0x%x does not fall inside any section", offset)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "0x%x\n", rva)
			return nil
		},
	}
}

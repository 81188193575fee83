// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Command readpe is a thin inspection front end over the pe package: it
// opens an image, parses its structural headers, and prints the result.
// It performs no semantic interpretation of imports, exports, resources
// or the other subsystem tables; those remain an external collaborator's
// job.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "readpe",
		Short: "Inspect the structural layout of a Portable Executable file",
	}

	root.AddCommand(newDumpCmd())
	root.AddCommand(newRVAToOffsetCmd())
	root.AddCommand(newOffsetToRVACmd())
	root.AddCommand(newVersionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the readpe version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version)
			return nil
		},
	}
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xnumon-go/procmon/internal/config"
)

func configCmd() *cobra.Command {
	top := &cobra.Command{
		Use:   "config",
		Short: "configuration file utilities",
	}
	top.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "load and validate the config file without starting the monitor",
		RunE:  configCheckE,
	})
	return top
}

func configCheckE(cmd *cobra.Command, args []string) error {
	fc, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	c := fc.ToCore()
	fmt.Printf("%s: ok\n", cfgPath)
	fmt.Printf("  ancestors:          %d\n", c.Ancestors)
	fmt.Printf("  kext-level:         %v\n", c.KextLevel)
	fmt.Printf("  hash-flags:         %#x\n", c.HashFlags)
	fmt.Printf("  codesign:           %v\n", c.Codesign)
	fmt.Printf("  suppress-at-start:  %v\n", c.SuppressAtStart)
	fmt.Printf("  suppress-by-ident:  %d entries\n", len(fc.SuppressByIdent))
	fmt.Printf("  suppress-by-path:   %d entries\n", len(fc.SuppressByPath))
	fmt.Printf("  kern-codesign-skip: %v\n", c.KernCodesignSkipPaths)
	return nil
}

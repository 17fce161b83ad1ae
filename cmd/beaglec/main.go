package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	beagle "beagle.dev/pkg"
)

var (
	emitFlag string
	outFlag  string
	verbose  bool
)

func moduleNameFor(path string) string {
	return path
}

func readSource(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func newLogger() *logrus.Logger {
	logger := logrus.New()
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.WarnLevel)
	}
	return logger
}

func printDiagnostics(diags []beagle.Diagnostic) {
	for _, d := range diags {
		fmt.Println(d.String())
	}
}

var rootCmd = &cobra.Command{
	Use:   "beaglec",
	Short: "beaglec compiles beagle source to MIR",
}

var lexCmd = &cobra.Command{
	Use:   "lex <file>",
	Short: "run only the lexer, printing each token with its position",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, err := readSource(args[0])
		if err != nil {
			return err
		}
		driver := beagle.NewDriver(beagle.DefaultConfig(), newLogger())
		result, err := driver.Lex(context.Background(), moduleNameFor(args[0]), source)
		if err != nil {
			return err
		}
		for _, tok := range result.Tokens {
			fmt.Printf("%s\t%s\n", tok.Pos, tok.Kind)
		}
		printDiagnostics(result.Diagnostics)
		if len(result.Diagnostics) != 0 {
			os.Exit(1)
		}
		return nil
	},
}

var parseCmd = &cobra.Command{
	Use:   "parse <file>",
	Short: "run the lexer and parser, disassembling the HIR chunk stream",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, err := readSource(args[0])
		if err != nil {
			return err
		}
		driver := beagle.NewDriver(beagle.DefaultConfig(), newLogger())
		result, err := driver.Parse(context.Background(), moduleNameFor(args[0]), source)
		if err != nil {
			return err
		}
		fmt.Print(beagle.DisassembleHIR(result.Chunks))
		printDiagnostics(result.Diagnostics)
		if len(result.Diagnostics) != 0 {
			os.Exit(1)
		}
		return nil
	},
}

var compileCmd = &cobra.Command{
	Use:   "compile <file>",
	Short: "run the full pipeline, printing a disassembly or writing the MIR blob",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, err := readSource(args[0])
		if err != nil {
			return err
		}
		module := moduleNameFor(args[0])
		driver := beagle.NewDriver(beagle.DefaultConfig(), newLogger())

		if outFlag != "" && emitFlag != "mir" {
			return fmt.Errorf("--out only applies to --emit=mir, the sole stage with a binary wire form")
		}

		switch emitFlag {
		case "tokens":
			result, err := driver.Lex(context.Background(), module, source)
			if err != nil {
				return err
			}
			for _, tok := range result.Tokens {
				fmt.Printf("%s\t%s\n", tok.Pos, tok.Kind)
			}
			printDiagnostics(result.Diagnostics)
			if len(result.Diagnostics) != 0 {
				os.Exit(1)
			}
			return nil
		case "hir":
			result, err := driver.Parse(context.Background(), module, source)
			if err != nil {
				return err
			}
			fmt.Print(beagle.DisassembleHIR(result.Chunks))
			printDiagnostics(result.Diagnostics)
			if len(result.Diagnostics) != 0 {
				os.Exit(1)
			}
			return nil
		case "typed":
			result, err := driver.Typed(context.Background(), module, source)
			if err != nil {
				return err
			}
			fmt.Print(beagle.DisassembleHIR(result.Chunks))
			printDiagnostics(result.Diagnostics)
			if len(result.Diagnostics) != 0 {
				os.Exit(1)
			}
			return nil
		case "mir":
			result, err := driver.Run(context.Background(), module, source)
			if err != nil {
				return err
			}
			printDiagnostics(result.Diagnostics)
			if result.Failed() {
				os.Exit(1)
			}
			if outFlag != "" {
				return os.WriteFile(outFlag, result.MIR, 0o644)
			}
			fmt.Print(beagle.DisassembleMIR(result.Chunks))
			return nil
		default:
			return fmt.Errorf("unknown --emit stage %q: want tokens, hir, typed or mir", emitFlag)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&emitFlag, "emit", "mir", "pipeline stage to print: tokens|hir|typed|mir")
	rootCmd.PersistentFlags().StringVarP(&outFlag, "out", "o", "", "write the MIR blob to this path instead of printing a disassembly")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(lexCmd, parseCmd, compileCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tenet-verify/tenet/contract"
	"github.com/tenet-verify/tenet/encoding"
	"github.com/tenet-verify/tenet/engine"
	"github.com/tenet-verify/tenet/spec"
)

var (
	fWorkers int
	fTimeout time.Duration
	fRetry   bool
	fJSON    bool
	fOutPath string
)

// verifyCmd represents the verify command
var verifyCmd = &cobra.Command{
	Use:   "verify [spec file]",
	Short: "verifies every rule and invariant of a specification against the built-in token model",
	Run:   cmdVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.PersistentFlags().IntVar(&fWorkers, "workers", 0, "number of rules verified concurrently (0 = one per CPU)")
	verifyCmd.PersistentFlags().DurationVar(&fTimeout, "timeout", 30*time.Second, "solver budget per rule")
	verifyCmd.PersistentFlags().BoolVar(&fRetry, "retry", false, "retry timed-out rules once with an extended budget")
	verifyCmd.PersistentFlags().BoolVar(&fJSON, "json", false, "print the report as JSON instead of a table")
	verifyCmd.PersistentFlags().StringVar(&fOutPath, "out", "", "also write the binary report to this path")
}

func cmdVerify(cmd *cobra.Command, args []string) {
	if len(args) < 1 {
		fmt.Println("missing spec path -- tenet verify -h for help")
		os.Exit(-1)
	}
	specPath := filepath.Clean(args[0])

	src, err := os.ReadFile(specPath)
	if err != nil {
		fmt.Println("can't read spec file")
		fmt.Println(err)
		os.Exit(-1)
	}
	prog, err := spec.Parse(string(src))
	if err != nil {
		fmt.Println("can't parse spec file")
		fmt.Println(err)
		os.Exit(-1)
	}

	opts := []engine.Option{engine.WithSolverTimeout(fTimeout)}
	if fWorkers > 0 {
		opts = append(opts, engine.WithWorkers(fWorkers))
	}
	if fRetry {
		opts = append(opts, engine.WithTimeoutRetry())
	}

	eng := engine.New(contract.NewERC20(), opts...)
	report, err := eng.Verify(context.Background(), prog)
	if err != nil {
		fmt.Println("verification aborted")
		fmt.Println(err)
		os.Exit(-1)
	}

	if fOutPath != "" {
		if err := encoding.Write(filepath.Clean(fOutPath), report); err != nil {
			fmt.Println("can't write report", err)
			os.Exit(-1)
		}
	}
	if fJSON {
		if err := encoding.WriteJSON(os.Stdout, report); err != nil {
			fmt.Println("can't encode report", err)
			os.Exit(-1)
		}
	} else {
		printReport(specPath, report)
	}
	if !report.Ok() {
		os.Exit(-1)
	}
}

var verdictColor = map[engine.Verdict]func(format string, a ...interface{}) string{
	engine.Verified: color.GreenString,
	engine.Violated: color.RedString,
	engine.Vacuous:  color.YellowString,
	engine.Unknown:  color.YellowString,
	engine.Error:    color.MagentaString,
}

func printReport(specPath string, report *engine.Report) {
	fmt.Printf("%-30s %-30s %d tasks\n", "verified", specPath, len(report.Results))
	for _, r := range report.Results {
		verdict := verdictColor[r.Verdict]("%-10s", r.Verdict)
		fmt.Printf("  %s %-50s %s\n", verdict, r.Name(), r.Message)
		if r.Cex == nil {
			continue
		}
		for _, b := range r.Cex.Bindings {
			fmt.Printf("             %s = %s\n", b.Name, b.Value)
		}
		for _, step := range r.Cex.Trace {
			fmt.Printf("             | %s\n", step)
		}
	}

	counts := report.Counts()
	fmt.Printf("%-30s %d verified, %d violated, %d vacuous, %d unknown, %d errors (%s)\n",
		"done",
		counts[engine.Verified], counts[engine.Violated], counts[engine.Vacuous],
		counts[engine.Unknown], counts[engine.Error], report.Elapsed)
}

// Command testblocks is the CLI driver: a cobra root command mirroring
// cmd/falcon/main.go's dotenv/viper bootstrap, dispatching to run/validate
// subcommands that build a RunRequest from files on disk, invoke the
// engine, and print a human summary plus the exit code §6 specifies.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/testsmith-io/testblocks/internal/config"
	"github.com/testsmith-io/testblocks/internal/document"
	"github.com/testsmith-io/testblocks/pkg/api"
	"github.com/testsmith-io/testblocks/pkg/engine"
	"github.com/testsmith-io/testblocks/pkg/model"
)

// Exit codes per §6: 0 all passed, 1 at least one failed/error, 2 engine
// aborted (malformed document). An unknown block type is not an abort: it
// is reported as an errored step, so the run exits 1.
const (
	exitOK          = 0
	exitTestsFailed = 1
	exitAborted     = 2
)

var (
	cfgFile     string
	hookFiles   []string
	globalsFile string
	servePort   int

	rootCmd = &cobra.Command{
		Use:   "testblocks",
		Short: "testblocks runs declarative, block-based test suites",
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .testblocks/config.yaml)")

	runCmd := &cobra.Command{
		Use:   "run <testfile>",
		Short: "Run a test file and print the resulting report",
		Args:  cobra.ExactArgs(1),
		RunE:  runRun,
	}
	runCmd.Flags().StringArrayVar(&hookFiles, "hooks", nil, "folder-hooks file, outermost first (repeatable)")
	runCmd.Flags().StringVar(&globalsFile, "globals", "", "project-root globals document")
	rootCmd.AddCommand(runCmd)

	validateCmd := &cobra.Command{
		Use:   "validate <testfile>",
		Short: "Decode and validate a test file without running it",
		Args:  cobra.ExactArgs(1),
		RunE:  runValidate,
	}
	rootCmd.AddCommand(validateCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API surface (POST /run)",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to bind (0 = OS-assigned)")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: failed to load .env file: %v\n", err)
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitAborted)
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	opts, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitAborted)
	}

	raw, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitAborted)
	}
	testFile, err := document.DecodeTestFile(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitAborted)
	}

	var globals *model.Globals
	if globalsFile != "" {
		raw, err := os.ReadFile(globalsFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(exitAborted)
		}
		globals, err = document.DecodeGlobals(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(exitAborted)
		}
	}

	folderHooks := make([]model.FolderHooks, 0, len(hookFiles))
	for _, path := range hookFiles {
		raw, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(exitAborted)
		}
		fh, err := document.DecodeFolderHooks(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(exitAborted)
		}
		folderHooks = append(folderHooks, *fh)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	req := engine.RunRequest{
		TestFile:        *testFile,
		FolderHooks:     folderHooks,
		Globals:         globals,
		Headless:        opts.Headless,
		WebTimeoutMs:    int(opts.WebTimeout.Milliseconds()),
		RecursionDepth:  opts.RecursionDepth,
		TestIDAttribute: opts.TestIDAttribute,
		RateLimitPerSec: opts.RateLimitPerSec,
	}

	report := engine.New().Run(ctx, req)
	printSummary(report)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)

	if report.Counts.Error > 0 || report.Counts.Failed > 0 {
		os.Exit(exitTestsFailed)
	}
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitAborted)
	}
	if _, err := document.DecodeTestFile(raw); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitAborted)
	}
	fmt.Println("ok")
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	eng := engine.New()
	port, shutdown, err := api.Start(eng, servePort)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitAborted)
	}
	defer shutdown()

	fmt.Printf("testblocks API -> http://127.0.0.1:%d\n", port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	return nil
}

func printSummary(report *model.SuiteReport) {
	fmt.Printf("passed=%d failed=%d error=%d skipped=%d\n",
		report.Counts.Passed, report.Counts.Failed, report.Counts.Error, report.Counts.Skipped)
}

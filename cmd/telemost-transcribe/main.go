package main

import (
	"context"
	"os"

	"go-meeting-transcriber/internal/adapters/primary/cli"
	"go-meeting-transcriber/internal/output"
)

func main() {
	deps := &cli.Dependencies{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}

	err := cli.NewRootCmd(deps).ExecuteContext(context.Background())
	if err != nil {
		cli.Report(output.NewFormatter(os.Stderr), err)
	}
	os.Exit(cli.ExitCode(err))
}

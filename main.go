// ./main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/vulnreport/cmd"
)

// main is the entry point for the vulnreport CLI.
func main() {
	// Cancel in-flight work on interrupt so partial reports are cleaned up.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := cmd.Main(ctx)
	stop()
	os.Exit(code)
}

// impex-deploy uploads a site import archive to a B2C Commerce instance and
// runs the site import job.
package main

import (
	"context"
	"impexdeploy/internal/cli"
	"impexdeploy/internal/config"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := cli.Run(ctx, os.Args[1:], cli.Options{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Env:    config.NewEnv(nil),
	})
	stop()
	os.Exit(code)
}

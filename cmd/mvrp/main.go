// mvrp serves and sends MVRP requests over mutual TLS.
//
// Usage:
//
//	mvrp serve --key server.key --cert server.crt [flags]
//	mvrp request METHOD TARGET [BODY] --key client.key --cert client.crt --ca ca.crt [flags]
//	mvrp version
//	mvrp --help
package main

import (
	"context"
	"os"

	"github.com/sufield/mvrp/internal/cli"
)

func main() {
	err := cli.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
	os.Exit(cli.ExitCode(err))
}

// zcash_endpoint prints the zcashd RPC endpoint and user resolved from a
// zcash.conf, the same way zectransfer resolves them. The password is never
// printed.
//
// Usage:
//
//	go run ./scripts/zcash_endpoint ~/.zcash/zcash.conf
//
// Or with stdin:
//
//	echo ~/.zcash/zcash.conf | go run ./scripts/zcash_endpoint
//
// With no path at all the default data directory is used.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/complex-gh/zectransfer"
)

func main() {
	var path string

	if len(os.Args) > 1 {
		path = os.Args[1]
	} else if fi, _ := os.Stdin.Stat(); (fi.Mode() & os.ModeNamedPipe) != 0 {
		scanner := bufio.NewScanner(os.Stdin)
		if scanner.Scan() {
			path = strings.TrimSpace(scanner.Text())
		}
	}

	cfg, err := zectransfer.LoadConfig(path, os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	network := "mainnet"
	switch {
	case cfg.Regtest:
		network = "regtest"
	case cfg.Testnet:
		network = "testnet"
	}

	fmt.Printf("config:  %s\n", cfg.Path)
	fmt.Printf("network: %s\n", network)
	fmt.Printf("host:    %s\n", cfg.Host)
	fmt.Printf("user:    %s\n", cfg.User)
}

// audittrail CLI - records requests and build events to console, file and syslog backends
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/getmockd/audittrail/pkg/cli"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env before the flags read their environment defaults.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: could not load .env file: %v\n", err)
	}
	cli.Execute()
}

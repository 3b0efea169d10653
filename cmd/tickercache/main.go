// Command tickercache serves cached stock market data over gRPC and
// administers a running server.
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	if err := newApp().Execute(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

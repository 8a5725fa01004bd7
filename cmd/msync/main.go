// Command msync queues and dispatches favourites, boosts, and posts
// against a Mastodon-API-family instance.
package main

import (
	"fmt"
	"os"

	"github.com/jra3/msync/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

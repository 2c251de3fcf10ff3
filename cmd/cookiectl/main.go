// Command cookiectl inspects and adjusts the cookie ledger directly through the database:
// balances, grants and takes, the leaderboard, history, total supply, a manual daily
// bonus, schema migrations, and a health check for the running bot.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

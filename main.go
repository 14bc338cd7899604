package main

import (
	"fmt"
	"os"

	"github.com/innovation-pello/pello-data-sync-dashboard/internal/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// prioritycraft is the command-line client for the decision engine API.
package main

import (
	"os"

	"github.com/turtacn/PriorityCraft/internal/interfaces/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

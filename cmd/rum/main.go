// rum runs commands detached from the terminal and manages them afterwards.
package main

import (
	"os"

	"github.com/steveyegge/rum/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}

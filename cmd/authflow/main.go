// Command authflow drives the session mirror and the credential reset flow
// against an Ory Kratos server from a terminal.
package main

import (
	"fmt"
	"os"
)

var buildVersion = "dev"

func main() {
	SetVersion(buildVersion)
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

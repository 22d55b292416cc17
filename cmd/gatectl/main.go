package main

import (
	"os"

	"github.com/upb/report-gate/cmd/gatectl/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}

package main

import (
	"github.com/oom-forensics/hprof-inflight/cmd/cli/cmd"
)

func main() {
	cmd.Execute()
}

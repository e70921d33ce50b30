package main

import (
	"os"

	"github.com/teranos/plugcfg/cmd/plugcfg/commands"
	"github.com/teranos/plugcfg/logger"
)

func main() {
	root := commands.NewRootCmd()
	err := root.Execute()
	logger.Cleanup()
	if err != nil {
		commands.ReportError(os.Stderr, err)
	}
	os.Exit(commands.ExitCode(err))
}

// Package main содержит точку входа сервиса аутентификации NOVA.
package main

import (
	"fmt"
	"os"
)

// Заполняется при сборке через -ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	cmd := NewRootCmd()
	cmd.Version = fmt.Sprintf("%s (commit: %s)", version, commit)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// Package main is the rover CLI command itself.
package main

import (
	"log"
	"os"

	"github.com/sonarbot/rover/cli"
	// registers all board backends.
	_ "github.com/sonarbot/rover/components/board/register"
)

func main() {
	app := cli.NewApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

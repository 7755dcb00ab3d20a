package main

import (
	"log"
	"os"

	"github.com/runlog/runlog/cli"
)

func main() {
	c := cli.New()
	if err := c.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

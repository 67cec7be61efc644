package main

import (
	"os"

	"github.com/kinarch/kinarch/logging"
)

func main() {
	logging.Initialize()
	os.Exit(Execute())
}

package main

import (
	"os"

	"github.com/MeKo-Tech/cardrectify/cmd/cardrectify/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}

package main

import (
	"os"

	"github.com/JakeFAU/cardshot/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}

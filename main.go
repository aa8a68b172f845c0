package main

import (
	"github.com/avess/gallery-bed/cmd"
)

func main() {
	cmd.Execute()
}

package main

import (
	"github.com/lycheetrade/krakenx/pkg/cmd"
)

func main() {
	cmd.Execute()
}

package main

import (
	"clipbrief/cmd/cmd"
)

func main() {
	cmd.Execute()
}

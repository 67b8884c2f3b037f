package main

import (
	"github.com/ColonelBlimp/anetz/cmd"
	"github.com/ColonelBlimp/anetz/internal/recovery"
)

func main() {
	defer recovery.HandlePanic()
	cmd.Execute()
}

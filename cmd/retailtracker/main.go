package main

import (
	"fmt"
	"os"

	"github.com/AlbertoRoca96/retail-inventory-tracker-sub001/internal/trackercli"
)

func main() {
	if err := trackercli.Execute(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

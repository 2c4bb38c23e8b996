package main

import (
	"fmt"
	"io"
	"os"
)

func main() {
	repl := NewREPL()
	err := repl.Open()
	for _, name := range os.Args[1:] {
		if err == nil {
			err = repl.CommandNew([]string{name})
		}
	}

	for err != io.EOF {
		if err != nil {
			_, _ = fmt.Fprintf(os.Stdout, "%s\n", err.Error())
			if repl.rl == nil {
				os.Exit(1)
			}
		}
		err = repl.REPL()
	}
	_ = repl.Close()
}

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ergochat/readline"
)

// REPL hosts a few in-process replicas to poke at.
type REPL struct {
	rl       *readline.Instance
	replicas map[string]*Replica
	current  string
	out      io.Writer
}

var ErrNoReplica = errors.New("no such replica")
var ErrUsage = errors.New("bad arguments, see help")

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),

	readline.PcItem("new"),
	readline.PcItem("use"),
	readline.PcItem("clone"),
	readline.PcItem("list"),

	readline.PcItem("put"),
	readline.PcItem("del"),
	readline.PcItem("get"),
	readline.PcItem("commit"),
	readline.PcItem("discard"),

	readline.PcItem("show"),
	readline.PcItem("dump"),
	readline.PcItem("changes"),
	readline.PcItem("merge"),
	readline.PcItem("persist"),

	readline.PcItem("exit"),
	readline.PcItem("quit"),
)

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

func NewREPL() *REPL {
	return &REPL{replicas: make(map[string]*Replica), out: os.Stdout}
}

func (repl *REPL) Open() (err error) {
	repl.rl, err = readline.NewEx(&readline.Config{
		Prompt:          "◌ ",
		HistoryFile:     ".dokki_cmd_log.txt",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		return
	}
	repl.rl.CaptureExitSignal()
	return
}

func (repl *REPL) Close() error {
	for _, r := range repl.replicas {
		_ = r.Close()
	}
	if repl.rl != nil {
		_ = repl.rl.Close()
		repl.rl = nil
	}
	return nil
}

func (repl *REPL) setPrompt() {
	if repl.rl != nil {
		repl.rl.SetPrompt(repl.current + "◌ ")
	}
}

// REPL reads and runs one command.
func (repl *REPL) REPL() (err error) {
	var line string
	line, err = repl.rl.Readline()
	if err == readline.ErrInterrupt && len(line) != 0 {
		return nil
	}
	if err != nil {
		return err
	}
	return repl.Run(line)
}

// Run executes a command line.
func (repl *REPL) Run(line string) (err error) {
	line = strings.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}
	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	args := strings.Fields(rest)
	switch cmd {
	// ----- replicas -----
	case "new":
		err = repl.CommandNew(args)
	case "use":
		err = repl.CommandUse(args)
	case "clone":
		err = repl.CommandClone(args)
	case "list", "ls":
		err = repl.CommandList(args)
	// ----- editing -----
	case "put", "set":
		err = repl.CommandPut(rest)
	case "del", "delete":
		err = repl.CommandDel(args)
	case "get":
		err = repl.CommandGet(args)
	case "commit":
		err = repl.CommandCommit(rest)
	case "discard":
		err = repl.CommandDiscard(args)
	// ----- sync -----
	case "changes":
		err = repl.CommandChanges(args)
	case "merge":
		err = repl.CommandMerge(args)
	case "persist":
		err = repl.CommandPersist(args)
	// ----- debug -----
	case "show", "cat":
		err = repl.CommandShow(args)
	case "dump":
		err = repl.CommandDump(args)
	case "help":
		_, _ = fmt.Fprint(repl.out, help)
	case "exit", "quit":
		err = io.EOF
	default:
		_, _ = fmt.Fprintf(os.Stderr, "command unknown: %s\n", cmd)
	}
	repl.setPrompt()
	return
}

const help = `new NAME            new replica with a fresh actor id
use NAME            switch to a replica
clone SRC DST       fork a replica
list                list replicas
put KEY VALUE       stage a write (null, true, 1, 1.5, "str" or bare words)
del KEY             stage a delete
get KEY             read through the open transaction
commit [MESSAGE]    commit staged edits as one change
discard             drop staged edits
changes [PEER]      dump changes PEER has not seen (all if no PEER)
merge PEER          merge everything from PEER
persist DIR         keep the current replica's changes in a pebble dir
show                the document as JSON
dump [hex]          replica state, or hex of the last change
exit
`

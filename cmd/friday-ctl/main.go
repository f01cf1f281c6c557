package main

import (
	"fmt"
	"os"
	"strings"

	cli "github.com/spf13/pflag"

	"friday/internal/ipc"
)

func main() {
	socket := cli.StringP("socket", "s", ipc.DefaultSocketPath, "Control socket path")
	cli.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: friday-ctl [--socket path] say <text...> | stop")
		cli.PrintDefaults()
	}
	cli.Parse()

	args := cli.Args()
	if len(args) == 0 {
		cli.Usage()
		os.Exit(2)
	}

	msg := ipc.ControlMessage{Cmd: args[0]}
	switch msg.Cmd {
	case ipc.CmdSay:
		msg.Text = strings.Join(args[1:], " ")
		if msg.Text == "" {
			cli.Usage()
			os.Exit(2)
		}
	case ipc.CmdStop:
	default:
		cli.Usage()
		os.Exit(2)
	}

	if err := ipc.SendCommand(*socket, msg); err != nil {
		fmt.Println("friday not running:", err)
		os.Exit(1)
	}
}

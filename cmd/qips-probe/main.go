// qips-probe is a small diagnostic client for dialing a single guest slot
// socket directly and issuing a raw protocol command, bypassing the daemon
// entirely. Modeled on the teacher's thin, single-purpose CLI binaries.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/xfeldman/qips/internal/client"
	"github.com/xfeldman/qips/internal/config"
	"github.com/xfeldman/qips/internal/version"
)

func main() {
	cfg := config.DefaultConfig()

	slotID := flag.Int("slot", 1, "slot id of the guest socket to dial")
	socketDir := flag.String("socket-dir", cfg.SocketDir, "directory containing slot-<N> sockets")
	execute := flag.String("execute", "query-xen-status", "command name to send")
	argsJSON := flag.String("args", "", "JSON-encoded arguments object (empty for none)")
	timeout := flag.Duration("timeout", 5*time.Second, "how long to wait for a response")
	handshake := flag.Bool("handshake", false, "send the four-request attach handshake instead of a single command")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()
	if *showVersion {
		fmt.Println("qips-probe " + version.Version())
		return
	}

	cfg.SocketDir = *socketDir

	var idCounter int64
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	ep, err := client.Dial(ctx, *slotID, cfg.SlotSocketPath(*slotID), &idCounter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial slot %d: %v\n", *slotID, err)
		os.Exit(1)
	}
	defer ep.Close(nil)

	if *handshake {
		if err := ep.Handshake(); err != nil {
			fmt.Fprintf(os.Stderr, "handshake: %v\n", err)
			os.Exit(1)
		}
		time.Sleep(200 * time.Millisecond)
		fmt.Printf("domain=%d pid=%d leds=%v mouse_abs=%v\n",
			ep.DomainID(), ep.ProcessID(), ep.LedState(), ep.MouseAbsolute())
		return
	}

	var args interface{}
	if *argsJSON != "" {
		if err := json.Unmarshal([]byte(*argsJSON), &args); err != nil {
			fmt.Fprintf(os.Stderr, "parse -args: %v\n", err)
			os.Exit(1)
		}
	}

	ret, err := ep.Call(ctx, *execute, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "call %s: %v\n", *execute, err)
		os.Exit(1)
	}
	fmt.Println(string(ret))
}

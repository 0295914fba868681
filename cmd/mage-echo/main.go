// Command mage-echo is a thin sample driver exercising one invitation
// handshake plus a short burst of user messages: with --invite it sends
// the invitation and three messages, otherwise it accepts the
// invitation and prints what it receives. It contains no
// core logic of its own — every call here is a direct composition of
// the mage facade: core exposes no CLI of its own, so sample drivers
// accept --mage-socket=<fd>.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jabolina/go-mage/mage"
	"github.com/jabolina/go-mage/scheduling"
	"github.com/jabolina/go-mage/task"
	"github.com/jabolina/go-mage/wire"
)

func main() {
	var (
		sockFD = flag.Int("mage-socket", -1, "fd of a connected socket, already present in this process's fd table")
		invite = flag.Bool("invite", false, "send the invitation instead of accepting one")
	)
	flag.Parse()

	if *sockFD < 0 {
		fmt.Fprintln(os.Stderr, "mage-echo: --mage-socket is required")
		os.Exit(1)
	}

	if err := mage.Init(mage.DefaultConfig()); err != nil {
		fmt.Fprintln(os.Stderr, "mage-echo: init:", err)
		os.Exit(1)
	}
	defer mage.ShutdownCleanly()

	worker, err := scheduling.NewThread(scheduling.FlavorWorker, 0)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mage-echo: worker thread:", err)
		os.Exit(1)
	}
	if err := worker.Start(); err != nil {
		fmt.Fprintln(os.Stderr, "mage-echo: worker start:", err)
		os.Exit(1)
	}
	defer func() {
		worker.Stop()
		worker.Join()
	}()

	runner := worker.TaskRunner()
	delegate := &echoDelegate{}

	if *invite {
		runInviter(*sockFD, runner, delegate)
	} else {
		runAcceptor(*sockFD, runner, delegate)
	}
}

type echoDelegate struct{}

func (d *echoDelegate) OnReceivedMessage(msg *wire.Message, handles []mage.Handle) {
	fmt.Printf("mage-echo: received %q (%d handle(s) transferred)\n", string(msg.Payload), len(handles))
}

func runInviter(fd int, runner scheduling.TaskRunner, delegate *echoDelegate) {
	onAccepted := task.New(func() { fmt.Println("mage-echo: invitation accepted by peer") })

	local, err := mage.SendInvitation(fd, onAccepted, runner)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mage-echo: send invitation:", err)
		os.Exit(1)
	}

	if err := mage.BindReceiver(local, delegate, runner); err != nil {
		fmt.Fprintln(os.Stderr, "mage-echo: bind receiver:", err)
		os.Exit(1)
	}

	for i := 0; i < 3; i++ {
		msg := &wire.Message{Payload: []byte(fmt.Sprintf("hello #%d", i))}
		if err := mage.SendMessage(local, msg); err != nil {
			fmt.Fprintln(os.Stderr, "mage-echo: send message:", err)
			os.Exit(1)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func runAcceptor(fd int, runner scheduling.TaskRunner, delegate *echoDelegate) {
	received := make(chan mage.Handle, 1)
	err := mage.AcceptInvitation(fd, func(h mage.Handle) {
		received <- h
	}, runner)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mage-echo: accept invitation:", err)
		os.Exit(1)
	}

	h := <-received
	if err := mage.BindReceiver(h, delegate, runner); err != nil {
		fmt.Fprintln(os.Stderr, "mage-echo: bind receiver:", err)
		os.Exit(1)
	}

	time.Sleep(500 * time.Millisecond)
}

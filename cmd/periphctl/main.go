// cmd/periphctl/main.go

// Periphctl drives a peripheral module from a desktop through a
// USB-serial adapter, using the same transport and controller code as the
// firmware. The adapter's RTS or DTR output serves as the module enable line.
//
//	periphctl -port /dev/ttyUSB0 -baud 115200 -enable rts
//	periphctl -port /dev/ttyUSB0 -e init 57600 on, write hello, read
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell"
	"github.com/golang/glog"

	"github.com/jangala-dev/tinygo-modlink/peripheral"
	"github.com/jangala-dev/tinygo-modlink/uartx"
	"github.com/jangala-dev/tinygo-modlink/uartx/hostport"
)

var (
	portName  = flag.String("port", "", "Serial device the module is attached to.")
	baud      = flag.Uint("baud", 115200, "Default baud rate for init.")
	encoding  = flag.String("encoding", "8N1", "Character format: 8N1, 8E1, 8O1, 8N2, 8E2, 7E1.")
	enableSig = flag.String("enable", "rts", "Modem line used as the module enable: rts, dtr or none.")
	activeLow = flag.Bool("active-low", true, "Module runs while the enable line is low.")
	probe     = flag.Bool("probe", false, "Probe mode: disable the module after its first byte.")
	evalOnly  = flag.Bool("e", false, "Run the comma-separated commands given as arguments, then exit.")
)

const ctlKey = "$ctl"

func parseEncoding(s string) (uartx.Encoding, error) {
	for e := uartx.Encoding8N1; e.String() != "invalid"; e++ {
		if strings.EqualFold(e.String(), s) {
			return e, nil
		}
	}
	return 0, fmt.Errorf("unknown encoding %q", s)
}

func controller(c *ishell.Context) *peripheral.Controller {
	return c.Get(ctlKey).(*peripheral.Controller)
}

func parseBaud(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("bad baud %q: %w", s, err)
	}
	return uint32(v), nil
}

var commands = []*ishell.Cmd{
	{
		Name: "init",
		Help: "[BAUD] [on|off]  bring the transport up (or retime it) and drive the enable line",
		Func: func(c *ishell.Context) {
			rate, enable := uint32(*baud), true
			if len(c.Args) > 0 {
				v, err := parseBaud(c.Args[0])
				if err != nil {
					c.Err(err)
					return
				}
				rate = v
			}
			if len(c.Args) > 1 {
				enable = c.Args[1] != "off"
			}
			if err := controller(c).Initialize(rate, enable); err != nil {
				c.Err(err)
				return
			}
			glog.V(1).Infof("init baud=%d enable=%v", rate, enable)
		},
	},
	{
		Name: "disable",
		Help: "hold the module off and release the transport",
		Func: func(c *ishell.Context) {
			controller(c).Disable()
		},
	},
	{
		Name: "write",
		Help: "TEXT...  queue text for transmission",
		Func: func(c *ishell.Context) {
			p := []byte(strings.Join(c.Args, " "))
			n := controller(c).Write(p)
			c.Printf("queued %d/%d\n", n, len(p))
		},
	},
	{
		Name:    "writehex",
		Aliases: []string{"wx"},
		Help:    "HEX  queue raw bytes, e.g. 7e01027e",
		Func: func(c *ishell.Context) {
			p, err := hex.DecodeString(strings.Join(c.Args, ""))
			if err != nil {
				c.Err(err)
				return
			}
			n := controller(c).Write(p)
			c.Printf("queued %d/%d\n", n, len(p))
		},
	},
	{
		Name: "read",
		Help: "print every received byte",
		Func: func(c *ishell.Context) {
			ctl := controller(c)
			ctl.Service()
			var buf [256]byte
			var out []byte
			for {
				n := ctl.TryRead(buf[:])
				if n == 0 {
					break
				}
				out = append(out, buf[:n]...)
			}
			if len(out) == 0 {
				c.Println("(no data)")
				return
			}
			c.Println(hex.Dump(out))
		},
	},
	{
		Name: "ack",
		Help: "consume a completed write",
		Func: func(c *ishell.Context) {
			c.Println(controller(c).AckWrite())
		},
	},
	{
		Name: "status",
		Help: "show transport and probe state",
		Func: func(c *ishell.Context) {
			ctl := controller(c)
			if ctl.Service() {
				c.Println("probe: module answered, disabled")
			}
			st := ctl.Stats()
			c.Printf("active=%v writing=%v state=%s present=%v buffered=%d\n",
				ctl.Active(), ctl.IsWriting(), ctl.WriteState(), ctl.Present(), ctl.Buffered())
			c.Printf("irq=%d rx=%d rxdrop=%d tx=%d txdrop=%d\n",
				st.IRQCount, st.RxBytes, st.RxDrops, st.TxBytes, st.TxDrops)
		},
	},
}

func main() {
	flag.Parse()
	defer glog.Flush()

	if *portName == "" {
		fmt.Fprintln(os.Stderr, "periphctl: -port is required")
		os.Exit(2)
	}
	enc, err := parseEncoding(*encoding)
	if err != nil {
		fmt.Fprintln(os.Stderr, "periphctl:", err)
		os.Exit(2)
	}

	port := hostport.New(*portName)
	var power *peripheral.Power
	switch *enableSig {
	case "rts":
		power = peripheral.NewPower(port.ModemLine(hostport.RTS), *activeLow)
	case "dtr":
		power = peripheral.NewPower(port.ModemLine(hostport.DTR), *activeLow)
	case "none":
	default:
		fmt.Fprintf(os.Stderr, "periphctl: unknown enable line %q\n", *enableSig)
		os.Exit(2)
	}

	ctl := peripheral.New(uartx.NewIRQDriver(port), power, uartx.Config{
		Encoding: enc,
		Probe:    *probe,
	})
	defer ctl.Disable()

	shell := ishell.New()
	shell.Set(ctlKey, ctl)
	shell.SetPrompt(fmt.Sprintf("[%s] > ", port.Name()))
	for _, cmd := range commands {
		shell.AddCmd(cmd)
	}

	if *evalOnly {
		for _, line := range strings.Split(strings.Join(flag.Args(), " "), ",") {
			args := strings.Fields(line)
			if len(args) == 0 {
				continue
			}
			if err := shell.Process(args...); err != nil {
				glog.Errorf("%s: %v", args[0], err)
			}
		}
		return
	}
	shell.Run()
}

//go:build rp2040 || rp2350

// cmd/periph_selftest exercises the controller against a loopback jumper
// between UART1 TX and RX. No module is needed; the enable line is left
// unconnected.
package main

import (
	"crypto/sha1"
	"time"

	"machine"

	"github.com/jangala-dev/tinygo-modlink/peripheral"
	"github.com/jangala-dev/tinygo-modlink/uartx"
)

var (
	baud      = uint32(921600)
	enablePin = machine.GP15
)

func ledBlink(times int, on time.Duration) {
	for i := 0; i < times; i++ {
		machine.LED.High()
		time.Sleep(on)
		machine.LED.Low()
		time.Sleep(on)
	}
}

func drain(ctl *peripheral.Controller) {
	var tmp [64]byte
	for ctl.TryRead(tmp[:]) > 0 {
	}
}

// sendAll queues p, polling until every byte is accepted or timeout passes.
func sendAll(ctl *peripheral.Controller, p []byte, timeout time.Duration) int {
	deadline := time.Now().Add(timeout)
	sent := 0
	for sent < len(p) && time.Now().Before(deadline) {
		if n := ctl.Write(p[sent:]); n > 0 {
			sent += n
			continue
		}
		time.Sleep(50 * time.Microsecond)
	}
	return sent
}

// recvExact collects n bytes or whatever arrived before timeout.
func recvExact(ctl *peripheral.Controller, n int, timeout time.Duration) []byte {
	deadline := time.Now().Add(timeout)
	out := make([]byte, 0, n)
	var buf [128]byte
	for len(out) < n && time.Now().Before(deadline) {
		if k := ctl.TryRead(buf[:min(n-len(out), len(buf))]); k > 0 {
			out = append(out, buf[:k]...)
			continue
		}
		time.Sleep(20 * time.Microsecond)
	}
	return out
}

func waitIdle(ctl *peripheral.Controller, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for ctl.IsWriting() {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(20 * time.Microsecond)
	}
	return true
}

func main() {
	// Give the monitor time to attach.
	time.Sleep(3 * time.Second)

	println("peripheral self-test starting")
	machine.LED.Configure(machine.PinConfig{Mode: machine.PinOutput})

	ctl := peripheral.New(
		uartx.NewIRQDriver(uartx.UART1),
		peripheral.NewPower(peripheral.PinLine(enablePin), true),
		uartx.Config{RxBufferSize: 256, TxBufferSize: 256},
	)
	if err := ctl.Initialize(baud, true); err != nil {
		println("Initialize failed:", err.Error())
		for {
			ledBlink(1, 500*time.Millisecond)
		}
	}

	pass, fail := 0, 0
	defer func() {
		println("")
		println("Summary")
		println("  passed =", pass)
		println("  failed =", fail)
		if fail == 0 {
			ledBlink(3, 120*time.Millisecond)
		} else {
			for {
				ledBlink(1, 600*time.Millisecond)
				time.Sleep(800 * time.Millisecond)
			}
		}
	}()

	run := func(name string, f func() string) {
		println("")
		println("[Test]", name)
		drain(ctl)
		if msg := f(); msg == "" {
			println("  PASS")
			pass++
		} else {
			println("  FAIL:", msg)
			fail++
		}
	}

	run("short loopback", func() string {
		msg := []byte("hello, peripheral\r\n")
		if n := sendAll(ctl, msg, 100*time.Millisecond); n != len(msg) {
			return "could not queue"
		}
		got := recvExact(ctl, len(msg), 200*time.Millisecond)
		if string(got) != string(msg) {
			return "echo mismatch"
		}
		return ""
	})

	run("write state Writing then Done", func() string {
		ctl.AckWrite()
		if ctl.Write([]byte{0x55}) != 1 {
			return "not queued"
		}
		if !ctl.IsWriting() {
			return "IsWriting false right after Write"
		}
		if !waitIdle(ctl, 50*time.Millisecond) {
			return "write never completed"
		}
		if ctl.WriteState() != uartx.WriteDone {
			return "state is " + ctl.WriteState().String()
		}
		if !ctl.AckWrite() || ctl.WriteState() != uartx.WriteIdle {
			return "AckWrite did not return to idle"
		}
		return ""
	})

	run("integrity 4 KiB", func() string {
		src := make([]byte, 4096)
		var x uint32 = 0x12345678
		for i := range src {
			x = 1664525*x + 1013904223
			src[i] = byte(x >> 24)
		}
		want := sha1.Sum(src)
		got := make([]byte, 0, len(src))
		for off := 0; off < len(src); off += 128 {
			chunk := src[off:min(off+128, len(src))]
			if sendAll(ctl, chunk, 100*time.Millisecond) != len(chunk) {
				return "could not queue"
			}
			got = append(got, recvExact(ctl, len(chunk), 200*time.Millisecond)...)
		}
		if len(got) != len(src) {
			println("  received", len(got))
			return "short read"
		}
		if sha1.Sum(got) != want {
			return "hash mismatch"
		}
		return ""
	})

	run("receive overflow keeps oldest bytes", func() string {
		before := ctl.Stats().RxDrops
		src := make([]byte, 300)
		for i := range src {
			src[i] = byte(i)
		}
		// Nothing is read until the burst is over, so the last 44 bytes drop.
		if sendAll(ctl, src, 500*time.Millisecond) != len(src) {
			return "could not queue"
		}
		waitIdle(ctl, 100*time.Millisecond)
		time.Sleep(time.Millisecond)
		got := recvExact(ctl, len(src), 50*time.Millisecond)
		if len(got) != 256 {
			println("  received", len(got))
			return "ring did not fill exactly"
		}
		for i, b := range got {
			if b != byte(i) {
				return "order broken"
			}
		}
		if ctl.Stats().RxDrops-before != 44 {
			return "drop count wrong"
		}
		return ""
	})

	run("retime keeps the link", func() string {
		if err := ctl.Initialize(115200, true); err != nil {
			return err.Error()
		}
		defer ctl.Initialize(baud, true)
		msg := []byte("slow")
		sendAll(ctl, msg, 100*time.Millisecond)
		if got := recvExact(ctl, len(msg), 100*time.Millisecond); string(got) != string(msg) {
			return "echo mismatch after retime"
		}
		return ""
	})

	run("disabled controller is neutral", func() string {
		ctl.Disable()
		defer ctl.Initialize(baud, true)
		if ctl.Write([]byte{1}) != 0 {
			return "write accepted"
		}
		if _, ok := ctl.Read(); ok {
			return "read returned data"
		}
		if ctl.IsWriting() {
			return "IsWriting true"
		}
		return ""
	})
}

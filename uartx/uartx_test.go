package uartx

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// newTestDriver returns an IRQ driver on a fresh simulated port with a live handle.
func newTestDriver(t *testing.T, cfg Config) (*IRQDriver, *SimPort, *Handle) {
	t.Helper()
	p := NewSimPort()
	d := NewIRQDriver(p)
	h, err := d.Init(cfg)
	require.NoError(t, err)
	return d, p, h
}

func drainRx(d Driver, h *Handle) []byte {
	var out []byte
	for {
		b, ok := d.GetByte(h)
		if !ok {
			return out
		}
		out = append(out, b)
	}
}

func TestIRQDriver_WriteDrainsInOrder(t *testing.T) {
	d, p, h := newTestDriver(t, Config{BaudRate: 100000})
	require.Equal(t, WriteIdle, h.State())
	require.True(t, d.TxCompleted(h))

	frame := []byte{0x7E, 0x01, 0x02, 0x7E}
	require.Equal(t, 4, d.SendBuffer(h, frame))
	require.Equal(t, WriteWriting, h.State())
	require.False(t, d.TxCompleted(h))

	// Four bytes out, then one pass that finds the ring empty.
	require.Equal(t, 5, p.Run())
	require.Equal(t, frame, p.Transmitted())
	require.Equal(t, WriteDone, h.State())
	require.True(t, d.TxCompleted(h))
	require.False(t, p.TxEnabled(), "transmit-ready source left armed")

	d.Deinit(h)
	_, ok := d.GetByte(h)
	require.False(t, ok)
}

// On an edge-triggered source arming transmit-ready raises nothing, so the
// first byte has to be written by SendBuffer itself.
func TestIRQDriver_EdgeTriggeredWriteDrainsInOrder(t *testing.T) {
	p := NewEdgeSimPort()
	d := NewIRQDriver(p)
	h, err := d.Init(Config{BaudRate: 100000})
	require.NoError(t, err)
	require.True(t, d.TxCompleted(h))

	frame := []byte{0x7E, 0x01, 0x02, 0x7E}
	require.Equal(t, 4, d.SendBuffer(h, frame))
	require.Equal(t, frame[:1], p.Transmitted(), "first byte not started")
	require.Equal(t, WriteWriting, h.State())

	// Three bytes from the ring, then one pass that finds it empty.
	require.Equal(t, 4, p.Run())
	require.Equal(t, frame, p.Transmitted())
	require.Equal(t, WriteDone, h.State())
	require.True(t, d.TxCompleted(h))
	require.False(t, p.TxEnabled())
	require.Equal(t, uint32(4), h.Stats().TxBytes)
}

func TestIRQDriver_EdgeTriggeredWriteAfterDrain(t *testing.T) {
	p := NewEdgeSimPort()
	d := NewIRQDriver(p)
	h, err := d.Init(Config{BaudRate: 100000})
	require.NoError(t, err)

	d.SendBuffer(h, []byte("ab"))
	p.Run()
	require.True(t, d.TxCompleted(h))
	require.True(t, p.TxNeedsStart(), "drained port should need a start")

	require.Equal(t, 2, d.SendBuffer(h, []byte("cd")))
	require.Positive(t, p.Run())
	require.Equal(t, []byte("abcd"), p.Transmitted())
	require.True(t, d.TxCompleted(h))
	require.Equal(t, WriteDone, h.State())
}

func TestIRQDriver_EdgeTriggeredNoStartWhilePending(t *testing.T) {
	p := NewEdgeSimPort()
	d := NewIRQDriver(p)
	h, err := d.Init(Config{BaudRate: 100000})
	require.NoError(t, err)

	d.SendBuffer(h, []byte("abc"))
	// The empty edge from 'a' is still latched: 'd' must queue behind b and c.
	d.SendBuffer(h, []byte("d"))
	require.Equal(t, []byte("a"), p.Transmitted())

	p.Run()
	require.Equal(t, []byte("abcd"), p.Transmitted())
}

func TestIRQDriver_RxOverflowDropsNewest(t *testing.T) {
	d, p, h := newTestDriver(t, Config{BaudRate: 115200, RxBufferSize: 1})

	p.Inject(0xA5, 0x5A)
	p.Run()

	b, ok := d.GetByte(h)
	require.True(t, ok)
	require.Equal(t, byte(0xA5), b)
	_, ok = d.GetByte(h)
	require.False(t, ok)

	st := h.Stats()
	require.Equal(t, uint32(1), st.RxBytes)
	require.Equal(t, uint32(1), st.RxDrops)
}

func TestIRQDriver_ClearsEachConditionOnce(t *testing.T) {
	d, p, h := newTestDriver(t, Config{BaudRate: 115200})

	p.Inject('a', 'b', 'c')
	require.Equal(t, 3, p.Run())
	require.Equal(t, 3, p.ClearCount(StatusRxReady))

	d.SendBuffer(h, []byte("xy"))
	require.Equal(t, 3, p.Run())
	require.Equal(t, 3, p.ClearCount(StatusTxReady))
	require.Equal(t, []byte("abc"), drainRx(d, h))
}

func TestIRQDriver_NoDoubleDelivery(t *testing.T) {
	d, p, h := newTestDriver(t, Config{BaudRate: 115200, RxBufferSize: 64, TxBufferSize: 64})

	payload := make([]byte, 50)
	for i := range payload {
		payload[i] = byte(i * 7)
	}
	d.SendBuffer(h, payload)
	p.Inject(payload...)
	for p.Run() > 0 {
	}

	require.Equal(t, payload, p.Transmitted())
	require.Equal(t, payload, drainRx(d, h))
	require.Equal(t, uint32(len(payload)), h.Stats().TxBytes)
}

func TestIRQDriver_SecondInitWhileLive(t *testing.T) {
	d, _, h := newTestDriver(t, Config{BaudRate: 9600})

	_, err := d.Init(Config{BaudRate: 9600})
	require.ErrorIs(t, err, ErrHandleInUse)

	d.Deinit(h)
	h2, err := d.Init(Config{BaudRate: 19200})
	require.NoError(t, err)
	require.True(t, h2.Live())
	require.False(t, h.Live())
}

func TestIRQDriver_OneHandlePerHardware(t *testing.T) {
	p := NewSimPort()
	first := NewIRQDriver(p)
	h1, err := first.Init(Config{BaudRate: 9600})
	require.NoError(t, err)

	second := NewIRQDriver(p)
	_, err = second.Init(Config{BaudRate: 19200})
	require.ErrorIs(t, err, ErrHandleInUse)
	_, err = NewDMADriver(p).Init(Config{BaudRate: 19200})
	require.ErrorIs(t, err, ErrHandleInUse)
	require.Equal(t, uint32(9600), p.Baud())

	p.Inject(0x5A)
	p.Run()
	b, ok := first.GetByte(h1)
	require.True(t, ok, "first handle lost its interrupt")
	require.Equal(t, byte(0x5A), b)

	first.Deinit(h1)
	h2, err := second.Init(Config{BaudRate: 19200})
	require.NoError(t, err)
	require.True(t, h2.Live())
	second.Deinit(h2)
}

func TestIRQDriver_InitRejectsBadConfig(t *testing.T) {
	d := NewIRQDriver(NewSimPort())

	_, err := d.Init(Config{})
	require.ErrorIs(t, err, ErrInvalidBaud)

	_, err = d.Init(Config{BaudRate: 9600, Encoding: Encoding(42)})
	require.ErrorIs(t, err, ErrInvalidEncoding)

	_, err = d.Init(Config{BaudRate: 9600, Direction: Direction(7)})
	require.ErrorIs(t, err, ErrInvalidDirection)

	_, err = d.Init(Config{BaudRate: 9600, Polarity: Polarity(3)})
	require.ErrorIs(t, err, ErrInvalidPolarity)

	// Rejected configs leave the hardware free.
	h, err := d.Init(Config{BaudRate: 9600})
	require.NoError(t, err)
	require.True(t, h.Live())
}

func TestIRQDriver_InitDefaults(t *testing.T) {
	_, p, h := newTestDriver(t, Config{BaudRate: 57600})
	cfg := h.Config()
	require.Equal(t, DefaultBufferSize, cfg.RxBufferSize)
	require.Equal(t, DefaultBufferSize, cfg.TxBufferSize)
	require.Equal(t, uint8(DefaultIRQPriority), p.Line().Priority())
	require.Equal(t, Encoding8N1, p.Config().Encoding)
	require.True(t, p.RxEnabled())
	require.False(t, p.TxEnabled())
}

func TestIRQDriver_InvalidHandleIsNoop(t *testing.T) {
	d, p, h := newTestDriver(t, Config{BaudRate: 115200})
	other := NewIRQDriver(NewSimPort())

	for name, hh := range map[string]*Handle{"nil": nil, "foreign": h} {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, 0, other.SendBuffer(hh, []byte{1}))
			_, ok := other.GetByte(hh)
			require.False(t, ok)
			require.True(t, other.TxCompleted(hh))
			other.SetBaudRate(hh, 1200)
			other.Deinit(hh)
		})
	}
	require.True(t, h.Live(), "foreign driver released our handle")
	require.Equal(t, uint32(115200), p.Baud())

	d.Deinit(h)
	d.Deinit(h)
	require.Equal(t, 0, d.SendBuffer(h, []byte{1}))
	require.True(t, d.TxCompleted(h))
	require.False(t, p.Configured())
	require.False(t, p.Line().Attached())
}

func TestIRQDriver_SetBaudRateKeepsQueuedBytes(t *testing.T) {
	d, p, h := newTestDriver(t, Config{BaudRate: 115200})

	data := []byte{1, 2, 3, 4, 5}
	d.SendBuffer(h, data)
	require.True(t, p.Step())
	require.True(t, p.Step())

	d.SetBaudRate(h, 57600)
	require.Equal(t, uint32(57600), p.Baud())
	require.Equal(t, uint32(57600), h.Config().BaudRate)
	require.Equal(t, WriteWriting, h.State())
	require.False(t, p.Line().Masked())

	p.Run()
	require.Equal(t, data, p.Transmitted())

	d.SetBaudRate(h, 0)
	require.Equal(t, uint32(57600), p.Baud(), "zero baud must be ignored")
}

func TestIRQDriver_Direction(t *testing.T) {
	t.Run("tx only", func(t *testing.T) {
		d, p, h := newTestDriver(t, Config{BaudRate: 9600, Direction: DirTxOnly})
		require.False(t, p.RxEnabled())
		p.Inject(1, 2)
		p.Run()
		require.Empty(t, drainRx(d, h))
		require.Equal(t, 1, d.SendBuffer(h, []byte{9}))
	})
	t.Run("rx only", func(t *testing.T) {
		d, p, h := newTestDriver(t, Config{BaudRate: 9600, Direction: DirRxOnly})
		require.Equal(t, 0, d.SendBuffer(h, []byte{9}))
		require.Equal(t, WriteIdle, h.State())
		p.Inject(7)
		p.Run()
		require.Equal(t, []byte{7}, drainRx(d, h))
	})
}

func TestIRQDriver_TxOverflowCounted(t *testing.T) {
	d, p, h := newTestDriver(t, Config{BaudRate: 9600, TxBufferSize: 4})

	require.Equal(t, 4, d.SendBuffer(h, []byte{1, 2, 3, 4, 5, 6}))
	require.Equal(t, uint32(2), h.Stats().TxDrops)
	require.Equal(t, 0, h.TxFree())

	p.Run()
	require.Equal(t, []byte{1, 2, 3, 4}, p.Transmitted())
	require.Equal(t, 4, h.TxFree())
}

func TestIRQDriver_ShifterStillBusy(t *testing.T) {
	d, p, h := newTestDriver(t, Config{BaudRate: 9600})

	p.SetShifterBusy(true)
	d.SendBuffer(h, []byte{0x42})
	p.Run()
	require.Equal(t, WriteDone, h.State())
	require.False(t, d.TxCompleted(h))

	p.SetShifterBusy(false)
	require.True(t, d.TxCompleted(h))
}

func TestIRQDriver_WriteStateTransitions(t *testing.T) {
	d, p, h := newTestDriver(t, Config{BaudRate: 9600})

	d.SendBuffer(h, []byte{1})
	p.Run()
	require.Equal(t, WriteDone, h.State())

	// A new write goes straight back to writing.
	d.SendBuffer(h, []byte{2})
	require.Equal(t, WriteWriting, h.State())
	require.False(t, h.AckDone())

	p.Run()
	require.True(t, h.AckDone())
	require.Equal(t, WriteIdle, h.State())
	require.False(t, h.AckDone())
}

func TestIRQDriver_ProbeLatchesPresence(t *testing.T) {
	d, p, h := newTestDriver(t, Config{BaudRate: 115200, Probe: true})
	require.False(t, h.Present())

	p.Run()
	require.False(t, h.Present(), "no byte yet")

	p.Inject(0x55)
	p.Run()
	require.True(t, h.Present())

	drainRx(d, h)
	require.True(t, h.Present(), "presence is latched")
}

func TestIRQDriver_ProbeDisabledNeverLatches(t *testing.T) {
	_, p, h := newTestDriver(t, Config{BaudRate: 115200})
	p.Inject(0x55)
	p.Run()
	require.False(t, h.Present())
}

func TestIRQDriver_InterruptWhileMaskedIsDeferred(t *testing.T) {
	_, p, h := newTestDriver(t, Config{BaudRate: 115200})

	p.Inject(1)
	p.Mask()
	require.False(t, p.Step())
	require.Equal(t, 0, h.Buffered())
	p.Unmask()
	require.Equal(t, 1, h.Buffered())
}

// The interrupt side runs in its own goroutine while the application writes
// and reads, the way the main loop and the ISR interleave on target.
func TestIRQDriver_ConcurrentInterruptContext(t *testing.T) {
	const total = 3000
	d, p, h := newTestDriver(t, Config{BaudRate: 1000000, RxBufferSize: 32, TxBufferSize: 32})

	var stop atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for !stop.Load() {
			if p.Run() == 0 {
				runtime.Gosched()
			}
		}
	}()

	src := make([]byte, total)
	for i := range src {
		src[i] = byte(i*31 + 0x55)
	}

	var got []byte
	deadline := time.Now().Add(10 * time.Second)
	sent, injected := 0, 0
	for len(got) < total {
		if time.Now().After(deadline) {
			t.Fatalf("timeout: sent=%d injected=%d got=%d", sent, injected, len(got))
		}
		if sent < total {
			sent += d.SendBuffer(h, src[sent:min(sent+16, total)])
		}
		// Keep fewer bytes in flight than the RX ring holds so nothing is dropped.
		if injected < total && injected-len(got) < 16 {
			p.Inject(src[injected])
			injected++
		}
		if b, ok := d.GetByte(h); ok {
			got = append(got, b)
		}
	}
	for !d.TxCompleted(h) {
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for TX completion")
		}
		runtime.Gosched()
	}
	stop.Store(true)
	wg.Wait()

	require.Equal(t, src, got)
	require.Equal(t, src, p.Transmitted())
	require.Equal(t, uint32(0), h.Stats().RxDrops)
}

func TestDMADriver_BurstCompletion(t *testing.T) {
	p := NewSimPort()
	d := NewDMADriver(p)
	h, err := d.Init(Config{BaudRate: 400000})
	require.NoError(t, err)

	buf := []byte{0x7E, 0x10, 0x20, 0x7E}
	require.Equal(t, len(buf), d.SendBuffer(h, buf))
	require.Equal(t, WriteWriting, h.State())
	require.False(t, d.TxCompleted(h))

	// Still busy: the whole second buffer is refused.
	require.Equal(t, 0, d.SendBuffer(h, []byte{1, 2}))
	require.Equal(t, uint32(2), h.Stats().TxDrops)

	require.True(t, p.CompleteTxDMA())
	p.Run()
	require.Equal(t, WriteDone, h.State())
	require.True(t, d.TxCompleted(h))
	require.Equal(t, buf, p.Transmitted())
	require.Equal(t, 1, p.ClearCount(StatusTxDMADone))

	require.Equal(t, 2, d.SendBuffer(h, []byte{1, 2}))
}

func TestDMADriver_RxThroughRing(t *testing.T) {
	p := NewSimPort()
	d := NewDMADriver(p)
	h, err := d.Init(Config{BaudRate: 400000, RxBufferSize: 8})
	require.NoError(t, err)

	p.Inject(1, 2, 3)
	require.Equal(t, 1, p.Run())
	require.Equal(t, []byte{1, 2, 3}, drainRx(d, h))

	// Wraps the circular DMA buffer.
	p.Inject(4, 5, 6, 7, 8, 9, 10)
	p.Run()
	require.Equal(t, []byte{4, 5, 6, 7, 8, 9, 10}, drainRx(d, h))
	require.Equal(t, 2, p.ClearCount(StatusRxDMADone))
}

func TestDMADriver_DeinitAbandonsBurst(t *testing.T) {
	p := NewSimPort()
	d := NewDMADriver(p)
	h, err := d.Init(Config{BaudRate: 400000})
	require.NoError(t, err)

	d.SendBuffer(h, []byte{1, 2, 3})
	d.Deinit(h)
	require.False(t, p.CompleteTxDMA())
	require.Empty(t, p.Transmitted())
	require.True(t, d.TxCompleted(h))
	require.Equal(t, 0, d.SendBuffer(h, []byte{1}))

	_, err = d.Init(Config{BaudRate: 400000})
	require.NoError(t, err)
}

func TestEncoding(t *testing.T) {
	require.Equal(t, "8N1", Encoding8N1.String())
	require.Equal(t, uint8(7), Encoding7E1.DataBits())
	require.Equal(t, ParityEven, Encoding8E2.Parity())
	require.Equal(t, uint8(2), Encoding8E2.StopBits())
	require.Equal(t, "invalid", Encoding(200).String())
}

// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package rfm95

// Hardware capabilities consumed by the drivers and their periph.io implementations.

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// ErrBusTimeout is returned by a Bus when a transaction does not complete in time.
var ErrBusTimeout = errors.New("rfm95: bus transaction timed out")

// ErrContract is the kind shared by all errors caused by invalid arguments from the
// caller, such as an out-of-range power level or an oversized frame. These are always
// detected before the radio is touched.
var ErrContract = errors.New("rfm95: contract violation")

// IsContractViolation reports whether err was caused by a caller error.
func IsContractViolation(err error) bool { return errors.Is(err, ErrContract) }

// Contractf returns an error of kind ErrContract with the given message.
func Contractf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrContract, format, args...)
}

// Bus exchanges bytes full-duplex with a device on an SPI bus. w and r have the same
// length. A transaction that has not completed after timeout returns ErrBusTimeout.
type Bus interface {
	Tx(w, r []byte, timeout time.Duration) error
}

// Clock is a monotonic time source. Now returns the time since an arbitrary epoch.
type Clock interface {
	Now() time.Duration
	Sleep(d time.Duration)
}

//===== SPI

// Connect configures an SPI port for the SX1276: mode 0, 8 bits per word, full duplex.
// With manualCS the port leaves chip select alone and the driver brackets each
// transaction with its own NSS pin.
func Connect(p spi.Port, f physic.Frequency, manualCS bool) (Bus, error) {
	mode := spi.Mode0
	if manualCS {
		mode |= spi.NoCS
	}
	c, err := p.Connect(f, mode, 8)
	if err != nil {
		return nil, errors.Wrap(err, "rfm95: cannot configure SPI port")
	}
	if d := c.Duplex(); d != conn.Full {
		return nil, errors.Errorf("rfm95: SPI port %s is %s, need full duplex", c, d)
	}
	return NewBus(c), nil
}

// NewBus wraps a periph SPI connection. Transactions are serialized, including one that
// timed out: the next transaction waits for it to finish, within its own timeout.
func NewBus(c spi.Conn) Bus { return &periphBus{conn: c} }

type periphBus struct {
	mu      sync.Mutex
	conn    spi.Conn
	pending chan struct{} // closed once an abandoned transaction returns
}

type txResult struct {
	r   []byte
	err error
}

// Tx runs the transaction in its own goroutine so that a wedged driver cannot block the
// caller past the timeout. An abandoned transaction keeps its private buffers.
func (b *periphBus) Tx(w, r []byte, timeout time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := time.NewTimer(timeout)
	defer t.Stop()
	if b.pending != nil {
		select {
		case <-b.pending:
			b.pending = nil
		case <-t.C:
			return ErrBusTimeout
		}
	}

	done := make(chan txResult, 1)
	finished := make(chan struct{})
	wb := append([]byte(nil), w...)
	go func() {
		defer close(finished)
		rb := make([]byte, len(r))
		err := b.conn.Tx(wb, rb)
		done <- txResult{rb, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return res.err
		}
		copy(r, res.r)
		return nil
	case <-t.C:
		b.pending = finished
		return ErrBusTimeout
	}
}

//===== Clock

// SystemClock returns a Clock backed by the Go runtime's monotonic clock. Its epoch is
// the moment it was created.
func SystemClock() Clock { return &systemClock{t0: time.Now()} }

type systemClock struct {
	t0 time.Time
}

func (c *systemClock) Now() time.Duration { return time.Since(c.t0) }

func (c *systemClock) Sleep(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}

package topside

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/calvinmclean/nora"
)

// Link is the line-oriented connection to the topside host. Lines are read by
// a background goroutine and handed to the control loop through Inbound.
type Link struct {
	rw     io.ReadWriteCloser
	logger *log.Logger

	writeMu sync.Mutex
	inbound chan []byte
	done    chan struct{}

	closeOnce sync.Once
	readErr   error
}

// NewLink starts reading from rw
func NewLink(rw io.ReadWriteCloser, logger *log.Logger) *Link {
	if logger == nil {
		logger = log.Default()
	}
	l := &Link{
		rw:      rw,
		logger:  logger,
		inbound: make(chan []byte, 32),
		done:    make(chan struct{}),
	}
	go l.read()
	return l
}

// Send writes one message followed by the line terminator
func (l *Link) Send(msg string) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	_, err := l.rw.Write(append([]byte(msg), nora.LineTerminator))
	if err != nil {
		return fmt.Errorf("error sending %q: %w", msg, err)
	}
	l.logger.Printf("[topside] sent %s", msg)
	return nil
}

// Inbound delivers complete lines from the host. It is closed when the
// connection ends.
func (l *Link) Inbound() <-chan []byte {
	return l.inbound
}

// Err is the error that ended the reader, if any
func (l *Link) Err() error {
	<-l.done
	return l.readErr
}

// Close closes the connection and waits for the reader to stop
func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		err = l.rw.Close()
	})
	<-l.done
	return err
}

func (l *Link) read() {
	defer close(l.done)
	defer close(l.inbound)

	buf := make([]byte, 256)
	var pending []byte
	for {
		n, err := l.rw.Read(buf)
		pending = append(pending, buf[:n]...)

		for {
			i := bytes.IndexByte(pending, nora.LineTerminator)
			if i < 0 {
				break
			}
			line := bytes.TrimRight(pending[:i], "\r")
			pending = pending[i+1:]
			if len(line) == 0 {
				continue
			}

			select {
			case l.inbound <- append([]byte(nil), line...):
			default:
				l.logger.Printf("[topside] inbound queue full, dropped %q", line)
			}
		}

		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				l.readErr = err
			}
			return
		}
	}
}

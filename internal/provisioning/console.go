package provisioning

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/muurk/relaynode/internal/logging"
)

// Console is a line-oriented operator console. Line never blocks: it
// returns the next complete input line, if one has arrived.
type Console interface {
	Print(text string)
	Println(text string)
	Line() (string, bool)
	Close() error
}

const consoleBuffer = 32

// LineConsole adapts a blocking line reader into a Console. The reader runs
// on its own goroutine and hands lines over a buffered channel.
type LineConsole struct {
	w      io.Writer
	closer io.Closer
	lines  chan string
	done   chan struct{}

	mu     sync.Mutex
	closed bool
	err    error
}

// NewLineConsole starts reading lines with read until it returns an error.
// Output goes to w. closer, if non-nil, is closed by Close.
func NewLineConsole(read func() (string, error), w io.Writer, closer io.Closer) *LineConsole {
	c := &LineConsole{
		w:      w,
		closer: closer,
		lines:  make(chan string, consoleBuffer),
		done:   make(chan struct{}),
	}
	go c.pump(read)
	return c
}

func (c *LineConsole) pump(read func() (string, error)) {
	defer close(c.lines)
	for {
		line, err := read()
		if err != nil {
			c.mu.Lock()
			c.err = err
			c.mu.Unlock()
			if err != io.EOF {
				logging.Debug("Console reader stopped", zap.Error(err))
			}
			return
		}
		select {
		case c.lines <- strings.TrimRight(line, " \t\r\n"):
		case <-c.done:
			return
		}
	}
}

// Print writes text without a trailing newline.
func (c *LineConsole) Print(text string) {
	fmt.Fprint(c.w, text)
}

// Println writes text followed by a newline.
func (c *LineConsole) Println(text string) {
	fmt.Fprintln(c.w, text)
}

// Line returns the next input line, if any.
func (c *LineConsole) Line() (string, bool) {
	select {
	case line, ok := <-c.lines:
		return line, ok
	default:
		return "", false
	}
}

// Err returns the error that stopped the reader, if it has stopped.
func (c *LineConsole) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close closes the underlying input. The reader goroutine exits once its
// pending read returns.
func (c *LineConsole) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// NewReaderConsole reads lines from r and writes prompts to w. Used for
// piped input and tests.
func NewReaderConsole(r io.Reader, w io.Writer) *LineConsole {
	scanner := bufio.NewScanner(r)
	read := func() (string, error) {
		if scanner.Scan() {
			return scanner.Text(), nil
		}
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	closer, _ := r.(io.Closer)
	return NewLineConsole(read, w, closer)
}

// NewReadlineConsole reads operator input from the terminal.
func NewReadlineConsole() (*LineConsole, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	read := func() (string, error) {
		for {
			line, err := rl.Readline()
			if err == readline.ErrInterrupt {
				continue
			}
			return line, err
		}
	}
	return NewLineConsole(read, rl.Stdout(), rl), nil
}

// Serial line defaults (8N1).
const DefaultBaudRate = 115200

// OpenSerialConsole opens a physical serial port as the operator console.
func OpenSerialConsole(portName string, baudRate int) (*LineConsole, error) {
	if baudRate <= 0 {
		baudRate = DefaultBaudRate
	}

	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	logging.Info("Serial console opened",
		zap.String("port", portName),
		zap.Int("baud", baudRate))

	reader := bufio.NewReader(port)
	read := func() (string, error) {
		return reader.ReadString('\n')
	}
	return NewLineConsole(read, port, port), nil
}

// SerialPorts lists the serial ports available on this host.
func SerialPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}

// Package mbtransport provides the two physical transports a Modbus channel
// can be configured with: TCP (MBAP framing) and serial/RTU. Both
// implementations share the same Transport interface so the driver above
// them never branches on transport kind; only framing (TCP vs RTU request
// construction, handled by internal/modbusdriver and the packet package)
// differs.
package mbtransport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/tarm/serial"

	"github.com/comsrv/comsrv/packet"
)

const (
	// tcpPacketMaxLen is the largest a Modbus TCP ADU can legally be: MBAP (7
	// bytes) + 253 bytes of PDU.
	tcpPacketMaxLen = 7 + 253
	// rtuPacketMaxLen is the largest a Modbus RTU ADU can legally be: unit id
	// (1) + 253 bytes of PDU + CRC (2).
	rtuPacketMaxLen = 256

	defaultWriteTimeout   = 1 * time.Second
	defaultReadTimeout    = 2 * time.Second
	defaultConnectTimeout = 3 * time.Second
	// serialTurnaroundDelay is the pause between writing a request and
	// starting to read, giving slow serial devices time to start responding.
	serialTurnaroundDelay = 30 * time.Millisecond
)

// ErrNotConnected is returned by Do when called before Connect or after the
// transport observed a connection-local failure and has not yet reconnected.
var ErrNotConnected = errors.New("mbtransport: not connected")

// ErrPacketTooLong indicates the remote side sent more bytes than any valid
// Modbus packet could contain — a framing error, not a timeout.
var ErrPacketTooLong = errors.New("mbtransport: received more bytes than a valid Modbus packet can contain")

// Transport sends one Modbus request and returns its parsed response. It
// owns exactly one physical connection; callers serialize access (the
// channel runtime issues one request at a time per channel).
type Transport interface {
	Connect(ctx context.Context) error
	Close() error
	Do(ctx context.Context, req packet.Request) (packet.Response, error)
	IsConnected() bool
}

// Kind selects which physical transport a channel's service config names.
type Kind string

const (
	KindTCP    Kind = "tcp"
	KindSerial Kind = "serial"
)

// Config carries the address/port parameters common to both transports,
// plus per-kind fields. Only the fields for the selected Kind are read.
type Config struct {
	Kind Kind

	// TCP
	Address string // host:port

	// Serial
	Device   string
	BaudRate int
	DataBits int
	StopBits int
	Parity   string // "N", "E", "O"

	WriteTimeout time.Duration
	ReadTimeout  time.Duration
}

// New builds the Transport named by cfg.Kind.
func New(cfg Config) (Transport, error) {
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = defaultReadTimeout
	}

	switch cfg.Kind {
	case KindTCP:
		return &tcpTransport{
			address:      cfg.Address,
			writeTimeout: writeTimeout,
			readTimeout:  readTimeout,
			timeNow:      time.Now,
		}, nil
	case KindSerial:
		return &serialTransport{
			cfg:         cfg,
			readTimeout: readTimeout,
		}, nil
	default:
		return nil, fmt.Errorf("mbtransport: unknown transport kind %q", cfg.Kind)
	}
}

// --- TCP ---

type tcpTransport struct {
	address      string
	writeTimeout time.Duration
	readTimeout  time.Duration
	timeNow      func() time.Time

	conn net.Conn
}

func (t *tcpTransport) Connect(ctx context.Context) error {
	dialer := &net.Dialer{Timeout: defaultConnectTimeout, KeepAlive: 15 * time.Second}
	network, addr := splitNetworkAddress(t.address)
	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return err
	}
	t.conn = conn
	return nil
}

func splitNetworkAddress(address string) (string, string) {
	network, addr, ok := strings.Cut(address, "://")
	if !ok {
		return "tcp", address
	}
	return network, addr
}

func (t *tcpTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	conn := t.conn
	t.conn = nil
	return conn.Close()
}

func (t *tcpTransport) IsConnected() bool { return t.conn != nil }

func (t *tcpTransport) Do(ctx context.Context, req packet.Request) (packet.Response, error) {
	if req == nil {
		return nil, errors.New("mbtransport: request can not be nil")
	}
	if t.conn == nil {
		return nil, ErrNotConnected
	}

	resp, err := t.do(ctx, req.Bytes(), req.ExpectedResponseLength())
	if err != nil {
		return nil, err
	}
	return packet.ParseTCPResponse(resp)
}

func (t *tcpTransport) do(ctx context.Context, data []byte, expectedLen int) ([]byte, error) {
	if err := t.conn.SetWriteDeadline(t.timeNow().Add(t.writeTimeout)); err != nil {
		return nil, err
	}
	if _, err := t.conn.Write(data); err != nil {
		return nil, err
	}

	const maxBytes = tcpPacketMaxLen + 10
	received := [maxBytes]byte{}
	total := 0
	readTimeout := time.After(t.readTimeout)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-readTimeout:
			return nil, errors.New("mbtransport: total read timeout exceeded")
		default:
		}

		_ = t.conn.SetReadDeadline(t.timeNow().Add(500 * time.Microsecond))
		n, err := t.conn.Read(received[total:maxBytes])
		if err != nil && !(errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, io.EOF)) {
			return nil, err
		}
		total += n
		if total > tcpPacketMaxLen {
			return nil, ErrPacketTooLong
		}
		if errPacket := packet.AsTCPErrorPacket(received[0:total]); errPacket != nil {
			return nil, errPacket
		}
		if total >= expectedLen {
			break
		}
		if errors.Is(err, io.EOF) {
			break
		}
	}
	if total == 0 {
		return nil, errors.New("mbtransport: no bytes received")
	}
	result := make([]byte, total)
	copy(result, received[:total])
	return result, nil
}

// --- Serial/RTU ---

type serialTransport struct {
	cfg         Config
	readTimeout time.Duration

	port      io.ReadWriteCloser
	isFlusher bool
}

func (t *serialTransport) Connect(ctx context.Context) error {
	parity := serial.ParityNone
	switch strings.ToUpper(t.cfg.Parity) {
	case "E":
		parity = serial.ParityEven
	case "O":
		parity = serial.ParityOdd
	}
	stopBits := serial.Stop1
	if t.cfg.StopBits == 2 {
		stopBits = serial.Stop2
	}
	dataBits := t.cfg.DataBits
	if dataBits == 0 {
		dataBits = 8
	}
	baud := t.cfg.BaudRate
	if baud == 0 {
		baud = 9600
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:     t.cfg.Device,
		Baud:     baud,
		Size:     byte(dataBits),
		Parity:   parity,
		StopBits: stopBits,
	})
	if err != nil {
		return err
	}
	t.port = port
	_, t.isFlusher = port.(interface{ Flush() error })
	return nil
}

func (t *serialTransport) Close() error {
	if t.port == nil {
		return nil
	}
	port := t.port
	t.port = nil
	return port.Close()
}

func (t *serialTransport) IsConnected() bool { return t.port != nil }

func (t *serialTransport) Do(ctx context.Context, req packet.Request) (packet.Response, error) {
	if req == nil {
		return nil, errors.New("mbtransport: request can not be nil")
	}
	if t.port == nil {
		return nil, ErrNotConnected
	}

	resp, err := t.do(ctx, req.Bytes(), req.ExpectedResponseLength())
	if err != nil {
		return nil, err
	}
	return packet.ParseRTUResponseWithCRC(resp)
}

func (t *serialTransport) do(ctx context.Context, data []byte, expectedLen int) ([]byte, error) {
	if _, err := t.port.Write(data); err != nil {
		_ = t.flush()
		return nil, err
	}
	// devices need turnaround time between request and response; reading
	// immediately misses the first bytes on some serial implementations.
	time.Sleep(serialTurnaroundDelay)

	const maxBytes = rtuPacketMaxLen + 10
	received := [maxBytes]byte{}
	total := 0
	readTimeout := time.After(t.readTimeout)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-readTimeout:
			return nil, errors.New("mbtransport: total read timeout exceeded")
		default:
		}

		n, err := t.port.Read(received[total:maxBytes])
		if err != nil && !(errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, io.EOF)) {
			_ = t.flush()
			return nil, err
		}
		total += n
		if total > rtuPacketMaxLen {
			_ = t.flush()
			return nil, ErrPacketTooLong
		}
		if errPacket := packet.AsRTUErrorPacket(received[0:total]); errPacket != nil {
			_ = t.flush()
			return nil, errPacket
		}
		if total >= expectedLen {
			_ = t.flush()
			break
		}
		if errors.Is(err, io.EOF) {
			break
		}
	}
	if total == 0 {
		return nil, errors.New("mbtransport: no bytes received")
	}
	result := make([]byte, total)
	copy(result, received[:total])
	return result, nil
}

func (t *serialTransport) flush() error {
	if !t.isFlusher {
		return nil
	}
	return t.port.(interface{ Flush() error }).Flush()
}

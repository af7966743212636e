package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// ContextState is the lifecycle of the server connection.
type ContextState int

const (
	ContextUnconnected ContextState = iota
	ContextConnecting
	ContextAuthorizing
	ContextSettingName
	ContextReady
	ContextFailed
	ContextTerminated
)

func (s ContextState) String() string {
	switch s {
	case ContextUnconnected:
		return "unconnected"
	case ContextConnecting:
		return "connecting"
	case ContextAuthorizing:
		return "authorizing"
	case ContextSettingName:
		return "setting-name"
	case ContextReady:
		return "ready"
	case ContextFailed:
		return "failed"
	case ContextTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Operation is a handle for an in-flight request. Its completion is only
// ever observed through the callback supplied when it was issued; Cancel
// suppresses that callback if the reply has not arrived yet.
type Operation struct {
	cancelled bool
}

// Cancel suppresses the operation's callback.
func (o *Operation) Cancel() { o.cancelled = true }

// DeviceInfo is a snapshot of a playback or capture device, as reported by
// the server. It is only valid for the duration of the callback it is
// delivered to.
type DeviceInfo struct {
	Index       uint32
	Name        string
	Description string
	SampleSpec  SampleSpec
	ChannelMap  []byte
	ModuleIndex uint32
	Volumes     ChannelVolumes
	Mute        bool
}

// InfoCallback receives a device snapshot. eol is 0 for a data delivery,
// positive for the end-of-sequence sentinel (info is nil), and negative for
// the error sentinel.
type InfoCallback func(info *DeviceInfo, eol int)

// AckCallback receives the success flag of a mutation request.
type AckCallback func(success bool)

// PulseConn is the connection surface the subcommands drive. It exists so
// the request chains can be exercised against a test double.
type PulseConn interface {
	GetSinkInfo(name string, cb InfoCallback) *Operation
	GetSourceInfo(name string, cb InfoCallback) *Operation
	SetSinkVolume(name string, volumes ChannelVolumes, cb AckCallback) *Operation
	SetSourceVolume(name string, volumes ChannelVolumes, cb AckCallback) *Operation
	SetSinkMute(name string, mute bool, cb AckCallback) *Operation
	SetSourceMute(name string, mute bool, cb AckCallback) *Operation
	Drain(done func()) *Operation
	Disconnect()
}

// pendingReply ties a sequence tag to the handler waiting for it.
type pendingReply struct {
	op     *Operation
	handle func(err error, ts *tagReader)
}

// PulseClient speaks the PulseAudio native protocol over a unix or TCP
// socket. All of its methods and callbacks run on the mainloop goroutine;
// only the socket reader lives elsewhere, and it hands frames back to the
// loop with Post.
type PulseClient struct {
	loop   *Mainloop
	logger *slog.Logger

	dial       func() (net.Conn, error)
	cookie     []byte
	clientName string

	conn    net.Conn
	state   ContextState
	stateCB func()
	version uint32
	nextTag uint32
	pending map[uint32]pendingReply
}

func newPulseClient(loop *Mainloop, cfg Config, logger *slog.Logger) *PulseClient {
	return &PulseClient{
		loop:   loop,
		logger: logger,
		dial: func() (net.Conn, error) {
			network, address, err := resolveServerAddress(cfg.Server.Address)
			if err != nil {
				return nil, err
			}
			logger.Debug("dialing server", "network", network, "address", address)
			return net.Dial(network, address)
		},
		cookie:     loadAuthCookie(cfg.Server.CookiePath, logger),
		clientName: cfg.Client.Name,
		state:      ContextUnconnected,
		pending:    make(map[uint32]pendingReply),
	}
}

// OnStateChange registers the callback invoked on every state transition.
func (c *PulseClient) OnStateChange(cb func()) { c.stateCB = cb }

// State returns the current connection state.
func (c *PulseClient) State() ContextState { return c.state }

func (c *PulseClient) setState(s ContextState) {
	if c.state == s {
		return
	}
	c.state = s
	c.logger.Debug("context state", "state", s)
	if c.stateCB != nil {
		c.stateCB()
	}
}

// Connect dials the server and starts the handshake. The connection becomes
// usable when the state callback observes ContextReady.
func (c *PulseClient) Connect() error {
	c.setState(ContextConnecting)
	conn, err := c.dial()
	if err != nil {
		c.setState(ContextFailed)
		return fmt.Errorf("connect: %w", err)
	}
	c.conn = conn
	go c.readLoop(conn)
	if op := c.sendAuth(); op == nil {
		c.setState(ContextFailed)
		return fmt.Errorf("connect: sending auth request failed")
	}
	c.setState(ContextAuthorizing)
	return nil
}

// Disconnect tears the connection down cleanly and moves to Terminated.
func (c *PulseClient) Disconnect() {
	if c.conn != nil {
		c.conn.Close()
	}
	c.setState(ContextTerminated)
}

// Close releases the socket without touching connection state. It is safe
// to call after the loop has exited, in any state.
func (c *PulseClient) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}

// Drain completes once all queued outbound data has reached the socket.
// Requests are flushed synchronously when they are issued, so there is never
// anything left to drain; like libpulse, Drain reports that by returning nil
// and the caller falls back to an immediate disconnect.
func (c *PulseClient) Drain(done func()) *Operation {
	return nil
}

// readLoop runs on its own goroutine and posts every received frame, and
// the eventual read failure, onto the mainloop.
func (c *PulseClient) readLoop(conn net.Conn) {
	r := bufio.NewReader(conn)
	for {
		payload, channel, err := readFrame(r)
		if err != nil {
			c.loop.Post(func() { c.connectionLost(err) })
			return
		}
		if channel != frameChannelCommand {
			// Stream data; this client never opens streams.
			continue
		}
		c.loop.Post(func() { c.dispatch(payload) })
	}
}

// connectionLost marks the connection failed unless it was already shut
// down deliberately.
func (c *PulseClient) connectionLost(err error) {
	if c.state == ContextTerminated || c.state == ContextFailed {
		return
	}
	c.logger.Debug("connection lost", "error", err)
	c.setState(ContextFailed)
}

// dispatch routes one command frame to the handler registered for its tag.
func (c *PulseClient) dispatch(payload []byte) {
	ts := newTagReader(payload)
	command := ts.u32()
	tag := ts.u32()
	if err := ts.err(); err != nil {
		c.connectionLost(err)
		return
	}

	switch command {
	case opReply:
		c.complete(tag, nil, ts)
	case opError:
		code := ts.u32()
		c.complete(tag, fmt.Errorf("server error %d", code), nil)
	default:
		// Unsolicited server message (e.g. a subscription event); nothing
		// here subscribes, so ignore it.
		c.logger.Debug("ignoring server message", "command", command)
	}
}

func (c *PulseClient) complete(tag uint32, err error, ts *tagReader) {
	p, ok := c.pending[tag]
	if !ok {
		c.logger.Debug("reply for unknown tag", "tag", tag)
		return
	}
	delete(c.pending, tag)
	if p.op.cancelled {
		return
	}
	p.handle(err, ts)
}

// request issues one command frame and registers a completion handler for
// its reply. It returns nil if the request could not be written, in which
// case the handler will never run.
func (c *PulseClient) request(command uint32, marshal func(*tagWriter), handle func(err error, ts *tagReader)) *Operation {
	tag := c.nextTag
	c.nextTag++

	var w tagWriter
	w.putU32(command)
	w.putU32(tag)
	if marshal != nil {
		marshal(&w)
	}

	op := &Operation{}
	c.pending[tag] = pendingReply{op: op, handle: handle}
	if err := c.writeFrame(buildFrame(w.bytes()), command == opAuth); err != nil {
		delete(c.pending, tag)
		c.logger.Debug("write failed", "command", command, "error", err)
		return nil
	}
	return op
}

// writeFrame sends one frame. The auth frame additionally carries
// SCM_CREDENTIALS ancillary data on unix sockets, so a same-uid client is
// accepted even when its cookie does not match the server's.
func (c *PulseClient) writeFrame(frame []byte, withCreds bool) error {
	if uc, ok := c.conn.(*net.UnixConn); ok && withCreds {
		creds := unix.UnixCredentials(&unix.Ucred{
			Pid: int32(os.Getpid()),
			Uid: uint32(os.Getuid()),
			Gid: uint32(os.Getgid()),
		})
		if _, _, err := uc.WriteMsgUnix(frame, creds, nil); err == nil {
			return nil
		}
		// Fall through: some transports refuse ancillary data; the cookie
		// alone may still authenticate us.
	}
	_, err := c.conn.Write(frame)
	return err
}

// sendAuth starts the handshake: AUTH, then SET_CLIENT_NAME, then Ready.
func (c *PulseClient) sendAuth() *Operation {
	return c.request(opAuth, func(w *tagWriter) {
		w.putU32(protocolVersion)
		w.putArbitrary(c.cookie)
	}, func(err error, ts *tagReader) {
		if err != nil {
			c.handshakeFailed(fmt.Errorf("auth: %w", err))
			return
		}
		version := ts.u32() & protocolVersionMask
		if err := ts.err(); err != nil {
			c.handshakeFailed(fmt.Errorf("auth reply: %w", err))
			return
		}
		if version < minServerVersion {
			c.handshakeFailed(fmt.Errorf("server protocol version %d is too old", version))
			return
		}
		c.version = version
		if c.version > protocolVersion {
			c.version = protocolVersion
		}
		c.logger.Debug("authenticated", "version", c.version)
		if op := c.sendClientName(); op == nil {
			c.handshakeFailed(fmt.Errorf("sending client name failed"))
			return
		}
		c.setState(ContextSettingName)
	})
}

func (c *PulseClient) sendClientName() *Operation {
	hostname, _ := os.Hostname()
	props := map[string]string{
		"application.name":           c.clientName,
		"application.process.id":     strconv.Itoa(os.Getpid()),
		"application.process.binary": "paknob",
		"application.process.host":   hostname,
		"application.process.user":   os.Getenv("USER"),
	}
	return c.request(opSetClientName, func(w *tagWriter) {
		w.putProplist(props)
	}, func(err error, ts *tagReader) {
		if err != nil {
			c.handshakeFailed(fmt.Errorf("set client name: %w", err))
			return
		}
		clientIndex := ts.u32()
		if err := ts.err(); err != nil {
			c.handshakeFailed(fmt.Errorf("set client name reply: %w", err))
			return
		}
		c.logger.Debug("registered with server", "client_index", clientIndex)
		c.setState(ContextReady)
	})
}

func (c *PulseClient) handshakeFailed(err error) {
	c.logger.Debug("handshake failed", "error", err)
	c.setState(ContextFailed)
}

// GetSinkInfo fetches a snapshot of the named playback device.
func (c *PulseClient) GetSinkInfo(name string, cb InfoCallback) *Operation {
	return c.infoRequest(opGetSinkInfo, name, cb)
}

// GetSourceInfo fetches a snapshot of the named capture device.
func (c *PulseClient) GetSourceInfo(name string, cb InfoCallback) *Operation {
	return c.infoRequest(opGetSourceInfo, name, cb)
}

func (c *PulseClient) infoRequest(command uint32, name string, cb InfoCallback) *Operation {
	return c.request(command, func(w *tagWriter) {
		w.putU32(invalidIndex)
		w.putString(name)
	}, func(err error, ts *tagReader) {
		if err != nil {
			c.logger.Debug("info request failed", "device", name, "error", err)
			cb(nil, -1)
			return
		}
		info, perr := parseDeviceInfo(ts)
		if perr != nil {
			c.logger.Debug("malformed info reply", "device", name, "error", perr)
			cb(nil, -1)
			return
		}
		cb(info, 0)
		cb(nil, 1)
	})
}

// SetSinkVolume sets the per-channel volumes of the named playback device.
func (c *PulseClient) SetSinkVolume(name string, volumes ChannelVolumes, cb AckCallback) *Operation {
	return c.volumeRequest(opSetSinkVolume, name, volumes, cb)
}

// SetSourceVolume sets the per-channel volumes of the named capture device.
func (c *PulseClient) SetSourceVolume(name string, volumes ChannelVolumes, cb AckCallback) *Operation {
	return c.volumeRequest(opSetSourceVolume, name, volumes, cb)
}

func (c *PulseClient) volumeRequest(command uint32, name string, volumes ChannelVolumes, cb AckCallback) *Operation {
	return c.request(command, func(w *tagWriter) {
		w.putU32(invalidIndex)
		w.putString(name)
		w.putCvolume(volumes)
	}, c.ackHandler(cb))
}

// SetSinkMute sets the mute flag of the named playback device.
func (c *PulseClient) SetSinkMute(name string, mute bool, cb AckCallback) *Operation {
	return c.muteRequest(opSetSinkMute, name, mute, cb)
}

// SetSourceMute sets the mute flag of the named capture device.
func (c *PulseClient) SetSourceMute(name string, mute bool, cb AckCallback) *Operation {
	return c.muteRequest(opSetSourceMute, name, mute, cb)
}

func (c *PulseClient) muteRequest(command uint32, name string, mute bool, cb AckCallback) *Operation {
	return c.request(command, func(w *tagWriter) {
		w.putU32(invalidIndex)
		w.putString(name)
		w.putBool(mute)
	}, c.ackHandler(cb))
}

func (c *PulseClient) ackHandler(cb AckCallback) func(err error, ts *tagReader) {
	return func(err error, ts *tagReader) {
		if err != nil {
			c.logger.Debug("mutation rejected", "error", err)
		}
		cb(err == nil)
	}
}

// parseDeviceInfo decodes the leading fields of a sink or source info reply.
// Everything the chains need precedes the protocol-version-gated fields, so
// the remainder of the frame is ignored.
func parseDeviceInfo(ts *tagReader) (*DeviceInfo, error) {
	info := &DeviceInfo{}
	info.Index = ts.u32()
	info.Name = ts.string()
	info.Description = ts.string()
	info.SampleSpec = ts.sampleSpec()
	info.ChannelMap = ts.channelMap()
	info.ModuleIndex = ts.u32()
	info.Volumes = ts.cvolume()
	info.Mute = ts.bool()
	if err := ts.err(); err != nil {
		return nil, err
	}
	return info, nil
}

package main

import (
	"bufio"
	"bytes"
	"io"
	"log/slog"
	"net"
	"testing"
)

// fakeServer speaks just enough of the native protocol to drive the client
// through its handshake and one command, over a net.Pipe.
type fakeServer struct {
	conn net.Conn

	// authVersion is the protocol version announced in the AUTH reply.
	authVersion uint32

	// failInfo answers info queries with an error frame instead of data.
	failInfo bool

	// infoVolumes and infoMute describe the single device it reports.
	infoVolumes ChannelVolumes
	infoMute    bool
}

func (s *fakeServer) serve() {
	r := bufio.NewReader(s.conn)
	for {
		payload, _, err := readFrame(r)
		if err != nil {
			return
		}
		ts := newTagReader(payload)
		command := ts.u32()
		tag := ts.u32()

		var w tagWriter
		switch command {
		case opAuth:
			w.putU32(opReply)
			w.putU32(tag)
			w.putU32(s.authVersion)
		case opSetClientName:
			w.putU32(opReply)
			w.putU32(tag)
			w.putU32(42) // client index
		case opGetSinkInfo, opGetSourceInfo:
			if s.failInfo {
				w.putU32(opError)
				w.putU32(tag)
				w.putU32(16) // PA_ERR_NOENTITY
				break
			}
			w.putU32(opReply)
			w.putU32(tag)
			w.putU32(0)
			w.putString("fake-device")
			w.putString("Fake Device")
			w.buf.Write([]byte{tagSampleSpec, 3, byte(len(s.infoVolumes)), 0, 0, 0xAC, 0x44})
			cm := []byte{tagChannelMap, byte(len(s.infoVolumes))}
			for i := range s.infoVolumes {
				cm = append(cm, byte(i+1))
			}
			w.buf.Write(cm)
			w.putU32(7)
			w.putCvolume(s.infoVolumes)
			w.putBool(s.infoMute)
		case opSetSinkVolume, opSetSourceVolume, opSetSinkMute, opSetSourceMute:
			w.putU32(opReply)
			w.putU32(tag)
		default:
			w.putU32(opError)
			w.putU32(tag)
			w.putU32(19) // PA_ERR_NOTIMPLEMENTED
		}
		if _, err := s.conn.Write(buildFrame(w.bytes())); err != nil {
			return
		}
	}
}

// startClient wires a PulseClient to a fakeServer over a pipe and installs
// the run-once state callback the binary uses.
func startClient(t *testing.T, srv *fakeServer, cmd subcommand) (*Mainloop, *PulseClient) {
	t.Helper()
	clientEnd, serverEnd := net.Pipe()
	srv.conn = serverEnd
	if srv.authVersion == 0 {
		srv.authVersion = 35
	}
	go srv.serve()

	loop := newMainloop()
	cmd.bindMainloop(loop)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := newPulseClient(loop, DefaultConfig(), logger)
	client.dial = func() (net.Conn, error) { return clientEnd, nil }

	started := false
	client.OnStateChange(func() {
		switch client.State() {
		case ContextConnecting, ContextAuthorizing, ContextSettingName:
		case ContextReady:
			if !started {
				started = true
				cmd.run(client)
			}
		case ContextTerminated:
			loop.Quit(0)
		default:
			loop.Quit(1)
		}
	})
	if err := client.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return loop, client
}

// TestClient_GetVolumeEndToEnd runs the whole pipeline against the fake
// server: handshake, query, print, drain, terminate.
func TestClient_GetVolumeEndToEnd(t *testing.T) {
	srv := &fakeServer{infoVolumes: ChannelVolumes{VolumeNorm, VolumeNorm}}

	cmd := buildSubcommand([]string{"get-sink-volume"}).(*getVolumeCommand)
	var out bytes.Buffer
	cmd.out = &out

	loop, client := startClient(t, srv, cmd)
	code := loop.Run()
	client.Close()

	if code != 0 {
		t.Fatalf("exit code %d, want 0", code)
	}
	if out.String() != "100\n" {
		t.Errorf("output %q, want \"100\\n\"", out.String())
	}
}

// TestClient_SetMuteEndToEnd exercises a mutation chain over the wire.
func TestClient_SetMuteEndToEnd(t *testing.T) {
	srv := &fakeServer{infoVolumes: ChannelVolumes{VolumeNorm}, infoMute: false}

	cmd := buildSubcommand([]string{"set-sink-mute", "true"}).(*setMuteCommand)
	var out bytes.Buffer
	cmd.out = &out

	loop, client := startClient(t, srv, cmd)
	code := loop.Run()
	client.Close()

	if code != 0 {
		t.Fatalf("exit code %d, want 0", code)
	}
	if out.String() != "0\n" {
		t.Errorf("output %q, want \"0\\n\"", out.String())
	}
}

// TestClient_ServerError surfaces an error reply as exit 1 with no output.
func TestClient_ServerError(t *testing.T) {
	srv := &fakeServer{failInfo: true}

	cmd := buildSubcommand([]string{"get-source-volume"}).(*getVolumeCommand)
	var out bytes.Buffer
	cmd.out = &out

	loop, client := startClient(t, srv, cmd)
	code := loop.Run()
	client.Close()

	if code != 1 {
		t.Fatalf("exit code %d, want 1", code)
	}
	if out.String() != "" {
		t.Errorf("output %q, want nothing", out.String())
	}
}

// TestClient_OldServerRejected fails the handshake below the supported
// protocol floor.
func TestClient_OldServerRejected(t *testing.T) {
	srv := &fakeServer{authVersion: 12, infoVolumes: ChannelVolumes{VolumeNorm}}

	cmd := buildSubcommand([]string{"get-sink-volume"}).(*getVolumeCommand)
	loop, client := startClient(t, srv, cmd)
	code := loop.Run()
	client.Close()

	if code != 1 {
		t.Errorf("exit code %d, want 1", code)
	}
}

// TestClient_VersionNegotiation masks the capability flags and caps at the
// client's own protocol revision.
func TestClient_VersionNegotiation(t *testing.T) {
	// High bits simulate SHM capability flags.
	srv := &fakeServer{authVersion: 0x80000000 | 35, infoVolumes: ChannelVolumes{VolumeNorm}}

	cmd := buildSubcommand([]string{"get-sink-volume"}).(*getVolumeCommand)
	cmd.out = io.Discard

	loop, client := startClient(t, srv, cmd)
	code := loop.Run()
	defer client.Close()

	if code != 0 {
		t.Fatalf("exit code %d, want 0", code)
	}
	if client.version != protocolVersion {
		t.Errorf("negotiated version %d, want %d", client.version, protocolVersion)
	}
}

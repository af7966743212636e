package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// subcommand is one fully-parsed command-line action. run issues the first
// request of its callback chain; everything after that happens on the
// mainloop as replies arrive.
type subcommand interface {
	bindMainloop(loop *Mainloop)
	run(conn PulseConn)
}

// commandBase carries what every subcommand needs: the loop to quit and the
// stream to print its single result line to.
type commandBase struct {
	loop *Mainloop
	out  io.Writer
}

func (b *commandBase) bindMainloop(loop *Mainloop) {
	if b.loop != nil {
		panic("subcommand already bound to a mainloop")
	}
	b.loop = loop
}

func (b *commandBase) quit(code int) {
	b.loop.Quit(code)
}

func (b *commandBase) writer() io.Writer {
	if b.out != nil {
		return b.out
	}
	return os.Stdout
}

func (b *commandBase) printVolume(v Volume) {
	fmt.Fprintln(b.writer(), v.Percent())
}

func (b *commandBase) printMute(mute bool) {
	out := 0
	if mute {
		out = 1
	}
	fmt.Fprintln(b.writer(), out)
}

// checkEOL applies the shared tail of every info callback: a negative
// sentinel is a failed query, a positive one ends the sequence after the
// data delivery already ran.
func (b *commandBase) checkEOL(eol int) (done bool) {
	if eol < 0 {
		b.quit(1)
		return true
	}
	return eol > 0
}

// requestDrain asks for the outbound queue to be flushed before the
// connection is torn down. When nothing is pending the drain request is
// refused and the disconnect happens immediately instead.
func requestDrain(conn PulseConn) {
	if op := conn.Drain(func() { conn.Disconnect() }); op == nil {
		conn.Disconnect()
	}
}

// getVolumeCommand prints the current volume of the default device.
type getVolumeCommand struct {
	commandBase
	ops deviceOps
}

func (c *getVolumeCommand) run(conn PulseConn) {
	op := c.ops.getInfo(conn, c.ops.defaultDevice, func(info *DeviceInfo, eol int) {
		if c.checkEOL(eol) {
			return
		}
		if info == nil {
			return
		}
		c.printVolume(info.Volumes.Avg())
		requestDrain(conn)
	})
	if op == nil {
		c.quit(1)
	}
}

// setVolumeCommand sets every channel of the default device to one volume.
type setVolumeCommand struct {
	commandBase
	ops deviceOps
	vol Volume
}

func (c *setVolumeCommand) run(conn PulseConn) {
	op := c.ops.getInfo(conn, c.ops.defaultDevice, func(info *DeviceInfo, eol int) {
		if c.checkEOL(eol) {
			return
		}
		if info == nil {
			return
		}
		volumes := make(ChannelVolumes, len(info.Volumes))
		for i := range volumes {
			volumes[i] = c.vol
		}
		setOp := c.ops.setVolume(conn, c.ops.defaultDevice, volumes, func(success bool) {
			if !success {
				c.quit(1)
				return
			}
			c.printVolume(c.vol)
			requestDrain(conn)
		})
		if setOp == nil {
			c.quit(1)
		}
	})
	if op == nil {
		c.quit(1)
	}
}

// adjustVolumeCommand shifts the default device's volume up or down by a
// fixed amount, channel by channel.
type adjustVolumeCommand struct {
	commandBase
	ops      deviceOps
	delta    Volume
	negative bool

	result Volume
}

func (c *adjustVolumeCommand) run(conn PulseConn) {
	op := c.ops.getInfo(conn, c.ops.defaultDevice, func(info *DeviceInfo, eol int) {
		if c.checkEOL(eol) {
			return
		}
		if info == nil {
			return
		}
		volumes := make(ChannelVolumes, len(info.Volumes))
		copy(volumes, info.Volumes)
		if c.negative {
			volumes.Decrease(c.delta)
		} else {
			volumes.Increase(c.delta)
		}
		c.result = volumes.Avg()
		setOp := c.ops.setVolume(conn, c.ops.defaultDevice, volumes, func(success bool) {
			if !success {
				c.quit(1)
				return
			}
			c.printVolume(c.result)
			requestDrain(conn)
		})
		if setOp == nil {
			c.quit(1)
		}
	})
	if op == nil {
		c.quit(1)
	}
}

// getMuteCommand prints the default device's mute state as 1 or 0.
type getMuteCommand struct {
	commandBase
	ops deviceOps
}

func (c *getMuteCommand) run(conn PulseConn) {
	op := c.ops.getInfo(conn, c.ops.defaultDevice, func(info *DeviceInfo, eol int) {
		if c.checkEOL(eol) {
			return
		}
		if info == nil {
			return
		}
		c.printMute(info.Mute)
		requestDrain(conn)
	})
	if op == nil {
		c.quit(1)
	}
}

// setMuteCommand sets the default device's mute flag and prints the volume
// that results: zero when muting, the device volume when unmuting.
type setMuteCommand struct {
	commandBase
	ops  deviceOps
	mute bool

	result Volume
}

func (c *setMuteCommand) run(conn PulseConn) {
	op := c.ops.getInfo(conn, c.ops.defaultDevice, func(info *DeviceInfo, eol int) {
		if c.checkEOL(eol) {
			return
		}
		if info == nil {
			return
		}
		if c.mute {
			c.result = VolumeMuted
		} else {
			c.result = info.Volumes.Avg()
		}
		setOp := c.ops.setMute(conn, c.ops.defaultDevice, c.mute, func(success bool) {
			if !success {
				c.quit(1)
				return
			}
			c.printVolume(c.result)
			requestDrain(conn)
		})
		if setOp == nil {
			c.quit(1)
		}
	})
	if op == nil {
		c.quit(1)
	}
}

// toggleMuteCommand flips the default device's mute flag and prints the
// resulting volume, like setMuteCommand.
type toggleMuteCommand struct {
	commandBase
	ops deviceOps

	result Volume
}

func (c *toggleMuteCommand) run(conn PulseConn) {
	op := c.ops.getInfo(conn, c.ops.defaultDevice, func(info *DeviceInfo, eol int) {
		if c.checkEOL(eol) {
			return
		}
		if info == nil {
			return
		}
		if info.Mute {
			c.result = info.Volumes.Avg()
		} else {
			c.result = VolumeMuted
		}
		setOp := c.ops.setMute(conn, c.ops.defaultDevice, !info.Mute, func(success bool) {
			if !success {
				c.quit(1)
				return
			}
			c.printVolume(c.result)
			requestDrain(conn)
		})
		if setOp == nil {
			c.quit(1)
		}
	})
	if op == nil {
		c.quit(1)
	}
}

// ===== command-line parsing =====

// parseVolumeArg parses a percentage and converts it to the volume scale.
func parseVolumeArg(arg string) (Volume, bool) {
	percent, err := strconv.ParseUint(arg, 10, 32)
	if err != nil {
		return 0, false
	}
	return volumeFromPercent(percent)
}

// parseAdjustArg parses a signed percentage delta. A decrement command
// flips the sign, so "decrement-sink-volume -5" raises the volume by 5.
func parseAdjustArg(arg string, isDecrement bool) (delta Volume, negative, ok bool) {
	hadMinus := strings.HasPrefix(arg, "-")
	delta, ok = parseVolumeArg(strings.TrimPrefix(arg, "-"))
	if !ok {
		return 0, false, false
	}
	return delta, hadMinus != isDecrement, true
}

func buildGetVolume(ops deviceOps) func(args []string) subcommand {
	return func(args []string) subcommand {
		if len(args) != 0 {
			return nil
		}
		return &getVolumeCommand{ops: ops}
	}
}

func buildSetVolume(ops deviceOps) func(args []string) subcommand {
	return func(args []string) subcommand {
		if len(args) != 1 {
			return nil
		}
		vol, ok := parseVolumeArg(args[0])
		if !ok {
			return nil
		}
		return &setVolumeCommand{ops: ops, vol: vol}
	}
}

func buildAdjustVolume(ops deviceOps, isDecrement bool) func(args []string) subcommand {
	return func(args []string) subcommand {
		if len(args) != 1 {
			return nil
		}
		delta, negative, ok := parseAdjustArg(args[0], isDecrement)
		if !ok {
			return nil
		}
		return &adjustVolumeCommand{ops: ops, delta: delta, negative: negative}
	}
}

func buildGetMute(ops deviceOps) func(args []string) subcommand {
	return func(args []string) subcommand {
		if len(args) != 0 {
			return nil
		}
		return &getMuteCommand{ops: ops}
	}
}

func buildSetMute(ops deviceOps) func(args []string) subcommand {
	return func(args []string) subcommand {
		if len(args) != 1 {
			return nil
		}
		mute, err := strconv.ParseBool(args[0])
		if err != nil {
			return nil
		}
		return &setMuteCommand{ops: ops, mute: mute}
	}
}

func buildToggleMute(ops deviceOps) func(args []string) subcommand {
	return func(args []string) subcommand {
		if len(args) != 0 {
			return nil
		}
		return &toggleMuteCommand{ops: ops}
	}
}

// commandTable lists every subcommand in the order the usage text shows
// them. arg documents the operand, empty for commands that take none.
var commandTable = []struct {
	name  string
	arg   string
	build func(args []string) subcommand
}{
	{"get-sink-volume", "", buildGetVolume(sinkOps)},
	{"set-sink-volume", "<percent>", buildSetVolume(sinkOps)},
	{"increment-sink-volume", "<percent>", buildAdjustVolume(sinkOps, false)},
	{"decrement-sink-volume", "<percent>", buildAdjustVolume(sinkOps, true)},
	{"get-source-volume", "", buildGetVolume(sourceOps)},
	{"set-source-volume", "<percent>", buildSetVolume(sourceOps)},
	{"increment-source-volume", "<percent>", buildAdjustVolume(sourceOps, false)},
	{"decrement-source-volume", "<percent>", buildAdjustVolume(sourceOps, true)},
	{"get-sink-mute", "", buildGetMute(sinkOps)},
	{"set-sink-mute", "<bool>", buildSetMute(sinkOps)},
	{"toggle-sink-mute", "", buildToggleMute(sinkOps)},
	{"get-source-mute", "", buildGetMute(sourceOps)},
	{"set-source-mute", "<bool>", buildSetMute(sourceOps)},
	{"toggle-source-mute", "", buildToggleMute(sourceOps)},
}

// buildSubcommand tries every table entry against the arguments and returns
// the first that both matches by name and parses cleanly, or nil.
func buildSubcommand(args []string) subcommand {
	if len(args) == 0 {
		return nil
	}
	for _, entry := range commandTable {
		if args[0] != entry.name {
			continue
		}
		if cmd := entry.build(args[1:]); cmd != nil {
			return cmd
		}
	}
	return nil
}

// usageText renders the usage summary printed on a bad invocation.
func usageText(argv0 string) string {
	var b strings.Builder
	b.WriteString("Usage:\n")
	for _, entry := range commandTable {
		b.WriteString("  ")
		b.WriteString(argv0)
		b.WriteString(" ")
		b.WriteString(entry.name)
		if entry.arg != "" {
			b.WriteString(" ")
			b.WriteString(entry.arg)
		}
		b.WriteString("\n")
	}
	return b.String()
}

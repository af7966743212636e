package main

// deviceOps bundles the operations of one device class (playback or
// capture) behind a common shape, so each subcommand is written once and
// bound to either class.
type deviceOps struct {
	defaultDevice string

	getInfo   func(conn PulseConn, name string, cb InfoCallback) *Operation
	setVolume func(conn PulseConn, name string, volumes ChannelVolumes, cb AckCallback) *Operation
	setMute   func(conn PulseConn, name string, mute bool, cb AckCallback) *Operation
}

// sinkOps targets the default playback device.
var sinkOps = deviceOps{
	defaultDevice: "@DEFAULT_SINK@",
	getInfo: func(conn PulseConn, name string, cb InfoCallback) *Operation {
		return conn.GetSinkInfo(name, cb)
	},
	setVolume: func(conn PulseConn, name string, volumes ChannelVolumes, cb AckCallback) *Operation {
		return conn.SetSinkVolume(name, volumes, cb)
	},
	setMute: func(conn PulseConn, name string, mute bool, cb AckCallback) *Operation {
		return conn.SetSinkMute(name, mute, cb)
	},
}

// sourceOps targets the default capture device.
var sourceOps = deviceOps{
	defaultDevice: "@DEFAULT_SOURCE@",
	getInfo: func(conn PulseConn, name string, cb InfoCallback) *Operation {
		return conn.GetSourceInfo(name, cb)
	},
	setVolume: func(conn PulseConn, name string, volumes ChannelVolumes, cb AckCallback) *Operation {
		return conn.SetSourceVolume(name, volumes, cb)
	},
	setMute: func(conn PulseConn, name string, mute bool, cb AckCallback) *Operation {
		return conn.SetSourceMute(name, mute, cb)
	},
}

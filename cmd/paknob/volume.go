package main

import "math"

// Volume is a device-independent volume on the PulseAudio scale.
// VolumeNorm is the "100%" reference point; values above it are boosted.
type Volume uint32

const (
	// VolumeMuted is the lowest representable volume (silence).
	VolumeMuted Volume = 0

	// VolumeNorm is the normal (100%, 0 dB) volume.
	VolumeNorm Volume = 0x10000

	// VolumeMax is the largest valid volume the scale can represent.
	VolumeMax Volume = math.MaxUint32 / 2
)

// Valid reports whether v is within the representable volume range.
func (v Volume) Valid() bool {
	return v <= VolumeMax
}

// Percent converts v to a user-facing percentage, rounding to nearest.
func (v Volume) Percent() int {
	return int((uint64(v)*100 + uint64(VolumeNorm)/2) / uint64(VolumeNorm))
}

// volumeFromPercent converts a percentage to the volume scale.
// The result is rejected (ok=false) if it falls outside the valid range;
// out-of-range input is a usage error, never something to clamp silently.
func volumeFromPercent(percent uint64) (Volume, bool) {
	v := percent * uint64(VolumeNorm) / 100
	if v > uint64(VolumeMax) {
		return 0, false
	}
	return Volume(v), true
}

// ChannelVolumes holds one volume per channel of a device.
type ChannelVolumes []Volume

// Avg returns the average of all channel volumes, or VolumeMuted for an
// empty set.
func (cv ChannelVolumes) Avg() Volume {
	if len(cv) == 0 {
		return VolumeMuted
	}
	var sum uint64
	for _, v := range cv {
		sum += uint64(v)
	}
	return Volume(sum / uint64(len(cv)))
}

// Increase raises every channel by delta, saturating at VolumeMax.
func (cv ChannelVolumes) Increase(delta Volume) {
	for i, v := range cv {
		raised := uint64(v) + uint64(delta)
		if raised > uint64(VolumeMax) {
			raised = uint64(VolumeMax)
		}
		cv[i] = Volume(raised)
	}
}

// Decrease lowers every channel by delta, flooring at zero.
func (cv ChannelVolumes) Decrease(delta Volume) {
	for i, v := range cv {
		if delta >= v {
			cv[i] = VolumeMuted
		} else {
			cv[i] = v - delta
		}
	}
}

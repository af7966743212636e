package main

import "testing"

// TestVolumeFromPercent_RoundTrip checks that every everyday percentage
// survives the conversion to the volume scale and back.
func TestVolumeFromPercent_RoundTrip(t *testing.T) {
	for percent := uint64(0); percent <= 100; percent++ {
		v, ok := volumeFromPercent(percent)
		if !ok {
			t.Fatalf("volumeFromPercent(%d) rejected a valid percentage", percent)
		}
		if got := v.Percent(); got != int(percent) {
			t.Errorf("percent %d -> volume %d -> percent %d", percent, v, got)
		}
	}
}

// TestVolumeFromPercent_Boosted covers percentages above the 100% reference.
func TestVolumeFromPercent_Boosted(t *testing.T) {
	v, ok := volumeFromPercent(150)
	if !ok {
		t.Fatal("150% should be accepted (boosted but valid)")
	}
	if v != Volume(150*uint64(VolumeNorm)/100) {
		t.Errorf("unexpected boosted volume %d", v)
	}
	if got := v.Percent(); got != 150 {
		t.Errorf("boosted round trip: got %d, want 150", got)
	}
}

// TestVolumeFromPercent_Range probes the exact acceptance boundary.
func TestVolumeFromPercent_Range(t *testing.T) {
	// VolumeMax corresponds to 3276799.99..%; the next integer percent is out.
	if _, ok := volumeFromPercent(3276799); !ok {
		t.Error("3276799% should still be representable")
	}
	if _, ok := volumeFromPercent(3276800); ok {
		t.Error("3276800% exceeds the volume range and must be rejected")
	}
	if _, ok := volumeFromPercent(1 << 40); ok {
		t.Error("absurd percentages must be rejected, not wrapped")
	}
}

func TestVolumeValid(t *testing.T) {
	if !VolumeMuted.Valid() || !VolumeNorm.Valid() || !VolumeMax.Valid() {
		t.Error("muted, norm and max are all valid volumes")
	}
	if (VolumeMax + 1).Valid() {
		t.Error("VolumeMax+1 must be invalid")
	}
}

// TestChannelVolumesAvg covers the average including the empty set.
func TestChannelVolumesAvg(t *testing.T) {
	if got := (ChannelVolumes{}).Avg(); got != VolumeMuted {
		t.Errorf("empty set average: got %d, want 0", got)
	}
	cv := ChannelVolumes{VolumeNorm, VolumeNorm / 2}
	want := Volume(uint64(VolumeNorm)*3/2) / 2
	if got := cv.Avg(); got != want {
		t.Errorf("average: got %d, want %d", got, want)
	}
}

// TestChannelVolumesIncrease_Saturates checks the per-channel cap.
func TestChannelVolumesIncrease_Saturates(t *testing.T) {
	cv := ChannelVolumes{VolumeMax - 10, VolumeNorm}
	cv.Increase(100)
	if cv[0] != VolumeMax {
		t.Errorf("channel 0 should saturate at VolumeMax, got %d", cv[0])
	}
	if cv[1] != VolumeNorm+100 {
		t.Errorf("channel 1: got %d, want %d", cv[1], VolumeNorm+100)
	}
}

// TestChannelVolumesDecrease_Floors checks the per-channel floor.
func TestChannelVolumesDecrease_Floors(t *testing.T) {
	cv := ChannelVolumes{10, VolumeNorm}
	cv.Decrease(100)
	if cv[0] != VolumeMuted {
		t.Errorf("channel 0 should floor at zero, got %d", cv[0])
	}
	if cv[1] != VolumeNorm-100 {
		t.Errorf("channel 1: got %d, want %d", cv[1], VolumeNorm-100)
	}
}

// TestChannelVolumesAdjust_RoundTrip raises then lowers by the same delta.
func TestChannelVolumesAdjust_RoundTrip(t *testing.T) {
	cv := ChannelVolumes{VolumeNorm, VolumeNorm / 2}
	delta, _ := volumeFromPercent(5)
	cv.Increase(delta)
	cv.Decrease(delta)
	if cv[0] != VolumeNorm || cv[1] != VolumeNorm/2 {
		t.Errorf("increase then decrease should restore volumes, got %v", cv)
	}
}

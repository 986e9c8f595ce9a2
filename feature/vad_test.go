package feature

import "testing"

// energyFrames builds single-column frames whose c0 is the given energy.
func energyFrames(energies []float64) [][]float64 {
	out := make([][]float64, len(energies))
	for i, e := range energies {
		out[i] = []float64{e}
	}
	return out
}

func TestVADThreshold(t *testing.T) {
	// No mean scaling, no context: a plain threshold on c0.
	cfg := VADConfig{EnergyThreshold: 5.0}
	mask := VAD(energyFrames([]float64{1, 6, 4, 10}), cfg)
	want := []bool{false, true, false, true}
	for i := range want {
		if mask[i] != want[i] {
			t.Errorf("mask[%d] = %v, want %v", i, mask[i], want[i])
		}
	}
}

func TestVADContextVoting(t *testing.T) {
	// An isolated loud frame surrounded by silence loses the vote.
	cfg := VADConfig{EnergyThreshold: 5.0, FramesContext: 2, ProportionVoted: 0.6}
	mask := VAD(energyFrames([]float64{0, 0, 10, 0, 0}), cfg)
	for i, m := range mask {
		if m {
			t.Errorf("mask[%d] = true, want all false for an isolated frame", i)
		}
	}

	// A solid voiced region survives the vote.
	mask = VAD(energyFrames([]float64{0, 10, 10, 10, 10, 10, 0}), cfg)
	if !mask[3] {
		t.Error("center of a voiced region should be voiced")
	}
}

func TestVADMeanScale(t *testing.T) {
	// With mean scaling the threshold adapts: frames below the raised
	// threshold go silent even if above the absolute floor.
	cfg := VADConfig{EnergyThreshold: 0.0, EnergyMeanScale: 0.5}
	// mean = 50, threshold = 25
	mask := VAD(energyFrames([]float64{100, 0, 100, 0}), cfg)
	want := []bool{true, false, true, false}
	for i := range want {
		if mask[i] != want[i] {
			t.Errorf("mask[%d] = %v, want %v", i, mask[i], want[i])
		}
	}
}

func TestVADEmpty(t *testing.T) {
	if mask := VAD(nil, DefaultVADConfig()); len(mask) != 0 {
		t.Errorf("expected empty mask, got %v", mask)
	}
}

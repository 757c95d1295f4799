package rstack

import "testing"

func TestFrameAdjustedIP(t *testing.T) {
	cases := []struct {
		name     string
		frame    Frame
		expected Address
	}{
		{"zero ip is never adjusted", Frame{IP: 0, IsSignal: False}, 0},
		{"signal frame ip is not adjusted", Frame{IP: 0x1000, IsSignal: True}, 0x1000},
		{"non-signal frame subtracts one", Frame{IP: 0x1000, IsSignal: False}, 0x0fff},
		{"unknown signal status subtracts one", Frame{IP: 0x2000, IsSignal: Unknown}, 0x1fff},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.frame.AdjustedIP(); got != c.expected {
				t.Errorf("AdjustedIP() = %#x, want %#x", got, c.expected)
			}
		})
	}
}

func TestTristateOf(t *testing.T) {
	if TristateOf(true) != True {
		t.Errorf("TristateOf(true) = %v, want True", TristateOf(true))
	}
	if TristateOf(false) != False {
		t.Errorf("TristateOf(false) = %v, want False", TristateOf(false))
	}
}

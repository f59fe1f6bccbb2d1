package location

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAccessPoints(t *testing.T) {
	output := "00:14:22:01:23:45:67\n" +
		"AA:BB:CC:DD:EE:FF:100\n" +
		"not-a-mac:50\n" +
		"00:14:22:01:23:46:weak\n"

	aps, err := parseAccessPoints(output)
	require.NoError(t, err)
	require.Len(t, aps, 2)
	assert.Equal(t, "00:14:22:01:23:45", aps[0].MACAddress)
	assert.Equal(t, 67.0, aps[0].SignalStrength)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", aps[1].MACAddress)
}

func TestIsValidMAC(t *testing.T) {
	tests := []struct {
		mac  string
		want bool
	}{
		{"00:14:22:01:23:45", true},
		{"ff:ff:ff:ff:ff:ff", true},
		{"00:14:22:01:23", false},
		{"00:14:22:01:23:4", false},
		{"00:14:22:01:23:GG", false},
	}

	for _, tt := range tests {
		t.Run(tt.mac, func(t *testing.T) {
			assert.Equal(t, tt.want, isValidMAC(tt.mac))
		})
	}
}

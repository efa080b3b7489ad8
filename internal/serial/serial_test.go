package serial //nolint:testpackage

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigfox-decoder/internal/packet"
)

type sliceEmitter struct {
	packets []packet.Packet
}

func (e *sliceEmitter) Emit(p packet.Packet) int {
	e.packets = append(e.packets, p)

	return 1
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
		payload  string
	}{
		{"I (4041275) sigfox: 0000e840cdccc7424a3e8044", true, "0000e840cdccc7424a3e8044"},
		{"I (4041275) sigfox:0000e840 cdccc742 4a3e8044  ", true, "0000e840 cdccc742 4a3e8044"},
		{"I (378) heap_init: At 3FFAE6E0 len 00001920 (6 KiB): DRAM", false, ""},
		{"I (4041275) sigfox:", false, ""},
		{"Random string without tag", false, ""},
	}

	for _, test := range tests {
		payload, ok := parseLine(test.input, "sigfox")

		require.Equal(t, test.expected, ok, "input: %q", test.input)
		assert.Equal(t, test.payload, payload, "input: %q", test.input)
	}
}

func TestRead(t *testing.T) {
	log := strings.Join([]string{
		"I (100) boot: starting",
		"I (200) sigfox: 0000e840cdccc7424a3e8044",
		"I (300) sigfox: 0000e840",
		"I (400) sigfox: " + packet.Encode(packet.Reading{Temperature: 21, Humidity: 40, Pressure: 1000}),
		"",
	}, "\n")

	svc := New("/dev/ttyTEST", 115200, "sigfox")
	emitter := &sliceEmitter{}

	require.NoError(t, svc.read(context.Background(), strings.NewReader(log), emitter))
	require.Len(t, emitter.packets, 2)

	assert.InDelta(t, 7.25, emitter.packets[0].Temperature, 1e-9)
	assert.InDelta(t, 21, emitter.packets[1].Temperature, 1e-9)
	assert.Equal(t, "/dev/ttyTEST", emitter.packets[0].Device)
}

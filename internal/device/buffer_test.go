package device_test

import (
	"math"
	"testing"

	"github.com/mna/sage/internal/device"
	"github.com/mna/sage/lang/vm"
	"github.com/stretchr/testify/require"
)

func TestBufferDeviceGetInt(t *testing.T) {
	d := device.NewBufferDevice("  42rest")
	v, err := d.Get(vm.Input{Mode: vm.StdinInt})
	require.NoError(t, err)
	require.EqualValues(t, 42, v)
}

func TestBufferDeviceGetFloat(t *testing.T) {
	d := device.NewBufferDevice("3.25")
	v, err := d.Get(vm.Input{Mode: vm.StdinFloat})
	require.NoError(t, err)
	require.InDelta(t, 3.25, math.Float64frombits(uint64(v)), 0.0001)
}

func TestBufferDeviceGetChar(t *testing.T) {
	d := device.NewBufferDevice("ab")
	v, err := d.Get(vm.Input{Mode: vm.StdinChar})
	require.NoError(t, err)
	require.EqualValues(t, 'a', v)
}

func TestBufferDevicePutInt(t *testing.T) {
	d := device.NewBufferDevice("")
	require.NoError(t, d.Put(-17, vm.Output{Mode: vm.StdoutInt}))
	require.Equal(t, "-17", d.OutputString())
}

func TestBufferDevicePutChar(t *testing.T) {
	d := device.NewBufferDevice("")
	require.NoError(t, d.Put(int64('x'), vm.Output{Mode: vm.StdoutChar}))
	require.Equal(t, "x", d.OutputString())
}

func TestBufferDeviceUnsupportedMode(t *testing.T) {
	d := device.NewBufferDevice("")
	_, err := d.Get(vm.Input{Mode: vm.CustomInput, Channel: 1})
	require.Error(t, err)
	require.IsType(t, &vm.UnsupportedDevice{}, err)
}

func TestBufferDeviceCallExtern(t *testing.T) {
	d := device.NewBufferDevice("")
	_, err := d.CallExtern("anything", nil)
	require.Error(t, err)
	require.IsType(t, &vm.UnsupportedDevice{}, err)
}

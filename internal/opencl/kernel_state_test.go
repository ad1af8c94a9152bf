package opencl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-kernels/internal/device"
	"github.com/23skdu/longbow-kernels/internal/status"
	"github.com/23skdu/longbow-kernels/internal/tensor"
)

func TestKernelState_Lifecycle(t *testing.T) {
	exec := &countingExecutor{HostExecutor: device.NewHostExecutor(device.DefaultHostConfig())}
	require.NoError(t, exec.Register("touch", touchProgram))

	var st KernelState
	assert.Equal(t, Unbuilt, st.State())
	assert.Nil(t, st.Kernel())

	err := st.Rebind(exec, []uint32{1, 1, 1}, []int{1}, func(*Binder) {})
	assert.ErrorIs(t, err, status.ErrCheckFailed)

	opts := BuildOptions(exec, "touch", "touch")
	require.NoError(t, st.Build(exec, "touch", "touch", opts))
	require.NoError(t, st.Build(exec, "touch", "touch", opts))
	assert.Equal(t, int32(1), exec.builds.Load())
	assert.Equal(t, ArgsStale, st.State())
	assert.Equal(t, uint32(256), st.MaxWorkGroupSize())

	out := tensor.New("out", tensor.Float32, 4)
	bind := func(b *Binder) { b.Set(out) }
	require.NoError(t, st.Rebind(exec, []uint32{4, 1, 1}, []int{4}, bind))
	assert.Equal(t, ArgsFresh, st.State())
	require.NoError(t, st.Rebind(exec, []uint32{4, 1, 1}, []int{4}, bind))
	assert.Equal(t, int32(1), exec.binds.Load())

	st.Invalidate()
	assert.Equal(t, ArgsStale, st.State())
	require.NoError(t, st.Rebind(exec, []uint32{4, 1, 1}, []int{4}, bind))
	assert.Equal(t, int32(2), exec.binds.Load())

	assert.True(t, st.ResetArgsNeeded([]int{5}))
	assert.False(t, st.ResetArgsNeeded([]int{4}))
}

func TestKernelState_FailedBindStaysStale(t *testing.T) {
	exec := device.NewHostExecutor(device.DefaultHostConfig())
	require.NoError(t, exec.Register("touch", touchProgram))
	var st KernelState
	require.NoError(t, st.Build(exec, "touch", "touch", BuildOptions(exec, "touch", "touch")))

	err := st.Rebind(exec, []uint32{1, 1, 1}, []int{1}, func(b *Binder) {
		b.Set("not an argument")
		b.Set(int32(1))
	})
	assert.ErrorIs(t, err, status.ErrDevice)
	assert.Equal(t, ArgsStale, st.State())
}

func TestKernelState_BuildFailure(t *testing.T) {
	exec := device.NewHostExecutor(device.DefaultHostConfig())
	var st KernelState
	err := st.Build(exec, "missing", "missing", nil)
	assert.ErrorIs(t, err, status.ErrDevice)
	assert.Equal(t, Unbuilt, st.State())
}

func TestBinder_BindsGlobalSizeForUniformDevices(t *testing.T) {
	cfg := device.DefaultHostConfig()
	cfg.NonUniformWorkGroups = false
	exec := device.NewHostExecutor(cfg)
	require.NoError(t, exec.Register("touch", touchProgram))
	k, err := exec.BuildKernel("touch", "touch", BuildOptions(exec, "touch", "touch"))
	require.NoError(t, err)

	b := NewBinder(exec, k, []uint32{4, 2, 1})
	assert.Equal(t, uint32(3), b.Count())
	b.Set(tensor.New("out", tensor.Float32, 8))
	assert.Equal(t, uint32(4), b.Count())
	assert.NoError(t, b.Err())
}

func TestBuildOptions(t *testing.T) {
	exec := device.NewHostExecutor(device.DefaultHostConfig())
	assert.Equal(t,
		[]string{"-Dsplit=k1", device.NonUniformWorkGroupOption, "-DDATA_TYPE=float"},
		BuildOptions(exec, "split", "k1", "", "-DDATA_TYPE=float"))

	cfg := device.DefaultHostConfig()
	cfg.NonUniformWorkGroups = false
	assert.Equal(t, []string{"-Dsplit=k1"}, BuildOptions(device.NewHostExecutor(cfg), "split", "k1"))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "unbuilt", Unbuilt.String())
	assert.Equal(t, "args-stale", ArgsStale.String())
	assert.Equal(t, "args-fresh", ArgsFresh.String())
}

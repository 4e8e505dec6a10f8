package subgraph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/graphrt/internal/cpuinfo"
	"github.com/born-ml/graphrt/internal/operator"
	"github.com/born-ml/graphrt/internal/status"
	"github.com/born-ml/graphrt/internal/tensor"
)

func newRuntime(t *testing.T, sg *Subgraph, opts RuntimeOptions) *Runtime {
	t.Helper()
	rt, err := CreateRuntime(sg, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Release() })
	return rt
}

// subtractGraph builds y = a - b with a (2,3), b (1,3) on external ids 0, 1, 2.
func subtractGraph(t *testing.T) *Subgraph {
	t.Helper()
	sg := newTestSubgraph(t, 3)
	a := mustDefine(t, sg, tensor.FP32, []int{2, 3}, 0, FlagExternalInput)
	b := mustDefine(t, sg, tensor.FP32, []int{1, 3}, 1, FlagExternalInput)
	y := mustDefine(t, sg, tensor.FP32, []int{2, 3}, 2, FlagExternalOutput)
	require.NoError(t, sg.DefineSubtract(negInf, posInf, a, b, y, 0))
	return sg
}

func TestRuntime_SubtractBroadcast(t *testing.T) {
	rt := newRuntime(t, subtractGraph(t), RuntimeOptions{})
	assert.Equal(t, []string{"subtract_nd_f32"}, rt.Operators())
	assert.Equal(t, 0, rt.Plan().Total, "no intermediates")

	out := make([]float32, 6)
	require.NoError(t, rt.Setup([]ExternalValue{
		{ID: 0, Data: tensor.Bytes([]float32{1, 2, 3, 4, 5, 6})},
		{ID: 1, Data: tensor.Bytes([]float32{1, 1, 1})},
		{ID: 2, Data: tensor.Bytes(out)},
	}))
	require.NoError(t, rt.Invoke(nil))

	assert.Equal(t, []float32{0, 1, 2, 3, 4, 5}, out)
}

func TestRuntime_SetupWithReshape(t *testing.T) {
	rt := newRuntime(t, subtractGraph(t), RuntimeOptions{})

	out := make([]float32, 12)
	require.NoError(t, rt.Setup([]ExternalValue{
		{ID: 0, Data: tensor.Bytes([]float32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}), Dims: []int{4, 3}},
		{ID: 1, Data: tensor.Bytes([]float32{0, 1, 2})},
		{ID: 2, Data: tensor.Bytes(out)},
	}))
	shape, err := rt.Shape(2)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{4, 3}, shape)

	require.NoError(t, rt.Invoke(nil))
	assert.Equal(t, []float32{0, 0, 0, 3, 3, 3, 6, 6, 6, 9, 9, 9}, out)
}

func TestRuntime_SetupRejections(t *testing.T) {
	rt := newRuntime(t, subtractGraph(t), RuntimeOptions{})
	a := tensor.Bytes(make([]float32, 6))
	b := tensor.Bytes(make([]float32, 3))
	y := tensor.Bytes(make([]float32, 6))

	tests := []struct {
		name      string
		externals []ExternalValue
		want      error
	}{
		{"unknown id", []ExternalValue{{ID: 0, Data: a}, {ID: 1, Data: b}, {ID: 2, Data: y}, {ID: 9, Data: y}}, status.ErrInvalidValueID},
		{"missing binding", []ExternalValue{{ID: 0, Data: a}, {ID: 2, Data: y}}, status.ErrInvalidParameter},
		{"bound twice", []ExternalValue{{ID: 0, Data: a}, {ID: 0, Data: a}, {ID: 1, Data: b}, {ID: 2, Data: y}}, status.ErrInvalidParameter},
		{"short buffer", []ExternalValue{{ID: 0, Data: a[:20]}, {ID: 1, Data: b}, {ID: 2, Data: y}}, status.ErrInvalidParameter},
		{"long buffer", []ExternalValue{{ID: 0, Data: a}, {ID: 1, Data: b}, {ID: 2, Data: append(y, 0)}}, status.ErrInvalidParameter},
		{"rank change", []ExternalValue{{ID: 0, Data: a, Dims: []int{6}}, {ID: 1, Data: b}, {ID: 2, Data: y}}, status.ErrInvalidParameter},
		{"reshape output", []ExternalValue{{ID: 0, Data: a}, {ID: 1, Data: b}, {ID: 2, Data: y, Dims: []int{3, 2}}}, status.ErrInvalidParameter},
		{"incompatible reshape", []ExternalValue{{ID: 0, Data: a[:16], Dims: []int{2, 2}}, {ID: 1, Data: b}, {ID: 2, Data: y}}, status.ErrInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := rt.Setup(tt.externals)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.True(t, errors.Is(rt.Invoke(nil), status.ErrInvalidState), "failed setup leaves runtime unusable")
		})
	}

	// The previous shapes survive a rejected reshape.
	shape, err := rt.Shape(0)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 3}, shape)
	require.NoError(t, rt.Setup([]ExternalValue{{ID: 0, Data: a}, {ID: 1, Data: b}, {ID: 2, Data: y}}))
	require.NoError(t, rt.Invoke(nil))
}

func TestRuntime_RejectedSetupKeepsShapes(t *testing.T) {
	rt := newRuntime(t, subtractGraph(t), RuntimeOptions{})
	b := tensor.Bytes([]float32{1, 1, 1})

	// The input reshape is valid but the output buffer still fits (2,3).
	err := rt.Setup([]ExternalValue{
		{ID: 0, Data: tensor.Bytes(make([]float32, 12)), Dims: []int{4, 3}},
		{ID: 1, Data: b},
		{ID: 2, Data: tensor.Bytes(make([]float32, 6))},
	})
	require.True(t, errors.Is(err, status.ErrInvalidParameter), "got %v", err)
	for _, id := range []uint32{0, 2} {
		shape, err := rt.Shape(id)
		require.NoError(t, err)
		assert.Equal(t, tensor.Shape{2, 3}, shape, "value %d", id)
	}

	out := make([]float32, 6)
	require.NoError(t, rt.Setup([]ExternalValue{
		{ID: 0, Data: tensor.Bytes([]float32{1, 2, 3, 4, 5, 6})},
		{ID: 1, Data: b},
		{ID: 2, Data: tensor.Bytes(out)},
	}))
	require.NoError(t, rt.Invoke(nil))
	assert.Equal(t, []float32{0, 1, 2, 3, 4, 5}, out)
}

func TestRuntime_RejectedSetupKeepsPlan(t *testing.T) {
	sg, temps := chainGraph(t, 2)
	rt := newRuntime(t, sg, RuntimeOptions{})
	before := rt.Plan()

	err := rt.Setup([]ExternalValue{
		{ID: 0, Data: tensor.Bytes(make([]float32, 32)), Dims: []int{8, 4}},
		{ID: 1, Data: tensor.Bytes(make([]float32, 4))},
		{ID: 2, Data: tensor.Bytes(make([]float32, 8))},
	})
	require.True(t, errors.Is(err, status.ErrInvalidParameter), "got %v", err)
	assert.Equal(t, before, rt.Plan())
	shape, err := rt.Shape(temps[1])
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 4}, shape)

	out := make([]float32, 8)
	require.NoError(t, rt.Setup([]ExternalValue{
		{ID: 0, Data: tensor.Bytes([]float32{1, 2, 3, 4, -5, -6, 7, 8})},
		{ID: 1, Data: tensor.Bytes([]float32{1, 0, 1, 0})},
		{ID: 2, Data: tensor.Bytes(out)},
	}))
	require.NoError(t, rt.Invoke(nil))
	assert.Equal(t, []float32{3, 4, 7, 8, -9, -10, 10, 10}, out)
}

func TestRuntime_Lifecycle(t *testing.T) {
	rt, err := CreateRuntime(subtractGraph(t), RuntimeOptions{})
	require.NoError(t, err)

	assert.True(t, errors.Is(rt.Invoke(nil), status.ErrInvalidState))

	require.NoError(t, rt.Release())
	require.NoError(t, rt.Release(), "release is idempotent")

	err = rt.Setup(nil)
	assert.True(t, errors.Is(err, status.ErrInvalidState))
	assert.True(t, errors.Is(rt.Invoke(nil), status.ErrInvalidState))
}

func TestRuntime_ClosedEngine(t *testing.T) {
	sg := subtractGraph(t)
	sg.Engine().Close()
	_, err := CreateRuntime(sg, RuntimeOptions{})
	assert.True(t, errors.Is(err, status.ErrUninitialized))

	_, err = CreateRuntime(nil, RuntimeOptions{})
	assert.True(t, errors.Is(err, status.ErrInvalidParameter))
}

// chainGraph builds y = clamp(((a + b) * c) - b, lo, hi) with three intermediates.
func chainGraph(t *testing.T, rows int) (*Subgraph, [3]uint32) {
	t.Helper()
	sg := newTestSubgraph(t, 3)
	a := mustDefine(t, sg, tensor.FP32, []int{rows, 4}, 0, FlagExternalInput)
	b := mustDefine(t, sg, tensor.FP32, []int{1, 4}, 1, FlagExternalInput)
	y := mustDefine(t, sg, tensor.FP32, []int{rows, 4}, 2, FlagExternalOutput)
	c, err := sg.DefineTensorValue(tensor.FP32, []int{4}, tensor.Bytes([]float32{2, 2, 2, 2}), InvalidValueID, 0)
	require.NoError(t, err)
	t1 := mustDefine(t, sg, tensor.FP32, []int{rows, 4}, InvalidValueID, 0)
	t2 := mustDefine(t, sg, tensor.FP32, []int{rows, 4}, InvalidValueID, 0)
	t3 := mustDefine(t, sg, tensor.FP32, []int{rows, 4}, InvalidValueID, 0)

	require.NoError(t, sg.DefineAdd(negInf, posInf, a, b, t1, 0))
	require.NoError(t, sg.DefineMultiply(negInf, posInf, t1, c, t2, 0))
	require.NoError(t, sg.DefineSubtract(negInf, posInf, t2, b, t3, 0))
	require.NoError(t, sg.DefineClamp(-10, 10, t3, y, 0))
	return sg, [3]uint32{t1, t2, t3}
}

func TestRuntime_ChainReusesMemory(t *testing.T) {
	sg, temps := chainGraph(t, 2)
	rt := newRuntime(t, sg, RuntimeOptions{})

	plan := rt.Plan()
	require.Len(t, plan.Records, 3)
	r1, ok := plan.Record(temps[0])
	require.True(t, ok)
	r3, ok := plan.Record(temps[2])
	require.True(t, ok)
	assert.Equal(t, r1.Offset, r3.Offset, "disjoint lifetimes share memory")
	assert.Less(t, plan.Total, plan.Sum)
	assert.Equal(t, 0, plan.Total%allocationAlignment)

	out := make([]float32, 8)
	require.NoError(t, rt.Setup([]ExternalValue{
		{ID: 0, Data: tensor.Bytes([]float32{1, 2, 3, 4, -5, -6, 7, 8})},
		{ID: 1, Data: tensor.Bytes([]float32{1, 0, 1, 0})},
		{ID: 2, Data: tensor.Bytes(out)},
	}))
	require.NoError(t, rt.Invoke(nil))
	// ((a+b)*2)-b
	assert.Equal(t, []float32{3, 4, 7, 8, -9, -10, 10, 10}, out)
}

func TestRuntime_ReshapeGrowsArena(t *testing.T) {
	sg, _ := chainGraph(t, 1)
	rt := newRuntime(t, sg, RuntimeOptions{})
	before := rt.Plan().Total

	const rows = 64
	in := make([]float32, rows*4)
	for i := range in {
		in[i] = float32(i % 3)
	}
	out := make([]float32, rows*4)
	require.NoError(t, rt.Setup([]ExternalValue{
		{ID: 0, Data: tensor.Bytes(in), Dims: []int{rows, 4}},
		{ID: 1, Data: tensor.Bytes([]float32{0, 0, 0, 0})},
		{ID: 2, Data: tensor.Bytes(out)},
	}))
	after := rt.Plan().Total
	assert.Greater(t, after, before)
	assert.GreaterOrEqual(t, len(rt.arena), after)

	require.NoError(t, rt.Invoke(nil))
	for i := range out {
		assert.Equal(t, in[i]*2, out[i], "element %d", i)
	}
}

func TestRuntime_ParallelMatchesSequential(t *testing.T) {
	const rows = 1500
	sg, _ := chainGraph(t, rows)
	rt := newRuntime(t, sg, RuntimeOptions{})

	in := make([]float32, rows*4)
	for i := range in {
		in[i] = float32(i%17) - 8
	}
	b := []float32{0.5, -0.5, 1, -1}
	run := func(parallel bool) []float32 {
		out := make([]float32, rows*4)
		require.NoError(t, rt.Setup([]ExternalValue{
			{ID: 0, Data: tensor.Bytes(in)},
			{ID: 1, Data: tensor.Bytes(b)},
			{ID: 2, Data: tensor.Bytes(out)},
		}))
		if parallel {
			require.NoError(t, rt.Invoke(sg.Engine().Pool()))
		} else {
			require.NoError(t, rt.Invoke(nil))
		}
		return out
	}
	assert.Equal(t, run(false), run(true))
}

func TestCreateRuntime_Rejections(t *testing.T) {
	t.Run("declared shape contradicts inference", func(t *testing.T) {
		sg := newTestSubgraph(t, 3)
		a := mustDefine(t, sg, tensor.FP32, []int{2, 3}, 0, FlagExternalInput)
		b := mustDefine(t, sg, tensor.FP32, []int{1, 3}, 1, FlagExternalInput)
		y := mustDefine(t, sg, tensor.FP32, []int{3, 3}, 2, FlagExternalOutput)
		require.NoError(t, sg.DefineAdd(negInf, posInf, a, b, y, 0))
		_, err := CreateRuntime(sg, RuntimeOptions{})
		assert.True(t, errors.Is(err, status.ErrInvalidParameter), "got %v", err)
	})
	t.Run("incompatible broadcast", func(t *testing.T) {
		sg := newTestSubgraph(t, 3)
		a := mustDefine(t, sg, tensor.FP32, []int{2, 3}, 0, FlagExternalInput)
		b := mustDefine(t, sg, tensor.FP32, []int{2, 4}, 1, FlagExternalInput)
		y := mustDefine(t, sg, tensor.FP32, []int{2, 3}, 2, FlagExternalOutput)
		require.NoError(t, sg.DefineAdd(negInf, posInf, a, b, y, 0))
		_, err := CreateRuntime(sg, RuntimeOptions{})
		assert.True(t, errors.Is(err, status.ErrInvalidParameter), "got %v", err)
	})
	t.Run("read before produced", func(t *testing.T) {
		sg := newTestSubgraph(t, 2)
		a := mustDefine(t, sg, tensor.FP32, []int{4}, 0, FlagExternalInput)
		y := mustDefine(t, sg, tensor.FP32, []int{4}, 1, FlagExternalOutput)
		tmp := mustDefine(t, sg, tensor.FP32, []int{4}, InvalidValueID, 0)
		require.NoError(t, sg.DefineClamp(0, 1, tmp, y, 0))
		require.NoError(t, sg.DefineClamp(0, 1, a, tmp, 0))
		_, err := CreateRuntime(sg, RuntimeOptions{})
		assert.True(t, errors.Is(err, status.ErrInvalidParameter), "got %v", err)
	})
	t.Run("write graph input", func(t *testing.T) {
		sg := newTestSubgraph(t, 2)
		a := mustDefine(t, sg, tensor.FP32, []int{4}, 0, FlagExternalInput)
		b := mustDefine(t, sg, tensor.FP32, []int{4}, 1, FlagExternalInput)
		require.NoError(t, sg.DefineClamp(0, 1, a, b, 0))
		_, err := CreateRuntime(sg, RuntimeOptions{})
		assert.True(t, errors.Is(err, status.ErrInvalidParameter), "got %v", err)
	})
	t.Run("written twice", func(t *testing.T) {
		sg := newTestSubgraph(t, 2)
		a := mustDefine(t, sg, tensor.FP32, []int{4}, 0, FlagExternalInput)
		y := mustDefine(t, sg, tensor.FP32, []int{4}, 1, FlagExternalOutput)
		require.NoError(t, sg.DefineClamp(0, 1, a, y, 0))
		require.NoError(t, sg.DefineClamp(0, 2, a, y, 0))
		_, err := CreateRuntime(sg, RuntimeOptions{})
		assert.True(t, errors.Is(err, status.ErrInvalidParameter), "got %v", err)
	})
	t.Run("mixed layouts", func(t *testing.T) {
		sg := newTestSubgraph(t, 3)
		a := mustDefine(t, sg, tensor.FP32, []int{1, 2, 2, 2}, 0, FlagExternalInput)
		b := mustDefine(t, sg, tensor.FP32, []int{1, 2, 2, 2}, 1, FlagExternalInput)
		y := mustDefine(t, sg, tensor.FP32, []int{1, 2, 2, 2}, 2, FlagExternalOutput)
		require.NoError(t, sg.SetLayout(a, tensor.LayoutChannelFirst))
		require.NoError(t, sg.DefineAdd(negInf, posInf, a, b, y, 0))
		_, err := CreateRuntime(sg, RuntimeOptions{})
		assert.True(t, errors.Is(err, status.ErrInvalidParameter), "got %v", err)
	})
	t.Run("fp16 without hardware support", func(t *testing.T) {
		sg, err := New(newTestEngine(t, cpuinfo.Generic()), 3)
		require.NoError(t, err)
		a := mustDefine(t, sg, tensor.FP16, []int{4}, 0, FlagExternalInput)
		b := mustDefine(t, sg, tensor.FP16, []int{4}, 1, FlagExternalInput)
		y := mustDefine(t, sg, tensor.FP16, []int{4}, 2, FlagExternalOutput)
		require.NoError(t, sg.DefineAdd(negInf, posInf, a, b, y, 0))

		rt, err := CreateRuntime(sg, RuntimeOptions{})
		assert.Nil(t, rt)
		assert.True(t, errors.Is(err, status.ErrUnsupportedHardware), "got %v", err)
		assert.Contains(t, err.Error(), "create node #0 (Add)")
	})
}

func TestRuntime_ChannelFirst(t *testing.T) {
	sg := newTestSubgraph(t, 4)
	// Logical NCHW (1,3,1,2): stored as NHWC (1,1,2,3).
	x := mustDefine(t, sg, tensor.FP32, []int{1, 3, 1, 2}, 0, FlagExternalInput)
	bias := mustDefine(t, sg, tensor.FP32, []int{1, 3, 1, 1}, 1, FlagExternalInput)
	sum := mustDefine(t, sg, tensor.FP32, []int{1, 3, 1, 2}, 2, FlagExternalOutput)
	pooled := mustDefine(t, sg, tensor.FP32, []int{1, 3, 1, 1}, 3, FlagExternalOutput)
	for _, id := range []uint32{x, bias, sum, pooled} {
		require.NoError(t, sg.SetLayout(id, tensor.LayoutChannelFirst))
	}
	require.NoError(t, sg.DefineAdd(negInf, posInf, x, bias, sum, 0))
	require.NoError(t, sg.DefineGlobalAveragePooling2D(negInf, posInf, sum, pooled, 0))

	rt := newRuntime(t, sg, RuntimeOptions{})
	assert.Equal(t, []string{"add_nd_f32", "global_average_pooling_nwc_f32"}, rt.Operators())

	sumOut := make([]float32, 6)
	poolOut := make([]float32, 3)
	require.NoError(t, rt.Setup([]ExternalValue{
		{ID: 0, Data: tensor.Bytes([]float32{1, 2, 3, 4, 5, 6})},
		{ID: 1, Data: tensor.Bytes([]float32{10, 20, 30})},
		{ID: 2, Data: tensor.Bytes(sumOut)},
		{ID: 3, Data: tensor.Bytes(poolOut)},
	}))
	require.NoError(t, rt.Invoke(nil))

	assert.Equal(t, []float32{11, 22, 33, 14, 25, 36}, sumOut)
	assert.Equal(t, []float32{12.5, 23.5, 34.5}, poolOut)

	shape, err := rt.Shape(pooled)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 3, 1, 1}, shape, "shapes stay logical")
}

func TestRuntime_QuantizedClamp(t *testing.T) {
	sg := newTestSubgraph(t, 2)
	in := mustDefineQ(t, sg, tensor.QUint8, 128, 0.1, []int{3}, 0, FlagExternalInput)
	out := mustDefineQ(t, sg, tensor.QUint8, 128, 0.1, []int{3}, 1, FlagExternalOutput)
	require.NoError(t, sg.DefineClamp(0, 6, in, out, 0))

	rt := newRuntime(t, sg, RuntimeOptions{})
	assert.Equal(t, []string{"clamp_nc_qu8"}, rt.Operators())
	lo, hi := rt.ops[0].op.(*operator.Clamp).QuantizedRange()
	assert.Equal(t, int32(128), lo)
	assert.Equal(t, int32(188), hi)

	dst := make([]uint8, 3)
	require.NoError(t, rt.Setup([]ExternalValue{
		{ID: 0, Data: []byte{100, 130, 250}},
		{ID: 1, Data: dst},
	}))
	require.NoError(t, rt.Invoke(nil))
	assert.Equal(t, []uint8{128, 130, 188}, dst)
}

func TestRuntime_QuantizedAdd(t *testing.T) {
	sg := newTestSubgraph(t, 3)
	a := mustDefineQ(t, sg, tensor.QUint8, 0, 0.5, []int{2}, 0, FlagExternalInput)
	b := mustDefineQ(t, sg, tensor.QUint8, 0, 0.5, []int{2}, 1, FlagExternalInput)
	y := mustDefineQ(t, sg, tensor.QUint8, 0, 0.5, []int{2}, 2, FlagExternalOutput)
	require.NoError(t, sg.DefineAdd(negInf, posInf, a, b, y, 0))

	rt := newRuntime(t, sg, RuntimeOptions{})
	dst := make([]uint8, 2)
	require.NoError(t, rt.Setup([]ExternalValue{
		{ID: 0, Data: []byte{2, 4}},
		{ID: 1, Data: []byte{6, 8}},
		{ID: 2, Data: dst},
	}))
	require.NoError(t, rt.Invoke(nil))
	assert.Equal(t, []uint8{8, 12}, dst)
}

func TestRuntime_ConvertThroughFP16(t *testing.T) {
	sg := newTestSubgraph(t, 2)
	x := mustDefine(t, sg, tensor.FP32, []int{2}, 0, FlagExternalInput)
	y := mustDefine(t, sg, tensor.FP32, []int{2}, 1, FlagExternalOutput)
	h := mustDefine(t, sg, tensor.FP16, []int{2}, InvalidValueID, 0)
	h2 := mustDefine(t, sg, tensor.FP16, []int{2}, InvalidValueID, 0)
	require.NoError(t, sg.DefineConvert(x, h, 0))
	require.NoError(t, sg.DefineAdd(negInf, posInf, h, h, h2, 0))
	require.NoError(t, sg.DefineConvert(h2, y, 0))

	rt := newRuntime(t, sg, RuntimeOptions{})
	out := make([]float32, 2)
	require.NoError(t, rt.Setup([]ExternalValue{
		{ID: 0, Data: tensor.Bytes([]float32{1.5, -2.25})},
		{ID: 1, Data: tensor.Bytes(out)},
	}))
	require.NoError(t, rt.Invoke(nil))
	assert.Equal(t, []float32{3, -4.5}, out)
}

func TestRuntime_TransposeCodeCache(t *testing.T) {
	in := make([]float32, 2*3*4)
	for i := range in {
		in[i] = float32(i)
	}
	// out[k][i][j] = in[i][j][k]
	want := make([]float32, len(in))
	for i := 0; i < 2; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 4; k++ {
				want[k*6+i*3+j] = in[i*12+j*4+k]
			}
		}
	}

	for _, tc := range []struct {
		name      string
		opts      RuntimeOptions
		generated bool
	}{
		{"code cache", RuntimeOptions{}, true},
		{"heap", RuntimeOptions{DisableCodeGen: true}, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			sg := newTestSubgraph(t, 2)
			x := mustDefine(t, sg, tensor.FP32, []int{2, 3, 4}, 0, FlagExternalInput)
			y := mustDefine(t, sg, tensor.FP32, []int{4, 2, 3}, 1, FlagExternalOutput)
			require.NoError(t, sg.DefineStaticTranspose([]int{2, 0, 1}, x, y, 0))

			rt := newRuntime(t, sg, tc.opts)
			assert.Equal(t, []string{"transpose_nd_f32"}, rt.Operators())
			assert.Equal(t, tc.generated, rt.ops[0].op.(*operator.Transpose).Generated())
			assert.Equal(t, tc.generated, rt.cache != nil)

			out := make([]float32, len(in))
			require.NoError(t, rt.Setup([]ExternalValue{
				{ID: 0, Data: tensor.Bytes(in)},
				{ID: 1, Data: tensor.Bytes(out)},
			}))
			require.NoError(t, rt.Invoke(sg.Engine().Pool()))
			assert.Equal(t, want, out)
		})
	}
}

func TestRuntime_TransposeRejectsChannelFirst(t *testing.T) {
	sg := newTestSubgraph(t, 2)
	x := mustDefine(t, sg, tensor.FP32, []int{1, 2, 3, 4}, 0, FlagExternalInput)
	y := mustDefine(t, sg, tensor.FP32, []int{1, 3, 4, 2}, 1, FlagExternalOutput)
	require.NoError(t, sg.SetLayout(x, tensor.LayoutChannelFirst))
	require.NoError(t, sg.SetLayout(y, tensor.LayoutChannelFirst))
	require.NoError(t, sg.DefineStaticTranspose([]int{0, 2, 3, 1}, x, y, 0))

	_, err := CreateRuntime(sg, RuntimeOptions{})
	assert.True(t, errors.Is(err, status.ErrInvalidParameter), "got %v", err)
}

func TestRuntime_Shape(t *testing.T) {
	rt := newRuntime(t, subtractGraph(t), RuntimeOptions{})
	_, err := rt.Shape(42)
	assert.True(t, errors.Is(err, status.ErrInvalidValueID))
	assert.NotEqual(t, rt.ID().String(), "")
}

func TestRuntime_ZeroSizeTensors(t *testing.T) {
	tests := []struct {
		name  string
		opts  RuntimeOptions
		build func(t *testing.T) (*Subgraph, []ExternalValue, func(t *testing.T))
	}{
		{"broadcast output", RuntimeOptions{}, func(t *testing.T) (*Subgraph, []ExternalValue, func(t *testing.T)) {
			sg := newTestSubgraph(t, 3)
			a := mustDefine(t, sg, tensor.FP32, []int{2, 0, 3}, 0, FlagExternalInput)
			b := mustDefine(t, sg, tensor.FP32, []int{1, 3}, 1, FlagExternalInput)
			y := mustDefine(t, sg, tensor.FP32, []int{2, 0, 3}, 2, FlagExternalOutput)
			require.NoError(t, sg.DefineAdd(negInf, posInf, a, b, y, 0))
			return sg, []ExternalValue{{ID: 0}, {ID: 1, Data: tensor.Bytes([]float32{1, 2, 3})}, {ID: 2}}, nil
		}},
		{"chain intermediates", RuntimeOptions{}, func(t *testing.T) (*Subgraph, []ExternalValue, func(t *testing.T)) {
			sg, _ := chainGraph(t, 0)
			return sg, []ExternalValue{{ID: 0}, {ID: 1, Data: tensor.Bytes([]float32{1, 2, 3, 4})}, {ID: 2}}, nil
		}},
		{"convert intermediate", RuntimeOptions{}, func(t *testing.T) (*Subgraph, []ExternalValue, func(t *testing.T)) {
			sg := newTestSubgraph(t, 2)
			x := mustDefine(t, sg, tensor.FP32, []int{0, 3}, 0, FlagExternalInput)
			y := mustDefine(t, sg, tensor.FP32, []int{0, 3}, 1, FlagExternalOutput)
			h := mustDefine(t, sg, tensor.FP16, []int{0, 3}, InvalidValueID, 0)
			require.NoError(t, sg.DefineConvert(x, h, 0))
			require.NoError(t, sg.DefineConvert(h, y, 0))
			return sg, []ExternalValue{{ID: 0}, {ID: 1}}, nil
		}},
		{"transpose output", RuntimeOptions{}, func(t *testing.T) (*Subgraph, []ExternalValue, func(t *testing.T)) {
			sg := newTestSubgraph(t, 2)
			x := mustDefine(t, sg, tensor.FP32, []int{2, 0, 3}, 0, FlagExternalInput)
			y := mustDefine(t, sg, tensor.FP32, []int{3, 0, 2}, 1, FlagExternalOutput)
			require.NoError(t, sg.DefineStaticTranspose([]int{2, 1, 0}, x, y, 0))
			return sg, []ExternalValue{{ID: 0}, {ID: 1}}, nil
		}},
		{"transpose output on heap", RuntimeOptions{DisableCodeGen: true}, func(t *testing.T) (*Subgraph, []ExternalValue, func(t *testing.T)) {
			sg := newTestSubgraph(t, 2)
			x := mustDefine(t, sg, tensor.FP32, []int{2, 0, 3}, 0, FlagExternalInput)
			y := mustDefine(t, sg, tensor.FP32, []int{3, 0, 2}, 1, FlagExternalOutput)
			require.NoError(t, sg.DefineStaticTranspose([]int{2, 1, 0}, x, y, 0))
			return sg, []ExternalValue{{ID: 0}, {ID: 1}}, nil
		}},
		{"transpose intermediate pooled", RuntimeOptions{}, func(t *testing.T) (*Subgraph, []ExternalValue, func(t *testing.T)) {
			sg := newTestSubgraph(t, 2)
			x := mustDefine(t, sg, tensor.FP32, []int{1, 0, 2, 3}, 0, FlagExternalInput)
			y := mustDefine(t, sg, tensor.FP32, []int{1, 1, 1, 3}, 1, FlagExternalOutput)
			tmp := mustDefine(t, sg, tensor.FP32, []int{1, 2, 0, 3}, InvalidValueID, 0)
			require.NoError(t, sg.DefineStaticTranspose([]int{0, 2, 1, 3}, x, tmp, 0))
			require.NoError(t, sg.DefineGlobalAveragePooling2D(negInf, posInf, tmp, y, 0))
			out := []float32{7, 7, 7}
			return sg, []ExternalValue{{ID: 0}, {ID: 1, Data: tensor.Bytes(out)}}, func(t *testing.T) {
				assert.Equal(t, []float32{0, 0, 0}, out)
			}
		}},
		{"pooled without channels", RuntimeOptions{}, func(t *testing.T) (*Subgraph, []ExternalValue, func(t *testing.T)) {
			sg := newTestSubgraph(t, 2)
			x := mustDefine(t, sg, tensor.FP32, []int{1, 2, 2, 0}, 0, FlagExternalInput)
			y := mustDefine(t, sg, tensor.FP32, []int{1, 1, 1, 0}, 1, FlagExternalOutput)
			tmp := mustDefine(t, sg, tensor.FP32, []int{1, 1, 1, 0}, InvalidValueID, 0)
			require.NoError(t, sg.DefineGlobalAveragePooling2D(negInf, posInf, x, tmp, 0))
			require.NoError(t, sg.DefineClamp(-1, 1, tmp, y, 0))
			return sg, []ExternalValue{{ID: 0}, {ID: 1}}, nil
		}},
		{"quantized pooled without rows", RuntimeOptions{}, func(t *testing.T) (*Subgraph, []ExternalValue, func(t *testing.T)) {
			sg := newTestSubgraph(t, 2)
			x := mustDefineQ(t, sg, tensor.QUint8, 100, 0.25, []int{2, 0, 0, 2}, 0, FlagExternalInput)
			y := mustDefineQ(t, sg, tensor.QUint8, 100, 0.25, []int{2, 1, 1, 2}, 1, FlagExternalOutput)
			require.NoError(t, sg.DefineGlobalAveragePooling2D(negInf, posInf, x, y, 0))
			out := []uint8{1, 2, 3, 4}
			return sg, []ExternalValue{{ID: 0}, {ID: 1, Data: out}}, func(t *testing.T) {
				assert.Equal(t, []uint8{100, 100, 100, 100}, out)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sg, externals, check := tt.build(t)
			rt := newRuntime(t, sg, tt.opts)
			require.NoError(t, rt.Setup(externals))
			require.NoError(t, rt.Invoke(nil))
			require.NoError(t, rt.Invoke(sg.Engine().Pool()))
			if check != nil {
				check(t)
			}
		})
	}
}

func TestRuntime_ReshapeToEmpty(t *testing.T) {
	sg, temps := chainGraph(t, 2)
	rt := newRuntime(t, sg, RuntimeOptions{})
	b := tensor.Bytes([]float32{1, 0, 1, 0})

	require.NoError(t, rt.Setup([]ExternalValue{
		{ID: 0, Dims: []int{0, 4}},
		{ID: 1, Data: b},
		{ID: 2},
	}))
	shape, err := rt.Shape(temps[2])
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{0, 4}, shape)
	require.NoError(t, rt.Invoke(sg.Engine().Pool()))

	out := make([]float32, 8)
	require.NoError(t, rt.Setup([]ExternalValue{
		{ID: 0, Data: tensor.Bytes([]float32{1, 2, 3, 4, -5, -6, 7, 8}), Dims: []int{2, 4}},
		{ID: 1, Data: b},
		{ID: 2, Data: tensor.Bytes(out)},
	}))
	require.NoError(t, rt.Invoke(nil))
	assert.Equal(t, []float32{3, 4, 7, 8, -9, -10, 10, 10}, out)
}

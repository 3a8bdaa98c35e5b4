package fl

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Artfain/triad-fedchain/core"
)

type modelSink struct {
	got core.Parameters
}

func (m *modelSink) SetGlobalModel(p core.Parameters) { m.got = p }

func TestFedAvgAveragesIntoGlobal(t *testing.T) {
	agg := NewFedAvg(core.Parameters{"w": {Shape: []int{2}, Data: []float64{1, 1}}})
	sink := &modelSink{}
	agg.Register(sink)

	require.NoError(t, agg.ReceiveUpdate("a", core.MaskedUpdate{"w": {2, 4}}))
	require.NoError(t, agg.ReceiveUpdate("b", core.MaskedUpdate{"w": {4, 8}}))
	require.Len(t, agg.Updates(), 2)

	global := agg.Close()
	require.Equal(t, []float64{4, 7}, global["w"].Data)
	require.Equal(t, global, sink.got)
	require.Empty(t, agg.Updates())
	require.Equal(t, global, agg.Global())
}

func TestFedAvgRejectsDuplicateUpdate(t *testing.T) {
	agg := NewFedAvg(core.Parameters{})
	require.NoError(t, agg.ReceiveUpdate("a", core.MaskedUpdate{"w": {1}}))
	require.Error(t, agg.ReceiveUpdate("a", core.MaskedUpdate{"w": {2}}))

	// a new round accepts the node again
	agg.Close()
	require.NoError(t, agg.ReceiveUpdate("a", core.MaskedUpdate{"w": {2}}))
}

func TestFedAvgNewParameterAndWrongLength(t *testing.T) {
	agg := NewFedAvg(core.Parameters{"w": {Shape: []int{1}, Data: []float64{0}}})
	require.NoError(t, agg.ReceiveUpdate("a", core.MaskedUpdate{"w": {1, 2}, "b": {3}}))
	require.NoError(t, agg.ReceiveUpdate("b", core.MaskedUpdate{"w": {5}}))

	global := agg.Close()
	require.Equal(t, []float64{5}, global["w"].Data)
	require.Equal(t, []int{1}, global["b"].Shape)
	require.Equal(t, []float64{3}, global["b"].Data)
}

func TestFedAvgEmptyRoundKeepsModel(t *testing.T) {
	initial := core.Parameters{"w": {Shape: []int{1}, Data: []float64{2}}}
	agg := NewFedAvg(initial)
	require.Equal(t, initial, agg.Close())
}

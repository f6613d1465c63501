package sched

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPushPopFIFO(t *testing.T) {
	w := NewWorker(0)
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		w.Enqueue(NewTask(func() { order = append(order, i) }))
	}
	require.Equal(t, 3, w.Len())

	for i := 0; i < 3; i++ {
		require.True(t, w.RunOne())
	}
	assert.False(t, w.RunOne())
	assert.Equal(t, []int{0, 1, 2}, order)
	assert.Equal(t, 0, w.Len())
}

func TestInjectorTryStealEmpty(t *testing.T) {
	in := NewInjector()
	_, err := in.TrySteal()
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestInjectorStealerDrainsToWorker(t *testing.T) {
	in := NewInjector()
	var ran []int
	for i := 0; i < 4; i++ {
		i := i
		in.Push(NewTask(func() { ran = append(ran, i) }))
	}

	st, err := in.TrySteal()
	require.NoError(t, err)
	require.Equal(t, 4, st.InitialTaskCount())

	dst := NewWorker(1)
	n := st.SpawnN(dst, 2)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, dst.Len())

	st.SpawnOne(dst)
	assert.Equal(t, 3, dst.Len())
}

func TestStealerSpawnHalfRoundsUp(t *testing.T) {
	in := NewInjector()
	for i := 0; i < 5; i++ {
		in.Push(NewTask(func() {}))
	}
	st, err := in.TrySteal()
	require.NoError(t, err)

	dst := NewWorker(1)
	n := st.SpawnHalf(dst)
	assert.Equal(t, 3, n) // ceil(5/2) == 3
	assert.Equal(t, 3, dst.Len())
}

func TestTrySecondStealerBusy(t *testing.T) {
	in := NewInjector()
	in.Push(NewTask(func() {}))

	st1, err := in.TrySteal()
	require.NoError(t, err)
	defer st1.Release()

	_, err = in.TrySteal()
	assert.ErrorIs(t, err, ErrBusy)
}

func TestStealerReleaseAllowsAnotherStealer(t *testing.T) {
	in := NewInjector()
	in.Push(NewTask(func() {}))

	st1, err := in.TrySteal()
	require.NoError(t, err)
	st1.Release()

	st2, err := in.TrySteal()
	require.NoError(t, err)
	defer st2.Release()
}

func TestWorkerToWorkerSteal(t *testing.T) {
	src := NewWorker(0)
	dst := NewWorker(1)
	for i := 0; i < 4; i++ {
		src.Enqueue(NewTask(func() {}))
	}

	st, err := TryStealFrom(src)
	require.NoError(t, err)
	defer st.Release()
	st.SpawnHalf(dst)

	assert.Equal(t, 2, src.Len())
	assert.Equal(t, 2, dst.Len())
}

package testutil

import (
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrace_SeqIsMonotonic(t *testing.T) {
	tr := NewTrace()

	assert.Equal(t, int64(1), tr.Add("a", ""))
	assert.Equal(t, int64(2), tr.Add("b", "x"))
	assert.Equal(t, []string{"a", "b"}, tr.Kinds())
	assert.Equal(t, "001 a\n002 b x\n", tr.Text())

	tr.Reset()
	assert.Equal(t, int64(1), tr.Add("c", ""))
}

func TestTrace_NilDiscards(t *testing.T) {
	var tr *Trace
	assert.Equal(t, int64(0), tr.Add("a", ""))
}

func TestTrace_ConcurrentAdds(t *testing.T) {
	tr := NewTrace()
	const n = 50

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			tr.Add("k", "")
		}()
	}
	wg.Wait()

	events := tr.Events()
	require.Len(t, events, n)
	for i, e := range events {
		assert.Equal(t, int64(i+1), e.Seq)
	}
}

func TestTrace_Filter(t *testing.T) {
	tr := NewTrace()
	tr.Add(KindSortStarted, "")
	tr.Add(KindLoadOrder, "[a]")
	tr.Add(KindSortStarted, "")

	assert.Equal(t, 2, tr.Count(KindSortStarted))
	assert.Len(t, tr.Filter(KindLoadOrder), 1)
}

func TestFakeFS(t *testing.T) {
	fs := NewFakeFS()
	m0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := fs.Stat("/u.yaml")
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	fs.Touch("/u.yaml", m0)
	got, err := fs.Stat("/u.yaml")
	require.NoError(t, err)
	assert.True(t, got.Equal(m0))

	fs.Remove("/u.yaml")
	_, err = fs.Stat("/u.yaml")
	assert.Error(t, err)
	assert.Equal(t, 3, fs.Stats())
}

func TestFakeEngine_Defaults(t *testing.T) {
	tr := NewTrace()
	e := NewFakeEngine("g", tr)

	got, err := e.Sort(t.Context(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)

	updated, err := e.UpdateMasterlist(t.Context(), "/m", "url", "v0.10")
	require.NoError(t, err)
	assert.True(t, updated)

	updated, err = e.UpdateMasterlist(t.Context(), "/m", "url", "v0.10")
	require.NoError(t, err)
	assert.False(t, updated)

	assert.Equal(t, []string{KindSortStarted, KindSortFinished, KindUpdateStarted, KindUpdateFinished, KindUpdateStarted, KindUpdateFinished}, tr.Kinds())
}

func TestFakeEngine_UpdateFailsLimitedTimes(t *testing.T) {
	e := NewFakeEngine("g", nil)
	e.SetUpdateError(errors.New("offline"), 1)

	_, err := e.UpdateMasterlist(t.Context(), "/m", "url", "b")
	require.Error(t, err)
	_, err = e.UpdateMasterlist(t.Context(), "/m", "url", "b")
	require.NoError(t, err)
}

func TestFakeFactory(t *testing.T) {
	f := NewFakeFactory(nil)
	f.Fail("bad", errors.New("boom"))

	eng, err := f.New("good", "", "")
	require.NoError(t, err)
	assert.Same(t, f.Engine("good"), eng)

	_, err = f.New("bad", "", "")
	require.Error(t, err)
	assert.Equal(t, []string{"good", "bad"}, f.Created())
}

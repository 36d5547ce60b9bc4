package endpoint

import (
	"net/netip"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistrySnapshotAndStore(t *testing.T) {
	first := NewSet(New(netip.MustParseAddrPort("127.0.0.1:26000")))
	r := NewRegistry(first)

	snap := r.Snapshot()
	require.Equal(t, 1, snap.Len())

	second := NewSet(
		New(netip.MustParseAddrPort("127.0.0.1:26001")),
		New(netip.MustParseAddrPort("127.0.0.1:26002")),
	)
	r.Store(second)

	// The old snapshot is unaffected by the swap.
	assert.Equal(t, 1, snap.Len())
	assert.Equal(t, 2, r.Snapshot().Len())
}

func TestRegistryConcurrentReadersSeeWholeSets(t *testing.T) {
	r := NewRegistry(NewSet(New(netip.MustParseAddrPort("127.0.0.1:26000"))))

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				n := r.Snapshot().Len()
				// Sets are swapped wholesale: readers only ever see one
				// of the two complete sizes.
				if n != 1 && n != 3 {
					t.Errorf("saw partial set of %d endpoints", n)
					return
				}
			}
		}()
	}

	three := NewSet(
		New(netip.MustParseAddrPort("127.0.0.1:26001")),
		New(netip.MustParseAddrPort("127.0.0.1:26002")),
		New(netip.MustParseAddrPort("127.0.0.1:26003")),
	)
	one := NewSet(New(netip.MustParseAddrPort("127.0.0.1:26000")))
	for i := 0; i < 1000; i++ {
		r.Store(three)
		r.Store(one)
	}

	close(stop)
	wg.Wait()
}

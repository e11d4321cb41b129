package store_test

import (
	"testing"

	"github.com/warp/frontdesk/core"
	"github.com/warp/frontdesk/core/store"
	"github.com/warp/frontdesk/core/store/storetest"
)

func TestMemory_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) core.TxStore {
		return store.NewMemory()
	})
}

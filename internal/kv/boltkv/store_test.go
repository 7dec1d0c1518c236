package boltkv

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fgr-araujo/nebula/internal/kv/kvtest"
)

func TestStoreConformance(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "meta.db"))
	require.NoError(t, err)
	defer store.Close()

	kvtest.Run(t, store)
}

package supervisor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadServicesParsesDeclaredOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "services.yaml")
	doc := `
services:
  - name: storage
    command: ["fit-storage", "serve"]
  - name: cache-warmer
    type: oneshot
    up: ["true"]
    down: ["true"]
  - name: rpc
    command: ["fit-rpcd"]
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	specs, err := LoadServices(path)
	require.NoError(t, err)
	require.Len(t, specs, 3)
	require.Equal(t, "storage", specs[0].Name)
	require.Equal(t, Longrun, specs[0].serviceType())
	require.Equal(t, Oneshot, specs[1].serviceType())
	require.Equal(t, []string{"fit-rpcd"}, specs[2].Command)
}

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"

	"github.com/roach88/schedstore/internal/config"
	"github.com/roach88/schedstore/internal/entity"
	"github.com/roach88/schedstore/internal/storage"
	"github.com/roach88/schedstore/internal/store"
	"github.com/roach88/schedstore/internal/testutil"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

// writeConfig writes a config file for a storage directory under t.TempDir().
func writeConfig(t *testing.T, backend string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "schedstore.yaml")
	data := fmt.Sprintf(`data_dir: %s
log:
  backend: %s
  path: log
metrics:
  addr: 127.0.0.1:0
`, dir, backend)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

// seed writes tasks, a job, a lock and the framework id through storage.
func seed(t *testing.T, cfgPath string) {
	t.Helper()
	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	st, err := store.Open(cfg.EntitiesPath())
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	s := storage.New(openLog(cfg), st)
	require.NoError(t, s.Start(ctx))
	defer s.Stop()

	tasks := testutil.Tasks(testutil.WebKey, 3, entity.StatusRunning)
	tasks[2].Status = entity.StatusFailed
	tasks[2].FailureCount = 2
	err = s.Write(ctx, func(ctx context.Context, p storage.MutableStoreProvider) error {
		if err := p.MutableScheduler().SaveFrameworkID(ctx, "fw-test"); err != nil {
			return err
		}
		if err := p.MutableJobs().SaveAcceptedJob(ctx, "service", testutil.Job(testutil.WebKey, 3)); err != nil {
			return err
		}
		return p.MutableTasks().SaveTasks(ctx, tasks...)
	})
	require.NoError(t, err)
	err = s.Write(ctx, func(ctx context.Context, p storage.MutableStoreProvider) error {
		return p.MutableLocks().SaveLock(ctx, testutil.Lock(testutil.WebKey, "token-1"))
	})
	require.NoError(t, err)
}

// runCLI runs the CLI and returns stdout, stderr and the exit code.
func runCLI(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	code := Main(args, stdout, stderr)
	return stdout.String(), stderr.String(), code
}

// decodeData decodes a successful JSON response into out.
func decodeData(t *testing.T, stdout string, out any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp), stdout)
	require.Equal(t, "ok", resp.Status)
	require.NoError(t, json.Unmarshal(resp.Data, out))
}

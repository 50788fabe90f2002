package app

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mandelsoft/vfs/pkg/memoryfs"
	"github.com/mandelsoft/vfs/pkg/vfs"
	"github.com/stretchr/testify/require"

	"go.hackfix.me/mailstore/db"
	"go.hackfix.me/mailstore/db/schema"
)

var timeNow = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func timeNowFn() time.Time {
	return timeNow
}

type testApp struct {
	*App
	fs             vfs.FileSystem
	dataDir        string
	stdin          *safeBuffer
	stdout, stderr *safeBuffer
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	var (
		dataDir               = t.TempDir()
		fs                    = memoryfs.New()
		stdin, stdout, stderr = newSafeBuffer(), newSafeBuffer(), newSafeBuffer()
	)

	opts := []Option{
		WithTimeNow(timeNowFn),
		WithContext(t.Context()),
		WithFDs(stdin, stdout, stderr),
		WithFS(fs),
		WithLogger(false, false),
	}
	app, err := New("mailstore", "/config.json", dataDir, opts...)
	require.NoError(t, err)

	return &testApp{
		App: app, fs: fs, dataDir: dataDir,
		stdin: stdin, stdout: stdout, stderr: stderr,
	}
}

// Run executes the command with the given arguments. The output of previous
// runs is discarded.
func (ta *testApp) Run(args ...string) error {
	ta.stdout.Reset()
	ta.stderr.Reset()
	return ta.App.Run(args)
}

func (ta *testApp) storePath() string {
	return filepath.Join(ta.dataDir, "mailstore.db")
}

// seedStore creates a store at the first schema version, as the first release
// would have left it.
func (ta *testApp) seedStore(t *testing.T) {
	t.Helper()

	d := ta.openStore(t)
	defer d.Close()

	ctx := t.Context()
	for _, stmt := range schema.Baseline {
		_, err := d.ExecContext(ctx, stmt.SQL)
		require.NoError(t, err)
	}
	for _, stmt := range []string{
		`INSERT INTO account (id, name, host, port, user, password, synchronize, is_primary, signature)
			VALUES (1, 'work', 'imap.example.com', 993, 'alice', 'secret', 1, 1, 'Regards')`,
		`INSERT INTO folder (account, name, type, synchronize, "after") VALUES (1, 'INBOX', 'Inbox', 1, 14)`,
		`PRAGMA user_version = 1`,
	} {
		_, err := d.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}
}

func (ta *testApp) openStore(t *testing.T) *db.DB {
	t.Helper()

	d, err := db.Open(t.Context(), ta.storePath(), db.WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)

	return d
}

func (ta *testApp) storeVersion(t *testing.T) int {
	t.Helper()

	d := ta.openStore(t)
	defer d.Close()

	version, err := d.Version(t.Context())
	require.NoError(t, err)

	return version
}

func (ta *testApp) setStoreVersion(t *testing.T, version int) {
	t.Helper()

	d := ta.openStore(t)
	defer d.Close()

	_, err := d.ExecContext(t.Context(), fmt.Sprintf("PRAGMA user_version = %d", version))
	require.NoError(t, err)
}

// safeBuffer is a thread-safe buffer.
type safeBuffer struct {
	mx  sync.RWMutex
	buf *bytes.Buffer
}

var _ io.ReadWriter = (*safeBuffer)(nil)

func newSafeBuffer() *safeBuffer {
	return &safeBuffer{buf: &bytes.Buffer{}}
}

func (b *safeBuffer) Read(p []byte) (n int, err error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.buf.Read(p)
}

func (b *safeBuffer) Write(p []byte) (n int, err error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) Reset() {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.buf.Reset()
}

func (b *safeBuffer) String() string {
	b.mx.RLock()
	defer b.mx.RUnlock()
	return b.buf.String()
}

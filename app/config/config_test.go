package config

import (
	"database/sql"
	"testing"
	"time"

	"github.com/mandelsoft/vfs/pkg/memoryfs"
	"github.com/mandelsoft/vfs/pkg/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.hackfix.me/mailstore/xtime"
)

func TestConfigLoad(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		data   string
		exp    Config
		expErr string
	}{
		{
			name: "ok/missing",
		},
		{
			name: "ok/full",
			data: `{
				"store": {"path": "/var/mail.db", "journal_mode": "delete", "synchronous": "FULL", "busy_timeout": "2s"},
				"backup": {"dir": "/var/bak", "before_migrate": false, "retention": "1w"}
			}`,
			exp: Config{
				Store: Store{
					Path:        sql.Null[string]{V: "/var/mail.db", Valid: true},
					JournalMode: sql.Null[string]{V: "DELETE", Valid: true},
					Synchronous: sql.Null[string]{V: "FULL", Valid: true},
					BusyTimeout: sql.Null[time.Duration]{V: 2 * time.Second, Valid: true},
				},
				Backup: Backup{
					Dir:           sql.Null[string]{V: "/var/bak", Valid: true},
					BeforeMigrate: sql.Null[bool]{V: false, Valid: true},
					Retention:     sql.Null[time.Duration]{V: xtime.Week, Valid: true},
				},
			},
		},
		{
			name:   "err/journal_mode",
			data:   `{"store": {"journal_mode": "wal2"}}`,
			expErr: "failed parsing configuration file: invalid journal mode 'wal2': must be one of DELETE, TRUNCATE, PERSIST, MEMORY, WAL, OFF",
		},
		{
			name:   "err/synchronous",
			data:   `{"store": {"synchronous": "1; DROP TABLE answer"}}`,
			expErr: "failed parsing configuration file: invalid synchronous level '1; DROP TABLE answer': must be one of OFF, NORMAL, FULL, EXTRA",
		},
		{
			name:   "err/retention",
			data:   `{"backup": {"retention": "forever"}}`,
			expErr: `failed parsing configuration file: failed parsing backup retention: invalid duration "forever"`,
		},
		{
			name:   "err/negative_timeout",
			data:   `{"store": {"busy_timeout": "-5s"}}`,
			expErr: "failed parsing configuration file: invalid store busy timeout -5s: must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fs := memoryfs.New()
			if tt.data != "" {
				require.NoError(t, vfs.WriteFile(fs, "/config.json", []byte(tt.data), 0o644))
			}

			cfg := NewConfig(fs, "/config.json")
			err := cfg.Load()
			if tt.expErr != "" {
				assert.EqualError(t, err, tt.expErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.exp.Store, cfg.Store)
			assert.Equal(t, tt.exp.Backup, cfg.Backup)
		})
	}
}

func TestConfigSaveLoad(t *testing.T) {
	t.Parallel()

	fs := memoryfs.New()
	cfg := NewConfig(fs, "/etc/mailstore/config.json")
	cfg.SetDefaults("/data")
	require.NoError(t, cfg.Save())

	data, err := vfs.ReadFile(fs, cfg.Path())
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"store": {"path": "/data/mailstore.db", "journal_mode": "WAL", "synchronous": "NORMAL", "busy_timeout": "5s"},
		"backup": {"dir": "/data/backups", "before_migrate": true, "retention": "1M"}
	}`, string(data))

	loaded := NewConfig(fs, cfg.Path())
	require.NoError(t, loaded.Load())
	assert.Equal(t, cfg.Store, loaded.Store)
	assert.Equal(t, cfg.Backup, loaded.Backup)
}

func TestConfigSetDefaults(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Store:  Store{Path: sql.Null[string]{V: "store/mail.db", Valid: true}},
		Backup: Backup{Dir: sql.Null[string]{V: "/bak", Valid: true}},
	}
	cfg.SetDefaults("/data")

	assert.Equal(t, "/data/store/mail.db", cfg.Store.Path.V)
	assert.Equal(t, "/bak", cfg.Backup.Dir.V)
	assert.Equal(t, 30*xtime.Day, cfg.Backup.Retention.V)
	assert.True(t, cfg.Backup.BeforeMigrate.V)
}

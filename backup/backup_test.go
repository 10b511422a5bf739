package backup

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infrakt.dev/compose"
	"infrakt.dev/remote"
	"infrakt.dev/store"
)

func TestFilename(t *testing.T) {
	ts := time.Date(2026, 8, 25, 3, 0, 1, 0, time.UTC)
	assert.Equal(t, "shopdb_20260825_030001.sql.gz", Filename("shopdb", compose.EnginePostgres, ts))
	assert.Equal(t, "cache_20260825_030001.rdb", Filename("cache", compose.EngineRedis, ts))
	assert.Equal(t, "docs_20260825_030001.archive.gz", Filename("docs", compose.EngineMongo, ts))
}

func TestDumpRunsEngineCommand(t *testing.T) {
	orig := now
	now = func() time.Time { return time.Date(2026, 8, 25, 3, 0, 1, 0, time.UTC) }
	defer func() { now = orig }()

	runner := remote.NewMockRunner()
	name, err := Dump(runner, "shopdb", compose.EnginePostgres)
	require.NoError(t, err)
	assert.Equal(t, "shopdb_20260825_030001.sql.gz", name)
	assert.True(t, runner.Ran("mkdir -p '/opt/infrakt/backups'"))
	assert.True(t, runner.Ran("docker exec 'infrakt-db-shopdb' printenv POSTGRES_USER"))
	assert.True(t, runner.Ran(`pg_dump -U "$DB_USER" "$DB_NAME" | gzip > '/opt/infrakt/backups/shopdb_20260825_030001.sql.gz'`))
}

func TestRestoreRequiresExistingFile(t *testing.T) {
	runner := remote.NewMockRunner()
	runner.Respond("test -f", "", 1)

	err := Restore(runner, "shopdb", compose.EnginePostgres, "shopdb_20260825_030001.sql.gz")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.False(t, runner.Ran("psql"))
}

func TestRestoreRejectsPathTraversal(t *testing.T) {
	runner := remote.NewMockRunner()
	err := Restore(runner, "shopdb", compose.EnginePostgres, "../../etc/passwd")
	assert.Error(t, err)
	assert.Empty(t, runner.Commands)
}

func TestListNewestFirst(t *testing.T) {
	runner := remote.NewMockRunner()
	runner.Respond("ls -1", "shopdb_20260824_030001.sql.gz\nshopdb_20260825_030001.sql.gz\n", 0)

	names, err := List(runner, "shopdb")
	require.NoError(t, err)
	assert.Equal(t, []string{"shopdb_20260825_030001.sql.gz", "shopdb_20260824_030001.sql.gz"}, names)
}

func TestRenderScriptRetention(t *testing.T) {
	script, err := RenderScript("shopdb", compose.EnginePostgres, Schedule{Expression: "0 3 * * *", RetentionDays: 14}, nil, "")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(script, "#!/bin/sh\nset -euo pipefail\n"))
	assert.Equal(t, 1, strings.Count(script, "-mtime +14 -delete"))
	assert.Contains(t, script, `find "$BACKUP_DIR" -name 'shopdb_*' -mtime +14 -delete`)
	assert.NotContains(t, script, "aws s3 cp")
}

func TestRenderScriptObjectStore(t *testing.T) {
	cfg := &store.ObjectStoreConfig{
		Endpoint:  "https://s3.example.com",
		Bucket:    "backups",
		AccessKey: "AKIA123",
		Prefix:    "infrakt",
	}
	script, err := RenderScript("shopdb", compose.EnginePostgres, Schedule{Expression: "0 3 * * *"}, cfg, "s3cret")
	require.NoError(t, err)

	assert.Contains(t, script, "export AWS_ACCESS_KEY_ID='AKIA123'")
	assert.Contains(t, script, "export AWS_SECRET_ACCESS_KEY='s3cret'")
	assert.Contains(t, script, "aws s3 cp \"$DEST\" 's3://backups/infrakt/shopdb'/\"$FILENAME\" --endpoint-url 'https://s3.example.com'")
	assert.Contains(t, script, "unset AWS_ACCESS_KEY_ID AWS_SECRET_ACCESS_KEY")
	idx := strings.Index(script, "aws s3 cp")
	assert.Greater(t, idx, strings.Index(script, "export AWS_SECRET_ACCESS_KEY"))
	assert.Less(t, idx, strings.Index(script, "unset AWS_ACCESS_KEY_ID"))
}

func TestInstallCronIdempotentMarker(t *testing.T) {
	runner := remote.NewMockRunner()
	err := InstallCron(runner, "shopdb", compose.EnginePostgres, Schedule{Expression: "0 3 * * *"}, nil, "")
	require.NoError(t, err)

	script := runner.Uploads["/opt/infrakt/backups/shopdb-backup.sh"]
	require.NotEmpty(t, script)
	assert.True(t, runner.Ran("grep -v '# infrakt-backup:shopdb'"))
	assert.True(t, runner.Ran("| crontab -"))
	assert.True(t, runner.Ran("# infrakt-backup:shopdb"))
}

func TestInstallCronRejectsBadSchedule(t *testing.T) {
	runner := remote.NewMockRunner()
	err := InstallCron(runner, "shopdb", compose.EnginePostgres, Schedule{Expression: "every day"}, nil, "")
	assert.Error(t, err)
	assert.Empty(t, runner.Commands)

	err = InstallCron(runner, "shopdb", compose.EnginePostgres, Schedule{Expression: "0 3 * *"}, nil, "")
	assert.Error(t, err)
}

func TestRemoveCron(t *testing.T) {
	runner := remote.NewMockRunner()
	require.NoError(t, RemoveCron(runner, "shopdb"))
	assert.True(t, runner.Ran("grep -v '# infrakt-backup:shopdb'"))
	assert.True(t, runner.Ran("rm -f '/opt/infrakt/backups/shopdb-backup.sh'"))
}

func TestParseS3Listing(t *testing.T) {
	out := `2026-08-24 03:00:01      14523 shopdb_20260824_030001.sql.gz
2026-08-25 03:00:01      15001 shopdb_20260825_030001.sql.gz
                           PRE some-prefix/
garbage line`
	objects := parseS3Listing(out)
	require.Len(t, objects, 2)
	assert.Equal(t, "shopdb_20260824_030001.sql.gz", objects[0].Name)
	assert.Equal(t, int64(14523), objects[0].Size)
	assert.Equal(t, time.Date(2026, 8, 24, 3, 0, 1, 0, time.UTC), objects[0].ModifiedAt)
}

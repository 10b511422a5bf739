// Package backup dumps and restores managed databases on their hosts,
// installs scheduled backup cron entries, and replicates dumps to an
// S3-compatible object store.
package backup

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"infrakt.dev/common"
	"infrakt.dev/compose"
	"infrakt.dev/config"
	"infrakt.dev/remote"
)

// now is swapped by tests for deterministic filenames.
var now = time.Now

// Extension returns the dump file extension for an engine.
func Extension(engine compose.Engine) string {
	switch engine {
	case compose.EngineRedis:
		return "rdb"
	case compose.EngineMongo:
		return "archive.gz"
	default:
		return "sql.gz"
	}
}

// Filename builds the canonical dump name <app>_<YYYYMMDD_HHMMSS>.<ext>.
func Filename(app string, engine compose.Engine, t time.Time) string {
	return fmt.Sprintf("%s_%s.%s", app, t.UTC().Format("20060102_150405"), Extension(engine))
}

// dumpScript builds the host-side shell fragment that produces a dump
// at the destination. d must already be a shell-safe token, either a
// quoted path or a variable reference inside a generated script.
// Credentials are read from the running container at execution time,
// never embedded.
func dumpScript(app string, engine compose.Engine, d string) (string, error) {
	c := remote.Quote(compose.DatabaseContainerName(app))
	switch engine {
	case compose.EnginePostgres:
		return strings.Join([]string{
			fmt.Sprintf(`DB_USER=$(docker exec %s printenv POSTGRES_USER)`, c),
			fmt.Sprintf(`DB_NAME=$(docker exec %s printenv POSTGRES_DB)`, c),
			fmt.Sprintf(`docker exec %s pg_dump -U "$DB_USER" "$DB_NAME" | gzip > %s`, c, d),
		}, "\n"), nil
	case compose.EngineMySQL:
		return strings.Join([]string{
			fmt.Sprintf(`DB_USER=$(docker exec %s printenv MYSQL_USER)`, c),
			fmt.Sprintf(`DB_PASS=$(docker exec %s printenv MYSQL_PASSWORD)`, c),
			fmt.Sprintf(`DB_NAME=$(docker exec %s printenv MYSQL_DATABASE)`, c),
			fmt.Sprintf(`docker exec %s mysqldump -u "$DB_USER" -p"$DB_PASS" "$DB_NAME" | gzip > %s`, c, d),
		}, "\n"), nil
	case compose.EngineRedis:
		return strings.Join([]string{
			fmt.Sprintf(`docker exec %s redis-cli BGSAVE`, c),
			`sleep 2`,
			fmt.Sprintf(`docker cp %s:/data/dump.rdb %s`, compose.DatabaseContainerName(app), d),
		}, "\n"), nil
	case compose.EngineMongo:
		return strings.Join([]string{
			fmt.Sprintf(`DB_USER=$(docker exec %s printenv MONGO_INITDB_ROOT_USERNAME)`, c),
			fmt.Sprintf(`DB_PASS=$(docker exec %s printenv MONGO_INITDB_ROOT_PASSWORD)`, c),
			fmt.Sprintf(`docker exec %s mongodump --archive --gzip -u "$DB_USER" -p "$DB_PASS" --authenticationDatabase admin > %s`, c, d),
		}, "\n"), nil
	}
	return "", common.Validationf("unsupported database engine %q", engine)
}

// restoreScript builds the host-side shell fragment that restores a
// dump from src.
func restoreScript(app string, engine compose.Engine, src string) (string, error) {
	c := remote.Quote(compose.DatabaseContainerName(app))
	s := remote.Quote(src)
	switch engine {
	case compose.EnginePostgres:
		return strings.Join([]string{
			fmt.Sprintf(`DB_USER=$(docker exec %s printenv POSTGRES_USER)`, c),
			fmt.Sprintf(`DB_NAME=$(docker exec %s printenv POSTGRES_DB)`, c),
			fmt.Sprintf(`gunzip -c %s | docker exec -i %s psql -U "$DB_USER" -d "$DB_NAME"`, s, c),
		}, "\n"), nil
	case compose.EngineMySQL:
		return strings.Join([]string{
			fmt.Sprintf(`DB_USER=$(docker exec %s printenv MYSQL_USER)`, c),
			fmt.Sprintf(`DB_PASS=$(docker exec %s printenv MYSQL_PASSWORD)`, c),
			fmt.Sprintf(`DB_NAME=$(docker exec %s printenv MYSQL_DATABASE)`, c),
			fmt.Sprintf(`gunzip -c %s | docker exec -i %s mysql -u "$DB_USER" -p"$DB_PASS" "$DB_NAME"`, s, c),
		}, "\n"), nil
	case compose.EngineRedis:
		appDir := remote.Quote(config.RemoteAppDir(app))
		return strings.Join([]string{
			fmt.Sprintf(`docker cp %s %s:/data/dump.rdb`, s, compose.DatabaseContainerName(app)),
			fmt.Sprintf(`cd %s && docker compose restart`, appDir),
		}, "\n"), nil
	case compose.EngineMongo:
		return strings.Join([]string{
			fmt.Sprintf(`DB_USER=$(docker exec %s printenv MONGO_INITDB_ROOT_USERNAME)`, c),
			fmt.Sprintf(`DB_PASS=$(docker exec %s printenv MONGO_INITDB_ROOT_PASSWORD)`, c),
			fmt.Sprintf(`docker exec -i %s mongorestore --archive --gzip --drop -u "$DB_USER" -p "$DB_PASS" --authenticationDatabase admin < %s`, c, s),
		}, "\n"), nil
	}
	return "", common.Validationf("unsupported database engine %q", engine)
}

// Dump backs up a database app into the host backup directory and
// returns the dump filename.
func Dump(runner remote.Runner, app string, engine compose.Engine) (string, error) {
	if err := compose.ValidateAppName(app); err != nil {
		return "", err
	}
	name := Filename(app, engine, now())
	dest := path.Join(config.RemoteBackupsDir(), name)

	ensure := fmt.Sprintf("mkdir -p %s", remote.Quote(config.RemoteBackupsDir()))
	script, err := dumpScript(app, engine, remote.Quote(dest))
	if err != nil {
		return "", err
	}
	if _, err := runner.RunChecked(ensure+"\n"+script, remote.LifecycleTimeout); err != nil {
		return "", common.Remotef(err, "backup of %s failed", app)
	}
	return name, nil
}

// Restore loads a dump back into a database app. The dump must already
// exist on the host.
func Restore(runner remote.Runner, app string, engine compose.Engine, filename string) error {
	if err := compose.ValidateAppName(app); err != nil {
		return err
	}
	if strings.ContainsAny(filename, "/\\") {
		return common.Validationf("invalid backup filename %q", filename)
	}
	src := path.Join(config.RemoteBackupsDir(), filename)

	if _, err := runner.RunChecked(fmt.Sprintf("test -f %s", remote.Quote(src)), remote.ProbeTimeout); err != nil {
		return common.NotFoundf("backup %s not found on %s", filename, runner.Host())
	}
	script, err := restoreScript(app, engine, src)
	if err != nil {
		return err
	}
	if _, err := runner.RunChecked(script, remote.PullTimeout); err != nil {
		return common.Remotef(err, "restore of %s failed", app)
	}
	return nil
}

// List returns the dump filenames present for an app, newest first.
func List(runner remote.Runner, app string) ([]string, error) {
	if err := compose.ValidateAppName(app); err != nil {
		return nil, err
	}
	cmd := fmt.Sprintf("ls -1 %s 2>/dev/null | grep '^%s_' || true", remote.Quote(config.RemoteBackupsDir()), app)
	out, err := runner.RunChecked(cmd, remote.ProbeTimeout)
	if err != nil {
		return nil, common.Remotef(err, "failed to list backups")
	}
	var names []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			names = append(names, line)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

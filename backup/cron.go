package backup

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"infrakt.dev/common"
	"infrakt.dev/compose"
	"infrakt.dev/config"
	"infrakt.dev/remote"
	"infrakt.dev/store"
)

var cronFieldRe = regexp.MustCompile(`^[0-9*/,-]+$`)

// Schedule is a five-field cron expression plus retention policy.
type Schedule struct {
	Expression    string
	RetentionDays int
}

// ValidateSchedule accepts standard five-field cron expressions.
func ValidateSchedule(expr string) error {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return common.Validationf("invalid cron expression %q: expected 5 fields", expr)
	}
	for _, f := range fields {
		if !cronFieldRe.MatchString(f) {
			return common.Validationf("invalid cron field %q", f)
		}
	}
	return nil
}

func cronMarker(app string) string { return "# infrakt-backup:" + app }

func scriptPath(app string) string {
	return path.Join(config.RemoteBackupsDir(), app+"-backup.sh")
}

// RenderScript produces the scheduled backup script for an app. The
// script dumps, sweeps old dumps past retention, and optionally
// replicates to the object store with credentials that never outlive
// the run.
func RenderScript(app string, engine compose.Engine, sched Schedule, objectStore *store.ObjectStoreConfig, secretKey string) (string, error) {
	if err := compose.ValidateAppName(app); err != nil {
		return "", err
	}
	dump, err := dumpScript(app, engine, `"$DEST"`)
	if err != nil {
		return "", err
	}
	retention := sched.RetentionDays
	if retention <= 0 {
		retention = 7
	}

	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	b.WriteString("set -euo pipefail\n\n")
	fmt.Fprintf(&b, "BACKUP_DIR=%s\n", remote.Quote(config.RemoteBackupsDir()))
	fmt.Fprintf(&b, "FILENAME=%s_$(date -u +%%Y%%m%%d_%%H%%M%%S).%s\n", app, Extension(engine))
	b.WriteString("DEST=\"$BACKUP_DIR/$FILENAME\"\n\n")
	b.WriteString(dump)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "find \"$BACKUP_DIR\" -name %s -mtime +%d -delete\n", remote.Quote(app+"_*"), retention)

	if objectStore != nil && objectStore.Bucket != "" {
		target := objectStorePath(objectStore, app) + "/\"$FILENAME\""
		b.WriteString("\n")
		fmt.Fprintf(&b, "export AWS_ACCESS_KEY_ID=%s\n", remote.Quote(objectStore.AccessKey))
		fmt.Fprintf(&b, "export AWS_SECRET_ACCESS_KEY=%s\n", remote.Quote(secretKey))
		fmt.Fprintf(&b, "aws s3 cp \"$DEST\" %s%s\n", target, endpointFlag(objectStore))
		b.WriteString("unset AWS_ACCESS_KEY_ID AWS_SECRET_ACCESS_KEY\n")
	}
	return b.String(), nil
}

func objectStorePath(cfg *store.ObjectStoreConfig, app string) string {
	p := "s3://" + cfg.Bucket
	if cfg.Prefix != "" {
		p += "/" + strings.Trim(cfg.Prefix, "/")
	}
	return remote.Quote(p + "/" + app)
}

func endpointFlag(cfg *store.ObjectStoreConfig) string {
	if cfg.Endpoint == "" {
		return ""
	}
	return " --endpoint-url " + remote.Quote(cfg.Endpoint)
}

// InstallCron uploads the backup script and installs its crontab
// entry. Reinstalling replaces the previous entry for the same app.
func InstallCron(runner remote.Runner, app string, engine compose.Engine, sched Schedule, objectStore *store.ObjectStoreConfig, secretKey string) error {
	if err := ValidateSchedule(sched.Expression); err != nil {
		return err
	}
	script, err := RenderScript(app, engine, sched, objectStore, secretKey)
	if err != nil {
		return err
	}
	sp := scriptPath(app)
	if err := runner.UploadString(script, sp, "755"); err != nil {
		return common.Remotef(err, "failed to upload backup script for %s", app)
	}

	marker := cronMarker(app)
	line := fmt.Sprintf("%s %s >> /var/log/infrakt-backup-%s.log 2>&1 %s", sched.Expression, sp, app, marker)
	cmd := fmt.Sprintf("( crontab -l 2>/dev/null | grep -v %s ; echo %s ) | crontab -",
		remote.Quote(marker), remote.Quote(line))
	if _, err := runner.RunChecked(cmd, remote.ProbeTimeout); err != nil {
		return common.Remotef(err, "failed to install backup cron for %s", app)
	}
	return nil
}

// RemoveCron drops the crontab entry and the script. Removing an
// uninstalled schedule is not an error.
func RemoveCron(runner remote.Runner, app string) error {
	if err := compose.ValidateAppName(app); err != nil {
		return err
	}
	marker := cronMarker(app)
	cmd := fmt.Sprintf("( crontab -l 2>/dev/null | grep -v %s ) | crontab -\nrm -f %s",
		remote.Quote(marker), remote.Quote(scriptPath(app)))
	if _, err := runner.RunChecked(cmd, remote.ProbeTimeout); err != nil {
		return common.Remotef(err, "failed to remove backup cron for %s", app)
	}
	return nil
}

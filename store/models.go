// Package store provides the durable state of the control plane:
// servers, apps, deployments, SSH keys, webhook subscriptions, the
// source integration and object-store singletons, and server metrics.
// State lives in an embedded SQLite database; all writes go through
// short transactions.
package store

import (
	"strings"
	"time"
)

// ServerStatus is the lifecycle state of a registered host.
type ServerStatus string

const (
	ServerInactive     ServerStatus = "inactive"
	ServerProvisioning ServerStatus = "provisioning"
	ServerActive       ServerStatus = "active"
	ServerError        ServerStatus = "error"
)

// Server is a registered remote host reached over SSH.
type Server struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	Name      string `gorm:"uniqueIndex;not null" json:"name"`
	Host      string `gorm:"not null" json:"host"`
	Port      int    `gorm:"default:22" json:"port"`
	User      string `gorm:"default:root" json:"user"`
	KeyPath   string `json:"key_path,omitempty"`
	Status    ServerStatus `gorm:"default:inactive" json:"status"`
	Provider  string       `json:"provider,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`

	Apps []App `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// AppKind discriminates how an app is materialised on the host.
type AppKind string

const (
	KindImage    AppKind = "image"
	KindGit      AppKind = "git"
	KindCompose  AppKind = "compose"
	KindDatabase AppKind = "db"
)

// AppStatus is the reconciled runtime state of an app.
type AppStatus string

const (
	AppStopped    AppStatus = "stopped"
	AppRunning    AppStatus = "running"
	AppError      AppStatus = "error"
	AppRestarting AppStatus = "restarting"
	AppDeploying  AppStatus = "deploying"
)

// DeployStrategy selects the apply behaviour on deploy.
type DeployStrategy string

const (
	StrategyRestart DeployStrategy = "restart"
	StrategyRolling DeployStrategy = "rolling"
)

// App is a deployable unit on exactly one server. Exactly one of
// Image, GitRepo or ComposeInline must be set for it to deploy.
type App struct {
	ID            uint   `gorm:"primaryKey" json:"id"`
	Name          string `gorm:"uniqueIndex:idx_app_server;not null" json:"name"`
	ServerID      uint   `gorm:"uniqueIndex:idx_app_server;not null" json:"server_id"`
	Domain        string `json:"domain,omitempty"`
	Port          int    `json:"port"`
	GitRepo       string `json:"git_repo,omitempty"`
	Branch        string `gorm:"default:main" json:"branch,omitempty"`
	Image         string `json:"image,omitempty"`
	ComposeInline string `json:"compose_inline,omitempty"`
	Kind          AppKind `gorm:"default:image" json:"kind"`
	Engine        string  `json:"engine,omitempty"`
	Status        AppStatus `gorm:"default:stopped" json:"status"`
	WebhookSecret string    `json:"-"`
	AutoDeploy    bool      `json:"auto_deploy"`
	CPULimit      string    `json:"cpu_limit,omitempty"`
	MemoryLimit   string    `json:"memory_limit,omitempty"`
	HealthURL     string    `json:"health_url,omitempty"`
	HealthInterval int      `gorm:"default:30" json:"health_interval,omitempty"`
	Replicas      int       `gorm:"default:1" json:"replicas"`
	Strategy      DeployStrategy `gorm:"default:restart" json:"strategy"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`

	Server      Server       `json:"-"`
	Deployments []Deployment `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// Type renders the public type tag, with databases as "db:<engine>".
func (a *App) Type() string {
	if a.Kind == KindDatabase {
		return string(KindDatabase) + ":" + a.Engine
	}
	return string(a.Kind)
}

// IsDatabase reports whether the app is a managed database service.
func (a *App) IsDatabase() bool { return a.Kind == KindDatabase }

// ParseAppType parses a public type tag into kind and engine.
func ParseAppType(s string) (AppKind, string) {
	if strings.HasPrefix(s, string(KindDatabase)+":") {
		return KindDatabase, strings.TrimPrefix(s, string(KindDatabase)+":")
	}
	return AppKind(s), ""
}

// DeploymentStatus is the lifecycle state of one deployment attempt.
type DeploymentStatus string

const (
	DeploymentInProgress DeploymentStatus = "in_progress"
	DeploymentSuccess    DeploymentStatus = "success"
	DeploymentFailed     DeploymentStatus = "failed"
)

// Deployment is one attempt to realise an app's declared source.
// Deployments are append-only history; FinishedAt is non-null exactly
// when Status is not in_progress.
type Deployment struct {
	ID         uint             `gorm:"primaryKey" json:"id"`
	AppID      uint             `gorm:"index;not null" json:"app_id"`
	Status     DeploymentStatus `gorm:"default:in_progress" json:"status"`
	CommitHash string           `json:"commit_hash,omitempty"`
	ImageUsed  string           `json:"image_used,omitempty"`
	Log        string           `json:"log,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
}

// SSHKey is a managed key pair on the control-plane host.
type SSHKey struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Name           string    `gorm:"uniqueIndex;not null" json:"name"`
	Fingerprint    string    `json:"fingerprint"`
	Algorithm      string    `json:"algorithm"`
	PublicKey      string    `json:"public_key"`
	PrivateKeyPath string    `json:"private_key_path"`
	CreatedAt      time.Time `json:"created_at"`
}

// Webhook is an outbound notification target. Events is a comma-joined
// subscription set.
type Webhook struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	URL       string    `gorm:"not null" json:"url"`
	Events    string    `json:"events"`
	Secret    string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// EventSet returns the subscribed events.
func (w *Webhook) EventSet() []string {
	if w.Events == "" {
		return nil
	}
	parts := strings.Split(w.Events, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// Subscribed reports whether the hook wants the given event. An empty
// subscription set means all events.
func (w *Webhook) Subscribed(event string) bool {
	set := w.EventSet()
	if len(set) == 0 {
		return true
	}
	for _, e := range set {
		if e == event {
			return true
		}
	}
	return false
}

// SourceIntegration holds the encrypted source-control token.
// Singleton row.
type SourceIntegration struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Username       string    `json:"username"`
	EncryptedToken string    `json:"-"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ObjectStoreConfig holds the S3-compatible replication target.
// Singleton row.
type ObjectStoreConfig struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	Endpoint           string    `json:"endpoint"`
	Bucket             string    `json:"bucket"`
	Region             string    `json:"region"`
	AccessKey          string    `json:"access_key"`
	EncryptedSecretKey string    `json:"-"`
	Prefix             string    `json:"prefix,omitempty"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// ServerMetric is one resource snapshot for a server. Pointer fields
// are nil when the sample could not be read.
type ServerMetric struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ServerID    uint      `gorm:"index:idx_metric_server_time,priority:1;not null" json:"server_id"`
	RecordedAt  time.Time `gorm:"index:idx_metric_server_time,priority:2" json:"recorded_at"`
	CPUPercent  *float64  `json:"cpu_percent,omitempty"`
	MemPercent  *float64  `json:"mem_percent,omitempty"`
	DiskPercent *float64  `json:"disk_percent,omitempty"`
}

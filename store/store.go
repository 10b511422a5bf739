package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"infrakt.dev/common"
)

// Store wraps the embedded database. All public operations run inside
// a commit-or-rollback scope; callers never see a half-applied write.
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the embedded database at path and migrates
// the schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	err = db.AutoMigrate(
		&Server{}, &App{}, &Deployment{}, &SSHKey{}, &Webhook{},
		&SourceIntegration{}, &ObjectStoreConfig{}, &ServerMetric{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &Store{db: db}, nil
}

// DB exposes the underlying handle for tests.
func (s *Store) DB() *gorm.DB { return s.db }

// --- servers ---

func (s *Store) CreateServer(server *Server) error {
	if server.Status == "" {
		server.Status = ServerInactive
	}
	if err := s.db.Create(server).Error; err != nil {
		if isUniqueViolation(err) {
			return common.Conflictf("server %q already exists", server.Name)
		}
		return common.Internalf(err, "failed to create server")
	}
	return nil
}

func (s *Store) Servers() ([]Server, error) {
	var servers []Server
	if err := s.db.Order("name").Find(&servers).Error; err != nil {
		return nil, common.Internalf(err, "failed to list servers")
	}
	return servers, nil
}

func (s *Store) ServerByName(name string) (*Server, error) {
	var server Server
	err := s.db.Where("name = ?", name).First(&server).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NotFoundf("server %q not found", name)
	}
	if err != nil {
		return nil, common.Internalf(err, "failed to load server")
	}
	return &server, nil
}

func (s *Store) ServerByID(id uint) (*Server, error) {
	var server Server
	err := s.db.First(&server, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NotFoundf("server %d not found", id)
	}
	if err != nil {
		return nil, common.Internalf(err, "failed to load server")
	}
	return &server, nil
}

func (s *Store) UpdateServerStatus(id uint, status ServerStatus) error {
	if err := s.db.Model(&Server{}).Where("id = ?", id).Update("status", status).Error; err != nil {
		return common.Internalf(err, "failed to update server status")
	}
	return nil
}

// DeleteServer removes the server and, in the same transaction, every
// app and deployment it owns. The cascade is atomic so no orphan App
// row can survive a crash mid-delete.
func (s *Store) DeleteServer(id uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var appIDs []uint
		if err := tx.Model(&App{}).Where("server_id = ?", id).Pluck("id", &appIDs).Error; err != nil {
			return common.Internalf(err, "failed to resolve apps for cascade")
		}
		if len(appIDs) > 0 {
			if err := tx.Where("app_id IN ?", appIDs).Delete(&Deployment{}).Error; err != nil {
				return common.Internalf(err, "failed to delete deployments")
			}
			if err := tx.Where("server_id = ?", id).Delete(&App{}).Error; err != nil {
				return common.Internalf(err, "failed to delete apps")
			}
		}
		if err := tx.Where("server_id = ?", id).Delete(&ServerMetric{}).Error; err != nil {
			return common.Internalf(err, "failed to delete metrics")
		}
		result := tx.Delete(&Server{}, id)
		if result.Error != nil {
			return common.Internalf(result.Error, "failed to delete server")
		}
		if result.RowsAffected == 0 {
			return common.NotFoundf("server %d not found", id)
		}
		return nil
	})
}

// --- apps ---

func (s *Store) CreateApp(app *App) error {
	if app.Status == "" {
		app.Status = AppStopped
	}
	if app.Strategy == "" {
		app.Strategy = StrategyRestart
	}
	if app.Replicas == 0 {
		app.Replicas = 1
	}
	if err := s.db.Create(app).Error; err != nil {
		if isUniqueViolation(err) {
			return common.Conflictf("app %q already exists on this server", app.Name)
		}
		return common.Internalf(err, "failed to create app")
	}
	return nil
}

func (s *Store) SaveApp(app *App) error {
	if err := s.db.Save(app).Error; err != nil {
		return common.Internalf(err, "failed to save app")
	}
	return nil
}

func (s *Store) UpdateAppStatus(id uint, status AppStatus) error {
	if err := s.db.Model(&App{}).Where("id = ?", id).Update("status", status).Error; err != nil {
		return common.Internalf(err, "failed to update app status")
	}
	return nil
}

// Apps lists apps on a server. Database services carry the db kind and
// are excluded unless includeDatabases is set. A zero serverID lists
// across all servers.
func (s *Store) Apps(serverID uint, includeDatabases bool) ([]App, error) {
	q := s.db.Order("name")
	if serverID != 0 {
		q = q.Where("server_id = ?", serverID)
	}
	if !includeDatabases {
		q = q.Where("kind <> ?", KindDatabase)
	}
	var apps []App
	if err := q.Find(&apps).Error; err != nil {
		return nil, common.Internalf(err, "failed to list apps")
	}
	return apps, nil
}

func (s *Store) AppByName(serverID uint, name string) (*App, error) {
	var app App
	err := s.db.Where("server_id = ? AND name = ?", serverID, name).First(&app).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NotFoundf("app %q not found", name)
	}
	if err != nil {
		return nil, common.Internalf(err, "failed to load app")
	}
	return &app, nil
}

func (s *Store) AppByID(id uint) (*App, error) {
	var app App
	err := s.db.First(&app, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NotFoundf("app %d not found", id)
	}
	if err != nil {
		return nil, common.Internalf(err, "failed to load app")
	}
	return &app, nil
}

// GitApps returns every source-built app across all servers. Repo and
// branch matching happens in the caller, which normalizes clone URLs.
func (s *Store) GitApps() ([]App, error) {
	var apps []App
	err := s.db.Where("kind = ?", KindGit).Find(&apps).Error
	if err != nil {
		return nil, common.Internalf(err, "failed to list git apps")
	}
	return apps, nil
}

// DeleteApp removes the app and its deployment history atomically.
func (s *Store) DeleteApp(id uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("app_id = ?", id).Delete(&Deployment{}).Error; err != nil {
			return common.Internalf(err, "failed to delete deployments")
		}
		result := tx.Delete(&App{}, id)
		if result.Error != nil {
			return common.Internalf(result.Error, "failed to delete app")
		}
		if result.RowsAffected == 0 {
			return common.NotFoundf("app %d not found", id)
		}
		return nil
	})
}

// --- deployments ---

func (s *Store) CreateDeployment(d *Deployment) error {
	if d.Status == "" {
		d.Status = DeploymentInProgress
	}
	if d.StartedAt.IsZero() {
		d.StartedAt = time.Now().UTC()
	}
	if err := s.db.Create(d).Error; err != nil {
		return common.Internalf(err, "failed to create deployment")
	}
	return nil
}

// FinishDeployment marks a deployment terminal and records what was
// actually applied. Setting FinishedAt together with the status keeps
// the "finished iff terminal" invariant.
func (s *Store) FinishDeployment(id uint, status DeploymentStatus, log, commitHash, imageUsed string) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":      status,
		"log":         log,
		"commit_hash": commitHash,
		"image_used":  imageUsed,
		"finished_at": &now,
	}
	if err := s.db.Model(&Deployment{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return common.Internalf(err, "failed to finish deployment")
	}
	return nil
}

func (s *Store) DeploymentByID(id uint) (*Deployment, error) {
	var d Deployment
	err := s.db.First(&d, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NotFoundf("deployment %d not found", id)
	}
	if err != nil {
		return nil, common.Internalf(err, "failed to load deployment")
	}
	return &d, nil
}

func (s *Store) Deployments(appID uint, limit int) ([]Deployment, error) {
	q := s.db.Where("app_id = ?", appID).Order("started_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var list []Deployment
	if err := q.Find(&list).Error; err != nil {
		return nil, common.Internalf(err, "failed to list deployments")
	}
	return list, nil
}

// LatestSuccessfulDeployment returns the implicit rollback target.
func (s *Store) LatestSuccessfulDeployment(appID uint) (*Deployment, error) {
	var d Deployment
	err := s.db.Where("app_id = ? AND status = ?", appID, DeploymentSuccess).
		Order("started_at desc").First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NotFoundf("no successful deployment for app %d", appID)
	}
	if err != nil {
		return nil, common.Internalf(err, "failed to load deployment")
	}
	return &d, nil
}

// --- ssh keys ---

func (s *Store) CreateSSHKey(key *SSHKey) error {
	if err := s.db.Create(key).Error; err != nil {
		if isUniqueViolation(err) {
			return common.Conflictf("key %q already exists", key.Name)
		}
		return common.Internalf(err, "failed to create key")
	}
	return nil
}

func (s *Store) SSHKeys() ([]SSHKey, error) {
	var keys []SSHKey
	if err := s.db.Order("name").Find(&keys).Error; err != nil {
		return nil, common.Internalf(err, "failed to list keys")
	}
	return keys, nil
}

func (s *Store) SSHKeyByName(name string) (*SSHKey, error) {
	var key SSHKey
	err := s.db.Where("name = ?", name).First(&key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NotFoundf("key %q not found", name)
	}
	if err != nil {
		return nil, common.Internalf(err, "failed to load key")
	}
	return &key, nil
}

func (s *Store) DeleteSSHKey(id uint) error {
	result := s.db.Delete(&SSHKey{}, id)
	if result.Error != nil {
		return common.Internalf(result.Error, "failed to delete key")
	}
	if result.RowsAffected == 0 {
		return common.NotFoundf("key %d not found", id)
	}
	return nil
}

// --- webhooks ---

func (s *Store) CreateWebhook(hook *Webhook) error {
	if err := s.db.Create(hook).Error; err != nil {
		return common.Internalf(err, "failed to create webhook")
	}
	return nil
}

func (s *Store) Webhooks() ([]Webhook, error) {
	var hooks []Webhook
	if err := s.db.Find(&hooks).Error; err != nil {
		return nil, common.Internalf(err, "failed to list webhooks")
	}
	return hooks, nil
}

func (s *Store) DeleteWebhook(id uint) error {
	result := s.db.Delete(&Webhook{}, id)
	if result.Error != nil {
		return common.Internalf(result.Error, "failed to delete webhook")
	}
	if result.RowsAffected == 0 {
		return common.NotFoundf("webhook %d not found", id)
	}
	return nil
}

// --- singletons ---

func (s *Store) SourceIntegration() (*SourceIntegration, error) {
	var si SourceIntegration
	err := s.db.First(&si).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NotFoundf("source integration not configured")
	}
	if err != nil {
		return nil, common.Internalf(err, "failed to load source integration")
	}
	return &si, nil
}

func (s *Store) SetSourceIntegration(si *SourceIntegration) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&SourceIntegration{}).Error; err != nil {
			return common.Internalf(err, "failed to replace source integration")
		}
		si.ID = 0
		if err := tx.Create(si).Error; err != nil {
			return common.Internalf(err, "failed to save source integration")
		}
		return nil
	})
}

func (s *Store) DeleteSourceIntegration() error {
	if err := s.db.Where("1 = 1").Delete(&SourceIntegration{}).Error; err != nil {
		return common.Internalf(err, "failed to delete source integration")
	}
	return nil
}

func (s *Store) ObjectStore() (*ObjectStoreConfig, error) {
	var cfg ObjectStoreConfig
	err := s.db.First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NotFoundf("object store not configured")
	}
	if err != nil {
		return nil, common.Internalf(err, "failed to load object store config")
	}
	return &cfg, nil
}

func (s *Store) SetObjectStore(cfg *ObjectStoreConfig) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&ObjectStoreConfig{}).Error; err != nil {
			return common.Internalf(err, "failed to replace object store config")
		}
		cfg.ID = 0
		if err := tx.Create(cfg).Error; err != nil {
			return common.Internalf(err, "failed to save object store config")
		}
		return nil
	})
}

// --- metrics ---

func (s *Store) AddMetric(m *ServerMetric) error {
	if m.RecordedAt.IsZero() {
		m.RecordedAt = time.Now().UTC()
	}
	if err := s.db.Create(m).Error; err != nil {
		return common.Internalf(err, "failed to record metric")
	}
	return nil
}

// Metrics returns samples for a server recorded at or after since, in
// chronological order.
func (s *Store) Metrics(serverID uint, since time.Time) ([]ServerMetric, error) {
	var out []ServerMetric
	err := s.db.Where("server_id = ? AND recorded_at >= ?", serverID, since).
		Order("recorded_at").Find(&out).Error
	if err != nil {
		return nil, common.Internalf(err, "failed to list metrics")
	}
	return out, nil
}

// isUniqueViolation detects duplicate-key failures across drivers.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint violation")
}

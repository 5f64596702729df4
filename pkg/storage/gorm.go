package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cuemby/panelsync/pkg/log"
	"github.com/cuemby/panelsync/pkg/types"
	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type serverRow struct {
	ID             string `gorm:"primaryKey"`
	Identifier     string `gorm:"uniqueIndex;not null"`
	PanelURL       string `gorm:"index"`
	PanelID        int
	UUID           string
	Name           string
	Description    string
	Status         string
	UpstreamStatus string
	Suspended      bool
	Limits         types.Limits        `gorm:"embedded;embeddedPrefix:limit_"`
	FeatureLimits  types.FeatureLimits `gorm:"embedded;embeddedPrefix:feature_"`
	NodeID         int
	NestID         int
	EggID          int
	Container      types.Container `gorm:"serializer:json"`
	OwnerUserID    string
	LastSyncAt     time.Time
	CreatedAt      time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime:false"`
}

func (serverRow) TableName() string { return "mirrored_servers" }

type syncRow struct {
	PanelURL string           `gorm:"primaryKey"`
	Result   types.SyncResult `gorm:"serializer:json"`
}

func (syncRow) TableName() string { return "sync_results" }

// GormStore implements Store on SQLite through gorm
type GormStore struct {
	db *gorm.DB
}

// gormWriter routes gorm's printf-style logging into zerolog
type gormWriter struct {
	logger zerolog.Logger
}

func (w gormWriter) Printf(format string, args ...any) {
	w.logger.Warn().Msgf(format, args...)
}

// NewGormStore opens (or creates) the SQLite database at path
func NewGormStore(path string) (*GormStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	newLogger := gormlogger.New(
		gormWriter{logger: log.WithComponent("gorm")},
		gormlogger.Config{
			SlowThreshold:             time.Second,
			IgnoreRecordNotFoundError: true,
			LogLevel:                  gormlogger.Error,
		},
	)

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: newLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&serverRow{}, &syncRow{}); err != nil {
		return nil, fmt.Errorf("error migrating database: %w", err)
	}

	return &GormStore{db: db}, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) FindByIdentifier(identifier string) (*types.MirroredServer, error) {
	var row serverRow
	if err := s.db.First(&row, "identifier = ?", identifier).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.toServer(), nil
}

func (s *GormStore) ListServers() ([]*types.MirroredServer, error) {
	var rows []serverRow
	if err := s.db.Order("identifier").Find(&rows).Error; err != nil {
		return nil, err
	}
	servers := make([]*types.MirroredServer, 0, len(rows))
	for i := range rows {
		servers = append(servers, rows[i].toServer())
	}
	return servers, nil
}

func (s *GormStore) CreateServer(srv *types.MirroredServer) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&serverRow{}).Where("identifier = ?", srv.Identifier).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: %s", ErrExists, srv.Identifier)
		}
		row := toRow(srv)
		return tx.Create(&row).Error
	})
}

func (s *GormStore) UpdateServer(srv *types.MirroredServer) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var existing serverRow
		if err := tx.Select("id").First(&existing, "identifier = ?", srv.Identifier).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", ErrNotFound, srv.Identifier)
			}
			return err
		}
		row := toRow(srv)
		row.ID = existing.ID
		return tx.Save(&row).Error
	})
}

func (s *GormStore) DeleteServersNotIn(panelURL string, keep []string) ([]string, error) {
	var deleted []string
	err := s.db.Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&serverRow{}).Where("panel_url = ?", panelURL)
		if len(keep) > 0 {
			q = q.Where("identifier NOT IN ?", keep)
		}
		if err := q.Pluck("identifier", &deleted).Error; err != nil {
			return err
		}
		if len(deleted) == 0 {
			return nil
		}
		return tx.Where("identifier IN ?", deleted).Delete(&serverRow{}).Error
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(deleted)
	return deleted, nil
}

func (s *GormStore) RecordSync(result *types.SyncResult) error {
	return s.db.Save(&syncRow{PanelURL: result.PanelURL, Result: *result}).Error
}

func (s *GormStore) LastSync(panelURL string) (*types.SyncResult, error) {
	var row syncRow
	if err := s.db.First(&row, "panel_url = ?", panelURL).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &row.Result, nil
}

func toRow(srv *types.MirroredServer) serverRow {
	return serverRow{
		ID:             srv.ID,
		Identifier:     srv.Identifier,
		PanelURL:       srv.PanelURL,
		PanelID:        srv.PanelID,
		UUID:           srv.UUID,
		Name:           srv.Name,
		Description:    srv.Description,
		Status:         string(srv.Status),
		UpstreamStatus: srv.UpstreamStatus,
		Suspended:      srv.Suspended,
		Limits:         srv.Limits,
		FeatureLimits:  srv.FeatureLimits,
		NodeID:         srv.NodeID,
		NestID:         srv.NestID,
		EggID:          srv.EggID,
		Container:      srv.Container,
		OwnerUserID:    srv.OwnerUserID,
		LastSyncAt:     srv.LastSyncAt,
		CreatedAt:      srv.CreatedAt,
		UpdatedAt:      srv.UpdatedAt,
	}
}

func (r *serverRow) toServer() *types.MirroredServer {
	return &types.MirroredServer{
		ID:             r.ID,
		PanelURL:       r.PanelURL,
		Identifier:     r.Identifier,
		PanelID:        r.PanelID,
		UUID:           r.UUID,
		Name:           r.Name,
		Description:    r.Description,
		Status:         types.ServerStatus(r.Status),
		UpstreamStatus: r.UpstreamStatus,
		Suspended:      r.Suspended,
		Limits:         r.Limits,
		FeatureLimits:  r.FeatureLimits,
		NodeID:         r.NodeID,
		NestID:         r.NestID,
		EggID:          r.EggID,
		Container:      r.Container,
		OwnerUserID:    r.OwnerUserID,
		LastSyncAt:     r.LastSyncAt,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

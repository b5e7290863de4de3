package repository

import (
	"context"
	"errors"
	"time"

	"pos/internal/domain/model"
	repo "pos/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SnapshotGormRepository struct {
	db        *gorm.DB
	namespace string
}

// DI
func NewSnapshotGormRepository(db *gorm.DB, namespace string) *SnapshotGormRepository {
	return &SnapshotGormRepository{db: db, namespace: namespace}
}

// cart_snapshotsテーブルを作る
func MigrateSnapshots(db *gorm.DB) error {
	return db.AutoMigrate(&model.SnapshotRecord{})
}

// namespaceの行を読む
func (r *SnapshotGormRepository) Load(ctx context.Context) (model.Snapshot, error) {
	var rec model.SnapshotRecord

	err := r.db.WithContext(ctx).
		Where("namespace = ?", r.namespace).
		First(&rec).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Snapshot{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Snapshot{}, err
	}

	return decodeSnapshot([]byte(rec.Payload))
}

// 丸ごとupsert
func (r *SnapshotGormRepository) Save(ctx context.Context, snap model.Snapshot) error {
	payload, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}

	rec := model.SnapshotRecord{
		Namespace: r.namespace,
		Payload:   string(payload),
		UpdatedAt: time.Now(),
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "namespace"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
		}).
		Create(&rec).Error
}

// 保存データを消す（テスト・初期化用）
func (r *SnapshotGormRepository) Delete(ctx context.Context) error {
	res := r.db.WithContext(ctx).
		Where("namespace = ?", r.namespace).
		Delete(&model.SnapshotRecord{})

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

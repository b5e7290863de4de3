package repository

import (
	"context"

	"pos/internal/domain/model"
)

// カート状態の保存先の約束（namespaceは実装側で固定）
type SnapshotRepository interface {
	// 無ければErrNotFound、壊れていればErrCorruptSnapshot
	Load(ctx context.Context) (model.Snapshot, error)

	// 丸ごと上書き
	Save(ctx context.Context, snap model.Snapshot) error
}

package repository

import (
	"context"
	"sync"

	"pos/internal/domain/model"
	repo "pos/internal/repository"
)

// メモリ上の保存先
// JSONにして持つので、呼び出し側とスライスを共有しない。
type SnapshotMemoryRepository struct {
	mu      sync.Mutex
	payload []byte
	saves   int
	saveErr error
}

func NewSnapshotMemoryRepository() *SnapshotMemoryRepository {
	return &SnapshotMemoryRepository{}
}

func (r *SnapshotMemoryRepository) Load(ctx context.Context) (model.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.payload == nil {
		return model.Snapshot{}, repo.ErrNotFound
	}
	return decodeSnapshot(r.payload)
}

func (r *SnapshotMemoryRepository) Save(ctx context.Context, snap model.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.saveErr != nil {
		return r.saveErr
	}

	payload, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	r.payload = payload
	r.saves++
	return nil
}

// 生のJSONを入れる（壊れたデータの再現用）
func (r *SnapshotMemoryRepository) SetRaw(payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payload = payload
}

// nil以外ならSaveはそのエラーを返す
func (r *SnapshotMemoryRepository) FailSaves(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saveErr = err
}

// 成功したSaveの回数
func (r *SnapshotMemoryRepository) Saves() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

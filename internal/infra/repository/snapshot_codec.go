package repository

import (
	"encoding/json"
	"fmt"

	"pos/internal/domain/model"
	repo "pos/internal/repository"
)

func encodeSnapshot(snap model.Snapshot) ([]byte, error) {
	if snap.Carts == nil {
		snap.Carts = []model.Cart{}
	}
	return json.Marshal(snap)
}

// 読めないJSONはErrCorruptSnapshotで包む
func decodeSnapshot(payload []byte) (model.Snapshot, error) {
	var snap model.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return model.Snapshot{}, fmt.Errorf("%w: %v", repo.ErrCorruptSnapshot, err)
	}
	if snap.Carts == nil {
		snap.Carts = []model.Cart{}
	}
	return snap, nil
}

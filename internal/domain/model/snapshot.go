package model

import "time"

// 永続化する状態の丸ごとのコピー
type Snapshot struct {
	Carts        []Cart  `json:"carts"`
	ActiveCartID *string `json:"activeCartId"`
}

func EmptySnapshot() Snapshot {
	return Snapshot{Carts: []Cart{}, ActiveCartID: nil}
}

// cart_snapshotsテーブル（namespaceごとに1行）
type SnapshotRecord struct {
	Namespace string    `gorm:"primaryKey;type:varchar(100)" json:"namespace"`
	Payload   string    `gorm:"type:text;not null" json:"payload"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (SnapshotRecord) TableName() string {
	return "cart_snapshots"
}

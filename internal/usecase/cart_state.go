package usecase

import "pos/internal/domain/model"

// 不変の状態。作ったあとは書き換えない（差し替えるだけ）。
type cartState struct {
	carts    []model.Cart
	activeID string
	version  uint64
}

func (st *cartState) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i, c := range st.carts {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (st *cartState) activeIndex() int {
	return st.indexOf(st.activeID)
}

// idx番目のカートの明細だけ差し替えた新しい状態
func (st *cartState) withItems(idx int, items []model.CartItem) *cartState {
	carts := make([]model.Cart, len(st.carts))
	copy(carts, st.carts)
	carts[idx].Items = items
	return &cartState{carts: carts, activeID: st.activeID}
}

// idx番目のカートを除いた状態。アクティブだったら先頭のカートへ（無ければ未設定）。
func (st *cartState) without(idx int) *cartState {
	carts := make([]model.Cart, 0, len(st.carts)-1)
	carts = append(carts, st.carts[:idx]...)
	carts = append(carts, st.carts[idx+1:]...)

	active := st.activeID
	if active == st.carts[idx].ID {
		active = ""
		if len(carts) > 0 {
			active = carts[0].ID
		}
	}
	return &cartState{carts: carts, activeID: active}
}

func (st *cartState) snapshot() model.Snapshot {
	carts := make([]model.Cart, len(st.carts))
	for i, c := range st.carts {
		carts[i] = c.Clone()
	}

	snap := model.Snapshot{Carts: carts}
	if st.activeID != "" {
		id := st.activeID
		snap.ActiveCartID = &id
	}
	return snap
}

// 保存データから状態を作る。
// 不正な部分（重複ID・数量0以下・同じ販売単位の重複・宙に浮いたアクティブ参照）は直し、repaired=trueを返す。
func stateFromSnapshot(snap model.Snapshot) (*cartState, bool) {
	repaired := false
	seen := make(map[string]bool, len(snap.Carts))
	carts := make([]model.Cart, 0, len(snap.Carts))

	for _, c := range snap.Carts {
		if c.ID == "" || seen[c.ID] {
			repaired = true
			continue
		}
		seen[c.ID] = true

		items, fixed := sanitizeItems(c.Items)
		if fixed {
			repaired = true
		}
		c = c.Clone()
		c.Items = items
		carts = append(carts, c)
	}

	st := &cartState{carts: carts}
	if snap.ActiveCartID != nil && *snap.ActiveCartID != "" {
		st.activeID = *snap.ActiveCartID
		if st.activeIndex() < 0 {
			repaired = true
			st.activeID = ""
			if len(carts) > 0 {
				st.activeID = carts[0].ID
			}
		}
	}
	return st, repaired
}

func sanitizeItems(in []model.CartItem) ([]model.CartItem, bool) {
	fixed := false
	out := make([]model.CartItem, 0, len(in))
	for _, it := range in {
		if it.Quantity < 1 || indexOfItem(out, it.Product.SaleUnitID) >= 0 {
			fixed = true
			continue
		}
		out = append(out, it)
	}
	return out, fixed
}

// =====================
// 明細スライス（元のスライスは変更しない）
// =====================

func indexOfItem(items []model.CartItem, saleUnitID int64) int {
	for i, it := range items {
		if it.Product.SaleUnitID == saleUnitID {
			return i
		}
	}
	return -1
}

func sameItem(a, b model.CartItem) bool {
	return a.Quantity == b.Quantity &&
		a.Wholesale == b.Wholesale &&
		a.Price.Valid == b.Price.Valid &&
		(!a.Price.Valid || a.Price.Decimal.Equal(b.Price.Decimal))
}

func replaceItem(items []model.CartItem, i int, it model.CartItem) []model.CartItem {
	out := make([]model.CartItem, len(items))
	copy(out, items)
	out[i] = it
	return out
}

func appendItem(items []model.CartItem, it model.CartItem) []model.CartItem {
	out := make([]model.CartItem, len(items), len(items)+1)
	copy(out, items)
	return append(out, it)
}

func removeItem(items []model.CartItem, i int) []model.CartItem {
	out := make([]model.CartItem, 0, len(items)-1)
	out = append(out, items[:i]...)
	return append(out, items[i+1:]...)
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"pos/internal/domain/model"
	repo "pos/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// UUID 等のIDを作る約束
type IDGenerator interface {
	NewID() string
}

// 現在の時間
type Clock interface {
	Now() time.Time
}

// 保存結果の通知先（メトリクス）
type SnapshotObserver interface {
	SnapshotSaved(namespace string)
	SnapshotFailed(namespace string)
}

type noopObserver struct{}

func (noopObserver) SnapshotSaved(string)  {}
func (noopObserver) SnapshotFailed(string) {}

type CartStoreOptions struct {
	Namespace string

	// 名前なしで作ったカートの接頭辞（"Carrito 14:05:09"）
	DefaultNamePrefix string

	// 保存失敗後の再試行間隔
	RetryInterval time.Duration

	// 1回の保存の上限時間
	SaveTimeout time.Duration

	Logger   *zap.SugaredLogger
	Observer SnapshotObserver
}

// CartStore は複数の名前付きカートと「アクティブ」なカートを持つ。
//
// 状態は不変の値として扱い、変更のたびに新しい値を作って atomic に差し替える。
// 読み取り側はロック不要で、変更前か変更後のどちらかだけを見る。
// 見つからないIDへの操作はすべて何もしない（エラーにしない）。
//
// 保存はバックグラウンドで行い、変更操作を待たせない。
type CartStore struct {
	repo  repo.SnapshotRepository
	idGen IDGenerator
	clock Clock

	namespace   string
	namePrefix  string
	retry       time.Duration
	saveTimeout time.Duration
	log         *zap.SugaredLogger
	obs         SnapshotObserver

	mu    sync.Mutex
	state atomic.Pointer[cartState]

	saveMu       sync.Mutex
	savedVersion uint64

	notify    chan struct{}
	stop      chan struct{}
	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
}

// DI（保存用のgoroutineも起動する。Closeで止める）
func NewCartStore(snapshots repo.SnapshotRepository, idGen IDGenerator, clock Clock, opts CartStoreOptions) *CartStore {
	if opts.DefaultNamePrefix == "" {
		opts.DefaultNamePrefix = "Carrito"
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 2 * time.Second
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}

	s := &CartStore{
		repo:        snapshots,
		idGen:       idGen,
		clock:       clock,
		namespace:   opts.Namespace,
		namePrefix:  opts.DefaultNamePrefix,
		retry:       opts.RetryInterval,
		saveTimeout: opts.SaveTimeout,
		log:         opts.Logger.With("namespace", opts.Namespace),
		obs:         opts.Observer,
		notify:      make(chan struct{}, 1),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	s.state.Store(&cartState{carts: []model.Cart{}})

	go s.run()
	return s
}

// 保存データで状態を丸ごと置き換える。
// 無い・壊れている場合は空の状態から始める。それ以外の読み込みエラーは返す。
func (s *CartStore) Load(ctx context.Context) error {
	snap, err := s.repo.Load(ctx)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		snap = model.EmptySnapshot()
	case errors.Is(err, repo.ErrCorruptSnapshot):
		s.log.Warnw("cart snapshot unreadable, starting empty", "error", err)
		snap = model.EmptySnapshot()
	case err != nil:
		return fmt.Errorf("load cart snapshot: %w", err)
	}

	st, repaired := stateFromSnapshot(snap)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.saveMu.Lock()
	st.version = s.state.Load().version + 1
	s.savedVersion = st.version
	s.saveMu.Unlock()

	if repaired {
		st.version++
		s.log.Warnw("cart snapshot repaired on load", "carts", len(st.carts))
	}
	s.state.Store(st)
	if repaired {
		s.schedule()
	}

	s.log.Infow("cart snapshot loaded", "carts", len(st.carts), "active_cart_id", st.activeID)
	return nil
}

// =====================
// 変更操作
// =====================

type CreateCartInput struct {
	Name       string
	SupplierID *int64
}

// 新しいカートを作ってアクティブにする。IDを返す。
func (s *CartStore) CreateCart(in CreateCartInput) string {
	var id string
	s.update(func(cur *cartState) *cartState {
		next, newID := s.appendCart(cur, in)
		id = newID
		return next
	})
	return id
}

func (s *CartStore) SetActiveCart(id string) {
	s.update(func(cur *cartState) *cartState {
		if cur.activeID == id || cur.indexOf(id) < 0 {
			return nil
		}
		return &cartState{carts: cur.carts, activeID: id}
	})
}

// 削除したのがアクティブなら先頭のカートへ（無ければ未設定）
func (s *CartStore) DeleteCart(id string) {
	s.update(func(cur *cartState) *cartState {
		idx := cur.indexOf(id)
		if idx < 0 {
			return nil
		}
		return cur.without(idx)
	})
}

// 空白だけの名前は無視
func (s *CartStore) RenameCart(id string, name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}

	s.update(func(cur *cartState) *cartState {
		idx := cur.indexOf(id)
		if idx < 0 || cur.carts[idx].Name == name {
			return nil
		}

		carts := make([]model.Cart, len(cur.carts))
		copy(carts, cur.carts)
		carts[idx].Name = name
		return &cartState{carts: carts, activeID: cur.activeID}
	})
}

// AddProduct はアクティブカートへ商品を追加する（無ければカートを作る）。
// 同じ販売単位が既にあれば数量を足す。qty < 1 は呼び出し側の誤りとして何もしない。
func (s *CartStore) AddProduct(p model.ProductRef, qty int) {
	if qty < 1 {
		return
	}

	s.update(func(cur *cartState) *cartState {
		next, idx := s.ensureActiveCart(cur)
		items := next.carts[idx].Items

		if i := indexOfItem(items, p.SaleUnitID); i >= 0 {
			it := items[i]
			it.Quantity += qty
			return next.withItems(idx, replaceItem(items, i, it))
		}

		it := model.CartItem{
			Product:  p,
			Quantity: qty,
			UnitCost: p.Cost,
		}
		return next.withItems(idx, appendItem(items, it))
	})
}

func (s *CartStore) RemoveProduct(saleUnitID int64) {
	s.updateActiveItems(func(items []model.CartItem) ([]model.CartItem, bool) {
		i := indexOfItem(items, saleUnitID)
		if i < 0 {
			return nil, false
		}
		return removeItem(items, i), true
	})
}

// 数量を上書き（差分ではない）。1未満なら明細ごと消す。
func (s *CartStore) UpdateQuantity(saleUnitID int64, qty int) {
	s.updateActiveItems(func(items []model.CartItem) ([]model.CartItem, bool) {
		i := indexOfItem(items, saleUnitID)
		if i < 0 {
			return nil, false
		}
		if qty < 1 {
			return removeItem(items, i), true
		}
		if items[i].Quantity == qty {
			return nil, false
		}
		it := items[i]
		it.Quantity = qty
		return replaceItem(items, i, it), true
	})
}

// 無い明細は作らない（AddProductとは違う）
func (s *CartStore) IncrementQuantity(saleUnitID int64) {
	s.updateActiveItems(func(items []model.CartItem) ([]model.CartItem, bool) {
		i := indexOfItem(items, saleUnitID)
		if i < 0 {
			return nil, false
		}
		it := items[i]
		it.Quantity++
		return replaceItem(items, i, it), true
	})
}

// 数量1なら明細を消す。0の明細は残さない。
func (s *CartStore) DecrementQuantity(saleUnitID int64) {
	s.updateActiveItems(func(items []model.CartItem) ([]model.CartItem, bool) {
		i := indexOfItem(items, saleUnitID)
		if i < 0 {
			return nil, false
		}
		if items[i].Quantity <= 1 {
			return removeItem(items, i), true
		}
		it := items[i]
		it.Quantity--
		return replaceItem(items, i, it), true
	})
}

// 上書き価格をセット（符号・範囲はチェックしない）
func (s *CartStore) UpdatePrice(saleUnitID int64, price decimal.Decimal) {
	s.updateActiveItems(func(items []model.CartItem) ([]model.CartItem, bool) {
		i := indexOfItem(items, saleUnitID)
		if i < 0 {
			return nil, false
		}
		it := items[i]
		it.Price = decimal.NullDecimal{Decimal: price, Valid: true}
		return replaceItem(items, i, it), true
	})
}

func (s *CartStore) SetWholesale(saleUnitID int64, wholesale bool) {
	s.updateActiveItems(func(items []model.CartItem) ([]model.CartItem, bool) {
		i := indexOfItem(items, saleUnitID)
		if i < 0 || items[i].Wholesale == wholesale {
			return nil, false
		}
		it := items[i]
		it.Wholesale = wholesale
		return replaceItem(items, i, it), true
	})
}

// 明細の部分更新。nilの項目は変えない。
// Priceが非nilでValid=falseなら上書き価格を消す。Quantityが1未満なら明細ごと消す。
type ItemUpdate struct {
	Quantity  *int
	Price     *decimal.NullDecimal
	Wholesale *bool
}

// 複数項目を1回の差し替えで反映する（途中の状態は見えない）
func (s *CartStore) UpdateItem(saleUnitID int64, u ItemUpdate) {
	s.updateActiveItems(func(items []model.CartItem) ([]model.CartItem, bool) {
		i := indexOfItem(items, saleUnitID)
		if i < 0 {
			return nil, false
		}
		if u.Quantity != nil && *u.Quantity < 1 {
			return removeItem(items, i), true
		}

		it := items[i]
		if u.Price != nil {
			it.Price = *u.Price
		}
		if u.Wholesale != nil {
			it.Wholesale = *u.Wholesale
		}
		if u.Quantity != nil {
			it.Quantity = *u.Quantity
		}
		if sameItem(it, items[i]) {
			return nil, false
		}
		return replaceItem(items, i, it), true
	})
}

// SettleCart は確定済みの明細をカートから差し引く。
// 送った数量だけ減らし、送信後に足された分は残す。明細が無くなればカートごと消す。
func (s *CartStore) SettleCart(id string, sold []model.CartItem) {
	s.update(func(cur *cartState) *cartState {
		idx := cur.indexOf(id)
		if idx < 0 {
			return nil
		}

		items := cur.carts[idx].Items
		for _, sl := range sold {
			i := indexOfItem(items, sl.Product.SaleUnitID)
			if i < 0 {
				continue
			}
			if items[i].Quantity <= sl.Quantity {
				items = removeItem(items, i)
				continue
			}
			it := items[i]
			it.Quantity -= sl.Quantity
			items = replaceItem(items, i, it)
		}

		if len(items) > 0 {
			return cur.withItems(idx, items)
		}
		return cur.without(idx)
	})
}

// 明細だけ空にする（ID・名前はそのまま）
func (s *CartStore) ClearCart() {
	s.updateActiveItems(func(items []model.CartItem) ([]model.CartItem, bool) {
		if len(items) == 0 {
			return nil, false
		}
		return []model.CartItem{}, true
	})
}

// =====================
// 読み取り
// =====================

func (s *CartStore) ActiveCart() (model.Cart, bool) {
	st := s.state.Load()
	idx := st.activeIndex()
	if idx < 0 {
		return model.Cart{}, false
	}
	return st.carts[idx].Clone(), true
}

func (s *CartStore) ActiveCartID() string {
	return s.state.Load().activeID
}

// 作成順
func (s *CartStore) Carts() []model.Cart {
	st := s.state.Load()
	out := make([]model.Cart, len(st.carts))
	for i, c := range st.carts {
		out[i] = c.Clone()
	}
	return out
}

func (s *CartStore) TotalItems() int {
	st := s.state.Load()
	idx := st.activeIndex()
	if idx < 0 {
		return 0
	}

	total := 0
	for _, it := range st.carts[idx].Items {
		total += it.Quantity
	}
	return total
}

// 上書き価格があればそれ、無ければ追加時点の原価 × 数量 の合計
func (s *CartStore) TotalCost() decimal.Decimal {
	return s.sumActive(model.CartItem.EffectiveCost)
}

// 販売価格の合計（上書き > 卸売 > 小売）
func (s *CartStore) TotalPrice() decimal.Decimal {
	return s.sumActive(model.CartItem.EffectivePrice)
}

func (s *CartStore) Snapshot() model.Snapshot {
	return s.state.Load().snapshot()
}

func (s *CartStore) sumActive(unit func(model.CartItem) decimal.Decimal) decimal.Decimal {
	st := s.state.Load()
	idx := st.activeIndex()
	if idx < 0 {
		return decimal.Zero
	}

	total := decimal.Zero
	for _, it := range st.carts[idx].Items {
		total = total.Add(unit(it).Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

// =====================
// 保存
// =====================

// 今の状態をすぐ保存する（未保存の変更が無ければ何もしない）
func (s *CartStore) Flush(ctx context.Context) error {
	return s.persist(ctx)
}

// 保存用goroutineを止めて最後に1回保存する
// Close後の変更はその場で同期保存する
func (s *CartStore) Close(ctx context.Context) error {
	s.closed.Store(true)
	s.closeOnce.Do(func() {
		close(s.stop)
		<-s.done
	})
	return s.persist(ctx)
}

func (s *CartStore) schedule() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// 通知が来たら最新の状態を書く。失敗したら retry 後にもう一度。
func (s *CartStore) run() {
	defer close(s.done)

	var timer *time.Timer
	var retry <-chan time.Time

	for {
		select {
		case <-s.stop:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-s.notify:
		case <-retry:
		}

		if timer != nil {
			timer.Stop()
			timer, retry = nil, nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.saveTimeout)
		err := s.persist(ctx)
		cancel()

		if err != nil {
			timer = time.NewTimer(s.retry)
			retry = timer.C
		}
	}
}

func (s *CartStore) persist(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	st := s.state.Load()
	if st.version == s.savedVersion {
		return nil
	}

	if err := s.repo.Save(ctx, st.snapshot()); err != nil {
		s.log.Errorw("cart snapshot save failed", "version", st.version, "error", err)
		s.obs.SnapshotFailed(s.namespace)
		return err
	}

	s.savedVersion = st.version
	s.obs.SnapshotSaved(s.namespace)
	return nil
}

// =====================
// 内部
// =====================

// fnは新しい状態を返す。nilなら変更なし（差し替えも保存もしない）。
func (s *CartStore) update(fn func(cur *cartState) *cartState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.state.Load()
	next := fn(cur)
	if next == nil {
		return false
	}
	next.version = cur.version + 1
	s.state.Store(next)
	s.schedule()

	//保存goroutineはもう居ない
	if s.closed.Load() {
		s.log.Warnw("cart store changed after close, saving synchronously", "version", next.version)
		ctx, cancel := context.WithTimeout(context.Background(), s.saveTimeout)
		defer cancel()
		_ = s.persist(ctx)
	}
	return true
}

// アクティブカートの明細を差し替える。アクティブが無ければ何もしない。
func (s *CartStore) updateActiveItems(fn func(items []model.CartItem) ([]model.CartItem, bool)) {
	s.update(func(cur *cartState) *cartState {
		idx := cur.activeIndex()
		if idx < 0 {
			return nil
		}
		items, ok := fn(cur.carts[idx].Items)
		if !ok {
			return nil
		}
		return cur.withItems(idx, items)
	})
}

// アクティブカートが無ければ作る。アクティブの位置を返す。
func (s *CartStore) ensureActiveCart(cur *cartState) (*cartState, int) {
	if idx := cur.activeIndex(); idx >= 0 {
		return cur, idx
	}
	next, _ := s.appendCart(cur, CreateCartInput{})
	return next, len(next.carts) - 1
}

func (s *CartStore) appendCart(cur *cartState, in CreateCartInput) (*cartState, string) {
	now := s.clock.Now()

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = s.defaultCartName(now)
	}

	var supplierID *int64
	if in.SupplierID != nil {
		v := *in.SupplierID
		supplierID = &v
	}

	cart := model.Cart{
		ID:         s.newCartID(cur),
		Name:       name,
		Items:      []model.CartItem{},
		CreatedAt:  now,
		SupplierID: supplierID,
	}

	carts := make([]model.Cart, len(cur.carts), len(cur.carts)+1)
	copy(carts, cur.carts)
	carts = append(carts, cart)

	return &cartState{carts: carts, activeID: cart.ID}, cart.ID
}

func (s *CartStore) newCartID(cur *cartState) string {
	for {
		id := s.idGen.NewID()
		if id != "" && cur.indexOf(id) < 0 {
			return id
		}
	}
}

func (s *CartStore) defaultCartName(now time.Time) string {
	return s.namePrefix + " " + now.Format("15:04:05")
}

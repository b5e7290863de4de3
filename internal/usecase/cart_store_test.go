package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pos/internal/domain/model"
	infraRepo "pos/internal/infra/repository"
	repo "pos/internal/repository"
	"pos/internal/usecase"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// =====================
// Fakes
// =====================

type seqIDGen struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDGen) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("cart-%d", g.n)
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type countingObserver struct {
	saved  atomic.Int64
	failed atomic.Int64
}

func (o *countingObserver) SnapshotSaved(string)  { o.saved.Add(1) }
func (o *countingObserver) SnapshotFailed(string) { o.failed.Add(1) }

type SnapshotRepoMock struct{ mock.Mock }

func (m *SnapshotRepoMock) Load(ctx context.Context) (model.Snapshot, error) {
	args := m.Called(ctx)
	snap, _ := args.Get(0).(model.Snapshot)
	return snap, args.Error(1)
}

func (m *SnapshotRepoMock) Save(ctx context.Context, snap model.Snapshot) error {
	args := m.Called(ctx, snap)
	return args.Error(0)
}

var testNow = time.Date(2026, 10, 18, 10, 30, 0, 0, time.UTC)

func newTestStore(t *testing.T, snapshots repo.SnapshotRepository, obs usecase.SnapshotObserver) *usecase.CartStore {
	t.Helper()
	s := usecase.NewCartStore(snapshots, &seqIDGen{}, fixedClock{t: testNow}, usecase.CartStoreOptions{
		Namespace:     model.SalesCartNamespace,
		RetryInterval: 10 * time.Millisecond,
		Logger:        zaptest.NewLogger(t).Sugar(),
		Observer:      obs,
	})
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func product(unitID int64, cost string) model.ProductRef {
	return model.ProductRef{
		SaleUnitID: unitID,
		ProductID:  unitID * 100,
		Name:       fmt.Sprintf("Producto %d", unitID),
		Cost:       decimal.RequireFromString(cost),
		Price:      decimal.RequireFromString(cost).Mul(decimal.RequireFromString("1.5")),
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// アクティブ参照が空か、存在するカートを指していること
func assertActiveValid(t *testing.T, s *usecase.CartStore) {
	t.Helper()
	id := s.ActiveCartID()
	if id == "" {
		return
	}
	for _, c := range s.Carts() {
		if c.ID == id {
			return
		}
	}
	t.Fatalf("active cart %q is dangling", id)
}

// =====================
// Scenarios
// =====================

func TestCartStore_CreateCart_BecomesActive(t *testing.T) {
	s := newTestStore(t, infraRepo.NewSnapshotMemoryRepository(), nil)

	a := s.CreateCart(usecase.CreateCartInput{})
	b := s.CreateCart(usecase.CreateCartInput{Name: "Compra Proveedor X"})

	assert.NotEqual(t, a, b)
	assert.Equal(t, b, s.ActiveCartID())

	cart, ok := s.ActiveCart()
	require.True(t, ok)
	assert.Equal(t, "Compra Proveedor X", cart.Name)
	assert.Empty(t, cart.Items)
	assert.Equal(t, testNow, cart.CreatedAt)

	carts := s.Carts()
	require.Len(t, carts, 2)
	assert.Equal(t, a, carts[0].ID)
	assert.Equal(t, "Carrito 10:30:00", carts[0].Name)
}

func TestCartStore_CreateCart_WithSupplier(t *testing.T) {
	s := newTestStore(t, infraRepo.NewSnapshotMemoryRepository(), nil)

	supplier := int64(42)
	s.CreateCart(usecase.CreateCartInput{Name: "Proveedor", SupplierID: &supplier})
	supplier = 7

	cart, ok := s.ActiveCart()
	require.True(t, ok)
	require.NotNil(t, cart.SupplierID)
	assert.Equal(t, int64(42), *cart.SupplierID)
}

func TestCartStore_AddSameProduct_Merges(t *testing.T) {
	s := newTestStore(t, infraRepo.NewSnapshotMemoryRepository(), nil)
	s.CreateCart(usecase.CreateCartInput{})

	s.AddProduct(product(10, "5.00"), 2)
	s.AddProduct(product(10, "5.00"), 3)

	cart, ok := s.ActiveCart()
	require.True(t, ok)
	require.Len(t, cart.Items, 1)

	it, ok := cart.FindItem(10)
	require.True(t, ok)
	assert.Equal(t, 5, it.Quantity)
	assert.False(t, it.Price.Valid)
	assert.False(t, it.Wholesale)

	assert.Equal(t, 5, s.TotalItems())
	assert.True(t, dec("25").Equal(s.TotalCost()), "got %s", s.TotalCost())
}

func TestCartStore_UpdatePrice_OverridesCost(t *testing.T) {
	s := newTestStore(t, infraRepo.NewSnapshotMemoryRepository(), nil)
	s.AddProduct(product(10, "5.00"), 2)
	s.AddProduct(product(10, "5.00"), 3)

	s.UpdatePrice(10, dec("4.00"))

	assert.True(t, dec("20").Equal(s.TotalCost()), "got %s", s.TotalCost())
}

func TestCartStore_DecrementToZero_RemovesItem(t *testing.T) {
	s := newTestStore(t, infraRepo.NewSnapshotMemoryRepository(), nil)
	s.AddProduct(product(10, "5.00"), 5)

	for i := 0; i < 4; i++ {
		s.DecrementQuantity(10)
	}
	cart, _ := s.ActiveCart()
	it, ok := cart.FindItem(10)
	require.True(t, ok)
	assert.Equal(t, 1, it.Quantity)

	s.DecrementQuantity(10)

	cart, _ = s.ActiveCart()
	_, ok = cart.FindItem(10)
	assert.False(t, ok)
	assert.Equal(t, 0, s.TotalItems())
	assert.True(t, decimal.Zero.Equal(s.TotalCost()))
}

func TestCartStore_DeleteActive_MovesToFirstRemaining(t *testing.T) {
	s := newTestStore(t, infraRepo.NewSnapshotMemoryRepository(), nil)
	a := s.CreateCart(usecase.CreateCartInput{Name: "A"})
	b := s.CreateCart(usecase.CreateCartInput{Name: "B"})
	s.SetActiveCart(a)
	s.AddProduct(product(1, "3"), 1)

	s.DeleteCart(a)

	assert.Equal(t, b, s.ActiveCartID())
	cart, ok := s.ActiveCart()
	require.True(t, ok)
	assert.Equal(t, "B", cart.Name)
	assertActiveValid(t, s)
}

func TestCartStore_DeleteNonActive_KeepsActive(t *testing.T) {
	s := newTestStore(t, infraRepo.NewSnapshotMemoryRepository(), nil)
	a := s.CreateCart(usecase.CreateCartInput{Name: "A"})
	b := s.CreateCart(usecase.CreateCartInput{Name: "B"})

	s.DeleteCart(a)

	assert.Equal(t, b, s.ActiveCartID())
	assert.Len(t, s.Carts(), 1)
}

func TestCartStore_DeleteLast_ThenAddCreatesCart(t *testing.T) {
	s := newTestStore(t, infraRepo.NewSnapshotMemoryRepository(), nil)
	a := s.CreateCart(usecase.CreateCartInput{})

	s.DeleteCart(a)
	assert.Equal(t, "", s.ActiveCartID())
	_, ok := s.ActiveCart()
	assert.False(t, ok)

	s.AddProduct(product(7, "2.50"), 1)

	cart, ok := s.ActiveCart()
	require.True(t, ok)
	assert.NotEqual(t, a, cart.ID)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, int64(7), cart.Items[0].Product.SaleUnitID)
	assert.Len(t, s.Carts(), 1)
}

// =====================
// Operations
// =====================

func TestCartStore_AddProduct_NonPositiveQuantityIsNoop(t *testing.T) {
	s := newTestStore(t, infraRepo.NewSnapshotMemoryRepository(), nil)

	s.AddProduct(product(1, "1"), 0)
	s.AddProduct(product(1, "1"), -2)

	assert.Empty(t, s.Carts())
	assert.Equal(t, "", s.ActiveCartID())
}

func TestCartStore_AddProduct_KeepsInitialUnitCost(t *testing.T) {
	s := newTestStore(t, infraRepo.NewSnapshotMemoryRepository(), nil)

	s.AddProduct(product(1, "10"), 1)
	s.AddProduct(product(1, "12"), 1)

	cart, _ := s.ActiveCart()
	it, ok := cart.FindItem(1)
	require.True(t, ok)
	assert.True(t, dec("10").Equal(it.UnitCost))
	assert.True(t, dec("20").Equal(s.TotalCost()))
}

func TestCartStore_UpdateQuantity(t *testing.T) {
	s := newTestStore(t, infraRepo.NewSnapshotMemoryRepository(), nil)
	s.AddProduct(product(1, "1"), 3)
	s.AddProduct(product(2, "1"), 3)

	s.UpdateQuantity(1, 8)
	cart, _ := s.ActiveCart()
	it, _ := cart.FindItem(1)
	assert.Equal(t, 8, it.Quantity)

	s.UpdateQuantity(1, 0)
	s.UpdateQuantity(2, -1)
	cart, _ = s.ActiveCart()
	assert.Empty(t, cart.Items)
}

func TestCartStore_IncrementDoesNotRecreate(t *testing.T) {
	s := newTestStore(t, infraRepo.NewSnapshotMemoryRepository(), nil)
	s.AddProduct(product(1, "1"), 1)

	s.IncrementQuantity(1)
	assert.Equal(t, 2, s.TotalItems())

	s.RemoveProduct(1)
	s.IncrementQuantity(1)

	cart, _ := s.ActiveCart()
	assert.Empty(t, cart.Items)
}

func TestCartStore_RenameCart(t *testing.T) {
	s := newTestStore(t, infraRepo.NewSnapshotMemoryRepository(), nil)
	a := s.CreateCart(usecase.CreateCartInput{Name: "A"})
	s.CreateCart(usecase.CreateCartInput{Name: "B"})

	// アクティブでないカートも名前を変えられる
	s.RenameCart(a, "  Mostrador  ")
	assert.Equal(t, "Mostrador", s.Carts()[0].Name)

	s.RenameCart(a, "   ")
	s.RenameCart("missing", "X")
	assert.Equal(t, "Mostrador", s.Carts()[0].Name)
	assert.Equal(t, "B", s.Carts()[1].Name)
}

func TestCartStore_SetActiveCart_UnknownIsNoop(t *testing.T) {
	s := newTestStore(t, infraRepo.NewSnapshotMemoryRepository(), nil)
	a := s.CreateCart(usecase.CreateCartInput{})
	b := s.CreateCart(usecase.CreateCartInput{})

	s.SetActiveCart("nope")
	assert.Equal(t, b, s.ActiveCartID())

	s.SetActiveCart(a)
	assert.Equal(t, a, s.ActiveCartID())
}

func TestCartStore_ClearCart_KeepsCart(t *testing.T) {
	s := newTestStore(t, infraRepo.NewSnapshotMemoryRepository(), nil)
	id := s.CreateCart(usecase.CreateCartInput{Name: "Caja"})
	s.AddProduct(product(1, "1"), 2)
	s.AddProduct(product(2, "1"), 2)

	s.ClearCart()

	cart, ok := s.ActiveCart()
	require.True(t, ok)
	assert.Equal(t, id, cart.ID)
	assert.Equal(t, "Caja", cart.Name)
	assert.Empty(t, cart.Items)
}

func TestCartStore_WholesaleTotalPrice(t *testing.T) {
	s := newTestStore(t, infraRepo.NewSnapshotMemoryRepository(), nil)
	p := product(1, "10")
	p.Price = dec("15")
	p.WholesalePrice = dec("12")
	s.AddProduct(p, 2)

	assert.True(t, dec("30").Equal(s.TotalPrice()))

	s.SetWholesale(1, true)
	assert.True(t, dec("24").Equal(s.TotalPrice()))
	// 原価の合計は卸売フラグに関係しない
	assert.True(t, dec("20").Equal(s.TotalCost()))

	s.UpdatePrice(1, dec("11"))
	assert.True(t, dec("22").Equal(s.TotalPrice()))
	assert.True(t, dec("22").Equal(s.TotalCost()))
}

func TestCartStore_ReadersGetCopies(t *testing.T) {
	s := newTestStore(t, infraRepo.NewSnapshotMemoryRepository(), nil)
	s.AddProduct(product(1, "1"), 1)

	before, _ := s.ActiveCart()
	before.Items[0].Quantity = 99

	s.IncrementQuantity(1)

	after, _ := s.ActiveCart()
	assert.Equal(t, 2, after.Items[0].Quantity)
	assert.Equal(t, 99, before.Items[0].Quantity)
}

// =====================
// Properties
// =====================

func TestCartStore_IDsAreUnique(t *testing.T) {
	s := usecase.NewCartStore(infraRepo.NewSnapshotMemoryRepository(), uuidGen{}, fixedClock{t: testNow}, usecase.CartStoreOptions{})
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		id := s.CreateCart(usecase.CreateCartInput{})
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

type uuidGen struct{}

func (uuidGen) NewID() string { return uuid.NewString() }

type repeatingGen struct {
	ids []string
	i   int
}

func (g *repeatingGen) NewID() string {
	id := g.ids[g.i%len(g.ids)]
	g.i++
	return id
}

func TestCartStore_IDCollisionIsSkipped(t *testing.T) {
	gen := &repeatingGen{ids: []string{"x", "x", "y"}}
	s := usecase.NewCartStore(infraRepo.NewSnapshotMemoryRepository(), gen, fixedClock{t: testNow}, usecase.CartStoreOptions{})
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	a := s.CreateCart(usecase.CreateCartInput{})
	b := s.CreateCart(usecase.CreateCartInput{})

	assert.Equal(t, "x", a)
	assert.Equal(t, "y", b)
}

func TestCartStore_RandomOperations_KeepInvariants(t *testing.T) {
	s := newTestStore(t, infraRepo.NewSnapshotMemoryRepository(), nil)
	rng := rand.New(rand.NewSource(46))

	randomCartID := func() string {
		carts := s.Carts()
		if len(carts) == 0 || rng.Intn(5) == 0 {
			return "missing"
		}
		return carts[rng.Intn(len(carts))].ID
	}

	for i := 0; i < 2000; i++ {
		unit := int64(rng.Intn(4) + 1)
		switch rng.Intn(11) {
		case 0:
			s.CreateCart(usecase.CreateCartInput{})
		case 1:
			s.SetActiveCart(randomCartID())
		case 2:
			s.DeleteCart(randomCartID())
		case 3:
			s.RenameCart(randomCartID(), "R")
		case 4:
			s.AddProduct(product(unit, "2"), rng.Intn(3)+1)
		case 5:
			s.RemoveProduct(unit)
		case 6:
			s.UpdateQuantity(unit, rng.Intn(5)-1)
		case 7:
			s.IncrementQuantity(unit)
		case 8:
			s.DecrementQuantity(unit)
		case 9:
			s.UpdatePrice(unit, decimal.NewFromInt(int64(rng.Intn(10))))
		case 10:
			s.ClearCart()
		}

		assertActiveValid(t, s)
		for _, c := range s.Carts() {
			units := map[int64]bool{}
			for _, it := range c.Items {
				require.GreaterOrEqual(t, it.Quantity, 1)
				require.False(t, units[it.Product.SaleUnitID], "duplicate unit in cart")
				units[it.Product.SaleUnitID] = true
			}
		}
	}
}

func TestCartStore_NoopsLeaveStateUnchanged(t *testing.T) {
	snapshots := infraRepo.NewSnapshotMemoryRepository()
	s := newTestStore(t, snapshots, nil)
	ctx := context.Background()

	// アクティブなし
	s.RemoveProduct(1)
	s.UpdateQuantity(1, 3)
	s.UpdatePrice(1, dec("1"))
	s.IncrementQuantity(1)
	s.DecrementQuantity(1)
	s.ClearCart()
	assert.Empty(t, s.Carts())
	require.NoError(t, s.Flush(ctx))
	assert.Equal(t, 0, snapshots.Saves())

	s.AddProduct(product(1, "5"), 2)
	require.NoError(t, s.Flush(ctx))
	saves := snapshots.Saves()
	before := s.Snapshot()

	// 存在しない販売単位
	s.RemoveProduct(99)
	s.UpdateQuantity(99, 3)
	s.UpdatePrice(99, dec("1"))
	s.IncrementQuantity(99)
	s.DecrementQuantity(99)
	s.SetWholesale(99, true)
	s.SetActiveCart("missing")
	s.DeleteCart("missing")
	s.RenameCart("missing", "x")

	assert.Equal(t, before, s.Snapshot())
	require.NoError(t, s.Flush(ctx))
	assert.Equal(t, saves, snapshots.Saves())
}

func TestCartStore_ConcurrentAdds(t *testing.T) {
	s := newTestStore(t, infraRepo.NewSnapshotMemoryRepository(), nil)
	s.CreateCart(usecase.CreateCartInput{})

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				s.AddProduct(product(1, "1"), 1)
				_ = s.TotalCost()
				_, _ = s.ActiveCart()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 400, s.TotalItems())
}

// =====================
// Persistence
// =====================

func TestCartStore_Load_Absent(t *testing.T) {
	s := newTestStore(t, infraRepo.NewSnapshotMemoryRepository(), nil)

	require.NoError(t, s.Load(context.Background()))
	assert.Empty(t, s.Carts())
	assert.Equal(t, "", s.ActiveCartID())
}

func TestCartStore_Load_Corrupt(t *testing.T) {
	snapshots := infraRepo.NewSnapshotMemoryRepository()
	snapshots.SetRaw([]byte(`{"carts": [`))
	s := newTestStore(t, snapshots, nil)

	require.NoError(t, s.Load(context.Background()))
	assert.Empty(t, s.Carts())
}

func TestCartStore_Load_RepositoryError(t *testing.T) {
	m := new(SnapshotRepoMock)
	m.On("Load", mock.Anything).Return(model.Snapshot{}, errors.New("connection refused"))
	s := newTestStore(t, m, nil)

	err := s.Load(context.Background())
	assert.ErrorContains(t, err, "connection refused")
	m.AssertExpectations(t)
}

func TestCartStore_Load_RoundTrip(t *testing.T) {
	ctx := context.Background()
	snapshots := infraRepo.NewSnapshotMemoryRepository()

	first := newTestStore(t, snapshots, nil)
	a := first.CreateCart(usecase.CreateCartInput{Name: "A"})
	first.AddProduct(product(10, "5.00"), 2)
	first.UpdatePrice(10, dec("4.50"))
	first.CreateCart(usecase.CreateCartInput{Name: "B"})
	first.SetActiveCart(a)
	require.NoError(t, first.Close(ctx))

	second := newTestStore(t, snapshots, nil)
	require.NoError(t, second.Load(ctx))

	assert.Equal(t, a, second.ActiveCartID())
	require.Len(t, second.Carts(), 2)
	assert.Equal(t, 2, second.TotalItems())
	assert.True(t, dec("9").Equal(second.TotalCost()), "got %s", second.TotalCost())

	// 読み込んだだけでは書かない
	saves := snapshots.Saves()
	require.NoError(t, second.Flush(ctx))
	assert.Equal(t, saves, snapshots.Saves())
}

func TestCartStore_Load_RepairsDanglingActive(t *testing.T) {
	ctx := context.Background()
	snapshots := infraRepo.NewSnapshotMemoryRepository()
	snapshots.SetRaw([]byte(`{
		"carts": [
			{"id": "c1", "name": "Uno", "items": [
				{"product": {"id_unidad_venta": 1, "precio_costo": "2"}, "quantity": 0, "unitCost": "2", "price": null, "wholesale": false},
				{"product": {"id_unidad_venta": 2, "precio_costo": "3"}, "quantity": 2, "unitCost": "3", "price": null, "wholesale": false}
			]},
			{"id": "c1", "name": "Duplicada", "items": []}
		],
		"activeCartId": "gone"
	}`))

	s := newTestStore(t, snapshots, nil)
	require.NoError(t, s.Load(ctx))

	assert.Equal(t, "c1", s.ActiveCartID())
	carts := s.Carts()
	require.Len(t, carts, 1)
	require.Len(t, carts[0].Items, 1)
	assert.Equal(t, int64(2), carts[0].Items[0].Product.SaleUnitID)

	// 直した状態が書き戻される
	require.NoError(t, s.Flush(ctx))
	stored, err := snapshots.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, stored.ActiveCartID)
	assert.Equal(t, "c1", *stored.ActiveCartID)
	assert.Len(t, stored.Carts, 1)
}

func TestCartStore_PersistsInBackground(t *testing.T) {
	ctx := context.Background()
	snapshots := infraRepo.NewSnapshotMemoryRepository()
	s := newTestStore(t, snapshots, nil)

	s.AddProduct(product(3, "1.25"), 4)

	assert.Eventually(t, func() bool {
		snap, err := snapshots.Load(ctx)
		return err == nil && len(snap.Carts) == 1 && len(snap.Carts[0].Items) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestCartStore_SaveFailure_DoesNotAffectState(t *testing.T) {
	ctx := context.Background()
	snapshots := infraRepo.NewSnapshotMemoryRepository()
	obs := &countingObserver{}
	s := newTestStore(t, snapshots, obs)

	snapshots.FailSaves(errors.New("disk full"))
	s.AddProduct(product(1, "2"), 3)

	assert.Equal(t, 3, s.TotalItems())
	assert.Eventually(t, func() bool { return obs.failed.Load() >= 1 }, time.Second, 5*time.Millisecond)
	assert.ErrorContains(t, s.Flush(ctx), "disk full")

	// 再試行で追いつく
	snapshots.FailSaves(nil)
	assert.Eventually(t, func() bool {
		snap, err := snapshots.Load(ctx)
		return err == nil && len(snap.Carts) == 1
	}, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, obs.saved.Load(), int64(1))
}

func TestCartStore_CloseFlushes(t *testing.T) {
	ctx := context.Background()
	m := new(SnapshotRepoMock)
	m.On("Save", mock.Anything, mock.MatchedBy(func(snap model.Snapshot) bool {
		return len(snap.Carts) == 1 && snap.ActiveCartID != nil
	})).Return(nil)

	s := usecase.NewCartStore(m, &seqIDGen{}, fixedClock{t: testNow}, usecase.CartStoreOptions{})
	s.CreateCart(usecase.CreateCartInput{Name: "Final"})

	require.NoError(t, s.Close(ctx))
	require.NoError(t, s.Close(ctx))
	m.AssertCalled(t, "Save", mock.Anything, mock.Anything)
}

// =====================
// UpdateItem / SettleCart / Close
// =====================

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func nullDec(s string) *decimal.NullDecimal {
	v := decimal.NewNullDecimal(dec(s))
	return &v
}

func TestCartStore_UpdateItem(t *testing.T) {
	s := newTestStore(t, infraRepo.NewSnapshotMemoryRepository(), nil)
	s.AddProduct(product(10, "5"), 5)

	s.UpdateItem(10, usecase.ItemUpdate{Quantity: intPtr(3), Price: nullDec("4"), Wholesale: boolPtr(true)})

	cart, _ := s.ActiveCart()
	it, ok := cart.FindItem(10)
	require.True(t, ok)
	assert.Equal(t, 3, it.Quantity)
	assert.True(t, it.Wholesale)
	assert.True(t, dec("12").Equal(s.TotalCost()))

	// Valid=false で上書き価格を消す
	s.UpdateItem(10, usecase.ItemUpdate{Price: &decimal.NullDecimal{}})
	cart, _ = s.ActiveCart()
	it, _ = cart.FindItem(10)
	assert.False(t, it.Price.Valid)
	assert.True(t, dec("15").Equal(s.TotalCost()))

	s.UpdateItem(10, usecase.ItemUpdate{Quantity: intPtr(0), Price: nullDec("1")})
	cart, _ = s.ActiveCart()
	assert.Empty(t, cart.Items)
}

func TestCartStore_UpdateItem_SameValuesIsNoop(t *testing.T) {
	ctx := context.Background()
	snapshots := infraRepo.NewSnapshotMemoryRepository()
	s := newTestStore(t, snapshots, nil)
	s.AddProduct(product(10, "5"), 2)
	s.UpdatePrice(10, dec("4.00"))
	require.NoError(t, s.Flush(ctx))
	saves := snapshots.Saves()
	before := s.Snapshot()

	s.UpdateItem(10, usecase.ItemUpdate{Quantity: intPtr(2), Price: nullDec("4"), Wholesale: boolPtr(false)})
	s.UpdateItem(99, usecase.ItemUpdate{Quantity: intPtr(1)})

	assert.Equal(t, before, s.Snapshot())
	require.NoError(t, s.Flush(ctx))
	assert.Equal(t, saves, snapshots.Saves())
}

func TestCartStore_UpdateItem_ReadersNeverSeeHalfUpdate(t *testing.T) {
	s := newTestStore(t, infraRepo.NewSnapshotMemoryRepository(), nil)
	s.AddProduct(product(1, "1"), 1)
	s.UpdatePrice(1, dec("1"))

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for n := 0; n < 500; n++ {
			q := n%2 + 1
			s.UpdateItem(1, usecase.ItemUpdate{Quantity: intPtr(q), Price: nullDec(fmt.Sprint(q))})
		}
		close(stop)
	}()

	// 価格と数量は常に同じ値の組で見える
	for done := false; !done; {
		select {
		case <-stop:
			done = true
		default:
		}
		cart, ok := s.ActiveCart()
		require.True(t, ok)
		it, ok := cart.FindItem(1)
		require.True(t, ok)
		require.True(t, it.Price.Decimal.Equal(decimal.NewFromInt(int64(it.Quantity))),
			"price %s with quantity %d", it.Price.Decimal, it.Quantity)
	}
	wg.Wait()
}

func TestCartStore_SettleCart(t *testing.T) {
	s := newTestStore(t, infraRepo.NewSnapshotMemoryRepository(), nil)
	other := s.CreateCart(usecase.CreateCartInput{Name: "Otro"})
	id := s.CreateCart(usecase.CreateCartInput{Name: "Caja"})
	s.AddProduct(product(1, "2"), 2)
	s.AddProduct(product(2, "3"), 1)
	sent, _ := s.ActiveCart()

	// 送信後に足された分
	s.AddProduct(product(1, "2"), 3)
	s.AddProduct(product(3, "1"), 1)

	s.SettleCart(id, sent.Items)

	cart, ok := s.ActiveCart()
	require.True(t, ok)
	assert.Equal(t, id, cart.ID)
	require.Len(t, cart.Items, 2)
	it, _ := cart.FindItem(1)
	assert.Equal(t, 3, it.Quantity)
	_, ok = cart.FindItem(2)
	assert.False(t, ok)
	_, ok = cart.FindItem(3)
	assert.True(t, ok)

	// 残りも確定するとカートごと消える
	rest, _ := s.ActiveCart()
	s.SettleCart(id, rest.Items)
	assert.Len(t, s.Carts(), 1)
	assert.Equal(t, other, s.ActiveCartID())

	s.SettleCart("missing", rest.Items)
	assert.Len(t, s.Carts(), 1)
}

func TestCartStore_ChangesAfterCloseArePersisted(t *testing.T) {
	ctx := context.Background()
	snapshots := infraRepo.NewSnapshotMemoryRepository()
	s := newTestStore(t, snapshots, nil)
	s.CreateCart(usecase.CreateCartInput{Name: "Caja"})
	require.NoError(t, s.Close(ctx))

	s.AddProduct(product(8, "2"), 2)

	snap, err := snapshots.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Carts, 1)
	require.Len(t, snap.Carts[0].Items, 1)
	assert.Equal(t, 2, snap.Carts[0].Items[0].Quantity)
}

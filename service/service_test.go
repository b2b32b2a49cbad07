package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/greenchain/greenchain/buyer"
	"github.com/greenchain/greenchain/inventory"
	"github.com/greenchain/greenchain/offerstate"
	"github.com/greenchain/greenchain/storage"
)

// svcMockStore implements storage.Store methods needed for service testing.
type svcMockStore struct {
	storage.Store

	lots    map[string]*inventory.Lot
	buyers  []*buyer.Buyer
	offers  map[string]*storage.Offer
	imports map[string]*storage.Import

	nextID int
}

func newSvcMockStore() *svcMockStore {
	return &svcMockStore{
		lots:    make(map[string]*inventory.Lot),
		offers:  make(map[string]*storage.Offer),
		imports: make(map[string]*storage.Import),
	}
}

func (m *svcMockStore) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

func (m *svcMockStore) CreateLots(ctx context.Context, lots []*inventory.Lot) error {
	for _, lot := range lots {
		if lot.ID == "" {
			lot.ID = m.id("lot")
		}
		m.lots[lot.ID] = lot
	}
	return nil
}

func (m *svcMockStore) GetLot(ctx context.Context, lotID string) (*inventory.Lot, error) {
	lot, ok := m.lots[lotID]
	if !ok {
		return nil, fmt.Errorf("lot %s: %w", lotID, storage.ErrNotFound)
	}
	return lot, nil
}

func (m *svcMockStore) ListLots(ctx context.Context, params *storage.ListLotsParams) ([]*inventory.Lot, int, error) {
	var lots []*inventory.Lot
	for _, lot := range m.lots {
		if params.Status != "" && lot.Status != params.Status {
			continue
		}
		if params.Category != "" && lot.Category != params.Category {
			continue
		}
		if params.ExpiringBefore != nil && lot.ExpiryDate.After(*params.ExpiringBefore) {
			continue
		}
		if params.ExpiringAfter != nil && !lot.ExpiryDate.After(*params.ExpiringAfter) {
			continue
		}
		lots = append(lots, lot)
	}
	total := len(lots)
	if params.Limit > 0 && len(lots) > params.Limit {
		lots = lots[:params.Limit]
	}
	return lots, total, nil
}

func (m *svcMockStore) UpdateLotStatus(ctx context.Context, lotID string, params *storage.UpdateLotStatusParams) error {
	lot, ok := m.lots[lotID]
	if !ok {
		return fmt.Errorf("lot %s: %w", lotID, storage.ErrNotFound)
	}
	if params.RequiredStatus != "" && lot.Status != params.RequiredStatus {
		return fmt.Errorf("lot %s: %w", lotID, storage.ErrStateTransitionFailed)
	}
	lot.Status = params.Status
	return nil
}

func (m *svcMockStore) GetActiveBuyers(ctx context.Context) ([]*buyer.Buyer, error) {
	return m.buyers, nil
}

func (m *svcMockStore) CreateBuyer(ctx context.Context, b *buyer.Buyer) (string, error) {
	if b.ID == "" {
		b.ID = m.id("buyer")
	}
	m.buyers = append(m.buyers, b)
	return b.ID, nil
}

func (m *svcMockStore) GetBuyer(ctx context.Context, buyerID string) (*buyer.Buyer, error) {
	for _, b := range m.buyers {
		if b.ID == buyerID {
			return b, nil
		}
	}
	return nil, fmt.Errorf("buyer %s: %w", buyerID, storage.ErrNotFound)
}

func (m *svcMockStore) CreateOffers(ctx context.Context, offers []*storage.Offer) error {
	for _, offer := range offers {
		if offer.ID == "" {
			offer.ID = m.id("offer")
		}
		m.offers[offer.ID] = offer
	}
	return nil
}

func (m *svcMockStore) GetOffer(ctx context.Context, offerID string) (*storage.Offer, error) {
	offer, ok := m.offers[offerID]
	if !ok {
		return nil, fmt.Errorf("offer %s: %w", offerID, storage.ErrNotFound)
	}
	return offer, nil
}

func (m *svcMockStore) ListOffers(ctx context.Context, params *storage.ListOffersParams) ([]*storage.Offer, int, error) {
	var offers []*storage.Offer
	for _, offer := range m.offers {
		if params.LotID != "" && offer.LotID != params.LotID {
			continue
		}
		if params.BuyerID != "" && offer.BuyerID != params.BuyerID {
			continue
		}
		if params.State != "" && offer.State != params.State {
			continue
		}
		offers = append(offers, offer)
	}
	return offers, len(offers), nil
}

func (m *svcMockStore) UpdateOfferState(ctx context.Context, offerID string, params *storage.UpdateOfferStateParams) error {
	offer, ok := m.offers[offerID]
	if !ok {
		return fmt.Errorf("offer %s: %w", offerID, storage.ErrNotFound)
	}
	if params.RequiredState != "" && offer.State != params.RequiredState {
		return fmt.Errorf("offer %s: %w", offerID, storage.ErrStateTransitionFailed)
	}
	offer.State = params.State
	if params.DecisionReason != nil {
		offer.DecisionReason = params.DecisionReason
	}
	return nil
}

func (m *svcMockStore) CountOpenOffers(ctx context.Context, lotID string) (int, error) {
	count := 0
	for _, offer := range m.offers {
		if offer.LotID == lotID && offer.State.IsOpen() {
			count++
		}
	}
	return count, nil
}

func (m *svcMockStore) RecordImport(ctx context.Context, imp *storage.Import) (string, error) {
	imp.ID = m.id("import")
	m.imports[imp.ID] = imp
	return imp.ID, nil
}

func (m *svcMockStore) GetImport(ctx context.Context, importID string) (*storage.Import, error) {
	imp, ok := m.imports[importID]
	if !ok {
		return nil, fmt.Errorf("import %s: %w", importID, storage.ErrNotFound)
	}
	return imp, nil
}

func (m *svcMockStore) ListImports(ctx context.Context, limit, offset int) ([]*storage.Import, int, error) {
	var imports []*storage.Import
	for _, imp := range m.imports {
		imports = append(imports, imp)
	}
	return imports, len(imports), nil
}

func (m *svcMockStore) CountLotsByStatus(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	for _, lot := range m.lots {
		counts[string(lot.Status)]++
	}
	return counts, nil
}

func (m *svcMockStore) CountOffersByState(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	for _, offer := range m.offers {
		counts[string(offer.State)]++
	}
	return counts, nil
}

func (m *svcMockStore) GetImportStats(ctx context.Context, since time.Time) (*storage.ImportStats, error) {
	stats := &storage.ImportStats{}
	for _, imp := range m.imports {
		stats.Uploads++
		stats.RowsAccepted += imp.RowsAccepted
		stats.RowsRejected += imp.RowsRejected
	}
	return stats, nil
}

func (m *svcMockStore) CountActiveInstances(ctx context.Context, since time.Time) (int, error) {
	return 1, nil
}

func (m *svcMockStore) LeaderGetCurrent(ctx context.Context) (*storage.Leader, error) {
	return &storage.Leader{Name: "default", LeaderID: "inst-1"}, nil
}

func svcLot(id string, daysToExpiry int, status inventory.Status) *inventory.Lot {
	return &inventory.Lot{
		ID:          id,
		SKU:         "SKU-" + id,
		Category:    "dairy",
		Quantity:    decimal.NewFromInt(100),
		Unit:        "kg",
		UnitPrice:   decimal.NewFromFloat(2.50),
		WarehouseID: "WH-1",
		ExpiryDate:  time.Now().AddDate(0, 0, daysToExpiry),
		Status:      status,
	}
}

func svcBuyer(name string) *buyer.Buyer {
	return &buyer.Buyer{
		ID:              "buyer-" + name,
		Name:            name,
		Categories:      []string{"dairy"},
		MaxDeliveryDays: 2,
		MinQuantity:     decimal.NewFromInt(1),
		Active:          true,
	}
}

const sampleCSV = `sku,description,category,quantity,unit,unit_price,batch_code,warehouse_id,expiry_date
MILK-1,Whole milk,dairy,120,litre,0.89,B100,WH-1,2099-05-04
YOG-1,Yogurt,dairy,-3,unit,0.45,B101,WH-1,2099-05-06
CHE-1,Cheddar,dairy,40,kg,4.20,B102,WH-2,2099-06-01
`

func TestService_ImportCSV(t *testing.T) {
	store := newSvcMockStore()
	svc := New(store, &Config{InstanceID: "inst-1"})

	result, err := svc.ImportCSV(context.Background(), "stock.csv", strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("ImportCSV() error = %v", err)
	}

	if result.Report.RowsAccepted != 2 {
		t.Errorf("RowsAccepted = %d, want 2", result.Report.RowsAccepted)
	}
	if result.Report.RowsRejected != 1 {
		t.Errorf("RowsRejected = %d, want 1", result.Report.RowsRejected)
	}
	if len(result.LotIDs) != 2 {
		t.Errorf("LotIDs = %d, want 2", len(result.LotIDs))
	}
	if len(store.lots) != 2 {
		t.Errorf("Stored %d lots, want 2", len(store.lots))
	}

	imp, err := svc.GetImport(context.Background(), result.ImportID)
	if err != nil {
		t.Fatalf("GetImport() error = %v", err)
	}
	if imp.InstanceID != "inst-1" {
		t.Errorf("InstanceID = %q, want inst-1", imp.InstanceID)
	}
	if len(imp.Errors) != 1 {
		t.Errorf("Errors = %d, want 1", len(imp.Errors))
	}
}

func TestService_ImportCSV_BadHeader(t *testing.T) {
	svc := New(newSvcMockStore(), nil)

	_, err := svc.ImportCSV(context.Background(), "bad.csv",
		strings.NewReader("sku,amount\nX,1\n"))
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("ImportCSV() error = %v, want %v", err, ErrInvalidInput)
	}
}

func TestService_ListLots_BandFilter(t *testing.T) {
	store := newSvcMockStore()
	store.lots["lot-a"] = svcLot("lot-a", 1, inventory.StatusAvailable)
	store.lots["lot-b"] = svcLot("lot-b", 8, inventory.StatusAvailable)
	store.lots["lot-c"] = svcLot("lot-c", 20, inventory.StatusAvailable)

	svc := New(store, nil)

	list, err := svc.ListLots(context.Background(), LotListParams{Band: "critical", Limit: 10})
	if err != nil {
		t.Fatalf("ListLots() error = %v", err)
	}
	if list.TotalCount != 1 || list.Lots[0].ID != "lot-a" {
		t.Errorf("Band critical matched %d lots, want lot-a only", list.TotalCount)
	}
	if list.Lots[0].Urgency.Band != inventory.BandCritical {
		t.Errorf("Urgency band = %q, want critical", list.Lots[0].Urgency.Band)
	}

	if _, err := svc.ListLots(context.Background(), LotListParams{Band: "panic"}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("ListLots(bad band) error = %v, want %v", err, ErrInvalidInput)
	}
}

func TestService_MatchLot(t *testing.T) {
	store := newSvcMockStore()
	store.lots["lot-1"] = svcLot("lot-1", 4, inventory.StatusAvailable)
	store.buyers = []*buyer.Buyer{svcBuyer("alpha"), svcBuyer("beta")}

	svc := New(store, &Config{InstanceID: "inst-1"})

	result, err := svc.MatchLot(context.Background(), "lot-1")
	if err != nil {
		t.Fatalf("MatchLot() error = %v", err)
	}

	if len(result.Offers) != 2 {
		t.Fatalf("Offers = %d, want 2", len(result.Offers))
	}
	if store.lots["lot-1"].Status != inventory.StatusOffered {
		t.Errorf("Lot status = %q, want offered", store.lots["lot-1"].Status)
	}
	for _, offer := range result.Offers {
		if store.offers[offer.ID].State != offerstate.StateOffered {
			t.Errorf("Offer %s state = %q, want offered", offer.ID, store.offers[offer.ID].State)
		}
	}

	// A second round on the same lot conflicts.
	if _, err := svc.MatchLot(context.Background(), "lot-1"); !errors.Is(err, ErrConflict) {
		t.Errorf("MatchLot() again error = %v, want %v", err, ErrConflict)
	}
}

func TestService_MatchLot_NoCandidates(t *testing.T) {
	store := newSvcMockStore()
	store.lots["lot-1"] = svcLot("lot-1", 4, inventory.StatusAvailable)

	svc := New(store, nil)

	result, err := svc.MatchLot(context.Background(), "lot-1")
	if err != nil {
		t.Fatalf("MatchLot() error = %v", err)
	}
	if len(result.Offers) != 0 {
		t.Errorf("Offers = %d, want 0", len(result.Offers))
	}
	if store.lots["lot-1"].Status != inventory.StatusAvailable {
		t.Errorf("Lot status = %q, want available after release", store.lots["lot-1"].Status)
	}
}

func openOffer(store *svcMockStore, lotID, buyerID string) *storage.Offer {
	offer := &storage.Offer{
		ID:      store.id("offer"),
		LotID:   lotID,
		BuyerID: buyerID,
		State:   offerstate.StateOffered,
	}
	store.offers[offer.ID] = offer
	return offer
}

func TestService_AcceptOffer(t *testing.T) {
	store := newSvcMockStore()
	store.lots["lot-1"] = svcLot("lot-1", 4, inventory.StatusOffered)
	winner := openOffer(store, "lot-1", "buyer-a")
	loser := openOffer(store, "lot-1", "buyer-b")

	svc := New(store, nil)

	accepted, err := svc.AcceptOffer(context.Background(), winner.ID, "price works")
	if err != nil {
		t.Fatalf("AcceptOffer() error = %v", err)
	}

	if accepted.State != offerstate.StateAccepted {
		t.Errorf("State = %q, want accepted", accepted.State)
	}
	if accepted.DecisionReason == nil || *accepted.DecisionReason != "price works" {
		t.Errorf("DecisionReason = %v, want recorded", accepted.DecisionReason)
	}
	if store.lots["lot-1"].Status != inventory.StatusCleared {
		t.Errorf("Lot status = %q, want cleared", store.lots["lot-1"].Status)
	}
	if store.offers[loser.ID].State != offerstate.StateDeclined {
		t.Errorf("Sibling state = %q, want declined", store.offers[loser.ID].State)
	}

	// Accepting again conflicts.
	if _, err := svc.AcceptOffer(context.Background(), winner.ID, ""); !errors.Is(err, ErrConflict) {
		t.Errorf("AcceptOffer() again error = %v, want %v", err, ErrConflict)
	}
}

func TestService_DeclineOffer_ReleasesLot(t *testing.T) {
	store := newSvcMockStore()
	store.lots["lot-1"] = svcLot("lot-1", 4, inventory.StatusOffered)
	only := openOffer(store, "lot-1", "buyer-a")

	svc := New(store, nil)

	declined, err := svc.DeclineOffer(context.Background(), only.ID, "too far")
	if err != nil {
		t.Fatalf("DeclineOffer() error = %v", err)
	}

	if declined.State != offerstate.StateDeclined {
		t.Errorf("State = %q, want declined", declined.State)
	}
	if store.lots["lot-1"].Status != inventory.StatusAvailable {
		t.Errorf("Lot status = %q, want available after last decline", store.lots["lot-1"].Status)
	}
}

func TestService_DeclineOffer_KeepsLotWhileOthersOpen(t *testing.T) {
	store := newSvcMockStore()
	store.lots["lot-1"] = svcLot("lot-1", 4, inventory.StatusOffered)
	first := openOffer(store, "lot-1", "buyer-a")
	openOffer(store, "lot-1", "buyer-b")

	svc := New(store, nil)

	if _, err := svc.DeclineOffer(context.Background(), first.ID, ""); err != nil {
		t.Fatalf("DeclineOffer() error = %v", err)
	}

	if store.lots["lot-1"].Status != inventory.StatusOffered {
		t.Errorf("Lot status = %q, want still offered", store.lots["lot-1"].Status)
	}
}

func TestService_CreateBuyer_Validation(t *testing.T) {
	svc := New(newSvcMockStore(), nil)

	_, err := svc.CreateBuyer(context.Background(), &buyer.Buyer{Name: ""})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("CreateBuyer() error = %v, want %v", err, ErrInvalidInput)
	}

	id, err := svc.CreateBuyer(context.Background(), &buyer.Buyer{
		Name:            "Corner Shop",
		MaxDeliveryDays: 2,
		MinQuantity:     decimal.NewFromInt(1),
		Active:          true,
	})
	if err != nil {
		t.Fatalf("CreateBuyer() error = %v", err)
	}
	if id == "" {
		t.Error("Expected a buyer ID")
	}
}

func TestService_GetDashboardStats(t *testing.T) {
	store := newSvcMockStore()
	store.lots["lot-1"] = svcLot("lot-1", 1, inventory.StatusAvailable)
	store.lots["lot-2"] = svcLot("lot-2", 20, inventory.StatusCleared)

	accepted := openOffer(store, "lot-2", "buyer-a")
	accepted.State = offerstate.StateAccepted
	declined := openOffer(store, "lot-2", "buyer-b")
	declined.State = offerstate.StateDeclined

	svc := New(store, nil)

	stats, err := svc.GetDashboardStats(context.Background())
	if err != nil {
		t.Fatalf("GetDashboardStats() error = %v", err)
	}

	if stats.LotsByStatus["available"] != 1 || stats.LotsByStatus["cleared"] != 1 {
		t.Errorf("LotsByStatus = %v, want one available and one cleared", stats.LotsByStatus)
	}
	if stats.LotsByBand["critical"] != 1 {
		t.Errorf("LotsByBand = %v, want one critical", stats.LotsByBand)
	}
	if stats.AcceptanceRate != 0.5 {
		t.Errorf("AcceptanceRate = %v, want 0.5", stats.AcceptanceRate)
	}
	if stats.LeaderInstanceID != "inst-1" {
		t.Errorf("LeaderInstanceID = %q, want inst-1", stats.LeaderInstanceID)
	}
}

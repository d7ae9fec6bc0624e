package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"portal/internal/model"
	"portal/internal/repository"
	"portal/internal/workflow"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// memStore backs every repository interface with maps. RunInTx and RunInSavepoint
// snapshot the whole store and restore it when fn fails.
type memStore struct {
	mu sync.Mutex

	equipment    map[uuid.UUID]model.Equipment
	headers      map[requestKey]model.RequestHeader
	loans        map[uuid.UUID]loanDetail
	plans        map[uuid.UUID]model.ActivityPlan
	budgets      map[uuid.UUID]model.BudgetRequest
	items        map[uuid.UUID][]model.EquipmentRequestItem
	stages       map[uuid.UUID]model.ApprovalStage
	reservations map[uuid.UUID]model.Reservation
	audit        []model.AuditLog
	users        map[uuid.UUID]model.User

	failAuditAction string
}

type requestKey struct {
	typ string
	id  uuid.UUID
}

type loanDetail struct {
	Purpose   string
	StartTime time.Time
	EndTime   time.Time
}

type memSnapshot struct {
	equipment    map[uuid.UUID]model.Equipment
	headers      map[requestKey]model.RequestHeader
	loans        map[uuid.UUID]loanDetail
	plans        map[uuid.UUID]model.ActivityPlan
	budgets      map[uuid.UUID]model.BudgetRequest
	items        map[uuid.UUID][]model.EquipmentRequestItem
	stages       map[uuid.UUID]model.ApprovalStage
	reservations map[uuid.UUID]model.Reservation
	audit        []model.AuditLog
}

func newMemStore() *memStore {
	return &memStore{
		equipment:    map[uuid.UUID]model.Equipment{},
		headers:      map[requestKey]model.RequestHeader{},
		loans:        map[uuid.UUID]loanDetail{},
		plans:        map[uuid.UUID]model.ActivityPlan{},
		budgets:      map[uuid.UUID]model.BudgetRequest{},
		items:        map[uuid.UUID][]model.EquipmentRequestItem{},
		stages:       map[uuid.UUID]model.ApprovalStage{},
		reservations: map[uuid.UUID]model.Reservation{},
		users:        map[uuid.UUID]model.User{},
	}
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (m *memStore) snapshot() memSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make(map[uuid.UUID][]model.EquipmentRequestItem, len(m.items))
	for k, v := range m.items {
		items[k] = append([]model.EquipmentRequestItem(nil), v...)
	}
	return memSnapshot{
		equipment:    copyMap(m.equipment),
		headers:      copyMap(m.headers),
		loans:        copyMap(m.loans),
		plans:        copyMap(m.plans),
		budgets:      copyMap(m.budgets),
		items:        items,
		stages:       copyMap(m.stages),
		reservations: copyMap(m.reservations),
		audit:        append([]model.AuditLog(nil), m.audit...),
	}
}

func (m *memStore) restore(s memSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.equipment = s.equipment
	m.headers = s.headers
	m.loans = s.loans
	m.plans = s.plans
	m.budgets = s.budgets
	m.items = s.items
	m.stages = s.stages
	m.reservations = s.reservations
	m.audit = s.audit
}

// --- seeding and inspection helpers ---

func (m *memStore) addEquipment(name string, total int) model.Equipment {
	eq := model.Equipment{ID: uuid.New(), Code: name, Name: name, TotalQuantity: total}
	m.equipment[eq.ID] = eq
	return eq
}

func (m *memStore) addUser(name, role string) model.User {
	u := model.User{ID: uuid.New(), Username: name, Email: name + "@campus.test", Role: role}
	m.users[u.ID] = u
	return u
}

func (m *memStore) header(typ string, id uuid.UUID) model.RequestHeader {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.headers[requestKey{typ, id}]
}

func (m *memStore) stagesOf(typ string, id uuid.UUID) []model.ApprovalStage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ApprovalStage
	for _, st := range m.stages {
		if st.RequestType == typ && st.RequestID == id {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StageIndex < out[j].StageIndex })
	return out
}

func (m *memStore) reservationsOf(id uuid.UUID) []model.Reservation {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Reservation
	for _, r := range m.reservations {
		if r.RequestID == id {
			out = append(out, r)
		}
	}
	return out
}

func (m *memStore) auditActions(id uuid.UUID) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, a := range m.audit {
		if a.EntityID == id.String() {
			out = append(out, a.Action)
		}
	}
	return out
}

func (m *memStore) countAudit() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.audit)
}

// --- transaction manager ---

type memTxKey struct{}

type memTx struct{ store *memStore }

func (t memTx) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	snap := t.store.snapshot()
	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		t.store.restore(snap)
		return err
	}
	return nil
}

func (t memTx) RunInSavepoint(ctx context.Context, name string, fn func(spCtx context.Context) error) error {
	if ctx.Value(memTxKey{}) == nil {
		return repository.ErrNoTransaction
	}
	snap := t.store.snapshot()
	if err := fn(ctx); err != nil {
		t.store.restore(snap)
		return err
	}
	return nil
}

// --- stages ---

type memStages struct{ *memStore }

func (m memStages) Create(_ context.Context, stage *model.ApprovalStage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, st := range m.stages {
		if st.RequestType == stage.RequestType && st.RequestID == stage.RequestID && st.ApproverRole == stage.ApproverRole {
			return &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint \"idx_stage_request_role\""}
		}
	}
	if stage.ID == uuid.Nil {
		stage.ID = uuid.New()
	}
	m.stages[stage.ID] = *stage
	return nil
}

func (m memStages) FindByID(_ context.Context, id uuid.UUID) (*model.ApprovalStage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stages[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &st, nil
}

func (m memStages) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.ApprovalStage, error) {
	return m.FindByID(ctx, id)
}

func (m memStages) FindByRequestRole(_ context.Context, requestType string, requestID uuid.UUID, role string) (*model.ApprovalStage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, st := range m.stages {
		if st.RequestType == requestType && st.RequestID == requestID && st.ApproverRole == role {
			return &st, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m memStages) ListByRequest(_ context.Context, requestType string, requestID uuid.UUID) ([]model.ApprovalStage, error) {
	return m.stagesOf(requestType, requestID), nil
}

func (m memStages) ListPendingByRole(_ context.Context, role string, page, limit int) ([]model.ApprovalStage, int64, error) {
	m.mu.Lock()
	var all []model.ApprovalStage
	for _, st := range m.stages {
		if st.ApproverRole == role && st.Status == model.StageStatusPending {
			all = append(all, st)
		}
	}
	m.mu.Unlock()
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })

	total := int64(len(all))
	start := (page - 1) * limit
	if start >= len(all) {
		return []model.ApprovalStage{}, total, nil
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (m memStages) Update(_ context.Context, stage *model.ApprovalStage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages[stage.ID] = *stage
	return nil
}

func (m memStages) DeleteAfterIndex(_ context.Context, requestType string, requestID uuid.UUID, index int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, st := range m.stages {
		if st.RequestType == requestType && st.RequestID == requestID && st.StageIndex > index {
			delete(m.stages, id)
			n++
		}
	}
	return n, nil
}

func (m memStages) DeletePending(_ context.Context, requestType string, requestID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, st := range m.stages {
		if st.RequestType == requestType && st.RequestID == requestID && st.Status == model.StageStatusPending {
			delete(m.stages, id)
			n++
		}
	}
	return n, nil
}

// --- requests ---

type memRequests struct{ *memStore }

func (m memRequests) find(requestType string, id uuid.UUID) (*model.Envelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.headers[requestKey{requestType, id}]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &model.Envelope{Type: requestType, RequestHeader: h}, nil
}

func (m memRequests) FindEnvelope(_ context.Context, requestType string, id uuid.UUID) (*model.Envelope, error) {
	return m.find(requestType, id)
}

func (m memRequests) FindEnvelopeForUpdate(_ context.Context, requestType string, id uuid.UUID) (*model.Envelope, error) {
	return m.find(requestType, id)
}

func (m memRequests) UpdateProgress(_ context.Context, env *model.Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := requestKey{env.Type, env.ID}
	h, ok := m.headers[key]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	h.Status = env.Status
	h.CurrentStage = env.CurrentStage
	m.headers[key] = h
	return nil
}

func (m memRequests) ApplyEdits(_ context.Context, requestType string, id uuid.UUID, fields map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch requestType {
	case model.RequestTypeEquipment:
		d := m.loans[id]
		for k, v := range fields {
			switch k {
			case "purpose":
				d.Purpose = v.(string)
			case "start_time":
				d.StartTime = v.(time.Time)
			case "end_time":
				d.EndTime = v.(time.Time)
			}
		}
		m.loans[id] = d
	case model.RequestTypeActivityPlan:
		p := m.plans[id]
		for k, v := range fields {
			switch k {
			case "title":
				p.Title = v.(string)
			case "venue":
				p.Venue = v.(string)
			case "description":
				p.Description = v.(string)
			case "start_date":
				p.StartDate = v.(time.Time)
			case "end_date":
				p.EndDate = v.(time.Time)
			}
		}
		m.plans[id] = p
	case model.RequestTypeBudgetRequest:
		b := m.budgets[id]
		for k, v := range fields {
			switch k {
			case "title":
				b.Title = v.(string)
			case "justification":
				b.Justification = v.(string)
			case "amount":
				b.Amount = v.(decimal.Decimal)
			}
		}
		m.budgets[id] = b
	}
	return nil
}

func (m memRequests) UpdateDocumentRef(_ context.Context, requestType string, id uuid.UUID, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := requestKey{requestType, id}
	h := m.headers[key]
	h.DocumentRef = ref
	m.headers[key] = h
	return nil
}

func (m memRequests) CreateEquipmentRequest(_ context.Context, req *model.EquipmentRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.headers[requestKey{model.RequestTypeEquipment, req.ID}] = req.RequestHeader
	m.loans[req.ID] = loanDetail{Purpose: req.Purpose, StartTime: req.StartTime, EndTime: req.EndTime}
	m.items[req.ID] = append([]model.EquipmentRequestItem(nil), req.Items...)
	return nil
}

func (m memRequests) CreateActivityPlan(_ context.Context, plan *model.ActivityPlan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.headers[requestKey{model.RequestTypeActivityPlan, plan.ID}] = plan.RequestHeader
	m.plans[plan.ID] = *plan
	return nil
}

func (m memRequests) CreateBudgetRequest(_ context.Context, req *model.BudgetRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.headers[requestKey{model.RequestTypeBudgetRequest, req.ID}] = req.RequestHeader
	m.budgets[req.ID] = *req
	return nil
}

func (m memRequests) FindEquipmentRequest(_ context.Context, id uuid.UUID) (*model.EquipmentRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.headers[requestKey{model.RequestTypeEquipment, id}]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	d := m.loans[id]
	return &model.EquipmentRequest{
		RequestHeader: h,
		Purpose:       d.Purpose,
		StartTime:     d.StartTime,
		EndTime:       d.EndTime,
		Items:         append([]model.EquipmentRequestItem(nil), m.items[id]...),
	}, nil
}

func (m memRequests) FindActivityPlan(_ context.Context, id uuid.UUID) (*model.ActivityPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	p.RequestHeader = m.headers[requestKey{model.RequestTypeActivityPlan, id}]
	return &p, nil
}

func (m memRequests) ReplaceEquipmentItems(_ context.Context, requestID uuid.UUID, items []model.EquipmentRequestItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.EquipmentRequestItem, len(items))
	for i, it := range items {
		it.RequestID = requestID
		out[i] = it
	}
	m.items[requestID] = out
	return nil
}

func (m memRequests) SummarizeEquipmentRequests(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]model.RequestSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uuid.UUID]model.RequestSummary, len(ids))
	for _, id := range ids {
		h, ok := m.headers[requestKey{model.RequestTypeEquipment, id}]
		if !ok {
			continue
		}
		out[id] = model.RequestSummary{ID: id, Purpose: m.loans[id].Purpose, RequesterName: m.users[h.OwnerID].Username}
	}
	return out, nil
}

// --- equipment ---

type memEquipment struct{ *memStore }

func (m memEquipment) FindByIDs(_ context.Context, ids []uuid.UUID) ([]model.Equipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Equipment
	for _, id := range ids {
		if eq, ok := m.equipment[id]; ok {
			out = append(out, eq)
		}
	}
	return out, nil
}

func (m memEquipment) LockForUpdate(ctx context.Context, ids []uuid.UUID) ([]model.Equipment, error) {
	return m.FindByIDs(ctx, ids)
}

// --- reservations ---

type memReservations struct{ *memStore }

func (m memReservations) Create(_ context.Context, reservations []model.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range reservations {
		if r.ID == uuid.Nil {
			r.ID = uuid.New()
		}
		m.reservations[r.ID] = r
	}
	return nil
}

func (m memReservations) ReplaceForRequest(ctx context.Context, requestID uuid.UUID, reservations []model.Reservation) error {
	m.mu.Lock()
	for id, r := range m.reservations {
		if r.RequestID == requestID {
			delete(m.reservations, id)
		}
	}
	m.mu.Unlock()
	return m.Create(ctx, reservations)
}

func (m memReservations) SyncStatus(_ context.Context, requestID uuid.UUID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.reservations {
		if r.RequestID == requestID {
			r.Status = status
			m.reservations[id] = r
		}
	}
	return nil
}

func (m memReservations) FindTouching(_ context.Context, equipmentID uuid.UUID, w workflow.Window, statuses []string, exclude *uuid.UUID) ([]model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	active := make(map[string]bool, len(statuses))
	for _, s := range statuses {
		active[s] = true
	}
	var out []model.Reservation
	for _, r := range m.reservations {
		if r.EquipmentID != equipmentID || !active[r.Status] {
			continue
		}
		if exclude != nil && r.RequestID == *exclude {
			continue
		}
		if r.StartTime.After(w.End) || r.EndTime.Before(w.Start) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

// --- audit and users ---

type memAudit struct{ *memStore }

var errAuditDown = errors.New("audit store unavailable")

func (m memAudit) Log(_ context.Context, entry *model.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAuditAction != "" && entry.Action == m.failAuditAction {
		return errAuditDown
	}
	m.audit = append(m.audit, *entry)
	return nil
}

func (m memAudit) ListByEntity(_ context.Context, entityType, entityID string) ([]model.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.AuditLog
	for _, a := range m.audit {
		if a.EntityType == entityType && a.EntityID == entityID {
			out = append(out, a)
		}
	}
	return out, nil
}

type memUsers struct{ *memStore }

func (m memUsers) FindByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &u, nil
}

// --- notifier and resigner doubles ---

type recordingNotifier struct {
	mu    sync.Mutex
	sent  []Notification
	err   error
	panic bool
}

func (n *recordingNotifier) Notify(_ context.Context, note Notification) error {
	if n.panic {
		panic("notifier exploded")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
	return n.err
}

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.sent))
	for _, s := range n.sent {
		out = append(out, s.Kind)
	}
	return out
}

func (n *recordingNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = nil
}

type stubResigner struct {
	calls int
	ref   string
	err   error
}

func (r *stubResigner) ResignDocument(context.Context, string, uuid.UUID) (string, error) {
	r.calls++
	return r.ref, r.err
}

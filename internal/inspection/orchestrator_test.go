package inspection

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/fentz26/icad/internal/audit"
	"github.com/fentz26/icad/internal/connectors"
	"github.com/fentz26/icad/internal/modegate"
	"github.com/fentz26/icad/internal/models"
	"github.com/fentz26/icad/internal/store"
	"go.uber.org/zap/zaptest"
)

// --- fakes ---

// timeline records the order of externally visible actions.
type timeline struct {
	mu     sync.Mutex
	events []string
}

func (tl *timeline) add(e string) {
	tl.mu.Lock()
	tl.events = append(tl.events, e)
	tl.mu.Unlock()
}

func (tl *timeline) index(e string) int {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	for i, got := range tl.events {
		if got == e {
			return i
		}
	}
	return -1
}

type fakeMES struct {
	mu        sync.Mutex
	tl        *timeline
	newCalls  []string
	emptCalls []string
	newResult connectors.MESResult
	newErr    error
}

func (f *fakeMES) Name() string { return "fake-mes" }

func (f *fakeMES) NotifyNewCassette(_ context.Context, cstID, _ string) (connectors.MESResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.newCalls = append(f.newCalls, cstID)
	f.tl.add("mes.new")
	if f.newErr != nil {
		return connectors.MESResult{}, f.newErr
	}
	if f.newResult.Status == "" {
		return connectors.MESResult{Status: "0", Description: "OK"}, nil
	}
	return f.newResult, nil
}

func (f *fakeMES) NotifyEmptied(_ context.Context, cstID, _ string) (connectors.MESResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emptCalls = append(f.emptCalls, cstID)
	f.tl.add("mes.emptied")
	return connectors.MESResult{Status: "0"}, nil
}

type fakeMover struct {
	mu         sync.Mutex
	tl         *timeline
	fail       bool
	autoCalls  []string // ports
	forceCalls []models.MoveRequest
}

func (f *fakeMover) Name() string { return "fake-mcs" }

func (f *fakeMover) AutoMove(_ context.Context, _ *models.Cassette, port, _ string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.autoCalls = append(f.autoCalls, port)
	f.tl.add("move.auto")
	return !f.fail
}

func (f *fakeMover) ForceMove(_ context.Context, req models.MoveRequest) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forceCalls = append(f.forceCalls, req)
	f.tl.add("move.force")
	return !f.fail
}

type fakeAlarms struct {
	mu    sync.Mutex
	kinds []string
}

func (f *fakeAlarms) Raise(_ context.Context, kind, _, _, _ string) {
	f.mu.Lock()
	f.kinds = append(f.kinds, kind)
	f.mu.Unlock()
}

func (f *fakeAlarms) has(kind string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range f.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// flakyStore fails UpdateCassette calls whose fn sets the given result.
type flakyStore struct {
	*store.Store
	failOn models.ICAResult
}

func (f *flakyStore) UpdateCassette(ctx context.Context, id string, fn func(*models.Cassette) error) (*models.Cassette, error) {
	return f.Store.UpdateCassette(ctx, id, func(c *models.Cassette) error {
		if err := fn(c); err != nil {
			return err
		}
		if f.failOn != "" && c.ICAResult == f.failOn {
			return &store.Error{Op: "update cassette", Code: "40001", Message: "could not serialize access"}
		}
		return nil
	})
}

type brokenModes struct{}

func (brokenModes) CurrentMode(context.Context, string) (models.Mode, error) {
	return "", errors.New("status table unavailable")
}

// --- harness ---

type harness struct {
	t      *testing.T
	store  *store.Store
	orch   *Orchestrator
	mes    *fakeMES
	mover  *fakeMover
	alarms *fakeAlarms
	tl     *timeline
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "ica.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	tl := &timeline{}
	h := &harness{
		t:      t,
		store:  s,
		mes:    &fakeMES{tl: tl},
		mover:  &fakeMover{tl: tl},
		alarms: &fakeAlarms{},
		tl:     tl,
	}
	h.build(s, modegate.New(s))

	ctx := context.Background()
	for _, c := range []models.SystemCode{
		{Category: CodeCategoryDimension, Code: "300MM", SortOrder: 1},
		{Category: CodeCategoryDimension, Code: "200MM", SortOrder: 2},
		{Category: CodeCategoryCapacity, Code: "25", SortOrder: 1},
	} {
		if err := s.UpsertSystemCode(ctx, c); err != nil {
			t.Fatalf("UpsertSystemCode failed: %v", err)
		}
	}
	return h
}

func (h *harness) build(cs CassetteStore, modes ModeGate) {
	h.orch = New(DefaultConfig(), Deps{
		Store:  cs,
		Modes:  modes,
		Alarms: h.alarms,
		MES:    h.mes,
		Mover:  h.mover,
		Audit:  audit.NewLog(h.store),
		Logger: zaptest.NewLogger(h.t),
	})
}

func (h *harness) addCassette(id string, reg models.RegStatus, location, port string) {
	h.t.Helper()
	err := h.store.CreateCassette(context.Background(), &models.Cassette{
		ID: id, CycleID: "CY1", Location: location, PortName: port, RegStatus: reg,
	})
	if err != nil {
		h.t.Fatalf("CreateCassette failed: %v", err)
	}
}

func (h *harness) cassette(id string) *models.Cassette {
	h.t.Helper()
	c, err := h.store.GetCassette(context.Background(), id)
	if err != nil {
		h.t.Fatalf("GetCassette failed: %v", err)
	}
	return c
}

// process runs ev and returns the result plus every reply sent.
func (h *harness) process(ev Event) (Result, []Reply) {
	var replies []Reply
	res := h.orch.Process(context.Background(), ev, func(_ context.Context, r Reply) error {
		replies = append(replies, r)
		h.tl.add("reply")
		return nil
	})
	return res, replies
}

// eventRecords counts the per-event audit records for a cassette.
func (h *harness) eventRecords(cstID string) (txs []models.Transaction, comms int) {
	h.t.Helper()
	all, err := h.store.ListTransactions(context.Background(), cstID, 0)
	if err != nil {
		h.t.Fatalf("ListTransactions failed: %v", err)
	}
	for _, tx := range all {
		if tx.Action == ActionICAResult {
			txs = append(txs, tx)
		}
	}
	cs, err := h.store.ListCommunications(context.Background(), cstID)
	if err != nil {
		h.t.Fatalf("ListCommunications failed: %v", err)
	}
	return txs, len(cs)
}

func (h *harness) assertOneAuditPair(cstID string, want models.Outcome) {
	h.t.Helper()
	txs, comms := h.eventRecords(cstID)
	if len(txs) != 1 {
		h.t.Fatalf("Expected exactly 1 transaction record, got %d", len(txs))
	}
	if comms != 1 {
		h.t.Errorf("Expected exactly 1 communication record, got %d", comms)
	}
	if txs[0].Outcome != want {
		h.t.Errorf("Expected transaction outcome %s, got %s", want, txs[0].Outcome)
	}
}

func ev(tid, cst, result string) Event {
	return Event{TID: tid, CassetteID: cst, ICAResult: result, UserID: "ILCP"}
}

// --- tests ---

func TestManualModeRejectsWithoutMutation(t *testing.T) {
	h := newHarness(t)
	h.addCassette("C100", models.RegStatusUnregistered, "ICA-01", "ICA")
	before := h.cassette("C100")
	if err := h.store.SetSystemStatus(context.Background(), "ICA_AUTO", "ICA-01", "MANUAL"); err != nil {
		t.Fatalf("SetSystemStatus failed: %v", err)
	}

	res, replies := h.process(ev("T1", "C100", "OK"))

	if res.State != StateRejected {
		t.Errorf("Expected REJECTED, got %s", res.State)
	}
	if len(replies) != 1 || replies[0].ReturnCode != CodeModeManual {
		t.Fatalf("Expected one reply with %s, got %+v", CodeModeManual, replies)
	}
	after := h.cassette("C100")
	if after.RegStatus != before.RegStatus || after.ICAResult != before.ICAResult || !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Errorf("Cassette was mutated in MANUAL mode: %+v", after)
	}
	if !h.alarms.has("ICA_MODE_IS_MANUAL") {
		t.Error("Expected ICA_MODE_IS_MANUAL alarm")
	}
	if len(h.mes.newCalls)+len(h.mes.emptCalls) != 0 || res.Dispatched {
		t.Error("Expected no MES calls and no dispatch")
	}
	h.assertOneAuditPair("C100", models.OutcomeFail)
}

func TestUnknownCassetteRejected(t *testing.T) {
	h := newHarness(t)

	res, replies := h.process(ev("T1", "GHOST", "OK"))

	if res.State != StateRejected || replies[0].ReturnCode != CodeCstNotExist {
		t.Errorf("Expected REJECTED/%s, got %s/%s", CodeCstNotExist, res.State, replies[0].ReturnCode)
	}
	if h.cassette("GHOST") != nil {
		t.Error("Store should not contain the unknown cassette")
	}
	if !h.alarms.has("CST_ID_NOT_EXIST") {
		t.Error("Expected CST_ID_NOT_EXIST alarm")
	}
	h.assertOneAuditPair("GHOST", models.OutcomeFail)
}

func TestCassetteNotAtInspectionPort(t *testing.T) {
	h := newHarness(t)
	h.addCassette("C200", models.RegStatusRegistered, "STK-03", "STK")
	before := h.cassette("C200")

	res, replies := h.process(ev("T2", "C200", "OK"))

	if res.State != StateRejected {
		t.Errorf("Expected REJECTED, got %s", res.State)
	}
	if replies[0].ReturnCode != CodeCstNotAtICA {
		t.Errorf("Expected %s, got %s", CodeCstNotAtICA, replies[0].ReturnCode)
	}
	if !h.cassette("C200").UpdatedAt.Equal(before.UpdatedAt) {
		t.Error("Cassette should not be modified")
	}
	if len(h.mes.newCalls)+len(h.mes.emptCalls) != 0 {
		t.Error("Expected no MES calls")
	}
	if !h.alarms.has("CST_NOT_AT_ICA_PORT") {
		t.Error("Expected CST_NOT_AT_ICA_PORT alarm")
	}

	all, _ := h.store.ListTransactions(context.Background(), "C200", 0)
	if len(all) != 1 || all[0].Outcome != models.OutcomeFail {
		t.Errorf("Expected only the rejection transaction, got %+v", all)
	}
}

func TestPortNameMatchIsCaseInsensitive(t *testing.T) {
	h := newHarness(t)
	h.addCassette("C300", models.RegStatusRegistered, "ica-01", "ica")

	_, replies := h.process(ev("T3", "C300", "NG"))
	if replies[0].ReturnCode != CodeOK {
		t.Errorf("Expected accepted reply, got %+v", replies[0])
	}
}

func TestUnregisteredOKFullFlow(t *testing.T) {
	h := newHarness(t)
	h.addCassette("C100", models.RegStatusUnregistered, "ICA-01", "ICA")
	recv, err := h.store.CreateShipRecv(context.Background(), "C100", "CY1", models.ShipRecvReceive, "")
	if err != nil {
		t.Fatalf("CreateShipRecv failed: %v", err)
	}

	res, replies := h.process(ev("T100", "C100", "OK"))

	if len(replies) != 1 {
		t.Fatalf("Expected exactly one reply, got %d", len(replies))
	}
	r := replies[0]
	if r.ReturnCode != CodeOK || r.TID != "T100" || r.Action != ActionICAResult || r.TimeStamp == "" {
		t.Errorf("Unexpected reply: %+v", r)
	}
	if res.State != StateCompleted || !res.Registered {
		t.Errorf("Expected COMPLETED with registration, got %s (registered=%v)", res.State, res.Registered)
	}

	wantTrail := []State{StateReceived, StateValidated, StateRegistered, StateResultApplied, StateNotified, StateDispatched, StateCompleted}
	if len(res.Trail) != len(wantTrail) {
		t.Fatalf("Expected trail %v, got %v", wantTrail, res.Trail)
	}
	for i := range wantTrail {
		if res.Trail[i] != wantTrail[i] {
			t.Errorf("Trail[%d] = %s, want %s", i, res.Trail[i], wantTrail[i])
		}
	}

	c := h.cassette("C100")
	if c.RegStatus != models.RegStatusRegistered || c.Dimension != "300MM" || c.Capacity != "25" {
		t.Errorf("Registration not committed: %+v", c)
	}
	if c.ICAResult != models.ICAResultOK || !c.CleanRequired || c.ICARequired {
		t.Errorf("OK result not applied: %+v", c)
	}
	if c.ReturnType != models.ReturnTypeEmptyReturn || c.QtyType != models.QtyTypeEmpty || c.Damage != models.DamageNone || c.QAHold != models.QAHoldNone {
		t.Errorf("OK classifications not applied: %+v", c)
	}

	if len(h.mes.newCalls) != 1 || len(h.mes.emptCalls) != 1 {
		t.Errorf("Expected one new and one emptied MES call, got %d/%d", len(h.mes.newCalls), len(h.mes.emptCalls))
	}
	if len(h.mover.autoCalls) != 1 || h.mover.autoCalls[0] != "ICA-01" {
		t.Errorf("Expected one auto-move from ICA-01, got %v", h.mover.autoCalls)
	}
	if len(h.mover.forceCalls) != 0 {
		t.Errorf("Expected no forced moves, got %d", len(h.mover.forceCalls))
	}

	rec, _ := h.store.LastShipRecv(context.Background(), "C100", "CY1", models.ShipRecvReceive)
	if rec.ID != recv.ID || rec.ReturnType != models.ReturnTypeEmptyReturn {
		t.Errorf("Expected receive record marked EMPTY_RET, got %+v", rec)
	}

	all, _ := h.store.ListTransactions(context.Background(), "C100", 0)
	var reg int
	for _, tx := range all {
		if tx.Action == ActionCstReg {
			reg++
			if tx.Outcome != models.OutcomeSuccess || tx.MessageName != MessageRegNewCst {
				t.Errorf("Unexpected registration record: %+v", tx)
			}
		}
	}
	if reg != 1 {
		t.Errorf("Expected one CST_REG record, got %d", reg)
	}
	h.assertOneAuditPair("C100", models.OutcomeSuccess)
}

func TestRegistrationNotRepeated(t *testing.T) {
	h := newHarness(t)
	h.addCassette("C100", models.RegStatusUnregistered, "ICA-01", "ICA")

	h.process(ev("T1", "C100", "OK"))
	first := h.cassette("C100")

	// Change the defaults; a second event must not re-register.
	h.store.UpsertSystemCode(context.Background(), models.SystemCode{Category: CodeCategoryDimension, Code: "100MM", SortOrder: 0})

	res, _ := h.process(ev("T2", "C100", "OK"))

	if res.Registered {
		t.Error("Registration sub-flow ran twice")
	}
	if len(h.mes.newCalls) != 1 {
		t.Errorf("Expected one new-cassette MES call in total, got %d", len(h.mes.newCalls))
	}
	if got := h.cassette("C100").Dimension; got != first.Dimension {
		t.Errorf("Dimension changed on re-run: %s -> %s", first.Dimension, got)
	}
}

func TestRegistrationWithoutConfiguredCodes(t *testing.T) {
	h := newHarness(t)
	s2, err := store.New(filepath.Join(t.TempDir(), "bare.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s2.Close()
	h.store = s2
	h.build(s2, modegate.New(s2))
	h.addCassette("C101", models.RegStatusUnregistered, "ICA-02", "ICA")

	res, _ := h.process(ev("T1", "C101", "NG"))

	if !res.Registered {
		t.Fatal("Expected registration")
	}
	c := h.cassette("C101")
	if c.Dimension != "" || c.Capacity != "" {
		t.Errorf("Expected empty defaults, got %q/%q", c.Dimension, c.Capacity)
	}
}

func TestMESRejectionIsAdvisory(t *testing.T) {
	h := newHarness(t)
	h.mes.newResult = connectors.MESResult{Status: "12", Description: "duplicate cassette"}
	h.addCassette("C100", models.RegStatusUnregistered, "ICA-01", "ICA")

	res, replies := h.process(ev("T1", "C100", "OK"))

	if replies[0].ReturnCode != CodeOK || res.State != StateCompleted {
		t.Errorf("Expected workflow to continue, got %s/%s", replies[0].ReturnCode, res.State)
	}
	all, _ := h.store.ListTransactions(context.Background(), "C100", 0)
	for _, tx := range all {
		if tx.Action == ActionCstReg && tx.Outcome != models.OutcomeFail {
			t.Errorf("Expected CST_REG outcome FAIL, got %s", tx.Outcome)
		}
	}
}

func TestMESTransportErrorIsAdvisory(t *testing.T) {
	h := newHarness(t)
	h.mes.newErr = errors.New("connection reset")
	h.addCassette("C100", models.RegStatusUnregistered, "ICA-01", "ICA")

	res, replies := h.process(ev("T1", "C100", "OK"))

	if replies[0].ReturnCode != CodeOK || res.State != StateCompleted {
		t.Errorf("Expected workflow to continue, got %s/%s", replies[0].ReturnCode, res.State)
	}
}

func TestNGForcesQuarantineMove(t *testing.T) {
	h := newHarness(t)
	h.addCassette("C300", models.RegStatusRegistered, "ICA-01", "ICA")

	res, replies := h.process(ev("T3", "C300", "ng"))

	if replies[0].ReturnCode != CodeOK || res.State != StateCompleted {
		t.Fatalf("Expected accepted and completed, got %s/%s", replies[0].ReturnCode, res.State)
	}
	c := h.cassette("C300")
	if c.ICAResult != models.ICAResultNG || !c.ICARequired {
		t.Errorf("NG result not applied: %+v", c)
	}
	if len(h.mes.newCalls)+len(h.mes.emptCalls) != 0 {
		t.Error("Expected no MES notification for NG")
	}
	if len(h.mover.forceCalls) != 1 {
		t.Fatalf("Expected one forced move, got %d", len(h.mover.forceCalls))
	}
	req := h.mover.forceCalls[0]
	if req.Destination != "STK-00" || req.Priority != models.PriorityCritical || req.PriorityDetail != "0000" {
		t.Errorf("Unexpected quarantine request: %+v", req)
	}
	if req.UserID != "CCMS" || req.Overwrite != "N" || req.Action != "MOVE" || req.CassetteID != "C300" {
		t.Errorf("Unexpected quarantine request: %+v", req)
	}
	if len(h.mover.autoCalls) != 0 {
		t.Error("Expected no auto-move for NG")
	}
	h.assertOneAuditPair("C300", models.OutcomeSuccess)
}

func TestDispatchFailureCompensates(t *testing.T) {
	for _, result := range []string{"OK", "NG"} {
		t.Run(result, func(t *testing.T) {
			h := newHarness(t)
			h.mover.fail = true
			h.addCassette("C400", models.RegStatusRegistered, "ICA-01", "ICA")

			res, replies := h.process(ev("T4", "C400", result))

			if replies[0].ReturnCode != CodeOK {
				t.Errorf("Reply should still accept the event, got %s", replies[0].ReturnCode)
			}
			if res.State != StateCompensated || !res.Compensated {
				t.Errorf("Expected COMPENSATED, got %s", res.State)
			}
			if got := h.cassette("C400").UnloadRequest; got != models.ModeManual {
				t.Errorf("Expected unload request MANUAL, got %s", got)
			}
			if !h.alarms.has("MOVE_DISPATCH_FAIL") {
				t.Error("Expected MOVE_DISPATCH_FAIL alarm")
			}
			if attempts := len(h.mover.autoCalls) + len(h.mover.forceCalls); attempts != 1 {
				t.Errorf("Expected exactly one move attempt, got %d", attempts)
			}
		})
	}
}

func TestReplySentBeforeDispatch(t *testing.T) {
	h := newHarness(t)
	h.addCassette("C500", models.RegStatusRegistered, "ICA-01", "ICA")

	h.process(ev("T5", "C500", "OK"))

	reply, move := h.tl.index("reply"), h.tl.index("move.auto")
	if reply < 0 || move < 0 {
		t.Fatalf("Expected reply and move, got %v", h.tl.events)
	}
	if reply > move {
		t.Errorf("Reply must precede dispatch, got %v", h.tl.events)
	}
	if h.tl.index("mes.emptied") > reply {
		t.Errorf("MES emptied notify must precede the reply, got %v", h.tl.events)
	}
}

func TestDispatchSurvivesCallerCancellation(t *testing.T) {
	h := newHarness(t)
	h.addCassette("C501", models.RegStatusRegistered, "ICA-01", "ICA")

	ctx, cancel := context.WithCancel(context.Background())
	res := h.orch.Process(ctx, ev("T6", "C501", "OK"), func(context.Context, Reply) error {
		cancel()
		return nil
	})

	if res.State != StateCompleted {
		t.Errorf("Expected dispatch to complete after caller cancel, got %s", res.State)
	}
}

func TestReplySendErrorDoesNotStopDispatch(t *testing.T) {
	h := newHarness(t)
	h.addCassette("C502", models.RegStatusRegistered, "ICA-01", "ICA")

	res := h.orch.Process(context.Background(), ev("T7", "C502", "OK"), func(context.Context, Reply) error {
		return errors.New("client went away")
	})
	if res.State != StateCompleted {
		t.Errorf("Expected COMPLETED, got %s", res.State)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		code Code
	}{
		{"missing tid", Event{CassetteID: "C1", ICAResult: "OK"}, CodeValidation},
		{"missing cst_id", Event{TID: "T", ICAResult: "OK"}, CodeValidation},
		{"blank cst_id", Event{TID: "T", CassetteID: "  ", ICAResult: "OK"}, CodeValidation},
		{"missing ica_result", Event{TID: "T", CassetteID: "C1"}, CodeValidation},
		{"unknown result", Event{TID: "T", CassetteID: "C1", ICAResult: "MAYBE"}, CodeInvalidResult},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.addCassette("C1", models.RegStatusRegistered, "ICA-01", "ICA")

			res, replies := h.process(tt.ev)

			if res.State != StateRejected || replies[0].ReturnCode != tt.code {
				t.Errorf("Expected REJECTED/%s, got %s/%s (%s)", tt.code, res.State, replies[0].ReturnCode, replies[0].ReturnMsg)
			}
			if h.cassette("C1").ICAResult != models.ICAResultNone {
				t.Error("Cassette should not be modified")
			}
			if len(h.alarms.kinds) != 0 {
				t.Errorf("Validation failures should not raise alarms, got %v", h.alarms.kinds)
			}
		})
	}
}

func TestModeLookupFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	h.build(h.store, brokenModes{})
	h.addCassette("C600", models.RegStatusUnregistered, "ICA-01", "ICA")

	res, replies := h.process(ev("T8", "C600", "OK"))

	if res.State != StateFailed || replies[0].ReturnCode != CodeInitErr {
		t.Errorf("Expected FAILED/%s, got %s/%s", CodeInitErr, res.State, replies[0].ReturnCode)
	}
	if h.cassette("C600").RegStatus != models.RegStatusUnregistered {
		t.Error("Cassette should not be registered when the mode is unknown")
	}
	if !h.alarms.has("ICA_INTERNAL_ERROR") {
		t.Error("Expected ICA_INTERNAL_ERROR alarm")
	}
}

func TestStoreFailureKeepsEarlierCommits(t *testing.T) {
	h := newHarness(t)
	h.build(&flakyStore{Store: h.store, failOn: models.ICAResultOK}, modegate.New(h.store))
	h.addCassette("C700", models.RegStatusUnregistered, "ICA-01", "ICA")

	res, replies := h.process(ev("T9", "C700", "OK"))

	if res.State != StateFailed {
		t.Errorf("Expected FAILED, got %s", res.State)
	}
	if replies[0].ReturnCode != CodeInitErr {
		t.Errorf("Expected %s, got %s", CodeInitErr, replies[0].ReturnCode)
	}
	if replies[0].ReturnMsg == msgInternalError {
		t.Error("Expected persistence detail in reply message")
	}

	c := h.cassette("C700")
	if c.RegStatus != models.RegStatusRegistered {
		t.Error("Registration committed before the failure should be kept")
	}
	if c.ICAResult != models.ICAResultNone {
		t.Error("Failed result unit should be rolled back")
	}
	if res.Dispatched || len(h.mes.emptCalls) != 0 {
		t.Error("Expected no MES emptied call and no dispatch after a fatal error")
	}
	h.assertOneAuditPair("C700", models.OutcomeFail)
}

func TestOfflineChannelRecorded(t *testing.T) {
	h := newHarness(t)
	h.addCassette("C800", models.RegStatusRegistered, "ICA-01", "ICA")

	e := ev("T10", "C800", "NG")
	e.Channel = models.ChannelOffline
	h.process(e)

	txs, _ := h.eventRecords("C800")
	if len(txs) != 1 || txs[0].Channel != models.ChannelOffline {
		t.Errorf("Expected one OFFLINE transaction, got %+v", txs)
	}
}

func TestDefaultActor(t *testing.T) {
	h := newHarness(t)
	h.addCassette("C900", models.RegStatusRegistered, "ICA-01", "ICA")

	h.process(Event{TID: "T11", CassetteID: "C900", ICAResult: "NG"})

	txs, _ := h.eventRecords("C900")
	if len(txs) != 1 || txs[0].UserID != SystemILCP {
		t.Errorf("Expected default user %s, got %+v", SystemILCP, txs)
	}
}

func TestAuditDuplicateWritesOnlyAuditPair(t *testing.T) {
	h := newHarness(t)
	h.addCassette("C960", models.RegStatusRegistered, "ICA-01", "ICA")

	res, _ := h.process(ev("T12", "C960", "OK"))
	before := h.cassette("C960")
	moves := len(h.mover.autoCalls) + len(h.mover.forceCalls)

	h.orch.AuditDuplicate(context.Background(), ev("T12", "C960", "OK"), res.Reply)

	txs, comms := h.eventRecords("C960")
	if len(txs) != 2 || comms != 2 {
		t.Fatalf("Expected 2 transaction and 2 communication records, got %d and %d", len(txs), comms)
	}
	for _, tx := range txs {
		if tx.Outcome != models.OutcomeSuccess || tx.Location != "ICA-01" {
			t.Errorf("Unexpected transaction: %+v", tx)
		}
	}
	after := h.cassette("C960")
	if !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Error("Expected the cassette to be left untouched")
	}
	if got := len(h.mover.autoCalls) + len(h.mover.forceCalls); got != moves {
		t.Errorf("Expected no further moves, got %d", got-moves)
	}
}

func TestConcurrentEventsSameCassette(t *testing.T) {
	h := newHarness(t)
	h.addCassette("C950", models.RegStatusUnregistered, "ICA-01", "ICA")

	var wg sync.WaitGroup
	var mu sync.Mutex
	registered := 0
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res := h.orch.Process(context.Background(), ev("T", "C950", "NG"), nil)
			if res.Registered {
				mu.Lock()
				registered++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if registered != 1 {
		t.Errorf("Expected exactly one registration across concurrent events, got %d", registered)
	}
}

func TestCodeNames(t *testing.T) {
	if CodeModeManual.Name() != "ICA_MODE_MANUAL" || CodeInitErr.Name() != "INIT_ERR" {
		t.Error("Unexpected code names")
	}
	if Code("42").Name() != "UNKNOWN" {
		t.Error("Expected UNKNOWN for unmapped code")
	}
	if !StateCompensated.Terminal() || StateValidated.Terminal() {
		t.Error("Unexpected terminal states")
	}
}

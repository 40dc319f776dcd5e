package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dbu/eacs/gate-module/internal/domain/model"
	"github.com/dbu/eacs/gate-module/internal/token"
)

// --- In-memory фейки справочника и журнала ---

type fakeDirectory struct {
	students map[string]*model.Student
	assets   map[int64]*model.Asset
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		students: make(map[string]*model.Student),
		assets:   make(map[int64]*model.Asset),
	}
}

func (d *fakeDirectory) StudentByID(_ context.Context, id string) (*model.Student, error) {
	return d.students[id], nil
}

func (d *fakeDirectory) AssetByID(_ context.Context, id int64) (*model.Asset, error) {
	return d.assets[id], nil
}

func (d *fakeDirectory) ActiveAssetsOwnedBy(_ context.Context, studentID string) ([]*model.Asset, error) {
	var result []*model.Asset
	for _, a := range d.assets {
		if a.OwnerStudentID == studentID && a.Status == model.AssetStatusActive {
			result = append(result, a)
		}
	}
	return result, nil
}

type fakeAudit struct {
	entries []*model.ExitLog
	failure error // если задана — Append возвращает её
}

func (a *fakeAudit) Append(_ context.Context, entry *model.ExitLog) error {
	if a.failure != nil {
		return a.failure
	}
	a.entries = append(a.entries, entry)
	return nil
}

// --- Общая сборка сервиса для тестов ---

const testOperatorID = int64(7)

func newTestGate(t *testing.T, replay *ReplayGuard) (*GateService, *fakeDirectory, *fakeAudit) {
	t.Helper()
	dir := newFakeDirectory()
	audit := &fakeAudit{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewGateService(
		dir, audit,
		token.NewQRSigner([]byte("qr-secret"), 24*time.Hour),
		token.NewExitSigner([]byte("exit-secret"), 5*time.Minute),
		replay,
		logger,
	)
	return svc, dir, audit
}

func addStudent(dir *fakeDirectory, id, status string) *model.Student {
	s := &model.Student{StudentID: id, FullName: "Тестовый Студент", Status: status}
	dir.students[id] = s
	return s
}

func addAsset(dir *fakeDirectory, id int64, owner, status string) *model.Asset {
	a := &model.Asset{AssetID: id, OwnerStudentID: owner, SerialNumber: "SN-" + owner, Status: status}
	dir.assets[id] = a
	return a
}

// qrFor выпускает QR-подпись тем же секретом, что и сервис.
func qrFor(a *model.Asset) string {
	return token.NewQRSigner([]byte("qr-secret"), 24*time.Hour).Issue(a)
}

// --- Сценарий: проход с активом ---

func TestGateHappyPathWithAsset(t *testing.T) {
	svc, dir, audit := newTestGate(t, nil)
	ctx := context.Background()
	addStudent(dir, "ST-001", model.StudentStatusActive)
	asset := addAsset(dir, 1, "ST-001", model.AssetStatusActive)

	// Шаг 1: сканирование студента
	res, err := svc.ScanStudent(ctx, testOperatorID, "ST-001")
	if err != nil {
		t.Fatalf("ScanStudent() ошибка: %v", err)
	}
	if res.Blocked {
		t.Fatalf("ScanStudent() заблокировал активного студента: %s", res.Reason)
	}
	if !res.HasAssets || res.AssetCount != 1 {
		t.Errorf("HasAssets=%v AssetCount=%d, хотели true/1", res.HasAssets, res.AssetCount)
	}
	if res.ExitToken == "" {
		t.Fatal("exit-токен не выпущен")
	}
	// Разведочный шаг журнал не трогает
	if len(audit.entries) != 0 {
		t.Errorf("после ScanStudent в журнале %d записей, хотели 0", len(audit.entries))
	}

	// Шаг 2: сканирование актива
	dec, err := svc.ScanAsset(ctx, testOperatorID, "ST-001", res.ExitToken, qrFor(asset))
	if err != nil {
		t.Fatalf("ScanAsset() ошибка: %v", err)
	}
	if dec.Result != model.ResultAllowed {
		t.Fatalf("Result = %s (%s), хотели ALLOWED", dec.Result, dec.Reason)
	}
	if dec.Reason != ReasonExitVerified {
		t.Errorf("Reason = %q, хотели %q", dec.Reason, ReasonExitVerified)
	}

	// Ровно одна запись журнала на терминальное решение
	if len(audit.entries) != 1 {
		t.Fatalf("в журнале %d записей, хотели 1", len(audit.entries))
	}
	entry := audit.entries[0]
	if entry.Result != model.ResultAllowed || entry.AssetID == nil || *entry.AssetID != 1 {
		t.Errorf("запись журнала: %+v", entry)
	}
}

// --- Сценарий: выход без активов ---

func TestGateExitWithoutAssets(t *testing.T) {
	svc, dir, audit := newTestGate(t, nil)
	ctx := context.Background()
	addStudent(dir, "ST-002", model.StudentStatusActive)

	res, err := svc.ScanStudent(ctx, testOperatorID, "ST-002")
	if err != nil {
		t.Fatalf("ScanStudent() ошибка: %v", err)
	}
	if res.HasAssets {
		t.Fatal("HasAssets = true для студента без активов")
	}

	dec, err := svc.ExitWithoutAsset(ctx, testOperatorID, "ST-002", res.ExitToken)
	if err != nil {
		t.Fatalf("ExitWithoutAsset() ошибка: %v", err)
	}
	if dec.Result != model.ResultAllowed || dec.Reason != ReasonExitWithoutAssets {
		t.Errorf("решение = %s/%q", dec.Result, dec.Reason)
	}
	if len(audit.entries) != 1 {
		t.Errorf("в журнале %d записей, хотели 1", len(audit.entries))
	}
}

// Токен с признаком «есть активы» не проходит ветку «без активов».
func TestGateWrongBranchFlagMismatch(t *testing.T) {
	svc, dir, _ := newTestGate(t, nil)
	ctx := context.Background()
	addStudent(dir, "ST-003", model.StudentStatusActive)
	addAsset(dir, 3, "ST-003", model.AssetStatusActive)

	res, err := svc.ScanStudent(ctx, testOperatorID, "ST-003")
	if err != nil {
		t.Fatalf("ScanStudent() ошибка: %v", err)
	}

	dec, err := svc.ExitWithoutAsset(ctx, testOperatorID, "ST-003", res.ExitToken)
	if err != nil {
		t.Fatalf("ExitWithoutAsset() ошибка: %v", err)
	}
	if dec.Result != model.ResultBlocked || dec.Reason != ReasonInvalidExitToken {
		t.Errorf("решение = %s/%q, хотели BLOCKED/%q", dec.Result, dec.Reason, ReasonInvalidExitToken)
	}
}

// Между шагами у студента появился актив — ветка «без активов» закрыта.
func TestGateExitWithoutAssetsNewAssetAppears(t *testing.T) {
	svc, dir, _ := newTestGate(t, nil)
	ctx := context.Background()
	addStudent(dir, "ST-004", model.StudentStatusActive)

	res, err := svc.ScanStudent(ctx, testOperatorID, "ST-004")
	if err != nil {
		t.Fatalf("ScanStudent() ошибка: %v", err)
	}

	// Актив регистрируется после выпуска токена
	addAsset(dir, 4, "ST-004", model.AssetStatusActive)

	dec, err := svc.ExitWithoutAsset(ctx, testOperatorID, "ST-004", res.ExitToken)
	if err != nil {
		t.Fatalf("ExitWithoutAsset() ошибка: %v", err)
	}
	if dec.Result != model.ResultBlocked || dec.Reason != ReasonAssetsPresent {
		t.Errorf("решение = %s/%q, хотели BLOCKED/%q", dec.Result, dec.Reason, ReasonAssetsPresent)
	}
}

// --- Сценарии отказов на шаге сканирования студента ---

func TestGateScanStudentRejections(t *testing.T) {
	svc, dir, audit := newTestGate(t, nil)
	ctx := context.Background()
	addStudent(dir, "ST-BLK", model.StudentStatusBlocked)

	tests := []struct {
		name       string
		studentID  string
		wantReason string
		wantLogged bool
	}{
		{"короткий идентификатор", "X", ReasonInvalidStudentID, true},
		{"неизвестный студент", "ST-MISSING", ReasonStudentNotFound, true},
		{"заблокированный студент", "ST-BLK", ReasonStudentInactive + ": blocked", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(audit.entries)
			res, err := svc.ScanStudent(ctx, testOperatorID, tt.studentID)
			if err != nil {
				t.Fatalf("ScanStudent() ошибка: %v", err)
			}
			if !res.Blocked || res.Reason != tt.wantReason {
				t.Errorf("результат = %+v, хотели Blocked/%q", res, tt.wantReason)
			}
			logged := len(audit.entries) > before
			if logged != tt.wantLogged {
				t.Errorf("журналирование = %v, хотели %v", logged, tt.wantLogged)
			}
		})
	}
}

// --- Сценарии отказов на шаге сканирования актива ---

func TestGateScanAssetRejections(t *testing.T) {
	svc, dir, audit := newTestGate(t, nil)
	ctx := context.Background()
	addStudent(dir, "ST-010", model.StudentStatusActive)
	addStudent(dir, "ST-011", model.StudentStatusActive)
	own := addAsset(dir, 10, "ST-010", model.AssetStatusActive)
	foreign := addAsset(dir, 11, "ST-011", model.AssetStatusActive)
	stolen := addAsset(dir, 12, "ST-010", model.AssetStatusStolen)

	res, err := svc.ScanStudent(ctx, testOperatorID, "ST-010")
	if err != nil {
		t.Fatalf("ScanStudent() ошибка: %v", err)
	}

	tests := []struct {
		name       string
		exitToken  string
		qrToken    string
		wantReason string
	}{
		{"мусорный exit-токен", "not-a-token", qrFor(own), ReasonInvalidExitToken},
		{"мусорный QR", res.ExitToken, "not-a-qr", ReasonInvalidQR},
		{"актив другого студента", res.ExitToken, qrFor(foreign), ReasonOwnershipMismatch},
		{"украденный актив", res.ExitToken, qrFor(stolen), "Asset stolen"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(audit.entries)
			dec, err := svc.ScanAsset(ctx, testOperatorID, "ST-010", tt.exitToken, tt.qrToken)
			if err != nil {
				t.Fatalf("ScanAsset() ошибка: %v", err)
			}
			if dec.Result != model.ResultBlocked || dec.Reason != tt.wantReason {
				t.Errorf("решение = %s/%q, хотели BLOCKED/%q", dec.Result, dec.Reason, tt.wantReason)
			}
			// Каждое терминальное решение — ровно одна запись
			if len(audit.entries) != before+1 {
				t.Errorf("в журнале %d записей, хотели %d", len(audit.entries), before+1)
			}
		})
	}
}

// После переоформления актива старая наклейка — невалидный QR:
// расхождение владельца внутри подписи не детализируется.
func TestGateScanAssetOwnershipReassigned(t *testing.T) {
	svc, dir, _ := newTestGate(t, nil)
	ctx := context.Background()
	addStudent(dir, "ST-020", model.StudentStatusActive)
	asset := addAsset(dir, 20, "ST-020", model.AssetStatusActive)

	res, err := svc.ScanStudent(ctx, testOperatorID, "ST-020")
	if err != nil {
		t.Fatalf("ScanStudent() ошибка: %v", err)
	}

	oldQR := qrFor(asset)
	// Переоформление после выпуска наклейки
	asset.OwnerStudentID = "ST-OTHER"

	dec, err := svc.ScanAsset(ctx, testOperatorID, "ST-020", res.ExitToken, oldQR)
	if err != nil {
		t.Fatalf("ScanAsset() ошибка: %v", err)
	}
	if dec.Result != model.ResultBlocked || dec.Reason != ReasonInvalidQR {
		t.Errorf("решение = %s/%q, хотели BLOCKED/%q", dec.Result, dec.Reason, ReasonInvalidQR)
	}
}

// Студента заблокировали между шагами — второй шаг перепроверяет справочник.
func TestGateStudentBlockedBetweenSteps(t *testing.T) {
	svc, dir, _ := newTestGate(t, nil)
	ctx := context.Background()
	student := addStudent(dir, "ST-030", model.StudentStatusActive)
	asset := addAsset(dir, 30, "ST-030", model.AssetStatusActive)

	res, err := svc.ScanStudent(ctx, testOperatorID, "ST-030")
	if err != nil {
		t.Fatalf("ScanStudent() ошибка: %v", err)
	}

	student.Status = model.StudentStatusBlocked

	dec, err := svc.ScanAsset(ctx, testOperatorID, "ST-030", res.ExitToken, qrFor(asset))
	if err != nil {
		t.Fatalf("ScanAsset() ошибка: %v", err)
	}
	if dec.Result != model.ResultBlocked || dec.Reason != ReasonStudentInvalid {
		t.Errorf("решение = %s/%q, хотели BLOCKED/%q", dec.Result, dec.Reason, ReasonStudentInvalid)
	}
}

// --- Повторное использование exit-токена ---

// Без replay guard повтор токена в пределах TTL валиден —
// документированное поведение протокола.
func TestGateExitTokenReuseWithoutGuard(t *testing.T) {
	svc, dir, _ := newTestGate(t, nil)
	ctx := context.Background()
	addStudent(dir, "ST-040", model.StudentStatusActive)
	asset := addAsset(dir, 40, "ST-040", model.AssetStatusActive)

	res, err := svc.ScanStudent(ctx, testOperatorID, "ST-040")
	if err != nil {
		t.Fatalf("ScanStudent() ошибка: %v", err)
	}

	for i := 0; i < 2; i++ {
		dec, err := svc.ScanAsset(ctx, testOperatorID, "ST-040", res.ExitToken, qrFor(asset))
		if err != nil {
			t.Fatalf("ScanAsset() вызов %d ошибка: %v", i+1, err)
		}
		if dec.Result != model.ResultAllowed {
			t.Errorf("вызов %d: Result = %s/%q, хотели ALLOWED", i+1, dec.Result, dec.Reason)
		}
	}
}

// С включённым replay guard второй повтор того же токена отклоняется.
func TestGateExitTokenReuseWithGuard(t *testing.T) {
	svc, dir, _ := newTestGate(t, NewReplayGuard(128, 5*time.Minute))
	ctx := context.Background()
	addStudent(dir, "ST-041", model.StudentStatusActive)
	asset := addAsset(dir, 41, "ST-041", model.AssetStatusActive)

	res, err := svc.ScanStudent(ctx, testOperatorID, "ST-041")
	if err != nil {
		t.Fatalf("ScanStudent() ошибка: %v", err)
	}

	dec1, err := svc.ScanAsset(ctx, testOperatorID, "ST-041", res.ExitToken, qrFor(asset))
	if err != nil {
		t.Fatalf("ScanAsset() первый вызов ошибка: %v", err)
	}
	if dec1.Result != model.ResultAllowed {
		t.Fatalf("первый вызов: %s/%q", dec1.Result, dec1.Reason)
	}

	dec2, err := svc.ScanAsset(ctx, testOperatorID, "ST-041", res.ExitToken, qrFor(asset))
	if err != nil {
		t.Fatalf("ScanAsset() повторный вызов ошибка: %v", err)
	}
	if dec2.Result != model.ResultBlocked || dec2.Reason != ReasonExitTokenReplayed {
		t.Errorf("повтор: %s/%q, хотели BLOCKED/%q", dec2.Result, dec2.Reason, ReasonExitTokenReplayed)
	}
}

// Токен, выпущенный одним оператором, не принимается другим.
func TestGateExitTokenOperatorBinding(t *testing.T) {
	svc, dir, _ := newTestGate(t, nil)
	ctx := context.Background()
	addStudent(dir, "ST-050", model.StudentStatusActive)
	asset := addAsset(dir, 50, "ST-050", model.AssetStatusActive)

	res, err := svc.ScanStudent(ctx, testOperatorID, "ST-050")
	if err != nil {
		t.Fatalf("ScanStudent() ошибка: %v", err)
	}

	otherOperator := int64(99)
	dec, err := svc.ScanAsset(ctx, otherOperator, "ST-050", res.ExitToken, qrFor(asset))
	if err != nil {
		t.Fatalf("ScanAsset() ошибка: %v", err)
	}
	if dec.Result != model.ResultBlocked || dec.Reason != ReasonInvalidExitToken {
		t.Errorf("решение = %s/%q, хотели BLOCKED/%q", dec.Result, dec.Reason, ReasonInvalidExitToken)
	}
}

// --- Инвариант log-then-respond ---

// Решение без записи в журнал не выдаётся: отказ журнала → ErrLoggingFailed.
func TestGateLoggingFailureBlocksResponse(t *testing.T) {
	svc, dir, audit := newTestGate(t, nil)
	ctx := context.Background()
	addStudent(dir, "ST-060", model.StudentStatusActive)
	asset := addAsset(dir, 60, "ST-060", model.AssetStatusActive)

	res, err := svc.ScanStudent(ctx, testOperatorID, "ST-060")
	if err != nil {
		t.Fatalf("ScanStudent() ошибка: %v", err)
	}

	audit.failure = errors.New("журнал недоступен")

	dec, err := svc.ScanAsset(ctx, testOperatorID, "ST-060", res.ExitToken, qrFor(asset))
	if !errors.Is(err, ErrLoggingFailed) {
		t.Fatalf("ошибка = %v, хотели ErrLoggingFailed", err)
	}
	if dec != nil {
		t.Errorf("при отказе журнала решение не должно выдаваться, получили: %+v", dec)
	}

	// Отказ журнала на шаге сканирования студента (blocked-ветка)
	_, err = svc.ScanStudent(ctx, testOperatorID, "ST-MISSING")
	if !errors.Is(err, ErrLoggingFailed) {
		t.Errorf("ScanStudent() ошибка = %v, хотели ErrLoggingFailed", err)
	}

	// Формальный отказ по идентификатору — тоже терминальное решение,
	// без записи в журнал оно не выдаётся
	_, err = svc.ScanStudent(ctx, testOperatorID, "X")
	if !errors.Is(err, ErrLoggingFailed) {
		t.Errorf("ScanStudent(короткий ID) ошибка = %v, хотели ErrLoggingFailed", err)
	}
}

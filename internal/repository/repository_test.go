package repository

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/dbu/eacs/gate-module/internal/config"
	"github.com/dbu/eacs/gate-module/internal/database"
	"github.com/dbu/eacs/gate-module/internal/domain/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// setupTestDB запускает PostgreSQL контейнер, применяет миграции.
// Возвращает pgxpool.Pool, очистка — через t.Cleanup.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("eacs_test"),
		postgres.WithUsername("eacs"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	// Настраиваем env для config.Load()
	os.Setenv("GM_DB_HOST", host)
	os.Setenv("GM_DB_PORT", port.Port())
	os.Setenv("GM_DB_NAME", "eacs_test")
	os.Setenv("GM_DB_USER", "eacs")
	os.Setenv("GM_DB_PASSWORD", "test-password")
	os.Setenv("GM_DB_SSL_MODE", "disable")
	os.Setenv("GM_QR_SECRET", "test-qr-secret")
	os.Setenv("GM_JWT_SECRET", "test-jwt-secret")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	// Применяем миграции
	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	// Подключаемся
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	return pool
}

// createTestStudent — вспомогательное создание студента для FK.
func createTestStudent(t *testing.T, pool *pgxpool.Pool, id string) *model.Student {
	t.Helper()
	s := &model.Student{
		StudentID: id,
		FullName:  "Тестовый Студент",
		Status:    model.StudentStatusActive,
	}
	if err := NewStudentRepository(pool).Create(context.Background(), s); err != nil {
		t.Fatalf("Создание студента: %v", err)
	}
	return s
}

// createTestOperator — вспомогательное создание оператора для FK.
func createTestOperator(t *testing.T, pool *pgxpool.Pool, username string) *model.Operator {
	t.Helper()
	op := &model.Operator{
		Username:     username,
		PasswordHash: "$2a$10$не-настоящий-хеш",
		Role:         "gate_operator",
	}
	if err := NewOperatorRepository(pool).Create(context.Background(), op); err != nil {
		t.Fatalf("Создание оператора: %v", err)
	}
	return op
}

// --- Тесты StudentRepository ---

func TestStudentCRUD(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewStudentRepository(pool)

	s := &model.Student{
		StudentID: "ST-2026-001",
		FullName:  "Иванов Иван",
		Status:    model.StudentStatusActive,
	}

	// Create
	if err := repo.Create(ctx, s); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if s.CreatedAt.IsZero() {
		t.Error("CreatedAt не установлен")
	}

	// Дубликат student_id → ErrConflict
	dup := &model.Student{StudentID: "ST-2026-001", FullName: "Другой", Status: model.StudentStatusActive}
	if err := repo.Create(ctx, dup); err == nil {
		t.Error("Create() дубликата должен вернуть ошибку")
	}

	// GetByID
	got, err := repo.GetByID(ctx, "ST-2026-001")
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if got.FullName != "Иванов Иван" {
		t.Errorf("FullName = %q, хотели %q", got.FullName, "Иванов Иван")
	}

	// Update — блокировка студента
	s.Status = model.StudentStatusBlocked
	if err := repo.Update(ctx, s); err != nil {
		t.Fatalf("Update() ошибка: %v", err)
	}
	got2, _ := repo.GetByID(ctx, "ST-2026-001")
	if got2.Status != model.StudentStatusBlocked {
		t.Errorf("После Update: Status = %q, хотели %q", got2.Status, model.StudentStatusBlocked)
	}

	// List с фильтром по статусу
	blocked := model.StudentStatusBlocked
	list, err := repo.List(ctx, &blocked, 10, 0)
	if err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("List() вернул %d записей, хотели 1", len(list))
	}

	// Count
	count, err := repo.Count(ctx, nil)
	if err != nil {
		t.Fatalf("Count() ошибка: %v", err)
	}
	if count != 2 {
		t.Errorf("Count() = %d, хотели 2", count)
	}

	// Delete
	if err := repo.Delete(ctx, "ST-2026-001"); err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}
	if _, err := repo.GetByID(ctx, "ST-2026-001"); err != ErrNotFound {
		t.Errorf("После Delete ожидали ErrNotFound, получили: %v", err)
	}
}

// --- Тесты AssetRepository ---

func TestAssetCRUD(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewAssetRepository(pool)
	createTestStudent(t, pool, "ST-A-001")

	brand := "Lenovo"
	a := &model.Asset{
		OwnerStudentID: "ST-A-001",
		SerialNumber:   "SN-001",
		Brand:          &brand,
		Status:         model.AssetStatusActive,
	}

	// Create
	if err := repo.Create(ctx, a); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if a.AssetID == 0 {
		t.Error("AssetID не установлен")
	}

	// Дубликат серийного номера → ErrConflict
	dup := &model.Asset{OwnerStudentID: "ST-A-001", SerialNumber: "SN-001", Status: model.AssetStatusActive}
	if err := repo.Create(ctx, dup); err == nil {
		t.Error("Create() с дублирующим серийным номером должен вернуть ошибку")
	}

	// SetQRSignature + GetByID
	if err := repo.SetQRSignature(ctx, a.AssetID, "dGVzdC1zaWduYXR1cmU="); err != nil {
		t.Fatalf("SetQRSignature() ошибка: %v", err)
	}
	got, err := repo.GetByID(ctx, a.AssetID)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if got == nil {
		t.Fatal("GetByID() вернул nil для существующего актива")
	}
	if got.QRSignature == nil || *got.QRSignature != "dGVzdC1zaWduYXR1cmU=" {
		t.Errorf("QRSignature = %v, хотели %q", got.QRSignature, "dGVzdC1zaWduYXR1cmU=")
	}

	// GetByID несуществующего — (nil, nil)
	missing, err := repo.GetByID(ctx, 999999)
	if err != nil {
		t.Fatalf("GetByID(999999) ошибка: %v", err)
	}
	if missing != nil {
		t.Error("GetByID() несуществующего актива должен вернуть nil")
	}

	// GetBySerialNumber
	bySerial, err := repo.GetBySerialNumber(ctx, "SN-001")
	if err != nil {
		t.Fatalf("GetBySerialNumber() ошибка: %v", err)
	}
	if bySerial.AssetID != a.AssetID {
		t.Errorf("AssetID = %d, хотели %d", bySerial.AssetID, a.AssetID)
	}

	// ListActiveOwnedBy
	active, err := repo.ListActiveOwnedBy(ctx, "ST-A-001")
	if err != nil {
		t.Fatalf("ListActiveOwnedBy() ошибка: %v", err)
	}
	if len(active) != 1 {
		t.Errorf("ListActiveOwnedBy() вернул %d записей, хотели 1", len(active))
	}

	// Update — пометка как украденного исключает из активных
	a.Status = model.AssetStatusStolen
	if err := repo.Update(ctx, a); err != nil {
		t.Fatalf("Update() ошибка: %v", err)
	}
	active2, _ := repo.ListActiveOwnedBy(ctx, "ST-A-001")
	if len(active2) != 0 {
		t.Errorf("После смены статуса ListActiveOwnedBy() вернул %d записей, хотели 0", len(active2))
	}

	// CountByStatus
	byStatus, err := repo.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus() ошибка: %v", err)
	}
	if byStatus[model.AssetStatusStolen] != 1 {
		t.Errorf("CountByStatus[stolen] = %d, хотели 1", byStatus[model.AssetStatusStolen])
	}

	// Delete
	if err := repo.Delete(ctx, a.AssetID); err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}
	gone, _ := repo.GetByID(ctx, a.AssetID)
	if gone != nil {
		t.Error("После Delete GetByID() должен вернуть nil")
	}
}

// --- Тесты TxRunner ---

// Ошибка внутри транзакции откатывает все её записи: двухфазная
// регистрация актива либо завершается целиком, либо не оставляет следа.
func TestTxRunnerRollback(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	createTestStudent(t, pool, "ST-TX-001")
	runner := NewTxRunner(pool)

	a := &model.Asset{
		OwnerStudentID: "ST-TX-001",
		SerialNumber:   "SN-TX-001",
		Status:         model.AssetStatusActive,
	}

	failure := errors.New("сбой после создания строки")
	err := runner.RunInTx(ctx, func(tx pgx.Tx) error {
		if err := NewAssetRepository(tx).Create(ctx, a); err != nil {
			return err
		}
		return failure
	})
	if !errors.Is(err, failure) {
		t.Fatalf("RunInTx() ошибка = %v, хотели %v", err, failure)
	}

	gone, err := NewAssetRepository(pool).GetByID(ctx, a.AssetID)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if gone != nil {
		t.Error("после отката актив не должен существовать")
	}
}

// Успешная транзакция коммитит обе фазы — строку и QR-подпись.
func TestTxRunnerCommit(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	createTestStudent(t, pool, "ST-TX-002")
	runner := NewTxRunner(pool)

	a := &model.Asset{
		OwnerStudentID: "ST-TX-002",
		SerialNumber:   "SN-TX-002",
		Status:         model.AssetStatusActive,
	}

	err := runner.RunInTx(ctx, func(tx pgx.Tx) error {
		assets := NewAssetRepository(tx)
		if err := assets.Create(ctx, a); err != nil {
			return err
		}
		return assets.SetQRSignature(ctx, a.AssetID, "dHgtc2lnbmF0dXJl")
	})
	if err != nil {
		t.Fatalf("RunInTx() ошибка: %v", err)
	}

	got, err := NewAssetRepository(pool).GetByID(ctx, a.AssetID)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if got == nil || got.QRSignature == nil || *got.QRSignature != "dHgtc2lnbmF0dXJl" {
		t.Errorf("после коммита актив = %+v", got)
	}
}

// --- Тесты OperatorRepository ---

func TestOperatorCRUD(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewOperatorRepository(pool)

	op := &model.Operator{
		Username:     "guard1",
		PasswordHash: "$2a$10$тестовый-хеш",
		Role:         "gate_operator",
	}

	// Create
	if err := repo.Create(ctx, op); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if op.UserID == 0 {
		t.Error("UserID не установлен")
	}

	// Дубликат username → ErrConflict
	dup := &model.Operator{Username: "guard1", PasswordHash: "x", Role: "admin"}
	if err := repo.Create(ctx, dup); err == nil {
		t.Error("Create() с занятым именем должен вернуть ошибку")
	}

	// GetByUsername
	got, err := repo.GetByUsername(ctx, "guard1")
	if err != nil {
		t.Fatalf("GetByUsername() ошибка: %v", err)
	}
	if got.UserID != op.UserID {
		t.Errorf("UserID = %d, хотели %d", got.UserID, op.UserID)
	}

	// GetByID несуществующего → ErrNotFound
	if _, err := repo.GetByID(ctx, 999999); err != ErrNotFound {
		t.Errorf("GetByID(999999) = %v, ожидали ErrNotFound", err)
	}

	// Count
	count, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count() ошибка: %v", err)
	}
	if count != 1 {
		t.Errorf("Count() = %d, хотели 1", count)
	}

	// Delete
	if err := repo.Delete(ctx, op.UserID); err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}
	if _, err := repo.GetByID(ctx, op.UserID); err != ErrNotFound {
		t.Errorf("После Delete ожидали ErrNotFound, получили: %v", err)
	}
}

// --- Тесты ExitLogRepository ---

func TestExitLogAppendAndList(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewExitLogRepository(pool)
	op := createTestOperator(t, pool, "guard-log")

	// Запись с неизвестным student_id — FK на студента отсутствует намеренно
	blocked := &model.ExitLog{
		StudentID:  "UNKNOWN-ID",
		OperatorID: op.UserID,
		Result:     model.ResultBlocked,
		Reason:     "UNKNOWN_STUDENT",
	}
	if err := repo.Append(ctx, blocked); err != nil {
		t.Fatalf("Append() с неизвестным студентом ошибка: %v", err)
	}
	if blocked.LogID == 0 {
		t.Error("LogID не установлен")
	}
	if blocked.Timestamp.IsZero() {
		t.Error("Timestamp не установлен")
	}

	allowed := &model.ExitLog{
		StudentID:  "ST-L-001",
		OperatorID: op.UserID,
		Result:     model.ResultAllowed,
		Reason:     "OK",
	}
	if err := repo.Append(ctx, allowed); err != nil {
		t.Fatalf("Append() ошибка: %v", err)
	}

	// List без фильтров — свежие первыми
	list, err := repo.List(ctx, ExitLogFilters{}, 10, 0)
	if err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List() вернул %d записей, хотели 2", len(list))
	}
	if list[0].LogID != allowed.LogID {
		t.Errorf("Первая запись LogID = %d, хотели %d (свежие первыми)", list[0].LogID, allowed.LogID)
	}

	// Фильтр по результату
	res := model.ResultBlocked
	onlyBlocked, err := repo.List(ctx, ExitLogFilters{Result: &res}, 10, 0)
	if err != nil {
		t.Fatalf("List(result=BLOCKED) ошибка: %v", err)
	}
	if len(onlyBlocked) != 1 || onlyBlocked[0].Reason != "UNKNOWN_STUDENT" {
		t.Errorf("Фильтр по результату вернул неверные записи: %+v", onlyBlocked)
	}

	// Фильтр по студенту
	sid := "ST-L-001"
	byStudent, err := repo.List(ctx, ExitLogFilters{StudentID: &sid}, 10, 0)
	if err != nil {
		t.Fatalf("List(student) ошибка: %v", err)
	}
	if len(byStudent) != 1 {
		t.Errorf("Фильтр по студенту вернул %d записей, хотели 1", len(byStudent))
	}

	// CountByResult
	byResult, err := repo.CountByResult(ctx, nil, nil)
	if err != nil {
		t.Fatalf("CountByResult() ошибка: %v", err)
	}
	if byResult[model.ResultAllowed] != 1 || byResult[model.ResultBlocked] != 1 {
		t.Errorf("CountByResult() = %v, хотели по 1 на результат", byResult)
	}
}

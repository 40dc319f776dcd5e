// gate.go — рабочий процесс КПП (контрольно-пропускного пункта).
//
// Конечный автомат прохода: сканирование студента → сканирование актива
// либо выход без активов → терминальное решение ALLOWED/BLOCKED.
// Сервер не хранит состояние между шагами: памятью автомата служит
// короткоживущий exit-токен, выпускаемый на первом шаге.
//
// Инвариант log-then-respond: терминальное решение сначала записывается
// в журнал и только затем возвращается вызывающему. Если запись не удалась,
// решение не выдаётся — наружу уходит ErrLoggingFailed.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dbu/eacs/gate-module/internal/domain/model"
	"github.com/dbu/eacs/gate-module/internal/token"
)

// Причины решений КПП. Попадают в журнал и в ответ оператору.
// ReasonStudentInactive — префикс: в журнал дописывается статус студента.
const (
	ReasonOK                 = "OK"
	ReasonInvalidStudentID   = "Invalid student ID format"
	ReasonStudentNotFound    = "Student not found"
	ReasonStudentInactive    = "Student inactive"
	ReasonInvalidExitToken   = "Invalid or expired exit token"
	ReasonExitTokenReplayed  = "Exit token already used"
	ReasonStudentInvalid     = "Student invalid or inactive"
	ReasonInvalidQR          = "Invalid QR"
	ReasonOwnershipMismatch  = "Ownership mismatch"
	ReasonExitVerified       = "Exit verified successfully"
	ReasonAssetsPresent      = "Registered assets present"
	ReasonExitWithoutAssets  = "Exit without registered assets"
)

// Directory — читающий доступ к справочникам студентов и активов.
// Отсутствующая запись — (nil, nil), а не ошибка: для КПП
// «неизвестный студент» — штатное решение BLOCKED, не сбой.
type Directory interface {
	StudentByID(ctx context.Context, studentID string) (*model.Student, error)
	AssetByID(ctx context.Context, assetID int64) (*model.Asset, error)
	ActiveAssetsOwnedBy(ctx context.Context, studentID string) ([]*model.Asset, error)
}

// AuditLog — append-only журнал решений КПП.
type AuditLog interface {
	Append(ctx context.Context, entry *model.ExitLog) error
}

// gateDecisions — счётчик терминальных решений КПП по шагам и результатам.
var gateDecisions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gm_gate_decisions_total",
		Help: "Терминальные решения КПП по шагам и результатам",
	},
	[]string{"step", "result"},
)

// ScanStudentResult — результат первого шага (сканирование студента).
type ScanStudentResult struct {
	Blocked    bool
	Reason     string
	Student    *model.Student
	HasAssets  bool
	AssetCount int
	ExitToken  string
}

// GateDecision — терминальное решение КПП.
type GateDecision struct {
	Result string // model.ResultAllowed | model.ResultBlocked
	Reason string
	Asset  *model.Asset // заполнен при решении по активу
}

// GateService — сервис рабочего процесса КПП.
type GateService struct {
	directory Directory
	audit     AuditLog
	qr        *token.QRSigner
	exit      *token.ExitSigner
	replay    *ReplayGuard // nil — защита от повторов выключена
	logger    *slog.Logger
}

// NewGateService создаёт сервис КПП.
// replay может быть nil — тогда повтор exit-токена в пределах TTL валиден.
func NewGateService(
	directory Directory,
	audit AuditLog,
	qr *token.QRSigner,
	exit *token.ExitSigner,
	replay *ReplayGuard,
	logger *slog.Logger,
) *GateService {
	return &GateService{
		directory: directory,
		audit:     audit,
		qr:        qr,
		exit:      exit,
		replay:    replay,
		logger:    logger.With(slog.String("component", "gate_service")),
	}
}

// record пишет терминальное решение в журнал до выдачи ответа.
// Ошибка записи превращается в ErrLoggingFailed: решение без
// журнальной записи наружу не уходит.
func (s *GateService) record(ctx context.Context, step string, entry *model.ExitLog) error {
	if err := s.audit.Append(ctx, entry); err != nil {
		s.logger.Error("Запись решения в журнал не удалась",
			slog.String("step", step),
			slog.String("student_id", entry.StudentID),
			slog.String("result", entry.Result),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: %w", ErrLoggingFailed, err) //nolint:errorlint // намеренный двойной wrap
	}
	gateDecisions.WithLabelValues(step, entry.Result).Inc()
	return nil
}

// ScanStudent — первый шаг прохода: проверка студента и выпуск exit-токена.
// Успешный результат в журнал не пишется — это разведочный шаг, терминального
// решения ещё нет. Каждый отказ — терминальное BLOCKED и журналируется.
func (s *GateService) ScanStudent(ctx context.Context, operatorID int64, studentID string) (*ScanStudentResult, error) {
	// Формальная проверка идентификатора: короче 3 символов — отказ.
	if len(studentID) < 3 {
		if err := s.record(ctx, "scan_student", &model.ExitLog{
			StudentID:  studentID,
			OperatorID: operatorID,
			Result:     model.ResultBlocked,
			Reason:     ReasonInvalidStudentID,
		}); err != nil {
			return nil, err
		}
		return &ScanStudentResult{Blocked: true, Reason: ReasonInvalidStudentID}, nil
	}

	student, err := s.directory.StudentByID(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("поиск студента: %w", err)
	}

	if student == nil {
		if err := s.record(ctx, "scan_student", &model.ExitLog{
			StudentID:  studentID,
			OperatorID: operatorID,
			Result:     model.ResultBlocked,
			Reason:     ReasonStudentNotFound,
		}); err != nil {
			return nil, err
		}
		return &ScanStudentResult{Blocked: true, Reason: ReasonStudentNotFound}, nil
	}

	if !student.IsActive() {
		// В журнал попадает и фактический статус студента.
		reason := ReasonStudentInactive + ": " + student.Status
		if err := s.record(ctx, "scan_student", &model.ExitLog{
			StudentID:  studentID,
			OperatorID: operatorID,
			Result:     model.ResultBlocked,
			Reason:     reason,
		}); err != nil {
			return nil, err
		}
		return &ScanStudentResult{Blocked: true, Reason: reason}, nil
	}

	assets, err := s.directory.ActiveAssetsOwnedBy(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("поиск активов студента: %w", err)
	}
	hasAssets := len(assets) > 0

	exitToken := s.exit.Issue(studentID, strconv.FormatInt(operatorID, 10), hasAssets)

	s.logger.Debug("Студент проверен, exit-токен выпущен",
		slog.String("student_id", studentID),
		slog.Bool("has_assets", hasAssets),
		slog.Int("asset_count", len(assets)),
	)

	return &ScanStudentResult{
		Reason:     ReasonOK,
		Student:    student,
		HasAssets:  hasAssets,
		AssetCount: len(assets),
		ExitToken:  exitToken,
	}, nil
}

// verifyExitToken проверяет exit-токен и (если включено) защиту от повторов.
// Возвращает причину отказа либо пустую строку.
func (s *GateService) verifyExitToken(tok string, operatorID int64, studentID string, expectHasAssets bool) string {
	claims, err := s.exit.Verify(tok, studentID, strconv.FormatInt(operatorID, 10), &expectHasAssets)
	if err != nil {
		return ReasonInvalidExitToken
	}
	if s.replay != nil && !s.replay.MarkUsed("exit", claims.Nonce) {
		return ReasonExitTokenReplayed
	}
	return ""
}

// ScanAsset — второй шаг прохода: проверка QR-подписи актива.
// Вызывается по разу на каждый предъявленный актив; каждый вызов
// пишет ровно одну запись в журнал.
func (s *GateService) ScanAsset(ctx context.Context, operatorID int64, studentID, exitToken, qrToken string) (*GateDecision, error) {
	blocked := func(reason string, asset *model.Asset) (*GateDecision, error) {
		entry := &model.ExitLog{
			StudentID:  studentID,
			OperatorID: operatorID,
			Result:     model.ResultBlocked,
			Reason:     reason,
		}
		if asset != nil {
			entry.AssetID = &asset.AssetID
		}
		if err := s.record(ctx, "scan_asset", entry); err != nil {
			return nil, err
		}
		return &GateDecision{Result: model.ResultBlocked, Reason: reason, Asset: asset}, nil
	}

	if reason := s.verifyExitToken(exitToken, operatorID, studentID, true); reason != "" {
		return blocked(reason, nil)
	}

	// Повторная проверка студента: между шагами его могли заблокировать.
	student, err := s.directory.StudentByID(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("поиск студента: %w", err)
	}
	if student == nil || !student.IsActive() {
		return blocked(ReasonStudentInvalid, nil)
	}

	asset, err := s.qr.VerifyAndResolve(ctx, qrToken, s.directory)
	if err != nil {
		switch {
		// Любой отказ цепочки проверки подписи — «Invalid QR»,
		// включая расхождение владельца в полях подписи: наклейка
		// с устаревшим владельцем — невалидная наклейка.
		case errors.Is(err, token.ErrMalformedToken),
			errors.Is(err, token.ErrBadSignature),
			errors.Is(err, token.ErrExpired),
			errors.Is(err, token.ErrUnknownAsset),
			errors.Is(err, token.ErrFieldMismatch),
			errors.Is(err, token.ErrOwnershipMismatch):
			return blocked(ReasonInvalidQR, nil)
		default:
			return nil, fmt.Errorf("проверка QR-подписи: %w", err)
		}
	}

	// Подпись подлинна, но актив должен принадлежать сканируемому студенту.
	if asset.OwnerStudentID != studentID {
		return blocked(ReasonOwnershipMismatch, asset)
	}

	if !asset.IsActive() {
		return blocked("Asset "+asset.Status, asset)
	}

	entry := &model.ExitLog{
		StudentID:  studentID,
		AssetID:    &asset.AssetID,
		OperatorID: operatorID,
		Result:     model.ResultAllowed,
		Reason:     ReasonExitVerified,
	}
	if err := s.record(ctx, "scan_asset", entry); err != nil {
		return nil, err
	}

	return &GateDecision{Result: model.ResultAllowed, Reason: ReasonExitVerified, Asset: asset}, nil
}

// ExitWithoutAsset — альтернатива второму шагу: студент уходит без активов.
// Активы перепроверяются по справочнику: exit-токен мог быть выпущен
// до регистрации нового актива.
func (s *GateService) ExitWithoutAsset(ctx context.Context, operatorID int64, studentID, exitToken string) (*GateDecision, error) {
	blocked := func(reason string) (*GateDecision, error) {
		if err := s.record(ctx, "exit_without_asset", &model.ExitLog{
			StudentID:  studentID,
			OperatorID: operatorID,
			Result:     model.ResultBlocked,
			Reason:     reason,
		}); err != nil {
			return nil, err
		}
		return &GateDecision{Result: model.ResultBlocked, Reason: reason}, nil
	}

	if reason := s.verifyExitToken(exitToken, operatorID, studentID, false); reason != "" {
		return blocked(reason)
	}

	student, err := s.directory.StudentByID(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("поиск студента: %w", err)
	}
	if student == nil || !student.IsActive() {
		return blocked(ReasonStudentInvalid)
	}

	assets, err := s.directory.ActiveAssetsOwnedBy(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("поиск активов студента: %w", err)
	}
	if len(assets) > 0 {
		return blocked(ReasonAssetsPresent)
	}

	if err := s.record(ctx, "exit_without_asset", &model.ExitLog{
		StudentID:  studentID,
		OperatorID: operatorID,
		Result:     model.ResultAllowed,
		Reason:     ReasonExitWithoutAssets,
	}); err != nil {
		return nil, err
	}

	return &GateDecision{Result: model.ResultAllowed, Reason: ReasonExitWithoutAssets}, nil
}

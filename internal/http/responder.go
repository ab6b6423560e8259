package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/example/conference-scheduler/internal/application"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	errBadRequestBody       = errors.New("無効なリクエスト形式です。")
	errInvalidEventID       = errors.New("無効なイベント ID です。")
	errInvalidParticipantID = errors.New("無効な参加者 ID です。")
	errInvalidQuery         = errors.New("クエリパラメータが正しくありません。")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := localizedStatusMessage(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).WarnContext(ctx, "request rejected", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

// conflictMessages lists the business rule violations answered with 409.
var conflictMessages = []struct {
	target  error
	message string
}{
	{application.ErrIntervalConflict, "指定された時間帯は既に予約されています。"},
	{application.ErrCapacityExceeded, "定員を超えています。"},
	{application.ErrNotEligible, "この参加者はその役割を担えません。"},
	{application.ErrInvalidHostCount, "登壇者の人数がイベント種別の条件を満たしていません。"},
	{application.ErrAlreadyEnrolled, "既に参加登録されています。"},
	{application.ErrAlreadyExists, "同じ識別子のリソースが既に存在します。"},
	{application.ErrOutsideOpenHours, "会場の利用可能時間外です。"},
}

func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	code := strings.ToUpper(application.ErrorKind(err))
	switch {
	case errors.Is(err, application.ErrNotFound):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{ErrorCode: code, Message: "指定されたリソースが見つかりません。"})
		return
	case errors.Is(err, application.ErrInvalidCredentials):
		r.writeJSON(ctx, w, http.StatusUnauthorized, errorResponse{ErrorCode: code, Message: "ユーザー名またはパスワードが正しくありません。"})
		return
	}

	for _, c := range conflictMessages {
		if errors.Is(err, c.target) {
			r.writeJSON(ctx, w, http.StatusConflict, errorResponse{ErrorCode: code, Message: c.message})
			return
		}
	}

	var vErr *application.ValidationError
	if errors.As(err, &vErr) {
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
			ErrorCode: code,
			Message:   "入力内容に誤りがあります。",
			Errors:    localizeValidationErrors(vErr),
		})
		return
	}

	r.loggerFor(ctx).ErrorContext(ctx, "unexpected service error", "error", err, "error_kind", application.ErrorKind(err))
	r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{ErrorCode: code, Message: "サーバー内部でエラーが発生しました。"})
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

func localizedStatusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "リクエスト内容が正しくありません。"
	case http.StatusNotFound:
		return "指定されたリソースが見つかりません。"
	case http.StatusConflict:
		return "要求はリソースの現在の状態と競合しています。"
	case http.StatusUnprocessableEntity:
		return "入力内容に誤りがあります。"
	default:
		return "サーバー内部でエラーが発生しました。"
	}
}

func localizeValidationErrors(vErr *application.ValidationError) map[string]string {
	if vErr == nil || len(vErr.FieldErrors) == 0 {
		return nil
	}

	translated := make(map[string]string, len(vErr.FieldErrors))
	for field, msg := range vErr.FieldErrors {
		translated[field] = translateValidationMessage(msg)
	}
	return translated
}

func translateValidationMessage(message string) string {
	switch message {
	case "name is required":
		return "名前は必須です。"
	case "capacity must be positive":
		return "定員は正の整数で指定してください。"
	case "organizer is required":
		return "主催者は必須です。"
	case "room is required":
		return "会場は必須です。"
	case "kind must be talk, party or panel":
		return "イベント種別は talk、party、panel のいずれかを指定してください。"
	case "kind must be attendee, speaker, organizer or vip":
		return "アカウント種別は attendee、speaker、organizer、vip のいずれかを指定してください。"
	case "at least one interval is required":
		return "少なくとも 1 つの時間帯を指定してください。"
	case "intervals must not overlap":
		return "時間帯が重複しています。"
	case "interval bounds must be RFC 3339 timestamps":
		return "時間帯は RFC 3339 形式の日時で指定してください。"
	case "start must be before end":
		return "終了日時は開始日時より後である必要があります。"
	case "end must be after start":
		return "終了日時は開始日時より後である必要があります。"
	case "username is required":
		return "ユーザー名は必須です。"
	case "username must not contain spaces":
		return "ユーザー名に空白は使用できません。"
	case "feature is required":
		return "設備名は必須です。"
	case "id must be a lowercase slug":
		return "ID は小文字のスラッグで指定してください。"
	default:
		return message
	}
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
}

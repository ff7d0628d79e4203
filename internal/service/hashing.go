package service

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"reading-platform/internal/models"
	"reading-platform/internal/safety"
)

// safetyReportKey определяет поля проверки, от которых зависит отчет.
type safetyReportKey struct {
	Text     string `json:"text"`
	ChildAge int    `json:"child_age"`
	Language string `json:"language"`
	Context  string `json:"context"`
}

// safetyCacheKey вычисляет ключ кэша отчета по нормализованному входу проверки.
func safetyCacheKey(in safety.Input) (string, error) {
	data, err := json.Marshal(safetyReportKey{
		Text:     in.Text,
		ChildAge: in.ChildAge,
		Language: in.Language,
		Context:  in.Context,
	})
	if err != nil {
		return "", fmt.Errorf("failed to serialize safety key: %w", err)
	}
	return models.SafetyReportCacheKey(hashData(data)), nil
}

// hashData вычисляет SHA-256 и возвращает его в виде hex-строки.
func hashData(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

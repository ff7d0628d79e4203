package ai

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const fallbackEncoding = "cl100k_base"

// TokenCounter считает токены промпта через tiktoken.
// Для моделей, которых tiktoken не знает (например, llama), используется cl100k_base.
type TokenCounter struct {
	once  sync.Once
	enc   *tiktoken.Tiktoken
	err   error
	model string
}

// NewTokenCounter создает счетчик для модели. Кодировка загружается лениво.
func NewTokenCounter(model string) *TokenCounter {
	return &TokenCounter{model: model}
}

func (t *TokenCounter) load() {
	t.enc, t.err = tiktoken.EncodingForModel(t.model)
	if t.err != nil {
		t.enc, t.err = tiktoken.GetEncoding(fallbackEncoding)
	}
}

// Count возвращает число токенов. Если кодировку загрузить не удалось,
// возвращается грубая оценка по словам.
func (t *TokenCounter) Count(text string) int {
	t.once.Do(t.load)
	if t.err != nil || t.enc == nil {
		return len(strings.Fields(text)) * 4 / 3
	}
	return len(t.enc.Encode(text, nil, nil))
}

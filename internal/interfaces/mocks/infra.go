package mocks

import (
	"context"
	"encoding/json"
	"time"

	"reading-platform/internal/interfaces"
	"reading-platform/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/mock"
)

// DBTX - пустой querier для репозиториев-моков. Вызов любого метода - ошибка теста.
type DBTX struct{}

func (DBTX) Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error) {
	panic("mocks.DBTX: unexpected Exec")
}

func (DBTX) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	panic("mocks.DBTX: unexpected Query")
}

func (DBTX) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	panic("mocks.DBTX: unexpected QueryRow")
}

// TxManager вызывает fn сразу с DBTX{}. Ошибка fn возвращается как есть.
type TxManager struct {
	Calls int
}

func (m *TxManager) WithTx(ctx context.Context, fn func(tx interfaces.DBTX) error) error {
	m.Calls++
	return fn(DBTX{})
}

// Cache - мок interfaces.Cache. Для найденного значения передайте его вторым аргументом Return:
// Return(true, value, nil); значение копируется в dest через JSON.
type Cache struct {
	mock.Mock
}

func (m *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	args := m.Called(ctx, key, dest)
	found := args.Bool(0)
	if found && len(args) > 2 {
		data, err := json.Marshal(args.Get(1))
		if err != nil {
			return false, err
		}
		if err := json.Unmarshal(data, dest); err != nil {
			return false, err
		}
		return true, args.Error(2)
	}
	return found, args.Error(len(args) - 1)
}

func (m *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func (m *Cache) Delete(ctx context.Context, keys ...string) error {
	args := m.Called(ctx, keys)
	return args.Error(0)
}

func (m *Cache) DeleteByPrefix(ctx context.Context, prefix string) error {
	args := m.Called(ctx, prefix)
	return args.Error(0)
}

// EventPublisher - мок interfaces.EventPublisher
type EventPublisher struct {
	mock.Mock
}

func (m *EventPublisher) Publish(ctx context.Context, event models.DomainEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

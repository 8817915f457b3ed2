// Package credstore хранит bearer-токен консоли под одним именованным ключом.
//
// Писать в хранилище может только менеджер сессии, шлюз запросов его читает.
// Запись и удаление атомарно заменяют одно значение целиком.
package credstore

import (
	"context"
	"sync"
)

// Store сохранённый токен. Token возвращает пустую строку, если токена нет.
type Store interface {
	Token(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// Memory хранилище в памяти процесса, для тестов и backend=memory.
type Memory struct {
	mu    sync.RWMutex
	token string
}

// NewMemory создаёт хранилище в памяти с начальным токеном.
func NewMemory(token string) *Memory {
	return &Memory{token: token}
}

func (m *Memory) Token(context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, nil
}

func (m *Memory) Save(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	return nil
}

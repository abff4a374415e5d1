package cache

import (
	"context"
	"time"
)

// Store — короткоживущие ключи для дедупликации событий и распределённой блокировки.
// Источник истины для денег всегда БД, Store только снимает повторную работу.
type Store interface {
	// Claim ставит ключ со значением token, если его ещё нет.
	Claim(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	// Release удаляет ключ, только если он всё ещё принадлежит token.
	Release(ctx context.Context, key, token string) error
	// Seen сообщает, есть ли ключ.
	Seen(ctx context.Context, key string) (bool, error)
	// Remember ставит ключ безусловно.
	Remember(ctx context.Context, key string, ttl time.Duration) error
}

// Ключи
func EventKey(eventID string) string {
	return "bounty:event:" + eventID
}

const SweepLockKey = "bounty:lock:sweep"

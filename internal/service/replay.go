// replay.go — опциональная защита от повторного использования токенов.
//
// Протокол сам по себе одноразовость не гарантирует: exit-токен в пределах
// TTL валиден повторно. ReplayGuard включается отдельно (GM_REPLAY_GUARD)
// и работает в пределах одного экземпляра процесса — распределённая защита
// от повторов вне зоны ответственности модуля.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ReplayGuard — LRU-кэш использованных nonce с TTL.
// TTL кэша равен TTL токена: после истечения токена повтор
// отбрасывается проверкой срока действия, хранить nonce дольше незачем.
type ReplayGuard struct {
	cache *expirable.LRU[string, struct{}]
}

// NewReplayGuard создаёт кэш повторов указанного размера и TTL.
func NewReplayGuard(size int, ttl time.Duration) *ReplayGuard {
	return &ReplayGuard{
		cache: expirable.NewLRU[string, struct{}](size, nil, ttl),
	}
}

// MarkUsed отмечает nonce использованным.
// Возвращает false, если nonce уже был использован ранее.
func (g *ReplayGuard) MarkUsed(tokenType, nonce string) bool {
	key := tokenType + "|" + nonce
	if _, used := g.cache.Get(key); used {
		return false
	}
	g.cache.Add(key, struct{}{})
	return true
}

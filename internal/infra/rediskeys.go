package infra

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "lotto"
)

// Ключи для Strings (состояние)
const (
	// RedisKeyCooldownUntil — общий для всех инстансов штамп окончания cooldown (RFC3339).
	RedisKeyCooldownUntil = RedisNamespace + ":governor:cooldown_until"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanCooldown — канал трансляции cooldown-сигналов между инстансами governor.
	RedisChanCooldown = RedisNamespace + ":governor:cooldown-signal"
)

package domain

// Контекст решения — открытая мапа (приходит и из кода, и из JSON).
// Числа из JSON всегда парсятся в float64, поэтому все аксессоры
// терпимы к типам: int, int64, float64 и bool принимаются как есть,
// все остальное деградирует в дефолт без ошибок.

// CtxFloat достает число с дефолтом.
func CtxFloat(ctx map[string]interface{}, key string, def float64) float64 {
	if ctx == nil {
		return def
	}
	switch v := ctx[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return def
	}
}

// CtxInt достает целое с дефолтом.
func CtxInt(ctx map[string]interface{}, key string, def int) int {
	if ctx == nil {
		return def
	}
	switch v := ctx[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

// CtxBool достает флаг с дефолтом.
func CtxBool(ctx map[string]interface{}, key string, def bool) bool {
	if ctx == nil {
		return def
	}
	if v, ok := ctx[key].(bool); ok {
		return v
	}
	return def
}

// CtxString достает строку с дефолтом.
func CtxString(ctx map[string]interface{}, key string, def string) string {
	if ctx == nil {
		return def
	}
	if v, ok := ctx[key].(string); ok && v != "" {
		return v
	}
	return def
}

// CtxStrings достает список строк ([]string либо []interface{} из JSON).
func CtxStrings(ctx map[string]interface{}, key string) []string {
	if ctx == nil {
		return nil
	}
	switch v := ctx[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

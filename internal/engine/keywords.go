package engine

import "strings"

// Keyword sets driving the deterministic branches. Matching happens on the
// lowercased, trimmed message body; the reset set matches the whole body, the
// intent sets match as substrings.
var (
	resetKeywords = map[string]struct{}{
		"reset":  {},
		"inicio": {},
		"hola":   {},
		"menu":   {},
	}

	bookingKeywords = []string{"agendar", "reservar", "cita", "turno", "sesion", "sesión", "horario", "agenda"}
	orderKeywords   = []string{"comprar", "pedido", "pedir", "ordenar", "producto"}
	priceKeywords   = []string{"precio", "costo", "cuanto", "cuánto", "vale"}
	listKeywords    = []string{"servicio", "ofrecen", "catalogo", "catálogo"}
)

const (
	cancelKeyword      = "cancelar"
	affirmativeSi      = "si"
	affirmativeSiTilde = "sí"
	affirmativeOK      = "confirmar"
	negativeNo         = "no"
)

func normalize(body string) string {
	return strings.ToLower(strings.TrimSpace(body))
}

func isReset(text string) bool {
	_, ok := resetKeywords[text]
	return ok
}

func isCancel(text string) bool {
	return text == cancelKeyword
}

func isAffirmative(text string) bool {
	return text == affirmativeSi || text == affirmativeSiTilde || text == affirmativeOK
}

func isNegative(text string) bool {
	return text == negativeNo || text == cancelKeyword
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

package engine

import (
	"fmt"
	"strings"
	"time"
)

// User-facing copy. The tenant base is Spanish-speaking, so every reply the
// engine sends is Spanish.
const (
	replySearching     = "Buscando horarios disponibles... ⏳"
	replyNoSlots       = "Por ahora no hay horarios disponibles en los próximos días. Escribe *hola* para volver al inicio."
	replyInvalidPick   = "No entendí tu selección. Responde con el número de la lista, o escribe *cancelar* para salir."
	replyCancelled     = "Listo, cancelé la operación. Escribe *agendar* cuando quieras reservar."
	replySlotTaken     = "Ese horario acaba de ser reservado por otra persona 😔. Escribe *agendar* para ver los horarios actualizados."
	replyBookingFailed = "No pudimos registrar tu cita en este momento. Intenta de nuevo en unos minutos."
	replyOrderFailed   = "No pudimos registrar tu pedido en este momento. Intenta de nuevo en unos minutos."
	replyApology       = "Lo siento, ocurrió un error inesperado 🙏. Escribe *hola* para empezar de nuevo."
	replyNoProducts    = "Por ahora no tenemos productos disponibles. Escribe *hola* para volver al inicio."

	headerSlots    = "Estos son los horarios disponibles. Responde con el número de tu preferencia:"
	headerServices = "¿Qué servicio te interesa? Responde con el número:"
	headerProducts = "¿Qué producto te gustaría? Responde con el número:"
	headerPrices   = "Estos son nuestros precios:"
	headerCatalog  = "Esto es lo que ofrecemos:"
)

var spanishWeekdays = map[time.Weekday]string{
	time.Monday:    "lunes",
	time.Tuesday:   "martes",
	time.Wednesday: "miércoles",
	time.Thursday:  "jueves",
	time.Friday:    "viernes",
	time.Saturday:  "sábado",
	time.Sunday:    "domingo",
}

func greeting(trainerName string) string {
	name := strings.TrimSpace(trainerName)
	if name == "" {
		name = "tu entrenador"
	}
	return fmt.Sprintf("¡Hola! 👋 Soy el asistente de %s. Escribe *agendar* para reservar, *precios* para ver precios o *servicios* para conocer lo que ofrecemos.", name)
}

func formatPrice(cents int64) string {
	return fmt.Sprintf("$%.2f", float64(cents)/100)
}

func formatSlotLabel(s SlotOption, loc *time.Location) string {
	t, err := time.ParseInLocation("2006-01-02 15:04", s.Date+" "+s.Time, loc)
	if err != nil {
		return fmt.Sprintf("%s a las %s", s.Date, s.Time)
	}
	return fmt.Sprintf("%s %s a las %s", spanishWeekdays[t.Weekday()], t.Format("02/01"), s.Time)
}

func formatServiceLabel(s ServiceRef) string {
	return fmt.Sprintf("%s (%d min) — %s", s.Name, s.DurationMinutes, formatPrice(s.PriceCents))
}

func formatProductLabel(p ProductRef) string {
	return fmt.Sprintf("%s — %s", p.Name, formatPrice(p.PriceCents))
}

func formatBookingConfirmation(svc ServiceRef, slot SlotOption) string {
	return fmt.Sprintf(
		"✅ ¡Cita confirmada!\nServicio: %s\nFecha: %s\nHora: %s\nDuración: %d min\nPrecio: %s\n\n¡Te esperamos!",
		svc.Name, slot.Date, slot.Time, svc.DurationMinutes, formatPrice(svc.PriceCents),
	)
}

func formatOrderPrompt(p ProductRef) string {
	return fmt.Sprintf("Vas a pedir *%s* por %s. ¿Confirmas? (si / no)", p.Name, formatPrice(p.PriceCents))
}

func formatOrderConfirmation(p ProductRef) string {
	return fmt.Sprintf("🛍️ ¡Pedido confirmado! %s por %s. Nos pondremos en contacto para coordinar la entrega.", p.Name, formatPrice(p.PriceCents))
}

package httphandler

import (
	"github.com/gofiber/fiber/v2"
)

func (h *handler) Mount(router fiber.Router) error {
	r := router.Group("/stela/v1")

	r.Post("/webhook/events", h.webhookHandler)
	r.Get("/health", h.healthHandler)

	r.Post("/orders", h.submitOrderHandler)
	r.Get("/orders", h.listOrdersHandler)
	r.Get("/orders/:orderId", h.getOrderHandler)
	r.Post("/orders/:orderId/cancel", h.cancelOrderHandler)
	r.Post("/orders/:orderId/offers", h.submitOfferHandler)
	r.Get("/orders/:orderId/offers", h.listOffersHandler)

	r.Get("/inscriptions", h.listInscriptionsHandler)
	r.Get("/inscriptions/:inscriptionId", h.getInscriptionHandler)
	r.Get("/inscriptions/:inscriptionId/events", h.listInscriptionEventsHandler)

	return nil
}

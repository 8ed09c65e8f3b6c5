package rest

import (
	"crypto/subtle"
	"encoding/json"

	"github.com/AzielCF/az-flow/core/config"
	domainEvent "github.com/AzielCF/az-flow/domains/event"
	"github.com/AzielCF/az-flow/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type Webhook struct {
	Service domainEvent.IIngestUsecase
}

func InitRestWebhook(app fiber.Router, service domainEvent.IIngestUsecase) Webhook {
	rest := Webhook{Service: service}
	app.Post("/webhook/:instance", rest.Receive)
	return rest
}

// Receive acknowledges every authenticated delivery with 200 regardless of
// processing outcome, so the gateway never retries into a poison loop.
func (controller *Webhook) Receive(c *fiber.Ctx) error {
	token := config.Global.Gateway.WebhookToken
	if token != "" {
		provided := c.Get("X-Webhook-Token", c.Query("token"))
		if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			return c.Status(401).JSON(utils.ResponseData{
				Status:  401,
				Code:    "UNAUTHORIZED",
				Message: "Invalid webhook token",
			})
		}
	}

	var ev domainEvent.InboundEvent
	if err := json.Unmarshal(c.Body(), &ev); err != nil {
		logrus.WithError(err).Warn("[WEBHOOK] Malformed payload dropped")
		return controller.ack(c)
	}

	ev.Instance = c.Params("instance")
	if ev.Event == "" || ev.Instance == "" {
		return controller.ack(c)
	}

	if err := controller.Service.HandleEvent(c.UserContext(), ev); err != nil {
		logrus.WithError(err).Errorf("[WEBHOOK] Event %s from %s failed", ev.Event, ev.Instance)
	}
	return controller.ack(c)
}

func (controller *Webhook) ack(c *fiber.Ctx) error {
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Event received",
	})
}

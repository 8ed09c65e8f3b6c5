package rest

import (
	domainCampaign "github.com/AzielCF/az-flow/domains/campaign"
	domainContact "github.com/AzielCF/az-flow/domains/contact"
	"github.com/AzielCF/az-flow/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type Campaign struct {
	Service domainCampaign.ICampaignUsecase
}

func InitRestCampaign(app fiber.Router, service domainCampaign.ICampaignUsecase) Campaign {
	rest := Campaign{Service: service}
	app.Post("/campaigns", rest.Create)
	app.Get("/campaigns/:tenant_id", rest.List)
	app.Get("/campaigns/:tenant_id/:id", rest.Get)
	app.Post("/campaigns/:tenant_id/:id/start", rest.Start)
	app.Post("/campaigns/:tenant_id/:id/cancel", rest.Cancel)
	return rest
}

type campaignRequest struct {
	TenantID    string               `json:"tenant_id"`
	Name        string               `json:"name"`
	MessageText string               `json:"message_text"`
	MediaURL    string               `json:"media_url,omitempty"`
	MediaKind   string               `json:"media_kind,omitempty"`
	TargetAll   bool                 `json:"target_all"`
	Filter      domainContact.Filter `json:"filter"`
}

func (controller *Campaign) Create(c *fiber.Ctx) error {
	var request campaignRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	campaign := domainCampaign.Campaign{
		TenantID:    request.TenantID,
		Name:        request.Name,
		MessageText: request.MessageText,
		MediaURL:    request.MediaURL,
		MediaKind:   request.MediaKind,
		TargetAll:   request.TargetAll,
		Filter:      request.Filter,
	}

	err = controller.Service.Create(c.UserContext(), &campaign)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success create campaign",
		Results: campaign,
	})
}

func (controller *Campaign) List(c *fiber.Ctx) error {
	tenantID := c.Params("tenant_id")
	if tenantID == "" {
		return c.Status(400).JSON(utils.ResponseData{
			Status:  400,
			Code:    "BAD_REQUEST",
			Message: "tenant_id is required",
		})
	}

	campaigns, err := controller.Service.List(c.UserContext(), tenantID)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success fetch campaigns",
		Results: campaigns,
	})
}

func (controller *Campaign) Get(c *fiber.Ctx) error {
	campaign, err := controller.Service.Get(c.UserContext(), c.Params("tenant_id"), c.Params("id"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success fetch campaign",
		Results: campaign,
	})
}

func (controller *Campaign) Start(c *fiber.Ctx) error {
	err := controller.Service.Start(c.UserContext(), c.Params("tenant_id"), c.Params("id"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success start campaign",
	})
}

func (controller *Campaign) Cancel(c *fiber.Ctx) error {
	err := controller.Service.Cancel(c.UserContext(), c.Params("tenant_id"), c.Params("id"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success cancel campaign",
	})
}

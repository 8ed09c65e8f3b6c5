package rest

import (
	"encoding/json"

	domainTrigger "github.com/AzielCF/az-flow/domains/trigger"
	"github.com/AzielCF/az-flow/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type Trigger struct {
	Service domainTrigger.ITriggerUsecase
}

func InitRestTrigger(app fiber.Router, service domainTrigger.ITriggerUsecase) Trigger {
	rest := Trigger{Service: service}
	app.Post("/triggers", rest.Save)
	app.Get("/triggers/:tenant_id", rest.List)
	app.Delete("/triggers/:tenant_id/:id", rest.Delete)
	return rest
}

type triggerRequest struct {
	ID           string          `json:"id,omitempty"`
	TenantID     string          `json:"tenant_id"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	Kind         string          `json:"kind"`
	Config       json.RawMessage `json:"config,omitempty"`
	ActionKind   string          `json:"action_kind"`
	ActionConfig json.RawMessage `json:"action_config,omitempty"`
	Priority     int             `json:"priority"`
	Active       *bool           `json:"active,omitempty"`
}

func (controller *Trigger) Save(c *fiber.Ctx) error {
	var request triggerRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	active := true
	if request.Active != nil {
		active = *request.Active
	}

	rule := domainTrigger.Rule{
		ID:           request.ID,
		TenantID:     request.TenantID,
		Name:         request.Name,
		Description:  request.Description,
		Kind:         domainTrigger.Kind(request.Kind),
		Config:       request.Config,
		ActionKind:   domainTrigger.ActionKind(request.ActionKind),
		ActionConfig: request.ActionConfig,
		Priority:     request.Priority,
		Active:       active,
	}

	err = controller.Service.Save(c.UserContext(), &rule)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success save trigger rule",
		Results: rule,
	})
}

func (controller *Trigger) List(c *fiber.Ctx) error {
	tenantID := c.Params("tenant_id")
	if tenantID == "" {
		return c.Status(400).JSON(utils.ResponseData{
			Status:  400,
			Code:    "BAD_REQUEST",
			Message: "tenant_id is required",
		})
	}

	rules, err := controller.Service.List(c.UserContext(), tenantID)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success fetch trigger rules",
		Results: rules,
	})
}

func (controller *Trigger) Delete(c *fiber.Ctx) error {
	tenantID := c.Params("tenant_id")
	id := c.Params("id")
	if tenantID == "" || id == "" {
		return c.Status(400).JSON(utils.ResponseData{
			Status:  400,
			Code:    "BAD_REQUEST",
			Message: "tenant_id and id are required",
		})
	}

	err := controller.Service.Delete(c.UserContext(), tenantID, id)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success delete trigger rule",
	})
}

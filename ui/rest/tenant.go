package rest

import (
	domainTenant "github.com/AzielCF/az-flow/domains/tenant"
	"github.com/AzielCF/az-flow/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type Tenant struct {
	Service domainTenant.ITenantUsecase
}

func InitRestTenant(app fiber.Router, service domainTenant.ITenantUsecase) Tenant {
	rest := Tenant{Service: service}
	app.Post("/tenants", rest.Create)
	app.Get("/tenants/:id", rest.Get)
	app.Get("/tenants/:id/usage", rest.Usage)
	app.Post("/instances", rest.CreateInstance)
	return rest
}

type tenantRequest struct {
	Name         string `json:"name"`
	UsageBalance int64  `json:"usage_balance"`
}

func (controller *Tenant) Create(c *fiber.Ctx) error {
	var request tenantRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	tenant := domainTenant.Tenant{
		Name:         request.Name,
		UsageBalance: request.UsageBalance,
	}
	err = controller.Service.CreateTenant(c.UserContext(), &tenant)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success create tenant",
		Results: tenant,
	})
}

func (controller *Tenant) Get(c *fiber.Ctx) error {
	tenant, err := controller.Service.GetTenant(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success fetch tenant",
		Results: tenant,
	})
}

func (controller *Tenant) Usage(c *fiber.Ctx) error {
	remaining, err := controller.Service.UsageRemaining(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success fetch usage",
		Results: fiber.Map{"remaining": remaining},
	})
}

type instanceRequest struct {
	TenantID string `json:"tenant_id"`
	Key      string `json:"key"`
	Phone    string `json:"phone,omitempty"`
	OwnerJID string `json:"owner_jid,omitempty"`
}

func (controller *Tenant) CreateInstance(c *fiber.Ctx) error {
	var request instanceRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	instance := domainTenant.Instance{
		TenantID: request.TenantID,
		Key:      request.Key,
		Phone:    request.Phone,
		OwnerJID: request.OwnerJID,
		Status:   domainTenant.InstanceDisconnected,
	}
	err = controller.Service.CreateInstance(c.UserContext(), &instance)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success create instance",
		Results: instance,
	})
}

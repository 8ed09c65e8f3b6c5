package rest

import (
	"github.com/AzielCF/az-flow/pkg/msgworker"
	"github.com/gofiber/fiber/v2"
)

type Queue struct {
	Pool *msgworker.Pool
}

func InitRestQueue(app fiber.Router, pool *msgworker.Pool) Queue {
	rest := Queue{Pool: pool}
	app.Get("/queue/stats", rest.Stats)
	app.Get("/queue/failed", rest.Failed)
	app.Get("/queue/completed", rest.Completed)
	return rest
}

// Stats returns real-time worker pool statistics
func (controller *Queue) Stats(c *fiber.Ctx) error {
	return c.JSON(controller.Pool.GetStats())
}

// Failed returns the ring of permanently failed jobs for inspection
func (controller *Queue) Failed(c *fiber.Ctx) error {
	return c.JSON(controller.Pool.FailedJobs())
}

// Completed returns the ring of recently completed jobs
func (controller *Queue) Completed(c *fiber.Ctx) error {
	return c.JSON(controller.Pool.CompletedJobs())
}

package server

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AppOptions 控制 Fiber 应用的依赖。
type AppOptions struct {
	Logger  *logrus.Logger
	Fetcher Fetcher

	// BaseContext 是服务生命周期 ctx，下载不随单个请求断开而取消，只在服务关闭时取消。
	BaseContext context.Context

	// Register 在通配路由之前挂载额外路由，例如 /-/ 诊断接口。
	Register func(app *fiber.App)
}

const contextKeyRequestID = "_hubcache_request_id"

// NewApp 构建带请求 ID 中间件与 resolve 路由的 Fiber 应用。
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if opts.BaseContext == nil {
		opts.BaseContext = context.Background()
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware)

	if opts.Register != nil {
		opts.Register(app)
	}

	handler := newResolveHandler(opts.BaseContext, opts.Fetcher, opts.Logger)
	app.Add([]string{fiber.MethodGet, fiber.MethodHead}, "/*", handler.Handle)

	return app, nil
}

// requestContextMiddleware 为每个请求生成请求 ID 并写入响应头。
func requestContextMiddleware(c fiber.Ctx) error {
	reqID := uuid.NewString()
	c.Locals(contextKeyRequestID, reqID)
	c.Set("X-Request-ID", reqID)
	return c.Next()
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

package httpserver

import (
	"github.com/labstack/echo/v4"

	"github.com/aquaflow/shop/internal/handlers"
	"github.com/aquaflow/shop/internal/service/token"
)

type Deps struct {
	AuthHandler    *handlers.AuthHandler
	ProductHandler *handlers.ProductHandler
	CartHandler    *handlers.CartHandler
	OrderHandler   *handlers.OrderHandler
	SearchHandler  *handlers.SearchHandler
	RouteHandler   *handlers.RouteHandler
	UserHandler    *handlers.UserHandler
	TokenService   *token.Service
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(200) })

	v1 := e.Group("/api/v1")

	v1.POST("/register", d.AuthHandler.Register)
	v1.POST("/login", d.AuthHandler.Login)
	v1.POST("/logout", d.AuthHandler.LogOut)
	v1.GET("/search", d.SearchHandler.Search)
	v1.GET("/track/:tracking", d.OrderHandler.Track)

	products := v1.Group("/products")
	products.GET("", d.ProductHandler.GetProducts)
	products.GET("/:id", d.ProductHandler.GetProduct)

	cart := v1.Group("/cart", d.TokenService.RequireLogin)
	cart.GET("", d.CartHandler.GetCart)
	cart.POST("", d.CartHandler.AddToCart)
	cart.DELETE("/:id", d.CartHandler.RemoveFromCart)
	cart.DELETE("", d.CartHandler.ClearCart)

	orders := v1.Group("/orders", d.TokenService.RequireLogin)
	orders.POST("", d.OrderHandler.Checkout)
	orders.GET("", d.OrderHandler.ListMyOrders)
	orders.GET("/:id", d.OrderHandler.GetOrder)

	admin := v1.Group("/admin", d.TokenService.RequireAdmin)
	admin.POST("/products", d.ProductHandler.CreateProduct)
	admin.PATCH("/products/:id", d.ProductHandler.PatchProduct)
	admin.DELETE("/products/:id", d.ProductHandler.DeleteProduct)
	admin.GET("/orders", d.OrderHandler.ListOrders)
	admin.GET("/orders/stream", d.OrderHandler.StreamOrders)
	admin.GET("/orders/:id", d.OrderHandler.GetOrderAdmin)
	admin.PATCH("/orders/:id/status", d.OrderHandler.UpdateStatus)
	admin.GET("/notifications", d.OrderHandler.Badge)
	admin.POST("/notifications/dismiss", d.OrderHandler.Dismiss)
	admin.GET("/users", d.UserHandler.ListUsers)
	admin.GET("/users/:id/orders", d.UserHandler.UserOrders)
	admin.POST("/routes/optimize", d.RouteHandler.Optimize)
}

// server/internal/api/routes/routes.go
package routes

import (
	"net/http"
	"time"

	"pharmacy-cart-api-server/config"
	"pharmacy-cart-api-server/internal/api/handlers"
	"pharmacy-cart-api-server/internal/api/middleware"
	"pharmacy-cart-api-server/internal/auth"
	"pharmacy-cart-api-server/internal/backend"
	"pharmacy-cart-api-server/internal/session"
	"pharmacy-cart-api-server/internal/socket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Backend is everything the routes forward to the pharmacy backend.
type Backend interface {
	handlers.StockRequestAPI
	handlers.BillAPI
	handlers.VendorAPI
}

var lifecycleActions = []string{
	backend.ActionApprove,
	backend.ActionReject,
	backend.ActionMarkOrdered,
	backend.ActionMarkReceived,
}

// SetupRouter wires the handlers to their routes.
func SetupRouter(
	cfg config.Config,
	log *zap.Logger,
	parser *auth.Parser,
	sessions *session.Manager,
	api Backend,
	journal handlers.ActivityReader,
	wsHub *socket.Hub,
) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(log))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderRequestID},
		ExposeHeaders:    []string{"Content-Disposition", "X-Bill-Archive", middleware.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	allowed := make(map[string]bool, len(cfg.CORS.AllowedOrigins))
	for _, o := range cfg.CORS.AllowedOrigins {
		allowed[o] = true
	}

	cartHandler := &handlers.CartHandler{Sessions: sessions}
	requestHandler := &handlers.StockRequestHandler{Sessions: sessions, Backend: api}
	billHandler := &handlers.BillHandler{Backend: api}
	vendorHandler := &handlers.VendorHandler{Backend: api}
	activityHandler := &handlers.ActivityHandler{Sessions: sessions, Journal: journal, Log: log}
	sessionHandler := &handlers.SessionHandler{Sessions: sessions}
	webSocketHandler := &handlers.WebSocketHandler{
		Hub:      wsHub,
		Parser:   parser,
		Sessions: sessions,
		Log:      log,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed[origin]
			},
		},
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": sessions.Len()})
	})

	apiV1 := router.Group("/api/v1")
	{
		// The socket authenticates with ?token= itself.
		apiV1.GET("/ws", webSocketHandler.ServeWs)

		protected := apiV1.Group("/")
		protected.Use(middleware.Authenticate(parser, log))
		{
			carts := protected.Group("/cart")
			{
				carts.GET("", cartHandler.GetCart)
				carts.DELETE("", cartHandler.ClearCart)
				carts.POST("/items", cartHandler.AddItem)
				carts.PUT("/items/:productId", cartHandler.UpdateItem)
				carts.DELETE("/items/:productId", cartHandler.RemoveItem)
				carts.POST("/items/:productId/toggle-saved", cartHandler.ToggleSaved)
				carts.POST("/refresh", cartHandler.Refresh)
				carts.POST("/sync", cartHandler.Sync)
				carts.POST("/checkout", cartHandler.Checkout)
			}

			requests := protected.Group("/stock-requests")
			{
				batch := requests.Group("/batch")
				{
					batch.GET("", requestHandler.GetBatch)
					batch.DELETE("", requestHandler.ClearBatch)
					batch.POST("/items", requestHandler.AddBatchItem)
					batch.PATCH("/items/:productId", requestHandler.UpdateBatchItem)
					batch.DELETE("/items/:productId", requestHandler.RemoveBatchItem)
					batch.POST("/submit", requestHandler.SubmitBatch)
				}
				requests.POST("", requestHandler.CreateRequest)
				requests.GET("/mine", requestHandler.MyRequests)

				ownerOnly := middleware.Authorize(auth.RoleOwner)
				requests.GET("", ownerOnly, requestHandler.AllRequests)
				for _, action := range lifecycleActions {
					requests.PUT("/:id/"+action, ownerOnly, requestHandler.Transition(action))
				}
			}

			bills := protected.Group("/bills")
			{
				bills.GET("", billHandler.History)
				bills.GET("/:id", billHandler.GetBill)
				bills.GET("/:id/download", billHandler.Download)
			}

			vendors := protected.Group("/vendors")
			{
				vendors.GET("", vendorHandler.List)
				vendors.POST("", middleware.Authorize(auth.RoleOwner), vendorHandler.Create)
			}

			protected.GET("/activity", activityHandler.List)
			protected.DELETE("/session", sessionHandler.Close)
		}
	}

	return router
}

package v1

import "github.com/gin-gonic/gin"

// StockRouteHandler is the set of costing engine endpoints.
type StockRouteHandler interface {
	StockIn(c *gin.Context)
	StockOut(c *gin.Context)
	GetWAC(c *gin.Context)
	GetSummary(c *gin.Context)
	ListBatches(c *gin.Context)
	GetLedger(c *gin.Context)
	Recalculate(c *gin.Context)
	RepairWAC(c *gin.Context)
	RemoveBatch(c *gin.Context)
}

// ReceiptRouteHandler is the set of receipt workflow endpoints.
type ReceiptRouteHandler interface {
	Create(c *gin.Context)
	List(c *gin.Context)
	Get(c *gin.Context)
	Approve(c *gin.Context)
	Complete(c *gin.Context)
	Cancel(c *gin.Context)
}

// RegisterStockRoutes mounts the stock endpoints under group.
func RegisterStockRoutes(group *gin.RouterGroup, h StockRouteHandler) {
	group.POST("/in", h.StockIn)
	group.POST("/out", h.StockOut)
	group.POST("/batches/:batchId/remove", h.RemoveBatch)

	product := group.Group("/:productId")
	product.GET("/wac", h.GetWAC)
	product.GET("/summary", h.GetSummary)
	product.GET("/batches", h.ListBatches)
	product.GET("/ledger", h.GetLedger)
	product.GET("/recalculate", h.Recalculate)
	product.POST("/repair-wac", h.RepairWAC)
}

// RegisterReceiptRoutes mounts the receipt endpoints under group.
func RegisterReceiptRoutes(group *gin.RouterGroup, h ReceiptRouteHandler) {
	group.POST("", h.Create)
	group.GET("", h.List)
	group.GET("/:id", h.Get)
	group.POST("/:id/approve", h.Approve)
	group.POST("/:id/complete", h.Complete)
	group.POST("/:id/cancel", h.Cancel)
}

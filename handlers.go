package main

import (
	"errors"
	"net/http"
	"strconv"

	"bitbucket.org/mmdatafocus/warehouse_backend/config"
	"bitbucket.org/mmdatafocus/warehouse_backend/models"
	"bitbucket.org/mmdatafocus/warehouse_backend/utils"
	"github.com/gin-gonic/gin"
)

// respondError maps the error taxonomy to HTTP statuses. Validation and
// stock problems are the caller's fault (400), state-machine refusals are
// conflicts (409), invariant violations and the rest are ours (500).
func respondError(c *gin.Context, operation string, err error) {
	switch {
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
	case utils.IsConflictError(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case utils.IsUserError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger := config.GetLogger()
		config.LogError(logger, "handlers.go", operation, "unhandled error", c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func bindInput(c *gin.Context, input interface{}) bool {
	if err := c.ShouldBindJSON(input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ParseValidationErrors(err)})
		return false
	}
	return true
}

func idParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func loginHandler(c *gin.Context) {
	var input models.LoginInput
	if !bindInput(c, &input) {
		return
	}
	info, err := models.Login(c.Request.Context(), &input)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, info)
}

type registerInput struct {
	Business models.NewBusiness `json:"business" binding:"required"`
	User     models.NewUser     `json:"user" binding:"required"`
}

// registerHandler bootstraps a tenant: business, primary warehouse and the
// first (admin) user in one call.
func registerHandler(c *gin.Context) {
	var input registerInput
	if !bindInput(c, &input) {
		return
	}
	ctx := c.Request.Context()

	business, err := models.CreateBusiness(ctx, &input.Business)
	if err != nil {
		respondError(c, "registerHandler", err)
		return
	}

	input.User.BusinessId = business.ID.String()
	input.User.IsAdmin = utils.NewTrue()
	user, err := models.CreateUser(ctx, &input.User)
	if err != nil {
		respondError(c, "registerHandler", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"business": business, "user": user})
}

func createSaleHandler(c *gin.Context) {
	var input models.NewSale
	if !bindInput(c, &input) {
		return
	}
	sale, err := models.CreateSale(c.Request.Context(), &input)
	if err != nil {
		respondError(c, "createSaleHandler", err)
		return
	}
	c.JSON(http.StatusCreated, sale)
}

func updateSaleHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var input models.NewSale
	if !bindInput(c, &input) {
		return
	}
	sale, err := models.UpdateSale(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, "updateSaleHandler", err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

type cancelInput struct {
	Reason string `json:"reason"`
}

func cancelSaleHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var input cancelInput
	if c.Request.ContentLength > 0 && !bindInput(c, &input) {
		return
	}
	sale, err := models.CancelSale(c.Request.Context(), id, input.Reason)
	if err != nil {
		respondError(c, "cancelSaleHandler", err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

func getSaleHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	sale, err := models.GetSale(c.Request.Context(), id)
	if err != nil {
		respondError(c, "getSaleHandler", err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

func listSalesHandler(c *gin.Context) {
	var customerId *int
	if v := c.Query("customer_id"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			customerId = &n
		}
	}
	var status *models.DocumentStatus
	if v := c.Query("status"); v != "" {
		s := models.DocumentStatus(v)
		status = &s
	}
	sales, err := models.GetSales(c.Request.Context(), customerId, status)
	if err != nil {
		respondError(c, "listSalesHandler", err)
		return
	}
	c.JSON(http.StatusOK, sales)
}

func createStockInHandler(c *gin.Context) {
	var input models.NewStockIn
	if !bindInput(c, &input) {
		return
	}
	stockIn, err := models.CreateStockIn(c.Request.Context(), &input)
	if err != nil {
		respondError(c, "createStockInHandler", err)
		return
	}
	c.JSON(http.StatusCreated, stockIn)
}

func updateStockInHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var input models.NewStockIn
	if !bindInput(c, &input) {
		return
	}
	stockIn, err := models.UpdateStockIn(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, "updateStockInHandler", err)
		return
	}
	c.JSON(http.StatusOK, stockIn)
}

func cancelStockInHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var input cancelInput
	if c.Request.ContentLength > 0 && !bindInput(c, &input) {
		return
	}
	stockIn, err := models.CancelStockIn(c.Request.Context(), id, input.Reason)
	if err != nil {
		respondError(c, "cancelStockInHandler", err)
		return
	}
	c.JSON(http.StatusOK, stockIn)
}

func getStockInHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	stockIn, err := models.GetStockIn(c.Request.Context(), id)
	if err != nil {
		respondError(c, "getStockInHandler", err)
		return
	}
	c.JSON(http.StatusOK, stockIn)
}

func listStockInsHandler(c *gin.Context) {
	var supplierId *int
	if v := c.Query("supplier_id"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			supplierId = &n
		}
	}
	var status *models.DocumentStatus
	if v := c.Query("status"); v != "" {
		s := models.DocumentStatus(v)
		status = &s
	}
	stockIns, err := models.GetStockIns(c.Request.Context(), supplierId, status)
	if err != nil {
		respondError(c, "listStockInsHandler", err)
		return
	}
	c.JSON(http.StatusOK, stockIns)
}

func customerPaymentHandler(c *gin.Context) {
	var input models.NewCustomerPayment
	if !bindInput(c, &input) {
		return
	}
	result, err := models.AllocateCustomerPayment(c.Request.Context(), &input)
	if err != nil {
		respondError(c, "customerPaymentHandler", err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func supplierPaymentHandler(c *gin.Context) {
	var input models.NewSupplierPayment
	if !bindInput(c, &input) {
		return
	}
	result, err := models.AllocateSupplierPayment(c.Request.Context(), &input)
	if err != nil {
		respondError(c, "supplierPaymentHandler", err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

type voidInput struct {
	Reason string `json:"reason" binding:"required"`
}

func voidPaymentHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var input voidInput
	if !bindInput(c, &input) {
		return
	}
	payment, err := models.VoidPayment(c.Request.Context(), id, input.Reason)
	if err != nil {
		respondError(c, "voidPaymentHandler", err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

func listPaymentsHandler(c *gin.Context) {
	var documentType *models.DocumentType
	if v := c.Query("document_type"); v != "" {
		t := models.DocumentType(v)
		documentType = &t
	}
	var documentId *int
	if v := c.Query("document_id"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			documentId = &n
		}
	}
	payments, err := models.GetPayments(c.Request.Context(), documentType, documentId)
	if err != nil {
		respondError(c, "listPaymentsHandler", err)
		return
	}
	c.JSON(http.StatusOK, payments)
}

func saleRevisionsHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	revisions, err := models.GetDocumentRevisions(c.Request.Context(), models.DocumentTypeSale, id)
	if err != nil {
		respondError(c, "saleRevisionsHandler", err)
		return
	}
	c.JSON(http.StatusOK, revisions)
}

func stockInRevisionsHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	revisions, err := models.GetDocumentRevisions(c.Request.Context(), models.DocumentTypeStockIn, id)
	if err != nil {
		respondError(c, "stockInRevisionsHandler", err)
		return
	}
	c.JSON(http.StatusOK, revisions)
}

func listBatchesHandler(c *gin.Context) {
	var productId *int
	if v := c.Query("product_id"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			productId = &n
		}
	}
	inStockOnly := c.Query("in_stock") == "true"
	batches, err := models.GetBatches(c.Request.Context(), productId, inStockOnly)
	if err != nil {
		respondError(c, "listBatchesHandler", err)
		return
	}
	c.JSON(http.StatusOK, batches)
}

func getBusinessHandler(c *gin.Context) {
	business, err := models.GetBusiness(c.Request.Context())
	if err != nil {
		respondError(c, "getBusinessHandler", err)
		return
	}
	c.JSON(http.StatusOK, business)
}

func getWarehouseHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	warehouse, err := models.GetWarehouse(c.Request.Context(), id)
	if err != nil {
		respondError(c, "getWarehouseHandler", err)
		return
	}
	c.JSON(http.StatusOK, warehouse)
}

func listWarehousesHandler(c *gin.Context) {
	warehouses, err := models.GetWarehouses(c.Request.Context())
	if err != nil {
		respondError(c, "listWarehousesHandler", err)
		return
	}
	c.JSON(http.StatusOK, warehouses)
}

func getPaymentHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	payment, err := models.GetPayment(c.Request.Context(), id)
	if err != nil {
		respondError(c, "getPaymentHandler", err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

func getBatchHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	batch, err := models.GetBatch(c.Request.Context(), id)
	if err != nil {
		respondError(c, "getBatchHandler", err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

func getProductHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	product, err := models.GetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, "getProductHandler", err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func getCustomerHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	customer, err := models.GetCustomer(c.Request.Context(), id)
	if err != nil {
		respondError(c, "getCustomerHandler", err)
		return
	}
	c.JSON(http.StatusOK, customer)
}

func getSupplierHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	supplier, err := models.GetSupplier(c.Request.Context(), id)
	if err != nil {
		respondError(c, "getSupplierHandler", err)
		return
	}
	c.JSON(http.StatusOK, supplier)
}

func createProductHandler(c *gin.Context) {
	var input models.NewProduct
	if !bindInput(c, &input) {
		return
	}
	product, err := models.CreateProduct(c.Request.Context(), &input)
	if err != nil {
		respondError(c, "createProductHandler", err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func listProductsHandler(c *gin.Context) {
	var name *string
	if v := c.Query("name"); v != "" {
		name = &v
	}
	products, err := models.GetProducts(c.Request.Context(), name)
	if err != nil {
		respondError(c, "listProductsHandler", err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func createCustomerHandler(c *gin.Context) {
	var input models.NewCustomer
	if !bindInput(c, &input) {
		return
	}
	customer, err := models.CreateCustomer(c.Request.Context(), &input)
	if err != nil {
		respondError(c, "createCustomerHandler", err)
		return
	}
	c.JSON(http.StatusCreated, customer)
}

func listCustomersHandler(c *gin.Context) {
	var name *string
	if v := c.Query("name"); v != "" {
		name = &v
	}
	customers, err := models.GetCustomers(c.Request.Context(), name)
	if err != nil {
		respondError(c, "listCustomersHandler", err)
		return
	}
	c.JSON(http.StatusOK, customers)
}

func createSupplierHandler(c *gin.Context) {
	var input models.NewSupplier
	if !bindInput(c, &input) {
		return
	}
	supplier, err := models.CreateSupplier(c.Request.Context(), &input)
	if err != nil {
		respondError(c, "createSupplierHandler", err)
		return
	}
	c.JSON(http.StatusCreated, supplier)
}

func listSuppliersHandler(c *gin.Context) {
	var name *string
	if v := c.Query("name"); v != "" {
		name = &v
	}
	suppliers, err := models.GetSuppliers(c.Request.Context(), name)
	if err != nil {
		respondError(c, "listSuppliersHandler", err)
		return
	}
	c.JSON(http.StatusOK, suppliers)
}

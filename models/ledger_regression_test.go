package models_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/warehouse_backend/config"
	"bitbucket.org/mmdatafocus/warehouse_backend/models"
	"bitbucket.org/mmdatafocus/warehouse_backend/utils"
	"github.com/shopspring/decimal"
)

func mustDec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("decimal.NewFromString(%q): %v", s, err)
	}
	return d
}

// setupLedgerTest boots MySQL and Redis in docker, connects the globals and
// returns a context carrying a fresh tenant plus the fixture ids the tests
// need: a product, a customer, a supplier, and one stock-in with two batches
// of 50 at cost 10.
func setupLedgerTest(t *testing.T) (context.Context, *models.StockIn) {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "warehouse_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	if err := models.MigrateTable(); err != nil {
		t.Fatalf("MigrateTable: %v", err)
	}

	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test Operator")
	ctx = utils.SetUsernameInContext(ctx, "operator@local")

	biz, err := models.CreateBusiness(ctx, &models.NewBusiness{
		Name:  "Test Warehouse Co",
		Email: "owner@test.local",
	})
	if err != nil {
		t.Fatalf("CreateBusiness: %v", err)
	}
	ctx = utils.SetBusinessIdInContext(ctx, biz.ID.String())

	product, err := models.CreateProduct(ctx, &models.NewProduct{
		Name: "Instant Noodles",
		Sku:  "NOODLE-001",
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	if _, err := models.CreateCustomer(ctx, &models.NewCustomer{Name: "Corner Shop"}); err != nil {
		t.Fatalf("CreateCustomer: %v", err)
	}
	if _, err := models.CreateSupplier(ctx, &models.NewSupplier{Name: "Noodle Factory"}); err != nil {
		t.Fatalf("CreateSupplier: %v", err)
	}

	stockIn, err := models.CreateStockIn(ctx, &models.NewStockIn{
		SupplierId: 1,
		Details: []models.NewStockInDetail{
			{ProductId: product.ID, BatchCode: "LOT-A", Qty: mustDec(t, "50"), UnitCost: mustDec(t, "10")},
			{ProductId: product.ID, BatchCode: "LOT-B", Qty: mustDec(t, "50"), UnitCost: mustDec(t, "10")},
		},
	})
	if err != nil {
		t.Fatalf("CreateStockIn: %v", err)
	}
	return ctx, stockIn
}

func createFixtureSale(t *testing.T, ctx context.Context, batchId int, qty string, price string) *models.Sale {
	t.Helper()
	sale, err := models.CreateSale(ctx, &models.NewSale{
		CustomerId: 1,
		Details: []models.NewSaleDetail{
			{ProductId: 1, BatchId: batchId, Qty: mustDec(t, qty), UnitPrice: mustDec(t, price)},
		},
	})
	if err != nil {
		t.Fatalf("CreateSale: %v", err)
	}
	return sale
}

func TestPaymentAllocationAndVoidRoundTrip(t *testing.T) {
	ctx, stockIn := setupLedgerTest(t)
	batchA := stockIn.Details[0].BatchId

	// Two open sales: 100 then 200, oldest first.
	sale1 := createFixtureSale(t, ctx, batchA, "10", "10")
	sale2 := createFixtureSale(t, ctx, batchA, "20", "10")

	result, err := models.AllocateCustomerPayment(ctx, &models.NewCustomerPayment{
		CustomerId: 1,
		Amount:     mustDec(t, "150"),
	})
	if err != nil {
		t.Fatalf("AllocateCustomerPayment: %v", err)
	}
	if !result.TotalAllocated.Equal(mustDec(t, "150")) || result.InvoicesPaid != 1 || !result.Remaining.IsZero() {
		t.Fatalf("unexpected allocation result: %+v", result)
	}

	got1, err := models.GetSale(ctx, sale1.ID)
	if err != nil {
		t.Fatalf("GetSale(1): %v", err)
	}
	if got1.PaymentStatus != models.PaymentStatusPaid || !got1.AmountPaid.Equal(mustDec(t, "100")) {
		t.Fatalf("sale 1 expected Paid/100, got %s/%s", got1.PaymentStatus, got1.AmountPaid)
	}
	got2, err := models.GetSale(ctx, sale2.ID)
	if err != nil {
		t.Fatalf("GetSale(2): %v", err)
	}
	if got2.PaymentStatus != models.PaymentStatusPartial || !got2.AmountPaid.Equal(mustDec(t, "50")) {
		t.Fatalf("sale 2 expected Partial/50, got %s/%s", got2.PaymentStatus, got2.AmountPaid)
	}

	docType := models.DocumentTypeSale
	payments, err := models.GetPayments(ctx, &docType, &sale1.ID)
	if err != nil {
		t.Fatalf("GetPayments: %v", err)
	}
	if len(payments) != 1 {
		t.Fatalf("expected 1 payment against sale 1, got %d", len(payments))
	}

	// Void restores the document exactly once.
	if _, err := models.VoidPayment(ctx, payments[0].ID, "keyed in against wrong customer"); err != nil {
		t.Fatalf("VoidPayment: %v", err)
	}
	got1, err = models.GetSale(ctx, sale1.ID)
	if err != nil {
		t.Fatalf("GetSale after void: %v", err)
	}
	if got1.PaymentStatus != models.PaymentStatusUnpaid || !got1.AmountPaid.IsZero() {
		t.Fatalf("sale 1 after void expected Unpaid/0, got %s/%s", got1.PaymentStatus, got1.AmountPaid)
	}

	_, err = models.VoidPayment(ctx, payments[0].ID, "double keyed")
	if err == nil {
		t.Fatal("second void must be rejected")
	}
	if !utils.IsConflictError(err) {
		t.Fatalf("second void expected conflict error, got %v", err)
	}
	got1, err = models.GetSale(ctx, sale1.ID)
	if err != nil {
		t.Fatalf("GetSale after double void: %v", err)
	}
	if !got1.AmountPaid.IsZero() {
		t.Fatalf("double void must not change amount paid, got %s", got1.AmountPaid)
	}
}

func TestSaleCancelRestoresStockExactlyOnce(t *testing.T) {
	ctx, stockIn := setupLedgerTest(t)
	batchA := stockIn.Details[0].BatchId

	sale := createFixtureSale(t, ctx, batchA, "30", "12")

	batch, err := models.GetBatch(ctx, batchA)
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if !batch.QtyRemaining.Equal(mustDec(t, "20")) {
		t.Fatalf("expected 20 remaining after sale, got %s", batch.QtyRemaining)
	}

	cancelled, err := models.CancelSale(ctx, sale.ID, "")
	if err != nil {
		t.Fatalf("CancelSale: %v", err)
	}
	if cancelled.Status != models.DocumentStatusCancelled {
		t.Fatalf("expected Cancelled, got %s", cancelled.Status)
	}
	if cancelled.CancelReason == "" {
		t.Fatal("empty reason must fall back to a default")
	}

	batch, err = models.GetBatch(ctx, batchA)
	if err != nil {
		t.Fatalf("GetBatch after cancel: %v", err)
	}
	if !batch.QtyRemaining.Equal(mustDec(t, "50")) {
		t.Fatalf("expected 50 remaining after cancel, got %s", batch.QtyRemaining)
	}

	_, err = models.CancelSale(ctx, sale.ID, "again")
	if err == nil {
		t.Fatal("second cancel must be rejected")
	}
	if !utils.IsConflictError(err) {
		t.Fatalf("second cancel expected conflict error, got %v", err)
	}
	batch, err = models.GetBatch(ctx, batchA)
	if err != nil {
		t.Fatalf("GetBatch after double cancel: %v", err)
	}
	if !batch.QtyRemaining.Equal(mustDec(t, "50")) {
		t.Fatalf("double cancel must not restore twice, got %s remaining", batch.QtyRemaining)
	}
}

func TestStockInCancelForbiddenOnceConsumed(t *testing.T) {
	ctx, stockIn := setupLedgerTest(t)
	batchA := stockIn.Details[0].BatchId

	createFixtureSale(t, ctx, batchA, "5", "15")

	_, err := models.CancelStockIn(ctx, stockIn.ID, "ordered by mistake")
	if err == nil {
		t.Fatal("cancel must be rejected while stock is consumed")
	}
	if !utils.IsConflictError(err) {
		t.Fatalf("expected conflict error, got %v", err)
	}

	batch, err := models.GetBatch(ctx, batchA)
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if !batch.QtyReceived.Equal(mustDec(t, "50")) || !batch.QtyRemaining.Equal(mustDec(t, "45")) {
		t.Fatalf("failed cancel must leave the batch untouched, got received %s remaining %s",
			batch.QtyReceived, batch.QtyRemaining)
	}
}

func TestSaleEditEnforcesHeadroomAndLockedStates(t *testing.T) {
	ctx, stockIn := setupLedgerTest(t)
	batchA := stockIn.Details[0].BatchId

	sale := createFixtureSale(t, ctx, batchA, "10", "10")
	other := createFixtureSale(t, ctx, batchA, "10", "10")
	// Batch A: 50 received, 30 remaining, 10 of it on each sale.

	editTo := func(qty string) error {
		_, err := models.UpdateSale(ctx, sale.ID, &models.NewSale{
			CustomerId: 1,
			Details: []models.NewSaleDetail{
				{ProductId: 1, BatchId: batchA, Qty: mustDec(t, qty), UnitPrice: mustDec(t, "10")},
			},
		})
		return err
	}

	// Max allowed is remaining (30) + this document's old qty (10) = 40.
	err := editTo("45")
	if err == nil {
		t.Fatal("edit beyond remaining + old qty must fail")
	}
	var vErr *utils.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("over-max edit expected validation error, got %v", err)
	}
	batch, err := models.GetBatch(ctx, batchA)
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if !batch.QtyRemaining.Equal(mustDec(t, "30")) {
		t.Fatalf("failed edit must leave the batch untouched, got %s remaining", batch.QtyRemaining)
	}

	if err := editTo("25"); err != nil {
		t.Fatalf("edit within headroom must succeed: %v", err)
	}
	batch, err = models.GetBatch(ctx, batchA)
	if err != nil {
		t.Fatalf("GetBatch after edit: %v", err)
	}
	if !batch.QtyRemaining.Equal(mustDec(t, "15")) {
		t.Fatalf("expected 15 remaining after growing 10 -> 25, got %s", batch.QtyRemaining)
	}

	// A payment freezes the line items. The 50 lands on the oldest sale.
	if _, err := models.AllocateCustomerPayment(ctx, &models.NewCustomerPayment{
		CustomerId: 1,
		Amount:     mustDec(t, "50"),
	}); err != nil {
		t.Fatalf("AllocateCustomerPayment: %v", err)
	}
	err = editTo("20")
	if err == nil {
		t.Fatal("edit of a paid document must be rejected")
	}
	if !utils.IsConflictError(err) || !strings.Contains(err.Error(), "has payments") {
		t.Fatalf("expected edit forbidden (has payments), got %v", err)
	}

	// So does cancellation.
	if _, err := models.CancelSale(ctx, other.ID, "not needed"); err != nil {
		t.Fatalf("CancelSale: %v", err)
	}
	_, err = models.UpdateSale(ctx, other.ID, &models.NewSale{
		CustomerId: 1,
		Details: []models.NewSaleDetail{
			{ProductId: 1, BatchId: batchA, Qty: mustDec(t, "5"), UnitPrice: mustDec(t, "10")},
		},
	})
	if err == nil {
		t.Fatal("edit of a cancelled document must be rejected")
	}
	if !utils.IsConflictError(err) || !strings.Contains(err.Error(), "cancelled") {
		t.Fatalf("expected edit forbidden (cancelled), got %v", err)
	}
}

func TestStockInEditLockedOncePaid(t *testing.T) {
	ctx, stockIn := setupLedgerTest(t)

	if _, err := models.AllocateSupplierPayment(ctx, &models.NewSupplierPayment{
		SupplierId: 1,
		Amount:     mustDec(t, "100"),
	}); err != nil {
		t.Fatalf("AllocateSupplierPayment: %v", err)
	}

	_, err := models.UpdateStockIn(ctx, stockIn.ID, &models.NewStockIn{
		SupplierId: 1,
		Details: []models.NewStockInDetail{
			{ProductId: 1, BatchCode: "LOT-A", Qty: mustDec(t, "60"), UnitCost: mustDec(t, "10")},
		},
	})
	if err == nil {
		t.Fatal("edit of a paid stock-in must be rejected")
	}
	if !utils.IsConflictError(err) || !strings.Contains(err.Error(), "has payments") {
		t.Fatalf("expected edit forbidden (has payments), got %v", err)
	}
}

func TestRevisionNumbersAreGaplessAndOrdered(t *testing.T) {
	ctx, stockIn := setupLedgerTest(t)
	batchA := stockIn.Details[0].BatchId
	batchB := stockIn.Details[1].BatchId

	sale := createFixtureSale(t, ctx, batchA, "10", "10")

	// Two edits then a cancel: three revisions.
	for i, qty := range []string{"15", "20"} {
		_, err := models.UpdateSale(ctx, sale.ID, &models.NewSale{
			CustomerId: 1,
			Reason:     fmt.Sprintf("edit %d", i+1),
			Details: []models.NewSaleDetail{
				{ProductId: 1, BatchId: batchA, Qty: mustDec(t, qty), UnitPrice: mustDec(t, "10")},
				{ProductId: 1, BatchId: batchB, Qty: mustDec(t, "2"), UnitPrice: mustDec(t, "10")},
			},
		})
		if err != nil {
			t.Fatalf("UpdateSale (edit %d): %v", i+1, err)
		}
	}
	if _, err := models.CancelSale(ctx, sale.ID, "customer walked away"); err != nil {
		t.Fatalf("CancelSale: %v", err)
	}

	revisions, err := models.GetDocumentRevisions(ctx, models.DocumentTypeSale, sale.ID)
	if err != nil {
		t.Fatalf("GetDocumentRevisions: %v", err)
	}
	if len(revisions) != 3 {
		t.Fatalf("expected 3 revisions, got %d", len(revisions))
	}
	for i, rev := range revisions {
		expected := len(revisions) - i
		if rev.RevisionNumber != expected {
			t.Fatalf("revision %d expected number %d, got %d", i, expected, rev.RevisionNumber)
		}
		if rev.Before == "" || rev.After == "" {
			t.Fatalf("revision %d is missing a snapshot", rev.RevisionNumber)
		}
	}
	if revisions[0].Reason != "customer walked away" {
		t.Fatalf("newest revision expected cancel reason, got %q", revisions[0].Reason)
	}

	// The edits released 10 and took 20+2; the cancel gave everything back.
	batch, err := models.GetBatch(ctx, batchA)
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if !batch.QtyRemaining.Equal(mustDec(t, "50")) {
		t.Fatalf("expected batch A fully restored, got %s", batch.QtyRemaining)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("warehouse-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("warehouse-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=warehouse_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}

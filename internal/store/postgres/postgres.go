package postgres

import (
	"cmp"
	"context"
	"database/sql"
	"database/sql/driver"
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"vendas/backend/internal/domain"
	"vendas/backend/internal/store"
)

//go:embed schema.sql
var schemaSQL string

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

const saleColumns = "s.id, s.product_id, p.name, s.quantity, s.unit_price, s.total_price, s.payment_method, s.created_at"

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Migrate creates the tables and indexes if they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return mapError(s.db.PingContext(ctx))
}

func (s *Store) CreateProduct(ctx context.Context, input domain.ProductInput) (*domain.Product, error) {
	input, err := input.Normalize()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}

	product := domain.Product{Name: input.Name, Quantity: input.Quantity, UnitPrice: input.UnitPrice}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO products (name, quantity, unit_price)
		VALUES ($1, $2, $3)
		RETURNING id
	`, input.Name, input.Quantity, input.UnitPrice).Scan(&product.ID)
	if err != nil {
		if pgCode(err) == "23505" {
			return nil, fmt.Errorf("%w: %q", store.ErrDuplicateName, input.Name)
		}
		return nil, mapError(err)
	}
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, id int64, input domain.ProductInput) (*domain.Product, error) {
	input, err := input.Normalize()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}

	var product domain.Product
	err = s.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = $2, quantity = $3, unit_price = $4, updated_at = now()
		WHERE id = $1
		RETURNING id, name, quantity, unit_price
	`, id, input.Name, input.Quantity, input.UnitPrice).Scan(&product.ID, &product.Name, &product.Quantity, &product.UnitPrice)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if pgCode(err) == "23505" {
			return nil, fmt.Errorf("%w: %q", store.ErrDuplicateName, input.Name)
		}
		return nil, mapError(err)
	}
	return &product, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id int64) (*domain.Product, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, mapError(err)
	}
	defer func() { _ = pgTx.Rollback() }()

	product, err := lockProduct(ctx, pgTx, id)
	if err != nil {
		return nil, err
	}

	var referenced bool
	if err := pgTx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM sales WHERE product_id = $1)`, id).Scan(&referenced); err != nil {
		return nil, mapError(err)
	}
	if referenced {
		return nil, fmt.Errorf("%w: product %d has referencing sales", store.ErrConflict, id)
	}

	if _, err := pgTx.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id); err != nil {
		return nil, mapError(err)
	}
	if err := pgTx.Commit(); err != nil {
		return nil, mapError(err)
	}
	return product, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	var product domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, quantity, unit_price
		FROM products
		WHERE id = $1
	`, id).Scan(&product.ID, &product.Name, &product.Quantity, &product.UnitPrice)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, mapError(err)
	}
	return &product, nil
}

func (s *Store) ListProducts(ctx context.Context, query domain.ProductQuery) ([]domain.Product, int, error) {
	if query.Page < 1 || query.PageSize < 1 {
		return nil, 0, fmt.Errorf("%w: page and page_size must be at least 1", store.ErrInvalidInput)
	}

	countQuery := psql.Select("COUNT(*)").From("products")
	listQuery := psql.Select("id", "name", "quantity", "unit_price").From("products").
		OrderBy("id ASC").
		Limit(uint64(query.PageSize)).
		Offset(uint64(domain.Offset(query.Page, query.PageSize)))
	if search := strings.TrimSpace(query.Search); search != "" {
		cond := squirrel.ILike{"name": "%" + likeEscaper.Replace(search) + "%"}
		countQuery = countQuery.Where(cond)
		listQuery = listQuery.Where(cond)
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, 0, mapError(err)
	}
	defer func() { _ = pgTx.Rollback() }()

	total, err := queryCount(ctx, pgTx, countQuery)
	if err != nil {
		return nil, 0, err
	}

	sqlText, args, err := listQuery.ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := pgTx.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, 0, mapError(err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, query.PageSize)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Quantity, &p.UnitPrice); err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapError(err)
	}
	return products, total, nil
}

func (s *Store) AdjustQuantity(ctx context.Context, id int64, delta int) (*domain.Product, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, mapError(err)
	}
	defer func() { _ = pgTx.Rollback() }()

	product, err := lockProduct(ctx, pgTx, id)
	if err != nil {
		return nil, err
	}
	if err := adjustQuantity(ctx, pgTx, product, delta); err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, mapError(err)
	}
	return product, nil
}

func (s *Store) RecordSale(ctx context.Context, draft domain.SaleDraft) (*domain.Sale, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, mapError(err)
	}
	defer func() { _ = pgTx.Rollback() }()

	product, err := lockProduct(ctx, pgTx, draft.ProductID)
	if err != nil {
		return nil, err
	}
	if err := draft.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	if draft.Quantity > product.Quantity {
		return nil, &store.StockError{ProductID: product.ID, Available: product.Quantity, Requested: draft.Quantity}
	}

	sale := domain.Sale{
		ProductID:     product.ID,
		ProductName:   product.Name,
		Quantity:      draft.Quantity,
		UnitPrice:     product.UnitPrice,
		TotalPrice:    domain.LineTotal(draft.Quantity, product.UnitPrice),
		PaymentMethod: draft.PaymentMethod,
	}
	if err := domain.CheckMoney("total_price", sale.TotalPrice); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	if err := adjustQuantity(ctx, pgTx, product, -draft.Quantity); err != nil {
		return nil, err
	}

	createdAt := sql.NullTime{Time: draft.CreatedAt.UTC(), Valid: !draft.CreatedAt.IsZero()}
	err = pgTx.QueryRowContext(ctx, `
		INSERT INTO sales (product_id, quantity, unit_price, total_price, payment_method, created_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()))
		RETURNING id, created_at
	`, sale.ProductID, sale.Quantity, sale.UnitPrice, sale.TotalPrice, string(sale.PaymentMethod), createdAt).Scan(&sale.ID, &sale.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	if err := pgTx.Commit(); err != nil {
		return nil, mapError(err)
	}
	sale.CreatedAt = sale.CreatedAt.UTC()
	return &sale, nil
}

func (s *Store) CancelSale(ctx context.Context, id int64) (*domain.Sale, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, mapError(err)
	}
	defer func() { _ = pgTx.Rollback() }()

	var sale domain.Sale
	var method string
	err = pgTx.QueryRowContext(ctx, `
		SELECT id, product_id, quantity, unit_price, total_price, payment_method, created_at
		FROM sales
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&sale.ID, &sale.ProductID, &sale.Quantity, &sale.UnitPrice, &sale.TotalPrice, &method, &sale.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, mapError(err)
	}
	sale.PaymentMethod = domain.PaymentMethod(method)
	sale.CreatedAt = sale.CreatedAt.UTC()

	product, err := lockProduct(ctx, pgTx, sale.ProductID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("sale %d references missing product %d", id, sale.ProductID)
		}
		return nil, err
	}
	sale.ProductName = product.Name

	if err := adjustQuantity(ctx, pgTx, product, sale.Quantity); err != nil {
		return nil, err
	}
	if _, err := pgTx.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, id); err != nil {
		return nil, mapError(err)
	}
	if err := pgTx.Commit(); err != nil {
		return nil, mapError(err)
	}
	return &sale, nil
}

func (s *Store) GetSale(ctx context.Context, id int64) (*domain.Sale, error) {
	sqlText, args, err := psql.Select(saleColumns).
		From("sales s").
		Join("products p ON p.id = s.product_id").
		Where(squirrel.Eq{"s.id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}
	sale, err := scanSale(s.db.QueryRowContext(ctx, sqlText, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, mapError(err)
	}
	return sale, nil
}

func (s *Store) ListSales(ctx context.Context, filter domain.SaleFilter, page int, pageSize int) ([]domain.Sale, int, error) {
	if page < 1 || pageSize < 1 {
		return nil, 0, fmt.Errorf("%w: page and page_size must be at least 1", store.ErrInvalidInput)
	}
	if err := filter.Validate(); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	cond := saleConditions(filter)

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, 0, mapError(err)
	}
	defer func() { _ = pgTx.Rollback() }()

	total, err := queryCount(ctx, pgTx, psql.Select("COUNT(*)").From("sales s").Where(cond))
	if err != nil {
		return nil, 0, err
	}

	sqlText, args, err := psql.Select(saleColumns).
		From("sales s").
		Join("products p ON p.id = s.product_id").
		Where(cond).
		OrderBy("s.created_at DESC", "s.id DESC").
		Limit(uint64(pageSize)).
		Offset(uint64(domain.Offset(page, pageSize))).
		ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := pgTx.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, 0, mapError(err)
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, pageSize)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, 0, err
		}
		sales = append(sales, *sale)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapError(err)
	}
	return sales, total, nil
}

func (s *Store) GetSalesReport(ctx context.Context, filter domain.SaleFilter) (*domain.SalesReport, error) {
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	cond := saleConditions(filter)

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, mapError(err)
	}
	defer func() { _ = pgTx.Rollback() }()

	report := &domain.SalesReport{
		ByMonth:         make([]domain.MonthlySales, 0, 12),
		ByProduct:       make([]domain.ProductSales, 0, 8),
		ByPaymentMethod: make([]domain.PaymentRevenue, 0, len(domain.PaymentMethods)),
	}

	err = pgTx.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(quantity * unit_price), 0)
		FROM products
	`).Scan(&report.ProductCount, &report.StockValue)
	if err != nil {
		return nil, mapError(err)
	}
	report.StockValue = domain.RoundMoney(report.StockValue)

	sqlText, args, err := psql.Select("COUNT(*)", "COALESCE(SUM(s.total_price), 0)").
		From("sales s").
		Where(cond).
		ToSql()
	if err != nil {
		return nil, err
	}
	if err := pgTx.QueryRowContext(ctx, sqlText, args...).Scan(&report.Sales.Count, &report.Sales.SumTotalPrice); err != nil {
		return nil, mapError(err)
	}

	monthQuery := psql.Select("to_char(s.created_at AT TIME ZONE 'UTC', 'YYYY-MM') AS month", "SUM(s.total_price)").
		From("sales s").
		Where(cond).
		GroupBy("month").
		OrderBy("month ASC")
	err = queryRows(ctx, pgTx, monthQuery, func(rows *sql.Rows) error {
		var row domain.MonthlySales
		if err := rows.Scan(&row.Month, &row.SumTotalPrice); err != nil {
			return err
		}
		report.ByMonth = append(report.ByMonth, row)
		return nil
	})
	if err != nil {
		return nil, err
	}

	productQuery := psql.Select("s.product_id", "p.name", "SUM(s.quantity)", "SUM(s.total_price) AS sum_total").
		From("sales s").
		Join("products p ON p.id = s.product_id").
		Where(cond).
		GroupBy("s.product_id", "p.name").
		OrderBy("sum_total DESC", `p.name COLLATE "C" ASC`, "s.product_id ASC")
	err = queryRows(ctx, pgTx, productQuery, func(rows *sql.Rows) error {
		var row domain.ProductSales
		if err := rows.Scan(&row.ProductID, &row.ProductName, &row.SumQuantity, &row.SumTotalPrice); err != nil {
			return err
		}
		report.ByProduct = append(report.ByProduct, row)
		return nil
	})
	if err != nil {
		return nil, err
	}

	paymentQuery := psql.Select("s.payment_method", "COUNT(*)", "SUM(s.total_price)").
		From("sales s").
		Where(cond).
		GroupBy("s.payment_method")
	err = queryRows(ctx, pgTx, paymentQuery, func(rows *sql.Rows) error {
		var row domain.PaymentRevenue
		var method string
		if err := rows.Scan(&method, &row.Count, &row.SumTotalPrice); err != nil {
			return err
		}
		row.PaymentMethod = domain.PaymentMethod(method)
		report.ByPaymentMethod = append(report.ByPaymentMethod, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(report.ByPaymentMethod, func(a, b domain.PaymentRevenue) int {
		return cmp.Compare(a.PaymentMethod.Rank(), b.PaymentMethod.Rank())
	})

	if err := pgTx.Commit(); err != nil {
		return nil, mapError(err)
	}
	return report, nil
}

func lockProduct(ctx context.Context, pgTx *sql.Tx, id int64) (*domain.Product, error) {
	var product domain.Product
	err := pgTx.QueryRowContext(ctx, `
		SELECT id, name, quantity, unit_price
		FROM products
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&product.ID, &product.Name, &product.Quantity, &product.UnitPrice)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, mapError(err)
	}
	return &product, nil
}

// adjustQuantity applies delta to a product already locked by pgTx and
// updates product in place. The WHERE guard keeps quantity non-negative
// even if the caller's view is stale.
func adjustQuantity(ctx context.Context, pgTx *sql.Tx, product *domain.Product, delta int) error {
	if err := domain.CheckQuantityDelta(product.Quantity, delta); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	if product.Quantity+delta < 0 {
		return &store.StockError{ProductID: product.ID, Available: product.Quantity, Requested: -delta}
	}
	res, err := pgTx.ExecContext(ctx, `
		UPDATE products
		SET quantity = quantity + $2, updated_at = now()
		WHERE id = $1 AND quantity + $2 >= 0
	`, product.ID, delta)
	if err != nil {
		return mapError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected != 1 {
		return &store.StockError{ProductID: product.ID, Available: product.Quantity, Requested: -delta}
	}
	product.Quantity += delta
	return nil
}

func saleConditions(filter domain.SaleFilter) squirrel.And {
	cond := squirrel.And{}
	if filter.From != nil {
		cond = append(cond, squirrel.GtOrEq{"s.created_at": filter.From.UTC()})
	}
	if filter.To != nil {
		cond = append(cond, squirrel.Lt{"s.created_at": filter.To.UTC()})
	}
	if filter.ProductID != nil {
		cond = append(cond, squirrel.Eq{"s.product_id": *filter.ProductID})
	}
	if filter.PaymentMethod != nil {
		cond = append(cond, squirrel.Eq{"s.payment_method": string(*filter.PaymentMethod)})
	}
	return cond
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSale(row rowScanner) (*domain.Sale, error) {
	var sale domain.Sale
	var method string
	if err := row.Scan(&sale.ID, &sale.ProductID, &sale.ProductName, &sale.Quantity, &sale.UnitPrice, &sale.TotalPrice, &method, &sale.CreatedAt); err != nil {
		return nil, err
	}
	sale.PaymentMethod = domain.PaymentMethod(method)
	sale.CreatedAt = sale.CreatedAt.UTC()
	return &sale, nil
}

func queryCount(ctx context.Context, pgTx *sql.Tx, query squirrel.SelectBuilder) (int, error) {
	sqlText, args, err := query.ToSql()
	if err != nil {
		return 0, err
	}
	var total int
	if err := pgTx.QueryRowContext(ctx, sqlText, args...).Scan(&total); err != nil {
		return 0, mapError(err)
	}
	return total, nil
}

func queryRows(ctx context.Context, pgTx *sql.Tx, query squirrel.SelectBuilder, scan func(*sql.Rows) error) error {
	sqlText, args, err := query.ToSql()
	if err != nil {
		return err
	}
	rows, err := pgTx.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return mapError(err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return mapError(rows.Err())
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// mapError translates driver failures into the store taxonomy. Context
// errors pass through untouched so callers can tell cancel from deadline.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	code := pgCode(err)
	switch {
	case code == "23505":
		return fmt.Errorf("%w: %v", store.ErrDuplicateName, err)
	case code == "23503":
		return fmt.Errorf("%w: %v", store.ErrConflict, err)
	case code == "23514", code == "22003":
		return fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	case code == "57014":
		return fmt.Errorf("%w: %v", store.ErrTimeout, err)
	case code == "40001", code == "40P01", strings.HasPrefix(code, "08"):
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return err
}

var _ store.Repository = (*Store)(nil)

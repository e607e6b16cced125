package service

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"cafe-pos/logger"
	"cafe-pos/models"
	"cafe-pos/money"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// The operations in this file are thin collaborators (staff, floor plan,
// catalog) so the order engine has something to run against.

type StaffInput struct {
	Name     string
	Email    string
	Password string
	Role     models.UserRole
	UPIID    string
}

func (s *Service) CreateStaff(ctx context.Context, in StaffInput) (*models.User, error) {
	fields := map[string]string{}
	if strings.TrimSpace(in.Name) == "" {
		fields["name"] = "is required"
	}
	if !strings.Contains(in.Email, "@") {
		fields["email"] = "must be a valid email"
	}
	if len(in.Password) < 8 {
		fields["password"] = "must be at least 8 characters"
	}
	if !in.Role.Valid() {
		fields["role"] = "must be admin, cashier or kitchen"
	}
	if len(fields) > 0 {
		return nil, invalid(fields)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		Name:         strings.TrimSpace(in.Name),
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		PasswordHash: string(hash),
		Role:         in.Role,
		UPIID:        strings.TrimSpace(in.UPIID),
		IsActive:     true,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, invalidField("email", "is already registered")
		}
		return nil, err
	}
	return user, nil
}

// Authenticate checks credentials; unknown email and wrong password are
// indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ? AND is_active = ?", strings.ToLower(strings.TrimSpace(email)), true).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

func (s *Service) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("user", id)
		}
		return nil, err
	}
	return &user, nil
}

func (s *Service) ListStaff(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := s.db.WithContext(ctx).Order("id").Find(&users).Error
	return users, err
}

func (s *Service) CreateFloor(ctx context.Context, name string, number int) (*models.Floor, error) {
	if strings.TrimSpace(name) == "" {
		return nil, invalidField("name", "is required")
	}
	floor := &models.Floor{Name: strings.TrimSpace(name), Number: number, IsActive: true}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(floor).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, invalidField("name", "is already used by another floor")
		}
		return nil, err
	}
	return floor, nil
}

func (s *Service) ListFloors(ctx context.Context) ([]models.Floor, error) {
	var floors []models.Floor
	err := s.db.WithContext(ctx).Preload("Tables", linesByID).Order("number, id").Find(&floors).Error
	for i := range floors {
		s.withQRURL(floors[i].Tables)
	}
	return floors, err
}

type TableInput struct {
	FloorID     uint
	TableNumber string
	Name        string
	Capacity    int
}

// CreateTable issues the table's QR token once; it never changes after.
func (s *Service) CreateTable(ctx context.Context, in TableInput) (*models.Table, error) {
	if strings.TrimSpace(in.TableNumber) == "" {
		return nil, invalidField("table_number", "is required")
	}
	if in.Capacity <= 0 {
		in.Capacity = 2
	}
	var floor models.Floor
	if err := s.db.WithContext(ctx).First(&floor, in.FloorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("floor", in.FloorID)
		}
		return nil, err
	}

	table := &models.Table{
		FloorID:     &floor.ID,
		TableNumber: strings.TrimSpace(in.TableNumber),
		Name:        in.Name,
		Capacity:    in.Capacity,
		Status:      models.TableAvailable,
		Token:       uuid.NewString(),
		IsActive:    true,
	}
	if err := s.db.WithContext(ctx).Create(table).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, invalidField("table_number", "is already in use")
		}
		return nil, err
	}
	table.QRURL = s.tableQRURL(table.Token)
	return table, nil
}

// ListTables returns tables, optionally for one floor.
func (s *Service) ListTables(ctx context.Context, floorID uint) ([]models.Table, error) {
	q := s.db.WithContext(ctx)
	if floorID != 0 {
		q = q.Where("floor_id = ?", floorID)
	}
	var tables []models.Table
	err := q.Order("id").Find(&tables).Error
	s.withQRURL(tables)
	return tables, err
}

// GetTableByToken resolves the QR token, exact match only.
func (s *Service) GetTableByToken(ctx context.Context, token string) (*models.Table, error) {
	var table models.Table
	err := s.db.WithContext(ctx).Where("token = ? AND is_active = ?", token, true).First(&table).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, withMessage(ErrNotFound, "invalid table token")
	}
	if err != nil {
		return nil, err
	}
	table.QRURL = s.tableQRURL(table.Token)
	return &table, nil
}

// tableQRURL is the self-ordering page a table's printed QR code opens.
func (s *Service) tableQRURL(token string) string {
	base := strings.TrimRight(s.settings.FrontendURL, "/")
	if base == "" {
		return ""
	}
	return base + "/order?" + url.Values{"table": {token}}.Encode()
}

func (s *Service) withQRURL(tables []models.Table) {
	for i := range tables {
		tables[i].QRURL = s.tableQRURL(tables[i].Token)
	}
}

// SetTableStatus lets staff mark a table by hand: clear it after a cancelled
// order, hold it for a reservation or flag it for cleaning. A table bound to
// an open order can only be marked occupied.
func (s *Service) SetTableStatus(ctx context.Context, tableID uint, status models.TableStatus, actor *uint) (*models.Table, error) {
	if !status.Valid() {
		return nil, invalidField("status", "must be one of available, occupied, reserved, dirty")
	}

	var table models.Table
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&table, tableID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("table", tableID)
			}
			return err
		}
		if status != models.TableOccupied {
			var open int64
			err := tx.Model(&models.Order{}).
				Where("table_id = ? AND status IN ?", table.ID, []models.OrderStatus{models.StatusDraft, models.StatusSentToKitchen}).
				Count(&open).Error
			if err != nil {
				return err
			}
			if open > 0 {
				return withMessage(ErrTableInUse, "table %s has %d open order(s)", table.TableNumber, open)
			}
		}
		table.Status = status
		return setTableStatus(tx, &table.ID, status)
	})
	if err != nil {
		return nil, err
	}

	attrs := []slog.Attr{slog.String("table_number", table.TableNumber), slog.String("status", string(status))}
	if actor != nil {
		attrs = append(attrs, slog.Uint64("changed_by", uint64(*actor)))
	}
	s.log.Info("table.status", logger.RequestID(ctx), "table status set", attrs...)
	table.QRURL = s.tableQRURL(table.Token)
	return &table, nil
}

type VariantInput struct {
	Name       string
	ExtraPrice money.Amount
}

type ProductInput struct {
	Name     string
	Price    money.Amount
	TaxRate  money.Rate
	Variants []VariantInput
}

func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (*models.Product, error) {
	fields := map[string]string{}
	if strings.TrimSpace(in.Name) == "" {
		fields["name"] = "is required"
	}
	if in.Price.IsNegative() {
		fields["price"] = "must not be negative"
	}
	for _, v := range in.Variants {
		if strings.TrimSpace(v.Name) == "" {
			fields["variants"] = "every variant needs a name"
		}
		if v.ExtraPrice.IsNegative() {
			fields["variants"] = "extra_price must not be negative"
		}
	}
	if len(fields) > 0 {
		return nil, invalid(fields)
	}

	product := &models.Product{Name: strings.TrimSpace(in.Name), Price: in.Price, TaxRate: in.TaxRate, IsActive: true}
	for _, v := range in.Variants {
		product.Variants = append(product.Variants, models.ProductVariant{Name: v.Name, ExtraPrice: v.ExtraPrice})
	}
	if err := s.db.WithContext(ctx).Create(product).Error; err != nil {
		return nil, err
	}
	return product, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.db.WithContext(ctx).Preload("Variants", linesByID).Where("is_active = ?", true).Order("name").Find(&products).Error
	return products, err
}

func (s *Service) ListPaymentMethods(ctx context.Context) ([]models.PaymentMethod, error) {
	var methods []models.PaymentMethod
	err := s.db.WithContext(ctx).Where("is_active = ?", true).Order("id").Find(&methods).Error
	return methods, err
}

func (s *Service) GetReceipt(ctx context.Context, id uint) (*models.Receipt, error) {
	var receipt models.Receipt
	err := s.db.WithContext(ctx).Preload("Order.Lines", linesByID).Preload("Order.Table").First(&receipt, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("receipt", id)
	}
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

// Summary is the admin dashboard headline.
type Summary struct {
	CompletedOrders int64                        `json:"completed_orders"`
	TotalSales      money.Amount                 `json:"total_sales"`
	OpenSessions    int64                        `json:"open_sessions"`
	OrdersByStatus  map[models.OrderStatus]int64 `json:"orders_by_status"`
}

func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	db := s.db.WithContext(ctx)

	var rows []struct {
		Status models.OrderStatus
		Count  int64
		Sum    int64
	}
	err := db.Model(&models.Order{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(total_amount), 0) AS sum").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := &Summary{OrdersByStatus: map[models.OrderStatus]int64{}}
	for _, r := range rows {
		out.OrdersByStatus[r.Status] = r.Count
		if r.Status == models.StatusCompleted {
			out.CompletedOrders = r.Count
			out.TotalSales = money.FromMinor(r.Sum)
		}
	}
	if err := db.Model(&models.POSSession{}).Where("status = ?", models.SessionOpen).Count(&out.OpenSessions).Error; err != nil {
		return nil, err
	}
	return out, nil
}

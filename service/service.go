// Package service is the order lifecycle and settlement engine. Every
// operation that mutates an order runs under that order's lock and inside
// one database transaction; kitchen events are published only after the
// transaction commits.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"cafe-pos/gateway"
	"cafe-pos/kitchen"
	"cafe-pos/logger"
	"cafe-pos/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Broadcaster receives kitchen events; *kitchen.Hub satisfies it.
type Broadcaster interface {
	Publish(ev kitchen.Event)
}

// Recorder receives business counters; *metrics.Metrics satisfies it.
type Recorder interface {
	OrderCreated()
	OrderCompleted(path string)
	PaymentRecorded(method string)
}

type nopBroadcaster struct{}

func (nopBroadcaster) Publish(kitchen.Event) {}

type nopRecorder struct{}

func (nopRecorder) OrderCreated()          {}
func (nopRecorder) OrderCompleted(string)  {}
func (nopRecorder) PaymentRecorded(string) {}

// Settings are the values the ledger and QR collaborators need from config.
type Settings struct {
	Currency          string
	GatewayMethodCode string
	PayeeName         string
	FrontendURL       string
	OrderNumberTries  int
}

type Options struct {
	DB          *gorm.DB
	Broadcaster Broadcaster
	Recorder    Recorder
	Gateway     gateway.Gateway
	Verifier    *gateway.Verifier
	Logger      *logger.Logger
	Settings    Settings
	Now         func() time.Time
}

type Service struct {
	db       *gorm.DB
	kitchen  Broadcaster
	metrics  Recorder
	gateway  gateway.Gateway
	verifier *gateway.Verifier
	log      *logger.Logger
	settings Settings
	now      func() time.Time

	orderLocks   *keyedMutex
	sessionLocks *keyedMutex
}

func New(opts Options) *Service {
	if opts.Broadcaster == nil {
		opts.Broadcaster = nopBroadcaster{}
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Verifier == nil {
		opts.Verifier = gateway.NewVerifier("")
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Settings.Currency == "" {
		opts.Settings.Currency = "INR"
	}
	if opts.Settings.GatewayMethodCode == "" {
		opts.Settings.GatewayMethodCode = "razorpay"
	}
	if opts.Settings.OrderNumberTries <= 0 {
		opts.Settings.OrderNumberTries = 10
	}
	return &Service{
		db:           opts.DB,
		kitchen:      opts.Broadcaster,
		metrics:      opts.Recorder,
		gateway:      opts.Gateway,
		verifier:     opts.Verifier,
		log:          opts.Logger,
		settings:     opts.Settings,
		now:          opts.Now,
		orderLocks:   newKeyedMutex(),
		sessionLocks: newKeyedMutex(),
	}
}

// transaction runs fn in a DB transaction bound to ctx.
func (s *Service) transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn)
}

// forUpdate adds SELECT ... FOR UPDATE where the dialect has it. SQLite
// serialises writers on its own.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value")
}

func linesByID(db *gorm.DB) *gorm.DB {
	return db.Order("id")
}

// lockOrderRow loads an order for mutation, without associations.
func lockOrderRow(tx *gorm.DB, id uint) (*models.Order, error) {
	var o models.Order
	if err := forUpdate(tx).First(&o, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("order", id)
		}
		return nil, err
	}
	return &o, nil
}

// loadOrder returns the order with its lines (in creation order) and table.
func loadOrder(db *gorm.DB, id uint) (*models.Order, error) {
	var o models.Order
	err := db.Preload("Lines", linesByID).Preload("Table").First(&o, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("order", id)
		}
		return nil, err
	}
	return &o, nil
}

// publishOrder reloads the committed order and publishes one event per
// action, each carrying the full snapshot.
func (s *Service) publishOrder(ctx context.Context, orderID uint, actions ...kitchen.Action) {
	if len(actions) == 0 {
		return
	}
	o, err := loadOrder(s.db.WithContext(ctx), orderID)
	if err != nil {
		s.log.Error("kitchen.publish", logger.RequestID(ctx), "failed to load order for broadcast", err)
		return
	}
	for _, a := range actions {
		switch a {
		case kitchen.ActionOrderCreated:
			s.kitchen.Publish(kitchen.OrderCreated(o))
		case kitchen.ActionOrderCompleted:
			s.kitchen.Publish(kitchen.OrderCompleted(o))
		}
	}
}

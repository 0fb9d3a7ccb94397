// Package mongo implements the store interface for MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mgo "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tarancss/rentguard/lib/store"
)

// Database and collection names.
const (
	Database    = "rentguard"
	properties  = "properties"
	rentals     = "rentals"
	connTimeout = 5 * time.Second
)

// Mongo implements a connection to a MongoDB database.
type Mongo struct {
	c  *mgo.Client
	db *mgo.Database
}

type propertyDoc struct {
	ID                string               `bson:"_id"`
	Title             string               `bson:"title"`
	Description       string               `bson:"description"`
	Address           string               `bson:"address"`
	MonthlyRent       primitive.Decimal128 `bson:"monthlyRent"`
	Currency          string               `bson:"currency"`
	LandlordPublicKey string               `bson:"landlordPublicKey"`
	Features          []string             `bson:"features"`
	Images            []string             `bson:"images"`
	IsAvailable       bool                 `bson:"isAvailable"`
	CreatedAt         time.Time            `bson:"createdAt"`
	UpdatedAt         time.Time            `bson:"updatedAt"`
}

type paymentDoc struct {
	ID              string               `bson:"id"`
	Amount          primitive.Decimal128 `bson:"amount"`
	Currency        string               `bson:"currency"`
	TransactionHash string               `bson:"transactionHash"`
	Memo            string               `bson:"memo"`
	Network         string               `bson:"network,omitempty"`
	Timestamp       time.Time            `bson:"timestamp"`
}

type rentalDoc struct {
	ID                string               `bson:"_id"`
	PropertyID        string               `bson:"propertyId"`
	TenantPublicKey   string               `bson:"tenantPublicKey"`
	LandlordPublicKey string               `bson:"landlordPublicKey"`
	MonthlyRent       primitive.Decimal128 `bson:"monthlyRent"`
	Currency          string               `bson:"currency"`
	StartDate         time.Time            `bson:"startDate"`
	EndDate           time.Time            `bson:"endDate"`
	Deposit           primitive.Decimal128 `bson:"deposit"`
	Terms             string               `bson:"terms,omitempty"`
	Status            string               `bson:"status"`
	Payments          []paymentDoc         `bson:"payments"`
	CreatedAt         time.Time            `bson:"createdAt"`
	UpdatedAt         time.Time            `bson:"updatedAt"`
}

// New returns a Mongo client connection to the specified MongoDB database uri.
func New(uri string) (*Mongo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connTimeout)
	defer cancel()

	c, err := mgo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("cannot connect to mongo DB in %s: %w", uri, err)
	}

	if err = c.Ping(ctx, nil); err != nil {
		_ = c.Disconnect(context.Background())

		return nil, fmt.Errorf("error connecting to mongo DB: %w", err)
	}

	return &Mongo{c: c, db: c.Database(Database)}, nil
}

// CloseMongo will close a database connection. Must be called at termination time.
func (m *Mongo) CloseMongo() error {
	return m.c.Disconnect(context.Background())
}

func dec(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return v, fmt.Errorf("%w: %s: %v", store.ErrBadAmount, d, err)
	}

	return v, nil
}

func undec(v primitive.Decimal128) decimal.Decimal {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero
	}

	return d
}

func toPropertyDoc(p store.Property) (propertyDoc, error) {
	rent, err := dec(p.MonthlyRent)
	if err != nil {
		return propertyDoc{}, err
	}

	return propertyDoc{
		ID: p.ID, Title: p.Title, Description: p.Description, Address: p.Address, MonthlyRent: rent,
		Currency: p.Currency, LandlordPublicKey: p.LandlordPublicKey, Features: p.Features, Images: p.Images,
		IsAvailable: p.IsAvailable, CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
	}, nil
}

func (d propertyDoc) property() store.Property {
	p := store.Property{
		ID: d.ID, Title: d.Title, Description: d.Description, Address: d.Address, MonthlyRent: undec(d.MonthlyRent),
		Currency: d.Currency, LandlordPublicKey: d.LandlordPublicKey, Features: d.Features, Images: d.Images,
		IsAvailable: d.IsAvailable, CreatedAt: d.CreatedAt.UTC(), UpdatedAt: d.UpdatedAt.UTC(),
	}

	return p.Clone()
}

func toPaymentDoc(p store.Payment) (paymentDoc, error) {
	amount, err := dec(p.Amount)
	if err != nil {
		return paymentDoc{}, err
	}

	return paymentDoc{
		ID: p.ID, Amount: amount, Currency: p.Currency, TransactionHash: p.TransactionHash, Memo: p.Memo,
		Network: p.Network, Timestamp: p.Timestamp,
	}, nil
}

func toRentalDoc(r store.Rental) (rentalDoc, error) {
	rent, err := dec(r.MonthlyRent)
	if err != nil {
		return rentalDoc{}, err
	}

	deposit, err := dec(r.Deposit)
	if err != nil {
		return rentalDoc{}, err
	}

	d := rentalDoc{
		ID: r.ID, PropertyID: r.PropertyID, TenantPublicKey: r.TenantPublicKey, LandlordPublicKey: r.LandlordPublicKey,
		MonthlyRent: rent, Currency: r.Currency, StartDate: r.StartDate, EndDate: r.EndDate,
		Deposit: deposit, Terms: r.Terms, Status: r.Status, Payments: make([]paymentDoc, 0, len(r.Payments)),
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}

	for _, p := range r.Payments {
		pd, errP := toPaymentDoc(p)
		if errP != nil {
			return rentalDoc{}, errP
		}

		d.Payments = append(d.Payments, pd)
	}

	return d, nil
}

func (d rentalDoc) rental() store.Rental {
	r := store.Rental{
		ID: d.ID, PropertyID: d.PropertyID, TenantPublicKey: d.TenantPublicKey, LandlordPublicKey: d.LandlordPublicKey,
		MonthlyRent: undec(d.MonthlyRent), Currency: d.Currency, StartDate: d.StartDate.UTC(),
		EndDate: d.EndDate.UTC(), Deposit: undec(d.Deposit), Terms: d.Terms, Status: d.Status,
		Payments: make([]store.Payment, 0, len(d.Payments)), CreatedAt: d.CreatedAt.UTC(), UpdatedAt: d.UpdatedAt.UTC(),
	}

	for _, p := range d.Payments {
		r.Payments = append(r.Payments, store.Payment{
			ID: p.ID, Amount: undec(p.Amount), Currency: p.Currency, TransactionHash: p.TransactionHash, Memo: p.Memo,
			Network: p.Network, Timestamp: p.Timestamp.UTC(),
		})
	}

	return r
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, mgo.ErrNoDocuments) {
		return fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
	}

	return fmt.Errorf("cannot read %s %s: %w", kind, id, err)
}

// CreateProperty inserts a new property.
func (m *Mongo) CreateProperty(ctx context.Context, p store.Property) (store.Property, error) {
	p.Init(store.Now())

	d, err := toPropertyDoc(p)
	if err != nil {
		return store.Property{}, err
	}

	if _, err = m.db.Collection(properties).InsertOne(ctx, d); err != nil {
		return store.Property{}, fmt.Errorf("could not insert property in db: %w", err)
	}

	return p, nil
}

// GetProperty returns the property with the given id.
func (m *Mongo) GetProperty(ctx context.Context, id string) (store.Property, error) {
	var d propertyDoc
	if err := m.db.Collection(properties).FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		return store.Property{}, notFound(err, "property", id)
	}

	return d.property(), nil
}

// UpdateProperty applies fn to the property and replaces the document.
func (m *Mongo) UpdateProperty(ctx context.Context, id string, fn func(*store.Property) error) (store.Property,
	error,
) {
	p, err := m.GetProperty(ctx, id)
	if err != nil {
		return p, err
	}

	if err = fn(&p); err != nil {
		return store.Property{}, err
	}

	p.ID = id
	p.UpdatedAt = store.Now()

	d, err := toPropertyDoc(p)
	if err != nil {
		return store.Property{}, err
	}

	res, err := m.db.Collection(properties).ReplaceOne(ctx, bson.M{"_id": id}, d)
	if err != nil {
		return store.Property{}, fmt.Errorf("could not update property in db: %w", err)
	}

	if res.MatchedCount == 0 {
		return store.Property{}, fmt.Errorf("property %s: %w", id, store.ErrNotFound)
	}

	return p, nil
}

// DeleteProperty deletes the property document.
func (m *Mongo) DeleteProperty(ctx context.Context, id string) error {
	res, err := m.db.Collection(properties).DeleteOne(ctx, bson.M{"_id": id})
	if err == nil && res.DeletedCount != 1 {
		err = fmt.Errorf("property %s: %w", id, store.ErrNotFound)
	}

	return err
}

// ListProperties returns the properties matching the filter in creation order.
func (m *Mongo) ListProperties(ctx context.Context, f store.PropertyFilter) ([]store.Property, error) {
	filter := bson.M{}
	if f.Available != nil {
		filter["isAvailable"] = *f.Available
	}

	if f.Landlord != "" {
		filter["landlordPublicKey"] = f.Landlord
	}

	if f.Search != "" {
		re := primitive.Regex{Pattern: regexp.QuoteMeta(f.Search), Options: "i"}
		filter["$or"] = bson.A{bson.M{"title": re}, bson.M{"description": re}, bson.M{"address": re}}
	}

	cur, err := m.db.Collection(properties).Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("cannot list properties: %w", err)
	}
	defer cur.Close(ctx)

	ps := []store.Property{}

	for cur.Next(ctx) {
		var d propertyDoc
		if err = cur.Decode(&d); err != nil {
			return nil, fmt.Errorf("cannot decode property: %w", err)
		}

		ps = append(ps, d.property())
	}

	return ps, cur.Err()
}

// CreateRental inserts a new rental.
func (m *Mongo) CreateRental(ctx context.Context, r store.Rental) (store.Rental, error) {
	r.Init(store.Now())

	d, err := toRentalDoc(r)
	if err != nil {
		return store.Rental{}, err
	}

	if _, err = m.db.Collection(rentals).InsertOne(ctx, d); err != nil {
		return store.Rental{}, fmt.Errorf("could not insert rental in db: %w", err)
	}

	return r, nil
}

// GetRental returns the rental with the given id.
func (m *Mongo) GetRental(ctx context.Context, id string) (store.Rental, error) {
	var d rentalDoc
	if err := m.db.Collection(rentals).FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		return store.Rental{}, notFound(err, "rental", id)
	}

	return d.rental(), nil
}

// UpdateRental applies fn to the rental and saves every field but the payments, which are only appended.
func (m *Mongo) UpdateRental(ctx context.Context, id string, fn func(*store.Rental) error) (store.Rental, error) {
	r, err := m.GetRental(ctx, id)
	if err != nil {
		return r, err
	}

	payments := r.Clone().Payments

	if err = fn(&r); err != nil {
		return store.Rental{}, err
	}

	r.ID = id
	r.UpdatedAt = store.Now()

	d, err := toRentalDoc(r)
	if err != nil {
		return store.Rental{}, err
	}

	res, err := m.db.Collection(rentals).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"propertyId":        d.PropertyID,
		"tenantPublicKey":   d.TenantPublicKey,
		"landlordPublicKey": d.LandlordPublicKey,
		"monthlyRent":       d.MonthlyRent,
		"currency":          d.Currency,
		"startDate":         d.StartDate,
		"endDate":           d.EndDate,
		"deposit":           d.Deposit,
		"terms":             d.Terms,
		"status":            d.Status,
		"updatedAt":         d.UpdatedAt,
	}})
	if err != nil {
		return store.Rental{}, fmt.Errorf("could not update rental in db: %w", err)
	}

	if res.MatchedCount == 0 {
		return store.Rental{}, fmt.Errorf("rental %s: %w", id, store.ErrNotFound)
	}

	r.Payments = payments

	return r, nil
}

// DeleteRental deletes the rental document.
func (m *Mongo) DeleteRental(ctx context.Context, id string) error {
	res, err := m.db.Collection(rentals).DeleteOne(ctx, bson.M{"_id": id})
	if err == nil && res.DeletedCount != 1 {
		err = fmt.Errorf("rental %s: %w", id, store.ErrNotFound)
	}

	return err
}

// ListRentals returns the rentals matching the filter in creation order.
func (m *Mongo) ListRentals(ctx context.Context, f store.RentalFilter) ([]store.Rental, error) {
	filter := bson.M{}
	if f.Tenant != "" {
		filter["tenantPublicKey"] = f.Tenant
	}

	if f.Landlord != "" {
		filter["landlordPublicKey"] = f.Landlord
	}

	if f.Status != "" {
		filter["status"] = f.Status
	}

	cur, err := m.db.Collection(rentals).Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("cannot list rentals: %w", err)
	}
	defer cur.Close(ctx)

	rs := []store.Rental{}

	for cur.Next(ctx) {
		var d rentalDoc
		if err = cur.Decode(&d); err != nil {
			return nil, fmt.Errorf("cannot decode rental: %w", err)
		}

		rs = append(rs, d.rental())
	}

	return rs, cur.Err()
}

// AddPayment pushes a payment to the rental document.
func (m *Mongo) AddPayment(ctx context.Context, rentalID string, p store.Payment) (store.Payment, error) {
	now := store.Now()
	p.Init(now)

	d, err := toPaymentDoc(p)
	if err != nil {
		return store.Payment{}, err
	}

	res, err := m.db.Collection(rentals).UpdateOne(ctx, bson.M{"_id": rentalID}, bson.M{
		"$push": bson.M{"payments": d},
		"$set":  bson.M{"updatedAt": now},
	})
	if err != nil {
		return store.Payment{}, fmt.Errorf("could not add payment in db: %w", err)
	}

	if res.MatchedCount == 0 {
		return store.Payment{}, fmt.Errorf("rental %s: %w", rentalID, store.ErrNotFound)
	}

	return p, nil
}

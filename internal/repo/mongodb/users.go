package mongodb

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/geocoder89/sevico/internal/domain/user"
	"github.com/geocoder89/sevico/internal/observability"
)

const usersCollection = "users"

// userDocument is the stored shape. Nullable fields are written as null so $set can clear them.
type userDocument struct {
	ID                          string     `bson:"_id"`
	Email                       string     `bson:"email"`
	PasswordHash                string     `bson:"password_hash"`
	FullName                    *string    `bson:"fullname"`
	Avatar                      *string    `bson:"avatar"`
	DOB                         *time.Time `bson:"dob"`
	IsVerified                  bool       `bson:"is_verified"`
	VerificationCode            *string    `bson:"verification_code"`
	VerificationCodeExpiresAt   *time.Time `bson:"verification_code_expires_at"`
	PasswordResetToken          *string    `bson:"password_reset_token"`
	PasswordResetTokenExpiresAt *time.Time `bson:"password_reset_token_expires_at"`
	Version                     int64      `bson:"version"`
	CreatedAt                   time.Time  `bson:"created_at"`
	UpdatedAt                   time.Time  `bson:"updated_at"`
}

func toDocument(u user.User) userDocument {
	return userDocument{
		ID:                          u.ID,
		Email:                       u.Email,
		PasswordHash:                u.PasswordHash,
		FullName:                    u.FullName,
		Avatar:                      u.Avatar,
		DOB:                         u.DOB,
		IsVerified:                  u.IsVerified,
		VerificationCode:            u.VerificationCode,
		VerificationCodeExpiresAt:   u.VerificationCodeExpiresAt,
		PasswordResetToken:          u.PasswordResetToken,
		PasswordResetTokenExpiresAt: u.PasswordResetTokenExpiresAt,
		Version:                     u.Version,
		CreatedAt:                   u.CreatedAt,
		UpdatedAt:                   u.UpdatedAt,
	}
}

func (d userDocument) toUser() user.User {
	return user.User{
		ID:                          d.ID,
		Email:                       d.Email,
		PasswordHash:                d.PasswordHash,
		FullName:                    d.FullName,
		Avatar:                      d.Avatar,
		DOB:                         utcPtr(d.DOB),
		IsVerified:                  d.IsVerified,
		VerificationCode:            d.VerificationCode,
		VerificationCodeExpiresAt:   utcPtr(d.VerificationCodeExpiresAt),
		PasswordResetToken:          d.PasswordResetToken,
		PasswordResetTokenExpiresAt: utcPtr(d.PasswordResetTokenExpiresAt),
		Version:                     d.Version,
		CreatedAt:                   d.CreatedAt.UTC(),
		UpdatedAt:                   d.UpdatedAt.UTC(),
	}
}

type UsersRepo struct {
	coll *mongo.Collection
	prom *observability.Prom
}

func NewUsersRepo(db *mongo.Database, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{coll: db.Collection(usersCollection), prom: prom}
}

func (r *UsersRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveStore(op, fn)
	}
	return fn()
}

// EnsureIndexes creates the unique email index Create relies on.
func (r *UsersRepo) EnsureIndexes(ctx context.Context) error {
	return r.observe("users.ensure_indexes", func() error {
		_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("users_email_unique"),
		})
		return err
	})
}

func (r *UsersRepo) Create(ctx context.Context, u user.User) error {
	err := r.observe("users.create", func() error {
		_, err := r.coll.InsertOne(ctx, toDocument(u))
		return err
	})

	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return user.ErrAlreadyExists
		}
		return err
	}

	return nil
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	var doc userDocument

	err := r.observe("users.get_by_email", func() error {
		return r.coll.FindOne(ctx, bson.D{{Key: "email", Value: email}}).Decode(&doc)
	})

	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, err
	}

	return doc.toUser(), nil
}

// Update is a single conditional FindOneAndUpdate keyed on email and version.
func (r *UsersRepo) Update(ctx context.Context, u user.User) (user.User, error) {
	filter := bson.D{
		{Key: "email", Value: u.Email},
		{Key: "version", Value: u.Version},
	}

	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "password_hash", Value: u.PasswordHash},
			{Key: "fullname", Value: u.FullName},
			{Key: "avatar", Value: u.Avatar},
			{Key: "dob", Value: u.DOB},
			{Key: "is_verified", Value: u.IsVerified},
			{Key: "verification_code", Value: u.VerificationCode},
			{Key: "verification_code_expires_at", Value: u.VerificationCodeExpiresAt},
			{Key: "password_reset_token", Value: u.PasswordResetToken},
			{Key: "password_reset_token_expires_at", Value: u.PasswordResetTokenExpiresAt},
			{Key: "updated_at", Value: u.UpdatedAt},
		}},
		{Key: "$inc", Value: bson.D{{Key: "version", Value: 1}}},
	}

	var doc userDocument

	err := r.observe("users.update", func() error {
		return r.coll.FindOneAndUpdate(ctx, filter, update,
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&doc)
	})

	if err == nil {
		return doc.toUser(), nil
	}

	if !errors.Is(err, mongo.ErrNoDocuments) {
		return user.User{}, err
	}

	var count int64

	err = r.observe("users.update.exists", func() error {
		var err error
		count, err = r.coll.CountDocuments(ctx, bson.D{{Key: "email", Value: u.Email}}, options.Count().SetLimit(1))
		return err
	})
	if err != nil {
		return user.User{}, err
	}

	if count == 0 {
		return user.User{}, user.ErrNotFound
	}

	return user.User{}, user.ErrVersionConflict
}

func (r *UsersRepo) Ping(ctx context.Context) error {
	return r.coll.Database().Client().Ping(ctx, readpref.Primary())
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

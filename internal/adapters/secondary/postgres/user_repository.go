package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lorrc/event-attendance-backend/internal/core/domain"
	apperrors "github.com/lorrc/event-attendance-backend/internal/core/errors"
	"github.com/lorrc/event-attendance-backend/internal/core/ports"
	"github.com/lorrc/event-attendance-backend/internal/core/utils"
)

type UserRepository struct {
	pool *pgxpool.Pool
}

var _ ports.UserRepository = (*UserRepository)(nil)

func NewUserRepository(pool *pgxpool.Pool) ports.UserRepository {
	return &UserRepository{pool: pool}
}

const userColumns = `id, name, email, password_hash, created_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		id   pgtype.UUID
		user domain.User
	)
	if err := row.Scan(&id, &user.Name, &user.Email, &user.PasswordHash, &user.CreatedAt); err != nil {
		return nil, err
	}
	user.ID = utils.FromUUID(id)
	return &user, nil
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	row := GetDBTX(ctx, r.pool).QueryRow(ctx,
		`INSERT INTO users (id, name, email, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+userColumns,
		utils.ToUUID(user.ID), user.Name, user.Email, user.PasswordHash, user.CreatedAt,
	)

	created, err := scanUser(row)
	if err != nil {
		if isPgError(err, pgUniqueViolation) {
			return nil, apperrors.ErrUserExists
		}
		return nil, mapStoreError(fmt.Errorf("insert user: %w", err))
	}
	return created, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := GetDBTX(ctx, r.pool).QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`,
		domain.NormalizeEmail(email),
	)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, mapStoreError(fmt.Errorf("get user by email: %w", err))
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	row := GetDBTX(ctx, r.pool).QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		utils.ToUUID(id),
	)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, mapStoreError(fmt.Errorf("get user by id: %w", err))
	}
	return user, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/twelves/apiserver/types"
)

// CreateAccountParams carries everything written by the account transaction.
type CreateAccountParams struct {
	Email        string
	Username     string
	BirthDate    time.Time
	PasswordHash string
}

// UserRepository handles persistence for users and their dependent records.
type UserRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db, now: time.Now}
}

const userColumns = `u.id, u.email, u.username, u.birth_date, u.external_id, u.email_verified,
		       u.terms_accepted_at, u.created_at, u.updated_at`

const profileQuery = `
		SELECT ` + userColumns + `,
		       w.id, w.coins, r.id, r.reliability
		FROM users u
		LEFT JOIN wallets w ON w.user_id = u.id
		LEFT JOIN reputations r ON r.user_id = u.id`

// CreateAccount inserts the user, its credential, a wallet holding the welcome
// bonus and a default reputation in a single transaction.
func (r *UserRepository) CreateAccount(ctx context.Context, params CreateAccountParams) (types.UserProfile, error) {
	now := r.now().UTC()
	profile := types.UserProfile{
		User: types.User{
			ID:              uuid.NewString(),
			Email:           params.Email,
			Username:        params.Username,
			BirthDate:       params.BirthDate,
			EmailVerified:   false,
			TermsAcceptedAt: now,
			CreatedAt:       now,
			UpdatedAt:       now,
		},
	}
	profile.Wallet = &types.Wallet{ID: uuid.NewString(), UserID: profile.ID, Coins: types.WelcomeBonusCoins}
	profile.Reputation = &types.Reputation{ID: uuid.NewString(), UserID: profile.ID, Reliability: types.DefaultReliability}

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		const insertUser = `
			INSERT INTO users (id, email, username, birth_date, email_verified, terms_accepted_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
		if _, err := tx.ExecContext(ctx, insertUser,
			profile.ID,
			profile.Email,
			profile.Username,
			profile.BirthDate,
			profile.EmailVerified,
			profile.TermsAcceptedAt,
			profile.CreatedAt,
			profile.UpdatedAt,
		); err != nil {
			return fmt.Errorf("store: insert user: %w", mapUniqueViolation(err))
		}

		const insertCredential = `
			INSERT INTO credentials (user_id, password_hash, created_at)
			VALUES ($1, $2, $3)`
		if _, err := tx.ExecContext(ctx, insertCredential, profile.ID, params.PasswordHash, now); err != nil {
			return fmt.Errorf("store: insert credential: %w", err)
		}

		const insertWallet = `
			INSERT INTO wallets (id, user_id, coins, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $4)`
		if _, err := tx.ExecContext(ctx, insertWallet, profile.Wallet.ID, profile.ID, profile.Wallet.Coins, now); err != nil {
			return fmt.Errorf("store: insert wallet: %w", err)
		}

		const insertReputation = `
			INSERT INTO reputations (id, user_id, reliability, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $4)`
		if _, err := tx.ExecContext(ctx, insertReputation, profile.Reputation.ID, profile.ID, profile.Reputation.Reliability, now); err != nil {
			return fmt.Errorf("store: insert reputation: %w", err)
		}
		return nil
	})
	if err != nil {
		return types.UserProfile{}, err
	}
	return profile, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (types.User, error) {
	if !validID(id) {
		return types.User{}, ErrNotFound
	}
	return r.getUser(ctx, `u.id = $1`, id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return r.getUser(ctx, `u.email = $1`, email)
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	return r.getUser(ctx, `u.username = $1`, username)
}

// GetCredential returns the credential of a user, or ErrNotFound when the
// account has none.
func (r *UserRepository) GetCredential(ctx context.Context, userID string) (types.Credential, error) {
	const query = `
		SELECT user_id, password_hash, created_at
		FROM credentials
		WHERE user_id = $1`
	var cred types.Credential
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&cred.UserID, &cred.PasswordHash, &cred.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Credential{}, ErrNotFound
		}
		return types.Credential{}, fmt.Errorf("store: get credential: %w", err)
	}
	return cred, nil
}

// GetProfile returns a user with its wallet and reputation.
func (r *UserRepository) GetProfile(ctx context.Context, id string) (types.UserProfile, error) {
	if !validID(id) {
		return types.UserProfile{}, ErrNotFound
	}
	profile, err := scanProfile(r.db.QueryRowContext(ctx, profileQuery+` WHERE u.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.UserProfile{}, ErrNotFound
		}
		return types.UserProfile{}, fmt.Errorf("store: get profile: %w", err)
	}
	return profile, nil
}

func (r *UserRepository) List(ctx context.Context, offset, limit int) ([]types.UserProfile, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}

	const countQuery = `SELECT COUNT(1) FROM users`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: count users: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, profileQuery+` ORDER BY u.created_at, u.id OFFSET $1 LIMIT $2`, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("store: list users: %w", err)
	}
	defer rows.Close()

	profiles := make([]types.UserProfile, 0, limit)
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("store: scan user: %w", err)
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return profiles, total, nil
}

// Delete removes a user. Credential, wallet and reputation go with it by cascade.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return ErrNotFound
	}
	const query = `DELETE FROM users WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("store: delete user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *UserRepository) getUser(ctx context.Context, where string, arg any) (types.User, error) {
	query := `SELECT ` + userColumns + ` FROM users u WHERE ` + where
	var user types.User
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&user.BirthDate,
		&user.ExternalID,
		&user.EmailVerified,
		&user.TermsAcceptedAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, fmt.Errorf("store: get user: %w", err)
	}
	return user, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (types.UserProfile, error) {
	var (
		profile      types.UserProfile
		walletID     sql.NullString
		coins        sql.NullInt64
		reputationID sql.NullString
		reliability  sql.NullInt64
	)
	err := row.Scan(
		&profile.ID,
		&profile.Email,
		&profile.Username,
		&profile.BirthDate,
		&profile.ExternalID,
		&profile.EmailVerified,
		&profile.TermsAcceptedAt,
		&profile.CreatedAt,
		&profile.UpdatedAt,
		&walletID,
		&coins,
		&reputationID,
		&reliability,
	)
	if err != nil {
		return types.UserProfile{}, err
	}
	if walletID.Valid {
		profile.Wallet = &types.Wallet{ID: walletID.String, UserID: profile.ID, Coins: coins.Int64}
	}
	if reputationID.Valid {
		profile.Reputation = &types.Reputation{ID: reputationID.String, UserID: profile.ID, Reliability: int(reliability.Int64)}
	}
	return profile, nil
}

// validID filters ids postgres would reject as malformed uuids.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// internal/database/user.go
package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/throwdown-gg/throwdown/internal/auth"
	"github.com/throwdown-gg/throwdown/internal/models"
)

func CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		id, err := uuid.NewRandom()
		if err != nil {
			return fmt.Errorf("failed to generate user id: %w", err)
		}
		user.ID = id
	}

	hash, err := auth.CreateHash(user.Password, auth.Params)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.Password = hash

	q := `INSERT INTO users (id, email, password, username, is_ephemeral, is_bot)
	      VALUES ($1, $2, $3, $4, $5, $6)`

	err = pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, execErr := tx.Exec(ctx, q,
			user.ID, user.Email, user.Password, user.Username,
			user.IsEphemeral, user.IsBot,
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	q := `
	SELECT id, email, password, username, is_ephemeral, is_bot
	FROM users
	WHERE email=$1
	`
	err := DB.QueryRow(ctx, q, email).Scan(
		&u.ID, &u.Email, &u.Password, &u.Username,
		&u.IsEphemeral, &u.IsBot,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	q := `
	SELECT id, email, password, username, is_ephemeral, is_bot
	FROM users
	WHERE id=$1
	`
	err := DB.QueryRow(ctx, q, id).Scan(
		&u.ID, &u.Email, &u.Password, &u.Username,
		&u.IsEphemeral, &u.IsBot,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateUserCredentials rehashes the password and persists the user's new
// identity fields, used when an ephemeral guest claims a full account.
func UpdateUserCredentials(ctx context.Context, user *models.User) error {
	hash, err := auth.CreateHash(user.Password, auth.Params)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.Password = hash

	q := `UPDATE users SET email=$2, password=$3, username=$4, is_ephemeral=$5 WHERE id=$1`

	err = pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, execErr := tx.Exec(ctx, q,
			user.ID, user.Email, user.Password, user.Username, user.IsEphemeral,
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// AuthenticateUser verifies email+password and returns a signed session
// token on success.
func AuthenticateUser(ctx context.Context, email, password string) (string, error) {
	u, err := GetUserByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("user lookup failed: %w", err)
	}
	ok, err := auth.ComparePasswordAndHash(password, u.Password)
	if err != nil {
		return "", fmt.Errorf("password check failed: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("invalid credentials")
	}
	return auth.CreateJWT(u.ID.String())
}

// botUsername is the reserved identity the opponent-model bot plays under.
const botUsername = "house_bot"

// EnsureBotUser returns the singleton bot user, creating it on first use.
func EnsureBotUser(ctx context.Context) (*models.User, error) {
	var u models.User
	q := `SELECT id, email, password, username, is_ephemeral, is_bot FROM users WHERE is_bot=true LIMIT 1`
	err := DB.QueryRow(ctx, q).Scan(&u.ID, &u.Email, &u.Password, &u.Username, &u.IsEphemeral, &u.IsBot)
	if err == nil {
		return &u, nil
	}
	if err != pgx.ErrNoRows {
		return nil, fmt.Errorf("bot user lookup failed: %w", err)
	}

	bot := models.User{
		Username: botUsername,
		IsBot:    true,
	}
	if createErr := CreateUser(ctx, &bot); createErr != nil {
		return nil, fmt.Errorf("failed to create bot user: %w", createErr)
	}
	return &bot, nil
}

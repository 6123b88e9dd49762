// Package users holds the single user record with a role enum. The
// platform's session layer authenticates upstream; the core only looks up
// users for contact info and role checks.
package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleCarrier  Role = "CARRIER"
	RoleOwner    Role = "OWNER"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleCarrier, RoleOwner:
		return true
	}
	return false
}

type User struct {
	Username  string    `json:"username"`
	FullName  string    `json:"full_name"`
	Role      Role      `json:"role"`
	Address   string    `json:"address"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

var ErrUserNotFound = errors.New("user not found")

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) Create(ctx context.Context, u User) (User, error) {
	if !u.Role.Valid() {
		return User{}, fmt.Errorf("invalid role %q", u.Role)
	}
	err := r.DB.QueryRow(ctx, `
		INSERT INTO users(username, full_name, role, address, phone)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at`,
		u.Username, u.FullName, u.Role, u.Address, u.Phone).
		Scan(&u.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func (r *Repo) Get(ctx context.Context, username string) (User, error) {
	var u User
	err := r.DB.QueryRow(ctx, `
		SELECT username, full_name, role, address, phone, created_at
		FROM users WHERE username = $1`, username).
		Scan(&u.Username, &u.FullName, &u.Role, &u.Address, &u.Phone, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	return u, err
}

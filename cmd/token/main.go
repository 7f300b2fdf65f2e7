// Command token mints an operator token signed with the API's JWT settings.
//
//	token -username priya -role ADMIN
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/mcclellann/lendbook/pkg/auth"
	"github.com/mcclellann/lendbook/pkg/config"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if err := run(os.Args[1:], cfg, os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(args []string, cfg *config.Config, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	userID := fs.String("user-id", "", "operator id (generated when empty)")
	username := fs.String("username", "", "operator username")
	email := fs.String("email", "", "operator email")
	name := fs.String("name", "", "operator display name")
	role := fs.String("role", auth.RoleStaff, "ADMIN or STAFF")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if strings.TrimSpace(*username) == "" {
		return fmt.Errorf("-username is required")
	}
	r := strings.ToUpper(strings.TrimSpace(*role))
	if r != auth.RoleAdmin && r != auth.RoleStaff {
		return fmt.Errorf("unknown role %q", *role)
	}
	id := uuid.New()
	if *userID != "" {
		parsed, err := uuid.Parse(*userID)
		if err != nil {
			return fmt.Errorf("invalid -user-id: %w", err)
		}
		id = parsed
	}

	svc, err := auth.NewJWTService(auth.JWTConfig{
		Secret:     cfg.JWTSecret,
		Issuer:     cfg.JWTIssuer,
		Expiration: cfg.JWTExpiration,
	})
	if err != nil {
		return err
	}
	token, err := svc.GenerateToken(auth.Identity{
		UserID:   id,
		Username: *username,
		Email:    *email,
		Role:     r,
		Name:     *name,
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

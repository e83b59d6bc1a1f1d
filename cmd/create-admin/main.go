package main

import (
	"bufio"
	"context"
	"fmt"
	"net/mail"
	"os"
	"strings"
	"syscall"

	"github.com/stemsi/exstem-authoring/internal/config"
	"github.com/stemsi/exstem-authoring/internal/database"
	"github.com/stemsi/exstem-authoring/internal/logger"
	"github.com/stemsi/exstem-authoring/internal/model"
	"github.com/stemsi/exstem-authoring/internal/repository"
	"github.com/stemsi/exstem-authoring/internal/service"
	"golang.org/x/term"
)

const defaultRole = "Exam Author"

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.OpenPostgres(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Initialize Services ───────────────────────────────────────────
	adminService := service.NewAdminService(repository.NewAdminRepository(pool), repository.NewRoleRepository(pool))
	authService := service.NewAuthService(cfg, nil)

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("=== Create New Exam Author ===")

	name := prompt(reader, "Enter Name: ")
	if name == "" {
		fmt.Println("Error: Name is required")
		os.Exit(1)
	}

	email := prompt(reader, "Enter Email: ")
	if _, err := mail.ParseAddress(email); err != nil {
		fmt.Println("Error: A valid email is required")
		os.Exit(1)
	}

	fmt.Print("Enter Password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println() // Newline after password input
	if err != nil {
		fmt.Println("Error reading password")
		os.Exit(1)
	}
	password := string(bytePassword)
	if len(password) < 6 {
		fmt.Println("Error: Password must be at least 6 characters")
		os.Exit(1)
	}

	roleName := prompt(reader, fmt.Sprintf("Enter Role (default %q): ", defaultRole))
	if roleName == "" {
		roleName = defaultRole
	}

	// ─── Logic ─────────────────────────────────────────────────────────

	// New roles get every permission; existing roles keep theirs and gain any missing.
	roleID, err := adminService.EnsureRole(ctx, roleName, model.PermissionCodes())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare role")
	}

	hash, err := authService.HashPassword(password)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to hash password")
	}

	newAdmin := &model.Admin{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		RoleID:       roleID,
	}
	if err := adminService.Create(ctx, newAdmin); err != nil {
		log.Fatal().Err(err).Msg("Failed to create admin")
	}

	fmt.Printf("\nSuccess! Author '%s' (%s) created with ID: %d\n", newAdmin.Name, newAdmin.Email, newAdmin.ID)
}

func prompt(r *bufio.Reader, label string) string {
	fmt.Print(label)
	line, _ := r.ReadString('\n')
	return strings.TrimSpace(line)
}

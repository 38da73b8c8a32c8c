package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joaohlviana/99novo-sub001/internal/auth"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: hash-password <password>")
		fmt.Println("Prints an Argon2id hash for auth.admin_password_hash")
		os.Exit(1)
	}

	password := os.Args[1]

	if err := auth.ValidatePasswordStrength(password); err != nil {
		log.Fatalf("Password rejected: %v", err)
	}

	hasher := auth.NewPasswordHasher()

	passwordHash, err := hasher.HashPassword(password)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	fmt.Println(passwordHash)
}

// Package main is a provisioning utility for administrator accounts. The portal
// stores only bcrypt hashes of admin passwords and has no sign-up flow, so this
// tool hashes a password with the same verifier the server uses and prints a
// ready-to-run SQL INSERT for the admin_users table.
//
// Usage:
//
//	hash [-cost 12] [-role admin|super_admin] <email> <username> <password>
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/sports-federation/federation-portal/internal/auth"
)

func main() {
	cost := flag.Int("cost", bcrypt.DefaultCost, "bcrypt cost")
	role := flag.String("role", string(auth.RoleAdmin), "admin role: admin or super_admin")
	flag.Parse()

	if flag.NArg() != 3 {
		fmt.Fprintf(os.Stderr, "usage: %s [-cost N] [-role admin|super_admin] <email> <username> <password>\n", os.Args[0])
		os.Exit(2)
	}
	if !auth.Role(*role).Valid() {
		log.Fatalf("invalid role %q", *role)
	}

	verifier, err := auth.NewPasswordVerifier(*cost)
	if err != nil {
		log.Fatal(err)
	}
	email := strings.ToLower(strings.TrimSpace(flag.Arg(0)))
	hash, err := verifier.Hash(flag.Arg(2))
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Hash: %s\n\n", hash)
	fmt.Printf(`INSERT INTO admin_users (email, username, password_hash, role)
VALUES ('%s', '%s', '%s', '%s');
`, sqlQuote(email), sqlQuote(flag.Arg(1)), hash, *role)
}

func sqlQuote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// Package main is a development utility for generating an admin token signing
// secret. It prints a random base64url secret of auth.MinSecretLength bytes as
// a ready-to-paste .env line. Rotating the secret invalidates every issued
// admin token.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"

	"github.com/sports-federation/federation-portal/internal/auth"
)

func main() {
	randomBytes := make([]byte, auth.MinSecretLength)
	if _, err := rand.Read(randomBytes); err != nil {
		log.Fatal(err)
	}

	secret := base64.RawURLEncoding.EncodeToString(randomBytes)

	fmt.Println("==========================================================")
	fmt.Println("Admin token secret generated")
	fmt.Println("==========================================================")
	fmt.Printf("\nFED_AUTH_JWT_SECRET=%s\n\n", secret)
	fmt.Println("Add the line above to .env or the deployment secret store.")
	fmt.Println("==========================================================")
}
